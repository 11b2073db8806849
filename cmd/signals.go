package main

type signalAction int

const (
	actionStop signalAction = iota
	actionPause
	actionResume
)
