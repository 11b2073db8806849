//go:build windows

package main

import (
	"os"
	"os/signal"
)

// signalChannel delivers os.Interrupt. Windows has no job-control signals, so the daemon
// can only be stopped, not paused.
func signalChannel() (<-chan os.Signal, func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)
	return ch, func() { signal.Stop(ch) }
}

func signalActionFor(os.Signal) signalAction {
	return actionStop
}
