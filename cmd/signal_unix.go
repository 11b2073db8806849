//go:build !windows

package main

import (
	"os"
	"os/signal"
	"syscall"
)

// signalChannel delivers SIGINT, SIGTERM, SIGTSTP and SIGCONT. The returned func unregisters it.
func signalChannel() (<-chan os.Signal, func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM, syscall.SIGTSTP, syscall.SIGCONT)
	return ch, func() { signal.Stop(ch) }
}

func signalActionFor(sig os.Signal) signalAction {
	switch sig {
	case syscall.SIGTSTP:
		return actionPause
	case syscall.SIGCONT:
		return actionResume
	default:
		return actionStop
	}
}
