//go:build windows

package main

import (
	"os"
	"os/signal"
)

// notifySignals registers the signals that stop a running scenario after
// its current step. On Windows, only os.Interrupt (Ctrl+C) is supported.
func notifySignals(ch chan<- os.Signal) {
	signal.Notify(ch, os.Interrupt)
}
