//go:build !unix

package main

import "os"

// No user signals here; use --trace-on-start or /stream instead.
var (
	toggleSignals    []os.Signal
	toggleSignalName = ""
)
