// Package monitoring holds the diagnostic logger shared by the background
// estimation packages.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf and
// can be replaced or muted with SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Verbose switches between log.Printf and a muted logger.
func Verbose(on bool) {
	if on {
		Logf = log.Printf
		return
	}
	SetLogger(nil)
}
