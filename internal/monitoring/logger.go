// Package monitoring holds the audit's diagnostic logger.
//
// Every stage logs through Logf with a bracketed component tag ("[umap]",
// "[hdbscan]", ...). Recoverable problems that must not abort a run go
// through Warnf.
package monitoring

import (
	"log"
	"sync/atomic"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// warnings counts Warnf calls since the last ResetWarnings. Warnf may be
// called from worker goroutines.
var warnings atomic.Int64

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Warnf logs a recoverable problem. Warnings never change the outcome of a run.
func Warnf(format string, v ...interface{}) {
	warnings.Add(1)
	Logf("warning: "+format, v...)
}

// Warnings returns the number of warnings emitted since the last reset.
func Warnings() int {
	return int(warnings.Load())
}

// ResetWarnings zeroes the warning counter. The pipeline calls it at the
// start of each run so the final report counts only that run's warnings.
func ResetWarnings() {
	warnings.Store(0)
}
