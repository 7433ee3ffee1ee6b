package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// Tracef carries high-volume per-chunk detail (selection counts, per-variation
// fill routing). It is muted by default so normal runs keep a quiet main log;
// enable it with SetTracer when debugging a single unit.
var Tracef func(format string, v ...interface{}) = func(string, ...interface{}) {}

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetTracer replaces the trace logger. Passing nil mutes tracing.
func SetTracer(f func(format string, v ...interface{})) {
	if f == nil {
		Tracef = func(string, ...interface{}) {}
		return
	}
	Tracef = f
}
