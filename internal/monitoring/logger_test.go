package monitoring

import (
	"fmt"
	"testing"
)

func TestSetLoggerRedirects(t *testing.T) {
	defer SetLogger(nil)

	var got string
	SetLogger(func(format string, v ...interface{}) {
		got = fmt.Sprintf(format, v...)
	})

	Logf("processed %d chunks", 7)
	if got != "processed 7 chunks" {
		t.Errorf("Logf output = %q, want %q", got, "processed 7 chunks")
	}
}

func TestSetLoggerNilMutes(t *testing.T) {
	SetLogger(nil)
	// Must not panic.
	Logf("muted %s", "output")
}

func TestTracefMutedByDefault(t *testing.T) {
	// Default tracer is a no-op; calling it must not panic.
	Tracef("per-chunk detail %d", 1)

	var got string
	SetTracer(func(format string, v ...interface{}) {
		got = fmt.Sprintf(format, v...)
	})
	defer SetTracer(nil)

	Tracef("variation %s", "pt_scale_up")
	if got != "variation pt_scale_up" {
		t.Errorf("Tracef output = %q after SetTracer", got)
	}
}
