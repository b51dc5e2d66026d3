package monitoring

import (
	"fmt"
	"testing"
)

func TestSetLoggerRedirects(t *testing.T) {
	defer SetLogger(nil)

	var captured string
	SetLogger(func(format string, v ...interface{}) {
		captured = fmt.Sprintf(format, v...)
	})

	Logf("decoded %d frames", 42)
	if captured != "decoded 42 frames" {
		t.Errorf("captured %q", captured)
	}
}

func TestSetLoggerNilMutes(t *testing.T) {
	SetLogger(nil)
	Logf("should not panic")
}

func TestDebugfGated(t *testing.T) {
	defer SetLogger(nil)
	defer EnableDebug(false)

	var calls int
	SetLogger(func(format string, v ...interface{}) { calls++ })

	Debugf("off by default")
	if calls != 0 {
		t.Fatal("Debugf logged while disabled")
	}

	EnableDebug(true)
	Debugf("now visible")
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}

	EnableDebug(false)
	Debugf("muted again")
	if calls != 1 {
		t.Errorf("calls = %d after disable, want 1", calls)
	}
}
