package acquire

import (
	"testing"
	"time"

	"github.com/banshee-data/biostream/internal/framing"
)

func TestSessionStamp(t *testing.T) {
	s := newSession(false, time.Unix(1700000000, 0), framing.MetricsSnapshot{}, 0)

	indices := make([]int64, 3)
	timestamps := make([]float64, 3)
	s.stamp(3, 1000, indices, timestamps)

	for i := 0; i < 3; i++ {
		if indices[i] != int64(i) {
			t.Errorf("indices[%d] = %d, want %d", i, indices[i], i)
		}
		if want := float64(i) / 1000; timestamps[i] != want {
			t.Errorf("timestamps[%d] = %g, want %g", i, timestamps[i], want)
		}
	}

	// A second batch continues the count and the session-relative clock.
	s.stamp(2, 1000, indices[:2], timestamps[:2])
	if indices[0] != 3 {
		t.Errorf("second batch starts at index %d, want 3", indices[0])
	}
	if want := 3.0 / 1000; timestamps[0] != want {
		t.Errorf("second batch starts at %g, want %g", timestamps[0], want)
	}
	if s.samplesEmitted != 5 {
		t.Errorf("samplesEmitted = %d, want 5", s.samplesEmitted)
	}
}

func TestSessionsHaveDistinctIDs(t *testing.T) {
	a := newSession(false, time.Now(), framing.MetricsSnapshot{}, 0)
	b := newSession(false, time.Now(), framing.MetricsSnapshot{}, 0)
	if a.id == b.id {
		t.Error("two sessions share an ID")
	}
	if a.id == "" {
		t.Error("session ID is empty")
	}
}
