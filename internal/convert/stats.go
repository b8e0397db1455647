package convert

import (
	"sync"
	"time"

	"github.com/banshee-data/canbridge/internal/monitoring"
)

// Stats tracks conversion counters with thread-safe operations. The
// engine's convert path increments these on every frame; readers take
// snapshots.
type Stats struct {
	mu              sync.Mutex
	framesReceived  int64
	framesConverted int64
	signalsEmitted  int64
	errors          int64

	lastLog   time.Time
	lastTotal Snapshot
}

// Snapshot is a point-in-time copy of the conversion counters.
type Snapshot struct {
	FramesReceived  int64 `json:"frames_received"`
	FramesConverted int64 `json:"frames_converted"`
	SignalsEmitted  int64 `json:"signals_emitted"`
	Errors          int64 `json:"errors"`
}

// NewStats creates a new Stats instance.
func NewStats() *Stats {
	return &Stats{lastLog: time.Now()}
}

// AddReceived counts one frame handed to the engine.
func (s *Stats) AddReceived() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.framesReceived++
}

// AddConverted counts a frame that produced at least one decoded signal
// and the number of signals it emitted.
func (s *Stats) AddConverted(signals int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.framesConverted++
	s.signalsEmitted += int64(signals)
}

// AddError counts a conversion fault.
func (s *Stats) AddError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors++
}

// Snapshot returns a copy of the cumulative counters.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Stats) snapshotLocked() Snapshot {
	return Snapshot{
		FramesReceived:  s.framesReceived,
		FramesConverted: s.framesConverted,
		SignalsEmitted:  s.signalsEmitted,
		Errors:          s.errors,
	}
}

// LogStats logs the rates since the previous call. Quiet periods log
// nothing.
func (s *Stats) LogStats() {
	s.mu.Lock()
	now := time.Now()
	total := s.snapshotLocked()
	duration := now.Sub(s.lastLog)
	delta := Snapshot{
		FramesReceived:  total.FramesReceived - s.lastTotal.FramesReceived,
		FramesConverted: total.FramesConverted - s.lastTotal.FramesConverted,
		SignalsEmitted:  total.SignalsEmitted - s.lastTotal.SignalsEmitted,
		Errors:          total.Errors - s.lastTotal.Errors,
	}
	s.lastLog = now
	s.lastTotal = total
	s.mu.Unlock()

	if delta.FramesReceived == 0 && delta.Errors == 0 {
		return
	}
	perSec := duration.Seconds()
	if perSec <= 0 {
		return
	}
	monitoring.Logf("Convert stats (/sec): %.1f frames in, %.1f converted, %.1f signals out",
		float64(delta.FramesReceived)/perSec,
		float64(delta.FramesConverted)/perSec,
		float64(delta.SignalsEmitted)/perSec)
	if delta.Errors > 0 {
		monitoring.Logf("Convert stats: %d conversion faults", delta.Errors)
	}
}
