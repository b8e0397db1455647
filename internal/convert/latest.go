package convert

import (
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/canbridge/internal/signal"
)

// Observation is one decoded signal value with its provenance.
type Observation struct {
	Path    string       `json:"path"`
	Value   signal.Value `json:"value"`
	FrameID uint32       `json:"frame_id"`
	Time    time.Time    `json:"time"`
}

// Latest keeps the most recent observation per destination path. It
// satisfies the pump's publisher contract and backs the live signal
// view.
type Latest struct {
	mu     sync.RWMutex
	values map[string]Observation
}

// NewLatest creates an empty store.
func NewLatest() *Latest {
	return &Latest{values: make(map[string]Observation)}
}

// Publish records each value as the newest observation for its path.
func (l *Latest) Publish(ts time.Time, frameID uint32, values map[string]signal.Value) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for path, v := range values {
		l.values[path] = Observation{
			Path:    path,
			Value:   v,
			FrameID: frameID,
			Time:    ts,
		}
	}
	return nil
}

// Get returns the newest observation for a path.
func (l *Latest) Get(path string) (Observation, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	obs, ok := l.values[path]
	return obs, ok
}

// All returns every current observation sorted by path.
func (l *Latest) All() []Observation {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Observation, 0, len(l.values))
	for _, obs := range l.values {
		out = append(out, obs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Len returns how many paths have observations.
func (l *Latest) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.values)
}
