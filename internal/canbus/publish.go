package canbus

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/canbridge/internal/monitoring"
	"github.com/banshee-data/canbridge/internal/signal"
)

// LogPublisher writes every decoded value to the diagnostic log. Meant
// for bring-up on a new bus, not steady-state operation.
type LogPublisher struct{}

func (LogPublisher) Publish(ts time.Time, frameID uint32, values map[string]signal.Value) error {
	for _, path := range sortedPaths(values) {
		monitoring.Logf("0x%03X %s=%s", frameID, path, values[path].String())
	}
	return nil
}

// Tail fans decoded values out to live subscribers, one formatted line
// per value. Slow subscribers lose lines rather than stalling the
// pump.
type Tail struct {
	mu          sync.Mutex
	subscribers map[string]chan string
}

// NewTail creates a tail with no subscribers.
func NewTail() *Tail {
	return &Tail{subscribers: make(map[string]chan string)}
}

// Subscribe creates a new channel for receiving decoded value lines.
// The returned ID identifies the channel when unsubscribing.
func (t *Tail) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, 32)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (t *Tail) Unsubscribe(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ch, ok := t.subscribers[id]; ok {
		close(ch)
		delete(t.subscribers, id)
	}
}

// Publish formats each value as "HH:MM:SS.mmm 0xIII path=value" and
// offers the lines to every subscriber.
func (t *Tail) Publish(ts time.Time, frameID uint32, values map[string]signal.Value) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.subscribers) == 0 {
		return nil
	}
	for _, path := range sortedPaths(values) {
		line := fmt.Sprintf("%s 0x%03X %s=%s", ts.Format("15:04:05.000"), frameID, path, values[path].String())
		for _, ch := range t.subscribers {
			select {
			case ch <- line:
			default:
				// Drop line if subscriber is slow
			}
		}
	}
	return nil
}

func sortedPaths(values map[string]signal.Value) []string {
	paths := make([]string, 0, len(values))
	for path := range values {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}
