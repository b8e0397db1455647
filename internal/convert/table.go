package convert

import (
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/banshee-data/canbridge/internal/signal"
)

// Table holds the two registries the engine reads on every frame:
// message definitions keyed by frame identifier, and destination paths
// keyed by (identifier, signal name).
//
// The registries are read-mostly. Writes replace inner maps instead of
// mutating them, so a reader that obtained a reference under RLock can
// keep using it after the lock is released.
type Table struct {
	mu       sync.RWMutex
	messages map[uint32]signal.MessageDef
	routes   map[uint32]map[string]string
}

// NewTable creates an empty Table.
func NewTable() *Table {
	return &Table{
		messages: make(map[uint32]signal.MessageDef),
		routes:   make(map[uint32]map[string]string),
	}
}

// RegisterMessage validates a definition and inserts it, overwriting
// any previous definition for the same identifier. Overwrite is the
// documented conflict behaviour; reloading a config converges on the
// last write.
func (t *Table) RegisterMessage(def signal.MessageDef) error {
	if err := def.Validate(); err != nil {
		return err
	}
	def.Signals = maps.Clone(def.Signals)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages[def.ID] = def
	return nil
}

// AddMapping routes (id, signal name) to a destination path. The
// message definition does not have to exist; a mapping without one is
// inert until a definition arrives.
func (t *Table) AddMapping(id uint32, signalName, destination string) error {
	if signalName == "" {
		return fmt.Errorf("mapping for id 0x%X has no signal name", id)
	}
	if destination == "" {
		return fmt.Errorf("mapping for id 0x%X signal %s has no destination", id, signalName)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	next := maps.Clone(t.routes[id])
	if next == nil {
		next = make(map[string]string, 1)
	}
	next[signalName] = destination
	t.routes[id] = next
	return nil
}

// Lookup returns the definition and destination routes for an
// identifier. ok is false when either half is missing: a frame with no
// definition or no routes produces nothing. The returned maps are
// snapshots that later writes will not mutate.
func (t *Table) Lookup(id uint32) (def signal.MessageDef, routes map[string]string, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	def, haveDef := t.messages[id]
	routes = t.routes[id]
	if !haveDef || len(routes) == 0 {
		return signal.MessageDef{}, nil, false
	}
	return def, routes, true
}

// Message returns the definition registered for an identifier.
func (t *Table) Message(id uint32) (signal.MessageDef, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	def, ok := t.messages[id]
	return def, ok
}

// MessageByName returns the definition with the given message name.
// Names are not required to be unique; when they collide the lowest
// identifier wins, matching the Messages ordering.
func (t *Table) MessageByName(name string) (signal.MessageDef, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var (
		found signal.MessageDef
		ok    bool
	)
	for _, def := range t.messages {
		if def.Name != name {
			continue
		}
		if !ok || def.ID < found.ID {
			found = def
			ok = true
		}
	}
	return found, ok
}

// Destination returns the path mapped for (id, signal name).
func (t *Table) Destination(id uint32, signalName string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	dest, ok := t.routes[id][signalName]
	return dest, ok
}

// Messages returns all registered definitions ordered by identifier.
func (t *Table) Messages() []signal.MessageDef {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]signal.MessageDef, 0, len(t.messages))
	for _, def := range t.messages {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Routes returns a deep copy of every mapping, including inert ones
// whose identifier has no definition yet.
func (t *Table) Routes() map[uint32]map[string]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[uint32]map[string]string, len(t.routes))
	for id, m := range t.routes {
		out[id] = maps.Clone(m)
	}
	return out
}

// Reset drops both registries. Load merges by default; callers that
// want replace semantics Reset first.
func (t *Table) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = make(map[uint32]signal.MessageDef)
	t.routes = make(map[uint32]map[string]string)
}
