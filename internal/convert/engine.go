package convert

import (
	"go.einride.tech/can"

	"github.com/banshee-data/canbridge/internal/monitoring"
	"github.com/banshee-data/canbridge/internal/signal"
)

// Engine decodes frames against a Table and routes the decoded values
// to destination paths. One engine serves all bus pumps; Convert is
// safe for concurrent use.
type Engine struct {
	table *Table
	stats *Stats
}

// NewEngine creates an Engine reading from the given table.
func NewEngine(table *Table) *Engine {
	return &Engine{table: table, stats: NewStats()}
}

// Table returns the mapping table the engine reads.
func (e *Engine) Table() *Table { return e.table }

// Convert decodes one frame into destination-keyed values.
//
// Every call counts a received frame. A frame with no definition or no
// mappings produces nothing and counts nothing else. Signals that fail
// to decode are skipped; whatever decodes and has a destination is
// returned. A frame that yields at least one value counts as converted,
// plus one emitted signal per value.
//
// Conversion runs on the ingest path of a resident daemon: a fault must
// never take the process down. Anything unexpected is recovered right
// here, counted, and turned into an empty result. This is the only
// recovery boundary; inner layers return errors.
func (e *Engine) Convert(frame can.Frame) (out map[string]signal.Value) {
	e.stats.AddReceived()
	defer func() {
		if r := recover(); r != nil {
			e.stats.AddError()
			monitoring.Logf("Conversion fault for frame 0x%X: %v", frame.ID, r)
			out = nil
		}
	}()

	if frame.Length > signal.MaxDLC {
		e.stats.AddError()
		monitoring.Logf("Conversion fault for frame 0x%X: length %d exceeds classic CAN payload", frame.ID, frame.Length)
		return nil
	}

	def, routes, ok := e.table.Lookup(frame.ID)
	if !ok {
		return nil
	}

	data := frame.Data[:frame.Length]
	var results map[string]signal.Value
	for name, sdef := range def.Signals {
		dest, mapped := routes[name]
		if !mapped {
			continue
		}
		v, err := signal.Extract(data, sdef)
		if err != nil {
			continue
		}
		if results == nil {
			results = make(map[string]signal.Value, len(routes))
		}
		results[dest] = v
	}
	if len(results) > 0 {
		e.stats.AddConverted(len(results))
	}
	return results
}

// Stats returns a snapshot of the conversion counters.
func (e *Engine) Stats() Snapshot { return e.stats.Snapshot() }

// LogStats logs conversion rates since the last call.
func (e *Engine) LogStats() { e.stats.LogStats() }
