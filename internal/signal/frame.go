package signal

import (
	"fmt"

	"go.einride.tech/can"
)

// EncodeFrame builds a frame for a message definition from values keyed
// by signal name. Signals not present in values encode as zero. The
// frame is flagged extended when the identifier does not fit in 11
// bits.
func EncodeFrame(def MessageDef, values map[string]Value) (can.Frame, error) {
	if err := def.Validate(); err != nil {
		return can.Frame{}, err
	}
	data := make([]byte, def.DLC)
	for name, v := range values {
		d, ok := def.Signals[name]
		if !ok {
			return can.Frame{}, fmt.Errorf("message %s has no signal %q", def.Name, name)
		}
		if err := Insert(data, d, v); err != nil {
			return can.Frame{}, err
		}
	}
	f := can.Frame{
		ID:         def.ID,
		Length:     def.DLC,
		IsExtended: def.ID > MaxStandardID,
	}
	copy(f.Data[:], data)
	return f, nil
}

// DecodeFrame extracts every signal of a definition from a frame.
// Signals that fail to decode are skipped; the map holds whatever could
// be read. Only bytes up to the frame's Length exist for extraction.
func DecodeFrame(def MessageDef, f can.Frame) map[string]Value {
	out := make(map[string]Value, len(def.Signals))
	for name, d := range def.Signals {
		v, err := Extract(f.Data[:f.Length], d)
		if err != nil {
			continue
		}
		out[name] = v
	}
	return out
}
