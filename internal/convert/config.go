package convert

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/banshee-data/canbridge/internal/signal"
)

// ConfigError reports a mapping config that could not be fully applied.
// Everything applied before the offending entry stays applied; there is
// no rollback. Entry names the failing item when one is known.
type ConfigError struct {
	Entry string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Entry == "" {
		return fmt.Sprintf("mapping config: %v", e.Err)
	}
	return fmt.Sprintf("mapping config: %s: %v", e.Entry, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// canID accepts the two identifier spellings mapping files use: a hex
// string ("0x100") or a plain JSON number.
type canID uint32

func (c *canID) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		n, err := strconv.ParseUint(v, 0, 32)
		if err != nil {
			return fmt.Errorf("invalid frame id %q: %w", v, err)
		}
		*c = canID(n)
		return nil
	case float64:
		if v < 0 || v != float64(uint32(v)) {
			return fmt.Errorf("invalid frame id %v", v)
		}
		*c = canID(v)
		return nil
	}
	return fmt.Errorf("frame id must be a hex string or an integer, got %T", raw)
}

// File schema. Omitted scale defaults to 1, offset to 0; min, max,
// unit, description and cycle_time_ms are optional.
type configFile struct {
	MessageDefinitions []configMessage `json:"message_definitions"`
	Mappings           []configMapping `json:"mappings"`
}

type configMessage struct {
	ID          canID          `json:"id"`
	Name        string         `json:"name"`
	DLC         uint8          `json:"dlc"`
	CycleTimeMS int            `json:"cycle_time_ms"`
	Description string         `json:"description"`
	Signals     []configSignal `json:"signals"`
}

type configSignal struct {
	Name        string   `json:"name"`
	StartBit    uint     `json:"start_bit"`
	BitLength   uint     `json:"bit_length"`
	Kind        string   `json:"kind"`
	Scale       *float64 `json:"scale"`
	Offset      *float64 `json:"offset"`
	Min         *float64 `json:"min"`
	Max         *float64 `json:"max"`
	Unit        string   `json:"unit"`
	Description string   `json:"description"`
}

type configMapping struct {
	ID      canID `json:"id"`
	Signals []struct {
		Name        string `json:"name"`
		Destination string `json:"destination"`
	} `json:"signals"`
}

// Load reads a JSON mapping config and merges it into the table:
// definitions overwrite per identifier, mappings overwrite per
// (identifier, signal). On error the entries already merged remain.
func (t *Table) Load(r io.Reader) error {
	var cfg configFile
	dec := json.NewDecoder(r)
	if err := dec.Decode(&cfg); err != nil {
		return &ConfigError{Err: err}
	}

	for _, msg := range cfg.MessageDefinitions {
		def, err := msg.toDef()
		if err != nil {
			return &ConfigError{Entry: fmt.Sprintf("message %s", msg.Name), Err: err}
		}
		if err := t.RegisterMessage(def); err != nil {
			return &ConfigError{Entry: fmt.Sprintf("message %s", msg.Name), Err: err}
		}
	}

	for _, m := range cfg.Mappings {
		for _, s := range m.Signals {
			if err := t.AddMapping(uint32(m.ID), s.Name, s.Destination); err != nil {
				return &ConfigError{Entry: fmt.Sprintf("mapping 0x%X", uint32(m.ID)), Err: err}
			}
		}
	}
	return nil
}

// LoadFile loads a JSON mapping config from disk.
func (t *Table) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return &ConfigError{Err: err}
	}
	defer f.Close()
	return t.Load(f)
}

func (m configMessage) toDef() (signal.MessageDef, error) {
	signals := make(map[string]signal.Definition, len(m.Signals))
	for _, s := range m.Signals {
		if _, dup := signals[s.Name]; dup {
			return signal.MessageDef{}, fmt.Errorf("duplicate signal %q", s.Name)
		}
		kind, err := signal.ParseKind(s.Kind)
		if err != nil {
			return signal.MessageDef{}, fmt.Errorf("signal %s: %w", s.Name, err)
		}
		scale := 1.0
		if s.Scale != nil {
			scale = *s.Scale
		}
		offset := 0.0
		if s.Offset != nil {
			offset = *s.Offset
		}
		signals[s.Name] = signal.Definition{
			Name:        s.Name,
			StartBit:    s.StartBit,
			BitLength:   s.BitLength,
			Kind:        kind,
			Scale:       scale,
			Offset:      offset,
			Min:         s.Min,
			Max:         s.Max,
			Unit:        s.Unit,
			Description: s.Description,
		}
	}
	return signal.MessageDef{
		ID:          uint32(m.ID),
		Name:        m.Name,
		DLC:         m.DLC,
		Signals:     signals,
		CycleTime:   time.Duration(m.CycleTimeMS) * time.Millisecond,
		Description: m.Description,
	}, nil
}
