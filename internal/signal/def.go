package signal

import (
	"fmt"
	"time"
)

// MaxBitLength is the widest field the codec extracts. Wider fields are
// rejected at registration and at decode time.
const MaxBitLength = 32

// MaxStandardID and MaxExtendedID are the largest 11-bit and 29-bit CAN
// identifiers.
const (
	MaxStandardID = 0x7FF
	MaxExtendedID = 0x1FFFFFFF
)

// MaxDLC is the classic CAN payload limit in bytes.
const MaxDLC = 8

// Definition describes one packed field within a frame payload.
//
// StartBit counts from bit 0 of byte 0; fields are read little-endian
// (Intel byte order). Scale 0 is treated as 1 so that a zero-value
// Definition stays usable; Offset's zero value is the documented
// default. Min and Max are optional physical bounds applied after
// scaling.
type Definition struct {
	Name        string
	StartBit    uint
	BitLength   uint
	Kind        Kind
	Scale       float64
	Offset      float64
	Min         *float64
	Max         *float64
	Unit        string
	Description string
}

// Validate checks field geometry independent of any containing message.
func (d Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("signal has no name")
	}
	if d.BitLength == 0 {
		return fmt.Errorf("signal %s: bit_length must be at least 1", d.Name)
	}
	if d.BitLength > MaxBitLength {
		return fmt.Errorf("signal %s: bit_length %d exceeds maximum %d", d.Name, d.BitLength, MaxBitLength)
	}
	if _, ok := kindNames[d.Kind]; !ok {
		return fmt.Errorf("signal %s: invalid kind %d", d.Name, int(d.Kind))
	}
	if d.Min != nil && d.Max != nil && *d.Min > *d.Max {
		return fmt.Errorf("signal %s: min %v exceeds max %v", d.Name, *d.Min, *d.Max)
	}
	return nil
}

// MessageDef describes a frame payload: its identifier, length, and the
// signals packed into it. Signal names are unique by construction.
type MessageDef struct {
	ID          uint32
	Name        string
	DLC         uint8
	Signals     map[string]Definition
	CycleTime   time.Duration
	Description string
}

// Validate checks the definition and every contained signal eagerly. A
// signal whose field does not fit inside DLC bytes is rejected here
// rather than surfacing as per-frame decode noise later. A DLC of zero
// is permitted (some status messages carry no payload) and admits no
// signals.
func (m MessageDef) Validate() error {
	if m.ID > MaxExtendedID {
		return fmt.Errorf("message %s: id 0x%X exceeds 29 bits", m.Name, m.ID)
	}
	if m.DLC > MaxDLC {
		return fmt.Errorf("message %s: dlc %d exceeds maximum %d", m.Name, m.DLC, MaxDLC)
	}
	for name, def := range m.Signals {
		if name != def.Name {
			return fmt.Errorf("message %s: signal keyed %q but named %q", m.Name, name, def.Name)
		}
		if err := def.Validate(); err != nil {
			return fmt.Errorf("message %s: %w", m.Name, err)
		}
		if def.StartBit+def.BitLength > uint(m.DLC)*8 {
			return fmt.Errorf("message %s: signal %s spans bits %d..%d beyond dlc %d",
				m.Name, def.Name, def.StartBit, def.StartBit+def.BitLength-1, m.DLC)
		}
	}
	return nil
}
