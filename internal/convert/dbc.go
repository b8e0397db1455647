package convert

import (
	"fmt"
	"os"
	"path/filepath"

	"go.einride.tech/can/pkg/dbc"

	"github.com/banshee-data/canbridge/internal/signal"
)

// LoadDBC imports message definitions from a Vector DBC file. Only the
// definition registry is touched; destination mappings still come from
// the JSON config. Import is merge-per-identifier like Load, with the
// same partial-apply behaviour on error.
//
// The codec reads little-endian fields up to 32 bits wide, so Motorola
// (big-endian) signals and wider fields are rejected rather than
// silently mis-decoded. Classic CAN only: messages with more than 8
// payload bytes are rejected.
func (t *Table) LoadDBC(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &ConfigError{Err: err}
	}
	return t.LoadDBCData(filepath.Base(path), data)
}

// LoadDBCData imports message definitions from DBC source text.
func (t *Table) LoadDBCData(name string, data []byte) error {
	parser := dbc.NewParser(name, data)
	if err := parser.Parse(); err != nil {
		return &ConfigError{Entry: name, Err: err}
	}

	for _, def := range parser.File().Defs {
		msg, ok := def.(*dbc.MessageDef)
		if !ok {
			continue
		}
		converted, err := dbcMessage(msg)
		if err != nil {
			return &ConfigError{Entry: fmt.Sprintf("message %s", msg.Name), Err: err}
		}
		if err := t.RegisterMessage(converted); err != nil {
			return &ConfigError{Entry: fmt.Sprintf("message %s", msg.Name), Err: err}
		}
	}
	return nil
}

func dbcMessage(msg *dbc.MessageDef) (signal.MessageDef, error) {
	// The parser keeps bit 31 set to flag extended identifiers.
	id := uint32(msg.MessageID)
	if uint64(msg.MessageID)&0x80000000 != 0 {
		id = uint32(uint64(msg.MessageID) & signal.MaxExtendedID)
	}
	if msg.Size > signal.MaxDLC {
		return signal.MessageDef{}, fmt.Errorf("size %d exceeds classic CAN payload", msg.Size)
	}

	signals := make(map[string]signal.Definition, len(msg.Signals))
	for _, s := range msg.Signals {
		if s.IsBigEndian {
			return signal.MessageDef{}, fmt.Errorf("signal %s: big-endian byte order not supported", s.Name)
		}
		if s.Size > signal.MaxBitLength {
			return signal.MessageDef{}, fmt.Errorf("signal %s: %d bits exceeds maximum %d", s.Name, s.Size, signal.MaxBitLength)
		}
		def := signal.Definition{
			Name:      string(s.Name),
			StartBit:  uint(s.StartBit),
			BitLength: uint(s.Size),
			Kind:      dbcKind(uint(s.Size), s.IsSigned),
			Scale:     s.Factor,
			Offset:    s.Offset,
			Unit:      s.Unit,
		}
		// DBC spells "no physical range" as [0|0].
		if s.Minimum != 0 || s.Maximum != 0 {
			minimum, maximum := s.Minimum, s.Maximum
			def.Min = &minimum
			def.Max = &maximum
		}
		signals[def.Name] = def
	}

	return signal.MessageDef{
		ID:      id,
		Name:    string(msg.Name),
		DLC:     uint8(msg.Size),
		Signals: signals,
	}, nil
}

// dbcKind buckets a DBC signal into the nearest codec kind. Single
// unsigned bits read as booleans, matching how flag signals are mapped
// to symbolic paths.
func dbcKind(bits uint, isSigned bool) signal.Kind {
	if !isSigned && bits == 1 {
		return signal.KindBool
	}
	switch {
	case bits <= 8:
		if isSigned {
			return signal.KindInt8
		}
		return signal.KindUint8
	case bits <= 16:
		if isSigned {
			return signal.KindInt16
		}
		return signal.KindUint16
	default:
		if isSigned {
			return signal.KindInt32
		}
		return signal.KindUint32
	}
}
