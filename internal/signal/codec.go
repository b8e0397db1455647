package signal

import (
	"errors"
	"fmt"
	"math"
)

/*
Packed field codec.

Fields are little-endian (Intel) bit ranges inside a classic CAN payload
of at most 8 bytes. A field at StartBit/BitLength occupies the byte
window

	startByte = StartBit / 8
	byteCount = ceil(BitLength / 8)

and is decoded by combining the window bytes little-endian, shifting the
result right by StartBit%8 and masking to BitLength bits. The shift and
mask are skipped when the field exactly fills whole bytes at bit offset
zero. Bits shifted past the window are lost; a field that leans on the
byte after its window decodes only the bits inside the window. That
window rule is shared with the fleet's existing decoders, so it is
load-bearing: both directions of this codec apply it identically.

Payload bytes beyond a frame's Length do not exist. A window that runs
past the available bytes is a truncation error, not a zero-fill.
*/

// Decode failure reasons. DecodeError wraps exactly one of these.
var (
	ErrTruncated = errors.New("payload too short for field")
	ErrZeroWidth = errors.New("field has zero width")
	ErrTooWide   = errors.New("field wider than 32 bits")
	ErrBadKind   = errors.New("invalid signal kind")
)

// DecodeError reports a signal that could not be extracted from a
// payload. Conversion skips the signal and continues with the frame.
type DecodeError struct {
	Signal string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("signal %s: %v", e.Signal, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func decodeErr(name string, reason error) error {
	return &DecodeError{Signal: name, Err: reason}
}

// fieldWindow resolves a field's byte window against the payload.
func fieldWindow(data []byte, d Definition) (startByte, bitOffset, byteCount uint, err error) {
	if d.BitLength == 0 {
		return 0, 0, 0, decodeErr(d.Name, ErrZeroWidth)
	}
	if d.BitLength > MaxBitLength {
		return 0, 0, 0, decodeErr(d.Name, ErrTooWide)
	}
	startByte = d.StartBit / 8
	bitOffset = d.StartBit % 8
	byteCount = (d.BitLength + 7) / 8
	if uint(len(data)) < startByte+byteCount {
		return 0, 0, 0, decodeErr(d.Name, ErrTruncated)
	}
	return startByte, bitOffset, byteCount, nil
}

// rawField extracts the unsigned raw bits of a field.
func rawField(data []byte, d Definition) (uint64, error) {
	startByte, bitOffset, byteCount, err := fieldWindow(data, d)
	if err != nil {
		return 0, err
	}
	var raw uint64
	for i := uint(0); i < byteCount; i++ {
		raw |= uint64(data[startByte+i]) << (8 * i)
	}
	if bitOffset > 0 || d.BitLength < byteCount*8 {
		raw = (raw >> bitOffset) & ((1 << d.BitLength) - 1)
	}
	return raw, nil
}

// Extract decodes one signal from a payload. Booleans come back as
// Value booleans; every other kind scales to a float64:
//
//	physical = raw*Scale + Offset, then clamped to [Min, Max]
//
// Scaling happens before clamping; the bounds are physical, not raw.
func Extract(data []byte, d Definition) (Value, error) {
	raw, err := rawField(data, d)
	if err != nil {
		return Value{}, err
	}
	if d.Kind == KindBool {
		return BoolValue(raw != 0), nil
	}
	if _, ok := kindNames[d.Kind]; !ok {
		return Value{}, decodeErr(d.Name, ErrBadKind)
	}

	signed := float64(raw)
	if d.Kind.Signed() && raw&(1<<(d.BitLength-1)) != 0 {
		signed = float64(int64(raw) - int64(1)<<d.BitLength)
	}

	scale := d.Scale
	if scale == 0 {
		scale = 1
	}
	phys := signed*scale + d.Offset
	if d.Min != nil && phys < *d.Min {
		phys = *d.Min
	}
	if d.Max != nil && phys > *d.Max {
		phys = *d.Max
	}
	return FloatValue(phys), nil
}

// Insert encodes one signal into a payload, the inverse of Extract:
// clamp the physical value to [Min, Max], unscale and round to the raw
// field, saturate at the field's representable range, then OR the bits
// into the field's byte window. Bits already present outside the field
// are preserved.
func Insert(data []byte, d Definition, v Value) error {
	startByte, bitOffset, byteCount, err := fieldWindow(data, d)
	if err != nil {
		return err
	}

	var raw uint64
	if d.Kind == KindBool {
		if v.Bool || (!v.IsBool && v.Float != 0) {
			raw = 1
		}
	} else {
		if _, ok := kindNames[d.Kind]; !ok {
			return decodeErr(d.Name, ErrBadKind)
		}
		phys := v.Numeric()
		if d.Min != nil && phys < *d.Min {
			phys = *d.Min
		}
		if d.Max != nil && phys > *d.Max {
			phys = *d.Max
		}
		scale := d.Scale
		if scale == 0 {
			scale = 1
		}
		raw = saturateRaw(math.Round((phys-d.Offset)/scale), d.BitLength, d.Kind.Signed())
	}

	mask := uint64(1)<<d.BitLength - 1
	window := uint64(1)<<(byteCount*8) - 1
	bits := ((raw & mask) << bitOffset) & window
	clearMask := (mask << bitOffset) & window
	for i := uint(0); i < byteCount; i++ {
		b := data[startByte+i]
		b &^= byte(clearMask >> (8 * i))
		b |= byte(bits >> (8 * i))
		data[startByte+i] = b
	}
	return nil
}

// saturateRaw clamps an unscaled value to the range representable in a
// field of the given width and signedness, then folds negatives into
// their two's-complement bit pattern. The float bounds checks happen
// before any integer conversion; out-of-range conversions are
// implementation-dependent.
func saturateRaw(unscaled float64, bitLength uint, signed bool) uint64 {
	if math.IsNaN(unscaled) {
		return 0
	}
	if signed {
		lo := -(int64(1) << (bitLength - 1))
		hi := int64(1)<<(bitLength-1) - 1
		fieldMask := uint64(1)<<bitLength - 1
		if unscaled < float64(lo) {
			return uint64(lo) & fieldMask
		}
		if unscaled > float64(hi) {
			return uint64(hi) & fieldMask
		}
		return uint64(int64(unscaled)) & fieldMask
	}
	hi := uint64(1)<<bitLength - 1
	if unscaled <= 0 {
		return 0
	}
	if unscaled >= float64(hi) {
		return hi
	}
	return uint64(unscaled)
}
