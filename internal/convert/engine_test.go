package convert

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.einride.tech/can"

	"github.com/banshee-data/canbridge/internal/monitoring"
	"github.com/banshee-data/canbridge/internal/signal"
)

func lightsTable(t *testing.T) *Table {
	t.Helper()
	table := NewTable()

	require.NoError(t, table.RegisterMessage(signal.MessageDef{
		ID: 0x100, Name: "HeadlampControl", DLC: 8,
		Signals: map[string]signal.Definition{
			"HeadlampStatus": {Name: "HeadlampStatus", StartBit: 0, BitLength: 8, Kind: signal.KindUint8, Scale: 1},
		},
	}))
	require.NoError(t, table.RegisterMessage(signal.MessageDef{
		ID: 0x101, Name: "LampPowerStatus", DLC: 8,
		Signals: map[string]signal.Definition{
			"LampPower": {Name: "LampPower", StartBit: 0, BitLength: 16, Kind: signal.KindUint16, Scale: 1, Unit: "W"},
		},
	}))
	require.NoError(t, table.AddMapping(0x100, "HeadlampStatus", "Vehicle.Body.Lights.IsHighBeamOn"))
	require.NoError(t, table.AddMapping(0x101, "LampPower", "Vehicle.Body.Lighting.Power"))
	return table
}

func frameWith(id uint32, data ...byte) can.Frame {
	f := can.Frame{ID: id, Length: 8}
	copy(f.Data[:], data)
	return f
}

// TestConvertRoutesDecodedSignals covers the three wire scenarios the
// integration rig replays.
func TestConvertRoutesDecodedSignals(t *testing.T) {
	t.Parallel()

	t.Run("uint8 status bit", func(t *testing.T) {
		t.Parallel()
		engine := NewEngine(lightsTable(t))

		out := engine.Convert(frameWith(0x100, 0x01))
		require.Len(t, out, 1)
		assert.Equal(t, signal.FloatValue(1), out["Vehicle.Body.Lights.IsHighBeamOn"])
	})

	t.Run("uint16 within one byte", func(t *testing.T) {
		t.Parallel()
		engine := NewEngine(lightsTable(t))

		out := engine.Convert(frameWith(0x101, 0x4B, 0x00))
		require.Len(t, out, 1)
		assert.Equal(t, signal.FloatValue(75), out["Vehicle.Body.Lighting.Power"])
	})

	t.Run("uint16 little-endian across bytes", func(t *testing.T) {
		t.Parallel()
		engine := NewEngine(lightsTable(t))

		out := engine.Convert(frameWith(0x101, 0xF4, 0x01))
		require.Len(t, out, 1)
		assert.Equal(t, signal.FloatValue(500), out["Vehicle.Body.Lighting.Power"])
	})
}

// TestConvertUnknownID checks that an unmapped identifier produces an
// empty result and moves only the received counter.
func TestConvertUnknownID(t *testing.T) {
	t.Parallel()
	engine := NewEngine(lightsTable(t))

	out := engine.Convert(frameWith(0x7FF, 0x01))
	assert.Empty(t, out)

	stats := engine.Stats()
	assert.Equal(t, int64(1), stats.FramesReceived)
	assert.Equal(t, int64(0), stats.FramesConverted)
	assert.Equal(t, int64(0), stats.SignalsEmitted)
	assert.Equal(t, int64(0), stats.Errors)
}

// TestConvertDefinitionWithoutMapping checks that a known message whose
// signals have no destinations converts to nothing.
func TestConvertDefinitionWithoutMapping(t *testing.T) {
	t.Parallel()
	table := NewTable()
	require.NoError(t, table.RegisterMessage(signal.MessageDef{
		ID: 0x200, Name: "Orphan", DLC: 8,
		Signals: map[string]signal.Definition{
			"X": {Name: "X", StartBit: 0, BitLength: 8, Kind: signal.KindUint8, Scale: 1},
		},
	}))
	engine := NewEngine(table)

	out := engine.Convert(frameWith(0x200, 0x55))
	assert.Empty(t, out)

	stats := engine.Stats()
	assert.Equal(t, int64(1), stats.FramesReceived)
	assert.Equal(t, int64(0), stats.FramesConverted)
}

// TestConvertMappingWithoutDefinition checks that a destination with no
// message definition stays inert.
func TestConvertMappingWithoutDefinition(t *testing.T) {
	t.Parallel()
	table := NewTable()
	require.NoError(t, table.AddMapping(0x300, "Ghost", "Vehicle.Ghost"))
	engine := NewEngine(table)

	out := engine.Convert(frameWith(0x300, 0x01))
	assert.Empty(t, out)
	assert.Equal(t, int64(1), engine.Stats().FramesReceived)
}

// TestConvertSkipsUndecodableSignals checks that a signal whose field is
// truncated is skipped while the rest of the frame still converts.
func TestConvertSkipsUndecodableSignals(t *testing.T) {
	t.Parallel()
	table := NewTable()
	require.NoError(t, table.RegisterMessage(signal.MessageDef{
		ID: 0x400, Name: "Mixed", DLC: 8,
		Signals: map[string]signal.Definition{
			"Early": {Name: "Early", StartBit: 0, BitLength: 8, Kind: signal.KindUint8, Scale: 1},
			"Late":  {Name: "Late", StartBit: 48, BitLength: 16, Kind: signal.KindUint16, Scale: 1},
		},
	}))
	require.NoError(t, table.AddMapping(0x400, "Early", "Vehicle.Early"))
	require.NoError(t, table.AddMapping(0x400, "Late", "Vehicle.Late"))
	engine := NewEngine(table)

	// A 2-byte frame: Early decodes, Late's field is beyond the payload.
	frame := can.Frame{ID: 0x400, Length: 2}
	frame.Data[0] = 0x2A

	out := engine.Convert(frame)
	require.Len(t, out, 1)
	assert.Equal(t, signal.FloatValue(42), out["Vehicle.Early"])

	stats := engine.Stats()
	assert.Equal(t, int64(1), stats.FramesConverted)
	assert.Equal(t, int64(1), stats.SignalsEmitted)
	assert.Equal(t, int64(0), stats.Errors, "decode skips are not conversion faults")
}

// TestConvertCountsEmittedSignals checks the emitted counter follows the
// result size, not the definition size.
func TestConvertCountsEmittedSignals(t *testing.T) {
	t.Parallel()
	table := NewTable()
	require.NoError(t, table.RegisterMessage(signal.MessageDef{
		ID: 0x500, Name: "Pair", DLC: 8,
		Signals: map[string]signal.Definition{
			"A": {Name: "A", StartBit: 0, BitLength: 8, Kind: signal.KindUint8, Scale: 1},
			"B": {Name: "B", StartBit: 8, BitLength: 8, Kind: signal.KindBool},
		},
	}))
	require.NoError(t, table.AddMapping(0x500, "A", "Vehicle.A"))
	require.NoError(t, table.AddMapping(0x500, "B", "Vehicle.B"))
	engine := NewEngine(table)

	out := engine.Convert(frameWith(0x500, 0x07, 0x01))
	require.Len(t, out, 2)
	assert.Equal(t, signal.FloatValue(7), out["Vehicle.A"])
	assert.Equal(t, signal.BoolValue(true), out["Vehicle.B"])

	stats := engine.Stats()
	assert.Equal(t, int64(1), stats.FramesConverted)
	assert.Equal(t, int64(2), stats.SignalsEmitted)
}

// TestConvertOversizedFrameIsAFault checks that a frame whose length
// exceeds a classic CAN payload is counted and contained.
func TestConvertOversizedFrameIsAFault(t *testing.T) {
	t.Parallel()
	engine := NewEngine(lightsTable(t))

	frame := can.Frame{ID: 0x100, Length: 12}
	out := engine.Convert(frame)
	assert.Empty(t, out)

	stats := engine.Stats()
	assert.Equal(t, int64(1), stats.FramesReceived)
	assert.Equal(t, int64(1), stats.Errors)
	assert.Equal(t, int64(0), stats.FramesConverted)
}

// TestConvertContainsPanics checks the recovery boundary: an engine
// built with a nil table dereferences it on lookup, and Convert must
// absorb that rather than take the pump goroutine down.
func TestConvertContainsPanics(t *testing.T) {
	var logged []string
	monitoring.SetLogger(func(format string, v ...interface{}) {
		logged = append(logged, fmt.Sprintf(format, v...))
	})
	defer monitoring.SetLogger(nil)

	engine := NewEngine(nil)
	out := engine.Convert(frameWith(0x100, 0x01))
	assert.Nil(t, out)

	stats := engine.Stats()
	assert.Equal(t, int64(1), stats.FramesReceived)
	assert.Equal(t, int64(1), stats.Errors)
	assert.Equal(t, int64(0), stats.FramesConverted)

	require.Len(t, logged, 1)
	assert.Contains(t, logged[0], "Conversion fault for frame 0x100")
}
