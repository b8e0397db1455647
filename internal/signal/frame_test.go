package signal

import (
	"testing"

	"go.einride.tech/can"
)

func lightsDef() MessageDef {
	return MessageDef{
		ID:   0x100,
		Name: "Lights",
		DLC:  8,
		Signals: map[string]Definition{
			"HeadlampStatus": {Name: "HeadlampStatus", StartBit: 0, BitLength: 8, Kind: KindUint8, Scale: 1},
			"LampPower":      {Name: "LampPower", StartBit: 8, BitLength: 16, Kind: KindUint16, Scale: 1},
		},
	}
}

func TestEncodeFrame(t *testing.T) {
	frame, err := EncodeFrame(lightsDef(), map[string]Value{
		"HeadlampStatus": FloatValue(1),
		"LampPower":      FloatValue(500),
	})
	if err != nil {
		t.Fatalf("EncodeFrame failed: %v", err)
	}
	if frame.ID != 0x100 {
		t.Errorf("Expected id 0x100, got 0x%X", frame.ID)
	}
	if frame.Length != 8 {
		t.Errorf("Expected length 8, got %d", frame.Length)
	}
	if frame.IsExtended {
		t.Errorf("0x100 fits in 11 bits, frame should not be extended")
	}
	if frame.Data[0] != 0x01 || frame.Data[1] != 0xF4 || frame.Data[2] != 0x01 {
		t.Errorf("Unexpected payload: % X", frame.Data)
	}
}

func TestEncodeFrameUnknownSignal(t *testing.T) {
	_, err := EncodeFrame(lightsDef(), map[string]Value{"Bogus": FloatValue(1)})
	if err == nil {
		t.Fatalf("Expected error for unknown signal name")
	}
}

func TestEncodeFrameExtendedID(t *testing.T) {
	def := MessageDef{ID: 0x18FF50E5, Name: "J1939", DLC: 1, Signals: map[string]Definition{
		"Level": {Name: "Level", StartBit: 0, BitLength: 8, Kind: KindUint8, Scale: 1},
	}}
	frame, err := EncodeFrame(def, map[string]Value{"Level": FloatValue(9)})
	if err != nil {
		t.Fatalf("EncodeFrame failed: %v", err)
	}
	if !frame.IsExtended {
		t.Errorf("Expected extended frame for 29-bit id")
	}
}

func TestDecodeFrame(t *testing.T) {
	def := lightsDef()
	frame := can.Frame{ID: 0x100, Length: 8}
	frame.Data[0] = 0x01
	frame.Data[1] = 0x4B

	values := DecodeFrame(def, frame)
	if len(values) != 2 {
		t.Fatalf("Expected 2 decoded signals, got %d", len(values))
	}
	if values["HeadlampStatus"].Float != 1.0 {
		t.Errorf("Expected HeadlampStatus 1.0, got %v", values["HeadlampStatus"])
	}
	if values["LampPower"].Float != 75.0 {
		t.Errorf("Expected LampPower 75.0, got %v", values["LampPower"])
	}
}

func TestDecodeFrameShortPayload(t *testing.T) {
	// A 2-byte frame exposes bytes 0..1 only; LampPower needs bytes 1..2
	// and is skipped, HeadlampStatus still decodes.
	def := lightsDef()
	frame := can.Frame{ID: 0x100, Length: 2}
	frame.Data[0] = 0x01
	frame.Data[1] = 0x4B

	values := DecodeFrame(def, frame)
	if len(values) != 1 {
		t.Fatalf("Expected 1 decoded signal, got %d (%v)", len(values), values)
	}
	if _, ok := values["HeadlampStatus"]; !ok {
		t.Errorf("Expected HeadlampStatus to survive the short payload")
	}
}
