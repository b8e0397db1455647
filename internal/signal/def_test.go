package signal

import (
	"strings"
	"testing"
)

func TestMessageDefValidate(t *testing.T) {
	valid := MessageDef{
		ID:   0x100,
		Name: "Lights",
		DLC:  8,
		Signals: map[string]Definition{
			"HeadlampStatus": {Name: "HeadlampStatus", StartBit: 0, BitLength: 8, Kind: KindUint8, Scale: 1},
		},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Expected valid definition, got %v", err)
	}
}

func TestMessageDefValidateRejects(t *testing.T) {
	tests := []struct {
		name    string
		def     MessageDef
		wantSub string
	}{
		{
			name:    "id beyond 29 bits",
			def:     MessageDef{ID: 0x20000000, Name: "Big", DLC: 8},
			wantSub: "29 bits",
		},
		{
			name:    "dlc beyond 8",
			def:     MessageDef{ID: 0x100, Name: "Long", DLC: 9},
			wantSub: "dlc 9",
		},
		{
			name: "signal spills past dlc",
			def: MessageDef{ID: 0x100, Name: "Spill", DLC: 2, Signals: map[string]Definition{
				"Wide": {Name: "Wide", StartBit: 8, BitLength: 16, Kind: KindUint16, Scale: 1},
			}},
			wantSub: "beyond dlc",
		},
		{
			name: "zero dlc admits no signals",
			def: MessageDef{ID: 0x100, Name: "Empty", DLC: 0, Signals: map[string]Definition{
				"Any": {Name: "Any", StartBit: 0, BitLength: 1, Kind: KindBool},
			}},
			wantSub: "beyond dlc",
		},
		{
			name: "zero width signal",
			def: MessageDef{ID: 0x100, Name: "Z", DLC: 8, Signals: map[string]Definition{
				"Nil": {Name: "Nil", StartBit: 0, BitLength: 0, Kind: KindUint8},
			}},
			wantSub: "bit_length",
		},
		{
			name: "too wide signal",
			def: MessageDef{ID: 0x100, Name: "W", DLC: 8, Signals: map[string]Definition{
				"Wide": {Name: "Wide", StartBit: 0, BitLength: 33, Kind: KindUint32},
			}},
			wantSub: "bit_length",
		},
		{
			name: "mismatched signal key",
			def: MessageDef{ID: 0x100, Name: "M", DLC: 8, Signals: map[string]Definition{
				"A": {Name: "B", StartBit: 0, BitLength: 8, Kind: KindUint8},
			}},
			wantSub: "keyed",
		},
		{
			name: "min above max",
			def: MessageDef{ID: 0x100, Name: "B", DLC: 8, Signals: map[string]Definition{
				"X": {Name: "X", StartBit: 0, BitLength: 8, Kind: KindUint8, Min: fp(10), Max: fp(5)},
			}},
			wantSub: "min",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.def.Validate()
			if err == nil {
				t.Fatalf("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("Expected error mentioning %q, got: %v", tt.wantSub, err)
			}
		})
	}
}

func TestMessageDefZeroDLC(t *testing.T) {
	def := MessageDef{ID: 0x7FF, Name: "Heartbeat", DLC: 0}
	if err := def.Validate(); err != nil {
		t.Fatalf("Zero-dlc message should validate: %v", err)
	}
}
