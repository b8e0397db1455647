package signal

import (
	"encoding/json"
	"testing"
)

func TestValueMarshalJSON(t *testing.T) {
	b, err := json.Marshal(map[string]Value{
		"Vehicle.Body.Lights.IsHighBeamOn": BoolValue(true),
		"Vehicle.Body.Lighting.Power":      FloatValue(75),
	})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if v, ok := out["Vehicle.Body.Lights.IsHighBeamOn"].(bool); !ok || !v {
		t.Errorf("Expected JSON true, got %v", out["Vehicle.Body.Lights.IsHighBeamOn"])
	}
	if v, ok := out["Vehicle.Body.Lighting.Power"].(float64); !ok || v != 75 {
		t.Errorf("Expected JSON 75, got %v", out["Vehicle.Body.Lighting.Power"])
	}
}

func TestValueNumeric(t *testing.T) {
	if BoolValue(true).Numeric() != 1 || BoolValue(false).Numeric() != 0 {
		t.Errorf("Boolean numeric form should be 0/1")
	}
	if FloatValue(-3.5).Numeric() != -3.5 {
		t.Errorf("Float numeric form should pass through")
	}
}

func TestValueString(t *testing.T) {
	if s := BoolValue(true).String(); s != "true" {
		t.Errorf("Expected true, got %q", s)
	}
	if s := FloatValue(500).String(); s != "500" {
		t.Errorf("Expected 500, got %q", s)
	}
}
