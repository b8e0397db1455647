package signal

import (
	"encoding/json"
	"strconv"
)

// Value is a decoded signal value: a boolean for KindBool fields, a
// float64 for everything else.
type Value struct {
	Bool   bool
	Float  float64
	IsBool bool
}

func BoolValue(b bool) Value {
	return Value{Bool: b, IsBool: true}
}

func FloatValue(f float64) Value {
	return Value{Float: f}
}

// Any returns the native Go value, for callers that hand values to
// generic sinks.
func (v Value) Any() any {
	if v.IsBool {
		return v.Bool
	}
	return v.Float
}

// Numeric returns the value as a float64, mapping booleans to 0 and 1.
// Persistence and plotting use this form.
func (v Value) Numeric() float64 {
	if v.IsBool {
		if v.Bool {
			return 1
		}
		return 0
	}
	return v.Float
}

func (v Value) String() string {
	if v.IsBool {
		return strconv.FormatBool(v.Bool)
	}
	return strconv.FormatFloat(v.Float, 'g', -1, 64)
}

// MarshalJSON emits the native JSON type: true/false for booleans, a
// number otherwise.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Any())
}
