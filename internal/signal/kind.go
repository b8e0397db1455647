package signal

import "fmt"

// Kind identifies how a packed field is interpreted once its raw bits
// have been extracted from a frame payload.
type Kind int

const (
	KindBool   Kind = iota // any non-zero raw value reads as true
	KindUint8              // unsigned, scaled
	KindUint16             // unsigned, scaled
	KindUint32             // unsigned, scaled
	KindInt8               // two's complement, scaled
	KindInt16              // two's complement, scaled
	KindInt32              // two's complement, scaled
	KindFloat              // unsigned raw scaled to float; no IEEE754 bit-cast
)

var kindNames = map[Kind]string{
	KindBool:   "boolean",
	KindUint8:  "uint8",
	KindUint16: "uint16",
	KindUint32: "uint32",
	KindInt8:   "int8",
	KindInt16:  "int16",
	KindInt32:  "int32",
	KindFloat:  "float",
}

// ParseKind maps a config tag to its Kind. The tags are the ones used in
// mapping files: "boolean", "uint8", "uint16", "uint32", "int8",
// "int16", "int32", "float".
func ParseKind(tag string) (Kind, error) {
	switch tag {
	case "boolean":
		return KindBool, nil
	case "uint8":
		return KindUint8, nil
	case "uint16":
		return KindUint16, nil
	case "uint32":
		return KindUint32, nil
	case "int8":
		return KindInt8, nil
	case "int16":
		return KindInt16, nil
	case "int32":
		return KindInt32, nil
	case "float":
		return KindFloat, nil
	}
	return 0, fmt.Errorf("unknown signal kind %q", tag)
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Signed reports whether the kind carries a two's-complement field.
func (k Kind) Signed() bool {
	switch k {
	case KindInt8, KindInt16, KindInt32:
		return true
	}
	return false
}

// MarshalJSON emits the config tag so API responses round-trip with
// mapping files.
func (k Kind) MarshalJSON() ([]byte, error) {
	name, ok := kindNames[k]
	if !ok {
		return nil, fmt.Errorf("cannot marshal invalid signal kind %d", int(k))
	}
	return []byte(`"` + name + `"`), nil
}
