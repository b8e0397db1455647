package canbus

import (
	"encoding/binary"
	"fmt"

	"go.einride.tech/can"
)

// Frames travel between processes in the Linux SocketCAN can_frame
// layout: 16 bytes, little-endian identifier word carrying the EFF and
// RTR flags, a DLC byte, three bytes of padding, then the payload. The
// UDP bus and the capture codec share it.
//
//	0..3  can_id | flags (EFF 0x80000000, RTR 0x40000000)
//	4     dlc
//	5..7  padding, zero
//	8..15 payload
const WireFrameSize = 16

const (
	canEffFlag = 0x80000000
	canRtrFlag = 0x40000000
)

// MarshalFrame encodes a frame into the 16-byte wire layout.
func MarshalFrame(f can.Frame) ([]byte, error) {
	if err := ValidateFrame(f); err != nil {
		return nil, err
	}
	id := f.ID
	if f.IsExtended {
		id |= canEffFlag
	}
	if f.IsRemote {
		id |= canRtrFlag
	}
	buf := make([]byte, WireFrameSize)
	binary.LittleEndian.PutUint32(buf[0:4], id)
	buf[4] = f.Length
	copy(buf[8:16], f.Data[:])
	return buf, nil
}

// UnmarshalFrame decodes a frame from the 16-byte wire layout.
func UnmarshalFrame(data []byte) (can.Frame, error) {
	if len(data) < WireFrameSize {
		return can.Frame{}, fmt.Errorf("canbus: wire frame needs %d bytes, got %d", WireFrameSize, len(data))
	}
	id := binary.LittleEndian.Uint32(data[0:4])

	var f can.Frame
	f.IsExtended = id&canEffFlag != 0
	f.IsRemote = id&canRtrFlag != 0
	if f.IsExtended {
		f.ID = id & 0x1FFFFFFF
	} else {
		f.ID = id & 0x7FF
	}
	f.Length = data[4]
	copy(f.Data[:], data[8:16])
	if err := ValidateFrame(f); err != nil {
		return can.Frame{}, err
	}
	return f, nil
}
