package canbus

import (
	"context"
	"errors"
	"fmt"

	"go.einride.tech/can"

	"github.com/banshee-data/canbridge/internal/signal"
)

// Bus is a frame transport. Implementations are safe for concurrent use
// by multiple goroutines.
type Bus interface {
	// Send transmits a frame. It may block until the frame is queued.
	Send(ctx context.Context, frame can.Frame) error

	// Receive blocks until the next frame is available, the context is
	// cancelled, or the bus is closed.
	Receive(ctx context.Context) (can.Frame, error)

	// Close releases the transport. Further Send and Receive calls
	// return ErrBusClosed. Closing twice is harmless.
	Close() error
}

// ErrBusClosed indicates the bus has been closed.
var ErrBusClosed = errors.New("canbus: bus closed")

// ValidateFrame rejects frames that no classic CAN transport can carry.
func ValidateFrame(f can.Frame) error {
	if f.Length > signal.MaxDLC {
		return fmt.Errorf("canbus: frame 0x%X length %d exceeds %d bytes", f.ID, f.Length, signal.MaxDLC)
	}
	limit := uint32(signal.MaxStandardID)
	if f.IsExtended {
		limit = signal.MaxExtendedID
	}
	if f.ID > limit {
		return fmt.Errorf("canbus: frame id 0x%X out of range", f.ID)
	}
	return nil
}
