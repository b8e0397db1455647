package canbus

import (
	"fmt"
	"sync"
	"time"

	"go.einride.tech/can"
)

// RxFrame is a frame as it arrived off a bus, stamped on receipt.
type RxFrame struct {
	Time  time.Time `json:"time"`
	Frame can.Frame `json:"frame"`
}

// RxBuffer holds the most recent frames in a fixed-size ring. Writers
// overwrite the oldest entry once the ring is full; readers get
// consistent copies. All methods are safe for concurrent use.
type RxBuffer struct {
	mu       sync.Mutex
	frames   []RxFrame
	capacity int
	head     int // next write position
	size     int // number of frames stored
	pushed   uint64
	down     bool
}

// NewRxBuffer creates a ring buffer holding up to capacity frames.
func NewRxBuffer(capacity int) (*RxBuffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("canbus: buffer capacity must be positive, got %d", capacity)
	}
	return &RxBuffer{
		frames:   make([]RxFrame, capacity),
		capacity: capacity,
	}, nil
}

// Push stores a frame, evicting the oldest when the ring is full. It
// reports whether the frame was accepted; after Shutdown it always
// returns false.
func (b *RxBuffer) Push(rx RxFrame) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.down {
		return false
	}
	b.frames[b.head] = rx
	b.head = (b.head + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
	b.pushed++
	return true
}

// Snapshot returns a copy of the buffered frames in arrival order,
// oldest first. The copy is taken under the lock, so it reflects one
// consistent instant even while writers keep pushing.
func (b *RxBuffer) Snapshot() []RxFrame {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]RxFrame, b.size)
	for i := 0; i < b.size; i++ {
		idx := (b.head - b.size + i + b.capacity) % b.capacity
		out[i] = b.frames[idx]
	}
	return out
}

// Latest returns the most recent frame with the given identifier.
func (b *RxBuffer) Latest(id uint32) (RxFrame, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := 1; i <= b.size; i++ {
		idx := (b.head - i + b.capacity) % b.capacity
		if b.frames[idx].Frame.ID == id {
			return b.frames[idx], true
		}
	}
	return RxFrame{}, false
}

// Shutdown stops the buffer accepting new frames. Buffered frames stay
// readable. Calling Shutdown more than once is harmless; there is no
// way to reopen a buffer.
func (b *RxBuffer) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.down = true
}

// Len returns the number of frames currently buffered.
func (b *RxBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Cap returns the fixed capacity of the ring.
func (b *RxBuffer) Cap() int {
	return b.capacity
}

// Pushed returns the total number of frames accepted since creation,
// including frames since evicted.
func (b *RxBuffer) Pushed() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pushed
}
