//go:build linux

package canbus

import (
	"context"
	"fmt"
	"net"
	"sync"

	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"
)

// SocketCANBus drives a kernel SocketCAN interface such as can0 or
// vcan0.
type SocketCANBus struct {
	conn    net.Conn
	tx      *socketcan.Transmitter
	rx      chan can.Frame
	done    chan struct{}
	closing sync.Once

	mu       sync.Mutex
	readErr  error
	readDone chan struct{}
}

// DialSocketCAN binds to the named CAN interface.
func DialSocketCAN(ctx context.Context, iface string) (*SocketCANBus, error) {
	conn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		return nil, fmt.Errorf("canbus: dial %s: %w", iface, err)
	}
	b := &SocketCANBus{
		conn:     conn,
		tx:       socketcan.NewTransmitter(conn),
		rx:       make(chan can.Frame, 64),
		done:     make(chan struct{}),
		readDone: make(chan struct{}),
	}
	go b.readLoop(socketcan.NewReceiver(conn))
	return b, nil
}

// readLoop pulls frames off the socket until the connection dies. The
// kernel read has no context hook; closing the connection is what
// unblocks it.
func (b *SocketCANBus) readLoop(recv *socketcan.Receiver) {
	defer close(b.readDone)
	for recv.Receive() {
		select {
		case b.rx <- recv.Frame():
		case <-b.done:
			return
		}
	}
	b.mu.Lock()
	b.readErr = recv.Err()
	b.mu.Unlock()
}

// Send transmits a frame on the interface.
func (b *SocketCANBus) Send(ctx context.Context, frame can.Frame) error {
	select {
	case <-b.done:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if err := ValidateFrame(frame); err != nil {
		return err
	}
	return b.tx.TransmitFrame(ctx, frame)
}

// Receive blocks until the kernel delivers a frame.
func (b *SocketCANBus) Receive(ctx context.Context) (can.Frame, error) {
	select {
	case frame := <-b.rx:
		return frame, nil
	default:
	}
	select {
	case frame := <-b.rx:
		return frame, nil
	case <-ctx.Done():
		return can.Frame{}, ctx.Err()
	case <-b.done:
		return can.Frame{}, ErrBusClosed
	case <-b.readDone:
		select {
		case <-b.done:
			return can.Frame{}, ErrBusClosed
		default:
		}
		b.mu.Lock()
		err := b.readErr
		b.mu.Unlock()
		if err != nil {
			return can.Frame{}, fmt.Errorf("canbus: socketcan read: %w", err)
		}
		return can.Frame{}, ErrBusClosed
	}
}

// Close shuts the socket down.
func (b *SocketCANBus) Close() error {
	var err error
	b.closing.Do(func() {
		close(b.done)
		err = b.conn.Close()
	})
	return err
}
