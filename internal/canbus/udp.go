package canbus

import (
	"context"
	"fmt"
	"net"
	"sync"

	"go.einride.tech/can"
)

// DefaultUDPGroup is the multicast group:port most CAN-over-UDP tools
// default to, so a bridge started with no flags can see their traffic.
const DefaultUDPGroup = "239.74.163.2:43113"

// udpReadBufferBytes sizes the kernel receive buffer. Bursts on a busy
// bus outrun a default-sized buffer quickly.
const udpReadBufferBytes = 1 << 20

// UDPBus bridges frames over an IPv4 multicast group. Every datagram
// carries one frame in the 16-byte wire layout, so unrelated processes
// on the same LAN segment can share a virtual bus.
type UDPBus struct {
	send       *net.UDPConn
	recv       *net.UDPConn
	self       *net.UDPAddr
	receiveOwn bool

	rx      chan can.Frame
	done    chan struct{}
	closing sync.Once

	mu       sync.Mutex
	skipped  uint64
	readErr  error
	readDone chan struct{}
}

// DialUDP joins the multicast group given as "host:port". When
// receiveOwn is set, frames sent through this bus are looped back to
// its own Receive, like a controller in loopback mode.
func DialUDP(group string, receiveOwn bool) (*UDPBus, error) {
	gaddr, err := net.ResolveUDPAddr("udp4", group)
	if err != nil {
		return nil, fmt.Errorf("canbus: resolve group %q: %w", group, err)
	}
	if !gaddr.IP.IsMulticast() {
		return nil, fmt.Errorf("canbus: %s is not a multicast group", gaddr.IP)
	}
	recv, err := net.ListenMulticastUDP("udp4", nil, gaddr)
	if err != nil {
		return nil, fmt.Errorf("canbus: join group %s: %w", gaddr, err)
	}
	if err := recv.SetReadBuffer(udpReadBufferBytes); err != nil {
		recv.Close()
		return nil, fmt.Errorf("canbus: set receive buffer: %w", err)
	}
	send, err := net.DialUDP("udp4", nil, gaddr)
	if err != nil {
		recv.Close()
		return nil, fmt.Errorf("canbus: dial group %s: %w", gaddr, err)
	}
	self, _ := send.LocalAddr().(*net.UDPAddr)

	b := &UDPBus{
		send:       send,
		recv:       recv,
		self:       self,
		receiveOwn: receiveOwn,
		rx:         make(chan can.Frame, 64),
		done:       make(chan struct{}),
		readDone:   make(chan struct{}),
	}
	go b.readLoop()
	return b, nil
}

// readLoop pulls datagrams off the group. Datagrams we sent ourselves
// come back via multicast loopback and are dropped unless the bus was
// opened with receiveOwn.
func (b *UDPBus) readLoop() {
	defer close(b.readDone)
	buf := make([]byte, 2048)
	for {
		n, src, err := b.recv.ReadFromUDP(buf)
		if err != nil {
			b.mu.Lock()
			b.readErr = err
			b.mu.Unlock()
			return
		}
		if !b.receiveOwn && b.isSelf(src) {
			continue
		}
		frame, err := UnmarshalFrame(buf[:n])
		if err != nil {
			b.mu.Lock()
			b.skipped++
			b.mu.Unlock()
			continue
		}
		select {
		case b.rx <- frame:
		case <-b.done:
			return
		}
	}
}

func (b *UDPBus) isSelf(src *net.UDPAddr) bool {
	return b.self != nil && src.Port == b.self.Port && src.IP.Equal(b.self.IP)
}

// Send multicasts a frame to the group.
func (b *UDPBus) Send(ctx context.Context, frame can.Frame) error {
	select {
	case <-b.done:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	wire, err := MarshalFrame(frame)
	if err != nil {
		return err
	}
	n, err := b.send.Write(wire)
	if err != nil {
		return fmt.Errorf("canbus: udp send: %w", err)
	}
	if n != len(wire) {
		return fmt.Errorf("canbus: short udp send (%d of %d bytes)", n, len(wire))
	}
	return nil
}

// Receive blocks until a frame arrives from the group.
func (b *UDPBus) Receive(ctx context.Context) (can.Frame, error) {
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
			return can.Frame{}, fmt.Errorf("canbus: udp read: %w", err)
		}
		return can.Frame{}, ErrBusClosed
	}
}

// Skipped returns how many datagrams were discarded as unparseable.
func (b *UDPBus) Skipped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.skipped
}

// Close leaves the group and releases both sockets.
func (b *UDPBus) Close() error {
	var err error
	b.closing.Do(func() {
		close(b.done)
		err = b.recv.Close()
		if serr := b.send.Close(); err == nil {
			err = serr
		}
	})
	return err
}
