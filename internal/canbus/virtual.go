package canbus

import (
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"sync"

	"go.einride.tech/can"
)

// defaultEndpointQueue is how many frames an endpoint may lag behind
// the hub before broadcasts to it are dropped.
const defaultEndpointQueue = 64

// VirtualBus is an in-process hub connecting any number of endpoints.
// A frame sent on one endpoint is delivered to every other endpoint,
// and to the sender too when the endpoint asked to receive its own
// traffic. Slow endpoints lose frames rather than stalling the hub.
type VirtualBus struct {
	mu        sync.Mutex
	endpoints map[string]*VirtualEndpoint
	closed    bool
	dropped   uint64
}

// NewVirtualBus creates an empty hub.
func NewVirtualBus() *VirtualBus {
	return &VirtualBus{
		endpoints: make(map[string]*VirtualEndpoint),
	}
}

// randomID generates a random endpoint ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Endpoint attaches a new endpoint to the hub. When receiveOwn is set
// the endpoint also receives frames it sent itself, like a controller
// in loopback mode.
func (vb *VirtualBus) Endpoint(receiveOwn bool) (*VirtualEndpoint, error) {
	vb.mu.Lock()
	defer vb.mu.Unlock()
	if vb.closed {
		return nil, ErrBusClosed
	}
	ep := &VirtualEndpoint{
		id:         randomID(),
		hub:        vb,
		rx:         make(chan can.Frame, defaultEndpointQueue),
		receiveOwn: receiveOwn,
		done:       make(chan struct{}),
	}
	vb.endpoints[ep.id] = ep
	return ep, nil
}

// broadcast delivers a frame to every attached endpoint. Sends are
// non-blocking; a full endpoint queue counts as a drop.
func (vb *VirtualBus) broadcast(from string, frame can.Frame) error {
	vb.mu.Lock()
	defer vb.mu.Unlock()
	if vb.closed {
		return ErrBusClosed
	}
	for id, ep := range vb.endpoints {
		if id == from && !ep.receiveOwn {
			continue
		}
		select {
		case ep.rx <- frame:
		default:
			vb.dropped++
		}
	}
	return nil
}

func (vb *VirtualBus) detach(id string) {
	vb.mu.Lock()
	defer vb.mu.Unlock()
	delete(vb.endpoints, id)
}

// Dropped returns the number of frames discarded because an endpoint
// queue was full.
func (vb *VirtualBus) Dropped() uint64 {
	vb.mu.Lock()
	defer vb.mu.Unlock()
	return vb.dropped
}

// Close detaches and closes every endpoint. The hub accepts no new
// endpoints afterwards.
func (vb *VirtualBus) Close() error {
	vb.mu.Lock()
	if vb.closed {
		vb.mu.Unlock()
		return nil
	}
	vb.closed = true
	eps := make([]*VirtualEndpoint, 0, len(vb.endpoints))
	for _, ep := range vb.endpoints {
		eps = append(eps, ep)
	}
	vb.endpoints = make(map[string]*VirtualEndpoint)
	vb.mu.Unlock()

	for _, ep := range eps {
		ep.markClosed()
	}
	return nil
}

// VirtualEndpoint is one attachment point on a VirtualBus. It
// implements Bus.
type VirtualEndpoint struct {
	id         string
	hub        *VirtualBus
	rx         chan can.Frame
	receiveOwn bool
	done       chan struct{}
	closeOnce  sync.Once
}

// Send broadcasts a frame to the other endpoints on the hub.
func (e *VirtualEndpoint) Send(ctx context.Context, frame can.Frame) error {
	select {
	case <-e.done:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if err := ValidateFrame(frame); err != nil {
		return err
	}
	return e.hub.broadcast(e.id, frame)
}

// Receive blocks until a frame arrives, the context is cancelled, or
// the endpoint is closed.
func (e *VirtualEndpoint) Receive(ctx context.Context) (can.Frame, error) {
	select {
	case <-e.done:
		return can.Frame{}, ErrBusClosed
	default:
	}
	select {
	case frame := <-e.rx:
		return frame, nil
	case <-ctx.Done():
		return can.Frame{}, ctx.Err()
	case <-e.done:
		return can.Frame{}, ErrBusClosed
	}
}

// Close detaches the endpoint from the hub.
func (e *VirtualEndpoint) Close() error {
	e.hub.detach(e.id)
	e.markClosed()
	return nil
}

func (e *VirtualEndpoint) markClosed() {
	e.closeOnce.Do(func() { close(e.done) })
}
