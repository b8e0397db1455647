package canbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.einride.tech/can"

	"github.com/banshee-data/canbridge/internal/monitoring"
	"github.com/banshee-data/canbridge/internal/signal"
)

// Converter turns a raw frame into signal values keyed by destination
// path. A frame nothing is registered for yields an empty map.
type Converter interface {
	Convert(frame can.Frame) map[string]signal.Value
}

// Publisher consumes decoded signal values. Implementations must be
// safe for concurrent use; the pump calls them from its receive loop.
type Publisher interface {
	Publish(ts time.Time, frameID uint32, values map[string]signal.Value) error
}

// PumpConfig wires a Pump to its collaborators.
type PumpConfig struct {
	Bus         Bus
	Buffer      *RxBuffer
	Converter   Converter
	Publishers  []Publisher
	LogInterval time.Duration // 0 disables periodic stats logging
}

// Pump drives the receive side of a bus: every frame is stamped,
// pushed into the ring buffer, run through the converter and the
// resulting values handed to each publisher in turn.
type Pump struct {
	bus         Bus
	buffer      *RxBuffer
	converter   Converter
	pubs        []Publisher
	logInterval time.Duration

	mu      sync.Mutex
	stats   PumpStats
	lastLog PumpStats
}

// PumpStats is a snapshot of the pump counters.
type PumpStats struct {
	FramesReceived   uint64 `json:"frames_received"`
	SignalsPublished uint64 `json:"signals_published"`
	PublishErrors    uint64 `json:"publish_errors"`
}

// NewPump validates the wiring and returns a pump. Only the bus is
// mandatory; a pump without converter or buffer still counts frames.
func NewPump(cfg PumpConfig) (*Pump, error) {
	if cfg.Bus == nil {
		return nil, fmt.Errorf("canbus: pump needs a bus")
	}
	return &Pump{
		bus:         cfg.Bus,
		buffer:      cfg.Buffer,
		converter:   cfg.Converter,
		pubs:        cfg.Publishers,
		logInterval: cfg.LogInterval,
	}, nil
}

// Run receives frames until the context is cancelled or the bus
// closes. A closed bus is reported as ErrBusClosed; cancellation as
// the context error.
func (p *Pump) Run(ctx context.Context) error {
	if p.logInterval > 0 {
		go p.logLoop(ctx)
	}
	for {
		frame, err := p.bus.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				monitoring.Logf("canbus: pump shutting down")
				return ctx.Err()
			}
			if errors.Is(err, ErrBusClosed) {
				monitoring.Logf("canbus: pump stopping, bus closed")
				return err
			}
			return fmt.Errorf("canbus: receive: %w", err)
		}
		p.handle(RxFrame{Time: time.Now(), Frame: frame})
	}
}

func (p *Pump) handle(rx RxFrame) {
	p.mu.Lock()
	p.stats.FramesReceived++
	p.mu.Unlock()

	if p.buffer != nil {
		p.buffer.Push(rx)
	}
	if p.converter == nil {
		return
	}
	values := p.converter.Convert(rx.Frame)
	if len(values) == 0 {
		return
	}
	var pubErrs uint64
	for _, pub := range p.pubs {
		if err := pub.Publish(rx.Time, rx.Frame.ID, values); err != nil {
			pubErrs++
			monitoring.Logf("canbus: publish frame 0x%X: %v", rx.Frame.ID, err)
		}
	}
	p.mu.Lock()
	p.stats.SignalsPublished += uint64(len(values))
	p.stats.PublishErrors += pubErrs
	p.mu.Unlock()
}

// Stats returns cumulative pump counters.
func (p *Pump) Stats() PumpStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// logLoop logs throughput at the configured interval for whoever is
// watching journalctl.
func (p *Pump) logLoop(ctx context.Context) {
	ticker := time.NewTicker(p.logInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.logStats()
		}
	}
}

func (p *Pump) logStats() {
	p.mu.Lock()
	cur := p.stats
	prev := p.lastLog
	p.lastLog = cur
	p.mu.Unlock()

	frames := cur.FramesReceived - prev.FramesReceived
	rate := float64(frames) / p.logInterval.Seconds()
	monitoring.Logf("canbus: %d frames (%.1f/s), %d signals published, %d publish errors",
		frames, rate, cur.SignalsPublished-prev.SignalsPublished, cur.PublishErrors-prev.PublishErrors)
}
