// Package replay reads and writes CAN capture files and feeds recorded
// traffic back onto a live bus. Captures are standard pcap files with
// the SocketCAN link type, so candump and Wireshark output can be
// replayed and canbridge captures can be inspected with either.
package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/banshee-data/canbridge/internal/canbus"
	"github.com/banshee-data/canbridge/internal/monitoring"
	"github.com/banshee-data/canbridge/internal/timeutil"
)

// Replayer feeds captured frames onto a bus, pacing them by their
// original inter-frame gaps.
type Replayer struct {
	bus   canbus.Bus
	speed float64
	clock timeutil.Clock

	mu   sync.Mutex
	sent int
}

// NewReplayer creates a replayer that sends onto bus. speed scales
// playback (2.0 replays twice as fast as the capture); zero replays as
// fast as the bus accepts frames. A nil clock uses the real one.
func NewReplayer(bus canbus.Bus, speed float64, clock timeutil.Clock) (*Replayer, error) {
	if bus == nil {
		return nil, errors.New("replay: bus is required")
	}
	if speed < 0 {
		return nil, fmt.Errorf("replay: speed must not be negative, got %f", speed)
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Replayer{bus: bus, speed: speed, clock: clock}, nil
}

// Replay sends every frame in the capture at path onto the bus. It
// returns when the capture is exhausted, the context is cancelled, or
// the bus reports an error.
func (r *Replayer) Replay(ctx context.Context, path string) error {
	reader, err := NewReader(path)
	if err != nil {
		return err
	}
	defer reader.Close()

	start := r.clock.Now()
	var lastCapture time.Time
	var lastSend time.Time

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := reader.Next()
		if err == io.EOF {
			monitoring.Logf("replay: %s complete, %d frames in %v",
				path, reader.Count(), r.clock.Since(start).Round(time.Millisecond))
			return nil
		}
		if err != nil {
			return err
		}

		// Pace by the capture's own gaps, scaled by the speed
		// multiplier. Out-of-order capture timestamps produce no wait.
		if !lastCapture.IsZero() && r.speed > 0 {
			gap := time.Duration(float64(rec.Time.Sub(lastCapture)) / r.speed)
			if elapsed := r.clock.Since(lastSend); gap > elapsed {
				if err := r.wait(ctx, gap-elapsed); err != nil {
					return err
				}
			}
		}
		lastCapture = rec.Time
		lastSend = r.clock.Now()

		if err := r.bus.Send(ctx, rec.Frame); err != nil {
			return fmt.Errorf("replay: send frame 0x%X: %w", rec.Frame.ID, err)
		}
		r.mu.Lock()
		r.sent++
		r.mu.Unlock()
	}
}

// wait blocks for d or until the context is cancelled.
func (r *Replayer) wait(ctx context.Context, d time.Duration) error {
	t := r.clock.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C():
		return nil
	}
}

// Sent returns the number of frames sent so far.
func (r *Replayer) Sent() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent
}
