package main

import (
	"context"
	"testing"
	"time"

	"go.einride.tech/can"

	"github.com/banshee-data/canbridge/internal/config"
)

func TestFlagDefaults(t *testing.T) {
	if *busKind != "" {
		t.Errorf("expected bus flag default to be empty, got %q", *busKind)
	}
	if *replaySpeed != 1.0 {
		t.Errorf("expected replay-speed default to be 1.0, got %v", *replaySpeed)
	}
	if *logSignals {
		t.Error("expected log-signals default to be false")
	}
}

// TestOpenBusVirtual verifies that the virtual bus wiring gives the
// replayer a separate endpoint: frames fed on the replay side must
// arrive on the pump side even with receive-own off.
func TestOpenBusVirtual(t *testing.T) {
	cfg := config.EmptyDaemonConfig()
	pumpBus, feedBus, err := openBus(context.Background(), cfg)
	if err != nil {
		t.Fatalf("openBus: %v", err)
	}
	defer pumpBus.Close()
	defer feedBus.Close()

	if pumpBus == feedBus {
		t.Fatal("virtual bus must give the replayer its own endpoint")
	}

	want := can.Frame{ID: 0x100, Length: 2, Data: can.Data{0x4B, 0x00}}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := feedBus.Send(ctx, want); err != nil {
		t.Fatalf("send: %v", err)
	}
	got, err := pumpBus.Receive(ctx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if got.ID != want.ID || got.Length != want.Length || got.Data != want.Data {
		t.Errorf("received %+v, want %+v", got, want)
	}
}

func TestOpenBusUnknownKind(t *testing.T) {
	bogus := "canopen"
	cfg := &config.DaemonConfig{Bus: &bogus}
	if _, _, err := openBus(context.Background(), cfg); err == nil {
		t.Fatal("expected error for unknown bus kind")
	}
}
