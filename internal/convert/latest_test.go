package convert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/canbridge/internal/signal"
)

func TestLatestKeepsNewestPerPath(t *testing.T) {
	t.Parallel()
	store := NewLatest()

	t0 := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.Publish(t0, 0x100, map[string]signal.Value{
		"Vehicle.Body.Lights.IsHighBeamOn": signal.BoolValue(false),
	}))
	require.NoError(t, store.Publish(t0.Add(time.Second), 0x100, map[string]signal.Value{
		"Vehicle.Body.Lights.IsHighBeamOn": signal.BoolValue(true),
	}))

	obs, ok := store.Get("Vehicle.Body.Lights.IsHighBeamOn")
	require.True(t, ok)
	assert.Equal(t, signal.BoolValue(true), obs.Value)
	assert.Equal(t, uint32(0x100), obs.FrameID)
	assert.Equal(t, t0.Add(time.Second), obs.Time)
	assert.Equal(t, 1, store.Len())
}

func TestLatestGetUnknownPath(t *testing.T) {
	t.Parallel()
	store := NewLatest()
	_, ok := store.Get("Vehicle.Nope")
	assert.False(t, ok)
	assert.Empty(t, store.All())
}

func TestLatestAllSortedByPath(t *testing.T) {
	t.Parallel()
	store := NewLatest()
	ts := time.Now()
	require.NoError(t, store.Publish(ts, 0x101, map[string]signal.Value{
		"Vehicle.Body.Lighting.Power": signal.FloatValue(740),
		"Vehicle.Body.Ambient":        signal.FloatValue(3),
	}))
	require.NoError(t, store.Publish(ts, 0x100, map[string]signal.Value{
		"Vehicle.Body.Lights.IsHighBeamOn": signal.BoolValue(true),
	}))

	all := store.All()
	require.Len(t, all, 3)
	assert.Equal(t, "Vehicle.Body.Ambient", all[0].Path)
	assert.Equal(t, "Vehicle.Body.Lighting.Power", all[1].Path)
	assert.Equal(t, "Vehicle.Body.Lights.IsHighBeamOn", all[2].Path)
}

func TestLatestConcurrentPublish(t *testing.T) {
	t.Parallel()
	store := NewLatest()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			store.Publish(time.Now(), 0x100, map[string]signal.Value{
				"Vehicle.A": signal.FloatValue(float64(i)),
			})
		}
	}()
	for i := 0; i < 500; i++ {
		store.Get("Vehicle.A")
		store.All()
	}
	<-done
	assert.Equal(t, 1, store.Len())
}
