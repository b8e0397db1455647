//go:build linux

package main

import (
	"context"

	"github.com/banshee-data/canbridge/internal/canbus"
)

func dialSocketCAN(ctx context.Context, iface string) (canbus.Bus, error) {
	return canbus.DialSocketCAN(ctx, iface)
}
