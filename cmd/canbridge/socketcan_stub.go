//go:build !linux

package main

import (
	"context"
	"fmt"

	"github.com/banshee-data/canbridge/internal/canbus"
)

func dialSocketCAN(_ context.Context, iface string) (canbus.Bus, error) {
	return nil, fmt.Errorf("socketcan interface %s: only supported on linux", iface)
}
