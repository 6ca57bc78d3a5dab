//go:build linux

package riv

import (
	"github.com/brickingsoft/riv/pkg/ring"
	"github.com/brickingsoft/riv/pkg/ring/uring"
)

func defaultDriver(entries uint32) (ring.Driver, error) {
	return uring.New(entries)
}
