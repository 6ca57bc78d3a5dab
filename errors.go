package riv

import (
	"github.com/brickingsoft/errors"

	"github.com/brickingsoft/riv/pkg/ring"
)

var (
	ErrClosed = errors.Define("riv: use of closed listener")
	ErrBusy   = errors.Define("riv: operation in flight")
)

func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed)
}

func IsBusy(err error) bool {
	return errors.Is(err, ErrBusy)
}

// IsCanceled reports whether an operation was abandoned mid-flight, either
// by a kind switch or by closing its resource.
func IsCanceled(err error) bool {
	return ring.IsCanceled(err)
}
