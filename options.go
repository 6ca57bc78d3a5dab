package riv

import (
	"github.com/brickingsoft/riv/pkg/ring"
)

type Options struct {
	// RingEntries bounds the driver's queue pair. Zero picks the driver
	// default.
	RingEntries uint32
	// Driver overrides the io_uring backed driver, mainly for tests and
	// alternative engines.
	Driver ring.Driver
}

type Option func(options *Options) error

func WithRingEntries(entries uint32) Option {
	return func(options *Options) error {
		options.RingEntries = entries
		return nil
	}
}

func WithDriver(driver ring.Driver) Option {
	return func(options *Options) error {
		options.Driver = driver
		return nil
	}
}
