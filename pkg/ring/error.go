package ring

import "github.com/brickingsoft/errors"

var (
	ErrClosed             = errors.Define("ring was closed")
	ErrCanceled           = errors.Define("operation canceled")
	ErrUncompleted        = errors.Define("uncompleted")
	ErrSubmissionOverflow = errors.Define("not enough submission entries")
	ErrEmptyBuffer        = errors.Define("empty buffer")
)

func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed)
}

func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}

func IsUncompleted(err error) bool {
	return errors.Is(err, ErrUncompleted)
}

const (
	errMetaPkgKey = "pkg"
	errMetaPkgVal = "ring"
)
