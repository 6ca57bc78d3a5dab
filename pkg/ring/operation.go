package ring

import (
	"context"
	"sync/atomic"

	"github.com/brickingsoft/errors"
)

type Result struct {
	N     int
	Flags uint32
	Err   error
}

const (
	pendingStatus int64 = iota
	canceledStatus
	completedStatus
)

// Operation is the in-flight handle of one submitted descriptor. It lives in
// the ring's registry from submission until its completion is reaped.
type Operation struct {
	id           uint64
	status       atomic.Int64
	resultCh     chan Result
	cancellation *Cancellation
}

func newOperation(id uint64) *Operation {
	return &Operation{
		id:       id,
		resultCh: make(chan Result, 1),
	}
}

// UserData is the identifier carried by the operation's submission entries.
func (op *Operation) UserData() uint64 {
	return op.id
}

// Await blocks for the operation result.
//
// When ctx expires the operation stays in flight and ErrUncompleted is
// returned: the caller must then hand the ring a cancellation token for
// whatever the operation still owns. A closed result channel means the
// operation was canceled.
func (op *Operation) Await(ctx context.Context) (n int, flags uint32, err error) {
	select {
	case r, ok := <-op.resultCh:
		if !ok {
			err = ErrCanceled
			return
		}
		n, flags, err = r.N, r.Flags, r.Err
	case <-ctx.Done():
		err = errors.From(
			ErrUncompleted,
			errors.WithWrap(ctx.Err()),
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
		)
	}
	return
}
