package ring

import (
	"sync"
	"sync/atomic"

	"github.com/brickingsoft/errors"
)

// New wires a ring over a driver and starts reaping its completions.
func New(driver Driver) *Ring {
	r := &Ring{
		driver:   driver,
		inflight: make(map[uint64]*Operation),
	}
	r.wg.Add(1)
	go r.reap()
	return r
}

// Ring owns the submit/cancel protocol against the driver and the registry
// of in-flight operations. It is shareable: any number of resources may have
// independent operations registered concurrently.
//
// The ring is the sole owner of registered cancellation tokens: a token
// fires only when the completion of its operation has been observed, so no
// submitted memory is reclaimed while the kernel may still touch it.
type Ring struct {
	driver   Driver
	mu       sync.Mutex
	inflight map[uint64]*Operation
	idc      atomic.Uint64
	closed   atomic.Bool
	wg       sync.WaitGroup
}

// Submit stages a descriptor's entries and hands them to the driver.
func (r *Ring) Submit(ev Event) (*Operation, error) {
	return r.SubmitEntries(ev.SQEsNeeded(), ev.Prepare)
}

// SubmitEntries gives prepare one-shot access to slots entries, then enqueues
// them. Submission time failures propagate synchronously; kernel level
// failures surface later through the operation result.
func (r *Ring) SubmitEntries(slots int, prepare func(sqs *Submissions) error) (*Operation, error) {
	if slots < 1 {
		return nil, errors.From(ErrSubmissionOverflow, errors.WithMeta(errMetaPkgKey, errMetaPkgVal))
	}
	if r.closed.Load() {
		return nil, errors.From(ErrClosed, errors.WithMeta(errMetaPkgKey, errMetaPkgVal))
	}
	op := newOperation(r.idc.Add(1))
	sqs := &Submissions{entries: make([]Submission, slots)}
	if prepErr := prepare(sqs); prepErr != nil {
		return nil, prepErr
	}
	for i := range sqs.entries {
		sqs.entries[i].UserData = op.id
	}
	r.mu.Lock()
	r.inflight[op.id] = op
	r.mu.Unlock()
	if submitErr := r.driver.Submit(sqs.entries); submitErr != nil {
		r.mu.Lock()
		delete(r.inflight, op.id)
		r.mu.Unlock()
		return nil, submitErr
	}
	return op, nil
}

// Cancel abandons an in-flight operation. The token is registered first,
// then the driver is asked to stop the kernel side; the token fires once the
// operation's completion (normal or canceled, whichever wins the race) is
// reaped. Canceling an operation that already completed reclaims the token
// immediately, since the kernel is provably done with the memory.
func (r *Ring) Cancel(op *Operation, c *Cancellation) {
	if c == nil {
		c = NullCancellation()
	}
	if op == nil {
		c.Reclaim()
		return
	}
	r.mu.Lock()
	if _, ok := r.inflight[op.id]; !ok {
		r.mu.Unlock()
		c.Reclaim()
		return
	}
	op.cancellation = c
	op.status.Store(canceledStatus)
	r.mu.Unlock()
	_ = r.driver.Cancel(op.id)
}

// Close stops the driver and drains the registry. Remaining canceled
// operations have their tokens fired: a stopped driver means the kernel no
// longer references any submitted memory.
func (r *Ring) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	closeErr := r.driver.Close()
	r.wg.Wait()
	return closeErr
}

func (r *Ring) reap() {
	defer r.wg.Done()
	for c := range r.driver.Completions() {
		r.complete(c)
	}
	r.drain()
}

func (r *Ring) complete(c Completion) {
	r.mu.Lock()
	op, ok := r.inflight[c.UserData]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.inflight, c.UserData)
	r.mu.Unlock()
	if op.status.Load() == canceledStatus {
		// abandoned mid-flight: the kernel is done now, reclaim and
		// discard whatever result won the race
		if op.cancellation != nil {
			op.cancellation.Reclaim()
		}
		op.status.Store(completedStatus)
		close(op.resultCh)
		return
	}
	op.status.Store(completedStatus)
	op.resultCh <- Result{N: c.N, Flags: c.Flags, Err: c.Err}
	close(op.resultCh)
}

func (r *Ring) drain() {
	r.mu.Lock()
	remains := make([]*Operation, 0, len(r.inflight))
	for id, op := range r.inflight {
		delete(r.inflight, id)
		remains = append(remains, op)
	}
	r.mu.Unlock()
	for _, op := range remains {
		if op.status.Load() == canceledStatus {
			if op.cancellation != nil {
				op.cancellation.Reclaim()
			}
			close(op.resultCh)
			continue
		}
		op.resultCh <- Result{Err: errors.From(ErrClosed, errors.WithMeta(errMetaPkgKey, errMetaPkgVal))}
		close(op.resultCh)
	}
}
