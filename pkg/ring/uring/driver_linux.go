//go:build linux

// Package uring holds the io_uring backed driver. It is the only package
// that imports giouring, so rings driven by in-process drivers link without
// it.
package uring

import (
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/brickingsoft/errors"
	"github.com/eapache/queue"
	"github.com/pawelgaczynski/giouring"

	"github.com/brickingsoft/riv/pkg/ring"
)

const (
	defaultEntries = 128
	cqWaitTimeout  = 50 * time.Millisecond
)

// New stands up the io_uring backed driver. Entries bounds both queues;
// zero picks the default.
func New(entries uint32) (*Driver, error) {
	if entries == 0 {
		entries = defaultEntries
	}
	r, rErr := giouring.CreateRing(entries)
	if rErr != nil {
		return nil, rErr
	}
	d := &Driver{
		ring:        r,
		entries:     entries,
		staging:     queue.New(),
		wake:        make(chan struct{}, 1),
		completions: make(chan ring.Completion, entries),
		stop:        make(chan struct{}),
		waitTimeout: syscall.NsecToTimespec(cqWaitTimeout.Nanoseconds()),
	}
	d.wg.Add(2)
	go d.submitLoop()
	go d.reapLoop()
	return d, nil
}

// Driver drives a kernel submission/completion queue pair. Entries are
// staged by callers, shipped by the submit loop, and reaped by the
// completion loop into the completions channel.
type Driver struct {
	ring        *giouring.Ring
	entries     uint32
	mu          sync.Mutex
	staging     *queue.Queue
	wake        chan struct{}
	completions chan ring.Completion
	stop        chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
	waitTimeout syscall.Timespec
}

func (d *Driver) Submit(entries []ring.Submission) error {
	select {
	case <-d.stop:
		return errors.From(ring.ErrClosed, errors.WithMeta("pkg", "uring"))
	default:
	}
	d.mu.Lock()
	for i := range entries {
		d.staging.Add(entries[i])
	}
	d.mu.Unlock()
	select {
	case d.wake <- struct{}{}:
	default:
	}
	return nil
}

func (d *Driver) Cancel(userData uint64) error {
	return d.Submit([]ring.Submission{{Code: ring.OpCancel, Offset: userData}})
}

func (d *Driver) Completions() <-chan ring.Completion {
	return d.completions
}

func (d *Driver) Close() error {
	d.stopOnce.Do(func() {
		close(d.stop)
		select {
		case d.wake <- struct{}{}:
		default:
		}
		d.wg.Wait()
		d.ring.QueueExit()
		close(d.completions)
	})
	return nil
}

func (d *Driver) submitLoop() {
	defer d.wg.Done()
	for {
		select {
		case <-d.stop:
			return
		case <-d.wake:
		}
		prepared := 0
		for {
			d.mu.Lock()
			if d.staging.Length() == 0 {
				d.mu.Unlock()
				break
			}
			entry := d.staging.Remove().(ring.Submission)
			d.mu.Unlock()
			sqe := d.ring.GetSQE()
			for sqe == nil {
				// queue full, flush what is prepared and retry
				_, _ = d.ring.Submit()
				runtime.Gosched()
				sqe = d.ring.GetSQE()
			}
			d.prepare(sqe, entry)
			prepared++
		}
		if prepared == 0 {
			continue
		}
		for {
			if _, submitErr := d.ring.Submit(); submitErr != nil {
				if errors.Is(submitErr, syscall.EAGAIN) || errors.Is(submitErr, syscall.EINTR) {
					continue
				}
			}
			break
		}
	}
}

func (d *Driver) prepare(sqe *giouring.SubmissionQueueEntry, s ring.Submission) {
	switch s.Code {
	case ring.OpRead:
		sqe.PrepareRead(s.Fd, uintptr(s.Addr), s.AddrLen, s.Offset)
	case ring.OpWrite:
		sqe.PrepareWrite(s.Fd, uintptr(s.Addr), s.AddrLen, s.Offset)
	case ring.OpAccept:
		sqe.PrepareAccept(s.Fd, uintptr(s.Addr), uint64(uintptr(s.Addr2)), 0)
	case ring.OpClose:
		sqe.PrepareClose(s.Fd)
	case ring.OpCancel:
		sqe.PrepareCancel64(s.Offset, 0)
	default:
		sqe.PrepareNop()
	}
	sqe.SetData64(s.UserData)
	runtime.KeepAlive(sqe)
}

func (d *Driver) reapLoop() {
	defer d.wg.Done()
	cq := make([]*giouring.CompletionQueueEvent, d.entries)
	for {
		select {
		case <-d.stop:
			return
		default:
		}
		wait := d.waitTimeout
		if _, waitErr := d.ring.WaitCQEs(1, &wait, nil); waitErr != nil {
			continue
		}
		completed := d.ring.PeekBatchCQE(cq)
		if completed == 0 {
			continue
		}
		for i := uint32(0); i < completed; i++ {
			cqe := cq[i]
			cq[i] = nil
			if cqe.UserData == 0 {
				// a cancel request's own event
				continue
			}
			var res int
			var err error
			if cqe.Res < 0 {
				err = syscall.Errno(-cqe.Res)
			} else {
				res = int(cqe.Res)
			}
			d.completions <- ring.Completion{UserData: cqe.UserData, N: res, Flags: cqe.Flags, Err: err}
		}
		d.ring.CQAdvance(completed)
	}
}
