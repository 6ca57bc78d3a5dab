//go:build linux

package riv

import (
	"context"
	"io"
	"net"
	"sync"

	"github.com/brickingsoft/rxp/async"

	"github.com/brickingsoft/riv/pkg/reference"
	"github.com/brickingsoft/riv/pkg/ring"
)

const (
	connRead ring.Kind = iota + 1
	connWrite
	connClose
)

func newConn(ctx context.Context, engineRef *reference.Pointer[*engine], fd int, laddr net.Addr, raddr net.Addr) *Conn {
	eng := engineRef.Acquire()
	return &Conn{
		ctx:       ctx,
		engineRef: engineRef,
		rng:       eng.rng,
		fd:        fd,
		laddr:     laddr,
		raddr:     raddr,
		guard:     ring.NewGuard(eng.rng),
	}
}

// Conn is an accepted connection. It holds its own engine reference, so it
// outlives its listener, and applies the same single-active-operation
// discipline: a kind switch cancels the previous kind's descriptor, handing
// its buffer to the ring instead of releasing it directly.
type Conn struct {
	ctx       context.Context
	engineRef *reference.Pointer[*engine]
	rng       *ring.Ring
	fd        int
	laddr     net.Addr
	raddr     net.Addr
	mu        sync.Mutex
	guard     *ring.Guard
	readEv    *ring.ReadEvent
	writeEv   *ring.WriteEvent
	closed    bool
}

func (c *Conn) LocalAddr() net.Addr {
	return c.laddr
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.raddr
}

// Read submits one read over an owned buffer of n bytes and yields the
// filled prefix. A zero length completion is EOF.
func (c *Conn) Read(n int) (future async.Future[[]byte]) {
	if n < 1 {
		return async.FailedImmediately[[]byte](c.ctx, ring.ErrEmptyBuffer)
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return async.FailedImmediately[[]byte](c.ctx, ErrClosed)
	}
	if c.guard.Active() == connRead && c.guard.Busy() {
		c.mu.Unlock()
		return async.FailedImmediately[[]byte](c.ctx, ErrBusy)
	}
	c.guard.Assert(connRead, c.cancellation)
	promise, promiseErr := async.Make[[]byte](c.ctx)
	if promiseErr != nil {
		c.guard.Completed()
		c.mu.Unlock()
		return async.FailedImmediately[[]byte](c.ctx, promiseErr)
	}
	ev := ring.NewRead(c.fd, make([]byte, n), 0)
	op, submitErr := c.rng.Submit(ev)
	if submitErr != nil {
		c.guard.Completed()
		c.mu.Unlock()
		return async.FailedImmediately[[]byte](c.ctx, submitErr)
	}
	c.readEv = ev
	c.guard.Submitted(op)
	c.mu.Unlock()
	go c.awaitRead(op, ev, promise)
	future = promise.Future()
	return
}

func (c *Conn) awaitRead(op *ring.Operation, ev *ring.ReadEvent, promise async.Promise[[]byte]) {
	n, _, err := op.Await(c.ctx)
	c.mu.Lock()
	if c.guard.Owns(op) {
		c.guard.Completed()
	}
	// the event still attached means nobody canceled it behind our back
	owned := c.readEv == ev
	if owned {
		c.readEv = nil
	}
	c.mu.Unlock()
	if err != nil {
		if owned && ring.IsUncompleted(err) {
			// still in flight: the buffer travels to the ring
			c.rng.Cancel(op, ev.Cancel())
		}
		promise.Fail(err)
		return
	}
	if !owned {
		// a close raced the completion and the buffer already travelled
		// to the ring; the result is discarded
		promise.Fail(ring.ErrCanceled)
		return
	}
	if n == 0 {
		promise.Fail(io.EOF)
		return
	}
	promise.Succeed(ev.Bytes()[:n])
}

// Write copies p into a pooled buffer the kernel owns until completion, so
// the caller may reuse p immediately.
func (c *Conn) Write(p []byte) (future async.Future[int]) {
	if len(p) == 0 {
		return async.FailedImmediately[int](c.ctx, ring.ErrEmptyBuffer)
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return async.FailedImmediately[int](c.ctx, ErrClosed)
	}
	if c.guard.Active() == connWrite && c.guard.Busy() {
		c.mu.Unlock()
		return async.FailedImmediately[int](c.ctx, ErrBusy)
	}
	c.guard.Assert(connWrite, c.cancellation)
	promise, promiseErr := async.Make[int](c.ctx)
	if promiseErr != nil {
		c.guard.Completed()
		c.mu.Unlock()
		return async.FailedImmediately[int](c.ctx, promiseErr)
	}
	ev := ring.NewWrite(c.fd, p, 0)
	op, submitErr := c.rng.Submit(ev)
	if submitErr != nil {
		ev.Release()
		c.guard.Completed()
		c.mu.Unlock()
		return async.FailedImmediately[int](c.ctx, submitErr)
	}
	c.writeEv = ev
	c.guard.Submitted(op)
	c.mu.Unlock()
	go c.awaitWrite(op, ev, promise)
	future = promise.Future()
	return
}

func (c *Conn) awaitWrite(op *ring.Operation, ev *ring.WriteEvent, promise async.Promise[int]) {
	n, _, err := op.Await(c.ctx)
	c.mu.Lock()
	if c.guard.Owns(op) {
		c.guard.Completed()
	}
	owned := c.writeEv == ev
	if owned {
		c.writeEv = nil
	}
	c.mu.Unlock()
	if err != nil {
		if owned && ring.IsUncompleted(err) {
			c.rng.Cancel(op, ev.Cancel())
		}
		promise.Fail(err)
		return
	}
	if !owned {
		promise.Fail(ring.ErrCanceled)
		return
	}
	// completion confirmed, the pooled buffer can go home
	ev.Release()
	promise.Succeed(n)
}

// Close cancels any in-flight read or write first; their buffers travel to
// the ring as cancellation tokens, never freed directly.
func (c *Conn) Close() (future async.Future[async.Void]) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return async.FailedImmediately[async.Void](c.ctx, ErrClosed)
	}
	c.closed = true
	c.guard.Assert(connClose, c.cancellation)
	promise, promiseErr := async.Make[async.Void](c.ctx)
	if promiseErr != nil {
		c.mu.Unlock()
		return async.FailedImmediately[async.Void](c.ctx, promiseErr)
	}
	fd := c.fd
	op, submitErr := c.rng.SubmitEntries(1, func(sqs *ring.Submissions) error {
		sqe, sqeErr := sqs.Single()
		if sqeErr != nil {
			return sqeErr
		}
		sqe.Code = ring.OpClose
		sqe.Fd = fd
		return nil
	})
	if submitErr != nil {
		c.guard.Completed()
		c.mu.Unlock()
		_ = c.engineRef.Release()
		return async.FailedImmediately[async.Void](c.ctx, submitErr)
	}
	c.guard.Submitted(op)
	c.mu.Unlock()
	go c.awaitClose(op, promise)
	future = promise.Future()
	return
}

func (c *Conn) awaitClose(op *ring.Operation, promise async.Promise[async.Void]) {
	_, _, err := op.Await(c.ctx)
	c.mu.Lock()
	owned := c.guard.Owns(op)
	if owned {
		c.guard.Completed()
	}
	if owned && ring.IsUncompleted(err) {
		c.rng.Cancel(op, ring.NullCancellation())
	}
	c.mu.Unlock()
	_ = c.engineRef.Release()
	if err != nil {
		promise.Fail(err)
		return
	}
	promise.Succeed(async.Void{})
}

func (c *Conn) cancellation(prev ring.Kind) *ring.Cancellation {
	switch prev {
	case connRead:
		if ev := c.readEv; ev != nil {
			c.readEv = nil
			return ev.Cancel()
		}
	case connWrite:
		if ev := c.writeEv; ev != nil {
			c.writeEv = nil
			return ev.Cancel()
		}
	}
	return ring.NullCancellation()
}
