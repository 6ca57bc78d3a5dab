//go:build linux

package riv

import (
	"context"
	"fmt"
	"net"
	"sync"
	"unsafe"

	"github.com/brickingsoft/rxp"
	"github.com/brickingsoft/rxp/async"
	"golang.org/x/sys/unix"

	"github.com/brickingsoft/riv/pkg/reference"
	"github.com/brickingsoft/riv/pkg/ring"
	"github.com/brickingsoft/riv/pkg/sys"
)

const (
	opAccept ring.Kind = iota + 1
	opClose
)

// sockaddrs caches peer address scratch storage. A listener keeps one
// entry across successive accepts; it returns to the pool through a
// cancellation token or after the close completes.
var sockaddrs = sync.Pool{
	New: func() interface{} {
		return new(unix.RawSockaddrAny)
	},
}

func releaseSockaddr(ptr unsafe.Pointer, _ int) {
	sockaddrs.Put((*unix.RawSockaddrAny)(ptr))
}

// engine bundles what every resource sharing one ring needs alive: the ring
// itself, the executors behind its futures, and the context cutoff. It is
// reference counted; the last listener or connection to release it tears the
// whole thing down, so closing a listener never strands its live
// connections.
type engine struct {
	rng       *ring.Ring
	executors rxp.Executors
	cancel    context.CancelFunc
}

func (e *engine) Close() error {
	closeErr := e.rng.Close()
	go func() {
		_ = e.executors.Close()
		e.cancel()
	}()
	return closeErr
}

// Listen binds a stream listener and wires it to a ring. The returned
// listener owns one engine reference; accepted connections take their own.
func Listen(ctx context.Context, network string, address string, options ...Option) (*Listener, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	opt := Options{}
	for _, option := range options {
		if optErr := option(&opt); optErr != nil {
			return nil, optErr
		}
	}
	sock, laddr, family, lnErr := sys.Listen(network, address)
	if lnErr != nil {
		return nil, lnErr
	}
	executors, execErr := rxp.New()
	if execErr != nil {
		_ = unix.Close(sock)
		return nil, execErr
	}
	driver := opt.Driver
	if driver == nil {
		d, dErr := defaultDriver(opt.RingEntries)
		if dErr != nil {
			_ = executors.Close()
			_ = unix.Close(sock)
			return nil, dErr
		}
		driver = d
	}
	rng := ring.New(driver)
	ctx = rxp.With(ctx, executors)
	lnCtx, lnCancel := context.WithCancel(ctx)
	ln := &Listener{
		ctx: lnCtx,
		engineRef: reference.Make(&engine{
			rng:       rng,
			executors: executors,
			cancel:    lnCancel,
		}),
		rng:     rng,
		network: network,
		fd:      sock,
		family:  family,
		laddr:   laddr,
		guard:   ring.NewGuard(rng),
	}
	return ln, nil
}

// Listener is a stateful resource: successive accepts share one peer
// address scratch buffer, so at most one operation kind may own the
// listener at a time. Switching kinds cancels the previous one first.
type Listener struct {
	ctx       context.Context
	engineRef *reference.Pointer[*engine]
	rng       *ring.Ring
	network   string
	fd        int
	family    int
	laddr     net.Addr
	mu        sync.Mutex
	guard     *ring.Guard
	rsa       *unix.RawSockaddrAny
	rsaLen    uint32
	closed    bool
}

func (ln *Listener) Addr() net.Addr {
	return ln.laddr
}

// Accept submits one accept referencing the shared scratch buffer. Only one
// accept may be in flight; a pending close is cancelled first.
func (ln *Listener) Accept() (future async.Future[*Conn]) {
	ln.mu.Lock()
	if ln.closed {
		ln.mu.Unlock()
		return async.FailedImmediately[*Conn](ln.ctx, ErrClosed)
	}
	if ln.guard.Active() == opAccept && ln.guard.Busy() {
		ln.mu.Unlock()
		return async.FailedImmediately[*Conn](ln.ctx, ErrBusy)
	}
	ln.guard.Assert(opAccept, ln.cancellation)
	if ln.rsa == nil {
		ln.rsa = sockaddrs.Get().(*unix.RawSockaddrAny)
	}
	ln.rsaLen = unix.SizeofSockaddrAny
	promise, promiseErr := async.Make[*Conn](ln.ctx)
	if promiseErr != nil {
		ln.guard.Completed()
		ln.mu.Unlock()
		return async.FailedImmediately[*Conn](ln.ctx, promiseErr)
	}
	fd := ln.fd
	rsa := ln.rsa
	rsaLen := &ln.rsaLen
	op, submitErr := ln.rng.SubmitEntries(1, func(sqs *ring.Submissions) error {
		sqe, sqeErr := sqs.Single()
		if sqeErr != nil {
			return sqeErr
		}
		sqe.Code = ring.OpAccept
		sqe.Fd = fd
		sqe.Addr = unsafe.Pointer(rsa)
		sqe.AddrLen = *rsaLen
		sqe.Addr2 = unsafe.Pointer(rsaLen)
		return nil
	})
	if submitErr != nil {
		ln.guard.Completed()
		ln.mu.Unlock()
		return async.FailedImmediately[*Conn](ln.ctx, submitErr)
	}
	ln.guard.Submitted(op)
	ln.mu.Unlock()
	go ln.awaitAccept(op, promise)
	future = promise.Future()
	return
}

func (ln *Listener) awaitAccept(op *ring.Operation, promise async.Promise[*Conn]) {
	accepted, _, err := op.Await(ln.ctx)
	if err != nil {
		ln.mu.Lock()
		owned := ln.guard.Owns(op)
		if owned {
			ln.guard.Completed()
		}
		if owned && ring.IsUncompleted(err) {
			// still in flight: the scratch travels to the ring, never
			// released here
			ln.rng.Cancel(op, ln.cancellation(opAccept))
		}
		ln.mu.Unlock()
		promise.Fail(err)
		return
	}
	ln.mu.Lock()
	if ln.guard.Owns(op) {
		ln.guard.Completed()
	}
	rsa := ln.rsa
	if rsa == nil {
		// a close raced the completion and already took the scratch; the
		// result is discarded
		ln.mu.Unlock()
		_ = unix.Close(accepted)
		promise.Fail(ring.ErrCanceled)
		return
	}
	family := rsa.Addr.Family
	sa, saErr := sys.RawToSockaddr(rsa)
	// the scratch buffer stays cached for the next accept
	ln.mu.Unlock()
	if saErr != nil {
		_ = unix.Close(accepted)
		promise.Fail(saErr)
		return
	}
	raddr := sys.SockaddrToAddr(ln.network, sa)
	if _, ok := raddr.(*net.TCPAddr); !ok {
		// the kernel broke the accept contract, not a recoverable error
		panic(fmt.Sprintf("riv: listener accepted an unexpected address family %d", family))
	}
	promise.Succeed(newConn(ln.ctx, ln.engineRef, accepted, ln.laddr, raddr))
}

// Incoming repeatedly drives Accept into a stream future. The stream ends
// only when an accept fails, which in practice means the listener closed.
func (ln *Listener) Incoming() (future async.Future[*Conn]) {
	promise, promiseErr := async.Make[*Conn](ln.ctx, async.WithStream(), async.WithWait())
	if promiseErr != nil {
		return async.FailedImmediately[*Conn](ln.ctx, promiseErr)
	}
	ln.acceptNext(promise)
	future = promise.Future()
	return
}

func (ln *Listener) acceptNext(promise async.Promise[*Conn]) {
	ln.Accept().OnComplete(func(_ context.Context, conn *Conn, cause error) {
		if cause != nil {
			promise.Fail(cause)
			return
		}
		promise.Succeed(conn)
		ln.acceptNext(promise)
	})
}

// Close cancels any in-flight accept, handing its scratch buffer to the
// ring, then submits the close. Operations after the returned future
// completes are caller error.
func (ln *Listener) Close() (future async.Future[async.Void]) {
	ln.mu.Lock()
	if ln.closed {
		ln.mu.Unlock()
		return async.FailedImmediately[async.Void](ln.ctx, ErrClosed)
	}
	ln.closed = true
	ln.guard.Assert(opClose, ln.cancellation)
	promise, promiseErr := async.Make[async.Void](ln.ctx)
	if promiseErr != nil {
		ln.mu.Unlock()
		return async.FailedImmediately[async.Void](ln.ctx, promiseErr)
	}
	fd := ln.fd
	op, submitErr := ln.rng.SubmitEntries(1, func(sqs *ring.Submissions) error {
		sqe, sqeErr := sqs.Single()
		if sqeErr != nil {
			return sqeErr
		}
		sqe.Code = ring.OpClose
		sqe.Fd = fd
		return nil
	})
	if submitErr != nil {
		_ = unix.Close(fd)
		ln.guard.Completed()
		ln.mu.Unlock()
		ln.dispose()
		return async.FailedImmediately[async.Void](ln.ctx, submitErr)
	}
	ln.guard.Submitted(op)
	ln.mu.Unlock()
	go ln.awaitClose(op, promise)
	future = promise.Future()
	return
}

func (ln *Listener) awaitClose(op *ring.Operation, promise async.Promise[async.Void]) {
	_, _, err := op.Await(ln.ctx)
	ln.mu.Lock()
	owned := ln.guard.Owns(op)
	if owned {
		ln.guard.Completed()
	}
	if owned && ring.IsUncompleted(err) {
		ln.rng.Cancel(op, ring.NullCancellation())
	}
	// nothing references the scratch buffer anymore
	if rsa := ln.rsa; rsa != nil {
		ln.rsa = nil
		sockaddrs.Put(rsa)
	}
	ln.mu.Unlock()
	if err != nil {
		promise.Fail(err)
	} else {
		promise.Succeed(async.Void{})
	}
	ln.dispose()
}

// cancellation packages whatever the previous active kind owns. Accept owns
// the shared scratch buffer, close owns nothing.
func (ln *Listener) cancellation(prev ring.Kind) *ring.Cancellation {
	switch prev {
	case opAccept:
		rsa := ln.rsa
		ln.rsa = nil
		if rsa == nil {
			return ring.NullCancellation()
		}
		return ring.CallbackCancellation(unsafe.Pointer(rsa), int(unsafe.Sizeof(*rsa)), releaseSockaddr)
	case opClose:
		return ring.NullCancellation()
	}
	return ring.NullCancellation()
}

func (ln *Listener) dispose() {
	_ = ln.engineRef.Release()
}
