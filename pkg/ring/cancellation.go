package ring

import (
	"sync/atomic"
	"unsafe"
)

// CancelCallback reclaims an opaque pointer of n bytes. It runs at most once
// and never before the kernel side of the abandoned operation is confirmed
// finished.
type CancelCallback func(ptr unsafe.Pointer, n int)

// Cancellation describes memory that must be released later, once the ring
// has observed the completion (or confirmed cancellation) of the operation
// that handed it to the kernel. It is created by the component that owns the
// memory and transferred to the ring, which becomes its sole owner until it
// fires the reclamation.
type Cancellation struct {
	buf      []byte
	ptr      unsafe.Pointer
	n        int
	callback CancelCallback
	done     atomic.Bool
}

// NullCancellation has nothing to reclaim. Used when the abandoned operation
// owned no caller visible memory, such as a close.
func NullCancellation() *Cancellation {
	return &Cancellation{}
}

// BufferCancellation holds the byte buffer an abandoned operation handed to
// the kernel. The described size is the buffer's capacity, not its logical
// length, because the kernel was told the whole capacity is writable.
func BufferCancellation(b []byte) *Cancellation {
	return &Cancellation{
		buf: b,
		n:   cap(b),
	}
}

// CallbackCancellation reclaims an opaque pointer plus a length by invoking a
// caller supplied procedure. Used when the reclaimed resource is not a plain
// buffer.
func CallbackCancellation(ptr unsafe.Pointer, n int, callback CancelCallback) *Cancellation {
	return &Cancellation{
		ptr:      ptr,
		n:        n,
		callback: callback,
	}
}

// Size reports the described capacity.
func (c *Cancellation) Size() int {
	return c.n
}

// Reclaim runs the reclamation exactly once. Extra calls are no-ops, which
// keeps the completion/cancellation race benign.
func (c *Cancellation) Reclaim() {
	if !c.done.CompareAndSwap(false, true) {
		return
	}
	if c.callback != nil {
		callback := c.callback
		ptr := c.ptr
		c.callback = nil
		c.ptr = nil
		callback(ptr, c.n)
		return
	}
	c.buf = nil
}

// Reclaimed reports whether the reclamation already ran.
func (c *Cancellation) Reclaimed() bool {
	return c.done.Load()
}
