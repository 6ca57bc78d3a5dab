package reference

import (
	"io"
	"sync/atomic"
)

// Make wraps a closable value so it can be handed to several owners without
// re-establishing its wiring. The creator holds the first reference.
func Make[E io.Closer](value E) *Pointer[E] {
	p := &Pointer[E]{value: value}
	p.count.Store(1)
	return p
}

// Pointer is a counted shared owner of E. The value is closed exactly once,
// when the last owner releases it.
type Pointer[E io.Closer] struct {
	value E
	count atomic.Int64
}

// Acquire takes one more reference and returns the shared value.
func (p *Pointer[E]) Acquire() E {
	p.count.Add(1)
	return p.value
}

// Value returns the shared value without taking a reference.
func (p *Pointer[E]) Value() E {
	return p.value
}

// Count reports the live reference count.
func (p *Pointer[E]) Count() int64 {
	return p.count.Load()
}

// Release drops one reference, closing the value when none remain.
func (p *Pointer[E]) Release() error {
	if n := p.count.Add(-1); n == 0 {
		return p.value.Close()
	}
	return nil
}
