package ring

// Kind names one logical operation kind of a resource. Zero is idle;
// resources define their own kinds above it.
type Kind uint8

// Idle means no operation kind owns the resource's scratch memory.
const Idle Kind = 0

// CancelPayload packages what the previous active kind currently owns into a
// deferred reclamation token.
type CancelPayload func(prev Kind) *Cancellation

// NewGuard builds the per-resource operation guard.
func NewGuard(r *Ring) *Guard {
	return &Guard{ring: r}
}

// Guard tracks which single operation kind currently owns a resource's
// shared scratch memory and switches between kinds by canceling the previous
// one first. It keeps two kernel operations from ever targeting the same
// scratch memory at once.
//
// The guard is not goroutine safe; the owning resource serializes access.
type Guard struct {
	ring   *Ring
	active Kind
	op     *Operation
}

// Ring exposes the guarded ring.
func (g *Guard) Ring() *Ring {
	return g.ring
}

// Active reports the declared active kind.
func (g *Guard) Active() Kind {
	return g.active
}

// Busy reports whether an operation of the active kind is still in flight.
func (g *Guard) Busy() bool {
	return g.op != nil
}

// Owns reports whether op is the guard's in-flight operation. A completion
// observer uses it to avoid resetting a guard that already switched away.
func (g *Guard) Owns(op *Operation) bool {
	return g.op != nil && g.op == op
}

// Assert runs at the top of every operation entry point. Re-asserting the
// active kind is a no-op; switching kinds cancels the in-flight operation of
// the previous kind first, registering the payload's token, before the new
// kind is adopted.
func (g *Guard) Assert(kind Kind, payload CancelPayload) {
	if g.active != Idle && g.active != kind {
		g.cancel(payload)
	}
	g.active = kind
}

// Submitted records the in-flight operation of the active kind.
func (g *Guard) Submitted(op *Operation) {
	g.op = op
}

// Completed returns the resource to idle after a confirmed completion.
func (g *Guard) Completed() {
	g.active = Idle
	g.op = nil
}

// Release runs the destruction path: when a kind is still active its
// cancellation is routed through the ring, never a direct release. When idle
// there is nothing to defer and the caller may release synchronously.
func (g *Guard) Release(payload CancelPayload) {
	if g.active == Idle {
		return
	}
	g.cancel(payload)
	g.active = Idle
}

func (g *Guard) cancel(payload CancelPayload) {
	prev := g.active
	op := g.op
	g.active = Idle
	g.op = nil
	var c *Cancellation
	if payload != nil {
		c = payload(prev)
	}
	if c == nil {
		c = NullCancellation()
	}
	if op == nil {
		// nothing in flight, the kernel never saw the payload
		c.Reclaim()
		return
	}
	g.ring.Cancel(op, c)
}
