package ring

// Event describes one pending logical I/O request: how to populate its
// submission entries and how to package a deferred reclamation if it is
// abandoned while still in flight.
//
// Prepare is invoked exactly once per live descriptor; it may move owned
// state (such as a buffer pointer) into the entries, so a second call is
// undefined. Cancel consumes the descriptor: it extracts whatever the kernel
// might still touch and returns a Cancellation describing how to reclaim it
// later. Cancel never performs the reclamation itself.
//
// An in-flight descriptor must never be dropped silently: it is consumed
// either by a completion or by Cancel.
type Event interface {
	// SQEsNeeded declares how many contiguous submission slots the
	// descriptor requires.
	SQEsNeeded() int
	// Prepare writes the kernel request fields into allocator provided
	// slots.
	Prepare(sqs *Submissions) error
	// Cancel packages the descriptor's owned resources into a deferred
	// reclamation token.
	Cancel() *Cancellation
}
