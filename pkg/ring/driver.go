package ring

// Completion is one reaped completion queue event, matched back to the
// operation whose entries carried UserData.
type Completion struct {
	UserData uint64
	N        int
	Flags    uint32
	Err      error
}

// Driver is the submission/completion queue engine the ring drives. It is a
// black box: entries go in once, completions come out later and
// asynchronously. Cancel requests that the kernel stop an in-flight
// operation; regardless of whether the kernel honors it promptly, a
// completion for that operation is still delivered (either its normal result
// or a cancellation failure).
//
// Close stops the engine and closes the completions channel once no more
// events will be delivered.
type Driver interface {
	Submit(entries []Submission) error
	Cancel(userData uint64) error
	Completions() <-chan Completion
	Close() error
}
