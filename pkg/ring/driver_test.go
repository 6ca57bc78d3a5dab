package ring_test

import (
	"sync"
	"time"

	"github.com/brickingsoft/riv/pkg/ring"
)

// memDriver keeps submissions in memory and lets the test deliver
// completions by hand, so the submit/cancel protocol can be driven without a
// kernel queue pair.
type memDriver struct {
	mu          sync.Mutex
	entries     []ring.Submission
	canceled    []uint64
	completions chan ring.Completion
	closeOnce   sync.Once
}

func newMemDriver() *memDriver {
	return &memDriver{
		completions: make(chan ring.Completion, 8),
	}
}

func (d *memDriver) Submit(entries []ring.Submission) error {
	d.mu.Lock()
	d.entries = append(d.entries, entries...)
	d.mu.Unlock()
	return nil
}

func (d *memDriver) Cancel(userData uint64) error {
	d.mu.Lock()
	d.canceled = append(d.canceled, userData)
	d.mu.Unlock()
	return nil
}

func (d *memDriver) Completions() <-chan ring.Completion {
	return d.completions
}

func (d *memDriver) Close() error {
	d.closeOnce.Do(func() {
		close(d.completions)
	})
	return nil
}

func (d *memDriver) complete(userData uint64, n int, err error) {
	d.completions <- ring.Completion{UserData: userData, N: n, Err: err}
}

func (d *memDriver) lastEntry() ring.Submission {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.entries[len(d.entries)-1]
}

func (d *memDriver) canceledUserData() []uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]uint64, len(d.canceled))
	copy(out, d.canceled)
	return out
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return cond()
}
