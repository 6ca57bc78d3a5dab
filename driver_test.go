//go:build linux

package riv_test

import (
	"sync"
	"testing"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/brickingsoft/riv/pkg/ring"
)

// scriptDriver records submissions and lets the test play the kernel: fill
// scratch memory, then deliver completions by hand.
type scriptDriver struct {
	mu          sync.Mutex
	entries     []ring.Submission
	canceled    []uint64
	completions chan ring.Completion
	closeOnce   sync.Once
}

func newScriptDriver() *scriptDriver {
	return &scriptDriver{
		completions: make(chan ring.Completion, 16),
	}
}

func (d *scriptDriver) Submit(entries []ring.Submission) error {
	d.mu.Lock()
	d.entries = append(d.entries, entries...)
	d.mu.Unlock()
	return nil
}

func (d *scriptDriver) Cancel(userData uint64) error {
	d.mu.Lock()
	d.canceled = append(d.canceled, userData)
	d.mu.Unlock()
	return nil
}

func (d *scriptDriver) Completions() <-chan ring.Completion {
	return d.completions
}

func (d *scriptDriver) Close() error {
	d.closeOnce.Do(func() {
		close(d.completions)
	})
	return nil
}

func (d *scriptDriver) complete(userData uint64, n int, err error) {
	d.completions <- ring.Completion{UserData: userData, N: n, Err: err}
}

func (d *scriptDriver) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

func (d *scriptDriver) entry(i int) ring.Submission {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.entries[i]
}

// waitEntry blocks until at least n entries were submitted and returns the
// nth one.
func (d *scriptDriver) waitEntry(t *testing.T, n int) ring.Submission {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if d.count() > n {
			return d.entry(n)
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("no submission", n, "arrived")
	return ring.Submission{}
}

func (d *scriptDriver) cancelRequests() []uint64 {
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

// fillAccept plays the kernel side of an accept: write a v4 peer into the
// scratch sockaddr the entry references.
func fillAccept(t *testing.T, entry ring.Submission, port int) {
	t.Helper()
	if entry.Code != ring.OpAccept {
		t.Fatal("not an accept entry:", entry.Code)
	}
	if entry.Addr == nil {
		t.Fatal("accept entry without scratch address")
	}
	pp := (*unix.RawSockaddrInet4)(entry.Addr)
	pp.Family = unix.AF_INET
	pp.Addr = [4]byte{127, 0, 0, 1}
	p := (*[2]byte)(unsafe.Pointer(&pp.Port))
	p[0] = byte(port >> 8)
	p[1] = byte(port)
}
