package ring_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"unsafe"

	"github.com/brickingsoft/riv/pkg/ring"
)

func TestNullCancellation(t *testing.T) {
	c := ring.NullCancellation()
	if c.Size() != 0 {
		t.Error("size:", c.Size())
	}
	c.Reclaim()
	c.Reclaim()
	if !c.Reclaimed() {
		t.Error("not reclaimed")
	}
}

func TestBufferCancellationSize(t *testing.T) {
	b := make([]byte, 8, 64)
	c := ring.BufferCancellation(b)
	if c.Size() != 64 {
		t.Error("size must be capacity, got:", c.Size())
	}
	if c.Reclaimed() {
		t.Error("reclaimed before reclaim")
	}
	c.Reclaim()
	if !c.Reclaimed() {
		t.Error("not reclaimed")
	}
	if c.Size() != 64 {
		t.Error("size changed after reclaim:", c.Size())
	}
}

func TestCallbackCancellationFiresOnce(t *testing.T) {
	fired := new(atomic.Int64)
	target := make([]byte, 16)
	c := ring.CallbackCancellation(unsafe.Pointer(&target[0]), len(target), func(ptr unsafe.Pointer, n int) {
		if ptr != unsafe.Pointer(&target[0]) {
			t.Error("wrong pointer")
		}
		if n != len(target) {
			t.Error("wrong size:", n)
		}
		fired.Add(1)
	})
	c.Reclaim()
	c.Reclaim()
	c.Reclaim()
	if got := fired.Load(); got != 1 {
		t.Error("callback fired", got, "times")
	}
}

func TestCancellationReclaimConcurrent(t *testing.T) {
	fired := new(atomic.Int64)
	c := ring.CallbackCancellation(nil, 0, func(_ unsafe.Pointer, _ int) {
		fired.Add(1)
	})
	wg := new(sync.WaitGroup)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Reclaim()
		}()
	}
	wg.Wait()
	if got := fired.Load(); got != 1 {
		t.Error("callback fired", got, "times")
	}
}
