package ring

import (
	"unsafe"
)

// NewRead builds a read descriptor over an owned buffer. The buffer belongs
// to the descriptor until completion or cancellation.
func NewRead(fd int, b []byte, offset uint64) *ReadEvent {
	return &ReadEvent{
		fd:     fd,
		b:      b,
		offset: offset,
	}
}

// ReadEvent is a basic read descriptor.
type ReadEvent struct {
	fd     int
	b      []byte
	offset uint64
}

func (ev *ReadEvent) SQEsNeeded() int { return 1 }

func (ev *ReadEvent) Prepare(sqs *Submissions) error {
	sqe, sqeErr := sqs.Single()
	if sqeErr != nil {
		return sqeErr
	}
	if len(ev.b) == 0 {
		return ErrEmptyBuffer
	}
	sqe.Code = OpRead
	sqe.Fd = ev.fd
	sqe.Addr = unsafe.Pointer(&ev.b[0])
	sqe.AddrLen = uint32(len(ev.b))
	sqe.Offset = ev.offset
	return nil
}

// Cancel extracts the buffer. Its capacity is what the kernel may still
// write into, so the token is sized to capacity, not logical length.
func (ev *ReadEvent) Cancel() *Cancellation {
	b := ev.b
	ev.b = nil
	if b == nil {
		return NullCancellation()
	}
	return BufferCancellation(b)
}

// Bytes exposes the owned buffer for the completion path.
func (ev *ReadEvent) Bytes() []byte {
	return ev.b
}
