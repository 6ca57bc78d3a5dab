package ring

import (
	"unsafe"

	"github.com/valyala/bytebufferpool"
)

// NewWrite builds a write descriptor over a pooled copy of p. Copying keeps
// the caller free to reuse p immediately; the kernel only ever sees the
// pooled buffer, which goes back to the pool on completion or through the
// cancellation token.
func NewWrite(fd int, p []byte, offset uint64) *WriteEvent {
	bb := bytebufferpool.Get()
	_, _ = bb.Write(p)
	return &WriteEvent{
		fd:     fd,
		bb:     bb,
		offset: offset,
	}
}

type WriteEvent struct {
	fd     int
	bb     *bytebufferpool.ByteBuffer
	offset uint64
}

func (ev *WriteEvent) SQEsNeeded() int { return 1 }

func (ev *WriteEvent) Prepare(sqs *Submissions) error {
	sqe, sqeErr := sqs.Single()
	if sqeErr != nil {
		return sqeErr
	}
	if ev.bb == nil || ev.bb.Len() == 0 {
		return ErrEmptyBuffer
	}
	sqe.Code = OpWrite
	sqe.Fd = ev.fd
	sqe.Addr = unsafe.Pointer(&ev.bb.B[0])
	sqe.AddrLen = uint32(ev.bb.Len())
	sqe.Offset = ev.offset
	return nil
}

func (ev *WriteEvent) Cancel() *Cancellation {
	bb := ev.bb
	ev.bb = nil
	if bb == nil {
		return NullCancellation()
	}
	return CallbackCancellation(unsafe.Pointer(bb), bb.Len(), releaseWriteBuffer)
}

// Release returns the pooled buffer after a confirmed completion.
func (ev *WriteEvent) Release() {
	bb := ev.bb
	ev.bb = nil
	if bb != nil {
		bytebufferpool.Put(bb)
	}
}

func releaseWriteBuffer(ptr unsafe.Pointer, _ int) {
	bytebufferpool.Put((*bytebufferpool.ByteBuffer)(ptr))
}
