package ring

import (
	"unsafe"
)

type OpCode uint8

const (
	OpNop OpCode = iota
	OpRead
	OpWrite
	OpAccept
	OpClose
	OpCancel
)

// Submission is one kernel request record. Descriptors write these; the
// driver translates them into real submission queue entries.
type Submission struct {
	Code     OpCode
	Fd       int
	Addr     unsafe.Pointer
	AddrLen  uint32
	Addr2    unsafe.Pointer
	Offset   uint64
	Flags    uint32
	UserData uint64
}

// Submissions is the slot view handed to a descriptor during preparation.
// The ring sizes it to the descriptor's declared slot count, so exhausting it
// is a descriptor bug.
type Submissions struct {
	entries []Submission
	next    int
}

// Single hands out the next unused slot.
func (sqs *Submissions) Single() (*Submission, error) {
	if sqs.next >= len(sqs.entries) {
		return nil, ErrSubmissionOverflow
	}
	sqe := &sqs.entries[sqs.next]
	sqs.next++
	return sqe, nil
}
