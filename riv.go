// Package riv is the cancellation-safety core of an asynchronous I/O runtime
// built on a kernel submission/completion queue. Operations are submitted
// once and completed later; when a caller abandons an operation that is
// still in flight, the memory it handed to the kernel is never reclaimed
// directly. Instead a deferred reclamation token travels to the ring, which
// fires it only after the kernel is confirmed done.
package riv
