package reactor

import (
	"context"
	"sync"
)

// Future represents a DeliveryStatus that will become available at some
// point, or an error if the send could not be attempted at all. Adapted
// from the teacher's future package: a single-completion promise/future
// pair built on a channel plus a sync.Once to make Complete idempotent.
//
// The worker/driver goroutine that produces the result never blocks on a
// Future. Complete is called by whichever path produced the result: a
// driver goroutine, or the caller itself when a mailbox's AsyncDeliver
// enqueues synchronously (which includes a handler calling Ask).
type Future struct {
	done   chan struct{}
	once   sync.Once
	status DeliveryStatus
	err    error
}

// NewFuture creates an incomplete Future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Complete resolves the future exactly once. Subsequent calls are no-ops,
// which is what lets ack-fidelity hold even if two paths race to complete
// the same future.
func (f *Future) Complete(status DeliveryStatus, err error) {
	f.once.Do(func() {
		f.status = status
		f.err = err
		close(f.done)
	})
}

// Await blocks until the future completes or ctx is cancelled, whichever
// comes first.
func (f *Future) Await(ctx context.Context) (DeliveryStatus, error) {
	select {
	case <-f.done:
		return f.status, f.err
	case <-ctx.Done():
		return NotDelivered, ctx.Err()
	}
}

// Done exposes the completion channel for callers that want to select on
// it directly rather than calling Await.
func (f *Future) Done() <-chan struct{} {
	return f.done
}
