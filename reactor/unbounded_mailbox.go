package reactor

import (
	"sync"
	"sync/atomic"
)

// mpscNode is one link in the lock-free MPSC queue.
type mpscNode struct {
	next atomic.Pointer[mpscNode]
	data *Message
}

var mpscNodePool = sync.Pool{New: func() any { return new(mpscNode) }}

// UnboundedMailbox is the default mailbox: lock-free, unbounded, FIFO
// across all producers, single-consumer. The MPSC linking algorithm is
// adapted from the teacher's DefaultMailbox (actor/default_mailbox.go),
// retyped from *ReceiveContext to *Message.
//
// Unlike DefaultMailbox, Len is not a traversal: size is maintained as a
// running atomic counter alongside the queue, so code polling depth
// across many reactors for the observability Len's contract promises
// (Mailbox.Len, mailbox.go) pays O(1) per reactor instead of O(n).
// Deliver/Dequeue keep the counter in step with the linked list.
//
// Deliver never blocks and never returns Backpressured; an unbounded
// mailbox has no capacity to exceed.
type UnboundedMailbox struct {
	head  atomic.Pointer[mpscNode]
	_pad1 [64]byte
	tail  atomic.Pointer[mpscNode]
	_pad2 [64]byte
	size  atomic.Int64
}

var _ Mailbox = (*UnboundedMailbox)(nil)

// NewUnboundedMailbox creates an UnboundedMailbox ready for use.
func NewUnboundedMailbox() *UnboundedMailbox {
	dummy := mpscNodePool.Get().(*mpscNode)
	dummy.next.Store(nil)
	dummy.data = nil
	m := &UnboundedMailbox{}
	m.head.Store(dummy)
	m.tail.Store(dummy)
	return m
}

// Deliver appends msg and bumps the live size counter. Always returns
// Delivered.
func (m *UnboundedMailbox) Deliver(msg *Message) DeliveryStatus {
	n := mpscNodePool.Get().(*mpscNode)
	n.data = msg
	n.next.Store(nil)
	prev := m.tail.Swap(n)
	prev.next.Store(n)
	m.size.Add(1)
	return Delivered
}

// AsyncDeliver appends msg and returns an already-completed Future, since
// Deliver on this mailbox never blocks or fails.
func (m *UnboundedMailbox) AsyncDeliver(msg *Message) *Future {
	status := m.Deliver(msg)
	f := NewFuture()
	f.Complete(status, nil)
	return f
}

// Dequeue removes and returns the head message, or nil if empty. Must be
// called by a single consumer goroutine. Decrements the live size counter
// on every successful removal, keeping Len() in step without a traversal.
func (m *UnboundedMailbox) Dequeue() *Message {
	head := m.head.Load()
	next := head.next.Load()
	if next == nil {
		return nil
	}
	m.head.Store(next)
	value := next.data
	head.next.Store(nil)
	mpscNodePool.Put(head)
	m.size.Add(-1)
	return value
}

// DequeueBatch removes up to max messages.
func (m *UnboundedMailbox) DequeueBatch(max int) []*Message {
	return deliverBatch(m.Dequeue, max)
}

// Len returns the live size counter maintained by Deliver/Dequeue: O(1),
// unlike a traversal, since nothing else needs to walk the list to answer
// it. May read momentarily stale under concurrent producers, same as any
// other best-effort snapshot.
func (m *UnboundedMailbox) Len() int64 {
	return m.size.Load()
}

// IsEmpty is an O(1) check.
func (m *UnboundedMailbox) IsEmpty() bool {
	head := m.head.Load()
	return head.next.Load() == nil
}

// Dispose is a no-op: there are no external resources to release.
func (m *UnboundedMailbox) Dispose() {}
