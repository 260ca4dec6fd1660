package reactor

import (
	gods "github.com/Workiva/go-datastructures/queue"
)

// BoundedBlockMailbox is a fixed-capacity, ring-buffer backed mailbox.
// Adapted from the teacher's BoundedMailbox (actor/bounded_mailbox.go),
// which wraps the same go-datastructures RingBuffer but calls the
// blocking Put/Get pair; here Deliver uses the ring buffer's non-blocking
// Offer so overflow surfaces as Backpressured to the caller instead of
// blocking a sender goroutine, matching spec.md §4.1's contract that
// bounded mailboxes return Backpressured rather than block.
//
// "Block" in the name refers to what happens on overflow relative to
// BoundedDropMailbox: this variant refuses the new message (drop-newest)
// rather than evicting an old one (drop-oldest).
type BoundedBlockMailbox struct {
	ring *gods.RingBuffer
}

var _ Mailbox = (*BoundedBlockMailbox)(nil)

// NewBoundedBlockMailbox creates a bounded mailbox with the given capacity.
func NewBoundedBlockMailbox(capacity int) *BoundedBlockMailbox {
	return &BoundedBlockMailbox{ring: gods.NewRingBuffer(uint64(capacity))}
}

// Deliver offers msg into the ring buffer. Returns Backpressured if full or
// disposed.
func (m *BoundedBlockMailbox) Deliver(msg *Message) DeliveryStatus {
	ok, err := m.ring.Offer(msg)
	if err != nil || !ok {
		return Backpressured
	}
	return Delivered
}

// AsyncDeliver offers msg and returns an already-completed Future.
func (m *BoundedBlockMailbox) AsyncDeliver(msg *Message) *Future {
	status := m.Deliver(msg)
	f := NewFuture()
	f.Complete(status, nil)
	return f
}

// Dequeue returns the next message, or nil if empty. Single-consumer.
func (m *BoundedBlockMailbox) Dequeue() *Message {
	if m.ring.Len() == 0 {
		return nil
	}
	item, err := m.ring.Get()
	if err != nil || item == nil {
		return nil
	}
	msg, _ := item.(*Message)
	return msg
}

// DequeueBatch removes up to max messages.
func (m *BoundedBlockMailbox) DequeueBatch(max int) []*Message {
	return deliverBatch(m.Dequeue, max)
}

// IsEmpty reports whether the ring buffer currently holds no messages.
func (m *BoundedBlockMailbox) IsEmpty() bool {
	return m.ring.Len() == 0
}

// Len returns the current occupancy.
func (m *BoundedBlockMailbox) Len() int64 {
	return int64(m.ring.Len())
}

// Dispose releases the ring buffer and unblocks any waiters.
func (m *BoundedBlockMailbox) Dispose() {
	m.ring.Dispose()
}
