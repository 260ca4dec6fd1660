package reactor

// Mailbox is the ordered per-reactor message queue contract (spec.md §4.1).
//
// Concurrency and ordering
//   - Enqueue must be safe for concurrent callers (multi-producer).
//   - Dequeue is single-consumer: the dispatcher's worker loop is the only
//     caller for a given context's mailbox at any instant, mirroring the
//     scheduling-flag invariant that keeps a context on at most one worker.
//   - FIFO within a single sender is required; across senders, arrival
//     order is the tiebreak (spec.md §5).
//
// Non-blocking behavior
//   - Deliver must not block the caller; bounded implementations return
//     Backpressured instead of blocking.
type Mailbox interface {
	// Deliver synchronously enqueues msg, returning Delivered or
	// Backpressured. It never returns NotDelivered or DeadLetter — those
	// are driver-level outcomes, not mailbox-level ones.
	Deliver(msg *Message) DeliveryStatus
	// AsyncDeliver is Deliver's non-blocking-completion counterpart: it
	// still enqueues synchronously (mailboxes never block on I/O) but
	// returns the result via a Future so callers that don't want to
	// stall until Deliver returns can carry on.
	AsyncDeliver(msg *Message) *Future
	// Dequeue removes and returns the next message, or nil if empty.
	Dequeue() *Message
	// DequeueBatch removes up to max messages in FIFO order. Returns
	// fewer than max, including zero, if the mailbox empties first.
	DequeueBatch(max int) []*Message
	// IsEmpty is a best-effort, O(1) snapshot check.
	IsEmpty() bool
	// Len is a best-effort size snapshot for observability.
	Len() int64
	// Dispose releases resources and unblocks internal waiters. The
	// mailbox must not be used after Dispose returns.
	Dispose()
}

// deliverBatch is a small helper shared by the Mailbox implementations whose
// DequeueBatch is a loop over Dequeue (BoundedDropMailbox slices its buffer
// directly instead), so the batching policy (stop early once Dequeue
// returns nil) lives in one place.
func deliverBatch(dequeue func() *Message, max int) []*Message {
	if max <= 0 {
		return nil
	}
	batch := make([]*Message, 0, max)
	for i := 0; i < max; i++ {
		msg := dequeue()
		if msg == nil {
			break
		}
		batch = append(batch, msg)
	}
	return batch
}
