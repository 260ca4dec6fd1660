package reactor

// Priority is the priority level a message may be tagged with for delivery
// into a PriorityMailbox. Higher values drain first.
type Priority int

const (
	PriorityLow    Priority = 0
	PriorityNormal Priority = 1
	PriorityHigh   Priority = 2
)

// priorityTagger is implemented by payloads that want their message placed
// into a non-default priority level. Payloads that don't implement it land
// in PriorityNormal.
type priorityTagger interface {
	MailboxPriority() Priority
}

func priorityOf(msg *Message) Priority {
	if tagger, ok := msg.Payload.(priorityTagger); ok {
		return tagger.MailboxPriority()
	}
	return PriorityNormal
}

// PriorityMailbox drains strictly high-to-low across levels and FIFO
// within a level, by routing each level into its own UnboundedMailbox sub
// -queue. Adapted from the teacher's FairMailbox (actor/fair_mailbox.go)
// which round-robins per-sender sub-queues for fairness; here the
// dimension is priority level rather than sender, so there is no
// round-robin — a level is only visited once every higher level is
// empty.
type PriorityMailbox struct {
	levels [PriorityHigh + 1]*UnboundedMailbox
}

var _ Mailbox = (*PriorityMailbox)(nil)

// NewPriorityMailbox creates a PriorityMailbox with one sub-queue per
// Priority level.
func NewPriorityMailbox() *PriorityMailbox {
	m := &PriorityMailbox{}
	for i := range m.levels {
		m.levels[i] = NewUnboundedMailbox()
	}
	return m
}

// Deliver routes msg into its priority level's sub-queue. Always Delivered;
// this mailbox is unbounded.
func (m *PriorityMailbox) Deliver(msg *Message) DeliveryStatus {
	return m.levels[priorityOf(msg)].Deliver(msg)
}

// AsyncDeliver delivers msg and returns an already-completed Future.
func (m *PriorityMailbox) AsyncDeliver(msg *Message) *Future {
	status := m.Deliver(msg)
	f := NewFuture()
	f.Complete(status, nil)
	return f
}

// Dequeue returns the next message from the highest non-empty level.
func (m *PriorityMailbox) Dequeue() *Message {
	for level := len(m.levels) - 1; level >= 0; level-- {
		if msg := m.levels[level].Dequeue(); msg != nil {
			return msg
		}
	}
	return nil
}

// DequeueBatch removes up to max messages, preferring higher levels first.
func (m *PriorityMailbox) DequeueBatch(max int) []*Message {
	return deliverBatch(m.Dequeue, max)
}

// IsEmpty reports whether every level is empty.
func (m *PriorityMailbox) IsEmpty() bool {
	for _, level := range m.levels {
		if !level.IsEmpty() {
			return false
		}
	}
	return true
}

// Len sums the occupancy across every level.
func (m *PriorityMailbox) Len() int64 {
	var total int64
	for _, level := range m.levels {
		total += level.Len()
	}
	return total
}

// Dispose drops every buffered message and disposes every level's
// sub-queue.
func (m *PriorityMailbox) Dispose() {
	for _, level := range m.levels {
		for level.Dequeue() != nil {
		}
		level.Dispose()
	}
}
