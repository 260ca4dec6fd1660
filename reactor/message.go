package reactor

import (
	"sync/atomic"
)

// AckPolicy governs whether the sender receives a delivery-status future
// and whether the channel guarantees durable ack.
type AckPolicy int

const (
	// AckNone means the sender receives no delivery-status completion.
	AckNone AckPolicy = iota
	// AckSenderRequired means the sender wants a delivery-status
	// completion, satisfied as soon as the message reaches the
	// destination's mailbox (or fails to).
	AckSenderRequired
	// AckChannelRequired means the sender wants a delivery-status
	// completion resolved only once the channel's own ack mechanism has
	// confirmed the message — see SPEC_FULL.md §9 for the exact
	// per-driver definition of "confirmed".
	AckChannelRequired
)

// String renders the AckPolicy name, mainly for logging.
func (p AckPolicy) String() string {
	switch p {
	case AckNone:
		return "NONE"
	case AckSenderRequired:
		return "SENDER_REQUIRED"
	case AckChannelRequired:
		return "CHANNEL_REQUIRED"
	default:
		return "UNKNOWN"
	}
}

// DeliveryStatus is the outcome of a send attempt. Only Delivered triggers
// rescheduling of the destination.
type DeliveryStatus int

const (
	// Delivered means the message was accepted into the destination
	// mailbox (or the channel's durable store, for AckChannelRequired).
	Delivered DeliveryStatus = iota
	// Backpressured means a bounded mailbox or channel rejected the
	// message due to capacity; the sender may retry.
	Backpressured
	// NotDelivered means the destination could not be resolved or the
	// channel failed outright.
	NotDelivered
	// DeadLetter means the message was routed to the system dead-letter
	// reactor because its destination reactor id did not resolve.
	DeadLetter
)

// String renders the DeliveryStatus name, mainly for logging.
func (s DeliveryStatus) String() string {
	switch s {
	case Delivered:
		return "DELIVERED"
	case Backpressured:
		return "BACKPRESSURED"
	case NotDelivered:
		return "NOT_DELIVERED"
	case DeadLetter:
		return "DEAD_LETTER"
	default:
		return "UNKNOWN"
	}
}

// Message is an immutable envelope. Once constructed via NewMessage it must
// not be mutated; the dispatcher and drivers pass the same pointer to
// multiple call sites (interceptors, the reaction table, the journal
// codec) and assume no torn reads.
type Message struct {
	Sequence    uint64
	Source      Ref
	Destination Ref
	Acking      AckPolicy
	Payload     any
}

// NewMessage builds a Message envelope. seq must come from a SequenceGenerator
// scoped to (source system, destination, channel) to satisfy the strictly
// increasing per-triple invariant (spec.md §3).
func NewMessage(seq uint64, source, destination Ref, acking AckPolicy, payload any) *Message {
	return &Message{
		Sequence:    seq,
		Source:      source,
		Destination: destination,
		Acking:      acking,
		Payload:     payload,
	}
}

// SequenceGenerator hands out strictly increasing sequence numbers for one
// (source, destination, channel) triple. The reactor system owns one
// generator per outbound triple it has seen; see system.go.
type SequenceGenerator struct {
	counter atomic.Uint64
}

// Next returns the next sequence number, starting at 1.
func (g *SequenceGenerator) Next() uint64 {
	return g.counter.Add(1)
}
