// Package driver implements the abstract Driver contract (spec.md §4.4):
// ingress/egress for one channel, ack tracking for channels that don't
// natively provide one, and dead-letter routing for unresolved
// destinations. LocalDriver (local.go) is the direct in-process
// implementation; journal.Driver and the registry drivers build on the
// same BaseDriver ack-tracking plumbing for channels that cross a process
// boundary.
package driver

import (
	"context"
	"fmt"

	"go.uber.org/atomic"

	"github.com/tessel-systems/reactor/internal/xsync"
	"github.com/tessel-systems/reactor/log"
	"github.com/tessel-systems/reactor/reactor"
)

// Driver is the contract consumed by the reactor system for one channel
// (spec.md §6).
type Driver interface {
	// InitDriverLoop acquires whatever resources the ingress loop needs
	// (tailers, sockets, subscriptions). Init failure is fatal for this
	// driver only — other channels keep operating (spec.md §7 rule 4).
	InitDriverLoop(ctx context.Context, system *reactor.System) error
	// DriverLoop returns the ingress run function, executed by a
	// dedicated goroutine, never a dispatcher worker (spec.md §5).
	DriverLoop() func(ctx context.Context)
	// ChannelID identifies the channel this driver owns.
	ChannelID() reactor.ChannelID
	// ChannelProperties exposes transport-specific metadata (e.g. host,
	// durability flags) for publication by the registry control plane.
	ChannelProperties() map[string]string
	// SendMessage is the synchronous egress path.
	SendMessage(ctx context.Context, destination reactor.ID, msg *reactor.Message) (reactor.DeliveryStatus, error)
	// SendAsyncMessage is the asynchronous egress path; it never blocks
	// the caller beyond the act of enqueueing the send.
	SendAsyncMessage(ctx context.Context, destination reactor.ID, msg *reactor.Message) (*reactor.Future, error)
	// ChannelRequiresDeliveryAck reports whether the channel itself
	// durably acknowledges delivery (journal commit, broker ack), as
	// opposed to this driver having to synthesize one.
	ChannelRequiresDeliveryAck() bool
	// CleanDriverLoop releases every resource InitDriverLoop acquired.
	// Idempotent; called on every exit path.
	CleanDriverLoop(ctx context.Context) error
}

// BaseDriver provides the ack-tracking and dead-letter-routing plumbing
// shared by every concrete Driver. Concrete drivers embed it and call
// offerMessage from their ingress loop.
//
// Grounded on actor/pid.go's registerRequestState/completeRequest pair
// (a pending-completion table keyed by correlation id), generalized here
// to key by message sequence number as spec.md §4.4 specifies.
type BaseDriver struct {
	System     *reactor.System
	Logger     log.Logger
	pendingAck *xsync.Map[uint64, *reactor.Future]
	spurious   atomic.Int64
}

// NewBaseDriver constructs the shared ack-tracking state for one driver
// instance bound to system.
func NewBaseDriver(system *reactor.System, logger log.Logger) *BaseDriver {
	return &BaseDriver{
		System:     system,
		Logger:     logger,
		pendingAck: xsync.NewMap[uint64, *reactor.Future](),
	}
}

// TrackAck registers a pending-ack entry for msg's sequence number and
// returns the Future that resolves once OfferMessage (or a channel-native
// ack) completes it. Call this before the egress append so there is no
// window where the ack could arrive before the entry exists.
func (b *BaseDriver) TrackAck(seq uint64) *reactor.Future {
	f := reactor.NewFuture()
	b.pendingAck.Store(seq, f)
	return f
}

// CompleteAck resolves and removes the pending-ack entry for seq, if one
// exists. Safe to call even when no sender requested an ack (no-op).
func (b *BaseDriver) CompleteAck(seq uint64, status reactor.DeliveryStatus, err error) {
	if f, ok := b.pendingAck.LoadAndDelete(seq); ok {
		f.Complete(status, err)
	}
}

// OfferMessage implements spec.md §4.4's offerMessage: look up the
// destination by reactor id; if present, forward into its mailbox and
// reschedule; if absent, dead-letter the payload and fail the pending ack
// with NotDelivered.
func (b *BaseDriver) OfferMessage(msg *reactor.Message) (reactor.DeliveryStatus, error) {
	destCtx, ok := b.System.Lookup(msg.Destination.ReactorID)
	if !ok {
		b.CompleteAck(msg.Sequence, reactor.NotDelivered, nil)
		b.routeToDeadLetter(msg)
		return reactor.DeadLetter, nil
	}

	status, err := destCtx.Self().Driver.Deliver(msg)
	b.CompleteAck(msg.Sequence, status, err)
	return status, err
}

func (b *BaseDriver) routeToDeadLetter(msg *reactor.Message) {
	deadRef := b.System.DeadLetterRef()
	if deadRef.Driver == nil {
		b.Logger.Warnf("no dead-letter reactor registered; dropping message for %s", msg.Destination.ReactorID)
		return
	}
	seq := uint64(0)
	letter := reactor.NewMessage(seq, msg.Source, deadRef, reactor.AckNone, &reactor.DeadMessage{
		OriginalPayload: msg.Payload,
		OriginalSender:  msg.Source,
	})
	if _, err := deadRef.Driver.Deliver(letter); err != nil {
		b.Logger.Warnf("delivering to dead-letter reactor: %v", err)
	}
}

// RecordSpurious increments the spurious-message counter (GLOSSARY;
// spec.md §9 open question: counted but not rate-limited in the core).
func (b *BaseDriver) RecordSpurious() int64 {
	return b.spurious.Add(1)
}

// SpuriousCount returns the number of spurious messages observed so far.
func (b *BaseDriver) SpuriousCount() int64 {
	return b.spurious.Load()
}

// ErrChannelInit wraps a channel initialization failure with the channel
// id that failed, so a System can log which channel degraded without
// treating it as fatal to the whole process (spec.md §7 rule 4).
type ErrChannelInit struct {
	Channel reactor.ChannelID
	Cause   error
}

func (e *ErrChannelInit) Error() string {
	return fmt.Sprintf("driver: channel %s init failed: %v", e.Channel, e.Cause)
}

func (e *ErrChannelInit) Unwrap() error { return e.Cause }
