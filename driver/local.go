package driver

import (
	"context"

	"github.com/tessel-systems/reactor/log"
	"github.com/tessel-systems/reactor/reactor"
)

// LocalDriver is the Driver for the "local" channel: delivery resolved by
// a fresh reactor-id lookup against the system's arena on every send,
// rather than a Context pointer captured at Ref-construction time. Use it
// to address a reactor you only know the ID of — including ids that turn
// out not to exist, which is what routes a message to the dead-letter
// reactor (spec.md §4.4, the "Dead letter" scenario in §8).
//
// Context.Self() already returns a Ref bound directly to its own context
// (see reactor.localHandle) for the common case of a reactor holding its
// own reference; LocalDriver exists for the remaining case of a Ref built
// from an ID alone.
type LocalDriver struct {
	*BaseDriver
	channel reactor.ChannelID
}

var localChannel = reactor.ChannelID{Type: "local", Name: "lookup"}

// NewLocalDriver constructs the local lookup-based driver for system.
func NewLocalDriver(system *reactor.System, logger log.Logger) *LocalDriver {
	return &LocalDriver{
		BaseDriver: NewBaseDriver(system, logger),
		channel:    localChannel,
	}
}

// InitDriverLoop is a no-op: the local channel has no external resource to
// acquire.
func (d *LocalDriver) InitDriverLoop(ctx context.Context, system *reactor.System) error {
	d.System = system
	return nil
}

// DriverLoop returns a no-op ingress loop: local delivery happens
// synchronously inside SendMessage/SendAsyncMessage, there is nothing to
// tail.
func (d *LocalDriver) DriverLoop() func(ctx context.Context) {
	return func(ctx context.Context) { <-ctx.Done() }
}

// ChannelID identifies this driver's channel.
func (d *LocalDriver) ChannelID() reactor.ChannelID { return d.channel }

// ChannelProperties reports no transport-specific metadata.
func (d *LocalDriver) ChannelProperties() map[string]string {
	return map[string]string{"transport": "in-process"}
}

// SendMessage resolves destination against the system arena and delivers
// synchronously, dead-lettering on a miss.
func (d *LocalDriver) SendMessage(ctx context.Context, destination reactor.ID, msg *reactor.Message) (reactor.DeliveryStatus, error) {
	msg.Destination.ReactorID = destination
	return d.OfferMessage(msg)
}

// SendAsyncMessage resolves and delivers destination's message without
// blocking the caller beyond enqueueing it.
func (d *LocalDriver) SendAsyncMessage(ctx context.Context, destination reactor.ID, msg *reactor.Message) (*reactor.Future, error) {
	msg.Destination.ReactorID = destination
	f := reactor.NewFuture()
	go func() {
		status, err := d.OfferMessage(msg)
		f.Complete(status, err)
	}()
	return f, nil
}

// ChannelRequiresDeliveryAck is false: the local channel has no native ack,
// BaseDriver's pending-ack table stands in for one when a sender asks for
// AckChannelRequired.
func (d *LocalDriver) ChannelRequiresDeliveryAck() bool { return false }

// CleanDriverLoop is a no-op.
func (d *LocalDriver) CleanDriverLoop(ctx context.Context) error { return nil }

// RefTo builds a Ref addressing reactorID through this driver, resolved
// dynamically on every delivery rather than bound to a live Context. This
// is how a caller constructs a reference to a reactor id it only knows by
// value — including ids that never resolve, which dead-letters.
func (d *LocalDriver) RefTo(reactorID reactor.ID) reactor.Ref {
	return reactor.Ref{
		ReactorID: reactorID,
		SystemID:  d.System.ID(),
		ChannelID: d.channel,
		Driver:    &localLookupHandle{driver: d, id: reactorID},
	}
}

// localLookupHandle adapts LocalDriver's by-id OfferMessage into the
// reactor.DriverHandle contract a Ref carries.
type localLookupHandle struct {
	driver *LocalDriver
	id     reactor.ID
}

// Deliver forwards msg to OfferMessage. When the sender requested
// AckChannelRequired, the sequence number is tracked first (per
// BaseDriver.TrackAck's contract: before the egress append, so there is
// no window where the ack could arrive before the entry exists) even
// though the synchronous caller here already gets its status back
// directly; OfferMessage's own CompleteAck call resolves and discards the
// tracked entry regardless of whether anything is awaiting it.
func (h *localLookupHandle) Deliver(msg *reactor.Message) (reactor.DeliveryStatus, error) {
	msg.Destination.ReactorID = h.id
	if msg.Acking == reactor.AckChannelRequired {
		h.driver.TrackAck(msg.Sequence)
	}
	return h.driver.OfferMessage(msg)
}

// DeliverAsync is the async counterpart. When the sender requested
// AckChannelRequired, the returned Future is the one BaseDriver.TrackAck
// hands back, resolved by OfferMessage's CompleteAck call on the channel's
// own ack path rather than by a future constructed ad hoc here.
func (h *localLookupHandle) DeliverAsync(msg *reactor.Message) (*reactor.Future, error) {
	msg.Destination.ReactorID = h.id
	if msg.Acking == reactor.AckChannelRequired {
		f := h.driver.TrackAck(msg.Sequence)
		go h.driver.OfferMessage(msg)
		return f, nil
	}
	f := reactor.NewFuture()
	go func() {
		status, err := h.driver.OfferMessage(msg)
		f.Complete(status, err)
	}()
	return f, nil
}
