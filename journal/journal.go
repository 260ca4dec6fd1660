package journal

import (
	"context"
	"fmt"

	"github.com/tessel-systems/reactor/driver"
	"github.com/tessel-systems/reactor/log"
	"github.com/tessel-systems/reactor/reactor"
)

// Driver is the Local Journal Driver (spec.md §4.4/§4.5): a durable,
// append-only channel backed by one bbolt bucket, with its own ingress
// tailer goroutine. ChannelRequiresDeliveryAck is true — a message is
// considered acknowledged once its append transaction commits, which is
// the exact per-driver definition SPEC_FULL.md §9 settles on for this
// channel.
type Driver struct {
	*driver.BaseDriver
	store   *Store
	channel reactor.ChannelID
	tailer  *tailer
	cancel  context.CancelFunc
}

// New constructs a journal Driver for channel against store. The caller
// owns store's lifetime (it may be shared across several channels) and
// must call InitDriverLoop before using the driver.
func New(store *Store, channel reactor.ChannelID, system *reactor.System, logger log.Logger) *Driver {
	return &Driver{
		BaseDriver: driver.NewBaseDriver(system, logger),
		store:      store,
		channel:    channel,
	}
}

// InitDriverLoop ensures this channel's bucket exists and constructs its
// tailer, positioned at the bucket's current end so messages appended
// before this driver started are not replayed (spec.md §4.5 ingress step
// 1). It does not start the ingress loop — DriverLoop's returned function
// does that, per the Driver contract's separation of init from run
// (spec.md §6).
func (d *Driver) InitDriverLoop(ctx context.Context, system *reactor.System) error {
	d.System = system
	if err := d.store.ensureBucket(d.channel.String()); err != nil {
		return &driver.ErrChannelInit{Channel: d.channel, Cause: err}
	}
	startAfter, err := d.store.maxSeq(d.channel.String())
	if err != nil {
		return &driver.ErrChannelInit{Channel: d.channel, Cause: err}
	}
	d.tailer = newTailer(d.store, d.channel.String(), startAfter, d.OfferMessage, d.Logger)
	return nil
}

// DriverLoop returns the ingress run function: the tailer's poll loop,
// executed by a dedicated goroutine (never a dispatcher worker) until ctx
// is cancelled.
func (d *Driver) DriverLoop() func(ctx context.Context) {
	return func(ctx context.Context) {
		runCtx, cancel := context.WithCancel(ctx)
		d.cancel = cancel
		d.tailer.run(runCtx)
	}
}

// ChannelID returns this driver's channel.
func (d *Driver) ChannelID() reactor.ChannelID { return d.channel }

// ChannelProperties reports the backing store's file path.
func (d *Driver) ChannelProperties() map[string]string {
	return map[string]string{"transport": "journal", "path": d.store.path}
}

// SendMessage appends msg to this channel's bucket (egress). The append
// transaction's commit is itself the delivery acknowledgment this channel
// provides — once Update returns without error, the message is durable.
func (d *Driver) SendMessage(ctx context.Context, destination reactor.ID, msg *reactor.Message) (reactor.DeliveryStatus, error) {
	msg.Destination.ReactorID = destination
	raw, err := encodeMessage(msg)
	if err != nil {
		return reactor.NotDelivered, fmt.Errorf("journal: encoding message: %w", err)
	}
	if err := d.store.append(d.channel.String(), msg.Sequence, raw); err != nil {
		return reactor.NotDelivered, fmt.Errorf("journal: appending message: %w", err)
	}
	return reactor.Delivered, nil
}

// SendAsyncMessage appends msg without blocking the caller beyond the act
// of enqueueing the append.
func (d *Driver) SendAsyncMessage(ctx context.Context, destination reactor.ID, msg *reactor.Message) (*reactor.Future, error) {
	f := reactor.NewFuture()
	go func() {
		status, err := d.SendMessage(ctx, destination, msg)
		f.Complete(status, err)
	}()
	return f, nil
}

// ChannelRequiresDeliveryAck is true: bbolt's transaction commit is this
// channel's native ack (SPEC_FULL.md §9).
func (d *Driver) ChannelRequiresDeliveryAck() bool { return true }

// CleanDriverLoop stops the ingress loop. It does not close the shared
// Store — the caller that opened it owns its lifetime, since several
// channel drivers may share one store.
func (d *Driver) CleanDriverLoop(ctx context.Context) error {
	if d.cancel != nil {
		d.cancel()
	}
	return nil
}
