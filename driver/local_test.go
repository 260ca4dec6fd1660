package driver

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessel-systems/reactor/log"
	"github.com/tessel-systems/reactor/reactor"
)

func newTestSystem(t *testing.T) *reactor.System {
	t.Helper()
	sys := reactor.NewSystem("driver-test", reactor.WithLogger(log.Discard()))
	require.NoError(t, sys.Start(context.Background()))
	t.Cleanup(func() { _ = sys.Shutdown(context.Background()) })
	return sys
}

func TestLocalDriver_DeliversToResolvedID(t *testing.T) {
	sys := newTestSystem(t)
	drv := NewLocalDriver(sys, log.Discard())
	require.NoError(t, drv.InitDriverLoop(context.Background(), sys))

	var wg sync.WaitGroup
	wg.Add(1)
	var got string
	reactions := reactor.NewReactionTable().On("", func(rc *reactor.ReceiveContext) {
		got = rc.Payload().(string)
		wg.Done()
	})
	target, err := sys.Spawn("target", reactions)
	require.NoError(t, err)

	ref := drv.RefTo(target.ID())
	status, err := ref.Driver.Deliver(reactor.NewMessage(1, reactor.NoSender, ref, reactor.AckNone, "hello"))
	require.NoError(t, err)
	assert.Equal(t, reactor.Delivered, status)

	waitOrTimeout(t, &wg, time.Second)
	assert.Equal(t, "hello", got)
}

func TestLocalDriver_DeadLettersUnresolvedID(t *testing.T) {
	sys := newTestSystem(t)
	drv := NewLocalDriver(sys, log.Discard())
	require.NoError(t, drv.InitDriverLoop(context.Background(), sys))

	ghost := reactor.NewID("ghost")
	ref := drv.RefTo(ghost)

	status, err := ref.Driver.Deliver(reactor.NewMessage(1, reactor.NoSender, ref, reactor.AckNone, "lost"))
	require.NoError(t, err)
	assert.Equal(t, reactor.DeadLetter, status)
}

// TestLocalDriver_AckChannelRequiredTracksThroughDeliverAsync exercises the
// production AckChannelRequired path: DeliverAsync itself calls TrackAck
// before offering the message, rather than a test calling TrackAck by
// hand, and the Future it returns resolves from OfferMessage's CompleteAck
// call.
func TestLocalDriver_AckChannelRequiredTracksThroughDeliverAsync(t *testing.T) {
	sys := newTestSystem(t)
	drv := NewLocalDriver(sys, log.Discard())
	require.NoError(t, drv.InitDriverLoop(context.Background(), sys))

	reactions := reactor.NewReactionTable().On("", func(rc *reactor.ReceiveContext) {})
	target, err := sys.Spawn("ack-target", reactions)
	require.NoError(t, err)

	ref := drv.RefTo(target.ID())
	msg := reactor.NewMessage(42, reactor.NoSender, ref, reactor.AckChannelRequired, "ping")

	f, err := ref.Driver.DeliverAsync(msg)
	require.NoError(t, err)

	gotStatus, err := f.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, reactor.Delivered, gotStatus)
}

// TestLocalDriver_AckChannelRequiredTracksThroughDeliver exercises the
// synchronous counterpart: Deliver tracks the sequence number before
// offering even though its caller already receives the status directly,
// so a concurrent CompleteAck call for the same sequence is never a no-op
// racing an unregistered entry.
func TestLocalDriver_AckChannelRequiredTracksThroughDeliver(t *testing.T) {
	sys := newTestSystem(t)
	drv := NewLocalDriver(sys, log.Discard())
	require.NoError(t, drv.InitDriverLoop(context.Background(), sys))

	reactions := reactor.NewReactionTable().On("", func(rc *reactor.ReceiveContext) {})
	target, err := sys.Spawn("ack-target-sync", reactions)
	require.NoError(t, err)

	ref := drv.RefTo(target.ID())
	msg := reactor.NewMessage(7, reactor.NoSender, ref, reactor.AckChannelRequired, "ping")

	status, err := ref.Driver.Deliver(msg)
	require.NoError(t, err)
	assert.Equal(t, reactor.Delivered, status)
}

func TestLocalDriver_ChannelRequiresDeliveryAckIsFalse(t *testing.T) {
	sys := newTestSystem(t)
	drv := NewLocalDriver(sys, log.Discard())
	assert.False(t, drv.ChannelRequiresDeliveryAck())
}

func TestLocalDriver_ChannelProperties(t *testing.T) {
	sys := newTestSystem(t)
	drv := NewLocalDriver(sys, log.Discard())
	props := drv.ChannelProperties()
	assert.Equal(t, "in-process", props["transport"])
}

func waitOrTimeout(t *testing.T, wg *sync.WaitGroup, timeout time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal("timed out waiting for condition")
	}
}
