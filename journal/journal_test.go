package journal

import (
	"context"
	"path/filepath"
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
	sys := reactor.NewSystem("journal-test", reactor.WithLogger(log.Discard()))
	require.NoError(t, sys.Start(context.Background()))
	t.Cleanup(func() { _ = sys.Shutdown(context.Background()) })
	return sys
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

// TestJournalDriver_LocalEchoRoundTrip exercises the "Local-echo via
// journal" scenario: a message appended on the egress side is observed by
// the ingress tailer and offered to the destination reactor.
func TestJournalDriver_LocalEchoRoundTrip(t *testing.T) {
	sys := newTestSystem(t)
	store, err := OpenStore(filepath.Join(t.TempDir(), "echo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	channel := reactor.ChannelID{Type: "journal", Name: "echo"}
	jd := New(store, channel, sys, log.Discard())
	require.NoError(t, jd.InitDriverLoop(context.Background(), sys))

	loopCtx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go jd.DriverLoop()(loopCtx)

	var wg sync.WaitGroup
	wg.Add(1)
	var got []byte
	reactions := reactor.NewReactionTable().On([]byte(nil), func(rc *reactor.ReceiveContext) {
		got = rc.Payload().([]byte)
		wg.Done()
	})
	target, err := sys.Spawn("echo-target", reactions)
	require.NoError(t, err)

	seq := uint64(1)
	msg := reactor.NewMessage(seq, reactor.NoSender, reactor.Ref{ReactorID: target.ID()}, reactor.AckChannelRequired, []byte("ping"))
	status, err := jd.SendMessage(context.Background(), target.ID(), msg)
	require.NoError(t, err)
	assert.Equal(t, reactor.Delivered, status)

	waitOrTimeout(t, &wg, 2*time.Second)
	assert.Equal(t, []byte("ping"), got)
}

// TestJournalDriver_NoReplayOnRestart exercises spec.md §4.5 ingress step 1
// ("messages predating driver start are NOT replayed") and Testable
// Scenario 4: a tailer opened against a channel that already has entries
// must not observe any of them, only what's appended after it starts; a
// second tailer opened later (simulating a process restart) must likewise
// skip everything appended before it, not before the channel's creation.
func TestJournalDriver_NoReplayOnRestart(t *testing.T) {
	store, err := OpenStore(filepath.Join(t.TempDir(), "replay.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	channel := reactor.ChannelID{Type: "journal", Name: "replay"}
	require.NoError(t, store.ensureBucket(channel.String()))
	target := reactor.NewID("replay-target")

	appendRaw := func(seq uint64) {
		msg := reactor.NewMessage(seq, reactor.NoSender, reactor.Ref{ReactorID: target}, reactor.AckNone, []byte("x"))
		raw, err := encodeMessage(msg)
		require.NoError(t, err)
		require.NoError(t, store.append(channel.String(), seq, raw))
	}

	// Three messages exist before any tailer has ever run against this
	// channel (e.g. written by a peer, or left over from a crash before
	// the ingress loop started).
	appendRaw(1)
	appendRaw(2)
	appendRaw(3)

	newOfferRecorder := func() (func(msg *reactor.Message) (reactor.DeliveryStatus, error), func() []uint64) {
		var mu sync.Mutex
		var seen []uint64
		offer := func(msg *reactor.Message) (reactor.DeliveryStatus, error) {
			mu.Lock()
			seen = append(seen, msg.Sequence)
			mu.Unlock()
			return reactor.Delivered, nil
		}
		snapshot := func() []uint64 {
			mu.Lock()
			defer mu.Unlock()
			return append([]uint64(nil), seen...)
		}
		return offer, snapshot
	}

	startAfter, err := store.maxSeq(channel.String())
	require.NoError(t, err)
	require.EqualValues(t, 3, startAfter)

	firstOffer, firstSeen := newOfferRecorder()
	tl := newTailer(store, channel.String(), startAfter, firstOffer, log.Discard())
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	tl.run(ctx)
	cancel()
	assert.Empty(t, firstSeen(), "tailer positioned at the journal's end must not replay pre-existing entries")

	// A message appended while this tailer is "live" is observed normally.
	appendRaw(4)
	secondOffer, secondSeen := newOfferRecorder()
	tl2 := newTailer(store, channel.String(), startAfter, secondOffer, log.Discard())
	ctx2, cancel2 := context.WithTimeout(context.Background(), 200*time.Millisecond)
	tl2.run(ctx2)
	cancel2()
	assert.Equal(t, []uint64{4}, secondSeen())

	// Simulate a process restart: a brand-new tailer seeks to the current
	// end (now 4) rather than reusing the stale startAfter from before.
	restartAfter, err := store.maxSeq(channel.String())
	require.NoError(t, err)
	require.EqualValues(t, 4, restartAfter)

	appendRaw(5)
	thirdOffer, thirdSeen := newOfferRecorder()
	tl3 := newTailer(store, channel.String(), restartAfter, thirdOffer, log.Discard())
	ctx3, cancel3 := context.WithTimeout(context.Background(), 200*time.Millisecond)
	tl3.run(ctx3)
	cancel3()
	assert.Equal(t, []uint64{5}, thirdSeen(), "restart must not replay seq 1-4, only what's appended after it")
}

// TestJournalDriver_InitDriverLoopSeeksToEnd exercises the same invariant
// through the public Driver surface Testable Scenario 4 describes: a
// driver opened against a channel with pre-existing entries must not
// re-offer them once its ingress loop starts.
func TestJournalDriver_InitDriverLoopSeeksToEnd(t *testing.T) {
	sys := newTestSystem(t)
	store, err := OpenStore(filepath.Join(t.TempDir(), "restart.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	channel := reactor.ChannelID{Type: "journal", Name: "restart"}
	require.NoError(t, store.ensureBucket(channel.String()))

	target := reactor.NewID("restart-target")
	for i := uint64(1); i <= 3; i++ {
		msg := reactor.NewMessage(i, reactor.NoSender, reactor.Ref{ReactorID: target}, reactor.AckNone, []byte("x"))
		raw, err := encodeMessage(msg)
		require.NoError(t, err)
		require.NoError(t, store.append(channel.String(), i, raw))
	}

	jd := New(store, channel, sys, log.Discard())
	require.NoError(t, jd.InitDriverLoop(context.Background(), sys))
	assert.EqualValues(t, 3, jd.tailer.lastRead, "InitDriverLoop must seek the tailer past every pre-existing entry")

	loopCtx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	jd.DriverLoop()(loopCtx)
}
