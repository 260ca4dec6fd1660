package journal

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tessel-systems/reactor/internal/backoff"
	"github.com/tessel-systems/reactor/log"
	"github.com/tessel-systems/reactor/reactor"
)

// tailFloor and tailCeiling are the idle-backoff bounds for the journal's
// ingress poll loop (spec.md §4.5 step 2): short enough to keep tail
// latency low under load, long enough not to spin the CPU while idle.
const (
	tailFloor   = time.Millisecond
	tailCeiling = 200 * time.Millisecond
)

// tailer is the ingress half of a channel's journal: it remembers the last
// sequence number it has read and polls the store for anything newer.
// startAfter positions it at the journal's current end at construction
// time, so messages appended before this tailer existed are never
// replayed (spec.md §4.5 ingress step 1).
type tailer struct {
	store    *Store
	channel  string
	offer    func(msg *reactor.Message) (reactor.DeliveryStatus, error)
	logger   log.Logger
	lastRead uint64
	pauser   *backoff.Pauser
}

func newTailer(store *Store, channel string, startAfter uint64, offer func(msg *reactor.Message) (reactor.DeliveryStatus, error), logger log.Logger) *tailer {
	return &tailer{
		store:    store,
		channel:  channel,
		offer:    offer,
		logger:   logger,
		lastRead: startAfter,
		pauser:   backoff.New(tailFloor, tailCeiling),
	}
}

// run is the ingress loop body: scan forward from lastRead, offer every
// decoded message, advance lastRead past the highest sequence seen, then
// idle-backoff if nothing new was found.
func (t *tailer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		found := false
		err := t.store.scanFrom(t.channel, t.lastRead, func(seq uint64, raw []byte) bool {
			found = true
			t.lastRead = seq
			env, decodeErr := decodeMessage(raw)
			if decodeErr != nil {
				t.logger.Warnf("journal: skipping undecodable entry seq=%d channel=%s: %v", seq, t.channel, decodeErr)
				return true
			}
			var payload any
			if decodeErr := decodePayload(env.PayloadBytes, &payload); decodeErr != nil {
				t.logger.Warnf("journal: skipping entry with undecodable payload seq=%d channel=%s: %v", seq, t.channel, decodeErr)
				return true
			}
			msg := reactor.NewMessage(env.Sequence, reactor.NoSender, reactor.Ref{}, reactor.AckNone, payload)
			msg.Destination.ReactorID = reactorIDFromString(env.DestReactorID)
			if _, offerErr := t.offer(msg); offerErr != nil {
				t.logger.Warnf("journal: offering message seq=%d channel=%s: %v", seq, t.channel, offerErr)
			}
			return true
		})
		if err != nil {
			t.logger.Warnf("journal: scanning channel %s: %v", t.channel, err)
		}

		if found {
			t.pauser.Reset()
			continue
		}
		t.pauser.Pause()
	}
}

// reactorIDFromString recovers an ID's UUID component from its String()
// rendering ("<name>#<uuid>") well enough to drive a system Lookup; the
// Name portion is cosmetic and not required for identity comparisons
// (ID.Equal compares UUID only).
func reactorIDFromString(s string) reactor.ID {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '#' {
			name := s[:i]
			parsed, err := uuid.Parse(s[i+1:])
			if err == nil {
				return reactor.ID{UUID: parsed, Name: name}
			}
			break
		}
	}
	return reactor.ID{}
}
