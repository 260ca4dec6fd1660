package reactor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/atomic"

	"github.com/tessel-systems/reactor/internal/xsync"
	"github.com/tessel-systems/reactor/log"
)

// System is the process-wide, explicitly constructed reactor system
// (spec.md §9: "construct once, pass a handle, tear down in reverse order
// of driver registration. No ambient singletons."). It owns the reactor
// arena (an id -> Context table, grounded on actor/actor_system.go's
// registry-of-PIDs pattern), the dispatcher, and the dead-letter reactor.
type System struct {
	id     SystemID
	logger log.Logger

	arena      *xsync.Map[string, *Context]
	sequences  *xsync.Map[string, *SequenceGenerator]
	dispatcher *Dispatcher

	deadLetter *Context

	workerShards      int
	dispatchBatch     int
	workerIdleTimeout time.Duration

	stopping atomic.Bool
	started  atomic.Bool
}

// NewSystem constructs a System under the given name. Call Start before
// spawning reactors.
func NewSystem(name string, opts ...Option) *System {
	s := &System{
		id:                NewSystemID(name),
		logger:            log.New(),
		arena:             xsync.NewMap[string, *Context](),
		sequences:         xsync.NewMap[string, *SequenceGenerator](),
		workerShards:      4,
		dispatchBatch:     32,
		workerIdleTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt.apply(s)
	}
	s.dispatcher = newDispatcher(s.logger, s.workerShards, s.dispatchBatch, s.workerIdleTimeout)
	return s
}

// ID returns the system's identity.
func (s *System) ID() SystemID { return s.id }

// Logger returns the system's configured logger.
func (s *System) Logger() log.Logger { return s.logger }

// Start boots the dispatcher's worker pool and the dead-letter reactor.
// Safe to call once; subsequent calls are no-ops.
func (s *System) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return nil
	}
	s.dispatcher.start()

	reactions := NewReactionTable().
		OnUnhandled(func(rc *ReceiveContext) {
			if dm, ok := rc.Payload().(*DeadMessage); ok {
				s.logger.Warnf("dead letter: %T from %s", dm.OriginalPayload, dm.OriginalSender.ReactorID)
			}
		})
	dl, err := s.spawn(NoSender, "dead-letter", reactions)
	if err != nil {
		return fmt.Errorf("reactor: spawning dead-letter reactor: %w", err)
	}
	s.deadLetter = dl
	return nil
}

// DeadLetterRef returns a Ref to the system dead-letter reactor.
func (s *System) DeadLetterRef() Ref {
	if s.deadLetter == nil {
		return NoSender
	}
	return s.deadLetter.Self()
}

// isStopping reports whether Shutdown has begun.
func (s *System) isStopping() bool { return s.stopping.Load() }

// Spawn creates a top-level reactor with no parent.
func (s *System) Spawn(name string, reactions *ReactionTable, opts ...SpawnOption) (*Context, error) {
	return s.spawn(NoSender, name, reactions, opts...)
}

func (s *System) spawn(parent Ref, name string, reactions *ReactionTable, opts ...SpawnOption) (*Context, error) {
	if name == "" {
		return nil, ErrNameRequired
	}
	cfg := &spawnConfig{mailbox: NewUnboundedMailbox()}
	for _, opt := range opts {
		opt.apply(cfg)
	}

	id := NewID(name)
	ctx := newContext(id, parent, s, cfg.mailbox, reactions)

	if _, loaded := s.arena.LoadOrStore(id.UUID.String(), ctx); loaded {
		return nil, ErrDuplicateReactorID
	}

	if !parent.IsZero() {
		if parentCtx, ok := s.arena.Load(parent.ReactorID.UUID.String()); ok {
			parentCtx.addChild(ctx.Self())
		}
	}

	// Deliver the synthetic init message as the reactor's first message.
	ctx.mailbox.Deliver(NewMessage(0, NoSender, ctx.Self(), AckNone, ReActorInit{}))
	ctx.Reschedule()

	return ctx, nil
}

// Lookup resolves a reactor id to its Context within this system, or
// (nil, false) if it is not registered — the "destination missing" case
// spec.md §4.4's offerMessage routes to the dead-letter reactor.
func (s *System) Lookup(id ID) (*Context, bool) {
	return s.arena.Load(id.UUID.String())
}

// unregister removes id from the arena. Called once a context has fully
// terminated.
func (s *System) unregister(id ID) {
	s.arena.Delete(id.UUID.String())
}

// sequenceFor returns the monotonic SequenceGenerator for one (source
// system, destination reactor, channel) triple, creating it on first use.
// Strictly increasing sequence numbers per triple is a spec.md §3
// invariant.
func (s *System) sequenceFor(source SystemID, destination ID, channel ChannelID) *SequenceGenerator {
	key := source.UUID.String() + "|" + destination.UUID.String() + "|" + channel.String()
	gen, _ := s.sequences.LoadOrStore(key, &SequenceGenerator{})
	return gen
}

// Shutdown stops every top-level reactor and awaits full hierarchy
// termination before stopping the dispatcher's worker pool. New sends
// observe isStopping() and are rejected with ErrSystemShuttingDown once
// this has been called.
func (s *System) Shutdown(ctx context.Context) error {
	if !s.stopping.CompareAndSwap(false, true) {
		return nil
	}

	var completions []*Completion
	s.arena.Range(func(_ string, c *Context) bool {
		if c.Parent().IsZero() {
			completion, err := c.Stop()
			if err != nil && err != ErrAlreadyStopping {
				s.logger.Warnf("stopping reactor %s: %v", c.ID(), err)
			}
			completions = append(completions, completion)
		}
		return true
	})

	for _, completion := range completions {
		if err := completion.Await(ctx); err != nil {
			s.logger.Warnf("awaiting hierarchy termination: %v", err)
		}
	}

	s.dispatcher.stop()
	return nil
}
