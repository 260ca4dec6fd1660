package reactor

import (
	"context"
	"sync"

	"go.uber.org/atomic"

	"github.com/tessel-systems/reactor/log"
)

// noCancelContext returns a background context for internal awaits that
// have no natural deadline of their own (e.g. bridging AsyncDeliver's
// Future into a reschedule without blocking the caller).
func noCancelContext() context.Context { return context.Background() }

// Context is the per-reactor runtime record (spec.md §4.2): mailbox, self
// reference, parent reference, children list, dispatcher handle,
// scheduling flag, coherence flag, structural lock, intercept rules, last
// message sender, stop flag, hierarchy-termination completion,
// message-execution counter, and reaction table.
//
// Grounded on actor/pid.go's field set (scheduling/processing flag,
// mailbox, watchers/children, behavior stack) generalized from the
// teacher's single concrete Actor-interface model to the spec's
// reaction-table model.
type Context struct {
	id     ID
	self   Ref
	parent Ref
	system *System
	logger log.Logger

	mailbox    Mailbox
	reactions  *ReactionTable
	intercepts *interceptRules

	// scheduling is the at-most-one-worker guard (spec.md §4.2/§4.3).
	scheduling atomic.Bool
	// coherence detects recursive dispatch attempts within the same
	// worker (GLOSSARY "Coherence flag") — it is set for the duration of
	// a reAct call and checked on entry.
	coherence atomic.Bool
	stopFlag  atomic.Bool
	state     atomic.Int32

	structuralMu sync.RWMutex
	children     []Ref // insertion order, mutated only under structuralMu

	lastSenderMu sync.Mutex
	lastSender   Ref

	hierarchyTermination *Completion
	executionCount        atomic.Uint64
}

// newContext builds a Context and registers it into system's arena. The
// caller (System.spawn) is responsible for appending it to the parent's
// children list and for delivering ReActorInit.
func newContext(id ID, parent Ref, system *System, mailbox Mailbox, reactions *ReactionTable) *Context {
	c := &Context{
		id:                    id,
		parent:                parent,
		system:                system,
		logger:                system.logger.With("reactor", id.String()),
		mailbox:               mailbox,
		reactions:             reactions,
		intercepts:            newInterceptRules(),
		hierarchyTermination:  NewCompletion(),
	}
	c.state.Store(int32(stateSpawned))
	c.self = Ref{ReactorID: id, SystemID: system.id, ChannelID: localChannelID, Driver: &localHandle{target: c, system: system}}
	return c
}

// ID returns the reactor identifier.
func (c *Context) ID() ID { return c.id }

// Self returns a Ref to this reactor.
func (c *Context) Self() Ref { return c.self }

// Parent returns a Ref to the parent reactor, or the zero Ref for a
// top-level reactor.
func (c *Context) Parent() Ref { return c.parent }

// Children returns a snapshot of the children list in insertion order.
func (c *Context) Children() []Ref {
	c.structuralMu.RLock()
	defer c.structuralMu.RUnlock()
	out := make([]Ref, len(c.children))
	copy(out, c.children)
	return out
}

// addChild appends ref to the children list under the structural
// write-lock (spec.md §3 invariant: "Children lists are mutated only
// under the parent's structural write-lock").
func (c *Context) addChild(ref Ref) {
	c.structuralMu.Lock()
	defer c.structuralMu.Unlock()
	c.children = append(c.children, ref)
}

// removeChild deletes ref from the children list, if present.
func (c *Context) removeChild(id ID) {
	c.structuralMu.Lock()
	defer c.structuralMu.Unlock()
	for i, child := range c.children {
		if child.ReactorID.Equal(id) {
			c.children = append(c.children[:i], c.children[i+1:]...)
			return
		}
	}
}

// SetIntercepts installs a wholesale-replacement set of intercept rules.
func (c *Context) SetIntercepts(rules []InterceptRule) {
	c.intercepts.Set(rules)
}

// LastSender returns the source ref of the most recently dispatched
// message.
func (c *Context) LastSender() Ref {
	c.lastSenderMu.Lock()
	defer c.lastSenderMu.Unlock()
	return c.lastSender
}

// ExecutionCount returns the number of messages this reactor has
// processed so far.
func (c *Context) ExecutionCount() uint64 {
	return c.executionCount.Load()
}

// acquireScheduling atomically transitions false->true, returning whether
// the caller now owns scheduling rights for this context.
func (c *Context) acquireScheduling() bool {
	return c.scheduling.CompareAndSwap(false, true)
}

// releaseScheduling releases scheduling rights.
func (c *Context) releaseScheduling() {
	c.scheduling.Store(false)
}

// Reschedule asks the dispatcher to consider this context for execution.
// Safe to call from any goroutine, including from within a handler
// (selfTell-driven re-scheduling) or from a driver's ingress loop.
func (c *Context) Reschedule() {
	c.system.dispatcher.Schedule(c)
}

// isStop reports whether the stop flag has been raised.
func (c *Context) isStop() bool {
	return c.stopFlag.Load()
}

// IsRunning reports whether the context has observed ReActorInit and not
// yet begun stopping.
func (c *Context) IsRunning() bool {
	return state(c.state.Load()) == stateRunning
}

// IsTerminated reports whether the context has fully torn down.
func (c *Context) IsTerminated() bool {
	return state(c.state.Load()) == stateTerminated
}

// Stop raises the stop flag, requests a reschedule so the dispatcher drains
// remaining messages and begins termination, and returns the
// hierarchy-termination completion the caller may await.
func (c *Context) Stop() (*Completion, error) {
	if !c.stopFlag.CompareAndSwap(false, true) {
		return c.hierarchyTermination, ErrAlreadyStopping
	}
	c.state.Store(int32(stateStopping))
	c.Reschedule()
	return c.hierarchyTermination, nil
}

// HierarchyTermination returns the completion that resolves once this
// context and every descendant have fully terminated.
func (c *Context) HierarchyTermination() *Completion {
	return c.hierarchyTermination
}

// SpawnChild delegates to the owning system, registering the new context
// as a child of c under c's structural write-lock on success (spec.md
// §4.2).
func (c *Context) SpawnChild(name string, reactions *ReactionTable, opts ...SpawnOption) (*Context, error) {
	return c.system.spawn(c.self, name, reactions, opts...)
}

// Tell sends payload from c to destination with AckNone.
func (c *Context) Tell(destination Ref, payload any) (DeliveryStatus, error) {
	return c.send(destination, AckNone, payload)
}

// Ask sends payload from c to destination requesting a delivery-status
// completion resolved as soon as the message reaches destination's mailbox
// (AckSenderRequired).
func (c *Context) Ask(destination Ref, payload any) (*Future, error) {
	return c.sendAsync(destination, AckSenderRequired, payload)
}

// AskChannel sends payload from c to destination requesting a
// delivery-status completion resolved only once the channel's own ack
// mechanism confirms the message (AckChannelRequired) — see
// SPEC_FULL.md §9 for the exact per-driver meaning of "confirmed". A
// driver that fronts a channel without a native commit-ack of its own
// (e.g. LocalDriver) satisfies this by tracking the message's sequence
// number through BaseDriver.TrackAck/CompleteAck around its delivery
// path instead.
func (c *Context) AskChannel(destination Ref, payload any) (*Future, error) {
	return c.sendAsync(destination, AckChannelRequired, payload)
}

// SelfTell sends payload to c's own reference — a common way for a handler
// to schedule follow-up work for itself.
func (c *Context) SelfTell(payload any) (DeliveryStatus, error) {
	return c.send(c.self, AckNone, payload)
}

func (c *Context) send(destination Ref, acking AckPolicy, payload any) (DeliveryStatus, error) {
	seq := c.system.sequenceFor(c.system.id, destination.ReactorID, destination.ChannelID).Next()
	msg := NewMessage(seq, c.self, destination, acking, payload)
	if destination.Driver == nil {
		return NotDelivered, ErrReactorNotFound
	}
	return destination.Driver.Deliver(msg)
}

func (c *Context) sendAsync(destination Ref, acking AckPolicy, payload any) (*Future, error) {
	seq := c.system.sequenceFor(c.system.id, destination.ReactorID, destination.ChannelID).Next()
	msg := NewMessage(seq, c.self, destination, acking, payload)
	if destination.Driver == nil {
		f := NewFuture()
		f.Complete(NotDelivered, ErrReactorNotFound)
		return f, nil
	}
	return destination.Driver.DeliverAsync(msg)
}

// reAct is invoked by the dispatcher only (spec.md §4.2). It records
// lastSender, looks up the handler for the payload's concrete type, and
// invokes it, recovering from any panic so a single bad message cannot
// take down the worker.
func (c *Context) reAct(msg *Message) {
	if !c.coherence.CompareAndSwap(false, true) {
		c.logger.Errorf("invariant violation: recursive dispatch detected for reactor %s, dropping message", c.id)
		return
	}
	defer c.coherence.Store(false)

	c.lastSenderMu.Lock()
	c.lastSender = msg.Source
	c.lastSenderMu.Unlock()

	c.intercepts.Observe(msg)

	switch msg.Payload.(type) {
	case ReActorInit:
		c.state.Store(int32(stateRunning))
	case ReActorStop:
		c.state.Store(int32(stateTerminated))
	}

	handler, ok := c.reactions.Lookup(msg.Payload)
	if !ok {
		c.logger.Warnf("unhandled message type for reactor %s", c.id)
		return
	}

	rc := &ReceiveContext{message: msg, owner: c}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Errorf("handler panic for reactor %s on message %T: %v", c.id, msg.Payload, r)
		}
	}()
	handler(rc)
	c.executionCount.Add(1)
}

// localChannelID names the in-process, direct-delivery channel every
// reactor's self-reference resolves through before any remote driver is
// wired in.
var localChannelID = ChannelID{Type: "local", Name: "direct"}

// localHandle is the in-process DriverHandle: Deliver enqueues directly
// into the target context's mailbox and reschedules it. This is the
// "direct-delivery sub-driver" spec.md §4.4 describes offerMessage
// forwarding through for local destinations.
type localHandle struct {
	target *Context
	system *System
}

func (h *localHandle) Deliver(msg *Message) (DeliveryStatus, error) {
	if h.system.isStopping() {
		if _, isSystemMsg := msg.Payload.(ReActorStop); !isSystemMsg {
			return NotDelivered, ErrSystemShuttingDown
		}
	}
	status := h.target.mailbox.Deliver(msg)
	if status == Delivered {
		h.target.Reschedule()
	}
	return status, nil
}

func (h *localHandle) DeliverAsync(msg *Message) (*Future, error) {
	f := h.target.mailbox.AsyncDeliver(msg)
	if f != nil {
		go func() {
			if status, _ := f.Await(noCancelContext()); status == Delivered {
				h.target.Reschedule()
			}
		}()
	}
	return f, nil
}
