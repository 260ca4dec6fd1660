package registry

import (
	"fmt"
	"sync/atomic"

	"github.com/tessel-systems/reactor/log"
	"github.com/tessel-systems/reactor/reactor"
)

// ChannelPublication is one local channel this system advertises through
// every registry driver, supplied to Spawn.
type ChannelPublication struct {
	ChannelID  reactor.ChannelID
	Properties map[string]string
}

// RemotingRoot is the system reactor spec.md §4.6 describes: it publishes
// this system's channels, subscribes to peer changes via one or more
// RegistryDriver children, and maintains the RoutingTable those events
// converge into. It has no exported reaction surface of its own — every
// interaction happens through the reactor messages in messages.go.
type RemotingRoot struct {
	ctx           *reactor.Context
	system        *reactor.System
	localSystemID reactor.SystemID
	localChannels []ChannelPublication
	table         *RoutingTable
	logger        log.Logger
	spurious      atomic.Int64
}

// Table returns the routing table this root maintains. Safe for concurrent
// reads from any goroutine — RoutingTable guards its own state.
func (r *RemotingRoot) Table() *RoutingTable { return r.table }

// Ref returns a reference to the root reactor itself, e.g. for a test that
// wants to send it a message directly.
func (r *RemotingRoot) Ref() reactor.Ref { return r.ctx.Self() }

// SpuriousCount returns how many messages the root received that matched
// none of its known reaction types (spec.md §9 open question: counted, not
// rate-limited).
func (r *RemotingRoot) SpuriousCount() int64 { return r.spurious.Load() }

// Spawn creates the Remoting Root as a top-level reactor of system and
// spawns one driver-child per entry in drivers. localChannels is the full
// set this system advertises whenever a driver (re)subscribes.
func Spawn(system *reactor.System, localChannels []ChannelPublication, drivers ...RegistryDriver) (*RemotingRoot, error) {
	root := &RemotingRoot{
		system:        system,
		localSystemID: system.ID(),
		localChannels: localChannels,
		table:         NewRoutingTable(),
		logger:        system.Logger().With("component", "remoting-root"),
	}

	ctx, err := system.Spawn("remoting-root", root.buildReactions())
	if err != nil {
		return nil, fmt.Errorf("registry: spawning remoting root: %w", err)
	}
	root.ctx = ctx

	for _, d := range drivers {
		if _, err := spawnDriverReactor(ctx, root.localSystemID.String(), d, root.logger); err != nil {
			root.logger.Errorf("spawning registry driver %s: %v", d.ID(), err)
		}
	}

	return root, nil
}

// buildReactions implements the reaction table spec.md §4.6's table
// specifies, verbatim.
func (r *RemotingRoot) buildReactions() *reactor.ReactionTable {
	return reactor.NewReactionTable().
		On(reactor.ReActorInit{}, func(rc *reactor.ReceiveContext) {}).
		On(RegistryDriverInitComplete{}, r.onDriverInitComplete).
		On(RegistrySubscriptionComplete{}, r.onSubscriptionComplete).
		On(RegistryGateUpserted{}, r.onGateUpserted).
		On(RegistryGateRemoved{}, r.onGateRemoved).
		On(ServiceServicePublicationRequest{}, r.onServicePublicationRequest).
		On(ServiceCancellationRequest{}, r.onServiceCancellationRequest).
		On(RegistryServicePublicationFailed{}, r.onServicePublicationFailed).
		On(reactor.ReActorStop{}, func(rc *reactor.ReceiveContext) {}).
		OnUnhandled(r.onSpurious)
}

// onDriverInitComplete replies SynchronizationWithServiceRegistryRequest to
// the driver child that just finished bootstrapping.
func (r *RemotingRoot) onDriverInitComplete(rc *reactor.ReceiveContext) {
	if _, err := rc.Reply(SynchronizationWithServiceRegistryRequest{}); err != nil {
		r.logger.Warnf("requesting registry synchronization: %v", err)
	}
}

// onSubscriptionComplete composes one ReActorSystemChannelIdPublicationRequest
// per locally-advertised channel and sends each to the driver child whose
// subscription just went active. A self-heal re-send (spec.md §4.6's
// RegistryGateRemoved row) arrives with the root itself as sender; in that
// case every registry-driver child is re-published to, not just one.
func (r *RemotingRoot) onSubscriptionComplete(rc *reactor.ReceiveContext) {
	targets := []reactor.Ref{rc.Sender()}
	if rc.Sender().Equal(rc.Self()) {
		targets = rc.Context().Children()
	}

	for _, target := range targets {
		for _, ch := range r.localChannels {
			req := ReActorSystemChannelIdPublicationRequest{
				SystemID:   r.localSystemID.String(),
				ChannelID:  ch.ChannelID.String(),
				Properties: ch.Properties,
			}
			if _, err := rc.Tell(target, req); err != nil {
				r.logger.Warnf("publishing channel %s to %s: %v", ch.ChannelID, target.ReactorID, err)
			}
		}
	}
}

// onGateUpserted implements the routing-table write side of the table's
// RegistryGateUpserted row: unregister any stale entry and register the
// fresh one, unless the event describes our own gate (a gossip-style
// driver may echo our own advertisement back to us).
func (r *RemotingRoot) onGateUpserted(rc *reactor.ReceiveContext) {
	e := rc.Payload().(RegistryGateUpserted)
	if e.SystemID == r.localSystemID.String() {
		return
	}
	r.table.Remove(e.SystemID, e.ChannelID)
	r.table.Upsert(e.SystemID, e.ChannelID, e.ChannelData)
	r.logger.Debugf("routing table: upserted (%s, %s)", e.SystemID, e.ChannelID)
}

// onGateRemoved implements the table's RegistryGateRemoved row: if the
// removed gate was our own, self-heal by re-triggering the full publish
// cycle; otherwise drop the peer's route.
func (r *RemotingRoot) onGateRemoved(rc *reactor.ReceiveContext) {
	e := rc.Payload().(RegistryGateRemoved)
	if e.SystemID == r.localSystemID.String() {
		if _, err := rc.SelfTell(RegistrySubscriptionComplete{}); err != nil {
			r.logger.Warnf("self-healing lost local gate: %v", err)
		}
		return
	}
	r.table.Remove(e.SystemID, e.ChannelID)
}

// onServicePublicationRequest fans ServiceServicePublicationRequest out to
// every registry-driver child, captured under the structural read-lock
// Context.Children() takes internally.
func (r *RemotingRoot) onServicePublicationRequest(rc *reactor.ReceiveContext) {
	req := rc.Payload().(ServiceServicePublicationRequest)
	for _, child := range rc.Context().Children() {
		if _, err := rc.Tell(child, req); err != nil {
			r.logger.Warnf("publishing service %s to %s: %v", req.ServiceGate, child.ReactorID, err)
		}
	}
}

// onServiceCancellationRequest fans ServiceCancellationRequest out to every
// registry-driver child.
func (r *RemotingRoot) onServiceCancellationRequest(rc *reactor.ReceiveContext) {
	req := rc.Payload().(ServiceCancellationRequest)
	for _, child := range rc.Context().Children() {
		if _, err := rc.Tell(child, req); err != nil {
			r.logger.Warnf("cancelling service %s on %s: %v", req.ServiceGate, child.ReactorID, err)
		}
	}
}

// onServicePublicationFailed just logs — spec.md §4.6's table has no
// further action for this row.
func (r *RemotingRoot) onServicePublicationFailed(rc *reactor.ReceiveContext) {
	e := rc.Payload().(RegistryServicePublicationFailed)
	r.logger.Errorf("service publication failed for %s: %v", e.ServiceName, e.Cause)
}

// onSpurious logs an invariant violation without aborting the system
// (spec.md §7 rule 5, §9 open question decision: counted, not rate-limited
// — see SPEC_FULL.md).
func (r *RemotingRoot) onSpurious(rc *reactor.ReceiveContext) {
	r.spurious.Add(1)
	r.logger.Errorf("spurious message received by remoting root: %T", rc.Payload())
}
