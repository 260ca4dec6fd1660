package registry

import "context"

// PeerGate is one entry of a DiscoverPeers snapshot: a single (peer system,
// channel) pair with whatever transport metadata the registry holds for it.
type PeerGate struct {
	SystemID    string
	ChannelID   string
	ChannelData map[string]string
}

// RegistryDriver is the contract a concrete registry backend (gossip
// membership, a directory service, a pub/sub subject) implements. It
// mirrors the teacher's discovery.Provider shape (ID, Initialize, Register,
// Deregister, DiscoverPeers) and adds the publish/watch operations spec.md
// §4.6's Remoting Root table drives: Watch replaces polling DiscoverPeers
// with a push stream of Event values, and PublishChannel/PublishService/
// CancelService are the write side the wire messages in messages.go map
// onto.
//
// A RegistryDriver is always run as a child reactor of the Remoting Root
// (driver_reactor.go wraps one as such); nothing in this package calls a
// RegistryDriver method directly from outside that wrapper.
type RegistryDriver interface {
	// ID names this driver instance, carried on RegistryDriverInitComplete
	// and RegistrySubscriptionComplete so the Remoting Root can address
	// replies back to the right child.
	ID() string
	// Initialize acquires whatever client/connection the backend needs.
	// Initialize failure is fatal to this driver only (spec.md §7 rule 4).
	Initialize(ctx context.Context) error
	// Register advertises this process's presence to the backend (joining
	// a gossip cluster, registering a service entry, etc.) — distinct from
	// publishing any particular channel, which PublishChannel does once
	// Register has succeeded.
	Register(ctx context.Context) error
	// Deregister withdraws the presence Register advertised.
	Deregister(ctx context.Context) error
	// DiscoverPeers takes a point-in-time snapshot of every gate this
	// driver's backend currently knows about. Watch is the steady-state
	// path; DiscoverPeers exists for callers that want a synchronous
	// snapshot (tests, diagnostics) without waiting on the stream.
	DiscoverPeers(ctx context.Context) ([]PeerGate, error)
	// Watch opens the push stream of Event values. The driver-child reactor
	// calls it at most once per driver instance. Of the drivers in this
	// package only NatsDriver rejects a second call (with
	// ErrAlreadyWatching); the others hand back the same channel again. The
	// returned channel is closed by Close, not when ctx is done.
	Watch(ctx context.Context) (<-chan Event, error)
	// PublishChannel advertises one local channel's identity and
	// properties — the write side of ReActorSystemChannelIdPublicationRequest.
	PublishChannel(ctx context.Context, systemID, channelID string, properties map[string]string) error
	// PublishService advertises a named, possibly multi-channel service —
	// the write side of ServiceServicePublicationRequest.
	PublishService(ctx context.Context, serviceGate string, properties map[string]string) error
	// CancelService retracts a previously published service — the write
	// side of ServiceCancellationRequest.
	CancelService(ctx context.Context, serviceGate string) error
	// Close releases every resource Initialize/Register acquired.
	// Idempotent.
	Close(ctx context.Context) error
}
