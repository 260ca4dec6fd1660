// Package registry implements the control plane (spec.md §4.6): the
// Remoting Root reactor, the RegistryDriver contract its children
// implement, the routing table those events maintain, and four concrete
// RegistryDriver families (gossip, two directory-based, one pub/sub).
package registry

// RegistryDriverInitComplete is sent by a registry driver's wrapping
// reactor once its underlying RegistryDriver.Initialize and Register have
// both returned successfully. The Remoting Root treats it as the bootstrap signal to
// request a registry synchronization.
type RegistryDriverInitComplete struct {
	DriverID string
}

// RegistrySubscriptionComplete is sent (by a driver, or self-sent by the
// Remoting Root on self-heal) once the driver's Watch subscription is
// active and ready to both receive peer events and accept publications.
type RegistrySubscriptionComplete struct {
	DriverID string
}

// SynchronizationWithServiceRegistryRequest asks the receiving driver child
// to open its Watch subscription; the child answers with
// RegistrySubscriptionComplete, on which the Remoting Root sends it the
// local channel publications. Sent by the Remoting Root in reply to
// RegistryDriverInitComplete.
type SynchronizationWithServiceRegistryRequest struct{}

// ReActorSystemChannelIdPublicationRequest asks a driver to publish one
// local channel's identity and properties to the registry it fronts.
type ReActorSystemChannelIdPublicationRequest struct {
	SystemID   string
	ChannelID  string
	Properties map[string]string
}

// RegistryGateUpserted announces that channel ChannelID of remote system
// SystemID is now known, with the given channel metadata (e.g. transport
// address). Delivered by a driver's Watch stream.
type RegistryGateUpserted struct {
	SystemID    string
	ChannelID   string
	ChannelData map[string]string
}

// RegistryGateRemoved announces that channel ChannelID of remote system
// SystemID is no longer known. If SystemID equals the local system id,
// the local publication itself was lost from the registry and must be
// republished (spec.md §4.6 self-heal rule).
type RegistryGateRemoved struct {
	SystemID  string
	ChannelID string
}

// ServiceServicePublicationRequest asks every registry-driver child to
// publish a higher-level named service (distinct from a channel — a
// service groups one or more channels under one discoverable name).
type ServiceServicePublicationRequest struct {
	ServiceGate       string
	ServiceProperties map[string]string
}

// ServiceCancellationRequest asks every registry-driver child to retract a
// previously published service.
type ServiceCancellationRequest struct {
	ServiceGate string
}

// RegistryServicePublicationFailed reports that a driver could not publish
// a service. A failed cancellation is only logged by the driver child and
// does not produce this message.
type RegistryServicePublicationFailed struct {
	ServiceName string
	Cause       error
}
