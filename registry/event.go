package registry

// Event is emitted on a RegistryDriver's Watch stream as the underlying
// registry (gossip membership, a directory service, a pub/sub subject)
// observes a peer gate appear, change, or disappear. The driver-child
// reactor (driver_reactor.go) translates each Event into the matching
// RegistryGateUpserted/RegistryGateRemoved wire message sent to the
// Remoting Root — Event itself never crosses a reactor boundary.
//
// Grounded on discovery/event.go's NodeAdded/NodeRemoved/NodeModified
// shape, narrowed here to the gate granularity (one channel of one peer
// system) spec.md §4.6 reacts on.
type Event interface{ isRegistryEvent() }

// GateUpserted reports that channel ChannelID of peer system SystemID is
// now known, carrying its current properties.
type GateUpserted struct {
	SystemID    string
	ChannelID   string
	ChannelData map[string]string
}

func (GateUpserted) isRegistryEvent() {}

// GateRemoved reports that channel ChannelID of peer system SystemID is no
// longer known to this driver's backing registry.
type GateRemoved struct {
	SystemID  string
	ChannelID string
}

func (GateRemoved) isRegistryEvent() {}
