package reactor

import "github.com/google/uuid"

// DriverHandle is the minimal contract a Reference needs from whatever
// drives delivery to it. It is satisfied by driver.Driver (defined in the
// sibling driver package) without this package importing that one, so a
// Reference can be handed to any driver implementation without a dependency
// cycle between reactor and driver.
type DriverHandle interface {
	// Deliver hands the message to whatever transport this handle fronts.
	// Local handles enqueue directly into a context's mailbox; remote
	// handles encode and forward via a registry-routed channel.
	Deliver(msg *Message) (DeliveryStatus, error)
	// DeliverAsync is the non-blocking counterpart, returning a completion
	// handle the caller may await.
	DeliverAsync(msg *Message) (*Future, error)
}

// Ref is a location-transparent handle to a reactor: {reactor id, owning
// system id, channel id, driver handle}. Two references are equal iff
// their reactor ids match — the channel/driver they were resolved through
// may legitimately differ across calls (e.g. after a routing-table update)
// without changing reactor identity.
type Ref struct {
	ReactorID ID
	SystemID  SystemID
	ChannelID ChannelID
	Driver    DriverHandle
}

// Equal reports whether two references name the same reactor, regardless
// of which channel/driver they currently resolve through.
func (r Ref) Equal(other Ref) bool {
	return r.ReactorID.Equal(other.ReactorID)
}

// IsZero reports whether r is the zero Ref, used as the "no sender" value
// carried by system-originated messages.
func (r Ref) IsZero() bool {
	return r.ReactorID.UUID == uuid.Nil && r.Driver == nil
}

// NoSender is the sentinel used as a Message's SourceRef when the message
// did not originate from another reactor (e.g. lifecycle synthetics).
var NoSender = Ref{}
