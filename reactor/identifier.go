package reactor

import "github.com/google/uuid"

// ID is a reactor identifier: opaque, globally unique within a system.
// Uniqueness is an invariant enforced by the system's reactor arena at
// registration time, never by ID itself.
type ID struct {
	UUID uuid.UUID
	Name string
}

// NewID generates a fresh ID for the given human-readable name.
func NewID(name string) ID {
	return ID{UUID: uuid.New(), Name: name}
}

// String returns "<name>#<uuid>".
func (id ID) String() string {
	return id.Name + "#" + id.UUID.String()
}

// Equal reports whether two IDs name the same reactor.
func (id ID) Equal(other ID) bool {
	return id.UUID == other.UUID
}

// SystemID is a per-process identity. Messages carry both source and
// destination system ids so loop detection and routing-table lookups can
// distinguish "local" from "remote" without consulting the network.
type SystemID struct {
	UUID uuid.UUID
	Name string
}

// NewSystemID generates a fresh SystemID for the given system name.
func NewSystemID(name string) SystemID {
	return SystemID{UUID: uuid.New(), Name: name}
}

// String returns "<name>@<uuid>".
func (s SystemID) String() string {
	return s.Name + "@" + s.UUID.String()
}

// Equal reports whether two SystemIDs name the same process identity.
func (s SystemID) Equal(other SystemID) bool {
	return s.UUID == other.UUID
}

// ChannelID uniquely names a transport instance: a (type tag, name) pair.
// A reactor system may expose several channels simultaneously, e.g. one
// local journal channel plus one channel per registry driver.
type ChannelID struct {
	Type string
	Name string
}

// String returns "<type>:<name>".
func (c ChannelID) String() string {
	return c.Type + ":" + c.Name
}
