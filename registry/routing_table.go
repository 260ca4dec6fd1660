package registry

import (
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
)

// RoutingTable maps (peer system id) -> (set of channel id -> channel
// metadata), spec.md §3. It is mutated only by the Remoting Root on
// registry events; writers take the table's write lock and readers (drivers
// and anything else) its read lock. It is not copy-on-write.
//
// Grounded on internal/cluster's store pattern of guarding a map with a
// dedicated mutex; the
// per-peer channel-id set itself uses deckarep/golang-set as SPEC_FULL.md
// §5 specifies, so convergence tests can assert "the full gate set for a
// peer" as cheaply as "a single gate".
type RoutingTable struct {
	mu    sync.RWMutex
	peers map[string]*peerGates
}

// peerGates is the value stored per peer. Upsert and Remove modify it in
// place under the table's write lock; it is never handed out to callers.
type peerGates struct {
	channels mapset.Set[string]
	data     map[string]map[string]string // channel id -> properties
}

// NewRoutingTable creates an empty table.
func NewRoutingTable() *RoutingTable {
	return &RoutingTable{peers: make(map[string]*peerGates)}
}

// Upsert registers or replaces one (systemID, channelID) gate's metadata.
func (t *RoutingTable) Upsert(systemID, channelID string, data map[string]string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pg, ok := t.peers[systemID]
	if !ok {
		pg = &peerGates{channels: mapset.NewSet[string](), data: make(map[string]map[string]string)}
		t.peers[systemID] = pg
	}
	pg.channels.Add(channelID)
	pg.data[channelID] = data
}

// Remove unregisters one (systemID, channelID) gate. If it was the peer's
// last known channel, the peer entry itself is dropped.
func (t *RoutingTable) Remove(systemID, channelID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pg, ok := t.peers[systemID]
	if !ok {
		return
	}
	pg.channels.Remove(channelID)
	delete(pg.data, channelID)
	if pg.channels.Cardinality() == 0 {
		delete(t.peers, systemID)
	}
}

// RemoveSystem drops every gate known for systemID in one step. The
// Remoting Root does not call it; it removes gates one at a time on
// RegistryGateRemoved.
func (t *RoutingTable) RemoveSystem(systemID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.peers, systemID)
}

// Lookup returns the channel metadata for (systemID, channelID), and
// whether it was found — the "routing convergence" property spec.md §8
// exercises directly.
func (t *RoutingTable) Lookup(systemID, channelID string) (map[string]string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	pg, ok := t.peers[systemID]
	if !ok {
		return nil, false
	}
	data, ok := pg.data[channelID]
	return data, ok
}

// ChannelsFor returns the set of channel ids known for systemID, or an
// empty slice if the peer is unknown.
func (t *RoutingTable) ChannelsFor(systemID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	pg, ok := t.peers[systemID]
	if !ok {
		return nil
	}
	return pg.channels.ToSlice()
}

// Peers returns every peer system id currently known to the table.
func (t *RoutingTable) Peers() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]string, 0, len(t.peers))
	for id := range t.peers {
		out = append(out, id)
	}
	return out
}
