package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/memberlist"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/tessel-systems/reactor/log"
)

// gossipGates is the small document each node advertises as its SWIM
// membership metadata: every channel this node currently publishes,
// keyed by channel id. memberlist caps metadata size (Config.Delegate's
// NodeMeta), so this stays intentionally flat.
type gossipGates map[string]map[string]string

// GossipDriver is a RegistryDriver built on SWIM gossip membership
// (hashicorp/memberlist), the same library the teacher's internal/cluster
// package wires into its node delegate for join/leave/update events.
// Unlike a directory service, gossip has no separate "publish a service"
// concept distinct from a channel gate — PublishService/CancelService are
// modeled as gates under a "service:" namespace prefix in the same
// metadata document.
//
// Grounded on internal/cluster/node_event_delegate.go's NotifyJoin/
// NotifyLeave/NotifyUpdate shape (JSON-encoded discovery.Node in node
// metadata, forwarded onto an events channel); this driver swaps JSON for
// msgpack (SPEC_FULL.md's wire codec choice) and narrows the metadata
// document to gate data instead of a full node descriptor.
type GossipDriver struct {
	id            string
	localSystemID string
	bindAddr      string
	bindPort      int
	joinAddrs     []string
	logger        log.Logger

	mu       sync.Mutex
	ml       *memberlist.Memberlist
	local    gossipGates
	lastSeen map[string]gossipGates // peer name -> last metadata observed, for diffing on leave/update

	events chan Event
}

var _ RegistryDriver = (*GossipDriver)(nil)
var _ memberlist.Delegate = (*GossipDriver)(nil)
var _ memberlist.EventDelegate = (*GossipDriver)(nil)

// NewGossipDriver constructs a gossip RegistryDriver. joinAddrs seeds
// cluster membership on Register; an empty slice means "wait to be joined
// by a peer" rather than joining one.
func NewGossipDriver(id, localSystemID, bindAddr string, bindPort int, joinAddrs []string, logger log.Logger) *GossipDriver {
	return &GossipDriver{
		id:            id,
		localSystemID: localSystemID,
		bindAddr:      bindAddr,
		bindPort:      bindPort,
		joinAddrs:     joinAddrs,
		logger:        logger,
		local:         make(gossipGates),
		lastSeen:      make(map[string]gossipGates),
		events:        make(chan Event, 256),
	}
}

// ID implements RegistryDriver.
func (g *GossipDriver) ID() string { return g.id }

// Initialize creates the memberlist instance, wiring this driver as both
// its Delegate (for outbound metadata) and EventDelegate (for inbound
// join/leave/update notifications).
func (g *GossipDriver) Initialize(ctx context.Context) error {
	cfg := memberlist.DefaultLocalConfig()
	cfg.Name = g.localSystemID
	cfg.BindAddr = g.bindAddr
	cfg.BindPort = g.bindPort
	cfg.AdvertisePort = g.bindPort
	cfg.Delegate = g
	cfg.Events = g

	ml, err := memberlist.Create(cfg)
	if err != nil {
		return fmt.Errorf("gossip: create memberlist: %w", err)
	}

	g.mu.Lock()
	g.ml = ml
	g.mu.Unlock()
	return nil
}

// Register joins the seed addresses, if any were configured.
func (g *GossipDriver) Register(ctx context.Context) error {
	if len(g.joinAddrs) == 0 {
		return nil
	}
	g.mu.Lock()
	ml := g.ml
	g.mu.Unlock()
	if ml == nil {
		return ErrDriverNotInitialized
	}
	_, err := ml.Join(g.joinAddrs)
	return err
}

// Deregister leaves the cluster gracefully.
func (g *GossipDriver) Deregister(ctx context.Context) error {
	g.mu.Lock()
	ml := g.ml
	g.mu.Unlock()
	if ml == nil {
		return nil
	}
	return ml.Leave(5 * time.Second)
}

// DiscoverPeers takes a snapshot of every gate visible in the current
// membership list's node metadata.
func (g *GossipDriver) DiscoverPeers(ctx context.Context) ([]PeerGate, error) {
	g.mu.Lock()
	ml := g.ml
	g.mu.Unlock()
	if ml == nil {
		return nil, ErrDriverNotInitialized
	}

	var peers []PeerGate
	for _, m := range ml.Members() {
		if m.Name == g.localSystemID {
			continue
		}
		for channelID, props := range decodeGossipGates(m.Meta) {
			peers = append(peers, PeerGate{SystemID: m.Name, ChannelID: channelID, ChannelData: props})
		}
	}
	return peers, nil
}

// Watch returns the push stream fed by NotifyJoin/NotifyLeave/NotifyUpdate.
func (g *GossipDriver) Watch(ctx context.Context) (<-chan Event, error) {
	return g.events, nil
}

// PublishChannel adds channelID to this node's advertised metadata and
// triggers a metadata update broadcast.
func (g *GossipDriver) PublishChannel(ctx context.Context, systemID, channelID string, properties map[string]string) error {
	return g.updateLocal(channelID, properties)
}

// PublishService models a service gate as a channel-namespaced gate so it
// rides the same metadata document; gossip has no separate service
// registry to write to.
func (g *GossipDriver) PublishService(ctx context.Context, serviceGate string, properties map[string]string) error {
	return g.updateLocal("service:"+serviceGate, properties)
}

// CancelService removes a previously published service gate.
func (g *GossipDriver) CancelService(ctx context.Context, serviceGate string) error {
	g.mu.Lock()
	delete(g.local, "service:"+serviceGate)
	ml := g.ml
	g.mu.Unlock()
	if ml == nil {
		return ErrDriverNotInitialized
	}
	return ml.UpdateNode(5 * time.Second)
}

func (g *GossipDriver) updateLocal(gateID string, properties map[string]string) error {
	g.mu.Lock()
	g.local[gateID] = properties
	ml := g.ml
	g.mu.Unlock()
	if ml == nil {
		return ErrDriverNotInitialized
	}
	return ml.UpdateNode(5 * time.Second)
}

// Close shuts the memberlist instance down and closes the event stream.
func (g *GossipDriver) Close(ctx context.Context) error {
	g.mu.Lock()
	ml := g.ml
	g.mu.Unlock()

	var err error
	if ml != nil {
		err = ml.Shutdown()
	}
	close(g.events)
	return err
}

// NodeMeta implements memberlist.Delegate: it hands back this node's
// current gate document, msgpack-encoded, truncated to limit as a last
// resort (a real deployment keeps gate counts well under memberlist's
// default metadata budget).
func (g *GossipDriver) NodeMeta(limit int) []byte {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, err := msgpack.Marshal(g.local)
	if err != nil {
		g.logger.Errorf("gossip: encoding node metadata: %v", err)
		return nil
	}
	if len(b) > limit {
		g.logger.Warnf("gossip: node metadata %d bytes exceeds limit %d, truncating", len(b), limit)
		return b[:limit]
	}
	return b
}

// NotifyMsg, GetBroadcasts, LocalState, and MergeRemoteState round out
// memberlist.Delegate; this driver has no use for memberlist's user-message
// or push/pull state-sync channels — every gate travels as node metadata.
func (g *GossipDriver) NotifyMsg([]byte)                           {}
func (g *GossipDriver) GetBroadcasts(overhead, limit int) [][]byte { return nil }
func (g *GossipDriver) LocalState(join bool) []byte                { return nil }
func (g *GossipDriver) MergeRemoteState(buf []byte, join bool)     {}

// NotifyJoin implements memberlist.EventDelegate: a newly visible peer's
// metadata is decoded and every gate in it emitted as GateUpserted.
func (g *GossipDriver) NotifyJoin(n *memberlist.Node) { g.syncPeer(n) }

// NotifyUpdate re-syncs a peer's metadata: every gate in the current
// document is emitted as GateUpserted, changed or not, and GateRemoved is
// emitted for any gate that disappeared since the last observation.
func (g *GossipDriver) NotifyUpdate(n *memberlist.Node) { g.syncPeer(n) }

// NotifyLeave emits GateRemoved for every gate last known for the
// departing peer.
func (g *GossipDriver) NotifyLeave(n *memberlist.Node) {
	if n.Name == g.localSystemID {
		return
	}
	g.mu.Lock()
	last := g.lastSeen[n.Name]
	delete(g.lastSeen, n.Name)
	g.mu.Unlock()

	for channelID := range last {
		g.emit(GateRemoved{SystemID: n.Name, ChannelID: channelID})
	}
}

func (g *GossipDriver) syncPeer(n *memberlist.Node) {
	if n.Name == g.localSystemID {
		return
	}
	current := decodeGossipGates(n.Meta)

	g.mu.Lock()
	previous := g.lastSeen[n.Name]
	g.lastSeen[n.Name] = current
	g.mu.Unlock()

	for channelID, props := range current {
		g.emit(GateUpserted{SystemID: n.Name, ChannelID: channelID, ChannelData: props})
	}
	for channelID := range previous {
		if _, stillPresent := current[channelID]; !stillPresent {
			g.emit(GateRemoved{SystemID: n.Name, ChannelID: channelID})
		}
	}
}

// emit pushes ev onto the event stream without blocking memberlist's
// internal event-delivery goroutine; a full buffer drops the event and
// logs, since blocking here would stall gossip for the whole process.
func (g *GossipDriver) emit(ev Event) {
	select {
	case g.events <- ev:
	default:
		g.logger.Warnf("gossip: event buffer full, dropping %T", ev)
	}
}

func decodeGossipGates(meta []byte) gossipGates {
	if len(meta) == 0 {
		return nil
	}
	var out gossipGates
	if err := msgpack.Unmarshal(meta, &out); err != nil {
		return nil
	}
	return out
}
