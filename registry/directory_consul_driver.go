package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/consul/api"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/tessel-systems/reactor/log"
)

// ConsulDriver is a directory-style RegistryDriver backed by Consul's KV
// store: each gate is one key under a shared prefix, and peer changes are
// surfaced by re-listing the prefix every pollInterval (a plain KV List,
// not a blocking query) and diffing successive snapshots rather than by a
// push API, the same DiscoverPeers-centric shape as
// discovery/consul/discovery.go.
//
// Grounded on discovery/consul/discovery.go (client construction,
// Agent().ServiceRegister liveness entry, QueryOptions) adapted from
// service-catalog lookups to KV-backed gate storage, since spec.md's gates
// carry arbitrary per-channel metadata a Consul service registration alone
// doesn't have room for.
type ConsulDriver struct {
	id            string
	localSystemID string
	address       string
	datacenter    string
	token         string
	host          string
	port          int
	prefix        string
	pollInterval  time.Duration
	logger        log.Logger

	mu        sync.Mutex
	client    *api.Client
	serviceID string
	lastSeen  map[string]map[string]struct{} // systemID -> channel ids last observed

	events chan Event
}

var _ RegistryDriver = (*ConsulDriver)(nil)

// ConsulConfig configures a ConsulDriver.
type ConsulConfig struct {
	Address      string
	Datacenter   string
	Token        string
	Host         string
	Port         int
	Prefix       string // KV prefix gates are stored under, e.g. "reactor/gates"
	PollInterval time.Duration
}

// NewConsulDriver constructs a directory RegistryDriver over Consul's KV
// store and agent API.
func NewConsulDriver(id, localSystemID string, cfg ConsulConfig, logger log.Logger) *ConsulDriver {
	if cfg.Prefix == "" {
		cfg.Prefix = "reactor/gates"
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 2 * time.Second
	}
	return &ConsulDriver{
		id:            id,
		localSystemID: localSystemID,
		address:       cfg.Address,
		datacenter:    cfg.Datacenter,
		token:         cfg.Token,
		host:          cfg.Host,
		port:          cfg.Port,
		prefix:        strings.TrimSuffix(cfg.Prefix, "/"),
		pollInterval:  cfg.PollInterval,
		logger:        logger,
		lastSeen:      make(map[string]map[string]struct{}),
		events:        make(chan Event, 256),
	}
}

// ID implements RegistryDriver.
func (d *ConsulDriver) ID() string { return d.id }

// Initialize builds the Consul API client and verifies connectivity.
func (d *ConsulDriver) Initialize(ctx context.Context) error {
	cfg := api.DefaultConfig()
	cfg.Address = d.address
	cfg.Datacenter = d.datacenter
	cfg.Token = d.token

	client, err := api.NewClient(cfg)
	if err != nil {
		return fmt.Errorf("consul: new client: %w", err)
	}
	if _, err := client.Agent().Self(); err != nil {
		return fmt.Errorf("consul: connectivity check: %w", err)
	}

	d.mu.Lock()
	d.client = client
	d.serviceID = fmt.Sprintf("%s-%s", d.localSystemID, d.id)
	d.mu.Unlock()
	return nil
}

// Register advertises a liveness service entry, mirroring
// discovery/consul/discovery.go's AgentServiceRegistration.
func (d *ConsulDriver) Register(ctx context.Context) error {
	d.mu.Lock()
	client := d.client
	service := &api.AgentServiceRegistration{
		ID:      d.serviceID,
		Name:    d.localSystemID,
		Address: d.host,
		Port:    d.port,
	}
	d.mu.Unlock()
	if client == nil {
		return ErrDriverNotInitialized
	}
	return client.Agent().ServiceRegister(service)
}

// Deregister withdraws the liveness service entry.
func (d *ConsulDriver) Deregister(ctx context.Context) error {
	d.mu.Lock()
	client := d.client
	serviceID := d.serviceID
	d.mu.Unlock()
	if client == nil {
		return nil
	}
	return client.Agent().ServiceDeregister(serviceID)
}

// DiscoverPeers lists every gate key under the shared prefix.
func (d *ConsulDriver) DiscoverPeers(ctx context.Context) ([]PeerGate, error) {
	d.mu.Lock()
	client := d.client
	d.mu.Unlock()
	if client == nil {
		return nil, ErrDriverNotInitialized
	}

	pairs, _, err := client.KV().List(d.prefix+"/", nil)
	if err != nil {
		return nil, fmt.Errorf("consul: listing gates: %w", err)
	}

	var peers []PeerGate
	for _, pair := range pairs {
		systemID, channelID, ok := d.parseGateKey(pair.Key)
		if !ok || systemID == d.localSystemID {
			continue
		}
		var props map[string]string
		if err := msgpack.Unmarshal(pair.Value, &props); err != nil {
			d.logger.Warnf("consul: decoding gate %s: %v", pair.Key, err)
			continue
		}
		peers = append(peers, PeerGate{SystemID: systemID, ChannelID: channelID, ChannelData: props})
	}
	return peers, nil
}

// Watch starts a polling loop diffing successive DiscoverPeers snapshots:
// a gate key that newly appears emits GateUpserted and one that disappears
// emits GateRemoved. Only the key set is compared, so a changed value under
// an existing key emits nothing.
func (d *ConsulDriver) Watch(ctx context.Context) (<-chan Event, error) {
	go d.pollLoop(ctx)
	return d.events, nil
}

func (d *ConsulDriver) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			peers, err := d.DiscoverPeers(ctx)
			if err != nil {
				d.logger.Warnf("consul: poll failed: %v", err)
				continue
			}
			d.diffAndEmit(peers)
		}
	}
}

func (d *ConsulDriver) diffAndEmit(peers []PeerGate) {
	current := make(map[string]map[string]struct{})
	byKey := make(map[string]PeerGate, len(peers))
	for _, p := range peers {
		if current[p.SystemID] == nil {
			current[p.SystemID] = make(map[string]struct{})
		}
		current[p.SystemID][p.ChannelID] = struct{}{}
		byKey[p.SystemID+"\x00"+p.ChannelID] = p
	}

	d.mu.Lock()
	previous := d.lastSeen
	d.lastSeen = current
	d.mu.Unlock()

	for key, gate := range byKey {
		parts := strings.SplitN(key, "\x00", 2)
		was := previous[parts[0]]
		if _, ok := was[parts[1]]; !ok {
			d.emit(GateUpserted{SystemID: gate.SystemID, ChannelID: gate.ChannelID, ChannelData: gate.ChannelData})
		}
	}
	for systemID, channels := range previous {
		for channelID := range channels {
			if _, ok := current[systemID][channelID]; !ok {
				d.emit(GateRemoved{SystemID: systemID, ChannelID: channelID})
			}
		}
	}
}

func (d *ConsulDriver) emit(ev Event) {
	select {
	case d.events <- ev:
	default:
		d.logger.Warnf("consul: event buffer full, dropping %T", ev)
	}
}

// PublishChannel writes one gate key.
func (d *ConsulDriver) PublishChannel(ctx context.Context, systemID, channelID string, properties map[string]string) error {
	d.mu.Lock()
	client := d.client
	d.mu.Unlock()
	if client == nil {
		return ErrDriverNotInitialized
	}

	value, err := msgpack.Marshal(properties)
	if err != nil {
		return err
	}
	_, err = client.KV().Put(&api.KVPair{Key: d.gateKey(systemID, channelID), Value: value}, nil)
	return err
}

// PublishService writes a service gate under a "services/" sub-prefix.
func (d *ConsulDriver) PublishService(ctx context.Context, serviceGate string, properties map[string]string) error {
	d.mu.Lock()
	client := d.client
	d.mu.Unlock()
	if client == nil {
		return ErrDriverNotInitialized
	}

	value, err := msgpack.Marshal(properties)
	if err != nil {
		return err
	}
	_, err = client.KV().Put(&api.KVPair{Key: d.prefix + "/services/" + serviceGate, Value: value}, nil)
	return err
}

// CancelService deletes a previously published service gate.
func (d *ConsulDriver) CancelService(ctx context.Context, serviceGate string) error {
	d.mu.Lock()
	client := d.client
	d.mu.Unlock()
	if client == nil {
		return ErrDriverNotInitialized
	}
	_, err := client.KV().Delete(d.prefix+"/services/"+serviceGate, nil)
	return err
}

// Close closes the event stream; the poll loop exits on its own once the
// Watch context is cancelled.
func (d *ConsulDriver) Close(ctx context.Context) error {
	close(d.events)
	return nil
}

func (d *ConsulDriver) gateKey(systemID, channelID string) string {
	return fmt.Sprintf("%s/%s/%s", d.prefix, systemID, channelID)
}

func (d *ConsulDriver) parseGateKey(key string) (systemID, channelID string, ok bool) {
	rest := strings.TrimPrefix(key, d.prefix+"/")
	if rest == key || strings.HasPrefix(rest, "services/") {
		return "", "", false
	}
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}
