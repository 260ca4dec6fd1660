package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/tessel-systems/reactor/log"
)

// EtcdDriver is a second directory-style RegistryDriver, exercising a
// distinct watch/lease model from ConsulDriver: gates are leased keys kept
// alive by etcd's native lease keep-alive, and peer changes arrive as
// structured put/delete events off etcd's native Watch API rather than a
// polled-and-diffed snapshot.
//
// Grounded on discovery/etcd/discovery.go (client construction, namespaced
// KV/Lease, Grant+KeepAlive for liveness) extended from a flat peer-address
// registration to per-gate keys so each channel's metadata can be written
// and watched independently.
type EtcdDriver struct {
	id            string
	localSystemID string
	endpoints     []string
	dialTimeout   time.Duration
	ttl           int64
	prefix        string
	logger        log.Logger

	mu      sync.Mutex
	client  *clientv3.Client
	kv      clientv3.KV
	lease   clientv3.Lease
	leaseID clientv3.LeaseID

	cancelKeepAlive context.CancelFunc
	events          chan Event
}

var _ RegistryDriver = (*EtcdDriver)(nil)

// EtcdConfig configures an EtcdDriver.
type EtcdConfig struct {
	Endpoints   []string
	DialTimeout time.Duration
	TTL         int64 // lease TTL in seconds
	Prefix      string
}

// NewEtcdDriver constructs a directory RegistryDriver over an etcd
// cluster's namespaced KV and lease APIs.
func NewEtcdDriver(id, localSystemID string, cfg EtcdConfig, logger log.Logger) *EtcdDriver {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.TTL == 0 {
		cfg.TTL = 10
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "reactor/gates"
	}
	return &EtcdDriver{
		id:            id,
		localSystemID: localSystemID,
		endpoints:     cfg.Endpoints,
		dialTimeout:   cfg.DialTimeout,
		ttl:           cfg.TTL,
		prefix:        strings.TrimSuffix(cfg.Prefix, "/"),
		logger:        logger,
		events:        make(chan Event, 256),
	}
}

// ID implements RegistryDriver.
func (d *EtcdDriver) ID() string { return d.id }

// Initialize dials the etcd cluster and verifies connectivity.
func (d *EtcdDriver) Initialize(ctx context.Context) error {
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   d.endpoints,
		DialTimeout: d.dialTimeout,
	})
	if err != nil {
		return fmt.Errorf("etcd: new client: %w", err)
	}

	statusCtx, cancel := context.WithTimeout(ctx, d.dialTimeout)
	defer cancel()
	if len(d.endpoints) > 0 {
		if _, err := client.Status(statusCtx, d.endpoints[0]); err != nil {
			_ = client.Close()
			return fmt.Errorf("etcd: connectivity check: %w", err)
		}
	}

	d.mu.Lock()
	d.client = client
	d.kv = client.KV
	d.lease = client.Lease
	d.mu.Unlock()
	return nil
}

// Register grants a lease and keeps it alive for the lifetime of this
// driver; every gate PublishChannel/PublishService writes is attached to
// this lease so a crashed process's gates expire on their own.
func (d *EtcdDriver) Register(ctx context.Context) error {
	d.mu.Lock()
	lease := d.lease
	d.mu.Unlock()
	if lease == nil {
		return ErrDriverNotInitialized
	}

	grant, err := lease.Grant(ctx, d.ttl)
	if err != nil {
		return fmt.Errorf("etcd: granting lease: %w", err)
	}

	keepAliveCtx, cancel := context.WithCancel(context.Background())
	ch, err := d.client.KeepAlive(keepAliveCtx, grant.ID)
	if err != nil {
		cancel()
		return fmt.Errorf("etcd: starting keep-alive: %w", err)
	}

	d.mu.Lock()
	d.leaseID = grant.ID
	d.cancelKeepAlive = cancel
	d.mu.Unlock()

	go func() {
		for range ch {
			// drain keep-alive responses so the channel never blocks the
			// client's internal lease-refresh loop.
		}
	}()
	return nil
}

// Deregister stops the keep-alive loop, letting the lease (and every gate
// attached to it) expire.
func (d *EtcdDriver) Deregister(ctx context.Context) error {
	d.mu.Lock()
	cancel := d.cancelKeepAlive
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// DiscoverPeers lists every gate key under the shared prefix.
func (d *EtcdDriver) DiscoverPeers(ctx context.Context) ([]PeerGate, error) {
	d.mu.Lock()
	kv := d.kv
	d.mu.Unlock()
	if kv == nil {
		return nil, ErrDriverNotInitialized
	}

	resp, err := kv.Get(ctx, d.prefix+"/", clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("etcd: listing gates: %w", err)
	}

	var peers []PeerGate
	for _, kvPair := range resp.Kvs {
		systemID, channelID, ok := d.parseGateKey(string(kvPair.Key))
		if !ok || systemID == d.localSystemID {
			continue
		}
		var props map[string]string
		if err := msgpack.Unmarshal(kvPair.Value, &props); err != nil {
			d.logger.Warnf("etcd: decoding gate %s: %v", kvPair.Key, err)
			continue
		}
		peers = append(peers, PeerGate{SystemID: systemID, ChannelID: channelID, ChannelData: props})
	}
	return peers, nil
}

// Watch opens etcd's native key-prefix watch and translates put/delete
// events directly into GateUpserted/GateRemoved — unlike ConsulDriver's
// poll-and-diff loop, no local snapshot bookkeeping is needed since every
// mutation arrives as its own structured event.
func (d *EtcdDriver) Watch(ctx context.Context) (<-chan Event, error) {
	d.mu.Lock()
	client := d.client
	d.mu.Unlock()
	if client == nil {
		return nil, ErrDriverNotInitialized
	}

	watchChan := client.Watch(ctx, d.prefix+"/", clientv3.WithPrefix())
	go d.translateWatch(watchChan)
	return d.events, nil
}

func (d *EtcdDriver) translateWatch(watchChan clientv3.WatchChan) {
	for resp := range watchChan {
		if err := resp.Err(); err != nil {
			d.logger.Warnf("etcd: watch error: %v", err)
			continue
		}
		for _, ev := range resp.Events {
			systemID, channelID, ok := d.parseGateKey(string(ev.Kv.Key))
			if !ok || systemID == d.localSystemID || strings.Contains(string(ev.Kv.Key), "/services/") {
				continue
			}
			switch ev.Type {
			case clientv3.EventTypePut:
				var props map[string]string
				if err := msgpack.Unmarshal(ev.Kv.Value, &props); err != nil {
					d.logger.Warnf("etcd: decoding gate %s: %v", ev.Kv.Key, err)
					continue
				}
				d.emit(GateUpserted{SystemID: systemID, ChannelID: channelID, ChannelData: props})
			case clientv3.EventTypeDelete:
				d.emit(GateRemoved{SystemID: systemID, ChannelID: channelID})
			}
		}
	}
}

func (d *EtcdDriver) emit(ev Event) {
	select {
	case d.events <- ev:
	default:
		d.logger.Warnf("etcd: event buffer full, dropping %T", ev)
	}
}

// PublishChannel writes one gate key, attached to this driver's lease.
func (d *EtcdDriver) PublishChannel(ctx context.Context, systemID, channelID string, properties map[string]string) error {
	d.mu.Lock()
	kv := d.kv
	leaseID := d.leaseID
	d.mu.Unlock()
	if kv == nil {
		return ErrDriverNotInitialized
	}

	value, err := msgpack.Marshal(properties)
	if err != nil {
		return err
	}
	opts := []clientv3.OpOption{}
	if leaseID != 0 {
		opts = append(opts, clientv3.WithLease(leaseID))
	}
	_, err = kv.Put(ctx, d.gateKey(systemID, channelID), string(value), opts...)
	return err
}

// PublishService writes a service gate under a "services/" sub-prefix,
// also attached to this driver's lease.
func (d *EtcdDriver) PublishService(ctx context.Context, serviceGate string, properties map[string]string) error {
	d.mu.Lock()
	kv := d.kv
	leaseID := d.leaseID
	d.mu.Unlock()
	if kv == nil {
		return ErrDriverNotInitialized
	}

	value, err := msgpack.Marshal(properties)
	if err != nil {
		return err
	}
	opts := []clientv3.OpOption{}
	if leaseID != 0 {
		opts = append(opts, clientv3.WithLease(leaseID))
	}
	_, err = kv.Put(ctx, d.prefix+"/services/"+serviceGate, string(value), opts...)
	return err
}

// CancelService deletes a previously published service gate.
func (d *EtcdDriver) CancelService(ctx context.Context, serviceGate string) error {
	d.mu.Lock()
	kv := d.kv
	d.mu.Unlock()
	if kv == nil {
		return ErrDriverNotInitialized
	}
	_, err := kv.Delete(ctx, d.prefix+"/services/"+serviceGate)
	return err
}

// Close cancels the keep-alive loop, closes the underlying client, and
// closes the event stream.
func (d *EtcdDriver) Close(ctx context.Context) error {
	d.mu.Lock()
	client := d.client
	cancel := d.cancelKeepAlive
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	close(d.events)
	if client != nil {
		return client.Close()
	}
	return nil
}

func (d *EtcdDriver) gateKey(systemID, channelID string) string {
	return fmt.Sprintf("%s/%s/%s", d.prefix, systemID, channelID)
}

func (d *EtcdDriver) parseGateKey(key string) (systemID, channelID string, ok bool) {
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
