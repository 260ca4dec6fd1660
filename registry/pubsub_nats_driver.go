package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/flowchartsman/retry"
	"github.com/nats-io/nats.go"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/tessel-systems/reactor/log"
)

// NatsDriver is the fourth RegistryDriver family: pub/sub shaped rather
// than gossip or directory, but its gate storage rides JetStream's Key
// Value store rather than a bare subject, so a late-joining watcher still
// sees every gate published before it connected — durability a plain NATS
// subject publish doesn't give. JetStream KV acknowledges every Put at the
// stream level before it returns, which is what a NATS-backed driver.Driver
// could report through ChannelRequiresDeliveryAck; NatsDriver itself is a
// RegistryDriver, not a channel driver, and has no such method.
//
// Grounded on discovery/nats/discovery.go's connection construction
// (flowchartsman/retry-wrapped Connect, EncodedConn) and subscription
// handler shape; the request/reply DiscoverPeers pattern there is replaced
// here with a KV bucket listing, since a KV store answers "what exists
// right now" directly instead of needing a fan-out request/timeout.
type NatsDriver struct {
	id            string
	localSystemID string
	url           string
	bucket        string
	connectRetries int
	logger        log.Logger

	mu     sync.Mutex
	conn   *nats.Conn
	js     nats.JetStreamContext
	kv     nats.KeyValue
	watch  nats.KeyWatcher

	events chan Event
}

var _ RegistryDriver = (*NatsDriver)(nil)

// NatsConfig configures a NatsDriver.
type NatsConfig struct {
	URL            string
	Bucket         string // JetStream KV bucket gates are stored in, e.g. "reactor-gates"
	ConnectRetries int
}

// NewNatsDriver constructs a pub/sub RegistryDriver backed by a JetStream
// KV bucket.
func NewNatsDriver(id, localSystemID string, cfg NatsConfig, logger log.Logger) *NatsDriver {
	if cfg.Bucket == "" {
		cfg.Bucket = "reactor-gates"
	}
	if cfg.ConnectRetries == 0 {
		cfg.ConnectRetries = 5
	}
	return &NatsDriver{
		id:             id,
		localSystemID:  localSystemID,
		url:            cfg.URL,
		bucket:         cfg.Bucket,
		connectRetries: cfg.ConnectRetries,
		logger:         logger,
		events:         make(chan Event, 256),
	}
}

// ID implements RegistryDriver.
func (d *NatsDriver) ID() string { return d.id }

// Initialize connects to the NATS server with an exponential-backoff
// retrier, the same retrier the teacher's nats discovery provider uses for
// its initial Connect, then opens (or creates) the gate KV bucket.
func (d *NatsDriver) Initialize(ctx context.Context) error {
	opts := nats.GetDefaultOptions()
	opts.Url = d.url
	opts.Name = d.localSystemID
	opts.ReconnectWait = 2 * time.Second
	opts.MaxReconnect = -1

	var conn *nats.Conn
	retrier := retry.NewRetrier(d.connectRetries, 100*time.Millisecond, opts.ReconnectWait)
	if err := retrier.Run(func() error {
		var err error
		conn, err = opts.Connect()
		return err
	}); err != nil {
		return fmt.Errorf("nats: connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return fmt.Errorf("nats: jetstream context: %w", err)
	}

	kv, err := js.KeyValue(d.bucket)
	if err != nil {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{Bucket: d.bucket})
		if err != nil {
			conn.Close()
			return fmt.Errorf("nats: create kv bucket %s: %w", d.bucket, err)
		}
	}

	d.mu.Lock()
	d.conn = conn
	d.js = js
	d.kv = kv
	d.mu.Unlock()
	return nil
}

// Register is a no-op: connecting and opening the KV bucket in Initialize
// already makes this node a visible writer, and there's no separate
// liveness entry to advertise the way a directory service's agent
// registration does.
func (d *NatsDriver) Register(ctx context.Context) error { return nil }

// Deregister removes every gate this node published, so peers watching the
// bucket see them disappear immediately rather than waiting on a lease
// expiry.
func (d *NatsDriver) Deregister(ctx context.Context) error {
	d.mu.Lock()
	kv := d.kv
	d.mu.Unlock()
	if kv == nil {
		return nil
	}

	keys, err := kv.Keys()
	if err != nil {
		if err == nats.ErrNoKeysFound {
			return nil
		}
		return fmt.Errorf("nats: listing keys: %w", err)
	}
	prefix := d.localSystemID + "."
	for _, key := range keys {
		if strings.HasPrefix(key, prefix) {
			if err := kv.Delete(key); err != nil {
				d.logger.Warnf("nats: deleting gate %s: %v", key, err)
			}
		}
	}
	return nil
}

// DiscoverPeers lists every gate key in the bucket.
func (d *NatsDriver) DiscoverPeers(ctx context.Context) ([]PeerGate, error) {
	d.mu.Lock()
	kv := d.kv
	d.mu.Unlock()
	if kv == nil {
		return nil, ErrDriverNotInitialized
	}

	keys, err := kv.Keys()
	if err != nil {
		if err == nats.ErrNoKeysFound {
			return nil, nil
		}
		return nil, fmt.Errorf("nats: listing keys: %w", err)
	}

	var peers []PeerGate
	for _, key := range keys {
		systemID, channelID, ok := d.parseGateKey(key)
		if !ok || systemID == d.localSystemID {
			continue
		}
		entry, err := kv.Get(key)
		if err != nil {
			d.logger.Warnf("nats: fetching gate %s: %v", key, err)
			continue
		}
		var props map[string]string
		if err := msgpack.Unmarshal(entry.Value(), &props); err != nil {
			d.logger.Warnf("nats: decoding gate %s: %v", key, err)
			continue
		}
		peers = append(peers, PeerGate{SystemID: systemID, ChannelID: channelID, ChannelData: props})
	}
	return peers, nil
}

// Watch opens a JetStream KV watch over the whole bucket and translates
// Put/Delete entries directly into GateUpserted/GateRemoved — KV watch
// also replays every current key on open, which is how a late-joining
// watcher still converges onto gates published before it subscribed.
func (d *NatsDriver) Watch(ctx context.Context) (<-chan Event, error) {
	d.mu.Lock()
	kv := d.kv
	if d.watch != nil {
		d.mu.Unlock()
		return nil, ErrAlreadyWatching
	}
	d.mu.Unlock()
	if kv == nil {
		return nil, ErrDriverNotInitialized
	}

	watcher, err := kv.WatchAll()
	if err != nil {
		return nil, fmt.Errorf("nats: watching bucket: %w", err)
	}

	d.mu.Lock()
	d.watch = watcher
	d.mu.Unlock()

	go d.translateWatch(ctx, watcher)
	return d.events, nil
}

func (d *NatsDriver) translateWatch(ctx context.Context, watcher nats.KeyWatcher) {
	defer watcher.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-watcher.Updates():
			if !ok {
				return
			}
			if entry == nil {
				// nil entry marks "caught up to current state", per
				// nats.go's KeyWatcher.Updates contract.
				continue
			}
			systemID, channelID, ok := d.parseGateKey(entry.Key())
			if !ok || systemID == d.localSystemID {
				continue
			}
			switch entry.Operation() {
			case nats.KeyValuePut:
				var props map[string]string
				if err := msgpack.Unmarshal(entry.Value(), &props); err != nil {
					d.logger.Warnf("nats: decoding gate %s: %v", entry.Key(), err)
					continue
				}
				d.emit(GateUpserted{SystemID: systemID, ChannelID: channelID, ChannelData: props})
			case nats.KeyValueDelete, nats.KeyValuePurge:
				d.emit(GateRemoved{SystemID: systemID, ChannelID: channelID})
			}
		}
	}
}

func (d *NatsDriver) emit(ev Event) {
	select {
	case d.events <- ev:
	default:
		d.logger.Warnf("nats: event buffer full, dropping %T", ev)
	}
}

// PublishChannel writes one gate key to the KV bucket.
func (d *NatsDriver) PublishChannel(ctx context.Context, systemID, channelID string, properties map[string]string) error {
	d.mu.Lock()
	kv := d.kv
	d.mu.Unlock()
	if kv == nil {
		return ErrDriverNotInitialized
	}
	value, err := msgpack.Marshal(properties)
	if err != nil {
		return err
	}
	_, err = kv.Put(d.gateKey(systemID, channelID), value)
	return err
}

// PublishService writes a service gate under a "services." sub-key.
func (d *NatsDriver) PublishService(ctx context.Context, serviceGate string, properties map[string]string) error {
	d.mu.Lock()
	kv := d.kv
	d.mu.Unlock()
	if kv == nil {
		return ErrDriverNotInitialized
	}
	value, err := msgpack.Marshal(properties)
	if err != nil {
		return err
	}
	_, err = kv.Put("services."+serviceGate, value)
	return err
}

// CancelService deletes a previously published service gate.
func (d *NatsDriver) CancelService(ctx context.Context, serviceGate string) error {
	d.mu.Lock()
	kv := d.kv
	d.mu.Unlock()
	if kv == nil {
		return ErrDriverNotInitialized
	}
	return kv.Delete("services." + serviceGate)
}

// Close stops the active watch, closes the connection, and closes the
// event stream.
func (d *NatsDriver) Close(ctx context.Context) error {
	d.mu.Lock()
	watch := d.watch
	conn := d.conn
	d.mu.Unlock()

	if watch != nil {
		_ = watch.Stop()
	}
	close(d.events)
	if conn != nil {
		conn.Close()
	}
	return nil
}

// gateKey uses "." rather than "/" since NATS subjects (and JetStream KV
// keys, which reuse subject syntax) treat "." as the hierarchy separator.
func (d *NatsDriver) gateKey(systemID, channelID string) string {
	return fmt.Sprintf("%s.%s", systemID, channelID)
}

func (d *NatsDriver) parseGateKey(key string) (systemID, channelID string, ok bool) {
	if strings.HasPrefix(key, "services.") {
		return "", "", false
	}
	parts := strings.SplitN(key, ".", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}
