package registry

import (
	"context"
	"sync"
)

// fakeDriver is an in-memory RegistryDriver stand-in: Initialize/Register
// always succeed, PublishChannel/PublishService/CancelService record their
// calls, and Watch serves whatever events the test pushes onto it via
// push(), mirroring what a real backend's delegate callback would do.
type fakeDriver struct {
	id string

	mu        sync.Mutex
	published []ReActorSystemChannelIdPublicationRequest
	services  []string
	cancelled []string
	closed    bool

	events   chan Event
	watching bool
}

func newFakeDriver(id string) *fakeDriver {
	return &fakeDriver{id: id, events: make(chan Event, 16)}
}

func (f *fakeDriver) ID() string { return f.id }

func (f *fakeDriver) Initialize(ctx context.Context) error { return nil }

func (f *fakeDriver) Register(ctx context.Context) error { return nil }

func (f *fakeDriver) Deregister(ctx context.Context) error { return nil }

func (f *fakeDriver) DiscoverPeers(ctx context.Context) ([]PeerGate, error) { return nil, nil }

func (f *fakeDriver) Watch(ctx context.Context) (<-chan Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.watching {
		return nil, ErrAlreadyWatching
	}
	f.watching = true
	return f.events, nil
}

func (f *fakeDriver) PublishChannel(ctx context.Context, systemID, channelID string, properties map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, ReActorSystemChannelIdPublicationRequest{SystemID: systemID, ChannelID: channelID, Properties: properties})
	return nil
}

func (f *fakeDriver) PublishService(ctx context.Context, serviceGate string, properties map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.services = append(f.services, serviceGate)
	return nil
}

func (f *fakeDriver) CancelService(ctx context.Context, serviceGate string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, serviceGate)
	return nil
}

func (f *fakeDriver) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeDriver) push(ev Event) { f.events <- ev }

func (f *fakeDriver) isWatching() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.watching
}

func (f *fakeDriver) publishedChannels() []ReActorSystemChannelIdPublicationRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ReActorSystemChannelIdPublicationRequest, len(f.published))
	copy(out, f.published)
	return out
}
