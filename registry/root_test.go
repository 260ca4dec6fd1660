package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessel-systems/reactor/log"
	"github.com/tessel-systems/reactor/reactor"
)

func newTestSystem(t *testing.T) *reactor.System {
	t.Helper()
	sys := reactor.NewSystem("registry-test", reactor.WithLogger(log.Discard()))
	require.NoError(t, sys.Start(context.Background()))
	t.Cleanup(func() {
		_ = sys.Shutdown(context.Background())
	})
	return sys
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestRemotingRoot_BootstrapsAndPublishesLocalChannels(t *testing.T) {
	sys := newTestSystem(t)
	driver := newFakeDriver("gossip-1")

	channels := []ChannelPublication{
		{ChannelID: reactor.ChannelID{Type: "journal", Name: "orders"}, Properties: map[string]string{"durable": "true"}},
	}
	root, err := Spawn(sys, channels, driver)
	require.NoError(t, err)

	waitFor(t, time.Second, func() bool {
		return len(driver.publishedChannels()) == 1
	})

	published := driver.publishedChannels()[0]
	assert.Equal(t, sys.ID().String(), published.SystemID)
	assert.Equal(t, "journal:orders", published.ChannelID)
	assert.Equal(t, "true", published.Properties["durable"])
	assert.Zero(t, root.SpuriousCount())
}

func TestRemotingRoot_GateUpsertConvergesIntoRoutingTable(t *testing.T) {
	sys := newTestSystem(t)
	driver := newFakeDriver("gossip-2")

	root, err := Spawn(sys, nil, driver)
	require.NoError(t, err)

	waitFor(t, time.Second, driver.isWatching)

	driver.push(GateUpserted{SystemID: "peer-b", ChannelID: "chan-c", ChannelData: map[string]string{"addr": "10.0.0.2"}})

	waitFor(t, time.Second, func() bool {
		_, ok := root.Table().Lookup("peer-b", "chan-c")
		return ok
	})

	data, ok := root.Table().Lookup("peer-b", "chan-c")
	require.True(t, ok)
	assert.Equal(t, "10.0.0.2", data["addr"])
}

func TestRemotingRoot_GateRemovedForPeerDropsRoute(t *testing.T) {
	sys := newTestSystem(t)
	driver := newFakeDriver("gossip-3")

	root, err := Spawn(sys, nil, driver)
	require.NoError(t, err)

	driver.push(GateUpserted{SystemID: "peer-b", ChannelID: "chan-c", ChannelData: map[string]string{}})
	waitFor(t, time.Second, func() bool {
		_, ok := root.Table().Lookup("peer-b", "chan-c")
		return ok
	})

	driver.push(GateRemoved{SystemID: "peer-b", ChannelID: "chan-c"})
	waitFor(t, time.Second, func() bool {
		_, ok := root.Table().Lookup("peer-b", "chan-c")
		return !ok
	})
}

func TestRemotingRoot_GateRemovedForLocalSystemRepublishes(t *testing.T) {
	sys := newTestSystem(t)
	driver := newFakeDriver("gossip-4")

	channels := []ChannelPublication{
		{ChannelID: reactor.ChannelID{Type: "journal", Name: "orders"}, Properties: map[string]string{}},
	}
	_, err := Spawn(sys, channels, driver)
	require.NoError(t, err)

	waitFor(t, time.Second, func() bool { return len(driver.publishedChannels()) == 1 })

	driver.push(GateRemoved{SystemID: sys.ID().String(), ChannelID: "journal:orders"})

	waitFor(t, time.Second, func() bool { return len(driver.publishedChannels()) == 2 })
}

func TestRemotingRoot_SpuriousMessageIsCountedNotFatal(t *testing.T) {
	sys := newTestSystem(t)
	driver := newFakeDriver("gossip-5")

	root, err := Spawn(sys, nil, driver)
	require.NoError(t, err)

	_, err = sys.Spawn("sender", reactor.NewReactionTable())
	require.NoError(t, err)

	_, err = root.Ref().Driver.Deliver(reactor.NewMessage(1, reactor.NoSender, root.Ref(), reactor.AckNone, "not a registry message"))
	require.NoError(t, err)

	waitFor(t, time.Second, func() bool { return root.SpuriousCount() == 1 })
}

func TestRemotingRoot_ServicePublicationFansOutToAllDrivers(t *testing.T) {
	sys := newTestSystem(t)
	d1 := newFakeDriver("dir-1")
	d2 := newFakeDriver("dir-2")

	root, err := Spawn(sys, nil, d1, d2)
	require.NoError(t, err)

	_, err = root.Ref().Driver.Deliver(reactor.NewMessage(1, reactor.NoSender, root.Ref(), reactor.AckNone,
		ServiceServicePublicationRequest{ServiceGate: "orders-service", ServiceProperties: map[string]string{"v": "1"}}))
	require.NoError(t, err)

	waitFor(t, time.Second, func() bool {
		d1.mu.Lock()
		d2.mu.Lock()
		defer d1.mu.Unlock()
		defer d2.mu.Unlock()
		return len(d1.services) == 1 && len(d2.services) == 1
	})
}
