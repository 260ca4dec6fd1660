package registry

import (
	"testing"

	"github.com/hashicorp/memberlist"
	"github.com/stretchr/testify/assert"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/tessel-systems/reactor/log"
)

func TestDecodeGossipGates_RoundTrips(t *testing.T) {
	gates := gossipGates{
		"chan-a": {"addr": "10.0.0.1:9000"},
		"chan-b": {"addr": "10.0.0.1:9001"},
	}
	encoded, err := msgpack.Marshal(gates)
	assert.NoError(t, err)

	decoded := decodeGossipGates(encoded)
	assert.Equal(t, gates, decoded)
}

func TestDecodeGossipGates_EmptyMetaReturnsNil(t *testing.T) {
	assert.Nil(t, decodeGossipGates(nil))
	assert.Nil(t, decodeGossipGates([]byte{}))
}

func TestDecodeGossipGates_GarbageReturnsNil(t *testing.T) {
	assert.Nil(t, decodeGossipGates([]byte{0xff, 0xff, 0xff}))
}

func TestGossipDriver_SyncPeerEmitsUpsertThenRemoveOnDiff(t *testing.T) {
	g := NewGossipDriver("gossip-test", "local-system", "127.0.0.1", 0, nil, log.Discard())

	first := gossipGates{"chan-a": {"addr": "1"}, "chan-b": {"addr": "2"}}
	encoded, err := msgpack.Marshal(first)
	assert.NoError(t, err)
	g.syncPeer(&memberlist.Node{Name: "peer-b", Meta: encoded})

	upsertA := drainEvent(t, g.events)
	upsertB := drainEvent(t, g.events)
	assertGateUpserted(t, upsertA, "peer-b")
	assertGateUpserted(t, upsertB, "peer-b")

	second := gossipGates{"chan-a": {"addr": "1"}}
	encoded, err = msgpack.Marshal(second)
	assert.NoError(t, err)
	g.syncPeer(&memberlist.Node{Name: "peer-b", Meta: encoded})

	upsertAgain := drainEvent(t, g.events)
	assertGateUpserted(t, upsertAgain, "peer-b")

	removed := drainEvent(t, g.events)
	gone, ok := removed.(GateRemoved)
	assert.True(t, ok)
	assert.Equal(t, "chan-b", gone.ChannelID)
}

func drainEvent(t *testing.T, ch chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	default:
		t.Fatal("expected an event, found none buffered")
		return nil
	}
}

func assertGateUpserted(t *testing.T, ev Event, systemID string) {
	t.Helper()
	up, ok := ev.(GateUpserted)
	assert.True(t, ok)
	assert.Equal(t, systemID, up.SystemID)
}
