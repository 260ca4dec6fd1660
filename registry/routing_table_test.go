package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoutingTable_UpsertThenLookupConverges(t *testing.T) {
	table := NewRoutingTable()
	table.Upsert("peer-b", "chan-c", map[string]string{"addr": "10.0.0.2:9000"})

	data, ok := table.Lookup("peer-b", "chan-c")
	assert.True(t, ok)
	assert.Equal(t, "10.0.0.2:9000", data["addr"])
}

func TestRoutingTable_UpsertReplacesStaleData(t *testing.T) {
	table := NewRoutingTable()
	table.Upsert("peer-b", "chan-c", map[string]string{"addr": "old"})
	table.Upsert("peer-b", "chan-c", map[string]string{"addr": "new"})

	data, ok := table.Lookup("peer-b", "chan-c")
	assert.True(t, ok)
	assert.Equal(t, "new", data["addr"])
	assert.Len(t, table.ChannelsFor("peer-b"), 1)
}

func TestRoutingTable_RemoveDropsPeerWhenLastChannelGone(t *testing.T) {
	table := NewRoutingTable()
	table.Upsert("peer-b", "chan-c", map[string]string{})
	table.Remove("peer-b", "chan-c")

	_, ok := table.Lookup("peer-b", "chan-c")
	assert.False(t, ok)
	assert.Empty(t, table.Peers())
}

func TestRoutingTable_RemoveUnknownGateIsNoOp(t *testing.T) {
	table := NewRoutingTable()
	assert.NotPanics(t, func() {
		table.Remove("ghost", "chan-c")
	})
}

func TestRoutingTable_RemoveSystemDropsEveryGate(t *testing.T) {
	table := NewRoutingTable()
	table.Upsert("peer-b", "chan-c", map[string]string{})
	table.Upsert("peer-b", "chan-d", map[string]string{})
	table.RemoveSystem("peer-b")

	assert.Empty(t, table.ChannelsFor("peer-b"))
}

func TestRoutingTable_LookupMissingReturnsFalse(t *testing.T) {
	table := NewRoutingTable()
	_, ok := table.Lookup("nope", "nope")
	assert.False(t, ok)
}
