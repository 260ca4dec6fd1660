package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tessel-systems/reactor/log"
)

func newTestEtcdDriver() *EtcdDriver {
	return NewEtcdDriver("etcd-test", "local-system", EtcdConfig{Prefix: "reactor/gates"}, log.Discard())
}

func TestEtcdDriver_GateKeyRoundTrips(t *testing.T) {
	d := newTestEtcdDriver()
	key := d.gateKey("peer-b", "chan-c")

	systemID, channelID, ok := d.parseGateKey(key)
	assert.True(t, ok)
	assert.Equal(t, "peer-b", systemID)
	assert.Equal(t, "chan-c", channelID)
}

func TestEtcdDriver_ParseGateKeyRejectsServiceKeys(t *testing.T) {
	d := newTestEtcdDriver()
	_, _, ok := d.parseGateKey("reactor/gates/services/orders-service")
	assert.False(t, ok)
}

func TestEtcdDriver_ParseGateKeyRejectsUnrelatedPrefix(t *testing.T) {
	d := newTestEtcdDriver()
	_, _, ok := d.parseGateKey("something/else")
	assert.False(t, ok)
}

func TestEtcdDriver_DefaultsAppliedWhenConfigIsZeroValue(t *testing.T) {
	d := NewEtcdDriver("etcd-test", "local-system", EtcdConfig{}, log.Discard())
	assert.Equal(t, "reactor/gates", d.prefix)
	assert.EqualValues(t, 10, d.ttl)
}
