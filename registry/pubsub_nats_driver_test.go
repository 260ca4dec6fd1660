package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tessel-systems/reactor/log"
)

func newTestNatsDriver() *NatsDriver {
	return NewNatsDriver("nats-test", "local-system", NatsConfig{}, log.Discard())
}

func TestNatsDriver_GateKeyRoundTrips(t *testing.T) {
	d := newTestNatsDriver()
	key := d.gateKey("peer-b", "chan-c")

	systemID, channelID, ok := d.parseGateKey(key)
	assert.True(t, ok)
	assert.Equal(t, "peer-b", systemID)
	assert.Equal(t, "chan-c", channelID)
}

func TestNatsDriver_ParseGateKeyRejectsServiceKeys(t *testing.T) {
	d := newTestNatsDriver()
	_, _, ok := d.parseGateKey("services.orders-service")
	assert.False(t, ok)
}

func TestNatsDriver_ParseGateKeyRejectsMalformedKey(t *testing.T) {
	d := newTestNatsDriver()
	_, _, ok := d.parseGateKey("no-separator")
	assert.False(t, ok)
}

func TestNatsDriver_DefaultsAppliedWhenConfigIsZeroValue(t *testing.T) {
	d := NewNatsDriver("nats-test", "local-system", NatsConfig{}, log.Discard())
	assert.Equal(t, "reactor-gates", d.bucket)
	assert.Equal(t, 5, d.connectRetries)
}
