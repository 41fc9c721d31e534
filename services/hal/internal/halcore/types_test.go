package halcore

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"baro-go/transport"
)

func TestTransportBuses(t *testing.T) {
	o, ok := TransportBuses{}.Opener(transport.BackendPeriph)
	assert.True(t, ok)
	assert.NotNil(t, o)

	_, ok = TransportBuses{}.Opener("no-such-backend")
	assert.False(t, ok)
}
