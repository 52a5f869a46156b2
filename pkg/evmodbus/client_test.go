package evmodbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientStartsDisconnected(t *testing.T) {
	c := NewClient(DefaultConfig())
	assert.Equal(t, Disconnected, c.State())
}

func TestReadHoldingWhenDisconnectedFails(t *testing.T) {
	c := NewClient(DefaultConfig())
	_, err := c.ReadHolding(1, 100, 2)
	require.Error(t, err)
	var cerr *ClientError
	require.ErrorAs(t, err, &cerr)
}

func TestBackoffSequenceAndReset(t *testing.T) {
	c := NewClient(DefaultConfig())
	want := []time.Duration{
		500 * time.Millisecond, time.Second, 2 * time.Second, 5 * time.Second, 10 * time.Second, 10 * time.Second,
	}
	for _, w := range want {
		assert.Equal(t, w, c.NextBackoff())
	}
	c.resetBackoff()
	assert.Equal(t, 500*time.Millisecond, c.NextBackoff())
}
