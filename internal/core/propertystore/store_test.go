package propertystore

import (
	"testing"

	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishBumpsRevisionOnChange(t *testing.T) {
	s := NewStore(&eventstream.EventStream{})
	s.Publish("/Status", "Connected")
	e, ok := s.Get("/Status")
	require.True(t, ok)
	assert.Equal(t, uint64(1), e.Revision)

	s.Publish("/Status", "Charging")
	e, _ = s.Get("/Status")
	assert.Equal(t, uint64(2), e.Revision)
}

func TestPublishNoOpWithinEpsilon(t *testing.T) {
	s := NewStore(&eventstream.EventStream{})
	s.Publish("/Ac/Power", float64(1000.0))
	s.Publish("/Ac/Power", float64(1000.0005))
	e, _ := s.Get("/Ac/Power")
	assert.Equal(t, uint64(1), e.Revision, "within power epsilon must not bump revision")
}

func TestPublishEnergyUsesWiderEpsilon(t *testing.T) {
	s := NewStore(&eventstream.EventStream{})
	s.Publish("/Ac/Energy/Forward", float64(100.0))
	s.Publish("/Ac/Energy/Forward", float64(100.005))
	e, _ := s.Get("/Ac/Energy/Forward")
	assert.Equal(t, uint64(1), e.Revision)

	s.Publish("/Ac/Energy/Forward", float64(100.02))
	e, _ = s.Get("/Ac/Energy/Forward")
	assert.Equal(t, uint64(2), e.Revision)
}

func TestSubscriberReceivesChanges(t *testing.T) {
	stream := &eventstream.EventStream{}
	s := NewStore(stream)
	sub := NewSubscriber(stream)
	defer sub.Close(stream)

	s.Publish("/Status", "Charging")

	entry, ok := sub.Next()
	require.True(t, ok)
	assert.Equal(t, "/Status", entry.Path)
	assert.Equal(t, "Charging", entry.Value)
}

func TestSubscriberCoalescesSamePath(t *testing.T) {
	stream := &eventstream.EventStream{}
	s := NewStore(stream)
	sub := NewSubscriber(stream)
	defer sub.Close(stream)

	s.Publish("/Ac/Power", float64(100))
	s.Publish("/Ac/Power", float64(200))
	s.Publish("/Ac/Power", float64(300))

	entry, ok := sub.Next()
	require.True(t, ok)
	assert.Equal(t, float64(300), entry.Value, "coalesced delivery must carry only the latest value")

	_, ok = sub.TryNext()
	assert.False(t, ok, "no second pending change for the same path")
}
