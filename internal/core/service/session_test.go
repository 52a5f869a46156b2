package service

import (
	"testing"
	"time"

	"github.com/evdriver/evdriver/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionOpensOnChargingTransition(t *testing.T) {
	tr := NewTracker(10)
	now := time.Now()
	transitioned := tr.Tick(now, domain.StatusCharging, domain.OkF64(100), domain.OkF32(3000), nil)
	assert.True(t, transitioned)
	require.NotNil(t, tr.OpenSession())
	assert.NotEmpty(t, tr.OpenSession().ID)
}

func TestSessionOneTickBlipDoesNotClose(t *testing.T) {
	tr := NewTracker(10)
	now := time.Now()
	tr.Tick(now, domain.StatusCharging, domain.OkF64(100), domain.OkF32(3000), nil)
	now = now.Add(time.Second)
	tr.Tick(now, domain.StatusConnected, domain.OkF64(100.1), domain.OkF32(0), nil)
	require.NotNil(t, tr.OpenSession(), "single blip must not close the session")
	now = now.Add(time.Second)
	tr.Tick(now, domain.StatusCharging, domain.OkF64(100.2), domain.OkF32(3000), nil)
	require.NotNil(t, tr.OpenSession())
}

func TestSessionTwoConsecutiveNonChargingClose(t *testing.T) {
	tr := NewTracker(10)
	now := time.Now()
	tr.Tick(now, domain.StatusCharging, domain.OkF64(100), domain.OkF32(3000), nil)
	now = now.Add(time.Second)
	tr.Tick(now, domain.StatusConnected, domain.OkF64(100.1), domain.OkF32(0), nil)
	now = now.Add(time.Second)
	closed := tr.Tick(now, domain.StatusConnected, domain.OkF64(100.1), domain.OkF32(0), nil)
	assert.True(t, closed)
	assert.Nil(t, tr.OpenSession())
	require.Len(t, tr.History(), 1)
	assert.True(t, tr.History()[0].Closed)
}

func TestSessionCounterResetClampsToZero(t *testing.T) {
	tr := NewTracker(10)
	now := time.Now()
	tr.Tick(now, domain.StatusCharging, domain.OkF64(12345.7), domain.OkF32(3000), nil)
	before := tr.OpenSession().EnergyDeliveredKWh
	now = now.Add(time.Second)
	tr.Tick(now, domain.StatusCharging, domain.OkF64(0.1), domain.OkF32(3000), nil)
	assert.Equal(t, before, tr.OpenSession().EnergyDeliveredKWh, "counter reset must not reduce energy_delivered")
}

func TestSessionRestoreKeepsIdenticalID(t *testing.T) {
	tr := NewTracker(10)
	start := time.Now()
	tr.Tick(start, domain.StatusCharging, domain.OkF64(12345.6), domain.OkF32(3000), nil)
	id := tr.OpenSession().ID

	persisted := tr.SnapshotForPersistence(domain.DefaultIntent())

	restored := NewTracker(10)
	restored.Restore(persisted)
	require.NotNil(t, restored.OpenSession())
	assert.Equal(t, id, restored.OpenSession().ID)

	later := start.Add(2 * time.Second)
	restored.Tick(later, domain.StatusCharging, domain.OkF64(12345.7), domain.OkF32(3000), nil)
	assert.InDelta(t, 0.1, restored.OpenSession().EnergyDeliveredKWh, 1e-9)
}

func TestSessionCostAccumulatesWithPrice(t *testing.T) {
	tr := NewTracker(10)
	now := time.Now()
	tr.Tick(now, domain.StatusCharging, domain.OkF64(100), domain.OkF32(3000), nil)
	price := 0.30
	now = now.Add(time.Second)
	tr.Tick(now, domain.StatusCharging, domain.OkF64(100.5), domain.OkF32(3000), &price)
	require.NotNil(t, tr.OpenSession().Cost)
	assert.InDelta(t, 0.15, *tr.OpenSession().Cost, 1e-9)
	assert.False(t, tr.OpenSession().CostGap)
}
