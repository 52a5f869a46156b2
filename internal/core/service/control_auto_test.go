package service

import (
	"testing"
	"time"

	"github.com/evdriver/evdriver/internal/core/domain"
	"github.com/evdriver/evdriver/internal/core/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseAutoInput(now time.Time, status domain.StatusCode, pv float64) port.ModeInput {
	return port.ModeInput{
		Snapshot: domain.Snapshot{
			Status:       status,
			ActivePhases: 1,
			Voltage:      domain.PhaseTriplet{L1: domain.OkF32(230)},
		},
		Intent:             domain.Intent{Mode: domain.ModeAuto, StartStop: 1, SetCurrentA: 6},
		Now:                now,
		PVSurplusW:         &pv,
		ConfiguredCeilingA: domain.MaxSetCurrentA,
	}
}

func TestAutoColdStartBelowMinimum(t *testing.T) {
	m := NewAutoMode()
	now := time.Now()
	pv := 800.0
	in := baseAutoInput(now, domain.StatusConnected, pv)
	out := m.Evaluate(in)
	assert.Equal(t, domain.MinSetCurrentA, out.TargetCurrentA)
	assert.False(t, out.Enabled)
	assert.Equal(t, "Wait sun", domain.LogicalStatus(domain.StatusConnected, domain.ModeAuto, out.Enabled))
}

func TestAutoDipGraceDoesNotExpireWithinWindow(t *testing.T) {
	m := NewAutoMode()
	now := time.Now()
	pv := 2000.0
	in := baseAutoInput(now, domain.StatusCharging, pv)
	out := m.Evaluate(in)
	require.True(t, out.Enabled)

	dipPV := 200.0
	dipIn := baseAutoInput(now, domain.StatusCharging, dipPV)
	dipIn.PVSurplusW = &dipPV
	out = m.Evaluate(dipIn)
	assert.True(t, out.Enabled)
	assert.Equal(t, domain.MinSetCurrentA, out.TargetCurrentA)

	laterIn := dipIn
	laterIn.Now = now.Add(60 * time.Second)
	out = m.Evaluate(laterIn)
	assert.True(t, out.Enabled, "grace period of 90s has not elapsed at 60s")

	recoveredIn := baseAutoInput(now.Add(61*time.Second), domain.StatusCharging, 2000)
	out = m.Evaluate(recoveredIn)
	assert.True(t, out.Enabled)
}

func TestAutoDipGraceExpiresAfterWindow(t *testing.T) {
	m := NewAutoMode()
	now := time.Now()
	dipPV := 200.0
	dipIn := baseAutoInput(now, domain.StatusCharging, dipPV)
	m.Evaluate(dipIn)

	expiredIn := baseAutoInput(now.Add(91*time.Second), domain.StatusCharging, dipPV)
	out := m.Evaluate(expiredIn)
	assert.False(t, out.Enabled)
	assert.Equal(t, "Wait sun", domain.LogicalStatus(domain.StatusCharging, domain.ModeAuto, out.Enabled))
}
