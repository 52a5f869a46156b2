package service

import (
	"testing"

	"github.com/evdriver/evdriver/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeModeAccepts(t *testing.T) {
	cases := []struct {
		raw  any
		want domain.Mode
	}{
		{0, domain.ModeManual},
		{"auto", domain.ModeAuto},
		{"Scheduled", domain.ModeScheduled},
		{true, domain.ModeAuto},
		{false, domain.ModeManual},
		{2.0, domain.ModeScheduled},
	}
	for _, c := range cases {
		got, err := NormalizeMode(c.raw)
		require.NoError(t, err)
		assert.Equal(t, c.want, got)
	}
}

func TestNormalizeModeRejectsGarbage(t *testing.T) {
	_, err := NormalizeMode("banana")
	assert.Error(t, err)
	_, err = NormalizeMode(99)
	assert.Error(t, err)
	_, err = NormalizeMode(3.5)
	assert.Error(t, err)
}

func TestNormalizeStartStopTruthy(t *testing.T) {
	cases := []struct {
		raw  any
		want int
	}{
		{true, 1}, {false, 0}, {1, 1}, {0, 0}, {"on", 1}, {"off", 0}, {"1", 1}, {2.5, 1},
	}
	for _, c := range cases {
		got, err := NormalizeStartStop(c.raw)
		require.NoError(t, err)
		assert.Equal(t, c.want, got)
	}
}

func TestNormalizeSetCurrentClampsLow(t *testing.T) {
	v, notice := NormalizeSetCurrent(5.9)
	assert.Equal(t, 6.0, v)
	assert.NotEmpty(t, notice)
}

func TestNormalizeSetCurrentClampsHigh(t *testing.T) {
	v, notice := NormalizeSetCurrent(40)
	assert.Equal(t, 32.0, v)
	assert.NotEmpty(t, notice)
}

func TestNormalizeSetCurrentWithinRange(t *testing.T) {
	v, notice := NormalizeSetCurrent(16)
	assert.Equal(t, 16.0, v)
	assert.Empty(t, notice)
}

func TestApplyCommandRejectsBadMode(t *testing.T) {
	intent := domain.DefaultIntent()
	rej := ApplyCommand(&intent, domain.SetMode{Raw: "nonsense"})
	require.NotNil(t, rej)
	assert.Equal(t, domain.ModeManual, intent.Mode)
}

func TestApplyCommandSetCurrentNeverRejects(t *testing.T) {
	intent := domain.DefaultIntent()
	rej := ApplyCommand(&intent, domain.SetCurrent{Amps: 3})
	assert.Nil(t, rej)
	assert.Equal(t, domain.MinSetCurrentA, intent.SetCurrentA)
}
