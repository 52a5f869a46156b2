package service

import (
	"testing"

	"github.com/evdriver/evdriver/internal/config"
	"github.com/evdriver/evdriver/internal/core/domain"
	"github.com/evdriver/evdriver/pkg/evmodbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func regMap() config.RegisterMapConfig {
	return config.RegisterMapConfig{
		VoltageAddr:     0,
		CurrentAddr:     10,
		PowerAddr:       20,
		EnergyAddr:      30,
		StatusAddr:      40,
		StationMaxAddr:  0,
		ProductNameAddr: 100,
		ProductNameLen:  4,
		SerialAddr:      200,
		SerialLen:       4,
		FirmwareAddr:    300,
		FirmwareLen:     2,
		WordOrder:       "ABCD",
	}
}

func TestCollectAssemblesSnapshot(t *testing.T) {
	fp := evmodbus.NewFakePort()
	fp.Set(1, 0, evmodbus.EncodeF32(230, evmodbus.ABCD)...)
	fp.Set(1, 2, evmodbus.EncodeF32(231, evmodbus.ABCD)...)
	fp.Set(1, 4, evmodbus.EncodeF32(229, evmodbus.ABCD)...)
	fp.Set(1, 10, evmodbus.EncodeF32(10, evmodbus.ABCD)...)
	fp.Set(1, 40, 2) // status = Charging
	fp.Set(200, 0, evmodbus.EncodeF32(16, evmodbus.ABCD)...)

	c := NewCollector(regMap(), 1, 200)
	snap := c.Collect(fp)

	assert.True(t, snap.Voltage.L1.Ok)
	assert.InDelta(t, 230, snap.Voltage.L1.Value, 0.01)
	assert.Equal(t, domain.StatusCharging, snap.Status)
	assert.True(t, snap.StationMaxCurrentA.Ok)
	assert.InDelta(t, 16, snap.StationMaxCurrentA.Value, 0.01)
}

func TestCollectDowngradesFailedStepToMissing(t *testing.T) {
	fp := evmodbus.NewFakePort()
	fp.ReadErr = assertErr{}

	c := NewCollector(regMap(), 1, 200)
	snap := c.Collect(fp)

	assert.False(t, snap.Voltage.L1.Ok)
	assert.False(t, snap.StationMaxCurrentA.Ok)
	assert.Equal(t, domain.StatusDisconnected, snap.Status)
}

func TestCollectCachesIdentityOnce(t *testing.T) {
	fp := evmodbus.NewFakePort()
	fp.Set(200, 100, evmodbus.EncodeASCII("EVX1")...)
	fp.Set(200, 200, evmodbus.EncodeASCII("SN01")...)
	fp.Set(200, 300, evmodbus.EncodeASCII("v1")...)

	c := NewCollector(regMap(), 1, 200)
	snap := c.Collect(fp)
	require.True(t, snap.IdentityCached)
	assert.Equal(t, "EVX1", snap.ProductName)

	fp.ReadErr = assertErr{}
	snap2 := c.Collect(fp)
	assert.True(t, snap2.IdentityCached)
	assert.Equal(t, "EVX1", snap2.ProductName)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
