package service

import (
	"time"

	"github.com/evdriver/evdriver/internal/config"
	"github.com/evdriver/evdriver/internal/core/domain"
	"github.com/evdriver/evdriver/internal/core/port"
	"github.com/evdriver/evdriver/pkg/evmodbus"
)

// Collector runs the Measurement Collector's deterministic per-tick read
// plan against a port.ModbusPort and assembles a domain.Snapshot,
// caching product/serial/firmware once they are first read successfully.
// Grounded on the teacher's SunSpecModbusReader.Init()-then-per-tick-reads
// shape, generalised from SunSpec model blocks to this charger's flat
// register map.
type Collector struct {
	regs       config.RegisterMapConfig
	socketUnit uint8
	stationUnit uint8

	cachedIdentity bool
	productName    string
	serial         string
	firmware       string
}

func NewCollector(regs config.RegisterMapConfig, socketUnit, stationUnit uint8) *Collector {
	return &Collector{regs: regs, socketUnit: socketUnit, stationUnit: stationUnit}
}

// Registers exposes the register map the collector was built with, for
// the Modbus adapter actor's write path.
func (c *Collector) Registers() config.RegisterMapConfig { return c.regs }

// SocketUnit is the logical unit-id the writable registers live behind.
func (c *Collector) SocketUnit() uint8 { return c.socketUnit }

// WordOrder exposes the collector's decode/encode word order so writers
// use the same convention as reads.
func (c *Collector) WordOrder() evmodbus.WordOrder { return c.wordOrder() }

func (c *Collector) wordOrder() evmodbus.WordOrder {
	if c.regs.WordOrder == "CDAB" {
		return evmodbus.CDAB
	}
	return evmodbus.ABCD
}

// Collect executes the read plan in spec order: voltages, currents,
// powers, energy, status, station max, then identity once. Any single
// step's failure downgrades only that step's Snapshot fields to
// "missing" and the tick still completes.
func (c *Collector) Collect(mb port.ModbusPort) domain.Snapshot {
	snap := domain.Snapshot{TakenAt: time.Now()}
	order := c.wordOrder()

	snap.Voltage = c.readTriplet(mb, c.socketUnit, c.regs.VoltageAddr, order)
	snap.Current = c.readTriplet(mb, c.socketUnit, c.regs.CurrentAddr, order)
	snap.Power = c.readTriplet(mb, c.socketUnit, c.regs.PowerAddr, order)

	if words, err := mb.ReadHolding(c.socketUnit, c.regs.EnergyAddr, 4); err == nil {
		snap.LifetimeEnergyKWh = evmodbus.DecodeF64(words, order)
	}

	if words, err := mb.ReadHolding(c.socketUnit, c.regs.StatusAddr, 1); err == nil && len(words) == 1 {
		snap.Status = domain.StatusCode(words[0])
	}

	if words, err := mb.ReadHolding(c.stationUnit, c.regs.StationMaxAddr, 2); err == nil {
		snap.StationMaxCurrentA = evmodbus.DecodeF32(words, order)
	}

	snap.ActivePhases = c.activePhases(snap)

	snap.AggregatePowerW = c.aggregatePower(snap)

	if !c.cachedIdentity {
		c.tryCacheIdentity(mb)
	}
	snap.ProductName = c.productName
	snap.Serial = c.serial
	snap.FirmwareVersion = c.firmware
	snap.IdentityCached = c.cachedIdentity

	return snap
}

func (c *Collector) readTriplet(mb port.ModbusPort, unit uint8, addr uint16, order evmodbus.WordOrder) domain.PhaseTriplet {
	words, err := mb.ReadHolding(unit, addr, 6)
	if err != nil || len(words) < 6 {
		return domain.PhaseTriplet{}
	}
	return domain.PhaseTriplet{
		L1: evmodbus.DecodeF32(words[0:2], order),
		L2: evmodbus.DecodeF32(words[2:4], order),
		L3: evmodbus.DecodeF32(words[4:6], order),
	}
}

// activePhases infers the phase count from which current channels carry
// nonzero draw; falls back to 1 when nothing is readable.
func (c *Collector) activePhases(snap domain.Snapshot) int {
	active := 0
	for _, v := range []domain.F32{snap.Current.L1, snap.Current.L2, snap.Current.L3} {
		if v.Ok && v.Value > 0.1 {
			active++
		}
	}
	if active >= 2 {
		return 3
	}
	return 1
}

// aggregatePower sums per-phase power for Σ(V·I), used as the fallback
// when the driver has no separate aggregate-power register of its own
// (this register map exposes only per-phase power) and as the value the
// spec's "if reported as 0 while currents are nonzero, fall back" rule
// targets.
func (c *Collector) aggregatePower(snap domain.Snapshot) domain.F32 {
	if sum, ok := snap.Power.Sum(); ok && sum != 0 {
		return domain.OkF32(sum)
	}
	var currentSum float32
	var anyCurrent bool
	for i, cur := range []domain.F32{snap.Current.L1, snap.Current.L2, snap.Current.L3} {
		volt := []domain.F32{snap.Voltage.L1, snap.Voltage.L2, snap.Voltage.L3}[i]
		if cur.Ok && cur.Value > 0 {
			v := volt.Value
			if !volt.Ok {
				v = 230
			}
			currentSum += cur.Value * v
			anyCurrent = true
		}
	}
	if anyCurrent {
		return domain.OkF32(currentSum)
	}
	if sum, ok := snap.Power.Sum(); ok {
		return domain.OkF32(sum)
	}
	return domain.MissingF32
}

func (c *Collector) tryCacheIdentity(mb port.ModbusPort) {
	product, okP := c.readASCII(mb, c.regs.ProductNameAddr, c.regs.ProductNameLen)
	serial, okS := c.readASCII(mb, c.regs.SerialAddr, c.regs.SerialLen)
	firmware, okF := c.readASCII(mb, c.regs.FirmwareAddr, c.regs.FirmwareLen)
	if okP && okS && okF {
		c.productName = product
		c.serial = serial
		c.firmware = firmware
		c.cachedIdentity = true
	}
}

func (c *Collector) readASCII(mb port.ModbusPort, addr, length uint16) (string, bool) {
	if length == 0 {
		return "", false
	}
	words, err := mb.ReadHolding(c.stationUnit, addr, length)
	if err != nil {
		return "", false
	}
	return evmodbus.DecodeASCII(words), true
}
