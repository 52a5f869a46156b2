package domain

import (
	"time"

	"github.com/evdriver/evdriver/pkg/evmodbus"
)

type F32 = evmodbus.F32
type F64 = evmodbus.F64

func OkF32(v float32) F32 { return evmodbus.OkF32(v) }
func OkF64(v float64) F64 { return evmodbus.OkF64(v) }

var MissingF32 = evmodbus.MissingF32
var MissingF64 = evmodbus.MissingF64

// StatusCode is the raw charger status code as reported over Modbus.
type StatusCode uint16

const (
	StatusDisconnected StatusCode = 0
	StatusConnected    StatusCode = 1
	StatusCharging     StatusCode = 2
	StatusCharged      StatusCode = 3
	StatusWaitSun      StatusCode = 4
	StatusWaitStart    StatusCode = 6
	StatusLowSoC       StatusCode = 7
)

// String returns the human-readable name used when no coarse override applies.
func (s StatusCode) String() string {
	switch s {
	case StatusDisconnected:
		return "Disconnected"
	case StatusConnected:
		return "Connected"
	case StatusCharging:
		return "Charging"
	case StatusCharged:
		return "Charged"
	case StatusWaitSun:
		return "Wait sun"
	case StatusWaitStart:
		return "Wait start"
	case StatusLowSoC:
		return "Low SoC"
	default:
		return "Error"
	}
}

// IsCharging reports whether the raw status counts as "charging" for the
// session tracker's open/close transitions.
func (s StatusCode) IsCharging() bool {
	return s == StatusCharging
}

// PhaseTriplet holds one value per electrical phase, L1..L3.
type PhaseTriplet struct {
	L1, L2, L3 F32
}

// Mean returns the mean of the Ok values, and false if none are Ok.
func (p PhaseTriplet) Mean() (float32, bool) {
	var sum float32
	var n int
	for _, v := range []F32{p.L1, p.L2, p.L3} {
		if v.Ok {
			sum += v.Value
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float32(n), true
}

// Sum returns the sum of the Ok values, and false if none are Ok.
func (p PhaseTriplet) Sum() (float32, bool) {
	var sum float32
	var n int
	for _, v := range []F32{p.L1, p.L2, p.L3} {
		if v.Ok {
			sum += v.Value
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum, true
}

// Snapshot is the immutable, best-effort view of the charger assembled by
// the Measurement Collector on a single poll tick.
type Snapshot struct {
	TakenAt time.Time

	Voltage PhaseTriplet
	Current PhaseTriplet
	Power   PhaseTriplet

	// AggregatePowerW is the sum of the reported per-phase powers. If that
	// sum is exactly 0 while per-phase currents are non-zero, the collector
	// falls back to Σ(V·I).
	AggregatePowerW F32

	LifetimeEnergyKWh F64

	StationMaxCurrentA F32

	Status StatusCode

	ActivePhases int // 1 or 3

	ProductName     string
	Serial          string
	FirmwareVersion string
	IdentityCached  bool
}

// LogicalStatus maps raw status plus the engine's own decision into the
// coarse status published on /Status, per the engine's status-reporting rule.
// Low SoC always wins; otherwise a mode with charging-enabled=0 publishes
// its own waiting label regardless of the raw status underneath it (an
// Auto cold start reads raw=Connected but still publishes "Wait sun").
func LogicalStatus(raw StatusCode, mode Mode, enabled bool) string {
	switch {
	case raw == StatusLowSoC:
		return "Low SoC"
	case !enabled && mode == ModeAuto:
		return "Wait sun"
	case !enabled && mode == ModeScheduled:
		return "Wait start"
	default:
		return raw.String()
	}
}
