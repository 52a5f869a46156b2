package service

import (
	"time"

	"github.com/evdriver/evdriver/internal/core/domain"
	"github.com/evdriver/evdriver/internal/core/port"
)

// AutoMode follows household solar surplus. Grace and phase-switch timers
// are kept as timestamps, not countdowns, per the design note that this
// must survive dropped ticks and overruns; a zero time means "not running".
type AutoMode struct {
	DipGrace          time.Duration
	PhaseHysteresis    time.Duration
	PhaseSwitchMarginA float64
	PhaseStopHold      time.Duration

	dipSince       time.Time
	wasCharging    bool
	phaseFlipSince time.Time
	lastPhases     int
}

func NewAutoMode() *AutoMode {
	return &AutoMode{
		DipGrace:           domain.DefaultDipGraceSec * time.Second,
		PhaseHysteresis:    domain.DefaultPhaseHysteresisSec * time.Second,
		PhaseSwitchMarginA: domain.DefaultPhaseSwitchMarginA,
		PhaseStopHold:      domain.DefaultPhaseStopHoldSec * time.Second,
	}
}

func (m *AutoMode) Evaluate(in port.ModeInput) port.ModeOutput {
	ceiling := effectiveCeiling(in)
	phases := in.Snapshot.ActivePhases
	if phases == 0 {
		phases = 1
	}

	voltage, ok := in.Snapshot.Voltage.Mean()
	if !ok {
		voltage = 230
	}

	var pvSurplus float64
	if in.PVSurplusW != nil {
		pvSurplus = *in.PVSurplusW
	}
	chargerPowerW, _ := in.Snapshot.AggregatePowerW.Value, in.Snapshot.AggregatePowerW.Ok

	candidate := (pvSurplus + float64(chargerPowerW)) / (float64(phases) * float64(voltage))
	if candidate > ceiling {
		candidate = ceiling
	}

	wasCharging := in.Intent.StartStop == 1 && in.Snapshot.Status == domain.StatusCharging

	var out port.ModeOutput
	if candidate < domain.MinSetCurrentA {
		switch {
		case wasCharging:
			if m.dipSince.IsZero() {
				m.dipSince = in.Now
			}
			if in.Now.Sub(m.dipSince) >= m.DipGrace {
				out = port.ModeOutput{TargetCurrentA: domain.MinSetCurrentA, Enabled: false}
				m.dipSince = time.Time{}
			} else {
				out = port.ModeOutput{TargetCurrentA: domain.MinSetCurrentA, Enabled: true}
			}
		default:
			// cold start or already waiting: no grace timer starts
			m.dipSince = time.Time{}
			out = port.ModeOutput{TargetCurrentA: domain.MinSetCurrentA, Enabled: false}
		}
	} else {
		m.dipSince = time.Time{}
		out = port.ModeOutput{TargetCurrentA: candidate, Enabled: true}
	}

	out.PhaseCommand = m.evaluatePhaseSwitch(in, candidate, phases, ceiling)
	return out
}

// evaluatePhaseSwitch implements the hysteretic 1<->3 phase switch: only
// switches when the candidate would sustain the other phase count for
// PhaseHysteresis by PhaseSwitchMarginA above the boundary (3A per phase).
// When phase switching is unsupported the hysteresis bookkeeping still
// runs (so its unit tests stay meaningful) but no command is ever emitted.
func (m *AutoMode) evaluatePhaseSwitch(in port.ModeInput, candidate float64, currentPhases int, ceiling float64) *int {
	boundary3to1 := 3 * 3.0 // 3A per phase * 3 phases: a 1-phase candidate must clear this (plus margin) to switch to 3
	target := currentPhases

	switch currentPhases {
	case 1:
		if candidate >= boundary3to1+m.PhaseSwitchMarginA {
			target = 3
		}
	case 3:
		singlePhaseEquivalent := candidate * float64(currentPhases)
		if singlePhaseEquivalent < 3*1.0-m.PhaseSwitchMarginA {
			target = 1
		}
	}

	if target == m.lastPhases || m.lastPhases == 0 {
		if target != currentPhases {
			if m.phaseFlipSince.IsZero() {
				m.phaseFlipSince = in.Now
			}
		} else {
			m.phaseFlipSince = time.Time{}
		}
	}
	m.lastPhases = target

	if target == currentPhases {
		return nil
	}
	if m.phaseFlipSince.IsZero() || in.Now.Sub(m.phaseFlipSince) < m.PhaseHysteresis {
		return nil
	}
	if !in.PhasePolicy.Supported {
		return nil
	}
	m.phaseFlipSince = time.Time{}
	t := target
	return &t
}
