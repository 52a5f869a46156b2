package service

import (
	"github.com/evdriver/evdriver/internal/core/domain"
	"github.com/evdriver/evdriver/internal/core/port"
)

// ManualMode commands Intent.SetCurrentA directly, with no time or PV
// dependence, grounded on the teacher's DefaultBatteryControlLogic shape
// (a tunables-holding struct with a pure Evaluate method).
type ManualMode struct{}

func (ManualMode) Evaluate(in port.ModeInput) port.ModeOutput {
	ceiling := effectiveCeiling(in)
	target := clampCurrent(in.Intent.SetCurrentA, ceiling)
	enabled := in.Intent.StartStop == 1

	return port.ModeOutput{
		TargetCurrentA: target,
		Enabled:        enabled,
	}
}

func effectiveCeiling(in port.ModeInput) float64 {
	ceiling := in.ConfiguredCeilingA
	if in.StationMaxA > 0 && in.StationMaxA < ceiling {
		ceiling = in.StationMaxA
	}
	return ceiling
}

func clampCurrent(amps, ceiling float64) float64 {
	if amps < domain.MinSetCurrentA {
		amps = domain.MinSetCurrentA
	}
	if amps > ceiling {
		amps = ceiling
	}
	return amps
}
