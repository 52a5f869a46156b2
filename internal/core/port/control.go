package port

import (
	"time"

	"github.com/evdriver/evdriver/internal/core/domain"
)

// ModeInput is the input to a single mode evaluator Evaluate call, the
// generalisation of the teacher's Loop(prevPowerValue, storageState, ...)
// signature to "whatever one mode needs", carried as a struct instead of
// positional parameters since three modes each need a different subset.
type ModeInput struct {
	Snapshot domain.Snapshot
	Intent   domain.Intent
	Now      time.Time

	// PVSurplusW is the optional signed watts value from an external
	// source (Auto mode only); nil when unavailable.
	PVSurplusW *float64

	// StationMaxA is the hardware-advertised cap, already extracted from
	// Snapshot for convenience (0 if missing, callers treat as "unknown").
	StationMaxA float64
	ConfiguredCeilingA float64

	PhasePolicy domain.PhaseSwitchPolicy
}

// ModeOutput is a mode evaluator's result for one tick: grounded directly
// on domain.BatteryChargeControlTickResult's {NewPowerValue, Exit} shape,
// generalised to current+enabled+phase-switch. The logical status is not
// part of it: the Control Engine derives it with domain.LogicalStatus.
type ModeOutput struct {
	TargetCurrentA float64
	Enabled        bool
	PhaseCommand   *int
}

// ModeEvaluator is implemented once per charging strategy (Manual, Auto,
// Scheduled). The Control Engine actor is a dispatcher over this interface,
// grounded on port.BatteryChargeControlLogic in the teacher.
type ModeEvaluator interface {
	Evaluate(in ModeInput) ModeOutput
}
