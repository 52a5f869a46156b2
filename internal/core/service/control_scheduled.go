package service

import (
	"time"

	"github.com/evdriver/evdriver/internal/core/domain"
	"github.com/evdriver/evdriver/internal/core/port"
)

// ScheduledMode enables charging only inside one of Intent.Schedule's active
// windows, interpreted in Intent.Timezone. Outside any window it commands
// charging-enabled = 0 at the minimum current; domain.LogicalStatus turns
// that into "Wait start".
type ScheduledMode struct{}

func (ScheduledMode) Evaluate(in port.ModeInput) port.ModeOutput {
	ceiling := effectiveCeiling(in)

	loc, err := time.LoadLocation(in.Intent.Timezone)
	if err != nil || in.Intent.Timezone == "" {
		loc = time.UTC
	}

	if in.Intent.StartStop != 1 || !WithinAnyWindow(in.Intent.Schedule, in.Now, loc) {
		return port.ModeOutput{TargetCurrentA: domain.MinSetCurrentA, Enabled: false}
	}

	return port.ModeOutput{
		TargetCurrentA: clampCurrent(in.Intent.SetCurrentA, ceiling),
		Enabled:        true,
	}
}
