package service

import (
	"testing"
	"time"

	"github.com/evdriver/evdriver/internal/core/domain"
	"github.com/evdriver/evdriver/internal/core/port"
	"github.com/stretchr/testify/assert"
)

func scheduledIntent() domain.Intent {
	return domain.Intent{
		Mode:        domain.ModeScheduled,
		StartStop:   1,
		SetCurrentA: 16,
		Timezone:    "Europe/Amsterdam",
		Schedule: []domain.ScheduleWindow{{
			Active: true,
			Days:   domain.NewWeekdaySet(0, 1, 2, 3, 4),
			Start:  ParseHHMM("22:00"),
			End:    ParseHHMM("06:00"),
		}},
	}
}

func TestScheduledOutsideWindow(t *testing.T) {
	m := ScheduledMode{}
	loc, _ := time.LoadLocation("Europe/Amsterdam")
	noon := time.Date(2026, 1, 6, 12, 0, 0, 0, loc) // a Tuesday

	out := m.Evaluate(port.ModeInput{
		Intent:             scheduledIntent(),
		Now:                noon,
		ConfiguredCeilingA: domain.MaxSetCurrentA,
	})

	assert.False(t, out.Enabled)
	assert.Equal(t, "Wait start", domain.LogicalStatus(domain.StatusConnected, domain.ModeScheduled, out.Enabled))
}

func TestScheduledInsideWindow(t *testing.T) {
	m := ScheduledMode{}
	loc, _ := time.LoadLocation("Europe/Amsterdam")
	lateEvening := time.Date(2026, 1, 6, 23, 30, 0, 0, loc)

	out := m.Evaluate(port.ModeInput{
		Intent:             scheduledIntent(),
		Now:                lateEvening,
		ConfiguredCeilingA: domain.MaxSetCurrentA,
	})

	assert.True(t, out.Enabled)
	assert.Equal(t, 16.0, out.TargetCurrentA)
}

func TestScheduledBoundaryInclusiveExclusive(t *testing.T) {
	m := ScheduledMode{}
	loc, _ := time.LoadLocation("Europe/Amsterdam")
	intent := scheduledIntent()

	at := func(h, min int) time.Time {
		return time.Date(2026, 1, 6, h, min, 0, 0, loc)
	}
	eval := func(when time.Time) bool {
		return m.Evaluate(port.ModeInput{
			Intent:             intent,
			Now:                when,
			ConfiguredCeilingA: domain.MaxSetCurrentA,
		}).Enabled
	}

	assert.True(t, eval(at(23, 0)))
	assert.True(t, eval(at(5, 0)))
	assert.False(t, eval(at(6, 0)))
	assert.False(t, eval(at(21, 59)))
}

func TestScheduledStartStopZeroDisablesEvenInsideWindow(t *testing.T) {
	m := ScheduledMode{}
	loc, _ := time.LoadLocation("Europe/Amsterdam")
	intent := scheduledIntent()
	intent.StartStop = 0

	out := m.Evaluate(port.ModeInput{
		Intent:             intent,
		Now:                time.Date(2026, 1, 6, 23, 30, 0, 0, loc),
		ConfiguredCeilingA: domain.MaxSetCurrentA,
	})
	assert.False(t, out.Enabled)
}
