package service

import (
	"time"

	"github.com/evdriver/evdriver/internal/core/domain"
	"github.com/google/uuid"
)

// Tracker detects session start/end from raw status transitions and
// accumulates duration, energy, and cost, grounded on
// original_source/src/session.rs's ChargingSessionManager. It never
// writes persistence itself (spec.md §9's "Persistence ownership" note);
// the control-engine task calls SnapshotForPersistence() after each tick that changes
// something and passes that to the Persistence Store.
type Tracker struct {
	open    *domain.Session
	history []domain.Session
	historyCap int

	// consecutiveNonCharging counts non-Charging ticks since the last
	// Charging tick while a session is open; a single blip is ignored,
	// two consecutive ticks close the session.
	consecutiveNonCharging int

	lastTick time.Time
}

func NewTracker(historyCap int) *Tracker {
	if historyCap <= 0 {
		historyCap = domain.DefaultSessionHistoryCap
	}
	return &Tracker{historyCap: historyCap}
}

// Restore seeds the tracker from a persisted document at startup, keeping
// the open session's id identical across a restart per spec.md §8.
func (t *Tracker) Restore(state domain.PersistedState) {
	t.open = state.OpenSession
	t.history = append([]domain.Session(nil), state.History...)
}

func (t *Tracker) OpenSession() *domain.Session {
	return t.open
}

func (t *Tracker) History() []domain.Session {
	return t.history
}

// Tick advances the tracker by one poll interval. lifetimeEnergyKWh and
// pricePerKWh are best-effort (F64/pointer respectively); rawStatus is
// the charger's raw status for this tick. Returns true if the open
// session's persisted snapshot should be written this tick (on every
// open/close transition; steady-state persistence throttling to "at
// most once every 10s" is the caller's responsibility since it also
// needs a wall-clock reference shared with other persistence writes).
func (t *Tracker) Tick(now time.Time, rawStatus domain.StatusCode, lifetimeEnergyKWh domain.F64, powerW domain.F32, pricePerKWh *float64) (transitioned bool) {
	defer func() { t.lastTick = now }()

	charging := rawStatus.IsCharging()

	if t.open == nil {
		if charging {
			t.startSession(now, lifetimeEnergyKWh)
			return true
		}
		return false
	}

	if charging {
		t.consecutiveNonCharging = 0
	} else {
		t.consecutiveNonCharging++
	}

	elapsed := 0.0
	if !t.lastTick.IsZero() {
		elapsed = now.Sub(t.lastTick).Seconds()
	}

	if lifetimeEnergyKWh.Ok {
		delta := lifetimeEnergyKWh.Value - t.open.LastLifetimeEnergyKWh
		if delta < 0 {
			delta = 0 // counter reset: freeze at last valid delta, never go negative
		}
		t.open.EnergyDeliveredKWh += delta
		t.open.LastLifetimeEnergyKWh = lifetimeEnergyKWh.Value

		if pricePerKWh != nil {
			cost := delta * *pricePerKWh
			if t.open.Cost == nil {
				t.open.Cost = new(float64)
			}
			*t.open.Cost += cost
			t.open.CostGap = false
		} else {
			t.open.CostGap = true
		}
	}

	if charging {
		t.open.ChargingTimeSec += elapsed
	}

	if powerW.Ok {
		if float64(powerW.Value) > t.open.PeakPowerW {
			t.open.PeakPowerW = float64(powerW.Value)
		}
		if t.open.ChargingTimeSec > 0 {
			t.open.AveragePowerW = t.open.EnergyDeliveredKWh / (t.open.ChargingTimeSec / 3600.0) * 1000.0
		}
	}

	if t.consecutiveNonCharging >= 2 {
		t.closeSession(now)
		t.consecutiveNonCharging = 0
		return true
	}

	return false
}

func (t *Tracker) startSession(now time.Time, lifetimeEnergyKWh domain.F64) {
	start := 0.0
	if lifetimeEnergyKWh.Ok {
		start = lifetimeEnergyKWh.Value
	}
	t.open = &domain.Session{
		ID:                    uuid.NewString(),
		StartTime:             now,
		StartEnergyKWh:        start,
		LastLifetimeEnergyKWh: start,
		Status:                domain.SessionActive,
	}
	t.consecutiveNonCharging = 0
}

func (t *Tracker) closeSession(now time.Time) {
	s := t.open
	s.EndTime = &now
	s.Status = domain.SessionCompleted
	s.Closed = true
	t.open = nil

	t.history = append(t.history, *s)
	if len(t.history) > t.historyCap {
		t.history = t.history[len(t.history)-t.historyCap:]
	}
}

// SnapshotForPersistence returns the state the caller should hand to the
// Persistence Store. The Tracker never writes on its own.
func (t *Tracker) SnapshotForPersistence(intent domain.Intent) domain.PersistedState {
	return domain.PersistedState{
		Schema:      domain.CurrentSchemaVersion,
		Intent:      intent,
		OpenSession: t.open,
		History:     t.history,
	}
}
