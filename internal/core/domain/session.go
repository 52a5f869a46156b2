package domain

import "time"

type SessionStatus int

const (
	SessionActive SessionStatus = iota
	SessionCompleted
	SessionInterrupted
)

func (s SessionStatus) String() string {
	switch s {
	case SessionActive:
		return "Active"
	case SessionCompleted:
		return "Completed"
	case SessionInterrupted:
		return "Interrupted"
	default:
		return "Unknown"
	}
}

// Session is the lifecycle record tied to charger status, owned exclusively
// by the Session Tracker. PeakPowerW/AveragePowerW are supplemented from
// original_source's session.rs, not present in the distilled spec but not
// excluded by any Non-goal either.
type Session struct {
	ID        string     `json:"id"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	StartEnergyKWh float64 `json:"start_energy_kwh"`

	EnergyDeliveredKWh float64 `json:"energy_delivered_kwh"`
	ChargingTimeSec    float64 `json:"charging_time_sec"`

	PeakPowerW    float64 `json:"peak_power_w"`
	AveragePowerW float64 `json:"average_power_w"`

	Cost      *float64 `json:"cost,omitempty"`
	CostGap   bool     `json:"cost_gap"`

	Status SessionStatus `json:"status"`
	Closed bool          `json:"closed"`

	// LastLifetimeEnergyKWh is the lifetime counter value observed on
	// the last tick this session was updated, used to compute the next
	// clamped delta. It is persisted with the session so delta accounting
	// resumes after a restart.
	LastLifetimeEnergyKWh float64 `json:"last_lifetime_energy_kwh"`
}

// PersistedState is the single JSON document on disk: Intent, the open
// Session if any, recent closed-session history, and a schema version.
type PersistedState struct {
	Schema      int       `json:"schema"`
	Intent      Intent    `json:"intent"`
	OpenSession *Session  `json:"open_session"`
	History     []Session `json:"history"`
}

const CurrentSchemaVersion = 1

const DefaultSessionHistoryCap = 100
