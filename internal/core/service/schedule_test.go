package service

import (
	"testing"
	"time"

	"github.com/evdriver/evdriver/internal/core/domain"
	"github.com/stretchr/testify/assert"
)

func TestParseHHMM(t *testing.T) {
	assert.Equal(t, domain.HHMM(0), ParseHHMM("24:00"))
	assert.Equal(t, domain.HHMM(0), ParseHHMM("bad"))
	assert.Equal(t, domain.HHMM(22*60), ParseHHMM("22:00"))
	assert.Equal(t, domain.HHMM(6*60), ParseHHMM("06:00"))
}

func TestWithinAnyWindowOvernight(t *testing.T) {
	loc := time.UTC
	windows := []domain.ScheduleWindow{{
		Active: true,
		Start:  ParseHHMM("22:00"),
		End:    ParseHHMM("06:00"),
	}}
	at := func(h, m int) time.Time {
		return time.Date(2026, 1, 6, h, m, 0, 0, time.UTC) // a Tuesday
	}
	assert.True(t, WithinAnyWindow(windows, at(23, 0), loc))
	assert.True(t, WithinAnyWindow(windows, at(5, 0), loc))
	assert.False(t, WithinAnyWindow(windows, at(6, 0), loc))
	assert.False(t, WithinAnyWindow(windows, at(21, 59), loc))
}

func TestWithinAnyWindowDaySet(t *testing.T) {
	loc := time.UTC
	windows := []domain.ScheduleWindow{{
		Active: true,
		Days:   domain.NewWeekdaySet(0, 1, 2, 3, 4), // Mon-Fri
		Start:  ParseHHMM("09:00"),
		End:    ParseHHMM("17:00"),
	}}
	tue := time.Date(2026, 1, 6, 10, 0, 0, 0, time.UTC)
	sat := time.Date(2026, 1, 10, 10, 0, 0, 0, time.UTC)
	assert.True(t, WithinAnyWindow(windows, tue, loc))
	assert.False(t, WithinAnyWindow(windows, sat, loc))
}
