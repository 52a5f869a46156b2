package service

import (
	"strconv"
	"strings"
	"time"

	"github.com/evdriver/evdriver/internal/core/domain"
)

// ParseHHMM parses "HH:MM", modding both fields into range and returning 0
// on any parse failure, matching original_source/src/controls.rs's
// parse_hhmm (including its documented quirk that "24:00" and garbage input
// both return 0).
func ParseHHMM(s string) domain.HHMM {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 0
	}
	h = ((h % 24) + 24) % 24
	m = ((m % 60) + 60) % 60
	return domain.HHMM(h*60 + m)
}

// WithinAnyWindow reports whether now (interpreted in loc) falls inside any
// active window of windows. Windows with End < Start span midnight:
// interpreted as [Start,24:00) ∪ [00:00,End).
func WithinAnyWindow(windows []domain.ScheduleWindow, now time.Time, loc *time.Location) bool {
	local := now.In(loc)
	weekday := mondayIndex(local.Weekday())
	minutesNow := domain.HHMM(local.Hour()*60 + local.Minute())

	for _, w := range windows {
		if !w.Active {
			continue
		}
		if !w.Days.Contains(weekday) {
			continue
		}
		if w.Start == w.End {
			continue
		}
		overnight := w.Start >= w.End
		if overnight {
			if minutesNow >= w.Start || minutesNow < w.End {
				return true
			}
		} else {
			if minutesNow >= w.Start && minutesNow < w.End {
				return true
			}
		}
	}
	return false
}

// mondayIndex maps time.Weekday (Sunday=0) to Monday=0..Sunday=6, matching
// chrono's num_days_from_monday() used by the original implementation.
func mondayIndex(w time.Weekday) int {
	return (int(w) + 6) % 7
}
