package alerting

import (
	"fmt"
	"time"
)

// Schedule describes when a rule is evaluated.
type Schedule struct {
	Frequency string `json:"frequency"` // hourly, daily, or weekly
	Minute    int    `json:"minute"`
	Hour      int    `json:"hour"`      // daily and weekly only
	DayOfWeek int    `json:"dayOfWeek"` // weekly only; 0 = Sunday
}

// Validate checks the schedule fields for the given frequency.
func (s Schedule) Validate() error {
	if s.Minute < 0 || s.Minute > 59 {
		return fmt.Errorf("schedule minute %d out of range", s.Minute)
	}
	switch s.Frequency {
	case FrequencyHourly:
	case FrequencyDaily, FrequencyWeekly:
		if s.Hour < 0 || s.Hour > 23 {
			return fmt.Errorf("schedule hour %d out of range", s.Hour)
		}
		if s.Frequency == FrequencyWeekly && (s.DayOfWeek < 0 || s.DayOfWeek > 6) {
			return fmt.Errorf("schedule day of week %d out of range", s.DayOfWeek)
		}
	default:
		return fmt.Errorf("unknown schedule frequency %q", s.Frequency)
	}
	return nil
}

// NextRunAt computes the next evaluation instant strictly after now.
//   - hourly: the next occurrence of Minute within this hour or the next.
//   - daily: the next occurrence of Hour:Minute, rolling to tomorrow if the
//     time already passed today.
//   - weekly: the next occurrence of DayOfWeek at Hour:Minute, rolling a full
//     week forward when today is the target day but the time has passed.
func NextRunAt(now time.Time, s Schedule) time.Time {
	switch s.Frequency {
	case FrequencyHourly:
		next := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), s.Minute, 0, 0, now.Location())
		if !next.After(now) {
			next = next.Add(time.Hour)
		}
		return next

	case FrequencyDaily:
		next := time.Date(now.Year(), now.Month(), now.Day(), s.Hour, s.Minute, 0, 0, now.Location())
		if !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}
		return next

	case FrequencyWeekly:
		daysAhead := (s.DayOfWeek - int(now.Weekday()) + 7) % 7
		next := time.Date(now.Year(), now.Month(), now.Day(), s.Hour, s.Minute, 0, 0, now.Location()).
			AddDate(0, 0, daysAhead)
		if !next.After(now) {
			next = next.AddDate(0, 0, 7)
		}
		return next

	default:
		// Unknown frequencies are rejected at configuration time; fall back
		// to an hour out so a bad row can never make a rule permanently due.
		return now.Add(time.Hour)
	}
}
