// Package timeutil provides pure time calculations for the scheduler:
// random instants inside a period, 12h/24h clock conversion, and
// time-string validation.
package timeutil

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/karunahq/CarePing/internal/models"
)

// ParseClock parses an "HH:MM" 24-hour time string into hour and minute.
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, models.ErrInvalidTimeFormat
	}
	return t.Hour(), t.Minute(), nil
}

// ValidTimeString reports whether s is a valid "HH:MM" 24-hour time.
func ValidTimeString(s string) bool {
	_, _, err := ParseClock(s)
	return err == nil
}

// To12Hour converts an "HH:MM" 24-hour time string to "h:MM AM/PM" form.
func To12Hour(s string) (string, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return "", models.ErrInvalidTimeFormat
	}
	return t.Format("3:04 PM"), nil
}

// To24Hour converts a "h:MM AM/PM" time string back to "HH:MM" form.
func To24Hour(s string) (string, error) {
	t, err := time.Parse("3:04 PM", strings.ToUpper(strings.TrimSpace(s)))
	if err != nil {
		return "", models.ErrInvalidTimeFormat
	}
	return t.Format("15:04"), nil
}

// ClockOn anchors an "HH:MM" time string on the calendar day of ref,
// in ref's location.
func ClockOn(ref time.Time, clock string) (time.Time, error) {
	hour, minute, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(ref.Year(), ref.Month(), ref.Day(), hour, minute, 0, 0, ref.Location()), nil
}

// PeriodBounds returns the period's start and end instants on the calendar
// day of ref.
func PeriodBounds(ref time.Time, p models.Period) (start, end time.Time, err error) {
	start, err = ClockOn(ref, p.StartTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err = ClockOn(ref, p.EndTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, models.ErrPeriodOrder
	}
	return start, end, nil
}

// RandomTimeWithin returns a uniformly random instant t on the calendar day
// of ref with periodStart <= t < periodEnd. Resolution is one second.
func RandomTimeWithin(ref time.Time, p models.Period) (time.Time, error) {
	start, end, err := PeriodBounds(ref, p)
	if err != nil {
		return time.Time{}, err
	}
	span := int64(end.Sub(start) / time.Second)
	offset := rand.Int64N(span)
	return start.Add(time.Duration(offset) * time.Second), nil
}

// RandomTimeBetween returns a uniformly random instant in [start, end).
// Used when the lower bound is clamped to now for a period already underway.
func RandomTimeBetween(start, end time.Time) (time.Time, error) {
	if !start.Before(end) {
		return time.Time{}, fmt.Errorf("start %v is not before end %v", start, end)
	}
	span := int64(end.Sub(start) / time.Second)
	if span <= 0 {
		return start, nil
	}
	offset := rand.Int64N(span)
	return start.Add(time.Duration(offset) * time.Second), nil
}

// Midpoint returns the middle instant of the period on the calendar day of
// ref. The scheduler falls back to this when bounded conflict redraws are
// exhausted.
func Midpoint(ref time.Time, p models.Period) (time.Time, error) {
	start, end, err := PeriodBounds(ref, p)
	if err != nil {
		return time.Time{}, err
	}
	return start.Add(end.Sub(start) / 2), nil
}

// NextActiveDay returns the first day on or after ref (stepping in whole
// days) on which the period is active, up to one week out. The boolean is
// false if the period has no active days.
func NextActiveDay(ref time.Time, p models.Period) (time.Time, bool) {
	for i := 0; i < 7; i++ {
		day := ref.AddDate(0, 0, i)
		if p.ActiveOn(day.Weekday()) {
			return day, true
		}
	}
	return time.Time{}, false
}
