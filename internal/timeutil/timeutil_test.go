package timeutil

import (
	"testing"
	"time"

	"github.com/karunahq/CarePing/internal/models"
)

func TestTo12Hour(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"00:00", "12:00 AM", false},
		{"09:05", "9:05 AM", false},
		{"12:00", "12:00 PM", false},
		{"13:30", "1:30 PM", false},
		{"23:59", "11:59 PM", false},
		{"24:00", "", true},
		{"9:5", "", true},
		{"not-a-time", "", true},
	}
	for _, c := range cases {
		got, err := To12Hour(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("To12Hour(%q) expected error, got %q", c.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("To12Hour(%q) unexpected error: %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("To12Hour(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestTo24Hour(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"12:00 AM", "00:00", false},
		{"9:05 am", "09:05", false},
		{"12:00 PM", "12:00", false},
		{" 1:30 pm ", "13:30", false},
		{"13:30", "", true},
		{"", "", true},
	}
	for _, c := range cases {
		got, err := To24Hour(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("To24Hour(%q) expected error, got %q", c.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("To24Hour(%q) unexpected error: %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("To24Hour(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestValidTimeString(t *testing.T) {
	valid := []string{"00:00", "07:30", "23:59"}
	invalid := []string{"24:00", "7:3", "12:60", "noon", ""}
	for _, s := range valid {
		if !ValidTimeString(s) {
			t.Errorf("ValidTimeString(%q) = false, want true", s)
		}
	}
	for _, s := range invalid {
		if ValidTimeString(s) {
			t.Errorf("ValidTimeString(%q) = true, want false", s)
		}
	}
}

func TestRandomTimeWithinBounds(t *testing.T) {
	period := models.Period{
		Name:       "morning",
		StartTime:  "09:00",
		EndTime:    "11:00",
		ActiveDays: models.AllWeek(),
		Active:     true,
	}
	ref := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	start, end, err := PeriodBounds(ref, period)
	if err != nil {
		t.Fatalf("PeriodBounds failed: %v", err)
	}

	for i := 0; i < 200; i++ {
		got, err := RandomTimeWithin(ref, period)
		if err != nil {
			t.Fatalf("RandomTimeWithin failed: %v", err)
		}
		if got.Before(start) || !got.Before(end) {
			t.Fatalf("RandomTimeWithin = %v, want in [%v, %v)", got, start, end)
		}
	}
}

func TestRandomTimeBetween(t *testing.T) {
	start := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
	end := start.Add(45 * time.Minute)
	for i := 0; i < 100; i++ {
		got, err := RandomTimeBetween(start, end)
		if err != nil {
			t.Fatalf("RandomTimeBetween failed: %v", err)
		}
		if got.Before(start) || !got.Before(end) {
			t.Fatalf("RandomTimeBetween = %v, want in [%v, %v)", got, start, end)
		}
	}

	if _, err := RandomTimeBetween(end, start); err == nil {
		t.Error("RandomTimeBetween with inverted bounds expected error")
	}
}

func TestMidpoint(t *testing.T) {
	period := models.Period{
		Name:       "evening",
		StartTime:  "18:00",
		EndTime:    "20:00",
		ActiveDays: models.AllWeek(),
		Active:     true,
	}
	ref := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	got, err := Midpoint(ref, period)
	if err != nil {
		t.Fatalf("Midpoint failed: %v", err)
	}
	want := time.Date(2025, 3, 10, 19, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Midpoint = %v, want %v", got, want)
	}
}

func TestNextActiveDay(t *testing.T) {
	// March 10 2025 is a Monday.
	monday := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	weekendOnly := models.Period{
		Name:       "weekend",
		StartTime:  "10:00",
		EndTime:    "12:00",
		ActiveDays: []models.Weekday{time.Saturday, time.Sunday},
		Active:     true,
	}
	day, ok := NextActiveDay(monday, weekendOnly)
	if !ok {
		t.Fatal("NextActiveDay found no active day")
	}
	if day.Weekday() != time.Saturday {
		t.Errorf("NextActiveDay from Monday = %v, want Saturday", day.Weekday())
	}

	everyDay := models.Period{
		Name:       "daily",
		StartTime:  "10:00",
		EndTime:    "12:00",
		ActiveDays: models.AllWeek(),
		Active:     true,
	}
	day, ok = NextActiveDay(monday, everyDay)
	if !ok || !day.Equal(monday) {
		t.Errorf("NextActiveDay with all days = %v (%v), want same day", day, ok)
	}

	noDays := models.Period{Name: "never", StartTime: "10:00", EndTime: "12:00"}
	if _, ok := NextActiveDay(monday, noDays); ok {
		t.Error("NextActiveDay with no active days expected ok=false")
	}
}
