package models

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestPeriodValidate(t *testing.T) {
	cases := []struct {
		name    string
		period  Period
		wantErr error
	}{
		{
			name:   "valid",
			period: Period{Name: "morning", StartTime: "09:00", EndTime: "11:00", ActiveDays: AllWeek()},
		},
		{
			name:    "empty name",
			period:  Period{StartTime: "09:00", EndTime: "11:00", ActiveDays: AllWeek()},
			wantErr: ErrEmptyPeriodName,
		},
		{
			name:    "name too long",
			period:  Period{Name: strings.Repeat("x", MaxPeriodNameLength+1), StartTime: "09:00", EndTime: "11:00", ActiveDays: AllWeek()},
			wantErr: ErrPeriodNameTooLong,
		},
		{
			name:    "bad start time",
			period:  Period{Name: "p", StartTime: "25:00", EndTime: "11:00", ActiveDays: AllWeek()},
			wantErr: ErrInvalidTimeFormat,
		},
		{
			name:    "bad end time",
			period:  Period{Name: "p", StartTime: "09:00", EndTime: "11:60", ActiveDays: AllWeek()},
			wantErr: ErrInvalidTimeFormat,
		},
		{
			name:    "start after end",
			period:  Period{Name: "p", StartTime: "12:00", EndTime: "09:00", ActiveDays: AllWeek()},
			wantErr: ErrPeriodOrder,
		},
		{
			name:    "start equals end",
			period:  Period{Name: "p", StartTime: "09:00", EndTime: "09:00", ActiveDays: AllWeek()},
			wantErr: ErrPeriodOrder,
		},
		{
			name:    "no active days",
			period:  Period{Name: "p", StartTime: "09:00", EndTime: "11:00"},
			wantErr: ErrNoActiveDays,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.period.Validate()
			if c.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, c.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, c.wantErr)
			}
		})
	}
}

func TestPeriodActiveOn(t *testing.T) {
	p := Period{ActiveDays: []Weekday{time.Monday, time.Wednesday}}
	if !p.ActiveOn(time.Monday) {
		t.Error("ActiveOn(Monday) = false, want true")
	}
	if p.ActiveOn(time.Tuesday) {
		t.Error("ActiveOn(Tuesday) = true, want false")
	}
}

func TestDefaultChannelConfig(t *testing.T) {
	cfg := DefaultChannelConfig("sms", ChannelKindSync)
	if cfg.Name != "sms" || cfg.Kind != ChannelKindSync {
		t.Errorf("DefaultChannelConfig identity = %s/%s, want sms/sync", cfg.Name, cfg.Kind)
	}
	if cfg.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", cfg.MaxRetries)
	}
	if cfg.RetryDelay != time.Second {
		t.Errorf("RetryDelay = %v, want 1s", cfg.RetryDelay)
	}
	if cfg.BackoffMultiplier != 2.0 {
		t.Errorf("BackoffMultiplier = %v, want 2.0", cfg.BackoffMultiplier)
	}
}

func TestIsValidTaskPriority(t *testing.T) {
	for _, p := range []TaskPriority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical} {
		if !IsValidTaskPriority(p) {
			t.Errorf("IsValidTaskPriority(%s) = false, want true", p)
		}
	}
	if IsValidTaskPriority("urgent") {
		t.Error("IsValidTaskPriority(urgent) = true, want false")
	}
}

func TestAPIResponseHelpers(t *testing.T) {
	ok := Success(map[string]int{"n": 1})
	if ok.Status != "ok" || ok.Result == nil {
		t.Errorf("Success() = %+v, want status ok with result", ok)
	}
	bad := Error("boom")
	if bad.Status != "error" || bad.Message != "boom" {
		t.Errorf("Error() = %+v, want status error with message", bad)
	}
}
