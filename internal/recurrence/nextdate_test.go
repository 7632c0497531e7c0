package recurrence

import (
	"testing"
	"time"

	"github.com/dvloznov/finance-ledger/internal/domain"
)

func d(s string) time.Time {
	t, err := time.Parse(domain.DayLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestNextDate(t *testing.T) {
	monday := time.Monday
	friday := time.Friday

	tests := []struct {
		name     string
		freq     domain.Frequency
		interval int
		from     string
		anchor   domain.Anchor
		want     string
	}{
		{"daily", domain.FrequencyDaily, 1, "2024-01-31", domain.Anchor{}, "2024-02-01"},
		{"every 3 days", domain.FrequencyDaily, 3, "2024-02-27", domain.Anchor{}, "2024-03-01"},
		{"zero interval counts as one", domain.FrequencyDaily, 0, "2024-01-01", domain.Anchor{}, "2024-01-02"},
		{"weekly", domain.FrequencyWeekly, 1, "2024-01-01", domain.Anchor{}, "2024-01-08"},
		{"biweekly", domain.FrequencyWeekly, 2, "2024-01-01", domain.Anchor{}, "2024-01-15"},
		{"weekly same weekday anchor", domain.FrequencyWeekly, 1, "2024-01-01", domain.Anchor{Weekday: &monday}, "2024-01-08"},
		{"weekly friday anchor", domain.FrequencyWeekly, 1, "2024-01-01", domain.Anchor{Weekday: &friday}, "2024-01-05"},
		{"biweekly friday anchor", domain.FrequencyWeekly, 2, "2024-01-01", domain.Anchor{Weekday: &friday}, "2024-01-12"},
		{"monthly", domain.FrequencyMonthly, 1, "2024-01-01", domain.Anchor{}, "2024-02-01"},
		{"monthly clamps to leap february", domain.FrequencyMonthly, 1, "2024-01-31", domain.Anchor{DayOfMonth: 31}, "2024-02-29"},
		{"monthly anchor restores day", domain.FrequencyMonthly, 1, "2024-02-29", domain.Anchor{DayOfMonth: 31}, "2024-03-31"},
		{"quarterly", domain.FrequencyMonthly, 3, "2024-11-15", domain.Anchor{}, "2025-02-15"},
		{"yearly leap day", domain.FrequencyYearly, 1, "2024-02-29", domain.Anchor{DayOfMonth: 29}, "2025-02-28"},
		{"yearly", domain.FrequencyYearly, 2, "2024-06-10", domain.Anchor{}, "2026-06-10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextDate(tt.freq, tt.interval, d(tt.from), tt.anchor)
			if got.Format(domain.DayLayout) != tt.want {
				t.Errorf("NextDate = %s, want %s", got.Format(domain.DayLayout), tt.want)
			}
		})
	}
}

func TestNextDate_None(t *testing.T) {
	if got := NextDate(domain.FrequencyNone, 1, d("2024-01-01"), domain.Anchor{}); !got.IsZero() {
		t.Errorf("NextDate(none) = %v, want zero", got)
	}
}

func TestSchedule(t *testing.T) {
	end := d("2024-01-20")

	tests := []struct {
		name       string
		settings   domain.RecurrenceSettings
		day        string
		wantNext   string
		wantDOM    int
		wantNoNext bool
	}{
		{
			name:     "monthly defaults",
			settings: domain.RecurrenceSettings{Frequency: domain.FrequencyMonthly},
			day:      "2024-01-15",
			wantNext: "2024-02-15",
			wantDOM:  15,
		},
		{
			name:     "weekly keeps no day of month",
			settings: domain.RecurrenceSettings{Frequency: domain.FrequencyWeekly},
			day:      "2024-01-01",
			wantNext: "2024-01-08",
		},
		{
			name:       "ends before second occurrence",
			settings:   domain.RecurrenceSettings{Frequency: domain.FrequencyMonthly, EndDate: &end},
			day:        "2024-01-15",
			wantDOM:    15,
			wantNoNext: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Schedule(tt.settings, d(tt.day))
			if !r.IsTemplate || r.Interval != 1 {
				t.Errorf("unexpected recurrence %+v", r)
			}
			if r.StartDate == nil || !r.StartDate.Equal(d(tt.day)) {
				t.Errorf("StartDate = %v, want %s", r.StartDate, tt.day)
			}
			if r.DayOfMonth != tt.wantDOM {
				t.Errorf("DayOfMonth = %d, want %d", r.DayOfMonth, tt.wantDOM)
			}
			if tt.wantNoNext {
				if r.NextRunAt != nil {
					t.Errorf("NextRunAt = %v, want nil", r.NextRunAt)
				}
				return
			}
			if r.NextRunAt == nil || r.NextRunAt.Format(domain.DayLayout) != tt.wantNext {
				t.Errorf("NextRunAt = %v, want %s", r.NextRunAt, tt.wantNext)
			}
		})
	}
}
