// Package recurrence expands recurring transaction templates into concrete
// instances and computes their schedule.
package recurrence

import (
	"time"

	"github.com/dvloznov/finance-ledger/internal/domain"
)

// NextDate returns the occurrence after from for the given frequency.
// from is treated as a calendar day. Interval values below 1 count as 1.
// FrequencyNone yields the zero time.
func NextDate(freq domain.Frequency, interval int, from time.Time, anchor domain.Anchor) time.Time {
	if interval < 1 {
		interval = 1
	}
	from = domain.Day(from)

	switch freq {
	case domain.FrequencyDaily:
		return from.AddDate(0, 0, interval)
	case domain.FrequencyWeekly:
		if anchor.Weekday == nil {
			return from.AddDate(0, 0, 7*interval)
		}
		base := from.AddDate(0, 0, 7*(interval-1))
		diff := (int(*anchor.Weekday) - int(base.Weekday()) + 7) % 7
		if diff == 0 {
			diff = 7
		}
		return base.AddDate(0, 0, diff)
	case domain.FrequencyMonthly:
		return addMonths(from, interval, anchorDay(anchor, from))
	case domain.FrequencyYearly:
		return addMonths(from, 12*interval, anchorDay(anchor, from))
	default:
		return time.Time{}
	}
}

func anchorDay(anchor domain.Anchor, from time.Time) int {
	if anchor.DayOfMonth >= 1 && anchor.DayOfMonth <= 31 {
		return anchor.DayOfMonth
	}
	return from.Day()
}

// addMonths moves to the month n months after from and picks day, clamped to
// that month's last day. time.AddDate would overflow Jan 31 into March.
func addMonths(from time.Time, n, day int) time.Time {
	first := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	last := first.AddDate(0, 1, -1).Day()
	if day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

// Schedule builds the recurrence block of a new template from caller
// settings posted on day. It fills defaults: start date from day, interval 1,
// and a day-of-month anchor for monthly and yearly schedules.
func Schedule(s domain.RecurrenceSettings, day time.Time) domain.Recurrence {
	start := domain.Day(day)
	if s.StartDate != nil {
		start = domain.Day(*s.StartDate)
	}
	interval := s.Interval
	if interval < 1 {
		interval = 1
	}

	r := domain.Recurrence{
		IsTemplate: true,
		Frequency:  s.Frequency,
		Interval:   interval,
		StartDate:  &start,
		DayOfMonth: s.DayOfMonth,
		Weekday:    s.Weekday,
	}
	if s.EndDate != nil {
		end := domain.Day(*s.EndDate)
		r.EndDate = &end
	}
	if r.DayOfMonth == 0 && (s.Frequency == domain.FrequencyMonthly || s.Frequency == domain.FrequencyYearly) {
		r.DayOfMonth = start.Day()
	}

	next := NextDate(r.Frequency, r.Interval, start, r.Anchor())
	if r.EndDate == nil || !next.After(*r.EndDate) {
		r.NextRunAt = &next
	}
	return r
}
