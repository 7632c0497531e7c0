package memory

import (
	"time"

	"github.com/dvloznov/finance-ledger/internal/domain"
)

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

func cloneTransaction(tx *domain.Transaction) *domain.Transaction {
	cp := *tx
	cp.CategoryID = copyString(tx.CategoryID)
	cp.Description = copyString(tx.Description)
	cp.Notes = copyString(tx.Notes)
	cp.AssetSymbol = copyString(tx.AssetSymbol)
	cp.Tags = copyStrings(tx.Tags)
	if tx.Units != nil {
		u := *tx.Units
		cp.Units = &u
	}
	cp.Reminder.RemindAt = copyTime(tx.Reminder.RemindAt)

	r := tx.Recurrence
	cp.Recurrence.ParentID = copyString(r.ParentID)
	cp.Recurrence.StartDate = copyTime(r.StartDate)
	cp.Recurrence.EndDate = copyTime(r.EndDate)
	cp.Recurrence.NextRunAt = copyTime(r.NextRunAt)
	cp.Recurrence.LastRunAt = copyTime(r.LastRunAt)
	cp.Recurrence.ScheduledFor = copyTime(r.ScheduledFor)
	if r.Weekday != nil {
		w := *r.Weekday
		cp.Recurrence.Weekday = &w
	}
	return &cp
}

func cloneCandidate(c domain.Candidate) domain.Candidate {
	cp := c
	cp.CategoryID = copyString(c.CategoryID)
	cp.Description = copyString(c.Description)
	cp.Notes = copyString(c.Notes)
	cp.AssetSymbol = copyString(c.AssetSymbol)
	cp.Tags = copyStrings(c.Tags)
	cp.NextDate = copyTime(c.NextDate)
	if c.Units != nil {
		u := *c.Units
		cp.Units = &u
	}
	if c.Recurrence != nil {
		r := *c.Recurrence
		r.StartDate = copyTime(c.Recurrence.StartDate)
		r.EndDate = copyTime(c.Recurrence.EndDate)
		cp.Recurrence = &r
	}
	if c.Instance != nil {
		i := *c.Instance
		cp.Instance = &i
	}
	return cp
}

func cloneDraft(d *domain.Draft) *domain.Draft {
	cp := *d
	cp.Candidate = cloneCandidate(d.Candidate)
	cp.Reasons = copyStrings(d.Reasons)
	cp.PostedTransactionID = copyString(d.PostedTransactionID)
	cp.RejectedReason = copyString(d.RejectedReason)
	return &cp
}
