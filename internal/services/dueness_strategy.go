// Package services provides business logic and orchestration services.
//
// This file holds the billing dueness strategies: given the due date of a
// loan's latest payment, each strategy decides whether the next payment
// should be generated now.
package services

import (
	"peerlend/internal/core"
)

// DuenessChecker decides whether the payment after lastDue is due for generation.
type DuenessChecker interface {
	IsDue(lastDue, today core.Date) bool
}

// LeadWindowChecker generates the next payment once today is within
// LeadDays of the latest due date. LeadDays 0 waits for the due date itself.
type LeadWindowChecker struct {
	LeadDays int
}

func (c LeadWindowChecker) IsDue(lastDue, today core.Date) bool {
	return today.DaysUntil(lastDue) <= c.LeadDays
}

// DuenessFor returns the checker for loans of frequency f. The lead window
// is capped below the period length so billing never runs more than one
// payment ahead.
func DuenessFor(f core.Frequency, leadDays int) DuenessChecker {
	if leadDays < 0 {
		leadDays = 0
	}
	var period int
	switch v := f.(type) {
	case core.DayInterval:
		period = v.Days
	case core.PerMonthCount:
		// Shortest month split into Count parts
		period = 28 / v.Count
	}
	if period > 0 && leadDays >= period {
		leadDays = period - 1
	}
	return LeadWindowChecker{LeadDays: leadDays}
}
