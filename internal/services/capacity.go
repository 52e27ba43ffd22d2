package services

import (
	"fmt"

	"peerlend/internal/core"
)

// DefaultMinimumLoan is the smallest principal a borrower may request.
var DefaultMinimumLoan = core.NewMoney(10000)

// CapacityChecker decides whether a borrower may originate a new loan.
// The approved capacity of the latest assessment is reduced by the
// principal of every existing loan, regardless of repayment.
type CapacityChecker struct {
	assessment *core.Assessment
	existing   []core.Loan
	minimum    core.Money
}

// NewCapacityChecker creates a checker. A nil assessment means the borrower
// has no approved assessment.
func NewCapacityChecker(assessment *core.Assessment, existing []core.Loan, minimum core.Money) *CapacityChecker {
	return &CapacityChecker{
		assessment: assessment,
		existing:   existing,
		minimum:    minimum,
	}
}

// Remaining returns the capacity left, never below zero.
func (c *CapacityChecker) Remaining() core.Money {
	if c.assessment == nil {
		return core.Zero()
	}
	remaining := c.assessment.ApprovedCapacity
	for _, l := range c.existing {
		remaining = remaining.Sub(l.Principal)
	}
	return remaining.FloorZero()
}

func (c *CapacityChecker) CanOriginate(requested core.Money) bool {
	return c.Check(requested) == nil
}

// Check explains why requested cannot be originated, or returns nil.
func (c *CapacityChecker) Check(requested core.Money) error {
	if c.assessment == nil || c.assessment.ApprovedCapacity.Cents <= 0 {
		return core.ErrNoApprovedAssessment
	}
	if requested.Cents <= 0 {
		return &core.ValidationError{Field: "principal", Reason: "must be positive"}
	}
	if requested.LessThan(c.minimum) {
		return &core.ValidationError{Field: "principal", Reason: fmt.Sprintf("below the minimum of %s", c.minimum)}
	}
	if remaining := c.Remaining(); remaining.LessThan(requested) {
		return fmt.Errorf("%w: requested %s, remaining %s", core.ErrCapacityExceeded, requested, remaining)
	}
	return nil
}
