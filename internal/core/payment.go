package core

import "time"

// ScheduledPayment is one generated installment of a loan.
// Seq is zero-based and matches the payment's position in the loan history.
type ScheduledPayment struct {
	LoanID   int64
	Seq      int
	Amount   Money
	Interest Money
	DueDate  Date
	// PaidAt is joined from the settlement records when loaded; nil means unpaid.
	PaidAt *time.Time
}

// Principal returns the part of the payment that reduces the balance.
// It is never negative.
func (p ScheduledPayment) Principal() Money {
	return p.Amount.Sub(p.Interest).FloorZero()
}

func (p ScheduledPayment) IsPaid() bool {
	return p.PaidAt != nil
}
