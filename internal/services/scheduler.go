// Package services provides business logic and orchestration services.
//
// This file implements the payment scheduler: given a loan and its payment
// history it derives the next installment of a fixed-payment amortization
// with daily interest accrual.
package services

import (
	"errors"
	"fmt"
	"math"

	"peerlend/internal/core"
)

// NextPayment is the result of scheduling one installment.
type NextPayment struct {
	Payment core.ScheduledPayment
	// PrincipalBalance is the balance before this payment is applied.
	PrincipalBalance core.Money
	// PaymentPerPeriod is the level payment for the loan's terms.
	PaymentPerPeriod core.Money
}

// Scheduler computes payments. It holds no state and is safe for concurrent use.
type Scheduler struct{}

func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// rates holds the per-loan constants derived from the loan terms.
type rates struct {
	freq      core.Frequency
	dailyRate float64
	payment   core.Money
}

func (s *Scheduler) rates(loan core.Loan) (rates, error) {
	if err := loan.Validate(); err != nil {
		return rates{}, err
	}
	freq, err := loan.Frequency.Resolve()
	if err != nil {
		return rates{}, err
	}
	term, err := loan.Amortization.Term()
	if err != nil {
		return rates{}, err
	}

	ppy := freq.PeriodsPerYear()
	dailyRate := loan.Rate.InexactFloat64() / core.DaysPerYear
	perPeriod := math.Pow(1+dailyRate, float64(core.DaysPerYear)/float64(ppy)) - 1
	totalPeriods := int(math.Round(float64(ppy) * term.TotalYears()))
	if totalPeriods < 1 {
		return rates{}, &core.ValidationError{Field: "amortization", Reason: "term shorter than one payment period"}
	}

	// P * r / (1 - (1+r)^-n)
	paymentFloat := loan.Principal.Float() * perPeriod / (1 - math.Pow(1+perPeriod, -float64(totalPeriods)))
	payment, err := core.MoneyFromFloat(paymentFloat)
	if err != nil {
		return rates{}, fmt.Errorf("payment per period: %w", err)
	}

	return rates{
		freq:      freq,
		dailyRate: dailyRate,
		payment:   payment,
	}, nil
}

// PaymentPerPeriod returns the level payment for the loan's terms.
func (s *Scheduler) PaymentPerPeriod(loan core.Loan) (core.Money, error) {
	r, err := s.rates(loan)
	if err != nil {
		return core.Money{}, err
	}
	return r.payment, nil
}

// Next derives the installment that follows history. history must be the
// complete, ordered list of payments already generated for the loan.
// The returned payment is not persisted.
func (s *Scheduler) Next(loan core.Loan, history []core.ScheduledPayment) (NextPayment, error) {
	r, err := s.rates(loan)
	if err != nil {
		return NextPayment{}, err
	}

	balance := PrincipalBalance(loan, history)
	lastDate := loan.StartDate
	if len(history) > 0 {
		lastDate = history[len(history)-1].DueDate
	}

	due, err := r.freq.NextDueDate(loan.StartDate, len(history))
	if err != nil {
		return NextPayment{}, err
	}

	days := lastDate.DaysUntil(due)
	interest, err := core.MoneyFromFloat(float64(days) * r.dailyRate * balance.Float())
	if err != nil {
		return NextPayment{}, fmt.Errorf("interest: %w", err)
	}

	amount := core.MinMoney(r.payment, balance.Add(interest))

	return NextPayment{
		Payment: core.ScheduledPayment{
			LoanID:   loan.ID,
			Seq:      len(history),
			Amount:   amount,
			Interest: interest,
			DueDate:  due,
		},
		PrincipalBalance: balance,
		PaymentPerPeriod: r.payment,
	}, nil
}

// PrincipalBalance is the principal minus the principal portion of every
// generated payment, paid or not. It is never negative.
func PrincipalBalance(loan core.Loan, history []core.ScheduledPayment) core.Money {
	balance := loan.Principal
	for _, p := range history {
		balance = balance.Sub(p.Principal())
	}
	return balance.FloorZero()
}

// FullyAmortized reports whether the generated payments already cover the principal.
func FullyAmortized(loan core.Loan, history []core.ScheduledPayment) bool {
	return len(history) > 0 && PrincipalBalance(loan, history).IsZero()
}

// Summarize partitions payments into paid and unpaid and computes the
// outstanding balance and the aggregate amount currently due.
//
// The next payment sums amount and interest over every unpaid payment and
// carries the due date of the last unpaid one.
func Summarize(loan core.Loan, payments []core.ScheduledPayment) core.LoanSummary {
	summary := core.LoanSummary{Loan: loan}

	var due core.PaymentDue
	var last *core.ScheduledPayment
	for i := range payments {
		p := payments[i]
		if p.IsPaid() {
			summary.Paid = append(summary.Paid, p)
			summary.PrincipalPaid = summary.PrincipalPaid.Add(p.Principal())
			continue
		}
		summary.Unpaid = append(summary.Unpaid, p)
		due.Amount = due.Amount.Add(p.Amount)
		due.Interest = due.Interest.Add(p.Interest)
		last = &payments[i]
	}

	summary.OutstandingBalance = loan.Principal.Sub(summary.PrincipalPaid).FloorZero()
	if last != nil {
		due.DueDate = last.DueDate
		summary.NextPayment = &due
	}
	return summary
}

// IsScheduleError reports whether err comes from loan terms the scheduler
// cannot work with, as opposed to a storage or transport failure.
func IsScheduleError(err error) bool {
	return errors.Is(err, core.ErrValidation) ||
		errors.Is(err, core.ErrUnsupportedFrequency) ||
		errors.Is(err, core.ErrOutOfRange)
}
