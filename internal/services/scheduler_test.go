package services

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peerlend/internal/core"
)

func monthlyLoan(principalCents int64, rate string, months int) core.Loan {
	return core.Loan{
		ID:           1,
		Principal:    core.NewMoney(principalCents),
		Rate:         decimal.RequireFromString(rate),
		Amortization: core.ReferenceAmortization{ID: 1, Name: "1 year", Months: months},
		Frequency:    core.ReferenceFrequency{ID: 1, Name: "Monthly", PerMonth: 1},
		StartDate:    core.NewDate(2024, 1, 1),
	}
}

// levelPayment is the textbook annuity payment for the compounded period rate.
func levelPayment(principal, annualRate float64, periodsPerYear int, months int) float64 {
	daily := annualRate / 365
	r := math.Pow(1+daily, 365/float64(periodsPerYear)) - 1
	n := math.Round(float64(periodsPerYear) * float64(months) / 12)
	return principal * r / (1 - math.Pow(1+r, -n))
}

func TestScheduler_FirstPayment(t *testing.T) {
	loan := monthlyLoan(120000, "0.12", 12)

	next, err := NewScheduler().Next(loan, nil)
	require.NoError(t, err)

	// Daily rate compounded over the period: (1+0.12/365)^(365/12)-1 = 0.010049
	// gives 106.65. A flat 1%/month annuity would give 106.62.
	want := levelPayment(1200, 0.12, 12, 12)
	assert.InDelta(t, want*100, float64(next.PaymentPerPeriod.Cents), 1)
	assert.InDelta(t, 106.6, next.PaymentPerPeriod.Float(), 0.1)

	p := next.Payment
	assert.Equal(t, 0, p.Seq)
	assert.Equal(t, "2024-02-01", p.DueDate.String())
	// 31 days * 0.12 / 365 * 1200
	assert.Equal(t, int64(1223), p.Interest.Cents)
	assert.Equal(t, next.PaymentPerPeriod, p.Amount)
	assert.Equal(t, int64(120000), next.PrincipalBalance.Cents)
	assert.False(t, p.IsPaid())
}

func TestScheduler_SecondPaymentUsesReducedBalance(t *testing.T) {
	loan := monthlyLoan(120000, "0.12", 12)
	s := NewScheduler()

	first, err := s.Next(loan, nil)
	require.NoError(t, err)

	second, err := s.Next(loan, []core.ScheduledPayment{first.Payment})
	require.NoError(t, err)

	wantBalance := 120000 - (first.Payment.Amount.Cents - first.Payment.Interest.Cents)
	assert.Equal(t, wantBalance, second.PrincipalBalance.Cents)
	assert.Less(t, second.PrincipalBalance.Cents, int64(120000))
	assert.Equal(t, 1, second.Payment.Seq)
	assert.Equal(t, "2024-03-01", second.Payment.DueDate.String())

	// 29 days of interest in February 2024
	wantInterest := math.Floor(29*0.12/365*float64(wantBalance) + 0.5)
	assert.Equal(t, int64(wantInterest), second.Payment.Interest.Cents)
}

func TestScheduler_PaidFlagDoesNotAffectBalance(t *testing.T) {
	loan := monthlyLoan(120000, "0.12", 12)
	s := NewScheduler()

	first, err := s.Next(loan, nil)
	require.NoError(t, err)

	paid := first.Payment
	now := time.Now()
	paid.PaidAt = &now

	a, err := s.Next(loan, []core.ScheduledPayment{first.Payment})
	require.NoError(t, err)
	b, err := s.Next(loan, []core.ScheduledPayment{paid})
	require.NoError(t, err)
	assert.Equal(t, a.Payment, b.Payment)
}

func TestScheduler_AmortizesToZero(t *testing.T) {
	loan := monthlyLoan(120000, "0.12", 12)
	s := NewScheduler()

	var history []core.ScheduledPayment
	for i := 0; i < 24 && !FullyAmortized(loan, history); i++ {
		next, err := s.Next(loan, history)
		require.NoError(t, err)
		assert.LessOrEqual(t, next.Payment.Amount.Cents, next.PaymentPerPeriod.Cents)
		history = append(history, next.Payment)
	}

	require.True(t, FullyAmortized(loan, history))
	assert.LessOrEqual(t, len(history), 13)

	var principal int64
	for _, p := range history {
		principal += p.Principal().Cents
	}
	assert.Equal(t, int64(120000), principal)

	last := history[len(history)-1]
	assert.LessOrEqual(t, last.Amount.Cents, history[0].Amount.Cents)
}

func TestScheduler_SemiMonthlyDueDates(t *testing.T) {
	loan := monthlyLoan(500000, "0.08", 24)
	loan.Frequency = core.ReferenceFrequency{ID: 2, Name: "Semi-monthly", PerMonth: 2}
	s := NewScheduler()

	want := []string{"2024-01-15", "2024-02-01", "2024-02-15", "2024-03-01"}
	var history []core.ScheduledPayment
	for _, w := range want {
		next, err := s.Next(loan, history)
		require.NoError(t, err)
		assert.Equal(t, w, next.Payment.DueDate.String())
		history = append(history, next.Payment)
	}

	wantPayment := levelPayment(5000, 0.08, 24, 24)
	assert.InDelta(t, wantPayment*100, float64(history[0].Amount.Cents), 1)
}

func TestScheduler_WeeklyInterestUsesIntervalDays(t *testing.T) {
	loan := monthlyLoan(100000, "0.10", 6)
	loan.Frequency = core.ReferenceFrequency{ID: 3, Name: "Weekly", Days: 7}

	next, err := NewScheduler().Next(loan, nil)
	require.NoError(t, err)

	assert.Equal(t, "2024-01-08", next.Payment.DueDate.String())
	// 7 * 0.10 / 365 * 1000 = 1.917...
	assert.Equal(t, int64(192), next.Payment.Interest.Cents)
}

func TestScheduler_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*core.Loan)
		wantErr error
	}{
		{
			name:    "three payments per month",
			mutate:  func(l *core.Loan) { l.Frequency.PerMonth = 3 },
			wantErr: core.ErrUnsupportedFrequency,
		},
		{
			name:    "frequency without selector",
			mutate:  func(l *core.Loan) { l.Frequency.PerMonth = 0 },
			wantErr: core.ErrValidation,
		},
		{
			name:    "zero term",
			mutate:  func(l *core.Loan) { l.Amortization.Months = 0 },
			wantErr: core.ErrValidation,
		},
		{
			name:    "zero rate",
			mutate:  func(l *core.Loan) { l.Rate = decimal.Zero },
			wantErr: core.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loan := monthlyLoan(120000, "0.12", 12)
			tt.mutate(&loan)
			_, err := NewScheduler().Next(loan, nil)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, IsScheduleError(err))
		})
	}
}

func TestSummarize(t *testing.T) {
	loan := monthlyLoan(120000, "0.12", 12)
	now := time.Now()

	payments := []core.ScheduledPayment{
		{Seq: 0, Amount: core.NewMoney(10665), Interest: core.NewMoney(1223), DueDate: core.NewDate(2024, 2, 1), PaidAt: &now},
		{Seq: 1, Amount: core.NewMoney(10665), Interest: core.NewMoney(1054), DueDate: core.NewDate(2024, 3, 1)},
		{Seq: 2, Amount: core.NewMoney(10665), Interest: core.NewMoney(1033), DueDate: core.NewDate(2024, 4, 1)},
	}

	s := Summarize(loan, payments)

	assert.Len(t, s.Paid, 1)
	assert.Len(t, s.Unpaid, 2)
	assert.Equal(t, int64(9442), s.PrincipalPaid.Cents)
	assert.Equal(t, int64(120000-9442), s.OutstandingBalance.Cents)
	require.NotNil(t, s.NextPayment)
	assert.Equal(t, int64(21330), s.NextPayment.Amount.Cents)
	assert.Equal(t, int64(2087), s.NextPayment.Interest.Cents)
	assert.Equal(t, "2024-04-01", s.NextPayment.DueDate.String())
}

func TestSummarize_NothingOutstanding(t *testing.T) {
	loan := monthlyLoan(10000, "0.12", 12)
	now := time.Now()

	s := Summarize(loan, nil)
	assert.Nil(t, s.NextPayment)
	assert.Equal(t, loan.Principal, s.OutstandingBalance)

	// overpaid principal floors at zero
	s = Summarize(loan, []core.ScheduledPayment{
		{Amount: core.NewMoney(20000), Interest: core.NewMoney(100), DueDate: core.NewDate(2024, 2, 1), PaidAt: &now},
	})
	assert.Nil(t, s.NextPayment)
	assert.True(t, s.OutstandingBalance.IsZero())
}
