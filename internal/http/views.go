package http

import (
	"time"

	"peerlend/internal/core"
)

// Amounts are rendered with Money.String, two decimals and no currency.

type FrequencyView struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Days      int    `json:"days,omitempty"`
	PerMonth  int    `json:"per_month,omitempty"`
	Supported bool   `json:"supported"`
}

type AmortizationView struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Months int    `json:"months"`
}

type PaymentView struct {
	Seq       int        `json:"seq"`
	Amount    string     `json:"amount"`
	Interest  string     `json:"interest"`
	Principal string     `json:"principal"`
	DueDate   string     `json:"due_date"`
	PaidAt    *time.Time `json:"paid_at,omitempty"`
}

type PaymentDueView struct {
	Amount   string `json:"amount"`
	Interest string `json:"interest"`
	DueDate  string `json:"due_date"`
}

type LoanView struct {
	Reference          string           `json:"reference"`
	Principal          string           `json:"principal"`
	Rate               string           `json:"rate"`
	RatingID           int64            `json:"rating_id"`
	Bank               int64            `json:"bank"`
	Amortization       AmortizationView `json:"amortization"`
	Frequency          FrequencyView    `json:"frequency"`
	StartDate          string           `json:"start_date"`
	CreatedAt          time.Time        `json:"created_at"`
	PrincipalPaid      string           `json:"principal_paid"`
	OutstandingBalance string           `json:"outstanding_balance"`
	NextPayment        *PaymentDueView  `json:"next_payment"`
	Paid               []PaymentView    `json:"paid"`
	Unpaid             []PaymentView    `json:"unpaid"`
}

type AvailableView struct {
	Approved         bool               `json:"approved"`
	ApprovedCapacity string             `json:"approved_capacity,omitempty"`
	Rate             string             `json:"rate,omitempty"`
	RatingID         int64              `json:"rating_id,omitempty"`
	Remaining        string             `json:"remaining"`
	Minimum          string             `json:"minimum"`
	Frequencies      []FrequencyView    `json:"frequencies"`
	Amortizations    []AmortizationView `json:"amortizations"`
}

func newFrequencyView(f core.ReferenceFrequency) FrequencyView {
	_, err := f.Resolve()
	return FrequencyView{
		ID:        f.ID,
		Name:      f.Name,
		Days:      f.Days,
		PerMonth:  f.PerMonth,
		Supported: err == nil,
	}
}

func newFrequencyViews(rows []core.ReferenceFrequency) []FrequencyView {
	views := make([]FrequencyView, len(rows))
	for i, f := range rows {
		views[i] = newFrequencyView(f)
	}
	return views
}

func newAmortizationView(a core.ReferenceAmortization) AmortizationView {
	return AmortizationView{ID: a.ID, Name: a.Name, Months: a.Months}
}

func newAmortizationViews(rows []core.ReferenceAmortization) []AmortizationView {
	views := make([]AmortizationView, len(rows))
	for i, a := range rows {
		views[i] = newAmortizationView(a)
	}
	return views
}

func newPaymentViews(payments []core.ScheduledPayment) []PaymentView {
	views := make([]PaymentView, len(payments))
	for i, p := range payments {
		views[i] = PaymentView{
			Seq:       p.Seq,
			Amount:    p.Amount.String(),
			Interest:  p.Interest.String(),
			Principal: p.Principal().String(),
			DueDate:   p.DueDate.String(),
			PaidAt:    p.PaidAt,
		}
	}
	return views
}

func newLoanView(s core.LoanSummary) LoanView {
	loan := s.Loan
	view := LoanView{
		Reference:          loan.Reference.String(),
		Principal:          loan.Principal.String(),
		Rate:               loan.Rate.String(),
		RatingID:           loan.RatingID,
		Bank:               loan.BankConnectionID,
		Amortization:       newAmortizationView(loan.Amortization),
		Frequency:          newFrequencyView(loan.Frequency),
		StartDate:          loan.StartDate.String(),
		CreatedAt:          loan.CreatedAt,
		PrincipalPaid:      s.PrincipalPaid.String(),
		OutstandingBalance: s.OutstandingBalance.String(),
		Paid:               newPaymentViews(s.Paid),
		Unpaid:             newPaymentViews(s.Unpaid),
	}
	if s.NextPayment != nil {
		view.NextPayment = &PaymentDueView{
			Amount:   s.NextPayment.Amount.String(),
			Interest: s.NextPayment.Interest.String(),
			DueDate:  s.NextPayment.DueDate.String(),
		}
	}
	return view
}

func newLoanViews(summaries []core.LoanSummary) []LoanView {
	views := make([]LoanView, len(summaries))
	for i, s := range summaries {
		views[i] = newLoanView(s)
	}
	return views
}

func newAvailableView(a core.AvailableCredit) AvailableView {
	view := AvailableView{
		Remaining:     a.Remaining.String(),
		Minimum:       a.Minimum.String(),
		Frequencies:   newFrequencyViews(a.Frequencies),
		Amortizations: newAmortizationViews(a.Amortizations),
	}
	if a.Assessment != nil {
		view.Approved = true
		view.ApprovedCapacity = a.Assessment.ApprovedCapacity.String()
		view.Rate = a.Assessment.Rate.String()
		view.RatingID = a.Assessment.RatingID
	}
	return view
}
