package core

// PaymentDue aggregates what a borrower currently owes.
type PaymentDue struct {
	Amount   Money
	Interest Money
	DueDate  Date
}

// LoanSummary is the borrower-facing view of a loan and its payments.
type LoanSummary struct {
	Loan               Loan
	Paid               []ScheduledPayment
	Unpaid             []ScheduledPayment
	PrincipalPaid      Money
	OutstandingBalance Money
	// NextPayment is nil when nothing is outstanding.
	NextPayment *PaymentDue
}

// AvailableCredit is what a borrower may still originate.
type AvailableCredit struct {
	Assessment    *Assessment
	Remaining     Money
	Minimum       Money
	Frequencies   []ReferenceFrequency
	Amortizations []ReferenceAmortization
}
