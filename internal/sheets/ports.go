package sheets

import (
	"context"

	"peerlend/internal/core"
)

// LedgerRow is one scheduled payment as it appears in the servicing ledger.
type LedgerRow struct {
	LoanRef    string
	BorrowerID int64
	Seq        int
	DueDate    core.Date
	Amount     core.Money
	Interest   core.Money
	Principal  core.Money
}

// NewLedgerRow builds the ledger row for payment p of loan.
func NewLedgerRow(loan core.Loan, p core.ScheduledPayment) LedgerRow {
	return LedgerRow{
		LoanRef:    loan.Reference.String(),
		BorrowerID: loan.BorrowerID,
		Seq:        p.Seq,
		DueDate:    p.DueDate,
		Amount:     p.Amount,
		Interest:   p.Interest,
		Principal:  p.Principal(),
	}
}

// Ports for outbound adapters.
type (
	LedgerWriter interface {
		AppendPayment(ctx context.Context, row LedgerRow) (rowRef string, err error)
	}

	// LedgerLister returns the rows already exported for a loan, used to
	// skip duplicates when a message is redelivered.
	LedgerLister interface {
		ListPayments(ctx context.Context, loanRef string) ([]LedgerRow, error)
	}

	Ledger interface {
		LedgerWriter
		LedgerLister
	}
)
