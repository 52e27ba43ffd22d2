package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"peerlend/internal/core"
)

type (
	// ReferenceReader serves the frequency and amortization reference tables.
	ReferenceReader interface {
		ListFrequencies(ctx context.Context) ([]core.ReferenceFrequency, error)
		ListAmortizations(ctx context.Context) ([]core.ReferenceAmortization, error)
	}

	// AssessmentReader returns the latest approved assessment of a borrower,
	// or nil when the borrower has none.
	AssessmentReader interface {
		LatestApprovedAssessment(ctx context.Context, borrowerID int64) (*core.Assessment, error)
	}

	// BankConnectionReader returns ErrNotFound when the connection does not
	// exist or belongs to another borrower.
	BankConnectionReader interface {
		GetBankConnection(ctx context.Context, borrowerID, bankID int64) (core.BankConnection, error)
	}

	LoanStore interface {
		// CreateLoan persists a new loan and returns it with its ID and CreatedAt set.
		CreateLoan(ctx context.Context, loan core.Loan) (core.Loan, error)
		GetLoan(ctx context.Context, borrowerID int64, ref uuid.UUID) (core.Loan, error)
		GetLoanByID(ctx context.Context, id int64) (core.Loan, error)
		ListLoansForBorrower(ctx context.Context, borrowerID int64) ([]core.Loan, error)
		// ListLoans returns every loan, oldest first.
		ListLoans(ctx context.Context) ([]core.Loan, error)
		// LoadPaymentsForLoan returns the payments ordered by due date,
		// with PaidAt joined from the settlement records.
		LoadPaymentsForLoan(ctx context.Context, loanID int64) ([]core.ScheduledPayment, error)
		// AppendPayment stores p only if the loan currently has exactly p.Seq
		// payments. Otherwise it returns ErrConflict and stores nothing.
		AppendPayment(ctx context.Context, p core.ScheduledPayment) error
	}

	// SettlementRecorder is used by the settlement source to mark payments paid.
	SettlementRecorder interface {
		RecordSettlement(ctx context.Context, loanID int64, seq int, paidAt time.Time) error
	}

	// OnboardingWriter records the borrower data produced by the assessment
	// workflow and bank linking, which live outside this service.
	OnboardingWriter interface {
		SaveAssessment(ctx context.Context, a core.Assessment) (core.Assessment, error)
		SaveBankConnection(ctx context.Context, b core.BankConnection) (core.BankConnection, error)
	}

	// ExportQueue tracks which payments still need to reach the servicing ledger.
	ExportQueue interface {
		PendingExports(ctx context.Context, limit int) ([]PendingExport, error)
		MarkExported(ctx context.Context, loanID int64, seq int) error
		MarkExportError(ctx context.Context, loanID int64, seq int) error
	}

	// Repository is everything a backend provides.
	Repository interface {
		ReferenceReader
		AssessmentReader
		BankConnectionReader
		LoanStore
		SettlementRecorder
		OnboardingWriter
		ExportQueue
		Ping(ctx context.Context) error
		Close() error
	}
)

// PendingExport identifies a payment not yet written to the ledger.
type PendingExport struct {
	LoanID    int64
	Seq       int
	CreatedAt time.Time
}
