package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"peerlend/internal/core"
	"peerlend/internal/metrics"
	"peerlend/internal/storage"
)

// Payment triggers, used as metric labels.
const (
	TriggerOrigination = "origination"
	TriggerBilling     = "billing"
)

// PaymentPublisher announces newly scheduled payments.
type PaymentPublisher interface {
	PublishPaymentScheduled(ctx context.Context, loanID int64, seq int) error
}

// LoanRepository is the storage the loan service works against.
type LoanRepository interface {
	storage.AssessmentReader
	storage.BankConnectionReader
	storage.LoanStore
	storage.SettlementRecorder
}

// CreateLoanRequest carries a borrower's loan application.
type CreateLoanRequest struct {
	BorrowerID       int64
	BankConnectionID int64
	Principal        core.Money
	AmortizationID   int64
	FrequencyID      int64
	// StartDate defaults to today when zero.
	StartDate core.Date
}

// LoanService orchestrates origination, scheduling and borrower views.
type LoanService struct {
	repo      LoanRepository
	catalog   *Catalog
	scheduler *Scheduler
	publisher PaymentPublisher
	minimum   core.Money
	now       func() time.Time
}

// NewLoanService creates the service. publisher may be nil, in which case no
// messages are sent and the ledger worker relies on its backfill.
func NewLoanService(repo LoanRepository, catalog *Catalog, publisher PaymentPublisher, minimum core.Money) *LoanService {
	return &LoanService{
		repo:      repo,
		catalog:   catalog,
		scheduler: NewScheduler(),
		publisher: publisher,
		minimum:   minimum,
		now:       time.Now,
	}
}

// CreateLoan checks capacity, persists the loan and schedules its first payment.
func (s *LoanService) CreateLoan(ctx context.Context, req CreateLoanRequest) (core.LoanSummary, error) {
	amort, err := s.catalog.Amortization(ctx, req.AmortizationID)
	if err != nil {
		return core.LoanSummary{}, err
	}
	freq, err := s.catalog.Frequency(ctx, req.FrequencyID)
	if err != nil {
		return core.LoanSummary{}, err
	}

	if _, err := s.repo.GetBankConnection(ctx, req.BorrowerID, req.BankConnectionID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return core.LoanSummary{}, &core.ValidationError{Field: "bank", Reason: "unknown bank connection"}
		}
		return core.LoanSummary{}, fmt.Errorf("check bank connection: %w", err)
	}

	assessment, err := s.repo.LatestApprovedAssessment(ctx, req.BorrowerID)
	if err != nil {
		return core.LoanSummary{}, fmt.Errorf("load assessment: %w", err)
	}
	existing, err := s.repo.ListLoansForBorrower(ctx, req.BorrowerID)
	if err != nil {
		return core.LoanSummary{}, fmt.Errorf("list loans: %w", err)
	}

	checker := NewCapacityChecker(assessment, existing, s.minimum)
	if err := checker.Check(req.Principal); err != nil {
		metrics.OriginationsRejected.WithLabelValues(rejectionReason(err)).Inc()
		slog.InfoContext(ctx, "Loan request rejected",
			"borrower_id", req.BorrowerID,
			"amount_cents", req.Principal.Cents,
			"remaining_cents", checker.Remaining().Cents,
			"error", err)
		return core.LoanSummary{}, err
	}

	start := req.StartDate
	if start.IsZero() {
		start = core.DateOf(s.now())
	}

	loan := core.Loan{
		Reference:        uuid.New(),
		BorrowerID:       req.BorrowerID,
		BankConnectionID: req.BankConnectionID,
		Principal:        req.Principal,
		Rate:             assessment.Rate,
		RatingID:         assessment.RatingID,
		Amortization:     amort,
		Frequency:        freq,
		StartDate:        start,
	}
	// Reject terms the scheduler cannot handle before anything is stored
	if _, err := s.scheduler.PaymentPerPeriod(loan); err != nil {
		return core.LoanSummary{}, err
	}

	created, err := s.repo.CreateLoan(ctx, loan)
	if err != nil {
		return core.LoanSummary{}, fmt.Errorf("create loan: %w", err)
	}
	metrics.LoansOriginated.Inc()

	slog.InfoContext(ctx, "Loan originated",
		"loan_id", created.ID,
		"loan_ref", created.Reference.String(),
		"borrower_id", created.BorrowerID,
		"amount_cents", created.Principal.Cents,
		"frequency", freq.Name,
		"amortization", amort.Name)

	// The loan is stored; billing schedules loans with an empty history
	first, err := s.GenerateNextPayment(ctx, created, nil, TriggerOrigination)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to schedule first payment, deferring to billing",
			"loan_id", created.ID,
			"loan_ref", created.Reference.String(),
			"error", err)
		return Summarize(created, nil), nil
	}
	return Summarize(created, []core.ScheduledPayment{first}), nil
}

// GenerateNextPayment schedules the payment that follows history and appends
// it. history must be the loan's full payment list as loaded from storage.
// A concurrent append for the same loan surfaces as storage.ErrConflict.
func (s *LoanService) GenerateNextPayment(ctx context.Context, loan core.Loan, history []core.ScheduledPayment, trigger string) (core.ScheduledPayment, error) {
	next, err := s.scheduler.Next(loan, history)
	if err != nil {
		if errors.Is(err, core.ErrUnsupportedFrequency) {
			metrics.UnsupportedFrequencies.Inc()
			slog.ErrorContext(ctx, "Loan has an unsupported frequency", "loan_id", loan.ID, "error", err)
		}
		return core.ScheduledPayment{}, err
	}

	if err := s.repo.AppendPayment(ctx, next.Payment); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			metrics.ScheduleConflicts.Inc()
		}
		return core.ScheduledPayment{}, err
	}
	metrics.PaymentsScheduled.WithLabelValues(trigger).Inc()

	slog.InfoContext(ctx, "Payment scheduled",
		"loan_id", loan.ID,
		"payment_seq", next.Payment.Seq,
		"amount_cents", next.Payment.Amount.Cents,
		"interest_cents", next.Payment.Interest.Cents,
		"due_date", next.Payment.DueDate.String(),
		"balance_cents", next.PrincipalBalance.Cents)

	s.publish(ctx, next.Payment)
	return next.Payment, nil
}

func (s *LoanService) publish(ctx context.Context, p core.ScheduledPayment) {
	if s.publisher == nil {
		return
	}
	// The payment is stored; the ledger backfill picks it up if this fails
	if err := s.publisher.PublishPaymentScheduled(ctx, p.LoanID, p.Seq); err != nil {
		slog.ErrorContext(ctx, "Failed to publish payment message",
			"loan_id", p.LoanID, "payment_seq", p.Seq, "error", err)
	}
}

// GetLoan returns the summary of one of the borrower's loans.
func (s *LoanService) GetLoan(ctx context.Context, borrowerID int64, ref uuid.UUID) (core.LoanSummary, error) {
	loan, err := s.repo.GetLoan(ctx, borrowerID, ref)
	if err != nil {
		return core.LoanSummary{}, err
	}
	payments, err := s.repo.LoadPaymentsForLoan(ctx, loan.ID)
	if err != nil {
		return core.LoanSummary{}, fmt.Errorf("load payments: %w", err)
	}
	return Summarize(loan, payments), nil
}

// ListLoans returns a summary per loan of the borrower, in storage order.
func (s *LoanService) ListLoans(ctx context.Context, borrowerID int64) ([]core.LoanSummary, error) {
	loans, err := s.repo.ListLoansForBorrower(ctx, borrowerID)
	if err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}

	summaries := make([]core.LoanSummary, len(loans))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, loan := range loans {
		g.Go(func() error {
			payments, err := s.repo.LoadPaymentsForLoan(gctx, loan.ID)
			if err != nil {
				return fmt.Errorf("load payments for loan %d: %w", loan.ID, err)
			}
			summaries[i] = Summarize(loan, payments)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return summaries, nil
}

// Available reports what the borrower may still originate.
func (s *LoanService) Available(ctx context.Context, borrowerID int64) (core.AvailableCredit, error) {
	assessment, err := s.repo.LatestApprovedAssessment(ctx, borrowerID)
	if err != nil {
		return core.AvailableCredit{}, fmt.Errorf("load assessment: %w", err)
	}
	loans, err := s.repo.ListLoansForBorrower(ctx, borrowerID)
	if err != nil {
		return core.AvailableCredit{}, fmt.Errorf("list loans: %w", err)
	}
	freqs, err := s.catalog.Frequencies(ctx)
	if err != nil {
		return core.AvailableCredit{}, err
	}
	amorts, err := s.catalog.Amortizations(ctx)
	if err != nil {
		return core.AvailableCredit{}, err
	}

	return core.AvailableCredit{
		Assessment:    assessment,
		Remaining:     NewCapacityChecker(assessment, loans, s.minimum).Remaining(),
		Minimum:       s.minimum,
		Frequencies:   freqs,
		Amortizations: amorts,
	}, nil
}

// RecordSettlement marks payment seq of the borrower's loan as paid.
// Settling an already settled payment keeps the original date.
func (s *LoanService) RecordSettlement(ctx context.Context, borrowerID int64, ref uuid.UUID, seq int, paidAt time.Time) error {
	loan, err := s.repo.GetLoan(ctx, borrowerID, ref)
	if err != nil {
		return err
	}
	if err := s.repo.RecordSettlement(ctx, loan.ID, seq, paidAt); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Payment settled",
		"loan_id", loan.ID,
		"loan_ref", ref.String(),
		"payment_seq", seq,
		"paid_at", paidAt.UTC().Format(time.RFC3339))
	return nil
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, core.ErrNoApprovedAssessment):
		return "no_assessment"
	case errors.Is(err, core.ErrCapacityExceeded):
		return "capacity"
	case errors.Is(err, core.ErrValidation):
		return "validation"
	default:
		return "other"
	}
}
