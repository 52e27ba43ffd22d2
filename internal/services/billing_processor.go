package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"peerlend/internal/core"
	"peerlend/internal/metrics"
	"peerlend/internal/storage"
)

// BillingStore lists the loans a billing cycle walks over.
type BillingStore interface {
	ListLoans(ctx context.Context) ([]core.Loan, error)
	LoadPaymentsForLoan(ctx context.Context, loanID int64) ([]core.ScheduledPayment, error)
}

// BillingProcessor generates the next payment of every loan whose latest
// payment falls within the lead window.
type BillingProcessor struct {
	store    BillingStore
	loans    *LoanService
	leadDays int
}

func NewBillingProcessor(store BillingStore, loans *LoanService, leadDays int) *BillingProcessor {
	return &BillingProcessor{
		store:    store,
		loans:    loans,
		leadDays: leadDays,
	}
}

// ProcessDueLoans runs one billing cycle and returns how many payments were
// generated. At most one payment per loan is generated per cycle. Failures on
// individual loans are logged and skipped.
func (p *BillingProcessor) ProcessDueLoans(ctx context.Context, now time.Time) (int, error) {
	if p.store == nil || p.loans == nil {
		return 0, fmt.Errorf("processor not properly initialized")
	}
	start := time.Now()
	defer func() { metrics.BillingCycleDuration.Observe(time.Since(start).Seconds()) }()

	loans, err := p.store.ListLoans(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list loans: %w", err)
	}

	today := core.DateOf(now)
	slog.InfoContext(ctx, "Processing billing cycle",
		"total_loans", len(loans),
		"processing_date", today.String(),
		"lead_days", p.leadDays)

	generated := 0
	for _, loan := range loans {
		if err := ctx.Err(); err != nil {
			return generated, err
		}

		ok, err := p.processLoan(ctx, loan, today)
		if err != nil {
			level := slog.LevelError
			if errors.Is(err, storage.ErrConflict) {
				// Someone else appended first; the next cycle sees their payment
				level = slog.LevelWarn
			}
			slog.Log(ctx, level, "Failed to bill loan", "loan_id", loan.ID, "error", err)
			continue
		}
		if ok {
			generated++
		}
	}

	slog.InfoContext(ctx, "Billing cycle complete",
		"generated", generated,
		"total_checked", len(loans))
	return generated, nil
}

func (p *BillingProcessor) processLoan(ctx context.Context, loan core.Loan, today core.Date) (bool, error) {
	history, err := p.store.LoadPaymentsForLoan(ctx, loan.ID)
	if err != nil {
		return false, fmt.Errorf("load payments: %w", err)
	}
	if FullyAmortized(loan, history) {
		return false, nil
	}

	if len(history) > 0 {
		freq, err := loan.Frequency.Resolve()
		if err != nil {
			return false, err
		}
		lastDue := history[len(history)-1].DueDate
		if !DuenessFor(freq, p.leadDays).IsDue(lastDue, today) {
			return false, nil
		}
	}

	if _, err := p.loans.GenerateNextPayment(ctx, loan, history, TriggerBilling); err != nil {
		return false, err
	}
	return true, nil
}
