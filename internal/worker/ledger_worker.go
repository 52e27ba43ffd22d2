package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"peerlend/internal/amqp"
	"peerlend/internal/core"
	"peerlend/internal/metrics"
	"peerlend/internal/sheets"
	"peerlend/internal/storage"
)

type (
	// LedgerStore is the part of the repository the worker reads and marks.
	LedgerStore interface {
		GetLoanByID(ctx context.Context, id int64) (core.Loan, error)
		LoadPaymentsForLoan(ctx context.Context, loanID int64) ([]core.ScheduledPayment, error)
		storage.ExportQueue
	}

	// MessageSource delivers payment notifications until ctx is done.
	MessageSource interface {
		ConsumePaymentScheduled(ctx context.Context, handler func(context.Context, *amqp.PaymentScheduledMessage) error) error
	}
)

// LedgerWorker exports scheduled payments from storage to the servicing ledger.
type LedgerWorker struct {
	store     LedgerStore
	ledger    sheets.Ledger
	batchSize int
	locks     paymentLocks
}

type paymentKey struct {
	loanID int64
	seq    int
}

// paymentLocks serializes exports of the same payment between the consumer
// and the backfill. Entries are dropped once no export holds them.
type paymentLocks struct {
	mu    sync.Mutex
	locks map[paymentKey]*paymentLock
}

type paymentLock struct {
	sync.Mutex
	refs int
}

func (l *paymentLocks) lock(key paymentKey) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[paymentKey]*paymentLock)
	}
	pl, ok := l.locks[key]
	if !ok {
		pl = &paymentLock{}
		l.locks[key] = pl
	}
	pl.refs++
	l.mu.Unlock()

	pl.Lock()
	return func() {
		pl.Unlock()
		l.mu.Lock()
		pl.refs--
		if pl.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}

func NewLedgerWorker(store LedgerStore, ledger sheets.Ledger, batchSize int) *LedgerWorker {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &LedgerWorker{
		store:     store,
		ledger:    ledger,
		batchSize: batchSize,
	}
}

// HandlePaymentScheduled processes a single payment message from AMQP.
func (w *LedgerWorker) HandlePaymentScheduled(ctx context.Context, msg *amqp.PaymentScheduledMessage) error {
	slog.InfoContext(ctx, "Processing payment message",
		"loan_id", msg.LoanID,
		"payment_seq", msg.Seq)

	err := w.exportPayment(ctx, msg.LoanID, msg.Seq)
	if errors.Is(err, storage.ErrNotFound) {
		// Nothing to export; requeueing would loop forever
		slog.WarnContext(ctx, "Payment not found, dropping message", "loan_id", msg.LoanID, "payment_seq", msg.Seq)
		return nil
	}
	return err
}

// ProcessPending exports payments that were never exported. It backs up the
// message path when messages are lost or the worker was down.
func (w *LedgerWorker) ProcessPending(ctx context.Context) (exported, failed int, err error) {
	return w.processBatch(ctx, w.batchSize)
}

// StartupCheck runs a larger backfill once when the worker starts.
func (w *LedgerWorker) StartupCheck(ctx context.Context) error {
	exported, failed, err := w.processBatch(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("startup export check: %w", err)
	}
	slog.InfoContext(ctx, "Startup export check completed", "exported", exported, "errors", failed)
	return nil
}

func (w *LedgerWorker) processBatch(ctx context.Context, limit int) (exported, failed int, err error) {
	pending, err := w.store.PendingExports(ctx, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("get pending exports: %w", err)
	}
	if len(pending) == 0 {
		return 0, 0, nil
	}

	slog.InfoContext(ctx, "Processing pending exports", "count", len(pending))
	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			return exported, failed, err
		}
		if err := w.exportPayment(ctx, p.LoanID, p.Seq); err != nil {
			slog.ErrorContext(ctx, "Failed to export payment", "loan_id", p.LoanID, "payment_seq", p.Seq, "error", err)
			failed++
			continue
		}
		exported++
	}
	return exported, failed, nil
}

func (w *LedgerWorker) exportPayment(ctx context.Context, loanID int64, seq int) error {
	unlock := w.locks.lock(paymentKey{loanID, seq})
	defer unlock()

	loan, err := w.store.GetLoanByID(ctx, loanID)
	if err != nil {
		return fmt.Errorf("get loan: %w", err)
	}
	payments, err := w.store.LoadPaymentsForLoan(ctx, loanID)
	if err != nil {
		return fmt.Errorf("load payments: %w", err)
	}

	var payment *core.ScheduledPayment
	for i := range payments {
		if payments[i].Seq == seq {
			payment = &payments[i]
			break
		}
	}
	if payment == nil {
		return fmt.Errorf("payment %d of loan %d: %w", seq, loanID, storage.ErrNotFound)
	}

	exists, err := w.alreadyExported(ctx, loan, seq)
	if err != nil {
		w.markError(ctx, loanID, seq)
		return err
	}

	ref := "existing"
	if !exists {
		ref, err = w.ledger.AppendPayment(ctx, sheets.NewLedgerRow(loan, *payment))
		if err != nil {
			w.markError(ctx, loanID, seq)
			return fmt.Errorf("append to ledger: %w", err)
		}
	}

	if err := w.store.MarkExported(ctx, loanID, seq); err != nil {
		// The row is in the ledger; the duplicate check covers a retry
		slog.ErrorContext(ctx, "Failed to mark as exported", "loan_id", loanID, "payment_seq", seq, "error", err)
	}
	metrics.LedgerExports.WithLabelValues("exported").Inc()

	slog.InfoContext(ctx, "Exported payment to ledger",
		"loan_id", loanID,
		"loan_ref", loan.Reference.String(),
		"payment_seq", seq,
		"ledger_ref", ref,
		"amount_cents", payment.Amount.Cents)
	return nil
}

func (w *LedgerWorker) alreadyExported(ctx context.Context, loan core.Loan, seq int) (bool, error) {
	rows, err := w.ledger.ListPayments(ctx, loan.Reference.String())
	if err != nil {
		return false, fmt.Errorf("list ledger rows: %w", err)
	}
	for _, r := range rows {
		if r.Seq == seq {
			return true, nil
		}
	}
	return false, nil
}

func (w *LedgerWorker) markError(ctx context.Context, loanID int64, seq int) {
	metrics.LedgerExports.WithLabelValues("error").Inc()
	if err := w.store.MarkExportError(ctx, loanID, seq); err != nil {
		slog.ErrorContext(ctx, "Failed to mark export error", "loan_id", loanID, "payment_seq", seq, "error", err)
	}
}

// Run consumes messages from source (when not nil) and runs the periodic
// backfill every interval until ctx is cancelled or one of them fails.
func (w *LedgerWorker) Run(ctx context.Context, source MessageSource, interval time.Duration) error {
	g, ctx := errgroup.WithContext(ctx)

	if source != nil {
		g.Go(func() error {
			return source.ConsumePaymentScheduled(ctx, w.HandlePaymentScheduled)
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if _, _, err := w.ProcessPending(ctx); err != nil && ctx.Err() == nil {
					slog.ErrorContext(ctx, "Periodic export failed", "error", err)
				}
			}
		}
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
