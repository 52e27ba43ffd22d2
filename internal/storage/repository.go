package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"peerlend/internal/core"
)

const (
	timeLayout = time.RFC3339Nano
	dateLayout = "2006-01-02"

	// Payments that failed to export this many times are left for an operator.
	maxExportErrors = 5
)

const loanColumns = `
	l.id, l.reference, l.borrower_id, l.bank_connection_id, l.principal_cents, l.rate, l.rating_id,
	a.id, a.name, a.months, f.id, f.name, f.days, f.per_month, l.start_date, l.created_at
	FROM loans l
	JOIN loan_amortizations a ON a.id = l.amortization_id
	JOIN loan_frequencies f ON f.id = l.frequency_id`

type SQLiteRepository struct {
	db *sql.DB
}

var _ Repository = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows a single writer; one connection keeps appends serialized
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return wrap("ping", r.db.PingContext(ctx))
}

// ListFrequencies implements ReferenceReader
func (r *SQLiteRepository) ListFrequencies(ctx context.Context) ([]core.ReferenceFrequency, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, days, per_month FROM loan_frequencies ORDER BY id`)
	if err != nil {
		return nil, wrap("list frequencies", err)
	}
	defer rows.Close()

	var out []core.ReferenceFrequency
	for rows.Next() {
		var f core.ReferenceFrequency
		if err := rows.Scan(&f.ID, &f.Name, &f.Days, &f.PerMonth); err != nil {
			return nil, wrap("scan frequency", err)
		}
		out = append(out, f)
	}
	return out, wrap("list frequencies", rows.Err())
}

// ListAmortizations implements ReferenceReader
func (r *SQLiteRepository) ListAmortizations(ctx context.Context) ([]core.ReferenceAmortization, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, months FROM loan_amortizations ORDER BY months`)
	if err != nil {
		return nil, wrap("list amortizations", err)
	}
	defer rows.Close()

	var out []core.ReferenceAmortization
	for rows.Next() {
		var a core.ReferenceAmortization
		if err := rows.Scan(&a.ID, &a.Name, &a.Months); err != nil {
			return nil, wrap("scan amortization", err)
		}
		out = append(out, a)
	}
	return out, wrap("list amortizations", rows.Err())
}

// LatestApprovedAssessment implements AssessmentReader
func (r *SQLiteRepository) LatestApprovedAssessment(ctx context.Context, borrowerID int64) (*core.Assessment, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, borrower_id, approved_capacity_cents, rate, rating_id, approved_at
		FROM assessments
		WHERE borrower_id = ? AND status = 'approved'
		ORDER BY approved_at DESC, id DESC
		LIMIT 1`, borrowerID)

	var (
		a          core.Assessment
		rate       string
		approvedAt string
	)
	err := row.Scan(&a.ID, &a.BorrowerID, &a.ApprovedCapacity.Cents, &rate, &a.RatingID, &approvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("get assessment", err)
	}
	if a.Rate, err = decimal.NewFromString(rate); err != nil {
		return nil, wrap("parse assessment rate", err)
	}
	if a.ApprovedAt, err = time.Parse(timeLayout, approvedAt); err != nil {
		return nil, wrap("parse assessment time", err)
	}
	return &a, nil
}

// SaveAssessment records an approved assessment for a borrower.
func (r *SQLiteRepository) SaveAssessment(ctx context.Context, a core.Assessment) (core.Assessment, error) {
	if a.ApprovedAt.IsZero() {
		a.ApprovedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO assessments (borrower_id, approved_capacity_cents, rate, rating_id, approved_at)
		VALUES (?, ?, ?, ?, ?)`,
		a.BorrowerID, a.ApprovedCapacity.Cents, a.Rate.String(), a.RatingID, a.ApprovedAt.UTC().Format(timeLayout))
	if err != nil {
		return a, wrap("save assessment", err)
	}
	a.ID, err = res.LastInsertId()
	return a, wrap("save assessment", err)
}

// GetBankConnection implements BankConnectionReader
func (r *SQLiteRepository) GetBankConnection(ctx context.Context, borrowerID, bankID int64) (core.BankConnection, error) {
	var b core.BankConnection
	err := r.db.QueryRowContext(ctx,
		`SELECT id, borrower_id, institution FROM bank_connections WHERE id = ? AND borrower_id = ?`,
		bankID, borrowerID).Scan(&b.ID, &b.BorrowerID, &b.Institution)
	if errors.Is(err, sql.ErrNoRows) {
		return b, ErrNotFound
	}
	return b, wrap("get bank connection", err)
}

// SaveBankConnection records a linked bank account for a borrower.
func (r *SQLiteRepository) SaveBankConnection(ctx context.Context, b core.BankConnection) (core.BankConnection, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO bank_connections (borrower_id, institution) VALUES (?, ?)`, b.BorrowerID, b.Institution)
	if err != nil {
		return b, wrap("save bank connection", err)
	}
	b.ID, err = res.LastInsertId()
	return b, wrap("save bank connection", err)
}

// CreateLoan implements LoanStore
func (r *SQLiteRepository) CreateLoan(ctx context.Context, loan core.Loan) (core.Loan, error) {
	if loan.Reference == uuid.Nil {
		loan.Reference = uuid.New()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO loans (reference, borrower_id, bank_connection_id, principal_cents, rate, rating_id,
		                   amortization_id, frequency_id, start_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		loan.Reference.String(), loan.BorrowerID, loan.BankConnectionID, loan.Principal.Cents,
		loan.Rate.String(), loan.RatingID, loan.Amortization.ID, loan.Frequency.ID,
		loan.StartDate.Format(dateLayout), time.Now().UTC().Format(timeLayout))
	if err != nil {
		return core.Loan{}, wrap("create loan", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Loan{}, wrap("create loan", err)
	}

	slog.InfoContext(ctx, "Loan saved to SQLite",
		"loan_id", id,
		"loan_ref", loan.Reference.String(),
		"borrower_id", loan.BorrowerID,
		"amount_cents", loan.Principal.Cents)

	return r.GetLoanByID(ctx, id)
}

// GetLoan implements LoanStore
func (r *SQLiteRepository) GetLoan(ctx context.Context, borrowerID int64, ref uuid.UUID) (core.Loan, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+loanColumns+` WHERE l.borrower_id = ? AND l.reference = ?`,
		borrowerID, ref.String())
	loan, err := scanLoan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Loan{}, ErrNotFound
	}
	return loan, wrap("get loan", err)
}

// GetLoanByID implements LoanStore
func (r *SQLiteRepository) GetLoanByID(ctx context.Context, id int64) (core.Loan, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+loanColumns+` WHERE l.id = ?`, id)
	loan, err := scanLoan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Loan{}, ErrNotFound
	}
	return loan, wrap("get loan", err)
}

// ListLoansForBorrower implements LoanStore
func (r *SQLiteRepository) ListLoansForBorrower(ctx context.Context, borrowerID int64) ([]core.Loan, error) {
	return r.queryLoans(ctx, "list borrower loans",
		`SELECT `+loanColumns+` WHERE l.borrower_id = ? ORDER BY l.id`, borrowerID)
}

// ListLoans implements LoanStore
func (r *SQLiteRepository) ListLoans(ctx context.Context) ([]core.Loan, error) {
	return r.queryLoans(ctx, "list loans", `SELECT `+loanColumns+` ORDER BY l.id`)
}

func (r *SQLiteRepository) queryLoans(ctx context.Context, op, query string, args ...any) ([]core.Loan, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap(op, err)
	}
	defer rows.Close()

	var loans []core.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, wrap(op, err)
		}
		loans = append(loans, loan)
	}
	return loans, wrap(op, rows.Err())
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLoan(s scanner) (core.Loan, error) {
	var (
		l                         core.Loan
		ref, rate, start, created string
	)
	err := s.Scan(&l.ID, &ref, &l.BorrowerID, &l.BankConnectionID, &l.Principal.Cents, &rate, &l.RatingID,
		&l.Amortization.ID, &l.Amortization.Name, &l.Amortization.Months,
		&l.Frequency.ID, &l.Frequency.Name, &l.Frequency.Days, &l.Frequency.PerMonth,
		&start, &created)
	if err != nil {
		return l, err
	}
	if l.Reference, err = uuid.Parse(ref); err != nil {
		return l, fmt.Errorf("parse reference: %w", err)
	}
	if l.Rate, err = decimal.NewFromString(rate); err != nil {
		return l, fmt.Errorf("parse rate: %w", err)
	}
	if l.StartDate, err = core.ParseDate(start); err != nil {
		return l, fmt.Errorf("parse start date: %w", err)
	}
	if l.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return l, fmt.Errorf("parse created_at: %w", err)
	}
	return l, nil
}

// LoadPaymentsForLoan implements LoanStore
func (r *SQLiteRepository) LoadPaymentsForLoan(ctx context.Context, loanID int64) ([]core.ScheduledPayment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.loan_id, p.seq, p.amount_cents, p.interest_cents, p.due_date, s.paid_at
		FROM loan_payments p
		LEFT JOIN payment_settlements s ON s.loan_id = p.loan_id AND s.seq = p.seq
		WHERE p.loan_id = ?
		ORDER BY p.due_date, p.seq`, loanID)
	if err != nil {
		return nil, wrap("load payments", err)
	}
	defer rows.Close()

	var payments []core.ScheduledPayment
	for rows.Next() {
		var (
			p      core.ScheduledPayment
			due    string
			paidAt sql.NullString
		)
		if err := rows.Scan(&p.LoanID, &p.Seq, &p.Amount.Cents, &p.Interest.Cents, &due, &paidAt); err != nil {
			return nil, wrap("scan payment", err)
		}
		if p.DueDate, err = core.ParseDate(due); err != nil {
			return nil, wrap("parse due date", err)
		}
		if paidAt.Valid {
			t, err := time.Parse(timeLayout, paidAt.String)
			if err != nil {
				return nil, wrap("parse paid_at", err)
			}
			p.PaidAt = &t
		}
		payments = append(payments, p)
	}
	return payments, wrap("load payments", rows.Err())
}

// AppendPayment implements LoanStore. The count check and insert run in one
// immediate transaction; the (loan_id, seq) primary key rejects anything
// that slips past it.
func (r *SQLiteRepository) AppendPayment(ctx context.Context, p core.ScheduledPayment) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("append payment", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM loan_payments WHERE loan_id = ?`, p.LoanID).Scan(&count); err != nil {
		return wrap("append payment", err)
	}
	if count != p.Seq {
		return fmt.Errorf("%w: loan %d has %d payments, expected %d", ErrConflict, p.LoanID, count, p.Seq)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO loan_payments (loan_id, seq, amount_cents, interest_cents, due_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.LoanID, p.Seq, p.Amount.Cents, p.Interest.Cents, p.DueDate.Format(dateLayout), time.Now().UTC().Format(timeLayout))
	if isConstraintViolation(err) {
		return fmt.Errorf("%w: payment %d of loan %d already exists", ErrConflict, p.Seq, p.LoanID)
	}
	if err != nil {
		return wrap("append payment", err)
	}

	if err := tx.Commit(); err != nil {
		return wrap("append payment", err)
	}

	slog.InfoContext(ctx, "Payment saved to SQLite",
		"loan_id", p.LoanID,
		"payment_seq", p.Seq,
		"amount_cents", p.Amount.Cents,
		"interest_cents", p.Interest.Cents,
		"due_date", p.DueDate.String())
	return nil
}

func isConstraintViolation(err error) bool {
	var se *msqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	}
	return false
}

// RecordSettlement implements SettlementRecorder. Settling twice keeps the first date.
func (r *SQLiteRepository) RecordSettlement(ctx context.Context, loanID int64, seq int, paidAt time.Time) error {
	var exists int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM loan_payments WHERE loan_id = ? AND seq = ?`, loanID, seq).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return wrap("record settlement", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO payment_settlements (loan_id, seq, paid_at) VALUES (?, ?, ?)
		ON CONFLICT (loan_id, seq) DO NOTHING`,
		loanID, seq, paidAt.UTC().Format(timeLayout))
	return wrap("record settlement", err)
}

// PendingExports implements ExportQueue
func (r *SQLiteRepository) PendingExports(ctx context.Context, limit int) ([]PendingExport, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT loan_id, seq, created_at FROM loan_payments
		WHERE exported_at IS NULL AND export_errors < ?
		ORDER BY created_at, loan_id, seq
		LIMIT ?`, maxExportErrors, limit)
	if err != nil {
		return nil, wrap("pending exports", err)
	}
	defer rows.Close()

	var out []PendingExport
	for rows.Next() {
		var (
			pe      PendingExport
			created string
		)
		if err := rows.Scan(&pe.LoanID, &pe.Seq, &created); err != nil {
			return nil, wrap("scan pending export", err)
		}
		if pe.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, wrap("parse created_at", err)
		}
		out = append(out, pe)
	}
	return out, wrap("pending exports", rows.Err())
}

// MarkExported implements ExportQueue
func (r *SQLiteRepository) MarkExported(ctx context.Context, loanID int64, seq int) error {
	_, err := r.db.ExecContext(ctx, `UPDATE loan_payments SET exported_at = ? WHERE loan_id = ? AND seq = ?`,
		time.Now().UTC().Format(timeLayout), loanID, seq)
	if err != nil {
		return wrap("mark exported", err)
	}
	slog.InfoContext(ctx, "Payment marked as exported", "loan_id", loanID, "payment_seq", seq)
	return nil
}

// MarkExportError implements ExportQueue
func (r *SQLiteRepository) MarkExportError(ctx context.Context, loanID int64, seq int) error {
	_, err := r.db.ExecContext(ctx, `UPDATE loan_payments SET export_errors = export_errors + 1 WHERE loan_id = ? AND seq = ?`,
		loanID, seq)
	if err != nil {
		return wrap("mark export error", err)
	}
	slog.WarnContext(ctx, "Payment marked with export error", "loan_id", loanID, "payment_seq", seq)
	return nil
}
