package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"peerlend/internal/core"
)

type paymentKey struct {
	loanID int64
	seq    int
}

type memPayment struct {
	payment      core.ScheduledPayment
	createdAt    time.Time
	exported     bool
	exportErrors int
}

// MemoryRepository keeps everything in process memory. It is used for local
// development and tests; all data is lost on restart.
type MemoryRepository struct {
	mu            sync.Mutex
	frequencies   []core.ReferenceFrequency
	amortizations []core.ReferenceAmortization
	assessments   []core.Assessment
	banks         []core.BankConnection
	loans         []core.Loan
	payments      map[int64][]*memPayment
	settlements   map[paymentKey]time.Time
	nextID        int64
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository returns a store seeded with the default reference data.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		frequencies: []core.ReferenceFrequency{
			{ID: 1, Name: "Weekly", Days: 7},
			{ID: 2, Name: "Bi-weekly", Days: 14},
			{ID: 3, Name: "Semi-monthly", PerMonth: 2},
			{ID: 4, Name: "Monthly", PerMonth: 1},
		},
		amortizations: []core.ReferenceAmortization{
			{ID: 1, Name: "6 months", Months: 6},
			{ID: 2, Name: "1 year", Months: 12},
			{ID: 3, Name: "18 months", Months: 18},
			{ID: 4, Name: "2 years", Months: 24},
			{ID: 5, Name: "3 years", Months: 36},
			{ID: 6, Name: "5 years", Months: 60},
		},
		payments:    make(map[int64][]*memPayment),
		settlements: make(map[paymentKey]time.Time),
	}
}

// AddFrequency registers an extra reference frequency.
func (m *MemoryRepository) AddFrequency(f core.ReferenceFrequency) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frequencies = append(m.frequencies, f)
}

func (m *MemoryRepository) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *MemoryRepository) Ping(context.Context) error { return nil }

func (m *MemoryRepository) Close() error { return nil }

func (m *MemoryRepository) ListFrequencies(context.Context) ([]core.ReferenceFrequency, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.ReferenceFrequency(nil), m.frequencies...), nil
}

func (m *MemoryRepository) ListAmortizations(context.Context) ([]core.ReferenceAmortization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.ReferenceAmortization(nil), m.amortizations...), nil
}

func (m *MemoryRepository) LatestApprovedAssessment(_ context.Context, borrowerID int64) (*core.Assessment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest *core.Assessment
	for i := range m.assessments {
		a := m.assessments[i]
		if a.BorrowerID != borrowerID {
			continue
		}
		if latest == nil || !a.ApprovedAt.Before(latest.ApprovedAt) {
			latest = &a
		}
	}
	return latest, nil
}

func (m *MemoryRepository) SaveAssessment(_ context.Context, a core.Assessment) (core.Assessment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = m.id()
	if a.ApprovedAt.IsZero() {
		a.ApprovedAt = time.Now().UTC()
	}
	m.assessments = append(m.assessments, a)
	return a, nil
}

func (m *MemoryRepository) GetBankConnection(_ context.Context, borrowerID, bankID int64) (core.BankConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.banks {
		if b.ID == bankID && b.BorrowerID == borrowerID {
			return b, nil
		}
	}
	return core.BankConnection{}, ErrNotFound
}

func (m *MemoryRepository) SaveBankConnection(_ context.Context, b core.BankConnection) (core.BankConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b.ID = m.id()
	m.banks = append(m.banks, b)
	return b, nil
}

func (m *MemoryRepository) CreateLoan(_ context.Context, loan core.Loan) (core.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	freq, ok := m.frequency(loan.Frequency.ID)
	if !ok {
		return core.Loan{}, &Error{Op: "create loan", Err: fmt.Errorf("unknown frequency %d", loan.Frequency.ID)}
	}
	amort, ok := m.amortization(loan.Amortization.ID)
	if !ok {
		return core.Loan{}, &Error{Op: "create loan", Err: fmt.Errorf("unknown amortization %d", loan.Amortization.ID)}
	}

	if loan.Reference == uuid.Nil {
		loan.Reference = uuid.New()
	}
	loan.ID = m.id()
	loan.Frequency = freq
	loan.Amortization = amort
	loan.CreatedAt = time.Now().UTC()
	m.loans = append(m.loans, loan)
	return loan, nil
}

func (m *MemoryRepository) frequency(id int64) (core.ReferenceFrequency, bool) {
	for _, f := range m.frequencies {
		if f.ID == id {
			return f, true
		}
	}
	return core.ReferenceFrequency{}, false
}

func (m *MemoryRepository) amortization(id int64) (core.ReferenceAmortization, bool) {
	for _, a := range m.amortizations {
		if a.ID == id {
			return a, true
		}
	}
	return core.ReferenceAmortization{}, false
}

func (m *MemoryRepository) GetLoan(_ context.Context, borrowerID int64, ref uuid.UUID) (core.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.loans {
		if l.BorrowerID == borrowerID && l.Reference == ref {
			return l, nil
		}
	}
	return core.Loan{}, ErrNotFound
}

func (m *MemoryRepository) GetLoanByID(_ context.Context, id int64) (core.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.loans {
		if l.ID == id {
			return l, nil
		}
	}
	return core.Loan{}, ErrNotFound
}

func (m *MemoryRepository) ListLoansForBorrower(_ context.Context, borrowerID int64) ([]core.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.Loan
	for _, l := range m.loans {
		if l.BorrowerID == borrowerID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *MemoryRepository) ListLoans(context.Context) ([]core.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.Loan(nil), m.loans...), nil
}

func (m *MemoryRepository) LoadPaymentsForLoan(_ context.Context, loanID int64) ([]core.ScheduledPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := m.payments[loanID]
	out := make([]core.ScheduledPayment, 0, len(stored))
	for _, sp := range stored {
		p := sp.payment
		if paidAt, ok := m.settlements[paymentKey{loanID, p.Seq}]; ok {
			p.PaidAt = &paidAt
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DueDate.Before(out[j].DueDate.Time)
	})
	return out, nil
}

func (m *MemoryRepository) AppendPayment(_ context.Context, p core.ScheduledPayment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n := len(m.payments[p.LoanID]); n != p.Seq {
		return fmt.Errorf("%w: loan %d has %d payments, expected %d", ErrConflict, p.LoanID, n, p.Seq)
	}
	p.PaidAt = nil
	m.payments[p.LoanID] = append(m.payments[p.LoanID], &memPayment{payment: p, createdAt: time.Now()})
	return nil
}

func (m *MemoryRepository) RecordSettlement(_ context.Context, loanID int64, seq int, paidAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if seq < 0 || seq >= len(m.payments[loanID]) {
		return ErrNotFound
	}
	key := paymentKey{loanID, seq}
	if _, ok := m.settlements[key]; !ok {
		m.settlements[key] = paidAt.UTC()
	}
	return nil
}

func (m *MemoryRepository) PendingExports(_ context.Context, limit int) ([]PendingExport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []PendingExport
	for loanID, stored := range m.payments {
		for _, sp := range stored {
			if sp.exported || sp.exportErrors >= maxExportErrors {
				continue
			}
			out = append(out, PendingExport{LoanID: loanID, Seq: sp.payment.Seq, CreatedAt: sp.createdAt})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		if out[i].LoanID != out[j].LoanID {
			return out[i].LoanID < out[j].LoanID
		}
		return out[i].Seq < out[j].Seq
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryRepository) stored(loanID int64, seq int) (*memPayment, error) {
	stored := m.payments[loanID]
	if seq < 0 || seq >= len(stored) {
		return nil, ErrNotFound
	}
	return stored[seq], nil
}

func (m *MemoryRepository) MarkExported(_ context.Context, loanID int64, seq int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sp, err := m.stored(loanID, seq)
	if err != nil {
		return err
	}
	sp.exported = true
	return nil
}

func (m *MemoryRepository) MarkExportError(_ context.Context, loanID int64, seq int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sp, err := m.stored(loanID, seq)
	if err != nil {
		return err
	}
	sp.exportErrors++
	return nil
}
