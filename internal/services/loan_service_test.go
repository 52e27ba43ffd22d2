package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peerlend/internal/core"
	"peerlend/internal/storage"
)

type recordingPublisher struct {
	mu    sync.Mutex
	calls [][2]int64
	err   error
}

func (p *recordingPublisher) PublishPaymentScheduled(_ context.Context, loanID int64, seq int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, [2]int64{loanID, int64(seq)})
	return p.err
}

type fixture struct {
	repo      *storage.MemoryRepository
	publisher *recordingPublisher
	service   *LoanService
	bankID    int64
}

const borrower = int64(7)

// newFixture sets up a borrower with a bank connection and, when capacity is
// positive, an approved assessment at 12%.
func newFixture(t *testing.T, capacityCents int64) *fixture {
	t.Helper()
	ctx := context.Background()
	repo := storage.NewMemoryRepository()

	bank, err := repo.SaveBankConnection(ctx, core.BankConnection{BorrowerID: borrower, Institution: "Bank"})
	require.NoError(t, err)
	if capacityCents > 0 {
		_, err = repo.SaveAssessment(ctx, core.Assessment{
			BorrowerID:       borrower,
			ApprovedCapacity: core.NewMoney(capacityCents),
			Rate:             decimal.RequireFromString("0.12"),
			RatingID:         3,
		})
		require.NoError(t, err)
	}

	pub := &recordingPublisher{}
	svc := NewLoanService(repo, NewCatalog(repo, time.Hour), pub, DefaultMinimumLoan)
	svc.now = func() time.Time { return time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC) }

	return &fixture{repo: repo, publisher: pub, service: svc, bankID: bank.ID}
}

func (f *fixture) request(principalCents int64) CreateLoanRequest {
	return CreateLoanRequest{
		BorrowerID:       borrower,
		BankConnectionID: f.bankID,
		Principal:        core.NewMoney(principalCents),
		AmortizationID:   2,
		FrequencyID:      4,
	}
}

func TestLoanService_CreateLoan(t *testing.T) {
	f := newFixture(t, 500000)
	ctx := context.Background()

	summary, err := f.service.CreateLoan(ctx, f.request(120000))
	require.NoError(t, err)

	loan := summary.Loan
	assert.NotEqual(t, uuid.Nil, loan.Reference)
	assert.Equal(t, "2024-01-01", loan.StartDate.String())
	assert.True(t, loan.Rate.Equal(decimal.RequireFromString("0.12")))
	assert.Equal(t, int64(3), loan.RatingID)

	require.Len(t, summary.Unpaid, 1)
	assert.Empty(t, summary.Paid)
	assert.Equal(t, int64(120000), summary.OutstandingBalance.Cents)
	require.NotNil(t, summary.NextPayment)
	assert.Equal(t, int64(10665), summary.NextPayment.Amount.Cents)
	assert.Equal(t, int64(1223), summary.NextPayment.Interest.Cents)
	assert.Equal(t, "2024-02-01", summary.NextPayment.DueDate.String())

	stored, err := f.repo.LoadPaymentsForLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
	assert.Equal(t, [][2]int64{{loan.ID, 0}}, f.publisher.calls)
}

func TestLoanService_CreateLoanRejections(t *testing.T) {
	tests := []struct {
		name     string
		capacity int64
		mutate   func(*CreateLoanRequest)
		wantErr  error
	}{
		{
			name:     "no approved assessment",
			capacity: 0,
			wantErr:  core.ErrNoApprovedAssessment,
		},
		{
			name:     "over capacity",
			capacity: 100000,
			wantErr:  core.ErrCapacityExceeded,
		},
		{
			name:     "below minimum",
			capacity: 500000,
			mutate:   func(r *CreateLoanRequest) { r.Principal = core.NewMoney(5000) },
			wantErr:  core.ErrValidation,
		},
		{
			name:     "unknown bank connection",
			capacity: 500000,
			mutate:   func(r *CreateLoanRequest) { r.BankConnectionID = 999 },
			wantErr:  core.ErrValidation,
		},
		{
			name:     "unknown frequency",
			capacity: 500000,
			mutate:   func(r *CreateLoanRequest) { r.FrequencyID = 99 },
			wantErr:  core.ErrValidation,
		},
		{
			name:     "unknown amortization",
			capacity: 500000,
			mutate:   func(r *CreateLoanRequest) { r.AmortizationID = 99 },
			wantErr:  core.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.capacity)
			req := f.request(120000)
			if tt.mutate != nil {
				tt.mutate(&req)
			}

			_, err := f.service.CreateLoan(context.Background(), req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)

			loans, err := f.repo.ListLoans(context.Background())
			require.NoError(t, err)
			assert.Empty(t, loans, "rejected requests store nothing")
			assert.Empty(t, f.publisher.calls)
		})
	}
}

func TestLoanService_NoAssessmentIsCapacityError(t *testing.T) {
	f := newFixture(t, 0)
	_, err := f.service.CreateLoan(context.Background(), f.request(120000))
	assert.ErrorIs(t, err, core.ErrCapacityExceeded)
}

func TestLoanService_UnsupportedFrequency(t *testing.T) {
	f := newFixture(t, 500000)
	f.repo.AddFrequency(core.ReferenceFrequency{ID: 9, Name: "Thrice monthly", PerMonth: 3})
	req := f.request(120000)
	req.FrequencyID = 9

	_, err := f.service.CreateLoan(context.Background(), req)
	assert.ErrorIs(t, err, core.ErrUnsupportedFrequency)
}

func TestLoanService_CapacityAccountsForExistingLoans(t *testing.T) {
	f := newFixture(t, 200000)
	ctx := context.Background()

	_, err := f.service.CreateLoan(ctx, f.request(120000))
	require.NoError(t, err)

	_, err = f.service.CreateLoan(ctx, f.request(90000))
	assert.ErrorIs(t, err, core.ErrCapacityExceeded)

	_, err = f.service.CreateLoan(ctx, f.request(80000))
	assert.NoError(t, err, "exactly the remaining capacity is allowed")

	avail, err := f.service.Available(ctx, borrower)
	require.NoError(t, err)
	assert.True(t, avail.Remaining.IsZero())
}

func TestLoanService_PublishFailureDoesNotFailCreate(t *testing.T) {
	f := newFixture(t, 500000)
	f.publisher.err = errors.New("circuit breaker is open")

	summary, err := f.service.CreateLoan(context.Background(), f.request(120000))
	require.NoError(t, err)
	assert.Len(t, summary.Unpaid, 1)
}

type failingAppendRepo struct {
	*storage.MemoryRepository
}

func (failingAppendRepo) AppendPayment(context.Context, core.ScheduledPayment) error {
	return errors.New("database is locked")
}

func TestLoanService_FirstPaymentFailureKeepsLoan(t *testing.T) {
	f := newFixture(t, 500000)
	ctx := context.Background()
	svc := NewLoanService(failingAppendRepo{f.repo}, NewCatalog(f.repo, time.Hour), f.publisher, DefaultMinimumLoan)
	svc.now = f.service.now

	summary, err := svc.CreateLoan(ctx, f.request(120000))
	require.NoError(t, err)
	assert.NotZero(t, summary.Loan.ID)
	assert.Nil(t, summary.NextPayment)
	assert.Empty(t, summary.Unpaid)
	assert.Equal(t, int64(120000), summary.OutstandingBalance.Cents)
	assert.Empty(t, f.publisher.calls)

	loans, err := f.repo.ListLoansForBorrower(ctx, borrower)
	require.NoError(t, err)
	require.Len(t, loans, 1)

	// Billing schedules the missing first payment
	first, err := f.service.GenerateNextPayment(ctx, loans[0], nil, TriggerBilling)
	require.NoError(t, err)
	assert.Equal(t, 0, first.Seq)
	assert.Equal(t, int64(10665), first.Amount.Cents)
}

func TestLoanService_NilPublisher(t *testing.T) {
	f := newFixture(t, 500000)
	f.service.publisher = nil

	_, err := f.service.CreateLoan(context.Background(), f.request(120000))
	assert.NoError(t, err)
}

func TestLoanService_GetLoanAndSettlement(t *testing.T) {
	f := newFixture(t, 500000)
	ctx := context.Background()

	created, err := f.service.CreateLoan(ctx, f.request(120000))
	require.NoError(t, err)
	ref := created.Loan.Reference

	_, err = f.service.GetLoan(ctx, borrower+1, ref)
	assert.ErrorIs(t, err, storage.ErrNotFound, "other borrowers cannot see the loan")

	paidAt := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, f.service.RecordSettlement(ctx, borrower, ref, 0, paidAt))

	summary, err := f.service.GetLoan(ctx, borrower, ref)
	require.NoError(t, err)
	require.Len(t, summary.Paid, 1)
	assert.Empty(t, summary.Unpaid)
	assert.Nil(t, summary.NextPayment)
	assert.Equal(t, int64(10665-1223), summary.PrincipalPaid.Cents)
	assert.Equal(t, int64(120000-(10665-1223)), summary.OutstandingBalance.Cents)

	err = f.service.RecordSettlement(ctx, borrower, ref, 5, paidAt)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLoanService_ListLoans(t *testing.T) {
	f := newFixture(t, 1000000)
	ctx := context.Background()

	empty, err := f.service.ListLoans(ctx, borrower)
	require.NoError(t, err)
	assert.Empty(t, empty)

	first, err := f.service.CreateLoan(ctx, f.request(120000))
	require.NoError(t, err)
	second, err := f.service.CreateLoan(ctx, f.request(300000))
	require.NoError(t, err)

	summaries, err := f.service.ListLoans(ctx, borrower)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, first.Loan.ID, summaries[0].Loan.ID)
	assert.Equal(t, second.Loan.ID, summaries[1].Loan.ID)
	assert.NotNil(t, summaries[1].NextPayment)
}

func TestLoanService_Available(t *testing.T) {
	f := newFixture(t, 500000)
	ctx := context.Background()

	_, err := f.service.CreateLoan(ctx, f.request(120000))
	require.NoError(t, err)

	avail, err := f.service.Available(ctx, borrower)
	require.NoError(t, err)
	require.NotNil(t, avail.Assessment)
	assert.Equal(t, int64(380000), avail.Remaining.Cents)
	assert.Equal(t, DefaultMinimumLoan, avail.Minimum)
	assert.Len(t, avail.Frequencies, 4)
	assert.Len(t, avail.Amortizations, 6)

	none, err := newFixture(t, 0).service.Available(ctx, borrower)
	require.NoError(t, err)
	assert.Nil(t, none.Assessment)
	assert.True(t, none.Remaining.IsZero())
}

func TestLoanService_GenerateNextPaymentConflict(t *testing.T) {
	f := newFixture(t, 500000)
	ctx := context.Background()

	created, err := f.service.CreateLoan(ctx, f.request(120000))
	require.NoError(t, err)

	// A stale, empty history collides with the stored first payment
	_, err = f.service.GenerateNextPayment(ctx, created.Loan, nil, TriggerBilling)
	assert.ErrorIs(t, err, storage.ErrConflict)

	history, err := f.repo.LoadPaymentsForLoan(ctx, created.Loan.ID)
	require.NoError(t, err)
	next, err := f.service.GenerateNextPayment(ctx, created.Loan, history, TriggerBilling)
	require.NoError(t, err)
	assert.Equal(t, 1, next.Seq)
	assert.Equal(t, "2024-03-01", next.DueDate.String())
}
