package memory

import (
	"context"
	"fmt"
	"sync"

	"peerlend/internal/sheets"
)

// Store is an in-process ledger used when no spreadsheet is configured.
type Store struct {
	mu   sync.Mutex
	rows []sheets.LedgerRow
}

var _ sheets.Ledger = (*Store)(nil)

func New() *Store {
	return &Store{}
}

// AppendPayment stores the row and returns a synthetic row reference.
func (s *Store) AppendPayment(_ context.Context, row sheets.LedgerRow) (string, error) {
	if row.LoanRef == "" {
		return "", fmt.Errorf("ledger row without loan reference")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, row)
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

func (s *Store) ListPayments(_ context.Context, loanRef string) ([]sheets.LedgerRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sheets.LedgerRow
	for _, r := range s.rows {
		if r.LoanRef == loanRef {
			out = append(out, r)
		}
	}
	return out, nil
}

// Len returns the number of stored rows.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}
