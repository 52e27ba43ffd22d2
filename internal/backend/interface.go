package backend

import (
	"context"

	"peerlend/internal/amqp"
	"peerlend/internal/sheets"
	"peerlend/internal/storage"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the repository and the optional collaborators built
// around it.
type BackendResult struct {
	Repository storage.Repository
	// Publisher is nil when AMQP is not configured or unreachable.
	Publisher *amqp.Client
	Cleanup   CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
	CreateLedger(ctx context.Context, config Config) (sheets.Ledger, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Optional onboarding seed, loaded into either backend
	SeedFile string

	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Servicing ledger. Empty spreadsheet ID selects the in-memory ledger.
	GoogleSpreadsheetID      string
	GoogleLedgerSheetName    string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
