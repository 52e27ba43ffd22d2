package backend

import (
	"context"
	"fmt"
	"log/slog"

	"peerlend/internal/amqp"
	"peerlend/internal/sheets"
	gsheet "peerlend/internal/sheets/google"
	"peerlend/internal/sheets/memory"
	"peerlend/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		repo    storage.Repository
		cleanup []CleanupFunc
	)
	switch config.Type {
	case SQLiteBackend:
		sqliteRepo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		repo = sqliteRepo
		cleanup = append(cleanup, sqliteRepo.Close)
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	case MemoryBackend:
		repo = storage.NewMemoryRepository()
		f.logger.Info("Initialized memory backend")
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	if config.SeedFile != "" {
		n, err := storage.LoadSeedFile(ctx, repo, config.SeedFile)
		if err != nil {
			closeAll(cleanup)
			return nil, fmt.Errorf("load seed file: %w", err)
		}
		f.logger.Info("Loaded onboarding seed", "path", config.SeedFile, "records", n)
	}

	var publisher *amqp.Client
	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			// Payments stay in the export queue; the ledger worker backfills them
			f.logger.Warn("Failed to initialize AMQP client, continuing without publishing", "error", err)
		} else {
			publisher = client
			cleanup = append(cleanup, client.Close)
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	return &BackendResult{
		Repository: repo,
		Publisher:  publisher,
		Cleanup:    func() error { return closeAll(cleanup) },
	}, nil
}

// CreateLedger returns the Google Sheets ledger when a spreadsheet is
// configured, otherwise an in-memory ledger.
func (f *DefaultFactory) CreateLedger(ctx context.Context, config Config) (sheets.Ledger, error) {
	if config.GoogleSpreadsheetID == "" {
		f.logger.Warn("No spreadsheet configured, exporting payments to an in-memory ledger")
		return memory.New(), nil
	}

	cli, err := gsheet.NewWithOptions(ctx, gsheet.Options{
		SpreadsheetID:      config.GoogleSpreadsheetID,
		SheetName:          config.GoogleLedgerSheetName,
		ServiceAccountFile: config.GoogleServiceAccountFile,
		ServiceAccountJSON: config.GoogleServiceAccountJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}
	f.logger.Info("Initialized Google Sheets ledger", "spreadsheet_id", config.GoogleSpreadsheetID)
	return cli, nil
}

// closeAll runs cleanups in reverse order and returns the first error.
func closeAll(cleanup []CleanupFunc) error {
	var first error
	for i := len(cleanup) - 1; i >= 0; i-- {
		if err := cleanup[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}
