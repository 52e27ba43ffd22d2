package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peerlend/internal/config"
	"peerlend/internal/sheets/memory"
)

func TestFromAppConfig(t *testing.T) {
	_, err := FromAppConfig(nil)
	assert.Error(t, err)

	_, err = FromAppConfig(&config.Config{DataBackend: "sheets"})
	assert.Error(t, err)

	cfg, err := FromAppConfig(&config.Config{
		DataBackend:           "sqlite",
		SQLiteDBPath:          "./data/test.db",
		SeedFile:              "seed.csv",
		GoogleSpreadsheetID:   "abc",
		GoogleLedgerSheetName: "Payments",
	})
	require.NoError(t, err)
	assert.Equal(t, SQLiteBackend, cfg.Type)
	assert.Equal(t, "./data/test.db", cfg.SQLiteDBPath)
	assert.Equal(t, "seed.csv", cfg.SeedFile)
	assert.Equal(t, "abc", cfg.GoogleSpreadsheetID)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, Config{Type: MemoryBackend}.Validate())
	assert.NoError(t, Config{Type: SQLiteBackend, SQLiteDBPath: "x.db"}.Validate())
	assert.Error(t, Config{Type: SQLiteBackend}.Validate())
	assert.Error(t, Config{Type: "postgres"}.Validate())
	assert.Equal(t, []string{"sqlite", "memory"}, GetBackendTypeStrings())
}

func TestCreateBackend_MemoryWithSeed(t *testing.T) {
	seed := filepath.Join(t.TempDir(), "seed.csv")
	require.NoError(t, os.WriteFile(seed, []byte("assessment,1,5000.00,0.12,2\nbank,1,First Bank\n"), 0644))

	f := NewFactory(nil)
	result, err := f.CreateBackend(context.Background(), Config{Type: MemoryBackend, SeedFile: seed})
	require.NoError(t, err)
	defer result.Cleanup()

	assert.Nil(t, result.Publisher)
	a, err := result.Repository.LatestApprovedAssessment(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, int64(500000), a.ApprovedCapacity.Cents)
}

func TestCreateBackend_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peerlend.db")

	result, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: SQLiteBackend, SQLiteDBPath: path})
	require.NoError(t, err)

	require.NoError(t, result.Repository.Ping(context.Background()))
	freqs, err := result.Repository.ListFrequencies(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, freqs)
	assert.NoError(t, result.Cleanup())
}

func TestCreateBackend_BadSeed(t *testing.T) {
	seed := filepath.Join(t.TempDir(), "seed.csv")
	require.NoError(t, os.WriteFile(seed, []byte("loan,1\n"), 0644))

	_, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: MemoryBackend, SeedFile: seed})
	assert.Error(t, err)
}

func TestCreateLedger_DefaultsToMemory(t *testing.T) {
	ledger, err := NewFactory(nil).CreateLedger(context.Background(), Config{Type: MemoryBackend})
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, ledger)
}

func TestCreateLedger_MissingCredentials(t *testing.T) {
	_, err := NewFactory(nil).CreateLedger(context.Background(), Config{
		Type:                MemoryBackend,
		GoogleSpreadsheetID: "abc",
	})
	assert.Error(t, err)
}
