package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	ports "peerlend/internal/sheets"
)

const defaultRowCacheTTL = 2 * time.Minute

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	ledgerSheet   string

	// Row count cache so consecutive appends skip the A:A read.
	mu                 sync.Mutex
	cachedRowCount     int
	cacheExpiresAt     time.Time
	cacheValidDuration time.Duration
	countRows          func(ctx context.Context) (int, error)
}

var _ ports.Ledger = (*Client)(nil)

// Options selects the spreadsheet and credentials of a ledger client.
type Options struct {
	SpreadsheetID string
	// SheetName is the ledger tab base name, prefixed with the current year.
	SheetName          string
	ServiceAccountFile string
	ServiceAccountJSON string
}

// NewFromEnv creates a Sheets client using environment variables.
// Required: GOOGLE_SPREADSHEET_ID and service account credentials from
// GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_APPLICATION_CREDENTIALS.
// Optional: GOOGLE_LEDGER_SHEET_NAME (default "Payments").
func NewFromEnv(ctx context.Context) (*Client, error) {
	opts := Options{
		SpreadsheetID:      strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID")),
		SheetName:          strings.TrimSpace(os.Getenv("GOOGLE_LEDGER_SHEET_NAME")),
		ServiceAccountJSON: strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")),
		ServiceAccountFile: strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE")),
	}
	if opts.ServiceAccountJSON == "" && opts.ServiceAccountFile == "" {
		opts.ServiceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	return NewWithOptions(ctx, opts)
}

// NewWithOptions creates a Sheets client for the given spreadsheet.
func NewWithOptions(ctx context.Context, opts Options) (*Client, error) {
	if opts.SpreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	ledgerBase := opts.SheetName
	if ledgerBase == "" {
		ledgerBase = "Payments"
	}

	credentialsJSON, err := loadCredentials(opts)
	if err != nil {
		return nil, err
	}
	svc, err := newSheetsService(ctx, credentialsJSON)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return New(svc, opts.SpreadsheetID, yearPrefixedName(ledgerBase, time.Now().Year())), nil
}

// New wraps an existing Sheets service.
func New(svc *gsheet.Service, spreadsheetID, ledgerSheet string) *Client {
	c := &Client{
		svc:                svc,
		spreadsheetID:      spreadsheetID,
		ledgerSheet:        ledgerSheet,
		cacheValidDuration: defaultRowCacheTTL,
	}
	c.countRows = c.fetchRowCount
	return c
}

func loadCredentials(opts Options) ([]byte, error) {
	switch {
	case opts.ServiceAccountJSON != "":
		return []byte(opts.ServiceAccountJSON), nil
	case opts.ServiceAccountFile != "":
		b, err := os.ReadFile(opts.ServiceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
func newSheetsService(ctx context.Context, credentialsJSON []byte) (*gsheet.Service, error) {
	slog.InfoContext(ctx, "Creating Google Sheets service with Service Account",
		"credentials_size", len(credentialsJSON),
		"scope", gsheet.SpreadsheetsScope)

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func (c *Client) fetchRowCount(ctx context.Context) (int, error) {
	if c.svc == nil {
		return 0, errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A:A", c.ledgerSheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("failed to get sheet dimensions for %s: %w", c.ledgerSheet, err)
	}
	return len(resp.Values), nil
}

// nextRow returns the first empty row and reserves it in the cache.
func (c *Client) nextRow(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if time.Now().After(c.cacheExpiresAt) {
		n, err := c.countRows(ctx)
		if err != nil {
			return 0, err
		}
		c.cachedRowCount = n
		c.cacheExpiresAt = time.Now().Add(c.cacheValidDuration)
	}
	c.cachedRowCount++
	return c.cachedRowCount, nil
}

// InvalidateRowCache forces the next append to re-read the sheet size.
func (c *Client) InvalidateRowCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cacheExpiresAt = time.Time{}
}

// AppendPayment writes one ledger row: loan reference, borrower, sequence,
// due date, amount, interest and principal.
func (c *Client) AppendPayment(ctx context.Context, row ports.LedgerRow) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	n, err := c.nextRow(ctx)
	if err != nil {
		return "", err
	}

	rng := fmt.Sprintf("%s!A%d:G%d", c.ledgerSheet, n, n)
	vr := &gsheet.ValueRange{Values: [][]any{{
		row.LoanRef,
		row.BorrowerID,
		row.Seq,
		row.DueDate.String(),
		row.Amount.Float(),
		row.Interest.Float(),
		row.Principal.Float(),
	}}}

	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		c.InvalidateRowCache()
		return "", fmt.Errorf("failed to update %s: %w", rng, err)
	}
	return rng, nil
}

// ListPayments scans the ledger sheet for rows of one loan.
func (c *Client) ListPayments(ctx context.Context, loanRef string) ([]ports.LedgerRow, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A:G", c.ledgerSheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}

	var out []ports.LedgerRow
	for _, row := range parseLedger(resp.Values) {
		if row.LoanRef == loanRef {
			out = append(out, row)
		}
	}
	return out, nil
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
