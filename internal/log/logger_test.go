package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogger_JSONCarriesComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Format: "json", Component: ComponentBilling, Output: &buf})

	logger.Info("Billing cycle complete", "generated", 3)

	entry := decode(t, &buf)
	assert.Equal(t, "Billing cycle complete", entry["msg"])
	assert.Equal(t, ComponentBilling, entry[FieldComponent])
	assert.EqualValues(t, 3, entry["generated"])
}

func TestLogger_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelWarn, Format: "json", Output: &buf})

	logger.Info("dropped")
	assert.Zero(t, buf.Len())

	logger.Warn("kept")
	assert.NotZero(t, buf.Len())
}

func TestFromContext(t *testing.T) {
	fallback := FromContext(context.Background())
	assert.Equal(t, "unknown", fallback.Component())

	logger := New(DefaultConfig()).WithComponent(ComponentHTTP)
	ctx := WithLogger(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))
}

func TestRequestIDMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Format: "json", Component: ComponentHTTP, Output: &buf})

	handler := Middleware(logger)(RequestIDMiddleware(func(*http.Request) string { return "req-1" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			FromContext(r.Context()).Info("handled")
		})))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	entry := decode(t, &buf)
	assert.Equal(t, "req-1", entry[FieldRequestID])
}

func TestStructuredLogger(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Format: "json", Component: ComponentLoans, Output: &buf}))

	r := httptest.NewRequest(http.MethodPost, "/borrowers/1/loans", nil)
	sl.LogHTTPEnd(context.Background(), r, http.StatusConflict, 12, "10.0.0.1")
	entry := decode(t, &buf)
	assert.Equal(t, "WARN", entry["level"])
	assert.EqualValues(t, http.StatusConflict, entry[FieldStatusCode])
	assert.Equal(t, false, entry[FieldSuccess])

	buf.Reset()
	sl.LogError(context.Background(), "Failed to bill loan", errors.New("boom"), ErrorTypeInternal, OpSchedule,
		NewFields().WithLoan(4, "", 7))
	entry = decode(t, &buf)
	assert.Equal(t, "boom", entry[FieldError])
	assert.Equal(t, ComponentLoans, entry[FieldComponent])
	assert.EqualValues(t, 4, entry[FieldLoanID])
	assert.NotContains(t, entry, FieldLoanRef)
}
