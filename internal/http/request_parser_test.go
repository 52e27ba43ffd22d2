package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peerlend/internal/core"
)

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"valid", `{"principal":"10","bank":1}`, ""},
		{"empty", ``, "empty"},
		{"malformed", `{"principal":`, "malformed JSON"},
		{"unknown field", `{"principal":"10","surprise":true}`, "malformed JSON"},
		{"trailing object", `{"principal":"10"}{"principal":"20"}`, "single JSON object"},
		{"too large", `{"start_date":"` + strings.Repeat("x", maxBodyBytes) + `"}`, "exceeds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dst createLoanBody
			err := decodeJSON(httptest.NewRecorder(), req, &dst)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCreateLoanBody_ToRequest(t *testing.T) {
	tests := []struct {
		name           string
		principal      json.Number
		startDate      string
		wantCents      int64
		wantStart      string
		wantValidation bool
	}{
		{name: "integer", principal: "1200", wantCents: 120000},
		{name: "decimal", principal: "99.99", wantCents: 9999},
		{name: "with start date", principal: "100", startDate: "2024-03-31", wantCents: 10000, wantStart: "2024-03-31"},
		{name: "missing principal", principal: "", wantValidation: true},
		{name: "zero", principal: "0", wantValidation: true},
		{name: "exponent", principal: "1e3", wantValidation: true},
		{name: "bad date", principal: "100", startDate: "31/03/2024", wantValidation: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := createLoanBody{Principal: tt.principal, Bank: 1, Amortization: 2, Frequency: 4, StartDate: tt.startDate}
			req, err := body.toRequest(7)
			if tt.wantValidation {
				require.ErrorIs(t, err, core.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, int64(7), req.BorrowerID)
			assert.Equal(t, tt.wantCents, req.Principal.Cents)
			assert.Equal(t, int64(1), req.BankConnectionID)
			if tt.wantStart == "" {
				assert.True(t, req.StartDate.IsZero())
			} else {
				assert.Equal(t, tt.wantStart, req.StartDate.String())
			}
		})
	}
}

func TestPrincipalAcceptsNumberOrString(t *testing.T) {
	for _, raw := range []string{`{"principal":1200.5}`, `{"principal":"1200.5"}`} {
		var body createLoanBody
		require.NoError(t, json.Unmarshal([]byte(raw), &body), raw)
		req, err := body.toRequest(1)
		require.NoError(t, err, raw)
		assert.Equal(t, int64(120050), req.Principal.Cents, raw)
	}
}

func TestParseSettlement(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	paidAt, err := parseSettlement(httptest.NewRecorder(), req, now)
	require.NoError(t, err)
	assert.Equal(t, now, paidAt)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	paidAt, err = parseSettlement(httptest.NewRecorder(), req, now)
	require.NoError(t, err)
	assert.Equal(t, now, paidAt)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"paid_at":"2024-04-30T23:00:00+02:00"}`))
	paidAt, err = parseSettlement(httptest.NewRecorder(), req, now)
	require.NoError(t, err)
	assert.True(t, paidAt.Equal(time.Date(2024, 4, 30, 21, 0, 0, 0, time.UTC)))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"paid_at":"soon"}`))
	_, err = parseSettlement(httptest.NewRecorder(), req, now)
	require.Error(t, err)
}
