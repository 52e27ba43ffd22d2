package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peerlend/internal/core"
	"peerlend/internal/storage"
)

func TestJSONResponseBuilder(t *testing.T) {
	rr := httptest.NewRecorder()
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/borrowers/1/loans/abc").
		Body(map[string]string{"reference": "abc"}).
		Write(rr)

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, "/borrowers/1/loans/abc", rr.Header().Get("Location"))
	assert.JSONEq(t, `{"reference":"abc"}`, rr.Body.String())
}

func TestJSONResponseBuilder_NoBody(t *testing.T) {
	rr := httptest.NewRecorder()
	NewJSONResponse().Status(http.StatusNoContent).Write(rr)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, rr.Body.String())
	assert.Empty(t, rr.Header().Get("Content-Type"))
}

func TestJSONResponseBuilder_EncodeFailure(t *testing.T) {
	rr := httptest.NewRecorder()
	NewJSONResponse().Body(map[string]any{"bad": make(chan int)}).Write(rr)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), CodeInternal)
}

func TestDomainError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", &core.ValidationError{Field: "principal", Reason: "must be positive"}, http.StatusUnprocessableEntity, CodeValidation},
		{"out of range", core.ErrOutOfRange, http.StatusUnprocessableEntity, CodeOutOfRange},
		{"unsupported frequency", fmt.Errorf("frequency 9: %w", core.ErrUnsupportedFrequency), http.StatusUnprocessableEntity, CodeUnsupportedFrequency},
		{"no assessment", core.ErrNoApprovedAssessment, http.StatusForbidden, CodeNoAssessment},
		{"capacity", fmt.Errorf("%w: requested 10.00", core.ErrCapacityExceeded), http.StatusForbidden, CodeCapacityExceeded},
		{"not found", fmt.Errorf("get loan: %w", storage.ErrNotFound), http.StatusNotFound, CodeNotFound},
		{"conflict", storage.ErrConflict, http.StatusConflict, CodeConflict},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError, CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			DomainError(tt.err).Write(rr)

			assert.Equal(t, tt.wantStatus, rr.Code)
			var body errorBody
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body.Error.Code)
			assert.NotContains(t, body.Error.Message, "disk on fire")
		})
	}
}
