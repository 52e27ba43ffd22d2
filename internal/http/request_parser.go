package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"peerlend/internal/core"
	"peerlend/internal/services"
)

// maxBodyBytes caps request bodies; loan requests are a handful of fields.
const maxBodyBytes = 64 << 10

// errEmptyBody is returned by decodeJSON for a request without a body.
var errEmptyBody = errors.New("request body is empty")

// decodeJSON decodes a single JSON object from the request body into dst.
// Unknown fields and trailing data are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return errEmptyBody
		case errors.As(err, &maxErr):
			return fmt.Errorf("request body exceeds %d bytes", maxErr.Limit)
		default:
			return fmt.Errorf("malformed JSON: %w", err)
		}
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

// pathBorrowerID parses the {borrower} path segment.
func pathBorrowerID(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(r.PathValue("borrower"))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid borrower id %q", raw)
	}
	return id, nil
}

// pathLoanRef parses the {ref} path segment.
func pathLoanRef(r *http.Request) (uuid.UUID, error) {
	raw := r.PathValue("ref")
	ref, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid loan reference %q", raw)
	}
	return ref, nil
}

// pathPaymentSeq parses the {seq} path segment.
func pathPaymentSeq(r *http.Request) (int, error) {
	raw := r.PathValue("seq")
	seq, err := strconv.Atoi(raw)
	if err != nil || seq < 0 {
		return 0, fmt.Errorf("invalid payment sequence %q", raw)
	}
	return seq, nil
}

// createLoanBody is the body of a loan application. Principal accepts a
// JSON number or a decimal string.
type createLoanBody struct {
	Principal    json.Number `json:"principal"`
	Bank         int64       `json:"bank"`
	Amortization int64       `json:"amortization"`
	Frequency    int64       `json:"frequency"`
	StartDate    string      `json:"start_date,omitempty"`
}

// toRequest validates the body fields that do not need storage.
func (b createLoanBody) toRequest(borrowerID int64) (services.CreateLoanRequest, error) {
	principal, err := core.ParseMoney(b.Principal.String())
	if err != nil {
		if errors.Is(err, core.ErrOutOfRange) {
			return services.CreateLoanRequest{}, err
		}
		return services.CreateLoanRequest{}, &core.ValidationError{Field: "principal", Reason: "must be a positive amount with at most two decimals"}
	}

	req := services.CreateLoanRequest{
		BorrowerID:       borrowerID,
		BankConnectionID: b.Bank,
		Principal:        principal,
		AmortizationID:   b.Amortization,
		FrequencyID:      b.Frequency,
	}
	if s := strings.TrimSpace(b.StartDate); s != "" {
		start, err := core.ParseDate(s)
		if err != nil {
			return services.CreateLoanRequest{}, &core.ValidationError{Field: "start_date", Reason: "must be formatted as YYYY-MM-DD"}
		}
		req.StartDate = start
	}
	return req, nil
}

// settlementBody is the optional body of a settlement. PaidAt defaults to now.
type settlementBody struct {
	PaidAt *time.Time `json:"paid_at,omitempty"`
}

// parseSettlement decodes an optional settlement body.
func parseSettlement(w http.ResponseWriter, r *http.Request, now time.Time) (time.Time, error) {
	var body settlementBody
	if err := decodeJSON(w, r, &body); err != nil {
		if errors.Is(err, errEmptyBody) {
			return now, nil
		}
		return time.Time{}, err
	}
	if body.PaidAt == nil {
		return now, nil
	}
	return body.PaidAt.UTC(), nil
}
