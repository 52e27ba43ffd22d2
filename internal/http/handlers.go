package http

import (
	"context"
	"net/http"
	"time"

	"peerlend/internal/log"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]any{
		"status":    "ok",
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady checks that storage answers
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]any{
		"rate_limiter": map[string]any{"active_clients": s.rateLimiter.ActiveClients()},
	}
	status, code := "ready", http.StatusOK
	if s.db == nil {
		checks["storage"] = "not_configured"
		status, code = "not_ready", http.StatusServiceUnavailable
	} else if err := s.db.Ping(ctx); err != nil {
		checks["storage"] = "failed: " + err.Error()
		status, code = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["storage"] = "ok"
	}

	NewJSONResponse().Status(code).Body(map[string]any{
		"status":    status,
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

func (s *Server) handleListFrequencies(w http.ResponseWriter, r *http.Request) {
	rows, err := s.reference.Frequencies(r.Context())
	if err != nil {
		s.fail(w, r, err, log.OpList)
		return
	}
	NewJSONResponse().Body(newFrequencyViews(rows)).Write(w)
}

func (s *Server) handleListAmortizations(w http.ResponseWriter, r *http.Request) {
	rows, err := s.reference.Amortizations(r.Context())
	if err != nil {
		s.fail(w, r, err, log.OpList)
		return
	}
	NewJSONResponse().Body(newAmortizationViews(rows)).Write(w)
}

func (s *Server) handleAvailable(w http.ResponseWriter, r *http.Request) {
	borrowerID, err := pathBorrowerID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	available, err := s.loans.Available(r.Context(), borrowerID)
	if err != nil {
		s.fail(w, r, err, log.OpRead)
		return
	}
	NewJSONResponse().Body(newAvailableView(available)).Write(w)
}

func (s *Server) handleCreateLoan(w http.ResponseWriter, r *http.Request) {
	borrowerID, err := pathBorrowerID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	var body createLoanBody
	if err := decodeJSON(w, r, &body); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	req, err := body.toRequest(borrowerID)
	if err != nil {
		s.fail(w, r, err, log.OpCreate)
		return
	}

	summary, err := s.loans.CreateLoan(r.Context(), req)
	if err != nil {
		s.fail(w, r, err, log.OpCreate)
		return
	}

	view := newLoanView(summary)
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", r.URL.Path+"/"+view.Reference).
		Body(view).
		Write(w)
}

func (s *Server) handleListLoans(w http.ResponseWriter, r *http.Request) {
	borrowerID, err := pathBorrowerID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	summaries, err := s.loans.ListLoans(r.Context(), borrowerID)
	if err != nil {
		s.fail(w, r, err, log.OpList)
		return
	}
	NewJSONResponse().Body(newLoanViews(summaries)).Write(w)
}

func (s *Server) handleGetLoan(w http.ResponseWriter, r *http.Request) {
	borrowerID, err := pathBorrowerID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	ref, err := pathLoanRef(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	summary, err := s.loans.GetLoan(r.Context(), borrowerID, ref)
	if err != nil {
		s.fail(w, r, err, log.OpRead)
		return
	}
	NewJSONResponse().Body(newLoanView(summary)).Write(w)
}

func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	borrowerID, err := pathBorrowerID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	ref, err := pathLoanRef(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	seq, err := pathPaymentSeq(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	paidAt, err := parseSettlement(w, r, s.now().UTC())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	if err := s.loans.RecordSettlement(r.Context(), borrowerID, ref, seq, paidAt); err != nil {
		s.fail(w, r, err, log.OpSettle)
		return
	}
	summary, err := s.loans.GetLoan(r.Context(), borrowerID, ref)
	if err != nil {
		s.fail(w, r, err, log.OpRead)
		return
	}
	NewJSONResponse().Body(newLoanView(summary)).Write(w)
}

// fail writes the response for err. Server errors are logged with their
// cause; client errors are left to the access log.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, op string) {
	resp := DomainError(err)
	if resp.StatusCode() >= http.StatusInternalServerError {
		fields := log.NewFields().WithHTTPRequest(r.Method, r.URL.Path, "", "")
		if borrower := r.PathValue("borrower"); borrower != "" {
			fields["borrower"] = borrower
		}
		log.NewStructuredLogger(log.FromContext(r.Context())).
			LogError(r.Context(), "Request failed", err, log.ErrorTypeInternal, op, fields)
	}
	resp.Write(w)
}
