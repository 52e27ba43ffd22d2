package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"peerlend/internal/core"
	"peerlend/internal/log"
	"peerlend/internal/middleware/ratelimit"
	"peerlend/internal/middleware/security"
	"peerlend/internal/middleware/trace"
	"peerlend/internal/services"
)

// LoanAPI is the loan service surface the handlers use.
type LoanAPI interface {
	CreateLoan(ctx context.Context, req services.CreateLoanRequest) (core.LoanSummary, error)
	GetLoan(ctx context.Context, borrowerID int64, ref uuid.UUID) (core.LoanSummary, error)
	ListLoans(ctx context.Context, borrowerID int64) ([]core.LoanSummary, error)
	Available(ctx context.Context, borrowerID int64) (core.AvailableCredit, error)
	RecordSettlement(ctx context.Context, borrowerID int64, ref uuid.UUID, seq int, paidAt time.Time) error
}

// ReferenceLister lists the reference tables.
type ReferenceLister interface {
	Frequencies(ctx context.Context) ([]core.ReferenceFrequency, error)
	Amortizations(ctx context.Context) ([]core.ReferenceAmortization, error)
}

// Pinger reports whether the storage backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options tunes the middleware of a Server.
type Options struct {
	// RequestsPerMinute limits loan applications and settlements per client.
	RequestsPerMinute int
	Logger            *log.Logger
}

type Server struct {
	http.Server
	loans     LoanAPI
	reference ReferenceLister
	db        Pinger
	logger    *log.Logger
	now       func() time.Time
	started   time.Time

	detector    *security.Detector
	rateLimiter *ratelimit.Limiter

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, loans LoanAPI, reference ReferenceLister, db Pinger, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	limits := ratelimit.DefaultConfig()
	if opts.RequestsPerMinute > 0 {
		limits.RequestsPerMinute = opts.RequestsPerMinute
	}

	s := &Server{
		loans:       loans,
		reference:   reference,
		db:          db,
		logger:      logger.WithComponent(log.ComponentHTTP),
		now:         time.Now,
		started:     time.Now(),
		detector:    security.NewDetector(),
		rateLimiter: ratelimit.NewLimiter(limits),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /reference/frequencies", s.handleListFrequencies)
	mux.HandleFunc("GET /reference/amortizations", s.handleListAmortizations)

	mux.HandleFunc("GET /borrowers/{borrower}/loans/available", s.handleAvailable)
	mux.HandleFunc("POST /borrowers/{borrower}/loans", s.handleCreateLoan)
	mux.HandleFunc("GET /borrowers/{borrower}/loans", s.handleListLoans)
	mux.HandleFunc("GET /borrowers/{borrower}/loans/{ref}", s.handleGetLoan)
	mux.HandleFunc("POST /borrowers/{borrower}/loans/{ref}/payments/{seq}/settlement", s.handleSettle)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("no route for " + r.Method + " " + r.URL.Path).Write(w)
	})

	limited := s.rateLimiter.Middleware(s.detector.ExtractClientIP, onRateLimited, http.MethodPost)
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	tracer := trace.NewMiddleware(s.detector.ExtractClientIP, logger)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           tracer.Middleware(s.detector.Middleware(headers.Middleware(limited(mux)))),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func onRateLimited(w http.ResponseWriter, r *http.Request) {
	ErrorResponse(http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded, try again later").
		Header("Retry-After", "60").
		Write(w)
}

// Shutdown stops the rate limiter and gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
