package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"peerlend/internal/cache"
	"peerlend/internal/cli"
	apphttp "peerlend/internal/http"
	"peerlend/internal/log"
	"peerlend/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	backend := cli.InitBackend(context.Background(), logger, cfg)

	catalog := services.NewCatalog(backend.Repository, cfg.ReferenceCacheTTL)
	cacheManager := cache.NewManager()
	for _, c := range catalog.Caches() {
		cacheManager.Register(c)
	}
	cacheManager.StartCleanup(cfg.ReferenceCacheTTL)

	// Without a broker, new payments wait for the ledger worker's backfill
	var publisher services.PaymentPublisher
	if backend.Publisher != nil {
		publisher = backend.Publisher
	} else {
		logger.Info("AMQP disabled - payments reach the ledger through backfill only")
	}
	loans := services.NewLoanService(backend.Repository, catalog, publisher, cfg.MinLoanAmount)

	srv := apphttp.NewServer(":"+cfg.Port, loans, catalog, backend.Repository, apphttp.Options{Logger: logger})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cacheManager.Stop()
		if err := backend.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", "error", err)
		}
	})

	logger.Info("Starting peerlend server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"min_loan_amount", cfg.MinLoanAmount.String())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
