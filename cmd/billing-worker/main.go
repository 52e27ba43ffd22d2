package main

import (
	"context"
	"time"

	"peerlend/internal/cli"
	"peerlend/internal/log"
	"peerlend/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentBilling)
	logger.Info("Starting billing-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.DataBackend == "memory" {
		logger.Warn("Memory backend is process local, the billing worker will only see its own seed data")
	}

	backend := cli.InitBackend(context.Background(), logger, cfg)

	var publisher services.PaymentPublisher
	if backend.Publisher != nil {
		publisher = backend.Publisher
	}
	catalog := services.NewCatalog(backend.Repository, cfg.ReferenceCacheTTL)
	loans := services.NewLoanService(backend.Repository, catalog, publisher, cfg.MinLoanAmount)
	processor := services.NewBillingProcessor(backend.Repository, loans, cfg.BillingLeadDays)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		if err := backend.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", "error", err)
		}
	})

	logger.Info("Billing processor configured",
		"interval", cfg.BillingInterval,
		"lead_days", cfg.BillingLeadDays,
		"backend", cfg.DataBackend)

	runCycle := func(now time.Time) {
		count, err := processor.ProcessDueLoans(ctx, now)
		if err != nil {
			if ctx.Err() == nil {
				logger.Error("Billing cycle failed", "error", err)
			}
			return
		}
		logger.Info("Billing cycle finished",
			"payments_generated", count,
			"next_check", now.Add(cfg.BillingInterval).Format(time.RFC3339))
	}

	// Run once on startup so a restart never delays billing by a full interval
	runCycle(time.Now())

	ticker := time.NewTicker(cfg.BillingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			cli.WaitForShutdown(ctx, done)
			logger.Info("Billing-worker stopped")
			return
		case now := <-ticker.C:
			runCycle(now)
		}
	}
}
