package main

import (
	"context"
	"os"
	"time"

	"peerlend/internal/backend"
	"peerlend/internal/cli"
	"peerlend/internal/log"
	"peerlend/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	logger.Info("Starting ledger-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	result := cli.InitBackend(context.Background(), logger, cfg)

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	ledger, err := backend.NewFactory(logger.Logger).CreateLedger(context.Background(), bcfg)
	if err != nil {
		logger.Error("Failed to initialize servicing ledger", "error", err)
		os.Exit(1)
	}

	ledgerWorker := worker.NewLedgerWorker(result.Repository, ledger, cfg.ExportBatchSize)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		if err := result.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", "error", err)
		}
	})

	// Export whatever accumulated while the worker was down
	if err := ledgerWorker.StartupCheck(ctx); err != nil {
		logger.Error("Startup export failed", "error", err)
	}

	var source worker.MessageSource
	if result.Publisher != nil {
		source = result.Publisher
		logger.Info("Consuming payment notifications", "queue", cfg.AMQPQueue)
	} else {
		logger.Warn("AMQP unavailable - exporting through periodic backfill only")
	}

	logger.Info("Ledger worker running",
		"export_interval", cfg.ExportInterval,
		"batch_size", cfg.ExportBatchSize,
		"ledger_enabled", cfg.LedgerEnabled())
	if err := ledgerWorker.Run(ctx, source, cfg.ExportInterval); err != nil {
		logger.Error("Ledger worker stopped with error", "error", err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Ledger-worker stopped")
}
