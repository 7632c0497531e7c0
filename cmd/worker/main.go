package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/dvloznov/finance-ledger/internal/app"
	"github.com/dvloznov/finance-ledger/internal/config"
	"github.com/dvloznov/finance-ledger/internal/logger"
)

func main() {
	envFile := flag.String("env", "", "Path to a .env file (defaults to ./.env when present)")
	flag.Parse()

	var envPaths []string
	if *envFile != "" {
		envPaths = append(envPaths, *envFile)
	}
	cfg, err := config.Load(envPaths...)
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Initialize logger
	log := logger.NewWithOptions(os.Stdout, logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	log.Info().Msg("Starting worker service")

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := app.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger runtime")
	}

	// Start consuming reminder jobs
	if err := rt.StartReminders(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	done := make(chan struct{})
	go func() {
		app.RunRecurrence(ctx, rt.Expander, cfg.Recurrence.Interval, nil, log.With().Str("component", "recurrence").Logger())
		close(done)
	}()

	log.Info().
		Dur("recurrence_interval", cfg.Recurrence.Interval).
		Int("workers", cfg.Reminders.Workers).
		Msg("Worker service started, waiting for jobs...")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")

	// Cancel context to stop workers and the ticker
	cancel()
	<-done

	// Stop the queue, wait for in-flight jobs and close the stores
	if err := rt.Close(); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	log.Info().Msg("Worker service exited")
}
