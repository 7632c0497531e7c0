package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/finance-ledger/internal/api"
	"github.com/dvloznov/finance-ledger/internal/app"
	"github.com/dvloznov/finance-ledger/internal/config"
	"github.com/dvloznov/finance-ledger/internal/logger"
)

func main() {
	// Parse command-line flags
	var (
		envFile      = flag.String("env", "", "Path to a .env file (defaults to ./.env when present)")
		port         = flag.String("port", "", "HTTP server port (overrides PORT)")
		noBackground = flag.Bool("no-background", false, "Disable the in-process reminder consumer and recurrence ticker")
	)
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
	if *port != "" {
		cfg.Port = *port
	}
	if err := cfg.Validate(); err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Initialize logger
	log := logger.NewWithOptions(os.Stdout, logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := app.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger runtime")
	}

	if !*noBackground {
		if err := rt.StartReminders(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to start reminder consumer")
		}
		go app.RunRecurrence(ctx, rt.Expander, cfg.Recurrence.Interval, nil, log.With().Str("component", "recurrence").Logger())
	}

	router := api.NewRouter(api.Deps{
		Poster:       rt.Engine,
		Transactions: rt.Store,
		Capture:      rt.Capture,
		Drafts:       rt.Drafts,
		Expander:     rt.Expander,
		Reconciler:   rt.Reconciler,
		Jobs:         rt.JobStore,
		Logger:       log,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().
			Str("port", cfg.Port).
			Str("db", cfg.Store.DBPath).
			Bool("bigquery_export", cfg.BigQuery.Enabled()).
			Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Stop the recurrence ticker and the reminder workers
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	if err := rt.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close ledger runtime")
	}

	log.Info().Msg("Server exited")
}
