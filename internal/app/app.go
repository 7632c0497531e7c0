// Package app wires the ledger services together for the binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-ledger/internal/capture"
	"github.com/dvloznov/finance-ledger/internal/config"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/drafts"
	infraBQ "github.com/dvloznov/finance-ledger/internal/infra/bigquery"
	"github.com/dvloznov/finance-ledger/internal/jobs"
	"github.com/dvloznov/finance-ledger/internal/jobs/boltstore"
	"github.com/dvloznov/finance-ledger/internal/jobs/inmemory"
	"github.com/dvloznov/finance-ledger/internal/ledger"
	"github.com/dvloznov/finance-ledger/internal/recurrence"
	"github.com/dvloznov/finance-ledger/internal/reminders"
	"github.com/dvloznov/finance-ledger/internal/store"
	"github.com/dvloznov/finance-ledger/internal/store/sqlite"
)

// Options tune NewServices. Zero values select defaults.
type Options struct {
	Queue      jobs.Scheduler  // nil disables reminders
	Exporter   ledger.Exporter // nil disables the analytics mirror
	Rules      capture.Rules
	Threshold  float64
	MaxCatchUp int
	Now        func() time.Time
	Logger     zerolog.Logger
}

// Services are the ledger core components sharing one store.
type Services struct {
	Store      store.Store
	Engine     *ledger.Engine
	Drafts     *drafts.Service
	Capture    *capture.Service
	Expander   *recurrence.Expander
	Reconciler *ledger.Reconciler
	Reminders  *reminders.Scheduler
}

// NewServices builds every core service on top of st.
func NewServices(st store.Store, o Options) *Services {
	if o.Now == nil {
		o.Now = time.Now
	}
	s := &Services{Store: st}

	deps := ledger.Deps{
		Accounts:     st,
		Categories:   st,
		Transactions: st,
		Exporter:     o.Exporter,
		Now:          o.Now,
		Logger:       o.Logger.With().Str("component", "ledger").Logger(),
	}
	if o.Queue != nil {
		s.Reminders = reminders.NewScheduler(o.Queue, o.Now, o.Logger.With().Str("component", "reminders").Logger())
		deps.Reminders = s.Reminders
	}
	s.Engine = ledger.New(deps)

	s.Drafts = drafts.NewService(st, s.Engine, o.Now, o.Logger.With().Str("component", "drafts").Logger())
	s.Capture = capture.NewService(capture.Deps{
		Accounts:     st,
		Categories:   st,
		Transactions: st,
		DraftRepo:    st,
		Drafts:       s.Drafts,
		Rules:        o.Rules,
		Threshold:    o.Threshold,
		Now:          o.Now,
		Logger:       o.Logger.With().Str("component", "capture").Logger(),
	})
	s.Expander = recurrence.NewExpander(st, s.Engine, o.MaxCatchUp, o.Logger.With().Str("component", "recurrence").Logger())
	s.Reconciler = ledger.NewReconciler(st, st, o.Logger.With().Str("component", "reconcile").Logger())
	return s
}

// Runtime is a fully opened deployment: SQLite ledger, bbolt-backed reminder
// queue and the optional BigQuery mirror.
type Runtime struct {
	*Services
	Config   *config.Config
	Queue    *inmemory.Queue
	JobStore *boltstore.Store
	Exporter *infraBQ.Exporter

	sqlite *sqlite.Store
	log    zerolog.Logger
}

// Open opens every backing store named by cfg and wires the services.
// The queue is created but not started; see StartReminders.
func Open(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Runtime, error) {
	rules, err := capture.LoadRules(cfg.Capture.RulesPath)
	if err != nil {
		return nil, fmt.Errorf("Open: capture rules: %w", err)
	}

	db, err := sqlite.Open(ctx, cfg.Store.DBPath)
	if err != nil {
		return nil, fmt.Errorf("Open: ledger store: %w", err)
	}
	rt := &Runtime{Config: cfg, sqlite: db, log: log}

	rt.JobStore, err = boltstore.New(cfg.Store.JobsDBPath)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("Open: job store: %w", err)
	}
	rt.Queue = inmemory.NewQueue(cfg.Reminders.QueueBuffer, rt.JobStore,
		inmemory.WithWorkers(cfg.Reminders.Workers),
		inmemory.WithLogger(log.With().Str("component", "queue").Logger()),
	)

	opts := Options{
		Queue:      rt.Queue,
		Rules:      rules,
		Threshold:  cfg.Capture.AutoPostThreshold,
		MaxCatchUp: cfg.Recurrence.MaxCatchUp,
		Logger:     log,
	}
	if cfg.BigQuery.Enabled() {
		rt.Exporter, err = infraBQ.NewExporter(ctx, cfg.BigQuery.Project, cfg.BigQuery.Dataset, cfg.BigQuery.Table)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("Open: bigquery exporter: %w", err)
		}
		opts.Exporter = rt.Exporter
	}

	rt.Services = NewServices(db, opts)
	return rt, nil
}

// StartReminders restores persisted reminder jobs and starts consuming them.
func (rt *Runtime) StartReminders(ctx context.Context) error {
	n, err := rt.Queue.Restore(ctx)
	if err != nil {
		return fmt.Errorf("StartReminders: restore: %w", err)
	}
	rt.log.Info().Int("restored", n).Msg("Reminder jobs restored")

	notifier := reminders.LogNotifier{Log: rt.log.With().Str("component", "notifier").Logger()}
	return rt.Queue.Start(ctx, reminders.Handler(rt.Store, notifier, rt.log))
}

// Close stops the queue and closes every store. It is safe on a partially opened Runtime.
func (rt *Runtime) Close() error {
	var errs []error
	if rt.Queue != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := rt.Queue.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop queue: %w", err))
		}
		if err := rt.Queue.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close queue: %w", err))
		}
	}
	if rt.Exporter != nil {
		if err := rt.Exporter.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close exporter: %w", err))
		}
	}
	if rt.JobStore != nil {
		if err := rt.JobStore.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close job store: %w", err))
		}
	}
	if rt.sqlite != nil {
		if err := rt.sqlite.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close ledger store: %w", err))
		}
	}
	return errors.Join(errs...)
}

// RunRecurrence materializes due templates for every owner immediately and
// then every interval until ctx is cancelled. Failed runs are logged and
// retried on the next tick.
func RunRecurrence(ctx context.Context, exp *recurrence.Expander, interval time.Duration, now func() time.Time, log zerolog.Logger) {
	if now == nil {
		now = time.Now
	}
	run := func() {
		n, err := exp.MaterializeAll(ctx, domain.Day(now()))
		if err != nil {
			log.Error().Err(err).Int("created", n).Msg("Recurrence run incomplete")
			return
		}
		if n > 0 {
			log.Info().Int("created", n).Msg("Recurrence instances materialized")
		}
	}

	run()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}
