// Package api assembles the HTTP surface of the ledger.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-ledger/internal/api/handlers"
	"github.com/dvloznov/finance-ledger/internal/api/middleware"
	"github.com/dvloznov/finance-ledger/internal/jobs"
)

// Deps are the services the router exposes.
type Deps struct {
	Poster       handlers.TransactionPoster
	Transactions handlers.TransactionReader
	Capture      handlers.Capturer
	Drafts       handlers.DraftReviewer
	Expander     handlers.Materializer
	Reconciler   handlers.BalanceChecker
	Jobs         jobs.JobStore
	Now          func() time.Time
	Logger       zerolog.Logger
}

// NewRouter builds the chi router with middleware and every /api route.
func NewRouter(d Deps) http.Handler {
	if d.Now == nil {
		d.Now = time.Now
	}
	log := d.Logger

	transactions := handlers.NewTransactionsHandler(d.Poster, d.Transactions, d.Now, log)
	captureHandler := handlers.NewCaptureHandler(d.Capture, log)
	draftsHandler := handlers.NewDraftsHandler(d.Drafts, log)
	ops := handlers.NewLedgerOpsHandler(d.Expander, d.Reconciler, d.Now, log)
	jobsHandler := handlers.NewJobsHandler(d.Jobs, log)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.StripSlashes)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))
	r.Use(middleware.CORS)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   d.Now().Format(time.RFC3339),
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Owner)

		r.Post("/transactions", transactions.PostTransaction)
		r.Get("/transactions", transactions.ListTransactions)
		r.Get("/transactions/{id}", transactions.GetTransaction)

		r.Post("/capture", captureHandler.Capture)

		r.Get("/drafts/{id}", draftsHandler.GetDraft)
		r.Patch("/drafts/{id}", draftsHandler.PatchDraft)
		r.Post("/drafts/{id}/post", draftsHandler.PostDraft)
		r.Post("/drafts/{id}/reject", draftsHandler.RejectDraft)

		r.Post("/recurrence/materialize", ops.Materialize)
		r.Get("/accounts/{id}/reconcile", ops.Reconcile)

		if d.Jobs != nil {
			r.Get("/jobs", jobsHandler.ListJobs)
			r.Get("/jobs/{id}", jobsHandler.GetJob)
		}
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusNotFound, "Not found")
	})

	return r
}
