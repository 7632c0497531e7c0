package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-ledger/internal/api/middleware"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/drafts"
	"github.com/dvloznov/finance-ledger/internal/jobs"
	"github.com/dvloznov/finance-ledger/internal/ledger"
)

// DraftReviewer drives the draft review state machine.
type DraftReviewer interface {
	Get(ctx context.Context, ownerID, draftID string) (*domain.Draft, error)
	Patch(ctx context.Context, ownerID, draftID string, p drafts.Patch) (*domain.Draft, error)
	Post(ctx context.Context, ownerID, draftID string) (*domain.Draft, *domain.Transaction, error)
	Reject(ctx context.Context, ownerID, draftID string, reason *string) (*domain.Draft, error)
}

// DraftsHandler handles draft review endpoints.
type DraftsHandler struct {
	drafts DraftReviewer
	log    zerolog.Logger
}

// NewDraftsHandler creates a new drafts handler.
func NewDraftsHandler(d DraftReviewer, log zerolog.Logger) *DraftsHandler {
	return &DraftsHandler{drafts: d, log: log}
}

// GetDraft handles GET /api/drafts/{id}
func (h *DraftsHandler) GetDraft(w http.ResponseWriter, r *http.Request) {
	d, err := h.drafts.Get(r.Context(), middleware.OwnerFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteDomainError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, d)
}

// PatchDraft handles PATCH /api/drafts/{id}
func (h *DraftsHandler) PatchDraft(w http.ResponseWriter, r *http.Request) {
	var p drafts.Patch
	if !decode(w, r, &p) {
		return
	}
	d, err := h.drafts.Patch(r.Context(), middleware.OwnerFrom(r.Context()), chi.URLParam(r, "id"), p)
	if err != nil {
		middleware.WriteDomainError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, d)
}

// PostDraft handles POST /api/drafts/{id}/post
func (h *DraftsHandler) PostDraft(w http.ResponseWriter, r *http.Request) {
	d, tx, err := h.drafts.Post(r.Context(), middleware.OwnerFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteDomainError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"draft":       d,
		"transaction": tx,
	})
}

// RejectDraft handles POST /api/drafts/{id}/reject. The body is optional.
func (h *DraftsHandler) RejectDraft(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason *string `json:"reason"`
	}
	if err := decodeOptional(r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	d, err := h.drafts.Reject(r.Context(), middleware.OwnerFrom(r.Context()), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		middleware.WriteDomainError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, d)
}

func decodeOptional(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, v)
}

// Materializer expands recurrence templates.
type Materializer interface {
	Materialize(ctx context.Context, ownerID string, horizon time.Time) ([]domain.Transaction, error)
}

// BalanceChecker recomputes account balances.
type BalanceChecker interface {
	Check(ctx context.Context, ownerID, accountID string) (*ledger.Report, error)
}

// LedgerOpsHandler handles recurrence materialization and reconciliation.
type LedgerOpsHandler struct {
	expander   Materializer
	reconciler BalanceChecker
	now        func() time.Time
	log        zerolog.Logger
}

// NewLedgerOpsHandler creates a new ledger operations handler.
func NewLedgerOpsHandler(expander Materializer, reconciler BalanceChecker, now func() time.Time, log zerolog.Logger) *LedgerOpsHandler {
	if now == nil {
		now = time.Now
	}
	return &LedgerOpsHandler{expander: expander, reconciler: reconciler, now: now, log: log}
}

// Materialize handles POST /api/recurrence/materialize. Horizon defaults to today.
// Instances created before a failure are still returned alongside the error status.
func (h *LedgerOpsHandler) Materialize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Horizon *string `json:"horizon"`
	}
	if err := decodeOptional(r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	horizon := domain.Day(h.now())
	if req.Horizon != nil {
		d, err := domain.ParseDay(*req.Horizon)
		if err != nil {
			middleware.WriteDomainError(w, r, err)
			return
		}
		horizon = d
	}

	owner := middleware.OwnerFrom(r.Context())
	created, err := h.expander.Materialize(r.Context(), owner, horizon)
	if created == nil {
		created = []domain.Transaction{}
	}
	if err != nil {
		h.log.Error().Err(err).Str("owner_id", owner).Int("created", len(created)).Msg("Materialization incomplete")
		middleware.WriteJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error":   "Materialization incomplete",
			"created": created,
			"count":   len(created),
		})
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"horizon": horizon.Format(domain.DayLayout),
		"created": created,
		"count":   len(created),
	})
}

// Reconcile handles GET /api/accounts/{id}/reconcile
func (h *LedgerOpsHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	rep, err := h.reconciler.Check(r.Context(), middleware.OwnerFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteDomainError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"report":   rep,
		"balanced": rep.Balanced(),
	})
}

// JobsHandler exposes the reminder job queue state.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{store: store, log: log}
}

// ListJobs handles GET /api/jobs. Jobs of other owners are never listed.
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{
		TransactionID: query.Get("transaction_id"),
		Status:        jobs.JobStatus(query.Get("status")),
		LiveOnly:      query.Get("live") == "true",
	}

	list, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	owner := middleware.OwnerFrom(r.Context())
	owned := []*jobs.DelayedJob{}
	for _, j := range list {
		if j.Payload.OwnerID == owner {
			owned = append(owned, j)
		}
	}

	page := jobs.JobFilter{}
	if limit, err := strconv.Atoi(query.Get("limit")); err == nil {
		page.Limit = limit
	}
	if offset, err := strconv.Atoi(query.Get("offset")); err == nil {
		page.Offset = offset
	}
	owned = page.Page(owned)

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  owned,
		"count": len(owned),
	})
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.store.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil || job.Payload.OwnerID != middleware.OwnerFrom(r.Context()) {
		if err != nil && !errors.Is(err, jobs.ErrJobNotFound) {
			h.log.Error().Err(err).Msg("Failed to get job")
		}
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, job)
}
