package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-ledger/internal/api/middleware"
	"github.com/dvloznov/finance-ledger/internal/capture"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/store"
)

// TransactionPoster posts candidates through the ledger engine.
type TransactionPoster interface {
	Post(ctx context.Context, c domain.Candidate) (*domain.Transaction, error)
}

// TransactionReader reads posted transactions.
type TransactionReader interface {
	GetTransaction(ctx context.Context, ownerID, transactionID string) (*domain.Transaction, error)
	FindTransactions(ctx context.Context, filter store.TransactionFilter) ([]domain.Transaction, error)
}

// Capturer runs free-text capture.
type Capturer interface {
	Capture(ctx context.Context, ownerID, accountID, rawText string, o capture.Overrides) (*capture.Result, error)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func parseDayPtr(s *string) (*time.Time, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	d, err := domain.ParseDay(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday, "wednesday": time.Wednesday,
	"thursday": time.Thursday, "friday": time.Friday, "saturday": time.Saturday,
}

// parseWeekday accepts an English day name or 0 (Sunday) to 6.
func parseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if wd, ok := weekdays[s]; ok {
		return wd, nil
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 && n <= 6 {
		return time.Weekday(n), nil
	}
	return 0, fmt.Errorf("%w: unknown weekday %q", domain.ErrValidation, s)
}

type recurrenceRequest struct {
	Frequency  string  `json:"frequency"`
	Interval   int     `json:"interval"`
	StartDate  *string `json:"start_date,omitempty"`
	EndDate    *string `json:"end_date,omitempty"`
	DayOfMonth int     `json:"day_of_month,omitempty"`
	Weekday    *string `json:"weekday,omitempty"`
}

// TransactionRequest is the body of POST /api/transactions. Dates are
// YYYY-MM-DD or RFC 3339.
type TransactionRequest struct {
	AccountID   string                  `json:"account_id"`
	CategoryID  *string                 `json:"category_id,omitempty"`
	Type        string                  `json:"type"`
	AmountMinor int64                   `json:"amount_minor"`
	Currency    string                  `json:"currency"`
	Date        string                  `json:"date"`
	Description *string                 `json:"description,omitempty"`
	Notes       *string                 `json:"notes,omitempty"`
	Tags        []string                `json:"tags,omitempty"`
	AssetSymbol *string                 `json:"asset_symbol,omitempty"`
	Units       *decimal.Decimal        `json:"units,omitempty"`
	Reminder    domain.ReminderSettings `json:"reminder"`
	Recurrence  *recurrenceRequest      `json:"recurrence,omitempty"`
	NextDate    *string                 `json:"next_date,omitempty"`
}

// Candidate converts the request into a posting candidate for ownerID.
func (req TransactionRequest) Candidate(ownerID string) (domain.Candidate, error) {
	typ, err := domain.ParseTransactionType(req.Type)
	if err != nil {
		return domain.Candidate{}, err
	}
	date, err := domain.ParseDay(req.Date)
	if err != nil {
		return domain.Candidate{}, err
	}
	next, err := parseDayPtr(req.NextDate)
	if err != nil {
		return domain.Candidate{}, err
	}

	c := domain.Candidate{
		OwnerID:     ownerID,
		AccountID:   req.AccountID,
		CategoryID:  req.CategoryID,
		Type:        typ,
		AmountMinor: req.AmountMinor,
		Currency:    strings.ToUpper(strings.TrimSpace(req.Currency)),
		Date:        date,
		Description: req.Description,
		Notes:       req.Notes,
		Tags:        req.Tags,
		AssetSymbol: req.AssetSymbol,
		Units:       req.Units,
		Reminder:    req.Reminder,
		NextDate:    next,
	}

	if rr := req.Recurrence; rr != nil {
		freq, err := domain.ParseFrequency(rr.Frequency)
		if err != nil {
			return domain.Candidate{}, err
		}
		rs := &domain.RecurrenceSettings{Frequency: freq, Interval: rr.Interval, DayOfMonth: rr.DayOfMonth}
		if rs.StartDate, err = parseDayPtr(rr.StartDate); err != nil {
			return domain.Candidate{}, err
		}
		if rs.EndDate, err = parseDayPtr(rr.EndDate); err != nil {
			return domain.Candidate{}, err
		}
		if rr.Weekday != nil {
			wd, err := parseWeekday(*rr.Weekday)
			if err != nil {
				return domain.Candidate{}, err
			}
			rs.Weekday = &wd
		}
		c.Recurrence = rs
	}
	return c, nil
}

// TransactionsHandler handles transaction-related endpoints.
type TransactionsHandler struct {
	poster TransactionPoster
	reader TransactionReader
	now    func() time.Time
	log    zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(poster TransactionPoster, reader TransactionReader, now func() time.Time, log zerolog.Logger) *TransactionsHandler {
	if now == nil {
		now = time.Now
	}
	return &TransactionsHandler{poster: poster, reader: reader, now: now, log: log}
}

// PostTransaction handles POST /api/transactions
func (h *TransactionsHandler) PostTransaction(w http.ResponseWriter, r *http.Request) {
	var req TransactionRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := req.Candidate(middleware.OwnerFrom(r.Context()))
	if err != nil {
		middleware.WriteDomainError(w, r, err)
		return
	}

	tx, err := h.poster.Post(r.Context(), c)
	if err != nil {
		middleware.WriteDomainError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, tx)
}

// GetTransaction handles GET /api/transactions/{id}
func (h *TransactionsHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.reader.GetTransaction(r.Context(), middleware.OwnerFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Not found")
			return
		}
		middleware.WriteDomainError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, tx)
}

// ListTransactions handles GET /api/transactions
func (h *TransactionsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := store.TransactionFilter{
		OwnerID:   middleware.OwnerFrom(r.Context()),
		AccountID: query.Get("account_id"),
	}

	start := domain.Day(h.now()).AddDate(-1, 0, 0)
	end := domain.Day(h.now())
	if s := query.Get("start_date"); s != "" {
		d, err := domain.ParseDay(s)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid start_date format")
			return
		}
		start = d
	}
	if s := query.Get("end_date"); s != "" {
		d, err := domain.ParseDay(s)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid end_date format")
			return
		}
		end = d
	}
	filter.DateFrom, filter.DateTo = &start, &end

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	txs, err := h.reader.FindTransactions(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to query transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to query transactions")
		return
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txs,
		"count":        len(txs),
	})
}

// CaptureRequest is the body of POST /api/capture.
type CaptureRequest struct {
	AccountID  string                   `json:"account_id"`
	Text       string                   `json:"text"`
	Type       *string                  `json:"type,omitempty"`
	Date       *string                  `json:"date,omitempty"`
	CategoryID *string                  `json:"category_id,omitempty"`
	Notes      *string                  `json:"notes,omitempty"`
	Tags       []string                 `json:"tags,omitempty"`
	Reminder   *domain.ReminderSettings `json:"reminder,omitempty"`
	Source     string                   `json:"source,omitempty"`
}

// Overrides converts the optional request fields into capture overrides.
func (req CaptureRequest) Overrides() (capture.Overrides, error) {
	o := capture.Overrides{
		CategoryID: req.CategoryID,
		Notes:      req.Notes,
		Tags:       req.Tags,
		Reminder:   req.Reminder,
		Source:     req.Source,
	}
	if req.Type != nil {
		t, err := domain.ParseTransactionType(*req.Type)
		if err != nil {
			return o, err
		}
		o.Type = &t
	}
	d, err := parseDayPtr(req.Date)
	if err != nil {
		return o, err
	}
	o.Date = d
	return o, nil
}

// CaptureHandler handles free-text capture.
type CaptureHandler struct {
	capturer Capturer
	log      zerolog.Logger
}

// NewCaptureHandler creates a new capture handler.
func NewCaptureHandler(capturer Capturer, log zerolog.Logger) *CaptureHandler {
	return &CaptureHandler{capturer: capturer, log: log}
}

// Capture handles POST /api/capture. Auto-posted captures return 201, drafts
// 202 and duplicates 200.
func (h *CaptureHandler) Capture(w http.ResponseWriter, r *http.Request) {
	var req CaptureRequest
	if !decode(w, r, &req) {
		return
	}
	o, err := req.Overrides()
	if err != nil {
		middleware.WriteDomainError(w, r, err)
		return
	}

	res, err := h.capturer.Capture(r.Context(), middleware.OwnerFrom(r.Context()), req.AccountID, req.Text, o)
	if err != nil {
		middleware.WriteDomainError(w, r, err)
		return
	}

	status := http.StatusOK
	switch res.Outcome {
	case capture.OutcomeAutoPosted:
		status = http.StatusCreated
	case capture.OutcomeDraft:
		status = http.StatusAccepted
	}
	middleware.WriteJSON(w, status, res)
}
