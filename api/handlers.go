/*
handlers.go - HTTP API handlers for the stock ledger

PURPOSE:
  Exposes the ledger via REST API. Handles HTTP request/response, JSON
  serialization, and delegates to the stock package.

ENDPOINTS:
  Transactions:
    POST   /api/transactions/inward         Record goods received
    POST   /api/transactions/outward        Record goods issued
    POST   /api/transactions/adjustment     Record a stock correction
    GET    /api/transactions                List (?kind=&from=&to=&item_id=)
    GET    /api/transactions/{id}           Header, lines and reason text
    POST   /api/transactions/{id}/reverse   Compensating adjustment

  Items & stock:
    GET    /api/items/{id}/stock            On-hand and status
    GET    /api/items/{id}/ledger           Running-balance ledger (?from=&to=)
    GET    /api/items/{id}/ledger.xlsx      Same, as a spreadsheet
    POST   /api/items/{id}/deactivate       Soft delete
    GET    /api/stock/low                   Items below minimum (?below=)

  Alerts:
    GET    /api/alerts                      List (?acknowledged=&from=&to=)
    GET    /api/alerts/summary              Counts
    POST   /api/alerts/acknowledge          Bulk acknowledge
    POST   /api/alerts/reconcile            Scan all items
    GET    /api/alerts/{id}
    POST   /api/alerts/{id}/acknowledge
    DELETE /api/alerts/{id}

ACTOR:
  Writes need an actor: the X-Actor-ID header, or actor_id in the body.

ERROR HANDLING:
  Errors are returned as JSON (ErrorResponse) with the status from
  statusFor in errors.go:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (idempotency key, already reversed, already acknowledged)
  - 422: Insufficient stock, inactive item
  - 503: Lost a concurrent update, safe to retry
  - 500: Storage failures

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/stock-ledger/report"
	"github.com/warp/stock-ledger/stock"
)

const ActorHeader = "X-Actor-ID"

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Services *stock.Services
	Store    stock.Store
	Log      zerolog.Logger
	Now      func() time.Time

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler over the given services and the store
// they share.
func NewHandler(svc *stock.Services, store stock.Store, log zerolog.Logger) *Handler {
	return &Handler{
		Services: svc,
		Store:    store,
		Log:      log,
		Now:      time.Now,
	}
}

func (h *Handler) log(r *http.Request) *zerolog.Logger {
	l := h.Log.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()
	return &l
}

// =============================================================================
// TRANSACTION ENDPOINTS
// =============================================================================

func (h *Handler) CreateInward(w http.ResponseWriter, r *http.Request) {
	h.createMovement(w, r, h.Services.Processor.CreateInward)
}

func (h *Handler) CreateOutward(w http.ResponseWriter, r *http.Request) {
	h.createMovement(w, r, h.Services.Processor.CreateOutward)
}

func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	h.createMovement(w, r, h.Services.Processor.CreateAdjustment)
}

type createFunc func(ctx context.Context, req stock.MovementRequest) (stock.TransactionID, error)

func (h *Handler) createMovement(w http.ResponseWriter, r *http.Request, create createFunc) {
	var body MovementRequestDTO
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	date := h.Now()
	if body.Date != "" {
		d, err := parseDate(body.Date, false)
		if err != nil {
			h.writeDomainError(w, r, stock.NewValidationError("date", err.Error()))
			return
		}
		date = d
	}
	actor, err := actorFrom(r, body.ActorID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	id, err := create(r.Context(), body.toDomain(date, actor))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, CreatedResponse{TransactionID: int64(id)})
}

// ListTransactions returns headers newest first.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter stock.TransactionFilter

	if v := q.Get("kind"); v != "" {
		kind := stock.Kind(strings.ToUpper(v))
		filter.Kind = &kind
	}
	from, to, err := dateRange(q.Get("from"), q.Get("to"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	filter.From, filter.To = from, to
	if v := q.Get("item_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			h.writeDomainError(w, r, stock.NewValidationError("item_id", "must be an integer"))
			return
		}
		item := stock.ItemID(id)
		filter.ItemID = &item
	}

	txns, err := h.Services.Ledger.ListTransactions(r.Context(), filter)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionSummaryDTOs(txns))
}

func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	detail, err := h.Services.Ledger.GetTransaction(r.Context(), stock.TransactionID(id))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(detail))
}

// LookupTransaction finds a transaction by kind and reference number.
func (h *Handler) LookupTransaction(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	kind := stock.Kind(strings.ToUpper(q.Get("kind")))
	detail, err := h.Services.Ledger.FindByReference(r.Context(), kind, strings.TrimSpace(q.Get("reference_no")))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(detail))
}

// ReverseTransaction records a compensating adjustment for a transaction.
func (h *Handler) ReverseTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var body ReverseRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	actor, err := actorFrom(r, body.ActorID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	rev, err := h.Services.Processor.Reverse(r.Context(), stock.TransactionID(id), stock.ReasonID(body.ReasonID), actor)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, CreatedResponse{TransactionID: int64(rev)})
}

// =============================================================================
// ITEM & STOCK ENDPOINTS
// =============================================================================

func (h *Handler) GetItemStock(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	s, err := h.Services.Ledger.GetItemStock(r.Context(), stock.ItemID(id))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemStockDTO(*s))
}

func (h *Handler) GetItemLedger(w http.ResponseWriter, r *http.Request) {
	l, ok := h.itemLedger(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toLedgerDTO(l))
}

func (h *Handler) ExportItemLedger(w http.ResponseWriter, r *http.Request) {
	l, ok := h.itemLedger(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := report.ItemLedger(&buf, l); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeFile(w, fmt.Sprintf("ledger-%s.xlsx", l.Item.Code), &buf)
}

func (h *Handler) itemLedger(w http.ResponseWriter, r *http.Request) (*stock.ItemLedger, bool) {
	id, ok := h.pathID(w, r)
	if !ok {
		return nil, false
	}
	from, to, err := dateRange(r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return nil, false
	}
	l, err := h.Services.Ledger.GetLedger(r.Context(), stock.ItemID(id), from, to)
	if err != nil {
		h.writeDomainError(w, r, err)
		return nil, false
	}
	return l, true
}

func (h *Handler) DeactivateItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var body ActorRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	actor, err := actorFrom(r, body.ActorID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if err := h.Services.Catalog.DeactivateItem(r.Context(), stock.ItemID(id), actor); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeleteReason(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	actor, err := actorFrom(r, 0)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if err := h.Services.Catalog.DeleteReason(r.Context(), stock.ReasonID(id), actor); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetLowStock lists active items below their minimum, or below ?below= when
// given.
func (h *Handler) GetLowStock(w http.ResponseWriter, r *http.Request) {
	pred := stock.BelowMinimum
	if v := r.URL.Query().Get("below"); v != "" {
		threshold, err := decimal.NewFromString(v)
		if err != nil {
			h.writeDomainError(w, r, stock.NewValidationError("below", "must be a number"))
			return
		}
		pred = stock.BelowQuantity(threshold)
	}

	low, err := h.Services.Ledger.LowStock(r.Context(), pred)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	out := make([]ItemStockDTO, len(low))
	for i, s := range low {
		out[i] = toItemStockDTO(s)
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// REPORTS
// =============================================================================

func (h *Handler) MonthlyMovement(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.monthlyMovement(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toMovementReportDTO(rep))
}

func (h *Handler) ExportMonthlyMovement(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.monthlyMovement(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := report.MonthlyMovement(&buf, rep); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeFile(w, fmt.Sprintf("movement-%d-%02d.xlsx", rep.Year, int(rep.Month)), &buf)
}

func (h *Handler) monthlyMovement(w http.ResponseWriter, r *http.Request) (*stock.MovementReport, bool) {
	q := r.URL.Query()
	now := h.Now().UTC()
	year, month := now.Year(), int(now.Month())
	var fields []stock.FieldError
	var filter stock.ItemFilter

	if v := q.Get("year"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			fields = append(fields, stock.FieldError{Field: "year", Message: "must be an integer"})
		}
		year = n
	}
	if v := q.Get("month"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			fields = append(fields, stock.FieldError{Field: "month", Message: "must be an integer"})
		}
		month = n
	}
	if v := q.Get("category_id"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			fields = append(fields, stock.FieldError{Field: "category_id", Message: "must be an integer"})
		}
		cat := stock.CategoryID(n)
		filter.CategoryID = &cat
	}
	if v := q.Get("item_id"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			fields = append(fields, stock.FieldError{Field: "item_id", Message: "must be an integer"})
		}
		item := stock.ItemID(n)
		filter.ItemID = &item
	}
	if len(fields) > 0 {
		h.writeDomainError(w, r, &stock.ValidationError{Fields: fields})
		return nil, false
	}

	rep, err := h.Services.Ledger.MonthlyMovement(r.Context(), year, month, filter)
	if err != nil {
		h.writeDomainError(w, r, err)
		return nil, false
	}
	return rep, true
}

// =============================================================================
// ALERT ENDPOINTS
// =============================================================================

func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter stock.AlertFilter
	if v := q.Get("acknowledged"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			h.writeDomainError(w, r, stock.NewValidationError("acknowledged", "must be true or false"))
			return
		}
		filter.Acknowledged = &b
	}
	from, to, err := dateRange(q.Get("from"), q.Get("to"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	filter.From, filter.To = from, to

	alerts, err := h.Services.Alerts.ListAlerts(r.Context(), filter)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAlertDTOs(alerts))
}

func (h *Handler) AlertSummary(w http.ResponseWriter, r *http.Request) {
	s, err := h.Services.Alerts.Summary(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AlertSummaryDTO{
		Total:        s.Total,
		Open:         s.Open,
		Acknowledged: s.Acknowledged,
		Critical:     s.Critical,
		OldestOpen:   formatTimePtr(s.OldestOpen),
	})
}

func (h *Handler) GetAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	a, err := h.Services.Alerts.GetAlert(r.Context(), stock.AlertID(id))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAlertDTO(*a))
}

func (h *Handler) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var body ActorRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	actor, err := actorFrom(r, body.ActorID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if err := h.Services.Alerts.Acknowledge(r.Context(), stock.AlertID(id), actor); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	a, err := h.Services.Alerts.GetAlert(r.Context(), stock.AlertID(id))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAlertDTO(*a))
}

func (h *Handler) AcknowledgeAlerts(w http.ResponseWriter, r *http.Request) {
	var body BulkAcknowledgeRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	actor, err := actorFrom(r, body.ActorID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	ids := make([]stock.AlertID, len(body.AlertIDs))
	for i, id := range body.AlertIDs {
		ids[i] = stock.AlertID(id)
	}

	res, err := h.Services.Alerts.AcknowledgeBulk(r.Context(), ids, actor)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	resp := BulkAcknowledgeResponse{Acknowledged: make([]int64, len(res.Acknowledged)), Skipped: res.Skipped}
	for i, id := range res.Acknowledged {
		resp.Acknowledged[i] = int64(id)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) ReconcileAlerts(w http.ResponseWriter, r *http.Request) {
	res, err := h.Services.Alerts.Reconcile(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ReconcileResponse{
		NewAlerts:          res.NewAlerts,
		Refreshed:          res.Refreshed,
		TotalLowStockItems: res.TotalLowStockItems,
	})
}

func (h *Handler) DeleteAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	actor, err := actorFrom(r, 0)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if err := h.Services.Alerts.DeleteAlert(r.Context(), stock.AlertID(id), actor); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ADMIN
// =============================================================================

// VerifyAggregates replays the ledger of every item against its aggregate.
func (h *Handler) VerifyAggregates(w http.ResponseWriter, r *http.Request) {
	drifts, err := h.Services.Ledger.VerifyAggregates(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, VerifyResponse{Consistent: len(drifts) == 0, Drifts: toDriftDTOs(drifts)})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeFile(w http.ResponseWriter, name string, body *bytes.Buffer) {
	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(body.Len()))
	w.WriteHeader(http.StatusOK)
	body.WriteTo(w)
}

// decodeJSON accepts an empty body for endpoints whose fields are optional.
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id", fmt.Errorf("%q is not a positive integer", raw))
		return 0, false
	}
	return id, true
}

// actorFrom prefers the X-Actor-ID header over the body field. Zero means
// no actor was given; the ledger rejects it as a validation error.
func actorFrom(r *http.Request, bodyID int64) (stock.ActorID, error) {
	if v := r.Header.Get(ActorHeader); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, stock.NewValidationError("user_id", ActorHeader+" must be an integer")
		}
		return stock.ActorID(id), nil
	}
	return stock.ActorID(bodyID), nil
}

// parseDate accepts a calendar date or an RFC3339 timestamp within the
// ledger's date range. A calendar date means the start of that day, or its
// last instant when endOfDay is set.
func parseDate(s string, endOfDay bool) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if d, derr := time.Parse(time.DateOnly, s); derr == nil {
		t, err = stock.StartOfDay(d), nil
		if endOfDay {
			t = stock.EndOfDay(d)
		}
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("must be YYYY-MM-DD or RFC3339")
	}
	if !stock.InLedgerRange(t) {
		return time.Time{}, fmt.Errorf("must be between %s and %s",
			stock.EarliestDate.Format(time.DateOnly), stock.LatestDate.Format(time.DateOnly))
	}
	return t.UTC(), nil
}

func dateRange(from, to string) (*time.Time, *time.Time, error) {
	var fields []stock.FieldError
	var f, t *time.Time
	if from != "" {
		d, err := parseDate(from, false)
		if err != nil {
			fields = append(fields, stock.FieldError{Field: "from", Message: err.Error()})
		} else {
			f = &d
		}
	}
	if to != "" {
		d, err := parseDate(to, true)
		if err != nil {
			fields = append(fields, stock.FieldError{Field: "to", Message: err.Error()})
		} else {
			t = &d
		}
	}
	if len(fields) > 0 {
		return nil, nil, &stock.ValidationError{Fields: fields}
	}
	return f, t, nil
}
