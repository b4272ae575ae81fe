/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate an empty database with a
	small warehouse catalog and a month of realistic stock movements.

AVAILABLE SCENARIOS:

	opening-stock: catalog plus one opening receipt per item
	low-stock:     opening stock, then issues that push items below minimum
	month-end:     a full previous month of receipts, issues, corrections
	               and one reversal, for the monthly movement report

HOW SCENARIOS WORK:
 1. Create actors, adjustment reasons and items (catalog writes)
 2. Post movements through the Processor, dated in the previous month
 3. Every movement carries an idempotency key "scenario:<id>:<ref>"

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "low-stock"}

NOTE:

	The ledger is append-only, so there is no reset. Loading a scenario into
	a database that already holds the demo catalog is refused.

SEE ALSO:
  - handlers.go: Handler
  - cmd/server/main.go: -scenario flag
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/stock-ledger/stock"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "opening-stock",
		Name:        "Opening Stock",
		Description: "Five items received into an empty warehouse",
	},
	{
		ID:          "low-stock",
		Name:        "Low Stock",
		Description: "Issues push gloves and tape below minimum and empty the oil",
	},
	{
		ID:          "month-end",
		Name:        "Month End",
		Description: "A month of receipts, issues, corrections and a reversal",
	},
}

// ErrUnknownScenario is returned by Load for an id not in the list.
var ErrUnknownScenario = errors.New("unknown scenario")

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the scenario loaded by this process, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario loads a scenario by ID.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if err := h.Load(r.Context(), req.ScenarioID); err != nil {
		if errors.Is(err, ErrUnknownScenario) {
			writeError(w, http.StatusBadRequest, "unknown scenario", err)
			return
		}
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "loaded",
		"scenario": req.ScenarioID,
	})
}

// Load seeds the demo catalog and posts the scenario's movements.
func (h *Handler) Load(ctx context.Context, id string) error {
	var movements func(context.Context, *scenarioLoader) error
	switch id {
	case "opening-stock":
		movements = loadOpeningStock
	case "low-stock":
		movements = loadLowStock
	case "month-end":
		movements = loadMonthEnd
	default:
		return fmt.Errorf("%w: %q", ErrUnknownScenario, id)
	}

	catalog, ok := h.Store.(stock.CatalogWriter)
	if !ok {
		return fmt.Errorf("store %T does not accept catalog writes", h.Store)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	l := &scenarioLoader{
		id:        id,
		processor: h.Services.Processor,
		base:      previousMonth(h.Now()),
		items:     make(map[string]stock.ItemID),
		reasons:   make(map[string]stock.ReasonID),
	}
	if err := l.seedCatalog(ctx, h.Store, catalog); err != nil {
		return err
	}
	if err := movements(ctx, l); err != nil {
		return err
	}

	h.currentScenario = id
	h.Log.Info().Str("scenario", id).Int("transactions", l.posted).Msg("scenario loaded")
	return nil
}

// =============================================================================
// CATALOG
// =============================================================================

type demoItem struct {
	code, name string
	category   stock.CategoryID
	uom        stock.UOMID
	min        string
}

var demoItems = []demoItem{
	{"BOLT-M8", "Hex bolt M8x40", 1, 1, "200"},
	{"NUT-M8", "Hex nut M8", 1, 1, "200"},
	{"GLOVE-L", "Work gloves, large", 2, 2, "20"},
	{"TAPE-50", "Packing tape 50mm", 3, 1, "30"},
	{"HYD-OIL", "Hydraulic oil", 4, 3, "40"},
}

var demoReasons = []string{"Damaged in storage", "Cycle count correction", "Expired", "Found during audit"}

type scenarioLoader struct {
	id        string
	processor *stock.Processor
	base      time.Time
	actor     stock.ActorID
	items     map[string]stock.ItemID
	reasons   map[string]stock.ReasonID
	posted    int
}

func (l *scenarioLoader) seedCatalog(ctx context.Context, r stock.Reader, w stock.CatalogWriter) error {
	existing, err := r.ListItems(ctx, stock.ItemFilter{})
	if err != nil {
		return err
	}
	for _, item := range existing {
		if item.Code == demoItems[0].code {
			return &stock.ConflictError{Resource: "item", ID: int64(item.ID), Message: "demo catalog already loaded"}
		}
	}

	keeper := &stock.Actor{Name: "Store Keeper"}
	if err := w.SaveActor(ctx, keeper); err != nil {
		return fmt.Errorf("failed to save actor: %w", err)
	}
	if err := w.SaveActor(ctx, &stock.Actor{Name: "Warehouse Supervisor"}); err != nil {
		return fmt.Errorf("failed to save actor: %w", err)
	}
	l.actor = keeper.ID

	for _, text := range demoReasons {
		reason := &stock.Reason{Text: text}
		if err := w.SaveReason(ctx, reason); err != nil {
			return fmt.Errorf("failed to save reason: %w", err)
		}
		l.reasons[text] = reason.ID
	}

	for _, d := range demoItems {
		item := &stock.Item{
			Code:       d.code,
			Name:       d.name,
			CategoryID: d.category,
			UOMID:      d.uom,
			MinStock:   decimal.RequireFromString(d.min),
		}
		if err := w.SaveItem(ctx, item); err != nil {
			return fmt.Errorf("failed to save item %s: %w", d.code, err)
		}
		l.items[d.code] = item.ID
	}
	return nil
}

// =============================================================================
// MOVEMENTS
// =============================================================================

func (l *scenarioLoader) line(code, qty string) stock.LineRequest {
	return stock.LineRequest{ItemID: l.items[code], Quantity: decimal.RequireFromString(qty)}
}

func (l *scenarioLoader) priced(code, qty, price string) stock.LineRequest {
	line := l.line(code, qty)
	p := decimal.RequireFromString(price)
	line.UnitPrice = &p
	return line
}

func (l *scenarioLoader) adjust(code, qty string, dir stock.Direction, reason string) stock.LineRequest {
	line := l.line(code, qty)
	line.Direction = dir
	rid := l.reasons[reason]
	line.AdjustmentReasonID = &rid
	return line
}

// post records one movement on the given day of the base month.
func (l *scenarioLoader) post(ctx context.Context, kind stock.Kind, day int, ref string, lines ...stock.LineRequest) (stock.TransactionID, error) {
	req := stock.MovementRequest{
		Date:           l.base.AddDate(0, 0, day-1).Add(9 * time.Hour),
		ReferenceNo:    ref,
		IdempotencyKey: fmt.Sprintf("scenario:%s:%s", l.id, ref),
		CreatedBy:      l.actor,
		Lines:          lines,
	}

	var id stock.TransactionID
	var err error
	switch kind {
	case stock.KindInward:
		id, err = l.processor.CreateInward(ctx, req)
	case stock.KindOutward:
		id, err = l.processor.CreateOutward(ctx, req)
	default:
		id, err = l.processor.CreateAdjustment(ctx, req)
	}
	if err != nil {
		return 0, fmt.Errorf("scenario %s, %s: %w", l.id, ref, err)
	}
	l.posted++
	return id, nil
}

func loadOpeningStock(ctx context.Context, l *scenarioLoader) error {
	_, err := l.post(ctx, stock.KindInward, 1, "GRN-0001",
		l.priced("BOLT-M8", "1000", "0.12"),
		l.priced("NUT-M8", "1000", "0.05"),
		l.priced("GLOVE-L", "60", "3.40"),
		l.priced("TAPE-50", "48", "1.95"),
		l.priced("HYD-OIL", "180.5", "4.10"),
	)
	return err
}

func loadLowStock(ctx context.Context, l *scenarioLoader) error {
	if err := loadOpeningStock(ctx, l); err != nil {
		return err
	}
	if _, err := l.post(ctx, stock.KindOutward, 3, "ISS-0001",
		l.line("GLOVE-L", "45"),
		l.line("TAPE-50", "20"),
	); err != nil {
		return err
	}
	if _, err := l.post(ctx, stock.KindOutward, 5, "ISS-0002", l.line("HYD-OIL", "180.5")); err != nil {
		return err
	}
	// A second issue refreshes the open glove alert instead of raising another.
	_, err := l.post(ctx, stock.KindOutward, 8, "ISS-0003", l.line("GLOVE-L", "5"))
	return err
}

func loadMonthEnd(ctx context.Context, l *scenarioLoader) error {
	if err := loadOpeningStock(ctx, l); err != nil {
		return err
	}
	steps := []struct {
		kind  stock.Kind
		day   int
		ref   string
		lines []stock.LineRequest
	}{
		{stock.KindOutward, 4, "ISS-0101", []stock.LineRequest{l.line("BOLT-M8", "250"), l.line("NUT-M8", "250")}},
		{stock.KindInward, 9, "GRN-0102", []stock.LineRequest{l.priced("TAPE-50", "24", "1.90")}},
		{stock.KindOutward, 12, "ISS-0103", []stock.LineRequest{l.line("HYD-OIL", "62.25"), l.line("GLOVE-L", "12")}},
		{stock.KindAdjustment, 15, "ADJ-0104", []stock.LineRequest{
			l.adjust("GLOVE-L", "3", stock.DirectionOut, "Damaged in storage"),
			l.adjust("NUT-M8", "14", stock.DirectionIn, "Found during audit"),
		}},
		{stock.KindOutward, 21, "ISS-0105", []stock.LineRequest{l.line("BOLT-M8", "300"), l.line("TAPE-50", "30")}},
	}

	var last stock.TransactionID
	for _, s := range steps {
		id, err := l.post(ctx, s.kind, s.day, s.ref, s.lines...)
		if err != nil {
			return err
		}
		last = id
	}

	// The last issue was keyed in twice the quantity; reverse it.
	if _, err := l.processor.Reverse(ctx, last, l.reasons["Cycle count correction"], l.actor); err != nil {
		return fmt.Errorf("scenario %s, reversal: %w", l.id, err)
	}
	l.posted++
	return nil
}

// previousMonth returns midnight UTC on the first day of the month before t.
func previousMonth(t time.Time) time.Time {
	start := stock.StartOfMonth(t.UTC().Year(), t.UTC().Month())
	return start.AddDate(0, -1, 0)
}
