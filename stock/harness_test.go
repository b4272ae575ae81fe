package stock_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stock-ledger/events"
	"github.com/warp/stock-ledger/stock"
	"github.com/warp/stock-ledger/stock/store"
	"github.com/warp/stock-ledger/store/sqlstore"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// testNow is the fixed clock every fixture runs on. Movements are dated in
// June 2025 on or before it.
var testNow = time.Date(2025, time.June, 20, 15, 0, 0, 0, time.UTC)

type catalogStore interface {
	stock.Store
	stock.CatalogWriter
}

type backend struct {
	name string
	open func(t *testing.T) catalogStore
}

func backends() []backend {
	return []backend{
		{"memory", func(t *testing.T) catalogStore { return store.NewMemory() }},
		{"sqlite", func(t *testing.T) catalogStore {
			s, err := sqlstore.NewSQLite(":memory:")
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		}},
	}
}

// eachBackend runs fn once per store implementation.
func eachBackend(t *testing.T, fn func(t *testing.T, f *fixture)) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			fn(t, newFixture(t, b.open(t)))
		})
	}
}

type fixture struct {
	ctx    context.Context
	store  catalogStore
	svc    *stock.Services
	events *events.Recorder

	actor  stock.ActorID
	reason stock.ReasonID
}

func newFixture(t *testing.T, s catalogStore) *fixture {
	t.Helper()
	f := &fixture{ctx: context.Background(), store: s, events: &events.Recorder{}}
	f.svc = stock.New(s, stock.Options{
		Events: f.events,
		Now:    func() time.Time { return testNow },
	})

	actor := &stock.Actor{Name: "Store Keeper"}
	require.NoError(t, s.SaveActor(f.ctx, actor))
	f.actor = actor.ID

	reason := &stock.Reason{Text: "Damaged in storage"}
	require.NoError(t, s.SaveReason(f.ctx, reason))
	f.reason = reason.ID
	return f
}

func (f *fixture) item(t *testing.T, code string, minStock int64) stock.ItemID {
	t.Helper()
	item := &stock.Item{Code: code, Name: code, CategoryID: 1, UOMID: 1, MinStock: stock.Qty(minStock)}
	require.NoError(t, f.store.SaveItem(f.ctx, item))
	return item.ID
}

// june returns 09:00 UTC on the given day of June 2025.
func june(day int) time.Time {
	return time.Date(2025, time.June, day, 9, 0, 0, 0, time.UTC)
}

func line(item stock.ItemID, qty int64) stock.LineRequest {
	return stock.LineRequest{ItemID: item, Quantity: stock.Qty(qty)}
}

func (f *fixture) adjLine(item stock.ItemID, qty int64, dir stock.Direction) stock.LineRequest {
	r := f.reason
	return stock.LineRequest{ItemID: item, Quantity: stock.Qty(qty), Direction: dir, AdjustmentReasonID: &r}
}

func (f *fixture) request(date time.Time, lines ...stock.LineRequest) stock.MovementRequest {
	return stock.MovementRequest{Date: date, CreatedBy: f.actor, Lines: lines}
}

func (f *fixture) inward(t *testing.T, date time.Time, lines ...stock.LineRequest) stock.TransactionID {
	t.Helper()
	id, err := f.svc.Processor.CreateInward(f.ctx, f.request(date, lines...))
	require.NoError(t, err)
	return id
}

func (f *fixture) outward(t *testing.T, date time.Time, lines ...stock.LineRequest) stock.TransactionID {
	t.Helper()
	id, err := f.svc.Processor.CreateOutward(f.ctx, f.request(date, lines...))
	require.NoError(t, err)
	return id
}

func (f *fixture) adjust(t *testing.T, date time.Time, lines ...stock.LineRequest) stock.TransactionID {
	t.Helper()
	id, err := f.svc.Processor.CreateAdjustment(f.ctx, f.request(date, lines...))
	require.NoError(t, err)
	return id
}

func (f *fixture) onHand(t *testing.T, item stock.ItemID) stock.Quantity {
	t.Helper()
	qty, err := f.svc.Ledger.GetOnHand(f.ctx, item)
	require.NoError(t, err)
	return qty
}

func (f *fixture) openAlerts(t *testing.T) []stock.Alert {
	t.Helper()
	open := false
	alerts, err := f.svc.Alerts.ListAlerts(f.ctx, stock.AlertFilter{Acknowledged: &open})
	require.NoError(t, err)
	return alerts
}

func (f *fixture) transactionCount(t *testing.T) int {
	t.Helper()
	txns, err := f.svc.Ledger.ListTransactions(f.ctx, stock.TransactionFilter{})
	require.NoError(t, err)
	return len(txns)
}

// assertConsistent checks the sum invariant for every item.
func (f *fixture) assertConsistent(t *testing.T) {
	t.Helper()
	drifts, err := f.svc.Ledger.VerifyAggregates(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, drifts, "aggregate must equal the replayed ledger")
}

func assertQty(t *testing.T, want int64, got stock.Quantity) {
	t.Helper()
	assert.Truef(t, stock.Qty(want).Equal(got), "want %d, got %s", want, got.String())
}
