package stock_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stock-ledger/stock"
)

// =============================================================================
// END-TO-END SCENARIOS
// =============================================================================

func TestProcessor_ReceiveIssueAndAlert(t *testing.T) {
	// GIVEN: An item with minimum stock 50
	// WHEN: 100 received, then 30 issued twice
	// THEN: On hand goes 100 -> 70 -> 40 and one alert opens at 40
	eachBackend(t, func(t *testing.T, f *fixture) {
		bolt := f.item(t, "BOLT", 50)

		f.inward(t, june(2), line(bolt, 100))
		assertQty(t, 100, f.onHand(t, bolt))
		assert.Empty(t, f.openAlerts(t))

		f.outward(t, june(3), line(bolt, 30))
		assertQty(t, 70, f.onHand(t, bolt))
		assert.Empty(t, f.openAlerts(t), "70 is not below 50")

		f.outward(t, june(4), line(bolt, 30))
		assertQty(t, 40, f.onHand(t, bolt))

		alerts := f.openAlerts(t)
		require.Len(t, alerts, 1)
		assert.Equal(t, bolt, alerts[0].ItemID)
		assertQty(t, 40, alerts[0].QtyOnHand)
		assertQty(t, 50, alerts[0].MinStock)
		assertQty(t, 10, alerts[0].Shortage())

		assert.Len(t, f.events.OfType(stock.EventMovementCommitted), 3)
		assert.Len(t, f.events.OfType(stock.EventAlertRaised), 1)
		f.assertConsistent(t)
	})
}

func TestProcessor_InsufficientStockRejectsWholeRequest(t *testing.T) {
	// GIVEN: 10 on hand
	// WHEN: Issuing 15
	// THEN: InsufficientStockError carries available and requested, nothing is written
	eachBackend(t, func(t *testing.T, f *fixture) {
		bolt := f.item(t, "BOLT", 0)
		f.inward(t, june(2), line(bolt, 10))

		_, err := f.svc.Processor.CreateOutward(f.ctx, f.request(june(3), line(bolt, 15)))

		var insufficient *stock.InsufficientStockError
		require.ErrorAs(t, err, &insufficient)
		assert.Equal(t, bolt, insufficient.ItemID)
		assert.Equal(t, "BOLT", insufficient.Code)
		assertQty(t, 10, insufficient.Available)
		assertQty(t, 15, insufficient.Requested)
		assert.True(t, stock.IsClientError(err))

		assertQty(t, 10, f.onHand(t, bolt))
		assert.Equal(t, 1, f.transactionCount(t))
		f.assertConsistent(t)
	})
}

func TestProcessor_MultiLineFailureLeavesNoPartialWrite(t *testing.T) {
	// GIVEN: Two items, only the first has enough stock
	// WHEN: One outward request issues both
	// THEN: Neither aggregate moves and no transaction exists
	eachBackend(t, func(t *testing.T, f *fixture) {
		bolt := f.item(t, "BOLT", 0)
		nut := f.item(t, "NUT", 0)
		f.inward(t, june(2), line(bolt, 100), line(nut, 5))

		_, err := f.svc.Processor.CreateOutward(f.ctx, f.request(june(3), line(bolt, 50), line(nut, 6)))
		require.ErrorIs(t, err, stock.ErrInsufficientStock)

		assertQty(t, 100, f.onHand(t, bolt))
		assertQty(t, 5, f.onHand(t, nut))
		assert.Equal(t, 1, f.transactionCount(t))
	})
}

func TestProcessor_SameItemLinesCheckedCumulatively(t *testing.T) {
	// GIVEN: 10 on hand
	// WHEN: One request issues the same item twice, 6 + 6
	// THEN: The second line fails against the 4 left by the first
	eachBackend(t, func(t *testing.T, f *fixture) {
		bolt := f.item(t, "BOLT", 0)
		f.inward(t, june(2), line(bolt, 10))

		_, err := f.svc.Processor.CreateOutward(f.ctx, f.request(june(3), line(bolt, 6), line(bolt, 6)))

		var insufficient *stock.InsufficientStockError
		require.ErrorAs(t, err, &insufficient)
		assertQty(t, 4, insufficient.Available)
		assertQty(t, 6, insufficient.Requested)
		assertQty(t, 10, f.onHand(t, bolt))

		// 6 + 4 fits exactly
		f.outward(t, june(3), line(bolt, 6), line(bolt, 4))
		assertQty(t, 0, f.onHand(t, bolt))
		f.assertConsistent(t)
	})
}

func TestProcessor_AdjustmentBothDirections(t *testing.T) {
	// GIVEN: 100 on hand, minimum 80
	// WHEN: An adjustment removes 25 damaged units and finds 3 more
	// THEN: On hand is 78, the decrease raises an alert, lines keep their reason
	eachBackend(t, func(t *testing.T, f *fixture) {
		bolt := f.item(t, "BOLT", 80)
		nut := f.item(t, "NUT", 0)
		f.inward(t, june(2), line(bolt, 100))

		id := f.adjust(t, june(5), f.adjLine(bolt, 25, stock.DirectionOut), f.adjLine(nut, 3, stock.DirectionIn))

		assertQty(t, 75, f.onHand(t, bolt))
		assertQty(t, 3, f.onHand(t, nut))
		require.Len(t, f.openAlerts(t), 1)

		detail, err := f.svc.Ledger.GetTransaction(f.ctx, id)
		require.NoError(t, err)
		assert.Equal(t, stock.KindAdjustment, detail.Kind)
		require.Len(t, detail.Lines, 2)
		assert.Equal(t, stock.DirectionOut, detail.Lines[0].Direction)
		assert.Equal(t, stock.DirectionIn, detail.Lines[1].Direction)
		assert.Equal(t, "Damaged in storage", detail.Reasons[f.reason])
		assertQty(t, -22, detail.NetQuantity())
		f.assertConsistent(t)
	})
}

func TestProcessor_AdjustmentCannotGoNegative(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		bolt := f.item(t, "BOLT", 0)
		f.inward(t, june(2), line(bolt, 5))

		_, err := f.svc.Processor.CreateAdjustment(f.ctx, f.request(june(3), f.adjLine(bolt, 6, stock.DirectionOut)))
		assert.ErrorIs(t, err, stock.ErrInsufficientStock)
		assertQty(t, 5, f.onHand(t, bolt))
	})
}

func TestProcessor_LineTotalsAndPrices(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		bolt := f.item(t, "BOLT", 0)
		price := decimal.RequireFromString("0.125")
		req := f.request(june(2), stock.LineRequest{ItemID: bolt, Quantity: decimal.RequireFromString("12.5"), UnitPrice: &price})
		req.ReferenceNo = "GRN-1"
		req.Remarks = "first delivery"

		id, err := f.svc.Processor.CreateInward(f.ctx, req)
		require.NoError(t, err)

		detail, err := f.svc.Ledger.GetTransaction(f.ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "GRN-1", detail.ReferenceNo)
		assert.Equal(t, "first delivery", detail.Remarks)
		assert.Equal(t, f.actor, detail.CreatedBy)
		require.Len(t, detail.Lines, 1)
		assert.True(t, decimal.RequireFromString("1.5625").Equal(detail.Lines[0].TotalAmount), detail.Lines[0].TotalAmount.String())
		require.NotNil(t, detail.Lines[0].UnitPrice)
		assert.True(t, price.Equal(*detail.Lines[0].UnitPrice))
		assert.True(t, decimal.RequireFromString("12.5").Equal(f.onHand(t, bolt)))
	})
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestProcessor_Validation(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		bolt := f.item(t, "BOLT", 0)
		f.inward(t, june(1), line(bolt, 100))

		inactive := &stock.Reason{Text: "Retired", Status: stock.StatusInactive}
		require.NoError(t, f.store.SaveReason(f.ctx, inactive))
		ghost := &stock.Actor{Name: "Former employee", Status: stock.StatusInactive}
		require.NoError(t, f.store.SaveActor(f.ctx, ghost))

		negative := decimal.NewFromInt(-1)
		tests := []struct {
			name   string
			kind   stock.Kind
			mutate func(*stock.MovementRequest)
			field  string
		}{
			{"no lines", stock.KindInward, func(r *stock.MovementRequest) { r.Lines = nil }, "lines"},
			{"zero quantity", stock.KindInward, func(r *stock.MovementRequest) { r.Lines[0].Quantity = decimal.Zero }, "lines[0].quantity"},
			{"negative quantity", stock.KindOutward, func(r *stock.MovementRequest) { r.Lines[0].Quantity = stock.Qty(-3) }, "lines[0].quantity"},
			{"negative price", stock.KindInward, func(r *stock.MovementRequest) { r.Lines[0].UnitPrice = &negative }, "lines[0].unit_price"},
			{"future date", stock.KindInward, func(r *stock.MovementRequest) { r.Date = testNow.AddDate(0, 0, 1) }, "date"},
			{"missing date", stock.KindInward, func(r *stock.MovementRequest) { r.Date = time.Time{} }, "date"},
			{"missing actor", stock.KindInward, func(r *stock.MovementRequest) { r.CreatedBy = 0 }, "created_by"},
			{"unknown actor", stock.KindInward, func(r *stock.MovementRequest) { r.CreatedBy = 999 }, "created_by"},
			{"inactive actor", stock.KindInward, func(r *stock.MovementRequest) { r.CreatedBy = ghost.ID }, "created_by"},
			{"reference too long", stock.KindInward, func(r *stock.MovementRequest) { r.ReferenceNo = strings.Repeat("x", 51) }, "reference_no"},
			{"inward with outward direction", stock.KindInward, func(r *stock.MovementRequest) { r.Lines[0].Direction = stock.DirectionOut }, "lines[0].direction"},
			{"outward with reason", stock.KindOutward, func(r *stock.MovementRequest) { id := f.reason; r.Lines[0].AdjustmentReasonID = &id }, "lines[0].adjustment_reason_id"},
			{"adjustment without reason", stock.KindAdjustment, func(r *stock.MovementRequest) {
				r.Lines[0].Direction = stock.DirectionOut
			}, "lines[0].adjustment_reason_id"},
			{"adjustment without direction", stock.KindAdjustment, func(r *stock.MovementRequest) {
				id := f.reason
				r.Lines[0].AdjustmentReasonID = &id
			}, "lines[0].direction"},
			{"inactive reason", stock.KindAdjustment, func(r *stock.MovementRequest) {
				id := inactive.ID
				r.Lines[0].AdjustmentReasonID = &id
				r.Lines[0].Direction = stock.DirectionIn
			}, "adjustment_reason_id"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				req := f.request(june(2), line(bolt, 1))
				tt.mutate(&req)

				_, err := create(f, tt.kind, req)

				var verr *stock.ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Contains(t, fieldNames(verr), tt.field)
			})
		}

		assert.Equal(t, 1, f.transactionCount(t), "rejected requests write nothing")
		assertQty(t, 100, f.onHand(t, bolt))
	})
}

func TestProcessor_UnknownAndInactiveItems(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		retired := &stock.Item{Code: "OLD", Name: "Old part", MinStock: stock.Qty(0), Status: stock.StatusInactive}
		require.NoError(t, f.store.SaveItem(f.ctx, retired))

		_, err := f.svc.Processor.CreateInward(f.ctx, f.request(june(2), line(999, 1)))
		var nf *stock.NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, "item", nf.Resource)
		assert.EqualValues(t, 999, nf.ID)

		_, err = f.svc.Processor.CreateInward(f.ctx, f.request(june(2), line(retired.ID, 1)))
		var inactive *stock.InactiveItemError
		require.ErrorAs(t, err, &inactive)
		assert.Equal(t, "OLD", inactive.Code)

		unknownReason := stock.ReasonID(999)
		bolt := f.item(t, "BOLT", 0)
		_, err = f.svc.Processor.CreateAdjustment(f.ctx, f.request(june(2), stock.LineRequest{
			ItemID: bolt, Quantity: stock.Qty(1), Direction: stock.DirectionIn, AdjustmentReasonID: &unknownReason,
		}))
		assert.ErrorIs(t, err, stock.ErrNotFound)
		assert.Equal(t, 0, f.transactionCount(t))
	})
}

func TestProcessor_IdempotencyKey(t *testing.T) {
	// GIVEN: A committed receipt with key GRN-7
	// WHEN: The same key is submitted again
	// THEN: ConflictError naming the first transaction, stock counted once
	eachBackend(t, func(t *testing.T, f *fixture) {
		bolt := f.item(t, "BOLT", 0)
		req := f.request(june(2), line(bolt, 10))
		req.IdempotencyKey = "GRN-7"

		first, err := f.svc.Processor.CreateInward(f.ctx, req)
		require.NoError(t, err)

		_, err = f.svc.Processor.CreateInward(f.ctx, req)
		var conflict *stock.ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.EqualValues(t, first, conflict.ID)

		assertQty(t, 10, f.onHand(t, bolt))
	})
}

// =============================================================================
// REVERSAL
// =============================================================================

func TestProcessor_Reverse(t *testing.T) {
	// GIVEN: 100 received, 30 issued
	// WHEN: The issue is reversed
	// THEN: A compensating adjustment restores 100; history keeps all three
	eachBackend(t, func(t *testing.T, f *fixture) {
		bolt := f.item(t, "BOLT", 0)
		f.inward(t, june(2), line(bolt, 100))
		issue := f.outward(t, june(3), line(bolt, 30))

		rev, err := f.svc.Processor.Reverse(f.ctx, issue, f.reason, f.actor)
		require.NoError(t, err)
		assertQty(t, 100, f.onHand(t, bolt))

		detail, err := f.svc.Ledger.GetTransaction(f.ctx, rev)
		require.NoError(t, err)
		assert.Equal(t, stock.KindAdjustment, detail.Kind)
		assert.Equal(t, stock.ReversalPrefix+issue.String(), detail.ReferenceNo)
		require.Len(t, detail.Lines, 1)
		assert.Equal(t, stock.DirectionIn, detail.Lines[0].Direction)
		require.NotNil(t, detail.Lines[0].AdjustmentReasonID)
		assert.Equal(t, f.reason, *detail.Lines[0].AdjustmentReasonID)
		assert.Equal(t, 3, f.transactionCount(t))

		// once only
		_, err = f.svc.Processor.Reverse(f.ctx, issue, f.reason, f.actor)
		assert.ErrorIs(t, err, stock.ErrConflict)

		// a reversal is final
		_, err = f.svc.Processor.Reverse(f.ctx, rev, f.reason, f.actor)
		assert.ErrorIs(t, err, stock.ErrConflict)

		_, err = f.svc.Processor.Reverse(f.ctx, 999, f.reason, f.actor)
		assert.ErrorIs(t, err, stock.ErrNotFound)
		f.assertConsistent(t)
	})
}

func TestProcessor_ReverseReceiptAlreadyConsumed(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		bolt := f.item(t, "BOLT", 0)
		receipt := f.inward(t, june(2), line(bolt, 100))
		f.outward(t, june(3), line(bolt, 90))

		_, err := f.svc.Processor.Reverse(f.ctx, receipt, f.reason, f.actor)
		assert.ErrorIs(t, err, stock.ErrInsufficientStock)
		assertQty(t, 10, f.onHand(t, bolt))
	})
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestProcessor_ConcurrentOutwardNeverOversells(t *testing.T) {
	// GIVEN: 10 on hand, minimum 5
	// WHEN: 20 goroutines each issue 1 at once
	// THEN: Exactly 10 succeed, on hand is 0, exactly one alert is open
	eachBackend(t, func(t *testing.T, f *fixture) {
		bolt := f.item(t, "BOLT", 5)
		f.inward(t, june(2), line(bolt, 10))

		var wg sync.WaitGroup
		var mu sync.Mutex
		succeeded, insufficient := 0, 0
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.svc.Processor.CreateOutward(f.ctx, f.request(june(3), line(bolt, 1)))
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					succeeded++
				case errors.Is(err, stock.ErrInsufficientStock):
					insufficient++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 10, succeeded)
		assert.Equal(t, 10, insufficient)
		assertQty(t, 0, f.onHand(t, bolt))
		assert.Len(t, f.openAlerts(t), 1)
		f.assertConsistent(t)
	})
}

// flakyStore loses the compare-and-swap for the first failures attempts.
type flakyStore struct {
	stock.Store
	mu       sync.Mutex
	failures int
	attempts int
}

func (s *flakyStore) WithTx(ctx context.Context, fn func(stock.Tx) error) error {
	return s.Store.WithTx(ctx, func(tx stock.Tx) error {
		return fn(&flakyTx{Tx: tx, store: s})
	})
}

type flakyTx struct {
	stock.Tx
	store *flakyStore
}

func (t *flakyTx) ApplyStock(ctx context.Context, prev *stock.CurrentStock, next stock.CurrentStock) error {
	t.store.mu.Lock()
	t.store.attempts++
	fail := t.store.attempts <= t.store.failures
	t.store.mu.Unlock()
	if fail {
		return stock.ErrConcurrentModification
	}
	return t.Tx.ApplyStock(ctx, prev, next)
}

func TestProcessor_RetriesLostUpdates(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		bolt := f.item(t, "BOLT", 0)
		flaky := &flakyStore{Store: f.store, failures: 2}
		svc := stock.New(flaky, stock.Options{Now: f.svc.Processor.Now})

		_, err := svc.Processor.CreateInward(f.ctx, f.request(june(2), line(bolt, 10)))
		require.NoError(t, err)
		assert.Equal(t, 3, flaky.attempts)
		assertQty(t, 10, f.onHand(t, bolt))
		assert.Equal(t, 1, f.transactionCount(t), "failed attempts are rolled back")
	})
}

func TestProcessor_GivesUpAfterMaxRetries(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		bolt := f.item(t, "BOLT", 0)
		flaky := &flakyStore{Store: f.store, failures: 100}
		svc := stock.New(flaky, stock.Options{Now: f.svc.Processor.Now, MaxRetries: 2})

		_, err := svc.Processor.CreateInward(f.ctx, f.request(june(2), line(bolt, 10)))

		var cerr *stock.ConcurrencyError
		require.ErrorAs(t, err, &cerr)
		assert.Equal(t, 3, cerr.Attempts)
		assert.Equal(t, []stock.ItemID{bolt}, cerr.ItemIDs)
		assert.True(t, stock.IsRetryable(err))
		assertQty(t, 0, f.onHand(t, bolt))
		assert.Equal(t, 0, f.transactionCount(t))
	})
}

func TestProcessor_NoRetriesFailsOnFirstLostRace(t *testing.T) {
	// GIVEN: A service built with NoRetries over a store that always loses the race
	// WHEN: Creating an inward
	// THEN: The request fails after a single attempt and nothing is stored
	eachBackend(t, func(t *testing.T, f *fixture) {
		bolt := f.item(t, "BOLT", 0)
		flaky := &flakyStore{Store: f.store, failures: 100}
		svc := stock.New(flaky, stock.Options{Now: f.svc.Processor.Now, MaxRetries: stock.NoRetries})
		require.Equal(t, 0, svc.Processor.MaxRetries)

		_, err := svc.Processor.CreateInward(f.ctx, f.request(june(2), line(bolt, 10)))

		var cerr *stock.ConcurrencyError
		require.ErrorAs(t, err, &cerr)
		assert.Equal(t, 1, cerr.Attempts)
		assert.Equal(t, 1, flaky.attempts)
		assert.Equal(t, 0, f.transactionCount(t))
	})
}

func TestNew_ComponentsShareOneLocker(t *testing.T) {
	// GIVEN: Options with an explicit locker and zero MaxRetries
	// WHEN: Building the services
	// THEN: Every component that locks items uses that locker, retries default
	eachBackend(t, func(t *testing.T, f *fixture) {
		locker := stock.NewLocalLocker()
		svc := stock.New(f.store, stock.Options{Locker: locker})

		assert.Same(t, locker, svc.Processor.Locker)
		assert.Same(t, locker, svc.Alerts.Locker)
		assert.Same(t, locker, svc.Catalog.Locker)
		assert.Same(t, svc.Alerts, svc.Processor.Alerts)
		assert.Equal(t, stock.DefaultMaxRetries, svc.Processor.MaxRetries)
	})
}

func TestNewAlertEngine_ReconcileLocksItems(t *testing.T) {
	// GIVEN: A standalone alert engine and an item below minimum
	// WHEN: Reconciling
	// THEN: The engine goes through its locker and keeps one open alert
	eachBackend(t, func(t *testing.T, f *fixture) {
		bolt := f.item(t, "BOLT", 50)
		f.inward(t, june(2), line(bolt, 10))

		locker := &countingLocker{Locker: stock.NewLocalLocker()}
		engine := stock.NewAlertEngine(f.store, locker)
		require.NotNil(t, engine.Locker)

		_, err := engine.Reconcile(f.ctx)
		require.NoError(t, err)
		assert.Positive(t, locker.calls)
		assert.Len(t, f.openAlerts(t), 1)
	})
}

type countingLocker struct {
	stock.Locker
	mu    sync.Mutex
	calls int
}

func (l *countingLocker) Lock(ctx context.Context, keys []string) (func(), error) {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
	return l.Locker.Lock(ctx, keys)
}

// =============================================================================
// STORAGE FAILURE
// =============================================================================

var errDiskFull = errors.New("disk full")

// brokenAlertStore fails every alert insert.
type brokenAlertStore struct{ stock.Store }

func (s brokenAlertStore) WithTx(ctx context.Context, fn func(stock.Tx) error) error {
	return s.Store.WithTx(ctx, func(tx stock.Tx) error { return fn(brokenAlertTx{tx}) })
}

type brokenAlertTx struct{ stock.Tx }

func (brokenAlertTx) InsertAlert(context.Context, *stock.Alert) error { return errDiskFull }

func TestProcessor_StorageFailureRollsBackEverything(t *testing.T) {
	// GIVEN: A store whose alert insert fails
	// WHEN: An issue drops the item below minimum
	// THEN: StorageError, and the header, lines and aggregate are all rolled back
	eachBackend(t, func(t *testing.T, f *fixture) {
		bolt := f.item(t, "BOLT", 50)
		f.inward(t, june(2), line(bolt, 60))

		svc := stock.New(brokenAlertStore{f.store}, stock.Options{Now: f.svc.Processor.Now})
		_, err := svc.Processor.CreateOutward(f.ctx, f.request(june(3), line(bolt, 20)))

		var serr *stock.StorageError
		require.ErrorAs(t, err, &serr)
		assert.ErrorIs(t, err, errDiskFull)
		assert.ErrorIs(t, err, stock.ErrStorage)

		assertQty(t, 60, f.onHand(t, bolt))
		assert.Equal(t, 1, f.transactionCount(t))
		assert.Empty(t, f.openAlerts(t))
		f.assertConsistent(t)
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func create(f *fixture, kind stock.Kind, req stock.MovementRequest) (stock.TransactionID, error) {
	switch kind {
	case stock.KindInward:
		return f.svc.Processor.CreateInward(f.ctx, req)
	case stock.KindOutward:
		return f.svc.Processor.CreateOutward(f.ctx, req)
	default:
		return f.svc.Processor.CreateAdjustment(f.ctx, req)
	}
}

func fieldNames(err *stock.ValidationError) []string {
	names := make([]string, len(err.Fields))
	for i, fe := range err.Fields {
		names[i] = fe.Field
	}
	return names
}
