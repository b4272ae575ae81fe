package sqlstore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stock-ledger/stock"
)

// stores returns SQLite always and MySQL when MYSQL_DSN is set, e.g.
// MYSQL_DSN="root:root@tcp(localhost:3306)/stock_test".
func stores(t *testing.T) map[string]*Store {
	t.Helper()
	out := map[string]*Store{}

	lite, err := NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { lite.Close() })
	out["sqlite"] = lite

	if dsn := os.Getenv("MYSQL_DSN"); dsn != "" {
		my, err := NewMySQL(dsn)
		require.NoError(t, err)
		for _, table := range []string{"stock_alerts", "stock_transaction_lines", "stock_transactions", "current_stock", "items", "reasons", "actors"} {
			_, err := my.DB().Exec("DELETE FROM " + table)
			require.NoError(t, err)
		}
		t.Cleanup(func() { my.Close() })
		out["mysql"] = my
	}
	return out
}

func eachStore(t *testing.T, fn func(t *testing.T, s *Store)) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) { fn(t, s) })
	}
}

var day = time.Date(2025, time.June, 3, 10, 0, 0, 0, time.UTC)

func seedItem(t *testing.T, s *Store, code string) stock.ItemID {
	t.Helper()
	item := &stock.Item{Code: code, Name: code + " name", CategoryID: 2, UOMID: 1, MinStock: decimal.RequireFromString("7.5")}
	require.NoError(t, s.SaveItem(context.Background(), item))
	return item.ID
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open("postgres", "whatever")
	assert.Error(t, err)
}

func TestSaveItem_CreatesZeroAggregate(t *testing.T) {
	eachStore(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		id := seedItem(t, s, "BOLT")

		item, err := s.GetItem(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, item)
		assert.Equal(t, "BOLT", item.Code)
		assert.Equal(t, stock.StatusActive, item.Status)
		assert.True(t, decimal.RequireFromString("7.5").Equal(item.MinStock))

		cur, err := s.GetStock(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, cur)
		assert.True(t, cur.QtyOnHand.IsZero())
		assert.Zero(t, cur.Version)

		missing, err := s.GetItem(ctx, 999)
		require.NoError(t, err)
		assert.Nil(t, missing)
	})
}

func TestInsertTransaction_RoundTrip(t *testing.T) {
	eachStore(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		id := seedItem(t, s, "BOLT")
		reason := &stock.Reason{Text: "Damaged"}
		require.NoError(t, s.SaveReason(ctx, reason))

		price := decimal.RequireFromString("2.25")
		txn := &stock.Transaction{
			Kind: stock.KindAdjustment, Date: day, ReferenceNo: "ADJ-1", IdempotencyKey: "k-1",
			CreatedAt: day, CreatedBy: 1,
			Lines: []stock.Line{{
				ItemID: id, Quantity: decimal.RequireFromString("1.5"), Direction: stock.DirectionOut,
				AdjustmentReasonID: &reason.ID, UnitPrice: &price, TotalAmount: decimal.RequireFromString("3.375"),
				CreatedAt: day, CreatedBy: 1,
			}},
		}
		require.NoError(t, s.WithTx(ctx, func(tx stock.Tx) error { return tx.InsertTransaction(ctx, txn) }))
		require.NotZero(t, txn.ID)
		require.NotZero(t, txn.Lines[0].ID)

		got, err := s.GetTransaction(ctx, txn.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, stock.KindAdjustment, got.Kind)
		assert.True(t, got.Date.Equal(day))
		assert.Equal(t, "ADJ-1", got.ReferenceNo)
		require.Len(t, got.Lines, 1)
		ln := got.Lines[0]
		assert.Equal(t, stock.DirectionOut, ln.Direction)
		assert.True(t, decimal.RequireFromString("1.5").Equal(ln.Quantity))
		assert.True(t, decimal.RequireFromString("3.375").Equal(ln.TotalAmount))
		require.NotNil(t, ln.UnitPrice)
		assert.True(t, price.Equal(*ln.UnitPrice))
		require.NotNil(t, ln.AdjustmentReasonID)
		assert.Equal(t, reason.ID, *ln.AdjustmentReasonID)

		byKey, err := s.FindTransactionByKey(ctx, "k-1")
		require.NoError(t, err)
		require.NotNil(t, byKey)
		assert.Equal(t, txn.ID, byKey.ID)

		byRef, err := s.FindTransactionByReference(ctx, stock.KindAdjustment, "ADJ-1")
		require.NoError(t, err)
		require.NotNil(t, byRef)

		lines, err := s.LedgerLines(ctx, id, time.Time{}, time.Time{})
		require.NoError(t, err)
		require.Len(t, lines, 1)
		assert.Equal(t, "Damaged", lines[0].ReasonText)
		assert.Equal(t, stock.KindAdjustment, lines[0].Kind)

		inUse, err := s.ReasonInUse(ctx, reason.ID)
		require.NoError(t, err)
		assert.True(t, inUse)
		hasLines, err := s.ItemHasLines(ctx, id)
		require.NoError(t, err)
		assert.True(t, hasLines)
	})
}

func TestInsertTransaction_DuplicateKey(t *testing.T) {
	eachStore(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		id := seedItem(t, s, "BOLT")
		newTxn := func() *stock.Transaction {
			return &stock.Transaction{Kind: stock.KindInward, Date: day, IdempotencyKey: "dup", CreatedAt: day, CreatedBy: 1,
				Lines: []stock.Line{{ItemID: id, Quantity: stock.Qty(1), Direction: stock.DirectionIn, TotalAmount: decimal.Zero, CreatedAt: day, CreatedBy: 1}}}
		}

		require.NoError(t, s.WithTx(ctx, func(tx stock.Tx) error { return tx.InsertTransaction(ctx, newTxn()) }))
		err := s.WithTx(ctx, func(tx stock.Tx) error { return tx.InsertTransaction(ctx, newTxn()) })
		assert.ErrorIs(t, err, stock.ErrDuplicateIdempotencyKey)

		// transactions without a key never collide
		for i := 0; i < 2; i++ {
			txn := newTxn()
			txn.IdempotencyKey = ""
			require.NoError(t, s.WithTx(ctx, func(tx stock.Tx) error { return tx.InsertTransaction(ctx, txn) }))
		}
	})
}

func TestApplyStock_CompareAndSwap(t *testing.T) {
	// GIVEN: An aggregate row at version 0
	// WHEN: Two writers both read version 0 and apply
	// THEN: The second one gets ErrConcurrentModification
	eachStore(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		id := seedItem(t, s, "BOLT")
		stale, err := s.GetStock(ctx, id)
		require.NoError(t, err)

		apply := func(qty int64) error {
			return s.WithTx(ctx, func(tx stock.Tx) error {
				return tx.ApplyStock(ctx, stale, stock.CurrentStock{ItemID: id, QtyOnHand: stock.Qty(qty), Version: stale.Version + 1, UpdatedAt: day})
			})
		}
		require.NoError(t, apply(10))
		assert.ErrorIs(t, apply(20), stock.ErrConcurrentModification)

		cur, err := s.GetStock(ctx, id)
		require.NoError(t, err)
		assert.True(t, stock.Qty(10).Equal(cur.QtyOnHand))
		assert.EqualValues(t, 1, cur.Version)
	})
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	eachStore(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		id := seedItem(t, s, "BOLT")
		boom := errors.New("boom")

		err := s.WithTx(ctx, func(tx stock.Tx) error {
			txn := &stock.Transaction{Kind: stock.KindInward, Date: day, CreatedAt: day, CreatedBy: 1,
				Lines: []stock.Line{{ItemID: id, Quantity: stock.Qty(5), Direction: stock.DirectionIn, TotalAmount: decimal.Zero, CreatedAt: day, CreatedBy: 1}}}
			if err := tx.InsertTransaction(ctx, txn); err != nil {
				return err
			}
			cur, err := tx.LockStock(ctx, id)
			if err != nil {
				return err
			}
			if err := tx.ApplyStock(ctx, cur, stock.CurrentStock{ItemID: id, QtyOnHand: stock.Qty(5), Version: cur.Version + 1, UpdatedAt: day}); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		txns, err := s.ListTransactions(ctx, stock.TransactionFilter{})
		require.NoError(t, err)
		assert.Empty(t, txns)
		cur, err := s.GetStock(ctx, id)
		require.NoError(t, err)
		assert.True(t, cur.QtyOnHand.IsZero())
	})
}

func TestAlerts_OneOpenPerItem(t *testing.T) {
	eachStore(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		id := seedItem(t, s, "BOLT")
		insert := func() (*stock.Alert, error) {
			a := &stock.Alert{ItemID: id, QtyOnHand: stock.Qty(3), MinStock: stock.Qty(10), AlertDate: day}
			return a, s.WithTx(ctx, func(tx stock.Tx) error { return tx.InsertAlert(ctx, a) })
		}

		first, err := insert()
		require.NoError(t, err)
		_, err = insert()
		assert.Error(t, err, "a second open alert for the item is refused")

		var acked bool
		require.NoError(t, s.WithTx(ctx, func(tx stock.Tx) error {
			var err error
			acked, err = tx.AcknowledgeAlert(ctx, first.ID, 1, day)
			return err
		}))
		assert.True(t, acked)

		require.NoError(t, s.WithTx(ctx, func(tx stock.Tx) error {
			var err error
			acked, err = tx.AcknowledgeAlert(ctx, first.ID, 1, day)
			return err
		}))
		assert.False(t, acked, "already closed")

		second, err := insert()
		require.NoError(t, err, "a new alert may open once the previous one is closed")

		open, err := s.OpenAlertForItem(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, open)
		assert.Equal(t, second.ID, open.ID)

		closed := true
		history, err := s.ListAlerts(ctx, stock.AlertFilter{Acknowledged: &closed})
		require.NoError(t, err)
		require.Len(t, history, 1)
		require.NotNil(t, history[0].AcknowledgedBy)
		assert.EqualValues(t, 1, *history[0].AcknowledgedBy)
	})
}
