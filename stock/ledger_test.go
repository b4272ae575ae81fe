package stock_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stock-ledger/stock"
	"github.com/warp/stock-ledger/stock/store"
	"github.com/warp/stock-ledger/store/sqlstore"
)

// =============================================================================
// BALANCE RECONSTRUCTION
// =============================================================================

func TestLedger_BalanceAsOf(t *testing.T) {
	// GIVEN: 100 in on the 2nd, 30 out on the 5th, 10 damaged on the 10th
	// WHEN: Asking for the balance at several points in time
	// THEN: Each answer is the sum of lines dated at or before that instant
	eachBackend(t, func(t *testing.T, f *fixture) {
		bolt := f.item(t, "BOLT", 0)
		f.inward(t, june(2), line(bolt, 100))
		f.outward(t, june(5), line(bolt, 30))
		f.adjust(t, june(10), f.adjLine(bolt, 10, stock.DirectionOut))

		tests := []struct {
			at   time.Time
			want int64
		}{
			{june(1), 0},
			{june(2), 100},
			{june(2).Add(-time.Nanosecond), 0},
			{june(4), 100},
			{june(5), 70},
			{june(9), 70},
			{june(10), 60},
			{testNow, 60},
		}
		for _, tt := range tests {
			got, err := f.svc.Ledger.BalanceAsOf(f.ctx, bolt, tt.at)
			require.NoError(t, err)
			assertQty(t, tt.want, got)
		}

		// no lines at all
		nut := f.item(t, "NUT", 0)
		got, err := f.svc.Ledger.BalanceAsOf(f.ctx, nut, testNow)
		require.NoError(t, err)
		assertQty(t, 0, got)
	})
}

func TestLedger_DatesOutsideLedgerRange(t *testing.T) {
	// GIVEN: An item with 100 received in June
	// WHEN: Posting movements dated in year 1500 and 0202, then querying far bounds
	// THEN: Both are rejected on the date, and the ledger still agrees with the aggregate
	eachBackend(t, func(t *testing.T, f *fixture) {
		bolt := f.item(t, "BOLT", 0)
		f.inward(t, june(2), line(bolt, 100))

		for _, date := range []time.Time{
			time.Date(1500, time.January, 1, 0, 0, 0, 0, time.UTC),
			time.Date(202, time.May, 1, 0, 0, 0, 0, time.UTC),
			stock.EarliestDate.Add(-time.Nanosecond),
		} {
			_, err := f.svc.Processor.CreateInward(f.ctx, f.request(date, line(bolt, 10)))
			var verr *stock.ValidationError
			require.ErrorAs(t, err, &verr, date.String())
			assert.Equal(t, []string{"date"}, fieldNames(verr))
		}

		_, err := f.svc.Processor.CreateInward(f.ctx, f.request(stock.EarliestDate, line(bolt, 10)))
		require.NoError(t, err, "the first day of the range is accepted")

		assertQty(t, 110, f.onHand(t, bolt))
		far, err := f.svc.Ledger.BalanceAsOf(f.ctx, bolt, time.Date(3000, time.January, 1, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		assertQty(t, 110, far)
		f.assertConsistent(t)

		from := time.Date(1600, time.January, 1, 0, 0, 0, 0, time.UTC)
		to := time.Date(2500, time.January, 1, 0, 0, 0, 0, time.UTC)
		l, err := f.svc.Ledger.GetLedger(f.ctx, bolt, &from, &to)
		require.NoError(t, err)
		assertQty(t, 0, l.OpeningBalance)
		assertQty(t, 110, l.ClosingBalance)
		assert.Len(t, l.Entries, 2)
	})
}

func TestLedger_BalanceBeforeAnyDateIsZero(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		bolt := f.item(t, "BOLT", 0)
		f.inward(t, june(2), line(bolt, 100))

		for _, at := range []time.Time{{}, time.Date(1999, time.December, 31, 0, 0, 0, 0, time.UTC)} {
			got, err := f.svc.Ledger.BalanceAsOf(f.ctx, bolt, at)
			require.NoError(t, err)
			assertQty(t, 0, got)
		}

		early := time.Date(1999, time.December, 31, 0, 0, 0, 0, time.UTC)
		l, err := f.svc.Ledger.GetLedger(f.ctx, bolt, nil, &early)
		require.NoError(t, err)
		assert.Empty(t, l.Entries)
		assertQty(t, 0, l.ClosingBalance)
	})
}

func TestLedger_BackdatedMovementChangesHistory(t *testing.T) {
	// GIVEN: A receipt on the 10th
	// WHEN: A receipt dated the 3rd is posted afterwards
	// THEN: Historical balances include it and lines sort by date
	eachBackend(t, func(t *testing.T, f *fixture) {
		bolt := f.item(t, "BOLT", 0)
		f.inward(t, june(10), line(bolt, 50))
		f.inward(t, june(3), line(bolt, 20))

		got, err := f.svc.Ledger.BalanceAsOf(f.ctx, bolt, june(5))
		require.NoError(t, err)
		assertQty(t, 20, got)

		ledger, err := f.svc.Ledger.GetLedger(f.ctx, bolt, nil, nil)
		require.NoError(t, err)
		require.Len(t, ledger.Entries, 2)
		assert.True(t, ledger.Entries[0].Date.Equal(june(3)))
		assertQty(t, 20, ledger.Entries[0].RunningBalance)
		assertQty(t, 70, ledger.Entries[1].RunningBalance)
		f.assertConsistent(t)
	})
}

// =============================================================================
// ITEM LEDGER
// =============================================================================

func TestLedger_GetLedgerWithPeriod(t *testing.T) {
	// GIVEN: Movements before, inside and after a window
	// WHEN: Requesting the ledger for June 4 to June 8
	// THEN: Opening is the balance before the window, running balance ends at closing
	eachBackend(t, func(t *testing.T, f *fixture) {
		bolt := f.item(t, "BOLT", 0)
		f.inward(t, june(2), line(bolt, 100))
		f.outward(t, june(5), line(bolt, 30))
		f.adjust(t, june(6), f.adjLine(bolt, 5, stock.DirectionIn))
		f.outward(t, june(12), line(bolt, 15))

		from := stock.StartOfDay(june(4))
		to := stock.EndOfDay(june(8))
		ledger, err := f.svc.Ledger.GetLedger(f.ctx, bolt, &from, &to)
		require.NoError(t, err)

		assert.Equal(t, "BOLT", ledger.Item.Code)
		assertQty(t, 100, ledger.OpeningBalance)
		require.Len(t, ledger.Entries, 2)

		out := ledger.Entries[0]
		assert.Equal(t, stock.KindOutward, out.Kind)
		assert.Equal(t, stock.DirectionOut, out.Direction)
		assertQty(t, 30, out.Quantity)
		assertQty(t, -30, out.Movement)
		assertQty(t, 70, out.RunningBalance)

		adj := ledger.Entries[1]
		assert.Equal(t, stock.KindAdjustment, adj.Kind)
		assert.Equal(t, "Damaged in storage", adj.ReasonText)
		assertQty(t, 75, adj.RunningBalance)

		assertQty(t, 75, ledger.ClosingBalance)
		assertQty(t, 5, ledger.TotalIn)
		assertQty(t, 30, ledger.TotalOut)
		assertQty(t, 60, ledger.CurrentBalance)

		closing, err := f.svc.Ledger.BalanceAsOf(f.ctx, bolt, to)
		require.NoError(t, err)
		assert.True(t, closing.Equal(ledger.ClosingBalance))
	})
}

func TestLedger_GetLedgerErrors(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		bolt := f.item(t, "BOLT", 0)

		from, to := june(10), june(5)
		_, err := f.svc.Ledger.GetLedger(f.ctx, bolt, &from, &to)
		assert.ErrorIs(t, err, stock.ErrValidation)

		_, err = f.svc.Ledger.GetLedger(f.ctx, 999, nil, nil)
		assert.ErrorIs(t, err, stock.ErrNotFound)
	})
}

// =============================================================================
// TRANSACTION READS
// =============================================================================

func TestLedger_ListTransactionsFilters(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		bolt := f.item(t, "BOLT", 0)
		nut := f.item(t, "NUT", 0)
		receipt := f.inward(t, june(2), line(bolt, 100), line(nut, 40))
		issue := f.outward(t, june(5), line(bolt, 30))
		adj := f.adjust(t, june(8), f.adjLine(nut, 4, stock.DirectionOut))

		all, err := f.svc.Ledger.ListTransactions(f.ctx, stock.TransactionFilter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []stock.TransactionID{adj, issue, receipt}, summaryIDs(all), "newest first")
		assert.Equal(t, 2, all[2].LineCount)
		assertQty(t, 140, all[2].NetQuantity)

		kind := stock.KindOutward
		outs, err := f.svc.Ledger.ListTransactions(f.ctx, stock.TransactionFilter{Kind: &kind})
		require.NoError(t, err)
		assert.Equal(t, []stock.TransactionID{issue}, summaryIDs(outs))

		from, to := june(3), june(8)
		window, err := f.svc.Ledger.ListTransactions(f.ctx, stock.TransactionFilter{From: &from, To: &to})
		require.NoError(t, err)
		assert.Equal(t, []stock.TransactionID{adj, issue}, summaryIDs(window))

		byItem, err := f.svc.Ledger.ListTransactions(f.ctx, stock.TransactionFilter{ItemID: &nut})
		require.NoError(t, err)
		assert.Equal(t, []stock.TransactionID{adj, receipt}, summaryIDs(byItem))

		bad := stock.Kind("TRANSFER")
		_, err = f.svc.Ledger.ListTransactions(f.ctx, stock.TransactionFilter{Kind: &bad})
		assert.ErrorIs(t, err, stock.ErrValidation)
	})
}

func TestLedger_GetTransactionNotFound(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		_, err := f.svc.Ledger.GetTransaction(f.ctx, 42)

		var nf *stock.NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, "transaction", nf.Resource)
	})
}

func TestLedger_FindByReference(t *testing.T) {
	// GIVEN: Two receipts and an issue, the receipts sharing a reference
	// WHEN: Looking up by kind and reference
	// THEN: The earliest receipt of that kind is returned with its lines
	eachBackend(t, func(t *testing.T, f *fixture) {
		bolt := f.item(t, "BOLT", 0)
		booked := func(date time.Time, ref string, create func(stock.MovementRequest) (stock.TransactionID, error)) stock.TransactionID {
			req := f.request(date, line(bolt, 10))
			req.ReferenceNo = ref
			id, err := create(req)
			require.NoError(t, err)
			return id
		}
		inward := func(req stock.MovementRequest) (stock.TransactionID, error) {
			return f.svc.Processor.CreateInward(f.ctx, req)
		}
		first := booked(june(2), "PO-7", inward)
		booked(june(3), "PO-7", inward)
		issue := booked(june(4), "PO-7", func(req stock.MovementRequest) (stock.TransactionID, error) {
			return f.svc.Processor.CreateOutward(f.ctx, req)
		})

		got, err := f.svc.Ledger.FindByReference(f.ctx, stock.KindInward, "PO-7")
		require.NoError(t, err)
		assert.Equal(t, first, got.ID)
		require.Len(t, got.Lines, 1)

		got, err = f.svc.Ledger.FindByReference(f.ctx, stock.KindOutward, "PO-7")
		require.NoError(t, err)
		assert.Equal(t, issue, got.ID)

		_, err = f.svc.Ledger.FindByReference(f.ctx, stock.KindAdjustment, "PO-7")
		assert.ErrorIs(t, err, stock.ErrNotFound)
		_, err = f.svc.Ledger.FindByReference(f.ctx, stock.KindInward, "PO-8")
		assert.ErrorIs(t, err, stock.ErrNotFound)

		_, err = f.svc.Ledger.FindByReference(f.ctx, stock.KindInward, "")
		var verr *stock.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, []string{"reference_no"}, fieldNames(verr))
		_, err = f.svc.Ledger.FindByReference(f.ctx, stock.Kind("TRANSFER"), "PO-7")
		require.ErrorAs(t, err, &verr)
	})
}

// =============================================================================
// MONTHLY MOVEMENT
// =============================================================================

func TestLedger_MonthlyMovement(t *testing.T) {
	// GIVEN: 80 received in May, then in June 50 in, 30 out, adjustments -5 and +2
	// WHEN: Reporting June
	// THEN: Opening 80, Inward 50, Outward 30, Adjustments -3, Closing 97
	eachBackend(t, func(t *testing.T, f *fixture) {
		bolt := f.item(t, "BOLT", 0)
		nut := f.item(t, "NUT", 0)
		f.inward(t, june(1).AddDate(0, 0, -10), line(bolt, 80))
		f.inward(t, june(2), line(bolt, 50))
		f.outward(t, june(4), line(bolt, 30))
		f.adjust(t, june(6), f.adjLine(bolt, 5, stock.DirectionOut), f.adjLine(bolt, 2, stock.DirectionIn))

		report, err := f.svc.Ledger.MonthlyMovement(f.ctx, 2025, 6, stock.ItemFilter{})
		require.NoError(t, err)
		assert.Equal(t, time.June, report.Month)
		require.Len(t, report.Rows, 2)

		row := rowFor(t, report, bolt)
		assertQty(t, 80, row.Opening)
		assertQty(t, 50, row.Inward)
		assertQty(t, 30, row.Outward)
		assertQty(t, -3, row.Adjustments)
		assertQty(t, 97, row.Closing)
		assertQty(t, 87, row.Movement)

		idle := rowFor(t, report, nut)
		assertQty(t, 0, idle.Closing)
		assertQty(t, 0, idle.Movement)

		assertQty(t, 50, report.TotalInward)
		assertQty(t, 30, report.TotalOutward)
		assertQty(t, -3, report.TotalAdjustments)

		closing, err := f.svc.Ledger.BalanceAsOf(f.ctx, bolt, report.Period.End)
		require.NoError(t, err)
		assert.True(t, closing.Equal(row.Closing))

		// May carries only the opening receipt
		may, err := f.svc.Ledger.MonthlyMovement(f.ctx, 2025, 5, stock.ItemFilter{ItemID: &bolt})
		require.NoError(t, err)
		require.Len(t, may.Rows, 1)
		assertQty(t, 0, may.Rows[0].Opening)
		assertQty(t, 80, may.Rows[0].Closing)
	})
}

func TestLedger_MonthlyMovementValidation(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		_, err := f.svc.Ledger.MonthlyMovement(f.ctx, 1999, 13, stock.ItemFilter{})

		var verr *stock.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.ElementsMatch(t, []string{"year", "month"}, fieldNames(verr))
	})
}

// =============================================================================
// CURRENT STOCK & LOW STOCK
// =============================================================================

func TestLedger_ItemStockStatus(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		bolt := f.item(t, "BOLT", 20)

		s, err := f.svc.Ledger.GetItemStock(f.ctx, bolt)
		require.NoError(t, err)
		assert.Equal(t, stock.StockOut, s.Status)

		f.inward(t, june(2), line(bolt, 10))
		s, err = f.svc.Ledger.GetItemStock(f.ctx, bolt)
		require.NoError(t, err)
		assert.Equal(t, stock.StockLow, s.Status)

		f.inward(t, june(3), line(bolt, 10))
		s, err = f.svc.Ledger.GetItemStock(f.ctx, bolt)
		require.NoError(t, err)
		assert.Equal(t, stock.StockIn, s.Status, "exactly at minimum is not low")
		assertQty(t, 20, s.QtyOnHand)

		_, err = f.svc.Ledger.GetItemStock(f.ctx, 999)
		assert.ErrorIs(t, err, stock.ErrNotFound)
	})
}

func TestLedger_LowStockPredicates(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		bolt := f.item(t, "BOLT", 50)
		nut := f.item(t, "NUT", 10)
		tape := f.item(t, "TAPE", 0)
		f.inward(t, june(2), line(bolt, 40), line(nut, 15), line(tape, 3))

		low, err := f.svc.Ledger.GetLowStock(f.ctx, stock.BelowMinimum)
		require.NoError(t, err)
		assert.Equal(t, []stock.ItemID{bolt}, low)

		under20, err := f.svc.Ledger.GetLowStock(f.ctx, stock.BelowQuantity(stock.Qty(20)))
		require.NoError(t, err)
		assert.ElementsMatch(t, []stock.ItemID{nut, tape}, under20)

		rows, err := f.svc.Ledger.LowStock(f.ctx, nil)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, stock.StockLow, rows[0].Status)
	})
}

// =============================================================================
// AGGREGATE VERIFICATION
// =============================================================================

func TestLedger_VerifyAggregatesReportsDrift(t *testing.T) {
	// GIVEN: A consistent ledger
	// WHEN: The aggregate row is corrupted behind the ledger's back
	// THEN: VerifyAggregates names the item with both quantities
	eachBackend(t, func(t *testing.T, f *fixture) {
		bolt := f.item(t, "BOLT", 0)
		nut := f.item(t, "NUT", 0)
		f.inward(t, june(2), line(bolt, 100), line(nut, 7))
		f.assertConsistent(t)

		var corrupted int64
		switch s := f.store.(type) {
		case *store.Memory:
			s.DropStock(bolt)
			corrupted = 0
		case *sqlstore.Store:
			_, err := s.DB().ExecContext(f.ctx, `UPDATE current_stock SET qty_on_hand = '90' WHERE item_id = ?`, bolt)
			require.NoError(t, err)
			corrupted = 90
		default:
			t.Fatalf("unexpected store %T", s)
		}

		drifts, err := f.svc.Ledger.VerifyAggregates(f.ctx)
		require.NoError(t, err)
		require.Len(t, drifts, 1)
		assert.Equal(t, bolt, drifts[0].ItemID)
		assert.Equal(t, "BOLT", drifts[0].Code)
		assertQty(t, corrupted, drifts[0].OnHand)
		assertQty(t, 100, drifts[0].LedgerSum)
		assertQty(t, corrupted-100, drifts[0].Difference())
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func summaryIDs(txns []stock.TransactionSummary) []stock.TransactionID {
	ids := make([]stock.TransactionID, len(txns))
	for i, t := range txns {
		ids[i] = t.ID
	}
	return ids
}

func rowFor(t *testing.T, report *stock.MovementReport, id stock.ItemID) stock.MovementRow {
	t.Helper()
	for _, r := range report.Rows {
		if r.Item.ID == id {
			return r
		}
	}
	t.Fatalf("no row for item %d", id)
	return stock.MovementRow{}
}
