/*
ledger.go - Balance Reconstructor and ledger reads

PURPOSE:
  The lines are the source of truth; current_stock is a cache of their sum.
  Everything here is read-only and derives balances by replaying lines:

    BalanceAsOf(item, t) = sum(quantity * direction) for lines with date <= t

RECONCILIATION:
  Future-dated movements are rejected, so at rest
  BalanceAsOf(item, now) == GetOnHand(item) for every item.
  VerifyAggregates reports every item where that does not hold.

PERIODS:
  Opening balance of [from, to] is BalanceAsOf(from - 1ns). The running
  balance of the entries in [from, to] then ends at BalanceAsOf(to).
*/
package stock

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type Ledger struct {
	Store Reader
	Now   func() time.Time
}

func NewLedger(store Reader) *Ledger {
	return &Ledger{Store: store, Now: time.Now}
}

// =============================================================================
// BALANCE RECONSTRUCTION
// =============================================================================

// BalanceAsOf replays every committed line for the item dated at or before
// at. An item with no lines has a balance of zero, and so does any at
// before EarliestDate, the zero time included.
func (l *Ledger) BalanceAsOf(ctx context.Context, itemID ItemID, at time.Time) (Quantity, error) {
	if at.Before(EarliestDate) {
		return decimal.Zero, nil
	}
	lines, err := l.Store.LedgerLines(ctx, itemID, time.Time{}, at)
	if err != nil {
		return decimal.Zero, asStorageError("balance as of", err)
	}
	return sumMovements(lines), nil
}

func sumMovements(lines []LedgerLine) Quantity {
	balance := decimal.Zero
	for _, ln := range lines {
		balance = balance.Add(ln.Movement())
	}
	return balance
}

// =============================================================================
// ITEM LEDGER
// =============================================================================

type LedgerEntry struct {
	TransactionID  TransactionID
	LineID         LineID
	Date           time.Time
	Kind           Kind
	ReferenceNo    string
	Direction      Direction
	Quantity       Quantity
	Movement       Quantity
	RunningBalance Quantity
	ReasonText     string
	Remarks        string
}

type ItemLedger struct {
	Item           Item
	From           *time.Time
	To             *time.Time
	OpeningBalance Quantity
	ClosingBalance Quantity
	CurrentBalance Quantity
	TotalIn        Quantity
	TotalOut       Quantity
	Entries        []LedgerEntry
}

// GetLedger lists an item's movements in [from, to] with a running balance
// that starts at the opening balance. A nil bound leaves that side open.
func (l *Ledger) GetLedger(ctx context.Context, itemID ItemID, from, to *time.Time) (*ItemLedger, error) {
	item, err := l.Store.GetItem(ctx, itemID)
	if err != nil {
		return nil, asStorageError("get ledger", err)
	}
	if item == nil {
		return nil, &NotFoundError{Resource: "item", ID: int64(itemID)}
	}
	if from != nil && to != nil && from.After(*to) {
		return nil, NewValidationError("from", "must not be after to")
	}

	result := &ItemLedger{
		Item:           *item,
		From:           from,
		To:             to,
		OpeningBalance: decimal.Zero,
		TotalIn:        decimal.Zero,
		TotalOut:       decimal.Zero,
	}

	var lower, upper time.Time
	if from != nil {
		lower = *from
		opening, err := l.BalanceAsOf(ctx, itemID, justBefore(*from))
		if err != nil {
			return nil, err
		}
		result.OpeningBalance = opening
	}
	if to != nil {
		upper = *to
	}

	var lines []LedgerLine
	if to == nil || !upper.Before(EarliestDate) {
		lines, err = l.Store.LedgerLines(ctx, itemID, lower, upper)
		if err != nil {
			return nil, asStorageError("get ledger", err)
		}
	}

	running := result.OpeningBalance
	for _, ln := range lines {
		running = running.Add(ln.Movement())
		if ln.Direction == DirectionIn {
			result.TotalIn = result.TotalIn.Add(ln.Quantity)
		} else {
			result.TotalOut = result.TotalOut.Add(ln.Quantity)
		}
		result.Entries = append(result.Entries, LedgerEntry{
			TransactionID:  ln.TransactionID,
			LineID:         ln.ID,
			Date:           ln.Date,
			Kind:           ln.Kind,
			ReferenceNo:    ln.ReferenceNo,
			Direction:      ln.Direction,
			Quantity:       ln.Quantity,
			Movement:       ln.Movement(),
			RunningBalance: running,
			ReasonText:     ln.ReasonText,
			Remarks:        ln.Remarks,
		})
	}
	result.ClosingBalance = running

	current, err := l.GetOnHand(ctx, itemID)
	if err != nil {
		return nil, err
	}
	result.CurrentBalance = current
	return result, nil
}

// =============================================================================
// AGGREGATE VERIFICATION
// =============================================================================

// Drift is an item whose aggregate disagrees with its replayed ledger.
type Drift struct {
	ItemID    ItemID
	Code      string
	OnHand    Quantity
	LedgerSum Quantity
}

func (d Drift) Difference() Quantity { return d.OnHand.Sub(d.LedgerSum) }

// VerifyAggregates replays the ledger of every item, active or not.
func (l *Ledger) VerifyAggregates(ctx context.Context) ([]Drift, error) {
	items, err := l.Store.ListItems(ctx, ItemFilter{})
	if err != nil {
		return nil, asStorageError("verify aggregates", err)
	}
	stock, err := stockByItem(ctx, l.Store)
	if err != nil {
		return nil, asStorageError("verify aggregates", err)
	}

	now := l.now()
	var drifts []Drift
	for _, item := range items {
		sum, err := l.BalanceAsOf(ctx, item.ID, now)
		if err != nil {
			return nil, err
		}
		qty := onHand(stock, item.ID)
		if !qty.Equal(sum) {
			drifts = append(drifts, Drift{ItemID: item.ID, Code: item.Code, OnHand: qty, LedgerSum: sum})
		}
	}
	return drifts, nil
}

// =============================================================================
// TRANSACTION READS
// =============================================================================

// TransactionDetail is a transaction with the text of every reason its
// lines reference.
type TransactionDetail struct {
	Transaction
	Reasons map[ReasonID]string
}

func (l *Ledger) GetTransaction(ctx context.Context, id TransactionID) (*TransactionDetail, error) {
	txn, err := l.Store.GetTransaction(ctx, id)
	if err != nil {
		return nil, asStorageError("get transaction", err)
	}
	if txn == nil {
		return nil, &NotFoundError{Resource: "transaction", ID: int64(id)}
	}

	detail := &TransactionDetail{Transaction: *txn, Reasons: make(map[ReasonID]string)}
	for _, ln := range txn.Lines {
		if ln.AdjustmentReasonID == nil {
			continue
		}
		if _, ok := detail.Reasons[*ln.AdjustmentReasonID]; ok {
			continue
		}
		reason, err := l.Store.GetReason(ctx, *ln.AdjustmentReasonID)
		if err != nil {
			return nil, asStorageError("get transaction", err)
		}
		if reason != nil {
			detail.Reasons[reason.ID] = reason.Text
		}
	}
	return detail, nil
}

// FindByReference returns the earliest transaction of kind recorded under
// referenceNo, such as the receipt booked against a purchase order.
func (l *Ledger) FindByReference(ctx context.Context, kind Kind, referenceNo string) (*TransactionDetail, error) {
	if !kind.Valid() {
		return nil, NewValidationError("kind", "must be INWARD, OUTWARD or ADJUST")
	}
	if referenceNo == "" {
		return nil, NewValidationError("reference_no", "is required")
	}
	txn, err := l.Store.FindTransactionByReference(ctx, kind, referenceNo)
	if err != nil {
		return nil, asStorageError("find transaction", err)
	}
	if txn == nil {
		return nil, &NotFoundError{Resource: "transaction"}
	}
	return l.GetTransaction(ctx, txn.ID)
}

type TransactionSummary struct {
	ID          TransactionID
	Kind        Kind
	Date        time.Time
	ReferenceNo string
	Remarks     string
	CreatedAt   time.Time
	CreatedBy   ActorID
	LineCount   int
	NetQuantity Quantity
	TotalAmount decimal.Decimal
}

// ListTransactions returns headers newest first.
func (l *Ledger) ListTransactions(ctx context.Context, filter TransactionFilter) ([]TransactionSummary, error) {
	if filter.Kind != nil && !filter.Kind.Valid() {
		return nil, NewValidationError("kind", "must be INWARD, OUTWARD or ADJUST")
	}
	txns, err := l.Store.ListTransactions(ctx, filter)
	if err != nil {
		return nil, asStorageError("list transactions", err)
	}

	out := make([]TransactionSummary, 0, len(txns))
	for _, t := range txns {
		total := decimal.Zero
		for _, ln := range t.Lines {
			total = total.Add(ln.TotalAmount)
		}
		out = append(out, TransactionSummary{
			ID:          t.ID,
			Kind:        t.Kind,
			Date:        t.Date,
			ReferenceNo: t.ReferenceNo,
			Remarks:     t.Remarks,
			CreatedAt:   t.CreatedAt,
			CreatedBy:   t.CreatedBy,
			LineCount:   len(t.Lines),
			NetQuantity: t.NetQuantity(),
			TotalAmount: total,
		})
	}
	return out, nil
}

func (l *Ledger) now() time.Time {
	if l.Now == nil {
		return time.Now()
	}
	return l.Now()
}
