package stock

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CURRENT STOCK READS - served from the aggregate, never recomputed here
// =============================================================================

// GetOnHand returns zero for an item without an aggregate row.
func (l *Ledger) GetOnHand(ctx context.Context, itemID ItemID) (Quantity, error) {
	cur, err := l.Store.GetStock(ctx, itemID)
	if err != nil {
		return decimal.Zero, asStorageError("get on hand", err)
	}
	if cur == nil {
		return decimal.Zero, nil
	}
	return cur.QtyOnHand, nil
}

type StockStatus string

const (
	StockOut StockStatus = "OUT_OF_STOCK"
	StockLow StockStatus = "LOW_STOCK"
	StockIn  StockStatus = "IN_STOCK"
)

func StatusFor(onHand, minStock Quantity) StockStatus {
	switch {
	case !onHand.IsPositive():
		return StockOut
	case onHand.LessThan(minStock):
		return StockLow
	default:
		return StockIn
	}
}

type ItemStock struct {
	Item      Item
	QtyOnHand Quantity
	Status    StockStatus
}

func (l *Ledger) GetItemStock(ctx context.Context, itemID ItemID) (*ItemStock, error) {
	item, err := l.Store.GetItem(ctx, itemID)
	if err != nil {
		return nil, asStorageError("get item stock", err)
	}
	if item == nil {
		return nil, &NotFoundError{Resource: "item", ID: int64(itemID)}
	}
	qty, err := l.GetOnHand(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return &ItemStock{Item: *item, QtyOnHand: qty, Status: StatusFor(qty, item.MinStock)}, nil
}

// =============================================================================
// LOW STOCK
// =============================================================================

// LowStockPredicate decides whether an item with the given on-hand quantity
// counts as low.
type LowStockPredicate func(item Item, onHand Quantity) bool

// BelowMinimum is the predicate the Alert Engine uses.
func BelowMinimum(item Item, onHand Quantity) bool {
	return onHand.LessThan(item.MinStock)
}

func BelowQuantity(threshold Quantity) LowStockPredicate {
	return func(_ Item, onHand Quantity) bool { return onHand.LessThan(threshold) }
}

// LowStock scans active items, ordered as the store lists them.
func (l *Ledger) LowStock(ctx context.Context, pred LowStockPredicate) ([]ItemStock, error) {
	if pred == nil {
		pred = BelowMinimum
	}
	items, err := l.Store.ListItems(ctx, ItemFilter{ActiveOnly: true})
	if err != nil {
		return nil, asStorageError("low stock", err)
	}
	stock, err := stockByItem(ctx, l.Store)
	if err != nil {
		return nil, asStorageError("low stock", err)
	}

	var out []ItemStock
	for _, item := range items {
		qty := onHand(stock, item.ID)
		if pred(item, qty) {
			out = append(out, ItemStock{Item: item, QtyOnHand: qty, Status: StatusFor(qty, item.MinStock)})
		}
	}
	return out, nil
}

func (l *Ledger) GetLowStock(ctx context.Context, pred LowStockPredicate) ([]ItemID, error) {
	low, err := l.LowStock(ctx, pred)
	if err != nil {
		return nil, err
	}
	ids := make([]ItemID, len(low))
	for i, s := range low {
		ids[i] = s.Item.ID
	}
	return ids, nil
}

func stockByItem(ctx context.Context, r Reader) (map[ItemID]Quantity, error) {
	rows, err := r.ListStock(ctx)
	if err != nil {
		return nil, err
	}
	m := make(map[ItemID]Quantity, len(rows))
	for _, row := range rows {
		m[row.ItemID] = row.QtyOnHand
	}
	return m, nil
}

func onHand(stock map[ItemID]Quantity, id ItemID) Quantity {
	if q, ok := stock[id]; ok {
		return q
	}
	return decimal.Zero
}
