package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/warp/stock-ledger/stock"
)

// =============================================================================
// TRANSACTIONAL STORE (stock.Tx)
// =============================================================================

type txStore struct {
	queries
}

var errAlertNotOpen = errors.New("alert is not open")

// LockStock reads the aggregate row with FOR UPDATE where the dialect has it.
func (t *txStore) LockStock(ctx context.Context, id stock.ItemID) (*stock.CurrentStock, error) {
	return t.getStock(ctx, id, t.d.forUpdate)
}

func (t *txStore) InsertTransaction(ctx context.Context, txn *stock.Transaction) error {
	res, err := t.q.ExecContext(ctx, `
		INSERT INTO stock_transactions
		(kind, txn_date, reference_no, remarks, idempotency_key, created_at, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(txn.Kind),
		nanos(txn.Date),
		nullString(txn.ReferenceNo),
		nullString(txn.Remarks),
		nullString(txn.IdempotencyKey),
		nanos(txn.CreatedAt),
		txn.CreatedBy,
	)
	if err != nil {
		if t.d.isUnique(err) {
			return stock.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read transaction id: %w", err)
	}
	txn.ID = stock.TransactionID(id)

	for i := range txn.Lines {
		l := &txn.Lines[i]
		l.TransactionID = txn.ID
		res, err := t.q.ExecContext(ctx, `
			INSERT INTO stock_transaction_lines
			(transaction_id, item_id, quantity, direction, adjustment_reason_id, unit_price,
			 total_amount, remarks, created_at, created_by)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			l.TransactionID,
			l.ItemID,
			l.Quantity.String(),
			int64(l.Direction),
			nullID(l.AdjustmentReasonID),
			nullDecimal(l.UnitPrice),
			l.TotalAmount.String(),
			nullString(l.Remarks),
			nanos(l.CreatedAt),
			l.CreatedBy,
		)
		if err != nil {
			return fmt.Errorf("failed to insert line %d: %w", i, err)
		}
		lineID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read line id: %w", err)
		}
		l.ID = stock.LineID(lineID)
	}
	return nil
}

func (t *txStore) ApplyStock(ctx context.Context, prev *stock.CurrentStock, next stock.CurrentStock) error {
	if prev == nil {
		_, err := t.q.ExecContext(ctx,
			`INSERT INTO current_stock (item_id, qty_on_hand, version, updated_at) VALUES (?, ?, ?, ?)`,
			next.ItemID, next.QtyOnHand.String(), next.Version, nanos(next.UpdatedAt))
		if err != nil {
			if t.d.isUnique(err) {
				return stock.ErrConcurrentModification
			}
			return fmt.Errorf("failed to insert stock: %w", err)
		}
		return nil
	}

	res, err := t.q.ExecContext(ctx, `
		UPDATE current_stock
		SET qty_on_hand = ?, version = ?, updated_at = ?
		WHERE item_id = ? AND version = ?`,
		next.QtyOnHand.String(), next.Version, nanos(next.UpdatedAt),
		next.ItemID, prev.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update stock: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update stock: %w", err)
	}
	if rows == 0 {
		return stock.ErrConcurrentModification
	}
	return nil
}

func (t *txStore) InsertAlert(ctx context.Context, alert *stock.Alert) error {
	res, err := t.q.ExecContext(ctx, `
		INSERT INTO stock_alerts (item_id, qty_on_hand, min_stock, alert_date)
		VALUES (?, ?, ?, ?)`,
		alert.ItemID, alert.QtyOnHand.String(), alert.MinStock.String(), nanos(alert.AlertDate),
	)
	if err != nil {
		if t.d.isUnique(err) {
			return fmt.Errorf("item %d already has an open alert: %w", alert.ItemID, stock.ErrConcurrentModification)
		}
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read alert id: %w", err)
	}
	alert.ID = stock.AlertID(id)
	return nil
}

func (t *txStore) RefreshAlert(ctx context.Context, alert stock.Alert) error {
	res, err := t.q.ExecContext(ctx, `
		UPDATE stock_alerts SET qty_on_hand = ?, min_stock = ?, alert_date = ?
		WHERE id = ? AND acknowledged_at IS NULL`,
		alert.QtyOnHand.String(), alert.MinStock.String(), nanos(alert.AlertDate), alert.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to refresh alert: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return fmt.Errorf("failed to refresh alert %d: %w", alert.ID, errAlertNotOpen)
	}
	return nil
}

func (t *txStore) AcknowledgeAlert(ctx context.Context, id stock.AlertID, by stock.ActorID, at time.Time) (bool, error) {
	res, err := t.q.ExecContext(ctx, `
		UPDATE stock_alerts SET acknowledged_by = ?, acknowledged_at = ?
		WHERE id = ? AND acknowledged_at IS NULL`,
		by, nanos(at), id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to acknowledge alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to acknowledge alert: %w", err)
	}
	return n == 1, nil
}

func (t *txStore) DeleteAlert(ctx context.Context, id stock.AlertID) error {
	if _, err := t.q.ExecContext(ctx, `DELETE FROM stock_alerts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete alert: %w", err)
	}
	return nil
}

func (t *txStore) SetItemStatus(ctx context.Context, id stock.ItemID, status stock.Status, by stock.ActorID, at time.Time) error {
	_, err := t.q.ExecContext(ctx,
		`UPDATE items SET status = ?, modified_at = ?, modified_by = ? WHERE id = ?`,
		string(status), nanos(at), by, id)
	if err != nil {
		return fmt.Errorf("failed to update item status: %w", err)
	}
	return nil
}

func (t *txStore) DeleteReason(ctx context.Context, id stock.ReasonID) error {
	if _, err := t.q.ExecContext(ctx, `DELETE FROM reasons WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete reason: %w", err)
	}
	return nil
}
