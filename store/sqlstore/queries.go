package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/stock-ledger/stock"
)

// =============================================================================
// READER (stock.Reader) - shared by Store and txStore
// =============================================================================

// queries runs reads against either the pool or an open transaction. Rows
// are always drained and closed before the next statement, which the single
// SQLite connection requires.
type queries struct {
	q querier
	d dialect
}

const itemColumns = `id, code, name, category_id, uom_id, min_stock, status, created_at, modified_at, modified_by`

func (s queries) GetItem(ctx context.Context, id stock.ItemID) (*stock.Item, error) {
	item, err := scanItem(s.q.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return &item, nil
}

func (s queries) ListItems(ctx context.Context, f stock.ItemFilter) ([]stock.Item, error) {
	var (
		where []string
		args  []any
	)
	if f.ActiveOnly {
		where = append(where, "status = ?")
		args = append(args, string(stock.StatusActive))
	}
	if f.CategoryID != nil {
		where = append(where, "category_id = ?")
		args = append(args, *f.CategoryID)
	}
	if f.ItemID != nil {
		where = append(where, "id = ?")
		args = append(args, *f.ItemID)
	}

	rows, err := s.q.QueryContext(ctx, `SELECT `+itemColumns+` FROM items`+whereClause(where)+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var items []stock.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s queries) GetReason(ctx context.Context, id stock.ReasonID) (*stock.Reason, error) {
	var (
		r      stock.Reason
		status string
	)
	err := s.q.QueryRowContext(ctx, `SELECT id, text, status FROM reasons WHERE id = ?`, id).
		Scan(&r.ID, &r.Text, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reason: %w", err)
	}
	r.Status = stock.Status(status)
	return &r, nil
}

func (s queries) GetActor(ctx context.Context, id stock.ActorID) (*stock.Actor, error) {
	var (
		a      stock.Actor
		status string
	)
	err := s.q.QueryRowContext(ctx, `SELECT id, name, status FROM actors WHERE id = ?`, id).
		Scan(&a.ID, &a.Name, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get actor: %w", err)
	}
	a.Status = stock.Status(status)
	return &a, nil
}

func (s queries) GetStock(ctx context.Context, id stock.ItemID) (*stock.CurrentStock, error) {
	return s.getStock(ctx, id, "")
}

func (s queries) getStock(ctx context.Context, id stock.ItemID, suffix string) (*stock.CurrentStock, error) {
	cur, err := scanStock(s.q.QueryRowContext(ctx,
		`SELECT item_id, qty_on_hand, version, updated_at FROM current_stock WHERE item_id = ?`+suffix, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stock: %w", err)
	}
	return &cur, nil
}

func (s queries) ListStock(ctx context.Context) ([]stock.CurrentStock, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT item_id, qty_on_hand, version, updated_at FROM current_stock ORDER BY item_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock: %w", err)
	}
	defer rows.Close()

	var out []stock.CurrentStock
	for rows.Next() {
		cur, err := scanStock(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stock: %w", err)
		}
		out = append(out, cur)
	}
	return out, rows.Err()
}

// -----------------------------------------------------------------------------
// Transactions
// -----------------------------------------------------------------------------

const headerColumns = `id, kind, txn_date, reference_no, remarks, idempotency_key, created_at, created_by`

const lineColumns = `l.id, l.transaction_id, l.item_id, l.quantity, l.direction, l.adjustment_reason_id,
	l.unit_price, l.total_amount, l.remarks, l.created_at, l.created_by`

func (s queries) GetTransaction(ctx context.Context, id stock.TransactionID) (*stock.Transaction, error) {
	txns, err := s.loadTransactions(ctx, `SELECT `+headerColumns+` FROM stock_transactions WHERE id = ?`, id)
	if err != nil || len(txns) == 0 {
		return nil, err
	}
	return &txns[0], nil
}

func (s queries) ListTransactions(ctx context.Context, f stock.TransactionFilter) ([]stock.Transaction, error) {
	var (
		where []string
		args  []any
	)
	if f.Kind != nil {
		where = append(where, "kind = ?")
		args = append(args, string(*f.Kind))
	}
	if f.From != nil {
		where = append(where, "txn_date >= ?")
		args = append(args, nanos(*f.From))
	}
	if f.To != nil {
		where = append(where, "txn_date <= ?")
		args = append(args, nanos(*f.To))
	}
	if f.ItemID != nil {
		where = append(where, "id IN (SELECT transaction_id FROM stock_transaction_lines WHERE item_id = ?)")
		args = append(args, *f.ItemID)
	}
	query := `SELECT ` + headerColumns + ` FROM stock_transactions` + whereClause(where) + ` ORDER BY txn_date DESC, id DESC`
	return s.loadTransactions(ctx, query, args...)
}

func (s queries) FindTransactionByKey(ctx context.Context, key string) (*stock.Transaction, error) {
	txns, err := s.loadTransactions(ctx, `SELECT `+headerColumns+` FROM stock_transactions WHERE idempotency_key = ?`, key)
	if err != nil || len(txns) == 0 {
		return nil, err
	}
	return &txns[0], nil
}

func (s queries) FindTransactionByReference(ctx context.Context, kind stock.Kind, ref string) (*stock.Transaction, error) {
	txns, err := s.loadTransactions(ctx,
		`SELECT `+headerColumns+` FROM stock_transactions WHERE kind = ? AND reference_no = ? ORDER BY id LIMIT 1`,
		string(kind), ref)
	if err != nil || len(txns) == 0 {
		return nil, err
	}
	return &txns[0], nil
}

// loadTransactions reads headers first, then their lines in one query.
func (s queries) loadTransactions(ctx context.Context, query string, args ...any) ([]stock.Transaction, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}

	var (
		txns  []stock.Transaction
		index = make(map[stock.TransactionID]int)
	)
	for rows.Next() {
		t, err := scanHeader(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		index[t.ID] = len(txns)
		txns = append(txns, t)
	}
	err = rows.Err()
	rows.Close()
	if err != nil || len(txns) == 0 {
		return txns, err
	}

	ids := make([]any, len(txns))
	for i, t := range txns {
		ids[i] = t.ID
	}
	lineRows, err := s.q.QueryContext(ctx,
		`SELECT `+lineColumns+` FROM stock_transaction_lines l WHERE l.transaction_id IN (`+placeholders(len(ids))+`) ORDER BY l.id`,
		ids...)
	if err != nil {
		return nil, fmt.Errorf("failed to query lines: %w", err)
	}
	defer lineRows.Close()

	for lineRows.Next() {
		l, err := scanLine(lineRows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan line: %w", err)
		}
		i := index[l.TransactionID]
		txns[i].Lines = append(txns[i].Lines, l)
	}
	return txns, lineRows.Err()
}

func (s queries) LedgerLines(ctx context.Context, id stock.ItemID, from, to time.Time) ([]stock.LedgerLine, error) {
	where := []string{"l.item_id = ?"}
	args := []any{id}
	if !from.IsZero() {
		where = append(where, "t.txn_date >= ?")
		args = append(args, nanos(from))
	}
	if !to.IsZero() {
		where = append(where, "t.txn_date <= ?")
		args = append(args, nanos(to))
	}

	rows, err := s.q.QueryContext(ctx, `
		SELECT `+lineColumns+`, t.kind, t.txn_date, t.reference_no, r.text
		FROM stock_transaction_lines l
		JOIN stock_transactions t ON t.id = l.transaction_id
		LEFT JOIN reasons r ON r.id = l.adjustment_reason_id`+
		whereClause(where)+`
		ORDER BY t.txn_date, l.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger lines: %w", err)
	}
	defer rows.Close()

	var out []stock.LedgerLine
	for rows.Next() {
		var (
			ll      stock.LedgerLine
			kind    string
			date    int64
			ref     sql.NullString
			reason  sql.NullString
			scanned lineScan
		)
		dest := append(scanned.dest(), &kind, &date, &ref, &reason)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan ledger line: %w", err)
		}
		line, err := scanned.line()
		if err != nil {
			return nil, err
		}
		ll.Line = line
		ll.Kind = stock.Kind(kind)
		ll.Date = fromNanos(date)
		ll.ReferenceNo = ref.String
		ll.ReasonText = reason.String
		out = append(out, ll)
	}
	return out, rows.Err()
}

func (s queries) ItemHasLines(ctx context.Context, id stock.ItemID) (bool, error) {
	return s.exists(ctx, `SELECT 1 FROM stock_transaction_lines WHERE item_id = ? LIMIT 1`, id)
}

func (s queries) ReasonInUse(ctx context.Context, id stock.ReasonID) (bool, error) {
	return s.exists(ctx, `SELECT 1 FROM stock_transaction_lines WHERE adjustment_reason_id = ? LIMIT 1`, id)
}

func (s queries) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var one int
	err := s.q.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check existence: %w", err)
	}
	return true, nil
}

// -----------------------------------------------------------------------------
// Alerts
// -----------------------------------------------------------------------------

const alertColumns = `id, item_id, qty_on_hand, min_stock, alert_date, acknowledged_by, acknowledged_at`

func (s queries) GetAlert(ctx context.Context, id stock.AlertID) (*stock.Alert, error) {
	a, err := scanAlert(s.q.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM stock_alerts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return &a, nil
}

func (s queries) OpenAlertForItem(ctx context.Context, id stock.ItemID) (*stock.Alert, error) {
	a, err := scanAlert(s.q.QueryRowContext(ctx,
		`SELECT `+alertColumns+` FROM stock_alerts WHERE item_id = ? AND acknowledged_at IS NULL`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get open alert: %w", err)
	}
	return &a, nil
}

func (s queries) ListAlerts(ctx context.Context, f stock.AlertFilter) ([]stock.Alert, error) {
	var (
		where []string
		args  []any
	)
	if f.Acknowledged != nil {
		if *f.Acknowledged {
			where = append(where, "acknowledged_at IS NOT NULL")
		} else {
			where = append(where, "acknowledged_at IS NULL")
		}
	}
	if f.From != nil {
		where = append(where, "alert_date >= ?")
		args = append(args, nanos(*f.From))
	}
	if f.To != nil {
		where = append(where, "alert_date <= ?")
		args = append(args, nanos(*f.To))
	}

	rows, err := s.q.QueryContext(ctx,
		`SELECT `+alertColumns+` FROM stock_alerts`+whereClause(where)+` ORDER BY alert_date DESC, id DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var out []stock.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// =============================================================================
// SCANNING
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (stock.Item, error) {
	var (
		item       stock.Item
		minStock   string
		status     string
		createdAt  int64
		modifiedAt sql.NullInt64
		modifiedBy sql.NullInt64
	)
	err := row.Scan(&item.ID, &item.Code, &item.Name, &item.CategoryID, &item.UOMID,
		&minStock, &status, &createdAt, &modifiedAt, &modifiedBy)
	if err != nil {
		return item, err
	}
	if item.MinStock, err = decimal.NewFromString(minStock); err != nil {
		return item, fmt.Errorf("invalid min_stock %q: %w", minStock, err)
	}
	item.Status = stock.Status(status)
	item.CreatedAt = fromNanos(createdAt)
	item.ModifiedAt = timePtr(modifiedAt)
	if modifiedBy.Valid {
		by := stock.ActorID(modifiedBy.Int64)
		item.ModifiedBy = &by
	}
	return item, nil
}

func scanStock(row scanner) (stock.CurrentStock, error) {
	var (
		cur       stock.CurrentStock
		qty       string
		updatedAt int64
	)
	if err := row.Scan(&cur.ItemID, &qty, &cur.Version, &updatedAt); err != nil {
		return cur, err
	}
	q, err := decimal.NewFromString(qty)
	if err != nil {
		return cur, fmt.Errorf("invalid qty_on_hand %q: %w", qty, err)
	}
	cur.QtyOnHand = q
	cur.UpdatedAt = fromNanos(updatedAt)
	return cur, nil
}

func scanHeader(row scanner) (stock.Transaction, error) {
	var (
		t         stock.Transaction
		kind      string
		date      int64
		ref       sql.NullString
		remarks   sql.NullString
		key       sql.NullString
		createdAt int64
	)
	if err := row.Scan(&t.ID, &kind, &date, &ref, &remarks, &key, &createdAt, &t.CreatedBy); err != nil {
		return t, err
	}
	t.Kind = stock.Kind(kind)
	t.Date = fromNanos(date)
	t.ReferenceNo = ref.String
	t.Remarks = remarks.String
	t.IdempotencyKey = key.String
	t.CreatedAt = fromNanos(createdAt)
	return t, nil
}

// lineScan holds the raw columns of lineColumns.
type lineScan struct {
	l         stock.Line
	qty       string
	direction int64
	reasonID  sql.NullInt64
	unitPrice sql.NullString
	total     string
	remarks   sql.NullString
	createdAt int64
}

func (ls *lineScan) dest() []any {
	return []any{&ls.l.ID, &ls.l.TransactionID, &ls.l.ItemID, &ls.qty, &ls.direction, &ls.reasonID,
		&ls.unitPrice, &ls.total, &ls.remarks, &ls.createdAt, &ls.l.CreatedBy}
}

func (ls *lineScan) line() (stock.Line, error) {
	l := ls.l
	var err error
	if l.Quantity, err = decimal.NewFromString(ls.qty); err != nil {
		return l, fmt.Errorf("invalid quantity %q: %w", ls.qty, err)
	}
	if l.TotalAmount, err = decimal.NewFromString(ls.total); err != nil {
		return l, fmt.Errorf("invalid total_amount %q: %w", ls.total, err)
	}
	if ls.unitPrice.Valid {
		p, err := decimal.NewFromString(ls.unitPrice.String)
		if err != nil {
			return l, fmt.Errorf("invalid unit_price %q: %w", ls.unitPrice.String, err)
		}
		l.UnitPrice = &p
	}
	if ls.reasonID.Valid {
		r := stock.ReasonID(ls.reasonID.Int64)
		l.AdjustmentReasonID = &r
	}
	l.Direction = stock.Direction(ls.direction)
	l.Remarks = ls.remarks.String
	l.CreatedAt = fromNanos(ls.createdAt)
	return l, nil
}

func scanLine(row scanner) (stock.Line, error) {
	var ls lineScan
	if err := row.Scan(ls.dest()...); err != nil {
		return stock.Line{}, err
	}
	return ls.line()
}

func scanAlert(row scanner) (stock.Alert, error) {
	var (
		a         stock.Alert
		qty, minQty string
		alertDate int64
		ackBy     sql.NullInt64
		ackAt     sql.NullInt64
	)
	if err := row.Scan(&a.ID, &a.ItemID, &qty, &minQty, &alertDate, &ackBy, &ackAt); err != nil {
		return a, err
	}
	var err error
	if a.QtyOnHand, err = decimal.NewFromString(qty); err != nil {
		return a, fmt.Errorf("invalid alert qty %q: %w", qty, err)
	}
	if a.MinStock, err = decimal.NewFromString(minQty); err != nil {
		return a, fmt.Errorf("invalid alert min %q: %w", minQty, err)
	}
	a.AlertDate = fromNanos(alertDate)
	a.AcknowledgedAt = timePtr(ackAt)
	if ackBy.Valid {
		by := stock.ActorID(ackBy.Int64)
		a.AcknowledgedBy = &by
	}
	return a, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: nanos(*t), Valid: true}
}

// nanos encodes t as unix nanoseconds. UnixNano is undefined outside
// 1678..2262, so t is clamped to the ledger's date range first.
func nanos(t time.Time) int64 {
	switch {
	case t.Before(stock.EarliestDate):
		t = stock.EarliestDate
	case t.After(stock.LatestDate):
		t = stock.LatestDate
	}
	return t.UTC().UnixNano()
}

func nullID[T ~int64](id *T) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*id), Valid: true}
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}
