// Package store provides an in-memory stock.Store.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/warp/stock-ledger/stock"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

var errOpenAlertExists = errors.New("memory: item already has an open alert")

type Memory struct {
	mu sync.RWMutex
	st *state
}

type state struct {
	items   map[stock.ItemID]stock.Item
	reasons map[stock.ReasonID]stock.Reason
	actors  map[stock.ActorID]stock.Actor
	stock   map[stock.ItemID]stock.CurrentStock
	alerts  map[stock.AlertID]stock.Alert
	keys    map[string]stock.TransactionID

	// txns is ordered by id. Committed transactions are never mutated, so
	// a snapshot may share their line slices.
	txns []stock.Transaction

	nextItem, nextReason, nextActor int64
	nextTxn, nextLine, nextAlert    int64
}

func NewMemory() *Memory {
	return &Memory{st: &state{
		items:   make(map[stock.ItemID]stock.Item),
		reasons: make(map[stock.ReasonID]stock.Reason),
		actors:  make(map[stock.ActorID]stock.Actor),
		stock:   make(map[stock.ItemID]stock.CurrentStock),
		alerts:  make(map[stock.AlertID]stock.Alert),
		keys:    make(map[string]stock.TransactionID),
	}}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(stock.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.st.clone()
	if err := fn(&txView{st: m.st}); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

func (s *state) clone() *state {
	c := *s
	c.items = cloneMap(s.items)
	c.reasons = cloneMap(s.reasons)
	c.actors = cloneMap(s.actors)
	c.stock = cloneMap(s.stock)
	c.alerts = cloneMap(s.alerts)
	c.keys = cloneMap(s.keys)
	c.txns = append([]stock.Transaction(nil), s.txns...)
	return &c
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// =============================================================================
// SEEDING - catalog records
// =============================================================================

func (m *Memory) SaveItem(_ context.Context, item *stock.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, other := range m.st.items {
		if other.Code == item.Code && other.ID != item.ID {
			return fmt.Errorf("memory: item code %q already exists", item.Code)
		}
	}
	if item.ID == 0 {
		m.st.nextItem++
		item.ID = stock.ItemID(m.st.nextItem)
	} else if int64(item.ID) > m.st.nextItem {
		m.st.nextItem = int64(item.ID)
	}
	if item.Status == "" {
		item.Status = stock.StatusActive
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	m.st.items[item.ID] = *item
	if _, ok := m.st.stock[item.ID]; !ok {
		m.st.stock[item.ID] = stock.CurrentStock{ItemID: item.ID, QtyOnHand: stock.Qty(0), UpdatedAt: item.CreatedAt}
	}
	return nil
}

func (m *Memory) SaveReason(_ context.Context, reason *stock.Reason) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if reason.ID == 0 {
		m.st.nextReason++
		reason.ID = stock.ReasonID(m.st.nextReason)
	} else if int64(reason.ID) > m.st.nextReason {
		m.st.nextReason = int64(reason.ID)
	}
	if reason.Status == "" {
		reason.Status = stock.StatusActive
	}
	m.st.reasons[reason.ID] = *reason
	return nil
}

func (m *Memory) SaveActor(_ context.Context, actor *stock.Actor) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if actor.ID == 0 {
		m.st.nextActor++
		actor.ID = stock.ActorID(m.st.nextActor)
	} else if int64(actor.ID) > m.st.nextActor {
		m.st.nextActor = int64(actor.ID)
	}
	if actor.Status == "" {
		actor.Status = stock.StatusActive
	}
	m.st.actors[actor.ID] = *actor
	return nil
}

// DropStock removes an aggregate row, leaving the item without one.
func (m *Memory) DropStock(id stock.ItemID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.st.stock, id)
}

// =============================================================================
// READER - locked delegation to state
// =============================================================================

func (m *Memory) GetItem(_ context.Context, id stock.ItemID) (*stock.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getItem(id), nil
}

func (m *Memory) ListItems(_ context.Context, f stock.ItemFilter) ([]stock.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listItems(f), nil
}

func (m *Memory) GetReason(_ context.Context, id stock.ReasonID) (*stock.Reason, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getReason(id), nil
}

func (m *Memory) GetActor(_ context.Context, id stock.ActorID) (*stock.Actor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getActor(id), nil
}

func (m *Memory) GetStock(_ context.Context, id stock.ItemID) (*stock.CurrentStock, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getStock(id), nil
}

func (m *Memory) ListStock(_ context.Context) ([]stock.CurrentStock, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listStock(), nil
}

func (m *Memory) GetTransaction(_ context.Context, id stock.TransactionID) (*stock.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getTransaction(id), nil
}

func (m *Memory) ListTransactions(_ context.Context, f stock.TransactionFilter) ([]stock.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listTransactions(f), nil
}

func (m *Memory) FindTransactionByKey(_ context.Context, key string) (*stock.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.findByKey(key), nil
}

func (m *Memory) FindTransactionByReference(_ context.Context, kind stock.Kind, ref string) (*stock.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.findByReference(kind, ref), nil
}

func (m *Memory) LedgerLines(_ context.Context, id stock.ItemID, from, to time.Time) ([]stock.LedgerLine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ledgerLines(id, from, to), nil
}

func (m *Memory) ItemHasLines(_ context.Context, id stock.ItemID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.itemHasLines(id), nil
}

func (m *Memory) ReasonInUse(_ context.Context, id stock.ReasonID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.reasonInUse(id), nil
}

func (m *Memory) GetAlert(_ context.Context, id stock.AlertID) (*stock.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getAlert(id), nil
}

func (m *Memory) OpenAlertForItem(_ context.Context, id stock.ItemID) (*stock.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.openAlert(id), nil
}

func (m *Memory) ListAlerts(_ context.Context, f stock.AlertFilter) ([]stock.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listAlerts(f), nil
}

// =============================================================================
// STATE QUERIES - caller holds the lock
// =============================================================================

func (s *state) getItem(id stock.ItemID) *stock.Item {
	item, ok := s.items[id]
	if !ok {
		return nil
	}
	return &item
}

func (s *state) listItems(f stock.ItemFilter) []stock.Item {
	var out []stock.Item
	for _, item := range s.items {
		if f.ActiveOnly && !item.Status.IsActive() {
			continue
		}
		if f.CategoryID != nil && item.CategoryID != *f.CategoryID {
			continue
		}
		if f.ItemID != nil && item.ID != *f.ItemID {
			continue
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *state) getReason(id stock.ReasonID) *stock.Reason {
	r, ok := s.reasons[id]
	if !ok {
		return nil
	}
	return &r
}

func (s *state) getActor(id stock.ActorID) *stock.Actor {
	a, ok := s.actors[id]
	if !ok {
		return nil
	}
	return &a
}

func (s *state) getStock(id stock.ItemID) *stock.CurrentStock {
	cur, ok := s.stock[id]
	if !ok {
		return nil
	}
	return &cur
}

func (s *state) listStock() []stock.CurrentStock {
	out := make([]stock.CurrentStock, 0, len(s.stock))
	for _, cur := range s.stock {
		out = append(out, cur)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out
}

func copyTxn(t stock.Transaction) *stock.Transaction {
	t.Lines = append([]stock.Line(nil), t.Lines...)
	return &t
}

func (s *state) getTransaction(id stock.TransactionID) *stock.Transaction {
	i := sort.Search(len(s.txns), func(i int) bool { return s.txns[i].ID >= id })
	if i == len(s.txns) || s.txns[i].ID != id {
		return nil
	}
	return copyTxn(s.txns[i])
}

func (s *state) listTransactions(f stock.TransactionFilter) []stock.Transaction {
	var out []stock.Transaction
	for _, t := range s.txns {
		if f.Kind != nil && t.Kind != *f.Kind {
			continue
		}
		if f.From != nil && t.Date.Before(*f.From) {
			continue
		}
		if f.To != nil && t.Date.After(*f.To) {
			continue
		}
		if f.ItemID != nil && !touches(t, *f.ItemID) {
			continue
		}
		out = append(out, *copyTxn(t))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func touches(t stock.Transaction, id stock.ItemID) bool {
	for _, l := range t.Lines {
		if l.ItemID == id {
			return true
		}
	}
	return false
}

func (s *state) findByKey(key string) *stock.Transaction {
	id, ok := s.keys[key]
	if !ok {
		return nil
	}
	return s.getTransaction(id)
}

func (s *state) findByReference(kind stock.Kind, ref string) *stock.Transaction {
	for _, t := range s.txns {
		if t.Kind == kind && t.ReferenceNo == ref {
			return copyTxn(t)
		}
	}
	return nil
}

func (s *state) ledgerLines(id stock.ItemID, from, to time.Time) []stock.LedgerLine {
	var out []stock.LedgerLine
	for _, t := range s.txns {
		if !from.IsZero() && t.Date.Before(from) {
			continue
		}
		if !to.IsZero() && t.Date.After(to) {
			continue
		}
		for _, l := range t.Lines {
			if l.ItemID != id {
				continue
			}
			ll := stock.LedgerLine{Line: l, Kind: t.Kind, Date: t.Date, ReferenceNo: t.ReferenceNo}
			if l.AdjustmentReasonID != nil {
				if r, ok := s.reasons[*l.AdjustmentReasonID]; ok {
					ll.ReasonText = r.Text
				}
			}
			out = append(out, ll)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *state) itemHasLines(id stock.ItemID) bool {
	for _, t := range s.txns {
		if touches(t, id) {
			return true
		}
	}
	return false
}

func (s *state) reasonInUse(id stock.ReasonID) bool {
	for _, t := range s.txns {
		for _, l := range t.Lines {
			if l.AdjustmentReasonID != nil && *l.AdjustmentReasonID == id {
				return true
			}
		}
	}
	return false
}

func (s *state) getAlert(id stock.AlertID) *stock.Alert {
	a, ok := s.alerts[id]
	if !ok {
		return nil
	}
	return &a
}

func (s *state) openAlert(id stock.ItemID) *stock.Alert {
	for _, a := range s.alerts {
		if a.ItemID == id && a.IsOpen() {
			return &a
		}
	}
	return nil
}

func (s *state) listAlerts(f stock.AlertFilter) []stock.Alert {
	var out []stock.Alert
	for _, a := range s.alerts {
		if f.Acknowledged != nil && *f.Acknowledged == a.IsOpen() {
			continue
		}
		if f.From != nil && a.AlertDate.Before(*f.From) {
			continue
		}
		if f.To != nil && a.AlertDate.After(*f.To) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AlertDate.Equal(out[j].AlertDate) {
			return out[i].AlertDate.After(out[j].AlertDate)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// =============================================================================
// TRANSACTIONAL VIEW - writes; the store lock is held by WithTx
// =============================================================================

type txView struct {
	st *state
}

func (tv *txView) GetItem(_ context.Context, id stock.ItemID) (*stock.Item, error) {
	return tv.st.getItem(id), nil
}

func (tv *txView) ListItems(_ context.Context, f stock.ItemFilter) ([]stock.Item, error) {
	return tv.st.listItems(f), nil
}

func (tv *txView) GetReason(_ context.Context, id stock.ReasonID) (*stock.Reason, error) {
	return tv.st.getReason(id), nil
}

func (tv *txView) GetActor(_ context.Context, id stock.ActorID) (*stock.Actor, error) {
	return tv.st.getActor(id), nil
}

func (tv *txView) GetStock(_ context.Context, id stock.ItemID) (*stock.CurrentStock, error) {
	return tv.st.getStock(id), nil
}

func (tv *txView) ListStock(_ context.Context) ([]stock.CurrentStock, error) {
	return tv.st.listStock(), nil
}

func (tv *txView) GetTransaction(_ context.Context, id stock.TransactionID) (*stock.Transaction, error) {
	return tv.st.getTransaction(id), nil
}

func (tv *txView) ListTransactions(_ context.Context, f stock.TransactionFilter) ([]stock.Transaction, error) {
	return tv.st.listTransactions(f), nil
}

func (tv *txView) FindTransactionByKey(_ context.Context, key string) (*stock.Transaction, error) {
	return tv.st.findByKey(key), nil
}

func (tv *txView) FindTransactionByReference(_ context.Context, kind stock.Kind, ref string) (*stock.Transaction, error) {
	return tv.st.findByReference(kind, ref), nil
}

func (tv *txView) LedgerLines(_ context.Context, id stock.ItemID, from, to time.Time) ([]stock.LedgerLine, error) {
	return tv.st.ledgerLines(id, from, to), nil
}

func (tv *txView) ItemHasLines(_ context.Context, id stock.ItemID) (bool, error) {
	return tv.st.itemHasLines(id), nil
}

func (tv *txView) ReasonInUse(_ context.Context, id stock.ReasonID) (bool, error) {
	return tv.st.reasonInUse(id), nil
}

func (tv *txView) GetAlert(_ context.Context, id stock.AlertID) (*stock.Alert, error) {
	return tv.st.getAlert(id), nil
}

func (tv *txView) OpenAlertForItem(_ context.Context, id stock.ItemID) (*stock.Alert, error) {
	return tv.st.openAlert(id), nil
}

func (tv *txView) ListAlerts(_ context.Context, f stock.AlertFilter) ([]stock.Alert, error) {
	return tv.st.listAlerts(f), nil
}

// LockStock is a plain read: WithTx already excludes every other writer.
func (tv *txView) LockStock(_ context.Context, id stock.ItemID) (*stock.CurrentStock, error) {
	return tv.st.getStock(id), nil
}

func (tv *txView) InsertTransaction(_ context.Context, txn *stock.Transaction) error {
	s := tv.st
	if txn.IdempotencyKey != "" {
		if _, ok := s.keys[txn.IdempotencyKey]; ok {
			return stock.ErrDuplicateIdempotencyKey
		}
	}

	s.nextTxn++
	txn.ID = stock.TransactionID(s.nextTxn)
	lines := make([]stock.Line, len(txn.Lines))
	for i := range txn.Lines {
		s.nextLine++
		txn.Lines[i].ID = stock.LineID(s.nextLine)
		txn.Lines[i].TransactionID = txn.ID
		lines[i] = txn.Lines[i]
	}

	stored := *txn
	stored.Lines = lines
	s.txns = append(s.txns, stored)
	if txn.IdempotencyKey != "" {
		s.keys[txn.IdempotencyKey] = txn.ID
	}
	return nil
}

func (tv *txView) ApplyStock(_ context.Context, prev *stock.CurrentStock, next stock.CurrentStock) error {
	cur, exists := tv.st.stock[next.ItemID]
	switch {
	case prev == nil && exists:
		return stock.ErrConcurrentModification
	case prev != nil && (!exists || cur.Version != prev.Version):
		return stock.ErrConcurrentModification
	}
	tv.st.stock[next.ItemID] = next
	return nil
}

func (tv *txView) InsertAlert(_ context.Context, alert *stock.Alert) error {
	if tv.st.openAlert(alert.ItemID) != nil {
		return errOpenAlertExists
	}
	tv.st.nextAlert++
	alert.ID = stock.AlertID(tv.st.nextAlert)
	tv.st.alerts[alert.ID] = *alert
	return nil
}

func (tv *txView) RefreshAlert(_ context.Context, alert stock.Alert) error {
	cur, ok := tv.st.alerts[alert.ID]
	if !ok || !cur.IsOpen() {
		return fmt.Errorf("memory: alert %d is not open", alert.ID)
	}
	cur.QtyOnHand = alert.QtyOnHand
	cur.MinStock = alert.MinStock
	cur.AlertDate = alert.AlertDate
	tv.st.alerts[alert.ID] = cur
	return nil
}

func (tv *txView) AcknowledgeAlert(_ context.Context, id stock.AlertID, by stock.ActorID, at time.Time) (bool, error) {
	cur, ok := tv.st.alerts[id]
	if !ok || !cur.IsOpen() {
		return false, nil
	}
	cur.AcknowledgedBy = &by
	cur.AcknowledgedAt = &at
	tv.st.alerts[id] = cur
	return true, nil
}

func (tv *txView) DeleteAlert(_ context.Context, id stock.AlertID) error {
	delete(tv.st.alerts, id)
	return nil
}

func (tv *txView) SetItemStatus(_ context.Context, id stock.ItemID, status stock.Status, by stock.ActorID, at time.Time) error {
	item, ok := tv.st.items[id]
	if !ok {
		return fmt.Errorf("memory: item %d does not exist", id)
	}
	item.Status = status
	item.ModifiedAt = &at
	item.ModifiedBy = &by
	tv.st.items[id] = item
	return nil
}

func (tv *txView) DeleteReason(_ context.Context, id stock.ReasonID) error {
	delete(tv.st.reasons, id)
	return nil
}
