/*
alerts.go - Low-stock Alert Engine

STATE MACHINE (per item):

	no-alert --(qty < min)--> open --(acknowledge)--> closed
	                           ^  |                     |
	                           |  +--(qty < min again)  |
	                           |     refresh snapshot   |
	                           +-----(qty < min again)--+

  At most one open alert exists per item. Check either creates it or
  refreshes its snapshot (quantity, threshold, alert date). Closed alerts are
  kept as history; a new shortage after closure opens a fresh alert.

WRITERS:
  - Processor, through Check, inside the movement's transaction
  - Reconcile, one transaction per low item, under the item lock
  - Acknowledge / AcknowledgeBulk / DeleteAlert
*/
package stock

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

type AlertEngine struct {
	Store  Store
	Actors ActorResolver
	Locker Locker
	Events EventSink
	Log    zerolog.Logger
	Now    func() time.Time
}

func NewAlertEngine(store Store, locker Locker) *AlertEngine {
	return &AlertEngine{
		Store:  store,
		Actors: StoreActors{Reader: store},
		Locker: locker,
		Events: NopSink{},
		Log:    zerolog.Nop(),
		Now:    time.Now,
	}
}

// BulkAcknowledgeResult reports which ids were closed and how many were
// skipped because they were unknown or already acknowledged.
type BulkAcknowledgeResult struct {
	Acknowledged []AlertID
	Skipped      int
}

type ReconcileResult struct {
	NewAlerts          int
	Refreshed          int
	TotalLowStockItems int
}

type AlertSummary struct {
	Total        int
	Open         int
	Acknowledged int
	// Critical counts open alerts whose snapshot quantity is zero or less.
	Critical   int
	OldestOpen *time.Time
}

// =============================================================================
// CHECK - create or refresh, inside the caller's transaction
// =============================================================================

// Check returns the event to publish after commit, or nil when newQty is
// not below minLevel.
func (e *AlertEngine) Check(ctx context.Context, tx Tx, itemID ItemID, newQty, minLevel Quantity) (*Event, error) {
	if !newQty.LessThan(minLevel) {
		return nil, nil
	}
	now := e.now().UTC()

	open, err := tx.OpenAlertForItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if open != nil {
		open.QtyOnHand = newQty
		open.MinStock = minLevel
		open.AlertDate = now
		if err := tx.RefreshAlert(ctx, *open); err != nil {
			return nil, err
		}
		return alertEvent(EventAlertRefreshed, *open, now, 0), nil
	}

	alert := &Alert{ItemID: itemID, QtyOnHand: newQty, MinStock: minLevel, AlertDate: now}
	if err := tx.InsertAlert(ctx, alert); err != nil {
		return nil, err
	}
	return alertEvent(EventAlertRaised, *alert, now, 0), nil
}

// =============================================================================
// ACKNOWLEDGE
// =============================================================================

func (e *AlertEngine) Acknowledge(ctx context.Context, id AlertID, actor ActorID) error {
	alert, err := e.Store.GetAlert(ctx, id)
	if err != nil {
		return asStorageError("acknowledge alert", err)
	}
	if alert == nil {
		return &NotFoundError{Resource: "alert", ID: int64(id)}
	}
	if !alert.IsOpen() {
		return &ConflictError{Resource: "alert", ID: int64(id), Message: "already acknowledged"}
	}
	if err := requireActor(ctx, e.Actors, actor, "user_id"); err != nil {
		return err
	}

	now := e.now().UTC()
	err = e.Store.WithTx(ctx, func(tx Tx) error {
		ok, err := tx.AcknowledgeAlert(ctx, id, actor, now)
		if err != nil {
			return err
		}
		if !ok {
			return &ConflictError{Resource: "alert", ID: int64(id), Message: "already acknowledged"}
		}
		return nil
	})
	if err != nil {
		return asStorageError("acknowledge alert", err)
	}

	e.Log.Info().Int64("alert_id", int64(id)).Int64("actor_id", int64(actor)).Msg("alert acknowledged")
	alert.AcknowledgedBy = &actor
	alert.AcknowledgedAt = &now
	emit(ctx, e.Events, e.Log, []Event{*alertEvent(EventAlertAcknowledged, *alert, now, actor)})
	return nil
}

// AcknowledgeBulk closes every open alert among ids. It fails only when none
// of them is open.
func (e *AlertEngine) AcknowledgeBulk(ctx context.Context, ids []AlertID, actor ActorID) (BulkAcknowledgeResult, error) {
	var result BulkAcknowledgeResult
	if len(ids) == 0 {
		return result, NewValidationError("alert_ids", "at least one alert id is required")
	}
	if err := requireActor(ctx, e.Actors, actor, "user_id"); err != nil {
		return result, err
	}

	now := e.now().UTC()
	var closed []Alert
	err := e.Store.WithTx(ctx, func(tx Tx) error {
		seen := make(map[AlertID]bool, len(ids))
		for _, id := range ids {
			if seen[id] {
				result.Skipped++
				continue
			}
			seen[id] = true

			alert, err := tx.GetAlert(ctx, id)
			if err != nil {
				return err
			}
			ok := false
			if alert != nil && alert.IsOpen() {
				if ok, err = tx.AcknowledgeAlert(ctx, id, actor, now); err != nil {
					return err
				}
			}
			if !ok {
				result.Skipped++
				continue
			}
			result.Acknowledged = append(result.Acknowledged, id)
			closed = append(closed, *alert)
		}
		if len(result.Acknowledged) == 0 {
			return &NotFoundError{Resource: "open alert"}
		}
		return nil
	})
	if err != nil {
		return BulkAcknowledgeResult{}, asStorageError("acknowledge alerts", err)
	}

	e.Log.Info().
		Int("acknowledged", len(result.Acknowledged)).
		Int("skipped", result.Skipped).
		Int64("actor_id", int64(actor)).
		Msg("alerts acknowledged")

	events := make([]Event, 0, len(closed))
	for _, a := range closed {
		a.AcknowledgedBy = &actor
		a.AcknowledgedAt = &now
		events = append(events, *alertEvent(EventAlertAcknowledged, a, now, actor))
	}
	emit(ctx, e.Events, e.Log, events)
	return result, nil
}

// =============================================================================
// RECONCILE - batch scan of active items below their threshold
// =============================================================================

// Reconcile upserts an alert for every active item whose on-hand quantity
// is below its minimum. Running it twice without movement in between
// refreshes the same alerts and creates none.
func (e *AlertEngine) Reconcile(ctx context.Context) (ReconcileResult, error) {
	var result ReconcileResult

	items, err := e.Store.ListItems(ctx, ItemFilter{ActiveOnly: true})
	if err != nil {
		return result, asStorageError("reconcile alerts", err)
	}
	stock, err := stockByItem(ctx, e.Store)
	if err != nil {
		return result, asStorageError("reconcile alerts", err)
	}

	var events []Event
	for _, item := range items {
		if !onHand(stock, item.ID).LessThan(item.MinStock) {
			continue
		}

		ev, err := e.reconcileItem(ctx, item.ID)
		if err != nil {
			return result, err
		}
		if ev == nil {
			continue
		}
		result.TotalLowStockItems++
		if ev.Type == EventAlertRaised {
			result.NewAlerts++
		} else {
			result.Refreshed++
		}
		events = append(events, *ev)
	}

	e.Log.Info().
		Int("new_alerts", result.NewAlerts).
		Int("refreshed", result.Refreshed).
		Int("low_stock_items", result.TotalLowStockItems).
		Msg("alerts reconciled")

	emit(ctx, e.Events, e.Log, events)
	return result, nil
}

// reconcileItem re-reads the item and its stock under the item lock, since
// a movement may have committed between the scan and now.
func (e *AlertEngine) reconcileItem(ctx context.Context, id ItemID) (*Event, error) {
	unlock, err := lockOrConflict(ctx, e.Locker, []ItemID{id})
	if err != nil {
		return nil, err
	}
	defer unlock()

	var ev *Event
	err = e.Store.WithTx(ctx, func(tx Tx) error {
		item, err := tx.GetItem(ctx, id)
		if err != nil || item == nil || !item.Status.IsActive() {
			return err
		}
		cur, err := tx.GetStock(ctx, id)
		if err != nil {
			return err
		}
		qty := Qty(0)
		if cur != nil {
			qty = cur.QtyOnHand
		}
		ev, err = e.Check(ctx, tx, id, qty, item.MinStock)
		return err
	})
	if err != nil {
		return nil, asStorageError("reconcile alerts", err)
	}
	return ev, nil
}

// =============================================================================
// DELETE & QUERIES
// =============================================================================

func (e *AlertEngine) DeleteAlert(ctx context.Context, id AlertID, actor ActorID) error {
	if err := requireActor(ctx, e.Actors, actor, "user_id"); err != nil {
		return err
	}

	var deleted Alert
	err := e.Store.WithTx(ctx, func(tx Tx) error {
		alert, err := tx.GetAlert(ctx, id)
		if err != nil {
			return err
		}
		if alert == nil {
			return &NotFoundError{Resource: "alert", ID: int64(id)}
		}
		deleted = *alert
		return tx.DeleteAlert(ctx, id)
	})
	if err != nil {
		return asStorageError("delete alert", err)
	}

	now := e.now().UTC()
	e.Log.Info().Int64("alert_id", int64(id)).Int64("actor_id", int64(actor)).Msg("alert deleted")
	emit(ctx, e.Events, e.Log, []Event{*alertEvent(EventAlertDeleted, deleted, now, actor)})
	return nil
}

func (e *AlertEngine) GetAlert(ctx context.Context, id AlertID) (*Alert, error) {
	alert, err := e.Store.GetAlert(ctx, id)
	if err != nil {
		return nil, asStorageError("get alert", err)
	}
	if alert == nil {
		return nil, &NotFoundError{Resource: "alert", ID: int64(id)}
	}
	return alert, nil
}

// ListAlerts returns alerts newest first.
func (e *AlertEngine) ListAlerts(ctx context.Context, filter AlertFilter) ([]Alert, error) {
	alerts, err := e.Store.ListAlerts(ctx, filter)
	if err != nil {
		return nil, asStorageError("list alerts", err)
	}
	return alerts, nil
}

func (e *AlertEngine) Summary(ctx context.Context) (AlertSummary, error) {
	var s AlertSummary
	alerts, err := e.Store.ListAlerts(ctx, AlertFilter{})
	if err != nil {
		return s, asStorageError("alert summary", err)
	}
	for _, a := range alerts {
		s.Total++
		if !a.IsOpen() {
			s.Acknowledged++
			continue
		}
		s.Open++
		if !a.QtyOnHand.IsPositive() {
			s.Critical++
		}
		if s.OldestOpen == nil || a.AlertDate.Before(*s.OldestOpen) {
			d := a.AlertDate
			s.OldestOpen = &d
		}
	}
	return s, nil
}

func alertEvent(t EventType, a Alert, at time.Time, actor ActorID) *Event {
	qty, threshold := a.QtyOnHand, a.MinStock
	return &Event{
		Type:       t,
		OccurredAt: at,
		ActorID:    actor,
		AlertID:    a.ID,
		ItemID:     a.ItemID,
		QtyOnHand:  &qty,
		MinStock:   &threshold,
	}
}

func (e *AlertEngine) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}
