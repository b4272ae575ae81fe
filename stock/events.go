package stock

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// =============================================================================
// DOMAIN EVENTS - emitted after commit, never part of the atomic unit
// =============================================================================

type EventType string

const (
	EventMovementCommitted EventType = "movement.committed"
	EventAlertRaised       EventType = "alert.raised"
	EventAlertRefreshed    EventType = "alert.refreshed"
	EventAlertAcknowledged EventType = "alert.acknowledged"
	EventAlertDeleted      EventType = "alert.deleted"
)

type ItemMovement struct {
	ItemID    ItemID   `json:"item_id"`
	Movement  Quantity `json:"movement"`
	QtyOnHand Quantity `json:"qty_on_hand"`
}

type Event struct {
	Type          EventType      `json:"type"`
	OccurredAt    time.Time      `json:"occurred_at"`
	ActorID       ActorID        `json:"actor_id,omitempty"`
	TransactionID TransactionID  `json:"transaction_id,omitempty"`
	Kind          Kind           `json:"kind,omitempty"`
	Movements     []ItemMovement `json:"movements,omitempty"`
	AlertID       AlertID        `json:"alert_id,omitempty"`
	ItemID        ItemID         `json:"item_id,omitempty"`
	QtyOnHand     *Quantity      `json:"qty_on_hand,omitempty"`
	MinStock      *Quantity      `json:"min_stock,omitempty"`
}

// EventSink receives events once the transaction that produced them has
// committed. Implementations live in the events package.
type EventSink interface {
	Publish(ctx context.Context, event Event) error
}

type NopSink struct{}

func (NopSink) Publish(context.Context, Event) error { return nil }

// emit publishes best-effort. A failed publish is logged; the ledger write
// it describes has already committed.
func emit(ctx context.Context, sink EventSink, log zerolog.Logger, events []Event) {
	if sink == nil {
		return
	}
	for _, e := range events {
		if err := sink.Publish(ctx, e); err != nil {
			log.Warn().Err(err).Str("event", string(e.Type)).Msg("event publish failed")
		}
	}
}
