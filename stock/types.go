/*
Package stock provides the stock transaction ledger for a single warehouse.

PURPOSE:
  Items flow in, out, or are adjusted. Every movement is recorded as a line of
  an immutable transaction, and a materialized on-hand quantity per item is
  kept in step with the ledger inside the same database transaction.

KEY CONCEPTS IN THIS FILE (types.go):
  - Quantity: decimal amount of stock (never floating point)
  - Direction: sign of a movement, +1 inward, -1 outward
  - Transaction / Line: immutable ledger header and its movement lines
  - CurrentStock: the per-item running aggregate
  - Alert: low-stock signal, open until acknowledged
  - Item / Reason / Actor: catalog records owned by collaborators

INVARIANT:
  QtyOnHand(item) == sum(line.Quantity * line.Direction) over committed lines.

IDENTITIES:
  Records reference each other by integer identity only. There are no
  embedded object graphs; lookups go through the Store.

SEE ALSO:
  - processor.go: the only writer of transactions and the aggregate
  - ledger.go: balance reconstruction from lines
  - alerts.go: low-stock alert engine
*/
package stock

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ItemID int64
type ReasonID int64
type ActorID int64
type CategoryID int64
type UOMID int64
type TransactionID int64
type LineID int64
type AlertID int64

func (id ItemID) String() string        { return strconv.FormatInt(int64(id), 10) }
func (id TransactionID) String() string { return strconv.FormatInt(int64(id), 10) }
func (id AlertID) String() string       { return strconv.FormatInt(int64(id), 10) }

// =============================================================================
// QUANTITY & DIRECTION
// =============================================================================

// Quantity is an amount of stock in the item's unit of measure.
type Quantity = decimal.Decimal

// Qty is a shorthand constructor used heavily in tests and seed data.
func Qty(v int64) Quantity { return decimal.NewFromInt(v) }

// Direction is the sign of a movement.
type Direction int8

const (
	DirectionIn  Direction = 1
	DirectionOut Direction = -1
)

func (d Direction) Valid() bool { return d == DirectionIn || d == DirectionOut }

func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "INWARD"
	case DirectionOut:
		return "OUTWARD"
	default:
		return "UNKNOWN"
	}
}

// Signed returns q with the direction's sign applied.
func (d Direction) Signed(q Quantity) Quantity {
	if d == DirectionOut {
		return q.Neg()
	}
	return q
}

// =============================================================================
// LIFECYCLE STATUS
// =============================================================================

// Status replaces per-entity boolean flags. Every existence check that cares
// about soft deletion goes through IsActive.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

func (s Status) IsActive() bool { return s == StatusActive }

// =============================================================================
// CATALOG RECORDS (owned by master-data collaborators)
// =============================================================================

type Item struct {
	ID         ItemID
	Code       string
	Name       string
	CategoryID CategoryID
	UOMID      UOMID
	MinStock   Quantity
	Status     Status
	CreatedAt  time.Time
	ModifiedAt *time.Time
	ModifiedBy *ActorID
}

type Reason struct {
	ID     ReasonID
	Text   string
	Status Status
}

// Actor is a user known to the identity collaborator.
type Actor struct {
	ID     ActorID
	Name   string
	Status Status
}

// =============================================================================
// TRANSACTIONS - immutable once committed
// =============================================================================

type Kind string

const (
	KindInward     Kind = "INWARD"
	KindOutward    Kind = "OUTWARD"
	KindAdjustment Kind = "ADJUST"
)

func (k Kind) Valid() bool {
	return k == KindInward || k == KindOutward || k == KindAdjustment
}

// FixedDirection returns the direction every line of this kind must carry.
// Adjustments have no fixed direction.
func (k Kind) FixedDirection() (Direction, bool) {
	switch k {
	case KindInward:
		return DirectionIn, true
	case KindOutward:
		return DirectionOut, true
	default:
		return 0, false
	}
}

type Transaction struct {
	ID             TransactionID
	Kind           Kind
	Date           time.Time
	ReferenceNo    string
	Remarks        string
	IdempotencyKey string
	CreatedAt      time.Time
	CreatedBy      ActorID
	Lines          []Line
}

type Line struct {
	ID                 LineID
	TransactionID      TransactionID
	ItemID             ItemID
	Quantity           Quantity
	Direction          Direction
	AdjustmentReasonID *ReasonID
	UnitPrice          *decimal.Decimal
	TotalAmount        decimal.Decimal
	Remarks            string
	CreatedAt          time.Time
	CreatedBy          ActorID
}

// Movement is the signed quantity this line contributes to the item balance.
func (l Line) Movement() Quantity { return l.Direction.Signed(l.Quantity) }

// NetQuantity is the signed sum of all lines.
func (t Transaction) NetQuantity() Quantity {
	net := decimal.Zero
	for _, l := range t.Lines {
		net = net.Add(l.Movement())
	}
	return net
}

// LedgerLine is a committed line joined with its header, as read by
// balance reconstruction and ledger queries.
type LedgerLine struct {
	Line
	Kind        Kind
	Date        time.Time
	ReferenceNo string
	ReasonText  string
}

// =============================================================================
// CURRENT STOCK - materialized aggregate
// =============================================================================

// CurrentStock is the one mutable projection in the system. Version
// increments on every write and guards the compare-and-swap update.
type CurrentStock struct {
	ItemID    ItemID
	QtyOnHand Quantity
	Version   int64
	UpdatedAt time.Time
}

// =============================================================================
// ALERTS
// =============================================================================

type Alert struct {
	ID             AlertID
	ItemID         ItemID
	QtyOnHand      Quantity
	MinStock       Quantity
	AlertDate      time.Time
	AcknowledgedBy *ActorID
	AcknowledgedAt *time.Time
}

func (a Alert) IsOpen() bool { return a.AcknowledgedAt == nil }

// Shortage is how far below the threshold the snapshot was.
func (a Alert) Shortage() Quantity { return a.MinStock.Sub(a.QtyOnHand) }

// =============================================================================
// QUERY FILTERS
// =============================================================================

type ItemFilter struct {
	ActiveOnly bool
	CategoryID *CategoryID
	ItemID     *ItemID
}

type TransactionFilter struct {
	Kind   *Kind
	From   *time.Time
	To     *time.Time
	ItemID *ItemID
}

type AlertFilter struct {
	Acknowledged *bool
	From         *time.Time
	To           *time.Time
}
