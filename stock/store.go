/*
store.go - Persistence interfaces for the ledger

PURPOSE:
  Defines the boundary between ledger logic and the database. Every write
  happens inside Store.WithTx so a request commits or rolls back as a whole.

KEY INTERFACES:
  Reader:  read-only queries, usable inside or outside a transaction
  Tx:      Reader + the write operations, only reachable through WithTx
  Store:   Reader + WithTx

APPEND-ONLY CONTRACT:
  Transactions and lines are inserted, never updated or deleted. The only
  mutable rows are current_stock (compare-and-swap on Version) and alerts.

LOCKING:
  LockStock reads the aggregate row with the strongest lock the backend
  offers (SELECT ... FOR UPDATE on MySQL). Backends that serialize writers
  (SQLite, memory) return a plain read. ApplyStock is a compare-and-swap
  either way, so a lost race surfaces as ErrConcurrentModification.

IMPLEMENTATIONS:
  - stock/store/memory.go: in-memory, snapshot rollback
  - store/sqlstore: SQLite and MySQL
*/
package stock

import (
	"context"
	"time"
)

// =============================================================================
// READER - queries
// =============================================================================

// Reader lookups return (nil, nil) when a record does not exist.
type Reader interface {
	GetItem(ctx context.Context, id ItemID) (*Item, error)
	ListItems(ctx context.Context, filter ItemFilter) ([]Item, error)
	GetReason(ctx context.Context, id ReasonID) (*Reason, error)
	GetActor(ctx context.Context, id ActorID) (*Actor, error)

	GetStock(ctx context.Context, id ItemID) (*CurrentStock, error)
	ListStock(ctx context.Context) ([]CurrentStock, error)

	GetTransaction(ctx context.Context, id TransactionID) (*Transaction, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)
	FindTransactionByKey(ctx context.Context, idempotencyKey string) (*Transaction, error)
	FindTransactionByReference(ctx context.Context, kind Kind, referenceNo string) (*Transaction, error)

	// LedgerLines returns lines for an item with from <= Date <= to, ordered
	// by (Date, line id). A zero from or to leaves that side unbounded.
	LedgerLines(ctx context.Context, itemID ItemID, from, to time.Time) ([]LedgerLine, error)
	ItemHasLines(ctx context.Context, itemID ItemID) (bool, error)
	ReasonInUse(ctx context.Context, reasonID ReasonID) (bool, error)

	GetAlert(ctx context.Context, id AlertID) (*Alert, error)
	OpenAlertForItem(ctx context.Context, itemID ItemID) (*Alert, error)
	ListAlerts(ctx context.Context, filter AlertFilter) ([]Alert, error)
}

// =============================================================================
// TX - writes, only inside WithTx
// =============================================================================

type Tx interface {
	Reader

	// LockStock returns the aggregate row for update, or nil if none exists.
	LockStock(ctx context.Context, id ItemID) (*CurrentStock, error)

	// InsertTransaction persists the header and its lines, assigning IDs in
	// place. Returns ErrDuplicateIdempotencyKey for a repeated key.
	InsertTransaction(ctx context.Context, txn *Transaction) error

	// ApplyStock writes next. prev == nil inserts a new row; otherwise the
	// row is updated only if its version still equals prev.Version.
	ApplyStock(ctx context.Context, prev *CurrentStock, next CurrentStock) error

	InsertAlert(ctx context.Context, alert *Alert) error
	// RefreshAlert updates the snapshot of an open alert.
	RefreshAlert(ctx context.Context, alert Alert) error
	// AcknowledgeAlert closes an open alert. Returns false if the alert was
	// already closed (or missing) when the update ran.
	AcknowledgeAlert(ctx context.Context, id AlertID, by ActorID, at time.Time) (bool, error)
	DeleteAlert(ctx context.Context, id AlertID) error

	SetItemStatus(ctx context.Context, id ItemID, status Status, by ActorID, at time.Time) error
	DeleteReason(ctx context.Context, id ReasonID) error
}

// =============================================================================
// STORE
// =============================================================================

// Store is the ledger store. WithTx runs fn atomically: any error from fn
// rolls back every write fn made.
//
// Inside fn only tx may be used. Both bundled stores serialize writers, so a
// call on the Store itself from within fn blocks forever.
type Store interface {
	Reader
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// CatalogWriter is implemented by stores that also host master data. The
// ledger never writes catalog records itself; seeding and tests do. SaveItem
// creates the item's zero aggregate row alongside a new item.
type CatalogWriter interface {
	SaveItem(ctx context.Context, item *Item) error
	SaveReason(ctx context.Context, reason *Reason) error
	SaveActor(ctx context.Context, actor *Actor) error
}
