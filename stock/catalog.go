/*
catalog.go - Collaborator contracts and catalog lifecycle rules

PURPOSE:
  The ledger never authenticates anyone and never owns master data. It
  consumes two collaborators:
  - ActorResolver: does this user id exist and is it active?
  - the item/reason catalog, read through the Store

  Two lifecycle rules live here because they depend on ledger state:
  - an item may be deactivated only with zero on hand and no history
  - a reason may be deleted only while no line references it
*/
package stock

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// =============================================================================
// ACTOR RESOLVER
// =============================================================================

// ActorResolver returns (nil, nil) for an unknown actor.
type ActorResolver interface {
	ResolveActor(ctx context.Context, id ActorID) (*Actor, error)
}

// StoreActors resolves actors from the store's actor table.
type StoreActors struct {
	Reader Reader
}

func (s StoreActors) ResolveActor(ctx context.Context, id ActorID) (*Actor, error) {
	return s.Reader.GetActor(ctx, id)
}

// requireActor must run outside WithTx: resolvers may read the store.
func requireActor(ctx context.Context, r ActorResolver, id ActorID, field string) error {
	if id <= 0 {
		return NewValidationError(field, "is required")
	}
	actor, err := r.ResolveActor(ctx, id)
	if err != nil {
		return asStorageError("resolve actor", err)
	}
	if actor == nil || !actor.Status.IsActive() {
		return NewValidationError(field, "unknown or inactive user")
	}
	return nil
}

// =============================================================================
// CATALOG LIFECYCLE
// =============================================================================

type Catalog struct {
	Store  Store
	Actors ActorResolver
	Locker Locker
	Log    zerolog.Logger
	Now    func() time.Time
}

func NewCatalog(store Store, locker Locker) *Catalog {
	return &Catalog{
		Store:  store,
		Actors: StoreActors{Reader: store},
		Locker: locker,
		Log:    zerolog.Nop(),
		Now:    time.Now,
	}
}

// DeactivateItem soft-deletes an item that has never moved.
func (c *Catalog) DeactivateItem(ctx context.Context, id ItemID, actor ActorID) error {
	if err := requireActor(ctx, c.Actors, actor, "actor_id"); err != nil {
		return err
	}
	unlock, err := lockOrConflict(ctx, c.Locker, []ItemID{id})
	if err != nil {
		return err
	}
	defer unlock()

	err = c.Store.WithTx(ctx, func(tx Tx) error {
		item, err := tx.GetItem(ctx, id)
		if err != nil {
			return err
		}
		if item == nil {
			return &NotFoundError{Resource: "item", ID: int64(id)}
		}
		if !item.Status.IsActive() {
			return &ConflictError{Resource: "item", ID: int64(id), Message: "already inactive"}
		}

		current, err := tx.GetStock(ctx, id)
		if err != nil {
			return err
		}
		if current != nil && !current.QtyOnHand.IsZero() {
			return &ConflictError{Resource: "item", ID: int64(id),
				Message: "cannot deactivate item with stock on hand (" + current.QtyOnHand.String() + " units)"}
		}

		hasLines, err := tx.ItemHasLines(ctx, id)
		if err != nil {
			return err
		}
		if hasLines {
			return &ConflictError{Resource: "item", ID: int64(id), Message: "cannot deactivate item with transaction history"}
		}
		return tx.SetItemStatus(ctx, id, StatusInactive, actor, c.Now().UTC())
	})
	if err != nil {
		return asStorageError("deactivate item", err)
	}

	c.Log.Info().Int64("item_id", int64(id)).Int64("actor_id", int64(actor)).Msg("item deactivated")
	return nil
}

// DeleteReason removes a reason that no adjustment line references.
func (c *Catalog) DeleteReason(ctx context.Context, id ReasonID, actor ActorID) error {
	if err := requireActor(ctx, c.Actors, actor, "actor_id"); err != nil {
		return err
	}

	err := c.Store.WithTx(ctx, func(tx Tx) error {
		reason, err := tx.GetReason(ctx, id)
		if err != nil {
			return err
		}
		if reason == nil {
			return &NotFoundError{Resource: "reason", ID: int64(id)}
		}
		inUse, err := tx.ReasonInUse(ctx, id)
		if err != nil {
			return err
		}
		if inUse {
			return &ConflictError{Resource: "reason", ID: int64(id), Message: "referenced by adjustment lines"}
		}
		return tx.DeleteReason(ctx, id)
	})
	if err != nil {
		return asStorageError("delete reason", err)
	}

	c.Log.Info().Int64("reason_id", int64(id)).Int64("actor_id", int64(actor)).Msg("reason deleted")
	return nil
}

// lockOrConflict takes the per-item locks and turns a lock that could not be
// obtained into a ConcurrencyError.
func lockOrConflict(ctx context.Context, locker Locker, ids []ItemID) (func(), error) {
	if locker == nil {
		return func() {}, nil
	}
	unlock, err := locker.Lock(ctx, StockLockKeys(ids))
	if err == nil {
		return unlock, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if IsRetryable(err) {
		return nil, &ConcurrencyError{ItemIDs: ids, Attempts: 1}
	}
	return nil, asStorageError("lock items", err)
}
