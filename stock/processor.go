/*
processor.go - Transaction Processor, the only writer of the ledger

PURPOSE:
  Turns a MovementRequest into one committed transaction: header, lines,
  aggregate update and alert checks, all inside a single Store.WithTx.
  Either everything commits or nothing does.

FLOW (per request):
  1. Validate the request shape (no store access)
  2. Resolve the actor (outside the transaction)
  3. Lock every referenced item, keys in sorted order
  4. Inside WithTx:
     a. item exists + active, reason exists + active, for every line
     b. lock aggregate rows, replay the lines in input order against them,
        rejecting the whole request on the first shortfall
     c. insert header + lines
     d. compare-and-swap each aggregate row once, with its final value
     e. alert check per decreasing line, with the post-line quantity
  5. On ErrConcurrentModification, retry from 4 up to MaxRetries times
  6. Emit events after commit

CONCURRENCY:
  The Locker closes the check-then-apply race between requests in the same
  deployment (LocalLocker) or across processes (lock.RedisLocker). The
  version CAS catches any writer that bypassed the Locker. MySQL also takes
  row locks with SELECT ... FOR UPDATE.

CORRECTIONS:
  Committed transactions are never edited or deleted. Reverse writes a
  compensating adjustment whose lines mirror the original.
*/
package stock

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const DefaultMaxRetries = 3

// NoRetries as Options.MaxRetries fails a request on its first lost race.
const NoRetries = -1

// ReversalPrefix marks the idempotency key and reference of a reversal.
const ReversalPrefix = "REV-"

type Processor struct {
	Store      Store
	Actors     ActorResolver
	Locker     Locker
	Alerts     *AlertEngine
	Events     EventSink
	Log        zerolog.Logger
	Now        func() time.Time
	MaxRetries int
}

func NewProcessor(store Store, locker Locker, alerts *AlertEngine) *Processor {
	return &Processor{
		Store:      store,
		Actors:     StoreActors{Reader: store},
		Locker:     locker,
		Alerts:     alerts,
		Events:     NopSink{},
		Log:        zerolog.Nop(),
		Now:        time.Now,
		MaxRetries: DefaultMaxRetries,
	}
}

func (p *Processor) CreateInward(ctx context.Context, req MovementRequest) (TransactionID, error) {
	return p.create(ctx, KindInward, req)
}

func (p *Processor) CreateOutward(ctx context.Context, req MovementRequest) (TransactionID, error) {
	return p.create(ctx, KindOutward, req)
}

func (p *Processor) CreateAdjustment(ctx context.Context, req MovementRequest) (TransactionID, error) {
	return p.create(ctx, KindAdjustment, req)
}

// Reverse posts a compensating adjustment for a committed transaction. Each
// transaction can be reversed once and a reversal cannot itself be reversed.
func (p *Processor) Reverse(ctx context.Context, id TransactionID, reason ReasonID, actor ActorID) (TransactionID, error) {
	original, err := p.Store.GetTransaction(ctx, id)
	if err != nil {
		return 0, asStorageError("reverse", err)
	}
	if original == nil {
		return 0, &NotFoundError{Resource: "transaction", ID: int64(id)}
	}
	if strings.HasPrefix(original.IdempotencyKey, ReversalPrefix) {
		return 0, &ConflictError{Resource: "transaction", ID: int64(id), Message: "a reversal cannot be reversed"}
	}

	key := ReversalPrefix + id.String()
	existing, err := p.Store.FindTransactionByKey(ctx, key)
	if err != nil {
		return 0, asStorageError("reverse", err)
	}
	if existing != nil {
		return 0, &ConflictError{Resource: "transaction", ID: int64(id),
			Message: "already reversed by transaction " + existing.ID.String()}
	}

	req := MovementRequest{
		Date:           p.now(),
		ReferenceNo:    key,
		Remarks:        "Reversal of transaction " + id.String(),
		IdempotencyKey: key,
		CreatedBy:      actor,
	}
	for _, l := range original.Lines {
		r := reason
		req.Lines = append(req.Lines, LineRequest{
			ItemID:             l.ItemID,
			Quantity:           l.Quantity,
			Direction:          -l.Direction,
			UnitPrice:          l.UnitPrice,
			AdjustmentReasonID: &r,
			Remarks:            l.Remarks,
		})
	}
	return p.create(ctx, KindAdjustment, req)
}

// =============================================================================
// CREATE
// =============================================================================

type committed struct {
	txn    Transaction
	stock  map[ItemID]CurrentStock
	events []Event
}

func (p *Processor) create(ctx context.Context, kind Kind, req MovementRequest) (TransactionID, error) {
	now := p.now()
	log := p.Log.With().Str("kind", string(kind)).Str("ref", req.ReferenceNo).Logger()

	if err := validateMovement(kind, req, now); err != nil {
		log.Debug().Err(err).Msg("movement rejected")
		return 0, err
	}
	if err := requireActor(ctx, p.Actors, req.CreatedBy, "created_by"); err != nil {
		log.Debug().Err(err).Msg("movement rejected")
		return 0, err
	}

	items := distinctItems(req.Lines)
	unlock, err := lockOrConflict(ctx, p.Locker, items)
	if err != nil {
		return 0, err
	}
	defer unlock()

	var result *committed
	attempt := 0
	for {
		attempt++
		result, err = p.commit(ctx, kind, req, now)
		if !errors.Is(err, ErrConcurrentModification) || attempt > p.MaxRetries {
			break
		}
		log.Warn().Int("attempt", attempt).Msg("stock version changed, retrying")
	}

	if err != nil {
		switch {
		case errors.Is(err, ErrConcurrentModification):
			err = &ConcurrencyError{ItemIDs: items, Attempts: attempt}
			log.Warn().Err(err).Msg("movement aborted")
		case errors.Is(err, ErrDuplicateIdempotencyKey):
			err = &ConflictError{Resource: "transaction", Message: "idempotency key " + req.IdempotencyKey + " already used"}
		case isDomainError(err):
			log.Debug().Err(err).Msg("movement rejected")
		default:
			err = asStorageError("create "+strings.ToLower(string(kind)), err)
			log.Error().Err(err).Msg("movement rolled back")
		}
		return 0, err
	}

	log.Info().
		Int64("transaction_id", int64(result.txn.ID)).
		Int("lines", len(result.txn.Lines)).
		Int64("actor_id", int64(req.CreatedBy)).
		Msg("transaction committed")

	emit(ctx, p.Events, p.Log, append([]Event{movementEvent(result)}, result.events...))
	return result.txn.ID, nil
}

// commit runs one attempt. Every check happens before the first write.
func (p *Processor) commit(ctx context.Context, kind Kind, req MovementRequest, now time.Time) (*committed, error) {
	var out *committed
	err := p.Store.WithTx(ctx, func(tx Tx) error {
		if req.IdempotencyKey != "" {
			existing, err := tx.FindTransactionByKey(ctx, req.IdempotencyKey)
			if err != nil {
				return err
			}
			if existing != nil {
				return &ConflictError{Resource: "transaction", ID: int64(existing.ID),
					Message: "idempotency key " + req.IdempotencyKey + " already used"}
			}
		}

		catalog, err := loadLineCatalog(ctx, tx, req.Lines)
		if err != nil {
			return err
		}

		ids := make([]ItemID, 0, len(catalog))
		for id := range catalog {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		prev := make(map[ItemID]*CurrentStock, len(ids))
		running := make(map[ItemID]Quantity, len(ids))
		for _, id := range ids {
			cur, err := tx.LockStock(ctx, id)
			if err != nil {
				return err
			}
			prev[id] = cur
			running[id] = decimal.Zero
			if cur != nil {
				running[id] = cur.QtyOnHand
			}
		}

		type decrease struct {
			item ItemID
			qty  Quantity
		}
		var decreases []decrease

		txn := Transaction{
			Kind:           kind,
			Date:           req.Date.UTC(),
			ReferenceNo:    req.ReferenceNo,
			Remarks:        req.Remarks,
			IdempotencyKey: req.IdempotencyKey,
			CreatedAt:      now.UTC(),
			CreatedBy:      req.CreatedBy,
		}
		for _, l := range req.Lines {
			dir := lineDirection(kind, l)
			if dir == DirectionOut && running[l.ItemID].LessThan(l.Quantity) {
				return &InsufficientStockError{
					ItemID:    l.ItemID,
					Code:      catalog[l.ItemID].Code,
					Available: running[l.ItemID],
					Requested: l.Quantity,
				}
			}
			running[l.ItemID] = running[l.ItemID].Add(dir.Signed(l.Quantity))
			if dir == DirectionOut {
				decreases = append(decreases, decrease{item: l.ItemID, qty: running[l.ItemID]})
			}

			price := decimal.Zero
			if l.UnitPrice != nil {
				price = *l.UnitPrice
			}
			txn.Lines = append(txn.Lines, Line{
				ItemID:             l.ItemID,
				Quantity:           l.Quantity,
				Direction:          dir,
				AdjustmentReasonID: l.AdjustmentReasonID,
				UnitPrice:          l.UnitPrice,
				TotalAmount:        l.Quantity.Mul(price),
				Remarks:            l.Remarks,
				CreatedAt:          now.UTC(),
				CreatedBy:          req.CreatedBy,
			})
		}

		if err := tx.InsertTransaction(ctx, &txn); err != nil {
			return err
		}

		next := make(map[ItemID]CurrentStock, len(ids))
		for _, id := range ids {
			n := CurrentStock{ItemID: id, QtyOnHand: running[id], Version: 1, UpdatedAt: now.UTC()}
			if prev[id] != nil {
				n.Version = prev[id].Version + 1
			}
			if err := tx.ApplyStock(ctx, prev[id], n); err != nil {
				return err
			}
			next[id] = n
		}

		var events []Event
		if p.Alerts != nil {
			for _, d := range decreases {
				ev, err := p.Alerts.Check(ctx, tx, d.item, d.qty, catalog[d.item].MinStock)
				if err != nil {
					return err
				}
				if ev != nil {
					events = append(events, *ev)
				}
			}
		}

		out = &committed{txn: txn, stock: next, events: events}
		return nil
	})
	return out, err
}

// loadLineCatalog checks every item and reason a request references.
func loadLineCatalog(ctx context.Context, r Reader, lines []LineRequest) (map[ItemID]Item, error) {
	items := make(map[ItemID]Item)
	reasons := make(map[ReasonID]bool)
	for _, l := range lines {
		if _, ok := items[l.ItemID]; !ok {
			item, err := r.GetItem(ctx, l.ItemID)
			if err != nil {
				return nil, err
			}
			if item == nil {
				return nil, &NotFoundError{Resource: "item", ID: int64(l.ItemID)}
			}
			if !item.Status.IsActive() {
				return nil, &InactiveItemError{ItemID: item.ID, Code: item.Code}
			}
			items[l.ItemID] = *item
		}

		if l.AdjustmentReasonID == nil || reasons[*l.AdjustmentReasonID] {
			continue
		}
		reason, err := r.GetReason(ctx, *l.AdjustmentReasonID)
		if err != nil {
			return nil, err
		}
		if reason == nil {
			return nil, &NotFoundError{Resource: "reason", ID: int64(*l.AdjustmentReasonID)}
		}
		if !reason.Status.IsActive() {
			return nil, NewValidationError("adjustment_reason_id", "reason "+strconv.FormatInt(int64(reason.ID), 10)+" is inactive")
		}
		reasons[reason.ID] = true
	}
	return items, nil
}

func distinctItems(lines []LineRequest) []ItemID {
	seen := make(map[ItemID]bool, len(lines))
	ids := make([]ItemID, 0, len(lines))
	for _, l := range lines {
		if !seen[l.ItemID] {
			seen[l.ItemID] = true
			ids = append(ids, l.ItemID)
		}
	}
	return ids
}

func movementEvent(c *committed) Event {
	net := make(map[ItemID]Quantity)
	var order []ItemID
	for _, l := range c.txn.Lines {
		if _, ok := net[l.ItemID]; !ok {
			order = append(order, l.ItemID)
			net[l.ItemID] = decimal.Zero
		}
		net[l.ItemID] = net[l.ItemID].Add(l.Movement())
	}

	ev := Event{
		Type:          EventMovementCommitted,
		OccurredAt:    c.txn.CreatedAt,
		ActorID:       c.txn.CreatedBy,
		TransactionID: c.txn.ID,
		Kind:          c.txn.Kind,
	}
	for _, id := range order {
		ev.Movements = append(ev.Movements, ItemMovement{ItemID: id, Movement: net[id], QtyOnHand: c.stock[id].QtyOnHand})
	}
	return ev
}

func (p *Processor) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}
