/*
Package sqlstore provides a database/sql implementation of stock.Store for
SQLite and MySQL.

PURPOSE:
  Same queries, two dialects. SQLite is the single-node default; MySQL is
  for deployments where several server processes share one database.

APPEND-ONLY ENFORCEMENT:
  No UPDATE or DELETE statement touches stock_transactions or
  stock_transaction_lines. Corrections are compensating adjustments.

CONCURRENCY:
  SQLite: one open connection. Writers are serialized by the database
  handle itself, so LockStock is a plain read.
  MySQL: LockStock is SELECT ... FOR UPDATE. Callers lock in sorted item
  order so concurrent requests cannot deadlock on each other. A deadlock or
  lock wait timeout raised by the server surfaces as
  stock.ErrConcurrentModification and is retried by the processor.

  Either way ApplyStock is a compare-and-swap on current_stock.version:

    UPDATE current_stock SET ... WHERE item_id = ? AND version = ?

  and zero affected rows means another writer got there first.

WITHTX:
  Inside fn only the stock.Tx may be used. With SQLite's single connection
  a query on the Store itself waits for the transaction to finish, which it
  never does.

MIGRATION:
  Schema is auto-migrated on open (CREATE ... IF NOT EXISTS).
*/
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/warp/stock-ledger/stock"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements stock.Store and stock.CatalogWriter.
type Store struct {
	queries
	db *sql.DB
}

// NewSQLite opens (and migrates) a SQLite database.
// Use ":memory:" for an in-memory database.
func NewSQLite(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and serializes
	// writers.
	db.SetMaxOpenConns(1)
	return open(db, sqliteDialect)
}

// NewMySQL opens (and migrates) a MySQL database from a go-sql-driver DSN,
// e.g. "user:pass@tcp(localhost:3306)/stock".
func NewMySQL(dsn string) (*Store, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse mysql dsn: %w", err)
	}
	if cfg.Params == nil {
		cfg.Params = map[string]string{}
	}
	cfg.Params["transaction_isolation"] = "'READ-COMMITTED'"
	// RowsAffected must count matched rows for the compare-and-swap updates.
	cfg.ClientFoundRows = true

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	return open(db, mysqlDialect)
}

// Open opens a store by driver name: "sqlite3" or "mysql".
func Open(driver, dsn string) (*Store, error) {
	switch driver {
	case "sqlite3", "sqlite":
		return NewSQLite(dsn)
	case "mysql":
		return NewMySQL(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func open(db *sql.DB, d dialect) (*Store, error) {
	s := &Store{queries: queries{q: db, d: d}, db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range s.d.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the handle for maintenance scripts and tests.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Driver() string { return s.d.name }

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(stock.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.translate(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{queries: queries{q: sqlTx, d: s.d}}); err != nil {
		return s.translate(err)
	}
	if err := sqlTx.Commit(); err != nil {
		return s.translate(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

// translate turns server-side lock conflicts into the retryable sentinel.
func (s *Store) translate(err error) error {
	if s.d.isRetryable(err) {
		return fmt.Errorf("%w: %v", stock.ErrConcurrentModification, err)
	}
	return err
}

// =============================================================================
// SEEDING - stock.CatalogWriter
// =============================================================================

func (s *Store) SaveItem(ctx context.Context, item *stock.Item) error {
	if item.Status == "" {
		item.Status = stock.StatusActive
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}

	return s.WithTx(ctx, func(t stock.Tx) error {
		q := t.(*txStore).q
		if item.ID == 0 {
			res, err := q.ExecContext(ctx, `
				INSERT INTO items (code, name, category_id, uom_id, min_stock, status, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				item.Code, item.Name, item.CategoryID, item.UOMID, item.MinStock.String(),
				string(item.Status), nanos(item.CreatedAt),
			)
			if err != nil {
				return fmt.Errorf("failed to insert item: %w", err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("failed to read item id: %w", err)
			}
			item.ID = stock.ItemID(id)
		} else {
			_, err := q.ExecContext(ctx, `
				UPDATE items SET code = ?, name = ?, category_id = ?, uom_id = ?, min_stock = ?,
				       status = ?, modified_at = ?, modified_by = ?
				WHERE id = ?`,
				item.Code, item.Name, item.CategoryID, item.UOMID, item.MinStock.String(),
				string(item.Status), nullTime(item.ModifiedAt), nullID(item.ModifiedBy), item.ID,
			)
			if err != nil {
				return fmt.Errorf("failed to update item: %w", err)
			}
		}

		_, err := q.ExecContext(ctx,
			s.d.insertIgnore+` INTO current_stock (item_id, qty_on_hand, version, updated_at) VALUES (?, '0', 0, ?)`,
			item.ID, nanos(item.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to create stock row: %w", err)
		}
		return nil
	})
}

func (s *Store) SaveReason(ctx context.Context, reason *stock.Reason) error {
	if reason.Status == "" {
		reason.Status = stock.StatusActive
	}
	if reason.ID != 0 {
		_, err := s.db.ExecContext(ctx, `UPDATE reasons SET text = ?, status = ? WHERE id = ?`,
			reason.Text, string(reason.Status), reason.ID)
		if err != nil {
			return fmt.Errorf("failed to update reason: %w", err)
		}
		return nil
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO reasons (text, status) VALUES (?, ?)`,
		reason.Text, string(reason.Status))
	if err != nil {
		return fmt.Errorf("failed to insert reason: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read reason id: %w", err)
	}
	reason.ID = stock.ReasonID(id)
	return nil
}

func (s *Store) SaveActor(ctx context.Context, actor *stock.Actor) error {
	if actor.Status == "" {
		actor.Status = stock.StatusActive
	}
	if actor.ID != 0 {
		_, err := s.db.ExecContext(ctx, `UPDATE actors SET name = ?, status = ? WHERE id = ?`,
			actor.Name, string(actor.Status), actor.ID)
		if err != nil {
			return fmt.Errorf("failed to update actor: %w", err)
		}
		return nil
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO actors (name, status) VALUES (?, ?)`,
		actor.Name, string(actor.Status))
	if err != nil {
		return fmt.Errorf("failed to insert actor: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read actor id: %w", err)
	}
	actor.ID = stock.ActorID(id)
	return nil
}
