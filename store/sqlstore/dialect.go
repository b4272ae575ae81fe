package sqlstore

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
)

// =============================================================================
// DIALECTS - the few places SQLite and MySQL differ
// =============================================================================

type dialect struct {
	name string

	schema []string

	// forUpdate is appended to aggregate reads inside a transaction.
	forUpdate string

	// insertIgnore prefixes an INSERT that skips rows hitting a unique key.
	insertIgnore string

	isUnique    func(error) bool
	isRetryable func(error) bool
}

var sqliteDialect = dialect{
	name:         "sqlite3",
	schema:       sqliteSchema,
	forUpdate:    "",
	insertIgnore: "INSERT OR IGNORE",
	isUnique: func(err error) bool {
		var se sqlite3.Error
		if errors.As(err, &se) {
			return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
		}
		return false
	},
	isRetryable: func(err error) bool {
		var se sqlite3.Error
		if errors.As(err, &se) {
			return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
		}
		return false
	},
}

const (
	mysqlDuplicateEntry  = 1062
	mysqlLockWaitTimeout = 1205
	mysqlDeadlockFound   = 1213
)

var mysqlDialect = dialect{
	name:         "mysql",
	schema:       mysqlSchema,
	forUpdate:    " FOR UPDATE",
	insertIgnore: "INSERT IGNORE",
	isUnique: func(err error) bool {
		var me *mysql.MySQLError
		if errors.As(err, &me) {
			return me.Number == mysqlDuplicateEntry
		}
		return false
	},
	isRetryable: func(err error) bool {
		var me *mysql.MySQLError
		if errors.As(err, &me) {
			switch me.Number {
			case mysqlLockWaitTimeout, mysqlDeadlockFound:
				return true
			}
		}
		return false
	},
}
