package sqlstore

// Quantities and prices are stored as decimal text on SQLite and DECIMAL on
// MySQL; both scan back through decimal.NewFromString. Timestamps are UTC
// unix nanoseconds.

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS actors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active'
	)`,

	`CREATE TABLE IF NOT EXISTS reasons (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		text TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active'
	)`,

	`CREATE TABLE IF NOT EXISTS items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		category_id INTEGER NOT NULL DEFAULT 0,
		uom_id INTEGER NOT NULL DEFAULT 0,
		min_stock TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL DEFAULT 'active',
		created_at INTEGER NOT NULL,
		modified_at INTEGER,
		modified_by INTEGER
	)`,
	`CREATE INDEX IF NOT EXISTS idx_items_category ON items(category_id)`,

	// The one mutable projection. version guards compare-and-swap updates.
	`CREATE TABLE IF NOT EXISTS current_stock (
		item_id INTEGER PRIMARY KEY REFERENCES items(id),
		qty_on_hand TEXT NOT NULL,
		version INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,

	// Append-only: no UPDATE or DELETE is ever issued against these two.
	`CREATE TABLE IF NOT EXISTS stock_transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		txn_date INTEGER NOT NULL,
		reference_no TEXT,
		remarks TEXT,
		idempotency_key TEXT UNIQUE,
		created_at INTEGER NOT NULL,
		created_by INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_date ON stock_transactions(txn_date)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_reference
		ON stock_transactions(kind, reference_no) WHERE reference_no IS NOT NULL`,

	`CREATE TABLE IF NOT EXISTS stock_transaction_lines (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		transaction_id INTEGER NOT NULL REFERENCES stock_transactions(id),
		item_id INTEGER NOT NULL REFERENCES items(id),
		quantity TEXT NOT NULL,
		direction INTEGER NOT NULL CHECK (direction IN (1, -1)),
		adjustment_reason_id INTEGER REFERENCES reasons(id),
		unit_price TEXT,
		total_amount TEXT NOT NULL,
		remarks TEXT,
		created_at INTEGER NOT NULL,
		created_by INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_lines_item ON stock_transaction_lines(item_id)`,
	`CREATE INDEX IF NOT EXISTS idx_lines_transaction ON stock_transaction_lines(transaction_id)`,
	`CREATE INDEX IF NOT EXISTS idx_lines_reason
		ON stock_transaction_lines(adjustment_reason_id) WHERE adjustment_reason_id IS NOT NULL`,

	`CREATE TABLE IF NOT EXISTS stock_alerts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		item_id INTEGER NOT NULL REFERENCES items(id),
		qty_on_hand TEXT NOT NULL,
		min_stock TEXT NOT NULL,
		alert_date INTEGER NOT NULL,
		acknowledged_by INTEGER,
		acknowledged_at INTEGER
	)`,
	// At most one open alert per item.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_alerts_one_open
		ON stock_alerts(item_id) WHERE acknowledged_at IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_date ON stock_alerts(alert_date)`,
}

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS actors (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'active'
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS reasons (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		text VARCHAR(255) NOT NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'active'
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS items (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		code VARCHAR(64) NOT NULL,
		name VARCHAR(255) NOT NULL,
		category_id BIGINT NOT NULL DEFAULT 0,
		uom_id BIGINT NOT NULL DEFAULT 0,
		min_stock DECIMAL(20,6) NOT NULL DEFAULT 0,
		status VARCHAR(16) NOT NULL DEFAULT 'active',
		created_at BIGINT NOT NULL,
		modified_at BIGINT NULL,
		modified_by BIGINT NULL,
		UNIQUE KEY uq_items_code (code),
		KEY idx_items_category (category_id)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS current_stock (
		item_id BIGINT PRIMARY KEY,
		qty_on_hand DECIMAL(20,6) NOT NULL,
		version BIGINT NOT NULL,
		updated_at BIGINT NOT NULL,
		CONSTRAINT fk_stock_item FOREIGN KEY (item_id) REFERENCES items(id)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS stock_transactions (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		kind VARCHAR(16) NOT NULL,
		txn_date BIGINT NOT NULL,
		reference_no VARCHAR(50) NULL,
		remarks VARCHAR(500) NULL,
		idempotency_key VARCHAR(100) NULL,
		created_at BIGINT NOT NULL,
		created_by BIGINT NOT NULL,
		UNIQUE KEY uq_transactions_idempotency (idempotency_key),
		KEY idx_transactions_date (txn_date),
		KEY idx_transactions_reference (kind, reference_no)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS stock_transaction_lines (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		transaction_id BIGINT NOT NULL,
		item_id BIGINT NOT NULL,
		quantity DECIMAL(20,6) NOT NULL,
		direction TINYINT NOT NULL,
		adjustment_reason_id BIGINT NULL,
		unit_price DECIMAL(20,6) NULL,
		total_amount DECIMAL(26,6) NOT NULL,
		remarks VARCHAR(500) NULL,
		created_at BIGINT NOT NULL,
		created_by BIGINT NOT NULL,
		KEY idx_lines_item (item_id),
		KEY idx_lines_transaction (transaction_id),
		KEY idx_lines_reason (adjustment_reason_id),
		CONSTRAINT fk_lines_transaction FOREIGN KEY (transaction_id) REFERENCES stock_transactions(id),
		CONSTRAINT fk_lines_item FOREIGN KEY (item_id) REFERENCES items(id),
		CONSTRAINT fk_lines_reason FOREIGN KEY (adjustment_reason_id) REFERENCES reasons(id),
		CONSTRAINT chk_lines_direction CHECK (direction IN (1, -1))
	) ENGINE=InnoDB`,

	// open_item_id is NULL once acknowledged, so the unique key only binds
	// open alerts.
	`CREATE TABLE IF NOT EXISTS stock_alerts (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		item_id BIGINT NOT NULL,
		qty_on_hand DECIMAL(20,6) NOT NULL,
		min_stock DECIMAL(20,6) NOT NULL,
		alert_date BIGINT NOT NULL,
		acknowledged_by BIGINT NULL,
		acknowledged_at BIGINT NULL,
		open_item_id BIGINT AS (IF(acknowledged_at IS NULL, item_id, NULL)) STORED,
		UNIQUE KEY uq_alerts_one_open (open_item_id),
		KEY idx_alerts_date (alert_date),
		CONSTRAINT fk_alerts_item FOREIGN KEY (item_id) REFERENCES items(id)
	) ENGINE=InnoDB`,
}
