package database

import "fmt"

// portfolioSchema is the single source of truth for portfolio.db.
// All statements are idempotent so migration can run on every startup.
const portfolioSchema = `
CREATE TABLE IF NOT EXISTS users (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    name             TEXT NOT NULL,
    email            TEXT NOT NULL UNIQUE,
    password_hash    TEXT NOT NULL,
    display_currency TEXT NOT NULL DEFAULT 'EUR',
    last_refresh     TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS sessions (
    token      TEXT PRIMARY KEY,
    user_id    INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS accounts (
    id      INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    name    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    account_id     INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
    name           TEXT NOT NULL,
    identifier     TEXT NOT NULL DEFAULT '',
    symbol         TEXT NOT NULL DEFAULT '',
    purchase_price REAL NOT NULL DEFAULT 0,
    quantity       INTEGER NOT NULL DEFAULT 0 CHECK (quantity >= 0),
    fee            REAL NOT NULL DEFAULT 0,
    current_price  REAL NOT NULL DEFAULT 0,
    previous_price REAL NOT NULL DEFAULT 0,
    currency       TEXT NOT NULL DEFAULT 'EUR',
    purchase_date  TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_positions_account ON positions(account_id);

CREATE TABLE IF NOT EXISTS price_history (
    position_id INTEGER NOT NULL REFERENCES positions(id) ON DELETE CASCADE,
    day         TEXT NOT NULL,
    price       REAL NOT NULL,
    currency    TEXT NOT NULL,
    UNIQUE (position_id, day)
);

CREATE TABLE IF NOT EXISTS monthly_gains (
    position_id INTEGER NOT NULL REFERENCES positions(id) ON DELETE CASCADE,
    month       TEXT NOT NULL,
    cumulative  REAL NOT NULL DEFAULT 0,
    last_day    TEXT NOT NULL DEFAULT '',
    UNIQUE (position_id, month)
);

CREATE TABLE IF NOT EXISTS analysis_snapshots (
    symbol      TEXT PRIMARY KEY,
    score       REAL NOT NULL,
    signal      TEXT NOT NULL,
    sample_size INTEGER NOT NULL,
    price       REAL NOT NULL,
    updated_at  TEXT NOT NULL
);
`

// clientDataSchema defines the provider response cache (client_data.db).
// One table per provider endpoint, JSON payloads with expiry timestamps.
const clientDataSchema = `
CREATE TABLE IF NOT EXISTS yahoo_quote (
    key        TEXT PRIMARY KEY,
    data       TEXT NOT NULL,
    expires_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS yahoo_search (
    key        TEXT PRIMARY KEY,
    data       TEXT NOT NULL,
    expires_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS yahoo_history (
    key        TEXT PRIMARY KEY,
    data       TEXT NOT NULL,
    expires_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS yahoo_news (
    key        TEXT PRIMARY KEY,
    data       TEXT NOT NULL,
    expires_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS fmp_quote (
    key        TEXT PRIMARY KEY,
    data       TEXT NOT NULL,
    expires_at INTEGER NOT NULL
);
`

// Migrate applies the schema matching the database name.
func (db *DB) Migrate() error {
	var schema string
	switch db.name {
	case "portfolio":
		schema = portfolioSchema
	case "clientdata":
		schema = clientDataSchema
	default:
		// Unknown database name, nothing to migrate
		return nil
	}

	if _, err := db.conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to apply schema for %s: %w", db.name, err)
	}
	return nil
}
