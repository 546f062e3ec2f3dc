package storage

import (
	"fmt"

	"github.com/kirillm/signalbot/internal/storage/repository"
)

var postgresMigrations = []string{
	`CREATE TABLE IF NOT EXISTS trades (
		id SERIAL PRIMARY KEY,
		symbol VARCHAR(20) NOT NULL,
		direction VARCHAR(5) NOT NULL,
		entry_price DOUBLE PRECISION NOT NULL,
		quantity DOUBLE PRECISION NOT NULL,
		leverage INTEGER NOT NULL DEFAULT 1,
		stop_loss DOUBLE PRECISION NOT NULL DEFAULT 0,
		tp1 DOUBLE PRECISION NOT NULL DEFAULT 0,
		tp2 DOUBLE PRECISION NOT NULL DEFAULT 0,
		tp3 DOUBLE PRECISION NOT NULL DEFAULT 0,
		tp4 DOUBLE PRECISION NOT NULL DEFAULT 0,
		status VARCHAR(10) NOT NULL DEFAULT 'NEW',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		order_id VARCHAR(100),
		confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
		risk_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_trades_active_symbol ON trades(symbol) WHERE active = TRUE`,
	`CREATE TABLE IF NOT EXISTS trade_history (
		id SERIAL PRIMARY KEY,
		trade_id INTEGER NOT NULL,
		symbol VARCHAR(20) NOT NULL,
		direction VARCHAR(5) NOT NULL,
		entry_price DOUBLE PRECISION NOT NULL,
		exit_price DOUBLE PRECISION NOT NULL,
		quantity DOUBLE PRECISION NOT NULL,
		leverage INTEGER NOT NULL,
		pnl DOUBLE PRECISION NOT NULL,
		pnl_percent DOUBLE PRECISION NOT NULL,
		exit_reason VARCHAR(50) NOT NULL,
		final_status VARCHAR(20) NOT NULL,
		duration_hours DOUBLE PRECISION NOT NULL,
		opened_at TIMESTAMP NOT NULL,
		closed_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trade_history_closed_at ON trade_history(closed_at)`,
	`CREATE TABLE IF NOT EXISTS risk_events (
		id SERIAL PRIMARY KEY,
		symbol VARCHAR(20) NOT NULL,
		action VARCHAR(20) NOT NULL,
		reason VARCHAR(50) NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		pnl_percent DOUBLE PRECISION NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_risk_events_symbol ON risk_events(symbol)`,
}

var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		direction TEXT NOT NULL,
		entry_price REAL NOT NULL,
		quantity REAL NOT NULL,
		leverage INTEGER NOT NULL DEFAULT 1,
		stop_loss REAL NOT NULL DEFAULT 0,
		tp1 REAL NOT NULL DEFAULT 0,
		tp2 REAL NOT NULL DEFAULT 0,
		tp3 REAL NOT NULL DEFAULT 0,
		tp4 REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'NEW',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		order_id TEXT,
		confidence REAL NOT NULL DEFAULT 0,
		risk_amount REAL NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_trades_active_symbol ON trades(symbol) WHERE active = TRUE`,
	`CREATE TABLE IF NOT EXISTS trade_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trade_id INTEGER NOT NULL,
		symbol TEXT NOT NULL,
		direction TEXT NOT NULL,
		entry_price REAL NOT NULL,
		exit_price REAL NOT NULL,
		quantity REAL NOT NULL,
		leverage INTEGER NOT NULL,
		pnl REAL NOT NULL,
		pnl_percent REAL NOT NULL,
		exit_reason TEXT NOT NULL,
		final_status TEXT NOT NULL,
		duration_hours REAL NOT NULL,
		opened_at TIMESTAMP NOT NULL,
		closed_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trade_history_closed_at ON trade_history(closed_at)`,
	`CREATE TABLE IF NOT EXISTS risk_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		action TEXT NOT NULL,
		reason TEXT NOT NULL,
		price REAL NOT NULL,
		pnl_percent REAL NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_risk_events_symbol ON risk_events(symbol)`,
}

func (s *SQLStorage) migrate() error {
	migrations := postgresMigrations
	if s.dialect == repository.SQLite {
		migrations = sqliteMigrations
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
