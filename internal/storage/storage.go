package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kirillm/signalbot/internal/domain"
	"github.com/kirillm/signalbot/internal/storage/repository"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Options параметры подключения
type Options struct {
	Driver          string // postgres | sqlite | memory
	DSN             string
	SQLitePath      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store всё, что нужно приложению от хранилища сделок
type Store interface {
	domain.TradeStore
	domain.TradeWriter
	domain.TradeReader
	domain.EventRecorder
	RecentEvents(ctx context.Context, symbol string, limit int) ([]domain.RiskEvent, error)
	Close() error
}

// Open выбирает реализацию по драйверу
func Open(opts Options) (Store, error) {
	switch opts.Driver {
	case "postgres":
		return NewPostgresStorage(opts)
	case "sqlite", "":
		return NewSQLiteStorage(opts.SQLitePath)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", opts.Driver)
	}
}

// SQLStorage является фасадом над репозиториями для PostgreSQL и SQLite
type SQLStorage struct {
	db      *sql.DB
	dialect repository.Dialect
	trades  *repository.TradeRepository
	history *repository.HistoryRepository
	events  *repository.EventLogRepository
}

// NewPostgresStorage подключается к PostgreSQL и применяет миграции
func NewPostgresStorage(opts Options) (*SQLStorage, error) {
	db, err := sql.Open("postgres", opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w: %w", domain.ErrDatabaseConnection, err)
	}

	// Настройка connection pool из конфигурации
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)

	return newSQLStorage(db, repository.Postgres)
}

// NewSQLiteStorage открывает (создавая при необходимости) файл SQLite
func NewSQLiteStorage(path string) (*SQLStorage, error) {
	if path == "" {
		return nil, errors.New("sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite допускает одного писателя
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	return newSQLStorage(db, repository.SQLite)
}

func newSQLStorage(db *sql.DB, dialect repository.Dialect) (*SQLStorage, error) {
	s := &SQLStorage{
		db:      db,
		dialect: dialect,
		trades:  repository.NewTradeRepository(db, dialect),
		history: repository.NewHistoryRepository(db, dialect),
		events:  repository.NewEventLogRepository(db, dialect),
	}

	// Запускаем миграции
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

// ==================== TRADES ====================

func (s *SQLStorage) ListActiveSymbols(ctx context.Context) ([]string, error) {
	return s.trades.ListActiveSymbols(ctx)
}

// GetTrade возвращает nil без ошибки, если активной сделки нет
func (s *SQLStorage) GetTrade(ctx context.Context, symbol string) (*domain.Trade, error) {
	trade, err := s.trades.GetActive(ctx, symbol)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return trade, err
}

func (s *SQLStorage) UpdateStatus(ctx context.Context, symbol, status string) (bool, error) {
	return s.trades.UpdateStatus(ctx, symbol, status)
}

func (s *SQLStorage) UpdateStopLoss(ctx context.Context, symbol string, stopLoss float64) (bool, error) {
	return s.trades.UpdateStopLoss(ctx, symbol, stopLoss)
}

func (s *SQLStorage) ReduceQuantity(ctx context.Context, symbol string, fraction float64) (bool, error) {
	return s.trades.ReduceQuantity(ctx, symbol, fraction)
}

func (s *SQLStorage) Deactivate(ctx context.Context, symbol string, exit domain.ExitRecord) (bool, error) {
	return s.trades.Deactivate(ctx, symbol, exit, s.history)
}

func (s *SQLStorage) HasActiveTrade(ctx context.Context, symbol string) (bool, error) {
	return s.trades.HasActive(ctx, symbol)
}

func (s *SQLStorage) CreateTrade(ctx context.Context, trade *domain.Trade) error {
	return s.trades.Create(ctx, trade)
}

func (s *SQLStorage) ListActiveTrades(ctx context.Context) ([]domain.Trade, error) {
	return s.trades.ListActive(ctx)
}

// ==================== HISTORY ====================

func (s *SQLStorage) RecentHistory(ctx context.Context, limit int) ([]domain.TradeHistory, error) {
	return s.history.Recent(ctx, limit)
}

// ==================== EVENTS ====================

func (s *SQLStorage) RecordEvent(ctx context.Context, event *domain.RiskEvent) error {
	return s.events.Save(ctx, event)
}

func (s *SQLStorage) RecentEvents(ctx context.Context, symbol string, limit int) ([]domain.RiskEvent, error) {
	return s.events.Recent(ctx, symbol, limit)
}

// Close закрывает соединение с БД
func (s *SQLStorage) Close() error {
	return s.db.Close()
}
