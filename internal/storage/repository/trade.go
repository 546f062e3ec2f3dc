package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillm/signalbot/internal/domain"
)

const tradeColumns = `id, symbol, direction, entry_price, quantity, leverage, stop_loss,
	tp1, tp2, tp3, tp4, status, active, COALESCE(order_id, ''), confidence, risk_amount, created_at, updated_at`

// TradeRepository реализует работу с активными сделками
type TradeRepository struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// NewTradeRepository создает новый репозиторий для сделок
func NewTradeRepository(db *sql.DB, dialect Dialect) *TradeRepository {
	return &TradeRepository{db: db, dialect: dialect, now: time.Now}
}

// Create сохраняет новую сделку. Вторая активная сделка по символу отклоняется.
func (r *TradeRepository) Create(ctx context.Context, trade *domain.Trade) error {
	now := r.now()
	if trade.CreatedAt.IsZero() {
		trade.CreatedAt = now
	}
	trade.UpdatedAt = now
	trade.Active = true

	query := r.dialect.Rebind(`
		INSERT INTO trades (symbol, direction, entry_price, quantity, leverage, stop_loss,
			tp1, tp2, tp3, tp4, status, active, order_id, confidence, risk_amount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, TRUE, $12, $13, $14, $15, $16)
		RETURNING id
	`)
	err := r.db.QueryRowContext(ctx, query,
		trade.Symbol,
		trade.Direction,
		trade.EntryPrice,
		trade.Quantity,
		trade.Leverage,
		trade.StopLoss,
		trade.TakeProfits[0],
		trade.TakeProfits[1],
		trade.TakeProfits[2],
		trade.TakeProfits[3],
		trade.Status,
		trade.OrderID,
		trade.Confidence,
		trade.RiskAmount,
		trade.CreatedAt,
		trade.UpdatedAt,
	).Scan(&trade.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("%s: %w", trade.Symbol, domain.ErrTradeExists)
	}
	return err
}

// GetActive возвращает активную сделку по символу или domain.ErrNotFound
func (r *TradeRepository) GetActive(ctx context.Context, symbol string) (*domain.Trade, error) {
	query := r.dialect.Rebind(`SELECT ` + tradeColumns + ` FROM trades WHERE symbol = $1 AND active = TRUE`)
	trade, err := scanTrade(r.db.QueryRowContext(ctx, query, symbol))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return trade, err
}

// HasActive проверяет наличие активной сделки
func (r *TradeRepository) HasActive(ctx context.Context, symbol string) (bool, error) {
	var n int
	query := r.dialect.Rebind(`SELECT COUNT(*) FROM trades WHERE symbol = $1 AND active = TRUE`)
	if err := r.db.QueryRowContext(ctx, query, symbol).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListActiveSymbols символы всех активных сделок
func (r *TradeRepository) ListActiveSymbols(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT symbol FROM trades WHERE active = TRUE ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		symbols = append(symbols, s)
	}
	return symbols, rows.Err()
}

// ListActive все активные сделки
func (r *TradeRepository) ListActive(ctx context.Context) ([]domain.Trade, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+tradeColumns+` FROM trades WHERE active = TRUE ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, *trade)
	}
	return trades, rows.Err()
}

// UpdateStatus меняет статус активной сделки
func (r *TradeRepository) UpdateStatus(ctx context.Context, symbol, status string) (bool, error) {
	query := r.dialect.Rebind(`UPDATE trades SET status = $1, updated_at = $2 WHERE symbol = $3 AND active = TRUE`)
	return r.execAffected(ctx, query, status, r.now(), symbol)
}

// UpdateStopLoss переносит стоп активной сделки
func (r *TradeRepository) UpdateStopLoss(ctx context.Context, symbol string, stopLoss float64) (bool, error) {
	query := r.dialect.Rebind(`UPDATE trades SET stop_loss = $1, updated_at = $2 WHERE symbol = $3 AND active = TRUE`)
	return r.execAffected(ctx, query, stopLoss, r.now(), symbol)
}

// ReduceQuantity уменьшает объём позиции на долю fraction
func (r *TradeRepository) ReduceQuantity(ctx context.Context, symbol string, fraction float64) (bool, error) {
	if fraction <= 0 || fraction >= 1 {
		return false, fmt.Errorf("fraction must be in (0, 1), got %v: %w", fraction, domain.ErrInvalidInput)
	}
	query := r.dialect.Rebind(`UPDATE trades SET quantity = quantity * $1, updated_at = $2 WHERE symbol = $3 AND active = TRUE`)
	return r.execAffected(ctx, query, 1-fraction, r.now(), symbol)
}

// Deactivate в одной транзакции архивирует и деактивирует сделку.
// Повторный вызов для уже закрытой сделки возвращает false без ошибки.
func (r *TradeRepository) Deactivate(ctx context.Context, symbol string, exit domain.ExitRecord, history *HistoryRepository) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := r.dialect.Rebind(`SELECT ` + tradeColumns + ` FROM trades WHERE symbol = $1 AND active = TRUE` + r.dialect.ForUpdate())
	trade, err := scanTrade(tx.QueryRowContext(ctx, query, symbol))
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load trade: %w", err)
	}

	closedAt := exit.ClosedAt
	if closedAt.IsZero() {
		closedAt = r.now()
	}

	update := r.dialect.Rebind(`UPDATE trades SET active = FALSE, status = $1, updated_at = $2 WHERE id = $3 AND active = TRUE`)
	res, err := tx.ExecContext(ctx, update, domain.StatusClosed, closedAt, trade.ID)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate trade: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return false, err
	}

	record := &domain.TradeHistory{
		TradeID:     trade.ID,
		Symbol:      trade.Symbol,
		Direction:   trade.Direction,
		EntryPrice:  trade.EntryPrice,
		ExitPrice:   exit.ExitPrice,
		Quantity:    trade.Quantity,
		Leverage:    trade.Leverage,
		PnL:         exit.PnL,
		PnLPercent:  exit.PnLPercent,
		ExitReason:  exit.Reason,
		FinalStatus: domain.ExitLabel(exit.Reason),
		Duration:    closedAt.Sub(trade.CreatedAt).Hours(),
		OpenedAt:    trade.CreatedAt,
		ClosedAt:    closedAt,
	}
	if err := history.insert(ctx, tx, record); err != nil {
		return false, fmt.Errorf("failed to archive trade: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit: %w", err)
	}
	return true, nil
}

func (r *TradeRepository) execAffected(ctx context.Context, query string, args ...interface{}) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTrade(row rowScanner) (*domain.Trade, error) {
	var trade domain.Trade
	err := row.Scan(
		&trade.ID,
		&trade.Symbol,
		&trade.Direction,
		&trade.EntryPrice,
		&trade.Quantity,
		&trade.Leverage,
		&trade.StopLoss,
		&trade.TakeProfits[0],
		&trade.TakeProfits[1],
		&trade.TakeProfits[2],
		&trade.TakeProfits[3],
		&trade.Status,
		&trade.Active,
		&trade.OrderID,
		&trade.Confidence,
		&trade.RiskAmount,
		&trade.CreatedAt,
		&trade.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &trade, nil
}
