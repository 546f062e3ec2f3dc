package repository

import (
	"context"
	"database/sql"

	"github.com/kirillm/signalbot/internal/domain"
)

// HistoryRepository архив закрытых сделок
type HistoryRepository struct {
	db      *sql.DB
	dialect Dialect
}

// NewHistoryRepository создает новый репозиторий архива
func NewHistoryRepository(db *sql.DB, dialect Dialect) *HistoryRepository {
	return &HistoryRepository{db: db, dialect: dialect}
}

func (r *HistoryRepository) insert(ctx context.Context, tx *sql.Tx, h *domain.TradeHistory) error {
	query := r.dialect.Rebind(`
		INSERT INTO trade_history (trade_id, symbol, direction, entry_price, exit_price, quantity, leverage,
			pnl, pnl_percent, exit_reason, final_status, duration_hours, opened_at, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id
	`)
	return tx.QueryRowContext(ctx, query,
		h.TradeID,
		h.Symbol,
		h.Direction,
		h.EntryPrice,
		h.ExitPrice,
		h.Quantity,
		h.Leverage,
		h.PnL,
		h.PnLPercent,
		h.ExitReason,
		h.FinalStatus,
		h.Duration,
		h.OpenedAt,
		h.ClosedAt,
	).Scan(&h.ID)
}

// Recent последние N закрытых сделок
func (r *HistoryRepository) Recent(ctx context.Context, limit int) ([]domain.TradeHistory, error) {
	query := r.dialect.Rebind(`
		SELECT id, trade_id, symbol, direction, entry_price, exit_price, quantity, leverage,
		       pnl, pnl_percent, exit_reason, final_status, duration_hours, opened_at, closed_at
		FROM trade_history
		ORDER BY closed_at DESC
		LIMIT $1
	`)
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.TradeHistory
	for rows.Next() {
		var h domain.TradeHistory
		err := rows.Scan(
			&h.ID,
			&h.TradeID,
			&h.Symbol,
			&h.Direction,
			&h.EntryPrice,
			&h.ExitPrice,
			&h.Quantity,
			&h.Leverage,
			&h.PnL,
			&h.PnLPercent,
			&h.ExitReason,
			&h.FinalStatus,
			&h.Duration,
			&h.OpenedAt,
			&h.ClosedAt,
		)
		if err != nil {
			return nil, err
		}
		items = append(items, h)
	}
	return items, rows.Err()
}
