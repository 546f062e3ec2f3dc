package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/kirillm/signalbot/internal/domain"
)

// EventLogRepository журнал применённых действий риск-движка
type EventLogRepository struct {
	db      *sql.DB
	dialect Dialect
}

// NewEventLogRepository создает новый репозиторий журнала
func NewEventLogRepository(db *sql.DB, dialect Dialect) *EventLogRepository {
	return &EventLogRepository{db: db, dialect: dialect}
}

// Save сохраняет событие
func (r *EventLogRepository) Save(ctx context.Context, event *domain.RiskEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	query := r.dialect.Rebind(`
		INSERT INTO risk_events (symbol, action, reason, price, pnl_percent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`)
	return r.db.QueryRowContext(ctx, query,
		event.Symbol, event.Action, event.Reason, event.Price, event.PnLPercent, event.CreatedAt,
	).Scan(&event.ID)
}

// Recent последние события по символу, пустой символ означает все
func (r *EventLogRepository) Recent(ctx context.Context, symbol string, limit int) ([]domain.RiskEvent, error) {
	query := r.dialect.Rebind(`
		SELECT id, symbol, action, reason, price, pnl_percent, created_at
		FROM risk_events
		WHERE ($1 = '' OR symbol = $1)
		ORDER BY id DESC
		LIMIT $2
	`)
	rows, err := r.db.QueryContext(ctx, query, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.RiskEvent
	for rows.Next() {
		var e domain.RiskEvent
		if err := rows.Scan(&e.ID, &e.Symbol, &e.Action, &e.Reason, &e.Price, &e.PnLPercent, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
