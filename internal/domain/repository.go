package domain

import "context"

// TradeStore определяет операции с активными сделками, от которых зависит мониторинг
type TradeStore interface {
	ListActiveSymbols(ctx context.Context) ([]string, error)
	GetTrade(ctx context.Context, symbol string) (*Trade, error)
	UpdateStatus(ctx context.Context, symbol, status string) (bool, error)
	UpdateStopLoss(ctx context.Context, symbol string, stopLoss float64) (bool, error)
	ReduceQuantity(ctx context.Context, symbol string, fraction float64) (bool, error)
	// Deactivate атомарно архивирует и деактивирует сделку.
	// Возвращает false, если активной сделки по символу уже нет.
	Deactivate(ctx context.Context, symbol string, exit ExitRecord) (bool, error)
}

// TradeWriter создаёт новые сделки
type TradeWriter interface {
	HasActiveTrade(ctx context.Context, symbol string) (bool, error)
	CreateTrade(ctx context.Context, trade *Trade) error
}

// TradeReader отдаёт списки сделок для команд и API
type TradeReader interface {
	ListActiveTrades(ctx context.Context) ([]Trade, error)
	RecentHistory(ctx context.Context, limit int) ([]TradeHistory, error)
}

// EventRecorder сохраняет журнал действий риск-движка
type EventRecorder interface {
	RecordEvent(ctx context.Context, event *RiskEvent) error
}
