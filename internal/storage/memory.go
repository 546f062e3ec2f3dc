package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kirillm/signalbot/internal/domain"
)

// MemoryStore хранилище в памяти для dry-run и тестов.
// Повторяет контракт SQL-хранилища: одна активная сделка на символ, атомарное закрытие.
type MemoryStore struct {
	mu      sync.Mutex
	nextID  int64
	active  map[string]*domain.Trade
	history []domain.TradeHistory
	events  []domain.RiskEvent
	now     func() time.Time
}

// NewMemoryStore создает пустое хранилище
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		active: make(map[string]*domain.Trade),
		now:    time.Now,
	}
}

func (m *MemoryStore) ListActiveSymbols(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	trades := m.sortedLocked()
	symbols := make([]string, 0, len(trades))
	for _, t := range trades {
		symbols = append(symbols, t.Symbol)
	}
	return symbols, nil
}

// GetTrade возвращает копию активной сделки или nil
func (m *MemoryStore) GetTrade(_ context.Context, symbol string) (*domain.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.active[symbol]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryStore) UpdateStatus(_ context.Context, symbol, status string) (bool, error) {
	return m.mutate(symbol, func(t *domain.Trade) { t.Status = status })
}

func (m *MemoryStore) UpdateStopLoss(_ context.Context, symbol string, stopLoss float64) (bool, error) {
	return m.mutate(symbol, func(t *domain.Trade) { t.StopLoss = stopLoss })
}

func (m *MemoryStore) ReduceQuantity(_ context.Context, symbol string, fraction float64) (bool, error) {
	if fraction <= 0 || fraction >= 1 {
		return false, fmt.Errorf("fraction must be in (0, 1), got %v: %w", fraction, domain.ErrInvalidInput)
	}
	return m.mutate(symbol, func(t *domain.Trade) { t.Quantity *= 1 - fraction })
}

func (m *MemoryStore) Deactivate(_ context.Context, symbol string, exit domain.ExitRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.active[symbol]
	if !ok {
		return false, nil
	}
	closedAt := exit.ClosedAt
	if closedAt.IsZero() {
		closedAt = m.now()
	}

	m.history = append(m.history, domain.TradeHistory{
		ID:          int64(len(m.history) + 1),
		TradeID:     t.ID,
		Symbol:      t.Symbol,
		Direction:   t.Direction,
		EntryPrice:  t.EntryPrice,
		ExitPrice:   exit.ExitPrice,
		Quantity:    t.Quantity,
		Leverage:    t.Leverage,
		PnL:         exit.PnL,
		PnLPercent:  exit.PnLPercent,
		ExitReason:  exit.Reason,
		FinalStatus: domain.ExitLabel(exit.Reason),
		Duration:    closedAt.Sub(t.CreatedAt).Hours(),
		OpenedAt:    t.CreatedAt,
		ClosedAt:    closedAt,
	})
	delete(m.active, symbol)
	return true, nil
}

func (m *MemoryStore) HasActiveTrade(_ context.Context, symbol string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[symbol]
	return ok, nil
}

func (m *MemoryStore) CreateTrade(_ context.Context, trade *domain.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.active[trade.Symbol]; ok {
		return fmt.Errorf("%s: %w", trade.Symbol, domain.ErrTradeExists)
	}
	m.nextID++
	now := m.now()
	trade.ID = m.nextID
	trade.Active = true
	if trade.CreatedAt.IsZero() {
		trade.CreatedAt = now
	}
	trade.UpdatedAt = now

	cp := *trade
	m.active[trade.Symbol] = &cp
	return nil
}

func (m *MemoryStore) ListActiveTrades(_ context.Context) ([]domain.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Trade
	for _, t := range m.sortedLocked() {
		out = append(out, *t)
	}
	return out, nil
}

func (m *MemoryStore) RecentHistory(_ context.Context, limit int) ([]domain.TradeHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.TradeHistory
	for i := len(m.history) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.history[i])
	}
	return out, nil
}

func (m *MemoryStore) RecordEvent(_ context.Context, event *domain.RiskEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = m.now()
	}
	event.ID = int64(len(m.events) + 1)
	m.events = append(m.events, *event)
	return nil
}

// RecentEvents последние события по символу (пустой символ означает все)
func (m *MemoryStore) RecentEvents(_ context.Context, symbol string, limit int) ([]domain.RiskEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.RiskEvent
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		if symbol == "" || m.events[i].Symbol == symbol {
			out = append(out, m.events[i])
		}
	}
	return out, nil
}

func (m *MemoryStore) Close() error {
	return nil
}

func (m *MemoryStore) mutate(symbol string, fn func(*domain.Trade)) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.active[symbol]
	if !ok {
		return false, nil
	}
	fn(t)
	t.UpdatedAt = m.now()
	return true, nil
}

func (m *MemoryStore) sortedLocked() []*domain.Trade {
	trades := make([]*domain.Trade, 0, len(m.active))
	for _, t := range m.active {
		trades = append(trades, t)
	}
	sort.Slice(trades, func(i, j int) bool { return trades[i].ID < trades[j].ID })
	return trades
}
