package monitor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/kirillm/signalbot/internal/domain"
	"github.com/kirillm/signalbot/internal/exchange"
	"github.com/kirillm/signalbot/internal/risk"
	"github.com/kirillm/signalbot/pkg/utils"
)

// Config параметры цикла мониторинга
type Config struct {
	Interval             time.Duration
	MaxRetries           int
	RetryDelay           time.Duration
	MaxConsecutiveErrors int
	ErrorBackoff         time.Duration
}

// DefaultConfig значения по умолчанию
func DefaultConfig() Config {
	return Config{
		Interval:             30 * time.Second,
		MaxRetries:           3,
		RetryDelay:           2 * time.Second,
		MaxConsecutiveErrors: 5,
		ErrorBackoff:         10 * time.Second,
	}
}

// Notifier получатель уведомлений
type Notifier interface {
	Notify(text string)
}

// Stats счётчики для /status и API
type Stats struct {
	Running           bool      `json:"running"`
	Cycles            int64     `json:"cycles"`
	TotalChecks       int64     `json:"total_checks"`
	SuccessfulChecks  int64     `json:"successful_checks"`
	FailedChecks      int64     `json:"failed_checks"`
	TradesManaged     int64     `json:"trades_managed"`
	ErrorsHandled     int64     `json:"errors_handled"`
	ConsecutiveErrors int       `json:"consecutive_errors"`
	LastCheck         time.Time `json:"last_check"`
}

// Loop периодически оценивает все активные сделки.
// Тики выполняются последовательно в одной горутине.
type Loop struct {
	engine   *risk.Engine
	store    domain.TradeStore
	prices   exchange.PriceSource
	notifier Notifier
	events   domain.EventRecorder
	cfg      Config
	logger   *utils.Logger
	now      func() time.Time

	// tradeMu сериализует оценку с применением и ручную отмену
	tradeMu sync.Mutex

	mu    sync.Mutex
	stats Stats
}

// NewLoop создает цикл мониторинга. Если store умеет писать журнал событий, он используется.
func NewLoop(
	engine *risk.Engine,
	store domain.TradeStore,
	prices exchange.PriceSource,
	notifier Notifier,
	cfg Config,
	logger *utils.Logger,
) *Loop {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.MaxConsecutiveErrors <= 0 {
		cfg.MaxConsecutiveErrors = def.MaxConsecutiveErrors
	}
	if cfg.ErrorBackoff < 0 {
		cfg.ErrorBackoff = def.ErrorBackoff
	}

	l := &Loop{
		engine:   engine,
		store:    store,
		prices:   prices,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
	if rec, ok := store.(domain.EventRecorder); ok {
		l.events = rec
	}
	return l
}

// Run крутит цикл до отмены контекста. Ошибки тиков не завершают цикл.
func (l *Loop) Run(ctx context.Context) error {
	l.setRunning(true)
	defer l.setRunning(false)

	l.logger.Info("🔄 Monitoring loop started (interval %v)", l.cfg.Interval)
	for {
		if err := l.safeCycle(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			consecutive := l.recordFailure()
			l.logger.Error("%v (consecutive: %d)", err, consecutive)

			if consecutive >= l.cfg.MaxConsecutiveErrors {
				l.logger.Warn("Too many consecutive errors, backing off for %v", l.cfg.ErrorBackoff)
				l.resetFailures()
				if !sleep(ctx, l.cfg.ErrorBackoff) {
					break
				}
				continue
			}
		} else {
			l.resetFailures()
		}

		if !sleep(ctx, l.cfg.Interval) {
			break
		}
	}

	l.logger.Info("Monitoring loop stopped")
	return ctx.Err()
}

// safeCycle превращает панику тика в CriticalLoopError
func (l *Loop) safeCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Debug("stack: %s", debug.Stack())
			err = &domain.CriticalLoopError{Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if err := l.RunCycle(ctx); err != nil {
		return &domain.CriticalLoopError{Err: err}
	}
	return nil
}

// RunCycle один проход по всем активным сделкам
func (l *Loop) RunCycle(ctx context.Context) error {
	symbols, err := l.store.ListActiveSymbols(ctx)
	if err != nil {
		return fmt.Errorf("list active symbols: %w", err)
	}

	// состояние закрытых вне цикла сделок больше не нужно
	l.engine.States().Retain(symbols)

	for _, symbol := range symbols {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		ok := l.checkSymbol(ctx, symbol)
		l.countCheck(ok)
	}

	l.mu.Lock()
	l.stats.Cycles++
	l.stats.LastCheck = l.now()
	l.mu.Unlock()
	return nil
}

// checkSymbol обрабатывает одну сделку. false означает неудачную проверку.
func (l *Loop) checkSymbol(ctx context.Context, symbol string) bool {
	trade, err := l.store.GetTrade(ctx, symbol)
	if err != nil {
		l.logger.Error("Failed to load trade %s: %v", symbol, err)
		return false
	}
	if trade == nil {
		return true
	}
	if err := trade.Validate(); err != nil {
		l.logger.Warn("Skipping %s: %v", symbol, err)
		l.countError()
		return false
	}

	price, err := l.fetchPrice(ctx, symbol)
	if err != nil {
		l.logger.Warn("%v", err)
		return false
	}

	l.tradeMu.Lock()
	defer l.tradeMu.Unlock()

	// сделка могла закрыться за время запроса цены
	trade, err = l.store.GetTrade(ctx, symbol)
	if err != nil {
		l.logger.Error("Failed to reload trade %s: %v", symbol, err)
		return false
	}
	if trade == nil {
		l.logger.Debug("%s closed while fetching price", symbol)
		return true
	}

	l.engine.States().Get(symbol).History.Push(risk.PriceSample{Time: l.now(), Price: price})

	res := l.engine.Evaluate(trade, price)
	switch {
	case res.Action == domain.ActionNone:
		l.logger.Warn("Evaluation skipped for %s: %s %s", symbol, res.Reason, res.Description)
		return false
	case !res.IsActionable():
		l.logger.Debug("%s hold @ %.8g pnl=%.2f%%", symbol, price, res.PnLPercent)
		return true
	}

	if err := l.apply(ctx, trade, res); err != nil {
		l.logger.Error("%v", err)
		l.countError()
		return false
	}
	return true
}

// fetchPrice до MaxRetries попыток с фиксированной паузой
func (l *Loop) fetchPrice(ctx context.Context, symbol string) (float64, error) {
	var lastErr error
	for attempt := 1; attempt <= l.cfg.MaxRetries; attempt++ {
		price, err := l.prices.GetPrice(ctx, symbol)
		if err == nil && price > 0 {
			return price, nil
		}
		if err == nil {
			err = fmt.Errorf("non-positive price %v", price)
		}
		lastErr = err
		if attempt < l.cfg.MaxRetries && !sleep(ctx, l.cfg.RetryDelay) {
			lastErr = ctx.Err()
			return 0, &domain.TransientFetchError{Symbol: symbol, Attempts: attempt, Err: lastErr}
		}
	}
	return 0, &domain.TransientFetchError{Symbol: symbol, Attempts: l.cfg.MaxRetries, Err: lastErr}
}

// apply сохраняет результат оценки и отправляет уведомление
func (l *Loop) apply(ctx context.Context, trade *domain.Trade, res risk.EvaluationResult) error {
	wrap := func(err error) error {
		return &domain.ActionExecutionError{Symbol: trade.Symbol, Action: res.Action, Err: err}
	}

	switch res.Action {
	case domain.ActionClose:
		exit := domain.ExitRecord{
			ExitPrice:  res.CurrentPrice,
			Reason:     res.Reason,
			PnL:        res.PnL,
			PnLPercent: res.PnLPercent,
			ClosedAt:   l.now(),
		}
		closed, err := l.store.Deactivate(ctx, trade.Symbol, exit)
		if err != nil {
			return wrap(err)
		}
		l.engine.States().Clear(trade.Symbol)
		if !closed {
			l.logger.Info("%s already closed, skipping notification", trade.Symbol)
			return nil
		}

	case domain.ActionPartialClose:
		var muts []func() (bool, error)
		if res.NewStatus != "" && res.NewStatus != trade.Status {
			muts = append(muts, func() (bool, error) { return l.store.UpdateStatus(ctx, trade.Symbol, res.NewStatus) })
		}
		if res.ClosePercentage > 0 && res.ClosePercentage < 1 {
			muts = append(muts, func() (bool, error) { return l.store.ReduceQuantity(ctx, trade.Symbol, res.ClosePercentage) })
		}
		if res.NewStopLoss > 0 {
			muts = append(muts, func() (bool, error) { return l.store.UpdateStopLoss(ctx, trade.Symbol, res.NewStopLoss) })
		}
		for _, mutate := range muts {
			ok, err := mutate()
			if err != nil {
				return wrap(err)
			}
			if !ok {
				l.logger.Info("%s no longer active, skipping %s", trade.Symbol, res.Action)
				return nil
			}
		}

	case domain.ActionUpdateStopLoss:
		ok, err := l.store.UpdateStopLoss(ctx, trade.Symbol, res.NewStopLoss)
		if err != nil {
			return wrap(err)
		}
		if !ok {
			l.logger.Info("%s no longer active, skipping %s", trade.Symbol, res.Action)
			return nil
		}

	default:
		return wrap(fmt.Errorf("unknown action %q", res.Action))
	}

	l.mu.Lock()
	l.stats.TradesManaged++
	l.mu.Unlock()

	l.logger.Info("⚡ %s %s: %s @ %.8g (pnl %.2f%%)", trade.Symbol, res.Action, res.Reason, res.CurrentPrice, res.PnLPercent)
	l.recordEvent(ctx, trade.Symbol, res.Action, res.Reason, res.CurrentPrice, res.PnLPercent)
	l.notify(FormatAction(trade, res))
	return nil
}

// CancelTrade ручное закрытие сделки. Цена берется с рынка, при недоступности используется вход.
func (l *Loop) CancelTrade(ctx context.Context, symbol string) (*domain.TradeHistory, error) {
	l.tradeMu.Lock()
	defer l.tradeMu.Unlock()

	trade, err := l.store.GetTrade(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("load trade: %w", err)
	}
	if trade == nil {
		return nil, fmt.Errorf("%s: %w", symbol, domain.ErrNotFound)
	}

	price, err := l.prices.GetPrice(ctx, symbol)
	if err != nil || price <= 0 {
		l.logger.Warn("Price for %s unavailable on cancel, using entry: %v", symbol, err)
		price = trade.EntryPrice
	}
	pnl, pnlPct := risk.CalculatePnL(trade, price)

	exit := domain.ExitRecord{
		ExitPrice:  price,
		Reason:     domain.ReasonManualCancellation,
		PnL:        pnl,
		PnLPercent: pnlPct,
		ClosedAt:   l.now(),
	}
	closed, err := l.store.Deactivate(ctx, symbol, exit)
	if err != nil {
		return nil, &domain.ActionExecutionError{Symbol: symbol, Action: domain.ActionClose, Err: err}
	}
	if !closed {
		return nil, fmt.Errorf("%s: %w", symbol, domain.ErrNotFound)
	}
	l.engine.States().Clear(symbol)
	l.recordEvent(ctx, symbol, domain.ActionClose, exit.Reason, price, pnlPct)

	return &domain.TradeHistory{
		TradeID:     trade.ID,
		Symbol:      symbol,
		Direction:   trade.Direction,
		EntryPrice:  trade.EntryPrice,
		ExitPrice:   price,
		Quantity:    trade.Quantity,
		Leverage:    trade.Leverage,
		PnL:         pnl,
		PnLPercent:  pnlPct,
		ExitReason:  exit.Reason,
		FinalStatus: domain.ExitLabel(exit.Reason),
		OpenedAt:    trade.CreatedAt,
		ClosedAt:    exit.ClosedAt,
	}, nil
}

// Stats снимок счётчиков
func (l *Loop) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

func (l *Loop) recordEvent(ctx context.Context, symbol, action, reason string, price, pnlPct float64) {
	if l.events == nil {
		return
	}
	err := l.events.RecordEvent(ctx, &domain.RiskEvent{
		Symbol:     symbol,
		Action:     action,
		Reason:     reason,
		Price:      price,
		PnLPercent: pnlPct,
		CreatedAt:  l.now(),
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		l.logger.Warn("Failed to record risk event for %s: %v", symbol, err)
	}
}

func (l *Loop) notify(text string) {
	if l.notifier != nil {
		l.notifier.Notify(text)
	}
}

func (l *Loop) countCheck(ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stats.TotalChecks++
	if ok {
		l.stats.SuccessfulChecks++
	} else {
		l.stats.FailedChecks++
	}
}

func (l *Loop) countError() {
	l.mu.Lock()
	l.stats.ErrorsHandled++
	l.mu.Unlock()
}

func (l *Loop) recordFailure() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stats.ErrorsHandled++
	l.stats.ConsecutiveErrors++
	return l.stats.ConsecutiveErrors
}

func (l *Loop) resetFailures() {
	l.mu.Lock()
	l.stats.ConsecutiveErrors = 0
	l.mu.Unlock()
}

func (l *Loop) setRunning(v bool) {
	l.mu.Lock()
	l.stats.Running = v
	l.mu.Unlock()
}

// sleep false если контекст отменён раньше
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
