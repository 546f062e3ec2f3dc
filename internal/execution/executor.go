package execution

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/kirillm/signalbot/internal/domain"
	"github.com/kirillm/signalbot/internal/exchange"
	"github.com/kirillm/signalbot/pkg/utils"
)

// quantityPlaces точность объёма позиции
const quantityPlaces = 6

// Config параметры открытия сделок
type Config struct {
	AmountPerTrade     float64 // USDT на сделку
	RiskPercent        float64 // процент суммы, которым рискуем
	MaxSlippagePercent float64
}

// Executor превращает TradeIntent в открытую сделку
type Executor struct {
	store      domain.TradeWriter
	orders     exchange.OrderPlacer
	prices     exchange.PriceSource
	killSwitch *KillSwitch
	slippage   *SlippageGuard
	cfg        Config
	logger     *utils.Logger
}

// NewExecutor создает новый executor. prices может быть nil, тогда проверка проскальзывания пропускается.
func NewExecutor(
	store domain.TradeWriter,
	orders exchange.OrderPlacer,
	prices exchange.PriceSource,
	killSwitch *KillSwitch,
	cfg Config,
	logger *utils.Logger,
) *Executor {
	return &Executor{
		store:      store,
		orders:     orders,
		prices:     prices,
		killSwitch: killSwitch,
		slippage:   NewSlippageGuard(cfg.MaxSlippagePercent),
		cfg:        cfg,
		logger:     logger,
	}
}

// KillSwitch доступ для команд управления
func (e *Executor) KillSwitch() *KillSwitch {
	return e.killSwitch
}

// Open открывает сделку по сигналу
func (e *Executor) Open(ctx context.Context, intent *domain.TradeIntent) (*domain.Trade, error) {
	if intent == nil {
		return nil, fmt.Errorf("nil intent: %w", domain.ErrInvalidInput)
	}

	// 1. Проверка kill switch
	if e.killSwitch.IsActive() {
		return nil, domain.ErrKillSwitchActive
	}

	// 2. Одна активная сделка на символ
	exists, err := e.store.HasActiveTrade(ctx, intent.Symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to check active trade: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("%s: %w", intent.Symbol, domain.ErrTradeExists)
	}

	// 3. Проверка slippage, если рынок доступен
	if e.prices != nil {
		market, err := e.prices.GetPrice(ctx, intent.Symbol)
		switch {
		case err != nil:
			e.logger.Warn("Slippage check skipped for %s: %v", intent.Symbol, err)
		default:
			if err := e.slippage.Check(market, intent.EntryPrice); err != nil {
				return nil, err
			}
		}
	}

	// 4. Размер позиции
	quantity, riskAmount, err := e.size(intent.EntryPrice)
	if err != nil {
		return nil, err
	}

	// 5. Исполнение ордера
	side := domain.SideFor(intent.Direction)
	order, err := e.orders.CreateOrder(ctx, exchange.OrderRequest{
		Symbol:   intent.Symbol,
		Side:     side,
		Quantity: quantity,
		Price:    intent.EntryPrice,
		StopLoss: intent.StopLoss,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create order for %s: %w", intent.Symbol, err)
	}

	trade := &domain.Trade{
		Symbol:     intent.Symbol,
		Direction:  intent.Direction,
		EntryPrice: intent.EntryPrice,
		Quantity:   quantity,
		Leverage:   intent.Leverage,
		StopLoss:   intent.StopLoss,
		Status:     domain.StatusNew,
		OrderID:    order.ID,
		Confidence: intent.Confidence,
		RiskAmount: riskAmount,
	}
	copy(trade.TakeProfits[:], intent.Targets)

	// 6. Сохранение
	if err := e.store.CreateTrade(ctx, trade); err != nil {
		if errors.Is(err, domain.ErrTradeExists) {
			e.logger.Error("Order %s for %s placed but trade already exists", order.ID, intent.Symbol)
		}
		return nil, fmt.Errorf("failed to save trade: %w", err)
	}

	e.logger.Info("✅ Trade opened: %s %s @ %.8g qty=%.6f lev=%dx (OrderID: %s)",
		trade.Symbol, trade.Direction, trade.EntryPrice, trade.Quantity, trade.Leverage, trade.OrderID)
	return trade, nil
}

// size считает объём и сумму риска
func (e *Executor) size(entry float64) (float64, float64, error) {
	if entry <= 0 {
		return 0, 0, fmt.Errorf("entry price must be positive: %w", domain.ErrInvalidInput)
	}
	if e.cfg.AmountPerTrade <= 0 {
		return 0, 0, fmt.Errorf("amount per trade must be positive: %w", domain.ErrInvalidInput)
	}

	amount := decimal.NewFromFloat(e.cfg.AmountPerTrade)
	qty := amount.Div(decimal.NewFromFloat(entry)).Round(quantityPlaces)
	if !qty.IsPositive() {
		return 0, 0, fmt.Errorf("position size rounds to zero at entry %v: %w", entry, domain.ErrInvalidInput)
	}
	risk := amount.Mul(decimal.NewFromFloat(e.cfg.RiskPercent)).Div(decimal.NewFromInt(100)).Round(2)

	return qty.InexactFloat64(), risk.InexactFloat64(), nil
}
