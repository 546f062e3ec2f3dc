package risk

import (
	"fmt"
	"math"
	"time"

	"github.com/kirillm/signalbot/internal/domain"
	"github.com/kirillm/signalbot/pkg/utils"
)

// Recommendation рекомендация по позиции
type Recommendation struct {
	Type       string `json:"type"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion"`
	Priority   string `json:"priority"`
}

// EvaluationResult результат оценки позиции на одном тике
type EvaluationResult struct {
	Symbol          string           `json:"symbol"`
	Action          string           `json:"action"`
	Reason          string           `json:"reason"`
	Description     string           `json:"description"`
	CurrentPrice    float64          `json:"current_price"`
	EntryPrice      float64          `json:"entry_price"`
	PnL             float64          `json:"pnl"`
	PnLPercent      float64          `json:"pnl_percent"`
	ClosePercentage float64          `json:"close_percentage,omitempty"`
	NewStatus       string           `json:"new_status,omitempty"`
	NewStopLoss     float64          `json:"new_stop_loss,omitempty"`
	Volatility      float64          `json:"volatility"`
	ConfidenceScore float64          `json:"confidence_score"`
	TradeAge        time.Duration    `json:"trade_age"`
	Recommendations []Recommendation `json:"recommendations,omitempty"`
}

// IsActionable требует ли результат изменения позиции
func (r EvaluationResult) IsActionable() bool {
	return r.Action != domain.ActionHold && r.Action != domain.ActionNone
}

// evaluation данные одного тика, общие для всех проверок
type evaluation struct {
	trade      *domain.Trade
	price      float64
	long       bool
	pnl        float64
	pnlPercent float64
	volatility float64
	age        time.Duration
	state      *State
	advisories []Recommendation
}

// decision непустое решение проверки
type decision struct {
	action      string
	reason      string
	description string
	closePct    float64
	newStatus   string
	newStopLoss float64
}

type check struct {
	name string
	run  func(ev *evaluation) (*decision, error)
}

// Engine оценивает позиции по упорядоченному списку проверок
type Engine struct {
	params     Params
	states     StateStore
	volatility *VolatilityCache
	logger     *utils.Logger
	now        func() time.Time
	checks     []check
}

// Option настройка движка
type Option func(*Engine)

// WithClock подменяет источник времени
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine создаёт движок. Порядок проверок фиксирован: первая непустая прерывает остальные.
func NewEngine(params Params, states StateStore, logger *utils.Logger, opts ...Option) *Engine {
	e := &Engine{
		params: params,
		states: states,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.volatility = NewVolatilityCache(params.VolatilityCacheTTL, e.now)
	e.checks = []check{
		{"emergency_stop", e.checkEmergencyStop},
		{"stop_loss", e.checkStopLoss},
		{"take_profit", e.checkTakeProfit},
		{"trailing_stop", e.checkTrailingStop},
		{"breakeven", e.checkBreakeven},
		{"partial_profit", e.checkPartialProfit},
		{"time_exit", e.checkTimeExit},
		{"volatility", e.checkVolatility},
	}
	return e
}

// Params текущие параметры
func (e *Engine) Params() Params {
	return e.params
}

// States хранилище состояний движка
func (e *Engine) States() StateStore {
	return e.states
}

// Evaluate оценивает позицию по текущей цене. Никогда не паникует:
// при некорректных данных возвращает действие none с причиной.
func (e *Engine) Evaluate(trade *domain.Trade, price float64) EvaluationResult {
	if trade == nil {
		return EvaluationResult{Action: domain.ActionNone, Reason: domain.ReasonNoTrade, CurrentPrice: price}
	}
	res := EvaluationResult{Symbol: trade.Symbol, CurrentPrice: price, EntryPrice: trade.EntryPrice}

	if err := trade.Validate(); err != nil {
		res.Action = domain.ActionNone
		res.Reason = domain.ReasonInvalidTrade
		res.Description = err.Error()
		return res
	}
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		res.Action = domain.ActionNone
		res.Reason = domain.ReasonInvalidPrice
		res.Description = fmt.Sprintf("invalid price %v", price)
		return res
	}

	ev := &evaluation{
		trade:      trade,
		price:      price,
		long:       trade.IsLong(),
		volatility: e.volatility.Get(trade.Symbol),
		state:      e.states.Get(trade.Symbol),
	}
	if !trade.CreatedAt.IsZero() {
		ev.age = e.now().Sub(trade.CreatedAt)
	}
	ev.pnl, ev.pnlPercent = CalculatePnL(trade, price)

	ev.state.mu.Lock()
	defer ev.state.mu.Unlock()

	res.PnL = ev.pnl
	res.PnLPercent = ev.pnlPercent
	res.Volatility = ev.volatility
	res.TradeAge = ev.age

	for _, c := range e.checks {
		d := e.runCheck(c, ev)
		if d == nil {
			continue
		}
		res.Action = d.action
		res.Reason = d.reason
		res.Description = d.description
		res.ClosePercentage = d.closePct
		res.NewStatus = d.newStatus
		res.NewStopLoss = d.newStopLoss
		res.ConfidenceScore = e.params.Confidence(ev.pnlPercent)
		return res
	}

	res.Action = domain.ActionHold
	res.Reason = domain.ReasonNoCondition
	res.ConfidenceScore = e.params.Confidence(ev.pnlPercent)
	res.Recommendations = append(ev.advisories, e.recommendations(ev, res.ConfidenceScore)...)
	return res
}

// runCheck ошибка или паника внутри проверки означает "проверка ничего не решила"
func (e *Engine) runCheck(c check, ev *evaluation) (d *decision) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Risk check %s panicked for %s: %v", c.name, ev.trade.Symbol, r)
			d = nil
		}
	}()

	d, err := c.run(ev)
	if err != nil {
		e.logger.Warn("Risk check %s failed for %s: %v", c.name, ev.trade.Symbol, err)
		return nil
	}
	return d
}

func (e *Engine) recommendations(ev *evaluation, confidence float64) []Recommendation {
	var recs []Recommendation
	switch {
	case ev.pnlPercent > 20:
		recs = append(recs, Recommendation{
			Type:       "excellent_profit",
			Message:    fmt.Sprintf("Excellent profit of %.2f%%", ev.pnlPercent),
			Suggestion: "Consider taking more profit or tightening the stop",
			Priority:   "high",
		})
	case ev.pnlPercent > 10:
		recs = append(recs, Recommendation{
			Type:       "good_profit",
			Message:    fmt.Sprintf("Good profit of %.2f%%", ev.pnlPercent),
			Suggestion: "Trailing stop is protecting gains",
			Priority:   "medium",
		})
	case ev.pnlPercent < -8:
		recs = append(recs, Recommendation{
			Type:       "significant_drawdown",
			Message:    fmt.Sprintf("Drawdown of %.2f%%", ev.pnlPercent),
			Suggestion: "Review the position, stop-loss is close",
			Priority:   "high",
		})
	}

	if ev.age > e.params.LongTradeAge {
		recs = append(recs, Recommendation{
			Type:       "extended_trade_duration",
			Message:    fmt.Sprintf("Trade open for %.0fh", ev.age.Hours()),
			Suggestion: "Consider closing stale positions",
			Priority:   "medium",
		})
	}

	if confidence < 30 {
		recs = append(recs, Recommendation{
			Type:       "low_confidence",
			Message:    fmt.Sprintf("Low confidence score %.0f", confidence),
			Suggestion: "Consider reducing exposure",
			Priority:   "medium",
		})
	}
	return recs
}
