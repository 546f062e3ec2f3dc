package risk

import (
	"math"

	"github.com/kirillm/signalbot/internal/domain"
	"github.com/shopspring/decimal"
)

// CalculatePnL абсолютный PnL и процент с учётом плеча, округлённые до центов
func CalculatePnL(trade *domain.Trade, price float64) (pnl, pnlPercent float64) {
	diff := price - trade.EntryPrice
	if !trade.IsLong() {
		diff = -diff
	}
	pnl = round2(diff * trade.Quantity)
	pnlPercent = round2(diff / trade.EntryPrice * 100 * float64(trade.Leverage))
	return pnl, pnlPercent
}

// Confidence оценка уверенности в позиции: база плюс бонус за прибыль или штраф за убыток
func (p Params) Confidence(pnlPercent float64) float64 {
	score := p.ConfidenceBase
	if pnlPercent > 0 {
		score += math.Min(pnlPercent*2, p.ConfidenceMaxBonus)
	} else {
		score -= math.Min(math.Abs(pnlPercent), p.ConfidenceMaxPenalty)
	}
	return math.Max(10, math.Min(100, score))
}

func round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

func roundPrice(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(8).Float64()
	return f
}

// improves сообщает, сдвигает ли кандидат стоп в пользу держателя позиции
func improves(current, candidate float64, long bool) bool {
	if candidate <= 0 {
		return false
	}
	if current <= 0 {
		return true
	}
	if long {
		return candidate > current
	}
	return candidate < current
}

// protective стоп должен оставаться по убыточную сторону от текущей цены
func protective(stop, price float64, long bool) bool {
	if long {
		return stop < price
	}
	return stop > price
}
