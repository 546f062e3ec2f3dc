package risk

import (
	"fmt"
	"math"

	"github.com/kirillm/signalbot/internal/domain"
)

var (
	targetStatuses = [3]string{domain.StatusTK1, domain.StatusTK2, domain.StatusTK3}
	targetReasons  = [4]string{domain.ReasonTarget1, domain.ReasonTarget2, domain.ReasonTarget3, domain.ReasonTarget4}
)

// nextTargetIndex индекс следующей неотработанной цели по статусу
func nextTargetIndex(status string) int {
	switch status {
	case domain.StatusTK1:
		return 1
	case domain.StatusTK2:
		return 2
	case domain.StatusTK3:
		return 3
	default:
		return 0
	}
}

func (e *Engine) checkEmergencyStop(ev *evaluation) (*decision, error) {
	if ev.pnlPercent > -e.params.EmergencyStopPercent {
		return nil, nil
	}
	return &decision{
		action:      domain.ActionClose,
		reason:      domain.ReasonEmergencyStop,
		description: fmt.Sprintf("Emergency stop at %.2f%% loss", ev.pnlPercent),
	}, nil
}

// stopBuffer буфер волатильности в пределах [min, max] плюс проскальзывание
func (e *Engine) stopBuffer(volatility float64) float64 {
	buffer := math.Min(volatility*e.params.VolatilityMultiplier, e.params.MaxVolatilityBuffer)
	buffer = math.Max(buffer, e.params.MinVolatilityBuffer)
	return buffer + e.params.StopSlippage
}

func (e *Engine) checkStopLoss(ev *evaluation) (*decision, error) {
	stop := ev.trade.StopLoss
	if stop <= 0 {
		return nil, nil
	}

	buffer := e.stopBuffer(ev.volatility)
	var hit bool
	var trigger float64
	if ev.long {
		trigger = stop * (1 - buffer)
		hit = ev.price <= trigger
	} else {
		trigger = stop * (1 + buffer)
		hit = ev.price >= trigger
	}
	if !hit {
		return nil, nil
	}
	return &decision{
		action:      domain.ActionClose,
		reason:      domain.ReasonStopLoss,
		description: fmt.Sprintf("Stop-loss %.8g crossed at %.8g (trigger %.8g)", stop, ev.price, trigger),
	}, nil
}

func (e *Engine) checkTakeProfit(ev *evaluation) (*decision, error) {
	idx := nextTargetIndex(ev.trade.Status)
	if ev.state.TargetsReached > idx {
		idx = ev.state.TargetsReached
	}
	if idx >= domain.TargetCount {
		return nil, nil
	}

	target := ev.trade.TakeProfits[idx]
	if target <= 0 {
		return nil, fmt.Errorf("target %d is not set", idx+1)
	}
	if (ev.long && ev.price < target) || (!ev.long && ev.price > target) {
		return nil, nil
	}

	ev.state.TargetsReached = idx + 1
	if idx == domain.TargetCount-1 {
		return &decision{
			action:      domain.ActionClose,
			reason:      domain.ReasonTarget4,
			description: fmt.Sprintf("Final target %.8g reached", target),
		}, nil
	}

	d := &decision{
		action:      domain.ActionPartialClose,
		reason:      targetReasons[idx],
		description: fmt.Sprintf("Target %d (%.8g) reached", idx+1, target),
		closePct:    e.params.TakeProfitFractions[idx],
		newStatus:   targetStatuses[idx],
	}

	// TK1 переносит стоп на вход, TK2 и TK3 на предыдущую цель
	relocate := ev.trade.EntryPrice
	if idx > 0 {
		relocate = ev.trade.TakeProfits[idx-1]
	}
	if improves(ev.trade.StopLoss, relocate, ev.long) && protective(relocate, ev.price, ev.long) {
		d.newStopLoss = relocate
	}
	return d, nil
}

func (e *Engine) checkTrailingStop(ev *evaluation) (*decision, error) {
	if ev.pnlPercent < e.params.TrailingActivationPercent {
		return nil, nil
	}

	distance := math.Max(e.params.TrailingDistance, e.params.TrailingVolatilityFactor*ev.volatility)
	var candidate float64
	if ev.long {
		candidate = math.Max(ev.price*(1-distance), ev.trade.EntryPrice*(1-e.params.TrailingEntryFloor))
	} else {
		candidate = math.Min(ev.price*(1+distance), ev.trade.EntryPrice*(1+e.params.TrailingEntryFloor))
	}
	candidate = roundPrice(candidate)

	if !improves(ev.trade.StopLoss, candidate, ev.long) || !protective(candidate, ev.price, ev.long) {
		return nil, nil
	}

	ev.state.TrailingActivated = true
	return &decision{
		action:      domain.ActionUpdateStopLoss,
		reason:      domain.ReasonTrailingStop,
		description: fmt.Sprintf("Trailing stop moved to %.8g (distance %.2f%%)", candidate, distance*100),
		newStopLoss: candidate,
	}, nil
}

func (e *Engine) checkBreakeven(ev *evaluation) (*decision, error) {
	if ev.state.BreakevenActivated || ev.pnlPercent < e.params.BreakevenActivationPercent {
		return nil, nil
	}

	candidate := ev.trade.EntryPrice * (1 + e.params.BreakevenOffset)
	if !ev.long {
		candidate = ev.trade.EntryPrice * (1 - e.params.BreakevenOffset)
	}
	candidate = roundPrice(candidate)

	if !improves(ev.trade.StopLoss, candidate, ev.long) || !protective(candidate, ev.price, ev.long) {
		return nil, nil
	}

	ev.state.BreakevenActivated = true
	return &decision{
		action:      domain.ActionUpdateStopLoss,
		reason:      domain.ReasonBreakeven,
		description: fmt.Sprintf("Stop moved to breakeven %.8g", candidate),
		newStopLoss: candidate,
	}, nil
}

func (e *Engine) checkPartialProfit(ev *evaluation) (*decision, error) {
	if ev.state.PartialProfitTaken || ev.pnlPercent < e.params.PartialProfitPercent {
		return nil, nil
	}

	ev.state.PartialProfitTaken = true
	return &decision{
		action:      domain.ActionPartialClose,
		reason:      domain.ReasonPartialProfit,
		description: fmt.Sprintf("Taking %.0f%% profit at %.2f%%", e.params.PartialProfitFraction*100, ev.pnlPercent),
		closePct:    e.params.PartialProfitFraction,
		newStatus:   ev.trade.Status,
	}, nil
}

func (e *Engine) checkTimeExit(ev *evaluation) (*decision, error) {
	if ev.age < e.params.MaxTradeDuration {
		return nil, nil
	}
	return &decision{
		action:      domain.ActionClose,
		reason:      domain.ReasonMaxDuration,
		description: fmt.Sprintf("Trade open for %.0fh, limit %.0fh", ev.age.Hours(), e.params.MaxTradeDuration.Hours()),
	}, nil
}

// checkVolatility только добавляет рекомендацию, действие не меняет
func (e *Engine) checkVolatility(ev *evaluation) (*decision, error) {
	switch {
	case ev.volatility > e.params.VolatilityHigh:
		ev.advisories = append(ev.advisories, Recommendation{
			Type:       "high_volatility_warning",
			Message:    fmt.Sprintf("High volatility %.1f%%", ev.volatility*100),
			Suggestion: "Consider reducing position size",
			Priority:   "high",
		})
	case ev.volatility > e.params.VolatilityAdvisory:
		ev.advisories = append(ev.advisories, Recommendation{
			Type:       "volatility_advisory",
			Message:    fmt.Sprintf("Elevated volatility %.1f%%", ev.volatility*100),
			Suggestion: "Monitor the position closely",
			Priority:   "medium",
		})
	}
	return nil, nil
}
