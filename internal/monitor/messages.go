package monitor

import (
	"fmt"
	"strings"

	"github.com/kirillm/signalbot/internal/domain"
	"github.com/kirillm/signalbot/internal/risk"
)

var reasonTitles = map[string]string{
	domain.ReasonEmergencyStop:      "🚨 Emergency Stop",
	domain.ReasonStopLoss:           "🛑 Stop-Loss Triggered",
	domain.ReasonTarget1:            "🎯 Target 1 Reached",
	domain.ReasonTarget2:            "🎯 Target 2 Reached",
	domain.ReasonTarget3:            "🎯 Target 3 Reached",
	domain.ReasonTarget4:            "🏁 Final Target Reached",
	domain.ReasonTrailingStop:       "📈 Trailing Stop Updated",
	domain.ReasonBreakeven:          "🛡 Breakeven Activated",
	domain.ReasonPartialProfit:      "💰 Partial Profit Taken",
	domain.ReasonMaxDuration:        "⏰ Max Duration Reached",
	domain.ReasonManualCancellation: "✋ Trade Cancelled",
}

// FormatAction текст уведомления о сработавшем действии
func FormatAction(trade *domain.Trade, res risk.EvaluationResult) string {
	title, ok := reasonTitles[res.Reason]
	if !ok {
		title = "⚡ " + res.Reason
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", title)
	fmt.Fprintf(&b, "Symbol: %s (%s %dx)\n", trade.Symbol, strings.ToUpper(trade.Direction), trade.Leverage)
	fmt.Fprintf(&b, "Entry: %s\n", formatPrice(trade.EntryPrice))
	fmt.Fprintf(&b, "Price: %s\n", formatPrice(res.CurrentPrice))
	fmt.Fprintf(&b, "PnL: %s%%\n", signed(res.PnLPercent))

	switch res.Action {
	case domain.ActionClose:
		b.WriteString("\nPosition closed")
	case domain.ActionPartialClose:
		fmt.Fprintf(&b, "\nClosed: %.0f%% of position", res.ClosePercentage*100)
		if res.NewStatus != "" {
			fmt.Fprintf(&b, "\nStatus: %s", res.NewStatus)
		}
		if res.NewStopLoss > 0 {
			fmt.Fprintf(&b, "\nStop-Loss: %s → %s", formatPrice(trade.StopLoss), formatPrice(res.NewStopLoss))
		}
	case domain.ActionUpdateStopLoss:
		fmt.Fprintf(&b, "\nStop-Loss: %s → %s", formatPrice(trade.StopLoss), formatPrice(res.NewStopLoss))
	}
	return b.String()
}

// FormatTrade краткая карточка активной сделки
func FormatTrade(trade domain.Trade) string {
	targets := make([]string, 0, domain.TargetCount)
	for _, tp := range trade.TakeProfits {
		targets = append(targets, formatPrice(tp))
	}
	return fmt.Sprintf("%s %s %dx | entry %s | SL %s | TP %s | %s",
		trade.Symbol,
		strings.ToUpper(trade.Direction),
		trade.Leverage,
		formatPrice(trade.EntryPrice),
		formatPrice(trade.StopLoss),
		strings.Join(targets, " / "),
		trade.Status,
	)
}

// FormatHistory строка архива
func FormatHistory(h domain.TradeHistory) string {
	return fmt.Sprintf("%s %s | %s → %s | %s%% | %s | %.1fh",
		h.Symbol,
		strings.ToUpper(h.Direction),
		formatPrice(h.EntryPrice),
		formatPrice(h.ExitPrice),
		signed(h.PnLPercent),
		h.FinalStatus,
		h.Duration,
	)
}

func formatPrice(p float64) string {
	switch {
	case p >= 1000:
		return fmt.Sprintf("%.2f", p)
	case p >= 1:
		return fmt.Sprintf("%.4f", p)
	default:
		return fmt.Sprintf("%.8f", p)
	}
}

func signed(v float64) string {
	if v > 0 {
		return fmt.Sprintf("+%.2f", v)
	}
	return fmt.Sprintf("%.2f", v)
}
