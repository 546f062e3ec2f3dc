package telegram

import (
	"context"
	"errors"
	"fmt"

	"github.com/kirillm/signalbot/internal/domain"
	"github.com/kirillm/signalbot/internal/execution"
	"github.com/kirillm/signalbot/internal/monitor"
	"github.com/kirillm/signalbot/internal/notify"
)

// TradeCanceller ручное закрытие сделки
type TradeCanceller interface {
	CancelTrade(ctx context.Context, symbol string) (*domain.TradeHistory, error)
}

// MonitorStats источник счётчиков мониторинга
type MonitorStats interface {
	Stats() monitor.Stats
}

// DeliveryStats источник счётчиков уведомлений
type DeliveryStats interface {
	Stats() notify.Stats
}

// Handlers содержит все обработчики команд
type Handlers struct {
	trades     domain.TradeReader
	canceller  TradeCanceller
	killSwitch *execution.KillSwitch
	monitor    MonitorStats
	delivery   DeliveryStats
	formatter  *Formatter
	dryRun     bool
}

// NewHandlers создает обработчики. monitor и delivery могут быть nil.
func NewHandlers(
	trades domain.TradeReader,
	canceller TradeCanceller,
	killSwitch *execution.KillSwitch,
	monitor MonitorStats,
	delivery DeliveryStats,
	formatter *Formatter,
	dryRun bool,
) *Handlers {
	return &Handlers{
		trades:     trades,
		canceller:  canceller,
		killSwitch: killSwitch,
		monitor:    monitor,
		delivery:   delivery,
		formatter:  formatter,
		dryRun:     dryRun,
	}
}

// Register регистрирует обработчики в роутере
func (h *Handlers) Register(router *Router) {
	router.RegisterHandler(CmdStart, h.HandleHelp)
	router.RegisterHandler(CmdHelp, h.HandleHelp)
	router.RegisterHandler(CmdStatus, h.HandleStatus)
	router.RegisterHandler(CmdTrades, h.HandleTrades)
	router.RegisterHandler(CmdHistory, h.HandleHistory)
	router.RegisterAdminHandler(CmdCancel, h.HandleCancel)
	router.RegisterAdminHandler(CmdPanicStop, h.HandlePanicStop)
}

// HandleStatus сводка по боту
func (h *Handlers) HandleStatus(ctx context.Context, args *CommandArgs) (string, error) {
	trades, err := h.trades.ListActiveTrades(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list trades: %w", err)
	}

	data := StatusData{
		ActiveTrades: len(trades),
		DryRun:       h.dryRun,
	}
	if h.killSwitch != nil {
		data.KillSwitch = h.killSwitch.Status()
	}
	if h.monitor != nil {
		data.Monitor = h.monitor.Stats()
	}
	if h.delivery != nil {
		st := h.delivery.Stats()
		data.Sent, data.Failed = st.Sent, st.Failed
	}
	return h.formatter.FormatStatus(data), nil
}

// HandleTrades список активных сделок
func (h *Handlers) HandleTrades(ctx context.Context, args *CommandArgs) (string, error) {
	trades, err := h.trades.ListActiveTrades(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list trades: %w", err)
	}
	return h.formatter.FormatTrades(trades), nil
}

// HandleHistory последние закрытые сделки
func (h *Handlers) HandleHistory(ctx context.Context, args *CommandArgs) (string, error) {
	items, err := h.trades.RecentHistory(ctx, args.Count)
	if err != nil {
		return "", fmt.Errorf("failed to load history: %w", err)
	}
	return h.formatter.FormatHistory(items), nil
}

// HandleCancel ручное закрытие сделки по символу
func (h *Handlers) HandleCancel(ctx context.Context, args *CommandArgs) (string, error) {
	record, err := h.canceller.CancelTrade(ctx, args.Symbol)
	if errors.Is(err, domain.ErrNotFound) {
		return h.formatter.FormatError(fmt.Errorf("no active trade for %s", args.Symbol)), nil
	}
	if err != nil {
		return "", err
	}
	return h.formatter.FormatCancelled(record), nil
}

// HandlePanicStop управляет аварийной остановкой
func (h *Handlers) HandlePanicStop(ctx context.Context, args *CommandArgs) (string, error) {
	switch args.Action {
	case "on":
		h.killSwitch.Activate("manual /panicstop")
	case "off":
		h.killSwitch.Deactivate()
	}
	return h.formatter.FormatKillSwitch(h.killSwitch.Status()), nil
}

// HandleHelp справка по командам
func (h *Handlers) HandleHelp(ctx context.Context, args *CommandArgs) (string, error) {
	if h.formatter.Lang() == LangRU {
		return helpRU, nil
	}
	return helpEN, nil
}

const helpEN = `🤖 Signal Bot

Send a trading signal as plain text, for example:
#BTCUSDT Long
Entry: 50000-51000
Leverage: 5x
Target 1: 52000
Target 2: 53000
Stop-Loss: 49000

Commands:
/status - bot and monitoring status
/trades - active trades
/history [N] - last closed trades
/cancel SYMBOL - close a trade manually (admin)
/panicstop [on|off] - block new trades (admin)
/help - this message`

const helpRU = `🤖 Signal Bot

Отправьте торговый сигнал обычным текстом, например:
#BTCUSDT Long
Entry: 50000-51000
Leverage: 5x
Target 1: 52000
Target 2: 53000
Stop-Loss: 49000

Команды:
/status - состояние бота и мониторинга
/trades - активные сделки
/history [N] - последние закрытые сделки
/cancel SYMBOL - закрыть сделку вручную (админ)
/panicstop [on|off] - запретить новые сделки (админ)
/help - эта справка`
