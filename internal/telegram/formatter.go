package telegram

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirillm/signalbot/internal/domain"
	"github.com/kirillm/signalbot/internal/execution"
	"github.com/kirillm/signalbot/internal/monitor"
)

// Lang представляет язык
type Lang string

const (
	LangEN Lang = "en"
	LangRU Lang = "ru"
)

var translations = map[string]map[Lang]string{
	"bot_started":      {LangEN: "🤖 Signal bot started", LangRU: "🤖 Сигнальный бот запущен"},
	"status":           {LangEN: "Status", LangRU: "Статус"},
	"trades":           {LangEN: "Active Trades", LangRU: "Активные сделки"},
	"history":          {LangEN: "Trade History", LangRU: "История сделок"},
	"no_trades":        {LangEN: "No active trades", LangRU: "Нет активных сделок"},
	"no_history":       {LangEN: "No closed trades yet", LangRU: "Закрытых сделок пока нет"},
	"monitoring":       {LangEN: "Monitoring", LangRU: "Мониторинг"},
	"running":          {LangEN: "running", LangRU: "работает"},
	"stopped":          {LangEN: "stopped", LangRU: "остановлен"},
	"checks":           {LangEN: "Checks", LangRU: "Проверки"},
	"actions":          {LangEN: "Actions applied", LangRU: "Применено действий"},
	"notifications":    {LangEN: "Notifications", LangRU: "Уведомления"},
	"last_check":       {LangEN: "Last check", LangRU: "Последняя проверка"},
	"kill_switch":      {LangEN: "Kill switch", LangRU: "Аварийная остановка"},
	"kill_on":          {LangEN: "🚨 ON: new trades are blocked", LangRU: "🚨 ВКЛ: новые сделки заблокированы"},
	"kill_off":         {LangEN: "✅ OFF: trading allowed", LangRU: "✅ ВЫКЛ: торговля разрешена"},
	"signal_accepted":  {LangEN: "Signal accepted", LangRU: "Сигнал принят"},
	"signal_rejected":  {LangEN: "Signal rejected", LangRU: "Сигнал отклонён"},
	"trade_cancelled":  {LangEN: "Trade cancelled", LangRU: "Сделка отменена"},
	"error":            {LangEN: "Error", LangRU: "Ошибка"},
	"success":          {LangEN: "Success", LangRU: "Успешно"},
	"access_denied":    {LangEN: "⛔ Access denied", LangRU: "⛔ Доступ запрещён"},
	"admin_required":   {LangEN: "⛔ Admin permission required", LangRU: "⛔ Требуются права администратора"},
	"missing_fields":   {LangEN: "missing", LangRU: "не найдено"},
	"invalid_fields":   {LangEN: "invalid", LangRU: "некорректно"},
	"trade_exists":     {LangEN: "an active trade for this symbol already exists", LangRU: "по этому символу уже есть активная сделка"},
	"kill_blocked":     {LangEN: "kill switch is active, new trades are blocked", LangRU: "аварийная остановка включена, новые сделки заблокированы"},
	"slippage_blocked": {LangEN: "entry is too far from market price", LangRU: "цена входа слишком далеко от рынка"},
}

// Formatter форматирует ответы для пользователя
type Formatter struct {
	lang Lang
}

// NewFormatter создает новый форматтер
func NewFormatter(lang Lang) *Formatter {
	if lang != LangRU && lang != LangEN {
		lang = LangEN
	}
	return &Formatter{lang: lang}
}

// Lang возвращает текущий язык
func (f *Formatter) Lang() Lang {
	return f.lang
}

// T переводит строку
func (f *Formatter) T(key string) string {
	if t, ok := translations[key]; ok {
		if s, ok := t[f.lang]; ok {
			return s
		}
		return t[LangEN]
	}
	return key
}

// StatusData срез состояния для /status
type StatusData struct {
	Monitor      monitor.Stats
	Sent         int64
	Failed       int64
	ActiveTrades int
	KillSwitch   execution.KillSwitchStatus
	DryRun       bool
}

// FormatStatus форматирует /status
func (f *Formatter) FormatStatus(d StatusData) string {
	var sb strings.Builder

	mode := "LIVE"
	if d.DryRun {
		mode = "DRY RUN"
	}
	sb.WriteString(fmt.Sprintf("📊 %s (%s)\n\n", f.T("status"), mode))

	state := f.T("stopped")
	if d.Monitor.Running {
		state = f.T("running")
	}
	sb.WriteString(fmt.Sprintf("%s: %s\n", f.T("monitoring"), state))
	sb.WriteString(fmt.Sprintf("%s: %d\n", f.T("trades"), d.ActiveTrades))
	sb.WriteString(fmt.Sprintf("%s: %d ✅ / %d ❌\n", f.T("checks"), d.Monitor.SuccessfulChecks, d.Monitor.FailedChecks))
	sb.WriteString(fmt.Sprintf("%s: %d\n", f.T("actions"), d.Monitor.TradesManaged))
	sb.WriteString(fmt.Sprintf("%s: %d ✅ / %d ❌\n", f.T("notifications"), d.Sent, d.Failed))
	if !d.Monitor.LastCheck.IsZero() {
		sb.WriteString(fmt.Sprintf("%s: %s ago\n", f.T("last_check"), FormatDuration(time.Since(d.Monitor.LastCheck))))
	}

	kill := f.T("kill_off")
	if d.KillSwitch.Active {
		kill = f.T("kill_on")
	}
	sb.WriteString(fmt.Sprintf("\n%s: %s", f.T("kill_switch"), kill))
	return sb.String()
}

// FormatTrades форматирует список активных сделок
func (f *Formatter) FormatTrades(trades []domain.Trade) string {
	if len(trades) == 0 {
		return f.T("no_trades")
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📈 %s (%d)\n\n", f.T("trades"), len(trades)))
	for _, t := range trades {
		sb.WriteString(monitor.FormatTrade(t))
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// FormatHistory форматирует архив сделок
func (f *Formatter) FormatHistory(items []domain.TradeHistory) string {
	if len(items) == 0 {
		return f.T("no_history")
	}
	var total float64
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📜 %s (%d)\n\n", f.T("history"), len(items)))
	for _, h := range items {
		sb.WriteString(monitor.FormatHistory(h))
		sb.WriteString("\n")
		total += h.PnL
	}
	sb.WriteString(fmt.Sprintf("\nΣ PnL: %.2f USDT", total))
	return sb.String()
}

// FormatOpened подтверждение открытой сделки
func (f *Formatter) FormatOpened(intent *domain.TradeIntent, trade *domain.Trade) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("✅ %s\n\n", f.T("signal_accepted")))
	sb.WriteString(monitor.FormatTrade(*trade))
	sb.WriteString(fmt.Sprintf("\nQty: %.6f | Confidence: %.0f%% | R/R: %.2f", trade.Quantity, intent.Confidence, intent.RiskReward))
	if intent.ValidityHours > 0 {
		sb.WriteString(fmt.Sprintf(" | Valid: %dh", intent.ValidityHours))
	}
	return sb.String()
}

// FormatRejected объясняет отказ по сигналу
func (f *Formatter) FormatRejected(err error) string {
	var parseErr *domain.ParseError
	var reason string
	switch {
	case errors.As(err, &parseErr):
		var parts []string
		if len(parseErr.Missing) > 0 {
			parts = append(parts, f.T("missing_fields")+": "+strings.Join(parseErr.Missing, ", "))
		}
		if len(parseErr.Invalid) > 0 {
			parts = append(parts, f.T("invalid_fields")+": "+strings.Join(parseErr.Invalid, ", "))
		}
		reason = strings.Join(parts, "; ")
	case errors.Is(err, domain.ErrTradeExists):
		reason = f.T("trade_exists")
	case errors.Is(err, domain.ErrKillSwitchActive):
		reason = f.T("kill_blocked")
	case errors.Is(err, domain.ErrSlippageTooHigh):
		reason = f.T("slippage_blocked") + " (" + err.Error() + ")"
	default:
		reason = err.Error()
	}
	return fmt.Sprintf("❌ %s: %s", f.T("signal_rejected"), reason)
}

// FormatCancelled подтверждение ручного закрытия
func (f *Formatter) FormatCancelled(h *domain.TradeHistory) string {
	return fmt.Sprintf("✋ %s\n\n%s", f.T("trade_cancelled"), monitor.FormatHistory(*h))
}

// FormatKillSwitch состояние аварийной остановки
func (f *Formatter) FormatKillSwitch(st execution.KillSwitchStatus) string {
	if !st.Active {
		return fmt.Sprintf("%s: %s", f.T("kill_switch"), f.T("kill_off"))
	}
	return fmt.Sprintf("%s: %s\n%s (%s)", f.T("kill_switch"), f.T("kill_on"), st.Reason, st.ActivatedAt.Format(time.RFC3339))
}

// FormatError форматирует сообщение об ошибке
func (f *Formatter) FormatError(err error) string {
	return fmt.Sprintf("❌ %s: %v", f.T("error"), err)
}

// FormatSuccess форматирует сообщение об успехе
func (f *Formatter) FormatSuccess(message string) string {
	return fmt.Sprintf("✅ %s: %s", f.T("success"), message)
}

// FormatDuration форматирует длительность
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	} else if d < 24*time.Hour {
		hours := int(d.Hours())
		minutes := int(d.Minutes()) % 60
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}

// splitMessage разбивает длинное сообщение на части
func splitMessage(text string, maxLength int) []string {
	if len(text) <= maxLength {
		return []string{text}
	}

	var messages []string
	lines := strings.Split(text, "\n")
	currentMessage := ""

	for _, line := range lines {
		if len(currentMessage)+len(line)+1 > maxLength && currentMessage != "" {
			messages = append(messages, currentMessage)
			currentMessage = line
		} else {
			if currentMessage != "" {
				currentMessage += "\n"
			}
			currentMessage += line
		}
	}

	if currentMessage != "" {
		messages = append(messages, currentMessage)
	}
	return messages
}
