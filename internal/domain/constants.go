package domain

// Направления позиции
const (
	DirectionLong  = "long"
	DirectionShort = "short"
)

// Стороны ордера
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Статусы сделки. TK1..TK3 отмечают пройденные уровни тейк-профита.
const (
	StatusNew    = "NEW"
	StatusFilled = "FILLED"
	StatusTK1    = "TK1"
	StatusTK2    = "TK2"
	StatusTK3    = "TK3"
	StatusClosed = "CLOSED"
)

// Итоговые метки в архиве сделок
const (
	ExitStopLoss    = "STOP_LOSS"
	ExitTarget4     = "TARGET_4"
	ExitManualClose = "MANUAL_CLOSE"
	ExitClosed      = "CLOSED"
)

// Действия риск-движка
const (
	ActionHold           = "hold"
	ActionClose          = "close"
	ActionPartialClose   = "partial_close"
	ActionUpdateStopLoss = "update_stoploss"
	ActionNone           = "none"
)

// Коды причин
const (
	ReasonEmergencyStop      = "emergency_stop"
	ReasonStopLoss           = "stop_loss_triggered"
	ReasonTarget1            = "target_1_reached"
	ReasonTarget2            = "target_2_reached"
	ReasonTarget3            = "target_3_reached"
	ReasonTarget4            = "target_4_reached"
	ReasonTrailingStop       = "trailing_stop_updated"
	ReasonBreakeven          = "breakeven_activated"
	ReasonPartialProfit      = "partial_profit_taken"
	ReasonMaxDuration        = "max_trade_duration_reached"
	ReasonManualCancellation = "manual_cancellation"
	ReasonNoTrade            = "no_trade_found"
	ReasonInvalidTrade       = "invalid_trade_data"
	ReasonInvalidPrice       = "invalid_price"
	ReasonNoCondition        = "no_conditions_met"
)

// TargetCount количество уровней тейк-профита
const TargetCount = 4

// ExitLabel переводит причину закрытия в итоговую метку архива
func ExitLabel(reason string) string {
	switch reason {
	case ReasonStopLoss:
		return ExitStopLoss
	case ReasonTarget4:
		return ExitTarget4
	case ReasonManualCancellation:
		return ExitManualClose
	default:
		return ExitClosed
	}
}

// SideFor возвращает сторону ордера для направления позиции
func SideFor(direction string) string {
	if direction == DirectionShort {
		return SideSell
	}
	return SideBuy
}
