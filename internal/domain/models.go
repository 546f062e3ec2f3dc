package domain

import "time"

// TradeIntent содержит структурированные данные сигнала до открытия позиции
type TradeIntent struct {
	Symbol        string    `json:"symbol"`
	Direction     string    `json:"direction"`
	EntryPrice    float64   `json:"entry_price"`
	Leverage      int       `json:"leverage"`
	StopLoss      float64   `json:"stop_loss"`
	Targets       []float64 `json:"targets"`
	Confidence    float64   `json:"confidence"`
	RiskReward    float64   `json:"risk_reward"`
	ValidityHours int       `json:"validity_hours"`
	RawText       string    `json:"-"`
}

// Trade представляет активную позицию
type Trade struct {
	ID          int64                `db:"id" json:"id"`
	Symbol      string               `db:"symbol" json:"symbol"`
	Direction   string               `db:"direction" json:"direction"`
	EntryPrice  float64              `db:"entry_price" json:"entry_price"`
	Quantity    float64              `db:"quantity" json:"quantity"`
	Leverage    int                  `db:"leverage" json:"leverage"`
	StopLoss    float64              `db:"stop_loss" json:"stop_loss"`
	TakeProfits [TargetCount]float64 `json:"take_profits"`
	Status      string               `db:"status" json:"status"`
	Active      bool                 `db:"active" json:"active"`
	OrderID     string               `db:"order_id" json:"order_id"`
	Confidence  float64              `db:"confidence" json:"confidence"`
	RiskAmount  float64              `db:"risk_amount" json:"risk_amount"`
	CreatedAt   time.Time            `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time            `db:"updated_at" json:"updated_at"`
}

// IsLong сообщает, длинная ли позиция
func (t *Trade) IsLong() bool {
	return t.Direction != DirectionShort
}

// Validate проверяет поля, без которых оценку риска проводить нельзя
func (t *Trade) Validate() error {
	switch {
	case t.Symbol == "":
		return &DataIntegrityError{Field: "symbol"}
	case t.EntryPrice <= 0:
		return &DataIntegrityError{Symbol: t.Symbol, Field: "entry_price"}
	case t.Direction != DirectionLong && t.Direction != DirectionShort:
		return &DataIntegrityError{Symbol: t.Symbol, Field: "direction"}
	case t.Leverage < 1:
		return &DataIntegrityError{Symbol: t.Symbol, Field: "leverage"}
	}
	return nil
}

// ExitRecord описывает закрытие позиции для архива
type ExitRecord struct {
	ExitPrice  float64
	Reason     string
	PnL        float64
	PnLPercent float64
	ClosedAt   time.Time
}

// TradeHistory архивная запись закрытой сделки
type TradeHistory struct {
	ID          int64     `db:"id" json:"id"`
	TradeID     int64     `db:"trade_id" json:"trade_id"`
	Symbol      string    `db:"symbol" json:"symbol"`
	Direction   string    `db:"direction" json:"direction"`
	EntryPrice  float64   `db:"entry_price" json:"entry_price"`
	ExitPrice   float64   `db:"exit_price" json:"exit_price"`
	Quantity    float64   `db:"quantity" json:"quantity"`
	Leverage    int       `db:"leverage" json:"leverage"`
	PnL         float64   `db:"pnl" json:"pnl"`
	PnLPercent  float64   `db:"pnl_percent" json:"pnl_percent"`
	ExitReason  string    `db:"exit_reason" json:"exit_reason"`
	FinalStatus string    `db:"final_status" json:"final_status"`
	Duration    float64   `db:"duration_hours" json:"duration_hours"`
	OpenedAt    time.Time `db:"opened_at" json:"opened_at"`
	ClosedAt    time.Time `db:"closed_at" json:"closed_at"`
}

// RiskEvent представляет применённое действие риск-движка
type RiskEvent struct {
	ID         int64     `db:"id" json:"id"`
	Symbol     string    `db:"symbol" json:"symbol"`
	Action     string    `db:"action" json:"action"`
	Reason     string    `db:"reason" json:"reason"`
	Price      float64   `db:"price" json:"price"`
	PnLPercent float64   `db:"pnl_percent" json:"pnl_percent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
