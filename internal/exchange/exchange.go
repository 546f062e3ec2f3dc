package exchange

import (
	"context"
	"time"
)

// PriceSource источник текущих цен
type PriceSource interface {
	GetPrice(ctx context.Context, symbol string) (float64, error)
}

// OrderPlacer размещает ордера на бирже
type OrderPlacer interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
}

// Client полный клиент биржи
type Client interface {
	PriceSource
	OrderPlacer
	Name() string
}

// OrderRequest параметры нового ордера
type OrderRequest struct {
	Symbol   string
	Side     string
	Quantity float64
	Price    float64 // 0 для рыночного ордера
	StopLoss float64
}

// Order размещенный ордер
type Order struct {
	ID        string
	Symbol    string
	Side      string
	Price     float64
	Quantity  float64
	CreatedAt time.Time
}
