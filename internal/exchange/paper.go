package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PaperClient исполняет ордера виртуально, цены берет из реального источника
type PaperClient struct {
	prices PriceSource
	now    func() time.Time
}

// NewPaperClient создает клиент для режима DRY_RUN
func NewPaperClient(prices PriceSource) *PaperClient {
	return &PaperClient{prices: prices, now: time.Now}
}

// Name имя источника для логов
func (p *PaperClient) Name() string {
	return "paper"
}

// GetPrice проксирует запрос к источнику цен
func (p *PaperClient) GetPrice(ctx context.Context, symbol string) (float64, error) {
	if p.prices == nil {
		return 0, fmt.Errorf("paper client has no price source")
	}
	return p.prices.GetPrice(ctx, symbol)
}

// CreateOrder сразу считает ордер исполненным
func (p *PaperClient) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("invalid quantity %v", req.Quantity)
	}
	return &Order{
		ID:        "paper-" + uuid.NewString(),
		Symbol:    req.Symbol,
		Side:      req.Side,
		Price:     req.Price,
		Quantity:  req.Quantity,
		CreatedAt: p.now(),
	}, nil
}
