package exchange

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kirillm/signalbot/internal/domain"
)

const binanceDefaultURL = "https://api.binance.com"

// BinancePriceClient публичный источник цен Binance, используется как резервный
type BinancePriceClient struct {
	client *resty.Client
}

type binanceTicker struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// NewBinancePriceClient создает клиент без ключей
func NewBinancePriceClient(baseURL string) *BinancePriceClient {
	if baseURL == "" {
		baseURL = binanceDefaultURL
	}
	return &BinancePriceClient{
		client: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(10 * time.Second),
	}
}

// Name имя источника для логов
func (c *BinancePriceClient) Name() string {
	return "binance"
}

// GetPrice возвращает последнюю цену пары
func (c *BinancePriceClient) GetPrice(ctx context.Context, symbol string) (float64, error) {
	var ticker binanceTicker
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetResult(&ticker).
		Get("/api/v3/ticker/price")
	if err != nil {
		return 0, fmt.Errorf("failed to execute request: %w", err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("%w: http %d: %s", domain.ErrExchangeAPI, resp.StatusCode(), resp.String())
	}

	price, err := strconv.ParseFloat(ticker.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse price for %s: %w", symbol, err)
	}
	return price, nil
}
