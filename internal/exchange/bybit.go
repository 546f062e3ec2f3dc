package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kirillm/signalbot/internal/domain"
)

const (
	bybitRecvWindow    = "5000"
	bybitCategory      = "linear"
	bybitOrderMarket   = "Market"
	bybitOrderLimit    = "Limit"
	bybitDefaultURL    = "https://api.bybit.com"
	defaultHTTPTimeout = 30 * time.Second
)

// BybitClient клиент Bybit v5 для деривативов (linear)
type BybitClient struct {
	apiKey     string
	apiSecret  string
	recvWindow string
	client     *resty.Client
	now        func() time.Time
}

type bybitEnvelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

type tickerResult struct {
	List []struct {
		Symbol    string `json:"symbol"`
		LastPrice string `json:"lastPrice"`
	} `json:"list"`
}

type orderResult struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
}

// NewBybitClient создает клиент. Пустой baseURL означает боевой API.
func NewBybitClient(apiKey, apiSecret, baseURL string) *BybitClient {
	if baseURL == "" {
		baseURL = bybitDefaultURL
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(defaultHTTPTimeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)

	return &BybitClient{
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		recvWindow: bybitRecvWindow,
		client:     client,
		now:        time.Now,
	}
}

// Name имя источника для логов
func (b *BybitClient) Name() string {
	return "bybit"
}

// GetPrice получает последнюю цену контракта
func (b *BybitClient) GetPrice(ctx context.Context, symbol string) (float64, error) {
	resp, err := b.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"category": bybitCategory,
			"symbol":   symbol,
		}).
		Get("/v5/market/tickers")
	if err != nil {
		return 0, fmt.Errorf("failed to execute request: %w", err)
	}

	var ticker tickerResult
	if err := decodeBybit(resp, &ticker); err != nil {
		return 0, err
	}
	if len(ticker.List) == 0 || ticker.List[0].LastPrice == "" {
		return 0, fmt.Errorf("no price data for symbol %s", symbol)
	}

	price, err := strconv.ParseFloat(ticker.List[0].LastPrice, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse price for %s: %w", symbol, err)
	}
	return price, nil
}

// CreateOrder размещает ордер. Цена 0 означает рыночный ордер.
func (b *BybitClient) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	params := map[string]interface{}{
		"category":  bybitCategory,
		"symbol":    req.Symbol,
		"side":      bybitSide(req.Side),
		"orderType": bybitOrderMarket,
		"qty":       strconv.FormatFloat(req.Quantity, 'f', -1, 64),
	}
	if req.Price > 0 {
		params["orderType"] = bybitOrderLimit
		params["price"] = strconv.FormatFloat(req.Price, 'f', -1, 64)
	}
	if req.StopLoss > 0 {
		params["stopLoss"] = strconv.FormatFloat(req.StopLoss, 'f', -1, 64)
	}

	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}

	timestamp := strconv.FormatInt(b.now().UnixMilli(), 10)
	resp, err := b.client.R().
		SetContext(ctx).
		SetHeaders(b.authHeaders(timestamp, b.sign(timestamp, string(body)))).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post("/v5/order/create")
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}

	var result orderResult
	if err := decodeBybit(resp, &result); err != nil {
		return nil, err
	}

	return &Order{
		ID:        result.OrderID,
		Symbol:    req.Symbol,
		Side:      req.Side,
		Price:     req.Price,
		Quantity:  req.Quantity,
		CreatedAt: b.now(),
	}, nil
}

// sign генерирует подпись для запросов (GET и POST)
func (b *BybitClient) sign(timestamp, payload string) string {
	message := timestamp + b.apiKey + b.recvWindow + payload
	h := hmac.New(sha256.New, []byte(b.apiSecret))
	h.Write([]byte(message))
	return hex.EncodeToString(h.Sum(nil))
}

func (b *BybitClient) authHeaders(timestamp, signature string) map[string]string {
	return map[string]string{
		"X-BAPI-API-KEY":     b.apiKey,
		"X-BAPI-SIGN":        signature,
		"X-BAPI-TIMESTAMP":   timestamp,
		"X-BAPI-RECV-WINDOW": b.recvWindow,
	}
}

func decodeBybit(resp *resty.Response, out interface{}) error {
	if resp.IsError() {
		return fmt.Errorf("%w: http %d: %s", domain.ErrExchangeAPI, resp.StatusCode(), resp.String())
	}
	var env bybitEnvelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if env.RetCode != 0 {
		return fmt.Errorf("%w: %s", domain.ErrExchangeAPI, env.RetMsg)
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return nil
}

func bybitSide(side string) string {
	if side == domain.SideSell {
		return "Sell"
	}
	return "Buy"
}
