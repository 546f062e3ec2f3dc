package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillm/signalbot/internal/domain"
	"github.com/kirillm/signalbot/pkg/utils"
)

func TestBybitClient_GetPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v5/market/tickers" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("symbol"); got != "BTCUSDT" {
			t.Errorf("symbol = %s", got)
		}
		io.WriteString(w, `{"retCode":0,"retMsg":"OK","result":{"list":[{"symbol":"BTCUSDT","lastPrice":"50123.5"}]}}`)
	}))
	defer srv.Close()

	price, err := NewBybitClient("key", "secret", srv.URL).GetPrice(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("GetPrice() error = %v", err)
	}
	if price != 50123.5 {
		t.Errorf("GetPrice() = %v, want 50123.5", price)
	}
}

func TestBybitClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"retCode":10001,"retMsg":"params error","result":{}}`)
	}))
	defer srv.Close()

	_, err := NewBybitClient("key", "secret", srv.URL).GetPrice(context.Background(), "BTCUSDT")
	if !errors.Is(err, domain.ErrExchangeAPI) {
		t.Errorf("GetPrice() error = %v, want ErrExchangeAPI", err)
	}
}

func TestBybitClient_CreateOrderSigned(t *testing.T) {
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, h := range []string{"X-BAPI-API-KEY", "X-BAPI-SIGN", "X-BAPI-TIMESTAMP", "X-BAPI-RECV-WINDOW"} {
			if r.Header.Get(h) == "" {
				t.Errorf("missing header %s", h)
			}
		}
		raw, _ := io.ReadAll(r.Body)
		json.Unmarshal(raw, &gotBody)

		c := NewBybitClient("key", "secret", "")
		if want := c.sign(r.Header.Get("X-BAPI-TIMESTAMP"), string(raw)); r.Header.Get("X-BAPI-SIGN") != want {
			t.Errorf("signature mismatch")
		}
		io.WriteString(w, `{"retCode":0,"retMsg":"OK","result":{"orderId":"abc-1","orderLinkId":""}}`)
	}))
	defer srv.Close()

	order, err := NewBybitClient("key", "secret", srv.URL).CreateOrder(context.Background(), OrderRequest{
		Symbol:   "ETHUSDT",
		Side:     domain.SideSell,
		Quantity: 0.5,
		StopLoss: 3100,
	})
	if err != nil {
		t.Fatalf("CreateOrder() error = %v", err)
	}
	if order.ID != "abc-1" {
		t.Errorf("order.ID = %s", order.ID)
	}
	if gotBody["side"] != "Sell" || gotBody["orderType"] != "Market" || gotBody["qty"] != "0.5" || gotBody["stopLoss"] != "3100" {
		t.Errorf("request body = %v", gotBody)
	}
}

func TestBinancePriceClient_GetPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"symbol":"SOLUSDT","price":"142.10000000"}`)
	}))
	defer srv.Close()

	price, err := NewBinancePriceClient(srv.URL).GetPrice(context.Background(), "SOLUSDT")
	if err != nil {
		t.Fatalf("GetPrice() error = %v", err)
	}
	if price != 142.1 {
		t.Errorf("GetPrice() = %v, want 142.1", price)
	}
}

func TestPaperClient_CreateOrder(t *testing.T) {
	p := NewPaperClient(nil)
	order, err := p.CreateOrder(context.Background(), OrderRequest{Symbol: "BTCUSDT", Side: domain.SideBuy, Quantity: 0.01})
	if err != nil {
		t.Fatalf("CreateOrder() error = %v", err)
	}
	if !strings.HasPrefix(order.ID, "paper-") {
		t.Errorf("order.ID = %s", order.ID)
	}
	if _, err := p.CreateOrder(context.Background(), OrderRequest{Symbol: "BTCUSDT"}); err == nil {
		t.Error("CreateOrder() with zero quantity error = nil")
	}
	if _, err := p.GetPrice(context.Background(), "BTCUSDT"); err == nil {
		t.Error("GetPrice() without source error = nil")
	}
}

type stubSource struct {
	price float64
	err   error
	calls int
}

func (s *stubSource) GetPrice(_ context.Context, _ string) (float64, error) {
	s.calls++
	return s.price, s.err
}

func TestPriceFailover(t *testing.T) {
	ctx := context.Background()
	down := errors.New("down")

	t.Run("primary ok", func(t *testing.T) {
		primary := &stubSource{price: 100}
		fallback := &stubSource{price: 99}
		pf := NewPriceFailover(primary, utils.Discard())
		pf.AddFallbackSource(fallback)

		price, err := pf.GetPrice(ctx, "BTCUSDT")
		if err != nil || price != 100 {
			t.Errorf("GetPrice() = %v, %v", price, err)
		}
		if fallback.calls != 0 {
			t.Errorf("fallback called %d times", fallback.calls)
		}
	})

	t.Run("fallback used", func(t *testing.T) {
		pf := NewPriceFailover(&stubSource{err: down}, utils.Discard())
		pf.AddFallbackSource(&stubSource{price: 99})

		if price, err := pf.GetPrice(ctx, "BTCUSDT"); err != nil || price != 99 {
			t.Errorf("GetPrice() = %v, %v", price, err)
		}
	})

	t.Run("cache then expiry", func(t *testing.T) {
		primary := &stubSource{price: 100}
		pf := NewPriceFailover(primary, utils.Discard())
		now := time.Now()
		pf.now = func() time.Time { return now }

		if _, err := pf.GetPrice(ctx, "BTCUSDT"); err != nil {
			t.Fatal(err)
		}
		primary.err = down

		now = now.Add(4 * time.Minute)
		if price, err := pf.GetPrice(ctx, "BTCUSDT"); err != nil || price != 100 {
			t.Errorf("GetPrice() from cache = %v, %v", price, err)
		}

		now = now.Add(2 * time.Minute)
		if _, err := pf.GetPrice(ctx, "BTCUSDT"); !errors.Is(err, domain.ErrPriceUnavailable) {
			t.Errorf("GetPrice() after expiry error = %v, want ErrPriceUnavailable", err)
		}
	})

	t.Run("zero price rejected", func(t *testing.T) {
		pf := NewPriceFailover(&stubSource{price: 0}, utils.Discard())
		if _, err := pf.GetPrice(ctx, "BTCUSDT"); !errors.Is(err, domain.ErrPriceUnavailable) {
			t.Errorf("GetPrice() error = %v, want ErrPriceUnavailable", err)
		}
	})

	t.Run("live view never serves cache", func(t *testing.T) {
		primary := &stubSource{price: 100}
		fallback := &stubSource{err: down}
		pf := NewPriceFailover(primary, utils.Discard())
		pf.AddFallbackSource(fallback)
		live := pf.Live()

		if price, err := live.GetPrice(ctx, "BTCUSDT"); err != nil || price != 100 {
			t.Fatalf("Live().GetPrice() = %v, %v", price, err)
		}
		primary.err = down

		if _, err := live.GetPrice(ctx, "BTCUSDT"); !errors.Is(err, domain.ErrPriceUnavailable) {
			t.Errorf("Live().GetPrice() during outage error = %v, want ErrPriceUnavailable", err)
		}
		if primary.calls != 2 || fallback.calls != 1 {
			t.Errorf("calls primary=%d fallback=%d, want 2 and 1", primary.calls, fallback.calls)
		}
		// кеш, наполненный живым запросом, доступен обычному GetPrice
		if price, err := pf.GetPrice(ctx, "BTCUSDT"); err != nil || price != 100 {
			t.Errorf("GetPrice() from cache = %v, %v", price, err)
		}
	})
}
