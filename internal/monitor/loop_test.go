package monitor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirillm/signalbot/internal/domain"
	"github.com/kirillm/signalbot/internal/exchange"
	"github.com/kirillm/signalbot/internal/risk"
	"github.com/kirillm/signalbot/internal/storage"
	"github.com/kirillm/signalbot/pkg/utils"
)

type fakePrices struct {
	mu       sync.Mutex
	prices   map[string]float64
	failures map[string]int
	calls    map[string]int
	onFetch  func() // вызывается один раз, до ответа
}

func newFakePrices(prices map[string]float64) *fakePrices {
	return &fakePrices{prices: prices, failures: map[string]int{}, calls: map[string]int{}}
}

func (f *fakePrices) GetPrice(_ context.Context, symbol string) (float64, error) {
	f.mu.Lock()
	hook := f.onFetch
	f.onFetch = nil
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[symbol]++
	if f.failures[symbol] > 0 {
		f.failures[symbol]--
		return 0, errors.New("timeout")
	}
	p, ok := f.prices[symbol]
	if !ok {
		return 0, errors.New("unknown symbol")
	}
	return p, nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (r *recordingNotifier) Notify(text string) {
	r.mu.Lock()
	r.messages = append(r.messages, text)
	r.mu.Unlock()
}

func (r *recordingNotifier) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

type fixture struct {
	loop     *Loop
	store    *storage.MemoryStore
	prices   *fakePrices
	notifier *recordingNotifier
	engine   *risk.Engine
}

func newFixture(t *testing.T, prices map[string]float64) *fixture {
	t.Helper()
	store := storage.NewMemoryStore()
	engine := risk.NewEngine(risk.DefaultParams(), risk.NewMemoryStateStore(risk.HistoryCapacity), utils.Discard())
	fp := newFakePrices(prices)
	n := &recordingNotifier{}
	cfg := Config{Interval: time.Millisecond, MaxRetries: 3, RetryDelay: 0, MaxConsecutiveErrors: 2, ErrorBackoff: time.Millisecond}
	return &fixture{
		loop:     NewLoop(engine, store, fp, n, cfg, utils.Discard()),
		store:    store,
		prices:   fp,
		notifier: n,
		engine:   engine,
	}
}

func openLong(t *testing.T, store *storage.MemoryStore, symbol string) {
	t.Helper()
	err := store.CreateTrade(context.Background(), &domain.Trade{
		Symbol:      symbol,
		Direction:   domain.DirectionLong,
		EntryPrice:  50000,
		Quantity:    0.002,
		Leverage:    1,
		StopLoss:    49000,
		TakeProfits: [4]float64{51000, 52000, 53000, 54000},
		Status:      domain.StatusNew,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestRunCycle_StopLossClosesAndArchives(t *testing.T) {
	f := newFixture(t, map[string]float64{"BTCUSDT": 47000})
	openLong(t, f.store, "BTCUSDT")
	ctx := context.Background()

	if err := f.loop.RunCycle(ctx); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}

	if ok, _ := f.store.HasActiveTrade(ctx, "BTCUSDT"); ok {
		t.Fatal("trade still active after stop-loss")
	}
	history, _ := f.store.RecentHistory(ctx, 10)
	if len(history) != 1 || history[0].FinalStatus != domain.ExitStopLoss || history[0].ExitPrice != 47000 {
		t.Errorf("history = %+v", history)
	}
	if _, ok := f.engine.States().Peek("BTCUSDT"); ok {
		t.Error("risk state not cleared after close")
	}

	msgs := f.notifier.all()
	if len(msgs) != 1 || !strings.Contains(msgs[0], "Stop-Loss Triggered") {
		t.Errorf("notifications = %v", msgs)
	}
	events, _ := f.store.RecentEvents(ctx, "BTCUSDT", 10)
	if len(events) != 1 || events[0].Reason != domain.ReasonStopLoss {
		t.Errorf("events = %+v", events)
	}

	stats := f.loop.Stats()
	if stats.TotalChecks != 1 || stats.SuccessfulChecks != 1 || stats.TradesManaged != 1 || stats.Cycles != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestRunCycle_FirstTargetPartialClose(t *testing.T) {
	f := newFixture(t, map[string]float64{"BTCUSDT": 51000})
	openLong(t, f.store, "BTCUSDT")
	ctx := context.Background()

	if err := f.loop.RunCycle(ctx); err != nil {
		t.Fatal(err)
	}

	trade, _ := f.store.GetTrade(ctx, "BTCUSDT")
	if trade == nil {
		t.Fatal("trade closed on first target")
	}
	if trade.Status != domain.StatusTK1 {
		t.Errorf("Status = %s, want TK1", trade.Status)
	}
	if trade.Quantity != 0.001 {
		t.Errorf("Quantity = %v, want 0.001", trade.Quantity)
	}
	if trade.StopLoss != 50000 {
		t.Errorf("StopLoss = %v, want entry 50000", trade.StopLoss)
	}

	// повторный тик на той же цене не повторяет частичное закрытие
	if err := f.loop.RunCycle(ctx); err != nil {
		t.Fatal(err)
	}
	trade, _ = f.store.GetTrade(ctx, "BTCUSDT")
	if trade.Quantity != 0.001 {
		t.Errorf("Quantity after second tick = %v, want 0.001", trade.Quantity)
	}
	if n := len(f.notifier.all()); n != 1 {
		t.Errorf("notifications = %d, want 1", n)
	}
}

func TestRunCycle_PriceRetries(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		wantOK    bool
		wantCalls int
	}{
		{"recovers on third attempt", 2, true, 3},
		{"gives up after three", 5, false, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, map[string]float64{"BTCUSDT": 50100, "ETHUSDT": 50100})
			openLong(t, f.store, "BTCUSDT")
			openLong(t, f.store, "ETHUSDT")
			f.prices.failures["BTCUSDT"] = tt.failures

			if err := f.loop.RunCycle(context.Background()); err != nil {
				t.Fatalf("RunCycle() error = %v", err)
			}
			if f.prices.calls["BTCUSDT"] != tt.wantCalls {
				t.Errorf("calls = %d, want %d", f.prices.calls["BTCUSDT"], tt.wantCalls)
			}
			if f.prices.calls["ETHUSDT"] != 1 {
				t.Errorf("other symbol not checked")
			}
			stats := f.loop.Stats()
			wantFailed := int64(0)
			if !tt.wantOK {
				wantFailed = 1
			}
			if stats.FailedChecks != wantFailed || stats.TotalChecks != 2 {
				t.Errorf("stats = %+v", stats)
			}
		})
	}
}

func TestRunCycle_HistoryBounded(t *testing.T) {
	f := newFixture(t, map[string]float64{"BTCUSDT": 50100})
	openLong(t, f.store, "BTCUSDT")

	for i := 0; i < 150; i++ {
		if err := f.loop.RunCycle(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	st, ok := f.engine.States().Peek("BTCUSDT")
	if !ok {
		t.Fatal("no state")
	}
	if n := st.History.Len(); n != risk.HistoryCapacity {
		t.Errorf("history len = %d, want %d", n, risk.HistoryCapacity)
	}
}

func TestRunCycle_PrunesStaleState(t *testing.T) {
	f := newFixture(t, nil)
	f.engine.States().Get("OLDUSDT").BreakevenActivated = true

	if err := f.loop.RunCycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, ok := f.engine.States().Peek("OLDUSDT"); ok {
		t.Error("stale state not pruned")
	}
}

type failingDeactivate struct {
	*storage.MemoryStore
}

func (failingDeactivate) Deactivate(context.Context, string, domain.ExitRecord) (bool, error) {
	return false, errors.New("disk full")
}

func TestRunCycle_ActionFailureLogged(t *testing.T) {
	f := newFixture(t, map[string]float64{"BTCUSDT": 47000})
	openLong(t, f.store, "BTCUSDT")
	loop := NewLoop(f.engine, failingDeactivate{f.store}, f.prices, f.notifier, f.loop.cfg, utils.Discard())

	if err := loop.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if n := len(f.notifier.all()); n != 0 {
		t.Errorf("notifications = %d, want 0", n)
	}
	stats := loop.Stats()
	if stats.FailedChecks != 1 || stats.ErrorsHandled != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if ok, _ := f.store.HasActiveTrade(context.Background(), "BTCUSDT"); !ok {
		t.Error("trade should stay active when close fails")
	}
}

type panickingStore struct {
	*storage.MemoryStore
}

func (panickingStore) ListActiveSymbols(context.Context) ([]string, error) {
	panic("boom")
}

func TestSafeCycle_PanicBecomesCriticalError(t *testing.T) {
	f := newFixture(t, nil)
	loop := NewLoop(f.engine, panickingStore{f.store}, f.prices, f.notifier, f.loop.cfg, utils.Discard())

	err := loop.safeCycle(context.Background())
	var critical *domain.CriticalLoopError
	if !errors.As(err, &critical) {
		t.Errorf("safeCycle() error = %v, want CriticalLoopError", err)
	}
}

type brokenList struct {
	*storage.MemoryStore
}

func (brokenList) ListActiveSymbols(context.Context) ([]string, error) {
	return nil, errors.New("connection refused")
}

func TestRun_SurvivesErrorsAndStops(t *testing.T) {
	f := newFixture(t, nil)
	loop := NewLoop(f.engine, brokenList{f.store}, f.prices, f.notifier, f.loop.cfg, utils.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not stop after cancel")
	}

	stats := loop.Stats()
	if stats.ErrorsHandled < 2 {
		t.Errorf("ErrorsHandled = %d, want >= 2", stats.ErrorsHandled)
	}
	if stats.Running {
		t.Error("Running = true after stop")
	}
}

func TestCancelTrade(t *testing.T) {
	f := newFixture(t, map[string]float64{"BTCUSDT": 50500})
	openLong(t, f.store, "BTCUSDT")
	ctx := context.Background()

	h, err := f.loop.CancelTrade(ctx, "BTCUSDT")
	if err != nil {
		t.Fatalf("CancelTrade() error = %v", err)
	}
	if h.FinalStatus != domain.ExitManualClose || h.PnLPercent != 1 {
		t.Errorf("history = %+v", h)
	}
	if _, err := f.loop.CancelTrade(ctx, "BTCUSDT"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("second CancelTrade() error = %v, want ErrNotFound", err)
	}
}

func TestFormatAction(t *testing.T) {
	trade := &domain.Trade{Symbol: "BTCUSDT", Direction: domain.DirectionLong, Leverage: 5, EntryPrice: 50000, StopLoss: 49000}
	msg := FormatAction(trade, risk.EvaluationResult{
		Action:          domain.ActionPartialClose,
		Reason:          domain.ReasonTarget1,
		CurrentPrice:    51000,
		PnLPercent:      10,
		ClosePercentage: 0.5,
		NewStatus:       domain.StatusTK1,
		NewStopLoss:     50000,
	})
	for _, want := range []string{"Target 1 Reached", "BTCUSDT (LONG 5x)", "+10.00%", "Closed: 50%", "TK1", "49000.00 → 50000.00"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestRunCycle_ExchangeOutageWithPriceFailover(t *testing.T) {
	f := newFixture(t, map[string]float64{"BTCUSDT": 50100})
	openLong(t, f.store, "BTCUSDT")
	failover := exchange.NewPriceFailover(f.prices, utils.Discard())
	loop := NewLoop(f.engine, f.store, failover.Live(), f.notifier, f.loop.cfg, utils.Discard())
	ctx := context.Background()

	if err := loop.RunCycle(ctx); err != nil {
		t.Fatal(err)
	}
	f.prices.failures["BTCUSDT"] = 100
	for i := 0; i < 3; i++ {
		if err := loop.RunCycle(ctx); err != nil {
			t.Fatal(err)
		}
	}

	stats := loop.Stats()
	if stats.SuccessfulChecks != 1 || stats.FailedChecks != 3 {
		t.Errorf("stats = %+v, want 1 successful and 3 failed", stats)
	}
	if got := f.prices.calls["BTCUSDT"]; got != 1+3*3 {
		t.Errorf("price calls = %d, want %d", got, 1+3*3)
	}
	st, _ := f.engine.States().Peek("BTCUSDT")
	if n := st.History.Len(); n != 1 {
		t.Errorf("history len = %d, want 1", n)
	}
}

func TestRunCycle_CancelWhileFetchingPrice(t *testing.T) {
	f := newFixture(t, map[string]float64{"BTCUSDT": 51000})
	openLong(t, f.store, "BTCUSDT")
	ctx := context.Background()

	f.prices.onFetch = func() {
		if _, err := f.loop.CancelTrade(ctx, "BTCUSDT"); err != nil {
			t.Errorf("CancelTrade() error = %v", err)
		}
	}
	if err := f.loop.RunCycle(ctx); err != nil {
		t.Fatal(err)
	}

	if _, ok := f.engine.States().Peek("BTCUSDT"); ok {
		t.Error("risk state recreated for a cancelled trade")
	}
	if n := len(f.notifier.all()); n != 0 {
		t.Errorf("notifications = %d, want 0", n)
	}
	history, _ := f.store.RecentHistory(ctx, 10)
	if len(history) != 1 || history[0].FinalStatus != domain.ExitManualClose {
		t.Errorf("history = %+v", history)
	}
	if stats := f.loop.Stats(); stats.TradesManaged != 0 || stats.FailedChecks != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

// closingStore закрывает сделку при первой попытке изменить ее,
// как если бы ее отменили в другом процессе
type closingStore struct {
	*storage.MemoryStore
}

func (s closingStore) cancel(ctx context.Context, symbol string) {
	_, _ = s.MemoryStore.Deactivate(ctx, symbol, domain.ExitRecord{ExitPrice: 50000, Reason: domain.ReasonManualCancellation})
}

func (s closingStore) UpdateStatus(ctx context.Context, symbol, status string) (bool, error) {
	s.cancel(ctx, symbol)
	return s.MemoryStore.UpdateStatus(ctx, symbol, status)
}

func (s closingStore) UpdateStopLoss(ctx context.Context, symbol string, stopLoss float64) (bool, error) {
	s.cancel(ctx, symbol)
	return s.MemoryStore.UpdateStopLoss(ctx, symbol, stopLoss)
}

func TestRunCycle_MutationOfClosedTradeSkipped(t *testing.T) {
	tests := []struct {
		name   string
		status string
		price  float64
	}{
		{"partial close", domain.StatusNew, 51000},
		{"stop moved to breakeven", domain.StatusTK1, 51600},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, map[string]float64{"BTCUSDT": tt.price})
			ctx := context.Background()
			err := f.store.CreateTrade(ctx, &domain.Trade{
				Symbol:      "BTCUSDT",
				Direction:   domain.DirectionLong,
				EntryPrice:  50000,
				Quantity:    0.002,
				Leverage:    1,
				StopLoss:    49000,
				TakeProfits: [4]float64{51000, 52000, 53000, 54000},
				Status:      tt.status,
			})
			if err != nil {
				t.Fatal(err)
			}
			store := closingStore{f.store}
			loop := NewLoop(f.engine, store, f.prices, f.notifier, f.loop.cfg, utils.Discard())

			if err := loop.RunCycle(ctx); err != nil {
				t.Fatal(err)
			}
			if n := len(f.notifier.all()); n != 0 {
				t.Errorf("notifications = %v, want none", f.notifier.all())
			}
			if events, _ := f.store.RecentEvents(ctx, "BTCUSDT", 10); len(events) != 0 {
				t.Errorf("events = %+v, want none", events)
			}
			if stats := loop.Stats(); stats.TradesManaged != 0 || stats.FailedChecks != 0 {
				t.Errorf("stats = %+v", stats)
			}
		})
	}
}
