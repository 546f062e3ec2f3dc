package risk

import (
	"testing"
	"time"

	"github.com/kirillm/signalbot/internal/domain"
	"github.com/kirillm/signalbot/pkg/utils"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine() *Engine {
	return NewEngine(DefaultParams(), NewMemoryStateStore(0), utils.Discard(), WithClock(func() time.Time { return testNow }))
}

func longTrade() *domain.Trade {
	return &domain.Trade{
		Symbol:      "BTCUSDT",
		Direction:   domain.DirectionLong,
		EntryPrice:  50000,
		Quantity:    0.1,
		Leverage:    1,
		StopLoss:    49000,
		TakeProfits: [4]float64{51000, 52000, 53000, 54000},
		Status:      domain.StatusNew,
		Active:      true,
		CreatedAt:   testNow.Add(-time.Hour),
	}
}

func shortTrade() *domain.Trade {
	return &domain.Trade{
		Symbol:      "BTCUSDT",
		Direction:   domain.DirectionShort,
		EntryPrice:  50000,
		Quantity:    0.1,
		Leverage:    1,
		StopLoss:    51000,
		TakeProfits: [4]float64{49000, 48000, 47000, 46000},
		Status:      domain.StatusNew,
		Active:      true,
		CreatedAt:   testNow.Add(-time.Hour),
	}
}

func TestEvaluate_StopLoss(t *testing.T) {
	tests := []struct {
		name       string
		trade      *domain.Trade
		price      float64
		wantAction string
		wantReason string
	}{
		// BTC: буфер min(0.025*1.5, 0.03) + 0.001 = 0.031, триггер 49000*0.969 = 47481
		{"long below buffered stop", longTrade(), 47480, domain.ActionClose, domain.ReasonStopLoss},
		{"long inside buffer", longTrade(), 47600, domain.ActionHold, domain.ReasonNoCondition},
		// триггер 51000*1.031 = 52581
		{"short above buffered stop", shortTrade(), 52600, domain.ActionClose, domain.ReasonStopLoss},
		{"short inside buffer", shortTrade(), 52500, domain.ActionHold, domain.ReasonNoCondition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := newTestEngine().Evaluate(tt.trade, tt.price)
			if res.Action != tt.wantAction || res.Reason != tt.wantReason {
				t.Errorf("Evaluate() = %s/%s, want %s/%s", res.Action, res.Reason, tt.wantAction, tt.wantReason)
			}
		})
	}
}

func TestEvaluate_TakeProfitLadder(t *testing.T) {
	tests := []struct {
		name       string
		status     string
		price      float64
		wantAction string
		wantReason string
		wantPct    float64
		wantStatus string
		wantStop   float64
	}{
		{"first target", domain.StatusNew, 51000, domain.ActionPartialClose, domain.ReasonTarget1, 0.5, domain.StatusTK1, 50000},
		{"filled maps to first target", domain.StatusFilled, 51200, domain.ActionPartialClose, domain.ReasonTarget1, 0.5, domain.StatusTK1, 50000},
		{"second target", domain.StatusTK1, 52000, domain.ActionPartialClose, domain.ReasonTarget2, 0.3, domain.StatusTK2, 51000},
		{"third target", domain.StatusTK2, 53000, domain.ActionPartialClose, domain.ReasonTarget3, 0.2, domain.StatusTK3, 52000},
		{"final target closes", domain.StatusTK3, 54000, domain.ActionClose, domain.ReasonTarget4, 0, "", 0},
		{"already past first target", domain.StatusTK1, 51400, domain.ActionHold, domain.ReasonNoCondition, 0, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trade := longTrade()
			trade.Status = tt.status
			res := newTestEngine().Evaluate(trade, tt.price)

			if res.Action != tt.wantAction || res.Reason != tt.wantReason {
				t.Fatalf("Evaluate() = %s/%s, want %s/%s", res.Action, res.Reason, tt.wantAction, tt.wantReason)
			}
			if res.ClosePercentage != tt.wantPct {
				t.Errorf("ClosePercentage = %v, want %v", res.ClosePercentage, tt.wantPct)
			}
			if res.NewStatus != tt.wantStatus {
				t.Errorf("NewStatus = %v, want %v", res.NewStatus, tt.wantStatus)
			}
			if res.NewStopLoss != tt.wantStop {
				t.Errorf("NewStopLoss = %v, want %v", res.NewStopLoss, tt.wantStop)
			}
		})
	}
}

func TestEvaluate_TakeProfitNotRepeatedAfterFailedWrite(t *testing.T) {
	e := newTestEngine()
	trade := longTrade()

	first := e.Evaluate(trade, 51000)
	if first.Reason != domain.ReasonTarget1 {
		t.Fatalf("first Evaluate() reason = %v, want %v", first.Reason, domain.ReasonTarget1)
	}

	// статус в хранилище не обновился, цель 1 не должна сработать повторно
	second := e.Evaluate(trade, 51000)
	if second.Reason == domain.ReasonTarget1 {
		t.Errorf("second Evaluate() repeated %v", second.Reason)
	}
}

func TestEvaluate_ShortTakeProfit(t *testing.T) {
	res := newTestEngine().Evaluate(shortTrade(), 49000)
	if res.Action != domain.ActionPartialClose || res.NewStatus != domain.StatusTK1 {
		t.Fatalf("Evaluate() = %s/%s, want partial_close/TK1", res.Action, res.NewStatus)
	}
	if res.NewStopLoss != 50000 {
		t.Errorf("NewStopLoss = %v, want 50000", res.NewStopLoss)
	}
}

func farTargets(trade *domain.Trade) *domain.Trade {
	trade.TakeProfits = [4]float64{60000, 61000, 62000, 63000}
	return trade
}

func TestEvaluate_TrailingStopRatchet(t *testing.T) {
	e := newTestEngine()
	trade := farTargets(longTrade())

	res := e.Evaluate(trade, 53000)
	if res.Action != domain.ActionUpdateStopLoss || res.Reason != domain.ReasonTrailingStop {
		t.Fatalf("Evaluate() = %s/%s, want update_stoploss/trailing", res.Action, res.Reason)
	}
	if res.NewStopLoss != 51940 {
		t.Errorf("NewStopLoss = %v, want 51940", res.NewStopLoss)
	}
	st, _ := e.States().Peek("BTCUSDT")
	if !st.TrailingActivated {
		t.Error("TrailingActivated = false, want true")
	}

	stops := []float64{res.NewStopLoss}
	trade.StopLoss = res.NewStopLoss
	for _, price := range []float64{52500, 54000, 53200, 55000, 52900} {
		res := e.Evaluate(trade, price)
		if res.Action == domain.ActionUpdateStopLoss {
			stops = append(stops, res.NewStopLoss)
			trade.StopLoss = res.NewStopLoss
		}
	}
	for i := 1; i < len(stops); i++ {
		if stops[i] <= stops[i-1] {
			t.Errorf("stop regressed: %v", stops)
		}
	}
	if len(stops) < 2 {
		t.Errorf("expected the stop to move again on new highs, got %v", stops)
	}
}

func TestEvaluate_TrailingShort(t *testing.T) {
	trade := shortTrade()
	trade.TakeProfits = [4]float64{40000, 39000, 38000, 37000}
	res := newTestEngine().Evaluate(trade, 47000)
	// 47000*1.02 = 47940, пол 50000*1.01 = 50500, берётся минимум
	if res.Action != domain.ActionUpdateStopLoss || res.NewStopLoss != 47940 {
		t.Errorf("Evaluate() = %s stop %v, want update_stoploss 47940", res.Action, res.NewStopLoss)
	}
}

func TestEvaluate_LosingTradeDoesNotTrail(t *testing.T) {
	trade := farTargets(longTrade())
	trade.StopLoss = 45000
	res := newTestEngine().Evaluate(trade, 47400)
	if res.Action != domain.ActionHold {
		t.Errorf("Evaluate() = %s/%s, want hold", res.Action, res.Reason)
	}
}

func TestEvaluate_BreakevenOneShot(t *testing.T) {
	e := newTestEngine()
	trade := farTargets(longTrade())

	res := e.Evaluate(trade, 51750)
	if res.Action != domain.ActionUpdateStopLoss || res.Reason != domain.ReasonBreakeven {
		t.Fatalf("Evaluate() = %s/%s, want update_stoploss/breakeven", res.Action, res.Reason)
	}
	if res.NewStopLoss != 50050 {
		t.Errorf("NewStopLoss = %v, want 50050", res.NewStopLoss)
	}

	again := e.Evaluate(trade, 51750)
	if again.Reason == domain.ReasonBreakeven {
		t.Error("breakeven fired twice")
	}
}

func TestEvaluate_PartialProfitOneShot(t *testing.T) {
	e := newTestEngine()
	trade := farTargets(longTrade())
	trade.StopLoss = 54000
	trade.Status = domain.StatusFilled

	res := e.Evaluate(trade, 55000)
	if res.Action != domain.ActionPartialClose || res.Reason != domain.ReasonPartialProfit {
		t.Fatalf("Evaluate() = %s/%s, want partial_close/partial_profit", res.Action, res.Reason)
	}
	if res.ClosePercentage != 0.25 {
		t.Errorf("ClosePercentage = %v, want 0.25", res.ClosePercentage)
	}
	if res.NewStatus != domain.StatusFilled {
		t.Errorf("NewStatus = %v, want unchanged FILLED", res.NewStatus)
	}

	again := e.Evaluate(trade, 55000)
	if again.Action != domain.ActionHold {
		t.Errorf("second Evaluate() = %s/%s, want hold", again.Action, again.Reason)
	}
}

func TestEvaluate_TimeExit(t *testing.T) {
	trade := farTargets(longTrade())
	trade.CreatedAt = testNow.Add(-169 * time.Hour)

	res := newTestEngine().Evaluate(trade, 50100)
	if res.Action != domain.ActionClose || res.Reason != domain.ReasonMaxDuration {
		t.Errorf("Evaluate() = %s/%s, want close/max_duration", res.Action, res.Reason)
	}
}

func TestEvaluate_EmergencyStopDominates(t *testing.T) {
	tests := []struct {
		name  string
		trade func() *domain.Trade
		price float64
	}{
		{"stop not crossed yet", func() *domain.Trade { tr := longTrade(); tr.StopLoss = 40000; return tr }, 42000},
		{"exact threshold", func() *domain.Trade { tr := longTrade(); tr.StopLoss = 40000; return tr }, 42500},
		{"stop also crossed", longTrade, 41000},
		{"stale trade", func() *domain.Trade { tr := longTrade(); tr.CreatedAt = testNow.Add(-500 * time.Hour); return tr }, 40000},
		{"short spike", shortTrade, 58000},
		{"leveraged small move", func() *domain.Trade { tr := longTrade(); tr.Leverage = 10; return tr }, 49000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := newTestEngine().Evaluate(tt.trade(), tt.price)
			if res.Action != domain.ActionClose || res.Reason != domain.ReasonEmergencyStop {
				t.Errorf("Evaluate() = %s/%s (pnl %.2f%%), want close/emergency_stop", res.Action, res.Reason, res.PnLPercent)
			}
		})
	}
}

func TestEvaluate_InvalidInput(t *testing.T) {
	e := newTestEngine()

	if res := e.Evaluate(nil, 50000); res.Action != domain.ActionNone || res.Reason != domain.ReasonNoTrade {
		t.Errorf("Evaluate(nil) = %s/%s, want none/no_trade_found", res.Action, res.Reason)
	}

	bad := longTrade()
	bad.EntryPrice = 0
	if res := e.Evaluate(bad, 50000); res.Action != domain.ActionNone || res.Reason != domain.ReasonInvalidTrade {
		t.Errorf("Evaluate(entry=0) = %s/%s, want none/invalid_trade_data", res.Action, res.Reason)
	}

	if res := e.Evaluate(longTrade(), 0); res.Action != domain.ActionNone || res.Reason != domain.ReasonInvalidPrice {
		t.Errorf("Evaluate(price=0) = %s/%s, want none/invalid_price", res.Action, res.Reason)
	}
}

func TestEvaluate_IdempotentHold(t *testing.T) {
	e := newTestEngine()
	trade := longTrade()

	first := e.Evaluate(trade, 50200)
	for i := 0; i < 5; i++ {
		res := e.Evaluate(trade, 50200)
		if res.Action != first.Action || res.Reason != first.Reason {
			t.Fatalf("call %d = %s/%s, want %s/%s", i, res.Action, res.Reason, first.Action, first.Reason)
		}
	}
	if first.Action != domain.ActionHold {
		t.Errorf("Action = %v, want hold", first.Action)
	}
}

func TestEvaluate_CheckPanicIsolated(t *testing.T) {
	e := newTestEngine()
	e.checks = append([]check{{"boom", func(*evaluation) (*decision, error) { panic("boom") }}}, e.checks...)

	res := e.Evaluate(longTrade(), 47000)
	if res.Reason != domain.ReasonStopLoss {
		t.Errorf("Evaluate() reason = %v, want stop-loss despite panicking check", res.Reason)
	}
}

func TestEvaluate_Recommendations(t *testing.T) {
	e := newTestEngine()
	trade := farTargets(longTrade())
	trade.StopLoss = 57000
	e.States().Get("BTCUSDT").PartialProfitTaken = true

	res := e.Evaluate(trade, 57500)
	if res.Action != domain.ActionHold {
		t.Fatalf("Evaluate() = %s/%s, want hold", res.Action, res.Reason)
	}
	if !hasRecommendation(res, "good_profit") {
		t.Errorf("Recommendations = %+v, want good_profit", res.Recommendations)
	}
	if res.ConfidenceScore != 80 {
		t.Errorf("ConfidenceScore = %v, want 80", res.ConfidenceScore)
	}

	doge := &domain.Trade{
		Symbol:      "DOGEUSDT",
		Direction:   domain.DirectionLong,
		EntryPrice:  0.1,
		Quantity:    1000,
		Leverage:    1,
		StopLoss:    0.09,
		TakeProfits: [4]float64{0.12, 0.13, 0.14, 0.15},
		Status:      domain.StatusNew,
		CreatedAt:   testNow.Add(-50 * time.Hour),
	}
	res = e.Evaluate(doge, 0.1)
	if !hasRecommendation(res, "volatility_advisory") {
		t.Errorf("Recommendations = %+v, want volatility_advisory", res.Recommendations)
	}
	if !hasRecommendation(res, "extended_trade_duration") {
		t.Errorf("Recommendations = %+v, want extended_trade_duration", res.Recommendations)
	}
}

func hasRecommendation(res EvaluationResult, typ string) bool {
	for _, r := range res.Recommendations {
		if r.Type == typ {
			return true
		}
	}
	return false
}

func TestCalculatePnL_Monotonic(t *testing.T) {
	long := longTrade()
	long.Leverage = 3
	short := shortTrade()
	short.Leverage = 3

	prevLong, prevShort := -1e18, 1e18
	for price := 40000.0; price <= 60000; price += 137 {
		_, lp := CalculatePnL(long, price)
		_, sp := CalculatePnL(short, price)
		if lp < prevLong {
			t.Fatalf("long pnl%% decreased at %v: %v < %v", price, lp, prevLong)
		}
		if sp > prevShort {
			t.Fatalf("short pnl%% increased at %v: %v > %v", price, sp, prevShort)
		}
		prevLong, prevShort = lp, sp
	}
}

func TestCalculatePnL(t *testing.T) {
	trade := longTrade()
	trade.Leverage = 5
	pnl, pct := CalculatePnL(trade, 51000)
	if pnl != 100 || pct != 10 {
		t.Errorf("CalculatePnL() = %v, %v, want 100, 10", pnl, pct)
	}

	pnl, pct = CalculatePnL(shortTrade(), 51000)
	if pnl != -100 || pct != -2 {
		t.Errorf("CalculatePnL(short) = %v, %v, want -100, -2", pnl, pct)
	}
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		pnl  float64
		want float64
	}{
		{0, 50},
		{5, 60},
		{20, 80},
		{-10, 40},
		{-50, 30},
	}

	p := DefaultParams()
	for _, tt := range tests {
		if got := p.Confidence(tt.pnl); got != tt.want {
			t.Errorf("Confidence(%v) = %v, want %v", tt.pnl, got, tt.want)
		}
	}

	p.ConfidenceMaxPenalty = 100
	if got := p.Confidence(-80); got != 10 {
		t.Errorf("Confidence(-80) = %v, want clamp to 10", got)
	}
}

func TestState_SnapshotConsistentDuringEvaluate(t *testing.T) {
	e := newTestEngine()
	trade := longTrade()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			e.Evaluate(trade, 51000)
		}
	}()
	st := e.States().Get("BTCUSDT")
	for i := 0; i < 100; i++ {
		if snap := st.Snapshot(); snap.TargetsReached > 1 {
			t.Fatalf("TargetsReached = %d, first target only at 51000", snap.TargetsReached)
		}
	}
	<-done

	if snap := st.Snapshot(); snap.TargetsReached != 1 {
		t.Errorf("TargetsReached = %d, want 1", snap.TargetsReached)
	}
}
