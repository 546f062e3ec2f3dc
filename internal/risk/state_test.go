package risk

import (
	"sort"
	"testing"
	"time"
)

func TestPriceHistory_Bounded(t *testing.T) {
	h := NewPriceHistory(HistoryCapacity)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 150; i++ {
		h.Push(PriceSample{Time: base.Add(time.Duration(i) * time.Second), Price: float64(i)})
		if h.Len() > HistoryCapacity {
			t.Fatalf("Len() = %d after %d pushes, want <= %d", h.Len(), i+1, HistoryCapacity)
		}
	}

	samples := h.Samples()
	if len(samples) != HistoryCapacity {
		t.Fatalf("len(Samples()) = %d, want %d", len(samples), HistoryCapacity)
	}
	if samples[0].Price != 50 {
		t.Errorf("oldest sample = %v, want 50", samples[0].Price)
	}
	last, ok := h.Last()
	if !ok || last.Price != 149 {
		t.Errorf("Last() = %v, %v, want 149", last.Price, ok)
	}
}

func TestPriceHistory_Stats(t *testing.T) {
	h := NewPriceHistory(10)
	for _, p := range []float64{100, 120, 90, 110} {
		h.Push(PriceSample{Price: p})
	}

	st := h.Stats()
	if st.Samples != 4 || st.Min != 90 || st.Max != 120 || st.Last != 110 {
		t.Errorf("Stats() = %+v", st)
	}
	if st.ChangePercent != 10 {
		t.Errorf("ChangePercent = %v, want 10", st.ChangePercent)
	}

	if empty := NewPriceHistory(10).Stats(); empty.Samples != 0 {
		t.Errorf("empty Stats() = %+v", empty)
	}
}

func TestMemoryStateStore_Lifecycle(t *testing.T) {
	s := NewMemoryStateStore(0)

	if _, ok := s.Peek("BTCUSDT"); ok {
		t.Fatal("Peek() found state before first use")
	}

	st := s.Get("BTCUSDT")
	st.BreakevenActivated = true
	if again := s.Get("BTCUSDT"); !again.BreakevenActivated {
		t.Error("Get() returned a fresh state for an existing symbol")
	}

	s.Get("ETHUSDT")
	s.Get("SOLUSDT")
	s.Retain([]string{"ETHUSDT", "SOLUSDT"})
	got := s.Symbols()
	sort.Strings(got)
	if len(got) != 2 || got[0] != "ETHUSDT" || got[1] != "SOLUSDT" {
		t.Errorf("Symbols() after Retain = %v", got)
	}

	s.Clear("ETHUSDT")
	if _, ok := s.Peek("ETHUSDT"); ok {
		t.Error("Peek() found state after Clear")
	}
	if fresh := s.Get("BTCUSDT"); fresh.BreakevenActivated {
		t.Error("state survived Retain")
	}
}
