package risk

import (
	"sync"
	"time"
)

// HistoryCapacity максимальное число ценовых отсчётов на символ
const HistoryCapacity = 100

// PriceSample отсчёт цены
type PriceSample struct {
	Time  time.Time `json:"time"`
	Price float64   `json:"price"`
}

// PriceHistory кольцевой буфер отсчётов, старые вытесняются
type PriceHistory struct {
	mu      sync.Mutex
	samples []PriceSample
	start   int
	size    int
}

// NewPriceHistory создаёт буфер заданной ёмкости
func NewPriceHistory(capacity int) *PriceHistory {
	if capacity <= 0 {
		capacity = HistoryCapacity
	}
	return &PriceHistory{samples: make([]PriceSample, capacity)}
}

// Push добавляет отсчёт
func (h *PriceHistory) Push(s PriceSample) {
	h.mu.Lock()
	defer h.mu.Unlock()

	capacity := len(h.samples)
	if h.size < capacity {
		h.samples[(h.start+h.size)%capacity] = s
		h.size++
		return
	}
	h.samples[h.start] = s
	h.start = (h.start + 1) % capacity
}

// Len текущее число отсчётов
func (h *PriceHistory) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.size
}

// Samples копия отсчётов от старых к новым
func (h *PriceHistory) Samples() []PriceSample {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]PriceSample, h.size)
	for i := 0; i < h.size; i++ {
		out[i] = h.samples[(h.start+i)%len(h.samples)]
	}
	return out
}

// Last последний отсчёт
func (h *PriceHistory) Last() (PriceSample, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.size == 0 {
		return PriceSample{}, false
	}
	return h.samples[(h.start+h.size-1)%len(h.samples)], true
}

// HistoryStats сводка по истории цены
type HistoryStats struct {
	Samples       int       `json:"samples"`
	Min           float64   `json:"min"`
	Max           float64   `json:"max"`
	Last          float64   `json:"last"`
	ChangePercent float64   `json:"change_percent"`
	LastUpdate    time.Time `json:"last_update"`
}

// Stats минимум, максимум и изменение от первого отсчёта к последнему
func (h *PriceHistory) Stats() HistoryStats {
	samples := h.Samples()
	if len(samples) == 0 {
		return HistoryStats{}
	}
	st := HistoryStats{Samples: len(samples), Min: samples[0].Price, Max: samples[0].Price}
	for _, s := range samples {
		if s.Price < st.Min {
			st.Min = s.Price
		}
		if s.Price > st.Max {
			st.Max = s.Price
		}
	}
	first, last := samples[0], samples[len(samples)-1]
	st.Last = last.Price
	st.LastUpdate = last.Time
	if first.Price > 0 {
		st.ChangePercent = round2((last.Price - first.Price) / first.Price * 100)
	}
	return st
}

// State эфемерное состояние риска по символу.
// Флаги меняются движком под mu, читатели извне берут Snapshot.
type State struct {
	mu sync.Mutex

	BreakevenActivated bool
	TrailingActivated  bool
	PartialProfitTaken bool
	// TargetsReached сколько уровней тейк-профита уже отработано
	TargetsReached int
	History        *PriceHistory
}

// StateSnapshot копия состояния для чтения из других горутин
type StateSnapshot struct {
	BreakevenActivated bool         `json:"breakeven_activated"`
	TrailingActivated  bool         `json:"trailing_activated"`
	PartialProfitTaken bool         `json:"partial_profit_taken"`
	TargetsReached     int          `json:"targets_reached"`
	History            HistoryStats `json:"history"`
}

// Snapshot согласованная копия флагов и сводки истории
func (s *State) Snapshot() StateSnapshot {
	s.mu.Lock()
	snap := StateSnapshot{
		BreakevenActivated: s.BreakevenActivated,
		TrailingActivated:  s.TrailingActivated,
		PartialProfitTaken: s.PartialProfitTaken,
		TargetsReached:     s.TargetsReached,
	}
	history := s.History
	s.mu.Unlock()

	if history != nil {
		snap.History = history.Stats()
	}
	return snap
}

// StateStore хранилище состояний по символам
type StateStore interface {
	// Get возвращает состояние, создавая его при первом обращении
	Get(symbol string) *State
	// Peek возвращает состояние без создания
	Peek(symbol string) (*State, bool)
	Clear(symbol string)
	// Retain удаляет состояния символов, которых нет в списке
	Retain(symbols []string)
	Symbols() []string
}

// MemoryStateStore потокобезопасная реализация StateStore в памяти
type MemoryStateStore struct {
	mu       sync.Mutex
	capacity int
	states   map[string]*State
}

// NewMemoryStateStore создаёт хранилище с заданной ёмкостью истории
func NewMemoryStateStore(historyCapacity int) *MemoryStateStore {
	if historyCapacity <= 0 {
		historyCapacity = HistoryCapacity
	}
	return &MemoryStateStore{
		capacity: historyCapacity,
		states:   make(map[string]*State),
	}
}

func (s *MemoryStateStore) Get(symbol string) *State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[symbol]
	if !ok {
		st = &State{History: NewPriceHistory(s.capacity)}
		s.states[symbol] = st
	}
	return st
}

func (s *MemoryStateStore) Peek(symbol string) (*State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[symbol]
	return st, ok
}

func (s *MemoryStateStore) Clear(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, symbol)
}

func (s *MemoryStateStore) Retain(symbols []string) {
	keep := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		keep[sym] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for sym := range s.states {
		if _, ok := keep[sym]; !ok {
			delete(s.states, sym)
		}
	}
}

func (s *MemoryStateStore) Symbols() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.states))
	for sym := range s.states {
		out = append(out, sym)
	}
	return out
}
