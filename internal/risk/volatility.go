package risk

import (
	"strings"
	"sync"
	"time"
)

const defaultVolatility = 0.035

// volatilityTable средняя дневная волатильность по символам; порядок важен для поиска по подстроке
var volatilityTable = []struct {
	symbol string
	value  float64
}{
	{"BTCUSDT", 0.025},
	{"ETHUSDT", 0.030},
	{"BNBUSDT", 0.035},
	{"ADAUSDT", 0.045},
	{"DOTUSDT", 0.040},
	{"SOLUSDT", 0.050},
	{"XRPUSDT", 0.038},
	{"DOGEUSDT", 0.055},
	{"LTCUSDT", 0.032},
}

// LookupVolatility статическая волатильность символа или значение по умолчанию
func LookupVolatility(symbol string) float64 {
	symbol = strings.ToUpper(symbol)
	for _, row := range volatilityTable {
		if strings.Contains(symbol, row.symbol) {
			return row.value
		}
	}
	return defaultVolatility
}

type cachedVolatility struct {
	value     float64
	fetchedAt time.Time
}

// VolatilityCache кеширует волатильность символов на заданное время
type VolatilityCache struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	lookup func(string) float64
	items  map[string]cachedVolatility
}

// NewVolatilityCache создаёт кеш поверх статической таблицы
func NewVolatilityCache(ttl time.Duration, now func() time.Time) *VolatilityCache {
	if now == nil {
		now = time.Now
	}
	return &VolatilityCache{
		ttl:    ttl,
		now:    now,
		lookup: LookupVolatility,
		items:  make(map[string]cachedVolatility),
	}
}

// Get возвращает волатильность, обновляя запись по истечении TTL
func (c *VolatilityCache) Get(symbol string) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if item, ok := c.items[symbol]; ok && now.Sub(item.fetchedAt) < c.ttl {
		return item.value
	}
	v := c.lookup(symbol)
	c.items[symbol] = cachedVolatility{value: v, fetchedAt: now}
	return v
}
