package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kirillm/signalbot/internal/domain"
	"github.com/kirillm/signalbot/pkg/utils"
)

// DefaultPriceCacheTTL срок годности последней известной цены
const DefaultPriceCacheTTL = 5 * time.Minute

// PriceFailover опрашивает источники по порядку, при отказе всех отдает свежий кеш
type PriceFailover struct {
	sources []PriceSource
	ttl     time.Duration
	logger  *utils.Logger
	now     func() time.Time

	mu    sync.Mutex
	cache map[string]cachedPrice
}

type cachedPrice struct {
	price     float64
	timestamp time.Time
}

// NewPriceFailover создает failover с основным источником
func NewPriceFailover(primary PriceSource, logger *utils.Logger) *PriceFailover {
	return &PriceFailover{
		sources: []PriceSource{primary},
		ttl:     DefaultPriceCacheTTL,
		logger:  logger,
		now:     time.Now,
		cache:   make(map[string]cachedPrice),
	}
}

// AddFallbackSource добавляет запасной источник цен
func (pf *PriceFailover) AddFallbackSource(source PriceSource) {
	pf.sources = append(pf.sources, source)
}

// GetPrice получает цену с failover. При отказе всех источников отдает кеш не старше ttl.
func (pf *PriceFailover) GetPrice(ctx context.Context, symbol string) (float64, error) {
	price, err := pf.fetch(ctx, symbol)
	if err == nil {
		return price, nil
	}

	if price, age, ok := pf.cached(symbol); ok {
		pf.logger.Warn("Using cached price for %s (age: %v)", symbol, age.Round(time.Second))
		return price, nil
	}
	return 0, err
}

// Live источник только живых цен: кеш обновляется, но никогда не отдается
func (pf *PriceFailover) Live() PriceSource {
	return livePrices{pf: pf}
}

type livePrices struct {
	pf *PriceFailover
}

func (lp livePrices) GetPrice(ctx context.Context, symbol string) (float64, error) {
	return lp.pf.fetch(ctx, symbol)
}

func (pf *PriceFailover) fetch(ctx context.Context, symbol string) (float64, error) {
	var lastErr error
	for i, source := range pf.sources {
		price, err := source.GetPrice(ctx, symbol)
		if err == nil && price > 0 {
			if i > 0 {
				pf.logger.Warn("Using fallback source #%d for %s price", i, symbol)
			}
			pf.store(symbol, price)
			return price, nil
		}
		if err == nil {
			err = fmt.Errorf("non-positive price %v", price)
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return 0, fmt.Errorf("%s: %w: %v", symbol, domain.ErrPriceUnavailable, lastErr)
}

func (pf *PriceFailover) store(symbol string, price float64) {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	pf.cache[symbol] = cachedPrice{price: price, timestamp: pf.now()}
}

func (pf *PriceFailover) cached(symbol string) (float64, time.Duration, bool) {
	pf.mu.Lock()
	defer pf.mu.Unlock()

	c, ok := pf.cache[symbol]
	if !ok {
		return 0, 0, false
	}
	age := pf.now().Sub(c.timestamp)
	if age >= pf.ttl {
		return 0, 0, false
	}
	return c.price, age, true
}
