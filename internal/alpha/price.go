package alpha

import (
	"context"
	"sync"
	"time"
)

// StaticPriceSource serves price changes from an in-memory table. It backs
// deployments without a market-data feed and tests; tickers absent from the
// table report ok=false so divergence is simply omitted for them.
type StaticPriceSource struct {
	mu      sync.RWMutex
	changes map[string]float64
}

func NewStaticPriceSource() *StaticPriceSource {
	return &StaticPriceSource{changes: make(map[string]float64)}
}

// Set records the fractional price change for a ticker (0.03 = +3%).
func (p *StaticPriceSource) Set(ticker string, change float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes[ticker] = change
}

func (p *StaticPriceSource) PriceChange(_ context.Context, ticker string, _ time.Duration) (float64, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	change, ok := p.changes[ticker]
	return change, ok, nil
}
