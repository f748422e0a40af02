package market

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	"autotrader/internal/events"
	"autotrader/pkg/exchanges/binance/wsapi"
	"autotrader/pkg/exchanges/common"
)

// MockFeed generates synthetic ticks for local development without venue
// credentials. It also serves prices and synthetic klines, so the whole stack
// can run against it in dry-run mode.
type MockFeed struct {
	Bus        *events.Bus
	Symbols    []string
	StartPrice float64
	Step       float64
	Interval   time.Duration

	mu   sync.RWMutex
	last map[string]float64
}

func (m *MockFeed) Start(ctx context.Context) {
	if m.Bus == nil {
		log.Println("[market] mock feed: bus not set")
		return
	}
	if len(m.Symbols) == 0 {
		m.Symbols = []string{"BTCUSDT"}
	}
	if m.StartPrice == 0 {
		m.StartPrice = 100.0
	}
	if m.Step == 0 {
		m.Step = 0.5
	}
	if m.Interval == 0 {
		m.Interval = time.Second
	}

	m.mu.Lock()
	m.last = make(map[string]float64, len(m.Symbols))
	for _, sym := range m.Symbols {
		m.last[sym] = m.StartPrice
	}
	m.mu.Unlock()

	go func() {
		t := time.NewTicker(m.Interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				for _, sym := range m.Symbols {
					// simple random walk
					m.mu.Lock()
					price := m.last[sym] + (rand.Float64()*2-1)*m.Step
					m.last[sym] = price
					m.mu.Unlock()
					m.Bus.Publish(events.EventPriceTick, Tick{
						Symbol: sym, Price: price, At: time.Now(),
					})
				}
			}
		}
	}()
}

// LastPrice returns the current walk price for the symbol.
func (m *MockFeed) LastPrice(ctx context.Context, symbol string) (float64, error) {
	m.mu.RLock()
	price, ok := m.last[symbol]
	m.mu.RUnlock()
	if !ok {
		return 0, common.NewValidationError("mock feed does not track " + symbol)
	}
	return price, nil
}

// RecentKlines synthesizes a random-walk history ending at the current price.
func (m *MockFeed) RecentKlines(ctx context.Context, symbol, interval string, limit int) ([]wsapi.Kline, error) {
	price, err := m.LastPrice(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	klines := make([]wsapi.Kline, limit)
	p := price
	for i := limit - 1; i >= 0; i-- {
		klines[i] = wsapi.Kline{Open: p, High: p, Low: p, Close: p}
		p -= (rand.Float64()*2 - 1) * m.Step
	}
	return klines, nil
}

var _ common.Pricer = (*MockFeed)(nil)
