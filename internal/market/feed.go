package market

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"autotrader/internal/events"
	"autotrader/pkg/exchanges/binance/wsapi"
	"autotrader/pkg/exchanges/common"
)

// Venue is the slice of the ws-api client the feed needs.
type Venue interface {
	Subscribe(ctx context.Context, streams []string, handler wsapi.StreamHandler) error
	Klines(ctx context.Context, symbol, interval string, limit int) ([]wsapi.Kline, error)
	TickerPrice(ctx context.Context, symbol string) (float64, error)
}

// Tick is the latest observed price for a symbol.
type Tick struct {
	Symbol string
	Price  float64
	At     time.Time
}

// Feed subscribes to mini-ticker streams and caches the last price per
// symbol. Cached prices older than staleAfter fall back to a venue query so
// the monitor never acts on a dead stream.
type Feed struct {
	venue      Venue
	bus        *events.Bus
	symbols    []string
	staleAfter time.Duration

	mu    sync.RWMutex
	ticks map[string]Tick
}

// NewFeed creates a price feed for the given symbols.
func NewFeed(venue Venue, bus *events.Bus, symbols []string) *Feed {
	return &Feed{
		venue:      venue,
		bus:        bus,
		symbols:    symbols,
		staleAfter: 10 * time.Second,
		ticks:      make(map[string]Tick),
	}
}

// Start subscribes to the mini-ticker stream for every configured symbol.
func (f *Feed) Start(ctx context.Context) error {
	streams := make([]string, 0, len(f.symbols))
	for _, sym := range f.symbols {
		streams = append(streams, strings.ToLower(sym)+"@miniTicker")
	}
	if err := f.venue.Subscribe(ctx, streams, f.onStream); err != nil {
		return err
	}
	log.Printf("[market] subscribed to %d ticker streams", len(streams))
	return nil
}

func (f *Feed) onStream(stream string, data json.RawMessage) {
	var payload struct {
		Symbol string `json:"s"`
		Close  string `json:"c"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		log.Printf("[market] bad ticker payload on %s: %v", stream, err)
		return
	}
	price, err := strconv.ParseFloat(payload.Close, 64)
	if err != nil || price <= 0 {
		return
	}

	tick := Tick{Symbol: payload.Symbol, Price: price, At: time.Now()}
	f.mu.Lock()
	f.ticks[payload.Symbol] = tick
	f.mu.Unlock()

	if f.bus != nil {
		f.bus.Publish(events.EventPriceTick, tick)
	}
}

// LastPrice returns the cached stream price when fresh, otherwise queries the
// venue directly. Satisfies common.Pricer.
func (f *Feed) LastPrice(ctx context.Context, symbol string) (float64, error) {
	f.mu.RLock()
	tick, ok := f.ticks[symbol]
	f.mu.RUnlock()
	if ok && time.Since(tick.At) < f.staleAfter {
		return tick.Price, nil
	}

	price, err := f.venue.TickerPrice(ctx, symbol)
	if err != nil {
		if ok {
			// A stale cache beats no price at all for monitoring purposes.
			return tick.Price, nil
		}
		return 0, err
	}

	f.mu.Lock()
	f.ticks[symbol] = Tick{Symbol: symbol, Price: price, At: time.Now()}
	f.mu.Unlock()
	return price, nil
}

// RecentKlines fetches recent candles for strategy analysis.
func (f *Feed) RecentKlines(ctx context.Context, symbol, interval string, limit int) ([]wsapi.Kline, error) {
	return f.venue.Klines(ctx, symbol, interval, limit)
}

var _ common.Pricer = (*Feed)(nil)
