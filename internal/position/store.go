package position

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"autotrader/internal/events"
	"autotrader/pkg/db"
	"autotrader/pkg/exchanges/common"
)

// Status tracks a position through its lifecycle. A position only becomes
// CLOSED once its closing order is confirmed filled; a submitted but
// unconfirmed close keeps it in CLOSING.
type Status string

const (
	StatusOpen    Status = "OPEN"
	StatusClosing Status = "CLOSING"
	StatusClosed  Status = "CLOSED"
)

// Position is one open exposure being protected by the monitor.
type Position struct {
	ID         string
	Symbol     string
	Side       common.PositionSide
	EntryPrice float64
	Qty        float64
	// StopLossPct and TakeProfitPct are percentages of entry price; a PnL of
	// -StopLossPct or +TakeProfitPct triggers a close. Zero disables TP.
	StopLossPct   float64
	TakeProfitPct float64
	Status        Status
	CloseClientID string
	ClosePrice    float64
	OpenedAt      time.Time
	ClosedAt      *time.Time
}

// PnLPercent returns the signed unrealized PnL as a percentage of entry.
// Long positions gain when price rises, shorts when it falls.
func (p *Position) PnLPercent(current float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	if p.Side == common.PositionShort {
		return (p.EntryPrice - current) / p.EntryPrice * 100
	}
	return (current - p.EntryPrice) / p.EntryPrice * 100
}

// Notional returns the position's entry value in quote currency.
func (p *Position) Notional() float64 {
	return p.EntryPrice * p.Qty
}

// Store holds positions in memory with a write-through audit trail.
type Store struct {
	store *db.Database // optional
	bus   *events.Bus  // optional

	mu        sync.RWMutex
	positions map[string]*Position
}

// NewStore creates a position store. store and bus may be nil.
func NewStore(store *db.Database, bus *events.Bus) *Store {
	return &Store{
		store:     store,
		bus:       bus,
		positions: make(map[string]*Position),
	}
}

// Open registers a new position for monitoring.
func (s *Store) Open(ctx context.Context, symbol string, side common.PositionSide, entryPrice, qty, stopLossPct, takeProfitPct float64) *Position {
	p := &Position{
		ID:            uuid.NewString(),
		Symbol:        symbol,
		Side:          side,
		EntryPrice:    entryPrice,
		Qty:           qty,
		StopLossPct:   stopLossPct,
		TakeProfitPct: takeProfitPct,
		Status:        StatusOpen,
		OpenedAt:      time.Now(),
	}

	s.mu.Lock()
	s.positions[p.ID] = p
	s.mu.Unlock()

	log.Printf("[position] opened %s %s qty=%.6f entry=%.2f sl=%.2f%% tp=%.2f%%",
		p.Symbol, p.Side, p.Qty, p.EntryPrice, p.StopLossPct, p.TakeProfitPct)
	s.persist(ctx, p.ID)
	if s.bus != nil {
		s.bus.Publish(events.EventPositionOpened, s.snapshot(p.ID))
	}
	return s.Get(p.ID)
}

// Get returns a copy of a position, or nil.
func (s *Store) Get(id string) *Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[id]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

// Active returns all positions that are not CLOSED.
func (s *Store) Active() []Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Position, 0, len(s.positions))
	for _, p := range s.positions {
		if p.Status != StatusClosed {
			out = append(out, *p)
		}
	}
	return out
}

// OpenExposure sums entry notional across non-closed positions, for the risk
// gate's exposure check.
func (s *Store) OpenExposure() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0.0
	for _, p := range s.positions {
		if p.Status != StatusClosed {
			total += p.Notional()
		}
	}
	return total
}

// markClosing records that a close order was submitted.
func (s *Store) markClosing(ctx context.Context, id, closeClientID string) {
	s.mu.Lock()
	p, ok := s.positions[id]
	if ok {
		p.Status = StatusClosing
		p.CloseClientID = closeClientID
	}
	s.mu.Unlock()
	if ok {
		s.persist(ctx, id)
	}
}

// reopen reverts CLOSING back to OPEN after a failed close attempt.
func (s *Store) reopen(ctx context.Context, id string) {
	s.mu.Lock()
	p, ok := s.positions[id]
	if ok {
		p.Status = StatusOpen
		p.CloseClientID = ""
	}
	s.mu.Unlock()
	if ok {
		s.persist(ctx, id)
	}
}

// markClosed finalizes a position once the close order filled.
func (s *Store) markClosed(ctx context.Context, id string, closePrice float64) {
	now := time.Now()
	s.mu.Lock()
	p, ok := s.positions[id]
	if ok {
		p.Status = StatusClosed
		p.ClosePrice = closePrice
		p.ClosedAt = &now
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	snap := s.snapshot(id)
	log.Printf("[position] closed %s %s entry=%.2f exit=%.2f pnl=%.2f%%",
		snap.Symbol, snap.Side, snap.EntryPrice, closePrice, snap.PnLPercent(closePrice))
	s.persist(ctx, id)
	if s.bus != nil {
		s.bus.Publish(events.EventPositionClosed, snap)
	}
}

func (s *Store) snapshot(id string) Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.positions[id]; ok {
		return *p
	}
	return Position{}
}

func (s *Store) persist(ctx context.Context, id string) {
	if s.store == nil {
		return
	}
	p := s.Get(id)
	if p == nil {
		return
	}
	rec := db.PositionRecord{
		ID:         p.ID,
		Symbol:     p.Symbol,
		Side:       string(p.Side),
		EntryPrice: p.EntryPrice,
		Qty:        p.Qty,
		StopLoss:   p.StopLossPct,
		TakeProfit: p.TakeProfitPct,
		Status:     string(p.Status),
		ClosePrice: p.ClosePrice,
		ClosedAt:   p.ClosedAt,
	}
	if err := s.store.UpsertPosition(ctx, rec); err != nil {
		log.Printf("[position] audit write for %s failed: %v", p.ID, err)
	}
}
