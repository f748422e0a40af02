package position

import (
	"context"
	"log"
	"time"

	"autotrader/internal/order"
	"autotrader/pkg/exchanges/common"
)

// OrderPlacer is the slice of the order tracker the monitor needs to submit
// and observe closing orders.
type OrderPlacer interface {
	Place(ctx context.Context, req common.OrderRequest) (*order.Tracked, error)
	Get(clientID string) *order.Tracked
}

// Monitor watches open positions and force-closes them with MARKET orders
// when the stop-loss or take-profit threshold is breached. Close failures are
// logged and retried on the next tick; the monitor never gives up on a
// breached position.
type Monitor struct {
	store  *Store
	pricer common.Pricer
	orders OrderPlacer
	tick   time.Duration
}

// NewMonitor creates a position monitor; tick defaults to one second.
func NewMonitor(store *Store, pricer common.Pricer, orders OrderPlacer, tick time.Duration) *Monitor {
	if tick <= 0 {
		tick = time.Second
	}
	return &Monitor{store: store, pricer: pricer, orders: orders, tick: tick}
}

// Run blocks, scanning all active positions every tick until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	log.Printf("[position] monitor started (tick %v)", m.tick)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Scan(ctx)
		}
	}
}

// Scan runs one pass over all active positions.
func (m *Monitor) Scan(ctx context.Context) {
	for _, p := range m.store.Active() {
		switch p.Status {
		case StatusClosing:
			m.checkCloseOrder(ctx, p)
		case StatusOpen:
			m.checkThresholds(ctx, p)
		}
	}
}

// checkCloseOrder follows up on a submitted close. Only a confirmed fill
// moves the position to CLOSED; a rejected or canceled close reverts the
// position to OPEN so the next tick retries.
func (m *Monitor) checkCloseOrder(ctx context.Context, p Position) {
	tracked := m.orders.Get(p.CloseClientID)
	if tracked == nil {
		log.Printf("[position] %s close order %s vanished, reverting to OPEN", p.Symbol, p.CloseClientID)
		m.store.reopen(ctx, p.ID)
		return
	}

	switch tracked.Status {
	case common.StatusFilled:
		closePrice := tracked.Request.Price
		if price, err := m.pricer.LastPrice(ctx, p.Symbol); err == nil {
			closePrice = price
		}
		m.store.markClosed(ctx, p.ID, closePrice)
	case common.StatusCanceled, common.StatusRejected, common.StatusExpired:
		log.Printf("[position] %s close order %s ended %s, retrying", p.Symbol, p.CloseClientID, tracked.Status)
		m.store.reopen(ctx, p.ID)
	default:
		// Still pending or UNKNOWN; keep waiting.
	}
}

func (m *Monitor) checkThresholds(ctx context.Context, p Position) {
	price, err := m.pricer.LastPrice(ctx, p.Symbol)
	if err != nil {
		log.Printf("[position] no price for %s, retrying next tick: %v", p.Symbol, err)
		return
	}

	pnl := p.PnLPercent(price)
	switch {
	case p.StopLossPct > 0 && pnl <= -p.StopLossPct:
		log.Printf("[position] %s stop loss breached: pnl=%.2f%% (limit -%.2f%%)", p.Symbol, pnl, p.StopLossPct)
		m.close(ctx, p)
	case p.TakeProfitPct > 0 && pnl >= p.TakeProfitPct:
		log.Printf("[position] %s take profit reached: pnl=%.2f%% (target +%.2f%%)", p.Symbol, pnl, p.TakeProfitPct)
		m.close(ctx, p)
	}
}

// close submits a MARKET order on the opposite side for the full quantity.
func (m *Monitor) close(ctx context.Context, p Position) {
	side := common.SideSell
	if p.Side == common.PositionShort {
		side = common.SideBuy
	}

	tracked, err := m.orders.Place(ctx, common.OrderRequest{
		Symbol: p.Symbol,
		Side:   side,
		Type:   common.OrderTypeMarket,
		Qty:    p.Qty,
	})
	if err != nil {
		// Includes timeouts: if the tracker resolved the order via query it is
		// still tracked, so adopt it; otherwise retry next tick.
		if tracked != nil && tracked.Status != common.StatusRejected {
			m.store.markClosing(ctx, p.ID, tracked.ClientID)
			return
		}
		log.Printf("[position] close %s failed, will retry: %v", p.Symbol, err)
		return
	}
	m.store.markClosing(ctx, p.ID, tracked.ClientID)
}
