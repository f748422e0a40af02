package account

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"autotrader/pkg/exchanges/common"
)

// SnapshotSource fetches the authoritative account state from the venue.
type SnapshotSource interface {
	AccountStatus(ctx context.Context) (*common.AccountSnapshot, error)
}

// Manager caches the account snapshot and keeps it fresh on an interval, so
// risk checks never block on a venue round-trip.
type Manager struct {
	source       SnapshotSource
	pricer       common.Pricer
	syncInterval time.Duration

	mu       sync.RWMutex
	snapshot *common.AccountSnapshot
	lastSync time.Time
}

// NewManager creates an account snapshot manager. pricer is used to value
// non-USDT assets when computing total account value.
func NewManager(source SnapshotSource, pricer common.Pricer, syncInterval time.Duration) *Manager {
	if syncInterval <= 0 {
		syncInterval = time.Minute
	}
	return &Manager{
		source:       source,
		pricer:       pricer,
		syncInterval: syncInterval,
	}
}

// Start performs an initial sync and begins the periodic refresh loop.
func (m *Manager) Start(ctx context.Context) {
	if err := m.Sync(ctx); err != nil {
		log.Printf("[account] initial sync failed: %v", err)
	}

	go func() {
		ticker := time.NewTicker(m.syncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := m.Sync(ctx); err != nil {
					log.Printf("[account] sync failed: %v", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Sync fetches the latest snapshot from the venue.
func (m *Manager) Sync(ctx context.Context) error {
	snap, err := m.source.AccountStatus(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.snapshot = snap
	m.lastSync = time.Now()
	m.mu.Unlock()

	log.Printf("[account] snapshot synced: %d assets", len(snap.Balances))
	return nil
}

// Snapshot returns the cached snapshot, or nil before the first sync.
func (m *Manager) Snapshot() *common.AccountSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// FreeBalance returns the free amount of an asset, zero when unknown.
func (m *Manager) FreeBalance(asset string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.snapshot == nil {
		return 0
	}
	return m.snapshot.Balances[asset].Free
}

// TotalValueUSDT values all balances in USDT using last trade prices.
// Stablecoins count at par; assets with no quote are skipped with a log line
// rather than failing the whole valuation.
func (m *Manager) TotalValueUSDT(ctx context.Context) float64 {
	m.mu.RLock()
	snap := m.snapshot
	m.mu.RUnlock()
	if snap == nil {
		return 0
	}

	total := 0.0
	for asset, b := range snap.Balances {
		qty := b.Free + b.Locked
		if qty == 0 {
			continue
		}
		if isStable(asset) {
			total += qty
			continue
		}
		if m.pricer == nil {
			continue
		}
		price, err := m.pricer.LastPrice(ctx, asset+"USDT")
		if err != nil {
			log.Printf("[account] no USDT quote for %s, skipping in valuation: %v", asset, err)
			continue
		}
		total += qty * price
	}
	return total
}

// LastSync reports when the snapshot was last refreshed.
func (m *Manager) LastSync() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSync
}

func isStable(asset string) bool {
	switch strings.ToUpper(asset) {
	case "USDT", "USDC", "FDUSD", "TUSD", "BUSD", "DAI":
		return true
	}
	return false
}
