package account

import (
	"context"
	"errors"
	"testing"
	"time"

	"autotrader/pkg/exchanges/common"
)

type fakeSource struct {
	snap *common.AccountSnapshot
	err  error
}

func (f *fakeSource) AccountStatus(ctx context.Context) (*common.AccountSnapshot, error) {
	return f.snap, f.err
}

type fakePricer struct {
	prices map[string]float64
}

func (f *fakePricer) LastPrice(ctx context.Context, symbol string) (float64, error) {
	p, ok := f.prices[symbol]
	if !ok {
		return 0, errors.New("no quote")
	}
	return p, nil
}

func TestSyncAndFreeBalance(t *testing.T) {
	src := &fakeSource{snap: &common.AccountSnapshot{
		Balances: map[string]common.Balance{
			"USDT": {Asset: "USDT", Free: 1000, Locked: 200},
			"BTC":  {Asset: "BTC", Free: 0.5},
		},
	}}
	m := NewManager(src, nil, time.Minute)

	if err := m.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if got := m.FreeBalance("USDT"); got != 1000 {
		t.Errorf("FreeBalance(USDT) = %v, want 1000", got)
	}
	if got := m.FreeBalance("DOGE"); got != 0 {
		t.Errorf("FreeBalance(DOGE) = %v, want 0", got)
	}
}

func TestSyncPropagatesError(t *testing.T) {
	src := &fakeSource{err: errors.New("boom")}
	m := NewManager(src, nil, time.Minute)

	if err := m.Sync(context.Background()); err == nil {
		t.Fatal("expected sync error")
	}
	if m.Snapshot() != nil {
		t.Error("snapshot should stay nil after failed sync")
	}
}

func TestTotalValueUSDT(t *testing.T) {
	src := &fakeSource{snap: &common.AccountSnapshot{
		Balances: map[string]common.Balance{
			"USDT": {Asset: "USDT", Free: 1000, Locked: 500}, // 1500 at par
			"BTC":  {Asset: "BTC", Free: 0.1},                // 0.1 * 50000 = 5000
			"XYZ":  {Asset: "XYZ", Free: 10},                 // no quote, skipped
		},
	}}
	pricer := &fakePricer{prices: map[string]float64{"BTCUSDT": 50000}}
	m := NewManager(src, pricer, time.Minute)

	if err := m.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if got := m.TotalValueUSDT(context.Background()); got != 6500 {
		t.Errorf("TotalValueUSDT = %v, want 6500", got)
	}
}

func TestTotalValueBeforeSync(t *testing.T) {
	m := NewManager(&fakeSource{}, nil, time.Minute)
	if got := m.TotalValueUSDT(context.Background()); got != 0 {
		t.Errorf("TotalValueUSDT before sync = %v, want 0", got)
	}
}
