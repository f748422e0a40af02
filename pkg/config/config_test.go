package config

import (
	"os"
	"path/filepath"
	"testing"

	"autotrader/pkg/exchanges/common"
)

func validConfig() *Config {
	return &Config{
		BinanceAPIKey:       "key",
		BinanceAPISecret:    "secret",
		MaxPositionSize:     1000,
		RiskLimitPercentage: 2,
		StopLossPercentage:  1,
		MaxTradesPerDay:     10,
		TradingPairs:        []string{"BTCUSDT"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing api key", func(c *Config) { c.BinanceAPIKey = "" }, true},
		{"missing api secret", func(c *Config) { c.BinanceAPISecret = "" }, true},
		{"zero position size", func(c *Config) { c.MaxPositionSize = 0 }, true},
		{"negative position size", func(c *Config) { c.MaxPositionSize = -5 }, true},
		{"risk limit over 100", func(c *Config) { c.RiskLimitPercentage = 150 }, true},
		{"zero stop loss", func(c *Config) { c.StopLossPercentage = 0 }, true},
		{"stop loss at 100", func(c *Config) { c.StopLossPercentage = 100 }, true},
		{"zero trades per day", func(c *Config) { c.MaxTradesPerDay = 0 }, true},
		{"no pairs", func(c *Config) { c.TradingPairs = nil }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Fatal("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr && !common.IsKind(err, common.KindConfig) {
				t.Errorf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	os.Unsetenv("MAX_POSITION_SIZE")
	os.Unsetenv("TRADING_PAIRS")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxPositionSize != 1000 {
		t.Errorf("expected default MaxPositionSize 1000, got %v", cfg.MaxPositionSize)
	}
	if len(cfg.TradingPairs) != 2 || cfg.TradingPairs[0] != "BTCUSDT" {
		t.Errorf("unexpected default pairs: %v", cfg.TradingPairs)
	}
	if cfg.MaxTradesPerDay != 10 {
		t.Errorf("expected default MaxTradesPerDay 10, got %d", cfg.MaxTradesPerDay)
	}
}

func TestLoadPairsAndApply(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pairs.yaml")
	yaml := `
pairs:
  - symbol: SOLUSDT
    interval: 5m
    max_notional: 500
  - symbol: ETHUSDT
    enabled: false
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	pairs, err := LoadPairs(path)
	if err != nil {
		t.Fatalf("LoadPairs: %v", err)
	}
	if len(pairs) != 2 {
		t.Fatalf("expected 2 pair entries, got %d", len(pairs))
	}
	if pairs[0].MaxNotional != 500 {
		t.Errorf("expected max_notional 500, got %v", pairs[0].MaxNotional)
	}

	cfg := validConfig()
	cfg.TradingPairs = []string{"BTCUSDT", "ETHUSDT"}
	cfg.ApplyPairs(pairs)

	want := map[string]bool{"BTCUSDT": true, "SOLUSDT": true}
	if len(cfg.TradingPairs) != 2 {
		t.Fatalf("expected 2 pairs after merge, got %v", cfg.TradingPairs)
	}
	for _, s := range cfg.TradingPairs {
		if !want[s] {
			t.Errorf("unexpected pair %s after merge", s)
		}
	}
}

func TestLoadPairsRejectsMissingSymbol(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pairs.yaml")
	if err := os.WriteFile(path, []byte("pairs:\n  - interval: 1m\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadPairs(path); err == nil {
		t.Fatal("expected error for entry without symbol")
	}
}
