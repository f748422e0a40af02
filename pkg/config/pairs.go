package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PairConfig is a per-symbol override entry in the optional pairs YAML file.
// Zero values fall back to the global Config settings.
type PairConfig struct {
	Symbol      string  `yaml:"symbol"`
	Interval    string  `yaml:"interval"`
	MaxNotional float64 `yaml:"max_notional"`
	StopLoss    float64 `yaml:"stop_loss"`
	TakeProfit  float64 `yaml:"take_profit"`
	Enabled     *bool   `yaml:"enabled"`
}

type pairsFile struct {
	Pairs []PairConfig `yaml:"pairs"`
}

// LoadPairs reads per-pair settings from a YAML file.
func LoadPairs(path string) ([]PairConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file pairsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse pairs file %s: %w", path, err)
	}

	for i, p := range file.Pairs {
		if p.Symbol == "" {
			return nil, fmt.Errorf("pairs file %s: entry %d has no symbol", path, i)
		}
	}
	return file.Pairs, nil
}

// ApplyPairs merges YAML pair entries into the config: enabled entries extend
// TradingPairs, disabled ones are removed from it.
func (c *Config) ApplyPairs(pairs []PairConfig) {
	enabled := make(map[string]bool, len(c.TradingPairs))
	for _, s := range c.TradingPairs {
		enabled[s] = true
	}
	for _, p := range pairs {
		if p.Enabled != nil && !*p.Enabled {
			delete(enabled, p.Symbol)
			continue
		}
		enabled[p.Symbol] = true
	}

	out := make([]string, 0, len(enabled))
	for _, s := range c.TradingPairs {
		if enabled[s] {
			out = append(out, s)
			delete(enabled, s)
		}
	}
	for _, p := range pairs {
		if enabled[p.Symbol] {
			out = append(out, p.Symbol)
			delete(enabled, p.Symbol)
		}
	}
	c.TradingPairs = out
}
