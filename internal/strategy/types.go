package strategy

import (
	"context"
	"time"

	"autotrader/pkg/exchanges/binance/wsapi"
)

// MarketData is the input to an analysis pass: recent candles plus the
// current price for one symbol.
type MarketData struct {
	Symbol    string
	Interval  string
	Klines    []wsapi.Kline
	LastPrice float64
}

// Analysis is the oracle's market read.
type Analysis struct {
	Symbol     string    `json:"symbol"`
	Trend      string    `json:"trend"` // BULLISH, BEARISH, SIDEWAYS
	Summary    string    `json:"summary"`
	Confidence float64   `json:"confidence"` // 0..1
	At         time.Time `json:"at"`
}

// Plan is a concrete trade proposal derived from an analysis. HOLD plans
// carry no quantity.
type Plan struct {
	Symbol        string  `json:"symbol"`
	Action        string  `json:"action"` // BUY, SELL, HOLD
	Qty           float64 `json:"qty"`
	Price         float64 `json:"price"` // advisory reference price
	StopLossPct   float64 `json:"stop_loss_pct"`
	TakeProfitPct float64 `json:"take_profit_pct"`
	Reason        string  `json:"reason"`
}

// Portfolio is the account context handed to the risk evaluation.
type Portfolio struct {
	AccountValue  float64 `json:"account_value"`
	OpenExposure  float64 `json:"open_exposure"`
	OpenPositions int     `json:"open_positions"`
	TradesToday   int     `json:"trades_today"`
}

// RiskAssessment is the oracle's advisory opinion on a plan. It never
// replaces the hard risk gate; an acceptable assessment can still be vetoed.
type RiskAssessment struct {
	Acceptable bool    `json:"acceptable"`
	Score      float64 `json:"score"` // 0 (safe) .. 1 (reckless)
	Notes      string  `json:"notes"`
}

// Parameters are tunable strategy knobs keyed by name.
type Parameters map[string]float64

// Oracle produces analyses, trade plans, risk opinions, and parameter
// suggestions. Implementations must be safe for concurrent use.
type Oracle interface {
	AnalyzeMarket(ctx context.Context, data MarketData) (Analysis, error)
	GenerateStrategy(ctx context.Context, analysis Analysis) (Plan, error)
	EvaluateRisk(ctx context.Context, plan Plan, portfolio Portfolio) (RiskAssessment, error)
	OptimizeParameters(ctx context.Context, history []wsapi.Kline) (Parameters, error)
}

// Trend values emitted by analyses.
const (
	TrendBullish  = "BULLISH"
	TrendBearish  = "BEARISH"
	TrendSideways = "SIDEWAYS"
)

// Plan actions.
const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"
	ActionHold = "HOLD"
)
