package strategy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"autotrader/internal/indicators"
	"autotrader/pkg/exchanges/binance/wsapi"
	"autotrader/pkg/exchanges/common"
)

// RSIOracle is a mean-reversion oracle: oversold proposes BUY, overbought
// proposes SELL. It emits a trade only when a symbol enters a zone, not while
// it stays there, so a long stretch below the threshold produces one signal.
type RSIOracle struct {
	mu         sync.Mutex
	period     int
	oversold   float64
	overbought float64
	orderQty   float64
	stopLoss   float64
	takeProfit float64

	// last zone per symbol: "OVERSOLD", "OVERBOUGHT", or "NEUTRAL"
	zone map[string]string
}

// NewRSIOracle creates the oracle with the usual 30/70 thresholds unless
// overridden.
func NewRSIOracle(period int, oversold, overbought, orderQty, stopLossPct, takeProfitPct float64) (*RSIOracle, error) {
	if period <= 0 {
		return nil, common.NewConfigError(fmt.Sprintf("invalid RSI period %d", period))
	}
	if oversold <= 0 || overbought >= 100 || oversold >= overbought {
		return nil, common.NewConfigError(fmt.Sprintf("invalid RSI thresholds %v/%v", oversold, overbought))
	}
	return &RSIOracle{
		period:     period,
		oversold:   oversold,
		overbought: overbought,
		orderQty:   orderQty,
		stopLoss:   stopLossPct,
		takeProfit: takeProfitPct,
		zone:       make(map[string]string),
	}, nil
}

// AnalyzeMarket reads the trend off the index: oversold markets are treated
// as bullish (reversion up), overbought as bearish.
func (o *RSIOracle) AnalyzeMarket(ctx context.Context, data MarketData) (Analysis, error) {
	o.mu.Lock()
	period := o.period
	o.mu.Unlock()

	if len(data.Klines) < period+1 {
		return Analysis{
			Symbol:  data.Symbol,
			Trend:   TrendSideways,
			Summary: fmt.Sprintf("insufficient history: %d/%d candles", len(data.Klines), period+1),
			At:      time.Now(),
		}, nil
	}

	rsi := indicators.RSI(closes(data.Klines), period)

	trend := TrendSideways
	switch {
	case rsi < o.oversold:
		trend = TrendBullish
	case rsi > o.overbought:
		trend = TrendBearish
	}

	// Confidence grows with the distance past the threshold.
	confidence := 0.0
	switch trend {
	case TrendBullish:
		confidence = (o.oversold - rsi) / o.oversold
	case TrendBearish:
		confidence = (rsi - o.overbought) / (100 - o.overbought)
	}

	return Analysis{
		Symbol:     data.Symbol,
		Trend:      trend,
		Summary:    fmt.Sprintf("RSI%d=%.2f", period, rsi),
		Confidence: confidence,
		At:         time.Now(),
	}, nil
}

// GenerateStrategy trades the zone transition: the first analysis that puts a
// symbol into oversold or overbought territory proposes a trade, repeats hold.
func (o *RSIOracle) GenerateStrategy(ctx context.Context, analysis Analysis) (Plan, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	zone := "NEUTRAL"
	switch analysis.Trend {
	case TrendBullish:
		zone = "OVERSOLD"
	case TrendBearish:
		zone = "OVERBOUGHT"
	}
	prev := o.zone[analysis.Symbol]
	o.zone[analysis.Symbol] = zone

	plan := Plan{
		Symbol:        analysis.Symbol,
		Action:        ActionHold,
		StopLossPct:   o.stopLoss,
		TakeProfitPct: o.takeProfit,
		Reason:        "index neutral: " + analysis.Summary,
	}
	if zone == "NEUTRAL" || zone == prev {
		return plan, nil
	}

	plan.Qty = o.orderQty
	if zone == "OVERSOLD" {
		plan.Action = ActionBuy
		plan.Reason = "oversold: " + analysis.Summary
	} else {
		plan.Action = ActionSell
		plan.Reason = "overbought: " + analysis.Summary
	}
	return plan, nil
}

// EvaluateRisk scores a plan by the exposure it would add, like the crossover
// oracle. Advisory only.
func (o *RSIOracle) EvaluateRisk(ctx context.Context, plan Plan, portfolio Portfolio) (RiskAssessment, error) {
	if plan.Action == ActionHold {
		return RiskAssessment{Acceptable: true, Score: 0, Notes: "no trade"}, nil
	}
	if portfolio.AccountValue <= 0 {
		return RiskAssessment{Acceptable: false, Score: 1, Notes: "account value unknown"}, nil
	}

	score := (portfolio.OpenExposure + plan.Qty*plan.Price) / portfolio.AccountValue
	if score > 1 {
		score = 1
	}
	return RiskAssessment{
		Acceptable: score < 0.5,
		Score:      score,
		Notes:      fmt.Sprintf("projected exposure is %.1f%% of account", score*100),
	}, nil
}

// OptimizeParameters picks the period whose signals would have fired most
// evenly over the history: too short whipsaws, too long never triggers. The
// heuristic counts zone entries and prefers the period closest to one entry
// per fifty candles.
func (o *RSIOracle) OptimizeParameters(ctx context.Context, history []wsapi.Kline) (Parameters, error) {
	prices := closes(history)

	o.mu.Lock()
	best := o.period
	o.mu.Unlock()

	target := float64(len(prices)) / 50
	bestDist := -1.0
	for _, period := range []int{7, 14, 21} {
		if len(prices) <= period+1 {
			continue
		}
		entries := o.zoneEntries(prices, period)
		dist := float64(entries) - target
		if dist < 0 {
			dist = -dist
		}
		if bestDist < 0 || dist < bestDist {
			bestDist = dist
			best = period
		}
	}

	o.mu.Lock()
	o.period = best
	o.mu.Unlock()

	return Parameters{"rsi_period": float64(best)}, nil
}

// zoneEntries counts how many times the index crossed into an actionable zone
// over the series.
func (o *RSIOracle) zoneEntries(prices []float64, period int) int {
	entries := 0
	inZone := false
	for i := period + 1; i <= len(prices); i++ {
		rsi := indicators.RSI(prices[:i], period)
		actionable := rsi < o.oversold || rsi > o.overbought
		if actionable && !inZone {
			entries++
		}
		inZone = actionable
	}
	return entries
}
