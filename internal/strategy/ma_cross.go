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

// MACrossOracle is a self-contained oracle built on a moving average
// crossover: a golden cross (fast above slow) proposes BUY, a death cross
// proposes SELL. It serves as the deterministic fallback when no remote
// oracle is configured or reachable.
type MACrossOracle struct {
	mu         sync.Mutex
	fastPeriod int
	slowPeriod int
	orderQty   float64
	stopLoss   float64
	takeProfit float64

	// last fast>slow relation per symbol, to emit signals only on a cross
	above map[string]bool
	seen  map[string]bool
}

// NewMACrossOracle creates the fallback oracle. orderQty is the base
// quantity proposed per trade.
func NewMACrossOracle(fastPeriod, slowPeriod int, orderQty, stopLossPct, takeProfitPct float64) (*MACrossOracle, error) {
	if fastPeriod <= 0 || slowPeriod <= fastPeriod {
		return nil, common.NewConfigError(fmt.Sprintf("invalid MA periods %d/%d", fastPeriod, slowPeriod))
	}
	return &MACrossOracle{
		fastPeriod: fastPeriod,
		slowPeriod: slowPeriod,
		orderQty:   orderQty,
		stopLoss:   stopLossPct,
		takeProfit: takeProfitPct,
		above:      make(map[string]bool),
		seen:       make(map[string]bool),
	}, nil
}

// AnalyzeMarket classifies the trend from the two moving averages.
func (o *MACrossOracle) AnalyzeMarket(ctx context.Context, data MarketData) (Analysis, error) {
	o.mu.Lock()
	fastPeriod, slowPeriod := o.fastPeriod, o.slowPeriod
	o.mu.Unlock()

	if len(data.Klines) < slowPeriod {
		return Analysis{
			Symbol:  data.Symbol,
			Trend:   TrendSideways,
			Summary: fmt.Sprintf("insufficient history: %d/%d candles", len(data.Klines), slowPeriod),
			At:      time.Now(),
		}, nil
	}

	prices := closes(data.Klines)
	fast := indicators.SMA(prices, fastPeriod)
	slow := indicators.SMA(prices, slowPeriod)

	trend := TrendSideways
	if fast > slow {
		trend = TrendBullish
	} else if fast < slow {
		trend = TrendBearish
	}

	// Confidence grows with the relative gap between the averages.
	confidence := 0.0
	if slow > 0 {
		confidence = (fast - slow) / slow * 100
		if confidence < 0 {
			confidence = -confidence
		}
		if confidence > 1 {
			confidence = 1
		}
	}

	return Analysis{
		Symbol:     data.Symbol,
		Trend:      trend,
		Summary:    fmt.Sprintf("MA%d=%.4f MA%d=%.4f", fastPeriod, fast, slowPeriod, slow),
		Confidence: confidence,
		At:         time.Now(),
	}, nil
}

// GenerateStrategy emits a trade only when the trend flips relative to the
// previous analysis for the symbol; a steady trend holds.
func (o *MACrossOracle) GenerateStrategy(ctx context.Context, analysis Analysis) (Plan, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	nowAbove := analysis.Trend == TrendBullish
	wasAbove, known := o.above[analysis.Symbol], o.seen[analysis.Symbol]
	if analysis.Trend != TrendSideways {
		o.above[analysis.Symbol] = nowAbove
		o.seen[analysis.Symbol] = true
	}

	plan := Plan{
		Symbol:        analysis.Symbol,
		Action:        ActionHold,
		StopLossPct:   o.stopLoss,
		TakeProfitPct: o.takeProfit,
		Reason:        "no crossover",
	}
	if analysis.Trend == TrendSideways || !known || wasAbove == nowAbove {
		return plan, nil
	}

	plan.Qty = o.orderQty
	if nowAbove {
		plan.Action = ActionBuy
		plan.Reason = "golden cross: " + analysis.Summary
	} else {
		plan.Action = ActionSell
		plan.Reason = "death cross: " + analysis.Summary
	}
	return plan, nil
}

// EvaluateRisk scores a plan by the exposure it would add. This is advisory
// only; the hard limits live in the risk gate.
func (o *MACrossOracle) EvaluateRisk(ctx context.Context, plan Plan, portfolio Portfolio) (RiskAssessment, error) {
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

// OptimizeParameters picks the MA pair with the best simulated return over
// the supplied history and adopts it.
func (o *MACrossOracle) OptimizeParameters(ctx context.Context, history []wsapi.Kline) (Parameters, error) {
	prices := closes(history)
	candidates := [][2]int{{5, 20}, {10, 30}, {20, 50}}

	o.mu.Lock()
	bestFast, bestSlow := o.fastPeriod, o.slowPeriod
	o.mu.Unlock()

	bestReturn := crossoverReturn(prices, bestFast, bestSlow)
	for _, c := range candidates {
		if len(prices) <= c[1] {
			continue
		}
		if r := crossoverReturn(prices, c[0], c[1]); r > bestReturn {
			bestReturn = r
			bestFast, bestSlow = c[0], c[1]
		}
	}

	o.mu.Lock()
	o.fastPeriod, o.slowPeriod = bestFast, bestSlow
	o.mu.Unlock()

	return Parameters{
		"fast_period": float64(bestFast),
		"slow_period": float64(bestSlow),
	}, nil
}

// crossoverReturn simulates a long-only crossover strategy over the series
// and returns its cumulative return.
func crossoverReturn(prices []float64, fast, slow int) float64 {
	if len(prices) <= slow {
		return 0
	}
	ret := 0.0
	holding := false
	entry := 0.0
	for i := slow; i < len(prices); i++ {
		f := indicators.SMA(prices[:i+1], fast)
		s := indicators.SMA(prices[:i+1], slow)
		switch {
		case f > s && !holding:
			holding = true
			entry = prices[i]
		case f < s && holding:
			holding = false
			ret += (prices[i] - entry) / entry
		}
	}
	if holding {
		ret += (prices[len(prices)-1] - entry) / entry
	}
	return ret
}

var (
	_ Oracle = (*MACrossOracle)(nil)
	_ Oracle = (*RSIOracle)(nil)
	_ Oracle = (*OpenAIOracle)(nil)
)
