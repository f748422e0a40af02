package trader

import (
	"context"
	"log"
	"time"

	"autotrader/internal/events"
	"autotrader/internal/order"
	"autotrader/internal/position"
	"autotrader/internal/risk"
	"autotrader/internal/strategy"
	"autotrader/pkg/db"
	"autotrader/pkg/exchanges/binance/wsapi"
	"autotrader/pkg/exchanges/common"
)

// MarketSource provides the market data a decision pass needs.
type MarketSource interface {
	LastPrice(ctx context.Context, symbol string) (float64, error)
	RecentKlines(ctx context.Context, symbol, interval string, limit int) ([]wsapi.Kline, error)
}

// AccountSource values the account for exposure checks.
type AccountSource interface {
	TotalValueUSDT(ctx context.Context) float64
}

// OrderPlacer submits tracked orders.
type OrderPlacer interface {
	Place(ctx context.Context, req common.OrderRequest) (*order.Tracked, error)
}

// Config tunes the trader loop.
type Config struct {
	Symbols       []string
	Interval      string        // kline interval for analysis
	DecisionEvery time.Duration // time between decision passes
	KlineLimit    int           // candles fetched per analysis
	StopLossPct   float64       // default protective stop for opened positions
	TakeProfitPct float64
}

// Trader runs the decision loop: analyze, plan, evaluate, gate, execute. The
// oracle proposes; the risk gate disposes. Only a confirmed fill opens a
// position.
type Trader struct {
	cfg       Config
	oracle    strategy.Oracle
	market    MarketSource
	account   AccountSource
	gate      *risk.Gate
	orders    OrderPlacer
	positions *position.Store
	store     *db.Database // optional audit trail
	bus       *events.Bus  // optional
}

// New creates the trader. store and bus may be nil.
func New(cfg Config, oracle strategy.Oracle, market MarketSource, account AccountSource,
	gate *risk.Gate, orders OrderPlacer, positions *position.Store, store *db.Database, bus *events.Bus) *Trader {
	if cfg.DecisionEvery <= 0 {
		cfg.DecisionEvery = 5 * time.Minute
	}
	if cfg.KlineLimit <= 0 {
		cfg.KlineLimit = 100
	}
	if cfg.Interval == "" {
		cfg.Interval = "1m"
	}
	return &Trader{
		cfg:       cfg,
		oracle:    oracle,
		market:    market,
		account:   account,
		gate:      gate,
		orders:    orders,
		positions: positions,
		store:     store,
		bus:       bus,
	}
}

// Run blocks, executing one decision pass per interval until ctx is done.
func (t *Trader) Run(ctx context.Context) {
	log.Printf("[trader] started: %d symbols, every %v", len(t.cfg.Symbols), t.cfg.DecisionEvery)
	ticker := time.NewTicker(t.cfg.DecisionEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, symbol := range t.cfg.Symbols {
				t.Decide(ctx, symbol)
			}
		}
	}
}

// Decide runs one full decision pass for a symbol. Failures abort only this
// pass; the next tick starts fresh.
func (t *Trader) Decide(ctx context.Context, symbol string) {
	price, err := t.market.LastPrice(ctx, symbol)
	if err != nil {
		log.Printf("[trader] %s: no price, skipping pass: %v", symbol, err)
		return
	}
	klines, err := t.market.RecentKlines(ctx, symbol, t.cfg.Interval, t.cfg.KlineLimit)
	if err != nil {
		log.Printf("[trader] %s: no klines, skipping pass: %v", symbol, err)
		return
	}

	analysis, err := t.oracle.AnalyzeMarket(ctx, strategy.MarketData{
		Symbol:    symbol,
		Interval:  t.cfg.Interval,
		Klines:    klines,
		LastPrice: price,
	})
	if err != nil {
		log.Printf("[trader] %s: analysis failed: %v", symbol, err)
		return
	}
	t.saveAnalysis(ctx, analysis)

	plan, err := t.oracle.GenerateStrategy(ctx, analysis)
	if err != nil {
		log.Printf("[trader] %s: strategy generation failed: %v", symbol, err)
		return
	}
	if plan.Action == strategy.ActionHold || plan.Qty <= 0 {
		return
	}
	if plan.Price <= 0 {
		plan.Price = price
	}

	portfolio := strategy.Portfolio{
		AccountValue:  t.account.TotalValueUSDT(ctx),
		OpenExposure:  t.positions.OpenExposure(),
		OpenPositions: len(t.positions.Active()),
		TradesToday:   t.gate.TradesToday(),
	}
	assessment, err := t.oracle.EvaluateRisk(ctx, plan, portfolio)
	if err != nil {
		log.Printf("[trader] %s: risk evaluation failed: %v", symbol, err)
		return
	}
	if !assessment.Acceptable {
		log.Printf("[trader] %s: oracle declined plan: %s", symbol, assessment.Notes)
		t.saveDecision(ctx, plan, false, "oracle: "+assessment.Notes)
		return
	}

	decision := t.gate.Evaluate(risk.Check{
		Symbol:       symbol,
		Qty:          plan.Qty,
		Price:        plan.Price,
		OpenExposure: portfolio.OpenExposure,
		AccountValue: portfolio.AccountValue,
	})
	if !decision.Allowed {
		t.saveDecision(ctx, plan, false, "risk gate: "+decision.Rules())
		t.saveRejection(ctx, symbol, decision.Rules())
		if t.bus != nil {
			t.bus.Publish(events.EventRiskRejected, decision)
		}
		return
	}

	t.execute(ctx, plan, price)
}

func (t *Trader) execute(ctx context.Context, plan strategy.Plan, lastPrice float64) {
	tracked, err := t.orders.Place(ctx, common.OrderRequest{
		Symbol: plan.Symbol,
		Side:   common.Side(plan.Action),
		Type:   common.OrderTypeMarket,
		Qty:    plan.Qty,
	})
	if err != nil {
		log.Printf("[trader] %s: order failed: %v", plan.Symbol, err)
		t.saveDecision(ctx, plan, false, "submit: "+err.Error())
		return
	}

	t.gate.RecordTrade()
	t.saveDecision(ctx, plan, true, plan.Reason)
	if t.bus != nil {
		t.bus.Publish(events.EventStrategyDecided, plan)
	}

	if tracked.Status != common.StatusFilled {
		log.Printf("[trader] %s: order %s not yet filled (%s), no position opened", plan.Symbol, tracked.ClientID, tracked.Status)
		return
	}

	entry := lastPrice
	side := common.PositionLong
	if plan.Action == strategy.ActionSell {
		side = common.PositionShort
	}
	sl := plan.StopLossPct
	if sl <= 0 {
		sl = t.cfg.StopLossPct
	}
	tp := plan.TakeProfitPct
	if tp <= 0 {
		tp = t.cfg.TakeProfitPct
	}
	t.positions.Open(ctx, plan.Symbol, side, entry, plan.Qty, sl, tp)
}

// Optimize asks the oracle for tuned parameters from recent history. Called
// on a slow cadence by the owner, typically daily.
func (t *Trader) Optimize(ctx context.Context, symbol string) {
	klines, err := t.market.RecentKlines(ctx, symbol, t.cfg.Interval, 500)
	if err != nil {
		log.Printf("[trader] %s: optimize skipped, no history: %v", symbol, err)
		return
	}
	params, err := t.oracle.OptimizeParameters(ctx, klines)
	if err != nil {
		log.Printf("[trader] %s: optimize failed: %v", symbol, err)
		return
	}
	log.Printf("[trader] %s: optimized parameters: %v", symbol, params)
}

func (t *Trader) saveAnalysis(ctx context.Context, a strategy.Analysis) {
	if t.store == nil {
		return
	}
	err := t.store.SaveAnalysis(ctx, db.AnalysisRecord{
		Symbol:     a.Symbol,
		Trend:      a.Trend,
		Summary:    a.Summary,
		Confidence: a.Confidence,
	})
	if err != nil {
		log.Printf("[trader] analysis audit write failed: %v", err)
	}
}

func (t *Trader) saveDecision(ctx context.Context, plan strategy.Plan, accepted bool, reason string) {
	if t.store == nil {
		return
	}
	err := t.store.SaveDecision(ctx, db.DecisionRecord{
		Symbol:   plan.Symbol,
		Action:   plan.Action,
		Qty:      plan.Qty,
		Price:    plan.Price,
		Reason:   reason,
		Accepted: accepted,
	})
	if err != nil {
		log.Printf("[trader] decision audit write failed: %v", err)
	}
}

func (t *Trader) saveRejection(ctx context.Context, symbol, rules string) {
	if t.store == nil {
		return
	}
	if err := t.store.SaveRejection(ctx, db.RejectionRecord{Symbol: symbol, Rules: rules}); err != nil {
		log.Printf("[trader] rejection audit write failed: %v", err)
	}
}
