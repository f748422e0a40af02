package risk

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

// Rule names reported in violations and in the audit trail.
const (
	RuleMaxPositionSize = "max_position_size"
	RuleExposureLimit   = "exposure_limit"
	RuleDailyTradeLimit = "daily_trade_limit"
)

// Limits are the hard risk parameters. Zero disables the individual rule.
type Limits struct {
	// MaxPositionNotional caps a single order's quote value in USDT.
	MaxPositionNotional float64
	// MaxExposurePct caps total open exposure as a percentage of account value.
	MaxExposurePct float64
	// MaxTradesPerDay caps accepted trades per UTC day.
	MaxTradesPerDay int
}

// Check is the input to one evaluation: the proposed order plus the current
// portfolio context. The gate itself holds no market or account state.
type Check struct {
	Symbol       string
	Qty          float64
	Price        float64
	OpenExposure float64 // current open notional across all positions, USDT
	AccountValue float64 // total account value, USDT
}

// Violation names one rule that failed and why.
type Violation struct {
	Rule   string
	Detail string
}

// Decision is the outcome of an evaluation. All rules are checked
// independently so a rejection reports every violated rule, not just the
// first.
type Decision struct {
	Allowed    bool
	Violations []Violation
}

// Rules returns the violated rule names, comma-joined for the audit trail.
func (d Decision) Rules() string {
	names := make([]string, 0, len(d.Violations))
	for _, v := range d.Violations {
		names = append(names, v.Rule)
	}
	return strings.Join(names, ",")
}

// Gate validates proposed orders against the configured limits. It is the
// only component allowed to veto a trade; it never modifies one.
type Gate struct {
	limits Limits
	now    func() time.Time

	mu     sync.Mutex
	day    string // UTC date of the counter below
	trades int
}

// NewGate creates a risk gate with the given limits.
func NewGate(limits Limits) *Gate {
	return &Gate{limits: limits, now: time.Now}
}

// Evaluate runs every enabled rule against the check. The caller must treat
// a rejection as final: a rejected order is never sent to the venue.
func (g *Gate) Evaluate(c Check) Decision {
	var violations []Violation

	notional := c.Qty * c.Price
	if g.limits.MaxPositionNotional > 0 && notional > g.limits.MaxPositionNotional {
		violations = append(violations, Violation{
			Rule: RuleMaxPositionSize,
			Detail: fmt.Sprintf("order notional %.2f exceeds limit %.2f",
				notional, g.limits.MaxPositionNotional),
		})
	}

	if g.limits.MaxExposurePct > 0 && c.AccountValue > 0 {
		allowed := c.AccountValue * g.limits.MaxExposurePct / 100
		if c.OpenExposure+notional > allowed {
			violations = append(violations, Violation{
				Rule: RuleExposureLimit,
				Detail: fmt.Sprintf("exposure %.2f+%.2f exceeds %.1f%% of account (%.2f)",
					c.OpenExposure, notional, g.limits.MaxExposurePct, allowed),
			})
		}
	}

	if g.limits.MaxTradesPerDay > 0 {
		if count := g.tradesToday(); count >= g.limits.MaxTradesPerDay {
			violations = append(violations, Violation{
				Rule:   RuleDailyTradeLimit,
				Detail: fmt.Sprintf("daily trade limit reached: %d/%d", count, g.limits.MaxTradesPerDay),
			})
		}
	}

	dec := Decision{Allowed: len(violations) == 0, Violations: violations}
	if !dec.Allowed {
		log.Printf("[risk] rejected %s qty=%.6f price=%.2f: %s", c.Symbol, c.Qty, c.Price, dec.Rules())
	}
	return dec
}

// RecordTrade counts an accepted trade against the daily limit.
func (g *Gate) RecordTrade() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollover()
	g.trades++
}

// SeedDailyCount restores the counter after a restart, e.g. from the audit
// database. It only applies when the given day matches the current UTC day.
func (g *Gate) SeedDailyCount(day string, count int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollover()
	if g.day == day {
		g.trades = count
	}
}

// TradesToday returns the number of accepted trades in the current UTC day.
func (g *Gate) TradesToday() int {
	return g.tradesToday()
}

// Limits returns the configured limits.
func (g *Gate) Limits() Limits {
	return g.limits
}

func (g *Gate) tradesToday() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollover()
	return g.trades
}

// rollover resets the counter at UTC midnight. Callers hold g.mu.
func (g *Gate) rollover() {
	today := g.now().UTC().Format("2006-01-02")
	if g.day != today {
		if g.day != "" && g.trades > 0 {
			log.Printf("[risk] daily counter reset (%s: %d trades)", g.day, g.trades)
		}
		g.day = today
		g.trades = 0
	}
}
