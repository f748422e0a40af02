package order

import (
	"context"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"autotrader/pkg/exchanges/common"
)

// PaperGateway simulates the venue for dry runs: orders fill instantly at the
// pricer's last price with configurable slippage and fees, and balances are
// tracked in memory. It satisfies the same gateway contract as the live
// connection, so the tracker, monitor and trader run unmodified.
type PaperGateway struct {
	mu          sync.Mutex
	pricer      common.Pricer
	feeRate     float64 // decimal, e.g. 0.001 = 10 bps
	slippageBps float64
	rng         *rand.Rand
	nextID      int64
	balances    map[string]float64
	orders      map[string]common.OrderResult
}

// NewPaperGateway creates a simulated venue funded with quoteBalance USDT.
func NewPaperGateway(pricer common.Pricer, quoteBalance, feeRate, slippageBps float64) *PaperGateway {
	return &PaperGateway{
		pricer:      pricer,
		feeRate:     feeRate,
		slippageBps: slippageBps,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		nextID:      1,
		balances:    map[string]float64{"USDT": quoteBalance},
		orders:      make(map[string]common.OrderResult),
	}
}

func (g *PaperGateway) PlaceOrder(ctx context.Context, req common.OrderRequest) (common.OrderResult, error) {
	mark, err := g.pricer.LastPrice(ctx, req.Symbol)
	if err != nil {
		return common.OrderResult{}, common.NewConnectionError("paper fill needs a mark price", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	res := common.OrderResult{
		ExchangeOrderID: g.nextID,
		ClientID:        req.ClientID,
		Symbol:          req.Symbol,
		Side:            req.Side,
		Status:          common.StatusNew,
		Price:           req.Price,
		TransactTime:    time.Now().UnixMilli(),
	}
	g.nextID++

	fillPrice, marketable := g.fillPrice(req, mark)
	if marketable {
		if err := g.settle(req, fillPrice); err != nil {
			return common.OrderResult{}, err
		}
		res.Status = common.StatusFilled
		res.Price = fillPrice
		res.ExecutedQty = req.Qty
		log.Printf("[paper] %s %s qty=%.6f filled at %.4f (USDT %.2f)",
			req.Side, req.Symbol, req.Qty, fillPrice, g.balances["USDT"])
	}

	g.orders[req.ClientID] = res
	return res, nil
}

func (g *PaperGateway) CancelOrder(ctx context.Context, symbol string, exchangeOrderID int64) (common.OrderResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for id, res := range g.orders {
		if res.ExchangeOrderID != exchangeOrderID {
			continue
		}
		if res.Status.IsTerminal() {
			return res, common.NewRemoteError(-2011, "order is already terminal")
		}
		res.Status = common.StatusCanceled
		g.orders[id] = res
		return res, nil
	}
	return common.OrderResult{}, common.NewRemoteError(-2013, "order does not exist")
}

func (g *PaperGateway) QueryOrder(ctx context.Context, symbol string, exchangeOrderID int64, clientID string) (common.OrderResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if clientID != "" {
		if res, ok := g.orders[clientID]; ok {
			return res, nil
		}
	}
	for _, res := range g.orders {
		if exchangeOrderID != 0 && res.ExchangeOrderID == exchangeOrderID {
			return res, nil
		}
	}
	return common.OrderResult{}, common.NewRemoteError(-2013, "order does not exist")
}

func (g *PaperGateway) OpenOrders(ctx context.Context, symbol string) ([]common.OrderResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []common.OrderResult
	for _, res := range g.orders {
		if symbol != "" && res.Symbol != symbol {
			continue
		}
		if res.Status.IsActive() {
			out = append(out, res)
		}
	}
	return out, nil
}

// AccountStatus reports the simulated balances, so the account manager works
// against the paper venue too.
func (g *PaperGateway) AccountStatus(ctx context.Context) (*common.AccountSnapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	balances := make(map[string]common.Balance, len(g.balances))
	for asset, free := range g.balances {
		balances[asset] = common.Balance{Asset: asset, Free: free}
	}
	return &common.AccountSnapshot{
		Balances:   balances,
		UpdateTime: time.Now().UnixMilli(),
	}, nil
}

// fillPrice returns the execution price and whether the order fills now.
// MARKET always fills at mark plus adverse slippage; LIMIT fills only when
// marketable, otherwise it rests on the simulated book.
func (g *PaperGateway) fillPrice(req common.OrderRequest, mark float64) (float64, bool) {
	price := mark
	if frac := g.slippageBps / 10000; frac > 0 {
		noise := g.rng.Float64() * frac
		if req.Side == common.SideBuy {
			price *= 1 + noise
		} else {
			price *= 1 - noise
		}
	}

	if req.Type == common.OrderTypeMarket {
		return price, true
	}
	if req.Side == common.SideBuy && req.Price >= mark {
		return price, true
	}
	if req.Side == common.SideSell && req.Price <= mark {
		return price, true
	}
	return 0, false
}

// settle applies cash accounting for a fill. Requires mu.
func (g *PaperGateway) settle(req common.OrderRequest, price float64) error {
	base := strings.TrimSuffix(req.Symbol, "USDT")
	notional := price * req.Qty
	fee := notional * g.feeRate

	if req.Side == common.SideBuy {
		if g.balances["USDT"] < notional+fee {
			return common.NewRemoteError(-2010, "insufficient balance")
		}
		g.balances["USDT"] -= notional + fee
		g.balances[base] += req.Qty
		return nil
	}
	g.balances[base] -= req.Qty
	g.balances["USDT"] += notional - fee
	return nil
}

var _ common.Gateway = (*PaperGateway)(nil)
