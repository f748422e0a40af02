package common

import "context"

// Gateway abstracts the trading venue's order surface. The ws-api client is the
// production implementation; tests substitute fakes.
type Gateway interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	CancelOrder(ctx context.Context, symbol string, exchangeOrderID int64) (OrderResult, error)
	QueryOrder(ctx context.Context, symbol string, exchangeOrderID int64, clientID string) (OrderResult, error)
	OpenOrders(ctx context.Context, symbol string) ([]OrderResult, error)
}

// Pricer supplies the latest known price for a symbol; MARKET order notional
// checks and position monitoring both depend on it.
type Pricer interface {
	LastPrice(ctx context.Context, symbol string) (float64, error)
}
