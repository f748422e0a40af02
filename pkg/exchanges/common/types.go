package common

// Side denotes order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// PositionSide denotes the direction of an open position.
type PositionSide string

const (
	PositionLong  PositionSide = "LONG"
	PositionShort PositionSide = "SHORT"
)

// OrderType denotes supported order types.
type OrderType string

const (
	OrderTypeMarket        OrderType = "MARKET"
	OrderTypeLimit         OrderType = "LIMIT"
	OrderTypeStopLossLimit OrderType = "STOP_LOSS_LIMIT"
)

// TimeInForce captures TIF semantics.
type TimeInForce string

const (
	TIFGTC TimeInForce = "GTC" // Good Till Cancelled
	TIFIOC TimeInForce = "IOC" // Immediate Or Cancel
	TIFFOK TimeInForce = "FOK" // Fill Or Kill
)

// OrderStatus normalizes venue status into a small set. UNKNOWN is reachable
// only through a timed-out request whose outcome was never confirmed.
type OrderStatus string

const (
	StatusNew       OrderStatus = "NEW"
	StatusPartially OrderStatus = "PARTIALLY_FILLED"
	StatusFilled    OrderStatus = "FILLED"
	StatusCanceled  OrderStatus = "CANCELED"
	StatusRejected  OrderStatus = "REJECTED"
	StatusExpired   OrderStatus = "EXPIRED"
	StatusUnknown   OrderStatus = "UNKNOWN"
)

// IsTerminal reports whether no further transitions are possible for s.
// UNKNOWN is not terminal: it must be resolved by an explicit status query.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// IsActive reports whether the order still rests on the venue's book.
func (s OrderStatus) IsActive() bool {
	return s == StatusNew || s == StatusPartially
}

// OrderRequest captures an order intent to be sent to the venue.
type OrderRequest struct {
	Symbol      string
	Side        Side
	Type        OrderType
	Qty         float64
	Price       float64 // required for LIMIT and STOP_LOSS_LIMIT
	StopPrice   float64 // required for STOP_LOSS_LIMIT
	TimeInForce TimeInForce
	ClientID    string // client order id, assigned by the tracker
}

// OrderResult returns the venue ack for a submission.
type OrderResult struct {
	ExchangeOrderID int64
	ClientID        string
	Symbol          string
	Side            Side
	Status          OrderStatus
	Price           float64
	ExecutedQty     float64
	TransactTime    int64
}

// Balance is one asset's free/locked amount from an account snapshot.
type Balance struct {
	Asset  string
	Free   float64
	Locked float64
}

// AccountSnapshot mirrors the venue account state at a point in time.
type AccountSnapshot struct {
	Balances        map[string]Balance
	Permissions     []string
	MakerCommission float64
	TakerCommission float64
	UpdateTime      int64
}
