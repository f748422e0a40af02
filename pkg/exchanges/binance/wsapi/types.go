package wsapi

import (
	"encoding/json"

	"autotrader/pkg/exchanges/common"
)

// request is an outbound frame. Ids are unique for the lifetime of one
// connection and strictly increasing.
type request struct {
	ID     uint64 `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// frame is an inbound message: either a correlated reply (ID set) or a push
// update (Stream set, no id).
type frame struct {
	ID         *uint64                  `json:"id,omitempty"`
	Status     int                      `json:"status,omitempty"`
	Result     json.RawMessage          `json:"result,omitempty"`
	Error      *apiError                `json:"error,omitempty"`
	RateLimits []common.RateLimitStatus `json:"rateLimits,omitempty"`
	Stream     string                   `json:"stream,omitempty"`
	Data       json.RawMessage          `json:"data,omitempty"`
}

type apiError struct {
	Code int64  `json:"code"`
	Msg  string `json:"msg"`
}

// StreamHandler consumes push updates for a subscribed stream. Handlers run on
// the read loop; a panicking handler is recovered and logged so it cannot break
// correlation for other messages.
type StreamHandler func(stream string, data json.RawMessage)

// orderAck is the venue's order response shape shared by place/cancel/status.
type orderAck struct {
	Symbol              string `json:"symbol"`
	OrderID             int64  `json:"orderId"`
	ClientOrderID       string `json:"clientOrderId"`
	OrigClientOrderID   string `json:"origClientOrderId"`
	Price               string `json:"price"`
	OrigQty             string `json:"origQty"`
	ExecutedQty         string `json:"executedQty"`
	CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
	Status              string `json:"status"`
	Type                string `json:"type"`
	Side                string `json:"side"`
	TransactTime        int64  `json:"transactTime"`
}

// Kline is one candle from the klines request.
type Kline struct {
	OpenTime  int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime int64
}
