package wsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"autotrader/pkg/exchanges/common"
)

// Typed wrappers over Do for the venue methods the trader uses. Quantities and
// prices go on the wire as decimal strings so the signed payload matches the
// transmitted JSON exactly.

// ServerTime fetches the venue clock in milliseconds.
func (c *Client) ServerTime(ctx context.Context) (int64, error) {
	raw, err := c.Do(ctx, "time", nil, false)
	if err != nil {
		return 0, err
	}
	var res struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return 0, fmt.Errorf("decode server time: %w", err)
	}
	return res.ServerTime, nil
}

// ExchangeInfo returns the raw exchange metadata for the given symbols.
func (c *Client) ExchangeInfo(ctx context.Context, symbols []string) (json.RawMessage, error) {
	params := map[string]any{}
	if len(symbols) == 1 {
		params["symbol"] = symbols[0]
	} else if len(symbols) > 1 {
		params["symbols"] = symbols
	}
	return c.Do(ctx, "exchangeInfo", params, false)
}

// TickerPrice fetches the last trade price for a symbol.
func (c *Client) TickerPrice(ctx context.Context, symbol string) (float64, error) {
	raw, err := c.Do(ctx, "ticker.price", map[string]any{"symbol": symbol}, false)
	if err != nil {
		return 0, err
	}
	var res struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return 0, fmt.Errorf("decode ticker price: %w", err)
	}
	return strconv.ParseFloat(res.Price, 64)
}

// LastPrice satisfies common.Pricer.
func (c *Client) LastPrice(ctx context.Context, symbol string) (float64, error) {
	return c.TickerPrice(ctx, symbol)
}

// Klines fetches recent candles for a symbol.
func (c *Client) Klines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	params := map[string]any{"symbol": symbol, "interval": interval}
	if limit > 0 {
		params["limit"] = limit
	}
	raw, err := c.Do(ctx, "klines", params, false)
	if err != nil {
		return nil, err
	}

	var rows [][]any
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode klines: %w", err)
	}
	out := make([]Kline, 0, len(rows))
	for _, r := range rows {
		if len(r) < 7 {
			continue
		}
		out = append(out, Kline{
			OpenTime:  toInt64(r[0]),
			Open:      toFloat(r[1]),
			High:      toFloat(r[2]),
			Low:       toFloat(r[3]),
			Close:     toFloat(r[4]),
			Volume:    toFloat(r[5]),
			CloseTime: toInt64(r[6]),
		})
	}
	return out, nil
}

// AccountStatus fetches balances, permissions, and commission rates. Privileged.
func (c *Client) AccountStatus(ctx context.Context) (*common.AccountSnapshot, error) {
	raw, err := c.Do(ctx, "account.status", nil, true)
	if err != nil {
		return nil, err
	}

	var res struct {
		MakerCommission int64 `json:"makerCommission"`
		TakerCommission int64 `json:"takerCommission"`
		Balances        []struct {
			Asset  string `json:"asset"`
			Free   string `json:"free"`
			Locked string `json:"locked"`
		} `json:"balances"`
		Permissions []string `json:"permissions"`
		UpdateTime  int64    `json:"updateTime"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decode account status: %w", err)
	}

	snap := &common.AccountSnapshot{
		Balances:        make(map[string]common.Balance, len(res.Balances)),
		Permissions:     res.Permissions,
		MakerCommission: float64(res.MakerCommission) / 10000,
		TakerCommission: float64(res.TakerCommission) / 10000,
		UpdateTime:      res.UpdateTime,
	}
	for _, b := range res.Balances {
		free, _ := strconv.ParseFloat(b.Free, 64)
		locked, _ := strconv.ParseFloat(b.Locked, 64)
		if free == 0 && locked == 0 {
			continue
		}
		snap.Balances[b.Asset] = common.Balance{Asset: b.Asset, Free: free, Locked: locked}
	}
	return snap, nil
}

// PlaceOrder submits an order. Privileged.
func (c *Client) PlaceOrder(ctx context.Context, req common.OrderRequest) (common.OrderResult, error) {
	params := map[string]any{
		"symbol":   req.Symbol,
		"side":     string(req.Side),
		"type":     string(req.Type),
		"quantity": formatQty(req.Qty),
	}
	switch req.Type {
	case common.OrderTypeLimit:
		params["price"] = formatQty(req.Price)
		params["timeInForce"] = string(tifOrDefault(req.TimeInForce))
	case common.OrderTypeStopLossLimit:
		params["price"] = formatQty(req.Price)
		params["stopPrice"] = formatQty(req.StopPrice)
		params["timeInForce"] = string(tifOrDefault(req.TimeInForce))
	}
	if req.ClientID != "" {
		params["newClientOrderId"] = req.ClientID
	}

	raw, err := c.Do(ctx, "order.place", params, true)
	if err != nil {
		return common.OrderResult{}, err
	}
	return decodeAck(raw)
}

// CancelOrder cancels an open order by venue id. Privileged.
func (c *Client) CancelOrder(ctx context.Context, symbol string, exchangeOrderID int64) (common.OrderResult, error) {
	raw, err := c.Do(ctx, "order.cancel", map[string]any{
		"symbol":  symbol,
		"orderId": exchangeOrderID,
	}, true)
	if err != nil {
		return common.OrderResult{}, err
	}
	return decodeAck(raw)
}

// QueryOrder fetches authoritative order state; this is the idempotent query
// that resolves an UNKNOWN outcome after a timeout. Privileged.
func (c *Client) QueryOrder(ctx context.Context, symbol string, exchangeOrderID int64, clientID string) (common.OrderResult, error) {
	params := map[string]any{"symbol": symbol}
	if exchangeOrderID > 0 {
		params["orderId"] = exchangeOrderID
	} else if clientID != "" {
		params["origClientOrderId"] = clientID
	} else {
		return common.OrderResult{}, common.NewValidationError("query order: need orderId or origClientOrderId")
	}

	raw, err := c.Do(ctx, "order.status", params, true)
	if err != nil {
		return common.OrderResult{}, err
	}
	return decodeAck(raw)
}

// OpenOrders lists currently open orders; empty symbol means all. Privileged.
func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]common.OrderResult, error) {
	params := map[string]any{}
	if symbol != "" {
		params["symbol"] = symbol
	}
	raw, err := c.Do(ctx, "openOrders.status", params, true)
	if err != nil {
		return nil, err
	}

	var acks []orderAck
	if err := json.Unmarshal(raw, &acks); err != nil {
		return nil, fmt.Errorf("decode open orders: %w", err)
	}
	out := make([]common.OrderResult, 0, len(acks))
	for _, a := range acks {
		out = append(out, ackToResult(a))
	}
	return out, nil
}

func decodeAck(raw json.RawMessage) (common.OrderResult, error) {
	var a orderAck
	if err := json.Unmarshal(raw, &a); err != nil {
		return common.OrderResult{}, fmt.Errorf("decode order ack: %w", err)
	}
	return ackToResult(a), nil
}

func ackToResult(a orderAck) common.OrderResult {
	price, _ := strconv.ParseFloat(a.Price, 64)
	executed, _ := strconv.ParseFloat(a.ExecutedQty, 64)
	clientID := a.ClientOrderID
	if clientID == "" {
		clientID = a.OrigClientOrderID
	}
	return common.OrderResult{
		ExchangeOrderID: a.OrderID,
		ClientID:        clientID,
		Symbol:          a.Symbol,
		Side:            common.Side(a.Side),
		Status:          mapStatus(a.Status),
		Price:           price,
		ExecutedQty:     executed,
		TransactTime:    a.TransactTime,
	}
}

func mapStatus(s string) common.OrderStatus {
	switch strings.ToUpper(s) {
	case "NEW":
		return common.StatusNew
	case "PARTIALLY_FILLED":
		return common.StatusPartially
	case "FILLED":
		return common.StatusFilled
	case "CANCELED", "PENDING_CANCEL":
		return common.StatusCanceled
	case "REJECTED":
		return common.StatusRejected
	case "EXPIRED", "EXPIRED_IN_MATCH":
		return common.StatusExpired
	default:
		return common.StatusUnknown
	}
}

func tifOrDefault(tif common.TimeInForce) common.TimeInForce {
	if tif == "" {
		return common.TIFGTC
	}
	return tif
}

func formatQty(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	}
	return 0
}

func toInt64(v any) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	}
	return 0
}
