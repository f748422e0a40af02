package db

import "time"

// OrderRecord is the audit row for a submitted order, keyed by the client
// order id so retries and reconciliation map onto the same row.
type OrderRecord struct {
	ClientID        string
	ExchangeOrderID int64
	Symbol          string
	Side            string
	OrderType       string
	Price           float64
	Qty             float64
	ExecutedQty     float64
	Status          string
	Ambiguous       bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// PositionRecord is the audit row for an opened position.
type PositionRecord struct {
	ID         string
	Symbol     string
	Side       string
	EntryPrice float64
	Qty        float64
	StopLoss   float64
	TakeProfit float64
	Status     string
	ClosePrice float64
	OpenedAt   time.Time
	ClosedAt   *time.Time
}

// AnalysisRecord stores a market analysis produced by the strategy oracle.
type AnalysisRecord struct {
	ID         int64
	Symbol     string
	Trend      string
	Summary    string
	Confidence float64
	CreatedAt  time.Time
}

// DecisionRecord stores a trade decision and whether risk checks accepted it.
type DecisionRecord struct {
	ID        int64
	Symbol    string
	Action    string
	Qty       float64
	Price     float64
	Reason    string
	Accepted  bool
	CreatedAt time.Time
}

// RejectionRecord stores a risk rejection with the rules that fired.
type RejectionRecord struct {
	ID        int64
	Symbol    string
	Rules     string
	CreatedAt time.Time
}
