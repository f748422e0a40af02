// Package db is the SQLite-backed audit trail for orders, positions, and
// strategy activity. It is written on the hot path but only ever read by the
// dashboard, so failures here are logged and never abort trading.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// UpsertOrder inserts or refreshes an order audit row.
func (d *Database) UpsertOrder(ctx context.Context, o OrderRecord) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO orders (
			client_id, exchange_order_id, symbol, side, order_type,
			price, qty, executed_qty, status, ambiguous
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(client_id) DO UPDATE SET
			exchange_order_id = excluded.exchange_order_id,
			executed_qty = excluded.executed_qty,
			status = excluded.status,
			ambiguous = excluded.ambiguous,
			updated_at = CURRENT_TIMESTAMP
	`, o.ClientID, o.ExchangeOrderID, o.Symbol, o.Side, o.OrderType,
		o.Price, o.Qty, o.ExecutedQty, o.Status, boolToInt(o.Ambiguous))
	return err
}

// GetOrder returns the audit row for a client order id.
func (d *Database) GetOrder(ctx context.Context, clientID string) (*OrderRecord, error) {
	var o OrderRecord
	var ambiguous int
	err := d.DB.QueryRowContext(ctx, `
		SELECT client_id, exchange_order_id, symbol, side, order_type,
		       price, qty, executed_qty, status, ambiguous, created_at, updated_at
		FROM orders WHERE client_id = ?
	`, clientID).Scan(&o.ClientID, &o.ExchangeOrderID, &o.Symbol, &o.Side, &o.OrderType,
		&o.Price, &o.Qty, &o.ExecutedQty, &o.Status, &ambiguous, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	o.Ambiguous = ambiguous != 0
	return &o, nil
}

// ListRecentOrders returns the newest orders, optionally filtered by symbol.
func (d *Database) ListRecentOrders(ctx context.Context, symbol string, limit int) ([]OrderRecord, error) {
	query := `
		SELECT client_id, exchange_order_id, symbol, side, order_type,
		       price, qty, executed_qty, status, ambiguous, created_at, updated_at
		FROM orders`
	args := []any{}
	if symbol != "" {
		query += ` WHERE symbol = ?`
		args = append(args, symbol)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := d.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var out []OrderRecord
	for rows.Next() {
		var o OrderRecord
		var ambiguous int
		if err := rows.Scan(&o.ClientID, &o.ExchangeOrderID, &o.Symbol, &o.Side, &o.OrderType,
			&o.Price, &o.Qty, &o.ExecutedQty, &o.Status, &ambiguous, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.Ambiguous = ambiguous != 0
		out = append(out, o)
	}
	return out, rows.Err()
}

// UpsertPosition inserts or refreshes a position audit row.
func (d *Database) UpsertPosition(ctx context.Context, p PositionRecord) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO positions (
			id, symbol, side, entry_price, qty, stop_loss, take_profit, status, close_price, closed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			qty = excluded.qty,
			stop_loss = excluded.stop_loss,
			take_profit = excluded.take_profit,
			status = excluded.status,
			close_price = excluded.close_price,
			closed_at = excluded.closed_at
	`, p.ID, p.Symbol, p.Side, p.EntryPrice, p.Qty, p.StopLoss, p.TakeProfit,
		p.Status, p.ClosePrice, p.ClosedAt)
	return err
}

// ListPositions returns positions, newest first; pass status "" for all.
func (d *Database) ListPositions(ctx context.Context, status string, limit int) ([]PositionRecord, error) {
	query := `
		SELECT id, symbol, side, entry_price, qty, stop_loss, take_profit,
		       status, close_price, opened_at, closed_at
		FROM positions`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY opened_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := d.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	var out []PositionRecord
	for rows.Next() {
		var p PositionRecord
		if err := rows.Scan(&p.ID, &p.Symbol, &p.Side, &p.EntryPrice, &p.Qty, &p.StopLoss,
			&p.TakeProfit, &p.Status, &p.ClosePrice, &p.OpenedAt, &p.ClosedAt); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SaveAnalysis appends a market analysis row.
func (d *Database) SaveAnalysis(ctx context.Context, a AnalysisRecord) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO analyses (symbol, trend, summary, confidence)
		VALUES (?, ?, ?, ?)
	`, a.Symbol, a.Trend, a.Summary, a.Confidence)
	return err
}

// SaveDecision appends a trade decision row.
func (d *Database) SaveDecision(ctx context.Context, dec DecisionRecord) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO decisions (symbol, action, qty, price, reason, accepted)
		VALUES (?, ?, ?, ?, ?, ?)
	`, dec.Symbol, dec.Action, dec.Qty, dec.Price, dec.Reason, boolToInt(dec.Accepted))
	return err
}

// SaveRejection appends a risk rejection row; rules is a comma-joined list.
func (d *Database) SaveRejection(ctx context.Context, r RejectionRecord) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO risk_rejections (symbol, rules) VALUES (?, ?)
	`, r.Symbol, r.Rules)
	return err
}

// ListRecentDecisions returns the newest decisions across all symbols.
func (d *Database) ListRecentDecisions(ctx context.Context, limit int) ([]DecisionRecord, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, symbol, action, qty, price, reason, accepted, created_at
		FROM decisions ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var out []DecisionRecord
	for rows.Next() {
		var dec DecisionRecord
		var accepted int
		if err := rows.Scan(&dec.ID, &dec.Symbol, &dec.Action, &dec.Qty, &dec.Price,
			&dec.Reason, &accepted, &dec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		dec.Accepted = accepted != 0
		out = append(out, dec)
	}
	return out, rows.Err()
}

// CountDecisionsSince counts accepted decisions created at or after the given
// time, used to rebuild the daily trade counter after a restart.
func (d *Database) CountDecisionsSince(ctx context.Context, since string) (int, error) {
	var n int
	err := d.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM decisions WHERE accepted = 1 AND created_at >= ?
	`, since).Scan(&n)
	return n, err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
