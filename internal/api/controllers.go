package api

import (
	"net/http"
	"strconv"
	"time"

	"autotrader/internal/order"
	"autotrader/internal/risk"
	"autotrader/pkg/exchanges/common"

	"github.com/gin-gonic/gin"
)

type listOrdersQuery struct {
	Symbol string `form:"symbol"`
	Limit  int    `form:"limit"`
}

type listPositionsQuery struct {
	Status string `form:"status"`
	Limit  int    `form:"limit"`
}

type listDecisionsQuery struct {
	Limit int `form:"limit"`
}

func (q *listOrdersQuery) normalize() {
	if q.Limit <= 0 {
		q.Limit = 100
	}
	if q.Limit > 500 {
		q.Limit = 500
	}
}

func (q *listPositionsQuery) normalize() {
	if q.Limit <= 0 {
		q.Limit = 100
	}
	if q.Limit > 500 {
		q.Limit = 500
	}
}

func (q *listDecisionsQuery) normalize() {
	if q.Limit <= 0 {
		q.Limit = 50
	}
	if q.Limit > 200 {
		q.Limit = 200
	}
}

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"code":  code,
		"error": msg,
	})
}

// getStatus exposes connection health and runtime mode for the dashboard.
func (s *Server) getStatus(c *gin.Context) {
	resp := gin.H{
		"venue":       s.Meta.Venue,
		"testnet":     s.Meta.Testnet,
		"symbols":     s.Meta.Symbols,
		"version":     s.Meta.Version,
		"server_time": time.Now().UTC(),
	}
	if s.Venue != nil {
		used, limit, pct := s.Venue.RateLimitUsage()
		resp["connection"] = gin.H{
			"state":         s.Venue.State(),
			"pending":       s.Venue.PendingCount(),
			"rate_used":     used,
			"rate_limit":    limit,
			"rate_used_pct": pct,
		}
	}
	if s.Orders != nil {
		resp["reconciling"] = s.Orders.Reconciling()
	}
	if s.Gate != nil {
		resp["trades_today"] = s.Gate.TradesToday()
	}
	if s.Account != nil {
		resp["account_value_usdt"] = s.Account.TotalValueUSDT(c.Request.Context())
		resp["account_synced_at"] = s.Account.LastSync().UTC()
	}
	c.JSON(http.StatusOK, resp)
}

// getOrders returns recent orders from the audit trail.
func (s *Server) getOrders(c *gin.Context) {
	var q listOrdersQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_QUERY", "invalid query parameters")
		return
	}
	q.normalize()

	orders, err := s.DB.ListRecentOrders(c.Request.Context(), q.Symbol, q.Limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	c.Header("X-Result-Limit", strconv.Itoa(q.Limit))
	c.JSON(http.StatusOK, orders)
}

// getActiveOrders returns in-flight orders from the live tracker.
func (s *Server) getActiveOrders(c *gin.Context) {
	c.JSON(http.StatusOK, trackedList(s.Orders.Active()))
}

// getAmbiguousOrders returns orders whose venue-side state could not be
// confirmed. These need operator attention.
func (s *Server) getAmbiguousOrders(c *gin.Context) {
	c.JSON(http.StatusOK, trackedList(s.Orders.Ambiguous()))
}

func trackedList(orders []order.Tracked) []gin.H {
	out := make([]gin.H, 0, len(orders))
	for _, o := range orders {
		out = append(out, gin.H{
			"client_id":         o.ClientID,
			"exchange_order_id": o.ExchangeOrderID,
			"symbol":            o.Request.Symbol,
			"side":              o.Request.Side,
			"type":              o.Request.Type,
			"price":             o.Request.Price,
			"qty":               o.Request.Qty,
			"executed_qty":      o.ExecutedQty,
			"status":            o.Status,
			"ambiguous":         o.Ambiguous,
			"created_at":        o.CreatedAt,
			"updated_at":        o.UpdatedAt,
		})
	}
	return out
}

// getPositions returns positions, optionally filtered by status.
func (s *Server) getPositions(c *gin.Context) {
	var q listPositionsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_QUERY", "invalid query parameters")
		return
	}
	q.normalize()

	positions, err := s.DB.ListPositions(c.Request.Context(), q.Status, q.Limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, positions)
}

// getDecisions returns the recent strategy decision log.
func (s *Server) getDecisions(c *gin.Context) {
	var q listDecisionsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_QUERY", "invalid query parameters")
		return
	}
	q.normalize()

	decisions, err := s.DB.ListRecentDecisions(c.Request.Context(), q.Limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, decisions)
}

// getRisk returns the configured limits and their current usage.
func (s *Server) getRisk(c *gin.Context) {
	var limits risk.Limits
	tradesToday := 0
	if s.Gate != nil {
		limits = s.Gate.Limits()
		tradesToday = s.Gate.TradesToday()
	}

	resp := gin.H{
		"max_position_notional": limits.MaxPositionNotional,
		"max_exposure_pct":      limits.MaxExposurePct,
		"max_trades_per_day":    limits.MaxTradesPerDay,
		"trades_today":          tradesToday,
	}
	if s.Positions != nil {
		resp["open_exposure"] = s.Positions.OpenExposure()
		resp["open_positions"] = len(s.Positions.Active())
	}
	c.JSON(http.StatusOK, resp)
}

// cancelOrder cancels a tracked order by client id.
func (s *Server) cancelOrder(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "missing order id")
		return
	}

	tracked, err := s.Orders.Cancel(c.Request.Context(), id)
	if err != nil {
		switch {
		case common.IsKind(err, common.KindValidation):
			respondError(c, http.StatusBadRequest, "INVALID_CANCEL", err.Error())
		case common.IsKind(err, common.KindTimeout):
			respondError(c, http.StatusGatewayTimeout, "VENUE_TIMEOUT", err.Error())
		case common.IsKind(err, common.KindRemote):
			respondError(c, http.StatusBadGateway, "VENUE_REJECTED", err.Error())
		default:
			respondError(c, http.StatusInternalServerError, "CANCEL_FAILED", err.Error())
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"client_id": tracked.ClientID,
		"status":    tracked.Status,
	})
}

// triggerReconcile runs a reconciliation pass on demand.
func (s *Server) triggerReconcile(c *gin.Context) {
	if s.Orders.Reconciling() {
		respondError(c, http.StatusConflict, "RECONCILE_IN_PROGRESS", "reconciliation already running")
		return
	}
	if err := s.Orders.Reconcile(c.Request.Context()); err != nil {
		respondError(c, http.StatusBadGateway, "RECONCILE_FAILED", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "reconciled",
		"ambiguous": len(s.Orders.Ambiguous()),
	})
}
