package api

import (
	"context"
	"net/http"
	"time"

	"autotrader/internal/events"
	"autotrader/internal/order"
	"autotrader/internal/position"
	"autotrader/internal/risk"
	"autotrader/pkg/db"
	"autotrader/pkg/exchanges/binance/wsapi"

	"github.com/gin-gonic/gin"
)

// VenueStatus exposes connection health for the status endpoint.
type VenueStatus interface {
	State() wsapi.State
	PendingCount() int
	RateLimitUsage() (used, limit int, pct float64)
}

// OrderDirectory is the tracker surface the API reads and drives.
type OrderDirectory interface {
	Active() []order.Tracked
	Ambiguous() []order.Tracked
	Cancel(ctx context.Context, clientID string) (*order.Tracked, error)
	Reconcile(ctx context.Context) error
	Reconciling() bool
}

// AccountView values the account for the status endpoint.
type AccountView interface {
	TotalValueUSDT(ctx context.Context) float64
	LastSync() time.Time
}

// Server wires the dashboard HTTP endpoints around the trading core.
type Server struct {
	Router    *gin.Engine
	Bus       *events.Bus
	DB        *db.Database
	Venue     VenueStatus
	Orders    OrderDirectory
	Positions *position.Store
	Gate      *risk.Gate
	Account   AccountView
	JWTSecret string
	Meta      SystemMeta

	passwordHash []byte
}

// SystemMeta describes runtime status exposed to the UI.
type SystemMeta struct {
	Venue   string
	Testnet bool
	Symbols []string
	Version string
}

func NewServer(bus *events.Bus, database *db.Database, venue VenueStatus, orders OrderDirectory,
	positions *position.Store, gate *risk.Gate, account AccountView, meta SystemMeta, jwtSecret, apiPassword string) (*Server, error) {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())                      // Panic recovery (first)
	r.Use(RequestIDMiddleware())               // Request ID tracking
	r.Use(RequestLogger())                     // Request logging (after ID is set)
	r.Use(RateLimitMiddleware())               // Rate limiting
	r.Use(TimeoutMiddleware(30 * time.Second)) // Request timeout (30s)
	r.Use(CORSMiddleware())                    // CORS (last before routes)

	s := &Server{
		Router:    r,
		Bus:       bus,
		DB:        database,
		Venue:     venue,
		Orders:    orders,
		Positions: positions,
		Gate:      gate,
		Account:   account,
		JWTSecret: jwtSecret,
		Meta:      meta,
	}
	if apiPassword != "" {
		hash, err := hashPassword(apiPassword)
		if err != nil {
			return nil, err
		}
		s.passwordHash = hash
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		api.POST("/auth/login", s.login)

		api.GET("/status", s.getStatus)
		api.GET("/orders", s.getOrders)
		api.GET("/orders/active", s.getActiveOrders)
		api.GET("/orders/ambiguous", s.getAmbiguousOrders)
		api.GET("/positions", s.getPositions)
		api.GET("/decisions", s.getDecisions)
		api.GET("/risk", s.getRisk)

		// Mutating routes require the operator token.
		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.POST("/orders/:id/cancel", s.cancelOrder)
			protected.POST("/reconcile", s.triggerReconcile)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
