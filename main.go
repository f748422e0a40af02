package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"autotrader/internal/account"
	"autotrader/internal/api"
	"autotrader/internal/events"
	"autotrader/internal/market"
	"autotrader/internal/order"
	"autotrader/internal/position"
	"autotrader/internal/risk"
	"autotrader/internal/strategy"
	"autotrader/internal/trader"
	"autotrader/pkg/config"
	"autotrader/pkg/db"
	"autotrader/pkg/exchanges/binance/wsapi"
	"autotrader/pkg/exchanges/common"
)

const version = "1.0.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[main] config: %v", err)
	}
	if cfg.PairsFile != "" {
		pairs, err := config.LoadPairs(cfg.PairsFile)
		if err != nil {
			log.Fatalf("[main] pairs file: %v", err)
		}
		cfg.ApplyPairs(pairs)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[main] config: %v", err)
	}

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("[main] open database: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf("[main] migrations: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := events.NewBus()
	defer bus.Close()

	// Wire either the live venue or the paper one; everything downstream is
	// identical.
	var (
		client     *wsapi.Client
		venue      api.VenueStatus
		gateway    common.Gateway
		pricer     common.Pricer
		marketSrc  trader.MarketSource
		acctSource account.SnapshotSource
	)
	if cfg.DryRun {
		log.Printf("[main] DRY RUN: paper venue, %.2f USDT", cfg.PaperBalance)
		mock := &market.MockFeed{
			Bus:        bus,
			Symbols:    cfg.TradingPairs,
			StartPrice: 100,
			Interval:   time.Second,
		}
		mock.Start(ctx)

		paper := order.NewPaperGateway(mock, cfg.PaperBalance, 0.001, 5)
		gateway = paper
		pricer = mock
		marketSrc = mock
		acctSource = paper
	} else {
		client, err = wsapi.NewClient(wsapi.Config{
			URL:                  cfg.BinanceWSURL,
			APIKey:               cfg.BinanceAPIKey,
			APISecret:            cfg.BinanceAPISecret,
			RequestTimeout:       cfg.RequestTimeout,
			HeartbeatInterval:    cfg.HeartbeatInterval,
			ReconnectBaseDelay:   cfg.ReconnectBaseDelay,
			ReconnectMaxDelay:    cfg.ReconnectMaxDelay,
			MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		})
		if err != nil {
			log.Fatalf("[main] venue client: %v", err)
		}
		if err := client.Connect(ctx); err != nil {
			log.Fatalf("[main] venue connect: %v", err)
		}
		defer client.Close()
		client.StartTimeSync(ctx)

		feed := market.NewFeed(client, bus, cfg.TradingPairs)
		if err := feed.Start(ctx); err != nil {
			log.Fatalf("[main] market feed: %v", err)
		}

		venue = client
		gateway = client
		pricer = feed
		marketSrc = feed
		acctSource = client
	}

	acct := account.NewManager(acctSource, pricer, time.Minute)
	acct.Start(ctx)

	tracker := order.NewTracker(gateway, database, bus)
	if client != nil {
		client.OnReconnect(func(ctx context.Context) {
			if err := tracker.Reconcile(ctx); err != nil {
				log.Printf("[main] reconcile after reconnect: %v", err)
			}
		})
	}
	if err := tracker.Reconcile(ctx); err != nil {
		log.Printf("[main] startup reconcile: %v", err)
	}

	gate := risk.NewGate(risk.Limits{
		MaxPositionNotional: cfg.MaxPositionSize,
		MaxExposurePct:      cfg.RiskLimitPercentage,
		MaxTradesPerDay:     cfg.MaxTradesPerDay,
	})
	// Restore the daily counter after a restart, so the limit survives crashes.
	day := time.Now().UTC().Format("2006-01-02")
	if n, err := database.CountDecisionsSince(ctx, day); err != nil {
		log.Printf("[main] daily counter restore: %v", err)
	} else {
		gate.SeedDailyCount(day, n)
	}

	positions := position.NewStore(database, bus)
	monitor := position.NewMonitor(positions, pricer, tracker, cfg.MonitorTick)
	go monitor.Run(ctx)

	oracle := buildOracle(cfg)

	tr := trader.New(trader.Config{
		Symbols:       cfg.TradingPairs,
		Interval:      cfg.TradingInterval,
		DecisionEvery: cfg.DecisionEvery,
		StopLossPct:   cfg.StopLossPercentage,
		TakeProfitPct: cfg.TakeProfitPercentage,
	}, oracle, marketSrc, acct, gate, tracker, positions, database, bus)
	go tr.Run(ctx)

	server, err := api.NewServer(bus, database, venue, tracker, positions, gate, acct, api.SystemMeta{
		Venue:   "binance",
		Testnet: cfg.Testnet,
		Symbols: cfg.TradingPairs,
		Version: version,
	}, cfg.JWTSecret, cfg.APIPassword)
	if err != nil {
		log.Fatalf("[main] api server: %v", err)
	}

	httpServer := &http.Server{Addr: ":" + cfg.Port, Handler: server.Router}
	go func() {
		log.Printf("[main] api listening on :%s", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[main] api server: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Println("[main] shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[main] api shutdown: %v", err)
	}
	log.Println("[main] bye")
}

// buildOracle picks the strategy oracle: the remote one when a key is
// configured, the local crossover otherwise.
func buildOracle(cfg *config.Config) strategy.Oracle {
	if cfg.OracleAPIKey != "" {
		oracle, err := strategy.NewOpenAIOracle(cfg.OracleBaseURL, cfg.OracleAPIKey, cfg.OracleModel)
		if err == nil {
			log.Printf("[main] oracle: %s via %s", cfg.OracleModel, cfg.OracleBaseURL)
			return oracle
		}
		log.Printf("[main] remote oracle unavailable, falling back: %v", err)
	}

	var (
		oracle strategy.Oracle
		err    error
	)
	switch cfg.LocalStrategy {
	case "rsi":
		oracle, err = strategy.NewRSIOracle(14, 30, 70, cfg.OrderQty, cfg.StopLossPercentage, cfg.TakeProfitPercentage)
	default:
		oracle, err = strategy.NewMACrossOracle(10, 30, cfg.OrderQty, cfg.StopLossPercentage, cfg.TakeProfitPercentage)
	}
	if err != nil {
		log.Fatalf("[main] oracle: %v", err)
	}
	log.Printf("[main] oracle: local %s", cfg.LocalStrategy)
	return oracle
}
