package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"autotrader/pkg/exchanges/common"
)

// Config holds environment-driven settings for the trading core.
type Config struct {
	Port string

	// Binance ws-api
	BinanceAPIKey    string
	BinanceAPISecret string
	BinanceWSURL     string
	Testnet          bool

	// Connection behavior
	RequestTimeout       time.Duration
	HeartbeatInterval    time.Duration
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	MaxReconnectAttempts int

	// Risk management
	MaxPositionSize     float64 // USDT notional cap per order
	RiskLimitPercentage float64 // % of total account exposure
	StopLossPercentage  float64 // % adverse move that closes a position
	TakeProfitPercentage float64 // % favorable move that closes a position (0 disables)
	MaxTradesPerDay     int

	// Trading
	TradingPairs    []string
	TradingInterval string
	PairsFile       string // optional YAML with per-pair settings
	OrderQty        float64
	MonitorTick     time.Duration
	DecisionEvery   time.Duration

	// Dry run: simulate fills against a paper venue, no credentials needed
	DryRun       bool
	PaperBalance float64

	// Strategy oracle (OpenAI-compatible endpoint)
	OracleBaseURL string
	OracleAPIKey  string
	OracleModel   string
	LocalStrategy string // fallback oracle when no remote key: ma_cross or rsi

	// Persistence / API
	DBPath      string
	JWTSecret   string
	APIPassword string // operator login password; empty disables mutating routes
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	wsURL := getEnv("BINANCE_WS_URL", "")
	testnet := getEnv("BINANCE_TESTNET", "false") == "true"
	if wsURL == "" {
		wsURL = "wss://ws-api.binance.com:9443/ws-api/v3"
		if testnet {
			wsURL = "wss://ws-api.testnet.binance.vision/ws-api/v3"
		}
	}

	return &Config{
		Port:                 getEnv("PORT", "8080"),
		BinanceAPIKey:        os.Getenv("BINANCE_API_KEY"),
		BinanceAPISecret:     os.Getenv("BINANCE_API_SECRET"),
		BinanceWSURL:         wsURL,
		Testnet:              testnet,
		RequestTimeout:       getEnvDuration("REQUEST_TIMEOUT", 10*time.Second),
		HeartbeatInterval:    getEnvDuration("HEARTBEAT_INTERVAL", 20*time.Second),
		ReconnectBaseDelay:   getEnvDuration("RECONNECT_BASE_DELAY", time.Second),
		ReconnectMaxDelay:    getEnvDuration("RECONNECT_MAX_DELAY", 30*time.Second),
		MaxReconnectAttempts: getEnvInt("MAX_RECONNECT_ATTEMPTS", 10),
		MaxPositionSize:      getEnvFloat("MAX_POSITION_SIZE", 1000),
		RiskLimitPercentage:  getEnvFloat("RISK_LIMIT_PERCENTAGE", 2),
		StopLossPercentage:   getEnvFloat("STOP_LOSS_PERCENTAGE", 1),
		TakeProfitPercentage: getEnvFloat("TAKE_PROFIT_PERCENTAGE", 0),
		MaxTradesPerDay:      getEnvInt("MAX_TRADES_PER_DAY", 10),
		TradingPairs:         splitAndTrim(getEnv("TRADING_PAIRS", "BTCUSDT,ETHUSDT")),
		TradingInterval:      getEnv("TRADING_INTERVAL", "1m"),
		PairsFile:            getEnv("PAIRS_FILE", ""),
		OrderQty:             getEnvFloat("ORDER_QTY", 0.001),
		MonitorTick:          getEnvDuration("MONITOR_TICK", time.Second),
		DecisionEvery:        getEnvDuration("DECISION_INTERVAL", 5*time.Minute),
		DryRun:               getEnv("DRY_RUN", "false") == "true",
		PaperBalance:         getEnvFloat("PAPER_BALANCE", 10000),
		OracleBaseURL:        getEnv("ORACLE_BASE_URL", "https://api.openai.com/v1"),
		OracleAPIKey:         os.Getenv("OPENAI_API_KEY"),
		OracleModel:          getEnv("ORACLE_MODEL", "gpt-4"),
		LocalStrategy:        getEnv("LOCAL_STRATEGY", "ma_cross"),
		DBPath:               getEnv("DB_PATH", "./data/autotrader.db"),
		JWTSecret:            getEnv("JWT_SECRET", "dev-secret"),
		APIPassword:          os.Getenv("API_PASSWORD"),
	}, nil
}

// Validate fails fast at startup on missing credentials or malformed risk
// parameters, before any network activity.
func (c *Config) Validate() error {
	if !c.DryRun {
		if c.BinanceAPIKey == "" {
			return common.NewConfigError("BINANCE_API_KEY is not set")
		}
		if c.BinanceAPISecret == "" {
			return common.NewConfigError("BINANCE_API_SECRET is not set")
		}
	}
	if c.MaxPositionSize <= 0 {
		return common.NewConfigError(fmt.Sprintf("MAX_POSITION_SIZE must be positive, got %v", c.MaxPositionSize))
	}
	if c.RiskLimitPercentage <= 0 || c.RiskLimitPercentage > 100 {
		return common.NewConfigError(fmt.Sprintf("RISK_LIMIT_PERCENTAGE must be in (0, 100], got %v", c.RiskLimitPercentage))
	}
	if c.StopLossPercentage <= 0 || c.StopLossPercentage >= 100 {
		return common.NewConfigError(fmt.Sprintf("STOP_LOSS_PERCENTAGE must be in (0, 100), got %v", c.StopLossPercentage))
	}
	if c.TakeProfitPercentage < 0 {
		return common.NewConfigError(fmt.Sprintf("TAKE_PROFIT_PERCENTAGE must not be negative, got %v", c.TakeProfitPercentage))
	}
	if c.MaxTradesPerDay <= 0 {
		return common.NewConfigError(fmt.Sprintf("MAX_TRADES_PER_DAY must be positive, got %v", c.MaxTradesPerDay))
	}
	if len(c.TradingPairs) == 0 {
		return common.NewConfigError("TRADING_PAIRS is empty")
	}
	if c.LocalStrategy != "ma_cross" && c.LocalStrategy != "rsi" {
		return common.NewConfigError(fmt.Sprintf("LOCAL_STRATEGY must be ma_cross or rsi, got %q", c.LocalStrategy))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
