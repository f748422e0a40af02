package strategy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"autotrader/pkg/exchanges/binance/wsapi"
)

func klinesFrom(closes ...float64) []wsapi.Kline {
	out := make([]wsapi.Kline, len(closes))
	for i, c := range closes {
		out[i] = wsapi.Kline{Close: c}
	}
	return out
}

func TestMACrossAnalyzeTrend(t *testing.T) {
	o, err := NewMACrossOracle(2, 4, 1, 1, 0)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		closes []float64
		want   string
	}{
		{"uptrend", []float64{1, 2, 3, 4, 5, 6}, TrendBullish},
		{"downtrend", []float64{6, 5, 4, 3, 2, 1}, TrendBearish},
		{"too short", []float64{1, 2}, TrendSideways},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := o.AnalyzeMarket(context.Background(), MarketData{
				Symbol: "BTCUSDT", Klines: klinesFrom(tt.closes...),
			})
			if err != nil {
				t.Fatalf("AnalyzeMarket: %v", err)
			}
			if a.Trend != tt.want {
				t.Errorf("trend = %s, want %s", a.Trend, tt.want)
			}
		})
	}
}

func TestMACrossSignalsOnlyOnCross(t *testing.T) {
	o, err := NewMACrossOracle(2, 4, 0.5, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	// First bullish read establishes state without trading.
	plan, err := o.GenerateStrategy(ctx, Analysis{Symbol: "BTCUSDT", Trend: TrendBullish})
	if err != nil {
		t.Fatal(err)
	}
	if plan.Action != ActionHold {
		t.Errorf("first observation should HOLD, got %s", plan.Action)
	}

	// Steady trend: still no trade.
	plan, _ = o.GenerateStrategy(ctx, Analysis{Symbol: "BTCUSDT", Trend: TrendBullish})
	if plan.Action != ActionHold {
		t.Errorf("steady trend should HOLD, got %s", plan.Action)
	}

	// Death cross: SELL with the configured thresholds attached.
	plan, _ = o.GenerateStrategy(ctx, Analysis{Symbol: "BTCUSDT", Trend: TrendBearish})
	if plan.Action != ActionSell {
		t.Errorf("death cross should SELL, got %s", plan.Action)
	}
	if plan.Qty != 0.5 || plan.StopLossPct != 1 || plan.TakeProfitPct != 2 {
		t.Errorf("plan parameters not carried: %+v", plan)
	}

	// Golden cross back: BUY.
	plan, _ = o.GenerateStrategy(ctx, Analysis{Symbol: "BTCUSDT", Trend: TrendBullish})
	if plan.Action != ActionBuy {
		t.Errorf("golden cross should BUY, got %s", plan.Action)
	}

	// State is per symbol.
	plan, _ = o.GenerateStrategy(ctx, Analysis{Symbol: "ETHUSDT", Trend: TrendBearish})
	if plan.Action != ActionHold {
		t.Errorf("fresh symbol should HOLD, got %s", plan.Action)
	}
}

func TestMACrossEvaluateRisk(t *testing.T) {
	o, _ := NewMACrossOracle(2, 4, 1, 1, 0)
	ctx := context.Background()

	hold, _ := o.EvaluateRisk(ctx, Plan{Action: ActionHold}, Portfolio{})
	if !hold.Acceptable {
		t.Error("HOLD must always be acceptable")
	}

	risky, _ := o.EvaluateRisk(ctx, Plan{Action: ActionBuy, Qty: 1, Price: 900}, Portfolio{
		AccountValue: 1000, OpenExposure: 0,
	})
	if risky.Acceptable {
		t.Errorf("90%% exposure should not be acceptable: %+v", risky)
	}

	safe, _ := o.EvaluateRisk(ctx, Plan{Action: ActionBuy, Qty: 1, Price: 100}, Portfolio{
		AccountValue: 1000, OpenExposure: 0,
	})
	if !safe.Acceptable {
		t.Errorf("10%% exposure should be acceptable: %+v", safe)
	}
}

func TestMACrossOptimizeParameters(t *testing.T) {
	o, _ := NewMACrossOracle(10, 30, 1, 1, 0)

	closes := make([]float64, 120)
	for i := range closes {
		closes[i] = 100 + float64(i) // monotonic uptrend
	}
	params, err := o.OptimizeParameters(context.Background(), klinesFrom(closes...))
	if err != nil {
		t.Fatalf("OptimizeParameters: %v", err)
	}
	fast, slow := params["fast_period"], params["slow_period"]
	if fast <= 0 || slow <= fast {
		t.Errorf("invalid optimized periods: fast=%v slow=%v", fast, slow)
	}
}

func TestRSIAnalyzeZones(t *testing.T) {
	o, err := NewRSIOracle(3, 30, 70, 1, 1, 0)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		closes []float64
		want   string
	}{
		{"selloff", []float64{10, 9, 8, 7, 6}, TrendBullish},
		{"rally", []float64{6, 7, 8, 9, 10}, TrendBearish},
		{"choppy", []float64{10, 11, 10, 11, 10, 11}, TrendSideways},
		{"too short", []float64{10, 9}, TrendSideways},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := o.AnalyzeMarket(context.Background(), MarketData{
				Symbol: "BTCUSDT", Klines: klinesFrom(tt.closes...),
			})
			if err != nil {
				t.Fatalf("AnalyzeMarket: %v", err)
			}
			if a.Trend != tt.want {
				t.Errorf("trend = %s, want %s", a.Trend, tt.want)
			}
		})
	}
}

func TestRSISignalsOnZoneEntry(t *testing.T) {
	o, err := NewRSIOracle(14, 30, 70, 0.5, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	// Entering oversold trades immediately; the condition is absolute.
	plan, err := o.GenerateStrategy(ctx, Analysis{Symbol: "BTCUSDT", Trend: TrendBullish})
	if err != nil {
		t.Fatal(err)
	}
	if plan.Action != ActionBuy {
		t.Errorf("oversold entry should BUY, got %s", plan.Action)
	}
	if plan.Qty != 0.5 || plan.StopLossPct != 1 || plan.TakeProfitPct != 2 {
		t.Errorf("plan parameters not carried: %+v", plan)
	}

	// Staying oversold does not re-trade.
	plan, _ = o.GenerateStrategy(ctx, Analysis{Symbol: "BTCUSDT", Trend: TrendBullish})
	if plan.Action != ActionHold {
		t.Errorf("staying in zone should HOLD, got %s", plan.Action)
	}

	// Back to neutral, then oversold again: a fresh entry trades again.
	plan, _ = o.GenerateStrategy(ctx, Analysis{Symbol: "BTCUSDT", Trend: TrendSideways})
	if plan.Action != ActionHold {
		t.Errorf("neutral should HOLD, got %s", plan.Action)
	}
	plan, _ = o.GenerateStrategy(ctx, Analysis{Symbol: "BTCUSDT", Trend: TrendBullish})
	if plan.Action != ActionBuy {
		t.Errorf("re-entry should BUY, got %s", plan.Action)
	}

	// Overbought sells, and state is per symbol.
	plan, _ = o.GenerateStrategy(ctx, Analysis{Symbol: "ETHUSDT", Trend: TrendBearish})
	if plan.Action != ActionSell {
		t.Errorf("overbought entry should SELL, got %s", plan.Action)
	}
}

func TestRSIOptimizeParameters(t *testing.T) {
	o, _ := NewRSIOracle(14, 30, 70, 1, 1, 0)

	closes := make([]float64, 120)
	for i := range closes {
		closes[i] = 100 + 10*float64(i%7) // repeating swings
	}
	params, err := o.OptimizeParameters(context.Background(), klinesFrom(closes...))
	if err != nil {
		t.Fatalf("OptimizeParameters: %v", err)
	}
	if p := params["rsi_period"]; p != 7 && p != 14 && p != 21 {
		t.Errorf("rsi_period = %v, want one of the candidates", p)
	}
}

func oracleServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization = %q", got)
		}
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": content}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestOpenAIAnalyzeMarket(t *testing.T) {
	srv := oracleServer(t, `{"trend":"BULLISH","summary":"momentum building","confidence":0.8}`)
	defer srv.Close()

	o, err := NewOpenAIOracle(srv.URL, "test-key", "gpt-4")
	if err != nil {
		t.Fatal(err)
	}
	a, err := o.AnalyzeMarket(context.Background(), MarketData{
		Symbol: "BTCUSDT", Klines: klinesFrom(1, 2, 3), LastPrice: 3,
	})
	if err != nil {
		t.Fatalf("AnalyzeMarket: %v", err)
	}
	if a.Trend != TrendBullish || a.Confidence != 0.8 {
		t.Errorf("unexpected analysis: %+v", a)
	}
	if a.Symbol != "BTCUSDT" {
		t.Errorf("symbol = %s", a.Symbol)
	}
}

func TestOpenAIParsesFencedJSON(t *testing.T) {
	srv := oracleServer(t, "```json\n{\"action\":\"buy\",\"qty\":0.1,\"reason\":\"dip\"}\n```")
	defer srv.Close()

	o, _ := NewOpenAIOracle(srv.URL, "test-key", "gpt-4")
	plan, err := o.GenerateStrategy(context.Background(), Analysis{Symbol: "ETHUSDT", Trend: TrendBullish})
	if err != nil {
		t.Fatalf("GenerateStrategy: %v", err)
	}
	if plan.Action != ActionBuy {
		t.Errorf("action = %s, want BUY (normalized)", plan.Action)
	}
	if plan.Symbol != "ETHUSDT" {
		t.Errorf("symbol = %s", plan.Symbol)
	}
}

func TestOpenAIErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	o, _ := NewOpenAIOracle(srv.URL, "test-key", "gpt-4")
	if _, err := o.AnalyzeMarket(context.Background(), MarketData{Symbol: "BTCUSDT"}); err == nil {
		t.Fatal("expected error on non-200 status")
	}
}

func TestOpenAIRejectsNonJSONAnswer(t *testing.T) {
	srv := oracleServer(t, "I think the market looks good.")
	defer srv.Close()

	o, _ := NewOpenAIOracle(srv.URL, "test-key", "gpt-4")
	if _, err := o.AnalyzeMarket(context.Background(), MarketData{Symbol: "BTCUSDT"}); err == nil {
		t.Fatal("expected error for prose answer")
	}
}

func TestOpenAIRequiresKey(t *testing.T) {
	if _, err := NewOpenAIOracle("http://localhost", "", "gpt-4"); err == nil {
		t.Fatal("expected config error for missing key")
	}
}
