package strategy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"autotrader/pkg/exchanges/binance/wsapi"
	"autotrader/pkg/exchanges/common"
)

// OpenAIOracle calls an OpenAI-compatible chat completions endpoint and asks
// for strict JSON answers. Any transport or parse failure surfaces as an
// error; the caller decides whether to fall back to a local oracle.
type OpenAIOracle struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	client      *http.Client
}

// NewOpenAIOracle creates an oracle against baseURL (e.g. the OpenAI API or a
// self-hosted compatible server).
func NewOpenAIOracle(baseURL, apiKey, model string) (*OpenAIOracle, error) {
	if apiKey == "" {
		return nil, common.NewConfigError("oracle api key is not set")
	}
	if model == "" {
		model = "gpt-4"
	}
	return &OpenAIOracle{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		model:       model,
		temperature: 0.7,
		maxTokens:   1000,
		client:      &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// AnalyzeMarket summarizes recent price action into a trend call.
func (o *OpenAIOracle) AnalyzeMarket(ctx context.Context, data MarketData) (Analysis, error) {
	prompt := fmt.Sprintf(
		"Analyze this market data and answer with JSON only, shaped as "+
			`{"trend":"BULLISH|BEARISH|SIDEWAYS","summary":"...","confidence":0.0}`+
			"\n\nSymbol: %s\nInterval: %s\nLast price: %v\nRecent closes: %v",
		data.Symbol, data.Interval, data.LastPrice, closes(data.Klines))

	var out Analysis
	if err := o.ask(ctx, "You are a professional cryptocurrency market analyst specialized in technical analysis.", prompt, &out); err != nil {
		return Analysis{}, err
	}
	out.Symbol = data.Symbol
	out.At = time.Now()
	return out, nil
}

// GenerateStrategy turns an analysis into a concrete trade plan.
func (o *OpenAIOracle) GenerateStrategy(ctx context.Context, analysis Analysis) (Plan, error) {
	prompt := fmt.Sprintf(
		"Given this analysis, propose a trade and answer with JSON only, shaped as "+
			`{"action":"BUY|SELL|HOLD","qty":0.0,"price":0.0,"stop_loss_pct":0.0,"take_profit_pct":0.0,"reason":"..."}`+
			"\n\nSymbol: %s\nTrend: %s\nConfidence: %.2f\nSummary: %s",
		analysis.Symbol, analysis.Trend, analysis.Confidence, analysis.Summary)

	var out Plan
	if err := o.ask(ctx, "You are a quantitative trading strategist who designs risk-controlled trades.", prompt, &out); err != nil {
		return Plan{}, err
	}
	out.Symbol = analysis.Symbol
	out.Action = strings.ToUpper(out.Action)
	return out, nil
}

// EvaluateRisk gives an advisory opinion on a plan against the portfolio.
func (o *OpenAIOracle) EvaluateRisk(ctx context.Context, plan Plan, portfolio Portfolio) (RiskAssessment, error) {
	planJSON, _ := json.Marshal(plan)
	portfolioJSON, _ := json.Marshal(portfolio)
	prompt := fmt.Sprintf(
		"Assess the risk of this trade plan and answer with JSON only, shaped as "+
			`{"acceptable":true,"score":0.0,"notes":"..."}`+
			"\n\nPlan: %s\nPortfolio: %s", planJSON, portfolioJSON)

	var out RiskAssessment
	if err := o.ask(ctx, "You are a risk management expert assessing trading strategies.", prompt, &out); err != nil {
		return RiskAssessment{}, err
	}
	return out, nil
}

// OptimizeParameters suggests tuned strategy parameters from history.
func (o *OpenAIOracle) OptimizeParameters(ctx context.Context, history []wsapi.Kline) (Parameters, error) {
	prompt := fmt.Sprintf(
		"Given these recent closing prices, suggest moving-average periods and answer with JSON only, shaped as "+
			`{"fast_period":10,"slow_period":30}`+"\n\nCloses: %v", closes(history))

	var out Parameters
	if err := o.ask(ctx, "You are a quantitative researcher tuning strategy parameters.", prompt, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ask performs one chat completion and decodes the JSON answer into out.
func (o *OpenAIOracle) ask(ctx context.Context, system, prompt string, out any) error {
	body, err := json.Marshal(chatRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		Temperature: o.temperature,
		MaxTokens:   o.maxTokens,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("oracle request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("oracle response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("oracle status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return fmt.Errorf("decode oracle response: %w", err)
	}
	if cr.Error != nil {
		return fmt.Errorf("oracle error: %s", cr.Error.Message)
	}
	if len(cr.Choices) == 0 {
		return fmt.Errorf("oracle returned no choices")
	}

	content := stripFences(cr.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("oracle answer is not valid JSON: %w", err)
	}
	return nil
}

// stripFences removes markdown code fences models often wrap JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
	}
	return strings.TrimSpace(s)
}

func closes(klines []wsapi.Kline) []float64 {
	out := make([]float64, 0, len(klines))
	for _, k := range klines {
		out = append(out, k.Close)
	}
	return out
}
