// internal/meta/advisor_test.go
package meta

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/newthinker/quantlab/internal/core"
	"github.com/newthinker/quantlab/internal/llm"
	"github.com/newthinker/quantlab/internal/storage/params"
	"github.com/newthinker/quantlab/internal/strategy"
)

type mockLLMProvider struct {
	response string
	err      error
	last     llm.ChatRequest
}

func (m *mockLLMProvider) Name() string { return "mock" }

func (m *mockLLMProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	m.last = req
	if m.err != nil {
		return nil, m.err
	}
	return &llm.ChatResponse{Content: m.response}, nil
}

type decisionCounter map[string]int

func (d decisionCounter) RecordDecision(decision string) { d[decision]++ }

func recentBars(n int) []core.Bar {
	base := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]core.Bar, n)
	for i := range bars {
		p := 100 + float64(i)
		bars[i] = core.Bar{Symbol: "BTCUSDT", Interval: "15m", Time: base.Add(time.Duration(i) * 15 * time.Minute),
			Open: p, High: p + 1, Low: p - 1, Close: p + 0.5, Volume: 3}
	}
	return bars
}

func TestParseDecision(t *testing.T) {
	tests := []struct {
		reply string
		want  core.Action
	}{
		{"BUY", core.ActionBuy},
		{"  sell\n", core.ActionSell},
		{"I would HOLD for now", core.ActionHold},
		{"Decision: buy. Reason: momentum", core.ActionBuy},
		{"BUYING is risky", core.ActionHold},
		{"", core.ActionHold},
		{"no idea", core.ActionHold},
	}
	for _, tt := range tests {
		if got := ParseDecision(tt.reply); got != tt.want {
			t.Errorf("ParseDecision(%q) = %s, want %s", tt.reply, got, tt.want)
		}
	}
}

func TestContextBars(t *testing.T) {
	tests := []struct {
		tf    string
		hours int
		want  int
	}{
		{"15m", 4, 16},
		{"1h", 4, 4},
		{"1d", 4, 1},
		{"1m", 1, 60},
	}
	for _, tt := range tests {
		if got := ContextBars(core.MustParseTimeframe(tt.tf), tt.hours); got != tt.want {
			t.Errorf("ContextBars(%s, %d) = %d, want %d", tt.tf, tt.hours, got, tt.want)
		}
	}
}

func TestAdvisor_Decide(t *testing.T) {
	ctx := context.Background()
	store := params.NewMemoryStore()
	store.Put(ctx, params.Key{Symbol: "BTCUSDT", Timeframe: "15m", Strategy: "sma"}, params.Record{
		Params:      map[string]any{"slow": 50, "fast": 10},
		Period:      "2022-09-01→2025-09-01",
		Performance: "12.35%",
	})
	store.Put(ctx, params.Key{Symbol: "BTCUSDT", Timeframe: "15m", Strategy: "rsi"}, params.Record{
		Params: map[string]any{"window": 14},
	})

	provider := &mockLLMProvider{response: "sell"}
	counter := decisionCounter{}
	advisor := NewAdvisor(provider, store, nil, AdvisorConfig{ContextHours: 1})
	advisor.SetRecorder(counter)

	decision, err := advisor.Decide(ctx, DecisionRequest{
		Symbol:    "BTCUSDT",
		Timeframe: core.MustParseTimeframe("15m"),
		Actions: map[strategy.Kind]core.Action{
			strategy.KindSMA:  core.ActionBuy,
			strategy.KindRSI:  core.ActionHold,
			strategy.KindMACD: core.ActionSell,
		},
		Recent: recentBars(10),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if decision.Action != core.ActionSell {
		t.Errorf("expected SELL, got %s", decision.Action)
	}
	if counter["SELL"] != 1 {
		t.Errorf("expected one recorded SELL, got %v", counter)
	}
	if provider.last.SystemPrompt != systemPrompt {
		t.Errorf("unexpected system prompt %q", provider.last.SystemPrompt)
	}

	prompt := decision.Prompt
	for _, want := range []string{
		"You are a trading assistant for BTCUSDT.",
		"SMA (best: fast=10, slow=50, perf=12.35%, period=2022-09-01→2025-09-01): BUY",
		"RSI (best: window=14) (incomplete record): HOLD",
		"MACD (no backtest record): SELL",
		"--- Last 1 hours OHLCV (15m bars) ---",
		"O:109.00 H:110.00 L:108.00 C:109.50 V:3.00",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
	// Only the last four 15m bars fit in one hour.
	if strings.Contains(prompt, "O:105.00") {
		t.Errorf("prompt should only include the last 4 bars:\n%s", prompt)
	}
	if strings.Contains(prompt, "Current Position") {
		t.Error("position section should be omitted when empty")
	}
}

func TestAdvisor_UnrecognizedReplyHolds(t *testing.T) {
	advisor := NewAdvisor(&mockLLMProvider{response: "It depends."}, nil, nil, AdvisorConfig{})

	decision, err := advisor.Decide(context.Background(), DecisionRequest{
		Symbol:    "ETHUSDT",
		Timeframe: core.MustParseTimeframe("1h"),
		Actions:   map[strategy.Kind]core.Action{strategy.KindBollinger: core.ActionHold},
		Position:  "USDT: 1000",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Action != core.ActionHold {
		t.Errorf("expected HOLD, got %s", decision.Action)
	}
	if !strings.Contains(decision.Prompt, "--- Current Position ---\nUSDT: 1000") {
		t.Errorf("expected position section:\n%s", decision.Prompt)
	}
}

func TestAdvisor_Errors(t *testing.T) {
	req := DecisionRequest{Symbol: "BTCUSDT", Timeframe: core.MustParseTimeframe("15m")}

	if _, err := NewAdvisor(nil, nil, nil, AdvisorConfig{}).Decide(context.Background(), req); !errors.Is(err, core.ErrConfigMissing) {
		t.Errorf("expected ErrConfigMissing without provider, got %v", err)
	}

	failing := &mockLLMProvider{err: core.WrapError(core.ErrLLMFailed, errors.New("timeout"))}
	if _, err := NewAdvisor(failing, nil, nil, AdvisorConfig{}).Decide(context.Background(), req); !errors.Is(err, core.ErrLLMFailed) {
		t.Errorf("expected ErrLLMFailed, got %v", err)
	}
}
