package backtest

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
)

func TestSummarize_EquityMode(t *testing.T) {
	m := Summarize([]float64{100, 110, 99, 99}, 365)

	if m.Mode != ModeEquity {
		t.Errorf("Mode = %s, want equity", m.Mode)
	}
	// Non-zero bar returns: +10%, -10%
	if m.TradeCount != 2 {
		t.Errorf("TradeCount = %d, want 2", m.TradeCount)
	}
	if m.WinRate != 0.5 {
		t.Errorf("WinRate = %v, want 0.5", m.WinRate)
	}
	if math.Abs(m.TotalReturn-(-0.01)) > 1e-12 {
		t.Errorf("TotalReturn = %v, want -0.01", m.TotalReturn)
	}
	if m.ProfitFactor != 0 {
		t.Errorf("ProfitFactor = %v, want 0 in equity mode", m.ProfitFactor)
	}
}

func TestSummarize_Empty(t *testing.T) {
	m := Summarize(nil, 365)
	if m.TotalReturn != 0 || m.Sharpe != 0 || m.MaxDrawdown != 0 || m.TradeCount != 0 {
		t.Errorf("expected zero metrics, got %+v", m)
	}
}

func TestSharpe(t *testing.T) {
	equity := []float64{100, 110, 104.5}
	// returns 0, 0.1, -0.05
	mean := 0.05 / 3
	sd := math.Sqrt((math.Pow(0-mean, 2) + math.Pow(0.1-mean, 2) + math.Pow(-0.05-mean, 2)) / 2)
	want := mean / sd * math.Sqrt(365)

	m := Summarize(equity, 365)
	if math.Abs(m.Sharpe-want) > 1e-9 {
		t.Errorf("Sharpe = %v, want %v", m.Sharpe, want)
	}
}

func TestSharpe_ZeroVariance(t *testing.T) {
	tests := [][]float64{
		{100, 100, 100, 100},
		{100},
		{100, 100},
	}
	for _, equity := range tests {
		if got := Summarize(equity, 525600).Sharpe; got != 0 {
			t.Errorf("Sharpe(%v) = %v, want 0", equity, got)
		}
	}
}

func TestMaxDrawdown(t *testing.T) {
	tests := []struct {
		name   string
		equity []float64
		want   float64
	}{
		{"peak to trough", []float64{100, 120, 90, 130}, -0.25},
		{"non-decreasing", []float64{100, 100, 101, 150}, 0},
		{"wiped out", []float64{100, 50, 0}, -1},
		{"empty", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := maxDrawdown(tt.equity)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("maxDrawdown = %v, want %v", got, tt.want)
			}
			if got < -1 || got > 0 {
				t.Errorf("maxDrawdown %v outside [-1, 0]", got)
			}
		})
	}
}

func TestAnnualizedReturn(t *testing.T) {
	tests := []struct {
		name   string
		equity []float64
		bpy    float64
		want   float64
	}{
		{"one year of two bars", []float64{100, 121}, 1, 0.21},
		{"one year of three bars", []float64{100, 110, 121}, 2, 0.21},
		{"half a year", []float64{100, 110}, 2, 0.21},
		{"too short", []float64{100}, 365, 0},
		{"no annualization factor", []float64{100, 121}, 0, 0},
		{"wiped out", []float64{100, 0}, 365, -1},
		{"overflow is capped", []float64{1, 1e10}, 525600, math.MaxFloat64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := annualizedReturn(tt.equity, tt.bpy)
			if math.IsInf(got, 0) || math.IsNaN(got) {
				t.Fatalf("annualizedReturn must be finite, got %v", got)
			}
			if math.Abs(got-tt.want) > 1e-9 && got != tt.want {
				t.Errorf("annualizedReturn = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSummarizeTrades_ProfitFactor(t *testing.T) {
	equity := []float64{100, 101}
	tests := []struct {
		name    string
		returns []float64
		want    float64
		winRate float64
	}{
		{"no trades", nil, 0, 0},
		{"no losers", []float64{0.1, 0.2}, 0.3, 1},
		{"mixed", []float64{0.1, -0.05, 0.2, -0.05}, 3, 0.5},
		{"all losers", []float64{-0.1, -0.2}, 0, 0},
		{"flat trade is not a win", []float64{0, 0.1}, 0.1, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trades := make([]Trade, len(tt.returns))
			for i, r := range tt.returns {
				trades[i] = Trade{Return: r}
			}
			m := SummarizeTrades(equity, trades, 365)
			if m.Mode != ModeTrades {
				t.Errorf("Mode = %s, want trades", m.Mode)
			}
			if math.Abs(m.ProfitFactor-tt.want) > 1e-12 {
				t.Errorf("ProfitFactor = %v, want %v", m.ProfitFactor, tt.want)
			}
			if math.Abs(m.WinRate-tt.winRate) > 1e-12 {
				t.Errorf("WinRate = %v, want %v", m.WinRate, tt.winRate)
			}
			if m.TradeCount != len(tt.returns) {
				t.Errorf("TradeCount = %d, want %d", m.TradeCount, len(tt.returns))
			}
		})
	}
}

func TestSummarize_EquityModeOverCounts(t *testing.T) {
	// One round trip held for three bars shows up as three active bars.
	equity := []float64{100, 101, 102, 103, 103}
	trades := []Trade{{Return: 0.03}}

	eq := Summarize(equity, 365)
	tl := SummarizeTrades(equity, trades, 365)
	if eq.TradeCount != 3 {
		t.Errorf("equity-mode TradeCount = %d, want 3", eq.TradeCount)
	}
	if tl.TradeCount != 1 {
		t.Errorf("trade-log TradeCount = %d, want 1", tl.TradeCount)
	}
	if eq.TotalReturn != tl.TotalReturn || eq.Sharpe != tl.Sharpe {
		t.Error("curve statistics must agree across modes")
	}
}

func TestMetrics_NonPositiveBarsPerYear(t *testing.T) {
	m := Summarize([]float64{100, 110, 99}, 0)
	if m.Sharpe != 0 || m.AnnualizedReturn != 0 {
		t.Errorf("expected Sharpe and annualized 0, got %v %v", m.Sharpe, m.AnnualizedReturn)
	}
	if m.TotalReturn == 0 {
		t.Error("total return does not depend on bars per year")
	}
}

func TestMetrics_NaNEquityIgnored(t *testing.T) {
	m := Summarize([]float64{100, math.NaN(), 110}, 365)
	for name, v := range map[string]float64{
		"total":  m.TotalReturn,
		"annual": m.AnnualizedReturn,
		"sharpe": m.Sharpe,
		"dd":     m.MaxDrawdown,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Errorf("%s = %v, want finite", name, v)
		}
	}
}

func TestMetrics_MarshalJSON(t *testing.T) {
	eq, err := json.Marshal(Metrics{Mode: ModeEquity, TotalReturn: 0.1})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(eq), "profit_factor") {
		t.Errorf("equity-only metrics must omit profit_factor: %s", eq)
	}
	if !strings.Contains(string(eq), `"total_return":0.1`) {
		t.Errorf("missing total_return: %s", eq)
	}

	tl, _ := json.Marshal(Metrics{Mode: ModeTrades})
	if !strings.Contains(string(tl), `"profit_factor":0`) {
		t.Errorf("trade-log metrics must report profit_factor: %s", tl)
	}
}
