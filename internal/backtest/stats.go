package backtest

import (
	"encoding/json"
	"math"

	"github.com/montanaflynn/stats"
)

// Mode identifies how a Metrics record was derived.
type Mode string

const (
	// ModeEquity estimates trade statistics from per-bar equity changes.
	ModeEquity Mode = "equity"
	// ModeTrades uses the closed-trade log.
	ModeTrades Mode = "trades"
)

// Metrics holds performance statistics. All ratios are fractions, not percent.
type Metrics struct {
	Mode             Mode    `json:"mode"`
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	Sharpe           float64 `json:"sharpe"`
	MaxDrawdown      float64 `json:"max_drawdown"` // In [-1, 0]
	WinRate          float64 `json:"win_rate"`
	ProfitFactor     float64 `json:"profit_factor"` // Trade-log mode only
	TradeCount       int     `json:"trade_count"`
}

// MarshalJSON omits profit_factor for equity-only metrics.
func (m Metrics) MarshalJSON() ([]byte, error) {
	type plain Metrics
	out := struct {
		plain
		ProfitFactor *float64 `json:"profit_factor,omitempty"`
	}{plain: plain(m)}
	if m.Mode != ModeEquity {
		pf := m.ProfitFactor
		out.ProfitFactor = &pf
	}
	return json.Marshal(out)
}

// Summarize computes metrics from an equity curve alone.
//
// Win rate and trade count are estimated from non-zero per-bar returns, which
// over-counts relative to round-trip trades.
func Summarize(equity []float64, barsPerYear float64) Metrics {
	m := summarizeCurve(equity, barsPerYear)
	m.Mode = ModeEquity

	var active, wins int
	for _, r := range barReturns(equity) {
		if r == 0 {
			continue
		}
		active++
		if r > 0 {
			wins++
		}
	}
	m.TradeCount = active
	if active > 0 {
		m.WinRate = float64(wins) / float64(active)
	}
	return m
}

// SummarizeTrades computes metrics from an equity curve and its closed-trade log.
func SummarizeTrades(equity []float64, trades []Trade, barsPerYear float64) Metrics {
	m := summarizeCurve(equity, barsPerYear)
	m.Mode = ModeTrades
	m.TradeCount = len(trades)
	if len(trades) == 0 {
		return m
	}

	var wins int
	var gain, loss float64
	for _, t := range trades {
		r := t.Return
		if math.IsNaN(r) {
			continue
		}
		if t.IsWin() {
			wins++
		}
		if r > 0 {
			gain += r
		} else {
			loss += r
		}
	}
	m.WinRate = float64(wins) / float64(len(trades))

	loss = math.Abs(loss)
	if loss == 0 {
		loss = 1
	}
	m.ProfitFactor = finite(gain / loss)
	return m
}

func summarizeCurve(equity []float64, barsPerYear float64) Metrics {
	returns := barReturns(equity)
	return Metrics{
		TotalReturn:      totalReturn(equity),
		AnnualizedReturn: annualizedReturn(equity, barsPerYear),
		Sharpe:           sharpeRatio(returns, barsPerYear),
		MaxDrawdown:      maxDrawdown(equity),
	}
}

// barReturns returns the percentage change of each bar. The first bar and any
// undefined change count as 0.
func barReturns(equity []float64) []float64 {
	returns := make([]float64, len(equity))
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1]
		if prev == 0 || math.IsNaN(prev) || math.IsNaN(equity[i]) {
			continue
		}
		r := equity[i]/prev - 1
		if math.IsNaN(r) || math.IsInf(r, 0) {
			continue
		}
		returns[i] = r
	}
	return returns
}

func totalReturn(equity []float64) float64 {
	if len(equity) == 0 {
		return 0
	}
	first, last := equity[0], equity[len(equity)-1]
	if first <= 0 || math.IsNaN(first) || math.IsNaN(last) {
		return 0
	}
	return finite(last/first - 1)
}

// annualizedReturn compounds the total growth over the number of bar periods.
func annualizedReturn(equity []float64, barsPerYear float64) float64 {
	n := len(equity)
	if n < 2 || barsPerYear <= 0 {
		return 0
	}
	first, last := equity[0], equity[n-1]
	if first <= 0 || math.IsNaN(first) || math.IsNaN(last) {
		return 0
	}
	if last <= 0 {
		return -1
	}
	years := float64(n-1) / barsPerYear
	return finite(math.Pow(last/first, 1/years) - 1)
}

// sharpeRatio annualizes mean over sample standard deviation, risk-free rate 0.
func sharpeRatio(returns []float64, barsPerYear float64) float64 {
	if len(returns) < 2 || barsPerYear <= 0 {
		return 0
	}
	mean, err := stats.Mean(returns)
	if err != nil {
		return 0
	}
	sd, err := stats.StandardDeviationSample(returns)
	if err != nil || sd == 0 || math.IsNaN(sd) {
		return 0
	}
	return finite(mean / sd * math.Sqrt(barsPerYear))
}

// maxDrawdown returns the deepest decline from a running peak, in [-1, 0].
func maxDrawdown(equity []float64) float64 {
	var peak, worst float64
	for _, e := range equity {
		if math.IsNaN(e) {
			continue
		}
		if e > peak {
			peak = e
		}
		if peak <= 0 {
			continue
		}
		if dd := e/peak - 1; dd < worst {
			worst = dd
		}
	}
	return math.Max(worst, -1)
}

// finite maps NaN to 0 and caps infinities at the largest float.
func finite(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case math.IsInf(v, 1):
		return math.MaxFloat64
	case math.IsInf(v, -1):
		return -math.MaxFloat64
	}
	return v
}
