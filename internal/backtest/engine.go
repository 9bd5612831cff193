package backtest

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/newthinker/quantlab/internal/core"
)

// Simulate replays entry/exit signals against closing prices.
//
// The position is either flat or fully long. On each bar an exit is checked
// before an entry, so a bar carrying both while long only closes the position.
// Fee and slippage are charged once, on exit, as a haircut on the round-trip
// return. A position still open on the last bar is reported in Open and not
// added to the trade log.
func Simulate(prices core.Series, signals core.Signals, cfg Config) (*Simulation, error) {
	if err := validate(prices, signals, cfg); err != nil {
		return nil, err
	}

	n := prices.Len()
	sim := &Simulation{
		Times:  slices.Clone(prices.Times),
		Equity: make([]float64, n),
		Trades: make([]Trade, 0),
	}

	cost := cfg.Fee + cfg.Slippage
	cash := cfg.InitialCash
	long := false
	var entryPrice float64
	var entryDate time.Time

	for i := 0; i < n; i++ {
		p := prices.Values[i]
		t := prices.Times[i]

		switch {
		case long && signals.ExitAt(i):
			pnl := (p - entryPrice) / entryPrice
			net := (1+pnl)*(1-cost) - 1
			cash *= 1 + net
			sim.Trades = append(sim.Trades, Trade{
				EntryDate:  entryDate,
				ExitDate:   t,
				EntryPrice: entryPrice,
				ExitPrice:  p,
				Return:     net,
			})
			long = false
		case !long && signals.EntryAt(i):
			entryPrice = p
			entryDate = t
			long = true
		}

		if long {
			sim.Equity[i] = cash * (p / entryPrice)
		} else {
			sim.Equity[i] = cash
		}
	}

	if long {
		last := prices.Values[n-1]
		sim.Open = &OpenPosition{
			EntryDate:  entryDate,
			EntryPrice: entryPrice,
			MarkPrice:  last,
			Unrealized: (last - entryPrice) / entryPrice,
		}
	}
	return sim, nil
}

func validate(prices core.Series, signals core.Signals, cfg Config) error {
	switch {
	case math.IsNaN(cfg.Fee) || cfg.Fee < 0:
		return precondition("fee must be a non-negative fraction, got %v", cfg.Fee)
	case math.IsNaN(cfg.Slippage) || cfg.Slippage < 0:
		return precondition("slippage must be a non-negative fraction, got %v", cfg.Slippage)
	case cfg.Fee+cfg.Slippage >= 1:
		return precondition("fee plus slippage must be below 1, got %v", cfg.Fee+cfg.Slippage)
	case math.IsNaN(cfg.InitialCash) || math.IsInf(cfg.InitialCash, 0) || cfg.InitialCash <= 0:
		return precondition("initial cash must be positive, got %v", cfg.InitialCash)
	}

	n := prices.Len()
	if n == 0 {
		return precondition("price series is empty")
	}
	if len(prices.Times) != n {
		return precondition("price series has %d values but %d timestamps", n, len(prices.Times))
	}
	for i, p := range prices.Values {
		if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
			return precondition("price at bar %d must be positive and finite, got %v", i, p)
		}
		if i > 0 && !prices.Times[i].After(prices.Times[i-1]) {
			return core.WrapError(core.ErrIndexNotTemporal,
				fmt.Errorf("bar %d at %s does not follow %s", i,
					prices.Times[i].Format(time.RFC3339), prices.Times[i-1].Format(time.RFC3339)))
		}
	}

	if signals.Times != nil {
		if len(signals.Times) != n {
			return misaligned("signal index has %d bars, prices have %d", len(signals.Times), n)
		}
		for i := range signals.Times {
			if !signals.Times[i].Equal(prices.Times[i]) {
				return misaligned("signal index differs from prices at bar %d", i)
			}
		}
	}
	if signals.Entries != nil && len(signals.Entries) != n {
		return misaligned("entries has %d values, prices have %d", len(signals.Entries), n)
	}
	if signals.Exits != nil && len(signals.Exits) != n {
		return misaligned("exits has %d values, prices have %d", len(signals.Exits), n)
	}
	return nil
}

func precondition(format string, args ...any) error {
	return core.WrapError(core.ErrPrecondition, fmt.Errorf(format, args...))
}

func misaligned(format string, args ...any) error {
	return core.WrapError(core.ErrIndexMisaligned, fmt.Errorf(format, args...))
}
