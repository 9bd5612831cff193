package ma_crossover

import (
	"testing"
	"time"

	"github.com/newthinker/quantlab/internal/core"
	"github.com/newthinker/quantlab/internal/strategy"
)

func series(prices ...float64) core.Series {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := core.Series{Values: prices, Times: make([]time.Time, len(prices))}
	for i := range prices {
		s.Times[i] = base.Add(time.Duration(i) * time.Hour)
	}
	return s
}

func TestMACrossover_ImplementsStrategy(t *testing.T) {
	var _ strategy.Strategy = (*MACrossover)(nil)
}

func TestMACrossover_Name(t *testing.T) {
	s := New(Params{Fast: 5, Slow: 10})
	if s.Name() != strategy.KindSMA {
		t.Errorf("expected 'sma', got '%s'", s.Name())
	}
}

func TestMACrossover_GoldenCross(t *testing.T) {
	s := New(Params{Fast: 2, Slow: 4})

	// Declining then a sharp recovery on the last bar:
	// prevFast = (85+80)/2 = 82.5 < prevSlow = (95+90+85+80)/4 = 87.5
	// currFast = (80+120)/2 = 100 > currSlow = (90+85+80+120)/4 = 93.75
	sig, err := s.Generate(series(100, 95, 90, 85, 80, 120))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sig.Entries) != 6 {
		t.Fatalf("expected 6 entry flags, got %d", len(sig.Entries))
	}
	if !sig.Entries[5] {
		t.Error("expected entry on the golden cross bar")
	}
	for i := 0; i < 5; i++ {
		if sig.Entries[i] {
			t.Errorf("unexpected entry at bar %d", i)
		}
	}
}

func TestMACrossover_DeathCross(t *testing.T) {
	s := New(Params{Fast: 2, Slow: 4})

	sig, err := s.Generate(series(80, 85, 90, 95, 100, 60))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sig.Exits[5] {
		t.Error("expected exit on the death cross bar")
	}
	if sig.Entries[5] {
		t.Error("no entry expected on a death cross")
	}
}

func TestMACrossover_NotEnoughData(t *testing.T) {
	s := New(DefaultParams())

	sig, err := s.Generate(series(1, 2, 3, 4, 5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range sig.Entries {
		if sig.Entries[i] || sig.Exits[i] {
			t.Errorf("no signals expected during warm-up, bar %d", i)
		}
	}
	if s.RequiredData().PriceHistory != 51 {
		t.Errorf("PriceHistory = %d, want 51", s.RequiredData().PriceHistory)
	}
}

func TestParams_Validate(t *testing.T) {
	tests := []struct {
		p       Params
		wantErr bool
	}{
		{Params{Fast: 10, Slow: 50}, false},
		{Params{Fast: 50, Slow: 50}, true},
		{Params{Fast: 0, Slow: 50}, true},
	}
	for _, tt := range tests {
		if err := tt.p.Validate(); (err != nil) != tt.wantErr {
			t.Errorf("Validate(%+v) error = %v, wantErr %v", tt.p, err, tt.wantErr)
		}
	}
}
