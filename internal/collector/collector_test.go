package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/newthinker/quantlab/internal/core"
)

func TestNormalizeSymbol(t *testing.T) {
	tests := []struct {
		input        string
		defaultQuote string
		expected     string
	}{
		{"BTC", "USDT", "BTCUSDT"},
		{"btc", "", "BTCUSDT"},
		{"BTC-USDT", "USDT", "BTCUSDT"},
		{"btc/usdt", "USDT", "BTCUSDT"},
		{"BTC_USDT", "USDT", "BTCUSDT"},
		{"ethusdt", "USDT", "ETHUSDT"},
		{"ETH/BTC", "USDT", "ETHBTC"},
		{"BTC", "BUSD", "BTCBUSD"},
		{"", "USDT", ""},
	}

	for _, tc := range tests {
		if got := NormalizeSymbol(tc.input, tc.defaultQuote); got != tc.expected {
			t.Errorf("NormalizeSymbol(%q, %q) = %q, want %q", tc.input, tc.defaultQuote, got, tc.expected)
		}
	}
}

func TestValidateSymbol(t *testing.T) {
	for _, s := range []string{"BTCUSDT", "1000PEPEUSDT"} {
		if err := ValidateSymbol(s); err != nil {
			t.Errorf("ValidateSymbol(%q) unexpected error: %v", s, err)
		}
	}
	for _, s := range []string{"", "BTC USDT", "btcusdt", "B"} {
		if err := ValidateSymbol(s); !errors.Is(err, core.ErrPrecondition) {
			t.Errorf("ValidateSymbol(%q) = %v, want ErrPrecondition", s, err)
		}
	}
}

type fakeSource struct {
	bars       []core.Bar
	err        error
	start, end time.Time
	calls      int
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) FetchHistory(ctx context.Context, symbol string, start, end time.Time, interval string) ([]core.Bar, error) {
	f.calls++
	f.start, f.end = start, end
	return f.bars, f.err
}

type fakeSink struct {
	saved  []core.Bar
	latest time.Time
}

func (f *fakeSink) SaveBars(ctx context.Context, bars []core.Bar) error {
	f.saved = append(f.saved, bars...)
	return nil
}

func (f *fakeSink) Latest(ctx context.Context, symbol, interval string) (time.Time, bool, error) {
	return f.latest, !f.latest.IsZero(), nil
}

func TestSync(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	src := &fakeSource{bars: []core.Bar{{Symbol: "BTCUSDT", Interval: "1m", Time: start, Close: 1}}}
	sink := &fakeSink{}

	res, err := Sync(context.Background(), src, sink, SyncRequest{Symbol: "btc", Interval: "1m", Start: start, End: end}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Symbol != "BTCUSDT" || res.Fetched != 1 || len(sink.saved) != 1 {
		t.Errorf("unexpected result %+v, saved %d", res, len(sink.saved))
	}
	if !src.start.Equal(start) || !src.end.Equal(end) {
		t.Errorf("unexpected fetch window %v - %v", src.start, src.end)
	}
}

func TestSync_Resume(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{}
	sink := &fakeSink{latest: start.Add(30 * time.Minute)}

	_, err := Sync(context.Background(), src, sink, SyncRequest{
		Symbol: "BTCUSDT", Interval: "15m", Start: start, End: start.Add(2 * time.Hour), Resume: true,
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := start.Add(45 * time.Minute); !src.start.Equal(want) {
		t.Errorf("expected resume from %v, got %v", want, src.start)
	}

	// Nothing left to fetch.
	sink.latest = start.Add(2 * time.Hour)
	src.calls = 0
	if _, err := Sync(context.Background(), src, sink, SyncRequest{
		Symbol: "BTCUSDT", Interval: "15m", Start: start, End: start.Add(2 * time.Hour), Resume: true,
	}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.calls != 0 {
		t.Errorf("expected no fetch when up to date, got %d calls", src.calls)
	}
}

func TestSync_Errors(t *testing.T) {
	ctx := context.Background()
	sink := &fakeSink{}

	if _, err := Sync(ctx, &fakeSource{}, sink, SyncRequest{Symbol: "BTCUSDT", Interval: "7x"}, nil); !errors.Is(err, core.ErrInvalidTimeframe) {
		t.Errorf("expected ErrInvalidTimeframe, got %v", err)
	}

	failing := &fakeSource{err: core.WrapError(core.ErrCollectorFailed, errors.New("boom"))}
	if _, err := Sync(ctx, failing, sink, SyncRequest{Symbol: "BTCUSDT", Interval: "1m", Start: time.Now().Add(-time.Hour)}, nil); !errors.Is(err, core.ErrCollectorFailed) {
		t.Errorf("expected ErrCollectorFailed, got %v", err)
	}
}
