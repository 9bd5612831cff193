package binance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/newthinker/quantlab/internal/core"
)

// klineServer serves one minute klines from a fixed start, honouring
// startTime, endTime and limit like the real endpoint.
func klineServer(t *testing.T, first time.Time, total int, requests *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/klines" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		*requests++
		q := r.URL.Query()
		startMs, _ := strconv.ParseInt(q.Get("startTime"), 10, 64)
		endMs, _ := strconv.ParseInt(q.Get("endTime"), 10, 64)
		limit, _ := strconv.Atoi(q.Get("limit"))

		var rows []string
		for i := range total {
			ts := first.Add(time.Duration(i) * time.Minute).UnixMilli()
			if ts < startMs || ts > endMs || len(rows) == limit {
				continue
			}
			p := 100 + float64(i)
			rows = append(rows, fmt.Sprintf(`[%d,"%.2f","%.2f","%.2f","%.2f","1.5",%d,"0",1,"0","0","0"]`,
				ts, p, p+1, p-1, p+0.5, ts+59999))
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, "["+strings.Join(rows, ",")+"]")
	}))
}

func TestClient_FetchHistory_Pages(t *testing.T) {
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	requests := 0
	srv := klineServer(t, first, 25, &requests)
	defer srv.Close()

	c := New(srv.URL, WithPageLimit(10))
	bars, err := c.FetchHistory(context.Background(), "BTCUSDT", first, first.Add(time.Hour), "1m")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(bars) != 25 {
		t.Fatalf("expected 25 bars, got %d", len(bars))
	}
	if requests != 3 {
		t.Errorf("expected 3 page requests, got %d", requests)
	}
	for i := 1; i < len(bars); i++ {
		if !bars[i].Time.After(bars[i-1].Time) {
			t.Fatalf("bars not strictly increasing at %d", i)
		}
	}
	last := bars[24]
	if last.Open != 124 || last.High != 125 || last.Low != 123 || last.Close != 124.5 || last.Volume != 1.5 {
		t.Errorf("unexpected last bar %+v", last)
	}
	if last.Symbol != "BTCUSDT" || last.Interval != "1m" {
		t.Errorf("unexpected labels %s %s", last.Symbol, last.Interval)
	}
}

func TestClient_FetchHistory_ExactPageBoundary(t *testing.T) {
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	requests := 0
	srv := klineServer(t, first, 20, &requests)
	defer srv.Close()

	bars, err := New(srv.URL, WithPageLimit(10)).FetchHistory(context.Background(), "BTCUSDT", first, first.Add(time.Hour), "1m")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bars) != 20 {
		t.Errorf("expected 20 bars, got %d", len(bars))
	}
	// Two full pages then an empty one.
	if requests != 3 {
		t.Errorf("expected 3 requests, got %d", requests)
	}
}

func TestClient_FetchHistory_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"code":-1121,"msg":"Invalid symbol."}`)
	}))
	defer srv.Close()

	_, err := New(srv.URL).FetchHistory(context.Background(), "NOPE", time.Now().Add(-time.Hour), time.Now(), "1m")
	if !errors.Is(err, core.ErrCollectorFailed) {
		t.Fatalf("expected ErrCollectorFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "Invalid symbol.") {
		t.Errorf("expected exchange message in error, got %v", err)
	}
}

func TestClient_FetchHistory_BadInterval(t *testing.T) {
	_, err := New("http://127.0.0.1:0").FetchHistory(context.Background(), "BTCUSDT", time.Now(), time.Now(), "7m")
	if !errors.Is(err, core.ErrInvalidTimeframe) {
		t.Errorf("expected ErrInvalidTimeframe, got %v", err)
	}
}

func TestClient_FetchHistory_Malformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[[1704067200000,"abc","1","1","1","1"]]`)
	}))
	defer srv.Close()

	_, err := New(srv.URL).FetchHistory(context.Background(), "BTCUSDT", time.Unix(1704067200, 0), time.Unix(1704070800, 0), "1m")
	if !errors.Is(err, core.ErrCollectorFailed) {
		t.Errorf("expected ErrCollectorFailed, got %v", err)
	}
}

func TestClient_FetchHistory_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New("http://127.0.0.1:0").FetchHistory(ctx, "BTCUSDT", time.Now().Add(-time.Hour), time.Now(), "1m")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestClient_Name(t *testing.T) {
	if New("").Name() != "binance" {
		t.Error("expected binance")
	}
}
