// internal/api/server_test.go
package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	handlerapi "github.com/newthinker/quantlab/internal/api/handler/api"
	"github.com/newthinker/quantlab/internal/api/job"
	"github.com/newthinker/quantlab/internal/backtest"
	"github.com/newthinker/quantlab/internal/core"
	"github.com/newthinker/quantlab/internal/metrics"
)

type failingRunner struct{}

func (failingRunner) Run(ctx context.Context, req backtest.Request) (*backtest.Result, error) {
	return nil, core.ErrNoData
}

func newTestServer(t *testing.T, apiKey string, reg *metrics.Registry) *Server {
	t.Helper()
	handler := handlerapi.NewBacktestHandler(job.NewStore(10, time.Hour), failingRunner{}, handlerapi.Defaults{
		Config: backtest.DefaultConfig(),
	})
	srv, err := NewServer(Config{
		Host:        "localhost",
		Port:        0,
		APIKey:      apiKey,
		MetricsPath: "/metrics",
	}, Dependencies{Backtests: handler, Metrics: reg}, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return srv
}

func serve(srv *Server, method, path, body, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestServer_Health(t *testing.T) {
	srv := newTestServer(t, "test-key", nil)

	w := serve(srv, "GET", "/api/v1/health", "", "")
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected request ID header")
	}
}

func TestServer_APIAuth(t *testing.T) {
	srv := newTestServer(t, "test-key", nil)
	body := `{"symbol": "BTCUSDT", "strategy": "sma"}`

	if w := serve(srv, "POST", "/api/v1/backtests", body, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without key, got %d", w.Code)
	}
	if w := serve(srv, "POST", "/api/v1/backtests", body, "wrong"); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with wrong key, got %d", w.Code)
	}
	if w := serve(srv, "POST", "/api/v1/backtests", body, "test-key"); w.Code != http.StatusAccepted {
		t.Errorf("expected 202 with key, got %d", w.Code)
	}
	if w := serve(srv, "GET", "/api/v1/backtests/unknown", "", "test-key"); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown job, got %d", w.Code)
	}
}

func TestServer_APIAuth_Disabled(t *testing.T) {
	srv := newTestServer(t, "", nil)

	w := serve(srv, "POST", "/api/v1/backtests", `{"symbol": "BTCUSDT", "strategy": "rsi"}`, "")
	if w.Code != http.StatusAccepted {
		t.Errorf("expected 202 with disabled auth, got %d", w.Code)
	}
}

func TestServer_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, "", nil)

	if w := serve(srv, "DELETE", "/api/v1/backtests", "", ""); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", w.Code)
	}
}

func TestServer_Metrics(t *testing.T) {
	srv := newTestServer(t, "", metrics.NewRegistry())

	serve(srv, "GET", "/api/v1/health", "", "")
	w := serve(srv, "GET", "/metrics", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "http_requests_total") {
		t.Error("expected http_requests_total in scrape output")
	}
}

func TestServer_MetricsDisabled(t *testing.T) {
	srv := newTestServer(t, "", nil)

	if w := serve(srv, "GET", "/metrics", "", ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 without registry, got %d", w.Code)
	}
}

func TestNewServer_RequiresHandler(t *testing.T) {
	if _, err := NewServer(Config{}, Dependencies{}, nil); !errors.Is(err, core.ErrConfigMissing) {
		t.Errorf("expected ErrConfigMissing, got %v", err)
	}
}
