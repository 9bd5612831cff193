package metrics

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// serveLogged runs req through LoggingMiddleware and returns the response
// and the decoded log line.
func serveLogged(t *testing.T, req *http.Request, status int) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	core := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), zapcore.AddSync(&buf), zapcore.InfoLevel)

	handler := LoggingMiddleware(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log: %v, log: %s", err, buf.String())
	}
	return w, entry
}

func TestLoggingMiddleware(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/v1/backtests", nil)
	req.RemoteAddr = "192.168.1.1:12345"

	w, entry := serveLogged(t, req, http.StatusAccepted)

	if entry["method"] != "POST" || entry["path"] != "/api/v1/backtests" {
		t.Errorf("unexpected method/path in %v", entry)
	}
	if entry["status"].(float64) != http.StatusAccepted {
		t.Errorf("expected status 202, got %v", entry["status"])
	}
	if _, ok := entry["duration_ms"]; !ok {
		t.Error("expected duration_ms in log entry")
	}
	id := w.Header().Get(RequestIDHeader)
	if id == "" || entry["request_id"] != id {
		t.Errorf("request id header %q does not match log %v", id, entry["request_id"])
	}
}

func TestLoggingMiddleware_ClientIP(t *testing.T) {
	tests := []struct {
		name      string
		forwarded string
		want      string
	}{
		{"socket address", "", "10.0.0.1:54321"},
		{"forwarded", "203.0.113.50", "203.0.113.50"},
		{"first hop wins", "203.0.113.50, 70.41.3.18", "203.0.113.50"},
		{"garbage ignored", "not-an-ip", "10.0.0.1:54321"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/health", nil)
			req.RemoteAddr = "10.0.0.1:54321"
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			_, entry := serveLogged(t, req, http.StatusOK)
			if entry["client_ip"] != tt.want {
				t.Errorf("client_ip = %v, want %s", entry["client_ip"], tt.want)
			}
		})
	}
}

func TestLoggingMiddleware_ReusesRequestID(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/v1/backtests/abc", nil)
	req.Header.Set(RequestIDHeader, "abc-123")

	w, entry := serveLogged(t, req, http.StatusOK)

	if got := w.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Errorf("expected incoming request ID to be kept, got %q", got)
	}
	if entry["request_id"] != "abc-123" {
		t.Errorf("expected logged request ID abc-123, got %v", entry["request_id"])
	}
}
