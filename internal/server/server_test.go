package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/engine"
	"github.com/alanyoungcy/crossarb/internal/server"
	"github.com/alanyoungcy/crossarb/internal/server/handler"
)

type fakeEngine struct {
	status  engine.Status
	pending bool
}

func (f *fakeEngine) Status() engine.Status { return f.status }

func (f *fakeEngine) RequestReset() bool {
	if f.pending {
		return false
	}
	f.pending = true
	return true
}

func newServer(eng *fakeEngine, key string, checks map[string]handler.Check) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("crossarb_cycles_total 1\n"))
	})
	return server.NewServer(server.Config{Port: 0, APIKey: key}, server.Handlers{
		Health:  handler.NewHealthHandler(checks, logger),
		Status:  handler.NewStatusHandler(eng, logger),
		Metrics: metrics,
	}, logger).Handler()
}

func do(h http.Handler, method, path, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h := newServer(&fakeEngine{}, "secret", map[string]handler.Check{
		"redis": func(context.Context) error { return nil },
	})
	rec := do(h, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, map[string]any{"redis": "ok"}, body["checks"])
}

func TestHealth_Degraded(t *testing.T) {
	h := newServer(&fakeEngine{}, "", map[string]handler.Check{
		"s3": func(context.Context) error { return errors.New("no such bucket") },
	})
	rec := do(h, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "no such bucket")
}

func TestStatus_RequiresKey(t *testing.T) {
	eng := &fakeEngine{status: engine.Status{Mode: "paper", Cycles: 7}}
	h := newServer(eng, "secret", nil)

	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodGet, "/api/status", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodGet, "/api/status", "wrong").Code)

	rec := do(h, http.MethodGet, "/api/status", "secret")
	require.Equal(t, http.StatusOK, rec.Code)
	var st engine.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "paper", st.Mode)
	assert.Equal(t, 7, st.Cycles)
}

func TestResetBreaker(t *testing.T) {
	eng := &fakeEngine{}
	h := newServer(eng, "", nil)

	rec := do(h, http.MethodPost, "/api/breaker/reset", "")
	assert.Equal(t, http.StatusConflict, rec.Code, "closed breaker")

	eng.status.Breaker = domain.BreakerState{Status: domain.BreakerOpen, HaltReason: "daily loss"}
	rec = do(h, http.MethodPost, "/api/breaker/reset", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, eng.pending)

	rec = do(h, http.MethodPost, "/api/breaker/reset", "")
	assert.Equal(t, http.StatusConflict, rec.Code, "already queued")

	assert.Equal(t, http.StatusMethodNotAllowed, do(h, http.MethodGet, "/api/breaker/reset", "").Code)
}

func TestMetricsOpen(t *testing.T) {
	h := newServer(&fakeEngine{}, "secret", nil)
	rec := do(h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "crossarb_cycles_total")
}
