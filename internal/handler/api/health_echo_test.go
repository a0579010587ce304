package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	xlogger "X402Chat/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveHealth(t *testing.T, h *HealthEchoHandler) (int, map[string]interface{}) {
	t.Helper()
	e := echo.New()
	h.RegisterRoutes(e)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	out := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return rec.Code, out
}

func TestHealthOK(t *testing.T) {
	h := NewHealthEchoHandler(xlogger.Nop(),
		map[string]HealthCheck{"ledger": func(context.Context) error { return nil }},
		map[string]string{"rate_store": "memory", "usage_backend": "none"})

	code, body := serveHealth(t, h)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, map[string]interface{}{"ledger": "ok"}, body["checks"])
	assert.Equal(t, map[string]interface{}{"rate_store": "memory", "usage_backend": "none"}, body["components"])
}

func TestHealthDegraded(t *testing.T) {
	h := NewHealthEchoHandler(xlogger.Nop(), map[string]HealthCheck{
		"ledger": func(context.Context) error { return nil },
		"redis":  func(context.Context) error { return errors.New("connection refused") },
	}, nil)

	code, body := serveHealth(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, map[string]interface{}{"ledger": "ok", "redis": "connection refused"}, body["checks"])
	assert.NotContains(t, body, "components")
}
