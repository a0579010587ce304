package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"X402Chat/internal/domain/models"
	xhttp "X402Chat/pkg/http"
	xlogger "X402Chat/pkg/logger"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"
)

// HealthCheck probes one dependency; nil means healthy.
type HealthCheck func(ctx context.Context) error

type HealthEchoHandler struct {
	logger     *xlogger.Logger
	checks     map[string]HealthCheck
	components map[string]string
	timeout    time.Duration
}

// NewHealthEchoHandler reports named checks plus static component descriptions
// such as which rate store and usage backend are active.
func NewHealthEchoHandler(logger *xlogger.Logger, checks map[string]HealthCheck, components map[string]string) *HealthEchoHandler {
	return &HealthEchoHandler{
		logger:     logger,
		checks:     checks,
		components: components,
		timeout:    3 * time.Second,
	}
}

func (h *HealthEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
}

func (h *HealthEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]error, len(names))
	var g errgroup.Group
	for i, name := range names {
		i, check := i, h.checks[name]
		g.Go(func() error {
			results[i] = check(ctx)
			return nil
		})
	}
	_ = g.Wait()

	body := models.HealthResponseBody{
		Status:     "ok",
		Checks:     make(map[string]string, len(names)),
		Components: h.components,
	}
	for i, name := range names {
		if results[i] != nil {
			body.Status = "degraded"
			body.Checks[name] = results[i].Error()
			h.logger.Warn("health check failed", xlogger.String("check", name), xlogger.Error(results[i]))
			continue
		}
		body.Checks[name] = "ok"
	}

	status := http.StatusOK
	if body.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	return xhttp.JSONResponse(c, status, body)
}
