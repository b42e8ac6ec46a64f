package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// Health answers "ok" without touching the database.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// Ping answers "pong" for quick reachability checks.
func Ping(c echo.Context) error {
	return c.String(http.StatusOK, "pong")
}

// DatabaseClock reports the database's notion of now.
type DatabaseClock interface {
	DatabaseTime(ctx context.Context) (string, error)
}

// DiagnosticsHandler serves the database check and the configuration dump.
type DiagnosticsHandler struct {
	DB     DatabaseClock
	Config map[string]any // already masked
	Log    logrus.FieldLogger
}

// DBHealth runs a round trip against the database. Driver errors are logged
// but never returned to the caller.
func (h *DiagnosticsHandler) DBHealth(c echo.Context) error {
	ctx, cancel := storeContext(c)
	defer cancel()

	ts, err := h.DB.DatabaseTime(ctx)
	if err != nil {
		if h.Log != nil {
			h.Log.WithError(err).Warn("database health check failed")
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"status": "error", "error": "database unavailable"})
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ok", "timestamp": ts})
}

// EnvTest shows the effective configuration with secrets hidden.
func (h *DiagnosticsHandler) EnvTest(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Config)
}
