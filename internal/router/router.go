package router

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/discord-age-gate/internal/handler"
	"github.com/iliyamo/discord-age-gate/internal/middleware"
)

// RegisterRoutes registers the liveness and diagnostics routes. None of
// them require authentication.
func RegisterRoutes(e *echo.Echo, d *handler.DiagnosticsHandler) {
	e.GET("/healthz", handler.Health)
	e.GET("/ping", handler.Ping)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	if d != nil {
		e.GET("/db_health", d.DBHealth)
		e.GET("/envtest", d.EnvTest)
	}
}

// RegisterVerification registers the user facing OAuth flow.
func RegisterVerification(e *echo.Echo, h *handler.VerifyHandler) {
	e.GET("/verify", h.Verify)
	e.GET("/callback", h.Callback)
}

// RegisterStatus registers the polling API under /status. Requests pass the
// service token check first so cached answers are never served to
// unauthenticated callers.
func RegisterStatus(e *echo.Echo, h *handler.StatusHandler, cache *middleware.StatusCache, secret string) {
	g := e.Group("/status")
	g.Use(middleware.ServiceAuth(secret))
	g.Use(cache.Middleware())
	g.GET("/token/:token", h.ByToken)
	g.GET("/user/:discord_id", h.ByUser)
}
