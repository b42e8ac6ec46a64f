package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/discord-age-gate/internal/utils"
)

// ServiceAuth returns an Echo middleware that validates a Bearer service
// token signed with secret and stores its subject under "service" in the
// request context. With an empty secret the status API stays public and
// the middleware does nothing.
func ServiceAuth(secret string) echo.MiddlewareFunc {
	if secret == "" {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// A valid header looks like "Bearer <jwt>".
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"ok": false, "reason": "unauthorized"})
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			sub, err := utils.ParseServiceToken(secret, raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"ok": false, "reason": "unauthorized"})
			}
			c.Set("service", sub)
			return next(c)
		}
	}
}
