package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// RequestLogger writes one entry per request. Only the path is logged, the
// query string of /callback carries an authorization code.
func RequestLogger(log logrus.FieldLogger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			started := time.Now()
			err := next(c)
			if err != nil {
				// let echo write the response so the status below is final
				c.Error(err)
			}

			req, res := c.Request(), c.Response()
			entry := log.WithFields(logrus.Fields{
				"method":  req.Method,
				"path":    req.URL.Path,
				"status":  res.Status,
				"bytes":   res.Size,
				"latency": time.Since(started).String(),
				"ip":      c.RealIP(),
			})
			switch {
			case res.Status >= 500:
				entry.Warn("request")
			default:
				entry.Debug("request")
			}
			return nil
		}
	}
}
