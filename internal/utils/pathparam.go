package utils

import (
	"net/url"

	"github.com/labstack/echo/v4"
)

// PathParam returns the decoded value of a route parameter. echo matches
// routes against URL.RawPath when the request has one, so parameters come
// back still percent-encoded in that case and plain otherwise.
func PathParam(c echo.Context, name string) (string, error) {
	v := c.Param(name)
	if c.Request().URL.RawPath == "" {
		return v, nil
	}
	return url.PathUnescape(v)
}
