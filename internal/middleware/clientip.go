package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Headers consulted, in order, when the service sits behind a trusted proxy.
var proxyIPHeaders = []string{"CF-Connecting-IP", "X-Real-IP", "X-Forwarded-For"}

// ClientIP resolves the address of the end user. With trustProxy off only
// the connection address is used, since any header could be forged. The
// result is empty when nothing parses as an IP.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		for _, h := range proxyIPHeaders {
			v := r.Header.Get(h)
			if v == "" {
				continue
			}
			if h == "X-Forwarded-For" {
				// first hop is the original client
				v, _, _ = strings.Cut(v, ",")
			}
			if ip := normalizeIP(v); ip != "" {
				return ip
			}
		}
	}
	return normalizeIP(r.RemoteAddr)
}

// IPExtractor adapts ClientIP for echo.Echo.IPExtractor so handlers can
// use c.RealIP().
func IPExtractor(trustProxy bool) echo.IPExtractor {
	return func(r *http.Request) string {
		return ClientIP(r, trustProxy)
	}
}

// normalizeIP strips a port and brackets and returns the canonical form,
// or "" for anything that is not an IP.
func normalizeIP(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	ip := net.ParseIP(s)
	if ip == nil {
		return ""
	}
	return ip.String()
}
