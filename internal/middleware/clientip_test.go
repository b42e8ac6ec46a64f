package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientIP(t *testing.T) {
	cases := []struct {
		name    string
		remote  string
		headers map[string]string
		trust   bool
		want    string
	}{
		{name: "remote only", remote: "192.0.2.1:51234", want: "192.0.2.1"},
		{name: "headers ignored without trust", remote: "192.0.2.1:1", headers: map[string]string{"X-Real-IP": "203.0.113.9"}, want: "192.0.2.1"},
		{
			name:   "cdn header wins",
			remote: "10.0.0.1:1",
			trust:  true,
			headers: map[string]string{
				"CF-Connecting-IP": "203.0.113.1",
				"X-Real-IP":        "203.0.113.2",
				"X-Forwarded-For":  "203.0.113.3",
			},
			want: "203.0.113.1",
		},
		{
			name:    "real ip before forwarded for",
			remote:  "10.0.0.1:1",
			trust:   true,
			headers: map[string]string{"X-Real-IP": "203.0.113.2", "X-Forwarded-For": "203.0.113.3"},
			want:    "203.0.113.2",
		},
		{
			name:    "first forwarded hop",
			remote:  "10.0.0.1:1",
			trust:   true,
			headers: map[string]string{"X-Forwarded-For": " 198.51.100.7 , 10.0.0.2, 10.0.0.3"},
			want:    "198.51.100.7",
		},
		{
			name:    "invalid header falls through",
			remote:  "10.0.0.1:1",
			trust:   true,
			headers: map[string]string{"CF-Connecting-IP": "not-an-ip", "X-Forwarded-For": "198.51.100.8:4431"},
			want:    "198.51.100.8",
		},
		{name: "bracketed ipv6 with port", remote: "[2001:db8::1]:443", want: "2001:db8::1"},
		{name: "bare ipv6", remote: "2001:db8::2", want: "2001:db8::2"},
		{name: "garbage", remote: "pipe", want: ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/verify", nil)
			req.RemoteAddr = tc.remote
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tc.want, ClientIP(req, tc.trust))
			assert.Equal(t, tc.want, IPExtractor(tc.trust)(req))
		})
	}
}
