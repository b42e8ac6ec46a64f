package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/discord-age-gate/internal/utils"
)

func TestServiceAuth(t *testing.T) {
	e := echo.New()
	e.GET("/status/token/:token", func(c echo.Context) error {
		return c.String(http.StatusOK, c.Get("service").(string))
	}, ServiceAuth("s3cret"))

	call := func(header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/status/token/abc", nil)
		if header != "" {
			req.Header.Set(echo.HeaderAuthorization, header)
		}
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	rec := call("")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"ok":false,"reason":"unauthorized"}`, rec.Body.String())

	assert.Equal(t, http.StatusUnauthorized, call("Bearer garbage").Code)

	other, err := utils.NewServiceToken("other", "bot", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, call("Bearer "+other.Token).Code)

	good, err := utils.NewServiceToken("s3cret", "bot", time.Hour)
	require.NoError(t, err)
	rec = call("Bearer " + good.Token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "bot", rec.Body.String())
}

func TestServiceAuthDisabledWithoutSecret(t *testing.T) {
	e := echo.New()
	e.GET("/open", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }, ServiceAuth(""))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/open", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
