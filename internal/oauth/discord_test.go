package oauth

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockedClient(t *testing.T) (*Client, *httpmock.MockTransport) {
	t.Helper()
	mt := httpmock.NewMockTransport()
	c := NewClient(Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "https://gate.example.com/callback",
		Timeout:      2 * time.Second,
		HTTPClient:   &http.Client{Transport: mt},
	})
	return c, mt
}

func TestAuthCodeURL(t *testing.T) {
	c, _ := newMockedClient(t)

	u, err := url.Parse(c.AuthCodeURL("abc123"))
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "discord.com", u.Host)
	assert.Equal(t, "abc123", q.Get("state"))
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "identify", q.Get("scope"))
	assert.Equal(t, "https://gate.example.com/callback", q.Get("redirect_uri"))
}

func TestExchangeCodeAndFetchProfile(t *testing.T) {
	c, mt := newMockedClient(t)

	mt.RegisterResponder(http.MethodPost, TokenURL, func(req *http.Request) (*http.Response, error) {
		if err := req.ParseForm(); err != nil {
			return nil, err
		}
		// credentials travel in the body, not in basic auth
		if req.PostForm.Get("client_secret") != "client-secret" || req.PostForm.Get("code") != "the-code" {
			return httpmock.NewStringResponse(http.StatusUnauthorized, `{"error":"invalid_client"}`), nil
		}
		return httpmock.NewJsonResponse(http.StatusOK, map[string]any{
			"access_token": "access-1",
			"token_type":   "Bearer",
			"expires_in":   604800,
		})
	})
	mt.RegisterResponder(http.MethodGet, ProfileURL, func(req *http.Request) (*http.Response, error) {
		if req.Header.Get("Authorization") != "Bearer access-1" {
			return httpmock.NewStringResponse(http.StatusUnauthorized, `{"message":"401: Unauthorized"}`), nil
		}
		return httpmock.NewJsonResponse(http.StatusOK, map[string]any{
			"id":          "80351110224678912",
			"username":    "nelly",
			"global_name": "Nelly",
		})
	})

	tok, err := c.ExchangeCode(context.Background(), "the-code")
	require.NoError(t, err)
	assert.Equal(t, "access-1", tok)

	p, err := c.FetchProfile(context.Background(), tok)
	require.NoError(t, err)
	assert.EqualValues(t, uint64(80351110224678912), p.ID)
	assert.Equal(t, "nelly", p.Username)
	assert.Equal(t, "Nelly", p.Name())
}

func TestExchangeCodeRejected(t *testing.T) {
	c, mt := newMockedClient(t)
	mt.RegisterResponder(http.MethodPost, TokenURL,
		httpmock.NewJsonResponderOrPanic(http.StatusBadRequest, map[string]string{"error": "invalid_grant"}))

	_, err := c.ExchangeCode(context.Background(), "stale")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOAuthExchangeFailed)
	assert.False(t, IsUnreachable(err))
}

func TestExchangeCodeUnreachable(t *testing.T) {
	c, mt := newMockedClient(t)

	mt.RegisterResponder(http.MethodPost, TokenURL, httpmock.NewStringResponder(http.StatusBadGateway, "upstream down"))
	_, err := c.ExchangeCode(context.Background(), "code")
	assert.ErrorIs(t, err, ErrOAuthExchangeFailed)
	assert.True(t, IsUnreachable(err))

	mt.RegisterResponder(http.MethodPost, TokenURL, httpmock.NewErrorResponder(errors.New("connection refused")))
	_, err = c.ExchangeCode(context.Background(), "code")
	assert.ErrorIs(t, err, ErrOAuthExchangeFailed)
	assert.True(t, IsUnreachable(err))
}

func TestFetchProfileFailures(t *testing.T) {
	cases := []struct {
		name        string
		responder   httpmock.Responder
		want        error
		unreachable bool
	}{
		{
			name:      "revoked token",
			responder: httpmock.NewStringResponder(http.StatusUnauthorized, `{"message":"401: Unauthorized"}`),
			want:      ErrProfileFetchFailed,
		},
		{
			name:        "server error",
			responder:   httpmock.NewStringResponder(http.StatusServiceUnavailable, ""),
			want:        ErrProfileFetchFailed,
			unreachable: true,
		},
		{
			name:        "transport error",
			responder:   httpmock.NewErrorResponder(errors.New("i/o timeout")),
			want:        ErrProfileFetchFailed,
			unreachable: true,
		},
		{
			name:      "garbage body",
			responder: httpmock.NewStringResponder(http.StatusOK, `<html>`),
			want:      ErrProfileFetchFailed,
		},
		{
			name:      "missing id",
			responder: httpmock.NewStringResponder(http.StatusOK, `{"username":"ghost"}`),
			want:      ErrMissingUserID,
		},
		{
			name:      "non numeric id",
			responder: httpmock.NewStringResponder(http.StatusOK, `{"id":"abc","username":"ghost"}`),
			want:      ErrMissingUserID,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, mt := newMockedClient(t)
			mt.RegisterResponder(http.MethodGet, ProfileURL, tc.responder)

			_, err := c.FetchProfile(context.Background(), "access")
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, tc.unreachable, IsUnreachable(err))
		})
	}
}

func TestNameFallsBackToUsername(t *testing.T) {
	assert.Equal(t, "nelly", Profile{Username: "nelly"}.Name())
}
