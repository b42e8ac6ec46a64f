// Package oauth talks to Discord's OAuth2 and user endpoints.
package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	"github.com/iliyamo/discord-age-gate/internal/utils"
)

// Endpoints Discord serves the authorization code flow on.
var (
	AuthURL    = discordgo.EndpointAPI + "oauth2/authorize"
	TokenURL   = discordgo.EndpointAPI + "oauth2/token"
	ProfileURL = discordgo.EndpointUser("@me")
)

// Profile is the part of the Discord user the gate needs.
type Profile struct {
	ID          uint64
	Username    string
	DisplayName string // global display name, may be empty
}

// Name returns the display name, falling back to the username.
func (p Profile) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Username
}

// Config describes the OAuth application.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Timeout      time.Duration
	HTTPClient   *http.Client // nil uses a dedicated client
}

// Client performs the two calls of the code flow. It never retries: a
// failed round trip is surfaced so the user can restart verification.
type Client struct {
	conf       *oauth2.Config
	http       *http.Client
	timeout    time.Duration
	profileURL string
}

// NewClient returns a Client for the identify scope.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"identify"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   AuthURL,
				TokenURL:  TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		http:       hc,
		timeout:    cfg.Timeout,
		profileURL: ProfileURL,
	}
}

// AuthCodeURL builds the authorize redirect carrying state.
func (c *Client) AuthCodeURL(state string) string {
	return c.conf.AuthCodeURL(state)
}

// ExchangeCode swaps an authorization code for an access token.
func (c *Client) ExchangeCode(ctx context.Context, code string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)

	tok, err := c.conf.Exchange(ctx, code)
	if err != nil {
		return "", &Error{Op: ErrOAuthExchangeFailed, Kind: exchangeKind(err), Err: err}
	}
	if tok.AccessToken == "" {
		return "", &Error{Op: ErrOAuthExchangeFailed, Kind: KindRejected, Err: errors.New("empty access token")}
	}
	return tok.AccessToken, nil
}

func exchangeKind(err error) Kind {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.Response != nil && re.Response.StatusCode >= http.StatusInternalServerError {
			return KindUnreachable
		}
		return KindRejected
	}
	return transportKind(err)
}

// FetchProfile loads the user the access token belongs to.
func (c *Client) FetchProfile(ctx context.Context, accessToken string) (Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.profileURL, nil)
	if err != nil {
		return Profile{}, &Error{Op: ErrProfileFetchFailed, Kind: KindRejected, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Profile{}, &Error{Op: ErrProfileFetchFailed, Kind: transportKind(err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		kind := KindRejected
		if resp.StatusCode >= http.StatusInternalServerError {
			kind = KindUnreachable
		}
		return Profile{}, &Error{Op: ErrProfileFetchFailed, Kind: kind, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	var u discordgo.User
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&u); err != nil {
		return Profile{}, &Error{Op: ErrProfileFetchFailed, Kind: transportKind(err), Err: errors.Wrap(err, "decode profile")}
	}
	id, err := utils.ParseSnowflake(u.ID)
	if err != nil {
		return Profile{}, &Error{Op: ErrMissingUserID, Kind: KindRejected, Err: fmt.Errorf("id %q", u.ID)}
	}
	return Profile{ID: id, Username: u.Username, DisplayName: u.GlobalName}, nil
}
