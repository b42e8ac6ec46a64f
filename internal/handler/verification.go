package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/discord-age-gate/internal/metrics"
	"github.com/iliyamo/discord-age-gate/internal/oauth"
	"github.com/iliyamo/discord-age-gate/internal/queue"
	"github.com/iliyamo/discord-age-gate/internal/render"
	"github.com/iliyamo/discord-age-gate/internal/repository"
	"github.com/iliyamo/discord-age-gate/internal/utils"
)

const (
	// MaxTokenLength bounds the verification token in characters.
	MaxTokenLength = 256
	// MinAccountAgeDays is the age an account needs to pass the gate.
	MinAccountAgeDays = 3

	storeTimeout = 5 * time.Second
)

// VerificationStore is the part of the repository the flow writes to.
type VerificationStore interface {
	CreateOrTouchPending(ctx context.Context, token, ip string) error
	CompleteAndMaybeReward(ctx context.Context, c repository.Completion) (repository.Outcome, error)
}

// IdentityProvider runs the OAuth code flow.
type IdentityProvider interface {
	AuthCodeURL(state string) string
	ExchangeCode(ctx context.Context, code string) (string, error)
	FetchProfile(ctx context.Context, accessToken string) (oauth.Profile, error)
}

// CacheInvalidator drops cached status responses.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, paths ...string) error
}

// EventPublisher announces finished verifications.
type EventPublisher interface {
	PublishVerificationCompleted(ctx context.Context, ev queue.VerificationCompletedEvent) error
}

// VerifyHandler drives /verify and /callback. Cache and Events are
// optional.
type VerifyHandler struct {
	Store  VerificationStore
	OAuth  IdentityProvider
	Cache  CacheInvalidator
	Events EventPublisher
	Log    logrus.FieldLogger
	Now    func() time.Time
}

// NewVerifyHandler constructs a VerifyHandler and panics if a required
// dependency is nil.
func NewVerifyHandler(store VerificationStore, provider IdentityProvider, log logrus.FieldLogger) *VerifyHandler {
	if store == nil || provider == nil {
		panic("nil dependency passed to NewVerifyHandler")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &VerifyHandler{
		Store: store,
		OAuth: provider,
		Log:   log.WithField("component", "verify"),
		Now:   time.Now,
	}
}

func validToken(t string) bool {
	return t != "" && utf8.RuneCountInString(t) <= MaxTokenLength
}

// storeContext detaches from the client connection so a disconnect cannot
// abort a transaction halfway, but keeps a deadline.
func storeContext(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(c.Request().Context()), storeTimeout)
}

// Verify handles GET /verify?token=T. It records a pending verification and
// redirects to Discord with the token as OAuth state.
func (h *VerifyHandler) Verify(c echo.Context) error {
	token := c.QueryParam("token")
	if !validToken(token) {
		return c.String(http.StatusBadRequest, "missing or invalid token")
	}

	ctx, cancel := storeContext(c)
	defer cancel()

	// RealIP goes through the configured IPExtractor and is empty when unknown
	if err := h.Store.CreateOrTouchPending(ctx, token, c.RealIP()); err != nil {
		h.Log.WithError(err).Error("create pending verification failed")
		return c.String(http.StatusInternalServerError, "Something went wrong on our side, please try again in a moment.")
	}
	return c.Redirect(http.StatusFound, h.OAuth.AuthCodeURL(token))
}

// Callback handles GET /callback?code=C&state=S. Nothing is written unless
// both OAuth calls succeed.
func (h *VerifyHandler) Callback(c echo.Context) error {
	code, state := c.QueryParam("code"), c.QueryParam("state")
	if code == "" || state == "" {
		return c.Render(http.StatusBadRequest, render.ResultTemplate, render.Failure("The link is missing its code or state."))
	}
	if !validToken(state) {
		return c.Render(http.StatusBadRequest, render.ResultTemplate, render.Failure("The verification link is invalid."))
	}

	ctx := context.WithoutCancel(c.Request().Context())

	accessToken, err := h.OAuth.ExchangeCode(ctx, code)
	if err != nil {
		return h.oauthFailure(c, "exchange", err)
	}
	profile, err := h.OAuth.FetchProfile(ctx, accessToken)
	if err != nil {
		return h.oauthFailure(c, "profile", err)
	}

	days := utils.AccountAgeDays(profile.ID, h.Now())
	completion := repository.Completion{
		Token:     state,
		DiscordID: int64(profile.ID),
		Username:  profile.Name(),
		DaysOld:   days,
		Verified:  days >= MinAccountAgeDays,
		IP:        c.RealIP(),
	}

	sctx, cancel := storeContext(c)
	defer cancel()
	out, err := h.Store.CompleteAndMaybeReward(sctx, completion)
	if err != nil {
		h.Log.WithError(err).WithField("discord_id", completion.DiscordID).Error("complete verification failed")
		return c.Render(http.StatusInternalServerError, render.ResultTemplate,
			render.Failure("We could not save your verification. Please try again in a moment."))
	}

	h.recordOutcome(completion, out)
	h.invalidate(sctx, completion)
	h.publish(completion, out)

	return c.Render(http.StatusOK, render.ResultTemplate, render.ForVerification(completion.Verified, out.Rewarded, days))
}

func (h *VerifyHandler) oauthFailure(c echo.Context, stage string, err error) error {
	status := http.StatusBadRequest
	msg := "Discord did not accept the login. Please start the verification again."
	kind := oauth.KindRejected
	if oauth.IsUnreachable(err) {
		status = http.StatusBadGateway
		msg = "Discord could not be reached. Please try again in a moment."
		kind = oauth.KindUnreachable
	}
	metrics.OAuthFailures.WithLabelValues(stage, kind.String()).Inc()
	h.Log.WithError(err).WithFields(logrus.Fields{"stage": stage, "kind": kind.String()}).Warn("oauth round trip failed")
	return c.Render(status, render.ResultTemplate, render.Failure(msg))
}

func (h *VerifyHandler) recordOutcome(c repository.Completion, out repository.Outcome) {
	outcome := "denied"
	if c.Verified {
		outcome = "verified"
	}
	metrics.Verifications.WithLabelValues(outcome).Inc()
	if out.Rewarded {
		metrics.Rewards.Inc()
	}
	h.Log.WithFields(logrus.Fields{
		"discord_id": c.DiscordID,
		"days_old":   c.DaysOld,
		"verified":   c.Verified,
		"rewarded":   out.Rewarded,
	}).Info("verification completed")
}

// StatusPaths returns the decoded status paths whose cached responses a
// completion makes stale.
func StatusPaths(token string, discordID int64) []string {
	return []string{
		"/status/token/" + token,
		"/status/user/" + strconv.FormatInt(discordID, 10),
	}
}

func (h *VerifyHandler) invalidate(ctx context.Context, c repository.Completion) {
	if h.Cache == nil {
		return
	}
	if err := h.Cache.Invalidate(ctx, StatusPaths(c.Token, c.DiscordID)...); err != nil {
		h.Log.WithError(err).Warn("status cache invalidation failed")
	}
}

// publish is fire and forget; the page does not wait for the broker.
func (h *VerifyHandler) publish(c repository.Completion, out repository.Outcome) {
	if h.Events == nil {
		return
	}
	ev := queue.VerificationCompletedEvent{
		Token:       c.Token,
		DiscordID:   c.DiscordID,
		Username:    c.Username,
		DaysOld:     c.DaysOld,
		Verified:    c.Verified,
		Rewarded:    out.Rewarded,
		Balance:     out.Balance,
		CompletedAt: h.Now().UTC().Format(time.RFC3339),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		// failures are logged by the publisher
		_ = h.Events.PublishVerificationCompleted(ctx, ev)
	}()
}
