package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/discord-age-gate/internal/model"
	"github.com/iliyamo/discord-age-gate/internal/repository"
	"github.com/iliyamo/discord-age-gate/internal/utils"
)

// StatusReader is the read side of the repository.
type StatusReader interface {
	GetByToken(ctx context.Context, token string) (model.Verification, error)
	GetLatestByDiscordID(ctx context.Context, discordID int64) (model.Verification, error)
}

// StatusHandler answers the polling bot. discord_id is always a JSON
// string since snowflakes do not fit a float64.
type StatusHandler struct {
	Repo StatusReader
	Log  logrus.FieldLogger
}

// NewStatusHandler constructs a StatusHandler and panics on a nil repo.
func NewStatusHandler(repo StatusReader, log logrus.FieldLogger) *StatusHandler {
	if repo == nil {
		panic("nil repository passed to NewStatusHandler")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &StatusHandler{Repo: repo, Log: log.WithField("component", "status")}
}

// ByToken handles GET /status/token/:token.
func (h *StatusHandler) ByToken(c echo.Context) error {
	token, err := utils.PathParam(c, "token")
	if err != nil || !validToken(token) {
		return c.JSON(http.StatusNotFound, echo.Map{"ok": false, "reason": "not_found"})
	}
	ctx, cancel := storeContext(c)
	defer cancel()

	v, err := h.Repo.GetByToken(ctx, token)
	if err != nil {
		return h.lookupError(c, err)
	}
	body := baseStatus(v)
	var discordID any
	if v.DiscordID != nil {
		discordID = strconv.FormatInt(*v.DiscordID, 10)
	}
	body["discord_id"] = discordID
	return c.JSON(http.StatusOK, body)
}

// ByUser handles GET /status/user/:discord_id and reports the user's most
// recently updated verification.
func (h *StatusHandler) ByUser(c echo.Context) error {
	raw, err := utils.PathParam(c, "discord_id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"ok": false, "reason": "invalid_id"})
	}
	id, err := utils.ParseSnowflake(raw)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"ok": false, "reason": "invalid_id"})
	}
	ctx, cancel := storeContext(c)
	defer cancel()

	v, err := h.Repo.GetLatestByDiscordID(ctx, int64(id))
	if err != nil {
		return h.lookupError(c, err)
	}
	body := baseStatus(v)
	body["token"] = v.Token
	return c.JSON(http.StatusOK, body)
}

func baseStatus(v model.Verification) echo.Map {
	return echo.Map{
		"ok":         true,
		"verified":   v.Verified,
		"username":   v.Username,
		"days_old":   v.DaysOld,
		"updated_at": v.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func (h *StatusHandler) lookupError(c echo.Context, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"ok": false, "reason": "not_found"})
	}
	h.Log.WithError(err).Error("status lookup failed")
	return c.JSON(http.StatusInternalServerError, echo.Map{"ok": false, "reason": "store_unavailable"})
}
