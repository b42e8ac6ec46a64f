package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/iliyamo/discord-age-gate/internal/database"
	"github.com/iliyamo/discord-age-gate/internal/model"
)

// RewardAmount is credited to a user's balance when one of their tokens
// flips from unverified to verified.
const RewardAmount = 200

// Completion carries the result of an OAuth callback into the store.
type Completion struct {
	Token     string
	DiscordID int64
	Username  string
	DaysOld   int
	Verified  bool
	IP        string // empty when unknown
}

// Outcome describes what CompleteAndMaybeReward changed.
type Outcome struct {
	PreviouslyVerified bool
	Rewarded           bool
	Balance            int64 // balance after the write, only set when Rewarded
}

// VerificationRepo persists verification records and coin balances. All
// timestamps come from the repo's clock in UTC.
type VerificationRepo struct {
	pool *database.Pool
	q    queries
	now  func() time.Time
}

// NewVerificationRepo returns a repo bound to the given pool.
func NewVerificationRepo(pool *database.Pool) *VerificationRepo {
	return &VerificationRepo{
		pool: pool,
		q:    queriesFor(pool.Dialect()),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the clock used for created_at/updated_at.
func (r *VerificationRepo) WithClock(now func() time.Time) *VerificationRepo {
	r.now = func() time.Time { return now().UTC() }
	return r
}

const selectColumns = `token, discord_id, username, days_old, verified, ip, created_at, updated_at`

type queries struct {
	touch        string
	lockVerified string
	complete     string
	credit       string
	balance      string
	byToken      string
	latestByUser string
}

func queriesFor(d database.Dialect) queries {
	q := queries{
		lockVerified: `SELECT verified FROM verifications WHERE token = ?` + d.LockClause,
		complete: `UPDATE verifications
			SET discord_id = ?, username = ?, days_old = ?, verified = ?, ip = COALESCE(ip, ?), updated_at = ?
			WHERE token = ?`,
		balance:      `SELECT balance FROM coin_balances WHERE discord_id = ?`,
		byToken:      `SELECT ` + selectColumns + ` FROM verifications WHERE token = ?`,
		latestByUser: `SELECT ` + selectColumns + ` FROM verifications WHERE discord_id = ? ORDER BY updated_at DESC LIMIT 1`,
	}
	switch d.Name {
	case database.MySQL.Name:
		q.touch = `INSERT INTO verifications (token, ip, created_at, updated_at) VALUES (?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE ip = COALESCE(ip, VALUES(ip)), updated_at = VALUES(updated_at)`
		q.credit = `INSERT INTO coin_balances (discord_id, balance, updated_at) VALUES (?, ?, ?)
			ON DUPLICATE KEY UPDATE balance = balance + VALUES(balance), updated_at = VALUES(updated_at)`
	default:
		q.touch = `INSERT INTO verifications (token, ip, created_at, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT (token) DO UPDATE SET ip = COALESCE(verifications.ip, excluded.ip), updated_at = excluded.updated_at`
		q.credit = `INSERT INTO coin_balances (discord_id, balance, updated_at) VALUES (?, ?, ?)
			ON CONFLICT (discord_id) DO UPDATE SET balance = coin_balances.balance + excluded.balance, updated_at = excluded.updated_at`
	}
	return q
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Rebind(query string) string
}

func (r *VerificationRepo) touch(ctx context.Context, db execer, token, ip string, now time.Time) error {
	_, err := db.ExecContext(ctx, db.Rebind(r.q.touch), token, nullString(ip), now, now)
	return err
}

// CreateOrTouchPending makes sure a record for token exists. A new record
// has every optional field null; an existing one only gains an ip if it had
// none, and gets a fresh updated_at. Calling it repeatedly is harmless.
func (r *VerificationRepo) CreateOrTouchPending(ctx context.Context, token, ip string) error {
	err := r.pool.Do(ctx, func(ctx context.Context, conn *sqlx.Conn) error {
		return r.touch(ctx, conn, token, ip, r.now())
	})
	return errors.Wrap(err, "create pending verification")
}

// CompleteAndMaybeReward records the callback result for a token and, iff
// the token goes from unverified (or absent) to verified, credits
// RewardAmount to the user's balance. Everything happens in one
// transaction holding the token's row lock, so racing callbacks for the
// same token serialize and only one of them can observe the transition.
func (r *VerificationRepo) CompleteAndMaybeReward(ctx context.Context, c Completion) (Outcome, error) {
	var out Outcome
	err := r.pool.Tx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		out = Outcome{}
		now := r.now()

		// The upsert creates a missing row and takes its lock, so two
		// callbacks for a never-seen token cannot both read "absent".
		if err := r.touch(ctx, tx, c.Token, c.IP, now); err != nil {
			return err
		}
		if err := tx.GetContext(ctx, &out.PreviouslyVerified, tx.Rebind(r.q.lockVerified), c.Token); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(r.q.complete),
			c.DiscordID, nullString(c.Username), c.DaysOld, c.Verified, nullString(c.IP), now, c.Token); err != nil {
			return err
		}

		if !c.Verified || out.PreviouslyVerified {
			return nil
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(r.q.credit), c.DiscordID, RewardAmount, now); err != nil {
			return err
		}
		if err := tx.GetContext(ctx, &out.Balance, tx.Rebind(r.q.balance), c.DiscordID); err != nil {
			return err
		}
		out.Rewarded = true
		return nil
	})
	if err != nil {
		return Outcome{}, errors.Wrapf(err, "complete verification for user %d", c.DiscordID)
	}
	return out, nil
}

// GetByToken returns the record for token or ErrNotFound.
func (r *VerificationRepo) GetByToken(ctx context.Context, token string) (model.Verification, error) {
	return r.getOne(ctx, r.q.byToken, token)
}

// GetLatestByDiscordID returns the most recently updated record of a user
// or ErrNotFound.
func (r *VerificationRepo) GetLatestByDiscordID(ctx context.Context, discordID int64) (model.Verification, error) {
	return r.getOne(ctx, r.q.latestByUser, discordID)
}

func (r *VerificationRepo) getOne(ctx context.Context, query string, arg any) (model.Verification, error) {
	var v model.Verification
	err := r.pool.Do(ctx, func(ctx context.Context, conn *sqlx.Conn) error {
		return conn.GetContext(ctx, &v, conn.Rebind(query), arg)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return model.Verification{}, ErrNotFound
	}
	if err != nil {
		return model.Verification{}, errors.Wrap(err, "get verification")
	}
	return v, nil
}

// GetBalance returns a user's coin balance, zero if they never earned any.
func (r *VerificationRepo) GetBalance(ctx context.Context, discordID int64) (int64, error) {
	var balance int64
	err := r.pool.Do(ctx, func(ctx context.Context, conn *sqlx.Conn) error {
		return conn.GetContext(ctx, &balance, conn.Rebind(r.q.balance), discordID)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return balance, errors.Wrap(err, "get balance")
}

// DatabaseTime asks the database for its current time. It backs the
// database health endpoint.
func (r *VerificationRepo) DatabaseTime(ctx context.Context) (string, error) {
	var ts any
	err := r.pool.Do(ctx, func(ctx context.Context, conn *sqlx.Conn) error {
		return conn.QueryRowContext(ctx, "SELECT CURRENT_TIMESTAMP").Scan(&ts)
	})
	if err != nil {
		return "", errors.Wrap(err, "query database time")
	}
	switch v := ts.(type) {
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano), nil
	case []byte:
		return string(v), nil
	}
	return fmt.Sprint(ts), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
