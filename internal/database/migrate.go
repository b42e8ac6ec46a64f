package database

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

var schema = map[string][]string{
	"postgres": {
		`CREATE TABLE IF NOT EXISTS verifications (
			token       VARCHAR(256) PRIMARY KEY,
			discord_id  BIGINT NULL,
			username    TEXT NULL,
			days_old    INTEGER NULL CHECK (days_old >= 0),
			verified    BOOLEAN NOT NULL DEFAULT FALSE,
			ip          VARCHAR(45) NULL,
			created_at  TIMESTAMPTZ NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS verifications_discord_id_updated_at_idx ON verifications (discord_id, updated_at)`,
		`CREATE TABLE IF NOT EXISTS coin_balances (
			discord_id  BIGINT PRIMARY KEY,
			balance     BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
			updated_at  TIMESTAMPTZ NOT NULL
		)`,
	},
	"mysql": {
		`CREATE TABLE IF NOT EXISTS verifications (
			token       VARCHAR(256) NOT NULL PRIMARY KEY,
			discord_id  BIGINT NULL,
			username    VARCHAR(255) NULL,
			days_old    INT UNSIGNED NULL,
			verified    BOOLEAN NOT NULL DEFAULT FALSE,
			ip          VARCHAR(45) NULL,
			created_at  DATETIME(6) NOT NULL,
			updated_at  DATETIME(6) NOT NULL,
			INDEX verifications_discord_id_updated_at_idx (discord_id, updated_at)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		`CREATE TABLE IF NOT EXISTS coin_balances (
			discord_id  BIGINT NOT NULL PRIMARY KEY,
			balance     BIGINT UNSIGNED NOT NULL DEFAULT 0,
			updated_at  DATETIME(6) NOT NULL
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	},
	"sqlite": {
		`CREATE TABLE IF NOT EXISTS verifications (
			token       TEXT PRIMARY KEY CHECK (length(token) <= 256),
			discord_id  INTEGER NULL,
			username    TEXT NULL,
			days_old    INTEGER NULL CHECK (days_old >= 0),
			verified    BOOLEAN NOT NULL DEFAULT 0,
			ip          TEXT NULL,
			created_at  DATETIME NOT NULL,
			updated_at  DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS verifications_discord_id_updated_at_idx ON verifications (discord_id, updated_at)`,
		`CREATE TABLE IF NOT EXISTS coin_balances (
			discord_id  INTEGER PRIMARY KEY,
			balance     INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
			updated_at  DATETIME NOT NULL
		)`,
	},
}

// Migrate creates the tables for the pool's dialect. Every statement is
// idempotent so it runs on each start.
func Migrate(ctx context.Context, p *Pool) error {
	stmts, ok := schema[p.dialect.Name]
	if !ok {
		return errors.Errorf("no schema for dialect %q", p.dialect.Name)
	}
	return p.Do(ctx, func(ctx context.Context, conn *sqlx.Conn) error {
		for _, stmt := range stmts {
			if _, err := conn.ExecContext(ctx, stmt); err != nil {
				return errors.Wrap(err, "migrate")
			}
		}
		return nil
	})
}
