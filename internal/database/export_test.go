package database

import (
	"context"

	"github.com/jmoiron/sqlx"
)

func setAttemptHook(p *Pool, hook func(ctx context.Context, attempt int, conn *sqlx.Conn) error) {
	p.hook = hook
}
