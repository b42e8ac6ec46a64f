package database

import (
	"context"
	"database/sql/driver"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/discord-age-gate/internal/metrics"
)

const (
	pingTimeout = 5 * time.Second
	retryDelay  = 100 * time.Millisecond
)

// UnitOfWork runs on a dedicated connection. It may be invoked more than
// once when the first connection turns out to be broken, so it must not
// have side effects outside the database.
type UnitOfWork func(ctx context.Context, conn *sqlx.Conn) error

// Options tune the pool. Zero values fall back to defaults.
type Options struct {
	MaxConns          int           // upper bound of open connections (default 5)
	RetryBudget       int           // extra attempts after a connectivity failure (default 1)
	KeepAliveInterval time.Duration // idle ping period, 0 disables the loop
	Logger            logrus.FieldLogger
}

// Pool owns the bounded set of database connections and hides transient
// connectivity failures from its callers.
type Pool struct {
	db      *sqlx.DB
	dialect Dialect
	retries int
	// hook runs on each acquired connection before the unit of work; tests
	// use it to drop connections.
	hook func(ctx context.Context, attempt int, conn *sqlx.Conn) error
	log  logrus.FieldLogger

	stop chan struct{}
	done chan struct{}
}

// Open connects to the database named by rawURL and verifies it with a
// ping.
func Open(ctx context.Context, rawURL string, opts Options) (*Pool, error) {
	dialect, dsn, err := ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	db, err := sqlx.Open(dialect.DriverName, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	p := NewPool(db, dialect, opts)

	// Ping with timeout
	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = p.Close()
		return nil, errors.Wrap(err, "ping database")
	}
	return p, nil
}

// NewPool wraps an already opened handle.
func NewPool(db *sqlx.DB, dialect Dialect, opts Options) *Pool {
	if opts.MaxConns <= 0 {
		opts.MaxConns = 5
	}
	if opts.RetryBudget < 0 {
		opts.RetryBudget = 0
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	// Pool settings
	if dialect.SingleWriter {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(opts.MaxConns)
		db.SetMaxIdleConns(opts.MaxConns)
		db.SetConnMaxLifetime(30 * time.Minute)
		db.SetConnMaxIdleTime(5 * time.Minute)
	}

	p := &Pool{
		db:      db,
		dialect: dialect,
		retries: opts.RetryBudget,
		log:     opts.Logger.WithField("component", "db-pool"),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	if opts.KeepAliveInterval > 0 {
		go p.keepAlive(opts.KeepAliveInterval)
	} else {
		close(p.done)
	}
	return p
}

// Dialect reports which database the pool talks to.
func (p *Pool) Dialect() Dialect { return p.dialect }

// Close stops the keepalive loop and closes every connection.
func (p *Pool) Close() error {
	select {
	case <-p.stop:
		return nil
	default:
		close(p.stop)
	}
	<-p.done
	return p.db.Close()
}

// Do acquires a connection, runs fn and releases the connection on every
// exit path. When fn fails with a connectivity error the broken connection
// is discarded and fn is retried on a fresh one, up to the retry budget.
// Any other error is returned as is. Exhausting the budget yields an error
// matching ErrUnavailable.
func (p *Pool) Do(ctx context.Context, fn UnitOfWork) error {
	attempt := 0
	op := func() error {
		attempt++
		err := p.attempt(ctx, attempt, fn)
		if err == nil {
			return nil
		}
		if !IsConnectivityError(err) {
			return backoff.Permanent(err)
		}
		if attempt <= p.retries {
			metrics.StoreRetries.Inc()
			p.log.WithError(err).WithField("attempt", attempt).Warn("connection failed, retrying on a fresh one")
		}
		return err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(retryDelay), uint64(p.retries)), ctx)
	err := backoff.Retry(op, b)
	if err == nil {
		return nil
	}
	if IsConnectivityError(err) {
		metrics.StoreUnavailable.Inc()
		return errors.Wrapf(ErrUnavailable, "after %d attempt(s): %v", attempt, err)
	}
	return err
}

func (p *Pool) attempt(ctx context.Context, n int, fn UnitOfWork) (err error) {
	conn, err := p.db.Connx(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil && IsConnectivityError(err) {
			// ErrBadConn from Raw makes database/sql close the connection
			// instead of returning it to the idle set.
			_ = conn.Raw(func(any) error { return driver.ErrBadConn })
		}
		_ = conn.Close()
	}()

	if p.hook != nil {
		if err = p.hook(ctx, n, conn); err != nil {
			return err
		}
	}
	return fn(ctx, conn)
}

// Tx runs fn inside a transaction on a dedicated connection. The
// transaction is committed when fn returns nil and rolled back otherwise,
// including on panic. Retries restart the whole transaction.
func (p *Pool) Tx(ctx context.Context, fn func(ctx context.Context, tx *sqlx.Tx) error) error {
	return p.Do(ctx, func(ctx context.Context, conn *sqlx.Conn) (err error) {
		tx, err := conn.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() {
			if r := recover(); r != nil {
				_ = tx.Rollback()
				panic(r)
			}
			if err != nil {
				_ = tx.Rollback()
			}
		}()
		if err = fn(ctx, tx); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// keepAlive pings idle connections so that servers with idle timeouts do
// not silently drop them. Dead ones are discarded.
func (p *Pool) keepAlive(interval time.Duration) {
	defer close(p.done)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
			if n := p.pingIdle(ctx); n > 0 {
				p.log.WithField("discarded", n).Info("dropped dead idle connections")
			}
			cancel()
		}
	}
}

// pingIdle pings idle connections one at a time, so the pool keeps
// serving while the loop runs, and returns how many were discarded.
// database/sql hands out the oldest idle connection and puts released ones
// at the back, so a pass over Idle checkouts reaches each one once.
func (p *Pool) pingIdle(ctx context.Context) int {
	discarded := 0
	for i, idle := 0, p.db.Stats().Idle; i < idle; i++ {
		c, err := p.db.Connx(ctx)
		if err != nil {
			p.log.WithError(err).Warn("keepalive: acquire failed")
			break
		}
		if err := c.PingContext(ctx); err != nil {
			_ = c.Raw(func(any) error { return driver.ErrBadConn })
			discarded++
		}
		_ = c.Close()
	}
	return discarded
}

// Ping checks that a connection can be obtained, with the usual retry.
func (p *Pool) Ping(ctx context.Context) error {
	return p.Do(ctx, func(ctx context.Context, conn *sqlx.Conn) error {
		return conn.PingContext(ctx)
	})
}
