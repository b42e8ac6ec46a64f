package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"io"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"modernc.org/sqlite"

	"github.com/iliyamo/discord-age-gate/internal/database"
)

// flakyConnector opens real sqlite connections whose statements fail with
// io.ErrUnexpectedEOF while drops is positive, the way a server that went
// away mid-request looks to the pool.
type flakyConnector struct {
	drv   *sqlite.Driver
	dsn   string
	drops atomic.Int32
}

func (f *flakyConnector) Connect(context.Context) (driver.Conn, error) {
	c, err := f.drv.Open(f.dsn)
	if err != nil {
		return nil, err
	}
	return &flakyConn{Conn: c, f: f}, nil
}

func (f *flakyConnector) Driver() driver.Driver { return f.drv }

func (f *flakyConnector) drop() error {
	for {
		n := f.drops.Load()
		if n <= 0 {
			return nil
		}
		if f.drops.CompareAndSwap(n, n-1) {
			return io.ErrUnexpectedEOF
		}
	}
}

type flakyConn struct {
	driver.Conn
	f *flakyConnector
}

func (c *flakyConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	if err := c.f.drop(); err != nil {
		return nil, err
	}
	return c.Conn.(driver.ExecerContext).ExecContext(ctx, query, args)
}

func (c *flakyConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	if err := c.f.drop(); err != nil {
		return nil, err
	}
	return c.Conn.(driver.QueryerContext).QueryContext(ctx, query, args)
}

func (c *flakyConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	return c.Conn.(driver.ConnPrepareContext).PrepareContext(ctx, query)
}

func (c *flakyConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	return c.Conn.(driver.ConnBeginTx).BeginTx(ctx, opts)
}

func (c *flakyConn) Ping(ctx context.Context) error {
	return c.Conn.(driver.Pinger).Ping(ctx)
}

// newFlakyRepoForTest returns a migrated repository and the connector that
// controls its failures.
func newFlakyRepoForTest(t *testing.T, opts database.Options) (*VerificationRepo, *flakyConnector) {
	t.Helper()
	dialect, dsn, err := database.ParseURL("sqlite://" + filepath.Join(t.TempDir(), "gate.db"))
	require.NoError(t, err)

	fc := &flakyConnector{drv: &sqlite.Driver{}, dsn: dsn}
	pool := database.NewPool(sqlx.NewDb(sql.OpenDB(fc), dialect.DriverName), dialect, opts)
	t.Cleanup(func() { _ = pool.Close() })
	require.NoError(t, database.Migrate(context.Background(), pool))
	return NewVerificationRepo(pool), fc
}
