package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/mesh-intelligence/browserdb/pkg/types"
)

// Mode is the access mode a connection is opened with.
type Mode int

const (
	// ReadOnly fails when the file does not exist.
	ReadOnly Mode = iota
	// ReadWrite fails when the file does not exist.
	ReadWrite
	// ReadWriteCreate creates the file when missing.
	ReadWriteCreate
)

func (m Mode) String() string {
	switch m {
	case ReadOnly:
		return "ro"
	case ReadWrite:
		return "rw"
	case ReadWriteCreate:
		return "rwc"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Result reports the effect of a data-changing statement.
type Result struct {
	LastInsertID int64
	RowsAffected int64
}

// Conn is an open connection handed to a unit of work. It is only valid
// inside the function it was passed to and must not be used from other
// goroutines.
type Conn struct {
	db      *sql.DB
	conn    *sql.Conn
	path    string
	mode    Mode
	inTx    bool
	retries int
	logger  *slog.Logger
	metrics *Metrics
}

var dsnEscaper = strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23")

func dsn(path string, mode Mode, busyTimeout time.Duration) string {
	return fmt.Sprintf("file:%s?mode=%s&_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)",
		dsnEscaper.Replace(path), mode, busyTimeout.Milliseconds())
}

// openConn opens path and verifies that it is a readable database.
func openConn(ctx context.Context, path string, mode Mode, opts Options, logger *slog.Logger, m *Metrics) (*Conn, error) {
	db, err := sql.Open(driverName, dsn(path, mode, opts.BusyTimeout))
	if err != nil {
		return nil, &OpenError{Path: path, Mode: mode, Code: EngineCode(err), Err: err}
	}
	db.SetMaxOpenConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, &OpenError{Path: path, Mode: mode, Code: EngineCode(err), Err: err}
	}

	// The engine opens files lazily; reading the schema proves the file is
	// a database.
	var n int64
	if err := conn.QueryRowContext(ctx, "SELECT count(*) FROM sqlite_master").Scan(&n); err != nil {
		_ = conn.Close()
		_ = db.Close()
		return nil, &OpenError{Path: path, Mode: mode, Code: EngineCode(err), Err: err}
	}

	return &Conn{
		db:      db,
		conn:    conn,
		path:    path,
		mode:    mode,
		retries: opts.BusyRetries,
		logger:  logger,
		metrics: m,
	}, nil
}

func (c *Conn) close() error {
	err := c.conn.Close()
	if dbErr := c.db.Close(); err == nil {
		err = dbErr
	}
	return err
}

// Mode returns the access mode the connection was opened with.
func (c *Conn) Mode() Mode { return c.mode }

// InTransaction reports whether Begin has been called without a matching
// Commit or Rollback.
func (c *Conn) InTransaction() bool { return c.inTx }

// bind checks the argument count and converts every argument to a storage
// class value.
func bind(query string, args []any) ([]any, error) {
	if want := countParams(query); want != len(args) {
		return nil, &BindCountError{SQL: query, Expected: want, Got: len(args)}
	}
	out := make([]any, len(args))
	for i, a := range args {
		v, ok := ValueOf(a)
		if !ok {
			return nil, &BindTypeError{SQL: query, Index: i, Type: fmt.Sprintf("%T", a)}
		}
		out[i] = v.Any()
	}
	return out, nil
}

// ExecuteChange runs a single statement that returns no rows.
func (c *Conn) ExecuteChange(ctx context.Context, query string, args ...any) (Result, error) {
	bound, err := bind(query, args)
	if err != nil {
		c.fail(query, err)
		return Result{}, err
	}

	var res Result
	err = c.retry(ctx, func() error {
		c.metrics.statement(query)
		r, err := c.conn.ExecContext(ctx, query, bound...)
		if err != nil {
			return classify(query, err)
		}
		res.LastInsertID, _ = r.LastInsertId()
		res.RowsAffected, _ = r.RowsAffected()
		return nil
	})
	if err != nil {
		c.fail(query, err)
		return Result{}, err
	}
	return res, nil
}

// Exec runs a statement and discards its Result.
func (c *Conn) Exec(ctx context.Context, query string, args ...any) error {
	_, err := c.ExecuteChange(ctx, query, args...)
	return err
}

// QueryValue returns the first column of the first row, or NULL when the
// query produced no rows.
func (c *Conn) QueryValue(ctx context.Context, query string, args ...any) (Value, error) {
	cur := Query(ctx, c, query, func(r Row) (Value, error) { return r.At(0), nil }, args...)
	if cur.Status() != types.CursorSuccess {
		return Null(), cur.Err()
	}
	if cur.Count() == 0 {
		return Null(), nil
	}
	v, _ := cur.At(0)
	return v, nil
}

// UserVersion reads PRAGMA user_version.
func (c *Conn) UserVersion(ctx context.Context) (int, error) {
	v, err := c.QueryValue(ctx, "PRAGMA user_version")
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}

// SetUserVersion writes PRAGMA user_version.
func (c *Conn) SetUserVersion(ctx context.Context, version int) error {
	return c.Exec(ctx, fmt.Sprintf("PRAGMA user_version = %d", version))
}

// ObjectExists reports whether a table, index, view or trigger named name
// exists in the main schema.
func (c *Conn) ObjectExists(ctx context.Context, kind, name string) (bool, error) {
	v, err := c.QueryValue(ctx, "SELECT count(*) FROM sqlite_master WHERE type = ? AND name = ?", kind, name)
	if err != nil {
		return false, err
	}
	return v.Int64() > 0, nil
}

// Begin starts an exclusive transaction. Transactions do not nest.
func (c *Conn) Begin(ctx context.Context) error {
	if c.inTx {
		return fmt.Errorf("begin: %w", types.ErrNestedTransaction)
	}
	if err := c.Exec(ctx, "BEGIN EXCLUSIVE"); err != nil {
		return err
	}
	c.inTx = true
	return nil
}

// Commit commits the open transaction.
func (c *Conn) Commit(ctx context.Context) error {
	if !c.inTx {
		return nil
	}
	if err := c.Exec(ctx, "COMMIT"); err != nil {
		return err
	}
	c.inTx = false
	return nil
}

// Rollback abandons the open transaction. It runs even when ctx is done.
func (c *Conn) Rollback(ctx context.Context) error {
	if !c.inTx {
		return nil
	}
	c.inTx = false
	return c.Exec(context.WithoutCancel(ctx), "ROLLBACK")
}

// transact runs fn inside an exclusive transaction. A returned error or a
// panic rolls the transaction back; a panic is re-raised afterwards.
func (c *Conn) transact(ctx context.Context, fn func(context.Context, *Conn) error) error {
	if err := c.Begin(ctx); err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			if rbErr := c.Rollback(ctx); rbErr != nil {
				c.logger.Error("rollback after panic failed", "err", rbErr)
			}
			panic(p)
		}
	}()

	if err := fn(ctx, c); err != nil {
		if rbErr := c.Rollback(ctx); rbErr != nil {
			c.logger.Error("rollback failed", "err", rbErr)
		}
		return err
	}

	if err := c.Commit(ctx); err != nil {
		if rbErr := c.Rollback(ctx); rbErr != nil {
			c.logger.Error("rollback after failed commit failed", "err", rbErr)
		}
		return err
	}
	return nil
}

func newBusyBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	b.MaxElapsedTime = 0
	return b
}

// retry runs op, repeating it with exponential backoff while the engine
// reports the database as busy or locked.
func (c *Conn) retry(ctx context.Context, op func() error) error {
	var b backoff.BackOff = backoff.WithMaxRetries(newBusyBackOff(), uint64(max(c.retries, 0)))
	b = backoff.WithContext(b, ctx)

	var last error
	err := backoff.RetryNotify(func() error {
		err := op()
		last = err
		if err == nil {
			return nil
		}
		if IsBusy(err) {
			return err
		}
		return backoff.Permanent(err)
	}, b, func(err error, wait time.Duration) {
		if c.metrics != nil {
			c.metrics.Retries.Inc()
		}
		c.logger.Debug("database busy, retrying", "wait", wait, "err", err)
	})
	if err != nil && last != nil && ctx.Err() != nil {
		// Report the engine failure rather than the cancellation.
		return last
	}
	return err
}

func (c *Conn) fail(query string, err error) {
	c.metrics.failure(err)
	c.logger.Warn("statement failed", "sql", query, "code", EngineCode(err), "err", err)
}
