package browserdb

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mesh-intelligence/browserdb/internal/log"
	"github.com/mesh-intelligence/browserdb/internal/sqlite"
	"github.com/mesh-intelligence/browserdb/pkg/types"
)

// QuarantineCooldown is how old an existing quarantine file must be before
// an unusable database may be quarantined again.
const QuarantineCooldown = time.Hour

const backupSuffix = ".bak"

// BrowserDB is an open browser profile database.
type BrowserDB struct {
	files  FileAccessor
	name   string
	path   string
	schema *Schema
	cm     *sqlite.ConnectionManager
	now    func() time.Time
	logger *slog.Logger
}

type config struct {
	name        string
	busyTimeout time.Duration
	busyRetries int
	logger      *slog.Logger
	registerer  prometheus.Registerer
	now         func() time.Time
}

// Option configures Open.
type Option func(*config)

// WithName sets the database file name. The default is types.DefaultDatabase.
func WithName(name string) Option { return func(c *config) { c.name = name } }

// WithBusyTimeout sets how long the engine waits on a locked file.
func WithBusyTimeout(d time.Duration) Option { return func(c *config) { c.busyTimeout = d } }

// WithBusyRetries bounds retries of statements that hit a locked file.
func WithBusyRetries(n int) Option { return func(c *config) { c.busyRetries = n } }

func WithLogger(l *slog.Logger) Option { return func(c *config) { c.logger = l } }

// WithRegisterer registers the engine metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *config) { c.registerer = reg }
}

// WithClock replaces time.Now for timestamps, frecency and quarantine age.
func WithClock(now func() time.Time) Option { return func(c *config) { c.now = now } }

// WithConfig applies the file name and engine settings of cfg.
func WithConfig(cfg types.Config) Option {
	return func(c *config) {
		cfg = cfg.Normalize()
		c.name = cfg.Database
		c.busyTimeout = cfg.BusyTimeout
		c.busyRetries = cfg.BusyRetries
	}
}

// Open opens the database in files, creating or migrating it to
// SchemaVersion. When that fails the file is moved aside to <name>.bak and
// a fresh database is created, unless a quarantine file younger than
// QuarantineCooldown already exists. A second failure fails the open.
func Open(ctx context.Context, files FileAccessor, opts ...Option) (*BrowserDB, error) {
	cfg := config{
		name:        types.DefaultDatabase,
		busyTimeout: types.DefaultBusyTimeout,
		busyRetries: types.DefaultBusyRetries,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = log.WithComponent("browserdb")
	}
	if err := (types.Config{Database: cfg.name, BusyTimeout: cfg.busyTimeout, BusyRetries: cfg.busyRetries}).Validate(); err != nil {
		return nil, err
	}

	path, err := files.Path(cfg.name)
	if err != nil {
		return nil, err
	}
	logger := cfg.logger.With("db", path)

	schema, err := NewSchema(logger, DefaultTables(cfg.now)...)
	if err != nil {
		return nil, err
	}

	db := &BrowserDB{
		files:  files,
		name:   cfg.name,
		path:   path,
		schema: schema,
		now:    cfg.now,
		logger: logger,
		cm: sqlite.NewConnectionManager(path, sqlite.Options{
			BusyTimeout: cfg.busyTimeout,
			BusyRetries: cfg.busyRetries,
			Logger:      logger,
			Registerer:  cfg.registerer,
		}),
	}

	if err := db.initialize(ctx); err != nil {
		// A locked file is healthy; only another writer stands in the way.
		if ctx.Err() != nil || sqlite.IsBusy(err) {
			db.cm.Close()
			return nil, err
		}
		logger.Error("database unusable, quarantining", "err", err)
		if qerr := db.quarantine(err); qerr != nil {
			db.cm.Close()
			return nil, qerr
		}
		if err := db.initialize(ctx); err != nil {
			db.cm.Close()
			return nil, fmt.Errorf("recreating %s after quarantine: %w", path, err)
		}
	}
	return db, nil
}

// DefaultTables returns the browser tables in creation order.
func DefaultTables(now func() time.Time) []Table {
	return []Table{
		newHistoryTable(now),
		newVisitsTable(now),
		newFaviconsTable(now),
		newBookmarksTable(now),
		queueTable{},
	}
}

// initialize runs the schema create or migrate in one exclusive
// transaction.
func (db *BrowserDB) initialize(ctx context.Context) error {
	return db.cm.Transaction(ctx, func(ctx context.Context, c *sqlite.Conn) error {
		from, err := c.UserVersion(ctx)
		if err != nil {
			return &MigrationError{From: from, To: SchemaVersion, Err: err}
		}
		return db.schema.Migrate(ctx, c, from, SchemaVersion)
	})
}

// quarantine moves the database aside so a fresh one can be created.
func (db *BrowserDB) quarantine(cause error) error {
	backup := db.name + backupSuffix
	now := db.now()

	if fi, err := db.files.Stat(backup); err == nil {
		if age := now.Sub(fi.ModTime()); age < QuarantineCooldown {
			return &QuarantineExhaustedError{Path: db.path, Backup: backup, Age: age, Err: cause}
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("checking %s: %w", backup, err)
	}

	if err := db.files.Move(db.name, backup); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("quarantining %s: %w", db.path, err)
		}
	} else if err := db.files.Touch(backup, now); err != nil {
		return fmt.Errorf("stamping %s: %w", backup, err)
	}

	for _, suffix := range []string{"-wal", "-shm", "-journal"} {
		if err := db.files.Remove(db.name + suffix); err != nil {
			return fmt.Errorf("removing %s%s: %w", db.name, suffix, err)
		}
	}
	db.logger.Warn("database quarantined", "backup", backup)
	return nil
}

// Insert adds item to the named table and returns its row id, or -1 and
// the error.
func (db *BrowserDB) Insert(ctx context.Context, table string, item any) (int64, error) {
	return db.change(ctx, "insert", table, func(ctx context.Context, t Table, c *sqlite.Conn) (int64, error) {
		return t.Insert(ctx, c, item)
	})
}

// Update rewrites item in the named table and returns the number of rows
// changed, or -1 and the error.
func (db *BrowserDB) Update(ctx context.Context, table string, item any) (int64, error) {
	return db.change(ctx, "update", table, func(ctx context.Context, t Table, c *sqlite.Conn) (int64, error) {
		return t.Update(ctx, c, item)
	})
}

// Delete removes item from the named table, or every row when item is nil,
// and returns the number of rows removed, or -1 and the error.
func (db *BrowserDB) Delete(ctx context.Context, table string, item any) (int64, error) {
	return db.change(ctx, "delete", table, func(ctx context.Context, t Table, c *sqlite.Conn) (int64, error) {
		return t.Delete(ctx, c, item)
	})
}

// change runs a write against a table inside a transaction. Table errors
// and panics come back as (-1, err).
func (db *BrowserDB) change(ctx context.Context, op, name string, fn func(context.Context, Table, *sqlite.Conn) (int64, error)) (int64, error) {
	logger := log.WithOperation(db.logger, op).With("table", name)

	t, ok := db.schema.Table(name)
	if !ok {
		err := fmt.Errorf("%s %q: %w", op, name, types.ErrTableNotFound)
		logger.Warn("unknown table")
		return -1, err
	}

	var n int64
	err := db.cm.Transaction(ctx, func(ctx context.Context, c *sqlite.Conn) (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("%s %s: panic: %v", op, name, p)
			}
		}()
		n, err = fn(ctx, t, c)
		return err
	})
	if err != nil {
		logger.Warn("table operation failed", "err", err)
		return -1, err
	}
	return n, nil
}

// Query runs a read against the named table. Failures, including unknown
// tables, produce a failure cursor.
func (db *BrowserDB) Query(ctx context.Context, table string, opts *types.QueryOptions) *types.Cursor[any] {
	logger := log.WithOperation(db.logger, "query").With("table", table)

	t, ok := db.schema.Table(table)
	if !ok {
		logger.Warn("unknown table")
		return types.FailedCursor[any](fmt.Errorf("query %q: %w", table, types.ErrTableNotFound))
	}

	var cur *types.Cursor[any]
	err := db.cm.WithConnection(ctx, sqlite.ReadOnly, func(ctx context.Context, c *sqlite.Conn) (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("query %s: panic: %v", table, p)
			}
		}()
		cur = t.Query(ctx, c, opts)
		return nil
	})
	if err != nil {
		logger.Warn("query failed", "err", err)
		return types.FailedCursor[any](err)
	}
	if cur.Status() != types.CursorSuccess {
		logger.Warn("query failed", "err", cur.Err())
	}
	return cur
}

// SchemaVersion reads the stored schema version.
func (db *BrowserDB) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := db.cm.WithConnection(ctx, sqlite.ReadOnly, func(ctx context.Context, c *sqlite.Conn) error {
		var err error
		v, err = c.UserVersion(ctx)
		return err
	})
	return v, err
}

// Tables returns the logical table names in creation order.
func (db *BrowserDB) Tables() []string { return db.schema.Names() }

// Path returns the database file path.
func (db *BrowserDB) Path() string { return db.path }

// Metrics returns the engine collectors.
func (db *BrowserDB) Metrics() *sqlite.Metrics { return db.cm.Metrics() }

// Close waits for queued work and releases the database.
func (db *BrowserDB) Close() error { return db.cm.Close() }
