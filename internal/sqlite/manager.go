package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mesh-intelligence/browserdb/internal/log"
	"github.com/mesh-intelligence/browserdb/pkg/types"
)

const driverName = "sqlite"

// Options configures a ConnectionManager.
type Options struct {
	// BusyTimeout is how long the engine waits on a locked database before
	// reporting SQLITE_BUSY.
	BusyTimeout time.Duration
	// BusyRetries bounds how many times a busy statement is retried.
	BusyRetries int

	Logger     *slog.Logger
	Registerer prometheus.Registerer
	// Metrics, when set, is used instead of collectors built from
	// Registerer.
	Metrics *Metrics
}

// ConnectionManager owns access to one database file. Units of work run
// one at a time, in submission order, on a dedicated goroutine; each opens
// its own connection and closes it when done.
type ConnectionManager struct {
	path    string
	opts    Options
	logger  *slog.Logger
	metrics *Metrics

	mu     sync.RWMutex
	closed bool
	tasks  chan *task
	done   chan struct{}
}

type task struct {
	ctx      context.Context
	mode     Mode
	fn       func(context.Context, *Conn) error
	enqueued time.Time
	result   chan error
}

// NewConnectionManager starts a manager for the database at path. No file
// is touched until the first unit of work runs.
func NewConnectionManager(path string, opts Options) *ConnectionManager {
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = types.DefaultBusyTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.WithComponent("sqlite")
	}
	m := opts.Metrics
	if m == nil {
		m = NewMetrics(opts.Registerer)
	}

	cm := &ConnectionManager{
		path:    path,
		opts:    opts,
		logger:  logger.With("path", path),
		metrics: m,
		tasks:   make(chan *task),
		done:    make(chan struct{}),
	}
	go cm.run()
	return cm
}

// Path returns the database file path.
func (cm *ConnectionManager) Path() string { return cm.path }

// Metrics returns the manager's collectors.
func (cm *ConnectionManager) Metrics() *Metrics { return cm.metrics }

func (cm *ConnectionManager) run() {
	defer close(cm.done)
	for t := range cm.tasks {
		t.result <- cm.execute(t)
	}
}

func (cm *ConnectionManager) execute(t *task) (err error) {
	cm.metrics.QueueWait.Observe(time.Since(t.enqueued).Seconds())
	if err := t.ctx.Err(); err != nil {
		return err
	}

	conn, err := openConn(t.ctx, cm.path, t.mode, cm.opts, cm.logger, cm.metrics)
	if err != nil {
		cm.metrics.failure(err)
		cm.logger.Warn("open failed", "mode", t.mode.String(), "code", EngineCode(err), "err", err)
		return err
	}
	cm.metrics.Opens.Inc()

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("unit of work panicked: %v", p)
			cm.logger.Error("unit of work panicked", "panic", p)
		}
		if cerr := conn.close(); cerr != nil {
			cm.logger.Warn("close failed", "err", cerr)
		}
	}()

	return t.fn(t.ctx, conn)
}

// WithConnection runs fn on a connection opened in mode and returns fn's
// error. Calls are serialized: fn never runs concurrently with another unit
// of work on the same manager, so fn must not call back into the manager.
//
// ctx bounds the wait for the manager and is passed to the engine; once fn
// has started the call always returns fn's outcome.
func (cm *ConnectionManager) WithConnection(ctx context.Context, mode Mode, fn func(context.Context, *Conn) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	t := &task{ctx: ctx, mode: mode, fn: fn, enqueued: time.Now(), result: make(chan error, 1)}

	cm.mu.RLock()
	if cm.closed {
		cm.mu.RUnlock()
		return types.ErrClosed
	}
	select {
	case cm.tasks <- t:
		cm.mu.RUnlock()
	case <-ctx.Done():
		cm.mu.RUnlock()
		return ctx.Err()
	}
	return <-t.result
}

// Transaction runs fn inside an exclusive transaction on a read-write
// connection that creates the file if needed. The transaction commits when
// fn returns nil and rolls back otherwise, including when fn panics.
func (cm *ConnectionManager) Transaction(ctx context.Context, fn func(context.Context, *Conn) error) error {
	return cm.WithConnection(ctx, ReadWriteCreate, func(ctx context.Context, c *Conn) error {
		return c.transact(ctx, fn)
	})
}

// Close stops accepting work, waits for queued units to finish and stops
// the worker. Close is idempotent.
func (cm *ConnectionManager) Close() error {
	cm.mu.Lock()
	if cm.closed {
		cm.mu.Unlock()
		<-cm.done
		return nil
	}
	cm.closed = true
	close(cm.tasks)
	cm.mu.Unlock()
	<-cm.done
	return nil
}
