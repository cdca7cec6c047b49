// Package browser is the public API over a browser profile database. Each
// call runs on the profile's serial worker, in the order the calls were
// made, and reports back through a callback delivered on a MainQueue.
package browser

import (
	"context"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mesh-intelligence/browserdb/internal/browserdb"
	"github.com/mesh-intelligence/browserdb/internal/log"
	"github.com/mesh-intelligence/browserdb/pkg/types"
)

// DefaultIconCacheSize is the number of site favicons kept in memory.
const DefaultIconCacheSize = 256

// Profile is an open browser profile.
type Profile struct {
	History   *History
	Favicons  *Favicons
	Bookmarks *Bookmarks
	TabQueue  *TabQueue

	db        *browserdb.BrowserDB
	work      *serialQueue
	main      *MainQueue
	ownsMain  bool
	logger    *slog.Logger
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	closeErr  error
}

type options struct {
	main       *MainQueue
	logger     *slog.Logger
	registerer prometheus.Registerer
	cacheSize  int
}

// Option configures Open.
type Option func(*options)

// WithMainQueue delivers callbacks on q. By default the profile starts its
// own queue and stops it on Close.
func WithMainQueue(q *MainQueue) Option { return func(o *options) { o.main = q } }

func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithRegisterer registers database metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithIconCacheSize sets how many site favicons are cached.
func WithIconCacheSize(n int) Option { return func(o *options) { o.cacheSize = n } }

// Open validates cfg and opens the profile database in cfg.DataDir.
func Open(ctx context.Context, cfg types.Config, opts ...Option) (*Profile, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.Normalize()

	o := options{cacheSize: DefaultIconCacheSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.WithComponent("browser")
	}

	db, err := browserdb.Open(ctx, browserdb.DirAccessor{Dir: cfg.DataDir},
		browserdb.WithConfig(cfg),
		browserdb.WithLogger(o.logger),
		browserdb.WithRegisterer(o.registerer),
	)
	if err != nil {
		return nil, err
	}

	icons, err := lru.New[string, *types.Favicon](max(o.cacheSize, 1))
	if err != nil {
		db.Close()
		return nil, err
	}

	p := &Profile{db: db, work: newSerialQueue(), main: o.main, logger: o.logger}
	if p.main == nil {
		p.main = NewMainQueue()
		p.ownsMain = true
	}
	p.History = &History{p: p}
	p.Favicons = &Favicons{p: p, cache: icons}
	p.Bookmarks = &Bookmarks{p: p}
	p.TabQueue = &TabQueue{p: p}
	return p, nil
}

// Path returns the database file path.
func (p *Profile) Path() string { return p.db.Path() }

// Close runs the calls already submitted and schedules their callbacks,
// then closes the database. Calls made after Close report types.ErrClosed,
// provided the main queue is still running.
func (p *Profile) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()

		p.work.close()
		p.closeErr = p.db.Close()
		if p.ownsMain {
			p.main.Close()
		}
	})
	return p.closeErr
}

// submit queues work on the profile's worker before returning, so calls
// from one goroutine run in the order they were made. done receives the
// result on the main queue. A closed profile dispatches fail instead.
func submit[T any](p *Profile, work func() T, fail func() T, done func(T)) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		if done != nil {
			r := fail()
			p.main.Dispatch(func() { done(r) })
		}
		return
	}
	p.work.dispatch(func() {
		r := work()
		if done != nil {
			p.main.Dispatch(func() { done(r) })
		}
	})
}

// change submits a write and reports (rows, err).
func (p *Profile) change(ctx context.Context, work func(context.Context) (int64, error), done func(int64, error)) {
	type result struct {
		n   int64
		err error
	}
	var cb func(result)
	if done != nil {
		cb = func(r result) { done(r.n, r.err) }
	}
	submit(p,
		func() result { n, err := work(ctx); return result{n, err} },
		func() result { return result{-1, types.ErrClosed} },
		cb)
}

// query submits a read against table and converts the cursor.
func query[T any](ctx context.Context, p *Profile, table string, opts *types.QueryOptions, done func(*types.Cursor[T])) {
	submit(p,
		func() *types.Cursor[T] { return types.ConvertCursor[T](p.db.Query(ctx, table, opts)) },
		func() *types.Cursor[T] { return types.FailedCursor[T](types.ErrClosed) },
		done)
}
