// Tests for the connection manager, statement execution and transactions.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mesh-intelligence/browserdb/internal/log"
	"github.com/mesh-intelligence/browserdb/pkg/types"
)

// newManager returns a manager on a fresh database file with table
// items(id, name UNIQUE, data) already created.
func newManager(t *testing.T) *ConnectionManager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	cm := NewConnectionManager(path, Options{Logger: log.Discard(), Registerer: prometheus.NewRegistry()})
	t.Cleanup(func() { cm.Close() })

	err := cm.WithConnection(context.Background(), ReadWriteCreate, func(ctx context.Context, c *Conn) error {
		return c.Exec(ctx, "CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT NOT NULL UNIQUE, data BLOB)")
	})
	require.NoError(t, err)
	return cm
}

func countItems(t *testing.T, cm *ConnectionManager) int64 {
	t.Helper()
	var n int64
	err := cm.WithConnection(context.Background(), ReadOnly, func(ctx context.Context, c *Conn) error {
		v, err := c.QueryValue(ctx, "SELECT count(*) FROM items")
		n = v.Int64()
		return err
	})
	require.NoError(t, err)
	return n
}

func itemName(r Row) (string, error) { return r.String("name"), nil }

func TestConnectionManager_Open(t *testing.T) {
	ctx := context.Background()

	t.Run("read only open of a missing file fails and creates nothing", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "missing.db")
		cm := NewConnectionManager(path, Options{Logger: log.Discard()})
		defer cm.Close()

		called := false
		err := cm.WithConnection(ctx, ReadOnly, func(context.Context, *Conn) error {
			called = true
			return nil
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, types.ErrOpen)
		var oe *OpenError
		require.ErrorAs(t, err, &oe)
		assert.Equal(t, ReadOnly, oe.Mode)
		assert.False(t, called)

		_, statErr := os.Stat(path)
		assert.True(t, os.IsNotExist(statErr))
	})

	t.Run("read write create makes the file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "new.db")
		cm := NewConnectionManager(path, Options{Logger: log.Discard()})
		defer cm.Close()

		require.NoError(t, cm.WithConnection(ctx, ReadWriteCreate, func(context.Context, *Conn) error { return nil }))
		_, err := os.Stat(path)
		assert.NoError(t, err)
	})

	t.Run("file that is not a database fails to open", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "junk.db")
		junk := make([]byte, 4096)
		for i := range junk {
			junk[i] = byte('a' + i%26)
		}
		require.NoError(t, os.WriteFile(path, junk, 0o644))

		cm := NewConnectionManager(path, Options{Logger: log.Discard()})
		defer cm.Close()

		err := cm.WithConnection(ctx, ReadWriteCreate, func(context.Context, *Conn) error { return nil })
		assert.ErrorIs(t, err, types.ErrOpen)
	})

	t.Run("path with URI characters", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "odd?name#1%.db")
		cm := NewConnectionManager(path, Options{Logger: log.Discard()})
		defer cm.Close()

		require.NoError(t, cm.WithConnection(ctx, ReadWriteCreate, func(ctx context.Context, c *Conn) error {
			return c.Exec(ctx, "CREATE TABLE t (a)")
		}))
		_, err := os.Stat(path)
		assert.NoError(t, err)
	})
}

func TestConn_ExecuteAndQuery(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		check func(t *testing.T, cm *ConnectionManager)
	}{
		{
			name: "insert reports last insert id and rows affected",
			check: func(t *testing.T, cm *ConnectionManager) {
				err := cm.WithConnection(ctx, ReadWrite, func(ctx context.Context, c *Conn) error {
					res, err := c.ExecuteChange(ctx, "INSERT INTO items (name) VALUES (?)", "a")
					require.NoError(t, err)
					assert.Equal(t, int64(1), res.LastInsertID)
					assert.Equal(t, int64(1), res.RowsAffected)

					res, err = c.ExecuteChange(ctx, "INSERT INTO items (name) VALUES (?)", "b")
					require.NoError(t, err)
					assert.Equal(t, int64(2), res.LastInsertID)

					res, err = c.ExecuteChange(ctx, "UPDATE items SET data = ?", []byte{1})
					require.NoError(t, err)
					assert.Equal(t, int64(2), res.RowsAffected)
					return nil
				})
				require.NoError(t, err)
			},
		},
		{
			name: "query returns rows in order with typed values",
			check: func(t *testing.T, cm *ConnectionManager) {
				err := cm.WithConnection(ctx, ReadWrite, func(ctx context.Context, c *Conn) error {
					for i, name := range []string{"x", "y", "z"} {
						if _, err := c.ExecuteChange(ctx, "INSERT INTO items (name, data) VALUES (?, ?)", name, []byte{byte(i), 0xff}); err != nil {
							return err
						}
					}
					cur := Query(ctx, c, "SELECT id, name, data, NULL AS nothing FROM items ORDER BY id", func(r Row) (Row, error) { return r, nil })
					require.Equal(t, types.CursorSuccess, cur.Status())
					require.Equal(t, 3, cur.Count())

					first, err := cur.At(0)
					require.NoError(t, err)
					assert.Equal(t, []string{"id", "name", "data", "nothing"}, first.Columns())
					assert.Equal(t, KindInteger, first.At(0).Kind())
					assert.Equal(t, "x", first.String("name"))
					assert.Equal(t, []byte{0, 0xff}, first.Bytes("data"))
					assert.True(t, first.IsNull("nothing"))

					last, err := cur.At(2)
					require.NoError(t, err)
					assert.Equal(t, "z", last.String("name"))

					_, err = cur.At(3)
					assert.ErrorIs(t, err, types.ErrIndexOutOfRange)
					return nil
				})
				require.NoError(t, err)
			},
		},
		{
			name: "empty result is a successful empty cursor",
			check: func(t *testing.T, cm *ConnectionManager) {
				err := cm.WithConnection(ctx, ReadOnly, func(ctx context.Context, c *Conn) error {
					cur := Query(ctx, c, "SELECT name FROM items", itemName)
					assert.Equal(t, types.CursorSuccess, cur.Status())
					assert.Equal(t, 0, cur.Count())
					assert.Equal(t, "success", cur.Message())
					return nil
				})
				require.NoError(t, err)
			},
		},
		{
			name: "syntax error is a prepare error",
			check: func(t *testing.T, cm *ConnectionManager) {
				err := cm.WithConnection(ctx, ReadWrite, func(ctx context.Context, c *Conn) error {
					_, err := c.ExecuteChange(ctx, "INSRT INTO items (name) VALUES (?)", "a")
					assert.ErrorIs(t, err, types.ErrPrepare)

					cur := Query(ctx, c, "SELECT name FROM no_such_table", itemName)
					assert.Equal(t, types.CursorFailure, cur.Status())
					assert.ErrorIs(t, cur.Err(), types.ErrPrepare)
					assert.Equal(t, 0, cur.Count())
					assert.NotEmpty(t, cur.Message())
					return nil
				})
				require.NoError(t, err)
			},
		},
		{
			name: "argument count mismatch is a bind error",
			check: func(t *testing.T, cm *ConnectionManager) {
				err := cm.WithConnection(ctx, ReadWrite, func(ctx context.Context, c *Conn) error {
					_, err := c.ExecuteChange(ctx, "INSERT INTO items (name) VALUES (?)")
					var bc *BindCountError
					require.ErrorAs(t, err, &bc)
					assert.Equal(t, 1, bc.Expected)
					assert.Equal(t, 0, bc.Got)
					assert.ErrorIs(t, err, types.ErrBind)

					_, err = c.ExecuteChange(ctx, "INSERT INTO items (name) VALUES (?)", "a", "b")
					assert.ErrorIs(t, err, types.ErrBind)
					return nil
				})
				require.NoError(t, err)
				assert.Equal(t, int64(0), countItems(t, cm))
			},
		},
		{
			name: "unsupported argument type is a bind error",
			check: func(t *testing.T, cm *ConnectionManager) {
				err := cm.WithConnection(ctx, ReadWrite, func(ctx context.Context, c *Conn) error {
					_, err := c.ExecuteChange(ctx, "INSERT INTO items (name) VALUES (?)", struct{}{})
					var bt *BindTypeError
					require.ErrorAs(t, err, &bt)
					assert.Equal(t, 0, bt.Index)
					return nil
				})
				require.NoError(t, err)
			},
		},
		{
			name: "constraint violation is a step error",
			check: func(t *testing.T, cm *ConnectionManager) {
				err := cm.WithConnection(ctx, ReadWrite, func(ctx context.Context, c *Conn) error {
					_, err := c.ExecuteChange(ctx, "INSERT INTO items (name) VALUES (?)", "dup")
					require.NoError(t, err)
					_, err = c.ExecuteChange(ctx, "INSERT INTO items (name) VALUES (?)", "dup")
					assert.ErrorIs(t, err, types.ErrStep)
					assert.True(t, IsConstraint(err))
					assert.False(t, IsBusy(err))
					var se *StepError
					require.ErrorAs(t, err, &se)
					assert.True(t, se.Constraint())
					return nil
				})
				require.NoError(t, err)
			},
		},
		{
			name: "mapper error fails the cursor",
			check: func(t *testing.T, cm *ConnectionManager) {
				boom := errors.New("boom")
				err := cm.WithConnection(ctx, ReadWrite, func(ctx context.Context, c *Conn) error {
					_, err := c.ExecuteChange(ctx, "INSERT INTO items (name) VALUES (?)", "a")
					require.NoError(t, err)
					cur := Query(ctx, c, "SELECT name FROM items", func(Row) (string, error) { return "", boom })
					assert.Equal(t, types.CursorFailure, cur.Status())
					assert.ErrorIs(t, cur.Err(), boom)
					assert.Equal(t, 0, cur.Count())
					return nil
				})
				require.NoError(t, err)
			},
		},
		{
			name: "user version round trips",
			check: func(t *testing.T, cm *ConnectionManager) {
				err := cm.WithConnection(ctx, ReadWrite, func(ctx context.Context, c *Conn) error {
					v, err := c.UserVersion(ctx)
					require.NoError(t, err)
					assert.Equal(t, 0, v)
					require.NoError(t, c.SetUserVersion(ctx, 7))
					return nil
				})
				require.NoError(t, err)

				err = cm.WithConnection(ctx, ReadOnly, func(ctx context.Context, c *Conn) error {
					v, err := c.UserVersion(ctx)
					assert.Equal(t, 7, v)
					return err
				})
				require.NoError(t, err)
			},
		},
		{
			name: "object exists checks sqlite_master",
			check: func(t *testing.T, cm *ConnectionManager) {
				err := cm.WithConnection(ctx, ReadOnly, func(ctx context.Context, c *Conn) error {
					ok, err := c.ObjectExists(ctx, "table", "items")
					require.NoError(t, err)
					assert.True(t, ok)
					ok, err = c.ObjectExists(ctx, "view", "items")
					require.NoError(t, err)
					assert.False(t, ok)
					return nil
				})
				require.NoError(t, err)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, newManager(t))
		})
	}
}

func TestConnectionManager_Transaction(t *testing.T) {
	ctx := context.Background()

	t.Run("commit on success", func(t *testing.T) {
		cm := newManager(t)
		err := cm.Transaction(ctx, func(ctx context.Context, c *Conn) error {
			assert.True(t, c.InTransaction())
			_, err := c.ExecuteChange(ctx, "INSERT INTO items (name) VALUES (?), (?)", "a", "b")
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), countItems(t, cm))
	})

	t.Run("rollback on error", func(t *testing.T) {
		cm := newManager(t)
		sentinel := errors.New("abort")
		err := cm.Transaction(ctx, func(ctx context.Context, c *Conn) error {
			if _, err := c.ExecuteChange(ctx, "INSERT INTO items (name) VALUES (?)", "a"); err != nil {
				return err
			}
			return sentinel
		})
		assert.ErrorIs(t, err, sentinel)
		assert.Equal(t, int64(0), countItems(t, cm))
	})

	t.Run("rollback on panic", func(t *testing.T) {
		cm := newManager(t)
		err := cm.Transaction(ctx, func(ctx context.Context, c *Conn) error {
			if _, err := c.ExecuteChange(ctx, "INSERT INTO items (name) VALUES (?)", "a"); err != nil {
				return err
			}
			panic("kaboom")
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "kaboom")
		assert.Equal(t, int64(0), countItems(t, cm))

		// The manager keeps working after a panicking unit of work.
		require.NoError(t, cm.Transaction(ctx, func(ctx context.Context, c *Conn) error {
			return c.Exec(ctx, "INSERT INTO items (name) VALUES (?)", "b")
		}))
		assert.Equal(t, int64(1), countItems(t, cm))
	})

	t.Run("failed statement rolls back earlier changes", func(t *testing.T) {
		cm := newManager(t)
		err := cm.Transaction(ctx, func(ctx context.Context, c *Conn) error {
			if err := c.Exec(ctx, "INSERT INTO items (name) VALUES (?)", "a"); err != nil {
				return err
			}
			return c.Exec(ctx, "INSERT INTO items (name) VALUES (?)", "a")
		})
		assert.ErrorIs(t, err, types.ErrStep)
		assert.Equal(t, int64(0), countItems(t, cm))
	})

	t.Run("commit failure rolls back", func(t *testing.T) {
		cm := newManager(t)
		require.NoError(t, cm.WithConnection(ctx, ReadWrite, func(ctx context.Context, c *Conn) error {
			if err := c.Exec(ctx, "CREATE TABLE parents (id INTEGER PRIMARY KEY)"); err != nil {
				return err
			}
			return c.Exec(ctx, `CREATE TABLE children (id INTEGER PRIMARY KEY,
    parentID INTEGER REFERENCES parents(id) DEFERRABLE INITIALLY DEFERRED)`)
		}))

		// The orphan is only rejected when the transaction commits.
		err := cm.Transaction(ctx, func(ctx context.Context, c *Conn) error {
			return c.Exec(ctx, "INSERT INTO children (parentID) VALUES (?)", 42)
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, types.ErrStep)
		var se *StepError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "COMMIT", se.SQL)
		assert.True(t, se.Constraint())

		require.NoError(t, cm.WithConnection(ctx, ReadOnly, func(ctx context.Context, c *Conn) error {
			v, err := c.QueryValue(ctx, "SELECT count(*) FROM children")
			assert.Equal(t, int64(0), v.Int64())
			return err
		}))
	})

	t.Run("nested begin is rejected", func(t *testing.T) {
		cm := newManager(t)
		err := cm.Transaction(ctx, func(ctx context.Context, c *Conn) error {
			return c.Begin(ctx)
		})
		assert.ErrorIs(t, err, types.ErrNestedTransaction)
	})
}

func TestConnectionManager_Serialization(t *testing.T) {
	ctx := context.Background()

	t.Run("concurrent callers all succeed", func(t *testing.T) {
		cm := newManager(t)
		g, gctx := errgroup.WithContext(ctx)
		for i := 0; i < 32; i++ {
			g.Go(func() error {
				return cm.Transaction(gctx, func(ctx context.Context, c *Conn) error {
					return c.Exec(ctx, "INSERT INTO items (name) VALUES (?)", fmt.Sprintf("item-%d", i))
				})
			})
		}
		require.NoError(t, g.Wait())
		assert.Equal(t, int64(32), countItems(t, cm))
	})

	t.Run("units of work never overlap", func(t *testing.T) {
		cm := newManager(t)
		var (
			mu      sync.Mutex
			running int
			maxSeen int
		)
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = cm.WithConnection(ctx, ReadOnly, func(ctx context.Context, c *Conn) error {
					mu.Lock()
					running++
					maxSeen = max(maxSeen, running)
					mu.Unlock()
					_, err := c.QueryValue(ctx, "SELECT count(*) FROM items")
					mu.Lock()
					running--
					mu.Unlock()
					return err
				})
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, maxSeen)
	})

	t.Run("sequential submissions run in order", func(t *testing.T) {
		cm := newManager(t)
		for i := 0; i < 10; i++ {
			require.NoError(t, cm.Transaction(ctx, func(ctx context.Context, c *Conn) error {
				return c.Exec(ctx, "INSERT INTO items (name) VALUES (?)", fmt.Sprintf("n%02d", i))
			}))
		}
		err := cm.WithConnection(ctx, ReadOnly, func(ctx context.Context, c *Conn) error {
			cur := Query(ctx, c, "SELECT name FROM items ORDER BY id", itemName)
			require.Equal(t, 10, cur.Count())
			for i, name := range cur.All() {
				assert.Equal(t, fmt.Sprintf("n%02d", i), name)
			}
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("cancelled context is not run", func(t *testing.T) {
		cm := newManager(t)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		called := false
		err := cm.WithConnection(cctx, ReadOnly, func(context.Context, *Conn) error {
			called = true
			return nil
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, called)
	})

	t.Run("closed manager rejects work", func(t *testing.T) {
		cm := newManager(t)
		require.NoError(t, cm.Close())
		require.NoError(t, cm.Close())
		err := cm.WithConnection(ctx, ReadOnly, func(context.Context, *Conn) error { return nil })
		assert.ErrorIs(t, err, types.ErrClosed)
	})
}

func TestMetrics(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	path := filepath.Join(t.TempDir(), "metrics.db")
	cm := NewConnectionManager(path, Options{Logger: log.Discard(), Registerer: reg})
	defer cm.Close()

	require.NoError(t, cm.Transaction(ctx, func(ctx context.Context, c *Conn) error {
		if err := c.Exec(ctx, "CREATE TABLE t (a TEXT UNIQUE)"); err != nil {
			return err
		}
		return c.Exec(ctx, "INSERT INTO t (a) VALUES (?)", "x")
	}))
	_ = cm.WithConnection(ctx, ReadWrite, func(ctx context.Context, c *Conn) error {
		return c.Exec(ctx, "INSERT INTO t (a) VALUES (?)", "x")
	})

	m := cm.Metrics()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Statements.WithLabelValues("ddl")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.Statements.WithLabelValues("change")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.Statements.WithLabelValues("tx")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Errors.WithLabelValues("step")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.Opens))

	// A second manager on the same registry shares the collectors.
	other := NewConnectionManager(path, Options{Logger: log.Discard(), Registerer: reg})
	defer other.Close()
	assert.Same(t, m.Statements, other.Metrics().Statements)
}

func TestRetry_NonBusyErrorsAreNotRetried(t *testing.T) {
	c := &Conn{retries: 5, logger: log.Discard(), metrics: NewMetrics(nil)}
	calls := 0
	sentinel := errors.New("permanent")
	err := c.retry(context.Background(), func() error {
		calls++
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
	assert.Equal(t, float64(0), testutil.ToFloat64(c.metrics.Retries))
}

func TestRetry_BusyErrorsAreRetried(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		retries int
		fails   int
		wantErr bool
		calls   int
		retried float64
	}{
		{name: "busy clears before the limit", code: sqlite3.SQLITE_BUSY, retries: 3, fails: 2, calls: 3, retried: 2},
		{name: "locked clears before the limit", code: sqlite3.SQLITE_LOCKED, retries: 3, fails: 1, calls: 2, retried: 1},
		{name: "busy outlasts the limit", code: sqlite3.SQLITE_BUSY, retries: 2, fails: 5, wantErr: true, calls: 3, retried: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Conn{retries: tt.retries, logger: log.Discard(), metrics: NewMetrics(nil)}
			calls := 0
			err := c.retry(context.Background(), func() error {
				calls++
				if calls <= tt.fails {
					return &StepError{SQL: "UPDATE items SET data = NULL", Code: tt.code, Err: errors.New("database is locked")}
				}
				return nil
			})
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsBusy(err))
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.calls, calls)
			assert.Equal(t, tt.retried, testutil.ToFloat64(c.metrics.Retries))
		})
	}
}
