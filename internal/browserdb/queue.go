// This file implements the tab queue: URLs handed to the browser while it
// was not running, opened in arrival order.
package browserdb

import (
	"context"

	"github.com/mesh-intelligence/browserdb/internal/sqlite"
	"github.com/mesh-intelligence/browserdb/pkg/types"
)

const createQueue = `CREATE TABLE queue (
    url TEXT NOT NULL UNIQUE,
    title TEXT
)`

type queueTable struct{}

func (queueTable) Name() string { return types.TableQueue }

func (queueTable) Create(ctx context.Context, c *sqlite.Conn) error {
	return c.Exec(ctx, createQueue)
}

func (queueTable) Exists(ctx context.Context, c *sqlite.Conn) (bool, error) {
	return c.ObjectExists(ctx, KindTable, "queue")
}

func (queueTable) Objects() []SchemaObject {
	return []SchemaObject{{KindTable, "queue"}}
}

// Migrations is empty: the queue first appears in version 5 and older
// databases get it from the missing-table check.
func (queueTable) Migrations() []Migration { return nil }

// Insert queues a *types.QueuedTab. A URL already in the queue keeps its
// place. It returns the entry's row id.
func (t queueTable) Insert(ctx context.Context, c *sqlite.Conn, item any) (int64, error) {
	tab, ok := item.(*types.QueuedTab)
	if !ok || tab == nil {
		return -1, invalidItem(t.Name(), item)
	}
	if tab.URL == "" {
		return -1, types.ErrInvalidURL
	}
	if err := c.Exec(ctx, "INSERT OR IGNORE INTO queue (url, title) VALUES (?, ?)", tab.URL, nullString(tab.Title)); err != nil {
		return -1, err
	}
	id, err := c.QueryValue(ctx, "SELECT rowid FROM queue WHERE url = ?", tab.URL)
	if err != nil {
		return -1, err
	}
	return id.Int64(), nil
}

// Update changes the title of a queued URL.
func (t queueTable) Update(ctx context.Context, c *sqlite.Conn, item any) (int64, error) {
	tab, ok := item.(*types.QueuedTab)
	if !ok || tab == nil || tab.URL == "" {
		return -1, invalidItem(t.Name(), item)
	}
	res, err := c.ExecuteChange(ctx, "UPDATE queue SET title = ? WHERE url = ?", nullString(tab.Title), tab.URL)
	if err != nil {
		return -1, err
	}
	return res.RowsAffected, nil
}

// Delete removes one queued URL, or every entry for a nil item.
func (t queueTable) Delete(ctx context.Context, c *sqlite.Conn, item any) (int64, error) {
	var (
		res sqlite.Result
		err error
	)
	switch tab := item.(type) {
	case nil:
		res, err = c.ExecuteChange(ctx, "DELETE FROM queue")
	case *types.QueuedTab:
		if tab == nil || tab.URL == "" {
			return -1, invalidItem(t.Name(), item)
		}
		res, err = c.ExecuteChange(ctx, "DELETE FROM queue WHERE url = ?", tab.URL)
	default:
		return -1, invalidItem(t.Name(), item)
	}
	if err != nil {
		return -1, err
	}
	return res.RowsAffected, nil
}

// Query returns queued tabs in arrival order whatever the sort; the filter
// matches the URL as a substring.
func (queueTable) Query(ctx context.Context, c *sqlite.Conn, opts *types.QueryOptions) *types.Cursor[any] {
	o := options(opts)
	q := newQuery("SELECT url, title FROM queue")
	if o.Filter != "" {
		q.Where(`url LIKE ? ESCAPE '\'`, containsPattern(o.Filter))
	}
	q.OrderBy("rowid").Limit(o.Limit)
	return run(ctx, c, q, func(r sqlite.Row) (*types.QueuedTab, error) {
		return &types.QueuedTab{URL: r.String("url"), Title: r.String("title")}, nil
	})
}
