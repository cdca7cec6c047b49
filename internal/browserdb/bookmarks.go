// This file implements the bookmarks table: a tree of folders, bookmarks
// and separators linked by parent GUID.
package browserdb

import (
	"context"
	"fmt"
	"time"

	"github.com/mesh-intelligence/browserdb/internal/sqlite"
	"github.com/mesh-intelligence/browserdb/pkg/types"
)

const (
	createBookmarks = `CREATE TABLE bookmarks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    guid TEXT NOT NULL UNIQUE,
    type INTEGER NOT NULL,
    url TEXT,
    title TEXT NOT NULL DEFAULT '',
    parent TEXT NOT NULL,
    faviconID INTEGER,
    date_added INTEGER NOT NULL DEFAULT 0
)`

	createBookmarksParentIndex = `CREATE INDEX IF NOT EXISTS idx_bookmarks_parent ON bookmarks (parent)`
)

type bookmarksTable struct {
	now func() time.Time
}

func newBookmarksTable(now func() time.Time) *bookmarksTable { return &bookmarksTable{now: now} }

func (t *bookmarksTable) Name() string { return types.TableBookmarks }

func (t *bookmarksTable) Create(ctx context.Context, c *sqlite.Conn) error {
	return execAll(ctx, c, createBookmarks, createBookmarksParentIndex)
}

func (t *bookmarksTable) Exists(ctx context.Context, c *sqlite.Conn) (bool, error) {
	return c.ObjectExists(ctx, KindTable, "bookmarks")
}

func (t *bookmarksTable) Objects() []SchemaObject {
	return []SchemaObject{
		{KindView, "view_bookmarks_with_favicons"},
		{KindIndex, "idx_bookmarks_parent"},
		{KindTable, "bookmarks"},
	}
}

func (t *bookmarksTable) Migrations() []Migration {
	return []Migration{{
		From:        5,
		Description: "add date_added",
		Apply: execStep(
			`ALTER TABLE bookmarks ADD COLUMN date_added INTEGER NOT NULL DEFAULT 0`,
			createBookmarksParentIndex,
		),
	}}
}

// Insert adds a *types.Bookmark, generating its GUID when empty. Items
// without a parent go to the mobile folder. Bookmarks need a URL; folders
// and separators never store one.
func (t *bookmarksTable) Insert(ctx context.Context, c *sqlite.Conn, item any) (int64, error) {
	b, ok := item.(*types.Bookmark)
	if !ok || b == nil {
		return -1, invalidItem(t.Name(), item)
	}
	if err := normalizeBookmark(b); err != nil {
		return -1, err
	}
	if b.GUID == "" {
		g, err := newGUID()
		if err != nil {
			return -1, err
		}
		b.GUID = g
	}
	if b.ParentGUID == "" {
		b.ParentGUID = types.MobileFolderGUID
	}
	if b.DateAdded.IsZero() {
		b.DateAdded = t.now()
	}

	res, err := c.ExecuteChange(ctx, `INSERT INTO bookmarks (guid, type, url, title, parent, faviconID, date_added)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.GUID, int64(b.Kind), nullString(b.URL), b.Title, b.ParentGUID, nullInt(b.FaviconID), micros(b.DateAdded))
	if err != nil {
		return -1, err
	}
	b.ID = res.LastInsertID
	return b.ID, nil
}

// Update rewrites the bookmark identified by ID or GUID.
func (t *bookmarksTable) Update(ctx context.Context, c *sqlite.Conn, item any) (int64, error) {
	b, ok := item.(*types.Bookmark)
	if !ok || b == nil || (b.ID == 0 && b.GUID == "") {
		return -1, invalidItem(t.Name(), item)
	}
	if err := normalizeBookmark(b); err != nil {
		return -1, err
	}
	if b.ParentGUID == "" {
		b.ParentGUID = types.MobileFolderGUID
	}
	const set = `UPDATE bookmarks SET type = ?, url = ?, title = ?, parent = ?, faviconID = ?, date_added = ?`
	args := []any{int64(b.Kind), nullString(b.URL), b.Title, b.ParentGUID, nullInt(b.FaviconID), micros(b.DateAdded)}

	var (
		res sqlite.Result
		err error
	)
	if b.ID != 0 {
		res, err = c.ExecuteChange(ctx, set+" WHERE id = ?", append(args, b.ID)...)
	} else {
		res, err = c.ExecuteChange(ctx, set+" WHERE guid = ?", append(args, b.GUID)...)
	}
	if err != nil {
		return -1, err
	}
	return res.RowsAffected, nil
}

// Delete removes a bookmark by ID or GUID. Deleting a folder removes
// everything under it. A nil item removes every bookmark.
func (t *bookmarksTable) Delete(ctx context.Context, c *sqlite.Conn, item any) (int64, error) {
	if item == nil {
		res, err := c.ExecuteChange(ctx, "DELETE FROM bookmarks")
		if err != nil {
			return -1, err
		}
		return res.RowsAffected, nil
	}
	b, ok := item.(*types.Bookmark)
	if !ok || b == nil || (b.ID == 0 && b.GUID == "") {
		return -1, invalidItem(t.Name(), item)
	}

	// UNION rather than UNION ALL so self-parented roots terminate.
	const subtree = `WITH RECURSIVE subtree(guid) AS (
    SELECT guid FROM bookmarks WHERE %s
    UNION
    SELECT b.guid FROM bookmarks AS b JOIN subtree AS s ON b.parent = s.guid
)
DELETE FROM bookmarks WHERE guid IN (SELECT guid FROM subtree)`

	var (
		res sqlite.Result
		err error
	)
	if b.ID != 0 {
		res, err = c.ExecuteChange(ctx, fmt.Sprintf(subtree, "id = ?"), b.ID)
	} else {
		res, err = c.ExecuteChange(ctx, fmt.Sprintf(subtree, "guid = ?"), b.GUID)
	}
	if err != nil {
		return -1, err
	}
	return res.RowsAffected, nil
}

const bookmarksQuery = `SELECT b.id AS id, b.guid AS guid, b.type AS type, b.url AS url, b.title AS title,
    b.parent AS parent, b.faviconID AS faviconID, b.date_added AS date_added
FROM bookmarks AS b`

// Query returns bookmarks; the filter is the exact GUID of the parent
// folder. SortFrecency ranks by the history frecency of each URL.
func (t *bookmarksTable) Query(ctx context.Context, c *sqlite.Conn, opts *types.QueryOptions) *types.Cursor[any] {
	o := options(opts)
	base := bookmarksQuery
	if o.Sort == types.SortFrecency {
		base += " LEFT JOIN view_history_visits AS hv ON hv.url = b.url"
	}
	q := newQuery(base)
	if o.Filter != "" {
		q.Where("b.parent = ?", o.Filter)
	}
	switch o.Sort {
	case types.SortLastVisit:
		q.OrderBy("b.date_added DESC, b.id DESC")
	case types.SortFrecency:
		q.OrderBy(frecencySQL("COALESCE(hv.visitCount, 0)", "hv.visitDate")+" DESC, b.id", micros(t.now()))
	default:
		q.OrderBy("b.id")
	}
	q.Limit(o.Limit)
	return run(ctx, c, q, scanBookmark)
}

func scanBookmark(r sqlite.Row) (*types.Bookmark, error) {
	return &types.Bookmark{
		ID:         r.Int64("id"),
		GUID:       r.String("guid"),
		Kind:       types.BookmarkKind(r.Int("type")),
		URL:        r.String("url"),
		Title:      r.String("title"),
		ParentGUID: r.String("parent"),
		FaviconID:  r.Int64("faviconID"),
		DateAdded:  types.FromMicros(r.Int64("date_added")),
	}, nil
}

func normalizeBookmark(b *types.Bookmark) error {
	switch b.Kind {
	case types.BookmarkKindBookmark:
		if b.URL == "" {
			return types.ErrInvalidURL
		}
	case types.BookmarkKindFolder, types.BookmarkKindSeparator:
		b.URL = ""
	default:
		return invalidItem(types.TableBookmarks, b)
	}
	return nil
}
