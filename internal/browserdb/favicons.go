// This file implements the favicons table and its faviconSites join.
package browserdb

import (
	"context"
	"time"

	"github.com/mesh-intelligence/browserdb/internal/sqlite"
	"github.com/mesh-intelligence/browserdb/pkg/types"
)

const (
	createFavicons = `CREATE TABLE favicons (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    url TEXT NOT NULL UNIQUE,
    width INTEGER,
    height INTEGER,
    type INTEGER NOT NULL,
    date INTEGER NOT NULL,
    data BLOB
)`

	createFaviconSites = `CREATE TABLE faviconSites (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    siteID INTEGER NOT NULL REFERENCES history(id) ON DELETE CASCADE,
    faviconID INTEGER NOT NULL REFERENCES favicons(id) ON DELETE CASCADE,
    UNIQUE (siteID, faviconID)
)`

	createFaviconSitesIndex = `CREATE INDEX IF NOT EXISTS idx_faviconSites_faviconID ON faviconSites (faviconID)`

	// One row per site: the widest of its icons. SQLite takes the bare
	// columns from the row that supplied MAX(width).
	createWidestFaviconsView = `CREATE VIEW view_favicons_widest AS
SELECT fs.siteID AS siteID, f.id AS iconID, f.url AS iconURL, f.date AS iconDate,
    f.type AS iconType, MAX(f.width) AS iconWidth, f.height AS iconHeight
FROM faviconSites AS fs
JOIN favicons AS f ON f.id = fs.faviconID
GROUP BY fs.siteID`
)

// faviconsTable is the "favicons" logical table.
type faviconsTable struct {
	now func() time.Time
}

func newFaviconsTable(now func() time.Time) *faviconsTable { return &faviconsTable{now: now} }

func (t *faviconsTable) Name() string { return types.TableFavicons }

func (t *faviconsTable) Create(ctx context.Context, c *sqlite.Conn) error {
	return execAll(ctx, c, createFavicons, createFaviconSites, createFaviconSitesIndex, createWidestFaviconsView)
}

func (t *faviconsTable) Exists(ctx context.Context, c *sqlite.Conn) (bool, error) {
	return c.ObjectExists(ctx, KindTable, "favicons")
}

func (t *faviconsTable) Objects() []SchemaObject {
	return []SchemaObject{
		{KindView, "view_favicons_widest"},
		{KindView, "view_history_id_favicon"},
		{KindIndex, "idx_faviconSites_faviconID"},
		{KindTable, "faviconSites"},
		{KindTable, "favicons"},
	}
}

func (t *faviconsTable) Migrations() []Migration {
	return []Migration{{
		From:        4,
		Description: "add view_favicons_widest",
		Apply: execStep(
			createFaviconSitesIndex,
			`DROP VIEW IF EXISTS view_favicons_widest`,
			createWidestFaviconsView,
		),
	}}
}

// Insert upserts a *types.Favicon by URL. When the favicon carries a Site,
// the site is created if needed and linked to the icon. It returns the
// favicon id. A *types.FaviconSite links an existing site and icon and
// returns the id of the link.
func (t *faviconsTable) Insert(ctx context.Context, c *sqlite.Conn, item any) (int64, error) {
	if fs, ok := item.(*types.FaviconSite); ok {
		return t.link(ctx, c, fs)
	}
	f, ok := item.(*types.Favicon)
	if !ok || f == nil {
		return -1, invalidItem(t.Name(), item)
	}
	if f.URL == "" {
		return -1, types.ErrInvalidURL
	}
	if f.Date.IsZero() {
		f.Date = t.now()
	}

	_, err := c.ExecuteChange(ctx, `INSERT INTO favicons (url, width, height, type, date, data)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (url) DO UPDATE SET
    width = excluded.width, height = excluded.height, type = excluded.type,
    date = excluded.date, data = excluded.data`,
		f.URL, f.Width, f.Height, int64(f.Type), micros(f.Date), f.Data)
	if err != nil {
		return -1, err
	}
	id, err := c.QueryValue(ctx, "SELECT id FROM favicons WHERE url = ?", f.URL)
	if err != nil {
		return -1, err
	}
	f.ID = id.Int64()

	if f.Site != nil {
		site := f.Site.ID
		if site == 0 {
			if site, err = upsertSite(ctx, c, f.Site); err != nil {
				return -1, err
			}
		}
		if err := c.Exec(ctx, "INSERT OR IGNORE INTO faviconSites (siteID, faviconID) VALUES (?, ?)", site, f.ID); err != nil {
			return -1, err
		}
	}
	return f.ID, nil
}

func (t *faviconsTable) link(ctx context.Context, c *sqlite.Conn, fs *types.FaviconSite) (int64, error) {
	if fs == nil || fs.SiteID == 0 || fs.FaviconID == 0 {
		return -1, invalidItem(t.Name(), fs)
	}
	if err := c.Exec(ctx, "INSERT OR IGNORE INTO faviconSites (siteID, faviconID) VALUES (?, ?)", fs.SiteID, fs.FaviconID); err != nil {
		return -1, err
	}
	id, err := c.QueryValue(ctx, "SELECT id FROM faviconSites WHERE siteID = ? AND faviconID = ?", fs.SiteID, fs.FaviconID)
	if err != nil {
		return -1, err
	}
	fs.ID = id.Int64()
	return fs.ID, nil
}

// Update rewrites the favicon with the given ID.
func (t *faviconsTable) Update(ctx context.Context, c *sqlite.Conn, item any) (int64, error) {
	f, ok := item.(*types.Favicon)
	if !ok || f == nil || f.ID == 0 {
		return -1, invalidItem(t.Name(), item)
	}
	if f.URL == "" {
		return -1, types.ErrInvalidURL
	}
	res, err := c.ExecuteChange(ctx,
		"UPDATE favicons SET url = ?, width = ?, height = ?, type = ?, date = ?, data = ? WHERE id = ?",
		f.URL, f.Width, f.Height, int64(f.Type), micros(f.Date), f.Data, f.ID)
	if err != nil {
		return -1, err
	}
	return res.RowsAffected, nil
}

// Delete removes a favicon by ID or URL, together with its site links. A
// *types.FaviconSite removes only the link, by ID or by its site and icon.
// A nil item removes every favicon.
func (t *faviconsTable) Delete(ctx context.Context, c *sqlite.Conn, item any) (int64, error) {
	var (
		res sqlite.Result
		err error
	)
	switch f := item.(type) {
	case nil:
		res, err = c.ExecuteChange(ctx, "DELETE FROM favicons")
	case *types.Favicon:
		switch {
		case f == nil:
			return -1, invalidItem(t.Name(), item)
		case f.ID != 0:
			res, err = c.ExecuteChange(ctx, "DELETE FROM favicons WHERE id = ?", f.ID)
		case f.URL != "":
			res, err = c.ExecuteChange(ctx, "DELETE FROM favicons WHERE url = ?", f.URL)
		default:
			return -1, types.ErrInvalidURL
		}
	case *types.FaviconSite:
		switch {
		case f == nil:
			return -1, invalidItem(t.Name(), item)
		case f.ID != 0:
			res, err = c.ExecuteChange(ctx, "DELETE FROM faviconSites WHERE id = ?", f.ID)
		case f.SiteID != 0 && f.FaviconID != 0:
			res, err = c.ExecuteChange(ctx, "DELETE FROM faviconSites WHERE siteID = ? AND faviconID = ?", f.SiteID, f.FaviconID)
		default:
			return -1, invalidItem(t.Name(), item)
		}
	default:
		return -1, invalidItem(t.Name(), item)
	}
	if err != nil {
		return -1, err
	}
	return res.RowsAffected, nil
}

const faviconColumns = `f.id AS id, f.url AS url, f.width AS width, f.height AS height,
    f.type AS type, f.date AS date, f.data AS data`

// Query returns favicons. The filter is the exact URL of a site the icons
// are linked to. SortLastVisit orders by download date and SortFrecency by
// width, widest first.
func (t *faviconsTable) Query(ctx context.Context, c *sqlite.Conn, opts *types.QueryOptions) *types.Cursor[any] {
	o := options(opts)
	var q *queryBuilder
	if o.Filter != "" {
		q = newQuery(`SELECT ` + faviconColumns + `
FROM favicons AS f
JOIN faviconSites AS fs ON fs.faviconID = f.id
JOIN history AS h ON h.id = fs.siteID`).Where("h.url = ?", o.Filter)
	} else {
		q = newQuery(`SELECT ` + faviconColumns + ` FROM favicons AS f`)
	}
	switch o.Sort {
	case types.SortLastVisit:
		q.OrderBy("f.date DESC, f.id DESC")
	case types.SortFrecency:
		q.OrderBy("f.width DESC, f.id")
	default:
		q.OrderBy("f.id")
	}
	q.Limit(o.Limit)
	return run(ctx, c, q, scanFavicon)
}

func scanFavicon(r sqlite.Row) (*types.Favicon, error) {
	f := &types.Favicon{
		ID:     r.Int64("id"),
		URL:    r.String("url"),
		Width:  r.Int("width"),
		Height: r.Int("height"),
		Type:   types.IconType(r.Int("type")),
		Date:   types.FromMicros(r.Int64("date")),
	}
	if !r.IsNull("data") {
		f.Data = r.Bytes("data")
	}
	return f, nil
}
