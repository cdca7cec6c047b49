// This file implements the history and visits tables. Sites live in
// history; visits reference a site and are unique per (site, date, type).
package browserdb

import (
	"context"
	"fmt"
	"time"

	"github.com/mesh-intelligence/browserdb/internal/sqlite"
	"github.com/mesh-intelligence/browserdb/pkg/types"
)

const (
	createHistory = `CREATE TABLE history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    guid TEXT NOT NULL UNIQUE,
    url TEXT UNIQUE,
    title TEXT NOT NULL,
    is_deleted INTEGER NOT NULL DEFAULT 0,
    CHECK (url IS NOT NULL OR is_deleted = 1)
)`

	createHistoryDeletedIndex = `CREATE INDEX IF NOT EXISTS idx_history_is_deleted ON history (is_deleted)`

	createVisits = `CREATE TABLE visits (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    siteID INTEGER NOT NULL REFERENCES history(id) ON DELETE CASCADE,
    date INTEGER NOT NULL,
    type INTEGER NOT NULL,
    UNIQUE (siteID, date, type)
)`

	createVisitsIndex = `CREATE INDEX IF NOT EXISTS idx_visits_siteID_date ON visits (siteID, date)`

	// view_history_visits lists live sites with their latest visit and
	// visit count. Sites without visits have a NULL visitDate.
	createHistoryVisitsView = `CREATE VIEW view_history_visits AS
SELECT h.id AS id, h.guid AS guid, h.url AS url, h.title AS title,
    (SELECT MAX(date) FROM visits WHERE siteID = h.id) AS visitDate,
    (SELECT type FROM visits WHERE siteID = h.id ORDER BY date DESC, id DESC LIMIT 1) AS visitType,
    (SELECT COUNT(*) FROM visits WHERE siteID = h.id) AS visitCount
FROM history AS h
WHERE h.is_deleted = 0`
)

// historyTable is the "history" logical table: sites joined with their
// visit statistics and widest favicon.
type historyTable struct {
	now func() time.Time
}

func newHistoryTable(now func() time.Time) *historyTable { return &historyTable{now: now} }

func (t *historyTable) Name() string { return types.TableHistory }

func (t *historyTable) Create(ctx context.Context, c *sqlite.Conn) error {
	return execAll(ctx, c, createHistory, createHistoryDeletedIndex)
}

func (t *historyTable) Exists(ctx context.Context, c *sqlite.Conn) (bool, error) {
	return c.ObjectExists(ctx, KindTable, "history")
}

func (t *historyTable) Objects() []SchemaObject {
	return []SchemaObject{
		{KindIndex, "idx_history_is_deleted"},
		{KindIndex, "idx_history_url"},
		{KindTable, "history"},
	}
}

func (t *historyTable) Migrations() []Migration {
	return []Migration{{
		From:        3,
		Description: "add is_deleted tombstones",
		Apply: execStep(
			`ALTER TABLE history ADD COLUMN is_deleted INTEGER NOT NULL DEFAULT 0`,
			createHistoryDeletedIndex,
		),
	}}
}

// Insert accepts a *types.Site, which is upserted by URL, or a
// *types.Visit, which upserts its site and records the visit. It returns
// the site or visit id.
func (t *historyTable) Insert(ctx context.Context, c *sqlite.Conn, item any) (int64, error) {
	switch v := item.(type) {
	case *types.Site:
		return upsertSite(ctx, c, v)
	case *types.Visit:
		return insertVisit(ctx, c, v, t.now)
	default:
		return -1, invalidItem(t.Name(), item)
	}
}

// Update changes the URL and title of the site with the given ID.
func (t *historyTable) Update(ctx context.Context, c *sqlite.Conn, item any) (int64, error) {
	s, ok := item.(*types.Site)
	if !ok || s == nil {
		return -1, invalidItem(t.Name(), item)
	}
	if s.URL == "" {
		return -1, types.ErrInvalidURL
	}
	id, err := siteID(ctx, c, s)
	if err != nil {
		return -1, err
	}
	if id == 0 {
		return 0, nil
	}
	res, err := c.ExecuteChange(ctx,
		"UPDATE history SET url = ?, title = ?, is_deleted = 0 WHERE id = ?",
		s.URL, s.Title, id)
	if err != nil {
		return -1, err
	}
	return res.RowsAffected, nil
}

// Delete tombstones a *types.Site, removing its visits and favicon links,
// deletes a single *types.Visit, or with a nil item removes every site.
func (t *historyTable) Delete(ctx context.Context, c *sqlite.Conn, item any) (int64, error) {
	switch v := item.(type) {
	case nil:
		res, err := c.ExecuteChange(ctx, "DELETE FROM history")
		if err != nil {
			return -1, err
		}
		return res.RowsAffected, nil
	case *types.Site:
		return tombstoneSite(ctx, c, v)
	case *types.Visit:
		return deleteVisit(ctx, c, v)
	default:
		return -1, invalidItem(t.Name(), item)
	}
}

const historyQuery = `SELECT v.id AS id, v.guid AS guid, v.url AS url, v.title AS title,
    v.visitDate AS visitDate, v.visitType AS visitType, v.visitCount AS visitCount,
    i.iconID AS iconID, i.iconURL AS iconURL, i.iconDate AS iconDate, i.iconType AS iconType,
    i.iconWidth AS iconWidth, i.iconHeight AS iconHeight
FROM view_history_visits AS v
LEFT JOIN view_favicons_widest AS i ON i.siteID = v.id`

// Query returns live sites. The filter matches the URL, or the URL and
// title with FilterURLAndTitle, as a substring.
func (t *historyTable) Query(ctx context.Context, c *sqlite.Conn, opts *types.QueryOptions) *types.Cursor[any] {
	o := options(opts)
	q := newQuery(historyQuery)
	if o.Filter != "" {
		p := containsPattern(o.Filter)
		if o.FilterType == types.FilterURLAndTitle {
			q.Where(`(v.url LIKE ? ESCAPE '\' OR v.title LIKE ? ESCAPE '\')`, p, p)
		} else {
			q.Where(`v.url LIKE ? ESCAPE '\'`, p)
		}
	}
	switch o.Sort {
	case types.SortLastVisit:
		q.OrderBy("v.visitDate DESC, v.id DESC")
	case types.SortFrecency:
		q.OrderBy(frecencySQL("v.visitCount", "v.visitDate")+" DESC, v.visitDate DESC, v.id DESC", micros(t.now()))
	default:
		q.OrderBy("v.id")
	}
	q.Limit(o.Limit)
	return run(ctx, c, q, scanSite)
}

func scanSite(r sqlite.Row) (*types.Site, error) {
	s := &types.Site{
		ID:         r.Int64("id"),
		GUID:       r.String("guid"),
		URL:        r.String("url"),
		Title:      r.String("title"),
		VisitCount: r.Int("visitCount"),
	}
	if !r.IsNull("visitDate") {
		s.LatestVisit = &types.Visit{
			Date:   types.FromMicros(r.Int64("visitDate")),
			Type:   types.VisitType(r.Int("visitType")),
			SiteID: s.ID,
		}
	}
	if !r.IsNull("iconID") {
		s.Icon = &types.Favicon{
			ID:     r.Int64("iconID"),
			URL:    r.String("iconURL"),
			Date:   types.FromMicros(r.Int64("iconDate")),
			Type:   types.IconType(r.Int("iconType")),
			Width:  r.Int("iconWidth"),
			Height: r.Int("iconHeight"),
		}
	}
	return s, nil
}

// visitsTable is the "visits" logical table.
type visitsTable struct {
	now func() time.Time
}

func newVisitsTable(now func() time.Time) *visitsTable { return &visitsTable{now: now} }

func (t *visitsTable) Name() string { return types.TableVisits }

func (t *visitsTable) Create(ctx context.Context, c *sqlite.Conn) error {
	return execAll(ctx, c, createVisits, createVisitsIndex, createHistoryVisitsView)
}

func (t *visitsTable) Exists(ctx context.Context, c *sqlite.Conn) (bool, error) {
	return c.ObjectExists(ctx, KindTable, "visits")
}

func (t *visitsTable) Objects() []SchemaObject {
	return []SchemaObject{
		{KindView, "view_history_visits"},
		{KindIndex, "idx_visits_siteID_date"},
		{KindTable, "visits"},
	}
}

func (t *visitsTable) Migrations() []Migration {
	return []Migration{{
		From:        6,
		Description: "rebuild view_history_visits with visit counts",
		Apply: execStep(
			`DROP VIEW IF EXISTS view_history_visits`,
			createHistoryVisitsView,
		),
	}}
}

func (t *visitsTable) Insert(ctx context.Context, c *sqlite.Conn, item any) (int64, error) {
	v, ok := item.(*types.Visit)
	if !ok {
		return -1, invalidItem(t.Name(), item)
	}
	return insertVisit(ctx, c, v, t.now)
}

// Update changes the date and type of the visit with the given ID.
func (t *visitsTable) Update(ctx context.Context, c *sqlite.Conn, item any) (int64, error) {
	v, ok := item.(*types.Visit)
	if !ok || v == nil || v.ID == 0 {
		return -1, invalidItem(t.Name(), item)
	}
	res, err := c.ExecuteChange(ctx, "UPDATE visits SET date = ?, type = ? WHERE id = ?",
		micros(v.Date), int64(v.Type), v.ID)
	if err != nil {
		return -1, err
	}
	return res.RowsAffected, nil
}

func (t *visitsTable) Delete(ctx context.Context, c *sqlite.Conn, item any) (int64, error) {
	switch v := item.(type) {
	case nil:
		res, err := c.ExecuteChange(ctx, "DELETE FROM visits")
		if err != nil {
			return -1, err
		}
		return res.RowsAffected, nil
	case *types.Visit:
		return deleteVisit(ctx, c, v)
	default:
		return -1, invalidItem(t.Name(), item)
	}
}

const visitsQuery = `SELECT v.id AS id, v.date AS date, v.type AS type, v.siteID AS siteID,
    h.guid AS guid, h.url AS url, h.title AS title
FROM visits AS v
JOIN history AS h ON h.id = v.siteID`

// Query returns visits; the filter is the exact URL of the visited site.
func (t *visitsTable) Query(ctx context.Context, c *sqlite.Conn, opts *types.QueryOptions) *types.Cursor[any] {
	o := options(opts)
	q := newQuery(visitsQuery)
	if o.Filter != "" {
		q.Where("h.url = ?", o.Filter)
	}
	if o.Sort == types.SortNone {
		q.OrderBy("v.id")
	} else {
		q.OrderBy("v.date DESC, v.id DESC")
	}
	q.Limit(o.Limit)
	return run(ctx, c, q, scanVisit)
}

func scanVisit(r sqlite.Row) (*types.Visit, error) {
	siteID := r.Int64("siteID")
	return &types.Visit{
		ID:     r.Int64("id"),
		Date:   types.FromMicros(r.Int64("date")),
		Type:   types.VisitType(r.Int("type")),
		SiteID: siteID,
		Site: &types.Site{
			ID:    siteID,
			GUID:  r.String("guid"),
			URL:   r.String("url"),
			Title: r.String("title"),
		},
	}, nil
}

// upsertSite inserts s or, when its URL is already present, revives the
// row and refreshes a non-empty title. It fills in s.ID and s.GUID.
func upsertSite(ctx context.Context, c *sqlite.Conn, s *types.Site) (int64, error) {
	if s == nil || s.URL == "" {
		return -1, types.ErrInvalidURL
	}
	guid := s.GUID
	if guid == "" {
		g, err := newGUID()
		if err != nil {
			return -1, err
		}
		guid = g
	}
	_, err := c.ExecuteChange(ctx, `INSERT INTO history (guid, url, title) VALUES (?, ?, ?)
ON CONFLICT (url) DO UPDATE SET
    title = CASE WHEN excluded.title <> '' THEN excluded.title ELSE history.title END,
    is_deleted = 0`,
		guid, s.URL, s.Title)
	if err != nil {
		return -1, err
	}

	cur := sqlite.Query(ctx, c, "SELECT id, guid FROM history WHERE url = ?",
		func(r sqlite.Row) (types.Site, error) {
			return types.Site{ID: r.Int64("id"), GUID: r.String("guid")}, nil
		}, s.URL)
	if err := cur.Err(); err != nil {
		return -1, err
	}
	row, err := cur.At(0)
	if err != nil {
		return -1, fmt.Errorf("site %s after upsert: %w", s.URL, types.ErrNotFound)
	}
	s.ID, s.GUID = row.ID, row.GUID
	return row.ID, nil
}

// siteID resolves a site by ID, then GUID, then URL. It returns 0 when no
// live row matches.
func siteID(ctx context.Context, c *sqlite.Conn, s *types.Site) (int64, error) {
	var (
		v   sqlite.Value
		err error
	)
	switch {
	case s.ID != 0:
		return s.ID, nil
	case s.GUID != "":
		v, err = c.QueryValue(ctx, "SELECT id FROM history WHERE guid = ?", s.GUID)
	case s.URL != "":
		v, err = c.QueryValue(ctx, "SELECT id FROM history WHERE url = ?", s.URL)
	default:
		return 0, types.ErrInvalidURL
	}
	if err != nil {
		return 0, err
	}
	return v.Int64(), nil
}

// insertVisit records v, creating its site from v.Site when v.SiteID is
// unset. Inserting a visit that already exists returns the existing id.
func insertVisit(ctx context.Context, c *sqlite.Conn, v *types.Visit, now func() time.Time) (int64, error) {
	if v == nil {
		return -1, invalidItem(types.TableVisits, v)
	}
	site := v.SiteID
	if site == 0 {
		if v.Site == nil {
			return -1, types.ErrInvalidURL
		}
		id, err := upsertSite(ctx, c, v.Site)
		if err != nil {
			return -1, err
		}
		site = id
	}
	if v.Date.IsZero() {
		v.Date = now()
	}
	date := micros(v.Date)

	_, err := c.ExecuteChange(ctx,
		"INSERT INTO visits (siteID, date, type) VALUES (?, ?, ?) ON CONFLICT (siteID, date, type) DO NOTHING",
		site, date, int64(v.Type))
	if err != nil {
		return -1, err
	}
	id, err := c.QueryValue(ctx, "SELECT id FROM visits WHERE siteID = ? AND date = ? AND type = ?",
		site, date, int64(v.Type))
	if err != nil {
		return -1, err
	}
	v.ID, v.SiteID = id.Int64(), site
	return v.ID, nil
}

// deleteVisit removes a visit by ID, or by its site URL, date and type.
func deleteVisit(ctx context.Context, c *sqlite.Conn, v *types.Visit) (int64, error) {
	if v == nil {
		return -1, invalidItem(types.TableVisits, v)
	}
	var (
		res sqlite.Result
		err error
	)
	switch {
	case v.ID != 0:
		res, err = c.ExecuteChange(ctx, "DELETE FROM visits WHERE id = ?", v.ID)
	case v.SiteID != 0:
		res, err = c.ExecuteChange(ctx, "DELETE FROM visits WHERE siteID = ? AND date = ? AND type = ?",
			v.SiteID, micros(v.Date), int64(v.Type))
	case v.Site != nil && v.Site.URL != "":
		res, err = c.ExecuteChange(ctx, `DELETE FROM visits
WHERE siteID = (SELECT id FROM history WHERE url = ?) AND date = ? AND type = ?`,
			v.Site.URL, micros(v.Date), int64(v.Type))
	default:
		return -1, invalidItem(types.TableVisits, v)
	}
	if err != nil {
		return -1, err
	}
	return res.RowsAffected, nil
}

// tombstoneSite clears the site's URL and title and marks it deleted so its
// GUID survives for sync, then removes its visits and favicon links.
func tombstoneSite(ctx context.Context, c *sqlite.Conn, s *types.Site) (int64, error) {
	if s == nil {
		return -1, invalidItem(types.TableHistory, s)
	}
	id, err := siteID(ctx, c, s)
	if err != nil {
		return -1, err
	}
	if id == 0 {
		return 0, nil
	}
	if err := execAllArgs(ctx, c, id,
		"DELETE FROM visits WHERE siteID = ?",
		"DELETE FROM faviconSites WHERE siteID = ?",
	); err != nil {
		return -1, err
	}
	res, err := c.ExecuteChange(ctx,
		"UPDATE history SET url = NULL, title = '', is_deleted = 1 WHERE id = ? AND is_deleted = 0", id)
	if err != nil {
		return -1, err
	}
	if res.RowsAffected > 0 {
		s.IsDeleted = true
	}
	return res.RowsAffected, nil
}

// execAllArgs runs each statement with the same single argument.
func execAllArgs(ctx context.Context, c *sqlite.Conn, arg any, stmts ...string) error {
	for _, s := range stmts {
		if err := c.Exec(ctx, s, arg); err != nil {
			return err
		}
	}
	return nil
}
