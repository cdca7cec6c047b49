// Tests for schema creation, the migration ladder and quarantine.
package browserdb

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/browserdb/internal/log"
	"github.com/mesh-intelligence/browserdb/internal/sqlite"
	"github.com/mesh-intelligence/browserdb/pkg/types"
)

// Schema of a version 3 database: no tombstones, no widest-icon view, no
// bookmark dates and no tab queue.
var schemaV3 = []string{
	`CREATE TABLE history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    guid TEXT NOT NULL UNIQUE,
    url TEXT UNIQUE,
    title TEXT NOT NULL
)`,
	`CREATE TABLE visits (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    siteID INTEGER NOT NULL REFERENCES history(id) ON DELETE CASCADE,
    date INTEGER NOT NULL,
    type INTEGER NOT NULL,
    UNIQUE (siteID, date, type)
)`,
	`CREATE VIEW view_history_visits AS
SELECT h.id AS id, h.guid AS guid, h.url AS url, h.title AS title,
    (SELECT MAX(date) FROM visits WHERE siteID = h.id) AS visitDate
FROM history AS h`,
	`CREATE TABLE favicons (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    url TEXT NOT NULL UNIQUE,
    width INTEGER,
    height INTEGER,
    type INTEGER NOT NULL,
    date INTEGER NOT NULL,
    data BLOB
)`,
	`CREATE TABLE faviconSites (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    siteID INTEGER NOT NULL REFERENCES history(id) ON DELETE CASCADE,
    faviconID INTEGER NOT NULL REFERENCES favicons(id) ON DELETE CASCADE,
    UNIQUE (siteID, faviconID)
)`,
	`CREATE TABLE bookmarks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    guid TEXT NOT NULL UNIQUE,
    type INTEGER NOT NULL,
    url TEXT,
    title TEXT NOT NULL DEFAULT '',
    parent TEXT NOT NULL,
    faviconID INTEGER
)`,
}

var dataV3 = []string{
	`INSERT INTO history (guid, url, title) VALUES ('guid-a', 'https://a.example/', 'A'), ('guid-b', 'https://b.example/', 'B')`,
	`INSERT INTO visits (siteID, date, type) VALUES (1, 1000000, 1), (1, 2000000, 2), (2, 3000000, 1)`,
	`INSERT INTO favicons (url, width, height, type, date) VALUES ('https://a.example/icon.png', 32, 32, 0, 1000000)`,
	`INSERT INTO faviconSites (siteID, faviconID) VALUES (1, 1)`,
	`INSERT INTO bookmarks (guid, type, url, title, parent) VALUES ('bm-1', 0, 'https://a.example/', 'A', 'mobile______')`,
}

// writeFixture creates a database at path by running stmts and stamping
// the given user_version.
func writeFixture(t *testing.T, path string, version int, stmts ...[]string) {
	t.Helper()
	cm := sqlite.NewConnectionManager(path, sqlite.Options{Logger: log.Discard()})
	defer cm.Close()
	err := cm.Transaction(context.Background(), func(ctx context.Context, c *sqlite.Conn) error {
		for _, group := range stmts {
			if err := execAll(ctx, c, group...); err != nil {
				return err
			}
		}
		return c.SetUserVersion(ctx, version)
	})
	require.NoError(t, err)
}

func openDir(t *testing.T, dir string, reg prometheus.Registerer) (*BrowserDB, error) {
	t.Helper()
	db, err := Open(context.Background(), DirAccessor{Dir: dir},
		WithLogger(log.Discard()), WithClock(testClock), WithRegisterer(reg))
	if err == nil {
		t.Cleanup(func() { db.Close() })
	}
	return db, err
}

func TestMigrate_FromVersion3(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFixture(t, filepath.Join(dir, types.DefaultDatabase), 3, schemaV3, dataV3)

	db, err := openDir(t, dir, prometheus.NewRegistry())
	require.NoError(t, err)

	v, err := db.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, v)
	assert.NoFileExists(t, db.Path()+backupSuffix, "upgrade must not quarantine")

	sites := query[*types.Site](t, db, types.TableHistory, nil)
	require.Len(t, sites, 2)
	a := sites[0]
	assert.Equal(t, "guid-a", a.GUID)
	assert.Equal(t, 2, a.VisitCount)
	require.NotNil(t, a.LatestVisit)
	assert.Equal(t, int64(2000000), types.ToMicros(a.LatestVisit.Date))
	require.NotNil(t, a.Icon)
	assert.Equal(t, "https://a.example/icon.png", a.Icon.URL)

	marks := query[*types.Bookmark](t, db, types.TableBookmarks, nil)
	require.Len(t, marks, 1)
	assert.Equal(t, "bm-1", marks[0].GUID)
	assert.True(t, marks[0].DateAdded.IsZero())

	// The queue did not exist at version 3.
	mustInsert(t, db, types.TableQueue, &types.QueuedTab{URL: "https://queued.example/"})

	// Tombstones work on the migrated history table.
	_, err = db.Delete(ctx, types.TableHistory, &types.Site{GUID: "guid-b"})
	require.NoError(t, err)
	assert.Len(t, query[*types.Site](t, db, types.TableHistory, nil), 1)
}

func TestMigrate_ReopenRunsNoDDL(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first, err := openDir(t, dir, prometheus.NewRegistry())
	require.NoError(t, err)
	assert.Greater(t, testutil.ToFloat64(first.Metrics().Statements.WithLabelValues("ddl")), float64(0))
	mustInsert(t, first, types.TableHistory, visitAt("https://a.example/", "A", 1, types.VisitLink))
	require.NoError(t, first.Close())

	second, err := openDir(t, dir, prometheus.NewRegistry())
	require.NoError(t, err)
	assert.Equal(t, float64(0), testutil.ToFloat64(second.Metrics().Statements.WithLabelValues("ddl")))

	v, err := second.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, v)
	assert.Len(t, query[*types.Site](t, second, types.TableHistory, nil), 1)
}

func TestMigrate_DestructivePaths(t *testing.T) {
	tests := []struct {
		name    string
		version int
	}{
		{"untracked version", 0},
		{"below minimum supported", MinSupportedVersion - 1},
		{"downgrade from newer release", SchemaVersion + 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()
			writeFixture(t, filepath.Join(dir, types.DefaultDatabase), tt.version, schemaV3, dataV3)

			db, err := openDir(t, dir, prometheus.NewRegistry())
			require.NoError(t, err)

			v, err := db.SchemaVersion(ctx)
			require.NoError(t, err)
			assert.Equal(t, SchemaVersion, v)
			assert.Empty(t, query[*types.Site](t, db, types.TableHistory, nil), "data is cleared")
			assert.Empty(t, query[*types.Bookmark](t, db, types.TableBookmarks, nil))
			mustInsert(t, db, types.TableHistory, visitAt("https://new.example/", "new", 0, types.VisitTyped))
		})
	}
}

type failingTable struct {
	queueTable
	applied *bool
}

func (failingTable) Name() string { return "failing" }

func (f failingTable) Migrations() []Migration {
	return []Migration{{
		From:        5,
		Description: "always fails",
		Apply: func(ctx context.Context, c *sqlite.Conn) error {
			*f.applied = true
			return errors.New("step failed")
		},
	}}
}

func TestSchema_MigrationFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "fail.db")
	writeFixture(t, path, 3, schemaV3, dataV3)

	applied := false
	tables := append(DefaultTables(testClock), failingTable{applied: &applied})
	schema, err := NewSchema(log.Discard(), tables...)
	require.NoError(t, err)

	cm := sqlite.NewConnectionManager(path, sqlite.Options{Logger: log.Discard()})
	defer cm.Close()

	err = cm.Transaction(ctx, func(ctx context.Context, c *sqlite.Conn) error {
		return schema.Migrate(ctx, c, 3, SchemaVersion)
	})
	require.Error(t, err)
	assert.True(t, applied)
	assert.ErrorIs(t, err, types.ErrMigration)
	var me *MigrationError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "failing", me.Table)
	assert.Equal(t, 3, me.From)

	err = cm.WithConnection(ctx, sqlite.ReadOnly, func(ctx context.Context, c *sqlite.Conn) error {
		v, err := c.UserVersion(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, v)
		// The 3->4 step ran before the failure and was rolled back too.
		cur := sqlite.Query(ctx, c, "SELECT name FROM pragma_table_info('history')", func(r sqlite.Row) (string, error) {
			return r.String("name"), nil
		})
		assert.NotContains(t, cur.All(), "is_deleted")
		return cur.Err()
	})
	require.NoError(t, err)
}

func TestSchema_RejectsDuplicateNames(t *testing.T) {
	_, err := NewSchema(log.Discard(), queueTable{}, queueTable{})
	assert.Error(t, err)
}

func TestQuarantine(t *testing.T) {
	ctx := context.Background()

	writeJunk := func(t *testing.T, path string) {
		t.Helper()
		junk := make([]byte, 8192)
		for i := range junk {
			junk[i] = byte(i * 31)
		}
		require.NoError(t, os.WriteFile(path, junk, 0o644))
	}

	t.Run("corrupt file is quarantined once and recreated", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, types.DefaultDatabase)
		writeJunk(t, path)
		require.NoError(t, os.WriteFile(path+"-wal", []byte("stale"), 0o644))

		db, err := openDir(t, dir, prometheus.NewRegistry())
		require.NoError(t, err)

		assert.FileExists(t, path+backupSuffix)
		assert.NoFileExists(t, path+"-wal")
		v, err := db.SchemaVersion(ctx)
		require.NoError(t, err)
		assert.Equal(t, SchemaVersion, v)
		assert.Empty(t, query[*types.Site](t, db, types.TableHistory, nil))
		require.NoError(t, db.Close())

		// A second failure within the cooldown fails outright.
		writeJunk(t, path)
		_, err = openDir(t, dir, prometheus.NewRegistry())
		require.Error(t, err)
		assert.ErrorIs(t, err, types.ErrQuarantineExhausted)
		var qe *QuarantineExhaustedError
		require.ErrorAs(t, err, &qe)
		assert.Less(t, qe.Age, QuarantineCooldown)
		assert.ErrorIs(t, err, types.ErrOpen, "the cause is kept")
	})

	t.Run("old quarantine file is replaced", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, types.DefaultDatabase)
		require.NoError(t, os.WriteFile(path+backupSuffix, []byte("old backup"), 0o644))
		old := time.Now().Add(-2 * QuarantineCooldown)
		require.NoError(t, os.Chtimes(path+backupSuffix, old, old))
		writeJunk(t, path)

		// The real clock is needed to compare against file times.
		db, err := Open(ctx, DirAccessor{Dir: dir}, WithLogger(log.Discard()))
		require.NoError(t, err)
		defer db.Close()

		backup, err := os.ReadFile(path + backupSuffix)
		require.NoError(t, err)
		assert.Len(t, backup, 8192, "the corrupt file replaced the old backup")
	})

	t.Run("locked database is left in place", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, types.DefaultDatabase)
		db, err := openDir(t, dir, prometheus.NewRegistry())
		require.NoError(t, err)
		_, err = db.Insert(ctx, types.TableQueue, &types.QueuedTab{URL: "https://kept.example/"})
		require.NoError(t, err)
		require.NoError(t, db.Close())

		other, err := sql.Open("sqlite", path)
		require.NoError(t, err)
		defer other.Close()
		holder, err := other.Conn(ctx)
		require.NoError(t, err)
		defer holder.Close()
		_, err = holder.ExecContext(ctx, "BEGIN EXCLUSIVE")
		require.NoError(t, err)

		_, err = Open(ctx, DirAccessor{Dir: dir}, WithLogger(log.Discard()), WithClock(testClock),
			WithRegisterer(prometheus.NewRegistry()),
			WithBusyTimeout(20*time.Millisecond), WithBusyRetries(0))
		require.Error(t, err)
		assert.True(t, sqlite.IsBusy(err), "got %v", err)
		assert.NotErrorIs(t, err, types.ErrQuarantineExhausted)
		assert.NoFileExists(t, path+backupSuffix)

		_, err = holder.ExecContext(ctx, "ROLLBACK")
		require.NoError(t, err)
		db, err = openDir(t, dir, prometheus.NewRegistry())
		require.NoError(t, err)
		assert.Len(t, query[*types.QueuedTab](t, db, types.TableQueue, nil), 1)
	})

	t.Run("migration failure is quarantined", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, types.DefaultDatabase)
		// A version 5 database whose bookmarks already have date_added makes
		// the 5->6 step fail.
		broken := append([]string{}, schemaV3...)
		broken[5] = `CREATE TABLE bookmarks (id INTEGER PRIMARY KEY, guid TEXT, type INTEGER, url TEXT,
    title TEXT, parent TEXT, faviconID INTEGER, date_added INTEGER)`
		writeFixture(t, path, 5, broken, []string{
			`ALTER TABLE history ADD COLUMN is_deleted INTEGER NOT NULL DEFAULT 0`,
			`INSERT INTO history (guid, url, title) VALUES ('g', 'https://lost.example/', 'Lost')`,
		})

		db, err := Open(ctx, DirAccessor{Dir: dir}, WithLogger(log.Discard()))
		require.NoError(t, err)
		defer db.Close()

		assert.FileExists(t, path+backupSuffix)
		assert.Empty(t, query[*types.Site](t, db, types.TableHistory, nil))
	})
}
