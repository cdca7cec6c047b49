package browserdb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/browserdb/internal/sqlite"
	"github.com/mesh-intelligence/browserdb/pkg/types"
)

// Table is a logical table: one or more schema objects created together,
// the migration steps that bring them to the current version, and typed
// access to their rows. Every method runs on a connection the coordinator
// obtained; writes run inside a transaction.
type Table interface {
	Name() string

	// Create builds every object of the table at the current schema
	// version.
	Create(ctx context.Context, c *sqlite.Conn) error
	// Exists reports whether the table's primary object is present.
	Exists(ctx context.Context, c *sqlite.Conn) (bool, error)
	// Objects lists every object the table owns or has owned, including
	// names from older schema versions.
	Objects() []SchemaObject
	// Migrations lists the steps this table contributes to the ladder.
	Migrations() []Migration

	Insert(ctx context.Context, c *sqlite.Conn, item any) (int64, error)
	Update(ctx context.Context, c *sqlite.Conn, item any) (int64, error)
	// Delete removes item; a nil item removes every row.
	Delete(ctx context.Context, c *sqlite.Conn, item any) (int64, error)
	Query(ctx context.Context, c *sqlite.Conn, opts *types.QueryOptions) *types.Cursor[any]
}

// Object kinds as stored in sqlite_master.type.
const (
	KindTable = "table"
	KindIndex = "index"
	KindView  = "view"
)

// SchemaObject names one object in sqlite_master.
type SchemaObject struct {
	Kind string
	Name string
}

// Migration moves a table from version From to From+1.
type Migration struct {
	From        int
	Description string
	Apply       func(ctx context.Context, c *sqlite.Conn) error
}

// execAll runs statements in order and stops at the first failure.
func execAll(ctx context.Context, c *sqlite.Conn, stmts ...string) error {
	for _, s := range stmts {
		if err := c.Exec(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// execStep adapts a fixed list of statements into a migration step.
func execStep(stmts ...string) func(context.Context, *sqlite.Conn) error {
	return func(ctx context.Context, c *sqlite.Conn) error {
		return execAll(ctx, c, stmts...)
	}
}

func invalidItem(table string, item any) error {
	return fmt.Errorf("%s: unsupported item %T: %w", table, item, types.ErrInvalidData)
}

// newGUID generates a UUID v7 string.
func newGUID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generating guid: %w", err)
	}
	return id.String(), nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern returns a LIKE pattern matching s anywhere, for use with
// ESCAPE '\'.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

// frecencySQL scores a row from its visit count and latest visit date
// (microseconds). The current time is bound as the first parameter.
func frecencySQL(count, date string) string {
	return fmt.Sprintf("(%s * (1.0 + 100.0 / (1.0 + MAX(0.0, (? - COALESCE(%s, 0)) / 86400000000.0))))", count, date)
}

// queryBuilder assembles a SELECT with optional WHERE, ORDER BY and LIMIT
// clauses and keeps the arguments in placeholder order.
type queryBuilder struct {
	sb    strings.Builder
	args  []any
	where bool
}

func newQuery(base string, args ...any) *queryBuilder {
	q := &queryBuilder{args: args}
	q.sb.WriteString(base)
	return q
}

func (q *queryBuilder) Where(cond string, args ...any) *queryBuilder {
	if q.where {
		q.sb.WriteString(" AND ")
	} else {
		q.sb.WriteString(" WHERE ")
		q.where = true
	}
	q.sb.WriteString(cond)
	q.args = append(q.args, args...)
	return q
}

func (q *queryBuilder) OrderBy(expr string, args ...any) *queryBuilder {
	q.sb.WriteString(" ORDER BY ")
	q.sb.WriteString(expr)
	q.args = append(q.args, args...)
	return q
}

func (q *queryBuilder) Limit(n int) *queryBuilder {
	if n > 0 {
		q.sb.WriteString(" LIMIT ?")
		q.args = append(q.args, n)
	}
	return q
}

func (q *queryBuilder) SQL() string { return q.sb.String() }
func (q *queryBuilder) Args() []any { return q.args }

// run executes the query and boxes each mapped entry for the generic
// surface.
func run[T any](ctx context.Context, c *sqlite.Conn, q *queryBuilder, mapper sqlite.RowMapper[T]) *types.Cursor[any] {
	return sqlite.Query(ctx, c, q.SQL(), func(r sqlite.Row) (any, error) {
		v, err := mapper(r)
		return v, err
	}, q.Args()...)
}

func options(opts *types.QueryOptions) types.QueryOptions {
	if opts == nil {
		return types.QueryOptions{}
	}
	return *opts
}

// nullString and nullInt bind zero values as NULL.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(n int64) any {
	if n == 0 {
		return nil
	}
	return n
}

func micros(t time.Time) int64 { return types.ToMicros(t) }
