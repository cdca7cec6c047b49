package sqlite

import (
	"context"
	"database/sql"

	"github.com/mesh-intelligence/browserdb/pkg/types"
)

// Query runs a statement that returns rows and maps every row with mapper.
// The cursor is fully materialized before Query returns. Any error,
// including a mapper error, produces a failure cursor with no entries.
func Query[T any](ctx context.Context, c *Conn, query string, mapper RowMapper[T], args ...any) *types.Cursor[T] {
	bound, err := bind(query, args)
	if err != nil {
		c.fail(query, err)
		return types.FailedCursor[T](err)
	}

	var items []T
	err = c.retry(ctx, func() error {
		c.metrics.statement(query)
		rows, err := c.conn.QueryContext(ctx, query, bound...)
		if err != nil {
			return classify(query, err)
		}
		items, err = scanAll(query, rows, mapper)
		return err
	})
	if err != nil {
		c.fail(query, err)
		return types.FailedCursor[T](err)
	}
	if items == nil {
		items = []T{}
	}
	return types.NewCursor(items)
}

func scanAll[T any](query string, rows *sql.Rows, mapper RowMapper[T]) ([]T, error) {
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, classify(query, err)
	}
	cols := newColumnSet(names)

	raw := make([]any, len(names))
	dest := make([]any, len(names))
	for i := range raw {
		dest[i] = &raw[i]
	}

	var items []T
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, classify(query, err)
		}
		values := make([]Value, len(raw))
		for i, v := range raw {
			values[i] = fromDriver(v)
		}
		item, err := mapper(Row{cols: cols, values: values})
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, &StepError{SQL: query, Code: EngineCode(err), Err: err}
	}
	return items, nil
}
