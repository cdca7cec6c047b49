package types

import "fmt"

// CursorStatus is the terminal state of a query.
type CursorStatus int

const (
	CursorSuccess CursorStatus = iota
	CursorFailure
)

func (s CursorStatus) String() string {
	if s == CursorSuccess {
		return "success"
	}
	return "failure"
}

// Cursor is a finite, fully materialized query result. It is built once per
// query, never holds a live statement and is safe to read from several
// goroutines.
type Cursor[T any] struct {
	items   []T
	status  CursorStatus
	message string
	err     error
}

// NewCursor returns a successful cursor over items. The cursor takes
// ownership of the slice.
func NewCursor[T any](items []T) *Cursor[T] {
	return &Cursor[T]{items: items, status: CursorSuccess, message: "success"}
}

// FailedCursor returns a cursor in failure status carrying err and no
// entries.
func FailedCursor[T any](err error) *Cursor[T] {
	msg := "query failed"
	if err != nil {
		msg = err.Error()
	}
	return &Cursor[T]{status: CursorFailure, message: msg, err: err}
}

// Status reports whether the query succeeded.
func (c *Cursor[T]) Status() CursorStatus { return c.status }

// Message is a diagnostic text; "success" for successful cursors.
func (c *Cursor[T]) Message() string { return c.message }

// Err returns the error that failed the query, or nil.
func (c *Cursor[T]) Err() error { return c.err }

// Count returns the number of entries.
func (c *Cursor[T]) Count() int { return len(c.items) }

// At returns the entry at index i. Out-of-range indexes return
// ErrIndexOutOfRange.
func (c *Cursor[T]) At(i int) (T, error) {
	if i < 0 || i >= len(c.items) {
		var zero T
		return zero, fmt.Errorf("index %d of %d: %w", i, len(c.items), ErrIndexOutOfRange)
	}
	return c.items[i], nil
}

// All returns a copy of the entries in order.
func (c *Cursor[T]) All() []T {
	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

// ConvertCursor re-types a cursor produced by the generic query surface. An
// entry of the wrong dynamic type turns the result into a failure cursor.
func ConvertCursor[U any](c *Cursor[any]) *Cursor[U] {
	if c.status != CursorSuccess {
		return &Cursor[U]{status: c.status, message: c.message, err: c.err}
	}
	items := make([]U, 0, len(c.items))
	for i, it := range c.items {
		v, ok := it.(U)
		if !ok {
			var want U
			return FailedCursor[U](fmt.Errorf("entry %d is %T, want %T: %w", i, it, want, ErrInvalidData))
		}
		items = append(items, v)
	}
	return NewCursor(items)
}
