package sqlite

// Row is one immutable result row: column names shared by every row of the
// same result, and one Value per column.
type Row struct {
	cols   *columnSet
	values []Value
}

// RowMapper turns a Row into a domain value.
type RowMapper[T any] func(Row) (T, error)

type columnSet struct {
	names []string
	index map[string]int
}

func newColumnSet(names []string) *columnSet {
	cs := &columnSet{names: names, index: make(map[string]int, len(names))}
	for i, n := range names {
		// First occurrence wins for duplicated names.
		if _, dup := cs.index[n]; !dup {
			cs.index[n] = i
		}
	}
	return cs
}

// Len returns the number of columns.
func (r Row) Len() int { return len(r.values) }

// Columns returns a copy of the column names.
func (r Row) Columns() []string {
	if r.cols == nil {
		return nil
	}
	out := make([]string, len(r.cols.names))
	copy(out, r.cols.names)
	return out
}

// At returns the value at position i, or NULL when i is out of range.
func (r Row) At(i int) Value {
	if i < 0 || i >= len(r.values) {
		return Null()
	}
	return r.values[i]
}

// Get returns the value of the named column.
func (r Row) Get(name string) (Value, bool) {
	if r.cols == nil {
		return Null(), false
	}
	i, ok := r.cols.index[name]
	if !ok {
		return Null(), false
	}
	return r.values[i], true
}

func (r Row) named(name string) Value {
	v, _ := r.Get(name)
	return v
}

// Int64 returns the named column as an integer; missing columns are zero.
func (r Row) Int64(name string) int64 { return r.named(name).Int64() }

// Int returns the named column as an int.
func (r Row) Int(name string) int { return int(r.named(name).Int64()) }

// Float64 returns the named column as a float.
func (r Row) Float64(name string) float64 { return r.named(name).Float64() }

// String returns the named column as text; NULL is "".
func (r Row) String(name string) string { return r.named(name).String() }

// Bytes returns a copy of the named column as bytes; NULL is nil.
func (r Row) Bytes(name string) []byte { return r.named(name).Bytes() }

// Bool returns the named column as a boolean.
func (r Row) Bool(name string) bool { return r.named(name).Bool() }

// IsNull reports whether the named column is NULL or missing.
func (r Row) IsNull(name string) bool { return r.named(name).IsNull() }
