package types

import "errors"

// FilterType selects which columns a text filter applies to. Tables that
// have a single filterable column ignore it.
type FilterType int

const (
	FilterURL FilterType = iota
	FilterURLAndTitle
)

// SortOptions selects the ordering of query results.
type SortOptions int

const (
	// SortNone returns rows in insertion order.
	SortNone SortOptions = iota
	// SortLastVisit returns the most recently visited (or added) rows first.
	SortLastVisit
	// SortFrecency ranks rows by a weighted visit frequency and recency.
	SortFrecency
)

func (s SortOptions) String() string {
	switch s {
	case SortNone:
		return "none"
	case SortLastVisit:
		return "last-visit"
	case SortFrecency:
		return "frecency"
	default:
		return "unknown"
	}
}

// ParseSortOptions maps a CLI-style name to SortOptions.
func ParseSortOptions(s string) (SortOptions, error) {
	switch s {
	case "", "none":
		return SortNone, nil
	case "last-visit", "last", "recent":
		return SortLastVisit, nil
	case "frecency":
		return SortFrecency, nil
	default:
		return SortNone, ErrInvalidSort
	}
}

// QueryOptions carries the optional filter and ordering for a table query.
// A nil *QueryOptions is equivalent to the zero value. Filtering and
// ordering are always evaluated by the database engine.
type QueryOptions struct {
	Filter     string
	FilterType FilterType
	Sort       SortOptions
	// Limit caps the number of rows; zero means no limit.
	Limit int
}

// Storage engine errors. Typed errors in the storage layer match these
// with errors.Is.
var (
	ErrOpen                = errors.New("cannot open database")
	ErrPrepare             = errors.New("cannot prepare statement")
	ErrBind                = errors.New("cannot bind statement arguments")
	ErrStep                = errors.New("statement execution failed")
	ErrMigration           = errors.New("schema migration failed")
	ErrQuarantineExhausted = errors.New("database was quarantined recently")
	ErrNestedTransaction   = errors.New("transaction already in progress")
	ErrClosed              = errors.New("database is closed")
)

// Table operation errors.
var (
	ErrTableNotFound   = errors.New("table not found")
	ErrInvalidData     = errors.New("invalid entity data")
	ErrNotFound        = errors.New("entity not found")
	ErrInvalidURL      = errors.New("site url must not be empty")
	ErrInvalidSort     = errors.New("unknown sort option")
	ErrIndexOutOfRange = errors.New("cursor index out of range")
)
