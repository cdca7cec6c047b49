package browserdb

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/mesh-intelligence/browserdb/internal/sqlite"
)

// Schema versions stored in PRAGMA user_version.
const (
	// SchemaVersion is the version Open migrates every database to.
	SchemaVersion = 7
	// MinSupportedVersion is the oldest version upgraded in place. Older
	// databases, and databases from a newer release, are recreated empty.
	MinSupportedVersion = 3
)

// Schema is the ordered registry of logical tables. Registration order is
// creation order; objects are dropped in reverse.
type Schema struct {
	tables []Table
	byName map[string]Table
	logger *slog.Logger
}

// NewSchema registers tables in order. Names must be unique.
func NewSchema(logger *slog.Logger, tables ...Table) (*Schema, error) {
	s := &Schema{byName: make(map[string]Table, len(tables)), logger: logger}
	for _, t := range tables {
		if err := s.Register(t); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Register appends t to the registry.
func (s *Schema) Register(t Table) error {
	if _, dup := s.byName[t.Name()]; dup {
		return fmt.Errorf("table %q registered twice", t.Name())
	}
	s.tables = append(s.tables, t)
	s.byName[t.Name()] = t
	return nil
}

// Table returns the table registered under name.
func (s *Schema) Table(name string) (Table, bool) {
	t, ok := s.byName[name]
	return t, ok
}

// Names returns the registered table names in creation order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.tables))
	for i, t := range s.tables {
		names[i] = t.Name()
	}
	return names
}

// Migrate brings the schema from version from to version to on c, which
// must be inside a transaction. It returns a *MigrationError on failure;
// the caller rolls back.
func (s *Schema) Migrate(ctx context.Context, c *sqlite.Conn, from, to int) error {
	if from == to {
		return nil
	}

	var err error
	if from == 0 || to < from || from < MinSupportedVersion {
		s.logger.Info("recreating schema", "from", from, "to", to)
		err = s.recreate(ctx, c, from, to)
	} else {
		s.logger.Info("upgrading schema", "from", from, "to", to)
		err = s.upgrade(ctx, c, from, to)
	}
	if err != nil {
		return err
	}

	if err := checkForeignKeys(ctx, c); err != nil {
		return &MigrationError{From: from, To: to, Err: err}
	}
	if err := c.SetUserVersion(ctx, to); err != nil {
		return &MigrationError{From: from, To: to, Err: err}
	}
	return nil
}

// recreate drops every known object and creates all tables from scratch.
func (s *Schema) recreate(ctx context.Context, c *sqlite.Conn, from, to int) error {
	if err := s.dropAll(ctx, c); err != nil {
		return &MigrationError{From: from, To: to, Err: err}
	}
	for _, t := range s.tables {
		if err := t.Create(ctx, c); err != nil {
			return &MigrationError{From: from, To: to, Table: t.Name(), Err: fmt.Errorf("create: %w", err)}
		}
	}
	return nil
}

type pendingStep struct {
	table string
	Migration
}

// upgrade runs every step with from <= step.From < to in ascending version
// order, keeping registration order within a version, then creates the
// tables that do not exist yet.
func (s *Schema) upgrade(ctx context.Context, c *sqlite.Conn, from, to int) error {
	var steps []pendingStep
	for _, t := range s.tables {
		for _, m := range t.Migrations() {
			if m.From >= from && m.From < to {
				steps = append(steps, pendingStep{table: t.Name(), Migration: m})
			}
		}
	}
	slices.SortStableFunc(steps, func(a, b pendingStep) int { return a.From - b.From })

	for _, st := range steps {
		s.logger.Debug("migration step", "table", st.table, "from", st.From, "step", st.Description)
		if err := st.Apply(ctx, c); err != nil {
			return &MigrationError{From: from, To: to, Table: st.table,
				Err: fmt.Errorf("v%d->v%d %s: %w", st.From, st.From+1, st.Description, err)}
		}
	}

	for _, t := range s.tables {
		ok, err := t.Exists(ctx, c)
		if err != nil {
			return &MigrationError{From: from, To: to, Table: t.Name(), Err: err}
		}
		if ok {
			continue
		}
		s.logger.Debug("creating missing table", "table", t.Name())
		if err := t.Create(ctx, c); err != nil {
			return &MigrationError{From: from, To: to, Table: t.Name(), Err: fmt.Errorf("create: %w", err)}
		}
	}
	return nil
}

// dropAll drops views, then indexes, then tables, each pass in reverse
// registration order so dependents go before what they depend on.
func (s *Schema) dropAll(ctx context.Context, c *sqlite.Conn) error {
	for _, kind := range []string{KindView, KindIndex, KindTable} {
		for i := len(s.tables) - 1; i >= 0; i-- {
			for _, obj := range s.tables[i].Objects() {
				if obj.Kind != kind {
					continue
				}
				stmt := fmt.Sprintf("DROP %s IF EXISTS %s", dropKeyword(kind), quoteIdent(obj.Name))
				if err := c.Exec(ctx, stmt); err != nil {
					return fmt.Errorf("drop %s %s: %w", kind, obj.Name, err)
				}
			}
		}
	}
	return nil
}

func dropKeyword(kind string) string {
	switch kind {
	case KindView:
		return "VIEW"
	case KindIndex:
		return "INDEX"
	default:
		return "TABLE"
	}
}

func quoteIdent(name string) string {
	return `"` + name + `"`
}

// checkForeignKeys fails when PRAGMA foreign_key_check reports violations.
func checkForeignKeys(ctx context.Context, c *sqlite.Conn) error {
	cur := sqlite.Query(ctx, c, "PRAGMA foreign_key_check", func(r sqlite.Row) (string, error) {
		return fmt.Sprintf("%s rowid %d references %s", r.At(0).String(), r.At(1).Int64(), r.At(2).String()), nil
	})
	if err := cur.Err(); err != nil {
		return fmt.Errorf("foreign key check: %w", err)
	}
	if cur.Count() > 0 {
		first, _ := cur.At(0)
		return fmt.Errorf("foreign key check: %d violations, first: %s", cur.Count(), first)
	}
	return nil
}
