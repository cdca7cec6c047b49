package browserdb

import (
	"fmt"
	"time"

	"github.com/mesh-intelligence/browserdb/pkg/types"
)

// MigrationError reports a failed create or migrate run. The whole run is
// rolled back.
type MigrationError struct {
	From  int
	To    int
	Table string // empty when the failure is not tied to one table
	Err   error
}

func (e *MigrationError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("migrate schema v%d to v%d (table %s): %v", e.From, e.To, e.Table, e.Err)
	}
	return fmt.Sprintf("migrate schema v%d to v%d: %v", e.From, e.To, e.Err)
}

func (e *MigrationError) Unwrap() error        { return e.Err }
func (e *MigrationError) Is(target error) bool { return target == types.ErrMigration }

// QuarantineExhaustedError reports that the database could not be opened
// and a quarantine file younger than QuarantineCooldown already exists.
type QuarantineExhaustedError struct {
	Path   string
	Backup string
	Age    time.Duration
	Err    error // the failure that would have triggered quarantine
}

func (e *QuarantineExhaustedError) Error() string {
	return fmt.Sprintf("database %s unusable and %s was quarantined %s ago: %v",
		e.Path, e.Backup, e.Age.Round(time.Second), e.Err)
}

func (e *QuarantineExhaustedError) Unwrap() error        { return e.Err }
func (e *QuarantineExhaustedError) Is(target error) bool { return target == types.ErrQuarantineExhausted }
