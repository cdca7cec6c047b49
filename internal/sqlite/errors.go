package sqlite

import (
	"errors"
	"fmt"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mesh-intelligence/browserdb/pkg/types"
)

// OpenError reports that the database file could not be opened in the
// requested mode: missing file in ReadOnly mode, permissions, or a file that
// is not a database.
type OpenError struct {
	Path string
	Mode Mode
	Code int
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("open %s (%s): %v", e.Path, e.Mode, e.Err)
}

func (e *OpenError) Unwrap() error        { return e.Err }
func (e *OpenError) Is(target error) bool { return target == types.ErrOpen }

// PrepareError reports SQL the engine cannot compile.
type PrepareError struct {
	SQL  string
	Code int
	Err  error
}

func (e *PrepareError) Error() string {
	return fmt.Sprintf("prepare %q: %v", e.SQL, e.Err)
}

func (e *PrepareError) Unwrap() error        { return e.Err }
func (e *PrepareError) Is(target error) bool { return target == types.ErrPrepare }

// BindCountError reports a mismatch between the statement's parameters and
// the supplied arguments.
type BindCountError struct {
	SQL      string
	Expected int
	Got      int
}

func (e *BindCountError) Error() string {
	return fmt.Sprintf("bind %q: statement has %d parameters, got %d arguments", e.SQL, e.Expected, e.Got)
}

func (e *BindCountError) Is(target error) bool { return target == types.ErrBind }

// BindTypeError reports an argument whose Go type has no SQLite storage
// class.
type BindTypeError struct {
	SQL   string
	Index int
	Type  string
}

func (e *BindTypeError) Error() string {
	return fmt.Sprintf("bind %q: argument %d has unsupported type %s", e.SQL, e.Index+1, e.Type)
}

func (e *BindTypeError) Is(target error) bool { return target == types.ErrBind }

// StepError reports an engine failure while executing a statement:
// constraint violations, I/O errors, busy or locked databases.
type StepError struct {
	SQL  string
	Code int
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("execute %q: %v", e.SQL, e.Err)
}

func (e *StepError) Unwrap() error        { return e.Err }
func (e *StepError) Is(target error) bool { return target == types.ErrStep }

// Busy reports whether the failure is a transient lock conflict.
func (e *StepError) Busy() bool { return isBusyCode(e.Code) }

// Constraint reports whether the failure is a constraint violation.
func (e *StepError) Constraint() bool { return primaryCode(e.Code) == sqlite3.SQLITE_CONSTRAINT }

// EngineCode returns the extended SQLite result code carried by err, or 0.
func EngineCode(err error) int {
	var me *msqlite.Error
	if errors.As(err, &me) {
		return me.Code()
	}
	var (
		se *StepError
		oe *OpenError
		pe *PrepareError
	)
	switch {
	case errors.As(err, &se):
		return se.Code
	case errors.As(err, &oe):
		return oe.Code
	case errors.As(err, &pe):
		return pe.Code
	}
	return 0
}

// IsBusy reports whether err is SQLITE_BUSY or SQLITE_LOCKED.
func IsBusy(err error) bool {
	return err != nil && isBusyCode(EngineCode(err))
}

// IsConstraint reports whether err is a constraint violation.
func IsConstraint(err error) bool {
	return err != nil && primaryCode(EngineCode(err)) == sqlite3.SQLITE_CONSTRAINT
}

func primaryCode(code int) int { return code & 0xff }

func isBusyCode(code int) bool {
	p := primaryCode(code)
	return p == sqlite3.SQLITE_BUSY || p == sqlite3.SQLITE_LOCKED
}

// classify wraps an error returned while running query. The driver compiles
// statements lazily, so a generic SQLITE_ERROR at execution time is the
// engine rejecting the SQL text and is reported as a PrepareError.
func classify(query string, err error) error {
	if err == nil {
		return nil
	}
	var (
		pe *PrepareError
		se *StepError
		bc *BindCountError
		bt *BindTypeError
	)
	if errors.As(err, &pe) || errors.As(err, &se) || errors.As(err, &bc) || errors.As(err, &bt) {
		return err
	}
	code := EngineCode(err)
	if primaryCode(code) == sqlite3.SQLITE_ERROR {
		return &PrepareError{SQL: query, Code: code, Err: err}
	}
	return &StepError{SQL: query, Code: code, Err: err}
}

// errorLabel names the error class for metrics and logs.
func errorLabel(err error) string {
	switch {
	case errors.Is(err, types.ErrOpen):
		return "open"
	case errors.Is(err, types.ErrPrepare):
		return "prepare"
	case errors.Is(err, types.ErrBind):
		return "bind"
	case errors.Is(err, types.ErrStep):
		return "step"
	default:
		return "other"
	}
}
