package storage

import (
	"errors"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrIntegrity     = errors.New("referenced by existing rows")
)

// NotFoundError names the record that could not be resolved.
type NotFoundError struct {
	Thing string
}

func (e *NotFoundError) Error() string { return e.Thing + " not found" }
func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ExistsError reports a natural-key conflict.
type ExistsError struct {
	Thing string
}

func (e *ExistsError) Error() string { return e.Thing + " already exists" }
func (e *ExistsError) Unwrap() error { return ErrAlreadyExists }

// IntegrityError reports a delete blocked by a foreign-key reference.
type IntegrityError struct {
	Thing string
	Err   error
}

func (e *IntegrityError) Error() string {
	return e.Thing + " is still referenced by fournitures"
}

func (e *IntegrityError) Unwrap() []error { return []error{ErrIntegrity, e.Err} }

func sqliteCode(err error) (int, bool) {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code(), true
	}
	return 0, false
}

// isForeignKeyErr identifies RESTRICT violations. SQLite reports an immediate
// foreign key failure as SQLITE_CONSTRAINT_FOREIGNKEY, but a RESTRICT action on
// delete surfaces as SQLITE_CONSTRAINT_TRIGGER, so any constraint code falls
// through to the message.
func isForeignKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := sqliteCode(err); ok {
		switch {
		case code == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return true
		case code&0xff != sqlite3.SQLITE_CONSTRAINT:
			return false
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "foreign key constraint")
}

func isUniqueErr(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := sqliteCode(err); ok {
		switch {
		case code == sqlite3.SQLITE_CONSTRAINT_UNIQUE, code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		case code&0xff != sqlite3.SQLITE_CONSTRAINT:
			return false
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
