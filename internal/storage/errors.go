package storage

import (
	"errors"
	"fmt"
	"strings"
)

// SchemaError reports a DDL failure during schema or view creation. Fatal;
// the schema is fixed, so this should not occur in normal operation.
type SchemaError struct {
	Stmt string // leading fragment of the failed statement
	Err  error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema: %v (statement %q)", e.Err, e.Stmt)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// UniqueConstraintError reports a duplicate (session_id, driver_name,
// lap_number) lap insert.
type UniqueConstraintError struct {
	SessionID  int64
	DriverName string
	LapNumber  int
	Err        error
}

func (e *UniqueConstraintError) Error() string {
	return fmt.Sprintf("lap (session %d, driver %q, lap %d) already exists: %v",
		e.SessionID, e.DriverName, e.LapNumber, e.Err)
}

func (e *UniqueConstraintError) Unwrap() error { return e.Err }

// ResolveError reports a foreign-key resolution miss: an expected Tracks or
// Laps row was not found.
type ResolveError struct {
	Entity string // "track", "lap"
	Key    string
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("resolve %s %s: no matching row", e.Entity, e.Key)
}

// IsUniqueViolation reports whether err is a SQLite unique-constraint
// failure. modernc.org/sqlite surfaces these as plain error strings.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		if strings.Contains(e.Error(), "UNIQUE constraint failed") {
			return true
		}
	}
	return false
}
