package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Typed error categories returned by the store. Callers decide abort-vs-skip
// on the category, never by matching message text.
//
// NotFoundError is the only recoverable one; the rest are systemic and make
// IsCritical return true.

type NotFoundError struct {
	Kind string // "job", "listing", "catalog_entry", ...
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Key)
}

// SchemaError: a referenced table/column/index does not exist. Nothing a
// retry fixes; the whole run must stop.
type SchemaError struct {
	Op  string
	Err error
}

func (e *SchemaError) Error() string { return fmt.Sprintf("%s: schema error: %v", e.Op, e.Err) }
func (e *SchemaError) Unwrap() error { return e.Err }

// PermissionError: the store rejected the operation for authorization
// reasons (read-only database, denied authorizer).
type PermissionError struct {
	Op  string
	Err error
}

func (e *PermissionError) Error() string { return fmt.Sprintf("%s: permission denied: %v", e.Op, e.Err) }
func (e *PermissionError) Unwrap() error { return e.Err }

// ConnError: the connection or database file is unusable.
type ConnError struct {
	Op  string
	Err error
}

func (e *ConnError) Error() string { return fmt.Sprintf("%s: connection error: %v", e.Op, e.Err) }
func (e *ConnError) Unwrap() error { return e.Err }

// TimeoutError: the operation ran out of time (context deadline or a busy
// database that never yielded).
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string { return fmt.Sprintf("%s: timeout: %v", e.Op, e.Err) }
func (e *TimeoutError) Unwrap() error { return e.Err }

// ConflictError: a unique constraint rejected the write. Surfaced so the
// dedupe path can treat a replayed insert as "already there".
type ConflictError struct {
	Op  string
	Err error
}

func (e *ConflictError) Error() string { return fmt.Sprintf("%s: conflict: %v", e.Op, e.Err) }
func (e *ConflictError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a store NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsConflict reports whether err is a unique-constraint rejection.
func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}

// IsCritical reports whether err belongs to the bounded set of systemic
// categories that must abort a whole job rather than a single item.
func IsCritical(err error) bool {
	var (
		se *SchemaError
		pe *PermissionError
		ce *ConnError
		te *TimeoutError
	)
	return errors.As(err, &se) || errors.As(err, &pe) ||
		errors.As(err, &ce) || errors.As(err, &te)
}

// classify wraps a raw driver error into one of the typed categories above.
// Anything unrecognized passes through with the op prefixed.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Op: op, Err: err}
	}
	if errors.Is(err, sql.ErrConnDone) {
		return &ConnError{Op: op, Err: err}
	}

	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff { // primary result code
		case sqlite3.SQLITE_ERROR:
			// modernc reports missing tables/columns under the generic
			// error code; for this schema that is always a schema problem.
			return &SchemaError{Op: op, Err: err}
		case sqlite3.SQLITE_AUTH, sqlite3.SQLITE_PERM, sqlite3.SQLITE_READONLY:
			return &PermissionError{Op: op, Err: err}
		case sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_IOERR, sqlite3.SQLITE_CORRUPT, sqlite3.SQLITE_NOTADB:
			return &ConnError{Op: op, Err: err}
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return &TimeoutError{Op: op, Err: err}
		case sqlite3.SQLITE_CONSTRAINT:
			return &ConflictError{Op: op, Err: err}
		}
	}

	return fmt.Errorf("%s: %w", op, err)
}
