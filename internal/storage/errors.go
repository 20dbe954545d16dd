package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// ErrorKind classifies persistence failures so callers can decide between
// silent retry, re-authentication, and a surfaced error.
type ErrorKind string

const (
	KindSchemaAccess        ErrorKind = "schema_access"
	KindNotFound            ErrorKind = "not_found"
	KindConstraintViolation ErrorKind = "constraint_violation"
	KindNetwork             ErrorKind = "network"
	KindAuthExpired         ErrorKind = "auth_expired"
	KindUnknown             ErrorKind = "unknown"
)

// StoreError wraps a persistence failure with its classified kind.
type StoreError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("storage %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// wrapErr classifies err and attaches the operation name. nil passes
// through.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Kind: classifyErr(err), Op: op, Err: err}
}

func classifyErr(err error) ErrorKind {
	if errors.Is(err, sql.ErrNoRows) {
		return KindNotFound
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrConstraint:
			return KindConstraintViolation
		case sqlite3.ErrAuth, sqlite3.ErrPerm:
			return KindAuthExpired
		case sqlite3.ErrError:
			if strings.Contains(err.Error(), "no such table") ||
				strings.Contains(err.Error(), "no such column") {
				return KindSchemaAccess
			}
		}
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "no such table"), strings.Contains(msg, "no such column"):
		return KindSchemaAccess
	case strings.Contains(msg, "connection"), strings.Contains(msg, "network"),
		strings.Contains(msg, "timeout"):
		return KindNetwork
	default:
		return KindUnknown
	}
}

// KindOf extracts the classified kind, or KindUnknown for foreign errors.
func KindOf(err error) ErrorKind {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}
