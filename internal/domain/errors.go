package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Match them with errors.Is.
var (
	ErrNotFound            = errors.New("not found")
	ErrSchemaMismatch      = errors.New("schema mismatch")
	ErrSchemaNotYetVisible = errors.New("schema not yet visible")
	ErrTableNotProvisioned = errors.New("table not provisioned")
	ErrValidation          = errors.New("validation failed")
	ErrBackend             = errors.New("backend error")
	ErrConflict            = errors.New("concurrent modification")
)

// Error is a classified failure with the identifiers needed to act on it.
type Error struct {
	Kind       error
	Op         string
	DatabaseID string
	RowID      string
	Column     string
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Message != "" {
		b.WriteString(e.Message)
	} else {
		b.WriteString(e.Kind.Error())
	}
	var ids []string
	if e.DatabaseID != "" {
		ids = append(ids, "database="+e.DatabaseID)
	}
	if e.RowID != "" {
		ids = append(ids, "row="+e.RowID)
	}
	if e.Column != "" {
		ids = append(ids, "column="+e.Column)
	}
	if len(ids) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(ids, " "))
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Is matches the error kind, so wrapped causes stay reachable via Unwrap.
func (e *Error) Is(target error) bool { return e.Kind == target }

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) WithDatabase(id string) *Error { e.DatabaseID = id; return e }
func (e *Error) WithRow(id string) *Error      { e.RowID = id; return e }
func (e *Error) WithColumn(id string) *Error   { e.Column = id; return e }

// NotFound reports a missing database, row or document.
func NotFound(op, what, id string) *Error {
	return &Error{Kind: ErrNotFound, Op: op, Message: fmt.Sprintf("%s not found: %s", what, id)}
}

// Validation reports malformed caller input.
func Validation(op, format string, args ...any) *Error {
	return &Error{Kind: ErrValidation, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Mismatch reports a reference to a column the schema does not have.
func Mismatch(op, column string) *Error {
	return &Error{Kind: ErrSchemaMismatch, Op: op, Column: column, Message: "unknown column"}
}

// Backend wraps an unclassified store failure. Already classified errors
// pass through unchanged.
func Backend(op string, cause error) error {
	if cause == nil {
		return nil
	}
	var de *Error
	if errors.As(cause, &de) {
		return cause
	}
	return &Error{Kind: ErrBackend, Op: op, Cause: cause}
}

// KindOf returns the error kind of err, defaulting to ErrBackend.
func KindOf(err error) error {
	for _, k := range []error{ErrNotFound, ErrSchemaMismatch, ErrSchemaNotYetVisible,
		ErrTableNotProvisioned, ErrValidation, ErrConflict} {
		if errors.Is(err, k) {
			return k
		}
	}
	return ErrBackend
}

// Code is the stable machine-readable name of an error kind.
func Code(err error) string {
	switch KindOf(err) {
	case ErrNotFound:
		return "NOT_FOUND"
	case ErrSchemaMismatch:
		return "SCHEMA_MISMATCH"
	case ErrSchemaNotYetVisible:
		return "SCHEMA_NOT_YET_VISIBLE"
	case ErrTableNotProvisioned:
		return "TABLE_NOT_PROVISIONED"
	case ErrValidation:
		return "VALIDATION_ERROR"
	case ErrConflict:
		return "CONFLICT"
	default:
		return "BACKEND_ERROR"
	}
}
