package adapter

import (
	"errors"
	"fmt"
	"strings"
)

// Standard adapter errors
var (
	// ErrValidation is returned when a configuration value or identifier is rejected
	ErrValidation = errors.New("validation failed")

	// ErrConnection is returned when a database cannot be reached or authenticated against
	ErrConnection = errors.New("connection failed")

	// ErrQuery is returned when a catalog query or statement fails
	ErrQuery = errors.New("query failed")

	// ErrIncompatibleSchema is returned when two tables do not share the same column names
	ErrIncompatibleSchema = errors.New("incompatible schema")

	// ErrNotFound is returned when a table does not exist
	ErrNotFound = errors.New("table not found")

	// ErrTableExists is returned when a destination table exists and overwriting was not allowed
	ErrTableExists = errors.New("table already exists")
)

// ValidationError reports a configuration value or identifier that failed
// the whitelist check. No database call is made once one is produced.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ConnectionError wraps a failure to open or authenticate a connection.
type ConnectionError struct {
	Dialect Dialect
	Host    string
	Port    int
	Cause   error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("[%s] connect to %s:%d: %v", e.Dialect, e.Host, e.Port, e.Cause)
}

func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

func (e *ConnectionError) Is(target error) bool {
	return target == ErrConnection
}

// QueryError wraps a failed statement with the operation and the table it
// targeted.
type QueryError struct {
	Op     string
	Target string
	Cause  error
}

func (e *QueryError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Cause)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Target, e.Cause)
}

func (e *QueryError) Unwrap() error {
	return e.Cause
}

func (e *QueryError) Is(target error) bool {
	return target == ErrQuery
}

// IncompatibleSchemaError is returned by the cross-dialect transfer gate
// when the two column name sets differ.
type IncompatibleSchemaError struct {
	Table   string
	Missing []string // present in the source, absent from the destination
	Extra   []string // present in the destination only
}

func (e *IncompatibleSchemaError) Error() string {
	msg := "Table schemas are not compatible (column names differ)."
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Extra) > 0 {
		parts = append(parts, "extra: "+strings.Join(e.Extra, ", "))
	}
	if len(parts) == 0 {
		return msg
	}
	return fmt.Sprintf("%s [%s] %s", msg, e.Table, strings.Join(parts, "; "))
}

func (e *IncompatibleSchemaError) Is(target error) bool {
	return target == ErrIncompatibleSchema
}

// NotFoundError is returned when a table an operation requires is absent.
type NotFoundError struct {
	Table string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("Table '%s' does not exist.", e.Table)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// IsNotFound reports whether err means a table was missing.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func queryError(op, target string, err error) error {
	if err == nil {
		return nil
	}
	for _, typed := range []error{ErrNotFound, ErrQuery, ErrConnection, ErrValidation, ErrIncompatibleSchema, ErrTableExists} {
		if errors.Is(err, typed) {
			return err
		}
	}
	return &QueryError{Op: op, Target: target, Cause: err}
}
