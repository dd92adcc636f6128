package sql

import (
	"errors"
	"fmt"
	"strings"
)

// CompileError is returned when a statement tree is structurally invalid for
// SQL Server, for example a paginated SELECT with no ORDER BY clause. A
// compile error is deterministic: rendering the same statement always fails
// the same way, and no partial SQL text is returned.
type CompileError struct {
	clause string // clause that triggered the failure, e.g. "OFFSET"
	msg    string
}

// Error returns the error string.
func (e *CompileError) Error() string {
	if e.clause != "" {
		return fmt.Sprintf("mssql: compile %s clause: %s", e.clause, e.msg)
	}
	return fmt.Sprintf("mssql: compile: %s", e.msg)
}

// Clause returns the clause that triggered the failure.
func (e *CompileError) Clause() string {
	return e.clause
}

// NewCompileError returns a new CompileError for the given clause.
func NewCompileError(clause, msg string) *CompileError {
	return &CompileError{clause: clause, msg: msg}
}

// IsCompileError returns true if the error is a CompileError.
func IsCompileError(err error) bool {
	if err == nil {
		return false
	}
	var e *CompileError
	return errors.As(err, &e)
}

// UnsupportedFeatureError is returned when the connected server version
// cannot support the requested construct. It is a permanent failure and
// must not be retried.
type UnsupportedFeatureError struct {
	feature string
	version string
}

// Error returns the error string.
func (e *UnsupportedFeatureError) Error() string {
	if e.version != "" {
		return fmt.Sprintf("mssql: %s is not supported on SQL Server %s", e.feature, e.version)
	}
	return fmt.Sprintf("mssql: %s is not supported on this SQL Server version", e.feature)
}

// Feature returns the unsupported feature name.
func (e *UnsupportedFeatureError) Feature() string {
	return e.feature
}

// NewUnsupportedFeatureError returns a new UnsupportedFeatureError.
func NewUnsupportedFeatureError(feature, version string) *UnsupportedFeatureError {
	return &UnsupportedFeatureError{feature: feature, version: version}
}

// IsUnsupportedFeature returns true if the error is an UnsupportedFeatureError.
func IsUnsupportedFeature(err error) bool {
	if err == nil {
		return false
	}
	var e *UnsupportedFeatureError
	return errors.As(err, &e)
}

// ArgumentError is returned when a caller-supplied option is outside the
// recognized set. The message always carries the offending value and the
// set of valid values.
type ArgumentError struct {
	name  string
	value string
	valid []string
}

// Error returns the error string.
func (e *ArgumentError) Error() string {
	return fmt.Sprintf(
		"mssql: invalid value %q for %s. valid values are: %s",
		e.value, e.name, strings.Join(e.valid, ", "),
	)
}

// Valid returns the set of accepted values.
func (e *ArgumentError) Valid() []string {
	return e.valid
}

// NewArgumentError returns a new ArgumentError.
func NewArgumentError(name, value string, valid []string) *ArgumentError {
	return &ArgumentError{name: name, value: value, valid: valid}
}

// IsArgumentError returns true if the error is an ArgumentError.
func IsArgumentError(err error) bool {
	if err == nil {
		return false
	}
	var e *ArgumentError
	return errors.As(err, &e)
}

// CleanupError records a failure while disabling IDENTITY_INSERT after the
// main statement already failed. It is logged and suppressed, never
// propagated over the original statement error.
type CleanupError struct {
	Table string // formatted table name whose mode toggle failed
	Err   error  // error returned by the disabling statement
}

// Error returns the error string.
func (e *CleanupError) Error() string {
	return fmt.Sprintf("mssql: disabling IDENTITY_INSERT for %s: %v", e.Table, e.Err)
}

// Unwrap returns the underlying error.
func (e *CleanupError) Unwrap() error {
	return e.Err
}
