package data

import (
	"errors"
	"fmt"
	"strings"
)

// SchemaErrorCode categorizes schema misuse.
type SchemaErrorCode string

const (
	// ErrCodeReadOnly indicates a write to a computed or child-derived column.
	ErrCodeReadOnly SchemaErrorCode = "READ_ONLY"

	// ErrCodeKeyLocked indicates a write to a primary-key column that already
	// holds a non-null value.
	ErrCodeKeyLocked SchemaErrorCode = "KEY_LOCKED"

	// ErrCodeOwnershipMismatch indicates a row, column or model used with a
	// schema it does not belong to.
	ErrCodeOwnershipMismatch SchemaErrorCode = "OWNERSHIP_MISMATCH"

	// ErrCodeRowDetached indicates a write to a row that has been removed.
	ErrCodeRowDetached SchemaErrorCode = "ROW_DETACHED"

	// ErrCodeIndexOutOfRange indicates a row index outside the DataSet.
	ErrCodeIndexOutOfRange SchemaErrorCode = "INDEX_OUT_OF_RANGE"

	// ErrCodeSchemaFrozen indicates a builder call after design mode ended.
	ErrCodeSchemaFrozen SchemaErrorCode = "SCHEMA_FROZEN"

	// ErrCodeDuplicateName indicates a column or child model name used twice
	// within one model.
	ErrCodeDuplicateName SchemaErrorCode = "DUPLICATE_NAME"

	// ErrCodeInvalidSource indicates an expression that reads a model outside
	// the allowed scope (scalar reads must target the owning model or an
	// ancestor, aggregates must target a descendant).
	ErrCodeInvalidSource SchemaErrorCode = "INVALID_SOURCE"

	// ErrCodeComputationCycle indicates computed columns that depend on each
	// other.
	ErrCodeComputationCycle SchemaErrorCode = "COMPUTATION_CYCLE"

	// ErrCodeEmptyFrom indicates a query built without a FROM clause.
	ErrCodeEmptyFrom SchemaErrorCode = "EMPTY_FROM"

	// ErrCodeUnmappedParentKey indicates a child query whose parent mappings
	// do not cover the correlation key of the parent.
	ErrCodeUnmappedParentKey SchemaErrorCode = "UNMAPPED_PARENT_KEY"

	// ErrCodeNoPrimaryKey indicates an operation that needs a primary key on a
	// model that declares none.
	ErrCodeNoPrimaryKey SchemaErrorCode = "NO_PRIMARY_KEY"

	// ErrCodeNoIdentity indicates identity capture requested for a model
	// without an identity column.
	ErrCodeNoIdentity SchemaErrorCode = "NO_IDENTITY"

	// ErrCodeTypeMismatch indicates a value that cannot be converted to the
	// column type.
	ErrCodeTypeMismatch SchemaErrorCode = "TYPE_MISMATCH"

	// ErrCodeInvalidOption indicates a combination of options that cannot be
	// compiled for the backend.
	ErrCodeInvalidOption SchemaErrorCode = "INVALID_OPTION"
)

// SchemaError reports a programmer error against a schema. Schema errors are
// never retried.
type SchemaError struct {
	// Code identifies the error category.
	Code SchemaErrorCode

	// Message is a human-readable description.
	Message string

	// Model names the model involved, if any.
	Model string

	// Column names the column involved, if any.
	Column string
}

func (e *SchemaError) Error() string {
	switch {
	case e.Model != "" && e.Column != "":
		return fmt.Sprintf("%s: %s (column=%s.%s)", e.Code, e.Message, e.Model, e.Column)
	case e.Model != "":
		return fmt.Sprintf("%s: %s (model=%s)", e.Code, e.Message, e.Model)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewSchemaError creates a SchemaError without model context.
func NewSchemaError(code SchemaErrorCode, format string, args ...any) *SchemaError {
	return &SchemaError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func modelError(code SchemaErrorCode, m *Model, format string, args ...any) *SchemaError {
	e := NewSchemaError(code, format, args...)
	if m != nil {
		e.Model = m.name
	}
	return e
}

func columnError(code SchemaErrorCode, c AnyColumn, format string, args ...any) *SchemaError {
	e := NewSchemaError(code, format, args...)
	e.Column = c.Name()
	if m := c.Model(); m != nil {
		e.Model = m.name
	}
	return e
}

// HasCode reports whether err is a SchemaError with the given code.
// Uses errors.As to handle wrapped errors.
func HasCode(err error, code SchemaErrorCode) bool {
	var se *SchemaError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// IsReadOnlyError returns true if err rejects a write to a read-only column,
// including key-locked primary-key columns.
func IsReadOnlyError(err error) bool {
	return HasCode(err, ErrCodeReadOnly) || HasCode(err, ErrCodeKeyLocked)
}

// IsOwnershipError returns true if err is an ownership mismatch.
func IsOwnershipError(err error) bool {
	return HasCode(err, ErrCodeOwnershipMismatch)
}

// IsCycleError returns true if err reports a computation cycle.
func IsCycleError(err error) bool {
	return HasCode(err, ErrCodeComputationCycle)
}

// FormatError reports a structured textual reference that does not match
// its grammar.
type FormatError struct {
	// Input is the text that failed to parse.
	Input string

	// Pos is the byte offset of the offending token.
	Pos int

	// Message describes what was expected.
	Message string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid reference %q at offset %d: %s", e.Input, e.Pos, e.Message)
}

// IsFormatError returns true if err is a FormatError.
func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}

func cyclePathMessage(path []string) string {
	return "computed columns depend on each other: " + strings.Join(path, " → ")
}
