package data

import (
	"cmp"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// DataType describes how values of T are compared, stored in the backend and
// rendered as text.
type DataType[T any] interface {
	// SQLType is the column type used in generated DDL.
	SQLType() string

	// Equal reports whether two non-null values are equal.
	Equal(a, b T) bool

	// Compare orders two non-null values.
	Compare(a, b T) int

	// FromDriver converts a value read from database/sql into T.
	FromDriver(v any) (T, error)

	// ToDriver converts T into a value accepted by database/sql.
	ToDriver(v T) any

	// Format renders v as text.
	Format(v T) string
}

// Number is the set of Go types usable in arithmetic expressions.
type Number interface {
	~int32 | ~int64 | ~float64
}

// Built-in data types.
var (
	Int64   DataType[int64]           = int64Type{}
	Int32   DataType[int32]           = int32Type{}
	Float64 DataType[float64]         = float64Type{}
	String  DataType[string]          = stringType{}
	Bool    DataType[bool]            = boolType{}
	Time    DataType[time.Time]       = timeType{}
	Decimal DataType[decimal.Decimal] = decimalType{}
)

// Some returns a valid nullable value.
func Some[T any](v T) sql.Null[T] {
	return sql.Null[T]{V: v, Valid: true}
}

// None returns the null value of T.
func None[T any]() sql.Null[T] {
	return sql.Null[T]{}
}

func nullEqual[T any](dt DataType[T], a, b sql.Null[T]) bool {
	if a.Valid != b.Valid {
		return false
	}
	return !a.Valid || dt.Equal(a.V, b.V)
}

func conversionError(v any, target string) error {
	return NewSchemaError(ErrCodeTypeMismatch, "cannot convert %T to %s", v, target)
}

type int64Type struct{}

func (int64Type) SQLType() string       { return "INTEGER" }
func (int64Type) Equal(a, b int64) bool { return a == b }
func (int64Type) Compare(a, b int64) int {
	return cmp.Compare(a, b)
}
func (int64Type) ToDriver(v int64) any  { return v }
func (int64Type) Format(v int64) string { return strconv.FormatInt(v, 10) }
func (int64Type) FromDriver(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case float64:
		return int64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case []byte:
		return strconv.ParseInt(string(x), 10, 64)
	case string:
		return strconv.ParseInt(x, 10, 64)
	}
	return 0, conversionError(v, "int64")
}

type int32Type struct{}

func (int32Type) SQLType() string        { return "INTEGER" }
func (int32Type) Equal(a, b int32) bool  { return a == b }
func (int32Type) Compare(a, b int32) int { return cmp.Compare(a, b) }
func (int32Type) ToDriver(v int32) any   { return int64(v) }
func (int32Type) Format(v int32) string  { return strconv.FormatInt(int64(v), 10) }
func (int32Type) FromDriver(v any) (int32, error) {
	n, err := int64Type{}.FromDriver(v)
	if err != nil {
		return 0, conversionError(v, "int32")
	}
	return int32(n), nil
}

type float64Type struct{}

func (float64Type) SQLType() string          { return "REAL" }
func (float64Type) Equal(a, b float64) bool  { return a == b }
func (float64Type) Compare(a, b float64) int { return cmp.Compare(a, b) }
func (float64Type) ToDriver(v float64) any   { return v }
func (float64Type) Format(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
func (float64Type) FromDriver(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int64:
		return float64(x), nil
	case []byte:
		return strconv.ParseFloat(string(x), 64)
	case string:
		return strconv.ParseFloat(x, 64)
	}
	return 0, conversionError(v, "float64")
}

type stringType struct{}

func (stringType) SQLType() string         { return "TEXT" }
func (stringType) Equal(a, b string) bool  { return a == b }
func (stringType) Compare(a, b string) int { return cmp.Compare(a, b) }
func (stringType) ToDriver(v string) any   { return v }
func (stringType) Format(v string) string  { return v }
func (stringType) FromDriver(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	}
	return "", conversionError(v, "string")
}

type boolType struct{}

func (boolType) SQLType() string      { return "BOOLEAN" }
func (boolType) Equal(a, b bool) bool { return a == b }
func (boolType) ToDriver(v bool) any  { return v }
func (boolType) Format(v bool) string { return strconv.FormatBool(v) }
func (boolType) Compare(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}
func (boolType) FromDriver(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case int64:
		return x != 0, nil
	case string:
		return strconv.ParseBool(x)
	}
	return false, conversionError(v, "bool")
}

// timeLayouts are the formats go-sqlite3 writes and accepts for timestamps.
var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	time.RFC3339Nano,
}

type timeType struct{}

func (timeType) SQLType() string            { return "TIMESTAMP" }
func (timeType) Equal(a, b time.Time) bool  { return a.Equal(b) }
func (timeType) Compare(a, b time.Time) int { return a.Compare(b) }
func (timeType) ToDriver(v time.Time) any   { return v }
func (timeType) Format(v time.Time) string  { return v.Format(time.RFC3339Nano) }
func (timeType) FromDriver(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case string:
		return parseTime(x)
	case []byte:
		return parseTime(string(x))
	case int64:
		return time.Unix(x, 0).UTC(), nil
	}
	return time.Time{}, conversionError(v, "time.Time")
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse time %q: unrecognized layout", s)
}

// decimalType stores values as TEXT so no precision is lost in the backend.
type decimalType struct{}

func (decimalType) SQLType() string                  { return "TEXT" }
func (decimalType) Equal(a, b decimal.Decimal) bool  { return a.Equal(b) }
func (decimalType) Compare(a, b decimal.Decimal) int { return a.Cmp(b) }
func (decimalType) ToDriver(v decimal.Decimal) any   { return v.String() }
func (decimalType) Format(v decimal.Decimal) string  { return v.String() }
func (decimalType) FromDriver(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case string:
		return decimal.NewFromString(x)
	case []byte:
		return decimal.NewFromString(string(x))
	case int64:
		return decimal.NewFromInt(x), nil
	case float64:
		return decimal.NewFromFloat(x), nil
	case decimal.Decimal:
		return x, nil
	}
	return decimal.Decimal{}, conversionError(v, "decimal")
}

// typeName returns a readable name for a data type, used in error messages.
func typeName[T any](dt DataType[T]) string {
	var zero T
	return fmt.Sprintf("%T(%s)", zero, dt.SQLType())
}
