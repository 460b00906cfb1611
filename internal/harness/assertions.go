package harness

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/rdo/internal/data"
	"github.com/roach88/rdo/internal/store"
)

// validIdentifier matches valid SQL identifiers (table/column names).
// Only allows alphanumeric and underscore, must start with letter or underscore.
// This prevents SQL injection via identifier interpolation.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Executed steps for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nSteps:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s\n", event.Seq, event.Step, event.Target)
		}
	}

	return buf.String()
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Session *store.Session
	Ctx     context.Context

	// Rows resolves a row reference such as "Order/0/Items/1".
	Rows func(ref string) (*data.DataRow, error)
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides database access for final_state assertions
// and row access for value and valid assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertRowCount:
			err = assertRowCount(result, assertion)
		case AssertFinalState:
			if actx == nil || actx.Session == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires database context", i)
			} else {
				err = assertFinalState(actx.Ctx, actx.Session, assertion)
			}
		case AssertValue, AssertValid:
			if actx == nil || actx.Rows == nil {
				err = fmt.Errorf("assertion[%d]: %s requires row context", i, assertion.Type)
			} else if assertion.Type == AssertValue {
				err = assertValue(actx.Rows, result.Trace, assertion)
			} else {
				err = assertValid(actx.Rows, result.Trace, assertion)
			}
		case AssertEventCount:
			err = assertEventCount(result, assertion)
		case AssertStepOrder:
			err = assertStepOrder(result.Trace, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

// assertRowCount checks the number of rows captured for a table.
func assertRowCount(result *Result, assertion Assertion) error {
	ts, ok := result.Table(assertion.Table)
	if !ok {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("table %s", assertion.Table),
			Actual:   "table not found",
		}
	}
	if len(ts.Rows) != assertion.Count {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("%d rows in %s", assertion.Count, assertion.Table),
			Actual:   fmt.Sprintf("%d rows", len(ts.Rows)),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertValue checks the formatted value of one in-memory column.
func assertValue(rows func(string) (*data.DataRow, error), trace []TraceEvent, assertion Assertion) error {
	row, err := rows(assertion.Row)
	if err != nil {
		return &AssertionError{
			Type:     AssertValue,
			Expected: fmt.Sprintf("row %s", assertion.Row),
			Actual:   err.Error(),
		}
	}
	c, ok := row.Model().Column(assertion.Column)
	if !ok {
		return &AssertionError{
			Type:     AssertValue,
			Expected: fmt.Sprintf("column %s.%s", row.Model().Name(), assertion.Column),
			Actual:   "column not found",
		}
	}
	want := formatExpected(assertion.Expect)
	if got := c.Format(row); got != want {
		return &AssertionError{
			Type:     AssertValue,
			Expected: fmt.Sprintf("%s.%s = %s", assertion.Row, assertion.Column, want),
			Actual:   fmt.Sprintf("%s.%s = %s", assertion.Row, assertion.Column, got),
			Trace:    trace,
		}
	}
	return nil
}

// formatExpected renders an expected YAML value the way a column formats
// its values.
func formatExpected(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	}
	return fmt.Sprint(v)
}

// assertValid checks the validity of one row and, when Message is set,
// that one of its validation messages equals it.
func assertValid(rows func(string) (*data.DataRow, error), trace []TraceEvent, assertion Assertion) error {
	row, err := rows(assertion.Row)
	if err != nil {
		return &AssertionError{
			Type:     AssertValid,
			Expected: fmt.Sprintf("row %s", assertion.Row),
			Actual:   err.Error(),
		}
	}
	msgs := row.ValidationMessages()
	texts := make([]string, len(msgs))
	for i, m := range msgs {
		texts[i] = m.Severity.String() + ": " + m.Message
	}

	if assertion.Valid != nil && row.IsValid() != *assertion.Valid {
		return &AssertionError{
			Type:     AssertValid,
			Expected: fmt.Sprintf("%s valid = %t", assertion.Row, *assertion.Valid),
			Actual:   fmt.Sprintf("valid = %t, messages %v", row.IsValid(), texts),
			Trace:    trace,
		}
	}
	if assertion.Message != "" {
		for _, m := range msgs {
			if m.Message == assertion.Message {
				return nil
			}
		}
		return &AssertionError{
			Type:     AssertValid,
			Expected: fmt.Sprintf("%s message %q", assertion.Row, assertion.Message),
			Actual:   fmt.Sprintf("messages %v", texts),
			Trace:    trace,
		}
	}
	return nil
}

// assertEventCount checks how many times an event fired, optionally for one
// model only.
func assertEventCount(result *Result, assertion Assertion) error {
	prefix := assertion.Event + " "
	if assertion.Model != "" {
		prefix += assertion.Model
	}
	count := 0
	for _, e := range result.Events {
		if !strings.HasPrefix(e, prefix) {
			continue
		}
		if assertion.Model != "" {
			// The model name is followed by "[" or "." in Event.String.
			rest := e[len(prefix):]
			if rest != "" && rest[0] != '[' && rest[0] != '.' {
				continue
			}
		}
		count++
	}

	if count != assertion.Count {
		what := assertion.Event
		if assertion.Model != "" {
			what += " of " + assertion.Model
		}
		return &AssertionError{
			Type:     AssertEventCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, what),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertStepOrder checks if steps appear in the specified order.
// Steps don't need to be consecutive (intervening steps are allowed).
func assertStepOrder(trace []TraceEvent, assertion Assertion) error {
	next := 0
	for _, event := range trace {
		if next < len(assertion.Steps) && event.Step == assertion.Steps[next] {
			next++
		}
	}
	if next < len(assertion.Steps) {
		return &AssertionError{
			Type:     AssertStepOrder,
			Expected: fmt.Sprintf("steps in order: %v", assertion.Steps),
			Actual:   fmt.Sprintf("step %q not found after position %d", assertion.Steps[next], next),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState checks that exactly one row of the table matches Where
// and that it holds the expected values (subset match).
//
// Security: Table and column names are validated against a whitelist pattern
// to prevent SQL injection via identifier interpolation.
func assertFinalState(ctx context.Context, s *store.Session, assertion Assertion) error {
	if assertion.Table == "" {
		return fmt.Errorf("final_state assertion requires table name")
	}
	if !validIdentifier.MatchString(assertion.Table) {
		return fmt.Errorf("invalid table name %q: must match pattern %s", assertion.Table, validIdentifier.String())
	}
	expect, ok := assertion.Expect.(map[string]interface{})
	if !ok {
		return fmt.Errorf("final_state assertion requires an expect map")
	}

	whereSQL, whereArgs, err := buildWhereClause(assertion.Where)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("SELECT * FROM %s", assertion.Table)
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}

	rows, err := s.DB().QueryContext(ctx, query, whereArgs...)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query table %s", assertion.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("get columns: %w", err)
	}

	if !rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", assertion.Table, formatWhereClause(assertion.Where)),
			Actual:   "row not found",
		}
	}

	values := make([]interface{}, len(columns))
	valuePtrs := make([]interface{}, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}
	if err := rows.Scan(valuePtrs...); err != nil {
		return fmt.Errorf("scan row: %w", err)
	}

	// Multiple matching rows would make the assertion ambiguous
	if rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", assertion.Table, formatWhereClause(assertion.Where)),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	actualRow := make(map[string]interface{}, len(columns))
	for i, col := range columns {
		actualRow[col] = values[i]
	}

	keys := make([]string, 0, len(expect))
	for k := range expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		expectedValue := expect[key]
		actualValue, exists := actualRow[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in result columns: %v", key, columns),
			}
		}
		if !stateValuesEqual(expectedValue, actualValue) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v (type %T)", key, expectedValue, expectedValue),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, actualValue, actualValue),
			}
		}
	}

	return nil
}

// buildWhereClause constructs parameterized WHERE clause from assertion.Where.
// Returns SQL fragment, arguments slice, and error. Keys are sorted for determinism.
func buildWhereClause(where map[string]interface{}) (string, []interface{}, error) {
	if len(where) == 0 {
		return "", nil, nil
	}

	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]string, 0, len(keys))
	args := make([]interface{}, 0, len(keys))

	for _, key := range keys {
		if !validIdentifier.MatchString(key) {
			return "", nil, fmt.Errorf("invalid column name %q in where clause: must match pattern %s", key, validIdentifier.String())
		}
		if where[key] == nil {
			clauses = append(clauses, fmt.Sprintf("%s IS NULL", key))
			continue
		}
		clauses = append(clauses, fmt.Sprintf("%s = ?", key))
		args = append(args, toSQLValue(where[key]))
	}

	return strings.Join(clauses, " AND "), args, nil
}

// toSQLValue converts a decoded YAML value to a SQL-compatible value.
func toSQLValue(v interface{}) interface{} {
	switch val := v.(type) {
	case int:
		return int64(val)
	case string, int64, float64, bool, time.Time:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

// formatWhereClause creates a human-readable description of WHERE conditions.
func formatWhereClause(where map[string]interface{}) string {
	if len(where) == 0 {
		return "(no conditions)"
	}

	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

// stateValuesEqual compares expected and actual values from state tables.
// Handles type coercion for SQLite values which may be returned as different types.
func stateValuesEqual(expected, actual interface{}) bool {
	if expected == nil && actual == nil {
		return true
	}
	if expected == nil || actual == nil {
		return false
	}

	if b, ok := actual.([]byte); ok {
		actual = string(b)
	}

	switch exp := expected.(type) {
	case string:
		switch a := actual.(type) {
		case string:
			return exp == a
		case time.Time:
			t, err := time.Parse(time.RFC3339Nano, exp)
			return err == nil && t.Equal(a)
		}
		return false
	case int:
		return numberEqual(float64(exp), actual)
	case int64:
		return numberEqual(float64(exp), actual)
	case float64:
		return numberEqual(exp, actual)
	case bool:
		if actualBool, ok := actual.(bool); ok {
			return exp == actualBool
		}
		// SQLite stores booleans as integers
		if actualInt, ok := actual.(int64); ok {
			return exp == (actualInt != 0)
		}
		return false
	case time.Time:
		if a, ok := actual.(time.Time); ok {
			return exp.Equal(a)
		}
		return false
	}

	return reflect.DeepEqual(expected, actual)
}

// numberEqual compares a YAML number with an INTEGER or REAL column value.
func numberEqual(exp float64, actual interface{}) bool {
	switch a := actual.(type) {
	case int64:
		return exp == float64(a)
	case float64:
		return exp == a
	}
	return false
}
