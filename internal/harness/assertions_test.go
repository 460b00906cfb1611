package harness

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rdo/internal/data"
	"github.com/roach88/rdo/internal/store"
)

func sampleResult() *Result {
	r := NewResult()
	r.AddStepTrace(TraceEvent{Step: StepInsert, Target: "Order", Rows: 2})
	r.AddStepTrace(TraceEvent{Step: StepSet, Target: "Order/0", Column: "Customer", Value: "bob"})
	r.AddStepTrace(TraceEvent{Step: StepUpdate, Target: "Order", Rows: 2})
	r.Events = []string{
		"RowInserting Order[0]",
		"RowInserted Order[0]",
		"RowInserted Items[0]",
		"RowInserted Items[1]",
		"ValueChanged Order.Customer",
		"RowInserted Orders[0]",
	}
	r.Tables = []TableState{
		{Name: "orders", Columns: []string{"ID"}, Rows: [][]any{{int64(1)}, {int64(2)}}},
		{Name: "order_items", Columns: []string{"ItemID"}, Rows: [][]any{}},
	}
	return r
}

func TestAssertRowCount(t *testing.T) {
	r := sampleResult()

	assert.NoError(t, assertRowCount(r, Assertion{Table: "orders", Count: 2}))
	assert.NoError(t, assertRowCount(r, Assertion{Table: "order_items", Count: 0}))

	err := assertRowCount(r, Assertion{Table: "orders", Count: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Expected: 3 rows in orders")
	assert.Contains(t, err.Error(), "Actual: 2 rows")

	err = assertRowCount(r, Assertion{Table: "customers"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "table not found")
}

func TestAssertEventCount(t *testing.T) {
	r := sampleResult()

	tests := []struct {
		event string
		model string
		want  int
	}{
		{"RowInserted", "", 4},
		{"RowInserted", "Order", 1},
		{"RowInserted", "Items", 2},
		{"RowInserting", "Order", 1},
		{"ValueChanged", "Order", 1},
		{"RowRemoved", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.event+" "+tt.model, func(t *testing.T) {
			assert.NoError(t, assertEventCount(r, Assertion{Event: tt.event, Model: tt.model, Count: tt.want}))
			err := assertEventCount(r, Assertion{Event: tt.event, Model: tt.model, Count: tt.want + 1})
			require.Error(t, err)
			assert.Contains(t, err.Error(), fmt.Sprintf("%d occurrences", tt.want))
		})
	}
}

func TestAssertStepOrder(t *testing.T) {
	trace := sampleResult().Trace

	assert.NoError(t, assertStepOrder(trace, Assertion{Steps: []string{StepInsert, StepUpdate}}))
	assert.NoError(t, assertStepOrder(trace, Assertion{Steps: []string{StepInsert, StepSet, StepUpdate}}))

	err := assertStepOrder(trace, Assertion{Steps: []string{StepUpdate, StepInsert}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `step "insert" not found after position 1`)

	err = assertStepOrder(trace, Assertion{Steps: []string{StepFill}})
	require.Error(t, err)
}

// rowFixture is a one-model tree with a validator and a single row.
func rowFixture(t *testing.T) (*data.DataRow, func(string) (*data.DataRow, error)) {
	t.Helper()
	m := data.NewModel("Order")
	name := data.NewColumn(m, "Customer", data.String)
	total := data.NewColumn(m, "Total", data.Float64)
	m.AddValidator(data.Required(name))
	require.NoError(t, m.Freeze())

	ds, err := data.NewDataSet(m)
	require.NoError(t, err)
	row, err := ds.AddRow(func(r *data.DataRow) error { return total.Set(r, 2.5) })
	require.NoError(t, err)

	return row, func(ref string) (*data.DataRow, error) {
		if ref != "Order/0" {
			return nil, fmt.Errorf("no row %s", ref)
		}
		return row, nil
	}
}

func TestAssertValue(t *testing.T) {
	_, rows := rowFixture(t)

	assert.NoError(t, assertValue(rows, nil, Assertion{Row: "Order/0", Column: "Total", Expect: 2.5}))
	assert.NoError(t, assertValue(rows, nil, Assertion{Row: "Order/0", Column: "Total", Expect: "2.5"}))
	assert.NoError(t, assertValue(rows, nil, Assertion{Row: "Order/0", Column: "Customer", Expect: nil}))

	err := assertValue(rows, nil, Assertion{Row: "Order/0", Column: "Total", Expect: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Actual: Order/0.Total = 2.5")

	err = assertValue(rows, nil, Assertion{Row: "Order/0", Column: "Nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "column not found")

	err = assertValue(rows, nil, Assertion{Row: "Order/1", Column: "Total"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no row Order/1")
}

func TestAssertValid(t *testing.T) {
	_, rows := rowFixture(t)
	yes, no := true, false

	assert.NoError(t, assertValid(rows, nil, Assertion{Row: "Order/0", Valid: &no}))

	err := assertValid(rows, nil, Assertion{Row: "Order/0", Valid: &yes})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "valid = false")

	err = assertValid(rows, nil, Assertion{Row: "Order/0", Message: "something else"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `message "something else"`)
}

func TestFormatExpected(t *testing.T) {
	assert.Equal(t, "NULL", formatExpected(nil))
	assert.Equal(t, "8.5", formatExpected(8.5))
	assert.Equal(t, "100", formatExpected(100))
	assert.Equal(t, "true", formatExpected(true))
	assert.Equal(t, "ada", formatExpected("ada"))
}

func TestEvaluateAssertions_UnknownType(t *testing.T) {
	errs := EvaluateAssertions(NewResult(), []Assertion{{Type: "trace_contains"}}, nil)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], `unknown assertion type "trace_contains"`)
}

func TestEvaluateAssertions_WithoutContext(t *testing.T) {
	errs := EvaluateAssertions(NewResult(), []Assertion{
		{Type: AssertFinalState, Table: "orders", Expect: map[string]interface{}{}},
		{Type: AssertValue, Row: "Order/0", Column: "Total"},
	}, nil)
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "final_state requires database context")
	assert.Contains(t, errs[1], "value requires row context")
}

func TestAssertionError_ErrorFormat(t *testing.T) {
	err := &AssertionError{
		Type:     AssertRowCount,
		Expected: "3 rows in orders",
		Actual:   "2 rows",
		Trace:    sampleResult().Trace,
	}

	errorStr := err.Error()
	assert.Contains(t, errorStr, "Assertion failed: row_count")
	assert.Contains(t, errorStr, "Expected: 3 rows in orders")
	assert.Contains(t, errorStr, "Actual: 2 rows")
	assert.Contains(t, errorStr, "Steps:")
	assert.Contains(t, errorStr, "[2] set Order/0")
}

func TestBuildWhereClause(t *testing.T) {
	tests := []struct {
		name  string
		where map[string]interface{}
		sql   string
		args  []interface{}
	}{
		{"empty", nil, "", nil},
		{"single key", map[string]interface{}{"customer": "ada"}, "customer = ?", []interface{}{"ada"}},
		{"sorted keys", map[string]interface{}{"status": "open", "customer": "ada"}, "customer = ? AND status = ?", []interface{}{"ada", "open"}},
		{"null", map[string]interface{}{"customer": nil}, "customer IS NULL", []interface{}{}},
		{"int widened", map[string]interface{}{"ID": 7}, "ID = ?", []interface{}{int64(7)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := buildWhereClause(tt.where)
			require.NoError(t, err)
			assert.Equal(t, tt.sql, sql)
			assert.Equal(t, tt.args, args)
		})
	}
}

func TestBuildWhereClause_NoInterpolation(t *testing.T) {
	where := map[string]interface{}{
		"customer": "ada'; DROP TABLE orders; --",
	}
	sql, args, err := buildWhereClause(where)
	require.NoError(t, err)
	assert.NotContains(t, sql, "DROP TABLE")
	assert.Contains(t, args, "ada'; DROP TABLE orders; --")
}

func TestBuildWhereClause_InvalidColumnName(t *testing.T) {
	for _, column := range []string{"id; DROP TABLE orders; --", "1column", "item id", "item-id"} {
		t.Run(column, func(t *testing.T) {
			_, _, err := buildWhereClause(map[string]interface{}{column: "value"})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid column name")
		})
	}
}

func TestAssertFinalState_InvalidTableName(t *testing.T) {
	err := assertFinalState(context.Background(), nil, Assertion{Table: "orders; DROP TABLE orders; --"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid table name")
}

func TestFormatWhereClause(t *testing.T) {
	assert.Equal(t, "(no conditions)", formatWhereClause(nil))
	assert.Equal(t, "customer=ada AND status=open", formatWhereClause(map[string]interface{}{
		"status":   "open",
		"customer": "ada",
	}))
}

func TestStateValuesEqual(t *testing.T) {
	tests := []struct {
		name     string
		expected interface{}
		actual   interface{}
		want     bool
	}{
		{"strings", "ada", "ada", true},
		{"different strings", "ada", "bob", false},
		{"string vs int", "42", int64(42), false},
		{"blob as text", "ada", []byte("ada"), true},
		{"int vs INTEGER", 42, int64(42), true},
		{"int vs REAL", 4, float64(4), true},
		{"float vs REAL", 1.5, float64(1.5), true},
		{"float vs INTEGER", 2.0, int64(2), true},
		{"different numbers", int64(42), int64(43), false},
		{"bool", true, true, true},
		{"bool as integer", true, int64(1), true},
		{"false as integer", false, int64(0), true},
		{"nil", nil, nil, true},
		{"nil vs value", nil, "x", false},
		{"value vs nil", "x", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stateValuesEqual(tt.expected, tt.actual))
		})
	}
}

// Integration tests for assertFinalState with a real database

func setupTestSession(t *testing.T) *store.Session {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	_, err = s.DB().Exec(`
		CREATE TABLE orders (
			id INTEGER PRIMARY KEY,
			customer TEXT,
			total REAL,
			status TEXT
		)
	`)
	require.NoError(t, err)
	_, err = s.DB().Exec(`INSERT INTO orders (id, customer, total, status) VALUES
		(1, 'ada', 8.5, 'open'),
		(2, 'bob', 10, 'open'),
		(3, 'bob', 2, 'closed')`)
	require.NoError(t, err)
	return s
}

func TestAssertFinalState(t *testing.T) {
	s := setupTestSession(t)

	tests := []struct {
		name   string
		where  map[string]interface{}
		expect map[string]interface{}
		want   string
	}{
		{"match", map[string]interface{}{"customer": "ada"}, map[string]interface{}{"id": 1, "total": 8.5}, ""},
		{"subset match", map[string]interface{}{"id": 2}, map[string]interface{}{"status": "open"}, ""},
		{"empty expect", map[string]interface{}{"id": 3}, map[string]interface{}{}, ""},
		{"multiple conditions", map[string]interface{}{"customer": "bob", "status": "closed"}, map[string]interface{}{"id": 3}, ""},
		{"not found", map[string]interface{}{"customer": "cy"}, map[string]interface{}{}, "row not found"},
		{"ambiguous", map[string]interface{}{"customer": "bob"}, map[string]interface{}{}, "multiple rows matched"},
		{"mismatch", map[string]interface{}{"id": 1}, map[string]interface{}{"total": 9}, `field "total" = 9`},
		{"missing column", map[string]interface{}{"id": 1}, map[string]interface{}{"discount": 0}, `field "discount" to exist`},
		{"type mismatch", map[string]interface{}{"id": 1}, map[string]interface{}{"customer": 1}, `field "customer"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertFinalState(context.Background(), s, Assertion{
				Type:   AssertFinalState,
				Table:  "orders",
				Where:  tt.where,
				Expect: tt.expect,
			})
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestAssertFinalState_TableNotFound(t *testing.T) {
	s := setupTestSession(t)
	err := assertFinalState(context.Background(), s, Assertion{
		Table:  "customers",
		Expect: map[string]interface{}{},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query error")
}

func TestEvaluateAssertions_FinalStateWithContext(t *testing.T) {
	s := setupTestSession(t)
	errs := EvaluateAssertions(NewResult(), []Assertion{{
		Type:   AssertFinalState,
		Table:  "orders",
		Where:  map[string]interface{}{"id": 1},
		Expect: map[string]interface{}{"customer": "ada"},
	}}, &AssertionContext{Session: s, Ctx: context.Background()})
	assert.Empty(t, errs)
}
