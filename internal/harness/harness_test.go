package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rdo/internal/config"
)

func loadTestdata(t *testing.T, name string) *Scenario {
	t.Helper()
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return scenario
}

func TestRun_MinimalScenario(t *testing.T) {
	scenario, err := LoadScenario(writeScenario(t, minimalScenario))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Errors)

	require.Len(t, result.Trace, 1)
	assert.Equal(t, TraceEvent{Seq: 1, Step: StepInsert, Target: "Order", Rows: 1}, result.Trace[0])

	orders, ok := result.Table("orders")
	require.True(t, ok)
	require.Len(t, orders.Rows, 1)
	assert.Equal(t, []string{"ID", "customer", "Discount"}, orders.Columns)
	assert.Equal(t, int64(100), orders.Rows[0][0], "identity starts at the seed")
}

func TestRun_OrderRoundtrip(t *testing.T) {
	result, err := Run(loadTestdata(t, "order_roundtrip"))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Rows, 5)
	assert.Equal(t, "Order", result.Rows[0].Model)
	assert.Equal(t, "/0", result.Rows[0].Path)
	assert.Equal(t, "Order.Items", result.Rows[1].Model)
	assert.Equal(t, "/0/Items/0", result.Rows[1].Path)
	assert.Equal(t, "/1/Items/0", result.Rows[4].Path)
}

func TestRun_Validation(t *testing.T) {
	result, err := Run(loadTestdata(t, "validation"))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Contains(t, result.Events, "RowInserted Items[0]")
}

func TestRun_FailedAssertionsAreReported(t *testing.T) {
	scenario, err := LoadScenario(writeScenario(t, `
name: failing
description: Every assertion is wrong
schema: shop.cue
data:
  Order:
    - Customer: ada
      Items:
        - {ItemID: 1, Quantity: 0, Price: 2}
steps:
  - insert: Order
    identity: true
assertions:
  - type: row_count
    table: orders
    count: 3
  - type: value
    row: Order/0
    column: Customer
    expect: bob
  - type: valid
    row: Order/0/Items/0
    valid: true
  - type: event_count
    event: RowInserted
    count: 7
  - type: step_order
    steps: [fill]
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 5)
	assert.Contains(t, result.Errors[0], "3 rows in orders")
	assert.Contains(t, result.Errors[1], "Order/0.Customer = bob")
	assert.Contains(t, result.Errors[2], "quantity must be positive")
	assert.Contains(t, result.Errors[3], "2 occurrences")
	assert.Contains(t, result.Errors[4], `step "fill" not found`)
}

func TestRun_DeleteCascades(t *testing.T) {
	scenario, err := LoadScenario(writeScenario(t, `
name: delete
description: Deleting orders removes their items through the foreign key
schema: shop.cue
data:
  Order:
    - Customer: ada
      Items:
        - {ItemID: 1, Quantity: 1, Price: 2}
        - {ItemID: 2, Quantity: 1, Price: 3}
steps:
  - insert: Order
    identity: true
  - insert: Order.Items
  - delete: Order
assertions:
  - type: row_count
    table: orders
    count: 0
  - type: row_count
    table: order_items
    count: 0
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.EqualValues(t, 1, result.Trace[2].Rows)
}

func TestRun_UpsertAndSkipExisting(t *testing.T) {
	scenario, err := LoadScenario(writeScenario(t, `
name: keys
description: Key modes decide what happens to rows already in the table
schema: shop.cue
data:
  Order:
    - Customer: ada
      Items:
        - {ItemID: 1, Quantity: 1, Price: 2}
steps:
  - insert: Order
    identity: true
  - insert: Order.Items
  - add:
      at: Order/0/Items
      values: {ItemID: 2, Quantity: 4, Price: 1}
  - insert: Order.Items
    keys: skip_existing
  - set: {row: Order/0/Items/0, column: Quantity, value: 9}
  - insert: Order.Items
    keys: upsert
assertions:
  - type: row_count
    table: order_items
    count: 2
  - type: final_state
    table: order_items
    where: {ItemID: 1}
    expect: {Quantity: 9}
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.EqualValues(t, 1, result.Trace[3].Rows, "only the new item is inserted")
	assert.Equal(t, "9", result.Trace[4].Value)
}

func TestRun_WithFlags(t *testing.T) {
	flags := config.Default()
	flags[config.FoldSimpleQueries] = false

	result, err := Run(loadTestdata(t, "order_roundtrip"), WithFlags(flags))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_StepErrors(t *testing.T) {
	tests := []struct {
		name string
		step string
		want string
	}{
		{"unknown model", "insert: Customer", `unknown model "Customer"`},
		{"bad row reference", "remove: Order", "has no row path"},
		{"row out of range", "remove: Order/5", "out of range"},
		{"unknown column", "set: {row: Order/0, column: Nope, value: 1}", `no column "Nope"`},
		{"computed column", "set: {row: Order/0, column: Total, value: 1}", "steps[0] set"},
		{"bad add target", "add: {at: Order/0/Lines, values: {}}", `no child model "Lines"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scenario, err := LoadScenario(writeScenario(t, `
name: step_error
description: A failing step aborts the run
schema: shop.cue
data:
  Order:
    - Customer: ada
steps:
  - `+tt.step+`
assertions:
  - type: row_count
    table: orders
    count: 0
`))
			require.NoError(t, err)

			_, err = Run(scenario)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRun_InvalidData(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"unknown root", "Customer: [{Name: x}]", `"Customer" is not a root model`},
		{"unknown column", "Order: [{Name: x}]", `no column or child model "Name"`},
		{"bad value", "Order: [{Customer: ada, Discount: lots}]", "Order.Discount"},
		{"child rows not a list", "Order: [{Customer: ada, Items: 3}]", "child rows must be a list"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scenario, err := LoadScenario(writeScenario(t, `
name: bad_data
description: Initial rows must match the schema
schema: shop.cue
data:
  `+tt.data+`
steps:
  - fill: true
assertions:
  - type: row_count
    table: orders
    count: 0
`))
			require.NoError(t, err)

			_, err = Run(scenario)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "failed to load data")
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRun_InvalidSchema(t *testing.T) {
	dir := t.TempDir()
	scenario := &Scenario{
		Name:       "bad_schema",
		Schema:     filepath.Join(dir, "missing.cue"),
		Steps:      []Step{{Fill: true}},
		Assertions: []Assertion{{Type: AssertRowCount, Table: "orders"}},
	}
	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load schema")
}
