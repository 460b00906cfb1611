package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rdo/internal/testutil"
)

// writeScenario writes a scenario next to a shop schema and returns its path.
func writeScenario(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	testutil.WriteShopSchema(t, dir)
	return testutil.WriteFile(t, dir, "scenario.yaml", body)
}

const minimalScenario = `
name: minimal
description: "Insert one order"
schema: shop.cue
data:
  Order:
    - Customer: ada
steps:
  - insert: Order
    identity: true
assertions:
  - type: row_count
    table: orders
    count: 1
`

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, minimalScenario)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "minimal", scenario.Name)
	assert.Equal(t, "Insert one order", scenario.Description)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "shop.cue"), scenario.Schema, "schema resolves next to the scenario")
	require.Len(t, scenario.Data["Order"], 1)
	assert.Equal(t, "ada", scenario.Data["Order"][0]["Customer"])
	require.Len(t, scenario.Steps, 1)
	assert.Equal(t, StepInsert, scenario.Steps[0].Action())
	assert.True(t, scenario.Steps[0].Identity)
	require.Len(t, scenario.Assertions, 1)
	assert.Equal(t, 1, scenario.Assertions[0].Count)
}

func TestLoadScenario_NestedChildRows(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "order_roundtrip.yaml"))
	require.NoError(t, err)

	require.Len(t, scenario.Data["Order"], 2)
	items, ok := scenario.Data["Order"][0]["Items"].([]interface{})
	require.True(t, ok, "children decode as a list")
	require.Len(t, items, 2)
	child, ok := items[0].(Row)
	require.True(t, ok, "nested rows take the Row type, got %T", items[0])
	assert.Equal(t, 10, child["ItemID"])

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Len(t, result.Rows, 5)
}

func TestLoadScenario_TestdataFiles(t *testing.T) {
	for _, name := range []string{"order_roundtrip", "validation"} {
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
			require.NoError(t, err)
			assert.Equal(t, name, scenario.Name)
		})
	}
}

func TestLoadScenarioWithBasePath(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteShopSchema(t, dir)
	path := testutil.WriteFile(t, t.TempDir(), "s.yaml", minimalScenario)

	scenario, err := LoadScenarioWithBasePath(path, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "shop.cue"), scenario.Schema)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "unknown field",
			body: minimalScenario + "assertion: []\n",
			want: "failed to parse YAML",
		},
		{
			name: "malformed yaml",
			body: "name: [unclosed",
			want: "failed to parse YAML",
		},
		{
			name: "missing name",
			body: `
description: d
schema: shop.cue
steps: [{fill: true}]
assertions: [{type: row_count, table: orders}]
`,
			want: "name is required",
		},
		{
			name: "missing description",
			body: `
name: n
schema: shop.cue
steps: [{fill: true}]
assertions: [{type: row_count, table: orders}]
`,
			want: "description is required",
		},
		{
			name: "missing schema",
			body: `
name: n
description: d
steps: [{fill: true}]
assertions: [{type: row_count, table: orders}]
`,
			want: "schema is required",
		},
		{
			name: "schema not found",
			body: `
name: n
description: d
schema: other.cue
steps: [{fill: true}]
assertions: [{type: row_count, table: orders}]
`,
			want: "schema file not found",
		},
		{
			name: "no steps",
			body: `
name: n
description: d
schema: shop.cue
steps: []
assertions: [{type: row_count, table: orders}]
`,
			want: "steps list is required",
		},
		{
			name: "no assertions",
			body: `
name: n
description: d
schema: shop.cue
steps: [{fill: true}]
`,
			want: "assertions list is required",
		},
		{
			name: "step without action",
			body: `
name: n
description: d
schema: shop.cue
steps: [{identity: true}]
assertions: [{type: row_count, table: orders}]
`,
			want: "steps[0]: an action is required",
		},
		{
			name: "two actions",
			body: `
name: n
description: d
schema: shop.cue
steps: [{insert: Order, update: Order}]
assertions: [{type: row_count, table: orders}]
`,
			want: "exactly one action",
		},
		{
			name: "keys outside insert",
			body: `
name: n
description: d
schema: shop.cue
steps: [{update: Order, keys: upsert}]
assertions: [{type: row_count, table: orders}]
`,
			want: "apply to insert only",
		},
		{
			name: "unknown key mode",
			body: `
name: n
description: d
schema: shop.cue
steps: [{insert: Order, keys: merge}]
assertions: [{type: row_count, table: orders}]
`,
			want: `unknown key mode "merge"`,
		},
		{
			name: "set without column",
			body: `
name: n
description: d
schema: shop.cue
steps: [{set: {row: Order/0}}]
assertions: [{type: row_count, table: orders}]
`,
			want: "steps[0].set: row and column are required",
		},
		{
			name: "unknown assertion",
			body: `
name: n
description: d
schema: shop.cue
steps: [{fill: true}]
assertions: [{type: trace_contains}]
`,
			want: `unknown type "trace_contains"`,
		},
		{
			name: "final_state without expect",
			body: `
name: n
description: d
schema: shop.cue
steps: [{fill: true}]
assertions: [{type: final_state, table: orders}]
`,
			want: "expect map is required",
		},
		{
			name: "valid without expectation",
			body: `
name: n
description: d
schema: shop.cue
steps: [{fill: true}]
assertions: [{type: valid, row: Order/0}]
`,
			want: "valid or message is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestStep_Action(t *testing.T) {
	tests := []struct {
		step Step
		want string
	}{
		{Step{Insert: "Order"}, StepInsert},
		{Step{Update: "Order"}, StepUpdate},
		{Step{Delete: "Order"}, StepDelete},
		{Step{Set: &SetStep{Row: "Order/0", Column: "Customer"}}, StepSet},
		{Step{Add: &AddStep{At: "Order"}}, StepAdd},
		{Step{Remove: "Order/0"}, StepRemove},
		{Step{Fill: true}, StepFill},
		{Step{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.step.Action())
		})
	}
}
