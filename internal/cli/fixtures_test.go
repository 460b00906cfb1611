package cli

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"

	"github.com/roach88/rdo/internal/testutil"
)

const passingScenario = `
name: one_order
description: "Insert one order with an item"
schema: shop.cue
data:
  Order:
    - Customer: ada
      Items:
        - {ItemID: 1, Quantity: 2, Price: 3}
steps:
  - insert: Order
    identity: true
  - insert: Order.Items
  - fill: true
assertions:
  - type: row_count
    table: orders
    count: 1
  - type: value
    row: Order/0
    column: Total
    expect: 6
`

const failingScenario = `
name: wrong_count
description: "Expects more orders than it inserts"
schema: shop.cue
data:
  Order:
    - Customer: bob
steps:
  - insert: Order
    identity: true
assertions:
  - type: row_count
    table: orders
    count: 5
`

// scenarioDir writes the shop schema and the given scenario files into a
// temp dir.
func scenarioDir(t *testing.T, scenarios map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	testutil.WriteShopSchema(t, dir)
	for name, content := range scenarios {
		testutil.WriteFile(t, dir, name, content)
	}
	return dir
}

// execute runs cmd with args and returns its stdout.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}
