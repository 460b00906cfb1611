// Package harness runs scripted scenarios against a schema.
//
// A scenario loads a CUE schema, creates its tables in a fresh database,
// puts initial rows into memory and moves them through the store step by
// step. Assertions then check the final tables, the in-memory rows and the
// model events raised along the way.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: order_roundtrip
//	description: "What this scenario validates"
//	schema: shop.cue
//	data:
//	  Order:
//	    - Customer: ada
//	      Items:
//	        - {ItemID: 10, Quantity: 2, Price: 1.5}
//	steps:
//	  - insert: Order
//	    identity: true
//	  - insert: Order.Items
//	  - set: {row: Order/0/Items/0, column: Quantity, value: 3}
//	  - update: Order.Items
//	  - fill: true
//	assertions:
//	  - type: row_count
//	    table: order_items
//	    count: 1
//	  - type: final_state
//	    table: orders
//	    where: {customer: ada}
//	    expect: {ID: 100}
//	  - type: value
//	    row: Order/0
//	    column: Total
//	    expect: 4.5
//
// Models are named by dotted path ("Order.Items"). Rows are referenced by
// root model name followed by a row path ("Order/0/Items/1").
//
// # Step Types
//
//   - insert: Copies a model's rows into its table, optionally capturing identities
//   - update: Writes non-key columns to the table rows with the same key
//   - delete: Removes the table rows whose key matches a model row
//   - set: Writes one value in memory
//   - add: Appends a row in memory
//   - remove: Removes a row and its subtree from memory
//   - fill: Rebuilds the schema and reloads every model from the database
//
// # Assertion Types
//
//   - row_count: Verifies the number of rows in a table
//   - final_state: Queries a table and verifies the values of one row
//   - value: Verifies the formatted value of an in-memory column
//   - valid: Verifies the validity or a validation message of a row
//   - event_count: Verifies how often a model event fired
//   - step_order: Verifies steps ran in the given order
//
// # Deterministic Testing
//
// Temp object names come from a testutil.NameSequence and each run uses a
// private in-memory SQLite database, so the same scenario produces the
// same trace and state every time. RunWithGolden compares that snapshot
// against testdata/golden.
package harness
