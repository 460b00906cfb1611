// Package store runs rdo statements against SQLite.
//
// A Session owns one database connection. Every statement of a session runs
// on that connection, so temp tables created by one call are visible to the
// next. Result sets are drained before the next statement starts.
//
// # Operations
//
//   - ExecuteReader / ExecuteNonQuery: compile a queryir statement and run it
//   - Stage: copy the rows of a model into a temp table keyed by
//     sys_row_id = row ordinal + 1
//   - Insert: batch INSERT ... SELECT from staged rows, optionally writing
//     the generated identity values back into the rows
//   - InsertRow: single-row INSERT ... VALUES with LastInsertId
//   - Update / Delete: by primary key from staged rows
//   - Fill: materialize a root query and its child queries into a DataSet
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Errors raised by the database are returned unmodified.
package store
