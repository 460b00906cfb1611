// Package queryir defines the statement tree produced by the query builder
// and consumed by SQL backends.
//
// The tree is the boundary artifact between the in-memory data layer and the
// database session: builders in package dbquery assemble it from model
// metadata and column mappings, and package querysql lowers it into
// parameterized SQL text.
//
// SEALED INTERFACES:
//
// Expr, Source and Statement are sealed with marker methods. Only types in
// this package implement them, which keeps the type switches in backends
// exhaustive:
//
//	switch e := expr.(type) {
//	case *ColumnRef:
//	    // alias.column
//	case *Param:
//	    // ? placeholder
//	...
//	}
//
// OWNERS:
//
// Every column reference names its Owner. An owner is whatever a FROM source
// projects: a model bound to a table, a temp table, or a nested SELECT. The
// backend assigns one alias per owner appearing in a FROM clause, so the
// same owner may not appear twice in one statement.
//
// Values are never inlined. Literals travel as Param nodes and are emitted as
// placeholders in textual order.
package queryir
