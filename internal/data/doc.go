// Package data implements the in-memory hierarchical row store.
//
// A schema is declared once with an explicit builder:
//
//	order := data.NewModel("Order")
//	id := data.NewIdentity(order, "ID", 1, 1).PrimaryKey()
//	items := order.NewChild("Items")
//	orderID := data.NewColumn(items, "OrderID", data.Int64)
//	data.Relate(orderID, id)
//
// The schema leaves design mode when a DataSet is created on its root model
// (or when a model is bound to a database table). Freeze assigns every column
// exactly one storage strategy:
//
//   - stored: a per-model slice indexed by row ordinal
//   - child-derived: the value mirrors the mapped parent column (read-only)
//   - computed: a cached slot re-evaluated from an expression (read-only)
//
// Writes go through Column.Set, which recomputes dependent computations,
// invalidates validation, emits events and bubbles the change toward the root
// for as long as some ancestor aggregates over the touched models.
//
// The package is single-threaded. Callers sharing a DataSet across goroutines
// must serialize access themselves.
package data
