// Package dbquery builds queryir statement trees from model metadata.
//
// A Builder targets one data.Model. Sources are declared with From and the
// join methods, the select list with Select or SelectAll, and the usual
// WHERE / GROUP BY / ORDER BY / OFFSET / FETCH clauses with their methods.
// BuildQueryStatement then:
//
//  1. normalizes the select list so every stored or derived column of the
//     target is projected, unmapped columns as NULL, plus the surrogate
//     correlation columns the shape needs;
//  2. folds a FROM that is a single simple query, or an identity projection
//     of a UNION, into the outer statement;
//  3. joins the parent (direct, sequential-key or persisted) and the
//     sequential-key table;
//  4. orders surrogate-keyed output by the surrogate, parented output by the
//     parent identity, and everything else by the caller's ORDER BY.
//
// Hierarchical queries correlate child builders with a ParentRef, taken
// from a built parent Query (direct mode), a SequentialKey or a Persisted
// parent (surrogate mode).
//
// Insert, update and delete statements for staged rows are built by
// BuildInsert, BuildInsertRow, BuildUpdate and BuildDelete.
package dbquery
