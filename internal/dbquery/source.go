package dbquery

import (
	"github.com/roach88/rdo/internal/data"
	"github.com/roach88/rdo/internal/queryir"
)

// Source is a FROM clause item projecting the columns of a model.
type Source interface {
	// Model returns the model whose columns the source projects.
	Model() *data.Model

	fromItem() queryir.Source
}

// TableSource is a base or temp table holding rows of a model.
type TableSource struct {
	model *data.Model
	name  string
	temp  bool
	rowID *queryir.SysColumn
}

// Table returns a source for the base table name holding rows of m.
func Table(m *data.Model, name string) *TableSource {
	return &TableSource{model: m, name: name}
}

// TempTable returns a source for a temp table holding rows of m.
func TempTable(m *data.Model, name string) *TableSource {
	return &TableSource{model: m, name: name, temp: true}
}

// StageTable returns a source for a temp table of staged rows of m. Staged
// tables carry a sys_row_id column equal to the row ordinal plus one.
func StageTable(m *data.Model, name string) *TableSource {
	t := TempTable(m, name)
	t.rowID = &queryir.SysColumn{Owner: m, Name: queryir.RowIDColumn}
	return t
}

// Model returns the model of the rows.
func (t *TableSource) Model() *data.Model { return t.model }

// Name returns the table name.
func (t *TableSource) Name() string { return t.name }

// IsTemp reports whether the table is a temp table.
func (t *TableSource) IsTemp() bool { return t.temp }

// RowID returns the staged row id column, or nil for other tables.
func (t *TableSource) RowID() queryir.Column {
	if t.rowID == nil {
		return nil
	}
	return t.rowID
}

func (t *TableSource) fromItem() queryir.Source { return t.table() }

func (t *TableSource) table() *queryir.Table {
	return &queryir.Table{Owner: t.model, Name: t.name, Temp: t.temp}
}

// Query is a built statement. It can be executed directly or used as the
// source of another builder.
type Query struct {
	model  *data.Model
	stmt   queryir.Statement
	cols   []queryir.Mapping
	parent *ParentRef

	rowID       *queryir.SysColumn
	parentRowID *queryir.SysColumn
}

// Model returns the target model of the query.
func (q *Query) Model() *data.Model { return q.model }

// Statement returns the statement tree: a *queryir.Select or a
// *queryir.Union.
func (q *Query) Statement() queryir.Statement { return q.stmt }

// Columns returns the output columns in select-list order. Targets are
// data.AnyColumn values of the model, or *queryir.SysColumn for the
// surrogate columns.
func (q *Query) Columns() []queryir.Column {
	out := make([]queryir.Column, len(q.cols))
	for i, m := range q.cols {
		out[i] = m.Target
	}
	return out
}

// Parent returns the parent the query was correlated with, or nil.
func (q *Query) Parent() *ParentRef { return q.parent }

// RowID returns the surrogate row id output column of a sequential-key or
// persisted query, or nil.
func (q *Query) RowID() queryir.Column {
	if q.rowID == nil {
		return nil
	}
	return q.rowID
}

// ParentRowID returns the output column holding the surrogate row id of the
// parent row, or nil when the parent is correlated directly.
func (q *Query) ParentRowID() queryir.Column {
	if q.parentRowID == nil {
		return nil
	}
	return q.parentRowID
}

// Select returns the statement as a Select, wrapping a union in a derived
// table when needed.
func (q *Query) Select() *queryir.Select {
	if s, ok := q.stmt.(*queryir.Select); ok {
		return s
	}
	s := queryir.NewSelect(q.model)
	s.From = q.stmt.(queryir.Source)
	for _, m := range q.cols {
		s.Columns = append(s.Columns, queryir.Mapping{Source: queryir.Ref(m.Target), Target: m.Target})
	}
	return s
}

func (q *Query) fromItem() queryir.Source {
	return q.stmt.(queryir.Source)
}

// Union concatenates queries of one model. Every query must be a plain
// SELECT; with all set, duplicate rows are kept.
func Union(all bool, queries ...*Query) (*Query, error) {
	if len(queries) < 2 {
		return nil, data.NewSchemaError(data.ErrCodeInvalidOption, "union needs at least two queries, got %d", len(queries))
	}
	m := queries[0].model
	u := &queryir.Union{Owner: m, All: all}
	for _, q := range queries {
		if q.model != m {
			return nil, data.NewSchemaError(data.ErrCodeOwnershipMismatch, "union of %s and %s", m.Name(), q.model.Name())
		}
		s, ok := q.stmt.(*queryir.Select)
		if !ok {
			return nil, data.NewSchemaError(data.ErrCodeInvalidOption, "nested union of %s", m.Name())
		}
		u.Queries = append(u.Queries, s)
	}
	return &Query{model: m, stmt: u, cols: queries[0].cols}, nil
}
