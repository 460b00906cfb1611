package dbquery

import (
	"github.com/roach88/rdo/internal/data"
	"github.com/roach88/rdo/internal/queryir"
)

// ParentRef is the parent side of a hierarchical query.
//
// In direct mode the child joins the parent's own FROM and WHERE and
// correlates on the parent's select-list expressions. In surrogate mode the
// child joins a temp table holding the parent rows (or their keys) and
// projects the parent's surrogate row id as sys_parent_row_id.
type ParentRef struct {
	model     *data.Model
	from      queryir.Source
	where     queryir.Expr
	keys      map[queryir.Column]queryir.Expr
	rowID     queryir.Expr
	order     []queryir.Sort
	surrogate bool
}

// Model returns the parent model.
func (p *ParentRef) Model() *data.Model { return p.model }

// IsSurrogate reports whether children correlate through a surrogate row id.
func (p *ParentRef) IsSurrogate() bool { return p.surrogate }

func (p *ParentRef) key(c queryir.Column) queryir.Expr {
	return p.keys[c]
}

// AsParent returns a direct-mode reference to q. The query must be a simple
// SELECT of a model with a primary key.
func (q *Query) AsParent() (*ParentRef, error) {
	pk := q.model.PrimaryKey()
	if len(pk) == 0 {
		return nil, data.NewSchemaError(data.ErrCodeNoPrimaryKey, "%s has no primary key to correlate children with", q.model.Name())
	}
	s, ok := q.stmt.(*queryir.Select)
	if !ok || !s.IsSimple() {
		return nil, data.NewSchemaError(data.ErrCodeInvalidOption, "query of %s cannot be joined by its children; use a sequential key", q.model.Name())
	}
	ref := &ParentRef{
		model: q.model,
		from:  s.From,
		where: s.Where,
		keys:  make(map[queryir.Column]queryir.Expr, len(q.cols)),
	}
	for _, m := range q.cols {
		if _, null := m.Source.(*queryir.Null); !null {
			ref.keys[m.Target] = m.Source
		}
	}
	ref.order = append(ref.order, s.OrderBy...)
	for _, c := range pk {
		src := ref.keys[c]
		if src == nil {
			return nil, data.NewSchemaError(data.ErrCodeUnmappedParentKey, "primary key column %s of %s is not mapped", c.Name(), q.model.Name())
		}
		ref.order = append(ref.order, queryir.Sort{Expr: src})
	}
	return ref, nil
}

// SequentialKey is a temp table numbering the primary keys of a query
// result in result order: (sys_row_id, pk...).
type SequentialKey struct {
	model   *data.Model
	owner   *queryir.NamedOwner
	table   *queryir.Table
	rowID   *queryir.SysColumn
	keys    []data.AnyColumn
	columns []*queryir.SysColumn
}

// NewSequentialKey declares the sequential-key table name for target.
func NewSequentialKey(target *data.Model, name string) (*SequentialKey, error) {
	pk := target.PrimaryKey()
	if len(pk) == 0 {
		return nil, data.NewSchemaError(data.ErrCodeNoPrimaryKey, "sequential key of %s needs a primary key", target.Name())
	}
	owner := &queryir.NamedOwner{Name: name}
	seq := &SequentialKey{
		model: target,
		owner: owner,
		table: &queryir.Table{Owner: owner, Name: name, Temp: true},
		rowID: &queryir.SysColumn{Owner: owner, Name: queryir.RowIDColumn},
		keys:  pk,
	}
	for _, c := range pk {
		seq.columns = append(seq.columns, &queryir.SysColumn{Owner: owner, Name: c.DbColumnName()})
	}
	return seq, nil
}

// Name returns the temp table name.
func (seq *SequentialKey) Name() string { return seq.table.Name }

// Definition returns the CREATE TEMP TABLE statement.
func (seq *SequentialKey) Definition() *queryir.CreateTable {
	def := &queryir.CreateTable{
		Name: seq.table.Name,
		Temp: true,
		Columns: []queryir.ColumnDef{
			{Name: queryir.RowIDColumn, Type: "INTEGER", AutoIncrement: true},
		},
	}
	for _, c := range seq.keys {
		def.Columns = append(def.Columns, queryir.ColumnDef{Name: c.DbColumnName(), Type: c.SQLType(), NotNull: true})
	}
	return def
}

// ParentRef returns a surrogate-mode reference for children of the model.
func (seq *SequentialKey) ParentRef() *ParentRef {
	ref := &ParentRef{
		model:     seq.model,
		from:      seq.table,
		keys:      make(map[queryir.Column]queryir.Expr, len(seq.keys)),
		rowID:     queryir.Ref(seq.rowID),
		order:     []queryir.Sort{{Expr: queryir.Ref(seq.rowID)}},
		surrogate: true,
	}
	for i, c := range seq.keys {
		ref.keys[c] = queryir.Ref(seq.columns[i])
	}
	return ref
}

// BuildSequentialKeyFill returns the INSERT numbering the primary keys of q
// in q's order.
func BuildSequentialKeyFill(seq *SequentialKey, q *Query) (*queryir.Insert, error) {
	if q.model != seq.model {
		return nil, data.NewSchemaError(data.ErrCodeOwnershipMismatch, "sequential key of %s filled from a query of %s", seq.model.Name(), q.model.Name())
	}
	base := *q.Select()
	base.Columns = nil
	ins := &queryir.Insert{Table: seq.table}
	for i, c := range seq.keys {
		src := sourceOf(q.Select().Columns, c)
		if src == nil {
			err := data.NewSchemaError(data.ErrCodeInvalidOption, "primary key column is not mapped")
			err.Model, err.Column = q.model.Name(), c.Name()
			return nil, err
		}
		base.Columns = append(base.Columns, queryir.Mapping{Source: src, Target: seq.columns[i]})
		ins.Columns = append(ins.Columns, seq.columns[i])
	}
	ins.Select = &base
	return ins, nil
}

// Persisted is a query result written to a temp table with a synthetic
// sys_row_id identity, numbered in result order.
type Persisted struct {
	model   *data.Model
	table   *queryir.Table
	rowID   *queryir.SysColumn
	query   *Query
	targets []queryir.Column
}

// BuildPersist returns the persisted form of the query into the temp table
// name. Children of a model without a primary key correlate through it.
func (b *Builder) BuildPersist(name string) (*Persisted, error) {
	if b.seq != nil {
		return nil, data.NewSchemaError(data.ErrCodeInvalidOption, "query of %s already carries a sequential key", b.target.Name())
	}
	q, err := b.BuildQueryStatement()
	if err != nil {
		return nil, err
	}
	return &Persisted{
		model:   b.target,
		table:   &queryir.Table{Owner: b.target, Name: name, Temp: true},
		rowID:   &queryir.SysColumn{Owner: b.target, Name: queryir.RowIDColumn},
		query:   q,
		targets: q.Columns(),
	}, nil
}

// Name returns the temp table name.
func (p *Persisted) Name() string { return p.table.Name }

// Statements returns the CREATE TEMP TABLE and INSERT ... SELECT statements
// that persist the query.
func (p *Persisted) Statements() (*queryir.CreateTable, *queryir.Insert) {
	def := &queryir.CreateTable{
		Name: p.table.Name,
		Temp: true,
		Columns: []queryir.ColumnDef{
			{Name: queryir.RowIDColumn, Type: "INTEGER", AutoIncrement: true},
		},
	}
	for _, c := range p.targets {
		typ := "INTEGER"
		if dc, ok := c.(data.AnyColumn); ok {
			typ = dc.SQLType()
		}
		def.Columns = append(def.Columns, queryir.ColumnDef{Name: c.DbColumnName(), Type: typ})
	}
	return def, &queryir.Insert{Table: p.table, Columns: p.targets, Select: p.query.Select()}
}

// ReadQuery returns the persisted rows in insert order, with sys_row_id as
// the row id column.
func (p *Persisted) ReadQuery() *Query {
	s := queryir.NewSelect(p.model)
	s.From = p.table
	for _, c := range p.targets {
		s.Columns = append(s.Columns, queryir.Mapping{Source: queryir.Ref(c), Target: c})
	}
	s.Columns = append(s.Columns, queryir.Mapping{Source: queryir.Ref(p.rowID), Target: p.rowID})
	s.OrderBy = []queryir.Sort{{Expr: queryir.Ref(p.rowID)}}
	q := &Query{model: p.model, stmt: s, cols: s.Columns, rowID: p.rowID, parent: p.query.parent}
	q.parentRowID = p.query.parentRowID
	return q
}

// ParentRef returns a surrogate-mode reference for children of the model.
func (p *Persisted) ParentRef() *ParentRef {
	ref := &ParentRef{
		model:     p.model,
		from:      p.table,
		keys:      make(map[queryir.Column]queryir.Expr, len(p.targets)),
		rowID:     queryir.Ref(p.rowID),
		order:     []queryir.Sort{{Expr: queryir.Ref(p.rowID)}},
		surrogate: true,
	}
	for _, c := range p.targets {
		if _, sys := c.(*queryir.SysColumn); !sys {
			ref.keys[c] = queryir.Ref(c)
		}
	}
	return ref
}
