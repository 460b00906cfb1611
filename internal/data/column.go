package data

import (
	"database/sql"
	"slices"

	"github.com/roach88/rdo/internal/queryir"
)

// ColumnKind classifies a column.
type ColumnKind int

const (
	// KindUser is an ordinary schema column.
	KindUser ColumnKind = iota

	// KindSystem is bookkeeping state, skipped by name-based mapping.
	KindSystem

	// KindComputed is a column defined by an expression.
	KindComputed
)

func (k ColumnKind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindSystem:
		return "system"
	case KindComputed:
		return "computed"
	}
	return "unknown"
}

// Strategy is the value-storage strategy of a column, fixed at freeze.
type Strategy int

const (
	// StrategyUnassigned is the strategy of a column in design mode.
	StrategyUnassigned Strategy = iota

	// StrategyStored keeps one slot per row.
	StrategyStored

	// StrategyDerived mirrors the mapped parent column.
	StrategyDerived

	// StrategyComputed caches the value of the column's expression.
	StrategyComputed
)

func (s Strategy) String() string {
	switch s {
	case StrategyStored:
		return "stored"
	case StrategyDerived:
		return "child-derived"
	case StrategyComputed:
		return "computed"
	}
	return "unassigned"
}

// Identity declares a backend-generated key.
type Identity struct {
	Seed      int64
	Increment int64
}

// AnyColumn is the untyped view of a Column.
type AnyColumn interface {
	AnyExpr
	queryir.Column

	Name() string
	Ordinal() int
	Model() *Model
	Kind() ColumnKind
	Strategy() Strategy
	SQLType() string
	IsNullable() bool
	IsPrimaryKey() bool
	Identity() *Identity
	IsExpression() bool
	IsReadOnly(r *DataRow) bool
	IsNull(r *DataRow) bool

	// ValueOf returns the driver value for r, or nil for null.
	ValueOf(r *DataRow) any

	// SetAny converts a driver value and writes it to r.
	SetAny(r *DataRow, v any) error

	// DefaultValue returns the declared default as a driver value.
	DefaultValue() (any, bool)

	// ParentColumn returns the mapped parent column of a child-derived
	// column.
	ParentColumn() AnyColumn

	// Format renders the value for r, or "NULL".
	Format(r *DataRow) string

	ScalarSources() []*Model
	AggregateSources() []*Model
	ShouldRecompute(changed ...*Model) bool

	base() *columnBase
	expression() AnyExpr
	bindParent(p AnyColumn) bool
	insertRow(ordinal int)
	removeRow(ordinal int)
	compute(r *DataRow) bool
}

type columnBase struct {
	model    *Model
	name     string
	dbName   string
	ordinal  int
	kind     ColumnKind
	notNull  bool
	pk       bool
	identity *Identity
	strategy Strategy
	comp     *computation
}

func (c *columnBase) base() *columnBase      { return c }
func (c *columnBase) Name() string           { return c.name }
func (c *columnBase) Ordinal() int           { return c.ordinal }
func (c *columnBase) Model() *Model          { return c.model }
func (c *columnBase) Kind() ColumnKind       { return c.kind }
func (c *columnBase) Strategy() Strategy     { return c.strategy }
func (c *columnBase) IsNullable() bool       { return !c.notNull && !c.pk }
func (c *columnBase) IsPrimaryKey() bool     { return c.pk }
func (c *columnBase) Identity() *Identity    { return c.identity }
func (c *columnBase) DbColumnName() string   { return c.dbName }
func (c *columnBase) DbOwner() queryir.Owner { return c.model }

// ScalarSources returns the models the column's computation reads directly,
// including those read through other computed columns.
func (c *columnBase) ScalarSources() []*Model {
	if c.comp == nil {
		return nil
	}
	return c.comp.deps.scalar.sorted()
}

// AggregateSources returns the models the column's computation aggregates
// over, including intermediate models on the aggregation path.
func (c *columnBase) AggregateSources() []*Model {
	if c.comp == nil {
		return nil
	}
	return c.comp.deps.aggregate.sorted()
}

// ShouldRecompute reports whether a change to rows of the changed models
// requires the column to be re-evaluated on an ancestor row.
func (c *columnBase) ShouldRecompute(changed ...*Model) bool {
	if c.comp == nil {
		return false
	}
	return c.comp.deps.shouldRecompute(newModelSet(changed...))
}

// resolve returns the row in r's ancestor chain that owns values of c.
func (c *columnBase) resolve(r *DataRow) *DataRow {
	for x := r; x != nil; x = x.parent {
		if x.model == c.model {
			return x
		}
	}
	return nil
}

func (c *columnBase) checkWritable(r *DataRow) error {
	if r.model != c.model {
		return &SchemaError{Code: ErrCodeOwnershipMismatch, Message: "row belongs to model " + r.model.name,
			Model: c.model.name, Column: c.name}
	}
	if r.detached {
		return &SchemaError{Code: ErrCodeRowDetached, Message: "row has been removed", Model: c.model.name, Column: c.name}
	}
	if c.strategy != StrategyStored {
		return &SchemaError{Code: ErrCodeReadOnly, Message: c.strategy.String() + " column rejects writes",
			Model: c.model.name, Column: c.name}
	}
	return nil
}

// Column is a typed column of a Model.
type Column[T any] struct {
	columnBase
	dt          DataType[T]
	computation Expr[T]
	def         sql.Null[T]
	parent      *Column[T]
	values      []sql.Null[T]
}

// NewColumn registers a column on m. Registration is only legal in design
// mode; misuse is reported by Freeze.
func NewColumn[T any](m *Model, name string, dt DataType[T]) *Column[T] {
	c := &Column[T]{dt: dt}
	m.register(c, name)
	return c
}

// NewIdentity registers a backend-generated int64 key column on m.
//
// The SQLite backend numbers identities through AUTOINCREMENT, which always
// steps by one. An increment other than 1 can be declared here but is
// rejected when an insert captures the identity.
func NewIdentity(m *Model, name string, seed, increment int64) *Column[int64] {
	c := NewColumn(m, name, Int64)
	c.identity = &Identity{Seed: seed, Increment: increment}
	c.notNull = true
	return c
}

// Type returns the column's data type.
func (c *Column[T]) Type() DataType[T] { return c.dt }

// SQLType returns the column type used in generated DDL.
func (c *Column[T]) SQLType() string { return c.dt.SQLType() }

// PrimaryKey appends the column to the model's primary key.
func (c *Column[T]) PrimaryKey() *Column[T] {
	if c.model.checkDesign("PrimaryKey") {
		c.pk = true
		c.model.primaryKey = append(c.model.primaryKey, c)
	}
	return c
}

// NotNull marks the column as not nullable in generated DDL.
func (c *Column[T]) NotNull() *Column[T] {
	if c.model.checkDesign("NotNull") {
		c.notNull = true
	}
	return c
}

// Default declares the value written into new rows.
func (c *Column[T]) Default(v T) *Column[T] {
	if c.model.checkDesign("Default") {
		c.def = Some(v)
	}
	return c
}

// DbName overrides the column name used in SQL.
func (c *Column[T]) DbName(name string) *Column[T] {
	if c.model.checkDesign("DbName") {
		c.dbName = name
	}
	return c
}

// System marks the column as bookkeeping state.
func (c *Column[T]) System() *Column[T] {
	if c.model.checkDesign("System") {
		c.kind = KindSystem
	}
	return c
}

// ComputedAs defines the column by an expression. The column becomes
// read-only and is kept current by change propagation.
func (c *Column[T]) ComputedAs(e Expr[T]) *Column[T] {
	if c.model.checkDesign("ComputedAs") {
		c.computation = e
		c.kind = KindComputed
	}
	return c
}

// IsExpression reports whether the column is defined by an expression.
func (c *Column[T]) IsExpression() bool { return c.computation != nil }

func (c *Column[T]) expression() AnyExpr {
	if c.computation == nil {
		return nil
	}
	return c.computation
}

// ParentColumn returns the mapped parent column of a child-derived column.
func (c *Column[T]) ParentColumn() AnyColumn {
	if c.parent == nil {
		return nil
	}
	return c.parent
}

func (c *Column[T]) bindParent(p AnyColumn) bool {
	pc, ok := p.(*Column[T])
	if ok {
		c.parent = pc
	}
	return ok
}

// DefaultValue returns the declared default as a driver value.
func (c *Column[T]) DefaultValue() (any, bool) {
	if !c.def.Valid {
		return nil, false
	}
	return c.dt.ToDriver(c.def.V), true
}

// Get returns the value of c for r. r may be a descendant of a row of c's
// model. Get panics with a *SchemaError when r is unrelated to c's model.
func (c *Column[T]) Get(r *DataRow) sql.Null[T] {
	owner := c.resolve(r)
	if owner == nil {
		panic(&SchemaError{Code: ErrCodeOwnershipMismatch, Message: "row of model " + r.model.name + " is not related",
			Model: c.model.name, Column: c.name})
	}
	switch c.strategy {
	case StrategyDerived:
		return c.parent.Get(owner.parent)
	case StrategyStored, StrategyComputed:
		if owner.detached {
			return None[T]()
		}
		return c.values[owner.ordinal]
	}
	panic(&SchemaError{Code: ErrCodeSchemaFrozen, Message: "model is still in design mode", Model: c.model.name, Column: c.name})
}

// Eval implements Expr.
func (c *Column[T]) Eval(r *DataRow) sql.Null[T] { return c.Get(r) }

// IsNull reports whether c is null for r.
func (c *Column[T]) IsNull(r *DataRow) bool { return !c.Get(r).Valid }

func (c *Column[T]) nullAt(r *DataRow) bool { return c.IsNull(r) }

// IsReadOnly reports whether a write to c for r would be rejected.
func (c *Column[T]) IsReadOnly(r *DataRow) bool {
	if c.strategy != StrategyStored || r.model != c.model || r.detached {
		return true
	}
	return c.keyLocked(r)
}

func (c *Column[T]) keyLocked(r *DataRow) bool {
	if !c.pk || c.model.keyUpdatable() {
		return false
	}
	return c.values[r.ordinal].Valid
}

// Set writes a non-null value.
func (c *Column[T]) Set(r *DataRow, v T) error {
	return c.SetValue(r, Some(v))
}

// SetNull writes null.
func (c *Column[T]) SetNull(r *DataRow) error {
	return c.SetValue(r, None[T]())
}

// SetValue writes v to r. Writing the current value stores it without a
// change notification.
func (c *Column[T]) SetValue(r *DataRow, v sql.Null[T]) error {
	if err := c.checkWritable(r); err != nil {
		return err
	}
	old := c.values[r.ordinal]
	equal := nullEqual(c.dt, old, v)
	if !equal && c.keyLocked(r) {
		return &SchemaError{Code: ErrCodeKeyLocked, Message: "primary key already assigned", Model: c.model.name, Column: c.name}
	}
	c.values[r.ordinal] = v
	if !equal {
		r.valueChanged(c)
	}
	return nil
}

// ValueOf returns the driver value of c for r, or nil for null.
func (c *Column[T]) ValueOf(r *DataRow) any {
	v := c.Get(r)
	if !v.Valid {
		return nil
	}
	return c.dt.ToDriver(v.V)
}

// SetAny converts a driver value and writes it.
func (c *Column[T]) SetAny(r *DataRow, v any) error {
	if v == nil {
		return c.SetNull(r)
	}
	if t, ok := v.(T); ok {
		return c.Set(r, t)
	}
	t, err := c.dt.FromDriver(v)
	if err != nil {
		return &SchemaError{Code: ErrCodeTypeMismatch, Message: "cannot store " + typeName(c.dt) + ": " + err.Error(),
			Model: c.model.name, Column: c.name}
	}
	return c.Set(r, t)
}

// Format renders the value of c for r.
func (c *Column[T]) Format(r *DataRow) string {
	v := c.Get(r)
	if !v.Valid {
		return "NULL"
	}
	return c.dt.Format(v.V)
}

// DbExpr implements AnyExpr.
func (c *Column[T]) DbExpr() queryir.Expr {
	return &queryir.ColumnRef{Column: c}
}

func (c *Column[T]) visit(s aggScope, fn func(exprRef)) {
	fn(s.ref(c))
}

func (c *Column[T]) insertRow(ordinal int) {
	switch c.strategy {
	case StrategyStored:
		c.values = slices.Insert(c.values, ordinal, c.def)
	case StrategyComputed:
		c.values = slices.Insert(c.values, ordinal, None[T]())
	}
}

func (c *Column[T]) removeRow(ordinal int) {
	if c.strategy == StrategyStored || c.strategy == StrategyComputed {
		c.values = slices.Delete(c.values, ordinal, ordinal+1)
	}
}

// compute re-evaluates the computation into the row's slot and reports
// whether the cached value changed.
func (c *Column[T]) compute(r *DataRow) bool {
	v := c.computation.Eval(r)
	old := c.values[r.ordinal]
	c.values[r.ordinal] = v
	return !nullEqual(c.dt, old, v)
}

// Len returns the number of value slots held by the column.
func (c *Column[T]) Len() int { return len(c.values) }
