package dbquery

import (
	"github.com/roach88/rdo/internal/data"
	"github.com/roach88/rdo/internal/queryir"
)

// Option configures a Builder.
type Option func(*Builder)

// WithFolding enables or disables simple-query folding. Folding is on by
// default.
func WithFolding(on bool) Option {
	return func(b *Builder) { b.fold = on }
}

// Builder assembles a query for one target model.
//
// Builder methods record the first misuse and return the builder, so calls
// chain; the error is reported by BuildQueryStatement.
type Builder struct {
	target *data.Model
	fold   bool

	from    queryir.Source
	owners  map[queryir.Owner]bool
	columns []Mapping
	where   queryir.Expr
	groupBy []queryir.Expr
	having  queryir.Expr
	orderBy []queryir.Sort
	offset  int
	fetch   int

	// first declared FROM item, used for folding
	base Source
	// set once a join is added
	joined bool

	parent *ParentRef
	seq    *SequentialKey

	err error
}

// NewBuilder starts a query producing rows of target.
func NewBuilder(target *data.Model, opts ...Option) *Builder {
	b := &Builder{
		target: target,
		fold:   true,
		owners: make(map[queryir.Owner]bool),
		offset: -1,
		fetch:  -1,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Target returns the model the query produces.
func (b *Builder) Target() *data.Model { return b.target }

// Err returns the first recorded misuse.
func (b *Builder) Err() error { return b.err }

func (b *Builder) fail(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

func (b *Builder) addOwner(src Source) {
	b.owners[src.Model()] = true
}

// From sets the first FROM item.
func (b *Builder) From(src Source) *Builder {
	if b.from != nil {
		return b.fail(data.NewSchemaError(data.ErrCodeInvalidOption, "FROM is already set; use a join to add %s", src.Model().Name()))
	}
	b.from = src.fromItem()
	b.base = src
	b.addOwner(src)
	return b
}

func (b *Builder) join(kind queryir.JoinKind, src Source, on data.Expr[bool]) *Builder {
	if b.from == nil {
		return b.fail(data.NewSchemaError(data.ErrCodeEmptyFrom, "join of %s before FROM", src.Model().Name()))
	}
	j := &queryir.Join{Kind: kind, Left: b.from, Right: src.fromItem()}
	if on != nil {
		j.On = on.DbExpr()
	}
	b.from = j
	b.joined = true
	b.addOwner(src)
	return b
}

// InnerJoin adds src with an INNER JOIN on the condition.
func (b *Builder) InnerJoin(src Source, on data.Expr[bool]) *Builder {
	return b.join(queryir.JoinInner, src, on)
}

// LeftJoin adds src with a LEFT JOIN on the condition.
func (b *Builder) LeftJoin(src Source, on data.Expr[bool]) *Builder {
	return b.join(queryir.JoinLeft, src, on)
}

// CrossJoin adds src with a CROSS JOIN.
func (b *Builder) CrossJoin(src Source) *Builder {
	return b.join(queryir.JoinCross, src, nil)
}

// Select maps source expressions onto target columns. A later mapping of
// the same target replaces the earlier one.
func (b *Builder) Select(mappings ...Mapping) *Builder {
	for _, m := range mappings {
		switch {
		case m.Target == nil || m.Source == nil:
			return b.fail(data.NewSchemaError(data.ErrCodeInvalidOption, "mapping needs a source and a target"))
		case m.Target.Model() != b.target:
			err := data.NewSchemaError(data.ErrCodeOwnershipMismatch, "column %s is not a column of %s", m.Target.Name(), b.target.Name())
			err.Model, err.Column = m.Target.Model().Name(), m.Target.Name()
			return b.fail(err)
		case m.Target.Kind() == data.KindComputed:
			err := data.NewSchemaError(data.ErrCodeReadOnly, "computed column cannot be selected into")
			err.Model, err.Column = b.target.Name(), m.Target.Name()
			return b.fail(err)
		}
		b.put(m)
	}
	return b
}

func (b *Builder) put(m Mapping) {
	for i, existing := range b.columns {
		if existing.Target == m.Target {
			b.columns[i] = m
			return
		}
	}
	b.columns = append(b.columns, m)
}

// SelectAll maps every target column onto the column of src with the same
// case-folded name and SQL type.
func (b *Builder) SelectAll(src Source) *Builder {
	for _, m := range matchByKey(sourceColumns(src), b.target.Columns(), nil) {
		b.put(m)
	}
	return b
}

// Where adds a filter, combined with AND.
func (b *Builder) Where(pred data.Expr[bool]) *Builder {
	b.where = queryir.And(b.where, pred.DbExpr())
	return b
}

// GroupBy adds grouping expressions.
func (b *Builder) GroupBy(exprs ...data.AnyExpr) *Builder {
	for _, e := range exprs {
		b.groupBy = append(b.groupBy, e.DbExpr())
	}
	return b
}

// Having adds a group filter, combined with AND.
func (b *Builder) Having(pred data.Expr[bool]) *Builder {
	b.having = queryir.And(b.having, pred.DbExpr())
	return b
}

// OrderBy appends ORDER BY terms.
func (b *Builder) OrderBy(orders ...Order) *Builder {
	b.orderBy = append(b.orderBy, lowerSorts(orders)...)
	return b
}

// Offset skips the first n rows.
func (b *Builder) Offset(n int) *Builder {
	if n < 0 {
		return b.fail(data.NewSchemaError(data.ErrCodeInvalidOption, "negative OFFSET %d", n))
	}
	b.offset = n
	return b
}

// Fetch limits the result to n rows.
func (b *Builder) Fetch(n int) *Builder {
	if n < 0 {
		return b.fail(data.NewSchemaError(data.ErrCodeInvalidOption, "negative FETCH %d", n))
	}
	b.fetch = n
	return b
}

// CorrelateParent makes the query a child of p. Rows are restricted to
// those matching a parent row through the target's parent mappings.
func (b *Builder) CorrelateParent(p *ParentRef) *Builder {
	if p.model != b.target.Parent() {
		return b.fail(data.NewSchemaError(data.ErrCodeOwnershipMismatch, "%s is not the parent model of %s", p.model.Name(), b.target.Name()))
	}
	b.parent = p
	return b
}

// WithSequentialKey numbers the output rows through seq.
func (b *Builder) WithSequentialKey(seq *SequentialKey) *Builder {
	if seq.model != b.target {
		return b.fail(data.NewSchemaError(data.ErrCodeOwnershipMismatch, "sequential key of %s used for %s", seq.model.Name(), b.target.Name()))
	}
	b.seq = seq
	return b
}

// BuildQueryStatement builds the query.
func (b *Builder) BuildQueryStatement() (*Query, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.from == nil {
		return nil, data.NewSchemaError(data.ErrCodeEmptyFrom, "query of %s has no FROM source", b.target.Name())
	}
	if err := b.checkOwners(); err != nil {
		return nil, err
	}

	q := &Query{model: b.target}
	cols := b.normalize()
	if b.parent != nil && b.parent.surrogate {
		q.parentRowID = &queryir.SysColumn{Owner: b.target, Name: queryir.ParentRowIDColumn}
		cols = append(cols, queryir.Mapping{Source: b.parent.rowID, Target: q.parentRowID})
	}

	s := queryir.NewSelect(b.target)
	s.Columns = cols
	s.From = b.from
	s.Where = b.where
	s.GroupBy = b.groupBy
	s.Having = b.having
	s.OrderBy = b.orderBy
	s.Offset, s.Fetch = b.offset, b.fetch

	if b.fold && b.parent == nil && b.seq == nil {
		if folded, cols, ok := b.foldSimple(s); ok {
			q.stmt, q.cols = folded, cols
			return q, nil
		}
	}

	if p := b.parent; p != nil {
		on, err := b.parentJoin(s.Columns)
		if err != nil {
			return nil, err
		}
		s.From = &queryir.Join{Kind: queryir.JoinInner, Left: s.From, Right: p.from, On: on}
		if !p.surrogate {
			s.Where = queryir.And(s.Where, p.where)
		}
		order := append([]queryir.Sort{}, p.order...)
		s.OrderBy = append(order, s.OrderBy...)
	}

	if b.seq != nil {
		var err error
		s, err = b.joinSequentialKey(q, s)
		if err != nil {
			return nil, err
		}
	}

	q.stmt, q.cols, q.parent = s, s.Columns, b.parent
	return q, nil
}

// normalize returns one mapping per stored or derived target column, in
// model order, with NULL for columns the caller did not map.
func (b *Builder) normalize() []queryir.Mapping {
	byTarget := make(map[data.AnyColumn]data.AnyExpr, len(b.columns))
	for _, m := range b.columns {
		byTarget[m.Target] = m.Source
	}
	var out []queryir.Mapping
	for _, c := range b.target.Columns() {
		if c.Kind() == data.KindComputed {
			continue
		}
		var src queryir.Expr = &queryir.Null{}
		if e, ok := byTarget[c]; ok {
			src = e.DbExpr()
		}
		out = append(out, queryir.Mapping{Source: src, Target: c})
	}
	return out
}

// checkOwners verifies that every column the caller referenced belongs to a
// source in FROM.
func (b *Builder) checkOwners() error {
	var bad queryir.Column
	check := func(c queryir.Column) {
		if bad == nil && !b.owners[c.DbOwner()] {
			bad = c
		}
	}
	for _, m := range b.columns {
		queryir.WalkColumns(m.Source.DbExpr(), check)
	}
	queryir.WalkColumns(b.where, check)
	queryir.WalkColumns(b.having, check)
	for _, g := range b.groupBy {
		queryir.WalkColumns(g, check)
	}
	for _, s := range b.orderBy {
		queryir.WalkColumns(s.Expr, check)
	}
	walkJoinConditions(b.from, check)
	if bad == nil {
		return nil
	}
	err := data.NewSchemaError(data.ErrCodeOwnershipMismatch, "column %s is not projected by any FROM source of %s",
		bad.DbColumnName(), b.target.Name())
	err.Model, err.Column = bad.DbOwner().DbOwnerName(), bad.DbColumnName()
	return err
}

func walkJoinConditions(src queryir.Source, fn func(queryir.Column)) {
	if j, ok := src.(*queryir.Join); ok {
		walkJoinConditions(j.Left, fn)
		walkJoinConditions(j.Right, fn)
		queryir.WalkColumns(j.On, fn)
	}
}

// parentJoin returns the ON condition pairing each parent-mapped child
// column with the parent's expression for the mapped parent column.
func (b *Builder) parentJoin(cols []queryir.Mapping) (queryir.Expr, error) {
	mappings := b.target.ParentMappings()
	if len(mappings) == 0 {
		return nil, data.NewSchemaError(data.ErrCodeUnmappedParentKey, "%s declares no parent mappings", b.target.Name())
	}
	var on queryir.Expr
	for _, pm := range mappings {
		parentExpr := b.parent.key(pm.Parent)
		if parentExpr == nil {
			err := data.NewSchemaError(data.ErrCodeUnmappedParentKey, "parent column %s is not available to correlate %s", pm.Parent.Name(), b.target.Name())
			err.Model, err.Column = b.target.Name(), pm.Child.Name()
			return nil, err
		}
		childExpr := sourceOf(cols, pm.Child)
		if childExpr == nil {
			err := data.NewSchemaError(data.ErrCodeUnmappedParentKey, "parent key column is not mapped")
			err.Model, err.Column = b.target.Name(), pm.Child.Name()
			return nil, err
		}
		on = queryir.And(on, queryir.Eq(childExpr, parentExpr))
	}
	return on, nil
}

// sourceOf returns the select-list source producing c, or nil when c is
// absent or NULL.
func sourceOf(cols []queryir.Mapping, c queryir.Column) queryir.Expr {
	for _, m := range cols {
		if m.Target != c {
			continue
		}
		if _, null := m.Source.(*queryir.Null); null {
			return nil
		}
		return m.Source
	}
	return nil
}

// joinSequentialKey joins the sequential-key table on the primary key and
// orders by its row id. A statement that cannot take another join (grouped,
// paged) is wrapped in a derived table first.
func (b *Builder) joinSequentialKey(q *Query, s *queryir.Select) (*queryir.Select, error) {
	seq := b.seq
	q.rowID = &queryir.SysColumn{Owner: b.target, Name: queryir.RowIDColumn}

	if !s.IsSimple() {
		inner := s
		s = queryir.NewSelect(b.target)
		s.From = inner
		for _, m := range inner.Columns {
			s.Columns = append(s.Columns, queryir.Mapping{Source: queryir.Ref(m.Target), Target: m.Target})
		}
	}

	var on queryir.Expr
	for i, pk := range seq.keys {
		src := sourceOf(s.Columns, pk)
		if src == nil {
			err := data.NewSchemaError(data.ErrCodeInvalidOption, "primary key column is not mapped")
			err.Model, err.Column = b.target.Name(), pk.Name()
			return nil, err
		}
		on = queryir.And(on, queryir.Eq(queryir.Ref(seq.columns[i]), src))
	}
	s.From = &queryir.Join{Kind: queryir.JoinInner, Left: s.From, Right: seq.table, On: on}
	s.Columns = append(s.Columns, queryir.Mapping{Source: queryir.Ref(seq.rowID), Target: q.rowID})
	s.OrderBy = []queryir.Sort{{Expr: queryir.Ref(seq.rowID)}}
	return s, nil
}

// foldSimple merges s into its single FROM item when that item is a built
// query that can be inlined: a simple SELECT is replaced by its own FROM
// with every reference to its output rewritten to the producing
// expression; a UNION is reused as is when s is an exact identity
// projection of it.
func (b *Builder) foldSimple(s *queryir.Select) (queryir.Statement, []queryir.Mapping, bool) {
	inner, ok := b.base.(*Query)
	if !ok || b.joined {
		return nil, nil, false
	}
	switch st := inner.stmt.(type) {
	case *queryir.Select:
		if !st.IsSimple() {
			return nil, nil, false
		}
		repl := make(map[queryir.Column]queryir.Expr, len(inner.cols))
		for _, m := range inner.cols {
			repl[m.Target] = m.Source
		}
		out := queryir.ReplaceInSelect(s, queryir.ReplaceWith(repl))
		out.From = st.From
		out.Where = queryir.And(st.Where, out.Where)
		if len(out.OrderBy) == 0 && len(out.GroupBy) == 0 && !aggregates(out.Columns) {
			out.OrderBy = st.OrderBy
		}
		return out, out.Columns, true
	case *queryir.Union:
		if s.Where != nil || len(s.OrderBy) > 0 || s.Offset >= 0 || s.Fetch >= 0 ||
			len(s.GroupBy) > 0 || s.Having != nil {
			return nil, nil, false
		}
		if !identityProjection(s.Columns, st.Queries[0].Columns) {
			return nil, nil, false
		}
		u := *st
		u.Owner = b.target
		return &u, s.Columns, true
	}
	return nil, nil, false
}

func aggregates(cols []queryir.Mapping) bool {
	for _, m := range cols {
		if queryir.ContainsAggregate(m.Source) {
			return true
		}
	}
	return false
}

// identityProjection reports whether outer selects every column of inner,
// unchanged and in the same position.
func identityProjection(outer, inner []queryir.Mapping) bool {
	if len(outer) != len(inner) {
		return false
	}
	for i, m := range outer {
		ref, ok := m.Source.(*queryir.ColumnRef)
		if !ok {
			return false
		}
		name := inner[i].Target.DbColumnName()
		if ref.Column.DbColumnName() != name || m.Target.DbColumnName() != name {
			return false
		}
	}
	return true
}
