package data

import (
	"cmp"
	"fmt"
	"slices"
)

// modelSet is a set of models. The zero value is an empty, read-only set.
type modelSet map[*Model]struct{}

func newModelSet(ms ...*Model) modelSet {
	s := make(modelSet, len(ms))
	for _, m := range ms {
		s[m] = struct{}{}
	}
	return s
}

func (s modelSet) has(m *Model) bool {
	_, ok := s[m]
	return ok
}

func (s modelSet) add(m *Model) { s[m] = struct{}{} }

func (s modelSet) intersects(o modelSet) bool {
	small, large := s, o
	if len(small) > len(large) {
		small, large = large, small
	}
	for m := range small {
		if large.has(m) {
			return true
		}
	}
	return false
}

// union returns a new set holding the members of s and o.
func (s modelSet) union(o modelSet) modelSet {
	out := make(modelSet, len(s)+len(o))
	for m := range s {
		out.add(m)
	}
	for m := range o {
		out.add(m)
	}
	return out
}

// with returns a new set holding the members of s and m.
func (s modelSet) with(m *Model) modelSet {
	return s.union(modelSet{m: {}})
}

// sorted returns the members ordered by depth, then name.
func (s modelSet) sorted() []*Model {
	out := make([]*Model, 0, len(s))
	for m := range s {
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b *Model) int {
		if c := cmp.Compare(a.depth, b.depth); c != 0 {
			return c
		}
		return cmp.Compare(a.path(), b.path())
	})
	return out
}

// dependency holds the source-model sets of one computation.
type dependency struct {
	// scalar holds the owning model and ancestors read directly.
	scalar modelSet

	// aggregate holds the descendant models aggregated over, including the
	// intermediate models on each aggregation path.
	aggregate modelSet
}

// shouldRecompute reports whether a change to rows of the changed models
// invalidates the computation on an ancestor row.
func (d dependency) shouldRecompute(changed modelSet) bool {
	return d.aggregate.intersects(changed)
}

// computation is a computed column or a validator together with its cached
// dependency sets.
type computation struct {
	model     *Model
	column    AnyColumn
	validator Validator
	expr      AnyExpr
	reads     []AnyColumn // computed columns read by expr
	deps      dependency
}

func (cp *computation) name() string {
	if cp.column != nil {
		return cp.model.path() + "." + cp.column.Name()
	}
	return cp.model.path() + ".<validator>"
}

// selected reports whether the computation must run on a row of cp.model
// after the given scalar and aggregate changes.
func (cp *computation) selected(scalarChanged, touched modelSet) bool {
	return cp.deps.scalar.intersects(scalarChanged) || cp.deps.aggregate.intersects(touched)
}

// analyze derives the direct dependency sets from the expression tree and
// validates every reference.
func (cp *computation) analyze() error {
	cp.deps = dependency{scalar: modelSet{}, aggregate: modelSet{}}
	if cp.expr == nil {
		return nil
	}
	var err error
	fail := func(format string, args ...any) {
		if err == nil {
			err = &SchemaError{Code: ErrCodeInvalidSource, Message: cp.name() + ": " + fmt.Sprintf(format, args...),
				Model: cp.model.name}
		}
	}
	cp.expr.visit(aggScope{}, func(r exprRef) {
		if r.nested {
			fail("nested aggregates are not supported")
			return
		}
		if r.col == nil {
			switch {
			case r.over == nil:
				fail("aggregate reads no column")
			case r.over.Root() != cp.model.Root():
				fail("aggregate over unrelated model %s", r.over.name)
			case !cp.model.IsAncestorOf(r.over):
				fail("aggregate over %s, which is not a descendant", r.over.name)
			default:
				cp.addAggregatePath(r.over)
			}
			return
		}
		cm := r.col.Model()
		if cm.Root() != cp.model.Root() {
			fail("column %s.%s belongs to another schema", cm.name, r.col.Name())
			return
		}
		if r.over != nil {
			if cm != r.over && !cm.IsAncestorOf(r.over) {
				fail("aggregate over %s reads %s.%s", r.over.name, cm.name, r.col.Name())
				return
			}
		} else if cm != cp.model && !cm.IsAncestorOf(cp.model) {
			fail("scalar read of %s.%s needs an aggregate", cm.name, r.col.Name())
			return
		}
		if r.col.IsExpression() && !slices.Contains(cp.reads, r.col) {
			cp.reads = append(cp.reads, r.col)
		}
		cp.classify(cm)
		for p := r.col.ParentColumn(); p != nil; p = p.ParentColumn() {
			cp.classify(p.Model())
		}
	})
	return err
}

// classify adds x to the scalar set when it is the owning model or an
// ancestor, and to the aggregate set (with its path) otherwise.
func (cp *computation) classify(x *Model) {
	if x == cp.model || x.IsAncestorOf(cp.model) {
		cp.deps.scalar.add(x)
		return
	}
	cp.addAggregatePath(x)
}

func (cp *computation) addAggregatePath(x *Model) {
	for y := x; y != nil && y != cp.model; y = y.parent {
		cp.deps.aggregate.add(y)
	}
}

// inherit folds the dependencies of a computed column read by cp into cp.
func (cp *computation) inherit(other *computation) {
	for x := range other.deps.scalar {
		cp.classify(x)
	}
	for x := range other.deps.aggregate {
		cp.classify(x)
	}
}

// Freeze ends design mode for the whole model tree of m. It assigns storage
// strategies, builds the dependency index and rejects invalid or cyclic
// computations. Freeze is idempotent and returns the same error on every
// call.
func (m *Model) Freeze() error {
	root := m.Root()
	if root.frozen {
		return root.freezeErr
	}
	root.frozen = true
	root.freezeErr = root.freezeTree()
	return root.freezeErr
}

func (m *Model) freezeTree() error {
	var models []*Model
	m.walk(func(x *Model) { models = append(models, x) })
	for _, x := range models {
		if x.err != nil {
			return x.err
		}
	}
	if err := assignStrategies(models); err != nil {
		return err
	}

	var columnComps, validatorComps []*computation
	byColumn := make(map[AnyColumn]*computation)
	for _, x := range models {
		for _, c := range x.columns {
			if e := c.expression(); e != nil {
				cp := &computation{model: x, column: c, expr: e}
				c.base().comp = cp
				byColumn[c] = cp
				columnComps = append(columnComps, cp)
			}
		}
		for _, v := range x.validators {
			validatorComps = append(validatorComps, &computation{model: x, validator: v, expr: v.Expr()})
		}
	}
	for _, cp := range columnComps {
		if err := cp.analyze(); err != nil {
			return err
		}
	}
	for _, cp := range validatorComps {
		if err := cp.analyze(); err != nil {
			return err
		}
	}

	order, err := orderComputations(columnComps, byColumn)
	if err != nil {
		return err
	}
	for _, cp := range order {
		for _, c := range cp.reads {
			cp.inherit(byColumn[c])
		}
		cp.model.comps = append(cp.model.comps, cp)
	}
	for _, cp := range validatorComps {
		for _, c := range cp.reads {
			cp.inherit(byColumn[c])
		}
		cp.model.comps = append(cp.model.comps, cp)
	}

	for _, x := range models {
		for _, cp := range x.comps {
			for s := range cp.deps.scalar {
				if s != x && !slices.Contains(s.cascade, x) {
					s.cascade = append(s.cascade, x)
				}
			}
		}
	}
	for _, x := range models {
		slices.SortStableFunc(x.cascade, func(a, b *Model) int { return cmp.Compare(a.depth, b.depth) })
		x.passThrough = modelSet{}
		for a := x.parent; a != nil; a = a.parent {
			for _, cp := range a.comps {
				x.passThrough = x.passThrough.union(cp.deps.aggregate)
			}
		}
	}
	return nil
}

func assignStrategies(models []*Model) error {
	for _, x := range models {
		derived := make(map[AnyColumn]AnyColumn, len(x.mappings))
		for _, mp := range x.mappings {
			derived[mp.Child] = mp.Parent
		}
		for _, c := range x.columns {
			b := c.base()
			p, isDerived := derived[c]
			switch {
			case isDerived && c.IsExpression():
				return columnError(ErrCodeInvalidSource, c, "a mapped child column cannot be computed")
			case isDerived:
				if !c.bindParent(p) {
					return columnError(ErrCodeTypeMismatch, c, "parent column %s has a different type", p.Name())
				}
				b.strategy = StrategyDerived
			case c.IsExpression():
				b.strategy = StrategyComputed
			default:
				b.strategy = StrategyStored
			}
		}
	}
	return nil
}

// path returns the dotted path of m from its root.
func (m *Model) path() string {
	if m.parent == nil {
		return m.name
	}
	return m.parent.path() + "." + m.name
}
