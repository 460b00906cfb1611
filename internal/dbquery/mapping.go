package dbquery

import (
	"golang.org/x/text/cases"

	"github.com/roach88/rdo/internal/data"
	"github.com/roach88/rdo/internal/queryir"
)

// Mapping assigns the value of Source to the target column Target.
type Mapping struct {
	Source data.AnyExpr
	Target data.AnyColumn
}

// Map returns a typed mapping of src onto tgt.
func Map[T any](src data.Expr[T], tgt *data.Column[T]) Mapping {
	return Mapping{Source: src, Target: tgt}
}

// Order is one ORDER BY term.
type Order struct {
	Expr data.AnyExpr
	Desc bool
}

// Asc orders by e ascending.
func Asc(e data.AnyExpr) Order { return Order{Expr: e} }

// Desc orders by e descending.
func Desc(e data.AnyExpr) Order { return Order{Expr: e, Desc: true} }

// columnKey returns the case-folded name used to match columns by name.
func columnKey(name string) string {
	return cases.Fold().String(name)
}

// matchByKey pairs every insertable column of target with the column of
// sources that has the same key and SQL type. System and computed columns on
// either side never match.
func matchByKey(sources, targets []data.AnyColumn, skip func(data.AnyColumn) bool) []Mapping {
	byKey := make(map[string]data.AnyColumn, len(sources))
	for _, c := range sources {
		if c.Kind() != data.KindUser {
			continue
		}
		byKey[columnKey(c.Name())] = c
	}
	var out []Mapping
	for _, t := range targets {
		if t.Kind() != data.KindUser || (skip != nil && skip(t)) {
			continue
		}
		s, ok := byKey[columnKey(t.Name())]
		if !ok || s.SQLType() != t.SQLType() {
			continue
		}
		out = append(out, Mapping{Source: s, Target: t})
	}
	return out
}

// sourceColumns returns the model columns projected by src.
func sourceColumns(src Source) []data.AnyColumn {
	q, ok := src.(*Query)
	if !ok {
		return src.Model().Columns()
	}
	var out []data.AnyColumn
	for _, c := range q.Columns() {
		if dc, ok := c.(data.AnyColumn); ok {
			out = append(out, dc)
		}
	}
	return out
}

// lowerSorts lowers ORDER BY terms to the statement tree.
func lowerSorts(orders []Order) []queryir.Sort {
	if len(orders) == 0 {
		return nil
	}
	out := make([]queryir.Sort, len(orders))
	for i, o := range orders {
		out[i] = queryir.Sort{Expr: o.Expr.DbExpr(), Desc: o.Desc}
	}
	return out
}
