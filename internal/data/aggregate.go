package data

import (
	"database/sql"

	"github.com/roach88/rdo/internal/queryir"
)

// aggregate folds an inner expression over the descendant rows of one child
// model. The model aggregated over is the deepest model the inner
// expression reads; CountRows names it explicitly.
type aggregate[R any] struct {
	name   string
	inner  AnyExpr
	over   *Model
	result DataType[R]
	fold   func(rows []*DataRow) sql.Null[R]
}

func (a *aggregate[R]) Type() DataType[R] { return a.result }

func (a *aggregate[R]) Eval(row *DataRow) sql.Null[R] {
	if a.over == nil {
		return None[R]()
	}
	return a.fold(descendants(row, a.over))
}

func (a *aggregate[R]) nullAt(row *DataRow) bool { return !a.Eval(row).Valid }

func (a *aggregate[R]) visit(s aggScope, fn func(exprRef)) {
	inner := aggScope{over: a.over, depth: s.depth + 1}
	fn(exprRef{over: a.over, nested: inner.depth > 1})
	if a.inner != nil {
		a.inner.visit(inner, fn)
	}
}

func (a *aggregate[R]) DbExpr() queryir.Expr {
	if a.inner == nil {
		return &queryir.Func{Name: a.name, Star: true}
	}
	return &queryir.Func{Name: a.name, Args: []queryir.Expr{a.inner.DbExpr()}}
}

// deepestModel returns the deepest model referenced by e outside of nested
// aggregates.
func deepestModel(e AnyExpr) *Model {
	var over *Model
	e.visit(aggScope{}, func(r exprRef) {
		if r.over != nil || r.col == nil {
			return
		}
		if m := r.col.Model(); over == nil || m.depth > over.depth {
			over = m
		}
	})
	return over
}

// descendants returns the rows of m below r, in hierarchical order. It
// returns nil when m is not a strict descendant of r's model.
func descendants(r *DataRow, m *Model) []*DataRow {
	var path []*Model
	x := m
	for x != nil && x != r.model {
		path = append(path, x)
		x = x.parent
	}
	if x == nil || len(path) == 0 {
		return nil
	}
	rows := []*DataRow{r}
	for i := len(path) - 1; i >= 0; i-- {
		var next []*DataRow
		for _, p := range rows {
			next = append(next, p.children[path[i].childOrdinal].rows...)
		}
		rows = next
	}
	return rows
}

// Sum adds the non-null values of e over the descendant rows. The sum of no
// values is null.
func Sum[T Number](e Expr[T]) Expr[T] {
	return &aggregate[T]{
		name: "SUM", inner: e, over: deepestModel(e), result: e.Type(),
		fold: func(rows []*DataRow) sql.Null[T] {
			var total sql.Null[T]
			for _, r := range rows {
				if v := e.Eval(r); v.Valid {
					total = Some(total.V + v.V)
				}
			}
			return total
		},
	}
}

// Avg averages the non-null values of e over the descendant rows.
func Avg[T Number](e Expr[T]) Expr[float64] {
	return &aggregate[float64]{
		name: "AVG", inner: e, over: deepestModel(e), result: Float64,
		fold: func(rows []*DataRow) sql.Null[float64] {
			var total float64
			n := 0
			for _, r := range rows {
				if v := e.Eval(r); v.Valid {
					total += float64(v.V)
					n++
				}
			}
			if n == 0 {
				return None[float64]()
			}
			return Some(total / float64(n))
		},
	}
}

// Count counts the descendant rows where e is not null.
func Count(e AnyExpr) Expr[int64] {
	return &aggregate[int64]{
		name: "COUNT", inner: e, over: deepestModel(e), result: Int64,
		fold: func(rows []*DataRow) sql.Null[int64] {
			var n int64
			for _, r := range rows {
				if !e.nullAt(r) {
					n++
				}
			}
			return Some(n)
		},
	}
}

// CountRows counts the rows of m below the evaluated row.
func CountRows(m *Model) Expr[int64] {
	return &aggregate[int64]{
		name: "COUNT", over: m, result: Int64,
		fold: func(rows []*DataRow) sql.Null[int64] {
			return Some(int64(len(rows)))
		},
	}
}

// Min returns the smallest non-null value of e over the descendant rows.
func Min[T any](e Expr[T]) Expr[T] {
	return extreme("MIN", e, -1)
}

// Max returns the largest non-null value of e over the descendant rows.
func Max[T any](e Expr[T]) Expr[T] {
	return extreme("MAX", e, 1)
}

func extreme[T any](name string, e Expr[T], sign int) Expr[T] {
	dt := e.Type()
	return &aggregate[T]{
		name: name, inner: e, over: deepestModel(e), result: dt,
		fold: func(rows []*DataRow) sql.Null[T] {
			var best sql.Null[T]
			for _, r := range rows {
				v := e.Eval(r)
				if v.Valid && (!best.Valid || dt.Compare(v.V, best.V)*sign > 0) {
					best = v
				}
			}
			return best
		},
	}
}
