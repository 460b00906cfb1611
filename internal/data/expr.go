package data

import (
	"database/sql"

	"github.com/roach88/rdo/internal/queryir"
)

// AnyExpr is an expression of any value type.
//
// Every expression can be lowered to the statement tree (DbExpr) and
// evaluated against an in-memory row. The column references it reads are
// exposed to the dependency index through visit.
type AnyExpr interface {
	// DbExpr lowers the expression to the statement tree.
	DbExpr() queryir.Expr

	nullAt(r *DataRow) bool
	visit(scope aggScope, fn func(exprRef))
}

// Expr is an expression producing values of T.
type Expr[T any] interface {
	AnyExpr

	// Type returns the data type of the result.
	Type() DataType[T]

	// Eval evaluates the expression for r. Column references resolve r
	// itself or the ancestor row owning the column.
	Eval(r *DataRow) sql.Null[T]
}

// exprRef is one column reference found by visit.
type exprRef struct {
	col AnyColumn

	// over is the model aggregated over, nil for scalar references.
	over *Model

	// nested is set when the reference sits inside two aggregates.
	nested bool
}

type aggScope struct {
	over  *Model
	depth int
}

func (s aggScope) ref(c AnyColumn) exprRef {
	return exprRef{col: c, over: s.over, nested: s.depth > 1}
}

// constExpr is a literal value.
type constExpr[T any] struct {
	dt DataType[T]
	v  sql.Null[T]
}

// Const returns a literal of type dt.
func Const[T any](dt DataType[T], v T) Expr[T] {
	return &constExpr[T]{dt: dt, v: Some(v)}
}

// Null returns the null literal of type dt.
func Null[T any](dt DataType[T]) Expr[T] {
	return &constExpr[T]{dt: dt}
}

func (e *constExpr[T]) Type() DataType[T]             { return e.dt }
func (e *constExpr[T]) Eval(*DataRow) sql.Null[T]     { return e.v }
func (e *constExpr[T]) nullAt(*DataRow) bool          { return !e.v.Valid }
func (e *constExpr[T]) visit(aggScope, func(exprRef)) {}
func (e *constExpr[T]) DbExpr() queryir.Expr {
	if !e.v.Valid {
		return &queryir.Null{}
	}
	return &queryir.Param{Value: e.dt.ToDriver(e.v.V)}
}

// arith is a binary arithmetic operator.
type arith[T Number] struct {
	op   queryir.BinaryOp
	l, r Expr[T]
}

// Add returns l + r.
func Add[T Number](l, r Expr[T]) Expr[T] { return &arith[T]{op: queryir.OpAdd, l: l, r: r} }

// Sub returns l - r.
func Sub[T Number](l, r Expr[T]) Expr[T] { return &arith[T]{op: queryir.OpSub, l: l, r: r} }

// Mul returns l * r.
func Mul[T Number](l, r Expr[T]) Expr[T] { return &arith[T]{op: queryir.OpMul, l: l, r: r} }

// Div returns l / r. Division by zero evaluates to null, as in SQLite.
func Div[T Number](l, r Expr[T]) Expr[T] { return &arith[T]{op: queryir.OpDiv, l: l, r: r} }

func (e *arith[T]) Type() DataType[T] { return e.l.Type() }

func (e *arith[T]) Eval(row *DataRow) sql.Null[T] {
	a, b := e.l.Eval(row), e.r.Eval(row)
	if !a.Valid || !b.Valid {
		return None[T]()
	}
	switch e.op {
	case queryir.OpAdd:
		return Some(a.V + b.V)
	case queryir.OpSub:
		return Some(a.V - b.V)
	case queryir.OpMul:
		return Some(a.V * b.V)
	case queryir.OpDiv:
		if b.V == 0 {
			return None[T]()
		}
		return Some(a.V / b.V)
	}
	return None[T]()
}

func (e *arith[T]) nullAt(row *DataRow) bool { return !e.Eval(row).Valid }

func (e *arith[T]) visit(s aggScope, fn func(exprRef)) {
	e.l.visit(s, fn)
	e.r.visit(s, fn)
}

func (e *arith[T]) DbExpr() queryir.Expr {
	return &queryir.Binary{Op: e.op, Left: e.l.DbExpr(), Right: e.r.DbExpr()}
}

// compare is an ordering or equality comparison.
type compare[T any] struct {
	op   queryir.BinaryOp
	l, r Expr[T]
}

// Eq returns l = r.
func Eq[T any](l, r Expr[T]) Expr[bool] { return &compare[T]{op: queryir.OpEq, l: l, r: r} }

// Ne returns l <> r.
func Ne[T any](l, r Expr[T]) Expr[bool] { return &compare[T]{op: queryir.OpNe, l: l, r: r} }

// Lt returns l < r.
func Lt[T any](l, r Expr[T]) Expr[bool] { return &compare[T]{op: queryir.OpLt, l: l, r: r} }

// Le returns l <= r.
func Le[T any](l, r Expr[T]) Expr[bool] { return &compare[T]{op: queryir.OpLe, l: l, r: r} }

// Gt returns l > r.
func Gt[T any](l, r Expr[T]) Expr[bool] { return &compare[T]{op: queryir.OpGt, l: l, r: r} }

// Ge returns l >= r.
func Ge[T any](l, r Expr[T]) Expr[bool] { return &compare[T]{op: queryir.OpGe, l: l, r: r} }

func (e *compare[T]) Type() DataType[bool] { return Bool }

func (e *compare[T]) Eval(row *DataRow) sql.Null[bool] {
	a, b := e.l.Eval(row), e.r.Eval(row)
	if !a.Valid || !b.Valid {
		return None[bool]()
	}
	dt := e.l.Type()
	switch e.op {
	case queryir.OpEq:
		return Some(dt.Equal(a.V, b.V))
	case queryir.OpNe:
		return Some(!dt.Equal(a.V, b.V))
	}
	c := dt.Compare(a.V, b.V)
	switch e.op {
	case queryir.OpLt:
		return Some(c < 0)
	case queryir.OpLe:
		return Some(c <= 0)
	case queryir.OpGt:
		return Some(c > 0)
	case queryir.OpGe:
		return Some(c >= 0)
	}
	return None[bool]()
}

func (e *compare[T]) nullAt(row *DataRow) bool { return !e.Eval(row).Valid }

func (e *compare[T]) visit(s aggScope, fn func(exprRef)) {
	e.l.visit(s, fn)
	e.r.visit(s, fn)
}

func (e *compare[T]) DbExpr() queryir.Expr {
	return &queryir.Binary{Op: e.op, Left: e.l.DbExpr(), Right: e.r.DbExpr()}
}

// logic is a three-valued AND / OR.
type logic struct {
	op   queryir.BinaryOp
	l, r Expr[bool]
}

// And returns l AND r with SQL three-valued semantics.
func And(l, r Expr[bool]) Expr[bool] { return &logic{op: queryir.OpAnd, l: l, r: r} }

// Or returns l OR r with SQL three-valued semantics.
func Or(l, r Expr[bool]) Expr[bool] { return &logic{op: queryir.OpOr, l: l, r: r} }

func (e *logic) Type() DataType[bool] { return Bool }

func (e *logic) Eval(row *DataRow) sql.Null[bool] {
	a, b := e.l.Eval(row), e.r.Eval(row)
	// dominant is the value that decides the result regardless of nulls.
	dominant := e.op == queryir.OpOr
	if (a.Valid && a.V == dominant) || (b.Valid && b.V == dominant) {
		return Some(dominant)
	}
	if !a.Valid || !b.Valid {
		return None[bool]()
	}
	return Some(!dominant)
}

func (e *logic) nullAt(row *DataRow) bool { return !e.Eval(row).Valid }

func (e *logic) visit(s aggScope, fn func(exprRef)) {
	e.l.visit(s, fn)
	e.r.visit(s, fn)
}

func (e *logic) DbExpr() queryir.Expr {
	return &queryir.Binary{Op: e.op, Left: e.l.DbExpr(), Right: e.r.DbExpr()}
}

type not struct{ e Expr[bool] }

// Not negates e. The negation of null is null.
func Not(e Expr[bool]) Expr[bool] { return &not{e: e} }

func (n *not) Type() DataType[bool] { return Bool }

func (n *not) Eval(row *DataRow) sql.Null[bool] {
	v := n.e.Eval(row)
	if !v.Valid {
		return v
	}
	return Some(!v.V)
}

func (n *not) nullAt(row *DataRow) bool           { return n.e.nullAt(row) }
func (n *not) visit(s aggScope, fn func(exprRef)) { n.e.visit(s, fn) }
func (n *not) DbExpr() queryir.Expr {
	return &queryir.Unary{Op: queryir.OpNot, Operand: n.e.DbExpr()}
}

type nullTest struct {
	e      AnyExpr
	negate bool
}

// IsNull returns true for rows where e is null.
func IsNull(e AnyExpr) Expr[bool] { return &nullTest{e: e} }

// IsNotNull returns true for rows where e is not null.
func IsNotNull(e AnyExpr) Expr[bool] { return &nullTest{e: e, negate: true} }

func (n *nullTest) Type() DataType[bool] { return Bool }

func (n *nullTest) Eval(row *DataRow) sql.Null[bool] {
	return Some(n.e.nullAt(row) != n.negate)
}

func (n *nullTest) nullAt(*DataRow) bool               { return false }
func (n *nullTest) visit(s aggScope, fn func(exprRef)) { n.e.visit(s, fn) }
func (n *nullTest) DbExpr() queryir.Expr {
	op := queryir.OpIsNull
	if n.negate {
		op = queryir.OpIsNotNull
	}
	return &queryir.Unary{Op: op, Operand: n.e.DbExpr()}
}

type coalesce[T any] struct{ args []Expr[T] }

// Coalesce returns the first non-null argument.
func Coalesce[T any](first Expr[T], rest ...Expr[T]) Expr[T] {
	return &coalesce[T]{args: append([]Expr[T]{first}, rest...)}
}

func (c *coalesce[T]) Type() DataType[T] { return c.args[0].Type() }

func (c *coalesce[T]) Eval(row *DataRow) sql.Null[T] {
	for _, a := range c.args {
		if v := a.Eval(row); v.Valid {
			return v
		}
	}
	return None[T]()
}

func (c *coalesce[T]) nullAt(row *DataRow) bool { return !c.Eval(row).Valid }

func (c *coalesce[T]) visit(s aggScope, fn func(exprRef)) {
	for _, a := range c.args {
		a.visit(s, fn)
	}
}

func (c *coalesce[T]) DbExpr() queryir.Expr {
	f := &queryir.Func{Name: "COALESCE"}
	for _, a := range c.args {
		f.Args = append(f.Args, a.DbExpr())
	}
	return f
}

// cast converts between value types in memory and with CAST in SQL.
type cast[From, To any] struct {
	e    Expr[From]
	to   DataType[To]
	conv func(From) To
}

// ToFloat64 converts a numeric expression to float64.
func ToFloat64[T Number](e Expr[T]) Expr[float64] {
	return &cast[T, float64]{e: e, to: Float64, conv: func(v T) float64 { return float64(v) }}
}

// ToInt64 converts a numeric expression to int64, truncating fractions.
func ToInt64[T Number](e Expr[T]) Expr[int64] {
	return &cast[T, int64]{e: e, to: Int64, conv: func(v T) int64 { return int64(v) }}
}

// ToText renders e with its data type's Format.
func ToText[T any](e Expr[T]) Expr[string] {
	dt := e.Type()
	return &cast[T, string]{e: e, to: String, conv: dt.Format}
}

func (c *cast[From, To]) Type() DataType[To] { return c.to }

func (c *cast[From, To]) Eval(row *DataRow) sql.Null[To] {
	v := c.e.Eval(row)
	if !v.Valid {
		return None[To]()
	}
	return Some(c.conv(v.V))
}

func (c *cast[From, To]) nullAt(row *DataRow) bool           { return c.e.nullAt(row) }
func (c *cast[From, To]) visit(s aggScope, fn func(exprRef)) { c.e.visit(s, fn) }
func (c *cast[From, To]) DbExpr() queryir.Expr {
	return &queryir.Cast{Operand: c.e.DbExpr(), Type: c.to.SQLType()}
}
