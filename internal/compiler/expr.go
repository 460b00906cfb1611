package compiler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"cuelang.org/go/cue/ast"
	"cuelang.org/go/cue/parser"
	"cuelang.org/go/cue/token"
	"github.com/shopspring/decimal"

	"github.com/roach88/rdo/internal/data"
)

// Expressions use CUE expression syntax:
//
//	Quantity * Price
//	sum(Items.Amount) - Discount
//	count(Items) > 0 && Customer != ""
//
// A bare name is a column of the owning model or of an ancestor; a dotted
// name descends into child models. Functions: count, sum, avg, min, max,
// isnull, notnull, coalesce, float, int, text.

// typed is an expression with its value kind.
type typed struct {
	kind string
	expr data.AnyExpr
}

func as[T any](t typed) data.Expr[T] { return t.expr.(data.Expr[T]) }

// ExprError reports an invalid expression.
type ExprError struct {
	Expr    string
	Message string
}

func (e *ExprError) Error() string {
	return fmt.Sprintf("expression %q: %s", e.Expr, e.Message)
}

// exprCompiler turns expression text into data expressions for one owning
// model.
type exprCompiler struct {
	src   string
	owner *data.Model
}

func (c *exprCompiler) fail(format string, args ...any) error {
	return &ExprError{Expr: c.src, Message: fmt.Sprintf(format, args...)}
}

// compileExpr parses src relative to owner.
func compileExpr(owner *data.Model, src string) (typed, error) {
	c := &exprCompiler{src: src, owner: owner}
	node, err := parser.ParseExpr("expr", src)
	if err != nil {
		return typed{}, c.fail("%v", err)
	}
	return c.node(node)
}

func (c *exprCompiler) node(n ast.Expr) (typed, error) {
	switch x := n.(type) {
	case *ast.ParenExpr:
		return c.node(x.X)
	case *ast.BasicLit:
		return c.literal(x)
	case *ast.Ident, *ast.SelectorExpr:
		path, err := c.path(x)
		if err != nil {
			return typed{}, err
		}
		col, err := resolveColumn(c.owner, path)
		if err != nil {
			return typed{}, c.fail("%v", err)
		}
		return columnExpr(col)
	case *ast.UnaryExpr:
		operand, err := c.node(x.X)
		if err != nil {
			return typed{}, err
		}
		return c.unary(x.Op, operand)
	case *ast.BinaryExpr:
		l, err := c.node(x.X)
		if err != nil {
			return typed{}, err
		}
		r, err := c.node(x.Y)
		if err != nil {
			return typed{}, err
		}
		return c.binary(x.Op, l, r)
	case *ast.CallExpr:
		return c.call(x)
	}
	return typed{}, c.fail("unsupported syntax %T", n)
}

// path renders a name or dotted selector.
func (c *exprCompiler) path(n ast.Expr) (string, error) {
	switch x := n.(type) {
	case *ast.Ident:
		return x.Name, nil
	case *ast.SelectorExpr:
		head, err := c.path(x.X)
		if err != nil {
			return "", err
		}
		sel, ok := x.Sel.(*ast.Ident)
		if !ok {
			return "", c.fail("selector must be a name")
		}
		return head + "." + sel.Name, nil
	}
	return "", c.fail("expected a column name, got %T", n)
}

func (c *exprCompiler) literal(x *ast.BasicLit) (typed, error) {
	switch x.Kind {
	case token.INT:
		n, err := strconv.ParseInt(strings.ReplaceAll(x.Value, "_", ""), 0, 64)
		if err != nil {
			return typed{}, c.fail("invalid integer %s", x.Value)
		}
		return typed{"int64", data.Const(data.Int64, n)}, nil
	case token.FLOAT:
		f, err := strconv.ParseFloat(strings.ReplaceAll(x.Value, "_", ""), 64)
		if err != nil {
			return typed{}, c.fail("invalid number %s", x.Value)
		}
		return typed{"float64", data.Const(data.Float64, f)}, nil
	case token.STRING:
		s, err := strconv.Unquote(x.Value)
		if err != nil {
			return typed{}, c.fail("invalid string %s", x.Value)
		}
		return typed{"string", data.Const(data.String, s)}, nil
	case token.TRUE:
		return typed{"bool", data.Const(data.Bool, true)}, nil
	case token.FALSE:
		return typed{"bool", data.Const(data.Bool, false)}, nil
	}
	return typed{}, c.fail("unsupported literal %s", x.Value)
}

func (c *exprCompiler) unary(op token.Token, x typed) (typed, error) {
	switch op {
	case token.NOT:
		if x.kind != "bool" {
			return typed{}, c.fail("! needs a bool operand, got %s", x.kind)
		}
		return typed{"bool", data.Not(as[bool](x))}, nil
	case token.SUB:
		zero := typed{"int64", data.Const(data.Int64, 0)}
		return c.binary(token.SUB, zero, x)
	case token.ADD:
		return x, nil
	}
	return typed{}, c.fail("unsupported operator %s", op)
}

func (c *exprCompiler) binary(op token.Token, l, r typed) (typed, error) {
	switch op {
	case token.LAND, token.LOR:
		if l.kind != "bool" || r.kind != "bool" {
			return typed{}, c.fail("%s needs bool operands, got %s and %s", op, l.kind, r.kind)
		}
		if op == token.LAND {
			return typed{"bool", data.And(as[bool](l), as[bool](r))}, nil
		}
		return typed{"bool", data.Or(as[bool](l), as[bool](r))}, nil

	case token.ADD, token.SUB, token.MUL, token.QUO:
		l, r, err := c.promote(l, r)
		if err != nil {
			return typed{}, err
		}
		switch l.kind {
		case "int64":
			return typed{"int64", arith(op, as[int64](l), as[int64](r))}, nil
		case "float64":
			return typed{"float64", arith(op, as[float64](l), as[float64](r))}, nil
		}
		return typed{}, c.fail("%s needs numeric operands, got %s", op, l.kind)

	case token.EQL, token.NEQ, token.LSS, token.LEQ, token.GTR, token.GEQ:
		if isNumeric(l.kind) && isNumeric(r.kind) {
			var err error
			if l, r, err = c.promote(l, r); err != nil {
				return typed{}, err
			}
		}
		if l.kind != r.kind {
			return typed{}, c.fail("cannot compare %s with %s", l.kind, r.kind)
		}
		return typed{"bool", compareKind(op, l, r)}, nil
	}
	return typed{}, c.fail("unsupported operator %s", op)
}

func isNumeric(kind string) bool {
	return kind == "int64" || kind == "int32" || kind == "float64"
}

// promote widens two numeric operands to a common kind: int32 to int64, and
// int64 to float64 when the other side is float64.
func (c *exprCompiler) promote(l, r typed) (typed, typed, error) {
	if !isNumeric(l.kind) || !isNumeric(r.kind) {
		return l, r, c.fail("expected numeric operands, got %s and %s", l.kind, r.kind)
	}
	l, r = widen(l), widen(r)
	switch {
	case l.kind == r.kind:
	case l.kind == "float64":
		r = typed{"float64", data.ToFloat64(as[int64](r))}
	default:
		l = typed{"float64", data.ToFloat64(as[int64](l))}
	}
	return l, r, nil
}

func widen(t typed) typed {
	if t.kind == "int32" {
		return typed{"int64", data.ToInt64(as[int32](t))}
	}
	return t
}

func arith[T data.Number](op token.Token, l, r data.Expr[T]) data.Expr[T] {
	switch op {
	case token.ADD:
		return data.Add(l, r)
	case token.SUB:
		return data.Sub(l, r)
	case token.MUL:
		return data.Mul(l, r)
	}
	return data.Div(l, r)
}

func compare[T any](op token.Token, l, r data.Expr[T]) data.Expr[bool] {
	switch op {
	case token.EQL:
		return data.Eq(l, r)
	case token.NEQ:
		return data.Ne(l, r)
	case token.LSS:
		return data.Lt(l, r)
	case token.LEQ:
		return data.Le(l, r)
	case token.GTR:
		return data.Gt(l, r)
	}
	return data.Ge(l, r)
}

// compareKind dispatches compare on the operand kind. l and r have the
// same kind.
func compareKind(op token.Token, l, r typed) data.Expr[bool] {
	switch l.kind {
	case "int64":
		return compare(op, as[int64](l), as[int64](r))
	case "int32":
		return compare(op, as[int32](l), as[int32](r))
	case "float64":
		return compare(op, as[float64](l), as[float64](r))
	case "string":
		return compare(op, as[string](l), as[string](r))
	case "bool":
		return compare(op, as[bool](l), as[bool](r))
	case "time":
		return compare(op, as[time.Time](l), as[time.Time](r))
	}
	return compare(op, as[decimal.Decimal](l), as[decimal.Decimal](r))
}

func (c *exprCompiler) call(x *ast.CallExpr) (typed, error) {
	fn, ok := x.Fun.(*ast.Ident)
	if !ok {
		return typed{}, c.fail("function name expected")
	}
	name := fn.Name

	if name == "count" && len(x.Args) == 1 {
		if path, err := c.path(x.Args[0]); err == nil {
			if m, ok := resolveModel(c.owner, path); ok {
				return typed{"int64", data.CountRows(m)}, nil
			}
		}
	}

	args := make([]typed, len(x.Args))
	for i, a := range x.Args {
		t, err := c.node(a)
		if err != nil {
			return typed{}, err
		}
		args[i] = t
	}
	if name == "coalesce" {
		return c.coalesce(args)
	}
	if len(args) != 1 {
		return typed{}, c.fail("%s takes one argument, got %d", name, len(args))
	}
	arg := widen(args[0])

	switch name {
	case "count":
		return typed{"int64", data.Count(arg.expr)}, nil
	case "sum":
		switch arg.kind {
		case "int64":
			return typed{"int64", data.Sum(as[int64](arg))}, nil
		case "float64":
			return typed{"float64", data.Sum(as[float64](arg))}, nil
		}
	case "avg":
		switch arg.kind {
		case "int64":
			return typed{"float64", data.Avg(as[int64](arg))}, nil
		case "float64":
			return typed{"float64", data.Avg(as[float64](arg))}, nil
		}
	case "min", "max":
		return extreme(name, arg), nil
	case "isnull":
		return typed{"bool", data.IsNull(arg.expr)}, nil
	case "notnull":
		return typed{"bool", data.IsNotNull(arg.expr)}, nil
	case "float":
		switch arg.kind {
		case "int64":
			return typed{"float64", data.ToFloat64(as[int64](arg))}, nil
		case "float64":
			return arg, nil
		}
	case "int":
		switch arg.kind {
		case "int64":
			return arg, nil
		case "float64":
			return typed{"int64", data.ToInt64(as[float64](arg))}, nil
		}
	case "text":
		return typed{"string", textOf(arg)}, nil
	default:
		return typed{}, c.fail("unknown function %s", name)
	}
	return typed{}, c.fail("%s does not accept %s", name, arg.kind)
}

func (c *exprCompiler) coalesce(args []typed) (typed, error) {
	if len(args) == 0 {
		return typed{}, c.fail("coalesce needs at least one argument")
	}
	kind := args[0].kind
	for _, a := range args[1:] {
		if a.kind != kind {
			return typed{}, c.fail("coalesce arguments must share a type, got %s and %s", kind, a.kind)
		}
	}
	switch kind {
	case "int64":
		return typed{kind, coalesceOf[int64](args)}, nil
	case "int32":
		return typed{kind, coalesceOf[int32](args)}, nil
	case "float64":
		return typed{kind, coalesceOf[float64](args)}, nil
	case "string":
		return typed{kind, coalesceOf[string](args)}, nil
	case "bool":
		return typed{kind, coalesceOf[bool](args)}, nil
	case "time":
		return typed{kind, coalesceOf[time.Time](args)}, nil
	}
	return typed{kind, coalesceOf[decimal.Decimal](args)}, nil
}

func coalesceOf[T any](args []typed) data.Expr[T] {
	rest := make([]data.Expr[T], 0, len(args)-1)
	for _, a := range args[1:] {
		rest = append(rest, as[T](a))
	}
	return data.Coalesce(as[T](args[0]), rest...)
}

func extreme(name string, arg typed) typed {
	pick := func(e typed) data.AnyExpr {
		switch e.kind {
		case "float64":
			return minMax(name, as[float64](e))
		case "string":
			return minMax(name, as[string](e))
		case "bool":
			return minMax(name, as[bool](e))
		case "time":
			return minMax(name, as[time.Time](e))
		case "decimal":
			return minMax(name, as[decimal.Decimal](e))
		}
		return minMax(name, as[int64](e))
	}
	return typed{arg.kind, pick(arg)}
}

func minMax[T any](name string, e data.Expr[T]) data.Expr[T] {
	if name == "min" {
		return data.Min(e)
	}
	return data.Max(e)
}

func textOf(arg typed) data.Expr[string] {
	switch arg.kind {
	case "int64":
		return data.ToText(as[int64](arg))
	case "float64":
		return data.ToText(as[float64](arg))
	case "bool":
		return data.ToText(as[bool](arg))
	case "time":
		return data.ToText(as[time.Time](arg))
	case "decimal":
		return data.ToText(as[decimal.Decimal](arg))
	}
	return as[string](arg)
}

// columnExpr wraps a column with its kind.
func columnExpr(col data.AnyColumn) (typed, error) {
	kind, ok := columnKind(col)
	if !ok {
		return typed{}, fmt.Errorf("column %s has an unsupported type", col.Name())
	}
	return typed{kind, col}, nil
}

func columnKind(col data.AnyColumn) (string, bool) {
	switch col.(type) {
	case *data.Column[int64]:
		return "int64", true
	case *data.Column[int32]:
		return "int32", true
	case *data.Column[float64]:
		return "float64", true
	case *data.Column[string]:
		return "string", true
	case *data.Column[bool]:
		return "bool", true
	case *data.Column[time.Time]:
		return "time", true
	case *data.Column[decimal.Decimal]:
		return "decimal", true
	}
	return "", false
}

// resolveColumn finds path relative to owner, then relative to each
// ancestor of owner.
func resolveColumn(owner *data.Model, path string) (data.AnyColumn, error) {
	var firstErr error
	for m := owner; m != nil; m = m.Parent() {
		col, err := data.ParseColumnPath(m, path)
		if err == nil {
			return col, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

// resolveModel finds a descendant model of owner by dotted path.
func resolveModel(owner *data.Model, path string) (*data.Model, bool) {
	m := owner
	for _, name := range strings.Split(path, ".") {
		child, ok := m.Child(name)
		if !ok {
			return nil, false
		}
		m = child
	}
	return m, true
}
