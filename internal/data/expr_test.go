package data

import (
	"database/sql"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rdo/internal/queryir"
)

func TestExpr_ThreeValuedLogic(t *testing.T) {
	tr, fa, nu := Const(Bool, true), Const(Bool, false), Null(Bool)

	testCases := []struct {
		name string
		expr Expr[bool]
		want sql.Null[bool]
	}{
		{"true and null", And(tr, nu), None[bool]()},
		{"false and null", And(nu, fa), Some(false)},
		{"true or null", Or(nu, tr), Some(true)},
		{"false or null", Or(fa, nu), None[bool]()},
		{"not null", Not(nu), None[bool]()},
		{"not false", Not(fa), Some(true)},
		{"null equals null", Eq[int64](Null(Int64), Null(Int64)), None[bool]()},
		{"is null", IsNull(Null(String)), Some(true)},
		{"is not null", IsNotNull(Const(String, "")), Some(true)},
		{"less than", Lt[string](Const(String, "a"), Const(String, "b")), Some(true)},
		{"decimal equality ignores scale", Eq[decimal.Decimal](
			Const(Decimal, decimal.RequireFromString("1.50")),
			Const(Decimal, decimal.RequireFromString("1.5"))), Some(true)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.expr.Eval(nil))
		})
	}
}

func TestExpr_Arithmetic(t *testing.T) {
	two, zero := Const(Int64, 2), Const(Int64, 0)

	assert.Equal(t, Some(int64(4)), Add[int64](two, two).Eval(nil))
	assert.Equal(t, Some(int64(1)), Div[int64](Const(Int64, 3), two).Eval(nil))
	assert.Equal(t, None[int64](), Div[int64](two, zero).Eval(nil), "division by zero is null")
	assert.Equal(t, None[int64](), Sub[int64](two, Null(Int64)).Eval(nil))
	assert.Equal(t, Some(1.5), Div[float64](ToFloat64[int64](Const(Int64, 3)), Const(Float64, 2)).Eval(nil))
	assert.Equal(t, Some(int64(2)), ToInt64[float64](Const(Float64, 2.9)).Eval(nil))
	assert.Equal(t, Some("42"), ToText[int64](Const(Int64, 42)).Eval(nil))
	assert.Equal(t, Some(int64(7)), Coalesce[int64](Null(Int64), Const(Int64, 7), two).Eval(nil))
}

func TestExpr_Aggregates(t *testing.T) {
	s, ds := newOrderDataSet(t)
	order := s.addOrder(t, ds, 1, "ada")
	s.addItem(t, order, 1, 2, 5)
	s.addItem(t, order, 2, 1, 1)
	s.addItem(t, order, 3, 4, 2)

	testCases := []struct {
		name string
		got  any
		want any
	}{
		{"sum", Sum[int64](s.quantity).Eval(order), Some(int64(7))},
		{"avg", Avg[float64](s.price).Eval(order), Some(8.0 / 3)},
		{"count", Count(s.price).Eval(order), Some(int64(3))},
		{"min", Min[float64](s.price).Eval(order), Some(1.0)},
		{"max", Max[int64](s.itemID).Eval(order), Some(int64(3))},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.got)
		})
	}

	empty := s.addOrder(t, ds, 2, "grace")
	assert.False(t, Min[float64](s.price).Eval(empty).Valid)
	assert.Equal(t, Some(int64(0)), Count(s.price).Eval(empty))
}

func TestExpr_DbExpr(t *testing.T) {
	s := newOrderSchema()

	got := s.amount.expression().DbExpr()
	sub, ok := got.(*queryir.Binary)
	require.True(t, ok)
	assert.Equal(t, queryir.OpSub, sub.Op)
	assert.Equal(t, &queryir.ColumnRef{Column: s.discount}, sub.Right)

	mul := sub.Left.(*queryir.Binary)
	assert.Equal(t, &queryir.Cast{Operand: &queryir.ColumnRef{Column: s.quantity}, Type: "REAL"}, mul.Left)

	count := CountRows(s.items).DbExpr().(*queryir.Func)
	assert.True(t, count.Star)
	assert.True(t, count.IsAggregate())
}
