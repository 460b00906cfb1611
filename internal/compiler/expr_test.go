package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rdo/internal/data"
)

type exprFixture struct {
	order    *data.Model
	customer *data.Column[string]
	discount *data.Column[float64]
	items    *data.Model
	quantity *data.Column[int64]
	price    *data.Column[float64]
	small    *data.Column[int32]
}

func newExprFixture() *exprFixture {
	f := &exprFixture{}
	f.order = data.NewModel("Order")
	data.NewColumn(f.order, "ID", data.Int64).PrimaryKey()
	f.customer = data.NewColumn(f.order, "Customer", data.String)
	f.discount = data.NewColumn(f.order, "Discount", data.Float64)
	f.items = f.order.NewChild("Items")
	f.quantity = data.NewColumn(f.items, "Quantity", data.Int64)
	f.price = data.NewColumn(f.items, "Price", data.Float64)
	f.small = data.NewColumn(f.items, "Small", data.Int32)
	return f
}

func TestCompileExpr_Kinds(t *testing.T) {
	tests := []struct {
		name  string
		owner string
		src   string
		kind  string
	}{
		{"int arithmetic", "Items", "Quantity + 1", "int64"},
		{"mixed arithmetic", "Items", "Quantity * Price", "float64"},
		{"int32 widens", "Items", "Small + Quantity", "int64"},
		{"ancestor column", "Items", "Price - Discount", "float64"},
		{"negation", "Items", "-Quantity", "int64"},
		{"comparison", "Items", "Quantity > 2", "bool"},
		{"logic", "Order", `Customer != "" && Discount >= 0`, "bool"},
		{"not", "Order", "!(Discount > 1)", "bool"},
		{"count rows", "Order", "count(Items)", "int64"},
		{"count values", "Order", "count(Items.Price)", "int64"},
		{"sum", "Order", "sum(Items.Quantity)", "int64"},
		{"avg", "Order", "avg(Items.Quantity)", "float64"},
		{"max", "Order", "max(Items.Price)", "float64"},
		{"isnull", "Order", "isnull(Discount)", "bool"},
		{"coalesce", "Order", "coalesce(Discount, 0.0)", "float64"},
		{"float cast", "Items", "float(Quantity) / 2", "float64"},
		{"int cast", "Items", "int(Price)", "int64"},
		{"text", "Items", "text(Quantity)", "string"},
		{"parenthesized", "Items", "(Quantity + 1) * 2", "int64"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newExprFixture()
			owner := f.order
			if tt.owner == "Items" {
				owner = f.items
			}
			got, err := compileExpr(owner, tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, got.kind)
		})
	}
}

func TestCompileExpr_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"unknown column", "Missing + 1", "Missing"},
		{"string arithmetic", "Customer * 2", "numeric"},
		{"mismatched compare", `Discount == "x"`, "cannot compare"},
		{"bool operand", "Discount && true", "bool operands"},
		{"unknown function", "frob(Discount)", "unknown function"},
		{"sum of string", "sum(Customer)", "does not accept string"},
		{"arity", "sum(Discount, Discount)", "one argument"},
		{"syntax", "Discount +", ""},
		{"coalesce types", `coalesce(Discount, "x")`, "share a type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newExprFixture()
			_, err := compileExpr(f.order, tt.src)
			require.Error(t, err)

			var exprErr *ExprError
			require.ErrorAs(t, err, &exprErr)
			assert.Equal(t, tt.src, exprErr.Expr)
			assert.Contains(t, exprErr.Message, tt.want)
		})
	}
}

func TestCompileExpr_Evaluates(t *testing.T) {
	f := newExprFixture()
	amount, err := compileExpr(f.items, "Quantity * Price - Discount")
	require.NoError(t, err)
	big, err := compileExpr(f.items, `Quantity >= 3 && text(Quantity) == "3"`)
	require.NoError(t, err)

	ds, err := data.NewDataSet(f.order)
	require.NoError(t, err)
	order, err := ds.AddRow(func(r *data.DataRow) error {
		return f.discount.Set(r, 0.5)
	})
	require.NoError(t, err)
	item, err := order.Children(f.items).AddRow(func(r *data.DataRow) error {
		if err := f.quantity.Set(r, 3); err != nil {
			return err
		}
		return f.price.Set(r, 2.5)
	})
	require.NoError(t, err)

	assert.Equal(t, data.Some(7.0), as[float64](amount).Eval(item))
	assert.Equal(t, data.Some(true), as[bool](big).Eval(item))
}

func TestCompileExpr_NullPropagates(t *testing.T) {
	f := newExprFixture()
	e, err := compileExpr(f.items, "Quantity * Price")
	require.NoError(t, err)

	ds, err := data.NewDataSet(f.order)
	require.NoError(t, err)
	order, err := ds.AddRow(nil)
	require.NoError(t, err)
	item, err := order.Children(f.items).AddRow(func(r *data.DataRow) error {
		return f.quantity.Set(r, 3)
	})
	require.NoError(t, err)

	assert.False(t, as[float64](e).Eval(item).Valid)
}
