package dbquery

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/rdo/internal/data"
	"github.com/roach88/rdo/internal/queryir"
	"github.com/roach88/rdo/internal/querysql"
)

// shop is an Order / Items schema with snake_case database names.
type shop struct {
	orders    *data.Model
	id        *data.Column[int64]
	customer  *data.Column[string]
	itemCount *data.Column[int64]

	items    *data.Model
	itemID   *data.Column[int64]
	orderID  *data.Column[int64]
	quantity *data.Column[int64]
	price    *data.Column[float64]
	amount   *data.Column[float64]

	ordersTable *TableSource
	itemsTable  *TableSource
}

func newShop() *shop {
	s := &shop{}
	s.orders = data.NewModel("Order")
	s.id = data.NewIdentity(s.orders, "ID", 1, 1).PrimaryKey().DbName("id")
	s.customer = data.NewColumn(s.orders, "Customer", data.String).NotNull().DbName("customer")

	s.items = s.orders.NewChild("Items")
	s.itemID = data.NewColumn(s.items, "ItemID", data.Int64).PrimaryKey().DbName("item_id")
	s.orderID = data.NewColumn(s.items, "OrderID", data.Int64).DbName("order_id")
	data.Relate(s.orderID, s.id)
	s.quantity = data.NewColumn(s.items, "Quantity", data.Int64).DbName("quantity")
	s.price = data.NewColumn(s.items, "Price", data.Float64).DbName("price")
	s.amount = data.NewColumn(s.items, "Amount", data.Float64).
		ComputedAs(data.Mul[float64](data.ToFloat64[int64](s.quantity), s.price))

	s.itemCount = data.NewColumn(s.orders, "ItemCount", data.Int64).ComputedAs(data.CountRows(s.items))

	s.ordersTable = Table(s.orders, "orders")
	s.itemsTable = Table(s.items, "order_items")
	return s
}

// orderQuery selects every order of customer.
func (s *shop) orderQuery(customer string) *Builder {
	return NewBuilder(s.orders).
		From(s.ordersTable).
		SelectAll(s.ordersTable).
		Where(data.Eq[string](s.customer, data.Const(data.String, customer)))
}

func compile(t *testing.T, stmt queryir.Statement) (string, []any) {
	t.Helper()
	sql, params, err := querysql.NewSQLCompiler().Compile(stmt)
	require.NoError(t, err)
	return sql, params
}

func build(t *testing.T, b *Builder) *Query {
	t.Helper()
	q, err := b.BuildQueryStatement()
	require.NoError(t, err)
	return q
}
