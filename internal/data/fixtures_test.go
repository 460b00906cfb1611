package data

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// orderSchema is the Order / OrderItem schema shared by the tests.
type orderSchema struct {
	order     *Model
	id        *Column[int64]
	customer  *Column[string]
	discount  *Column[float64]
	itemCount *Column[int64]
	total     *Column[float64]

	items    *Model
	itemID   *Column[int64]
	orderID  *Column[int64]
	quantity *Column[int64]
	price    *Column[float64]
	amount   *Column[float64]
}

func newOrderSchema() *orderSchema {
	s := &orderSchema{}
	s.order = NewModel("Order")
	s.id = NewIdentity(s.order, "ID", 1, 1).PrimaryKey()
	s.customer = NewColumn(s.order, "Customer", String)
	s.discount = NewColumn(s.order, "Discount", Float64).Default(0)

	s.items = s.order.NewChild("Items")
	s.itemID = NewColumn(s.items, "ItemID", Int64).PrimaryKey()
	s.orderID = NewColumn(s.items, "OrderID", Int64)
	Relate(s.orderID, s.id)
	s.quantity = NewColumn(s.items, "Quantity", Int64)
	s.price = NewColumn(s.items, "Price", Float64)
	s.amount = NewColumn(s.items, "Amount", Float64).
		ComputedAs(Sub[float64](Mul[float64](ToFloat64[int64](s.quantity), s.price), s.discount))

	s.itemCount = NewColumn(s.order, "ItemCount", Int64).ComputedAs(CountRows(s.items))
	s.total = NewColumn(s.order, "Total", Float64).ComputedAs(Sum[float64](s.amount))
	return s
}

func newOrderDataSet(t *testing.T) (*orderSchema, *DataSet) {
	t.Helper()
	s := newOrderSchema()
	ds, err := NewDataSet(s.order)
	require.NoError(t, err)
	return s, ds
}

func (s *orderSchema) addOrder(t *testing.T, ds *DataSet, id int64, customer string) *DataRow {
	t.Helper()
	row, err := ds.AddRow(func(r *DataRow) error {
		if err := s.id.Set(r, id); err != nil {
			return err
		}
		return s.customer.Set(r, customer)
	})
	require.NoError(t, err)
	return row
}

func (s *orderSchema) addItem(t *testing.T, order *DataRow, itemID, qty int64, price float64) *DataRow {
	t.Helper()
	row, err := order.Children(s.items).AddRow(func(r *DataRow) error {
		if err := s.itemID.Set(r, itemID); err != nil {
			return err
		}
		if err := s.quantity.Set(r, qty); err != nil {
			return err
		}
		return s.price.Set(r, price)
	})
	require.NoError(t, err)
	return row
}

// recorder collects events in order.
type recorder struct {
	events []Event
}

func record(m *Model) *recorder {
	r := &recorder{}
	m.Subscribe(func(e Event) { r.events = append(r.events, e) })
	return r
}

func (r *recorder) kinds() []EventKind {
	out := make([]EventKind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

func (r *recorder) count(kind EventKind, m *Model) int {
	n := 0
	for _, e := range r.events {
		if e.Kind == kind && (m == nil || e.Row.Model() == m) {
			n++
		}
	}
	return n
}

func (r *recorder) reset() { r.events = nil }
