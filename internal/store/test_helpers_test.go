package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/rdo/internal/data"
	"github.com/roach88/rdo/internal/dbquery"
)

// sequentialNames returns a NameFunc producing prefix_1, prefix_2, ...
func sequentialNames() NameFunc {
	n := 0
	return func(prefix string) string {
		n++
		return fmt.Sprintf("%s_%d", prefix, n)
	}
}

// createTestSession opens a session on a new database file.
func createTestSession(t *testing.T) *Session {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithNames(sequentialNames()))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// shop is an Order / Items schema. Each test that binds a DataSet needs its
// own instance.
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

	ordersTable *dbquery.TableSource
	itemsTable  *dbquery.TableSource
}

func newShop(seed int64) *shop {
	s := &shop{}
	s.orders = data.NewModel("Order")
	s.id = data.NewIdentity(s.orders, "ID", seed, 1).PrimaryKey().DbName("id")
	s.customer = data.NewColumn(s.orders, "Customer", data.String).NotNull().DbName("customer")

	s.items = s.orders.NewChild("Items")
	s.itemID = data.NewColumn(s.items, "ItemID", data.Int64).PrimaryKey().DbName("item_id")
	s.orderID = data.NewColumn(s.items, "OrderID", data.Int64).DbName("order_id")
	data.Relate(s.orderID, s.id)
	s.quantity = data.NewColumn(s.items, "Quantity", data.Int64).DbName("quantity")
	s.price = data.NewColumn(s.items, "Price", data.Float64).DbName("price")

	s.itemCount = data.NewColumn(s.orders, "ItemCount", data.Int64).ComputedAs(data.CountRows(s.items))

	s.ordersTable = dbquery.Table(s.orders, "orders")
	s.itemsTable = dbquery.Table(s.items, "order_items")
	return s
}

func (s *shop) createTables(t *testing.T, sess *Session) {
	t.Helper()
	err := sess.CreateTables(context.Background(),
		Table{Source: s.ordersTable},
		Table{Source: s.itemsTable, Parent: s.ordersTable},
	)
	require.NoError(t, err)
}

func (s *shop) addOrder(t *testing.T, ds *data.DataSet, customer string) *data.DataRow {
	t.Helper()
	row, err := ds.AddRow(func(r *data.DataRow) error {
		return s.customer.Set(r, customer)
	})
	require.NoError(t, err)
	return row
}

func (s *shop) addItem(t *testing.T, order *data.DataRow, itemID, quantity int64, price float64) *data.DataRow {
	t.Helper()
	row, err := order.Children(s.items).AddRow(func(r *data.DataRow) error {
		if err := s.itemID.Set(r, itemID); err != nil {
			return err
		}
		if err := s.quantity.Set(r, quantity); err != nil {
			return err
		}
		return s.price.Set(r, price)
	})
	require.NoError(t, err)
	return row
}

// catalog is a single-level schema keyed by a text SKU.
type catalog struct {
	products *data.Model
	sku      *data.Column[string]
	name     *data.Column[string]
	price    *data.Column[float64]
	table    *dbquery.TableSource
}

func newCatalog() *catalog {
	c := &catalog{}
	c.products = data.NewModel("Product")
	c.sku = data.NewColumn(c.products, "SKU", data.String).PrimaryKey().DbName("sku")
	c.name = data.NewColumn(c.products, "Name", data.String).DbName("name")
	c.price = data.NewColumn(c.products, "Price", data.Float64).DbName("price")
	c.table = dbquery.Table(c.products, "products")
	return c
}

func (c *catalog) dataSet(t *testing.T, rows ...string) *data.DataSet {
	t.Helper()
	ds, err := data.NewDataSet(c.products)
	require.NoError(t, err)
	for i := 0; i+1 < len(rows); i += 2 {
		sku, name := rows[i], rows[i+1]
		_, err := ds.AddRow(func(r *data.DataRow) error {
			if err := c.sku.Set(r, sku); err != nil {
				return err
			}
			if err := c.name.Set(r, name); err != nil {
				return err
			}
			return c.price.Set(r, float64(len(name)))
		})
		require.NoError(t, err)
	}
	return ds
}

// count returns the number of rows in a table.
func count(t *testing.T, sess *Session, table string) int {
	t.Helper()
	var n int
	require.NoError(t, sess.DB().QueryRow(`SELECT COUNT(*) FROM "`+table+`"`).Scan(&n))
	return n
}
