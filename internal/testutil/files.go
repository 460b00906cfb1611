package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// ShopSchema is an order with line items: an identity key, a child relation,
// aggregates over the children and row validators on both levels.
const ShopSchema = `schema: "shop"

models: Order: {
	table: "orders"
	columns: {
		ID: {type: "int64", identity: {seed: 100}, primary_key: true}
		Customer: {type: "string", not_null: true, db_name: "customer"}
		Discount: {type: "float64", default: 0}
		ItemCount: {type: "int64", computed: "count(Items)"}
		Total: {type: "float64", computed: "sum(Items.Amount)"}
	}
	validators: [
		{required: "Customer"},
		{warn: "Total < 1000", message: "large order"},
	]
	children: Items: {
		table: "order_items"
		relate: OrderID: "ID"
		columns: {
			ItemID: {type: "int64", primary_key: true}
			OrderID: "int64"
			Quantity: {type: "int64", not_null: true}
			Price: "float64"
			Amount: {type: "float64", computed: "Quantity * Price - Discount"}
		}
		unique: by_order: ["OrderID", "ItemID"]
		validators: [{check: "Quantity > 0", message: "quantity must be positive"}]
	}
}
`

// WriteFile writes content to name under dir and returns the full path.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// WriteShopSchema writes ShopSchema to shop.cue under dir.
func WriteShopSchema(t *testing.T, dir string) string {
	t.Helper()
	return WriteFile(t, dir, "shop.cue", ShopSchema)
}
