package compiler

import "github.com/roach88/rdo/internal/ir"

// shopSpec is the in-memory form of testdata/shop.cue.
func shopSpec() *ir.SchemaSpec {
	return &ir.SchemaSpec{
		Name: "shop",
		Models: []ir.ModelSpec{{
			Name:  "Order",
			Table: "orders",
			Columns: []ir.ColumnSpec{
				{Name: "ID", Type: "int64", Identity: &ir.IdentitySpec{Seed: 100, Increment: 1}},
				{Name: "Customer", Type: "string", NotNull: true, DbName: "customer"},
				{Name: "Discount", Type: "float64", Default: "0"},
				{Name: "ItemCount", Type: "int64", Computed: "count(Items)"},
				{Name: "Total", Type: "float64", Computed: "sum(Items.Amount)"},
			},
			PrimaryKey: []string{"ID"},
			Validators: []ir.ValidatorSpec{
				{Required: "Customer"},
				{Warn: "Total < 1000", Message: "large order"},
			},
			Children: []ir.ModelSpec{{
				Name:      "Items",
				Table:     "order_items",
				Relations: []ir.RelationSpec{{Child: "OrderID", Parent: "ID"}},
				Columns: []ir.ColumnSpec{
					{Name: "ItemID", Type: "int64"},
					{Name: "OrderID", Type: "int64"},
					{Name: "Quantity", Type: "int64", NotNull: true},
					{Name: "Price", Type: "float64"},
					{Name: "Amount", Type: "float64", Computed: "Quantity * Price - Discount"},
				},
				PrimaryKey: []string{"ItemID"},
				Unique:     []ir.UniqueSpec{{Name: "by_order", Columns: []string{"OrderID", "ItemID"}}},
				Validators: []ir.ValidatorSpec{
					{Check: "Quantity > 0", Message: "quantity must be positive"},
				},
			}},
		}},
	}
}

// computedSpec returns a single-model spec with the given computed columns
// over a stored int64 column Base.
func computedSpec(computed map[string]string, order ...string) *ir.SchemaSpec {
	m := ir.ModelSpec{
		Name:    "Order",
		Columns: []ir.ColumnSpec{{Name: "Base", Type: "int64"}},
	}
	for _, name := range order {
		m.Columns = append(m.Columns, ir.ColumnSpec{Name: name, Type: "int64", Computed: computed[name]})
	}
	return &ir.SchemaSpec{Name: "test", Models: []ir.ModelSpec{m}}
}
