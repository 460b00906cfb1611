package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestModelSpec_Lookup(t *testing.T) {
	spec := sampleSpec()
	order := &spec.Models[0]

	c, ok := order.Column("Customer")
	assert.True(t, ok)
	assert.True(t, c.NotNull)

	_, ok = order.Column("Missing")
	assert.False(t, ok)

	items, ok := order.Child("Items")
	assert.True(t, ok)
	assert.Equal(t, "order_items", items.Table)
}

func TestModelSpec_Walk(t *testing.T) {
	spec := sampleSpec()
	var paths []string
	spec.Models[0].Walk(func(path string, _ *ModelSpec) {
		paths = append(paths, path)
	})
	assert.Equal(t, []string{"Order", "Order.Items"}, paths)
}
