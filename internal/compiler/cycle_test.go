package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rdo/internal/ir"
)

// TestAnalyzeCycles_Empty tests that a spec without models has no cycles.
func TestAnalyzeCycles_Empty(t *testing.T) {
	assert.Empty(t, AnalyzeCycles(&ir.SchemaSpec{Name: "empty"}))
}

// TestAnalyzeCycles_DAG tests that chained computations across models are
// not reported.
func TestAnalyzeCycles_DAG(t *testing.T) {
	assert.Empty(t, AnalyzeCycles(shopSpec()))
}

func TestAnalyzeCycles_SelfLoop(t *testing.T) {
	spec := computedSpec(map[string]string{"A": "A + Base"}, "A")

	cycles := AnalyzeCycles(spec)
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"Order.A", "Order.A"}, cycles[0].Path)
	assert.Equal(t, "computation cycle: Order.A → Order.A", cycles[0].Message)
}

func TestAnalyzeCycles_TwoColumns(t *testing.T) {
	spec := computedSpec(map[string]string{
		"A": "B + 1",
		"B": "A * 2",
		"C": "Base + 1",
	}, "A", "B", "C")

	cycles := AnalyzeCycles(spec)
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"Order.A", "Order.B", "Order.A"}, cycles[0].Path)
}

// TestAnalyzeCycles_ThreeColumns tests that the reported path is the
// shortest cycle through the first member.
func TestAnalyzeCycles_ThreeColumns(t *testing.T) {
	spec := computedSpec(map[string]string{
		"A": "B",
		"B": "C",
		"C": "A + B",
	}, "A", "B", "C")

	cycles := AnalyzeCycles(spec)
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"Order.A", "Order.B", "Order.C", "Order.A"}, cycles[0].Path)
}

func TestAnalyzeCycles_AcrossModels(t *testing.T) {
	spec := shopSpec()
	items := &spec.Models[0].Children[0]
	amount, ok := items.Column("Amount")
	require.True(t, ok)
	amount.Computed = "Quantity * Price - Total"

	cycles := AnalyzeCycles(spec)
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"Order.Items.Amount", "Order.Total", "Order.Items.Amount"}, cycles[0].Path)
}

func TestAnalyzeCycles_Independent(t *testing.T) {
	spec := computedSpec(map[string]string{
		"A": "B",
		"B": "A",
		"X": "Y",
		"Y": "X",
	}, "A", "B", "X", "Y")

	cycles := AnalyzeCycles(spec)
	require.Len(t, cycles, 2)
	assert.Equal(t, "Order.A", cycles[0].Path[0])
	assert.Equal(t, "Order.X", cycles[1].Path[0])
}

// TestAnalyzeCycles_SkipsUnparseable tests that syntax errors are left to
// Validate.
func TestAnalyzeCycles_SkipsUnparseable(t *testing.T) {
	spec := computedSpec(map[string]string{"A": "A +"}, "A")
	assert.Empty(t, AnalyzeCycles(spec))
}
