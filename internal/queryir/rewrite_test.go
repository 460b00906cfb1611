package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReplaceColumns_SharesUnchangedNodes(t *testing.T) {
	o := testOwner("t")
	a, b := col(o, "a"), col(o, "b")
	e := &Binary{Op: OpAdd, Left: Ref(a), Right: &Param{Value: 1}}

	got := ReplaceColumns(e, ReplaceWith(map[Column]Expr{b: &Null{}}))
	assert.Same(t, e, got)
}

func TestReplaceColumns_RewritesNestedReferences(t *testing.T) {
	o, n := testOwner("t"), testOwner("n")
	a, b := col(o, "a"), col(o, "b")
	na := col(n, "a")

	e := &Func{Name: "COALESCE", Args: []Expr{
		&Cast{Operand: Ref(a), Type: "REAL"},
		&Unary{Op: OpNeg, Operand: Ref(b)},
	}}
	got := ReplaceColumns(e, ReplaceWith(map[Column]Expr{a: Ref(na)}))

	want := &Func{Name: "COALESCE", Args: []Expr{
		&Cast{Operand: Ref(na), Type: "REAL"},
		&Unary{Op: OpNeg, Operand: Ref(b)},
	}}
	assert.Equal(t, want, got)
	assert.Equal(t, Ref(a), e.Args[0].(*Cast).Operand, "input is not modified")
}

func TestReplaceInSelect(t *testing.T) {
	s := simpleSelect()
	orders := s.From.(*Table).Owner
	id := s.Columns[0].Source.(*ColumnRef).Column
	s.Where = Eq(Ref(id), &Param{Value: 7})
	s.OrderBy = []Sort{{Expr: Ref(id), Desc: true}}

	repl := &Param{Value: 1}
	got := ReplaceInSelect(s, func(c Column) Expr {
		if c.DbOwner() == orders && c.DbColumnName() == "id" {
			return repl
		}
		return nil
	})

	assert.Same(t, repl, got.Columns[0].Source)
	assert.Equal(t, Eq(repl, &Param{Value: 7}), got.Where)
	assert.Equal(t, []Sort{{Expr: repl, Desc: true}}, got.OrderBy)
	assert.Same(t, s.From, got.From)
	assert.Equal(t, Ref(id), s.Columns[0].Source, "input is not modified")
}

func TestWalkColumns(t *testing.T) {
	o := testOwner("t")
	a, b := col(o, "a"), col(o, "b")
	e := And(Eq(Ref(a), &Param{Value: 1}), nil, &Unary{Op: OpIsNull, Operand: Ref(b)})

	var seen []string
	WalkColumns(e, func(c Column) { seen = append(seen, c.DbColumnName()) })
	assert.Equal(t, []string{"a", "b"}, seen)
}

func TestAnd(t *testing.T) {
	assert.Nil(t, And(nil, nil))
	p := &Param{Value: true}
	assert.Same(t, p, And(nil, p))
}

func TestContainsAggregate(t *testing.T) {
	o := testOwner("t")
	sum := &Func{Name: "SUM", Args: []Expr{Ref(col(o, "a"))}}

	assert.True(t, ContainsAggregate(&Binary{Op: OpMul, Left: sum, Right: &Param{Value: 2}}))
	assert.False(t, ContainsAggregate(&Func{Name: "COALESCE", Args: []Expr{Ref(col(o, "a"))}}))
	assert.False(t, ContainsAggregate(&Exists{Query: &Select{Columns: []Mapping{{Source: sum}}}}))

	s := simpleSelect()
	assert.True(t, s.IsSimple())
	s.Columns[0].Source = sum
	assert.False(t, s.IsSimple())
}
