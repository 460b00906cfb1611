package queryir

// Replacer maps a referenced column to an expression that replaces the
// reference. It returns nil to keep the reference.
type Replacer func(c Column) Expr

// ReplaceColumns returns a copy of e with every column reference rewritten
// by r. Subqueries of Exists are rewritten too. Nodes without replaced
// references are shared, not copied.
func ReplaceColumns(e Expr, r Replacer) Expr {
	switch x := e.(type) {
	case nil:
		return nil
	case *ColumnRef:
		if repl := r(x.Column); repl != nil {
			return repl
		}
		return x
	case *Binary:
		l, rr := ReplaceColumns(x.Left, r), ReplaceColumns(x.Right, r)
		if l == x.Left && rr == x.Right {
			return x
		}
		return &Binary{Op: x.Op, Left: l, Right: rr}
	case *Unary:
		o := ReplaceColumns(x.Operand, r)
		if o == x.Operand {
			return x
		}
		return &Unary{Op: x.Op, Operand: o}
	case *Func:
		args, changed := replaceAll(x.Args, r)
		if !changed {
			return x
		}
		return &Func{Name: x.Name, Args: args, Star: x.Star}
	case *Cast:
		o := ReplaceColumns(x.Operand, r)
		if o == x.Operand {
			return x
		}
		return &Cast{Operand: o, Type: x.Type}
	case *Exists:
		return &Exists{Query: ReplaceInSelect(x.Query, r)}
	}
	return e
}

func replaceAll(es []Expr, r Replacer) ([]Expr, bool) {
	out := make([]Expr, len(es))
	changed := false
	for i, e := range es {
		out[i] = ReplaceColumns(e, r)
		changed = changed || out[i] != e
	}
	return out, changed
}

// ReplaceInSelect rewrites the expressions of s (select list sources, WHERE,
// GROUP BY, HAVING, ORDER BY and join conditions) with r. The FROM sources
// themselves are kept.
func ReplaceInSelect(s *Select, r Replacer) *Select {
	out := *s
	out.Columns = make([]Mapping, len(s.Columns))
	for i, m := range s.Columns {
		out.Columns[i] = Mapping{Source: ReplaceColumns(m.Source, r), Target: m.Target}
	}
	out.From = replaceInSource(s.From, r)
	out.Where = ReplaceColumns(s.Where, r)
	out.GroupBy, _ = replaceAll(s.GroupBy, r)
	out.Having = ReplaceColumns(s.Having, r)
	out.OrderBy = ReplaceSorts(s.OrderBy, r)
	return &out
}

// ReplaceSorts rewrites ORDER BY terms with r.
func ReplaceSorts(sorts []Sort, r Replacer) []Sort {
	if sorts == nil {
		return nil
	}
	out := make([]Sort, len(sorts))
	for i, s := range sorts {
		out[i] = Sort{Expr: ReplaceColumns(s.Expr, r), Desc: s.Desc}
	}
	return out
}

func replaceInSource(src Source, r Replacer) Source {
	j, ok := src.(*Join)
	if !ok {
		return src
	}
	return &Join{
		Kind:  j.Kind,
		Left:  replaceInSource(j.Left, r),
		Right: replaceInSource(j.Right, r),
		On:    ReplaceColumns(j.On, r),
	}
}

// ReplaceWith returns a Replacer that substitutes the columns in m.
func ReplaceWith(m map[Column]Expr) Replacer {
	return func(c Column) Expr {
		return m[c]
	}
}

// WalkColumns calls fn for every column referenced by e.
func WalkColumns(e Expr, fn func(Column)) {
	switch x := e.(type) {
	case *ColumnRef:
		fn(x.Column)
	case *Binary:
		WalkColumns(x.Left, fn)
		WalkColumns(x.Right, fn)
	case *Unary:
		WalkColumns(x.Operand, fn)
	case *Func:
		for _, a := range x.Args {
			WalkColumns(a, fn)
		}
	case *Cast:
		WalkColumns(x.Operand, fn)
	case *Exists:
		WalkColumns(x.Query.Where, fn)
	}
}

// ContainsAggregate reports whether e calls an aggregate function outside of
// a subquery.
func ContainsAggregate(e Expr) bool {
	switch x := e.(type) {
	case *Func:
		if x.IsAggregate() {
			return true
		}
		for _, a := range x.Args {
			if ContainsAggregate(a) {
				return true
			}
		}
	case *Binary:
		return ContainsAggregate(x.Left) || ContainsAggregate(x.Right)
	case *Unary:
		return ContainsAggregate(x.Operand)
	case *Cast:
		return ContainsAggregate(x.Operand)
	}
	return false
}
