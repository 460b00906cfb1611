package querysql

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rdo/internal/queryir"
)

// fixture owners and columns for an orders/items schema.
var (
	orders = &queryir.NamedOwner{Name: "orders"}
	items  = &queryir.NamedOwner{Name: "items"}
	stage  = &queryir.NamedOwner{Name: "stage"}
	out    = &queryir.NamedOwner{Name: "out"}
)

func c(o queryir.Owner, name string) *queryir.SysColumn {
	return &queryir.SysColumn{Owner: o, Name: name}
}

func ref(o queryir.Owner, name string) queryir.Expr {
	return queryir.Ref(c(o, name))
}

func param(v any) *queryir.Param { return &queryir.Param{Value: v} }

func table(o *queryir.NamedOwner) *queryir.Table {
	return &queryir.Table{Owner: o, Name: o.Name}
}

func project(owner queryir.Owner, from queryir.Source, src queryir.Owner, names ...string) *queryir.Select {
	s := queryir.NewSelect(owner)
	s.From = from
	for _, n := range names {
		s.Columns = append(s.Columns, queryir.Mapping{Source: ref(src, n), Target: c(owner, n)})
	}
	return s
}

func TestCompile_SimpleSelect(t *testing.T) {
	compiler := NewSQLCompiler()

	s := project(out, table(orders), orders, "id", "customer")
	s.Where = queryir.Eq(ref(orders, "customer"), param("ada"))
	s.OrderBy = []queryir.Sort{{Expr: ref(orders, "id")}}

	sql, params, err := compiler.Compile(s)
	require.NoError(t, err)

	assert.Equal(t, `SELECT t0."id" AS "id", t0."customer" AS "customer" FROM "orders" AS t0 `+
		`WHERE t0."customer" = ? ORDER BY t0."id"`, sql)
	assert.NotContains(t, sql, "ada")
	assert.Equal(t, []any{"ada"}, params)
}

func TestCompile_Join(t *testing.T) {
	compiler := NewSQLCompiler()

	from := &queryir.Join{
		Kind: queryir.JoinInner, Left: table(orders), Right: table(items),
		On: queryir.Eq(ref(items, "order_id"), ref(orders, "id")),
	}
	s := project(out, from, items, "amount")
	s.OrderBy = []queryir.Sort{{Expr: ref(orders, "id")}, {Expr: ref(items, "item_id"), Desc: true}}

	sql, _, err := compiler.Compile(s)
	require.NoError(t, err)
	assert.Equal(t, `SELECT t1."amount" AS "amount" FROM "orders" AS t0 INNER JOIN "items" AS t1 `+
		`ON t1."order_id" = t0."id" ORDER BY t0."id", t1."item_id" DESC`, sql)
}

func TestCompile_ParamsInTextualOrder(t *testing.T) {
	compiler := NewSQLCompiler()

	from := &queryir.Join{
		Kind: queryir.JoinLeft, Left: table(orders), Right: table(items),
		On: queryir.And(queryir.Eq(ref(items, "order_id"), ref(orders, "id")),
			&queryir.Binary{Op: queryir.OpGt, Left: ref(items, "qty"), Right: param(2)}),
	}
	s := queryir.NewSelect(out)
	s.From = from
	s.Columns = []queryir.Mapping{
		{Source: param(1), Target: c(out, "one")},
		{Source: ref(orders, "id"), Target: c(out, "id")},
	}
	s.Where = queryir.Eq(ref(orders, "customer"), param(3))
	s.Having = nil

	sql, params, err := compiler.Compile(s)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(sql, "?"))
	assert.Equal(t, []any{1, 2, 3}, params)
}

func TestCompile_DerivedTable(t *testing.T) {
	compiler := NewSQLCompiler()
	inner := &queryir.NamedOwner{Name: "inner"}

	sub := project(inner, table(orders), orders, "id")
	sub.Where = &queryir.Binary{Op: queryir.OpGt, Left: ref(orders, "id"), Right: param(10)}
	outer := project(out, sub, inner, "id")
	outer.Where = queryir.Eq(ref(inner, "id"), param(11))

	sql, params, err := compiler.Compile(outer)
	require.NoError(t, err)
	assert.Equal(t, `SELECT t1."id" AS "id" FROM (SELECT t0."id" AS "id" FROM "orders" AS t0 WHERE t0."id" > ?) AS t1 `+
		`WHERE t1."id" = ?`, sql)
	assert.Equal(t, []any{10, 11}, params)
}

func TestCompile_OffsetFetch(t *testing.T) {
	compiler := NewSQLCompiler()

	testCases := []struct {
		name          string
		offset, fetch int
		want          string
	}{
		{"fetch", -1, 10, " LIMIT 10"},
		{"offset and fetch", 5, 10, " LIMIT 10 OFFSET 5"},
		{"offset", 5, -1, " LIMIT -1 OFFSET 5"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := project(out, table(orders), orders, "id")
			s.OrderBy = []queryir.Sort{{Expr: ref(orders, "id")}}
			s.Offset, s.Fetch = tc.offset, tc.fetch

			sql, _, err := compiler.Compile(s)
			require.NoError(t, err)
			assert.True(t, strings.HasSuffix(sql, tc.want), sql)
		})
	}
}

func TestCompile_Precedence(t *testing.T) {
	a, b, x := ref(orders, "a"), ref(orders, "b"), ref(orders, "x")
	bin := func(op queryir.BinaryOp, l, r queryir.Expr) queryir.Expr {
		return &queryir.Binary{Op: op, Left: l, Right: r}
	}

	testCases := []struct {
		name string
		expr queryir.Expr
		want string
	}{
		{"mul over add", bin(queryir.OpMul, bin(queryir.OpAdd, a, b), x), `(t0."a" + t0."b") * t0."x"`},
		{"left assoc", bin(queryir.OpSub, bin(queryir.OpSub, a, b), x), `t0."a" - t0."b" - t0."x"`},
		{"right grouping", bin(queryir.OpSub, a, bin(queryir.OpSub, b, x)), `t0."a" - (t0."b" - t0."x")`},
		{"or inside and", queryir.And(bin(queryir.OpOr, a, b), x), `(t0."a" OR t0."b") AND t0."x"`},
		{"not and", &queryir.Unary{Op: queryir.OpNot, Operand: queryir.And(a, b)}, `NOT (t0."a" AND t0."b")`},
		{"is null", &queryir.Unary{Op: queryir.OpIsNull, Operand: a}, `t0."a" IS NULL`},
		{"negate sum", &queryir.Unary{Op: queryir.OpNeg, Operand: bin(queryir.OpAdd, a, b)}, `-(t0."a" + t0."b")`},
		{"cast", &queryir.Cast{Operand: a, Type: "REAL"}, `CAST(t0."a" AS REAL)`},
		{"count star", &queryir.Func{Name: "COUNT", Star: true}, `COUNT(*)`},
		{"coalesce", &queryir.Func{Name: "COALESCE", Args: []queryir.Expr{a, &queryir.Null{}}}, `COALESCE(t0."a", NULL)`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := queryir.NewSelect(out)
			s.From = table(orders)
			s.Columns = []queryir.Mapping{{Source: tc.expr, Target: c(out, "v")}}

			sql, _, err := NewSQLCompiler().Compile(s)
			require.NoError(t, err)
			assert.Equal(t, `SELECT `+tc.want+` AS "v" FROM "orders" AS t0`, sql)
		})
	}
}

func TestCompile_ScopeErrors(t *testing.T) {
	compiler := NewSQLCompiler()

	t.Run("owner twice", func(t *testing.T) {
		from := &queryir.Join{Kind: queryir.JoinCross, Left: table(orders), Right: table(orders)}
		_, _, err := compiler.Compile(project(out, from, orders, "id"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "appears twice")
	})

	t.Run("column not in scope", func(t *testing.T) {
		_, _, err := compiler.Compile(project(out, table(orders), items, "id"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "items.id is not in scope")
	})

	t.Run("invalid statement", func(t *testing.T) {
		_, _, err := compiler.Compile(queryir.NewSelect(out))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "select without FROM source")
	})
}

func TestCompile_Union(t *testing.T) {
	u := &queryir.Union{Owner: out, All: true, Queries: []*queryir.Select{
		project(out, table(orders), orders, "id"),
		project(out, table(stage), stage, "id"),
	}}

	sql, _, err := NewSQLCompiler().Compile(u)
	require.NoError(t, err)
	assert.Equal(t, `SELECT t0."id" AS "id" FROM "orders" AS t0 UNION ALL SELECT t1."id" AS "id" FROM "stage" AS t1`, sql)
}

func TestCompile_Insert(t *testing.T) {
	compiler := NewSQLCompiler()
	target := table(orders)
	cols := []queryir.Column{c(orders, "id"), c(orders, "customer")}

	t.Run("select", func(t *testing.T) {
		src := project(orders, table(stage), stage, "id", "customer")
		src.OrderBy = []queryir.Sort{{Expr: ref(stage, queryir.RowIDColumn)}}

		sql, _, err := compiler.Compile(&queryir.Insert{Table: target, Columns: cols, Select: src})
		require.NoError(t, err)
		assert.Equal(t, `INSERT INTO "orders" ("id", "customer") SELECT t0."id" AS "id", t0."customer" AS "customer" `+
			`FROM "stage" AS t0 ORDER BY t0."sys_row_id"`, sql)
	})

	t.Run("upsert", func(t *testing.T) {
		src := project(orders, table(stage), stage, "id", "customer")
		ins := &queryir.Insert{Table: target, Columns: cols, Select: src,
			OnConflict: &queryir.OnConflict{Keys: cols[:1], Update: cols[1:]}}

		sql, _, err := compiler.Compile(ins)
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(sql,
			`FROM "stage" AS t0 WHERE 1 ON CONFLICT ("id") DO UPDATE SET "customer" = excluded."customer"`), sql)
	})

	t.Run("skip conflicts", func(t *testing.T) {
		src := project(orders, table(stage), stage, "id", "customer")
		ins := &queryir.Insert{Table: target, Columns: cols, Select: src,
			OnConflict: &queryir.OnConflict{Keys: cols[:1]}}

		sql, _, err := compiler.Compile(ins)
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(sql, `ON CONFLICT ("id") DO NOTHING`), sql)
	})

	t.Run("values", func(t *testing.T) {
		ins := &queryir.Insert{Table: target, Columns: cols, Values: []queryir.Expr{param(int64(1)), &queryir.Null{}}}

		sql, params, err := compiler.Compile(ins)
		require.NoError(t, err)
		assert.Equal(t, `INSERT INTO "orders" ("id", "customer") VALUES (?, NULL)`, sql)
		assert.Equal(t, []any{int64(1)}, params)
	})
}

func TestCompile_UpdateDelete(t *testing.T) {
	compiler := NewSQLCompiler()
	key := queryir.Eq(ref(orders, "id"), ref(stage, "id"))

	upd := &queryir.Update{
		Table: table(orders),
		Set:   []queryir.Mapping{{Source: ref(stage, "customer"), Target: c(orders, "customer")}},
		From:  table(stage),
		Where: key,
	}
	sql, _, err := compiler.Compile(upd)
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "orders" AS t0 SET "customer" = t1."customer" FROM "stage" AS t1 WHERE t0."id" = t1."id"`, sql)

	sub := queryir.NewSelect(nil)
	sub.From = table(stage)
	sub.Where = key
	del := &queryir.Delete{Table: table(orders), Where: &queryir.Exists{Query: sub}}
	sql, _, err = compiler.Compile(del)
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "orders" AS t0 WHERE EXISTS (SELECT 1 FROM "stage" AS t1 WHERE t0."id" = t1."id")`, sql)

	sql, _, err = compiler.Compile(&queryir.DropTable{Name: "stage", IfExists: true})
	require.NoError(t, err)
	assert.Equal(t, `DROP TABLE IF EXISTS "stage"`, sql)
}

func TestCompileScript_IdentityInsert(t *testing.T) {
	compiler := NewSQLCompiler()
	output := &queryir.NamedOwner{Name: "ids"}

	src := project(orders, table(stage), stage, "customer")
	src.OrderBy = []queryir.Sort{{Expr: ref(stage, queryir.RowIDColumn)}}
	ins := &queryir.Insert{
		Table:   table(orders),
		Columns: []queryir.Column{c(orders, "customer")},
		Select:  src,
		Output: &queryir.IdentityOutput{
			Table:      table(output),
			Trigger:    "capture_ids",
			RowID:      c(output, queryir.RowIDColumn),
			RowOrdinal: c(output, "row_ordinal"),
			OldValue:   c(output, "old_value"),
			NewValue:   c(output, "new_value"),
			Identity:   c(orders, "id"),
			Ordinal:    ref(stage, queryir.RowIDColumn),
			Old:        ref(stage, "id"),
		},
	}

	script, err := compiler.CompileScript(ins)
	require.NoError(t, err)
	require.Len(t, script.Commands, 4)
	assert.Equal(t, 2, script.Primary)

	assert.Equal(t, `INSERT INTO "ids" ("row_ordinal", "old_value") SELECT t0."sys_row_id" AS "row_ordinal", `+
		`t0."id" AS "old_value" FROM "stage" AS t0 ORDER BY t0."sys_row_id"`, script.Commands[0].SQL)
	assert.Equal(t, `CREATE TEMP TRIGGER "capture_ids" AFTER INSERT ON "orders" BEGIN UPDATE "ids" `+
		`SET "new_value" = NEW."id" WHERE "sys_row_id" = (SELECT MIN("sys_row_id") FROM "ids" `+
		`WHERE "new_value" IS NULL); END`, script.Commands[1].SQL)
	assert.True(t, strings.HasPrefix(script.Commands[2].SQL, `INSERT INTO "orders" ("customer") SELECT`))
	assert.Equal(t, `DROP TRIGGER "capture_ids"`, script.Commands[3].SQL)
	assert.Equal(t, []Command{{SQL: `DROP TRIGGER IF EXISTS "capture_ids"`}}, script.Cleanup)

	_, _, err = compiler.Compile(ins)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "use CompileScript")
}

func renderScript(s Script) string {
	var b strings.Builder
	for _, cmd := range s.Commands {
		b.WriteString(cmd.SQL)
		b.WriteString(";\n")
		if len(cmd.Params) > 0 {
			fmt.Fprintf(&b, "-- params: %v\n", cmd.Params)
		}
	}
	return b.String()
}

func TestCompileCreateTable_Golden(t *testing.T) {
	seed := int64(100)
	ordersDef := &queryir.CreateTable{
		Name: "orders",
		Columns: []queryir.ColumnDef{
			{Name: "id", Type: "INTEGER", NotNull: true, PrimaryKey: true, AutoIncrement: true},
			{Name: "customer", Type: "TEXT", NotNull: true},
			{Name: "discount", Type: "REAL", Default: 0.0},
			{Name: "note", Type: "TEXT", Default: "it's"},
		},
		Unique: [][]string{{"customer"}},
		Seed:   &seed,
	}
	itemsDef := &queryir.CreateTable{
		Name:        "items",
		IfNotExists: true,
		Columns: []queryir.ColumnDef{
			{Name: "order_id", Type: "INTEGER", NotNull: true},
			{Name: "item_id", Type: "INTEGER", NotNull: true},
			{Name: "amount", Type: "REAL"},
		},
		PrimaryKey: []string{"order_id", "item_id"},
		ForeignKeys: []queryir.ForeignKey{
			{Columns: []string{"order_id"}, RefTable: "orders", RefColumns: []string{"id"}, OnDelete: "CASCADE"},
		},
	}

	var rendered []string
	for _, def := range []*queryir.CreateTable{ordersDef, itemsDef} {
		script, err := CompileCreateTable(def)
		require.NoError(t, err)
		rendered = append(rendered, renderScript(script))
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "create_tables", []byte(strings.Join(rendered, "\n")))
}

func TestCompileCreateTable_Errors(t *testing.T) {
	seed := int64(1)
	testCases := []struct {
		name string
		def  *queryir.CreateTable
		want string
	}{
		{"autoincrement type", &queryir.CreateTable{Name: "t", Columns: []queryir.ColumnDef{
			{Name: "id", Type: "TEXT", AutoIncrement: true}}}, "must be INTEGER"},
		{"autoincrement with composite key", &queryir.CreateTable{Name: "t", Columns: []queryir.ColumnDef{
			{Name: "id", Type: "INTEGER", AutoIncrement: true}, {Name: "k", Type: "TEXT"}},
			PrimaryKey: []string{"id", "k"}}, "must be the only primary key"},
		{"seed without identity", &queryir.CreateTable{Name: "t", Columns: []queryir.ColumnDef{
			{Name: "id", Type: "INTEGER"}}, Seed: &seed}, "requires an AUTOINCREMENT column"},
		{"unsupported default", &queryir.CreateTable{Name: "t", Columns: []queryir.ColumnDef{
			{Name: "id", Type: "INTEGER", Default: struct{}{}}}}, "unsupported literal type"},
		{"missing type", &queryir.CreateTable{Name: "t", Columns: []queryir.ColumnDef{{Name: "id"}}}, "has no type"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := CompileCreateTable(tc.def)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestCompileCreateTable_TempSeed(t *testing.T) {
	seed := int64(5)
	script, err := NewSQLCompiler().CompileScript(&queryir.CreateTable{
		Name: "ids", Temp: true, Seed: &seed,
		Columns: []queryir.ColumnDef{{Name: "sys_row_id", Type: "INTEGER", PrimaryKey: true, AutoIncrement: true}},
	})
	require.NoError(t, err)
	require.Len(t, script.Commands, 2)
	assert.True(t, strings.HasPrefix(script.Commands[0].SQL, `CREATE TEMP TABLE "ids"`))
	assert.Contains(t, script.Commands[1].SQL, "temp.sqlite_sequence")
	assert.Equal(t, []any{"ids", int64(4), "ids"}, script.Commands[1].Params)
}

func TestInline(t *testing.T) {
	tests := []struct {
		name    string
		cmd     Command
		want    string
		wantErr string
	}{
		{
			name: "no params",
			cmd:  Command{SQL: `DROP TABLE "t"`},
			want: `DROP TABLE "t"`,
		},
		{
			name: "seed",
			cmd: Command{
				SQL:    "INSERT INTO sqlite_sequence (name, seq) SELECT ?, ? WHERE NOT EXISTS (SELECT 1 FROM sqlite_sequence WHERE name = ?)",
				Params: []any{"it's", int64(99), "it's"},
			},
			want: "INSERT INTO sqlite_sequence (name, seq) SELECT 'it''s', 99 WHERE NOT EXISTS (SELECT 1 FROM sqlite_sequence WHERE name = 'it''s')",
		},
		{
			name: "quoted placeholder kept",
			cmd:  Command{SQL: `SELECT "a?", '?', ?`, Params: []any{true}},
			want: `SELECT "a?", '?', 1`,
		},
		{
			name:    "missing param",
			cmd:     Command{SQL: "SELECT ?, ?", Params: []any{int64(1)}},
			wantErr: "placeholder 2 has no parameter",
		},
		{
			name:    "extra param",
			cmd:     Command{SQL: "SELECT 1", Params: []any{int64(1)}},
			wantErr: "1 parameters for 0 placeholders",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Inline(tt.cmd)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
