package querysql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/rdo/internal/queryir"
)

// SQLCompiler compiles queryir statement trees to parameterized SQL for
// SQLite.
//
// CRITICAL: literal values are never interpolated. Every queryir.Param
// becomes a ? placeholder and its value is appended to the parameter list in
// textual order. DDL defaults are the only literals rendered inline.
type SQLCompiler struct{}

// NewSQLCompiler creates a new SQLCompiler.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{}
}

// Command is one SQL command with its parameters.
type Command struct {
	SQL    string
	Params []any
}

// Script is the ordered list of commands a statement compiles to.
//
// Primary is the index of the command whose affected-row count is the
// result of the statement. Cleanup holds commands that must run when the
// script stops early, such as dropping a temporary trigger.
type Script struct {
	Commands []Command
	Primary  int
	Cleanup  []Command
}

// Compile converts a statement that lowers to a single command.
// Returns (sql, params, error) tuple.
func (c *SQLCompiler) Compile(stmt queryir.Statement) (string, []any, error) {
	script, err := c.CompileScript(stmt)
	if err != nil {
		return "", nil, err
	}
	if len(script.Commands) != 1 {
		return "", nil, fmt.Errorf("statement compiles to %d commands, use CompileScript", len(script.Commands))
	}
	cmd := script.Commands[0]
	return cmd.SQL, cmd.Params, nil
}

// CompileScript converts any statement. The statement is validated first.
func (c *SQLCompiler) CompileScript(stmt queryir.Statement) (Script, error) {
	if err := queryir.Validate(stmt).Err(); err != nil {
		return Script{}, err
	}

	switch s := stmt.(type) {
	case *queryir.CreateTable:
		return CompileCreateTable(s)
	case *queryir.Insert:
		if s.Output != nil {
			return compileIdentityInsert(s)
		}
	}

	w := newWriter()
	if err := w.statement(stmt); err != nil {
		return Script{}, err
	}
	return Script{Commands: []Command{w.command()}}, nil
}

// scope maps the owners of one FROM clause to their aliases. Lookups fall
// back to enclosing scopes so correlated subqueries can reach outer sources.
type scope struct {
	parent  *scope
	aliases map[queryir.Owner]string
}

func (s *scope) lookup(o queryir.Owner) (string, bool) {
	for x := s; x != nil; x = x.parent {
		if a, ok := x.aliases[o]; ok {
			return a, true
		}
	}
	return "", false
}

// writer accumulates SQL text and parameters for one command.
type writer struct {
	b      strings.Builder
	params []any
	next   int
	scope  *scope
}

func newWriter() *writer {
	return &writer{scope: &scope{aliases: map[queryir.Owner]string{}}}
}

func (w *writer) command() Command {
	return Command{SQL: w.b.String(), Params: w.params}
}

func (w *writer) write(parts ...string) {
	for _, p := range parts {
		w.b.WriteString(p)
	}
}

func (w *writer) push() {
	w.scope = &scope{parent: w.scope, aliases: map[queryir.Owner]string{}}
}

func (w *writer) pop() {
	w.scope = w.scope.parent
}

// bind assigns the next alias to o in the current scope.
func (w *writer) bind(o queryir.Owner) (string, error) {
	if o == nil {
		return "", fmt.Errorf("source without owner")
	}
	if _, dup := w.scope.aliases[o]; dup {
		return "", fmt.Errorf("owner %s appears twice in one FROM clause", o.DbOwnerName())
	}
	alias := "t" + strconv.Itoa(w.next)
	w.next++
	w.scope.aliases[o] = alias
	return alias, nil
}

func (w *writer) statement(stmt queryir.Statement) error {
	switch s := stmt.(type) {
	case *queryir.Select:
		return w.selectStmt(s)
	case *queryir.Union:
		return w.union(s)
	case *queryir.Insert:
		return w.insert(s)
	case *queryir.Update:
		return w.update(s)
	case *queryir.Delete:
		return w.delete(s)
	case *queryir.DropTable:
		w.write("DROP TABLE ")
		if s.IfExists {
			w.write("IF EXISTS ")
		}
		w.write(quoteIdent(s.Name))
		return nil
	default:
		return fmt.Errorf("unsupported statement type: %T", stmt)
	}
}

// selectStmt renders s in a new alias scope.
func (w *writer) selectStmt(s *queryir.Select) error {
	w.push()
	defer w.pop()
	return w.selectBody(s, false)
}

// selectBody renders s in the current scope. forceWhere emits WHERE 1 when
// the statement has no filter, which SQLite needs before an upsert clause.
func (w *writer) selectBody(s *queryir.Select, forceWhere bool) error {
	// FROM first: the select list refers to its aliases.
	var from writer
	from.scope, from.next = w.scope, w.next
	if s.From != nil {
		if err := from.source(s.From); err != nil {
			return err
		}
	}
	w.next = from.next

	w.write("SELECT ")
	if len(s.Columns) == 0 {
		w.write("1")
	}
	for i, m := range s.Columns {
		if i > 0 {
			w.write(", ")
		}
		if err := w.expr(m.Source, 0); err != nil {
			return err
		}
		if m.Target != nil {
			w.write(" AS ", quoteIdent(m.Target.DbColumnName()))
		}
	}
	// Parameters inside FROM precede parameters of later clauses but follow
	// the select list.
	if s.From != nil {
		w.write(" FROM ", from.b.String())
		w.params = append(w.params, from.params...)
	}
	if s.Where != nil {
		w.write(" WHERE ")
		if err := w.expr(s.Where, 0); err != nil {
			return err
		}
	} else if forceWhere {
		w.write(" WHERE 1")
	}
	if len(s.GroupBy) > 0 {
		w.write(" GROUP BY ")
		if err := w.exprList(s.GroupBy); err != nil {
			return err
		}
	}
	if s.Having != nil {
		w.write(" HAVING ")
		if err := w.expr(s.Having, 0); err != nil {
			return err
		}
	}
	if err := w.orderBy(s.OrderBy); err != nil {
		return err
	}
	switch {
	case s.Fetch >= 0 && s.Offset >= 0:
		w.write(" LIMIT ", strconv.Itoa(s.Fetch), " OFFSET ", strconv.Itoa(s.Offset))
	case s.Fetch >= 0:
		w.write(" LIMIT ", strconv.Itoa(s.Fetch))
	case s.Offset >= 0:
		w.write(" LIMIT -1 OFFSET ", strconv.Itoa(s.Offset))
	}
	return nil
}

func (w *writer) orderBy(sorts []queryir.Sort) error {
	for i, s := range sorts {
		if i == 0 {
			w.write(" ORDER BY ")
		} else {
			w.write(", ")
		}
		if err := w.expr(s.Expr, 0); err != nil {
			return err
		}
		if s.Desc {
			w.write(" DESC")
		}
	}
	return nil
}

func (w *writer) union(u *queryir.Union) error {
	op := " UNION "
	if u.All {
		op = " UNION ALL "
	}
	for i, q := range u.Queries {
		if i > 0 {
			w.write(op)
		}
		// Compound members cannot carry their own ORDER BY or LIMIT.
		if len(q.OrderBy) > 0 || q.Offset >= 0 || q.Fetch >= 0 {
			w.write("SELECT * FROM (")
			if err := w.selectStmt(q); err != nil {
				return err
			}
			w.write(")")
			continue
		}
		if err := w.selectStmt(q); err != nil {
			return err
		}
	}
	return nil
}

func (w *writer) source(src queryir.Source) error {
	switch s := src.(type) {
	case *queryir.Table:
		alias, err := w.bind(s.Owner)
		if err != nil {
			return err
		}
		w.write(quoteIdent(s.Name), " AS ", alias)
		return nil
	case *queryir.Join:
		if err := w.source(s.Left); err != nil {
			return err
		}
		w.write(" ", string(s.Kind), " ")
		if _, nested := s.Right.(*queryir.Join); nested {
			w.write("(")
			defer w.write(")")
		}
		if err := w.source(s.Right); err != nil {
			return err
		}
		if s.On != nil {
			w.write(" ON ")
			return w.expr(s.On, 0)
		}
		return nil
	case *queryir.Select:
		w.write("(")
		if err := w.selectStmt(s); err != nil {
			return err
		}
		w.write(")")
		return w.aliasDerived(s.Owner)
	case *queryir.Union:
		w.write("(")
		if err := w.union(s); err != nil {
			return err
		}
		w.write(")")
		return w.aliasDerived(s.Owner)
	default:
		return fmt.Errorf("unsupported source type: %T", src)
	}
}

func (w *writer) aliasDerived(o queryir.Owner) error {
	alias, err := w.bind(o)
	if err != nil {
		return err
	}
	w.write(" AS ", alias)
	return nil
}

// precedence returns the binding strength of a binary operator. Higher
// binds tighter.
func precedence(op queryir.BinaryOp) int {
	switch op {
	case queryir.OpOr:
		return 1
	case queryir.OpAnd:
		return 2
	case queryir.OpEq, queryir.OpNe:
		return 4
	case queryir.OpLt, queryir.OpLe, queryir.OpGt, queryir.OpGe:
		return 5
	case queryir.OpAdd, queryir.OpSub:
		return 6
	case queryir.OpMul, queryir.OpDiv:
		return 7
	case queryir.OpConcat:
		return 8
	}
	return 0
}

// expr renders e. outer is the precedence of the enclosing operator;
// operands that bind less tightly are parenthesized.
func (w *writer) expr(e queryir.Expr, outer int) error {
	switch x := e.(type) {
	case *queryir.ColumnRef:
		return w.columnRef(x.Column)
	case *queryir.Param:
		w.write("?")
		w.params = append(w.params, x.Value)
		return nil
	case *queryir.Null:
		w.write("NULL")
		return nil
	case *queryir.Binary:
		p := precedence(x.Op)
		paren := p < outer
		if paren {
			w.write("(")
		}
		if err := w.expr(x.Left, p); err != nil {
			return err
		}
		w.write(" ", string(x.Op), " ")
		// Right operands of equal precedence are grouped explicitly:
		// a - (b - c).
		if err := w.expr(x.Right, p+1); err != nil {
			return err
		}
		if paren {
			w.write(")")
		}
		return nil
	case *queryir.Unary:
		return w.unary(x, outer)
	case *queryir.Func:
		w.write(x.Name, "(")
		if x.Star {
			w.write("*")
		} else if err := w.exprList(x.Args); err != nil {
			return err
		}
		w.write(")")
		return nil
	case *queryir.Cast:
		w.write("CAST(")
		if err := w.expr(x.Operand, 0); err != nil {
			return err
		}
		w.write(" AS ", x.Type, ")")
		return nil
	case *queryir.Exists:
		w.write("EXISTS (")
		if err := w.selectStmt(x.Query); err != nil {
			return err
		}
		w.write(")")
		return nil
	case nil:
		return fmt.Errorf("nil expression")
	default:
		return fmt.Errorf("unsupported expression type: %T", e)
	}
}

func (w *writer) unary(x *queryir.Unary, outer int) error {
	switch x.Op {
	case queryir.OpNot:
		// NOT binds looser than comparisons and tighter than AND.
		paren := outer > 3
		if paren {
			w.write("(")
		}
		w.write("NOT ")
		if err := w.expr(x.Operand, 3); err != nil {
			return err
		}
		if paren {
			w.write(")")
		}
		return nil
	case queryir.OpNeg:
		w.write("-")
		return w.expr(x.Operand, 9)
	case queryir.OpIsNull, queryir.OpIsNotNull:
		paren := outer > 4
		if paren {
			w.write("(")
		}
		if err := w.expr(x.Operand, 5); err != nil {
			return err
		}
		w.write(" ", string(x.Op))
		if paren {
			w.write(")")
		}
		return nil
	}
	return fmt.Errorf("unsupported unary operator: %s", x.Op)
}

func (w *writer) exprList(es []queryir.Expr) error {
	for i, e := range es {
		if i > 0 {
			w.write(", ")
		}
		if err := w.expr(e, 0); err != nil {
			return err
		}
	}
	return nil
}

func (w *writer) columnRef(c queryir.Column) error {
	alias, ok := w.scope.lookup(c.DbOwner())
	if !ok {
		return fmt.Errorf("column %s.%s is not in scope", c.DbOwner().DbOwnerName(), c.DbColumnName())
	}
	w.write(alias, ".", quoteIdent(c.DbColumnName()))
	return nil
}

func (w *writer) columnNames(cols []queryir.Column) {
	for i, c := range cols {
		if i > 0 {
			w.write(", ")
		}
		w.write(quoteIdent(c.DbColumnName()))
	}
}

func (w *writer) insert(ins *queryir.Insert) error {
	w.write("INSERT INTO ", quoteIdent(ins.Table.Name), " (")
	w.columnNames(ins.Columns)
	w.write(") ")
	if ins.Values != nil {
		w.write("VALUES (")
		if err := w.exprList(ins.Values); err != nil {
			return err
		}
		w.write(")")
	} else {
		w.push()
		err := w.selectBody(ins.Select, ins.OnConflict != nil)
		w.pop()
		if err != nil {
			return err
		}
	}
	if oc := ins.OnConflict; oc != nil {
		w.write(" ON CONFLICT (")
		w.columnNames(oc.Keys)
		w.write(")")
		if len(oc.Update) == 0 {
			w.write(" DO NOTHING")
			return nil
		}
		w.write(" DO UPDATE SET ")
		for i, c := range oc.Update {
			if i > 0 {
				w.write(", ")
			}
			name := quoteIdent(c.DbColumnName())
			w.write(name, " = excluded.", name)
		}
	}
	return nil
}

func (w *writer) update(u *queryir.Update) error {
	w.push()
	defer w.pop()
	alias, err := w.bind(u.Table.Owner)
	if err != nil {
		return err
	}
	var from writer
	from.scope, from.next = w.scope, w.next
	if u.From != nil {
		if err := from.source(u.From); err != nil {
			return err
		}
	}
	w.next = from.next

	w.write("UPDATE ", quoteIdent(u.Table.Name), " AS ", alias, " SET ")
	for i, m := range u.Set {
		if i > 0 {
			w.write(", ")
		}
		w.write(quoteIdent(m.Target.DbColumnName()), " = ")
		if err := w.expr(m.Source, 0); err != nil {
			return err
		}
	}
	if u.From != nil {
		w.write(" FROM ", from.b.String())
		w.params = append(w.params, from.params...)
	}
	if u.Where != nil {
		w.write(" WHERE ")
		return w.expr(u.Where, 0)
	}
	return nil
}

func (w *writer) delete(d *queryir.Delete) error {
	w.push()
	defer w.pop()
	alias, err := w.bind(d.Table.Owner)
	if err != nil {
		return err
	}
	w.write("DELETE FROM ", quoteIdent(d.Table.Name), " AS ", alias)
	if d.Where != nil {
		w.write(" WHERE ")
		return w.expr(d.Where, 0)
	}
	return nil
}

// quoteIdent quotes an SQL identifier.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
