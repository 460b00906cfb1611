package queryir

// Owner is the producer of a set of columns in a FROM clause.
type Owner interface {
	DbOwnerName() string
}

// Column is a named column of an Owner.
type Column interface {
	DbColumnName() string
	DbOwner() Owner
}

// SysColumn is a column that exists only in the statement tree, such as the
// surrogate row id of a temp table.
type SysColumn struct {
	Owner Owner
	Name  string
}

func (c *SysColumn) DbColumnName() string { return c.Name }
func (c *SysColumn) DbOwner() Owner       { return c.Owner }

// Well-known surrogate columns.
const (
	// RowIDColumn is the synthetic identity of staged and persisted rows.
	RowIDColumn = "sys_row_id"

	// ParentRowIDColumn correlates a child row with its persisted parent.
	ParentRowIDColumn = "sys_parent_row_id"
)

// NamedOwner is an Owner that only carries a name. Builders use it for
// aliases of tables that are already owned by another source in the same
// statement.
type NamedOwner struct {
	Name string
}

func (o *NamedOwner) DbOwnerName() string { return o.Name }

// Expr is a scalar expression.
type Expr interface {
	exprNode()
}

// ColumnRef references a column of a FROM source.
type ColumnRef struct {
	Column Column
}

// Param is a parameterized literal.
type Param struct {
	Value any
}

// Null is the SQL NULL literal.
type Null struct{}

// BinaryOp is an infix operator.
type BinaryOp string

const (
	OpAdd    BinaryOp = "+"
	OpSub    BinaryOp = "-"
	OpMul    BinaryOp = "*"
	OpDiv    BinaryOp = "/"
	OpConcat BinaryOp = "||"
	OpEq     BinaryOp = "="
	OpNe     BinaryOp = "<>"
	OpLt     BinaryOp = "<"
	OpLe     BinaryOp = "<="
	OpGt     BinaryOp = ">"
	OpGe     BinaryOp = ">="
	OpAnd    BinaryOp = "AND"
	OpOr     BinaryOp = "OR"
)

// Binary applies Op to Left and Right.
type Binary struct {
	Op    BinaryOp
	Left  Expr
	Right Expr
}

// UnaryOp is a prefix or postfix operator.
type UnaryOp string

const (
	OpNot       UnaryOp = "NOT"
	OpNeg       UnaryOp = "-"
	OpIsNull    UnaryOp = "IS NULL"
	OpIsNotNull UnaryOp = "IS NOT NULL"
)

// Unary applies Op to Operand.
type Unary struct {
	Op      UnaryOp
	Operand Expr
}

// Func is a function call. Star renders COUNT(*).
type Func struct {
	Name string
	Args []Expr
	Star bool
}

// Cast converts Operand to the SQL type Type.
type Cast struct {
	Operand Expr
	Type    string
}

// Exists is a correlated EXISTS subquery.
type Exists struct {
	Query *Select
}

func (*ColumnRef) exprNode() {}
func (*Param) exprNode()     {}
func (*Null) exprNode()      {}
func (*Binary) exprNode()    {}
func (*Unary) exprNode()     {}
func (*Func) exprNode()      {}
func (*Cast) exprNode()      {}
func (*Exists) exprNode()    {}

// aggregateFuncs are the function names treated as aggregates.
var aggregateFuncs = map[string]bool{
	"SUM":   true,
	"COUNT": true,
	"MIN":   true,
	"MAX":   true,
	"AVG":   true,
	"TOTAL": true,
}

// IsAggregate reports whether f is an aggregate function call.
func (f *Func) IsAggregate() bool {
	return aggregateFuncs[f.Name]
}

// And combines predicates, skipping nil operands. It returns nil when every
// operand is nil.
func And(preds ...Expr) Expr {
	var out Expr
	for _, p := range preds {
		if p == nil {
			continue
		}
		if out == nil {
			out = p
			continue
		}
		out = &Binary{Op: OpAnd, Left: out, Right: p}
	}
	return out
}

// Eq is shorthand for an equality comparison.
func Eq(left, right Expr) Expr {
	return &Binary{Op: OpEq, Left: left, Right: right}
}

// Ref is shorthand for a column reference.
func Ref(c Column) *ColumnRef {
	return &ColumnRef{Column: c}
}

// Source is a FROM clause item.
type Source interface {
	sourceNode()
}

// Table is a named base or temp table projecting the columns of Owner.
type Table struct {
	Owner Owner
	Name  string
	Temp  bool
}

// JoinKind selects the join operator.
type JoinKind string

const (
	JoinInner JoinKind = "INNER JOIN"
	JoinLeft  JoinKind = "LEFT JOIN"
	JoinCross JoinKind = "CROSS JOIN"
)

// Join combines two sources. On is nil for cross joins.
type Join struct {
	Kind  JoinKind
	Left  Source
	Right Source
	On    Expr
}

func (*Table) sourceNode()  {}
func (*Join) sourceNode()   {}
func (*Select) sourceNode() {}
func (*Union) sourceNode()  {}

// Mapping assigns the value of Source to the output column Target.
type Mapping struct {
	Source Expr
	Target Column
}

// Sort is one ORDER BY term.
type Sort struct {
	Expr Expr
	Desc bool
}

// Statement is an executable statement.
type Statement interface {
	statementNode()
}

// Select projects Columns from From.
//
// Semantics:
//
//	SELECT <columns> FROM <from> WHERE <where>
//	GROUP BY <group by> HAVING <having>
//	ORDER BY <order by> LIMIT <fetch> OFFSET <offset>
//
// Owner identifies the output columns when the statement is used as a nested
// source. Offset and Fetch are -1 when absent.
type Select struct {
	Owner   Owner
	Columns []Mapping
	From    Source
	Where   Expr
	GroupBy []Expr
	Having  Expr
	OrderBy []Sort
	Offset  int
	Fetch   int
}

// NewSelect returns a Select with no OFFSET or FETCH.
func NewSelect(owner Owner) *Select {
	return &Select{Owner: owner, Offset: -1, Fetch: -1}
}

// IsSimple reports whether the statement can be folded into an enclosing
// query: no grouping, no aggregate output, no OFFSET/FETCH.
func (s *Select) IsSimple() bool {
	if len(s.GroupBy) > 0 || s.Having != nil || s.Offset >= 0 || s.Fetch >= 0 {
		return false
	}
	for _, m := range s.Columns {
		if ContainsAggregate(m.Source) {
			return false
		}
	}
	return true
}

// Union concatenates the results of Queries. Every query must project the
// same column names in the same order.
type Union struct {
	Owner   Owner
	Queries []*Select
	All     bool
}

// Insert adds rows to Table.
//
// Exactly one of Select and Values is set. Output requests identity capture
// and OnConflict turns the statement into an upsert.
type Insert struct {
	Table      *Table
	Columns    []Column
	Select     *Select
	Values     []Expr
	OnConflict *OnConflict
	Output     *IdentityOutput
}

// OnConflict is the upsert clause of an Insert. When Update is empty the
// conflicting rows are skipped.
type OnConflict struct {
	Keys   []Column
	Update []Column
}

// IdentityOutput captures the identity values generated by an Insert.
//
// Before the insert runs, one row per inserted source row is written to
// Table with RowOrdinal and OldValue filled from the insert's own FROM and
// WHERE in insert order. A temporary trigger fills NewValue with the
// generated identity as each row is inserted.
type IdentityOutput struct {
	Table      *Table
	Trigger    string
	RowID      Column
	RowOrdinal Column
	OldValue   Column
	NewValue   Column
	Identity   Column // identity column of the insert target
	Ordinal    Expr   // per-row ordinal read from the insert source
	Old        Expr   // per-row previous identity value, or Null
}

// Update modifies rows of Table. When From is set, Where correlates Table
// with the FROM source.
type Update struct {
	Table *Table
	Set   []Mapping
	From  Source
	Where Expr
}

// Delete removes rows of Table matching Where.
type Delete struct {
	Table *Table
	Where Expr
}

// ColumnDef declares one column of a CREATE TABLE statement.
type ColumnDef struct {
	Name          string
	Type          string
	NotNull       bool
	PrimaryKey    bool
	AutoIncrement bool
	Default       any // driver value, rendered as a literal
}

// ForeignKey declares a reference from Columns to RefTable(RefColumns).
type ForeignKey struct {
	Columns    []string
	RefTable   string
	RefColumns []string
	OnDelete   string
}

// CreateTable declares a table. Seed, when set, makes the first generated
// identity value equal to it.
type CreateTable struct {
	Name        string
	Temp        bool
	IfNotExists bool
	Columns     []ColumnDef
	PrimaryKey  []string
	Unique      [][]string
	ForeignKeys []ForeignKey
	Seed        *int64
}

// DropTable removes a table.
type DropTable struct {
	Name     string
	IfExists bool
}

func (*Select) statementNode()      {}
func (*Union) statementNode()       {}
func (*Insert) statementNode()      {}
func (*Update) statementNode()      {}
func (*Delete) statementNode()      {}
func (*CreateTable) statementNode() {}
func (*DropTable) statementNode()   {}

// ColumnNames returns the column names of def in declaration order.
func (def *CreateTable) ColumnNames() []string {
	names := make([]string, len(def.Columns))
	for i, c := range def.Columns {
		names[i] = c.Name
	}
	return names
}
