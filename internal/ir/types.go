package ir

// SchemaSpec is a compiled schema file.
type SchemaSpec struct {
	Name   string      `json:"name"`
	Models []ModelSpec `json:"models"`
}

// ModelSpec describes one model and, recursively, its child models.
type ModelSpec struct {
	Name           string          `json:"name"`
	Table          string          `json:"table,omitempty"`
	Columns        []ColumnSpec    `json:"columns"`
	PrimaryKey     []string        `json:"primary_key,omitempty"`
	Unique         []UniqueSpec    `json:"unique,omitempty"`
	Relations      []RelationSpec  `json:"relations,omitempty"` // child column -> parent column
	Validators     []ValidatorSpec `json:"validators,omitempty"`
	AllowKeyUpdate bool            `json:"allow_key_update,omitempty"`
	Children       []ModelSpec     `json:"children,omitempty"`
}

// ColumnSpec describes a column.
type ColumnSpec struct {
	Name     string        `json:"name"`
	Type     string        `json:"type"` // one of ColumnTypes
	DbName   string        `json:"db_name,omitempty"`
	NotNull  bool          `json:"not_null,omitempty"`
	System   bool          `json:"system,omitempty"`
	Default  string        `json:"default,omitempty"`  // literal text, converted by type
	Computed string        `json:"computed,omitempty"` // expression
	Identity *IdentitySpec `json:"identity,omitempty"`
}

// IdentitySpec declares a backend-generated int64 key.
type IdentitySpec struct {
	Seed      int64 `json:"seed"`
	Increment int64 `json:"increment"`
}

// UniqueSpec is a named unique constraint.
type UniqueSpec struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
}

// RelationSpec maps a child column to a column of the parent model.
type RelationSpec struct {
	Child  string `json:"child"`
	Parent string `json:"parent"`
}

// ValidatorSpec is a row validator. Exactly one of Check, Warn and
// Required is set.
type ValidatorSpec struct {
	Check    string `json:"check,omitempty"`
	Warn     string `json:"warn,omitempty"`
	Required string `json:"required,omitempty"` // column name
	Message  string `json:"message,omitempty"`
}

// ColumnTypes lists the allowed column type names.
var ColumnTypes = map[string]bool{
	"int64":   true,
	"int32":   true,
	"float64": true,
	"string":  true,
	"bool":    true,
	"time":    true,
	"decimal": true,
}

// Column returns the column spec named name.
func (m *ModelSpec) Column(name string) (*ColumnSpec, bool) {
	for i := range m.Columns {
		if m.Columns[i].Name == name {
			return &m.Columns[i], true
		}
	}
	return nil, false
}

// Child returns the child model spec named name.
func (m *ModelSpec) Child(name string) (*ModelSpec, bool) {
	for i := range m.Children {
		if m.Children[i].Name == name {
			return &m.Children[i], true
		}
	}
	return nil, false
}

// Walk calls fn for m and every descendant in pre-order. path is the dotted
// model path from the root, e.g. "Order.Items".
func (m *ModelSpec) Walk(fn func(path string, m *ModelSpec)) {
	m.walk(m.Name, fn)
}

func (m *ModelSpec) walk(path string, fn func(string, *ModelSpec)) {
	fn(path, m)
	for i := range m.Children {
		c := &m.Children[i]
		c.walk(path+"."+c.Name, fn)
	}
}
