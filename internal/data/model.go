package data

import (
	"golang.org/x/text/unicode/norm"
)

// ColumnMapping correlates a child column with a parent column.
type ColumnMapping struct {
	Child  AnyColumn
	Parent AnyColumn
}

// UniqueKey is a named unique constraint.
type UniqueKey struct {
	Name    string
	Columns []AnyColumn
}

// Model describes a row shape: ordered columns, child models, validators and
// constraints. A Model also hosts the flat store of its rows.
type Model struct {
	name         string
	parent       *Model
	depth        int
	childOrdinal int

	columns    []AnyColumn
	children   []*Model
	mappings   []ColumnMapping
	validators []Validator
	uniques    []UniqueKey
	primaryKey []AnyColumn

	allowKeyUpdate bool
	keySuspended   int

	// err is the first design-mode misuse recorded against this model.
	err error

	// Root-only state.
	frozen    bool
	freezeErr error
	dataset   *DataSet
	listeners []listener
	nextID    int

	// rows is the flat row store, in hierarchical order.
	rows []*DataRow

	// Freeze products.
	comps       []*computation
	cascade     []*Model
	passThrough modelSet
}

// NewModel creates a root model in design mode.
func NewModel(name string) *Model {
	return &Model{name: norm.NFC.String(name)}
}

// NewChild declares a child model of m.
func (m *Model) NewChild(name string) *Model {
	child := &Model{
		name:         norm.NFC.String(name),
		parent:       m,
		depth:        m.depth + 1,
		childOrdinal: len(m.children),
	}
	if !m.checkDesign("NewChild") {
		return child
	}
	if m.nameTaken(child.name) {
		m.setErr(modelError(ErrCodeDuplicateName, m, "name %q already declared", child.name))
		return child
	}
	m.children = append(m.children, child)
	return child
}

// Relate maps child (a column of a child model) to parent (a column of its
// parent model). Mapped child columns become child-derived.
func Relate[T any](child, parent *Column[T]) {
	cm := child.model
	if !cm.checkDesign("Relate") {
		return
	}
	if cm.parent == nil || cm.parent != parent.model {
		cm.setErr(columnError(ErrCodeOwnershipMismatch, child, "%s is not the parent model", parent.model.name))
		return
	}
	for _, existing := range cm.mappings {
		if existing.Child == AnyColumn(child) {
			cm.setErr(columnError(ErrCodeDuplicateName, child, "column already mapped"))
			return
		}
	}
	cm.mappings = append(cm.mappings, ColumnMapping{Child: child, Parent: parent})
}

// AddValidator registers a row validator.
func (m *Model) AddValidator(v Validator) *Model {
	if m.checkDesign("AddValidator") {
		m.validators = append(m.validators, v)
	}
	return m
}

// Unique declares a unique constraint over cols.
func (m *Model) Unique(name string, cols ...AnyColumn) *Model {
	if !m.checkDesign("Unique") {
		return m
	}
	for _, c := range cols {
		if c.Model() != m {
			m.setErr(columnError(ErrCodeOwnershipMismatch, c, "unique key %s belongs to %s", name, m.name))
			return m
		}
	}
	m.uniques = append(m.uniques, UniqueKey{Name: name, Columns: cols})
	return m
}

// AllowKeyUpdate permits rewriting primary-key columns after assignment.
func (m *Model) AllowKeyUpdate(allow bool) *Model {
	if m.checkDesign("AllowKeyUpdate") {
		m.allowKeyUpdate = allow
	}
	return m
}

// SuspendKeyProtection runs fn with primary-key locking disabled on m.
func (m *Model) SuspendKeyProtection(fn func() error) error {
	m.keySuspended++
	defer func() { m.keySuspended-- }()
	return fn()
}

func (m *Model) keyUpdatable() bool {
	return m.allowKeyUpdate || m.keySuspended > 0
}

func (m *Model) register(c AnyColumn, name string) {
	b := c.base()
	b.model = m
	b.name = norm.NFC.String(name)
	b.dbName = b.name
	b.ordinal = -1
	if !m.checkDesign("NewColumn") {
		return
	}
	if m.nameTaken(b.name) {
		m.setErr(modelError(ErrCodeDuplicateName, m, "name %q already declared", b.name))
		return
	}
	b.ordinal = len(m.columns)
	m.columns = append(m.columns, c)
}

func (m *Model) nameTaken(name string) bool {
	for _, c := range m.columns {
		if c.Name() == name {
			return true
		}
	}
	for _, ch := range m.children {
		if ch.name == name {
			return true
		}
	}
	return false
}

// checkDesign records a SCHEMA_FROZEN error when the model tree has left
// design mode.
func (m *Model) checkDesign(op string) bool {
	if m.Root().frozen {
		m.setErr(modelError(ErrCodeSchemaFrozen, m, "%s called after design mode ended", op))
		return false
	}
	return true
}

func (m *Model) setErr(err error) {
	if m.err == nil {
		m.err = err
	}
}

// Err returns the first design-mode misuse recorded against m.
func (m *Model) Err() error { return m.err }

// Name returns the model name.
func (m *Model) Name() string { return m.name }

// DbOwnerName implements queryir.Owner.
func (m *Model) DbOwnerName() string { return m.name }

// Parent returns the parent model, or nil for a root model.
func (m *Model) Parent() *Model { return m.parent }

// Root returns the root of the model tree.
func (m *Model) Root() *Model {
	r := m
	for r.parent != nil {
		r = r.parent
	}
	return r
}

// Depth returns 0 for a root model and parent depth + 1 otherwise.
func (m *Model) Depth() int { return m.depth }

// Columns returns the columns in ordinal order.
func (m *Model) Columns() []AnyColumn { return m.columns }

// Column returns the column with the given name.
func (m *Model) Column(name string) (AnyColumn, bool) {
	name = norm.NFC.String(name)
	for _, c := range m.columns {
		if c.Name() == name {
			return c, true
		}
	}
	return nil, false
}

// ChildModels returns the declared child models in ordinal order.
func (m *Model) ChildModels() []*Model { return m.children }

// Child returns the child model with the given name.
func (m *Model) Child(name string) (*Model, bool) {
	name = norm.NFC.String(name)
	for _, c := range m.children {
		if c.name == name {
			return c, true
		}
	}
	return nil, false
}

// ChildOrdinal returns the position of m among its parent's child models.
func (m *Model) ChildOrdinal() int { return m.childOrdinal }

// ParentMappings returns the child-to-parent column mappings.
func (m *Model) ParentMappings() []ColumnMapping { return m.mappings }

// Validators returns the registered validators.
func (m *Model) Validators() []Validator { return m.validators }

// PrimaryKey returns the primary-key columns in declaration order.
func (m *Model) PrimaryKey() []AnyColumn { return m.primaryKey }

// UniqueKeys returns the declared unique constraints.
func (m *Model) UniqueKeys() []UniqueKey { return m.uniques }

// IdentityColumn returns the identity column, if any.
func (m *Model) IdentityColumn() (*Column[int64], bool) {
	for _, c := range m.columns {
		if c.Identity() != nil {
			ic, ok := c.(*Column[int64])
			return ic, ok
		}
	}
	return nil, false
}

// IsFrozen reports whether the model tree has left design mode.
func (m *Model) IsFrozen() bool { return m.Root().frozen }

// Rows returns the flat row store of m in hierarchical order.
func (m *Model) Rows() []*DataRow { return m.rows }

// DataSet returns the root DataSet bound to the model tree, if any.
func (m *Model) DataSet() *DataSet { return m.Root().dataset }

// IsAncestorOf reports whether m is a strict ancestor of other.
func (m *Model) IsAncestorOf(other *Model) bool {
	for x := other.parent; x != nil; x = x.parent {
		if x == m {
			return true
		}
	}
	return false
}

// walk visits m and its descendants in pre-order.
func (m *Model) walk(fn func(*Model)) {
	fn(m)
	for _, c := range m.children {
		c.walk(fn)
	}
}
