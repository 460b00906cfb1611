package compiler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/rdo/internal/data"
	"github.com/roach88/rdo/internal/dbquery"
	"github.com/roach88/rdo/internal/ir"
	"github.com/roach88/rdo/internal/queryir"
)

// Schema is a set of frozen model trees built from a SchemaSpec.
//
// Models bind to a single DataSet, so a Schema serves one working set.
// Call Build again for another.
type Schema struct {
	spec   *ir.SchemaSpec
	roots  []*data.Model
	order  []*data.Model
	byPath map[string]*data.Model
	tables map[*data.Model]string
}

// Spec returns the spec the schema was built from.
func (s *Schema) Spec() *ir.SchemaSpec { return s.spec }

// Roots returns the root models in declaration order.
func (s *Schema) Roots() []*data.Model { return s.roots }

// Models returns every model, parents before children.
func (s *Schema) Models() []*data.Model { return s.order }

// Model returns the model at a dotted path such as "Order.Items".
func (s *Schema) Model(path string) (*data.Model, bool) {
	m, ok := s.byPath[path]
	return m, ok
}

// Table returns the backend table of m.
func (s *Schema) Table(m *data.Model) *dbquery.TableSource {
	return dbquery.Table(m, s.tables[m])
}

// Definitions returns CREATE TABLE statements for every model, parents
// first so foreign keys resolve.
func (s *Schema) Definitions() ([]*queryir.CreateTable, error) {
	defs := make([]*queryir.CreateTable, 0, len(s.order))
	for _, m := range s.order {
		var parent *dbquery.TableSource
		if m.Parent() != nil {
			parent = s.Table(m.Parent())
		}
		def, err := dbquery.TableDefinition(s.Table(m), parent)
		if err != nil {
			return nil, fmt.Errorf("table of %s: %w", modelPath(m), err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func modelPath(m *data.Model) string {
	if m.Parent() == nil {
		return m.Name()
	}
	return modelPath(m.Parent()) + "." + m.Name()
}

// builtColumn carries the typed operations of a column through the
// second build pass.
type builtColumn struct {
	col        data.AnyColumn
	kind       string
	primaryKey func()
	relate     func(parent data.AnyColumn) error
	computedAs func(e typed) error
}

type builtModel struct {
	model   *data.Model
	spec    *ir.ModelSpec
	path    string
	columns map[string]*builtColumn
}

// Build turns spec into frozen models. Columns of every model are declared
// before any expression is compiled, so expressions may read columns of
// models declared later in the file.
func Build(spec *ir.SchemaSpec) (*Schema, error) {
	s := &Schema{
		spec:   spec,
		byPath: make(map[string]*data.Model),
		tables: make(map[*data.Model]string),
	}
	var built []*builtModel
	var declare func(parent *data.Model, path string, ms *ir.ModelSpec) error
	declare = func(parent *data.Model, path string, ms *ir.ModelSpec) error {
		var m *data.Model
		if parent == nil {
			m = data.NewModel(ms.Name)
			s.roots = append(s.roots, m)
		} else {
			m = parent.NewChild(ms.Name)
		}
		bm := &builtModel{model: m, spec: ms, path: path, columns: make(map[string]*builtColumn)}
		for _, cs := range ms.Columns {
			bc, err := declareColumn(m, cs)
			if err != nil {
				return fmt.Errorf("%s.%s: %w", path, cs.Name, err)
			}
			bm.columns[cs.Name] = bc
		}
		table := ms.Table
		if table == "" {
			table = strings.ToLower(ms.Name)
		}
		s.tables[m] = table
		s.byPath[path] = m
		s.order = append(s.order, m)
		built = append(built, bm)
		for i := range ms.Children {
			c := &ms.Children[i]
			if err := declare(m, path+"."+c.Name, c); err != nil {
				return err
			}
		}
		return nil
	}
	for i := range spec.Models {
		ms := &spec.Models[i]
		if err := declare(nil, ms.Name, ms); err != nil {
			return nil, err
		}
	}

	byModel := make(map[*data.Model]*builtModel, len(built))
	for _, bm := range built {
		byModel[bm.model] = bm
	}
	for _, bm := range built {
		if err := bm.define(byModel); err != nil {
			return nil, err
		}
	}
	for _, root := range s.roots {
		if err := root.Freeze(); err != nil {
			return nil, fmt.Errorf("freeze %s: %w", root.Name(), err)
		}
	}
	return s, nil
}

// define applies keys, relations, computations and validators.
func (bm *builtModel) define(byModel map[*data.Model]*builtModel) error {
	ms := bm.spec
	m := bm.model
	for _, name := range ms.PrimaryKey {
		bc, ok := bm.columns[name]
		if !ok {
			return fmt.Errorf("%s: primary key column %q not found", bm.path, name)
		}
		bc.primaryKey()
	}

	for _, rel := range ms.Relations {
		child, ok := bm.columns[rel.Child]
		if !ok {
			return fmt.Errorf("%s: relate: column %q not found", bm.path, rel.Child)
		}
		if m.Parent() == nil {
			return fmt.Errorf("%s: relate: root model has no parent", bm.path)
		}
		parent, ok := byModel[m.Parent()].columns[rel.Parent]
		if !ok {
			return fmt.Errorf("%s: relate: parent column %q not found", bm.path, rel.Parent)
		}
		if err := child.relate(parent.col); err != nil {
			return fmt.Errorf("%s: relate %s: %w", bm.path, rel.Child, err)
		}
	}

	for _, u := range ms.Unique {
		cols := make([]data.AnyColumn, 0, len(u.Columns))
		for _, name := range u.Columns {
			bc, ok := bm.columns[name]
			if !ok {
				return fmt.Errorf("%s: unique %s: column %q not found", bm.path, u.Name, name)
			}
			cols = append(cols, bc.col)
		}
		m.Unique(u.Name, cols...)
	}

	for _, cs := range ms.Columns {
		if cs.Computed == "" {
			continue
		}
		e, err := compileExpr(m, cs.Computed)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", bm.path, cs.Name, err)
		}
		if err := bm.columns[cs.Name].computedAs(e); err != nil {
			return fmt.Errorf("%s.%s: %w", bm.path, cs.Name, err)
		}
	}

	for i, vs := range ms.Validators {
		v, err := bm.validator(vs)
		if err != nil {
			return fmt.Errorf("%s: validators[%d]: %w", bm.path, i, err)
		}
		m.AddValidator(v)
	}

	m.AllowKeyUpdate(ms.AllowKeyUpdate)
	return nil
}

func (bm *builtModel) validator(vs ir.ValidatorSpec) (data.Validator, error) {
	if vs.Required != "" {
		bc, ok := bm.columns[vs.Required]
		if !ok {
			return nil, fmt.Errorf("required column %q not found", vs.Required)
		}
		if vs.Message != "" {
			return data.Check(data.IsNotNull(bc.col), vs.Message), nil
		}
		return data.Required(bc.col), nil
	}
	src, severity := vs.Check, data.SeverityError
	if src == "" {
		src, severity = vs.Warn, data.SeverityWarning
	}
	e, err := compileExpr(bm.model, src)
	if err != nil {
		return nil, err
	}
	if e.kind != "bool" {
		return nil, &ExprError{Expr: src, Message: "validator must be a bool expression, got " + e.kind}
	}
	msg := vs.Message
	if msg == "" {
		msg = src
	}
	if severity == data.SeverityWarning {
		return data.Warn(as[bool](e), msg), nil
	}
	return data.Check(as[bool](e), msg), nil
}

func declareColumn(m *data.Model, cs ir.ColumnSpec) (*builtColumn, error) {
	if cs.Identity != nil {
		if cs.Type != "int64" {
			return nil, fmt.Errorf("identity column must be int64, got %s", cs.Type)
		}
		c := data.NewIdentity(m, cs.Name, cs.Identity.Seed, cs.Identity.Increment)
		return configure(c, cs, "int64", parseInt64)
	}
	switch cs.Type {
	case "int64":
		return configure(data.NewColumn(m, cs.Name, data.Int64), cs, cs.Type, parseInt64)
	case "int32":
		return configure(data.NewColumn(m, cs.Name, data.Int32), cs, cs.Type, func(s string) (int32, error) {
			n, err := strconv.ParseInt(s, 10, 32)
			return int32(n), err
		})
	case "float64":
		return configure(data.NewColumn(m, cs.Name, data.Float64), cs, cs.Type, func(s string) (float64, error) {
			return strconv.ParseFloat(s, 64)
		})
	case "string":
		return configure(data.NewColumn(m, cs.Name, data.String), cs, cs.Type, func(s string) (string, error) {
			return s, nil
		})
	case "bool":
		return configure(data.NewColumn(m, cs.Name, data.Bool), cs, cs.Type, strconv.ParseBool)
	case "time":
		return configure(data.NewColumn(m, cs.Name, data.Time), cs, cs.Type, func(s string) (time.Time, error) {
			return time.Parse(time.RFC3339Nano, s)
		})
	case "decimal":
		return configure(data.NewColumn(m, cs.Name, data.Decimal), cs, cs.Type, decimal.NewFromString)
	}
	return nil, fmt.Errorf("unknown column type %q", cs.Type)
}

func parseInt64(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) }

func configure[T any](c *data.Column[T], cs ir.ColumnSpec, kind string, parse func(string) (T, error)) (*builtColumn, error) {
	if cs.DbName != "" {
		c.DbName(cs.DbName)
	}
	if cs.NotNull {
		c.NotNull()
	}
	if cs.System {
		c.System()
	}
	if cs.Default != "" {
		v, err := parse(cs.Default)
		if err != nil {
			return nil, fmt.Errorf("default %q: %w", cs.Default, err)
		}
		c.Default(v)
	}
	return &builtColumn{
		col:        c,
		kind:       kind,
		primaryKey: func() { c.PrimaryKey() },
		relate: func(parent data.AnyColumn) error {
			p, ok := parent.(*data.Column[T])
			if !ok {
				return fmt.Errorf("parent column %s has a different type", parent.Name())
			}
			data.Relate(c, p)
			return nil
		},
		computedAs: func(e typed) error {
			e, ok := coerce(e, kind)
			if !ok {
				return fmt.Errorf("%s column cannot hold a %s expression", kind, e.kind)
			}
			c.ComputedAs(as[T](e))
			return nil
		},
	}, nil
}

// coerce converts e to kind where the conversion does not lose range.
func coerce(e typed, kind string) (typed, bool) {
	if e.kind == kind {
		return e, true
	}
	e = widen(e)
	switch {
	case e.kind == kind:
		return e, true
	case kind == "float64" && e.kind == "int64":
		return typed{"float64", data.ToFloat64(as[int64](e))}, true
	}
	return e, false
}
