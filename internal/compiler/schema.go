package compiler

import (
	"fmt"
	"os"
	"strconv"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/rdo/internal/ir"
)

// LoadFile reads and compiles a CUE schema file.
func LoadFile(path string) (*ir.SchemaSpec, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	v := cuecontext.New().CompileBytes(src, cue.Filename(path))
	return CompileSchema(v)
}

// CompileSchema parses a CUE value into a SchemaSpec.
//
// The value has the form:
//
//	schema: "shop"
//	models: Order: {
//		table: "orders"
//		columns: {
//			ID:       {type: "int64", identity: {seed: 1, increment: 1}, primary_key: true}
//			Customer: {type: "string", not_null: true}
//			Total:    {type: "float64", computed: "sum(Items.Amount)"}
//		}
//		children: Items: {
//			relate: OrderID: "ID"
//			columns: {...}
//		}
//	}
//
// Field order inside columns, models and children is declaration order.
func CompileSchema(v cue.Value) (*ir.SchemaSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	spec := &ir.SchemaSpec{}

	nameVal := v.LookupPath(cue.ParsePath("schema"))
	if !nameVal.Exists() {
		return nil, &CompileError{Field: "schema", Message: "schema name is required", Pos: v.Pos()}
	}
	name, err := nameVal.String()
	if err != nil {
		return nil, &CompileError{Field: "schema", Message: "schema name must be a string", Pos: nameVal.Pos()}
	}
	spec.Name = name

	modelsVal := v.LookupPath(cue.ParsePath("models"))
	if !modelsVal.Exists() {
		return nil, &CompileError{Field: "models", Message: "at least one model is required", Pos: v.Pos()}
	}
	spec.Models, err = parseModels(modelsVal, "models")
	if err != nil {
		return nil, err
	}
	return spec, nil
}

func parseModels(v cue.Value, field string) ([]ir.ModelSpec, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var models []ir.ModelSpec
	for iter.Next() {
		m, err := parseModel(iter.Label(), iter.Value(), field+"."+iter.Label())
		if err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	return models, nil
}

func parseModel(name string, v cue.Value, field string) (ir.ModelSpec, error) {
	m := ir.ModelSpec{Name: name}
	var err error

	if m.Table, err = optionalString(v, "table"); err != nil {
		return m, err
	}
	if m.AllowKeyUpdate, err = optionalBool(v, "allow_key_update"); err != nil {
		return m, err
	}

	colsVal := v.LookupPath(cue.ParsePath("columns"))
	if !colsVal.Exists() {
		return m, &CompileError{Field: field + ".columns", Message: "columns are required", Pos: v.Pos()}
	}
	iter, err := colsVal.Fields()
	if err != nil {
		return m, formatCUEError(err)
	}
	for iter.Next() {
		col, pk, err := parseColumn(iter.Label(), iter.Value(), field+".columns."+iter.Label())
		if err != nil {
			return m, err
		}
		m.Columns = append(m.Columns, col)
		if pk {
			m.PrimaryKey = append(m.PrimaryKey, col.Name)
		}
	}

	// An explicit key list replaces per-column primary_key flags.
	if pkVal := v.LookupPath(cue.ParsePath("primary_key")); pkVal.Exists() {
		if m.PrimaryKey, err = stringList(pkVal); err != nil {
			return m, err
		}
	}

	if uniqueVal := v.LookupPath(cue.ParsePath("unique")); uniqueVal.Exists() {
		uiter, err := uniqueVal.Fields()
		if err != nil {
			return m, formatCUEError(err)
		}
		for uiter.Next() {
			cols, err := stringList(uiter.Value())
			if err != nil {
				return m, err
			}
			m.Unique = append(m.Unique, ir.UniqueSpec{Name: uiter.Label(), Columns: cols})
		}
	}

	if relateVal := v.LookupPath(cue.ParsePath("relate")); relateVal.Exists() {
		riter, err := relateVal.Fields()
		if err != nil {
			return m, formatCUEError(err)
		}
		for riter.Next() {
			parent, err := riter.Value().String()
			if err != nil {
				return m, formatCUEError(err)
			}
			m.Relations = append(m.Relations, ir.RelationSpec{Child: riter.Label(), Parent: parent})
		}
	}

	if validatorsVal := v.LookupPath(cue.ParsePath("validators")); validatorsVal.Exists() {
		viter, err := validatorsVal.List()
		if err != nil {
			return m, formatCUEError(err)
		}
		for viter.Next() {
			vs, err := parseValidator(viter.Value(), field+".validators")
			if err != nil {
				return m, err
			}
			m.Validators = append(m.Validators, vs)
		}
	}

	if childrenVal := v.LookupPath(cue.ParsePath("children")); childrenVal.Exists() {
		if m.Children, err = parseModels(childrenVal, field+".children"); err != nil {
			return m, err
		}
	}
	return m, nil
}

// parseColumn returns the column spec and whether it is flagged as a
// primary-key column.
func parseColumn(name string, v cue.Value, field string) (ir.ColumnSpec, bool, error) {
	c := ir.ColumnSpec{Name: name}

	// Shorthand: Customer: "string"
	if s, err := v.String(); err == nil {
		c.Type = s
		return c, false, nil
	}

	typeVal := v.LookupPath(cue.ParsePath("type"))
	if !typeVal.Exists() {
		return c, false, &CompileError{Field: field + ".type", Message: "column type is required", Pos: v.Pos()}
	}
	var err error
	if c.Type, err = typeVal.String(); err != nil {
		return c, false, formatCUEError(err)
	}
	if c.DbName, err = optionalString(v, "db_name"); err != nil {
		return c, false, err
	}
	if c.Computed, err = optionalString(v, "computed"); err != nil {
		return c, false, err
	}
	if c.NotNull, err = optionalBool(v, "not_null"); err != nil {
		return c, false, err
	}
	if c.System, err = optionalBool(v, "system"); err != nil {
		return c, false, err
	}
	pk, err := optionalBool(v, "primary_key")
	if err != nil {
		return c, false, err
	}

	if defVal := v.LookupPath(cue.ParsePath("default")); defVal.Exists() {
		if c.Default, err = literalText(defVal, field+".default"); err != nil {
			return c, false, err
		}
	}

	if idVal := v.LookupPath(cue.ParsePath("identity")); idVal.Exists() {
		c.Identity = &ir.IdentitySpec{Seed: 1, Increment: 1}
		if b, err := idVal.Bool(); err == nil {
			if !b {
				c.Identity = nil
			}
		} else {
			if seed := idVal.LookupPath(cue.ParsePath("seed")); seed.Exists() {
				if c.Identity.Seed, err = seed.Int64(); err != nil {
					return c, false, formatCUEError(err)
				}
			}
			if inc := idVal.LookupPath(cue.ParsePath("increment")); inc.Exists() {
				if c.Identity.Increment, err = inc.Int64(); err != nil {
					return c, false, formatCUEError(err)
				}
			}
		}
	}
	return c, pk, nil
}

func parseValidator(v cue.Value, field string) (ir.ValidatorSpec, error) {
	var vs ir.ValidatorSpec
	var err error
	if vs.Check, err = optionalString(v, "check"); err != nil {
		return vs, err
	}
	if vs.Warn, err = optionalString(v, "warn"); err != nil {
		return vs, err
	}
	if vs.Required, err = optionalString(v, "required"); err != nil {
		return vs, err
	}
	if vs.Message, err = optionalString(v, "message"); err != nil {
		return vs, err
	}
	set := 0
	for _, s := range []string{vs.Check, vs.Warn, vs.Required} {
		if s != "" {
			set++
		}
	}
	if set != 1 {
		return vs, &CompileError{Field: field, Message: "validator needs exactly one of check, warn or required", Pos: v.Pos()}
	}
	return vs, nil
}

// literalText renders a concrete scalar as the text the builder converts
// by column type.
func literalText(v cue.Value, field string) (string, error) {
	switch v.Kind() {
	case cue.StringKind:
		return v.String()
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return "", formatCUEError(err)
		}
		return strconv.FormatInt(n, 10), nil
	case cue.FloatKind, cue.NumberKind:
		f, err := v.Float64()
		if err != nil {
			return "", formatCUEError(err)
		}
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return "", formatCUEError(err)
		}
		return strconv.FormatBool(b), nil
	}
	return "", &CompileError{Field: field, Message: fmt.Sprintf("default must be a concrete scalar, got %v", v.IncompleteKind()), Pos: v.Pos()}
}

func optionalString(v cue.Value, name string) (string, error) {
	f := v.LookupPath(cue.ParsePath(name))
	if !f.Exists() {
		return "", nil
	}
	s, err := f.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalBool(v cue.Value, name string) (bool, error) {
	f := v.LookupPath(cue.ParsePath(name))
	if !f.Exists() {
		return false, nil
	}
	b, err := f.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

func stringList(v cue.Value) ([]string, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{Field: "cue", Message: first.Error(), Pos: positions[0]}
	}
	return err
}
