package compiler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cuelang.org/go/cue/parser"
	"github.com/shopspring/decimal"

	"github.com/roach88/rdo/internal/data"
	"github.com/roach88/rdo/internal/ir"
)

// Validation error codes (E200-E299)
const (
	ErrSchemaNameEmpty    = "E200" // schema name is required
	ErrNoModels           = "E201" // at least one model required
	ErrModelNoColumns     = "E202" // model must declare columns
	ErrInvalidColumnType  = "E203" // unknown column type
	ErrDuplicateName      = "E204" // duplicate model, column or child name
	ErrUnknownColumn      = "E205" // key, unique or relation names a missing column
	ErrInvalidIdentity    = "E206" // identity on a non-int64 column or bad increment
	ErrInvalidRelation    = "E207" // relation or model wiring rejected by the builder
	ErrInvalidExpression  = "E208" // expression does not parse or type-check
	ErrInvalidDefault     = "E209" // default does not convert to the column type
	ErrDuplicateTable     = "E210" // two models share a table
	ErrComputationCycle   = "E211" // computed columns depend on each other
	ErrInvalidValidator   = "E212" // validator sets none or several of check/warn/required
	ErrComputedConstraint = "E213" // computed column used as key or given a default
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks spec against schema rules.
// Returns all errors found (does not fail-fast). When the structure is
// sound, Validate also builds the models so expression type errors are
// reported.
func Validate(spec *ir.SchemaSpec) []ValidationError {
	v := &validator{tables: make(map[string]string)}

	if strings.TrimSpace(spec.Name) == "" {
		v.add("schema", ErrSchemaNameEmpty, "schema name is required and must be non-empty")
	}
	if len(spec.Models) == 0 {
		v.add("models", ErrNoModels, "at least one model is required")
	}

	roots := make(map[string]bool)
	for i := range spec.Models {
		m := &spec.Models[i]
		if roots[m.Name] {
			v.add("models."+m.Name, ErrDuplicateName, fmt.Sprintf("duplicate model name: %q", m.Name))
		}
		roots[m.Name] = true
		m.Walk(func(path string, ms *ir.ModelSpec) {
			v.model(path, ms, path != m.Name)
		})
	}

	for _, c := range AnalyzeCycles(spec) {
		v.add(c.Path[0], ErrComputationCycle, c.Message)
	}

	if len(v.errs) == 0 {
		if _, err := Build(spec); err != nil {
			v.add("models", buildErrorCode(err), err.Error())
		}
	}
	return v.errs
}

type validator struct {
	errs   []ValidationError
	tables map[string]string // table -> model path
}

func (v *validator) add(field, code, msg string) {
	v.errs = append(v.errs, ValidationError{Field: field, Message: msg, Code: code})
}

func (v *validator) model(path string, m *ir.ModelSpec, child bool) {
	// E202: columns required
	if len(m.Columns) == 0 {
		v.add(path+".columns", ErrModelNoColumns, fmt.Sprintf("model %q must declare at least one column", m.Name))
	}

	table := m.Table
	if table == "" {
		table = strings.ToLower(m.Name)
	}
	if other, dup := v.tables[table]; dup {
		v.add(path+".table", ErrDuplicateTable, fmt.Sprintf("table %q already used by %s", table, other))
	} else {
		v.tables[table] = path
	}

	names := make(map[string]bool)
	for _, c := range m.Columns {
		field := path + ".columns." + c.Name
		if names[c.Name] {
			v.add(field, ErrDuplicateName, fmt.Sprintf("duplicate column name: %q", c.Name))
		}
		names[c.Name] = true
		v.column(field, c)
	}
	for _, ch := range m.Children {
		if names[ch.Name] {
			v.add(path+".children."+ch.Name, ErrDuplicateName, fmt.Sprintf("duplicate name: %q", ch.Name))
		}
		names[ch.Name] = true
	}

	for _, name := range m.PrimaryKey {
		c, ok := m.Column(name)
		switch {
		case !ok:
			v.add(path+".primary_key", ErrUnknownColumn, fmt.Sprintf("primary key column %q not found", name))
		case c.Computed != "":
			v.add(path+".primary_key", ErrComputedConstraint, fmt.Sprintf("computed column %q cannot be part of the primary key", name))
		}
	}
	for _, u := range m.Unique {
		for _, name := range u.Columns {
			if _, ok := m.Column(name); !ok {
				v.add(path+".unique."+u.Name, ErrUnknownColumn, fmt.Sprintf("unique column %q not found", name))
			}
		}
	}

	for _, rel := range m.Relations {
		field := path + ".relate." + rel.Child
		if !child {
			v.add(field, ErrInvalidRelation, "a root model has no parent to relate to")
			continue
		}
		if _, ok := m.Column(rel.Child); !ok {
			v.add(field, ErrUnknownColumn, fmt.Sprintf("column %q not found", rel.Child))
		}
	}

	for i, vs := range m.Validators {
		field := fmt.Sprintf("%s.validators[%d]", path, i)
		set := 0
		for _, s := range []string{vs.Check, vs.Warn, vs.Required} {
			if s != "" {
				set++
			}
		}
		if set != 1 {
			v.add(field, ErrInvalidValidator, "validator needs exactly one of check, warn or required")
			continue
		}
		if vs.Required != "" {
			if _, ok := m.Column(vs.Required); !ok {
				v.add(field, ErrUnknownColumn, fmt.Sprintf("required column %q not found", vs.Required))
			}
			continue
		}
		v.expr(field, vs.Check+vs.Warn)
	}
}

func (v *validator) column(field string, c ir.ColumnSpec) {
	// E203: valid type
	if !ir.ColumnTypes[c.Type] {
		v.add(field+".type", ErrInvalidColumnType, fmt.Sprintf("invalid type %q for column %q", c.Type, c.Name))
		return
	}
	if c.Identity != nil {
		if c.Type != "int64" {
			v.add(field+".identity", ErrInvalidIdentity, fmt.Sprintf("identity column %q must be int64, got %s", c.Name, c.Type))
		}
		if c.Identity.Increment != 1 {
			v.add(field+".identity", ErrInvalidIdentity, fmt.Sprintf("identity increment must be 1, got %d", c.Identity.Increment))
		}
	}
	if c.Computed != "" {
		if c.Default != "" {
			v.add(field+".default", ErrComputedConstraint, "computed column cannot declare a default")
		}
		if c.Identity != nil {
			v.add(field+".identity", ErrComputedConstraint, "computed column cannot be an identity")
		}
		v.expr(field+".computed", c.Computed)
	}
	if c.Default != "" {
		if err := checkDefault(c.Type, c.Default); err != nil {
			v.add(field+".default", ErrInvalidDefault, fmt.Sprintf("default %q: %v", c.Default, err))
		}
	}
}

// expr reports syntax errors. Name resolution and typing are checked by the
// build step.
func (v *validator) expr(field, src string) {
	if _, err := parser.ParseExpr("expr", src); err != nil {
		v.add(field, ErrInvalidExpression, fmt.Sprintf("expression %q: %v", src, err))
	}
}

// buildErrorCode classifies an error returned by Build.
func buildErrorCode(err error) string {
	var exprErr *ExprError
	if errors.As(err, &exprErr) || data.HasCode(err, data.ErrCodeInvalidSource) {
		return ErrInvalidExpression
	}
	if data.IsCycleError(err) {
		return ErrComputationCycle
	}
	return ErrInvalidRelation
}

func checkDefault(typ, s string) error {
	var err error
	switch typ {
	case "int64":
		_, err = strconv.ParseInt(s, 10, 64)
	case "int32":
		_, err = strconv.ParseInt(s, 10, 32)
	case "float64":
		_, err = strconv.ParseFloat(s, 64)
	case "bool":
		_, err = strconv.ParseBool(s)
	case "time":
		_, err = time.Parse(time.RFC3339Nano, s)
	case "decimal":
		_, err = decimal.NewFromString(s)
	}
	return err
}
