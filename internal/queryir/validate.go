package queryir

import (
	"fmt"
	"strings"
)

// ValidationResult contains the structural problems found in a statement.
type ValidationResult struct {
	// Valid is true when Problems is empty.
	Valid bool

	// Problems lists every structural defect, in traversal order.
	Problems []string
}

// Err returns the problems as a single error, or nil for a valid statement.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return fmt.Errorf("invalid statement: %s", strings.Join(r.Problems, "; "))
}

// Validate checks that a statement tree is well formed:
//  1. every Select has a FROM source and a non-empty select list
//  2. mappings have both a source and a target, and target names are unique
//  3. union members project the same column names in the same order
//  4. inserts carry exactly one of Select and Values, matching Columns
//  5. identity output is only requested for INSERT ... SELECT
//
// Validate is a pure function with no side effects.
func Validate(stmt Statement) ValidationResult {
	v := &validator{problems: []string{}}
	v.validateStatement(stmt)
	return ValidationResult{Valid: len(v.problems) == 0, Problems: v.problems}
}

type validator struct {
	problems []string
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validateStatement(stmt Statement) {
	switch s := stmt.(type) {
	case nil:
		v.addProblem("nil statement")
	case *Select:
		v.validateSelect(s)
	case *Union:
		v.validateUnion(s)
	case *Insert:
		v.validateInsert(s)
	case *Update:
		if s.Table == nil {
			v.addProblem("update without target table")
		}
		if len(s.Set) == 0 {
			v.addProblem("update without SET columns")
		}
		v.validateMappings(s.Set)
		if s.From != nil {
			v.validateSource(s.From)
		}
	case *Delete:
		if s.Table == nil {
			v.addProblem("delete without target table")
		}
	case *CreateTable:
		if s.Name == "" {
			v.addProblem("create table without name")
		}
		if len(s.Columns) == 0 {
			v.addProblem("create table %s without columns", s.Name)
		}
	case *DropTable:
		if s.Name == "" {
			v.addProblem("drop table without name")
		}
	default:
		v.addProblem("unknown statement type: %T", stmt)
	}
}

func (v *validator) validateSelect(s *Select) {
	if s.From == nil {
		v.addProblem("select without FROM source")
	} else {
		v.validateSource(s.From)
	}
	if len(s.Columns) == 0 {
		v.addProblem("select with empty column list")
	}
	v.validateMappings(s.Columns)
	if s.Offset >= 0 && s.Fetch < 0 && len(s.OrderBy) == 0 {
		v.addProblem("OFFSET without ORDER BY is not deterministic")
	}
}

func (v *validator) validateMappings(ms []Mapping) {
	seen := make(map[string]bool, len(ms))
	for i, m := range ms {
		if m.Source == nil {
			v.addProblem("mapping %d has no source", i)
		}
		if m.Target == nil {
			v.addProblem("mapping %d has no target", i)
			continue
		}
		name := m.Target.DbColumnName()
		if seen[name] {
			v.addProblem("duplicate output column %q", name)
		}
		seen[name] = true
	}
}

func (v *validator) validateSource(src Source) {
	switch s := src.(type) {
	case *Table:
		if s.Name == "" {
			v.addProblem("table source without name")
		}
		if s.Owner == nil {
			v.addProblem("table source %s without owner", s.Name)
		}
	case *Join:
		v.validateSource(s.Left)
		v.validateSource(s.Right)
		if s.Kind != JoinCross && s.On == nil {
			v.addProblem("%s without ON condition", s.Kind)
		}
	case *Select:
		v.validateSelect(s)
	case *Union:
		v.validateUnion(s)
	default:
		v.addProblem("unknown source type: %T", src)
	}
}

func (v *validator) validateUnion(u *Union) {
	if len(u.Queries) < 2 {
		v.addProblem("union needs at least two queries, got %d", len(u.Queries))
	}
	for i, q := range u.Queries {
		v.validateSelect(q)
		if i == 0 {
			continue
		}
		if !sameColumnNames(u.Queries[0].Columns, q.Columns) {
			v.addProblem("union query %d projects different columns than query 0", i)
		}
	}
}

func sameColumnNames(a, b []Mapping) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Target == nil || b[i].Target == nil {
			return false
		}
		if a[i].Target.DbColumnName() != b[i].Target.DbColumnName() {
			return false
		}
	}
	return true
}

func (v *validator) validateInsert(ins *Insert) {
	if ins.Table == nil {
		v.addProblem("insert without target table")
	}
	switch {
	case ins.Select != nil && ins.Values != nil:
		v.addProblem("insert with both SELECT and VALUES")
	case ins.Select != nil:
		v.validateSelect(ins.Select)
		if len(ins.Select.Columns) != len(ins.Columns) {
			v.addProblem("insert lists %d columns but select projects %d", len(ins.Columns), len(ins.Select.Columns))
		}
	case ins.Values != nil:
		if len(ins.Values) != len(ins.Columns) {
			v.addProblem("insert lists %d columns but has %d values", len(ins.Columns), len(ins.Values))
		}
		if ins.Output != nil {
			v.addProblem("identity output requires INSERT ... SELECT")
		}
	default:
		v.addProblem("insert without SELECT or VALUES")
	}
	if ins.Output != nil && ins.OnConflict != nil {
		v.addProblem("identity output cannot be combined with ON CONFLICT")
	}
}
