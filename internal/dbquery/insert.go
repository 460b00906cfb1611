package dbquery

import (
	"github.com/roach88/rdo/internal/data"
	"github.com/roach88/rdo/internal/queryir"
)

// KeyMode selects how an insert treats rows whose key already exists in the
// target table.
type KeyMode int

const (
	// KeyNone inserts every source row.
	KeyNone KeyMode = iota

	// KeySkipExisting inserts only source rows whose key is not present in
	// the target.
	KeySkipExisting

	// KeyUpsert updates the non-key columns of existing rows.
	KeyUpsert
)

func (k KeyMode) String() string {
	switch k {
	case KeySkipExisting:
		return "skip-existing"
	case KeyUpsert:
		return "upsert"
	}
	return "none"
}

// InsertOptions configures BuildInsert.
type InsertOptions struct {
	// Mappings lists explicit source to target assignments. When empty,
	// target columns are matched with source columns by case-folded name;
	// the identity column never matches.
	Mappings []Mapping

	// Keys selects the key correlation.
	Keys KeyMode

	// Output requests identity capture into the output table. The source
	// must be a staged table.
	Output *OutputTable
}

// Output table column names.
const (
	RowOrdinalColumn = "row_ordinal"
	OldValueColumn   = "old_value"
	NewValueColumn   = "new_value"
)

// OutputTable is the temp table receiving the identity values generated by
// an insert, one row per staged source row:
// (sys_row_id, row_ordinal, old_value, new_value).
type OutputTable struct {
	table    *queryir.Table
	trigger  string
	rowID    *queryir.SysColumn
	ordinal  *queryir.SysColumn
	oldValue *queryir.SysColumn
	newValue *queryir.SysColumn
}

// NewOutputTable declares an output temp table and the name of the trigger
// that fills it.
func NewOutputTable(name, trigger string) *OutputTable {
	owner := &queryir.NamedOwner{Name: name}
	return &OutputTable{
		table:    &queryir.Table{Owner: owner, Name: name, Temp: true},
		trigger:  trigger,
		rowID:    &queryir.SysColumn{Owner: owner, Name: queryir.RowIDColumn},
		ordinal:  &queryir.SysColumn{Owner: owner, Name: RowOrdinalColumn},
		oldValue: &queryir.SysColumn{Owner: owner, Name: OldValueColumn},
		newValue: &queryir.SysColumn{Owner: owner, Name: NewValueColumn},
	}
}

// Name returns the temp table name.
func (o *OutputTable) Name() string { return o.table.Name }

// Ordinal returns the row_ordinal column.
func (o *OutputTable) Ordinal() queryir.Column { return o.ordinal }

// NewValue returns the new_value column.
func (o *OutputTable) NewValue() queryir.Column { return o.newValue }

// Definition returns the CREATE TEMP TABLE statement.
func (o *OutputTable) Definition() *queryir.CreateTable {
	return &queryir.CreateTable{
		Name: o.table.Name,
		Temp: true,
		Columns: []queryir.ColumnDef{
			{Name: queryir.RowIDColumn, Type: "INTEGER", AutoIncrement: true},
			{Name: RowOrdinalColumn, Type: "INTEGER", NotNull: true},
			{Name: OldValueColumn, Type: "INTEGER"},
			{Name: NewValueColumn, Type: "INTEGER"},
		},
	}
}

// ReadQuery selects (row_ordinal, new_value) for every captured row in
// insert order.
func (o *OutputTable) ReadQuery() *queryir.Select {
	s := queryir.NewSelect(o.table.Owner)
	s.From = o.table
	s.Columns = []queryir.Mapping{
		{Source: queryir.Ref(o.ordinal), Target: o.ordinal},
		{Source: queryir.Ref(o.newValue), Target: o.newValue},
	}
	s.Where = &queryir.Unary{Op: queryir.OpIsNotNull, Operand: queryir.Ref(o.newValue)}
	s.OrderBy = []queryir.Sort{{Expr: queryir.Ref(o.rowID)}}
	return s
}

// Keys returns the columns identifying rows of m for key correlation: the
// primary key without the identity column, else the first unique key.
func Keys(m *data.Model) ([]data.AnyColumn, error) {
	var keys []data.AnyColumn
	for _, c := range m.PrimaryKey() {
		if c.Identity() == nil {
			keys = append(keys, c)
		}
	}
	if len(keys) > 0 {
		return keys, nil
	}
	if uks := m.UniqueKeys(); len(uks) > 0 {
		return uks[0].Columns, nil
	}
	return nil, data.NewSchemaError(data.ErrCodeNoPrimaryKey, "%s has no key to correlate inserted rows with", m.Name())
}

// BuildInsert returns the INSERT ... SELECT copying the rows of source into
// target.
func BuildInsert(source Source, target *TableSource, opts InsertOptions) (*queryir.Insert, error) {
	tm := target.Model()
	identity, hasIdentity := tm.IdentityColumn()

	mappings := opts.Mappings
	if len(mappings) == 0 {
		mappings = matchByKey(sourceColumns(source), tm.Columns(), func(c data.AnyColumn) bool {
			return c.Identity() != nil
		})
	}
	for _, m := range mappings {
		if m.Target.Model() != tm {
			err := data.NewSchemaError(data.ErrCodeOwnershipMismatch, "insert into %s maps a column of %s", target.Name(), m.Target.Model().Name())
			err.Column = m.Target.Name()
			return nil, err
		}
		if m.Target.Kind() == data.KindComputed {
			err := data.NewSchemaError(data.ErrCodeReadOnly, "computed column cannot be inserted")
			err.Model, err.Column = tm.Name(), m.Target.Name()
			return nil, err
		}
		if opts.Output != nil && m.Target.Identity() != nil {
			return nil, data.NewSchemaError(data.ErrCodeInvalidOption, "identity capture with an explicit identity value")
		}
	}
	if len(mappings) == 0 {
		return nil, data.NewSchemaError(data.ErrCodeInvalidOption, "no columns of %s match the source", tm.Name())
	}

	s := queryir.NewSelect(tm)
	s.From = source.fromItem()
	ins := &queryir.Insert{Table: target.table(), Select: s}
	for _, m := range mappings {
		s.Columns = append(s.Columns, queryir.Mapping{Source: m.Source.DbExpr(), Target: m.Target})
		ins.Columns = append(ins.Columns, m.Target)
	}

	switch opts.Keys {
	case KeySkipExisting:
		keys, err := Keys(tm)
		if err != nil {
			return nil, err
		}
		alias := &queryir.NamedOwner{Name: target.Name()}
		var on queryir.Expr
		var probe queryir.Expr
		for _, k := range keys {
			src := sourceOf(s.Columns, k)
			if src == nil {
				err := data.NewSchemaError(data.ErrCodeInvalidOption, "key column is not mapped")
				err.Model, err.Column = tm.Name(), k.Name()
				return nil, err
			}
			existing := queryir.Ref(&queryir.SysColumn{Owner: alias, Name: k.DbColumnName()})
			on = queryir.And(on, queryir.Eq(src, existing))
			if probe == nil {
				probe = &queryir.Unary{Op: queryir.OpIsNull, Operand: existing}
			}
		}
		s.From = &queryir.Join{
			Kind:  queryir.JoinLeft,
			Left:  s.From,
			Right: &queryir.Table{Owner: alias, Name: target.Name(), Temp: target.IsTemp()},
			On:    on,
		}
		s.Where = probe
	case KeyUpsert:
		if opts.Output != nil {
			return nil, data.NewSchemaError(data.ErrCodeInvalidOption, "identity capture cannot be combined with upsert")
		}
		keys, err := Keys(tm)
		if err != nil {
			return nil, err
		}
		oc := &queryir.OnConflict{}
		isKey := make(map[queryir.Column]bool, len(keys))
		for _, k := range keys {
			oc.Keys = append(oc.Keys, k)
			isKey[k] = true
		}
		for _, c := range ins.Columns {
			if !isKey[c] {
				oc.Update = append(oc.Update, c)
			}
		}
		ins.OnConflict = oc
	}

	if out := opts.Output; out != nil {
		if !hasIdentity {
			return nil, data.NewSchemaError(data.ErrCodeNoIdentity, "%s has no identity column to capture", tm.Name())
		}
		if inc := identity.Identity().Increment; inc != 1 {
			return nil, data.NewSchemaError(data.ErrCodeInvalidOption, "identity increment %d is not supported by the backend", inc)
		}
		staged, ok := source.(*TableSource)
		if !ok || staged.rowID == nil {
			return nil, data.NewSchemaError(data.ErrCodeInvalidOption, "identity capture needs a staged source table")
		}
		ordinal := queryir.Ref(staged.rowID)
		var old queryir.Expr = &queryir.Null{}
		if srcIdentity, ok := staged.Model().IdentityColumn(); ok {
			old = srcIdentity.DbExpr()
		}
		s.OrderBy = []queryir.Sort{{Expr: ordinal}}
		ins.Output = &queryir.IdentityOutput{
			Table:      out.table,
			Trigger:    out.trigger,
			RowID:      out.rowID,
			RowOrdinal: out.ordinal,
			OldValue:   out.oldValue,
			NewValue:   out.newValue,
			Identity:   identity,
			Ordinal:    ordinal,
			Old:        old,
		}
	}
	return ins, nil
}

// BuildInsertRow returns an INSERT ... VALUES of one row. The identity
// column is left to the backend.
func BuildInsertRow(row *data.DataRow, target *TableSource) (*queryir.Insert, error) {
	tm := target.Model()
	if row.Model() != tm {
		return nil, data.NewSchemaError(data.ErrCodeOwnershipMismatch, "row of %s inserted into table of %s", row.Model().Name(), tm.Name())
	}
	ins := &queryir.Insert{Table: target.table(), Values: []queryir.Expr{}}
	for _, c := range tm.Columns() {
		if c.Kind() != data.KindUser || c.Identity() != nil {
			continue
		}
		ins.Columns = append(ins.Columns, c)
		ins.Values = append(ins.Values, &queryir.Param{Value: c.ValueOf(row)})
	}
	return ins, nil
}

// BuildUpdate returns the UPDATE ... FROM writing the non-key columns of the
// source rows into the target rows with the same primary key.
func BuildUpdate(source Source, target *TableSource) (*queryir.Update, error) {
	tm := target.Model()
	pk := tm.PrimaryKey()
	if len(pk) == 0 {
		return nil, data.NewSchemaError(data.ErrCodeNoPrimaryKey, "%s has no primary key to update by", tm.Name())
	}
	alias := &queryir.NamedOwner{Name: target.Name()}
	upd := &queryir.Update{
		Table: &queryir.Table{Owner: alias, Name: target.Name(), Temp: target.IsTemp()},
		From:  source.fromItem(),
	}
	mappings := matchByKey(sourceColumns(source), tm.Columns(), nil)
	isKey := make(map[data.AnyColumn]bool, len(pk))
	for _, c := range pk {
		isKey[c] = true
	}
	var cols []queryir.Mapping
	for _, m := range mappings {
		cols = append(cols, queryir.Mapping{Source: m.Source.DbExpr(), Target: m.Target})
		if !isKey[m.Target] && m.Target.Identity() == nil {
			upd.Set = append(upd.Set, queryir.Mapping{Source: m.Source.DbExpr(), Target: m.Target})
		}
	}
	if len(upd.Set) == 0 {
		return nil, data.NewSchemaError(data.ErrCodeInvalidOption, "no updatable columns of %s match the source", tm.Name())
	}
	for _, c := range pk {
		src := sourceOf(cols, c)
		if src == nil {
			err := data.NewSchemaError(data.ErrCodeInvalidOption, "primary key column is not mapped")
			err.Model, err.Column = tm.Name(), c.Name()
			return nil, err
		}
		upd.Where = queryir.And(upd.Where, queryir.Eq(queryir.Ref(&queryir.SysColumn{Owner: alias, Name: c.DbColumnName()}), src))
	}
	return upd, nil
}

// BuildDelete returns the DELETE removing target rows whose primary key
// appears in source.
func BuildDelete(source Source, target *TableSource) (*queryir.Delete, error) {
	tm := target.Model()
	pk := tm.PrimaryKey()
	if len(pk) == 0 {
		return nil, data.NewSchemaError(data.ErrCodeNoPrimaryKey, "%s has no primary key to delete by", tm.Name())
	}
	alias := &queryir.NamedOwner{Name: target.Name()}
	cols := matchByKey(sourceColumns(source), pk, nil)
	probe := queryir.NewSelect(source.Model())
	probe.From = source.fromItem()
	for _, c := range pk {
		var src queryir.Expr
		for _, m := range cols {
			if m.Target == c {
				src = m.Source.DbExpr()
			}
		}
		if src == nil {
			err := data.NewSchemaError(data.ErrCodeInvalidOption, "primary key column is not mapped")
			err.Model, err.Column = tm.Name(), c.Name()
			return nil, err
		}
		probe.Where = queryir.And(probe.Where, queryir.Eq(src, queryir.Ref(&queryir.SysColumn{Owner: alias, Name: c.DbColumnName()})))
	}
	return &queryir.Delete{
		Table: &queryir.Table{Owner: alias, Name: target.Name(), Temp: target.IsTemp()},
		Where: &queryir.Exists{Query: probe},
	}, nil
}
