package dbquery

import (
	"github.com/roach88/rdo/internal/data"
	"github.com/roach88/rdo/internal/queryir"
)

// TableDefinition returns the CREATE TABLE statement of t. Computed columns
// are not stored. An identity column becomes the AUTOINCREMENT key and its
// seed primes the backend sequence. When parent is set, the parent mappings
// of the model become a foreign key with ON DELETE CASCADE.
func TableDefinition(t *TableSource, parent *TableSource) (*queryir.CreateTable, error) {
	m := t.Model()
	def := &queryir.CreateTable{Name: t.Name(), Temp: t.IsTemp(), IfNotExists: true}

	pk := m.PrimaryKey()
	identity, hasIdentity := m.IdentityColumn()
	if hasIdentity && (len(pk) > 1 || len(pk) == 1 && pk[0] != data.AnyColumn(identity)) {
		err := data.NewSchemaError(data.ErrCodeInvalidOption, "identity column must be the only primary key column")
		err.Model, err.Column = m.Name(), identity.Name()
		return nil, err
	}

	for _, c := range m.Columns() {
		if c.Kind() == data.KindComputed {
			continue
		}
		col := queryir.ColumnDef{
			Name:    c.DbColumnName(),
			Type:    c.SQLType(),
			NotNull: !c.IsNullable(),
		}
		switch {
		case c.Identity() != nil:
			col.AutoIncrement = true
			if seed := c.Identity().Seed; seed != 1 {
				def.Seed = &seed
			}
		case len(pk) == 1 && pk[0] == c:
			col.PrimaryKey = true
		}
		if v, ok := c.DefaultValue(); ok {
			col.Default = v
		}
		def.Columns = append(def.Columns, col)
	}
	if len(pk) > 1 {
		def.PrimaryKey = columnNames(pk)
	}
	for _, uk := range m.UniqueKeys() {
		def.Unique = append(def.Unique, columnNames(uk.Columns))
	}

	if parent != nil {
		if parent.Model() != m.Parent() {
			return nil, data.NewSchemaError(data.ErrCodeOwnershipMismatch, "%s is not the parent model of %s", parent.Model().Name(), m.Name())
		}
		if mappings := m.ParentMappings(); len(mappings) > 0 {
			fk := queryir.ForeignKey{RefTable: parent.Name(), OnDelete: "CASCADE"}
			for _, cm := range mappings {
				fk.Columns = append(fk.Columns, cm.Child.DbColumnName())
				fk.RefColumns = append(fk.RefColumns, cm.Parent.DbColumnName())
			}
			def.ForeignKeys = append(def.ForeignKeys, fk)
		}
	}
	return def, nil
}

// StageDefinition returns the CREATE TEMP TABLE statement of a staged table:
// sys_row_id followed by every stored or derived column, without
// constraints.
func StageDefinition(t *TableSource) (*queryir.CreateTable, error) {
	if t.rowID == nil {
		return nil, data.NewSchemaError(data.ErrCodeInvalidOption, "%s is not a staged table", t.Name())
	}
	def := &queryir.CreateTable{
		Name: t.Name(),
		Temp: true,
		Columns: []queryir.ColumnDef{
			{Name: queryir.RowIDColumn, Type: "INTEGER", PrimaryKey: true},
		},
	}
	for _, c := range StagedColumns(t.Model()) {
		def.Columns = append(def.Columns, queryir.ColumnDef{Name: c.DbColumnName(), Type: c.SQLType()})
	}
	return def, nil
}

// StagedColumns returns the columns of m written to a staged table, in
// table order after sys_row_id.
func StagedColumns(m *data.Model) []data.AnyColumn {
	var out []data.AnyColumn
	for _, c := range m.Columns() {
		if c.Kind() != data.KindComputed {
			out = append(out, c)
		}
	}
	return out
}

func columnNames(cols []data.AnyColumn) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.DbColumnName()
	}
	return names
}
