package querysql

import (
	"fmt"

	"github.com/roach88/rdo/internal/queryir"
)

// compileIdentityInsert lowers an INSERT ... SELECT with identity capture.
//
// The script is:
//
//  1. INSERT INTO output (row_ordinal, old_value) SELECT ordinal, old
//     FROM <source> WHERE <filter> ORDER BY <order>
//  2. CREATE TEMP TRIGGER that writes NEW.<identity> into the first output
//     row whose new_value is still null
//  3. the INSERT itself (primary)
//  4. DROP TRIGGER
//
// Steps 1 and 3 read the same source in the same order, so the n-th
// inserted row pairs with the n-th output row.
func compileIdentityInsert(ins *queryir.Insert) (Script, error) {
	out := ins.Output
	if out.Table == nil || out.Trigger == "" {
		return Script{}, fmt.Errorf("identity output needs a table and a trigger name")
	}
	if out.Identity == nil || out.Ordinal == nil {
		return Script{}, fmt.Errorf("identity output needs the identity column and a row ordinal")
	}

	seed := newWriter()
	seed.write("INSERT INTO ", quoteIdent(out.Table.Name), " (",
		quoteIdent(out.RowOrdinal.DbColumnName()), ", ", quoteIdent(out.OldValue.DbColumnName()), ") ")
	old := out.Old
	if old == nil {
		old = &queryir.Null{}
	}
	capture := *ins.Select
	capture.Columns = []queryir.Mapping{
		{Source: out.Ordinal, Target: out.RowOrdinal},
		{Source: old, Target: out.OldValue},
	}
	seed.push()
	err := seed.selectBody(&capture, false)
	seed.pop()
	if err != nil {
		return Script{}, fmt.Errorf("compile identity capture: %w", err)
	}

	outName := quoteIdent(out.Table.Name)
	rowID := quoteIdent(out.RowID.DbColumnName())
	newValue := quoteIdent(out.NewValue.DbColumnName())
	trigger := Command{SQL: "CREATE TEMP TRIGGER " + quoteIdent(out.Trigger) +
		" AFTER INSERT ON " + quoteIdent(ins.Table.Name) +
		" BEGIN UPDATE " + outName + " SET " + newValue + " = NEW." + quoteIdent(out.Identity.DbColumnName()) +
		" WHERE " + rowID + " = (SELECT MIN(" + rowID + ") FROM " + outName +
		" WHERE " + newValue + " IS NULL); END"}

	main := newWriter()
	if err := main.insert(ins); err != nil {
		return Script{}, err
	}

	drop := Command{SQL: "DROP TRIGGER " + quoteIdent(out.Trigger)}
	return Script{
		Commands: []Command{seed.command(), trigger, main.command(), drop},
		Primary:  2,
		Cleanup:  []Command{{SQL: "DROP TRIGGER IF EXISTS " + quoteIdent(out.Trigger)}},
	}, nil
}
