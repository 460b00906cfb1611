package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/rdo/internal/data"
	"github.com/roach88/rdo/internal/dbquery"
	"github.com/roach88/rdo/internal/queryir"
)

// Stage copies every row of m into a new temp table. The staged row id is
// the row ordinal plus one. The caller drops the table.
func (s *Session) Stage(ctx context.Context, m *data.Model) (*dbquery.TableSource, error) {
	stage := dbquery.StageTable(m, s.names("stage"))
	def, err := dbquery.StageDefinition(stage)
	if err != nil {
		return nil, fmt.Errorf("stage %s: %w", m.Name(), err)
	}
	if err := s.CreateTempTable(ctx, def); err != nil {
		return nil, err
	}

	cols := dbquery.StagedColumns(m)
	ins := &queryir.Insert{
		Table:   &queryir.Table{Owner: m, Name: stage.Name(), Temp: true},
		Columns: []queryir.Column{stage.RowID()},
		Values:  []queryir.Expr{&queryir.Param{}},
	}
	for _, c := range cols {
		ins.Columns = append(ins.Columns, c)
		ins.Values = append(ins.Values, &queryir.Param{})
	}
	query, _, err := s.compiler.Compile(ins)
	if err != nil {
		s.dropTemp(stage.Name())
		return nil, fmt.Errorf("stage %s: %w", m.Name(), err)
	}

	if err := s.stageRows(ctx, query, m.Rows(), cols); err != nil {
		s.dropTemp(stage.Name())
		return nil, err
	}
	s.logger.Debug("staged", "model", m.Name(), "table", stage.Name(), "rows", len(m.Rows()))
	return stage, nil
}

func (s *Session) stageRows(ctx context.Context, query string, rows []*data.DataRow, cols []data.AnyColumn) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() // No-op if committed

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	args := make([]any, len(cols)+1)
	for _, r := range rows {
		args[0] = int64(r.Ordinal() + 1)
		for i, c := range cols {
			args[i+1] = c.ValueOf(r)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// InsertOptions configures Session.Insert.
type InsertOptions struct {
	// Mappings lists explicit column assignments. Empty maps by name.
	Mappings []dbquery.Mapping

	// Keys selects the key correlation with existing rows.
	Keys dbquery.KeyMode

	// CaptureIdentity writes the generated identity values back into the
	// inserted rows.
	CaptureIdentity bool
}

// Insert copies the rows of m into table and returns the number of rows
// inserted.
//
// With CaptureIdentity, the identity value generated for each inserted row
// is written to the row's identity column with key protection suspended.
// Rows skipped by KeySkipExisting keep their values.
func (s *Session) Insert(ctx context.Context, m *data.Model, table *dbquery.TableSource, opts InsertOptions) (int64, error) {
	stage, err := s.Stage(ctx, m)
	if err != nil {
		return 0, err
	}
	temps := []string{stage.Name()}
	defer func() { s.dropTemp(temps...) }()

	var out *dbquery.OutputTable
	if opts.CaptureIdentity {
		out = dbquery.NewOutputTable(s.names("out"), s.names("trg"))
	}
	ins, err := dbquery.BuildInsert(stage, table, dbquery.InsertOptions{
		Mappings: opts.Mappings,
		Keys:     opts.Keys,
		Output:   out,
	})
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", table.Name(), err)
	}
	if out != nil {
		if err := s.CreateTempTable(ctx, out.Definition()); err != nil {
			return 0, err
		}
		temps = append(temps, out.Name())
	}

	n, err := s.ExecuteNonQuery(ctx, ins)
	if err != nil {
		return 0, err
	}
	s.logger.Info("insert", "model", m.Name(), "table", table.Name(), "rows", n, "keys", opts.Keys.String(), "identity", opts.CaptureIdentity)
	if out == nil || n == 0 {
		return n, nil
	}
	if err := s.readBackIdentity(ctx, m, out); err != nil {
		return n, err
	}
	return n, nil
}

type generated struct {
	ordinal int64
	value   int64
}

// readBackIdentity writes the captured identity values into the rows they
// were generated for.
func (s *Session) readBackIdentity(ctx context.Context, m *data.Model, out *dbquery.OutputTable) error {
	var values []generated
	err := s.ExecuteReader(ctx, out.ReadQuery(), func(rows *sql.Rows) error {
		var g generated
		if err := rows.Scan(&g.ordinal, &g.value); err != nil {
			return fmt.Errorf("scan identity: %w", err)
		}
		values = append(values, g)
		return nil
	})
	if err != nil {
		return err
	}

	identity, _ := m.IdentityColumn()
	rows := m.Rows()
	return m.SuspendKeyProtection(func() error {
		for _, g := range values {
			i := int(g.ordinal) - 1
			if i < 0 || i >= len(rows) {
				return fmt.Errorf("identity read-back: row ordinal %d out of range", g.ordinal)
			}
			if err := identity.Set(rows[i], g.value); err != nil {
				return fmt.Errorf("identity read-back: %w", err)
			}
		}
		s.logger.Debug("identity read back", "model", m.Name(), "rows", len(values))
		return nil
	})
}

// InsertRow inserts one row with INSERT ... VALUES and returns the generated
// identity value, which is also written into the row. Models without an
// identity column return 0.
func (s *Session) InsertRow(ctx context.Context, row *data.DataRow, table *dbquery.TableSource) (int64, error) {
	ins, err := dbquery.BuildInsertRow(row, table)
	if err != nil {
		return 0, fmt.Errorf("insert row into %s: %w", table.Name(), err)
	}
	query, params, err := s.compiler.Compile(ins)
	if err != nil {
		return 0, fmt.Errorf("compile insert: %w", err)
	}
	s.logger.Debug("exec", "sql", query, "params", params)
	res, err := s.db.ExecContext(ctx, query, params...)
	if err != nil {
		return 0, err
	}

	m := row.Model()
	identity, ok := m.IdentityColumn()
	if !ok {
		return 0, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	err = m.SuspendKeyProtection(func() error { return identity.Set(row, id) })
	if err != nil {
		return 0, fmt.Errorf("identity read-back: %w", err)
	}
	return id, nil
}

// Update writes the non-key columns of the rows of m into the table rows
// with the same primary key.
func (s *Session) Update(ctx context.Context, m *data.Model, table *dbquery.TableSource) (int64, error) {
	stage, err := s.Stage(ctx, m)
	if err != nil {
		return 0, err
	}
	defer s.dropTemp(stage.Name())

	upd, err := dbquery.BuildUpdate(stage, table)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", table.Name(), err)
	}
	n, err := s.ExecuteNonQuery(ctx, upd)
	if err != nil {
		return 0, err
	}
	s.logger.Info("update", "model", m.Name(), "table", table.Name(), "rows", n)
	return n, nil
}

// Delete removes the table rows whose primary key matches a row of m.
func (s *Session) Delete(ctx context.Context, m *data.Model, table *dbquery.TableSource) (int64, error) {
	stage, err := s.Stage(ctx, m)
	if err != nil {
		return 0, err
	}
	defer s.dropTemp(stage.Name())

	del, err := dbquery.BuildDelete(stage, table)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", table.Name(), err)
	}
	n, err := s.ExecuteNonQuery(ctx, del)
	if err != nil {
		return 0, err
	}
	s.logger.Info("delete", "model", m.Name(), "table", table.Name(), "rows", n)
	return n, nil
}
