package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/rdo/internal/dbquery"
	"github.com/roach88/rdo/internal/queryir"
	"github.com/roach88/rdo/internal/querysql"
)

// ExecuteReader runs a query and calls fn for every row. The result set is
// drained and closed before ExecuteReader returns.
func (s *Session) ExecuteReader(ctx context.Context, stmt queryir.Statement, fn func(*sql.Rows) error) error {
	query, params, err := s.compiler.Compile(stmt)
	if err != nil {
		return fmt.Errorf("compile query: %w", err)
	}
	s.logger.Debug("query", "sql", query, "params", params)

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// ExecuteNonQuery runs a statement and returns the number of rows affected
// by its primary command.
func (s *Session) ExecuteNonQuery(ctx context.Context, stmt queryir.Statement) (int64, error) {
	script, err := s.compiler.CompileScript(stmt)
	if err != nil {
		return 0, fmt.Errorf("compile statement: %w", err)
	}
	return s.runScript(ctx, script)
}

// runScript executes the commands of script in order. When a command fails
// the cleanup commands run and the original error is returned.
func (s *Session) runScript(ctx context.Context, script querysql.Script) (int64, error) {
	var affected int64
	for i, cmd := range script.Commands {
		s.logger.Debug("exec", "sql", cmd.SQL, "params", cmd.Params)
		res, err := s.db.ExecContext(ctx, cmd.SQL, cmd.Params...)
		if err != nil {
			s.cleanup(script.Cleanup)
			return 0, err
		}
		if i == script.Primary {
			if affected, err = res.RowsAffected(); err != nil {
				s.cleanup(script.Cleanup)
				return 0, err
			}
		}
	}
	return affected, nil
}

func (s *Session) cleanup(cmds []querysql.Command) {
	for _, cmd := range cmds {
		// ctx may already be cancelled; cleanup still has to run
		if _, err := s.db.ExecContext(context.Background(), cmd.SQL, cmd.Params...); err != nil {
			s.logger.Warn("cleanup failed", "sql", cmd.SQL, "error", err)
		}
	}
}

// CreateTempTable creates a temp table.
func (s *Session) CreateTempTable(ctx context.Context, def *queryir.CreateTable) error {
	if !def.Temp {
		return fmt.Errorf("create temp table: %s is not declared TEMP", def.Name)
	}
	_, err := s.ExecuteNonQuery(ctx, def)
	return err
}

// DropTable drops a table if it exists.
func (s *Session) DropTable(ctx context.Context, name string) error {
	_, err := s.ExecuteNonQuery(ctx, &queryir.DropTable{Name: name, IfExists: true})
	return err
}

// dropTemp drops temp tables created for one operation. Failures are
// logged; the operation result stands.
func (s *Session) dropTemp(names ...string) {
	for _, name := range names {
		if err := s.DropTable(context.Background(), name); err != nil {
			s.logger.Warn("drop temp table failed", "table", name, "error", err)
		}
	}
}

// Table pairs a table with the parent table its foreign key references.
type Table struct {
	Source *dbquery.TableSource
	Parent *dbquery.TableSource
}

// CreateTables creates the given tables in order, parents first.
func (s *Session) CreateTables(ctx context.Context, tables ...Table) error {
	for _, t := range tables {
		def, err := dbquery.TableDefinition(t.Source, t.Parent)
		if err != nil {
			return fmt.Errorf("create table %s: %w", t.Source.Name(), err)
		}
		if _, err := s.ExecuteNonQuery(ctx, def); err != nil {
			return err
		}
		s.logger.Info("table created", "table", def.Name)
	}
	return nil
}
