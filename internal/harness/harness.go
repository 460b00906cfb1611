package harness

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/roach88/rdo/internal/compiler"
	"github.com/roach88/rdo/internal/config"
	"github.com/roach88/rdo/internal/data"
	"github.com/roach88/rdo/internal/dbquery"
	"github.com/roach88/rdo/internal/ir"
	"github.com/roach88/rdo/internal/store"
	"github.com/roach88/rdo/internal/testutil"
)

// Harness runs a scenario against one store session. Temp object names
// come from a sequence so that every run emits identical SQL.
type Harness struct {
	spec     *ir.SchemaSpec
	schema   *compiler.Schema
	session  *store.Session
	sets     map[string]*data.DataSet
	cancel   []func()
	flags    config.Flags
	database string
	names    *testutil.NameSequence
	logger   *slog.Logger
	result   *Result
}

// Option configures Run.
type Option func(*Harness)

// WithFlags sets the compiler feature flags used by fill queries.
func WithFlags(flags config.Flags) Option {
	return func(h *Harness) { h.flags = flags }
}

// WithLogger sets the logger passed to the store session.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// WithDatabase runs the scenario against the database at path instead of a
// private in-memory one. The tables must not exist yet.
func WithDatabase(path string) Option {
	return func(h *Harness) { h.database = path }
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Load, validate and build the schema
//  2. Create one table per model in a fresh database
//  3. Load the initial rows into memory
//  4. Execute the steps in order
//  5. Capture the final rows and tables, then evaluate assertions
//
// A step that fails aborts the run with an error. Failed assertions are
// reported in the result.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	spec, err := compiler.LoadFile(scenario.Schema)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}
	if errs := compiler.Validate(spec); len(errs) > 0 {
		return nil, fmt.Errorf("invalid schema: %w", errs[0])
	}

	h := &Harness{
		spec:     spec,
		flags:    config.Default(),
		database: ":memory:",
		names:    testutil.NewNameSequence(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		result:   NewResult(),
	}
	for _, opt := range opts {
		opt(h)
	}

	st, err := store.Open(h.database, store.WithLogger(h.logger), store.WithNames(h.names.Next))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()
	h.session = st
	defer h.unsubscribe()

	if err := h.build(true); err != nil {
		return nil, err
	}

	ctx := context.Background()
	if err := h.createTables(ctx); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	if err := h.loadData(scenario.Data); err != nil {
		return nil, fmt.Errorf("failed to load data: %w", err)
	}
	if err := h.executeSteps(ctx, scenario.Steps); err != nil {
		return nil, err
	}
	if err := h.snapshot(ctx); err != nil {
		return nil, fmt.Errorf("failed to capture state: %w", err)
	}

	actx := &AssertionContext{
		Session: st,
		Ctx:     ctx,
		Rows:    h.resolveRow,
	}
	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions, actx) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

// build replaces the working schema. With bind set, every root model gets
// an empty DataSet; otherwise Fill creates them.
func (h *Harness) build(bind bool) error {
	h.unsubscribe()
	schema, err := compiler.Build(h.spec)
	if err != nil {
		return fmt.Errorf("failed to build schema: %w", err)
	}
	h.schema = schema
	h.sets = make(map[string]*data.DataSet, len(schema.Roots()))
	for _, root := range schema.Roots() {
		if bind {
			ds, err := data.NewDataSet(root)
			if err != nil {
				return err
			}
			h.sets[root.Name()] = ds
		}
		h.cancel = append(h.cancel, root.Subscribe(func(e data.Event) {
			h.result.Events = append(h.result.Events, e.String())
		}))
	}
	return nil
}

func (h *Harness) unsubscribe() {
	for _, cancel := range h.cancel {
		cancel()
	}
	h.cancel = nil
}

func (h *Harness) createTables(ctx context.Context) error {
	tables := make([]store.Table, 0, len(h.schema.Models()))
	for _, m := range h.schema.Models() {
		t := store.Table{Source: h.schema.Table(m)}
		if m.Parent() != nil {
			t.Parent = h.schema.Table(m.Parent())
		}
		tables = append(tables, t)
	}
	return h.session.CreateTables(ctx, tables...)
}

// loadData adds the initial rows, roots in declaration order.
func (h *Harness) loadData(rows map[string][]Row) error {
	for name := range rows {
		if _, ok := h.sets[name]; !ok {
			return fmt.Errorf("data: %q is not a root model", name)
		}
	}
	for _, root := range h.schema.Roots() {
		ds := h.sets[root.Name()]
		for i, values := range rows[root.Name()] {
			if _, err := addRow(ds, values); err != nil {
				return fmt.Errorf("%s[%d]: %w", root.Name(), i, err)
			}
		}
	}
	return nil
}

// addRow appends a row holding values, then its child rows.
func addRow(ds *data.DataSet, values Row) (*data.DataRow, error) {
	m := ds.Model()
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var children []*data.Model
	row, err := ds.AddRow(func(r *data.DataRow) error {
		for _, name := range keys {
			if cm, ok := m.Child(name); ok {
				children = append(children, cm)
				continue
			}
			c, ok := m.Column(name)
			if !ok {
				return fmt.Errorf("%s has no column or child model %q", m.Name(), name)
			}
			if err := c.SetAny(r, driverValue(values[name])); err != nil {
				return fmt.Errorf("%s.%s: %w", m.Name(), name, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, cm := range children {
		list, ok := values[cm.Name()].([]interface{})
		if !ok {
			return nil, fmt.Errorf("%s.%s: child rows must be a list", m.Name(), cm.Name())
		}
		for i, item := range list {
			var cv Row
			switch v := item.(type) {
			case Row:
				cv = v
			case map[string]interface{}:
				cv = Row(v)
			default:
				return nil, fmt.Errorf("%s.%s[%d]: row must be a map", m.Name(), cm.Name(), i)
			}
			if _, err := addRow(row.Children(cm), cv); err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", cm.Name(), i, err)
			}
		}
	}
	return row, nil
}

// driverValue converts a decoded YAML scalar to the value a column accepts.
func driverValue(v interface{}) any {
	if n, ok := v.(int); ok {
		return int64(n)
	}
	return v
}

func parseKeyMode(s string) (dbquery.KeyMode, error) {
	switch strings.ReplaceAll(s, "-", "_") {
	case "", "none":
		return dbquery.KeyNone, nil
	case "skip_existing":
		return dbquery.KeySkipExisting, nil
	case "upsert":
		return dbquery.KeyUpsert, nil
	}
	return dbquery.KeyNone, fmt.Errorf("unknown key mode %q (must be none, skip_existing or upsert)", s)
}

func (h *Harness) executeSteps(ctx context.Context, steps []Step) error {
	for i, step := range steps {
		ev, err := h.executeStep(ctx, step)
		if err != nil {
			return fmt.Errorf("steps[%d] %s: %w", i, step.Action(), err)
		}
		seq := h.result.AddStepTrace(ev)
		h.logger.Debug("step", "seq", seq, "step", ev.Step, "target", ev.Target, "rows", ev.Rows)
	}
	return nil
}

func (h *Harness) executeStep(ctx context.Context, step Step) (TraceEvent, error) {
	ev := TraceEvent{Step: step.Action()}
	switch ev.Step {
	case StepInsert:
		ev.Target = step.Insert
		m, err := h.model(step.Insert)
		if err != nil {
			return ev, err
		}
		keys, err := parseKeyMode(step.Keys)
		if err != nil {
			return ev, err
		}
		ev.Rows, err = h.session.Insert(ctx, m, h.schema.Table(m), store.InsertOptions{
			Keys:            keys,
			CaptureIdentity: step.Identity,
		})
		return ev, err

	case StepUpdate:
		ev.Target = step.Update
		m, err := h.model(step.Update)
		if err != nil {
			return ev, err
		}
		ev.Rows, err = h.session.Update(ctx, m, h.schema.Table(m))
		return ev, err

	case StepDelete:
		ev.Target = step.Delete
		m, err := h.model(step.Delete)
		if err != nil {
			return ev, err
		}
		ev.Rows, err = h.session.Delete(ctx, m, h.schema.Table(m))
		return ev, err

	case StepSet:
		ev.Target, ev.Column = step.Set.Row, step.Set.Column
		row, err := h.resolveRow(step.Set.Row)
		if err != nil {
			return ev, err
		}
		c, ok := row.Model().Column(step.Set.Column)
		if !ok {
			return ev, fmt.Errorf("%s has no column %q", row.Model().Name(), step.Set.Column)
		}
		if err := c.SetAny(row, driverValue(step.Set.Value)); err != nil {
			return ev, err
		}
		ev.Value = c.Format(row)
		return ev, nil

	case StepAdd:
		ev.Target = step.Add.At
		ds, err := h.resolveSet(step.Add.At)
		if err != nil {
			return ev, err
		}
		_, err = addRow(ds, step.Add.Values)
		return ev, err

	case StepRemove:
		ev.Target = step.Remove
		row, err := h.resolveRow(step.Remove)
		if err != nil {
			return ev, err
		}
		return ev, row.DataSet().Remove(row)

	case StepFill:
		n, err := h.fill(ctx)
		ev.Rows = n
		return ev, err
	}
	return ev, fmt.Errorf("no action")
}

// fill rebuilds the schema and loads every root model tree from the
// database. It returns the number of rows loaded.
func (h *Harness) fill(ctx context.Context) (int64, error) {
	if err := h.build(false); err != nil {
		return 0, err
	}
	var n int64
	for _, root := range h.schema.Roots() {
		var children []*dbquery.Builder
		for _, m := range h.schema.Models() {
			if m != root && m.Root() == root {
				children = append(children, h.query(m))
			}
		}
		ds, err := h.session.Fill(ctx, h.query(root), children...)
		if err != nil {
			return n, fmt.Errorf("fill %s: %w", root.Name(), err)
		}
		h.sets[root.Name()] = ds
		n += int64(len(flatten(ds)))
	}
	return n, nil
}

// query selects every row of the table of m in primary key order.
func (h *Harness) query(m *data.Model) *dbquery.Builder {
	table := h.schema.Table(m)
	b := dbquery.NewBuilder(m, h.flags.BuilderOptions()...).From(table).SelectAll(table)
	var order []dbquery.Order
	for _, c := range m.PrimaryKey() {
		order = append(order, dbquery.Asc(c))
	}
	if len(order) > 0 {
		b = b.OrderBy(order...)
	}
	return b
}

func (h *Harness) model(path string) (*data.Model, error) {
	m, ok := h.schema.Model(path)
	if !ok {
		return nil, fmt.Errorf("unknown model %q", path)
	}
	return m, nil
}

// resolveRow resolves a reference such as "Order/0/Items/1": a root model
// name followed by a row path.
func (h *Harness) resolveRow(ref string) (*data.DataRow, error) {
	root, path, ok := strings.Cut(ref, "/")
	if !ok {
		return nil, fmt.Errorf("row reference %q has no row path", ref)
	}
	ds, ok := h.sets[root]
	if !ok {
		return nil, fmt.Errorf("row reference %q: %q is not a root model", ref, root)
	}
	return data.ParseRowPath(ds, "/"+path)
}

// resolveSet resolves a root model name, or a row reference followed by a
// child model name.
func (h *Harness) resolveSet(at string) (*data.DataSet, error) {
	i := strings.LastIndexByte(at, '/')
	if i < 0 {
		ds, ok := h.sets[at]
		if !ok {
			return nil, fmt.Errorf("%q is not a root model", at)
		}
		return ds, nil
	}
	row, err := h.resolveRow(at[:i])
	if err != nil {
		return nil, err
	}
	cm, ok := row.Model().Child(at[i+1:])
	if !ok {
		return nil, fmt.Errorf("%s has no child model %q", row.Model().Name(), at[i+1:])
	}
	return row.Children(cm), nil
}

// snapshot records the final rows and tables.
func (h *Harness) snapshot(ctx context.Context) error {
	for _, root := range h.schema.Roots() {
		for _, r := range flatten(h.sets[root.Name()]) {
			h.result.Rows = append(h.result.Rows, rowState(r))
		}
	}
	for _, m := range h.schema.Models() {
		ts, err := tableState(ctx, h.session.DB(), h.schema.Table(m).Name())
		if err != nil {
			return err
		}
		h.result.Tables = append(h.result.Tables, ts)
	}
	return nil
}

// flatten lists the rows of ds and their descendants in pre-order.
func flatten(ds *data.DataSet) []*data.DataRow {
	var out []*data.DataRow
	var walk func(*data.DataSet)
	walk = func(ds *data.DataSet) {
		for _, r := range ds.Rows() {
			out = append(out, r)
			for _, cs := range r.ChildSets() {
				walk(cs)
			}
		}
	}
	walk(ds)
	return out
}

func rowState(r *data.DataRow) DataRowState {
	m := r.Model()
	st := DataRowState{Model: modelPath(m), Path: r.Path()}
	for _, c := range m.Columns() {
		st.Columns = append(st.Columns, c.Name())
		st.Values = append(st.Values, c.Format(r))
	}
	return st
}

func modelPath(m *data.Model) string {
	if m.Parent() == nil {
		return m.Name()
	}
	return modelPath(m.Parent()) + "." + m.Name()
}

func tableState(ctx context.Context, db *sql.DB, name string) (TableState, error) {
	ts := TableState{Name: name, Rows: [][]any{}}
	rows, err := db.QueryContext(ctx, "SELECT * FROM "+quoteIdent(name)+" ORDER BY 1")
	if err != nil {
		return ts, fmt.Errorf("query %s: %w", name, err)
	}
	defer rows.Close()

	ts.Columns, err = rows.Columns()
	if err != nil {
		return ts, fmt.Errorf("get columns: %w", err)
	}
	for rows.Next() {
		values := make([]any, len(ts.Columns))
		ptrs := make([]any, len(values))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return ts, fmt.Errorf("scan row: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		ts.Rows = append(ts.Rows, values)
	}
	return ts, rows.Err()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// FormatValue renders a value scanned from the database for display and
// golden comparison.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	}
	return fmt.Sprint(v)
}
