package store

import (
	"context"
	"database/sql"
	"fmt"
	"slices"

	"github.com/google/btree"

	"github.com/roach88/rdo/internal/data"
	"github.com/roach88/rdo/internal/dbquery"
	"github.com/roach88/rdo/internal/queryir"
)

// FillMode is how a loaded level is exposed to the level below it.
type FillMode int

const (
	// FillDirect joins the parent's own query.
	FillDirect FillMode = iota
	// FillSequential numbers the parent keys in a temp table.
	FillSequential
	// FillPersisted copies the parent rows into a temp table.
	FillPersisted
)

func (m FillMode) String() string {
	switch m {
	case FillDirect:
		return "direct"
	case FillSequential:
		return "sequential"
	case FillPersisted:
		return "persisted"
	}
	return fmt.Sprintf("FillMode(%d)", int(m))
}

// level is one loaded model during Fill.
type level struct {
	model *data.Model
	ref   *dbquery.ParentRef
	mode  FillMode
	rows  []*data.DataRow
	// byRowID maps the surrogate row id to the loaded row.
	byRowID map[int64]*data.DataRow
	// byKey indexes rows, per child model, by the values of the columns that
	// child correlates on.
	byKey map[*data.Model]*btree.BTreeG[keyed]
}

type keyed struct {
	key string
	row *data.DataRow
}

func lessKeyed(a, b keyed) bool { return a.key < b.key }

// Fill loads a root DataSet from root and its descendants from children, one
// query per model. Every child builder must target a descendant of the root
// model whose parent model also has a builder. Builders must not be
// correlated already.
//
// A level whose rows are needed by a level below is exposed directly when
// its query is simple, through a sequential key table when the model has a
// primary key, and otherwise by persisting the query result.
func (s *Session) Fill(ctx context.Context, root *dbquery.Builder, children ...*dbquery.Builder) (*data.DataSet, error) {
	if root.Target().Parent() != nil {
		return nil, data.NewSchemaError(data.ErrCodeOwnershipMismatch, "fill root %s is not a root model", root.Target().Name())
	}
	builders := append([]*dbquery.Builder{root}, children...)
	slices.SortStableFunc(builders, func(a, b *dbquery.Builder) int {
		return a.Target().Depth() - b.Target().Depth()
	})
	targets := make(map[*data.Model]bool, len(builders))
	for _, b := range builders {
		m := b.Target()
		if targets[m] {
			return nil, data.NewSchemaError(data.ErrCodeInvalidOption, "%s has more than one fill query", m.Name())
		}
		targets[m] = true
	}
	hasChildren := make(map[*data.Model]bool)
	for _, b := range builders[1:] {
		m := b.Target()
		if m.Parent() == nil || !targets[m.Parent()] {
			return nil, data.NewSchemaError(data.ErrCodeOwnershipMismatch, "parent of %s has no fill query", m.Name())
		}
		hasChildren[m.Parent()] = true
	}
	ds, err := data.NewDataSet(root.Target())
	if err != nil {
		return nil, err
	}

	var temps []string
	defer func() { s.dropTemp(temps...) }()

	loaded := make(map[*data.Model]*level, len(builders))
	for _, b := range builders {
		m := b.Target()
		var parent *level
		if m.Parent() != nil {
			parent = loaded[m.Parent()]
			b.CorrelateParent(parent.ref)
		}

		lv := &level{model: m}
		q, tmp, err := s.prepareLevel(ctx, b, lv, hasChildren[m])
		temps = append(temps, tmp...)
		if err != nil {
			return nil, err
		}
		if err := s.readLevel(ctx, ds, q, lv, parent); err != nil {
			return nil, err
		}
		if hasChildren[m] && lv.mode == FillDirect {
			if err := lv.index(); err != nil {
				return nil, fmt.Errorf("fill %s: %w", m.Name(), err)
			}
		}
		loaded[m] = lv
		s.logger.Info("filled", "model", m.Name(), "rows", len(lv.rows), "mode", lv.mode.String())
	}
	return ds, nil
}

// prepareLevel builds the read query for lv and, when lv has children, its
// parent reference. It returns the temp tables it created.
func (s *Session) prepareLevel(ctx context.Context, b *dbquery.Builder, lv *level, parentOfOthers bool) (*dbquery.Query, []string, error) {
	q, err := b.BuildQueryStatement()
	if err != nil {
		return nil, nil, err
	}
	if !parentOfOthers {
		return q, nil, nil
	}

	if childrenMapKey(lv.model) {
		if ref, err := q.AsParent(); err == nil {
			lv.ref, lv.mode = ref, FillDirect
			return q, nil, nil
		}
	}

	if pk := lv.model.PrimaryKey(); len(pk) > 0 && childrenMapWithin(lv.model, pk) {
		seq, err := dbquery.NewSequentialKey(lv.model, s.names("seq"))
		if err != nil {
			return nil, nil, err
		}
		if err := s.CreateTempTable(ctx, seq.Definition()); err != nil {
			return nil, nil, err
		}
		temps := []string{seq.Name()}
		fill, err := dbquery.BuildSequentialKeyFill(seq, q)
		if err != nil {
			return nil, temps, err
		}
		if _, err := s.ExecuteNonQuery(ctx, fill); err != nil {
			return nil, temps, err
		}
		q, err = b.WithSequentialKey(seq).BuildQueryStatement()
		if err != nil {
			return nil, temps, err
		}
		lv.ref, lv.mode = seq.ParentRef(), FillSequential
		return q, temps, nil
	}

	p, err := b.BuildPersist(s.names("persist"))
	if err != nil {
		return nil, nil, err
	}
	def, ins := p.Statements()
	if err := s.CreateTempTable(ctx, def); err != nil {
		return nil, nil, err
	}
	temps := []string{p.Name()}
	if _, err := s.ExecuteNonQuery(ctx, ins); err != nil {
		return nil, temps, err
	}
	lv.ref, lv.mode = p.ParentRef(), FillPersisted
	return p.ReadQuery(), temps, nil
}

// childrenMapKey reports whether every child of m maps onto all columns of
// the primary key or of a unique key of m, so a key value names one row.
func childrenMapKey(m *data.Model) bool {
	for _, cm := range m.ChildModels() {
		mapped := parentColumns(cm)
		covered := len(m.PrimaryKey()) > 0 && covers(mapped, m.PrimaryKey())
		for _, u := range m.UniqueKeys() {
			covered = covered || covers(mapped, u.Columns)
		}
		if !covered {
			return false
		}
	}
	return true
}

// childrenMapWithin reports whether every child of m maps only columns in cols.
func childrenMapWithin(m *data.Model, cols []data.AnyColumn) bool {
	for _, cm := range m.ChildModels() {
		if !covers(cols, parentColumns(cm)) {
			return false
		}
	}
	return true
}

func parentColumns(child *data.Model) []data.AnyColumn {
	var cols []data.AnyColumn
	for _, pm := range child.ParentMappings() {
		cols = append(cols, pm.Parent)
	}
	return cols
}

// covers reports whether every column of want is in have.
func covers(have, want []data.AnyColumn) bool {
	for _, c := range want {
		if !slices.Contains(have, c) {
			return false
		}
	}
	return true
}

// readLevel executes q and adds one row per result row, under its parent
// row when parent is set.
func (s *Session) readLevel(ctx context.Context, ds *data.DataSet, q *dbquery.Query, lv *level, parent *level) error {
	cols := q.Columns()
	rowIDAt := slices.Index(cols, q.RowID())
	parentRowIDAt := -1
	if q.ParentRowID() != nil {
		parentRowIDAt = slices.Index(cols, q.ParentRowID())
	}
	var fk []int
	if parent != nil && parentRowIDAt < 0 {
		for _, pm := range lv.model.ParentMappings() {
			fk = append(fk, slices.Index(cols, queryir.Column(pm.Child)))
		}
	}
	if q.RowID() != nil {
		lv.byRowID = make(map[int64]*data.DataRow)
	}

	return s.ExecuteReader(ctx, q.Statement(), func(rows *sql.Rows) error {
		values, err := scanRow(rows, len(cols))
		if err != nil {
			return err
		}

		target := ds
		if parent != nil {
			owner, err := parent.owner(lv.model, values, parentRowIDAt, fk)
			if err != nil {
				return fmt.Errorf("fill %s: %w", lv.model.Name(), err)
			}
			target = owner.Children(lv.model)
		}

		row, err := target.AddRow(func(r *data.DataRow) error {
			return assign(r, cols, values)
		})
		if err != nil {
			return fmt.Errorf("fill %s: %w", lv.model.Name(), err)
		}
		lv.rows = append(lv.rows, row)
		if rowIDAt >= 0 {
			id, ok := asInt64(values[rowIDAt])
			if !ok {
				return fmt.Errorf("fill %s: row id %v is not an integer", lv.model.Name(), values[rowIDAt])
			}
			lv.byRowID[id] = row
		}
		return nil
	})
}

// assign writes the scanned values of the stored columns of r. System and
// child-derived columns are skipped.
func assign(r *data.DataRow, cols []queryir.Column, values []any) error {
	for i, c := range cols {
		dc, ok := c.(data.AnyColumn)
		if !ok || dc.Strategy() != data.StrategyStored {
			continue
		}
		if err := dc.SetAny(r, values[i]); err != nil {
			return err
		}
	}
	return nil
}

// owner finds the parent row of a scanned child row.
func (lv *level) owner(child *data.Model, values []any, parentRowIDAt int, fk []int) (*data.DataRow, error) {
	if parentRowIDAt >= 0 {
		id, ok := asInt64(values[parentRowIDAt])
		if !ok {
			return nil, fmt.Errorf("parent row id %v is not an integer", values[parentRowIDAt])
		}
		if r := lv.byRowID[id]; r != nil {
			return r, nil
		}
		return nil, fmt.Errorf("no %s row with row id %d", lv.model.Name(), id)
	}
	tree := lv.byKey[child]
	if tree == nil {
		return nil, fmt.Errorf("%s is not indexed for %s", lv.model.Name(), child.Name())
	}
	key := make([]any, len(fk))
	for i, at := range fk {
		if at < 0 {
			return nil, data.NewSchemaError(data.ErrCodeUnmappedParentKey, "parent key column of %s is not selected", lv.model.Name())
		}
		key[i] = values[at]
	}
	if k, ok := tree.Get(keyed{key: keyOf(key)}); ok {
		return k.row, nil
	}
	return nil, fmt.Errorf("no %s row with key %v", lv.model.Name(), key)
}

// index builds, per child model, the key index its rows look their parent
// up in. Keys are the parent columns of the child's mappings. Keys holding a
// NULL are left out since no child row correlates on them.
func (lv *level) index() error {
	lv.byKey = make(map[*data.Model]*btree.BTreeG[keyed])
	for _, cm := range lv.model.ChildModels() {
		mappings := cm.ParentMappings()
		tree := btree.NewG(8, lessKeyed)
	rows:
		for _, r := range lv.rows {
			key := make([]any, len(mappings))
			for i, pm := range mappings {
				key[i] = pm.Parent.ValueOf(r)
				if key[i] == nil {
					continue rows
				}
			}
			if _, dup := tree.ReplaceOrInsert(keyed{key: keyOf(key), row: r}); dup {
				return fmt.Errorf("%s key %v of %s is not unique", lv.model.Name(), key, cm.Name())
			}
		}
		lv.byKey[cm] = tree
	}
	return nil
}
