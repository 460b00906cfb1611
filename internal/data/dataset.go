package data

import (
	"slices"
	"sort"
)

// DataSet is an ordered collection of rows of one model. A root DataSet owns
// a root model tree; child DataSets belong to one parent row.
type DataSet struct {
	model  *Model
	parent *DataRow
	rows   []*DataRow
}

// NewDataSet freezes the model tree of m and binds it to a new root
// DataSet. m must be a root model that is not bound yet.
func NewDataSet(m *Model) (*DataSet, error) {
	if m.parent != nil {
		return nil, modelError(ErrCodeOwnershipMismatch, m, "DataSet requires a root model")
	}
	if err := m.Freeze(); err != nil {
		return nil, err
	}
	if m.dataset != nil {
		return nil, modelError(ErrCodeOwnershipMismatch, m, "model is already bound to a DataSet")
	}
	m.dataset = &DataSet{model: m}
	return m.dataset, nil
}

// Model returns the model of the rows.
func (ds *DataSet) Model() *Model { return ds.model }

// Parent returns the owning row of a child DataSet, or nil.
func (ds *DataSet) Parent() *DataRow { return ds.parent }

// Len returns the number of rows.
func (ds *DataSet) Len() int { return len(ds.rows) }

// Rows returns the rows in order. The slice must not be modified.
func (ds *DataSet) Rows() []*DataRow { return ds.rows }

// Row returns the row at index i. It panics with a *SchemaError when i is
// out of range.
func (ds *DataSet) Row(i int) *DataRow {
	if i < 0 || i >= len(ds.rows) {
		panic(ds.indexError(i))
	}
	return ds.rows[i]
}

func (ds *DataSet) indexError(i int) *SchemaError {
	return modelError(ErrCodeIndexOutOfRange, ds.model, "index %d out of range [0,%d)", i, len(ds.rows))
}

// AddRow appends a row. See Insert.
func (ds *DataSet) AddRow(init func(*DataRow) error) (*DataRow, error) {
	return ds.Insert(len(ds.rows), init)
}

// Insert creates a row at index. Storage for every column and one empty
// DataSet per child model are allocated first; init then runs between the
// RowInserting and RowInserted events with change notification
// suppressed. When init fails the row and anything init added below it are
// discarded and the error is returned.
func (ds *DataSet) Insert(index int, init func(*DataRow) error) (*DataRow, error) {
	if index < 0 || index > len(ds.rows) {
		return nil, ds.indexError(index)
	}
	if ds.parent != nil && ds.parent.detached {
		return nil, modelError(ErrCodeRowDetached, ds.model, "parent row has been removed")
	}
	m := ds.model
	r := &DataRow{
		model:   m,
		ordinal: ds.flatPosition(index),
		index:   index,
		parent:  ds.parent,
		dataset: ds,
		state:   stateInserting,
	}
	m.rows = slices.Insert(m.rows, r.ordinal, r)
	renumber(m.rows, r.ordinal+1, func(x *DataRow, i int) { x.ordinal = i })
	ds.rows = slices.Insert(ds.rows, index, r)
	renumber(ds.rows, index+1, func(x *DataRow, i int) { x.index = i })
	for _, c := range m.columns {
		c.insertRow(r.ordinal)
	}
	r.children = make([]*DataSet, len(m.children))
	for i, cm := range m.children {
		r.children[i] = &DataSet{model: cm, parent: r}
	}

	r.emit(RowInserting)
	if init != nil {
		if err := init(r); err != nil {
			ds.discard(r)
			return nil, err
		}
	}
	r.state = stateIdle
	touched := r.pending
	r.dirty, r.pending = false, nil
	r.run(m.comps, false)
	if len(touched) > 0 {
		if cascaded := r.cascade(); len(cascaded) > 0 {
			r.run(r.selectComps(nil, cascaded), false)
		}
	}
	r.emit(RowInserted)
	bubble(r, touched.with(m))
	return r, nil
}

// flatPosition returns the ordinal a row inserted at index receives.
func (ds *DataSet) flatPosition(index int) int {
	if index < len(ds.rows) {
		return ds.rows[index].ordinal
	}
	if len(ds.rows) > 0 {
		return ds.rows[len(ds.rows)-1].ordinal + 1
	}
	if ds.parent == nil {
		return 0
	}
	// The model's rows are grouped by parent in parent order; an empty
	// DataSet starts before the first row of any later parent.
	po := ds.parent.ordinal
	all := ds.model.rows
	return sort.Search(len(all), func(i int) bool { return all[i].parent.ordinal > po })
}

func renumber(rows []*DataRow, from int, set func(*DataRow, int)) {
	for i := from; i < len(rows); i++ {
		set(rows[i], i)
	}
}

// RemoveAt removes the row at index and its subtree.
//
// RowRemoving fires for every row of the subtree in pre-order, storage is
// released bottom-up, then RowRemoved fires in pre-order (parent first).
// The former parent row is notified last.
func (ds *DataSet) RemoveAt(index int) error {
	if index < 0 || index >= len(ds.rows) {
		return ds.indexError(index)
	}
	r := ds.rows[index]
	var subtree []*DataRow
	collect(r, &subtree)
	for _, x := range subtree {
		x.state = stateRemoving
		x.emit(RowRemoving)
	}
	ds.discard(r)
	for _, x := range subtree {
		x.emit(RowRemoved)
	}
	if ds.parent != nil {
		bubble(r, newModelSet(ds.model))
	}
	return nil
}

// Remove removes r from the DataSet.
func (ds *DataSet) Remove(r *DataRow) error {
	if r.dataset != ds || r.detached {
		return modelError(ErrCodeOwnershipMismatch, ds.model, "row does not belong to this DataSet")
	}
	return ds.RemoveAt(r.index)
}

// Clear removes every row, last first.
func (ds *DataSet) Clear() error {
	for i := len(ds.rows) - 1; i >= 0; i-- {
		if err := ds.RemoveAt(i); err != nil {
			return err
		}
	}
	return nil
}

// collect appends r and its descendants in pre-order.
func collect(r *DataRow, out *[]*DataRow) {
	*out = append(*out, r)
	for _, cs := range r.children {
		for _, c := range cs.rows {
			collect(c, out)
		}
	}
}

// discard releases the storage of r and its subtree without events.
func (ds *DataSet) discard(r *DataRow) {
	for _, cs := range r.children {
		for i := len(cs.rows) - 1; i >= 0; i-- {
			cs.discard(cs.rows[i])
		}
	}
	m := ds.model
	for _, c := range m.columns {
		c.removeRow(r.ordinal)
	}
	m.rows = slices.Delete(m.rows, r.ordinal, r.ordinal+1)
	renumber(m.rows, r.ordinal, func(x *DataRow, i int) { x.ordinal = i })
	ds.rows = slices.Delete(ds.rows, r.index, r.index+1)
	renumber(ds.rows, r.index, func(x *DataRow, i int) { x.index = i })
	r.detached = true
	r.ordinal = -1
}
