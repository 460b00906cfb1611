package data

import (
	"cmp"
	"slices"
)

// hop is one step of change bubbling: the ancestor row to notify, the
// computations it must re-evaluate and the touched-model set after it.
type hop struct {
	row       *DataRow
	recompute []*computation
	touched   modelSet
}

// propagate decides where a change to rows of the touched models goes next
// after from. It returns false when bubbling stops: at the root, or at the
// first ancestor where neither its own computations nor those of its
// ancestors aggregate over a touched model.
//
// propagate has no side effects.
func propagate(from *DataRow, touched modelSet) (hop, bool) {
	p := from.parent
	if p == nil || p.detached {
		return hop{}, false
	}
	rec := p.selectComps(nil, touched)
	if len(rec) == 0 {
		if !p.model.passThrough.intersects(touched) {
			return hop{}, false
		}
		return hop{row: p, touched: touched}, true
	}
	return hop{row: p, recompute: rec, touched: touched.with(p.model)}, true
}

// bubble walks the ancestor chain of from, applying each hop.
func bubble(from *DataRow, touched modelSet) {
	for h, ok := propagate(from, touched); ok; h, ok = propagate(h.row, touched) {
		row := h.row
		if row.state != stateIdle || row.updateLevel > 0 {
			row.deferChange(h.touched)
			return
		}
		touched = h.touched
		if len(h.recompute) == 0 {
			continue
		}
		extra := row.apply(h.recompute, false)
		row.emit(RowUpdated)
		touched = touched.union(extra)
	}
}

// refresh re-evaluates r after a change to its own values (self) or to rows
// of the touched descendant models, fires RowUpdated and bubbles.
func (r *DataRow) refresh(self bool, touched modelSet) {
	var scalar modelSet
	if self {
		scalar = newModelSet(r.model)
	}
	extra := r.apply(r.selectComps(scalar, touched), self)
	r.emit(RowUpdated)
	bubble(r, touched.union(extra).with(r.model))
}

// selectComps returns the computations of r's model affected by the
// changes, in evaluation order.
func (r *DataRow) selectComps(scalarChanged, touched modelSet) []*computation {
	var out []*computation
	for _, cp := range r.model.comps {
		if cp.selected(scalarChanged, touched) {
			out = append(out, cp)
		}
	}
	return out
}

// apply runs comps on r, invalidates its validation state and cascades to
// descendants reading r. It returns the descendant models whose rows
// changed during the cascade.
func (r *DataRow) apply(comps []*computation, self bool) modelSet {
	changed := r.run(comps, true)
	r.invalidateValidation()
	if !changed && !self {
		return nil
	}
	cascaded := r.cascade()
	if len(cascaded) > 0 {
		r.run(r.selectComps(nil, cascaded), true)
	}
	return cascaded
}

// run evaluates the column computations in comps and reports whether any
// cached value changed.
func (r *DataRow) run(comps []*computation, notify bool) bool {
	changed := false
	for _, cp := range comps {
		if cp.column == nil || !cp.column.compute(r) {
			continue
		}
		changed = true
		if notify {
			r.model.emit(Event{Kind: ValueChanged, Row: r, Column: cp.column, Index: r.index})
		}
	}
	return changed
}

// cascade re-evaluates the descendant rows whose computations read values
// of r, then the intermediate rows aggregating over them. It returns the
// models whose rows changed.
func (r *DataRow) cascade() modelSet {
	if len(r.model.cascade) == 0 {
		return nil
	}
	changed := modelSet{}
	src := newModelSet(r.model)
	var between []*DataRow
	seen := make(map[*DataRow]bool)
	for _, d := range r.model.cascade {
		for _, dr := range descendants(r, d) {
			dr.invalidateValidation()
			if !dr.run(dr.selectComps(src, nil), true) {
				continue
			}
			changed.add(d)
			dr.emit(RowUpdated)
			for m := range dr.cascade() {
				changed.add(m)
			}
			for a := dr.parent; a != r; a = a.parent {
				if !seen[a] {
					seen[a] = true
					between = append(between, a)
				}
			}
		}
	}
	slices.SortStableFunc(between, func(a, b *DataRow) int { return cmp.Compare(b.model.depth, a.model.depth) })
	for _, a := range between {
		a.invalidateValidation()
		if a.run(a.selectComps(nil, changed), true) {
			changed.add(a.model)
			a.emit(RowUpdated)
		}
	}
	return changed
}
