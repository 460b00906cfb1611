package data

type rowState int

const (
	stateIdle rowState = iota
	stateInserting
	stateRemoving
)

// DataRow is one row of a Model.
//
// A row holds a non-owning reference to its parent row and owns one child
// DataSet per child model of its model, indexed by child-model ordinal.
type DataRow struct {
	model   *Model
	ordinal int
	index   int
	parent  *DataRow
	dataset *DataSet

	children []*DataSet

	state       rowState
	updateLevel int
	dirty       bool
	selfDirty   bool
	pending     modelSet
	detached    bool

	validated bool
	messages  []ValidationMessage
	merged    []ValidationMessage
}

// Model returns the row's model.
func (r *DataRow) Model() *Model { return r.model }

// Ordinal returns the row's slot in the model's flat row store.
func (r *DataRow) Ordinal() int { return r.ordinal }

// Index returns the row's position in its DataSet.
func (r *DataRow) Index() int { return r.index }

// Parent returns the parent row, or nil for root rows.
func (r *DataRow) Parent() *DataRow { return r.parent }

// DataSet returns the DataSet holding the row.
func (r *DataRow) DataSet() *DataSet { return r.dataset }

// IsDetached reports whether the row has been removed.
func (r *DataRow) IsDetached() bool { return r.detached }

// Children returns the child DataSet of r for the child model m. It panics
// with a *SchemaError when m is not a child model of r's model.
func (r *DataRow) Children(m *Model) *DataSet {
	if m.parent != r.model {
		panic(modelError(ErrCodeOwnershipMismatch, m, "not a child model of %s", r.model.name))
	}
	return r.children[m.childOrdinal]
}

// ChildSets returns all child DataSets in child-model order.
func (r *DataRow) ChildSets() []*DataSet { return r.children }

// BeginUpdate starts a batch of writes. Notification, recomputation and
// bubbling are deferred to the matching outermost EndUpdate.
func (r *DataRow) BeginUpdate() {
	r.updateLevel++
}

// EndUpdate closes a batch of writes started by BeginUpdate.
func (r *DataRow) EndUpdate() {
	if r.updateLevel == 0 {
		return
	}
	r.updateLevel--
	if r.updateLevel > 0 || !r.dirty || r.detached {
		return
	}
	self, touched := r.selfDirty, r.pending
	r.dirty, r.selfDirty, r.pending = false, false, nil
	r.refresh(self, touched)
}

// Update runs fn between BeginUpdate and EndUpdate.
func (r *DataRow) Update(fn func() error) error {
	r.BeginUpdate()
	defer r.EndUpdate()
	return fn()
}

// ValidationMessages returns the messages of the model's validators for r,
// computing them on first use after an update.
func (r *DataRow) ValidationMessages() []ValidationMessage {
	if !r.validated {
		r.messages = evaluate(r)
		r.validated = true
	}
	return r.messages
}

// IsValid reports whether no validator reports an error for r.
func (r *DataRow) IsValid() bool {
	for _, m := range r.ValidationMessages() {
		if m.Severity == SeverityError {
			return false
		}
	}
	return true
}

// MergedMessages returns the messages supplied by an external validation
// pass. They are cleared whenever the row updates.
func (r *DataRow) MergedMessages() []ValidationMessage { return r.merged }

// SetMergedMessages stores messages from an external validation pass.
func (r *DataRow) SetMergedMessages(msgs []ValidationMessage) { r.merged = msgs }

func (r *DataRow) invalidateValidation() {
	r.validated = false
	r.messages = nil
	r.merged = nil
}

func (r *DataRow) emit(kind EventKind) {
	r.model.emit(Event{Kind: kind, Row: r, Index: r.index})
}

// valueChanged is called by stored columns after a write that changed the
// value.
func (r *DataRow) valueChanged(c AnyColumn) {
	if r.state == stateInserting {
		return
	}
	r.model.emit(Event{Kind: ValueChanged, Row: r, Column: c, Index: r.index})
	if r.updateLevel > 0 {
		r.dirty = true
		r.selfDirty = true
		return
	}
	r.refresh(true, nil)
}

// deferChange records a bubbled change for a row that cannot process it
// yet because it is inserting or inside BeginUpdate.
func (r *DataRow) deferChange(touched modelSet) {
	r.dirty = true
	r.pending = r.pending.union(touched)
}
