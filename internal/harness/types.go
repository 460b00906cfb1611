package harness

// TraceEvent records one executed step.
type TraceEvent struct {
	Seq int64 `json:"seq"`

	// Step is the action name, e.g. "insert".
	Step string `json:"step"`

	// Target is the model path or row reference the step acted on.
	Target string `json:"target,omitempty"`

	// Column and Value are set for set steps.
	Column string `json:"column,omitempty"`
	Value  string `json:"value,omitempty"`

	// Rows is the number of rows the step affected in the database, or the
	// number of rows loaded by a fill.
	Rows int64 `json:"rows"`
}

// DataRowState is the formatted content of one in-memory row.
type DataRowState struct {
	// Model is the dotted model path, e.g. "Order.Items".
	Model   string   `json:"model"`
	Path    string   `json:"path"`
	Columns []string `json:"columns"`
	Values  []string `json:"values"`
}

// TableState is the content of one backend table, ordered by its first
// column.
type TableState struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every assertion holds.
	Pass bool `json:"pass"`

	// Trace contains the executed steps in order.
	Trace []TraceEvent `json:"trace"`

	// Events contains every model event raised while the steps ran, as
	// rendered by data.Event.String.
	Events []string `json:"events,omitempty"`

	// Errors contains assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Rows is the final in-memory content of every root model, rows in
	// pre-order.
	Rows []DataRowState `json:"rows,omitempty"`

	// Tables is the final content of every backend table, parents first.
	Tables []TableState `json:"tables,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddStepTrace appends a step to the trace and returns its sequence number.
func (r *Result) AddStepTrace(ev TraceEvent) int64 {
	ev.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, ev)
	return ev.Seq
}

// Table returns the state of the named table.
func (r *Result) Table(name string) (TableState, bool) {
	for _, t := range r.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return TableState{}, false
}
