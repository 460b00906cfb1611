package data

import "fmt"

// EventKind identifies a row-level notification.
type EventKind int

const (
	RowInserting EventKind = iota
	RowInserted
	RowUpdated
	RowRemoving
	RowRemoved
	ValueChanged
)

func (k EventKind) String() string {
	switch k {
	case RowInserting:
		return "RowInserting"
	case RowInserted:
		return "RowInserted"
	case RowUpdated:
		return "RowUpdated"
	case RowRemoving:
		return "RowRemoving"
	case RowRemoved:
		return "RowRemoved"
	case ValueChanged:
		return "ValueChanged"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is delivered to the subscribers of a root model.
type Event struct {
	Kind EventKind
	Row  *DataRow

	// Column is set for ValueChanged.
	Column AnyColumn

	// Index is the row's position in its DataSet when the event fired.
	Index int
}

func (e Event) String() string {
	if e.Column != nil {
		return fmt.Sprintf("%s %s.%s", e.Kind, e.Row.model.name, e.Column.Name())
	}
	return fmt.Sprintf("%s %s[%d]", e.Kind, e.Row.model.name, e.Index)
}

type listener struct {
	id int
	fn func(Event)
}

// Subscribe registers fn for every event raised by rows of the model tree.
// The returned function removes the subscription.
func (m *Model) Subscribe(fn func(Event)) (cancel func()) {
	root := m.Root()
	root.nextID++
	id := root.nextID
	root.listeners = append(root.listeners, listener{id: id, fn: fn})
	return func() {
		for i, l := range root.listeners {
			if l.id == id {
				root.listeners = append(root.listeners[:i:i], root.listeners[i+1:]...)
				return
			}
		}
	}
}

func (m *Model) emit(e Event) {
	root := m.Root()
	for _, l := range root.listeners {
		l.fn(e)
	}
}
