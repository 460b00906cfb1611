package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted run of a schema against a fresh database.
// The rows under Data are loaded into memory, Steps move them through the
// store, and Assertions check the final tables and rows.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema is the path of the CUE schema file. LoadScenario resolves it
	// relative to the scenario file.
	Schema string `yaml:"schema"`

	// Data maps a root model name to its initial rows. A row maps column
	// names to values; a key naming a child model holds the child rows.
	Data map[string][]Row `yaml:"data,omitempty"`

	// Steps run in order after Data is loaded.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	// Supported types: row_count, final_state, value, valid, event_count, step_order.
	Assertions []Assertion `yaml:"assertions"`
}

// Row is one in-memory row of initial data.
type Row map[string]interface{}

// Step is one action of a scenario. Exactly one of Insert, Update, Delete,
// Set, Add, Remove or Fill is set.
type Step struct {
	// Insert copies the rows of a model (dotted path, e.g. "Order.Items")
	// into its table.
	Insert string `yaml:"insert,omitempty"`

	// Identity captures generated identity values during Insert.
	Identity bool `yaml:"identity,omitempty"`

	// Keys is the key mode of Insert: none, skip_existing or upsert.
	Keys string `yaml:"keys,omitempty"`

	// Update writes the non-key columns of a model's rows to its table.
	Update string `yaml:"update,omitempty"`

	// Delete removes the table rows matching a model's rows.
	Delete string `yaml:"delete,omitempty"`

	// Set writes one value in memory.
	Set *SetStep `yaml:"set,omitempty"`

	// Add appends a row in memory under the DataSet at Add.At.
	Add *AddStep `yaml:"add,omitempty"`

	// Remove removes the in-memory row at the given reference.
	Remove string `yaml:"remove,omitempty"`

	// Fill reloads every root model from the database into a freshly built
	// schema.
	Fill bool `yaml:"fill,omitempty"`
}

// SetStep assigns Value to Column of the row at Row.
type SetStep struct {
	// Row references a row as <root model><row path>, e.g. "Order/0/Items/1".
	Row    string      `yaml:"row"`
	Column string      `yaml:"column"`
	Value  interface{} `yaml:"value"`
}

// AddStep appends a row.
type AddStep struct {
	// At is a root model name, or a row reference followed by a child model
	// name, e.g. "Order/0/Items".
	At     string `yaml:"at"`
	Values Row    `yaml:"values"`
}

// Action returns the name of the step's action.
func (s Step) Action() string {
	switch {
	case s.Insert != "":
		return StepInsert
	case s.Update != "":
		return StepUpdate
	case s.Delete != "":
		return StepDelete
	case s.Set != nil:
		return StepSet
	case s.Add != nil:
		return StepAdd
	case s.Remove != "":
		return StepRemove
	case s.Fill:
		return StepFill
	}
	return ""
}

func (s Step) actions() int {
	n := 0
	for _, set := range []bool{s.Insert != "", s.Update != "", s.Delete != "", s.Set != nil, s.Add != nil, s.Remove != "", s.Fill} {
		if set {
			n++
		}
	}
	return n
}

// Step action names, as they appear in the trace.
const (
	StepInsert = "insert"
	StepUpdate = "update"
	StepDelete = "delete"
	StepSet    = "set"
	StepAdd    = "add"
	StepRemove = "remove"
	StepFill   = "fill"
)

// Assertion validates the final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "row_count": Table holds exactly Count rows
	// - "final_state": Query Table and verify expected values of the one row matching Where
	// - "value": The in-memory row at Row formats Column as Expect
	// - "valid": The in-memory row at Row has validity Valid, optionally with Message
	// - "event_count": Event fired Count times for Model
	// - "step_order": Steps ran in the given order
	Type string `yaml:"type"`

	// Table is the backend table name (used by row_count, final_state).
	Table string `yaml:"table,omitempty"`

	// Where specifies query filters (used by final_state).
	// All fields must match exactly.
	Where map[string]interface{} `yaml:"where,omitempty"`

	// Expect contains expected values. For final_state it maps columns to
	// values (subset match); for value it is the single expected value.
	Expect interface{} `yaml:"expect,omitempty"`

	// Row is a row reference (used by value, valid).
	Row string `yaml:"row,omitempty"`

	// Column is the column name (used by value).
	Column string `yaml:"column,omitempty"`

	// Valid is the expected validity (used by valid).
	Valid *bool `yaml:"valid,omitempty"`

	// Message is a validation message the row must carry (used by valid).
	Message string `yaml:"message,omitempty"`

	// Event is an event kind such as RowInserted (used by event_count).
	Event string `yaml:"event,omitempty"`

	// Model is the model name the events belong to (used by event_count).
	Model string `yaml:"model,omitempty"`

	// Count is the expected number (used by row_count, event_count).
	Count int `yaml:"count,omitempty"`

	// Steps is the expected step order (used by step_order).
	Steps []string `yaml:"steps,omitempty"`
}

// Assertion type constants.
const (
	AssertRowCount   = "row_count"
	AssertFinalState = "final_state"
	AssertValue      = "value"
	AssertValid      = "valid"
	AssertEventCount = "event_count"
	AssertStepOrder  = "step_order"
)

// LoadScenario reads and parses a scenario YAML file, resolving the schema
// path relative to the directory of the file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the schema path relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Schema != "" && !filepath.IsAbs(scenario.Schema) && basePath != "" {
		scenario.Schema = filepath.Join(basePath, scenario.Schema)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Schema == "" {
		return fmt.Errorf("schema is required")
	}
	if _, err := os.Stat(s.Schema); os.IsNotExist(err) {
		return fmt.Errorf("schema file not found: %s", s.Schema)
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(index int, s *Step) error {
	switch s.actions() {
	case 0:
		return fmt.Errorf("steps[%d]: an action is required", index)
	case 1:
	default:
		return fmt.Errorf("steps[%d]: exactly one action is allowed", index)
	}

	if (s.Identity || s.Keys != "") && s.Insert == "" {
		return fmt.Errorf("steps[%d]: identity and keys apply to insert only", index)
	}
	if _, err := parseKeyMode(s.Keys); err != nil {
		return fmt.Errorf("steps[%d]: %w", index, err)
	}

	switch {
	case s.Set != nil:
		if s.Set.Row == "" || s.Set.Column == "" {
			return fmt.Errorf("steps[%d].set: row and column are required", index)
		}
	case s.Add != nil:
		if s.Add.At == "" {
			return fmt.Errorf("steps[%d].add: at is required", index)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertRowCount:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for row_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if _, ok := a.Expect.(map[string]interface{}); !ok {
			return fmt.Errorf("assertions[%d]: expect map is required for final_state", index)
		}
	case AssertValue:
		if a.Row == "" || a.Column == "" {
			return fmt.Errorf("assertions[%d]: row and column are required for value", index)
		}
	case AssertValid:
		if a.Row == "" {
			return fmt.Errorf("assertions[%d]: row is required for valid", index)
		}
		if a.Valid == nil && a.Message == "" {
			return fmt.Errorf("assertions[%d]: valid or message is required for valid", index)
		}
	case AssertEventCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for event_count", index)
		}
	case AssertStepOrder:
		if len(a.Steps) == 0 {
			return fmt.Errorf("assertions[%d]: steps list is required for step_order", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown type %q (must be one of: %s)",
			index, a.Type, strings.Join([]string{AssertRowCount, AssertFinalState, AssertValue, AssertValid, AssertEventCount, AssertStepOrder}, ", "))
	}

	return nil
}
