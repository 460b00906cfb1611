package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/rdo/internal/ir"
)

// Snapshot captures the deterministic outcome of a scenario: the executed
// steps, the final in-memory rows and the final tables. Model events are
// left out.
type Snapshot struct {
	ScenarioName string
	Trace        []TraceEvent
	Rows         []DataRowState
	Tables       []TableState
}

// NewSnapshot builds the snapshot of result.
func NewSnapshot(name string, result *Result) Snapshot {
	return Snapshot{
		ScenarioName: name,
		Trace:        result.Trace,
		Rows:         result.Rows,
		Tables:       result.Tables,
	}
}

// toCanonical converts the snapshot to an IR object for canonical JSON
// serialization. Database values are rendered with FormatValue.
func (s Snapshot) toCanonical() ir.IRObject {
	trace := make(ir.IRArray, len(s.Trace))
	for i, ev := range s.Trace {
		obj := ir.IRObject{
			"seq":  ir.IRInt(ev.Seq),
			"step": ir.IRString(ev.Step),
			"rows": ir.IRInt(ev.Rows),
		}
		if ev.Target != "" {
			obj["target"] = ir.IRString(ev.Target)
		}
		if ev.Column != "" {
			obj["column"] = ir.IRString(ev.Column)
			obj["value"] = ir.IRString(ev.Value)
		}
		trace[i] = obj
	}

	rows := make(ir.IRArray, len(s.Rows))
	for i, r := range s.Rows {
		values := make(ir.IRObject, len(r.Columns))
		for j, c := range r.Columns {
			values[c] = ir.IRString(r.Values[j])
		}
		rows[i] = ir.IRObject{
			"model":  ir.IRString(r.Model),
			"path":   ir.IRString(r.Path),
			"values": values,
		}
	}

	tables := make(ir.IRObject, len(s.Tables))
	for _, t := range s.Tables {
		list := make(ir.IRArray, len(t.Rows))
		for i, row := range t.Rows {
			obj := make(ir.IRObject, len(t.Columns))
			for j, c := range t.Columns {
				obj[c] = ir.IRString(FormatValue(row[j]))
			}
			list[i] = obj
		}
		tables[t.Name] = list
	}

	return ir.IRObject{
		"scenario_name": ir.IRString(s.ScenarioName),
		"trace":         trace,
		"rows":          rows,
		"tables":        tables,
	}
}

// MarshalCanonical returns the canonical JSON form of the snapshot.
func (s Snapshot) MarshalCanonical() ([]byte, error) {
	return ir.MarshalCanonical(s.toCanonical())
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(scenario, opts...)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares the given result's snapshot against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	out, err := NewSnapshot(scenarioName, result).MarshalCanonical()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, out)

	return nil
}
