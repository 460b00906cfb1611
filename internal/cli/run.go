package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/roach88/rdo/internal/harness"
)

// RunResult is the JSON payload of the run command.
type RunResult struct {
	Scenario string                 `json:"scenario"`
	Pass     bool                   `json:"pass"`
	Trace    []harness.TraceEvent   `json:"trace"`
	Rows     []harness.DataRowState `json:"rows,omitempty"`
	Tables   []harness.TableState   `json:"tables,omitempty"`
	Errors   []string               `json:"errors,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run one scenario and print its steps and final tables",
		Long: `Run a scenario: load its schema, create the tables, load the initial
rows, execute the steps and evaluate the assertions.

The database is the configured one (":memory:" by default). A file
database must not already hold the scenario's tables.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarioCommand(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runScenarioCommand(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	cfg := opts.config()

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return outputLoadError(formatter, &LoadError{Code: ErrCodeLoadFailed, Message: err.Error()})
	}
	formatter.VerboseLog("Running %s against %s", scenario.Name, cfg.Database)

	result, err := harness.Run(scenario,
		harness.WithFlags(cfg.Flags),
		harness.WithLogger(opts.logger()),
		harness.WithDatabase(cfg.Database),
	)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitFailure, fmt.Sprintf("scenario %s", scenario.Name), err)
	}

	if formatter.Format == "json" {
		if err := formatter.Success(RunResult{
			Scenario: scenario.Name,
			Pass:     result.Pass,
			Trace:    result.Trace,
			Rows:     result.Rows,
			Tables:   result.Tables,
			Errors:   result.Errors,
		}); err != nil {
			return err
		}
	} else {
		writeRunText(formatter.Writer, scenario, result)
	}

	if !result.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s: %d assertion(s) failed", scenario.Name, len(result.Errors)))
	}
	return nil
}

func writeRunText(w io.Writer, scenario *harness.Scenario, result *harness.Result) {
	fmt.Fprintf(w, "Scenario: %s\n\n", scenario.Name)

	tw := tablewriter.NewWriter(w)
	tw.SetAutoFormatHeaders(false)
	tw.SetHeader([]string{"seq", "step", "target", "column", "value", "rows"})
	for _, ev := range result.Trace {
		tw.Append([]string{
			strconv.FormatInt(ev.Seq, 10), ev.Step, ev.Target, ev.Column, ev.Value,
			strconv.FormatInt(ev.Rows, 10),
		})
	}
	tw.Render()

	for _, t := range result.Tables {
		fmt.Fprintf(w, "\n%s (%d rows)\n", t.Name, len(t.Rows))
		writeTable(w, t)
	}

	fmt.Fprintln(w)
	if result.Pass {
		fmt.Fprintln(w, "✓ PASS")
		return
	}
	fmt.Fprintln(w, "✗ FAIL")
	for _, e := range result.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}

func writeTable(w io.Writer, t harness.TableState) {
	tw := tablewriter.NewWriter(w)
	tw.SetAutoFormatHeaders(false)
	tw.SetHeader(t.Columns)
	for _, row := range t.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = harness.FormatValue(v)
		}
		tw.Append(cells)
	}
	tw.Render()
}
