package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/rdo/internal/compiler"
	"github.com/roach88/rdo/internal/ir"
	"github.com/roach88/rdo/internal/querysql"
)

// DDLResult is the JSON payload of the ddl command.
type DDLResult struct {
	Schema     string   `json:"schema"`
	Hash       string   `json:"hash"`
	Statements []string `json:"statements"`
	Output     string   `json:"output,omitempty"`
}

// DDLOptions holds flags for the ddl command.
type DDLOptions struct {
	*RootOptions
	Output string
}

// NewDDLCommand creates the ddl command.
func NewDDLCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DDLOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ddl <schema.cue>",
		Short: "Print the CREATE TABLE script of a schema",
		Long: `Compile a schema and print the SQLite statements that create its
tables, parents before children. Seeded identities add a statement that
primes sqlite_sequence.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDDL(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the script to `file` instead of stdout")
	return cmd
}

func runDDL(opts *DDLOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	spec, err := LoadSchema(path)
	if err != nil {
		return outputLoadError(formatter, err)
	}
	if errs := compiler.Validate(spec); len(errs) > 0 {
		return outputValidationErrors(formatter, ValidationResult{
			Files: []FileValidation{{Path: path, Schema: spec.Name, Errors: errs}},
		})
	}

	result, err := BuildDDL(spec)
	if err != nil {
		return outputLoadError(formatter, &LoadError{Code: ErrCodeBuildFailed, Message: err.Error()})
	}
	opts.logger().Debug("compiled ddl", "schema", result.Schema, "statements", len(result.Statements))

	script := result.Script()
	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, []byte(script), 0o644); err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, err.Error(), nil)
			return WrapExitError(ExitCommandError, "write ddl", err)
		}
		result.Output = opts.Output
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	if opts.Output != "" {
		fmt.Fprintf(formatter.Writer, "✓ Wrote %d statement(s) to %s\n", len(result.Statements), opts.Output)
		return nil
	}
	fmt.Fprint(formatter.Writer, script)
	return nil
}

// BuildDDL returns the CREATE TABLE statements of spec with parameters
// inlined, and the schema hash.
func BuildDDL(spec *ir.SchemaSpec) (*DDLResult, error) {
	hash, err := ir.SchemaHash(spec)
	if err != nil {
		return nil, err
	}
	schema, err := compiler.Build(spec)
	if err != nil {
		return nil, err
	}
	defs, err := schema.Definitions()
	if err != nil {
		return nil, err
	}

	result := &DDLResult{Schema: spec.Name, Hash: hash}
	for _, def := range defs {
		script, err := querysql.CompileCreateTable(def)
		if err != nil {
			return nil, err
		}
		for _, c := range script.Commands {
			sql, err := querysql.Inline(c)
			if err != nil {
				return nil, fmt.Errorf("table %s: %w", def.Name, err)
			}
			result.Statements = append(result.Statements, sql)
		}
	}
	return result, nil
}

// Script renders the statements as one SQL file.
func (r *DDLResult) Script() string {
	var b strings.Builder
	fmt.Fprintf(&b, "-- schema %s\n-- hash %s\n", r.Schema, r.Hash)
	for _, s := range r.Statements {
		b.WriteString("\n")
		b.WriteString(s)
		b.WriteString(";\n")
	}
	return b.String()
}
