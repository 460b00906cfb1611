package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/rdo/internal/compiler"
)

// ValidationResult is the JSON payload of the validate command.
type ValidationResult struct {
	Valid bool             `json:"valid"`
	Files []FileValidation `json:"files"`
}

// FileValidation holds the outcome for one schema file.
type FileValidation struct {
	Path   string                     `json:"path"`
	Schema string                     `json:"schema,omitempty"`
	Errors []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <schema.cue|dir>...",
		Short: "Validate schemas without touching a database",
		Long: `Validate CUE model schemas.

Checks structure, column types, keys, relations and expressions, and
builds the models to catch type errors and computation cycles. Every
error is reported, not just the first.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, args []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	log := opts.logger()

	files, err := FindCUEFiles(args)
	if err != nil {
		return outputLoadError(formatter, err)
	}

	result := ValidationResult{Valid: true}
	for _, path := range files {
		fv := FileValidation{Path: path}
		spec, err := LoadSchema(path)
		var loadErr *LoadError
		switch {
		case errors.As(err, &loadErr) && loadErr.Code == ErrCodeNotFound:
			return outputLoadError(formatter, err)
		case errors.As(err, &loadErr):
			fv.Errors = []compiler.ValidationError{{
				Field:   "load",
				Message: loadErr.Message,
				Code:    loadErr.Code,
				Line:    loadErr.Line(),
			}}
		default:
			fv.Schema = spec.Name
			fv.Errors = compiler.Validate(spec)
		}
		log.Debug("validated schema", "path", path, "errors", len(fv.Errors))
		formatter.VerboseLog("%s: %d error(s)", path, len(fv.Errors))
		if len(fv.Errors) > 0 {
			result.Valid = false
		}
		result.Files = append(result.Files, fv)
	}

	if !result.Valid {
		return outputValidationErrors(formatter, result)
	}
	return outputValidateSuccess(formatter, result)
}

func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ All schemas valid (%d file(s))\n", len(result.Files))
	return nil
}

// outputLoadError reports an error that stops the command before any
// schema is checked.
func outputLoadError(formatter *OutputFormatter, err error) error {
	code, message := ErrCodeGeneric, err.Error()
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		code, message = loadErr.Code, loadErr.Message
	}
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	count := 0
	var first *compiler.ValidationError
	for i := range result.Files {
		for j := range result.Files[i].Errors {
			if first == nil {
				first = &result.Files[i].Errors[j]
			}
			count++
		}
	}
	exitErr := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", count))

	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    first.Code,
				Message: first.Message,
			},
		}
		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return exitErr
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	for _, fv := range result.Files {
		if len(fv.Errors) == 0 {
			continue
		}
		fmt.Fprintln(formatter.Writer)
		fmt.Fprintln(formatter.Writer, fv.Path)
		for _, err := range fv.Errors {
			if err.Line > 0 {
				fmt.Fprintf(formatter.Writer, "  line %d\n", err.Line)
			}
			fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n", err.Code, err.Field, err.Message)
		}
	}
	return exitErr
}
