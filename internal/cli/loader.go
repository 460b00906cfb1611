package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cuelang.org/go/cue/token"

	"github.com/roach88/rdo/internal/compiler"
	"github.com/roach88/rdo/internal/ir"
)

// Load and command error codes.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE or scenario files found
	ErrCodeLoadFailed  = "E004" // Schema or scenario load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE evaluation failed
	ErrCodeWriteFailed = "E007" // File write error
)

// LoadError represents an error that occurred while loading a schema.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Line returns the source line of the error, or 0.
func (e *LoadError) Line() int {
	if e.Pos.IsValid() {
		return e.Pos.Line()
	}
	return 0
}

// LoadSchema reads and compiles one CUE schema file. Every failure is a
// *LoadError.
func LoadSchema(path string) (*ir.SchemaSpec, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("schema file not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing schema file: %v", err)}
	}
	if info.IsDir() {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("%s is a directory", path)}
	}

	spec, err := compiler.LoadFile(path)
	if err != nil {
		return nil, convertCompileError(err)
	}
	return spec, nil
}

// FindCUEFiles expands args into schema files: files are kept, directories
// contribute their *.cue files in name order.
func FindCUEFiles(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil || !info.IsDir() {
			files = append(files, arg)
			continue
		}
		matches, err := filepath.Glob(filepath.Join(arg, "*.cue"))
		if err != nil {
			return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
		}
		if len(matches) == 0 {
			return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", arg)}
		}
		sort.Strings(matches)
		files = append(files, matches...)
	}
	return files, nil
}

func convertCompileError(err error) *LoadError {
	var ce *compiler.CompileError
	if errors.As(err, &ce) {
		return &LoadError{Code: MapFieldToErrorCode(ce.Field), Message: fmt.Sprintf("%s: %s", ce.Field, ce.Message), Pos: ce.Pos}
	}
	return &LoadError{Code: ErrCodeLoadFailed, Message: err.Error()}
}

// MapFieldToErrorCode maps the field of a schema compile error to a
// validation error code.
func MapFieldToErrorCode(field string) string {
	switch {
	case field == "cue":
		return ErrCodeBuildFailed
	case field == "schema":
		return compiler.ErrSchemaNameEmpty
	case field == "models":
		return compiler.ErrNoModels
	case strings.HasSuffix(field, ".columns"):
		return compiler.ErrModelNoColumns
	case strings.HasSuffix(field, ".type"):
		return compiler.ErrInvalidColumnType
	case strings.HasSuffix(field, ".validators"):
		return compiler.ErrInvalidValidator
	case strings.HasSuffix(field, ".default"):
		return compiler.ErrInvalidDefault
	default:
		return ErrCodeGeneric
	}
}
