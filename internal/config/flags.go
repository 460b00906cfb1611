package config

import (
	"maps"
	"slices"
	"strings"

	"github.com/roach88/rdo/internal/dbquery"
)

// Flag is a boolean compiler feature switch.
type Flag int

const (
	// FoldSimpleQueries collapses a SELECT over a simple subquery into one
	// statement.
	FoldSimpleQueries Flag = iota
)

type flagDefault struct {
	flag Flag
	def  bool
}

var defaultFlags = map[string]flagDefault{
	"fold_simple_queries": {FoldSimpleQueries, true},
}

// LookupFlag finds a flag by its config name.
func LookupFlag(name string) (Flag, bool) {
	fd, ok := defaultFlags[strings.ToLower(name)]
	return fd.flag, ok
}

// FlagNames returns the config names of every flag, sorted.
func FlagNames() []string {
	return slices.Sorted(maps.Keys(defaultFlags))
}

// Flags holds one value per Flag.
type Flags []bool

// Default returns the default flag values.
func Default() Flags {
	flgs := make(Flags, len(defaultFlags))
	for _, fd := range defaultFlags {
		flgs[fd.flag] = fd.def
	}
	return flgs
}

// GetFlag reports whether f is on.
func (flgs Flags) GetFlag(f Flag) bool {
	return flgs[f]
}

// BuilderOptions returns the query builder options the flags select.
func (flgs Flags) BuilderOptions() []dbquery.Option {
	return []dbquery.Option{dbquery.WithFolding(flgs.GetFlag(FoldSimpleQueries))}
}
