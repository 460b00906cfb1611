package cli

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/roach88/rdo/internal/config"
)

// NewLogger returns the diagnostic logger for w. Colors are used only when
// w is a terminal. --verbose and log-sql lower the level to debug, since
// the store logs statements at debug.
func NewLogger(w io.Writer, cfg *config.Config, verbose bool) (*slog.Logger, error) {
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	if (verbose || cfg.LogSQL) && level > slog.LevelDebug {
		level = slog.LevelDebug
	}

	noColor := true
	if f, ok := w.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd())
		w = colorable.NewColorable(f)
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
		NoColor:    noColor,
	})), nil
}
