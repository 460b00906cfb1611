package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/rdo/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string
	NoConfig   bool

	// Config and Logger are set by the root command before a subcommand
	// runs. Subcommands built directly fall back to defaults.
	Config *config.Config
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the rdo CLI.
func NewRootCommand() *cobra.Command {
	cfg := config.New()
	opts := &RootOptions{Config: cfg}

	cmd := &cobra.Command{
		Use:   "rdo",
		Short: "rdo - relational data objects",
		Long: `Declare hierarchical data models in CUE, edit them in memory with
computed columns and validation, and move them to and from SQLite.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if !opts.NoConfig {
				path, required := config.DefaultFile, false
				if opts.ConfigFile != "" {
					path, required = opts.ConfigFile, true
				}
				if err := cfg.LoadFile(cmd.Flags(), path, required); err != nil {
					return WrapExitError(ExitCommandError, "load config", err)
				}
			}
			logger, err := NewLogger(cmd.ErrOrStderr(), cfg, opts.Verbose)
			if err != nil {
				return WrapExitError(ExitCommandError, "configure logging", err)
			}
			opts.Logger = logger
			return nil
		},
	}

	fs := cmd.PersistentFlags()
	fs.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	fs.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	fs.StringVar(&opts.ConfigFile, "config", "", "config `file` (default "+config.DefaultFile+" when present)")
	fs.BoolVar(&opts.NoConfig, "no-config", false, "ignore the config file")
	cfg.Bind(fs)

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewDDLCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

func (o *RootOptions) config() *config.Config {
	if o.Config == nil {
		o.Config = config.New()
	}
	return o.Config
}

func (o *RootOptions) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o.Logger
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
