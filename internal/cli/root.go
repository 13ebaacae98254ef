package cli

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/meshflow/internal/config"
)

// RootOptions holds global flags for all commands, plus the settings the
// root command resolves before any subcommand runs.
type RootOptions struct {
	Verbose   bool
	Format    string // "json" | "text"
	LogFormat string // "json" | "text"
	Trace     bool

	// Config is the environment configuration with flag overrides applied.
	Config config.Config
	// Logger writes to the command's stderr.
	Logger *slog.Logger

	shutdown func(context.Context) error
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the meshflow CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "meshflow",
		Short: "meshflow - replayable mesh construction",
		Long: `Build 2D and 3D meshes as an undoable log of operations.

Projects are documents holding the operation log and, optionally, a
snapshot of the resulting objects. Every command loads a project, works
on it through the command flow and can save the result.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return opts.close(cmd.Context())
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "", "log format (json|text), overrides MESHFLOW_LOG_FORMAT")
	cmd.PersistentFlags().BoolVar(&opts.Trace, "trace", false, "write operation spans to stderr")

	// Add subcommands
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewApplyCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewScriptCommand(opts))
	cmd.AddCommand(NewInfoCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewShellCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewStoreCommand(opts))

	return cmd
}

// setup validates global flags, loads the environment configuration and
// installs the logger and tracer. Flags win over the environment.
func (o *RootOptions) setup(cmd *cobra.Command) error {
	if !isValidFormat(o.Format) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", o.Format, ValidFormats))
	}

	cfg, err := config.Load()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	if o.LogFormat != "" {
		cfg.LogFormat = o.LogFormat
		if err := cfg.Validate(); err != nil {
			return WrapExitError(ExitCommandError, "invalid --log-format", err)
		}
	}
	if o.Trace {
		cfg.Trace = true
	}
	o.Config = cfg
	o.Logger = cfg.NewLogger(cmd.ErrOrStderr(), o.Verbose)

	if cfg.Trace {
		shutdown, err := setupTracing(cmd.ErrOrStderr())
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to set up tracing", err)
		}
		o.shutdown = shutdown
	}
	return nil
}

func (o *RootOptions) close(ctx context.Context) error {
	if o.shutdown == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	err := o.shutdown(ctx)
	o.shutdown = nil
	return err
}

// logger returns the configured logger, or the default one for commands
// built without the root (tests).
func (o *RootOptions) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
