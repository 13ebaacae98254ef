package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/meshflow/internal/flow"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Exports  []string
	Save     string
	NoVerify bool
}

// RunResult is the run command's payload.
type RunResult struct {
	Operations int      `json:"operations"`
	Applied    int      `json:"applied"`
	Objects    int      `json:"objects"`
	Exported   []string `json:"exported,omitempty"`
	Saved      string   `json:"saved,omitempty"`
}

func (r RunResult) String() string {
	s := fmt.Sprintf("Applied %d/%d operations, %d objects", r.Applied, r.Operations, r.Objects)
	for _, f := range r.Exported {
		s += "\n  exported " + f
	}
	if r.Saved != "" {
		s += "\n  saved " + r.Saved
	}
	return s
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <project>",
		Short: "Execute a project's operation log",
		Long: `Load a project and apply every pending operation.

A project with a state section is restored from its snapshot (verified
against the log unless --no-verify); a log-only project is replayed from
an empty registry. Execution stops at the first failing operation.

Examples:
  meshflow run ./duct.json
  meshflow run ./duct.yaml --export g3:grid2:vtk:g3.vtk
  meshflow run ./duct.json --save ./duct.state.json --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProject(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Exports, "export", nil, "export an object after the run (name:kind:format:file, repeatable)")
	cmd.Flags().StringVar(&opts.Save, "save", "", "write the resulting project to this file")
	cmd.Flags().BoolVar(&opts.NoVerify, "no-verify", false, "trust the snapshot without replaying the log")

	return cmd
}

func runProject(opts *RunOptions, path string, cmd *cobra.Command) error {
	exports := make([]exportSpec, 0, len(opts.Exports))
	for _, e := range opts.Exports {
		spec, err := parseExportSpec(e)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --export", err)
		}
		exports = append(exports, spec)
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openProject(ctx, opts.RootOptions, path, loadOptions{NoVerify: opts.NoVerify})
	if err != nil {
		return err
	}
	defer s.close(opts.RootOptions)

	out := newFormatter(opts.RootOptions, cmd)
	logger := opts.logger()
	logger.Info("executing", "pending", s.flow.Len()-s.flow.Applied())
	if err := s.flow.ExecAll(ctx); err != nil {
		if execErr, ok := flow.AsExecError(err); ok {
			logger.Error("execution halted", "index", execErr.Index, "tag", execErr.Tag, "error", execErr.Err)
		}
		_ = out.Failure(err)
		return failure("execution failed", err)
	}

	result := RunResult{
		Operations: s.flow.Len(),
		Applied:    s.flow.Applied(),
		Objects:    s.fw.Len(),
	}
	for _, e := range exports {
		if err := s.exportObject(e); err != nil {
			return failure("export failed", err)
		}
		result.Exported = append(result.Exported, e.File)
	}
	if opts.Save != "" {
		if err := s.save(opts.Save); err != nil {
			return err
		}
		result.Saved = opts.Save
	}
	return out.Success(result)
}
