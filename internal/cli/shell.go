package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/roach88/meshflow/internal/flow"
	"github.com/roach88/meshflow/internal/ir"
	"github.com/roach88/meshflow/internal/kernel"
	"github.com/roach88/meshflow/internal/ops"
	"github.com/roach88/meshflow/internal/ui"
)

const shellHelp = `commands:
  <operation> <json params>      append and apply, e.g. add_unf_rect_grid {"name":"g1",...}
  undo | redo | exec | resume    move through the log
  ls                             list objects
  ops                            list operation names
  log                            show the operation log
  info <kind> <name>             describe an object
  export <kind> <name> <format> <file>
  save <file>                    write the project
  help | quit`

// ShellOptions holds flags for the shell command.
type ShellOptions struct {
	*RootOptions
	NoVerify bool
}

// NewShellCommand creates the shell command.
func NewShellCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShellOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "shell [project]",
		Short: "Edit a project interactively",
		Long: `Start an interactive session on a project, or on an empty one.

Each input line is an operation with its parameters as JSON, or one of the
shell commands (type help). Confirmation prompts are asked on the terminal.
Ctrl-C cancels the running operation at its next checkpoint; the operation
is rolled back and the session continues.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runShell(opts, path, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.NoVerify, "no-verify", false, "trust the snapshot without replaying the log")

	return cmd
}

// shellUI remembers the last failure it reported so the shell does not
// print it twice.
type shellUI struct {
	*ui.Interactive
	mu   sync.Mutex
	last error
}

func (s *shellUI) ReportFailure(err error) {
	s.mu.Lock()
	s.last = err
	s.mu.Unlock()
	s.Interactive.ReportFailure(err)
}

func (s *shellUI) reported(err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last != nil && errors.Is(err, s.last)
}

type shell struct {
	opts    *RootOptions
	session *session
	runner  *flow.Runner
	ui      *shellUI
	out     io.Writer
}

func runShell(opts *ShellOptions, path string, cmd *cobra.Command) error {
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sui := &shellUI{Interactive: ui.NewInteractive(cmd.InOrStdin(), cmd.OutOrStdout())}
	s, err := openProject(ctx, opts.RootOptions, path, loadOptions{UI: sui, NoVerify: opts.NoVerify})
	if err != nil {
		return err
	}
	defer s.close(opts.RootOptions)
	if err := s.flow.ExecAll(ctx); err != nil {
		// the session still opens so the failure can be inspected
		fmt.Fprintf(cmd.OutOrStdout(), "pending operations stopped: %v\n", err)
	}

	sh := &shell{
		opts:    opts.RootOptions,
		session: s,
		runner:  flow.NewRunner(s.flow),
		ui:      sui,
		out:     cmd.OutOrStdout(),
	}

	done := make(chan error, 1)
	go func() { done <- sh.runner.Run(ctx) }()

	// Ctrl-C cancels the running operation instead of the session.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	defer signal.Stop(sigChan) // Prevent signal handler leak
	go func() {
		for {
			select {
			case <-sigChan:
				sui.Cancel()
			case <-ctx.Done():
				return
			}
		}
	}()

	fmt.Fprintf(sh.out, "meshflow shell, %d object(s). Type help for commands.\n", s.fw.Len())
	for {
		line, err := sui.ReadLine("meshflow> ")
		if err != nil {
			fmt.Fprintln(sh.out)
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}
		sui.Reset()
		if err := sh.exec(ctx, line); err != nil && !sui.reported(err) {
			fmt.Fprintf(sh.out, "error: %v\n", err)
		}
	}

	sh.runner.Stop()
	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// exec runs one input line.
func (sh *shell) exec(ctx context.Context, line string) error {
	word, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	args := strings.Fields(rest)

	switch word {
	case "help":
		fmt.Fprintln(sh.out, shellHelp)
		return nil
	case "undo":
		return sh.runner.Undo(ctx)
	case "redo":
		return sh.runner.Redo(ctx)
	case "exec":
		return sh.runner.ExecAll(ctx)
	case "resume":
		return sh.runner.Do(ctx, func(_ context.Context, f *flow.CommandFlow) error {
			f.Resume()
			return nil
		})
	case "ls":
		return sh.runner.Do(ctx, func(context.Context, *flow.CommandFlow) error {
			for _, key := range objectKeys(sh.session) {
				fmt.Fprintf(sh.out, "  %s\n", key)
			}
			return nil
		})
	case "ops":
		for _, tag := range ops.Tags {
			fmt.Fprintf(sh.out, "  %s\n", tag)
		}
		return nil
	case "log":
		return sh.runner.Do(ctx, func(_ context.Context, f *flow.CommandFlow) error {
			for i, op := range f.Operations() {
				marker := " "
				if i < f.Applied() {
					marker = "*"
				}
				params, err := ir.MarshalCanonical(op.Params())
				if err != nil {
					return err
				}
				fmt.Fprintf(sh.out, "%s %3d %s %s\n", marker, i, op.Tag(), params)
			}
			fmt.Fprintf(sh.out, "  state %s\n", f.State())
			return nil
		})
	case "info":
		if len(args) != 2 {
			return fmt.Errorf("usage: info <kind> <name>")
		}
		kind, err := kernel.ParseKind(args[0])
		if err != nil {
			return err
		}
		return sh.runner.Do(ctx, func(context.Context, *flow.CommandFlow) error {
			detail, err := describe(sh.session, kind, args[1], 0)
			if err != nil {
				return err
			}
			fmt.Fprintln(sh.out, detail)
			return nil
		})
	case "export":
		if len(args) != 4 {
			return fmt.Errorf("usage: export <kind> <name> <format> <file>")
		}
		spec, err := parseExportSpec(args[1] + ":" + args[0] + ":" + args[2] + ":" + args[3])
		if err != nil {
			return err
		}
		return sh.runner.Do(ctx, func(context.Context, *flow.CommandFlow) error {
			return sh.session.exportObject(spec)
		})
	case "save":
		if len(args) != 1 {
			return fmt.Errorf("usage: save <file>")
		}
		return sh.runner.Do(ctx, func(context.Context, *flow.CommandFlow) error {
			if err := sh.session.save(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(sh.out, "saved %s\n", args[0])
			return nil
		})
	}

	if rest == "" {
		rest = "{}"
	}
	params, err := ir.UnmarshalObject([]byte(rest))
	if err != nil {
		return fmt.Errorf("parameters must be a JSON object: %w", err)
	}
	op, err := ops.Decode(word, params)
	if err != nil {
		return err
	}
	return sh.runner.Apply(ctx, op)
}
