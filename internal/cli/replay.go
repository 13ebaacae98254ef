package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/meshflow/internal/framework"
	"github.com/roach88/meshflow/internal/kernel"
	"github.com/roach88/meshflow/internal/project"
	"github.com/roach88/meshflow/internal/ui"
)

// ReplayResult holds the outcome of replaying one project.
type ReplayResult struct {
	Operations    int    `json:"operations"`
	Objects       int    `json:"objects"`
	Deterministic bool   `json:"deterministic"`
	HasState      bool   `json:"has_state"`
	StateMatches  bool   `json:"state_matches"`
	Difference    string `json:"difference,omitempty"`
}

// ok reports whether the replay verified.
func (r ReplayResult) ok() bool {
	return r.Deterministic && (!r.HasState || r.StateMatches)
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <project>",
		Short: "Replay a project log and verify it",
		Long: `Replay a project's operation log and verify the result.

The log is replayed twice on fresh registries and the two results must be
identical. When the project carries a state section, the replayed
registry must also equal that snapshot.

Exit codes:
  0 - Replay is deterministic and matches the snapshot
  1 - Verification failed (differences detected, or an operation failed)
  2 - Command error (unreadable project, etc.)

Examples:
  meshflow replay ./duct.json
  meshflow replay ./duct.json --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runReplay(opts *RootOptions, path string, cmd *cobra.Command) error {
	ctx := cmd.Context()

	doc, err := project.ReadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load project", err)
	}

	first, err := replayDocument(ctx, opts, doc)
	if err != nil {
		return failure("replay failed", err)
	}
	second, err := replayDocument(ctx, opts, doc)
	if err != nil {
		return failure("second replay failed", err)
	}

	result := ReplayResult{
		Operations:    len(doc.Flow.Operations),
		Objects:       len(first.Entries),
		Deterministic: true,
		HasState:      doc.HasState(),
	}
	if err := first.Compare(second); err != nil {
		result.Deterministic = false
		result.Difference = err.Error()
	}
	if result.HasState && result.Deterministic {
		if err := doc.State.Compare(first); err != nil {
			result.Difference = err.Error()
		} else {
			result.StateMatches = true
		}
	}

	// Output results
	if opts.Format == "json" {
		return outputReplayJSON(cmd, result)
	}
	return outputReplayText(cmd, result)
}

// replayDocument executes doc's log on a fresh registry and returns the
// resulting snapshot.
func replayDocument(ctx context.Context, opts *RootOptions, doc *project.Document) (framework.Snapshot, error) {
	f, err := project.DecodeFlow(doc)
	if err != nil {
		return framework.Snapshot{}, err
	}
	fw := framework.New(kernel.NewReference(), framework.WithLogger(opts.logger()))
	defer fw.Clear()
	if err := f.SetReceiver(fw); err != nil {
		return framework.Snapshot{}, err
	}
	defer func() { _ = f.Close() }()
	if err := f.SetInterface(ui.NewConsole(true, opts.logger())); err != nil {
		return framework.Snapshot{}, err
	}
	if err := f.ExecAll(ctx); err != nil {
		return framework.Snapshot{}, err
	}
	return fw.Snapshot()
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(cmd *cobra.Command, result ReplayResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	if !result.ok() {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_REPLAY",
			Message: "replay verification failed",
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if !result.ok() {
		return NewExitError(ExitFailure, "replay verification failed")
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(cmd *cobra.Command, result ReplayResult) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Replayed %d operation(s), %d object(s)\n", result.Operations, result.Objects)
	if result.Deterministic {
		fmt.Fprintln(w, "✓ Replay is deterministic")
	} else {
		fmt.Fprintln(w, "✗ Replays differ")
	}
	if result.HasState {
		if result.StateMatches {
			fmt.Fprintln(w, "✓ Snapshot matches the log")
		} else {
			fmt.Fprintln(w, "✗ Snapshot does not match the log")
		}
	}
	if result.Difference != "" {
		fmt.Fprintf(w, "  %s\n", result.Difference)
	}

	if !result.ok() {
		return NewExitError(ExitFailure, "replay verification failed")
	}
	return nil
}
