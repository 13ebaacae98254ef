package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/meshflow/internal/script"
)

// ScriptOptions holds flags for the script command.
type ScriptOptions struct {
	*RootOptions
	Project string
	Save    string
}

// ScriptResult is the script command's payload.
type ScriptResult struct {
	Script     string   `json:"script"`
	Operations int      `json:"operations"`
	Applied    int      `json:"applied"`
	Objects    []string `json:"objects"`
	Saved      string   `json:"saved,omitempty"`
}

func (r ScriptResult) String() string {
	s := fmt.Sprintf("%s: %d/%d operations applied, objects %v", r.Script, r.Applied, r.Operations, r.Objects)
	if r.Saved != "" {
		s += "\n  saved " + r.Saved
	}
	return s
}

// NewScriptCommand creates the script command.
func NewScriptCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScriptOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "script <file.lua>",
		Short: "Build a project from a Lua script",
		Long: `Run a Lua script against a command flow.

The script sees a global table hm with one function per operation, each
taking a parameter table, plus hm.undo(), hm.redo() and hm.names(kind).
Every call appends and applies one operation; a failure raises a Lua error
that stops the script unless it is caught with pcall.

Example script:
  hm.add_unf_rect_grid{name="g1", p0={0,0}, p1={1,1}, nx=4, ny=4}
  hm.add_unf_rect_grid{name="g2", p0={1,0}, p1={2,1}, nx=4, ny=4}
  hm.unite_grids{name="g3", base="g1", others={"g2"}}

Examples:
  meshflow script build.lua --save duct.json
  meshflow script extend.lua --project duct.json --save duct2.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScript(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Project, "project", "", "start from this project instead of an empty one")
	cmd.Flags().StringVar(&opts.Save, "save", "", "write the resulting project to this file")

	return cmd
}

func runScript(opts *ScriptOptions, path string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	s, err := openProject(ctx, opts.RootOptions, opts.Project, loadOptions{})
	if err != nil {
		return err
	}
	defer s.close(opts.RootOptions)

	out := newFormatter(opts.RootOptions, cmd)
	if err := s.flow.ExecAll(ctx); err != nil {
		_ = out.Failure(err)
		return failure("project operations failed", err)
	}

	in := script.New(s.flow, script.WithLogger(opts.logger()))
	if err := in.RunFile(ctx, path); err != nil {
		_ = out.Failure(err)
		return failure("script failed", err)
	}

	result := ScriptResult{
		Script:     path,
		Operations: s.flow.Len(),
		Applied:    s.flow.Applied(),
		Objects:    objectKeys(s),
	}
	if opts.Save != "" {
		if err := s.save(opts.Save); err != nil {
			return err
		}
		result.Saved = opts.Save
	}
	return out.Success(result)
}

// objectKeys lists kind:name for every registered object in order.
func objectKeys(s *session) []string {
	entries := s.fw.Entries()
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Key.String()
	}
	return keys
}
