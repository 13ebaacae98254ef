package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	NoVerify bool
}

// ExportResult is the export command's payload.
type ExportResult struct {
	Kind   string `json:"kind"`
	Name   string `json:"name"`
	Format string `json:"format"`
	File   string `json:"file"`
}

func (r ExportResult) String() string {
	return fmt.Sprintf("Exported %s %s as %s to %s", r.Kind, r.Name, r.Format, r.File)
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export <project> <kind> <name> <format> <file>",
		Short: "Write one object to a mesh file",
		Long: `Run a project and write one of its objects to a file.

Formats:
  vtk  legacy ASCII unstructured grid (grid2, contour2, grid3)
  msh  gmsh 2.2 ASCII with physical boundary names (grid2 of triangles and quads)
  json the object's raw tables

Example:
  meshflow export duct.json grid2 g3 vtk g3.vtk`,
		Args:          cobra.ExactArgs(5),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.NoVerify, "no-verify", false, "trust the snapshot without replaying the log")

	return cmd
}

func runExport(opts *ExportOptions, args []string, cmd *cobra.Command) error {
	spec, err := parseExportSpec(args[2] + ":" + args[1] + ":" + args[3] + ":" + args[4])
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid arguments", err)
	}

	ctx := cmd.Context()
	s, err := openProject(ctx, opts.RootOptions, args[0], loadOptions{NoVerify: opts.NoVerify})
	if err != nil {
		return err
	}
	defer s.close(opts.RootOptions)
	out := newFormatter(opts.RootOptions, cmd)
	if err := s.flow.ExecAll(ctx); err != nil {
		_ = out.Failure(err)
		return failure("execution failed", err)
	}
	if err := s.exportObject(spec); err != nil {
		_ = out.Failure(err)
		return failure("export failed", err)
	}
	return out.Success(ExportResult{
		Kind:   string(spec.Kind),
		Name:   spec.Name,
		Format: string(spec.Format),
		File:   spec.File,
	})
}
