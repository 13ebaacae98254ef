package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/meshflow/internal/errs"
	"github.com/roach88/meshflow/internal/kernel"
)

// InfoOptions holds flags for the info command.
type InfoOptions struct {
	*RootOptions
	Skewness    float64
	Closest     string
	Snap        string
	PickContour string
	NoVerify    bool
}

// ObjectSummary is one registry row.
type ObjectSummary struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
}

// ProjectSummary lists a project's objects and flow state.
type ProjectSummary struct {
	Operations int             `json:"operations"`
	Applied    int             `json:"applied"`
	Objects    []ObjectSummary `json:"objects"`
	Picked     string          `json:"picked,omitempty"`
}

func (p ProjectSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d/%d operations applied, %d object(s)", p.Applied, p.Operations, len(p.Objects))
	for _, o := range p.Objects {
		fmt.Fprintf(&b, "\n  %-8s %s", o.Kind, o.Name)
	}
	if p.Picked != "" {
		fmt.Fprintf(&b, "\nclosest contour: %s", p.Picked)
	}
	return b.String()
}

// ObjectDetail is the info for a single object.
type ObjectDetail struct {
	Kind     string              `json:"kind"`
	Name     string              `json:"name"`
	Grid     *kernel.GridInfo    `json:"grid,omitempty"`
	Contour  *kernel.ContourInfo `json:"contour,omitempty"`
	Area     *float64            `json:"area,omitempty"`
	Skewness *kernel.SkewReport  `json:"skewness,omitempty"`
	Closest  *kernel.Point       `json:"closest,omitempty"`
}

func (d ObjectDetail) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", d.Kind, d.Name)
	if g := d.Grid; g != nil {
		fmt.Fprintf(&b, "\n  dim %d, %d nodes, %d cells", g.Dim, g.Nodes, g.Cells)
		if g.Edges > 0 {
			fmt.Fprintf(&b, ", %d edges", g.Edges)
		}
		if g.Faces > 0 {
			fmt.Fprintf(&b, ", %d boundary faces", g.Faces)
		}
		fmt.Fprintf(&b, "\n  cell types %v, boundary types %v", g.CellTypes, g.BTypes)
	}
	if c := d.Contour; c != nil {
		fmt.Fprintf(&b, "\n  %d nodes, %d edges, %d subcontour(s), closed %v, length %g",
			c.Nodes, c.Edges, c.Subcontours, c.Closed, c.Length)
		fmt.Fprintf(&b, "\n  boundary types %v", c.BTypes)
	}
	if d.Area != nil {
		fmt.Fprintf(&b, "\n  area %g", *d.Area)
	}
	if s := d.Skewness; s != nil {
		fmt.Fprintf(&b, "\n  max skewness %.4f (cell %d)", s.MaxSkew, s.MaxSkewCell)
		if !s.OK {
			fmt.Fprintf(&b, ", %d cell(s) over threshold", len(s.BadCells))
		}
	}
	if c := d.Closest; c != nil {
		fmt.Fprintf(&b, "\n  closest point (%g, %g)", c.X, c.Y)
	}
	return b.String()
}

// NewInfoCommand creates the info command.
func NewInfoCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InfoOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "info <project> [kind name]",
		Short: "Describe a project or one of its objects",
		Long: `Run a project and describe the result.

With only a project, lists every object in registration order. With a
kind (grid2, contour2 or grid3) and a name, prints that object's
statistics. --skewness checks grid2 cells against a threshold in [0, 1].

--closest x,y reports the point of a contour2, or of a grid2's boundary,
nearest to (x, y): a vertex, or with --snap edge any point on an edge.
--pick-contour x,y names the registered contour2 closest to (x, y).

Examples:
  meshflow info duct.json
  meshflow info duct.json --pick-contour 0.5,0.5
  meshflow info duct.json grid2 g3 --skewness 0.7
  meshflow info duct.json contour2 hole --closest 1,2 --snap edge`,
		Args:          cobra.MatchAll(cobra.RangeArgs(1, 3), validInfoArgs),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(opts, args, cmd)
		},
	}

	cmd.Flags().Float64Var(&opts.Skewness, "skewness", 0, "report grid2 cells whose skewness exceeds this threshold")
	cmd.Flags().StringVar(&opts.Closest, "closest", "", "report the object point nearest to x,y")
	cmd.Flags().StringVar(&opts.Snap, "snap", "vertex", "what --closest snaps to: vertex or edge")
	cmd.Flags().StringVar(&opts.PickContour, "pick-contour", "", "name the contour2 closest to x,y")
	cmd.Flags().BoolVar(&opts.NoVerify, "no-verify", false, "trust the snapshot without replaying the log")

	return cmd
}

func validInfoArgs(cmd *cobra.Command, args []string) error {
	if len(args) == 2 {
		return fmt.Errorf("an object needs both a kind and a name")
	}
	return nil
}

// parsePoint parses "x,y".
func parsePoint(s string) (kernel.Point, error) {
	xs, ys, ok := strings.Cut(s, ",")
	if !ok {
		return kernel.Point{}, fmt.Errorf("invalid point %q: want x,y", s)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(xs), 64)
	if err != nil {
		return kernel.Point{}, fmt.Errorf("invalid point %q: %w", s, err)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(ys), 64)
	if err != nil {
		return kernel.Point{}, fmt.Errorf("invalid point %q: %w", s, err)
	}
	return kernel.Point{X: x, Y: y}, nil
}

// pickContour names the registered contour2 closest to at.
func pickContour(s *session, at kernel.Point) (string, error) {
	var names []string
	var hs []kernel.Handle
	for _, e := range s.fw.Entries() {
		if e.Kind == kernel.KindContour2 {
			names = append(names, e.Name)
			hs = append(hs, e.Handle)
		}
	}
	if len(hs) == 0 {
		return "", &errs.Error{Code: errs.CodeNotFound, Op: "info", Message: "no contour2 objects to pick from"}
	}
	i, err := s.kernel.PickContour(at, hs)
	if err != nil {
		return "", errs.KernelFailure(err).WithOp("info")
	}
	return names[i], nil
}

func runInfo(opts *InfoOptions, args []string, cmd *cobra.Command) error {
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

	var closest *kernel.Point
	if opts.Closest != "" {
		p, err := parsePoint(opts.Closest)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --closest", err)
		}
		closest = &p
	}
	snap, err := kernel.ParseSnap(opts.Snap)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --snap", err)
	}

	if len(args) == 1 {
		if closest != nil {
			return NewExitError(ExitCommandError, "--closest needs an object kind and name")
		}
		summary := ProjectSummary{
			Operations: s.flow.Len(),
			Applied:    s.flow.Applied(),
			Objects:    []ObjectSummary{},
		}
		for _, e := range s.fw.Entries() {
			summary.Objects = append(summary.Objects, ObjectSummary{Kind: string(e.Kind), Name: e.Name})
		}
		if opts.PickContour != "" {
			at, err := parsePoint(opts.PickContour)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --pick-contour", err)
			}
			if summary.Picked, err = pickContour(s, at); err != nil {
				_ = out.Failure(err)
				return failure("info failed", err)
			}
		}
		return out.Success(summary)
	}

	kind, err := kernel.ParseKind(args[1])
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid kind", err)
	}
	detail, err := describe(s, kind, args[2], opts.Skewness)
	if err == nil && closest != nil {
		detail.Closest, err = closestPoint(s, kind, args[2], *closest, snap)
	}
	if err != nil {
		_ = out.Failure(err)
		return failure("info failed", err)
	}
	return out.Success(detail)
}

// describe gathers the kernel queries that apply to kind.
func describe(s *session, kind kernel.Kind, name string, skewness float64) (ObjectDetail, error) {
	h, err := s.fw.Lookup(kind, name)
	if err != nil {
		return ObjectDetail{}, err
	}
	detail := ObjectDetail{Kind: string(kind), Name: name}

	switch kind {
	case kernel.KindContour2:
		info, err := s.kernel.ContourInfo(h)
		if err != nil {
			return ObjectDetail{}, errs.KernelFailure(err).WithOp("info")
		}
		detail.Contour = &info
	default:
		info, err := s.kernel.GridInfo(h)
		if err != nil {
			return ObjectDetail{}, errs.KernelFailure(err).WithOp("info")
		}
		detail.Grid = &info
	}

	// open contours have no area
	if kind == kernel.KindGrid2 || (detail.Contour != nil && detail.Contour.Closed) {
		area, err := s.kernel.DomainArea(h)
		if err != nil {
			return ObjectDetail{}, errs.KernelFailure(err).WithOp("info")
		}
		detail.Area = &area
	}
	if skewness > 0 {
		if kind != kernel.KindGrid2 {
			return ObjectDetail{}, errs.InvalidArgument("--skewness applies to grid2 only").WithOp("info")
		}
		rep, err := s.kernel.Skewness(h, skewness)
		if err != nil {
			return ObjectDetail{}, errs.KernelFailure(err).WithOp("info")
		}
		detail.Skewness = &rep
	}
	return detail, nil
}

// closestPoint answers --closest for one object.
func closestPoint(s *session, kind kernel.Kind, name string, at kernel.Point, snap kernel.Snap) (*kernel.Point, error) {
	if kind == kernel.KindGrid3 {
		return nil, errs.InvalidArgument("--closest applies to grid2 and contour2 only").WithOp("info")
	}
	h, err := s.fw.Lookup(kind, name)
	if err != nil {
		return nil, err
	}
	p, err := s.kernel.ClosestPoint(h, at, snap)
	if err != nil {
		return nil, errs.KernelFailure(err).WithOp("info")
	}
	return &p, nil
}
