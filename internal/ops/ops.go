// Package ops defines the closed set of reversible operations.
//
// Every operation is a parameter record plus the shared apply contract:
// validate everything first (schema, then names), call the kernel, then
// register the result through a framework transaction. A kernel failure or
// cancellation rolls the transaction back, so a failed Apply never leaves
// the registry changed.
package ops

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/meshflow/internal/errs"
	"github.com/roach88/meshflow/internal/framework"
	"github.com/roach88/meshflow/internal/ir"
	"github.com/roach88/meshflow/internal/kernel"
	"github.com/roach88/meshflow/internal/ui"
)

// Tag names an operation variant. Tags are stable: they are written into
// project documents.
type Tag string

const (
	TagAddUnfRectGrid   Tag = "add_unf_rect_grid"
	TagAddUnfRingGrid   Tag = "add_unf_ring_grid"
	TagAddRectContour   Tag = "add_rect_contour"
	TagAddCustomContour Tag = "add_custom_contour"
	TagSetBoundaryType  Tag = "set_boundary_type"
	TagUniteGrids       Tag = "unite_grids"
	TagExcludeContours  Tag = "exclude_contours"
	TagExtrudeGrid      Tag = "extrude_grid"
	TagRevolveGrid      Tag = "revolve_grid"
	TagCopyGeom         Tag = "copy_geom"
	TagMoveGeom         Tag = "move_geom"
	TagRotateGeom       Tag = "rotate_geom"
	TagRenameGeom       Tag = "rename_geom"
	TagRemoveGeom       Tag = "remove_geom"
)

// Tags lists every variant.
var Tags = []Tag{
	TagAddUnfRectGrid, TagAddUnfRingGrid, TagAddRectContour, TagAddCustomContour,
	TagSetBoundaryType, TagUniteGrids, TagExcludeContours, TagExtrudeGrid,
	TagRevolveGrid, TagCopyGeom, TagMoveGeom, TagRotateGeom, TagRenameGeom,
	TagRemoveGeom,
}

// Env is what an operation may touch while applying.
type Env struct {
	Framework *framework.Framework
	UI        ui.Interface
	Logger    *slog.Logger
}

// Operation is one reversible unit of work.
type Operation interface {
	Tag() Tag
	// Params returns the parameters in the form written to documents.
	Params() ir.Object
	// Validate checks parameters and referenced names without side effects.
	Validate(fw *framework.Framework) error
	// Apply validates, performs the effect and returns its undo journal.
	Apply(ctx context.Context, env Env) (*framework.UndoData, error)
	// Revert undoes a successful Apply exactly once.
	Revert(fw *framework.Framework, undo *framework.UndoData) error
}

// New returns an empty parameter record for tag.
func New(tag Tag) (Operation, error) {
	switch tag {
	case TagAddUnfRectGrid:
		return &AddUnfRectGrid{}, nil
	case TagAddUnfRingGrid:
		return &AddUnfRingGrid{}, nil
	case TagAddRectContour:
		return &AddRectContour{}, nil
	case TagAddCustomContour:
		return &AddCustomContour{}, nil
	case TagSetBoundaryType:
		return &SetBoundaryType{}, nil
	case TagUniteGrids:
		return &UniteGrids{}, nil
	case TagExcludeContours:
		return &ExcludeContours{}, nil
	case TagExtrudeGrid:
		return &ExtrudeGrid{}, nil
	case TagRevolveGrid:
		return &RevolveGrid{}, nil
	case TagCopyGeom:
		return &CopyGeom{}, nil
	case TagMoveGeom:
		return &MoveGeom{}, nil
	case TagRotateGeom:
		return &RotateGeom{}, nil
	case TagRenameGeom:
		return &RenameGeom{}, nil
	case TagRemoveGeom:
		return &RemoveGeom{}, nil
	}
	return nil, errs.InvalidArgument("unknown operation %q", tag)
}

// Decode builds an operation from a tag and its document parameters. Shape
// errors are InvalidArgument; names are checked later, against the
// registry the operation is applied to.
func Decode(tag string, params ir.Object) (Operation, error) {
	op, err := New(Tag(tag))
	if err != nil {
		return nil, err
	}
	if params == nil {
		params = ir.Object{}
	}
	if err := checkSchema(Tag(tag), params); err != nil {
		return nil, err
	}
	if err := ir.Decode(params, op); err != nil {
		return nil, errs.InvalidArgument("params: %v", err).WithOp(tag)
	}
	return op, nil
}

// Point is a 2D coordinate written as [x, y].
type Point [2]float64

func (p Point) k() kernel.Point { return kernel.Point{X: p[0], Y: p[1]} }

// journaled supplies the shared Revert.
type journaled struct{}

func (journaled) Revert(fw *framework.Framework, undo *framework.UndoData) error {
	return fw.Revert(undo)
}

func paramsOf(op Operation) ir.Object {
	obj, err := ir.ObjectFrom(op)
	if err != nil {
		// every parameter record is plain JSON data
		panic(fmt.Sprintf("params of %s: %v", op.Tag(), err))
	}
	return obj
}

// validate runs the schema, then the variant's own checks.
func validate(op Operation, check func() error) error {
	if err := checkSchema(op.Tag(), op.Params()); err != nil {
		return err
	}
	if check == nil {
		return nil
	}
	if err := check(); err != nil {
		var e *errs.Error
		if errors.As(err, &e) {
			return e.WithOp(string(op.Tag()))
		}
		return err
	}
	return nil
}

func mustExist(fw *framework.Framework, kind kernel.Kind, name string) error {
	if !fw.Contains(kind, name) {
		return errs.NotFound(string(kind), name)
	}
	return nil
}

func mustBeFree(fw *framework.Framework, kind kernel.Kind, name string) error {
	if fw.Contains(kind, name) {
		return errs.NameCollision(string(kind), name)
	}
	return nil
}

// kernelError converts a kernel failure into the taxonomy.
func kernelError(tag Tag, err error) error {
	if errors.Is(err, kernel.ErrCancelled) || errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return &errs.Error{Code: errs.CodeCancelled, Op: string(tag), Message: "cancelled", Err: err}
	}
	return errs.KernelFailure(err).WithOp(string(tag))
}

var errUserCancelled = errors.New("cancelled by user")

// checkpoint reports progress and polls for cancellation.
func (env Env) checkpoint(ctx context.Context, tag Tag) kernel.Checkpoint {
	return func(fraction float64) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if env.UI == nil {
			return nil
		}
		env.UI.ReportProgress(fraction, string(tag))
		if env.UI.IsCancelled() {
			return errUserCancelled
		}
		return nil
	}
}

// create builds a new object and registers it under name.
func create(ctx context.Context, env Env, tag Tag, kind kernel.Kind, name string, build func(k kernel.Kernel) (kernel.Handle, error)) (*framework.UndoData, error) {
	if err := ctx.Err(); err != nil {
		return nil, kernelError(tag, err)
	}
	fw := env.Framework
	h, err := build(fw.Kernel())
	if err != nil {
		return nil, kernelError(tag, err)
	}
	tx := fw.Begin()
	if err := tx.Register(kind, name, h); err != nil {
		release(env, tag, h)
		return nil, rollback(env, tag, tx, err)
	}
	return tx.Commit(), nil
}

// replace transforms an existing object and rebinds its name. The old
// handle stays alive as undo data.
func replace(ctx context.Context, env Env, tag Tag, kind kernel.Kind, name string, transform func(k kernel.Kernel, h kernel.Handle) (kernel.Handle, error)) (*framework.UndoData, error) {
	if err := ctx.Err(); err != nil {
		return nil, kernelError(tag, err)
	}
	fw := env.Framework
	old, err := fw.Lookup(kind, name)
	if err != nil {
		return nil, err
	}
	h, err := transform(fw.Kernel(), old)
	if err != nil {
		return nil, kernelError(tag, err)
	}
	tx := fw.Begin()
	if _, err := tx.Replace(kind, name, h); err != nil {
		release(env, tag, h)
		return nil, rollback(env, tag, tx, err)
	}
	return tx.Commit(), nil
}

// rollback abandons tx after cause and returns cause. A failed rollback
// leaves bindings the journal could not restore, so it is logged.
func rollback(env Env, tag Tag, tx *framework.Tx, cause error) error {
	if err := tx.Rollback(); err != nil {
		env.logger().Error("rollback failed", "tag", tag, "error", err, "cause", cause)
	}
	return cause
}

// release frees a handle the registry never bound.
func release(env Env, tag Tag, h kernel.Handle) {
	if err := env.Framework.Kernel().Release(h); err != nil {
		env.logger().Warn("release failed", "tag", tag, "handle", h, "error", err)
	}
}

func (env Env) logger() *slog.Logger {
	if env.Logger == nil {
		return slog.Default()
	}
	return env.Logger
}
