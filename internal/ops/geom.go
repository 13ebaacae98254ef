package ops

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/meshflow/internal/errs"
	"github.com/roach88/meshflow/internal/framework"
	"github.com/roach88/meshflow/internal/ir"
	"github.com/roach88/meshflow/internal/kernel"
)

// SetBoundaryType assigns BT to every boundary segment (or face) of an
// object.
type SetBoundaryType struct {
	journaled
	Kind   kernel.Kind `json:"kind"`
	Target string      `json:"target"`
	BT     int         `json:"bt"`
}

func (*SetBoundaryType) Tag() Tag             { return TagSetBoundaryType }
func (op *SetBoundaryType) Params() ir.Object { return paramsOf(op) }

func (op *SetBoundaryType) Validate(fw *framework.Framework) error {
	return validate(op, func() error { return mustExist(fw, op.Kind, op.Target) })
}

func (op *SetBoundaryType) Apply(ctx context.Context, env Env) (*framework.UndoData, error) {
	if err := op.Validate(env.Framework); err != nil {
		return nil, err
	}
	return replace(ctx, env, op.Tag(), op.Kind, op.Target, func(k kernel.Kernel, h kernel.Handle) (kernel.Handle, error) {
		return k.SetBoundaryType(h, op.BT)
	})
}

// CopyGeom registers a copy of Source under Name.
type CopyGeom struct {
	journaled
	Kind   kernel.Kind `json:"kind"`
	Source string      `json:"source"`
	Name   string      `json:"name"`
}

func (*CopyGeom) Tag() Tag             { return TagCopyGeom }
func (op *CopyGeom) Params() ir.Object { return paramsOf(op) }

func (op *CopyGeom) Validate(fw *framework.Framework) error {
	return validate(op, func() error {
		if err := mustExist(fw, op.Kind, op.Source); err != nil {
			return err
		}
		return mustBeFree(fw, op.Kind, op.Name)
	})
}

func (op *CopyGeom) Apply(ctx context.Context, env Env) (*framework.UndoData, error) {
	if err := op.Validate(env.Framework); err != nil {
		return nil, err
	}
	src, err := env.Framework.Lookup(op.Kind, op.Source)
	if err != nil {
		return nil, err
	}
	return create(ctx, env, op.Tag(), op.Kind, op.Name, func(k kernel.Kernel) (kernel.Handle, error) {
		return k.Copy(src)
	})
}

// MoveGeom translates an object in the plane.
type MoveGeom struct {
	journaled
	Kind   kernel.Kind `json:"kind"`
	Target string      `json:"target"`
	DX     float64     `json:"dx"`
	DY     float64     `json:"dy"`
}

func (*MoveGeom) Tag() Tag             { return TagMoveGeom }
func (op *MoveGeom) Params() ir.Object { return paramsOf(op) }

func (op *MoveGeom) Validate(fw *framework.Framework) error {
	return validate(op, func() error { return mustExist(fw, op.Kind, op.Target) })
}

func (op *MoveGeom) Apply(ctx context.Context, env Env) (*framework.UndoData, error) {
	if err := op.Validate(env.Framework); err != nil {
		return nil, err
	}
	return replace(ctx, env, op.Tag(), op.Kind, op.Target, func(k kernel.Kernel, h kernel.Handle) (kernel.Handle, error) {
		return k.Move(h, op.DX, op.DY)
	})
}

// RotateGeom turns an object counter-clockwise by Angle degrees around
// Center.
type RotateGeom struct {
	journaled
	Kind   kernel.Kind `json:"kind"`
	Target string      `json:"target"`
	Center Point       `json:"center"`
	Angle  float64     `json:"angle"`
}

func (*RotateGeom) Tag() Tag             { return TagRotateGeom }
func (op *RotateGeom) Params() ir.Object { return paramsOf(op) }

func (op *RotateGeom) Validate(fw *framework.Framework) error {
	return validate(op, func() error { return mustExist(fw, op.Kind, op.Target) })
}

func (op *RotateGeom) Apply(ctx context.Context, env Env) (*framework.UndoData, error) {
	if err := op.Validate(env.Framework); err != nil {
		return nil, err
	}
	return replace(ctx, env, op.Tag(), op.Kind, op.Target, func(k kernel.Kernel, h kernel.Handle) (kernel.Handle, error) {
		return k.Rotate(h, op.Center.k(), op.Angle)
	})
}

// RenameGeom renames Target to Name.
type RenameGeom struct {
	journaled
	Kind   kernel.Kind `json:"kind"`
	Target string      `json:"target"`
	Name   string      `json:"name"`
}

func (*RenameGeom) Tag() Tag             { return TagRenameGeom }
func (op *RenameGeom) Params() ir.Object { return paramsOf(op) }

func (op *RenameGeom) Validate(fw *framework.Framework) error {
	return validate(op, func() error {
		if err := mustExist(fw, op.Kind, op.Target); err != nil {
			return err
		}
		return mustBeFree(fw, op.Kind, op.Name)
	})
}

func (op *RenameGeom) Apply(ctx context.Context, env Env) (*framework.UndoData, error) {
	if err := op.Validate(env.Framework); err != nil {
		return nil, err
	}
	tx := env.Framework.Begin()
	if err := tx.Rename(op.Kind, op.Target, op.Name); err != nil {
		return nil, rollback(env, op.Tag(), tx, err)
	}
	return tx.Commit(), nil
}

// RemoveGeom unregisters Names after asking the interface to confirm. A
// declined confirmation fails the operation with CANCELLED.
type RemoveGeom struct {
	journaled
	Kind  kernel.Kind `json:"kind"`
	Names []string    `json:"names"`
}

func (*RemoveGeom) Tag() Tag             { return TagRemoveGeom }
func (op *RemoveGeom) Params() ir.Object { return paramsOf(op) }

func (op *RemoveGeom) Validate(fw *framework.Framework) error {
	return validate(op, func() error {
		seen := map[string]bool{}
		for _, name := range op.Names {
			if seen[name] {
				return errs.InvalidArgument("%q listed twice", name)
			}
			seen[name] = true
			if err := mustExist(fw, op.Kind, name); err != nil {
				return err
			}
		}
		return nil
	})
}

func (op *RemoveGeom) Apply(ctx context.Context, env Env) (*framework.UndoData, error) {
	if err := op.Validate(env.Framework); err != nil {
		return nil, err
	}
	if env.UI != nil {
		prompt := fmt.Sprintf("remove %s %s?", op.Kind, strings.Join(op.Names, ", "))
		if !env.UI.Confirm(prompt) {
			return nil, &errs.Error{Code: errs.CodeCancelled, Op: string(op.Tag()), Message: "removal declined"}
		}
	}
	tx := env.Framework.Begin()
	for _, name := range op.Names {
		if _, err := tx.Remove(op.Kind, name); err != nil {
			return nil, rollback(env, op.Tag(), tx, err)
		}
	}
	return tx.Commit(), nil
}
