package ops

import (
	"context"

	"github.com/roach88/meshflow/internal/errs"
	"github.com/roach88/meshflow/internal/framework"
	"github.com/roach88/meshflow/internal/ir"
	"github.com/roach88/meshflow/internal/kernel"
)

// UniteGrids combines Base and Others into a new grid. The inputs stay
// registered.
type UniteGrids struct {
	journaled
	Name   string   `json:"name"`
	Base   string   `json:"base"`
	Others []string `json:"others"`
}

func (*UniteGrids) Tag() Tag             { return TagUniteGrids }
func (op *UniteGrids) Params() ir.Object { return paramsOf(op) }

func (op *UniteGrids) sources() []string {
	return append([]string{op.Base}, op.Others...)
}

func (op *UniteGrids) Validate(fw *framework.Framework) error {
	return validate(op, func() error {
		seen := map[string]bool{}
		for _, name := range op.sources() {
			if seen[name] {
				return errs.InvalidArgument("grid %q listed twice", name)
			}
			seen[name] = true
			if err := mustExist(fw, kernel.KindGrid2, name); err != nil {
				return err
			}
		}
		return mustBeFree(fw, kernel.KindGrid2, op.Name)
	})
}

func (op *UniteGrids) Apply(ctx context.Context, env Env) (*framework.UndoData, error) {
	if err := op.Validate(env.Framework); err != nil {
		return nil, err
	}
	handles := make([]kernel.Handle, 0, len(op.Others)+1)
	for _, name := range op.sources() {
		h, err := env.Framework.Lookup(kernel.KindGrid2, name)
		if err != nil {
			return nil, err
		}
		handles = append(handles, h)
	}
	cp := env.checkpoint(ctx, op.Tag())
	return create(ctx, env, op.Tag(), kernel.KindGrid2, op.Name, func(k kernel.Kernel) (kernel.Handle, error) {
		return k.Unite(handles, cp)
	})
}

// ExcludeContours cuts the area inside (What "inner") or outside ("outer")
// a closed contour out of a grid, registering the remainder as Name.
type ExcludeContours struct {
	journaled
	Name    string `json:"name"`
	Grid    string `json:"grid"`
	Contour string `json:"contour"`
	What    string `json:"what"`
}

func (*ExcludeContours) Tag() Tag             { return TagExcludeContours }
func (op *ExcludeContours) Params() ir.Object { return paramsOf(op) }

func (op *ExcludeContours) Validate(fw *framework.Framework) error {
	return validate(op, func() error {
		if err := mustExist(fw, kernel.KindGrid2, op.Grid); err != nil {
			return err
		}
		if err := mustExist(fw, kernel.KindContour2, op.Contour); err != nil {
			return err
		}
		return mustBeFree(fw, kernel.KindGrid2, op.Name)
	})
}

func (op *ExcludeContours) Apply(ctx context.Context, env Env) (*framework.UndoData, error) {
	if err := op.Validate(env.Framework); err != nil {
		return nil, err
	}
	g, err := env.Framework.Lookup(kernel.KindGrid2, op.Grid)
	if err != nil {
		return nil, err
	}
	c, err := env.Framework.Lookup(kernel.KindContour2, op.Contour)
	if err != nil {
		return nil, err
	}
	cp := env.checkpoint(ctx, op.Tag())
	return create(ctx, env, op.Tag(), kernel.KindGrid2, op.Name, func(k kernel.Kernel) (kernel.Handle, error) {
		return k.Exclude(g, c, op.What == "inner", cp)
	})
}
