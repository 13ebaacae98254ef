package ops

import (
	"context"

	"github.com/roach88/meshflow/internal/errs"
	"github.com/roach88/meshflow/internal/framework"
	"github.com/roach88/meshflow/internal/ir"
	"github.com/roach88/meshflow/internal/kernel"
)

func checkIncreasing(name string, vals []float64) error {
	for i := 1; i < len(vals); i++ {
		if vals[i] <= vals[i-1] {
			return errs.InvalidArgument("%s must be strictly increasing, %g follows %g", name, vals[i], vals[i-1])
		}
	}
	return nil
}

// ExtrudeGrid sweeps a 2D grid along z into a 3D grid. Side faces keep the
// 2D boundary types unless Side is set.
type ExtrudeGrid struct {
	journaled
	Name   string    `json:"name"`
	Grid   string    `json:"grid"`
	Z      []float64 `json:"z"`
	Bottom int       `json:"bottom,omitempty"`
	Top    int       `json:"top,omitempty"`
	Side   *int      `json:"side,omitempty"`
}

func (*ExtrudeGrid) Tag() Tag             { return TagExtrudeGrid }
func (op *ExtrudeGrid) Params() ir.Object { return paramsOf(op) }

func (op *ExtrudeGrid) Validate(fw *framework.Framework) error {
	return validate(op, func() error {
		if err := checkIncreasing("z", op.Z); err != nil {
			return err
		}
		if err := mustExist(fw, kernel.KindGrid2, op.Grid); err != nil {
			return err
		}
		return mustBeFree(fw, kernel.KindGrid3, op.Name)
	})
}

func (op *ExtrudeGrid) Apply(ctx context.Context, env Env) (*framework.UndoData, error) {
	if err := op.Validate(env.Framework); err != nil {
		return nil, err
	}
	g, err := env.Framework.Lookup(kernel.KindGrid2, op.Grid)
	if err != nil {
		return nil, err
	}
	spec := kernel.ExtrudeSpec{Z: op.Z, Bottom: op.Bottom, Top: op.Top, Side: op.Side}
	cp := env.checkpoint(ctx, op.Tag())
	return create(ctx, env, op.Tag(), kernel.KindGrid3, op.Name, func(k kernel.Kernel) (kernel.Handle, error) {
		return k.Extrude(g, spec, cp)
	})
}

// RevolveGrid sweeps a 2D grid around the in-plane axis p0-p1 through the
// angles Phi (degrees). A 360 degree span closes the body.
type RevolveGrid struct {
	journaled
	Name    string    `json:"name"`
	Grid    string    `json:"grid"`
	P0      Point     `json:"p0"`
	P1      Point     `json:"p1"`
	Phi     []float64 `json:"phi"`
	BtStart int       `json:"bt_start,omitempty"`
	BtEnd   int       `json:"bt_end,omitempty"`
}

func (*RevolveGrid) Tag() Tag             { return TagRevolveGrid }
func (op *RevolveGrid) Params() ir.Object { return paramsOf(op) }

func (op *RevolveGrid) Validate(fw *framework.Framework) error {
	return validate(op, func() error {
		if op.P0 == op.P1 {
			return errs.InvalidArgument("axis points coincide")
		}
		if err := checkIncreasing("phi", op.Phi); err != nil {
			return err
		}
		if span := op.Phi[len(op.Phi)-1] - op.Phi[0]; span > 360 {
			return errs.InvalidArgument("phi spans %g degrees, at most 360 allowed", span)
		}
		if err := mustExist(fw, kernel.KindGrid2, op.Grid); err != nil {
			return err
		}
		return mustBeFree(fw, kernel.KindGrid3, op.Name)
	})
}

func (op *RevolveGrid) Apply(ctx context.Context, env Env) (*framework.UndoData, error) {
	if err := op.Validate(env.Framework); err != nil {
		return nil, err
	}
	g, err := env.Framework.Lookup(kernel.KindGrid2, op.Grid)
	if err != nil {
		return nil, err
	}
	spec := kernel.RevolveSpec{P0: op.P0.k(), P1: op.P1.k(), Phi: op.Phi, BtStart: op.BtStart, BtEnd: op.BtEnd}
	cp := env.checkpoint(ctx, op.Tag())
	return create(ctx, env, op.Tag(), kernel.KindGrid3, op.Name, func(k kernel.Kernel) (kernel.Handle, error) {
		return k.Revolve(g, spec, cp)
	})
}
