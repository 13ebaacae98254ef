package ops

import (
	"context"

	"github.com/roach88/meshflow/internal/errs"
	"github.com/roach88/meshflow/internal/framework"
	"github.com/roach88/meshflow/internal/ir"
	"github.com/roach88/meshflow/internal/kernel"
)

func checkBox(p0, p1 Point) error {
	if p0[0] >= p1[0] || p0[1] >= p1[1] {
		return errs.InvalidArgument("p0 %v must be below and left of p1 %v", p0, p1)
	}
	return nil
}

// AddUnfRectGrid creates a uniform nx by ny quad grid over [p0, p1].
type AddUnfRectGrid struct {
	journaled
	Name string `json:"name"`
	P0   Point  `json:"p0"`
	P1   Point  `json:"p1"`
	NX   int    `json:"nx"`
	NY   int    `json:"ny"`
}

func (*AddUnfRectGrid) Tag() Tag             { return TagAddUnfRectGrid }
func (op *AddUnfRectGrid) Params() ir.Object { return paramsOf(op) }

func (op *AddUnfRectGrid) Validate(fw *framework.Framework) error {
	return validate(op, func() error {
		if err := checkBox(op.P0, op.P1); err != nil {
			return err
		}
		return mustBeFree(fw, kernel.KindGrid2, op.Name)
	})
}

func (op *AddUnfRectGrid) Apply(ctx context.Context, env Env) (*framework.UndoData, error) {
	if err := op.Validate(env.Framework); err != nil {
		return nil, err
	}
	return create(ctx, env, op.Tag(), kernel.KindGrid2, op.Name, func(k kernel.Kernel) (kernel.Handle, error) {
		return k.RectGrid(op.P0.k(), op.P1.k(), op.NX, op.NY)
	})
}

// AddUnfRingGrid creates a ring of narc by nrad quads between two radii.
type AddUnfRingGrid struct {
	journaled
	Name   string  `json:"name"`
	Center Point   `json:"center"`
	RInner float64 `json:"rinner"`
	ROuter float64 `json:"router"`
	NArc   int     `json:"narc"`
	NRad   int     `json:"nrad"`
}

func (*AddUnfRingGrid) Tag() Tag             { return TagAddUnfRingGrid }
func (op *AddUnfRingGrid) Params() ir.Object { return paramsOf(op) }

func (op *AddUnfRingGrid) Validate(fw *framework.Framework) error {
	return validate(op, func() error {
		if op.ROuter <= op.RInner {
			return errs.InvalidArgument("router %g must exceed rinner %g", op.ROuter, op.RInner)
		}
		return mustBeFree(fw, kernel.KindGrid2, op.Name)
	})
}

func (op *AddUnfRingGrid) Apply(ctx context.Context, env Env) (*framework.UndoData, error) {
	if err := op.Validate(env.Framework); err != nil {
		return nil, err
	}
	return create(ctx, env, op.Tag(), kernel.KindGrid2, op.Name, func(k kernel.Kernel) (kernel.Handle, error) {
		return k.RingGrid(op.Center.k(), op.RInner, op.ROuter, op.NArc, op.NRad)
	})
}

// AddRectContour creates a closed rectangular contour. BT lists boundary
// types for the bottom, right, top and left sides.
type AddRectContour struct {
	journaled
	Name string  `json:"name"`
	P0   Point   `json:"p0"`
	P1   Point   `json:"p1"`
	BT   *[4]int `json:"bt,omitempty"`
}

func (*AddRectContour) Tag() Tag             { return TagAddRectContour }
func (op *AddRectContour) Params() ir.Object { return paramsOf(op) }

func (op *AddRectContour) Validate(fw *framework.Framework) error {
	return validate(op, func() error {
		if err := checkBox(op.P0, op.P1); err != nil {
			return err
		}
		return mustBeFree(fw, kernel.KindContour2, op.Name)
	})
}

func (op *AddRectContour) Apply(ctx context.Context, env Env) (*framework.UndoData, error) {
	if err := op.Validate(env.Framework); err != nil {
		return nil, err
	}
	var bt [4]int
	if op.BT != nil {
		bt = *op.BT
	}
	return create(ctx, env, op.Tag(), kernel.KindContour2, op.Name, func(k kernel.Kernel) (kernel.Handle, error) {
		return k.RectContour(op.P0.k(), op.P1.k(), bt)
	})
}

// AddCustomContour creates a polyline contour through Points, closed
// unless Closed is false. BT is empty, a single type for every segment, or
// one type per segment.
type AddCustomContour struct {
	journaled
	Name   string  `json:"name"`
	Points []Point `json:"points"`
	BT     []int   `json:"bt,omitempty"`
	Closed *bool   `json:"closed,omitempty"`
}

func (*AddCustomContour) Tag() Tag             { return TagAddCustomContour }
func (op *AddCustomContour) Params() ir.Object { return paramsOf(op) }

func (op *AddCustomContour) closed() bool { return op.Closed == nil || *op.Closed }

func (op *AddCustomContour) Validate(fw *framework.Framework) error {
	return validate(op, func() error {
		segments := len(op.Points) - 1
		if op.closed() {
			segments = len(op.Points)
			if len(op.Points) < 3 {
				return errs.InvalidArgument("a closed contour needs at least 3 points, got %d", len(op.Points))
			}
		}
		if n := len(op.BT); n > 1 && n != segments {
			return errs.InvalidArgument("bt has %d entries for %d segments", n, segments)
		}
		return mustBeFree(fw, kernel.KindContour2, op.Name)
	})
}

func (op *AddCustomContour) Apply(ctx context.Context, env Env) (*framework.UndoData, error) {
	if err := op.Validate(env.Framework); err != nil {
		return nil, err
	}
	pts := make([]kernel.Point, len(op.Points))
	for i, p := range op.Points {
		pts[i] = p.k()
	}
	return create(ctx, env, op.Tag(), kernel.KindContour2, op.Name, func(k kernel.Kernel) (kernel.Handle, error) {
		return k.CustomContour(pts, op.BT, op.closed())
	})
}
