// Package kernel is the boundary between the command flow and geometry
// computation.
//
// The flow and the object registry only ever hold opaque Handles. Anything
// that needs to look inside an object goes through Tables, the uniform dump
// that exporters and snapshots consume.
package kernel

import (
	"errors"
	"fmt"
)

// Kind identifies the family of a geometric object.
type Kind string

const (
	KindGrid2    Kind = "grid2"
	KindContour2 Kind = "contour2"
	KindGrid3    Kind = "grid3"
)

// Kinds lists every kind in registry order.
var Kinds = []Kind{KindGrid2, KindContour2, KindGrid3}

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindGrid2, KindContour2, KindGrid3:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown object kind %q", s)
}

// Handle is an arena id issued by a Kernel. Zero is never issued.
type Handle uint64

// Point is a 2D coordinate.
type Point struct {
	X, Y float64
}

// Point3 is a 3D coordinate.
type Point3 struct {
	X, Y, Z float64
}

var (
	ErrUnknownHandle = errors.New("unknown handle")
	ErrWrongKind     = errors.New("wrong object kind")
	ErrDegenerate    = errors.New("degenerate geometry")
	ErrOverlap       = errors.New("overlapping cells")
	ErrEmptyResult   = errors.New("operation produced an empty object")
	ErrNotClosed     = errors.New("contour is not closed")
	ErrInvalidTables = errors.New("invalid object tables")
	ErrCancelled     = errors.New("cancelled")
)

// Checkpoint is called by long-running computations with the completed
// fraction. A non-nil return aborts the computation; the kernel then
// returns an error wrapping ErrCancelled and no new handle.
type Checkpoint func(fraction float64) error

func (cp Checkpoint) at(fraction float64) error {
	if cp == nil {
		return nil
	}
	if err := cp(fraction); err != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	return nil
}

// ExtrudeSpec configures Kernel.Extrude.
type ExtrudeSpec struct {
	Z      []float64 // strictly increasing layer heights, at least two
	Bottom int       // boundary type of the bottom cap
	Top    int       // boundary type of the top cap
	Side   *int      // nil keeps each 2D boundary edge's type
}

// RevolveSpec configures Kernel.Revolve.
type RevolveSpec struct {
	P0, P1  Point     // axis in the grid plane
	Phi     []float64 // strictly increasing angles in degrees, span at most 360
	BtStart int       // boundary type of the cap at Phi[0] (partial revolutions)
	BtEnd   int       // boundary type of the cap at Phi[len-1]
}

// Kernel creates, transforms and dumps geometric objects. Objects are
// immutable: every transformation returns a new handle and leaves its
// inputs untouched, so a replaced handle is still valid undo data.
type Kernel interface {
	RectGrid(p0, p1 Point, nx, ny int) (Handle, error)
	RingGrid(center Point, rinner, router float64, narc, nrad int) (Handle, error)
	RectContour(p0, p1 Point, bt [4]int) (Handle, error)
	CustomContour(pts []Point, bt []int, closed bool) (Handle, error)

	SetBoundaryType(h Handle, bt int) (Handle, error)
	Copy(h Handle) (Handle, error)
	Move(h Handle, dx, dy float64) (Handle, error)
	Rotate(h Handle, center Point, degrees float64) (Handle, error)

	Unite(hs []Handle, cp Checkpoint) (Handle, error)
	Exclude(grid, contour Handle, inner bool, cp Checkpoint) (Handle, error)
	Extrude(grid Handle, spec ExtrudeSpec, cp Checkpoint) (Handle, error)
	Revolve(grid Handle, spec RevolveSpec, cp Checkpoint) (Handle, error)

	Kind(h Handle) (Kind, error)
	Tables(h Handle) (Tables, error)
	Load(t Tables) (Handle, error)
	Release(h Handle) error

	GridInfo(h Handle) (GridInfo, error)
	ContourInfo(h Handle) (ContourInfo, error)
	Skewness(h Handle, threshold float64) (SkewReport, error)
	DomainArea(h Handle) (float64, error)
	ClosestPoint(h Handle, p Point, snap Snap) (Point, error)
	PickContour(p Point, hs []Handle) (int, error)
}
