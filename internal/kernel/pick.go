package kernel

import (
	"fmt"
	"math"
)

// Snap selects what ClosestPoint snaps to.
type Snap int

const (
	// SnapVertex returns the nearest vertex.
	SnapVertex Snap = iota
	// SnapEdge returns the nearest point lying on an edge.
	SnapEdge
)

func (s Snap) String() string {
	if s == SnapEdge {
		return "edge"
	}
	return "vertex"
}

// ParseSnap parses "vertex" or "edge".
func ParseSnap(s string) (Snap, error) {
	switch s {
	case "vertex":
		return SnapVertex, nil
	case "edge":
		return SnapEdge, nil
	}
	return 0, fmt.Errorf("unknown snap %q: want vertex or edge", s)
}

// segments returns the vertices and edges a point query runs over: every
// edge of a contour2, or the boundary edges of a grid2.
func (r *Reference) segments(h Handle) ([]Point, [][2]int, error) {
	o, err := r.get(h)
	if err != nil {
		return nil, nil, err
	}
	switch v := o.(type) {
	case *contour2:
		return v.verts, v.edges, nil
	case *grid2:
		var edges [][2]int
		for _, e := range v.edges {
			if e.right < 0 {
				edges = append(edges, [2]int{e.a, e.b})
			}
		}
		return v.verts, edges, nil
	}
	return nil, nil, fmt.Errorf("%w: %s has no planar outline", ErrWrongKind, o.kind())
}

// projectOnSegment is the point of [a, b] nearest to p.
func projectOnSegment(p, a, b Point) Point {
	ab := b.sub(a)
	l2 := dot(ab, ab)
	if l2 == 0 {
		return a
	}
	t := math.Max(0, math.Min(1, dot(p.sub(a), ab)/l2))
	return Point{a.X + t*ab.X, a.Y + t*ab.Y}
}

// ClosestPoint returns the point of a contour2, or of a grid2's boundary,
// nearest to p. Ties go to the lowest vertex or edge index.
func (r *Reference) ClosestPoint(h Handle, p Point, snap Snap) (Point, error) {
	verts, edges, err := r.segments(h)
	if err != nil {
		return Point{}, err
	}
	best, bestDist := Point{}, math.Inf(1)
	consider := func(q Point) {
		if d := dist(p, q); d < bestDist {
			best, bestDist = q, d
		}
	}
	switch snap {
	case SnapEdge:
		for _, e := range edges {
			consider(projectOnSegment(p, verts[e[0]], verts[e[1]]))
		}
	default:
		// only vertices on the outline count for grids
		for _, e := range edges {
			consider(verts[e[0]])
			consider(verts[e[1]])
		}
	}
	if math.IsInf(bestDist, 1) {
		return Point{}, ErrEmptyResult
	}
	return best, nil
}

// PickContour returns the index in hs of the contour2 whose edges pass
// closest to p. The first of equally close contours wins.
func (r *Reference) PickContour(p Point, hs []Handle) (int, error) {
	pick, pickDist := -1, math.Inf(1)
	for i, h := range hs {
		if _, err := r.contour2(h); err != nil {
			return -1, err
		}
		q, err := r.ClosestPoint(h, p, SnapEdge)
		if err != nil {
			return -1, err
		}
		if d := dist(p, q); d < pickDist {
			pick, pickDist = i, d
		}
	}
	if pick < 0 {
		return -1, fmt.Errorf("%w: no contours to pick from", ErrEmptyResult)
	}
	return pick, nil
}
