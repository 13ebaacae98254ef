package kernel

import (
	"fmt"
	"math"
)

type contour2 struct {
	verts []Point
	edges [][2]int
	bt    []int
}

func (*contour2) kind() Kind { return KindContour2 }

// rectContour runs counter-clockwise from p0; bt is bottom, right, top, left.
func rectContour(p0, p1 Point, bt [4]int) (*contour2, error) {
	if p1.X-p0.X <= tol || p1.Y-p0.Y <= tol {
		return nil, fmt.Errorf("%w: rectangle [%v, %v]", ErrDegenerate, p0, p1)
	}
	return &contour2{
		verts: []Point{p0, {p1.X, p0.Y}, p1, {p0.X, p1.Y}},
		edges: [][2]int{{0, 1}, {1, 2}, {2, 3}, {3, 0}},
		bt:    bt[:],
	}, nil
}

func customContour(pts []Point, bt []int, closed bool) (*contour2, error) {
	n := len(pts)
	nedges := n - 1
	if closed {
		nedges = n
	}
	if n < 2 || (closed && n < 3) {
		return nil, fmt.Errorf("%w: %d points", ErrDegenerate, n)
	}
	for i := 0; i < nedges; i++ {
		if dist(pts[i], pts[(i+1)%n]) <= tol {
			return nil, fmt.Errorf("%w: zero-length segment at point %d", ErrDegenerate, i)
		}
	}
	if closed && math.Abs(signedArea(pts)) <= tol*tol {
		return nil, fmt.Errorf("%w: contour encloses no area", ErrDegenerate)
	}

	c := &contour2{verts: append([]Point(nil), pts...)}
	for i := 0; i < nedges; i++ {
		c.edges = append(c.edges, [2]int{i, (i + 1) % n})
	}
	c.bt = make([]int, nedges)
	switch len(bt) {
	case 0:
	case 1:
		for i := range c.bt {
			c.bt[i] = bt[0]
		}
	case nedges:
		copy(c.bt, bt)
	default:
		return nil, fmt.Errorf("%w: %d boundary types for %d segments", ErrDegenerate, len(bt), nedges)
	}
	return c, nil
}

// closed reports whether every vertex joins exactly two segments.
func (c *contour2) closed() bool {
	deg := make([]int, len(c.verts))
	for _, e := range c.edges {
		deg[e[0]]++
		deg[e[1]]++
	}
	for _, d := range deg {
		if d != 2 {
			return false
		}
	}
	return len(c.edges) > 0
}

// contains is an even-odd test over all segments, so nested loops carve
// holes.
func (c *contour2) contains(p Point) bool {
	in := false
	for _, e := range c.edges {
		a, b := c.verts[e[0]], c.verts[e[1]]
		if (a.Y > p.Y) != (b.Y > p.Y) {
			x := (b.X-a.X)*(p.Y-a.Y)/(b.Y-a.Y) + a.X
			if p.X < x {
				in = !in
			}
		}
	}
	return in
}

func (c *contour2) nearestType(p Point) int {
	best, bt := math.Inf(1), 0
	for i, e := range c.edges {
		if d := segmentDist(p, c.verts[e[0]], c.verts[e[1]]); d < best {
			best, bt = d, c.bt[i]
		}
	}
	return bt
}

// components counts connected pieces.
func (c *contour2) components() int {
	parent := make([]int, len(c.verts))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	n := len(c.verts)
	for _, e := range c.edges {
		if a, b := find(e[0]), find(e[1]); a != b {
			parent[a] = b
			n--
		}
	}
	return n
}

func (c *contour2) length() float64 {
	var l float64
	for _, e := range c.edges {
		l += dist(c.verts[e[0]], c.verts[e[1]])
	}
	return l
}

// area is the absolute area enclosed by all loops, counting holes
// negatively when they run opposite to the outer loop.
func (c *contour2) area() float64 {
	var s float64
	for _, e := range c.edges {
		a, b := c.verts[e[0]], c.verts[e[1]]
		s += a.X*b.Y - b.X*a.Y
	}
	return math.Abs(s / 2)
}

func (c *contour2) withBoundaryType(bt int) *contour2 {
	out := *c
	out.bt = make([]int, len(c.bt))
	for i := range out.bt {
		out.bt[i] = bt
	}
	return &out
}

func (c *contour2) mapVerts(f func(Point) Point) *contour2 {
	out := *c
	out.verts = make([]Point, len(c.verts))
	for i, p := range c.verts {
		out.verts[i] = f(p)
	}
	return &out
}

func (c *contour2) tables() Tables {
	vert := make([]float64, 0, 2*len(c.verts))
	for _, p := range c.verts {
		vert = append(vert, p.X, p.Y)
	}
	ev := make([]int64, 0, 2*len(c.edges))
	bt := make([]int64, len(c.edges))
	for i, e := range c.edges {
		ev = append(ev, int64(e[0]), int64(e[1]))
		bt[i] = int64(c.bt[i])
	}
	return Tables{
		Kind:  KindContour2,
		Float: map[string][]float64{"vert": vert},
		Int:   map[string][]int64{"edge_vert": ev, "bt": bt},
	}
}

func loadContour2(t Tables) (*contour2, error) {
	verts, err := points2(t.Float["vert"])
	if err != nil {
		return nil, err
	}
	ev, bt := t.Int["edge_vert"], t.Int["bt"]
	if len(ev)%2 != 0 || len(ev)/2 != len(bt) || len(bt) == 0 {
		return nil, fmt.Errorf("%w: %d edge_vert values for %d boundary types", ErrInvalidTables, len(ev), len(bt))
	}
	c := &contour2{verts: verts, edges: make([][2]int, len(bt)), bt: make([]int, len(bt))}
	for i := range c.edges {
		a, b := int(ev[2*i]), int(ev[2*i+1])
		if a < 0 || b < 0 || a >= len(verts) || b >= len(verts) || a == b {
			return nil, fmt.Errorf("%w: edge %d (%d,%d)", ErrInvalidTables, i, a, b)
		}
		c.edges[i] = [2]int{a, b}
		c.bt[i] = int(bt[i])
	}
	return c, nil
}
