package kernel

import (
	"fmt"
	"math"
	"slices"
)

type grid3 struct {
	verts []Point3
	cells [][]int // bottom ring then top ring
	faces [][]int // boundary faces
	fbt   []int
}

func (*grid3) kind() Kind { return KindGrid3 }

func checkIncreasing(vals []float64, what string) error {
	if len(vals) < 2 {
		return fmt.Errorf("%w: %s needs at least two values", ErrDegenerate, what)
	}
	for i := 1; i < len(vals); i++ {
		if vals[i]-vals[i-1] <= tol {
			return fmt.Errorf("%w: %s is not strictly increasing at %d", ErrDegenerate, what, i)
		}
	}
	return nil
}

// sweep builds the layered cells and side faces shared by extrusion and
// revolution. ring maps a layer to its vertex ring; place maps a 2D vertex
// and a layer to 3D.
func sweep(g *grid2, layers int, ring func(l int) int, place func(p Point, l int) Point3, sideBt func(edge int) int, cp Checkpoint) (*grid3, error) {
	nv := len(g.verts)
	rings := 0
	for l := 0; l < layers; l++ {
		rings = max(rings, ring(l)+1)
	}
	out := &grid3{verts: make([]Point3, 0, nv*rings)}
	for r := 0; r < rings; r++ {
		for _, p := range g.verts {
			out.verts = append(out.verts, place(p, r))
		}
	}

	for l := 0; l+1 < layers; l++ {
		if err := cp.at(float64(l) / float64(layers)); err != nil {
			return nil, err
		}
		lo, hi := ring(l)*nv, ring(l+1)*nv
		for _, c := range g.cells {
			cell := make([]int, 0, 2*len(c))
			for _, v := range c {
				cell = append(cell, lo+v)
			}
			for _, v := range c {
				cell = append(cell, hi+v)
			}
			out.cells = append(out.cells, cell)
		}
	}
	for ei, e := range g.edges {
		if e.right >= 0 {
			continue
		}
		for l := 0; l+1 < layers; l++ {
			lo, hi := ring(l)*nv, ring(l+1)*nv
			out.faces = append(out.faces, []int{lo + e.a, lo + e.b, hi + e.b, hi + e.a})
			out.fbt = append(out.fbt, sideBt(ei))
		}
	}
	return out, nil
}

func (out *grid3) addCaps(g *grid2, ringOffset int, reverse bool, bt int) {
	for _, c := range g.cells {
		face := make([]int, len(c))
		for i, v := range c {
			face[i] = ringOffset + v
		}
		if reverse {
			slices.Reverse(face)
		}
		out.faces = append(out.faces, face)
		out.fbt = append(out.fbt, bt)
	}
}

func extrude(g *grid2, spec ExtrudeSpec, cp Checkpoint) (*grid3, error) {
	if err := checkIncreasing(spec.Z, "z"); err != nil {
		return nil, err
	}
	sideBt := func(ei int) int { return g.bt[ei] }
	if spec.Side != nil {
		side := *spec.Side
		sideBt = func(int) int { return side }
	}
	out, err := sweep(g, len(spec.Z),
		func(l int) int { return l },
		func(p Point, l int) Point3 { return Point3{p.X, p.Y, spec.Z[l]} },
		sideBt, cp)
	if err != nil {
		return nil, err
	}
	nv := len(g.verts)
	out.addCaps(g, 0, true, spec.Bottom)
	out.addCaps(g, (len(spec.Z)-1)*nv, false, spec.Top)
	return out, cp.at(1)
}

func revolve(g *grid2, spec RevolveSpec, cp Checkpoint) (*grid3, error) {
	if err := checkIncreasing(spec.Phi, "phi"); err != nil {
		return nil, err
	}
	span := spec.Phi[len(spec.Phi)-1] - spec.Phi[0]
	if span > 360+tol {
		return nil, fmt.Errorf("%w: revolution spans %g degrees", ErrDegenerate, span)
	}
	full := math.Abs(span-360) <= tol

	axis := spec.P1.sub(spec.P0)
	l := math.Hypot(axis.X, axis.Y)
	if l <= tol {
		return nil, fmt.Errorf("%w: zero-length axis", ErrDegenerate)
	}
	u := Point{axis.X / l, axis.Y / l}
	n := Point{-u.Y, u.X}

	// every vertex must sit strictly on one side of the axis
	side := 0.0
	for i, p := range g.verts {
		d := cross(u, p.sub(spec.P0))
		if math.Abs(d) <= tol {
			return nil, fmt.Errorf("%w: vertex %d lies on the revolution axis", ErrDegenerate, i)
		}
		if side != 0 && (d > 0) != (side > 0) {
			return nil, fmt.Errorf("%w: grid crosses the revolution axis", ErrDegenerate)
		}
		side = d
	}

	layers := len(spec.Phi)
	ring := func(l int) int { return l }
	if full {
		ring = func(l int) int { return l % (layers - 1) }
	}
	place := func(p Point, r int) Point3 {
		d := p.sub(spec.P0)
		t, h := dot(d, u), cross(u, d)
		sin, cos := sinCosDeg(spec.Phi[r])
		return Point3{
			X: spec.P0.X + t*u.X + h*cos*n.X,
			Y: spec.P0.Y + t*u.Y + h*cos*n.Y,
			Z: h * sin,
		}
	}
	out, err := sweep(g, layers, ring, place, func(ei int) int { return g.bt[ei] }, cp)
	if err != nil {
		return nil, err
	}
	if !full {
		out.addCaps(g, 0, true, spec.BtStart)
		out.addCaps(g, (layers-1)*len(g.verts), false, spec.BtEnd)
	}
	return out, cp.at(1)
}

func (g *grid3) withBoundaryType(bt int) *grid3 {
	out := *g
	out.fbt = make([]int, len(g.fbt))
	for i := range out.fbt {
		out.fbt[i] = bt
	}
	return &out
}

// mapVerts applies a planar transform and keeps z.
func (g *grid3) mapVerts(f func(Point) Point) *grid3 {
	out := *g
	out.verts = make([]Point3, len(g.verts))
	for i, p := range g.verts {
		q := f(Point{p.X, p.Y})
		out.verts[i] = Point3{q.X, q.Y, p.Z}
	}
	return &out
}

func (g *grid3) tables() Tables {
	vert := make([]float64, 0, 3*len(g.verts))
	for _, p := range g.verts {
		vert = append(vert, p.X, p.Y, p.Z)
	}
	cdim, cflat := flatten(g.cells)
	fdim, fflat := flatten(g.faces)
	fbt := make([]int64, len(g.fbt))
	for i, b := range g.fbt {
		fbt[i] = int64(b)
	}
	return Tables{
		Kind:  KindGrid3,
		Float: map[string][]float64{"vert": vert},
		Int: map[string][]int64{
			"cell_dim":   cdim,
			"cell_vert":  cflat,
			"bface_dim":  fdim,
			"bface_vert": fflat,
			"bface_bt":   fbt,
		},
	}
}

func loadGrid3(t Tables) (*grid3, error) {
	flat := t.Float["vert"]
	if len(flat)%3 != 0 {
		return nil, fmt.Errorf("%w: vert length %d is not a multiple of 3", ErrInvalidTables, len(flat))
	}
	g := &grid3{verts: make([]Point3, len(flat)/3)}
	for i := range g.verts {
		g.verts[i] = Point3{flat[3*i], flat[3*i+1], flat[3*i+2]}
	}
	var err error
	if g.cells, err = ragged(t.Int["cell_dim"], t.Int["cell_vert"]); err != nil {
		return nil, err
	}
	if g.faces, err = ragged(t.Int["bface_dim"], t.Int["bface_vert"]); err != nil {
		return nil, err
	}
	if len(g.cells) == 0 {
		return nil, fmt.Errorf("%w: no cells", ErrInvalidTables)
	}
	if len(t.Int["bface_bt"]) != len(g.faces) {
		return nil, fmt.Errorf("%w: %d boundary types for %d faces", ErrInvalidTables, len(t.Int["bface_bt"]), len(g.faces))
	}
	for _, rows := range [][][]int{g.cells, g.faces} {
		for _, r := range rows {
			for _, v := range r {
				if v < 0 || v >= len(g.verts) {
					return nil, fmt.Errorf("%w: vertex index %d out of range", ErrInvalidTables, v)
				}
			}
		}
	}
	g.fbt = make([]int, len(g.faces))
	for i, b := range t.Int["bface_bt"] {
		g.fbt[i] = int(b)
	}
	return g, nil
}
