package kernel

import (
	"fmt"
	"math"
	"slices"
)

type edge struct {
	a, b        int // a->b runs counter-clockwise around left
	left, right int // cell indices, right is -1 on the boundary
}

type grid2 struct {
	verts []Point
	cells [][]int
	edges []edge
	bt    []int // per edge, zero for interior edges
}

func (*grid2) kind() Kind { return KindGrid2 }

func edgeKey(a, b int) [2]int {
	if a > b {
		a, b = b, a
	}
	return [2]int{a, b}
}

// newGrid2 orients every cell counter-clockwise, derives edges in cell
// order and assigns boundary types through btFor (which may be nil).
func newGrid2(verts []Point, cells [][]int, btFor func(a, b int) int) (*grid2, error) {
	if len(cells) == 0 {
		return nil, ErrEmptyResult
	}
	g := &grid2{verts: verts, cells: make([][]int, len(cells))}
	for ci, c := range cells {
		if len(c) < 3 {
			return nil, fmt.Errorf("%w: cell %d has %d vertices", ErrDegenerate, ci, len(c))
		}
		poly := g.polyOf(c)
		area := signedArea(poly)
		if math.Abs(area) <= tol*tol {
			return nil, fmt.Errorf("%w: cell %d has zero area", ErrDegenerate, ci)
		}
		c = slices.Clone(c)
		if area < 0 {
			slices.Reverse(c)
		}
		g.cells[ci] = c
	}

	edges, err := buildEdges(g.cells)
	if err != nil {
		return nil, err
	}
	g.edges = edges
	g.bt = make([]int, len(edges))
	if btFor != nil {
		for i, e := range edges {
			if e.right < 0 {
				g.bt[i] = btFor(e.a, e.b)
			}
		}
	}
	return g, nil
}

func buildEdges(cells [][]int) ([]edge, error) {
	index := map[[2]int]int{}
	var edges []edge
	for ci, c := range cells {
		for k := range c {
			a, b := c[k], c[(k+1)%len(c)]
			key := edgeKey(a, b)
			if ei, ok := index[key]; ok {
				if edges[ei].right >= 0 || edges[ei].a == a {
					return nil, fmt.Errorf("%w: edge (%d,%d) is not manifold", ErrDegenerate, a, b)
				}
				edges[ei].right = ci
				continue
			}
			index[key] = len(edges)
			edges = append(edges, edge{a: a, b: b, left: ci, right: -1})
		}
	}
	return edges, nil
}

func (g *grid2) polyOf(cell []int) []Point {
	poly := make([]Point, len(cell))
	for i, v := range cell {
		poly[i] = g.verts[v]
	}
	return poly
}

// boundaryTypes maps boundary segments (by endpoint position) to their type.
func (g *grid2) boundaryTypes() map[[4]int64]int {
	m := map[[4]int64]int{}
	for i, e := range g.edges {
		if e.right < 0 {
			m[segKey(g.verts[e.a], g.verts[e.b])] = g.bt[i]
		}
	}
	return m
}

func segKey(a, b Point) [4]int64 {
	ka, kb := bucketOf(a), bucketOf(b)
	if ka[0] > kb[0] || (ka[0] == kb[0] && ka[1] > kb[1]) {
		ka, kb = kb, ka
	}
	return [4]int64{ka[0], ka[1], kb[0], kb[1]}
}

func rectGrid(p0, p1 Point, nx, ny int) (*grid2, error) {
	if nx < 1 || ny < 1 || p1.X-p0.X <= tol || p1.Y-p0.Y <= tol {
		return nil, fmt.Errorf("%w: rectangle [%v, %v] with %dx%d cells", ErrDegenerate, p0, p1, nx, ny)
	}
	verts := make([]Point, 0, (nx+1)*(ny+1))
	for j := 0; j <= ny; j++ {
		y := p0.Y + (p1.Y-p0.Y)*float64(j)/float64(ny)
		for i := 0; i <= nx; i++ {
			x := p0.X + (p1.X-p0.X)*float64(i)/float64(nx)
			verts = append(verts, Point{x, y})
		}
	}
	cells := make([][]int, 0, nx*ny)
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			v := j*(nx+1) + i
			cells = append(cells, []int{v, v + 1, v + nx + 2, v + nx + 1})
		}
	}
	return newGrid2(verts, cells, nil)
}

func ringGrid(center Point, rinner, router float64, narc, nrad int) (*grid2, error) {
	if rinner <= tol || router-rinner <= tol || narc < 3 || nrad < 1 {
		return nil, fmt.Errorf("%w: ring r=[%g, %g] with %dx%d cells", ErrDegenerate, rinner, router, narc, nrad)
	}
	verts := make([]Point, 0, narc*(nrad+1))
	for j := 0; j <= nrad; j++ {
		r := rinner + (router-rinner)*float64(j)/float64(nrad)
		for i := 0; i < narc; i++ {
			sin, cos := math.Sincos(2 * math.Pi * float64(i) / float64(narc))
			verts = append(verts, Point{center.X + r*cos, center.Y + r*sin})
		}
	}
	cells := make([][]int, 0, narc*nrad)
	for j := 0; j < nrad; j++ {
		for i := 0; i < narc; i++ {
			a := j*narc + i
			b := j*narc + (i+1)%narc
			cells = append(cells, []int{a, b, b + narc, a + narc})
		}
	}
	return newGrid2(verts, cells, nil)
}

func (g *grid2) withBoundaryType(bt int) *grid2 {
	out := *g
	out.bt = make([]int, len(g.bt))
	for i, e := range g.edges {
		if e.right < 0 {
			out.bt[i] = bt
		}
	}
	return &out
}

func (g *grid2) mapVerts(f func(Point) Point) *grid2 {
	out := *g
	out.verts = make([]Point, len(g.verts))
	for i, p := range g.verts {
		out.verts[i] = f(p)
	}
	return &out
}

// unite merges grids that share at most boundary vertices and edges.
func unite(grids []*grid2, cp Checkpoint) (*grid2, error) {
	vi := newVertexIndex()
	var cells [][]int
	var polys [][]Point
	bts := map[[4]int64]int{}

	for gi, g := range grids {
		if err := cp.at(float64(gi) / float64(len(grids))); err != nil {
			return nil, err
		}
		var added [][]Point
		for _, c := range g.cells {
			poly := g.polyOf(c)
			ctr := centroid(poly)
			for _, other := range polys {
				if insidePolygon(ctr, other) || insidePolygon(centroid(other), poly) {
					return nil, fmt.Errorf("%w: grid %d intersects an earlier grid", ErrOverlap, gi)
				}
			}
			idx := make([]int, len(c))
			for k, v := range c {
				idx[k] = vi.add(g.verts[v])
			}
			cells = append(cells, idx)
			added = append(added, poly)
		}
		polys = append(polys, added...)
		for k, v := range g.boundaryTypes() {
			if _, ok := bts[k]; !ok {
				bts[k] = v
			}
		}
	}

	out, err := newGrid2(vi.pts, cells, func(a, b int) int {
		return bts[segKey(vi.pts[a], vi.pts[b])]
	})
	if err != nil {
		return nil, err
	}
	return out, cp.at(1)
}

// exclude drops the cells whose centroid lies inside (inner) or outside
// (outer) the closed contour. New boundary edges take the type of the
// nearest contour segment.
func exclude(g *grid2, c *contour2, inner bool, cp Checkpoint) (*grid2, error) {
	if !c.closed() {
		return nil, ErrNotClosed
	}
	var kept [][]int
	for ci, cell := range g.cells {
		if ci%64 == 0 {
			if err := cp.at(float64(ci) / float64(len(g.cells))); err != nil {
				return nil, err
			}
		}
		in := c.contains(centroid(g.polyOf(cell)))
		if in != inner {
			kept = append(kept, cell)
		}
	}
	if len(kept) == 0 {
		return nil, ErrEmptyResult
	}

	remap := map[int]int{}
	var verts []Point
	var back []int
	cells := make([][]int, len(kept))
	for i, cell := range kept {
		cells[i] = make([]int, len(cell))
		for k, v := range cell {
			nv, ok := remap[v]
			if !ok {
				nv = len(verts)
				remap[v] = nv
				verts = append(verts, g.verts[v])
				back = append(back, v)
			}
			cells[i][k] = nv
		}
	}

	oldBt := map[[2]int]int{}
	for i, e := range g.edges {
		if e.right < 0 {
			oldBt[edgeKey(e.a, e.b)] = g.bt[i]
		}
	}
	out, err := newGrid2(verts, cells, func(a, b int) int {
		if bt, ok := oldBt[edgeKey(back[a], back[b])]; ok {
			return bt
		}
		return c.nearestType(Point{(verts[a].X + verts[b].X) / 2, (verts[a].Y + verts[b].Y) / 2})
	})
	if err != nil {
		return nil, err
	}
	return out, cp.at(1)
}

func (g *grid2) tables() Tables {
	vert := make([]float64, 0, 2*len(g.verts))
	for _, p := range g.verts {
		vert = append(vert, p.X, p.Y)
	}
	edgeVert := make([]int64, 0, 2*len(g.edges))
	edgeCell := make([]int64, 0, 2*len(g.edges))
	bt := make([]int64, len(g.edges))
	bnd := []int64{}
	for i, e := range g.edges {
		edgeVert = append(edgeVert, int64(e.a), int64(e.b))
		edgeCell = append(edgeCell, int64(e.left), int64(e.right))
		bt[i] = int64(g.bt[i])
		if e.right < 0 {
			bnd = append(bnd, int64(i))
		}
	}
	dims, flat := flatten(g.cells)
	return Tables{
		Kind:  KindGrid2,
		Float: map[string][]float64{"vert": vert},
		Int: map[string][]int64{
			"edge_vert": edgeVert,
			"edge_cell": edgeCell,
			"cell_dim":  dims,
			"cell_vert": flat,
			"bt":        bt,
			"bnd":       bnd,
		},
	}
}

// loadGrid2 rebuilds a grid and checks that the derived tables match.
func loadGrid2(t Tables) (*grid2, error) {
	verts, err := points2(t.Float["vert"])
	if err != nil {
		return nil, err
	}
	cells, err := ragged(t.Int["cell_dim"], t.Int["cell_vert"])
	if err != nil {
		return nil, err
	}
	for _, c := range cells {
		for _, v := range c {
			if v < 0 || v >= len(verts) {
				return nil, fmt.Errorf("%w: vertex index %d out of range", ErrInvalidTables, v)
			}
		}
	}
	bt := t.Int["bt"]
	g, err := newGrid2(verts, cells, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTables, err)
	}
	if len(bt) != len(g.edges) {
		return nil, fmt.Errorf("%w: bt has %d rows for %d edges", ErrInvalidTables, len(bt), len(g.edges))
	}
	for i := range g.bt {
		g.bt[i] = int(bt[i])
	}

	got := g.tables()
	for _, name := range []string{"edge_vert", "edge_cell", "cell_vert", "bnd"} {
		if !slices.Equal(got.Int[name], t.Int[name]) {
			return nil, fmt.Errorf("%w: table %q is inconsistent with cell_vert", ErrInvalidTables, name)
		}
	}
	return g, nil
}

func points2(flat []float64) ([]Point, error) {
	if len(flat)%2 != 0 {
		return nil, fmt.Errorf("%w: vert has odd length %d", ErrInvalidTables, len(flat))
	}
	pts := make([]Point, len(flat)/2)
	for i := range pts {
		pts[i] = Point{flat[2*i], flat[2*i+1]}
	}
	return pts, nil
}
