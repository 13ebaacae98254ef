package kernel

import "math"

// tol is the absolute coordinate tolerance used for vertex merging and
// on-axis checks.
const tol = 1e-9

func (p Point) sub(q Point) Point { return Point{p.X - q.X, p.Y - q.Y} }

func cross(a, b Point) float64 { return a.X*b.Y - a.Y*b.X }

func dot(a, b Point) float64 { return a.X*b.X + a.Y*b.Y }

func dist(a, b Point) float64 { return math.Hypot(a.X-b.X, a.Y-b.Y) }

// signedArea is positive for counter-clockwise polygons.
func signedArea(poly []Point) float64 {
	var s float64
	for i := range poly {
		j := (i + 1) % len(poly)
		s += poly[i].X*poly[j].Y - poly[j].X*poly[i].Y
	}
	return s / 2
}

func centroid(poly []Point) Point {
	var c Point
	for _, p := range poly {
		c.X += p.X
		c.Y += p.Y
	}
	n := float64(len(poly))
	return Point{c.X / n, c.Y / n}
}

// insidePolygon is a strict even-odd test; points on the boundary may go
// either way.
func insidePolygon(p Point, poly []Point) bool {
	in := false
	for i, j := 0, len(poly)-1; i < len(poly); j, i = i, i+1 {
		a, b := poly[i], poly[j]
		if (a.Y > p.Y) != (b.Y > p.Y) {
			x := (b.X-a.X)*(p.Y-a.Y)/(b.Y-a.Y) + a.X
			if p.X < x {
				in = !in
			}
		}
	}
	return in
}

// segmentDist is the distance from p to segment ab.
func segmentDist(p, a, b Point) float64 {
	ab := b.sub(a)
	l2 := dot(ab, ab)
	if l2 == 0 {
		return dist(p, a)
	}
	t := dot(p.sub(a), ab) / l2
	t = math.Max(0, math.Min(1, t))
	return dist(p, Point{a.X + t*ab.X, a.Y + t*ab.Y})
}

func rotatePoint(p, c Point, sin, cos float64) Point {
	d := p.sub(c)
	return Point{c.X + d.X*cos - d.Y*sin, c.Y + d.X*sin + d.Y*cos}
}

func sinCosDeg(deg float64) (float64, float64) {
	return math.Sincos(deg * math.Pi / 180)
}

// vertexIndex merges points closer than tol.
type vertexIndex struct {
	pts     []Point
	buckets map[[2]int64][]int
}

func newVertexIndex() *vertexIndex {
	return &vertexIndex{buckets: map[[2]int64][]int{}}
}

func bucketOf(p Point) [2]int64 {
	return [2]int64{int64(math.Floor(p.X / (4 * tol))), int64(math.Floor(p.Y / (4 * tol)))}
}

// add returns the index of an existing point within tol of p, or appends p.
func (vi *vertexIndex) add(p Point) int {
	b := bucketOf(p)
	for dx := int64(-1); dx <= 1; dx++ {
		for dy := int64(-1); dy <= 1; dy++ {
			for _, i := range vi.buckets[[2]int64{b[0] + dx, b[1] + dy}] {
				if dist(vi.pts[i], p) <= tol {
					return i
				}
			}
		}
	}
	vi.pts = append(vi.pts, p)
	vi.buckets[b] = append(vi.buckets[b], len(vi.pts)-1)
	return len(vi.pts) - 1
}

// equiangularSkew returns the equiangle skewness of a polygon in [0, 1].
func equiangularSkew(poly []Point) float64 {
	n := len(poly)
	ideal := 180 * float64(n-2) / float64(n)
	minA, maxA := 360.0, 0.0
	for i := range poly {
		prev := poly[(i+n-1)%n].sub(poly[i])
		next := poly[(i+1)%n].sub(poly[i])
		a := math.Abs(math.Atan2(cross(next, prev), dot(next, prev))) * 180 / math.Pi
		minA = math.Min(minA, a)
		maxA = math.Max(maxA, a)
	}
	skew := math.Max((maxA-ideal)/(180-ideal), (ideal-minA)/ideal)
	return math.Max(0, math.Min(1, skew))
}
