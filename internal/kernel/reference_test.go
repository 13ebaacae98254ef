package kernel

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRect(t *testing.T, k *Reference, x0, y0, x1, y1 float64, nx, ny int) Handle {
	t.Helper()
	h, err := k.RectGrid(Point{x0, y0}, Point{x1, y1}, nx, ny)
	require.NoError(t, err)
	return h
}

func TestRectGridTables(t *testing.T) {
	k := NewReference()
	h := mustRect(t, k, 0, 0, 2, 1, 2, 1)

	tab, err := k.Tables(h)
	require.NoError(t, err)

	assert.Equal(t, KindGrid2, tab.Kind)
	assert.Equal(t, []float64{0, 0, 1, 0, 2, 0, 0, 1, 1, 1, 2, 1}, tab.Float["vert"])
	assert.Equal(t, []int64{4, 4}, tab.Int["cell_dim"])
	assert.Equal(t, []int64{0, 1, 4, 3, 1, 2, 5, 4}, tab.Int["cell_vert"])
	assert.Equal(t, []int64{0, 1, 1, 4, 4, 3, 3, 0, 1, 2, 2, 5, 5, 4}, tab.Int["edge_vert"])
	assert.Equal(t, []int64{0, -1, 0, 1, 0, -1, 0, -1, 1, -1, 1, -1, 1, -1}, tab.Int["edge_cell"])
	assert.Equal(t, []int64{0, 2, 3, 4, 5, 6}, tab.Int["bnd"])
	assert.Equal(t, make([]int64, 7), tab.Int["bt"])
}

func TestRectGridDegenerate(t *testing.T) {
	k := NewReference()

	_, err := k.RectGrid(Point{0, 0}, Point{0, 1}, 1, 1)
	assert.ErrorIs(t, err, ErrDegenerate)

	_, err = k.RectGrid(Point{0, 0}, Point{1, 1}, 0, 1)
	assert.ErrorIs(t, err, ErrDegenerate)
	assert.Equal(t, 0, k.Len())
}

func TestRingGrid(t *testing.T) {
	k := NewReference()
	h, err := k.RingGrid(Point{0, 0}, 1, 2, 4, 1)
	require.NoError(t, err)

	info, err := k.GridInfo(h)
	require.NoError(t, err)
	assert.Equal(t, 8, info.Nodes)
	assert.Equal(t, 4, info.Cells)
	assert.Equal(t, 12, info.Edges)
	assert.Equal(t, map[int]int{4: 4}, info.CellTypes)

	area, err := k.DomainArea(h)
	require.NoError(t, err)
	assert.InDelta(t, 6.0, area, 1e-9)
}

func TestDeterministicConstruction(t *testing.T) {
	k := NewReference()
	a, err := k.RingGrid(Point{1, 1}, 0.5, 1, 12, 3)
	require.NoError(t, err)
	b, err := k.RingGrid(Point{1, 1}, 0.5, 1, 12, 3)
	require.NoError(t, err)

	ta, _ := k.Tables(a)
	tb, _ := k.Tables(b)
	assert.Equal(t, ta, tb)
}

func TestUniteAdjacentGrids(t *testing.T) {
	k := NewReference()
	g1, err := k.SetBoundaryType(mustRect(t, k, 0, 0, 1, 1, 1, 1), 1)
	require.NoError(t, err)
	g2, err := k.SetBoundaryType(mustRect(t, k, 1, 0, 2, 1, 1, 1), 2)
	require.NoError(t, err)

	u, err := k.Unite([]Handle{g1, g2}, nil)
	require.NoError(t, err)

	info, err := k.GridInfo(u)
	require.NoError(t, err)
	assert.Equal(t, 6, info.Nodes)
	assert.Equal(t, 2, info.Cells)
	assert.Equal(t, 7, info.Edges)
	assert.Equal(t, []int{1, 2}, info.BTypes)

	tab, _ := k.Tables(u)
	assert.Len(t, tab.Int["bnd"], 6)
}

func TestUniteRejectsOverlap(t *testing.T) {
	k := NewReference()
	g1 := mustRect(t, k, 0, 0, 2, 2, 1, 1)
	g2 := mustRect(t, k, 0.5, 0.5, 1.5, 1.5, 1, 1)
	before := k.Len()

	_, err := k.Unite([]Handle{g1, g2}, nil)
	assert.ErrorIs(t, err, ErrOverlap)
	assert.Equal(t, before, k.Len())
}

func TestUniteCancelled(t *testing.T) {
	k := NewReference()
	g1 := mustRect(t, k, 0, 0, 1, 1, 1, 1)
	g2 := mustRect(t, k, 2, 0, 3, 1, 1, 1)
	stop := errors.New("stop")

	_, err := k.Unite([]Handle{g1, g2}, func(f float64) error {
		if f > 0 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 2, k.Len())
}

func TestExclude(t *testing.T) {
	k := NewReference()
	g := mustRect(t, k, 0, 0, 4, 4, 4, 4)
	c, err := k.RectContour(Point{1, 1}, Point{3, 3}, [4]int{5, 5, 5, 5})
	require.NoError(t, err)

	t.Run("inner", func(t *testing.T) {
		h, err := k.Exclude(g, c, true, nil)
		require.NoError(t, err)
		info, err := k.GridInfo(h)
		require.NoError(t, err)
		assert.Equal(t, 12, info.Cells)
		assert.Equal(t, []int{0, 5}, info.BTypes)

		area, err := k.DomainArea(h)
		require.NoError(t, err)
		assert.InDelta(t, 12.0, area, 1e-9)
	})

	t.Run("outer", func(t *testing.T) {
		h, err := k.Exclude(g, c, false, nil)
		require.NoError(t, err)
		info, err := k.GridInfo(h)
		require.NoError(t, err)
		assert.Equal(t, 4, info.Cells)
		assert.Equal(t, 9, info.Nodes)
		assert.Equal(t, []int{5}, info.BTypes)
	})

	t.Run("empty", func(t *testing.T) {
		all, err := k.RectContour(Point{-1, -1}, Point{5, 5}, [4]int{})
		require.NoError(t, err)
		_, err = k.Exclude(g, all, true, nil)
		assert.ErrorIs(t, err, ErrEmptyResult)
	})

	t.Run("open contour", func(t *testing.T) {
		open, err := k.CustomContour([]Point{{0, 0}, {1, 1}, {2, 0}}, nil, false)
		require.NoError(t, err)
		_, err = k.Exclude(g, open, true, nil)
		assert.ErrorIs(t, err, ErrNotClosed)
	})

	t.Run("wrong kind", func(t *testing.T) {
		_, err := k.Exclude(c, g, true, nil)
		assert.ErrorIs(t, err, ErrWrongKind)
	})
}

func TestExtrude(t *testing.T) {
	k := NewReference()
	g := mustRect(t, k, 0, 0, 1, 1, 1, 1)
	side := 7

	h, err := k.Extrude(g, ExtrudeSpec{Z: []float64{0, 1, 2}, Bottom: 1, Top: 2, Side: &side}, nil)
	require.NoError(t, err)

	tab, err := k.Tables(h)
	require.NoError(t, err)
	assert.Equal(t, KindGrid3, tab.Kind)
	assert.Len(t, tab.Float["vert"], 12*3)
	assert.Equal(t, []int64{8, 8}, tab.Int["cell_dim"])
	assert.Len(t, tab.Int["bface_bt"], 10)

	info, err := k.GridInfo(h)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 7}, info.BTypes)

	_, err = k.Extrude(g, ExtrudeSpec{Z: []float64{1, 1}}, nil)
	assert.ErrorIs(t, err, ErrDegenerate)
}

func TestRevolve(t *testing.T) {
	k := NewReference()
	g := mustRect(t, k, 1, 0, 2, 1, 1, 1)
	axis := RevolveSpec{P0: Point{0, 0}, P1: Point{0, 1}}

	t.Run("full", func(t *testing.T) {
		spec := axis
		spec.Phi = []float64{0, 90, 180, 270, 360}
		h, err := k.Revolve(g, spec, nil)
		require.NoError(t, err)
		info, err := k.GridInfo(h)
		require.NoError(t, err)
		assert.Equal(t, 16, info.Nodes)
		assert.Equal(t, 4, info.Cells)
		assert.Equal(t, 16, info.Faces)
	})

	t.Run("partial", func(t *testing.T) {
		spec := axis
		spec.Phi = []float64{0, 90}
		spec.BtStart, spec.BtEnd = 3, 4
		h, err := k.Revolve(g, spec, nil)
		require.NoError(t, err)
		info, err := k.GridInfo(h)
		require.NoError(t, err)
		assert.Equal(t, 8, info.Nodes)
		assert.Equal(t, 6, info.Faces)
		assert.Equal(t, []int{0, 3, 4}, info.BTypes)

		tab, _ := k.Tables(h)
		// vertex (2,0) swept by 90 degrees around the y axis
		v := tab.Float["vert"][3*5 : 3*5+3]
		assert.InDelta(t, 0.0, v[0], 1e-12)
		assert.InDelta(t, 0.0, v[1], 1e-12)
		assert.InDelta(t, 2.0, math.Abs(v[2]), 1e-12)
	})

	t.Run("vertex on axis", func(t *testing.T) {
		touching := mustRect(t, k, 0, 0, 1, 1, 1, 1)
		spec := axis
		spec.Phi = []float64{0, 90}
		_, err := k.Revolve(touching, spec, nil)
		assert.ErrorIs(t, err, ErrDegenerate)
	})
}

func TestTransformsAreImmutable(t *testing.T) {
	k := NewReference()
	g := mustRect(t, k, 0, 0, 1, 1, 1, 1)
	before, _ := k.Tables(g)

	moved, err := k.Move(g, 1, 2)
	require.NoError(t, err)
	rotated, err := k.Rotate(g, Point{0, 0}, 90)
	require.NoError(t, err)

	after, _ := k.Tables(g)
	assert.Equal(t, before, after)

	mt, _ := k.Tables(moved)
	assert.Equal(t, []float64{1, 2}, mt.Float["vert"][:2])

	rt, _ := k.Tables(rotated)
	// (1,0) turns onto (0,1)
	assert.InDelta(t, 0.0, rt.Float["vert"][2], 1e-12)
	assert.InDelta(t, 1.0, rt.Float["vert"][3], 1e-12)
}

func TestLoadRoundTrip(t *testing.T) {
	k := NewReference()
	g := mustRect(t, k, 0, 0, 3, 2, 3, 2)
	g, err := k.SetBoundaryType(g, 4)
	require.NoError(t, err)
	c, err := k.CustomContour([]Point{{0, 0}, {1, 0}, {0, 1}}, []int{1, 2, 3}, true)
	require.NoError(t, err)
	g3, err := k.Extrude(g, ExtrudeSpec{Z: []float64{0, 0.5}}, nil)
	require.NoError(t, err)

	for _, h := range []Handle{g, c, g3} {
		tab, err := k.Tables(h)
		require.NoError(t, err)

		back, err := TablesFromObject(tab.Kind, tab.Object())
		require.NoError(t, err)

		loaded, err := k.Load(back)
		require.NoError(t, err)
		again, err := k.Tables(loaded)
		require.NoError(t, err)
		assert.Equal(t, tab, again)
	}
}

func TestLoadRejectsInconsistentTables(t *testing.T) {
	k := NewReference()
	tab, err := k.Tables(mustRect(t, k, 0, 0, 1, 1, 1, 1))
	require.NoError(t, err)

	tab.Int["edge_vert"][0], tab.Int["edge_vert"][1] = tab.Int["edge_vert"][1], tab.Int["edge_vert"][0]
	_, err = k.Load(tab)
	assert.ErrorIs(t, err, ErrInvalidTables)

	obj := tab.Object()
	delete(obj, "bnd")
	_, err = TablesFromObject(KindGrid2, obj)
	assert.ErrorIs(t, err, ErrInvalidTables)
}

func TestReleaseAndUnknownHandle(t *testing.T) {
	k := NewReference()
	g := mustRect(t, k, 0, 0, 1, 1, 1, 1)

	require.NoError(t, k.Release(g))
	assert.ErrorIs(t, k.Release(g), ErrUnknownHandle)

	_, err := k.Tables(g)
	assert.ErrorIs(t, err, ErrUnknownHandle)
}

func TestContourInfo(t *testing.T) {
	k := NewReference()
	open, err := k.CustomContour([]Point{{0, 0}, {3, 0}, {3, 4}}, []int{2}, false)
	require.NoError(t, err)

	info, err := k.ContourInfo(open)
	require.NoError(t, err)
	assert.Equal(t, ContourInfo{Nodes: 3, Edges: 2, Subcontours: 1, Closed: false, BTypes: []int{2}, Length: 7}, info)

	_, err = k.DomainArea(open)
	assert.ErrorIs(t, err, ErrNotClosed)

	_, err = k.CustomContour([]Point{{0, 0}, {1, 0}, {1, 1}}, []int{1, 2}, true)
	assert.ErrorIs(t, err, ErrDegenerate)
}

func TestSkewness(t *testing.T) {
	k := NewReference()
	square := mustRect(t, k, 0, 0, 2, 2, 2, 2)

	rep, err := k.Skewness(square, 0.5)
	require.NoError(t, err)
	assert.True(t, rep.OK)
	assert.InDelta(t, 0.0, rep.MaxSkew, 1e-12)
	assert.Empty(t, rep.BadCells)

	// a rhombus with 45 degree angles has skew (90-45)/90 = 0.5
	skewed, err := k.Load(Tables{
		Kind:  KindGrid2,
		Float: map[string][]float64{"vert": {0, 0, 1, 0, 1 + math.Sqrt2/2, math.Sqrt2 / 2, math.Sqrt2 / 2, math.Sqrt2 / 2}},
		Int: map[string][]int64{
			"cell_dim": {4}, "cell_vert": {0, 1, 2, 3},
			"edge_vert": {0, 1, 1, 2, 2, 3, 3, 0},
			"edge_cell": {0, -1, 0, -1, 0, -1, 0, -1},
			"bt":        {0, 0, 0, 0},
			"bnd":       {0, 1, 2, 3},
		},
	})
	require.NoError(t, err)
	rep, err = k.Skewness(skewed, 0.4)
	require.NoError(t, err)
	assert.False(t, rep.OK)
	assert.Equal(t, []int{0}, rep.BadCells)
	assert.InDelta(t, 0.5, rep.BadSkew[0], 1e-9)
}

func TestClosestPoint(t *testing.T) {
	k := NewReference()
	g := mustRect(t, k, 0, 0, 2, 2, 2, 2)
	c, err := k.RectContour(Point{0, 0}, Point{2, 1}, [4]int{})
	require.NoError(t, err)

	tests := []struct {
		name string
		h    Handle
		p    Point
		snap Snap
		want Point
	}{
		// the interior vertex (1, 1) is not on the outline
		{"grid vertex", g, Point{1, 0.9}, SnapVertex, Point{1, 0}},
		{"grid vertex near corner", g, Point{0.3, 0.9}, SnapVertex, Point{0, 1}},
		{"grid edge", g, Point{0.3, 0.9}, SnapEdge, Point{0, 0.9}},
		{"contour edge", c, Point{3, 0.5}, SnapEdge, Point{2, 0.5}},
		{"contour vertex tie", c, Point{3, 0.5}, SnapVertex, Point{2, 0}},
		{"on the contour", c, Point{1, 1}, SnapEdge, Point{1, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := k.ClosestPoint(tt.h, tt.p, tt.snap)
			require.NoError(t, err)
			assert.InDelta(t, tt.want.X, got.X, 1e-12)
			assert.InDelta(t, tt.want.Y, got.Y, 1e-12)
		})
	}

	_, err = k.ClosestPoint(Handle(999), Point{}, SnapVertex)
	assert.ErrorIs(t, err, ErrUnknownHandle)
}

func TestPickContour(t *testing.T) {
	k := NewReference()
	c1, err := k.RectContour(Point{0, 0}, Point{1, 1}, [4]int{})
	require.NoError(t, err)
	c2, err := k.RectContour(Point{3, 0}, Point{4, 1}, [4]int{})
	require.NoError(t, err)

	i, err := k.PickContour(Point{2.8, 0.5}, []Handle{c1, c2})
	require.NoError(t, err)
	assert.Equal(t, 1, i)

	// equally close: the first listed wins
	i, err = k.PickContour(Point{2, 0.5}, []Handle{c2, c1})
	require.NoError(t, err)
	assert.Equal(t, 0, i)

	_, err = k.PickContour(Point{}, nil)
	assert.ErrorIs(t, err, ErrEmptyResult)

	g := mustRect(t, k, 0, 0, 1, 1, 1, 1)
	_, err = k.PickContour(Point{}, []Handle{c1, g})
	assert.ErrorIs(t, err, ErrWrongKind)
}

func TestParseSnap(t *testing.T) {
	s, err := ParseSnap("edge")
	require.NoError(t, err)
	assert.Equal(t, SnapEdge, s)
	assert.Equal(t, "vertex", SnapVertex.String())
	_, err = ParseSnap("face")
	assert.Error(t, err)
}
