package kernel

import (
	"fmt"
	"slices"
)

// GridInfo summarizes a grid2 or grid3.
type GridInfo struct {
	Dim       int         `json:"dim"`
	Nodes     int         `json:"nodes"`
	Cells     int         `json:"cells"`
	Edges     int         `json:"edges,omitempty"`
	Faces     int         `json:"boundary_faces,omitempty"`
	CellTypes map[int]int `json:"cell_types"` // vertices per cell -> count
	BTypes    []int       `json:"btypes"`     // distinct boundary types, sorted
}

// ContourInfo summarizes a contour2.
type ContourInfo struct {
	Nodes       int     `json:"nodes"`
	Edges       int     `json:"edges"`
	Subcontours int     `json:"subcontours"`
	Closed      bool    `json:"closed"`
	BTypes      []int   `json:"btypes"`
	Length      float64 `json:"length"`
}

// SkewReport lists the cells whose equiangle skewness exceeds a threshold.
type SkewReport struct {
	OK          bool      `json:"ok"`
	MaxSkew     float64   `json:"max_skew"`
	MaxSkewCell int       `json:"max_skew_cell"`
	BadCells    []int     `json:"bad_cells"`
	BadSkew     []float64 `json:"bad_skew"`
}

func distinct(vals []int) []int {
	out := slices.Clone(vals)
	slices.Sort(out)
	out = slices.Compact(out)
	if out == nil {
		out = []int{}
	}
	return out
}

func (r *Reference) GridInfo(h Handle) (GridInfo, error) {
	o, err := r.get(h)
	if err != nil {
		return GridInfo{}, err
	}
	switch g := o.(type) {
	case *grid2:
		info := GridInfo{Dim: 2, Nodes: len(g.verts), Cells: len(g.cells), Edges: len(g.edges), CellTypes: map[int]int{}}
		for _, c := range g.cells {
			info.CellTypes[len(c)]++
		}
		var bts []int
		for i, e := range g.edges {
			if e.right < 0 {
				bts = append(bts, g.bt[i])
			}
		}
		info.BTypes = distinct(bts)
		return info, nil
	case *grid3:
		info := GridInfo{Dim: 3, Nodes: len(g.verts), Cells: len(g.cells), Faces: len(g.faces), CellTypes: map[int]int{}}
		for _, c := range g.cells {
			info.CellTypes[len(c)]++
		}
		info.BTypes = distinct(g.fbt)
		return info, nil
	}
	return GridInfo{}, fmt.Errorf("%w: %s is not a grid", ErrWrongKind, o.kind())
}

func (r *Reference) ContourInfo(h Handle) (ContourInfo, error) {
	c, err := r.contour2(h)
	if err != nil {
		return ContourInfo{}, err
	}
	return ContourInfo{
		Nodes:       len(c.verts),
		Edges:       len(c.edges),
		Subcontours: c.components(),
		Closed:      c.closed(),
		BTypes:      distinct(c.bt),
		Length:      c.length(),
	}, nil
}

func (r *Reference) Skewness(h Handle, threshold float64) (SkewReport, error) {
	g, err := r.grid2(h)
	if err != nil {
		return SkewReport{}, err
	}
	rep := SkewReport{OK: true, MaxSkewCell: -1, BadCells: []int{}, BadSkew: []float64{}}
	for ci, c := range g.cells {
		s := equiangularSkew(g.polyOf(c))
		if rep.MaxSkewCell < 0 || s > rep.MaxSkew {
			rep.MaxSkew, rep.MaxSkewCell = s, ci
		}
		if s > threshold {
			rep.OK = false
			rep.BadCells = append(rep.BadCells, ci)
			rep.BadSkew = append(rep.BadSkew, s)
		}
	}
	return rep, nil
}

// DomainArea is the total cell area of a grid2 or the enclosed area of a
// contour2.
func (r *Reference) DomainArea(h Handle) (float64, error) {
	o, err := r.get(h)
	if err != nil {
		return 0, err
	}
	switch v := o.(type) {
	case *grid2:
		var a float64
		for _, c := range v.cells {
			a += signedArea(v.polyOf(c))
		}
		return a, nil
	case *contour2:
		if !v.closed() {
			return 0, ErrNotClosed
		}
		return v.area(), nil
	}
	return 0, fmt.Errorf("%w: %s has no planar area", ErrWrongKind, o.kind())
}
