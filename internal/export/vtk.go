package export

import (
	"bufio"
	"fmt"

	"github.com/roach88/meshflow/internal/kernel"
)

// VTK cell type ids.
const (
	vtkLine       = 3
	vtkTriangle   = 5
	vtkPolygon    = 7
	vtkQuad       = 9
	vtkTetra      = 10
	vtkHexahedron = 12
	vtkWedge      = 13
)

// vtkSolid maps grid3 cell sizes to VTK types. Swept cells list the
// bottom ring then the top ring, which is the VTK order for wedges and
// hexahedra.
var vtkSolid = map[int64]int{
	4: vtkTetra,
	6: vtkWedge,
	8: vtkHexahedron,
}

func writeVTK(w *bufio.Writer, t kernel.Tables, opts Options) error {
	title := opts.Title
	if title == "" {
		title = "meshflow " + string(t.Kind)
	}
	fmt.Fprintln(w, "# vtk DataFile Version 3.0")
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, "ASCII")
	fmt.Fprintln(w, "DATASET UNSTRUCTURED_GRID")

	dim := t.Dim()
	vert := t.Float["vert"]
	fmt.Fprintf(w, "POINTS %d double\n", len(vert)/dim)
	for i := 0; i+dim <= len(vert); i += dim {
		z := 0.0
		if dim == 3 {
			z = vert[i+2]
		}
		fmt.Fprintf(w, "%s %s %s\n", formatFloat(vert[i]), formatFloat(vert[i+1]), formatFloat(z))
	}

	var (
		cells [][]int64
		types []int
	)
	switch t.Kind {
	case kernel.KindContour2:
		ev := t.Int["edge_vert"]
		for i := 0; i+1 < len(ev); i += 2 {
			cells = append(cells, ev[i:i+2])
			types = append(types, vtkLine)
		}
	case kernel.KindGrid2:
		cells = rows(t.Int["cell_dim"], t.Int["cell_vert"])
		for _, c := range cells {
			switch len(c) {
			case 3:
				types = append(types, vtkTriangle)
			case 4:
				types = append(types, vtkQuad)
			default:
				types = append(types, vtkPolygon)
			}
		}
	case kernel.KindGrid3:
		cells = rows(t.Int["cell_dim"], t.Int["cell_vert"])
		for _, c := range cells {
			types = append(types, vtkSolid[int64(len(c))])
		}
	}

	size := 0
	for _, c := range cells {
		size += len(c) + 1
	}
	fmt.Fprintf(w, "CELLS %d %d\n", len(cells), size)
	for _, c := range cells {
		fmt.Fprint(w, len(c))
		for _, v := range c {
			fmt.Fprintf(w, " %d", v)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "CELL_TYPES %d\n", len(types))
	for _, tp := range types {
		fmt.Fprintln(w, tp)
	}

	// contour segments carry their boundary type
	if t.Kind == kernel.KindContour2 {
		fmt.Fprintf(w, "CELL_DATA %d\n", len(cells))
		fmt.Fprintln(w, "SCALARS bt int 1")
		fmt.Fprintln(w, "LOOKUP_TABLE default")
		for _, b := range t.Int["bt"] {
			fmt.Fprintln(w, b)
		}
	}
	return nil
}
