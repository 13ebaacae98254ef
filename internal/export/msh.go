package export

import (
	"bufio"
	"fmt"
	"slices"

	"github.com/roach88/meshflow/internal/kernel"
)

// gmsh element types.
const (
	mshLine     = 1
	mshTriangle = 2
	mshQuad     = 3
)

// writeMSH writes a gmsh 2.2 mesh. Every boundary type found in the bt
// table becomes a 1D physical group; cells share a 2D "interior" group
// numbered one past the largest boundary type. Indices are 1-based.
func writeMSH(w *bufio.Writer, t kernel.Tables, opts Options) error {
	bt := t.Int["bt"]
	types := []int64{}
	for _, b := range bt {
		if !slices.Contains(types, b) {
			types = append(types, b)
		}
	}
	slices.Sort(types)
	interior := int64(0)
	if len(types) > 0 {
		interior = types[len(types)-1] + 1
	}

	fmt.Fprintln(w, "$MeshFormat")
	fmt.Fprintln(w, "2.2 0 8")
	fmt.Fprintln(w, "$EndMeshFormat")

	fmt.Fprintln(w, "$PhysicalNames")
	fmt.Fprintln(w, len(types)+1)
	fmt.Fprintf(w, "2 %d \"interior\"\n", interior)
	for _, b := range types {
		name, ok := opts.BoundaryNames[int(b)]
		if !ok {
			name = fmt.Sprintf("boundary%d", b)
		}
		fmt.Fprintf(w, "1 %d %q\n", b, name)
	}
	fmt.Fprintln(w, "$EndPhysicalNames")

	vert := t.Float["vert"]
	fmt.Fprintln(w, "$Nodes")
	fmt.Fprintln(w, len(vert)/2)
	for i := 0; i+1 < len(vert); i += 2 {
		fmt.Fprintf(w, "%d %s %s 0\n", i/2+1, formatFloat(vert[i]), formatFloat(vert[i+1]))
	}
	fmt.Fprintln(w, "$EndNodes")

	cells := rows(t.Int["cell_dim"], t.Int["cell_vert"])
	bnd := t.Int["bnd"]
	ev := t.Int["edge_vert"]
	fmt.Fprintln(w, "$Elements")
	fmt.Fprintln(w, len(cells)+len(bnd))
	n := 1
	for _, c := range cells {
		etype := mshQuad
		if len(c) == 3 {
			etype = mshTriangle
		}
		fmt.Fprintf(w, "%d %d 2 %d %d", n, etype, interior, interior)
		for _, v := range c {
			fmt.Fprintf(w, " %d", v+1)
		}
		fmt.Fprintln(w)
		n++
	}
	for _, e := range bnd {
		b := bt[e]
		fmt.Fprintf(w, "%d %d 2 %d %d %d %d\n", n, mshLine, b, b, ev[2*e]+1, ev[2*e+1]+1)
		n++
	}
	fmt.Fprintln(w, "$EndElements")
	return nil
}
