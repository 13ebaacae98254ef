package export

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/meshflow/internal/errs"
	"github.com/roach88/meshflow/internal/kernel"
)

// Format names an output format.
type Format string

const (
	FormatVTK  Format = "vtk"
	FormatMSH  Format = "msh"
	FormatJSON Format = "json"
)

// Formats lists every supported format.
var Formats = []Format{FormatVTK, FormatMSH, FormatJSON}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(s))
	if !slices.Contains(Formats, f) {
		return "", errs.InvalidArgument("unknown export format %q (want vtk, msh or json)", s)
	}
	return f, nil
}

// Options tune a writer.
type Options struct {
	// Title is the vtk header line. Defaults to "meshflow <kind>".
	Title string

	// BoundaryNames overrides the msh physical name of a boundary type.
	// Unlisted types are named "boundary<N>".
	BoundaryNames map[int]string
}

type writer func(w *bufio.Writer, t kernel.Tables, opts Options) error

var writers = map[Format]writer{
	FormatVTK:  writeVTK,
	FormatMSH:  writeMSH,
	FormatJSON: writeJSON,
}

// Write encodes t to w. Unsupported kind and format pairs are an
// InvalidArgument error and nothing is written.
func Write(w io.Writer, format Format, t kernel.Tables, opts Options) error {
	write, ok := writers[format]
	if !ok {
		return errs.InvalidArgument("unknown export format %q", format).WithOp("export")
	}
	if err := check(format, t); err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	if err := write(bw, t, opts); err != nil {
		return err
	}
	return bw.Flush()
}

// WriteFile writes t to path, replacing any existing file.
func WriteFile(path string, format Format, t kernel.Tables, opts Options) (err error) {
	if err := check(format, t); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("export: %w", cerr)
		}
	}()
	return Write(f, format, t, opts)
}

// check rejects tables a writer cannot represent before any output.
func check(format Format, t kernel.Tables) error {
	if _, err := kernel.ParseKind(string(t.Kind)); err != nil {
		return errs.InvalidArgument("%v", err).WithOp("export")
	}
	switch format {
	case FormatMSH:
		if t.Kind != kernel.KindGrid2 {
			return errs.InvalidArgument("msh export supports grid2 only, got %s", t.Kind).WithOp("export")
		}
		for i, n := range t.Int["cell_dim"] {
			if n != 3 && n != 4 {
				return errs.InvalidArgument("msh export needs triangle or quad cells, cell %d has %d vertices", i, n).WithOp("export")
			}
		}
	case FormatVTK:
		if t.Kind == kernel.KindGrid3 {
			for i, n := range t.Int["cell_dim"] {
				if _, ok := vtkSolid[n]; !ok {
					return errs.InvalidArgument("vtk export has no cell type for a %d-vertex solid (cell %d)", n, i).WithOp("export")
				}
			}
		}
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// rows splits a ragged cell_vert table by its dim table.
func rows(dims, flat []int64) [][]int64 {
	out := make([][]int64, 0, len(dims))
	at := int64(0)
	for _, n := range dims {
		out = append(out, flat[at:at+n])
		at += n
	}
	return out
}
