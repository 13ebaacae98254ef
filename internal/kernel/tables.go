package kernel

import (
	"fmt"
	"slices"

	"github.com/roach88/meshflow/internal/ir"
)

// Tables is the raw dump of one object. Float tables hold coordinates;
// Int tables hold connectivity and boundary types. Multi-column tables are
// flattened row-major; cell_vert and bface_vert are ragged and sized by
// cell_dim and bface_dim.
type Tables struct {
	Kind  Kind
	Float map[string][]float64
	Int   map[string][]int64
}

type tableSet struct {
	Float []string
	Int   []string
}

// contract lists the tables every object of a kind exposes.
var contract = map[Kind]tableSet{
	KindGrid2: {
		Float: []string{"vert"},
		Int:   []string{"edge_vert", "edge_cell", "cell_dim", "cell_vert", "bt", "bnd"},
	},
	KindContour2: {
		Float: []string{"vert"},
		Int:   []string{"edge_vert", "bt"},
	},
	KindGrid3: {
		Float: []string{"vert"},
		Int:   []string{"cell_dim", "cell_vert", "bface_dim", "bface_vert", "bface_bt"},
	},
}

// TableNames returns the table names of a kind, floats first.
func TableNames(k Kind) []string {
	set := contract[k]
	return append(slices.Clone(set.Float), set.Int...)
}

// Dim returns the coordinate dimension of the vert table.
func (t Tables) Dim() int {
	if t.Kind == KindGrid3 {
		return 3
	}
	return 2
}

// Object converts the tables into an ir.Object keyed by table name.
func (t Tables) Object() ir.Object {
	obj := make(ir.Object, len(t.Float)+len(t.Int))
	for name, vals := range t.Float {
		arr := make(ir.Array, len(vals))
		for i, v := range vals {
			arr[i] = ir.Float(v)
		}
		obj[name] = arr
	}
	for name, vals := range t.Int {
		arr := make(ir.Array, len(vals))
		for i, v := range vals {
			arr[i] = ir.Int(v)
		}
		obj[name] = arr
	}
	return obj
}

// TablesFromObject is the inverse of Tables.Object. The object must hold
// exactly the tables of the kind's contract.
func TablesFromObject(kind Kind, obj ir.Object) (Tables, error) {
	set, ok := contract[kind]
	if !ok {
		return Tables{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidTables, kind)
	}
	if len(obj) != len(set.Float)+len(set.Int) {
		return Tables{}, fmt.Errorf("%w: %s expects tables %v, got %v",
			ErrInvalidTables, kind, TableNames(kind), obj.SortedKeys())
	}

	t := Tables{Kind: kind, Float: map[string][]float64{}, Int: map[string][]int64{}}
	for _, name := range set.Float {
		v, ok := obj[name]
		if !ok {
			return Tables{}, fmt.Errorf("%w: missing table %q", ErrInvalidTables, name)
		}
		vals, err := ir.Floats(v)
		if err != nil {
			return Tables{}, fmt.Errorf("%w: table %q: %w", ErrInvalidTables, name, err)
		}
		t.Float[name] = vals
	}
	for _, name := range set.Int {
		v, ok := obj[name]
		if !ok {
			return Tables{}, fmt.Errorf("%w: missing table %q", ErrInvalidTables, name)
		}
		vals, err := ir.Ints(v)
		if err != nil {
			return Tables{}, fmt.Errorf("%w: table %q: %w", ErrInvalidTables, name, err)
		}
		t.Int[name] = vals
	}
	return t, nil
}

// ragged splits a flattened ragged table by its row sizes.
func ragged(dims, flat []int64) ([][]int, error) {
	rows := make([][]int, 0, len(dims))
	off := 0
	for i, d := range dims {
		if d < 2 || off+int(d) > len(flat) {
			return nil, fmt.Errorf("%w: row %d size %d", ErrInvalidTables, i, d)
		}
		row := make([]int, d)
		for j := range row {
			row[j] = int(flat[off+j])
		}
		rows = append(rows, row)
		off += int(d)
	}
	if off != len(flat) {
		return nil, fmt.Errorf("%w: %d trailing values", ErrInvalidTables, len(flat)-off)
	}
	return rows, nil
}

func flatten(rows [][]int) (dims, flat []int64) {
	dims = make([]int64, len(rows))
	for i, r := range rows {
		dims[i] = int64(len(r))
		for _, v := range r {
			flat = append(flat, int64(v))
		}
	}
	if flat == nil {
		flat = []int64{}
	}
	return dims, flat
}
