package kernel

import (
	"fmt"
	"sync"
)

type object interface {
	kind() Kind
	tables() Tables
}

// Reference is an in-memory Kernel. Objects are immutable values in an
// arena keyed by handle; Copy issues a second handle to the same value.
//
// Unite only joins grids whose cells do not overlap (shared boundary
// vertices are merged). Exclude keeps or drops whole cells by centroid and
// never cuts a cell.
type Reference struct {
	mu      sync.Mutex
	next    Handle
	objects map[Handle]object
}

var _ Kernel = (*Reference)(nil)

// NewReference creates an empty arena.
func NewReference() *Reference {
	return &Reference{objects: map[Handle]object{}}
}

// Len returns the number of live handles.
func (r *Reference) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.objects)
}

func (r *Reference) put(o object) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	r.objects[r.next] = o
	return r.next
}

func (r *Reference) get(h Handle) (object, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.objects[h]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownHandle, h)
	}
	return o, nil
}

func (r *Reference) grid2(h Handle) (*grid2, error) {
	o, err := r.get(h)
	if err != nil {
		return nil, err
	}
	g, ok := o.(*grid2)
	if !ok {
		return nil, fmt.Errorf("%w: handle %d is %s, want %s", ErrWrongKind, h, o.kind(), KindGrid2)
	}
	return g, nil
}

func (r *Reference) contour2(h Handle) (*contour2, error) {
	o, err := r.get(h)
	if err != nil {
		return nil, err
	}
	c, ok := o.(*contour2)
	if !ok {
		return nil, fmt.Errorf("%w: handle %d is %s, want %s", ErrWrongKind, h, o.kind(), KindContour2)
	}
	return c, nil
}

func (r *Reference) RectGrid(p0, p1 Point, nx, ny int) (Handle, error) {
	g, err := rectGrid(p0, p1, nx, ny)
	if err != nil {
		return 0, err
	}
	return r.put(g), nil
}

func (r *Reference) RingGrid(center Point, rinner, router float64, narc, nrad int) (Handle, error) {
	g, err := ringGrid(center, rinner, router, narc, nrad)
	if err != nil {
		return 0, err
	}
	return r.put(g), nil
}

func (r *Reference) RectContour(p0, p1 Point, bt [4]int) (Handle, error) {
	c, err := rectContour(p0, p1, bt)
	if err != nil {
		return 0, err
	}
	return r.put(c), nil
}

func (r *Reference) CustomContour(pts []Point, bt []int, closed bool) (Handle, error) {
	c, err := customContour(pts, bt, closed)
	if err != nil {
		return 0, err
	}
	return r.put(c), nil
}

func (r *Reference) SetBoundaryType(h Handle, bt int) (Handle, error) {
	o, err := r.get(h)
	if err != nil {
		return 0, err
	}
	switch v := o.(type) {
	case *grid2:
		return r.put(v.withBoundaryType(bt)), nil
	case *contour2:
		return r.put(v.withBoundaryType(bt)), nil
	case *grid3:
		return r.put(v.withBoundaryType(bt)), nil
	}
	return 0, fmt.Errorf("%w: %T", ErrWrongKind, o)
}

func (r *Reference) Copy(h Handle) (Handle, error) {
	o, err := r.get(h)
	if err != nil {
		return 0, err
	}
	return r.put(o), nil
}

func (r *Reference) transform(h Handle, f func(Point) Point) (Handle, error) {
	o, err := r.get(h)
	if err != nil {
		return 0, err
	}
	switch v := o.(type) {
	case *grid2:
		return r.put(v.mapVerts(f)), nil
	case *contour2:
		return r.put(v.mapVerts(f)), nil
	case *grid3:
		return r.put(v.mapVerts(f)), nil
	}
	return 0, fmt.Errorf("%w: %T", ErrWrongKind, o)
}

func (r *Reference) Move(h Handle, dx, dy float64) (Handle, error) {
	return r.transform(h, func(p Point) Point { return Point{p.X + dx, p.Y + dy} })
}

// Rotate turns counter-clockwise around center; z is unchanged for 3D
// grids.
func (r *Reference) Rotate(h Handle, center Point, degrees float64) (Handle, error) {
	sin, cos := sinCosDeg(degrees)
	return r.transform(h, func(p Point) Point { return rotatePoint(p, center, sin, cos) })
}

func (r *Reference) Unite(hs []Handle, cp Checkpoint) (Handle, error) {
	if len(hs) < 2 {
		return 0, fmt.Errorf("%w: unite needs at least two grids", ErrDegenerate)
	}
	grids := make([]*grid2, len(hs))
	for i, h := range hs {
		g, err := r.grid2(h)
		if err != nil {
			return 0, err
		}
		grids[i] = g
	}
	g, err := unite(grids, cp)
	if err != nil {
		return 0, err
	}
	return r.put(g), nil
}

func (r *Reference) Exclude(grid, contour Handle, inner bool, cp Checkpoint) (Handle, error) {
	g, err := r.grid2(grid)
	if err != nil {
		return 0, err
	}
	c, err := r.contour2(contour)
	if err != nil {
		return 0, err
	}
	out, err := exclude(g, c, inner, cp)
	if err != nil {
		return 0, err
	}
	return r.put(out), nil
}

func (r *Reference) Extrude(grid Handle, spec ExtrudeSpec, cp Checkpoint) (Handle, error) {
	g, err := r.grid2(grid)
	if err != nil {
		return 0, err
	}
	out, err := extrude(g, spec, cp)
	if err != nil {
		return 0, err
	}
	return r.put(out), nil
}

func (r *Reference) Revolve(grid Handle, spec RevolveSpec, cp Checkpoint) (Handle, error) {
	g, err := r.grid2(grid)
	if err != nil {
		return 0, err
	}
	out, err := revolve(g, spec, cp)
	if err != nil {
		return 0, err
	}
	return r.put(out), nil
}

func (r *Reference) Kind(h Handle) (Kind, error) {
	o, err := r.get(h)
	if err != nil {
		return "", err
	}
	return o.kind(), nil
}

func (r *Reference) Tables(h Handle) (Tables, error) {
	o, err := r.get(h)
	if err != nil {
		return Tables{}, err
	}
	return o.tables(), nil
}

// Load validates t against the kind's contract and issues a new handle.
func (r *Reference) Load(t Tables) (Handle, error) {
	var (
		o   object
		err error
	)
	switch t.Kind {
	case KindGrid2:
		o, err = loadGrid2(t)
	case KindContour2:
		o, err = loadContour2(t)
	case KindGrid3:
		o, err = loadGrid3(t)
	default:
		err = fmt.Errorf("%w: unknown kind %q", ErrInvalidTables, t.Kind)
	}
	if err != nil {
		return 0, err
	}
	return r.put(o), nil
}

func (r *Reference) Release(h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.objects[h]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownHandle, h)
	}
	delete(r.objects, h)
	return nil
}
