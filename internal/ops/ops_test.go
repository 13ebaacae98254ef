package ops

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/meshflow/internal/errs"
	"github.com/roach88/meshflow/internal/framework"
	"github.com/roach88/meshflow/internal/ir"
	"github.com/roach88/meshflow/internal/kernel"
	"github.com/roach88/meshflow/internal/testutil"
)

type fixture struct {
	fw  *framework.Framework
	k   *kernel.Reference
	ui  *testutil.RecordingUI
	env Env
}

// newFixture registers g1 = [0,1]^2 and g2 = [1,2]x[0,1] (4x4 each) and the
// contour c1 = [0.25,0.75]^2.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	k := kernel.NewReference()
	f := &fixture{k: k, fw: framework.New(k), ui: testutil.NewRecordingUI()}
	f.env = Env{Framework: f.fw, UI: f.ui}

	for _, op := range []Operation{
		&AddUnfRectGrid{Name: "g1", P0: Point{0, 0}, P1: Point{1, 1}, NX: 4, NY: 4},
		&AddUnfRectGrid{Name: "g2", P0: Point{1, 0}, P1: Point{2, 1}, NX: 4, NY: 4},
		&AddRectContour{Name: "c1", P0: Point{0.25, 0.25}, P1: Point{0.75, 0.75}},
	} {
		_, err := op.Apply(context.Background(), f.env)
		require.NoError(t, err)
	}
	return f
}

func (f *fixture) snapshot(t *testing.T) framework.Snapshot {
	t.Helper()
	s, err := f.fw.Snapshot()
	require.NoError(t, err)
	return s
}

func mustObject(t *testing.T, m map[string]any) ir.Object {
	t.Helper()
	v, err := ir.FromGo(m)
	require.NoError(t, err)
	return v.(ir.Object)
}

type sample struct {
	tag    Tag
	params map[string]any
}

func samples() []sample {
	return []sample{
		{TagAddUnfRectGrid, map[string]any{"name": "r", "p0": []any{0, 2}, "p1": []any{1, 3}, "nx": 2, "ny": 2}},
		{TagAddUnfRingGrid, map[string]any{"name": "ring", "center": []any{5, 5}, "rinner": 0.5, "router": 1, "narc": 8, "nrad": 2}},
		{TagAddRectContour, map[string]any{"name": "box", "p0": []any{0, 0}, "p1": []any{1, 1}, "bt": []any{1, 2, 3, 4}}},
		{TagAddCustomContour, map[string]any{"name": "tri", "points": []any{[]any{0, 0}, []any{1, 0}, []any{0, 1}}, "bt": []any{7}}},
		{TagSetBoundaryType, map[string]any{"kind": "grid2", "target": "g1", "bt": 3}},
		{TagUniteGrids, map[string]any{"name": "u", "base": "g1", "others": []any{"g2"}}},
		{TagExcludeContours, map[string]any{"name": "ex", "grid": "g1", "contour": "c1", "what": "inner"}},
		{TagExtrudeGrid, map[string]any{"name": "e", "grid": "g1", "z": []any{0, 0.5, 1}, "bottom": 1, "top": 2}},
		{TagRevolveGrid, map[string]any{"name": "rev", "grid": "g2", "p0": []any{0, 0}, "p1": []any{0, 1}, "phi": []any{0, 90}}},
		{TagCopyGeom, map[string]any{"kind": "grid2", "source": "g1", "name": "g1copy"}},
		{TagMoveGeom, map[string]any{"kind": "contour2", "target": "c1", "dx": 1, "dy": 0.5}},
		{TagRotateGeom, map[string]any{"kind": "grid2", "target": "g2", "center": []any{0, 0}, "angle": 45}},
		{TagRenameGeom, map[string]any{"kind": "grid2", "target": "g1", "name": "first"}},
		{TagRemoveGeom, map[string]any{"kind": "grid2", "names": []any{"g1", "g2"}}},
	}
}

func TestSamplesCoverEveryTag(t *testing.T) {
	seen := map[Tag]bool{}
	for _, s := range samples() {
		seen[s.tag] = true
	}
	for _, tag := range Tags {
		assert.True(t, seen[tag], "no sample for %s", tag)
	}
}

func TestDecodeParamsRoundTrip(t *testing.T) {
	for _, s := range samples() {
		t.Run(string(s.tag), func(t *testing.T) {
			params := mustObject(t, s.params)
			op, err := Decode(string(s.tag), params)
			require.NoError(t, err)
			assert.Equal(t, s.tag, op.Tag())
			assert.True(t, ir.Equal(params, op.Params()), "params %v vs %v", params, op.Params())

			again, err := Decode(string(s.tag), op.Params())
			require.NoError(t, err)
			assert.Equal(t, op, again)
		})
	}
}

func TestDecodeRejectsMalformedParams(t *testing.T) {
	rect := func(over map[string]any) map[string]any {
		m := map[string]any{"name": "r", "p0": []any{0, 0}, "p1": []any{1, 1}, "nx": 1, "ny": 1}
		for k, v := range over {
			if v == nil {
				delete(m, k)
				continue
			}
			m[k] = v
		}
		return m
	}

	tests := []struct {
		name   string
		tag    Tag
		params map[string]any
	}{
		{"zero cells", TagAddUnfRectGrid, rect(map[string]any{"nx": 0})},
		{"fractional count", TagAddUnfRectGrid, rect(map[string]any{"nx": 2.5})},
		{"missing field", TagAddUnfRectGrid, rect(map[string]any{"ny": nil})},
		{"unknown field", TagAddUnfRectGrid, rect(map[string]any{"color": "red"})},
		{"bad name", TagAddUnfRectGrid, rect(map[string]any{"name": "1st"})},
		{"short point", TagAddUnfRectGrid, rect(map[string]any{"p0": []any{0}})},
		{"string for number", TagAddUnfRectGrid, rect(map[string]any{"p1": []any{"a", 1}})},
		{"bad what", TagExcludeContours, map[string]any{"name": "x", "grid": "g", "contour": "c", "what": "middle"}},
		{"one point", TagAddCustomContour, map[string]any{"name": "x", "points": []any{[]any{0, 0}}}},
		{"bad kind", TagCopyGeom, map[string]any{"kind": "mesh", "source": "a", "name": "b"}},
		{"negative bt", TagSetBoundaryType, map[string]any{"kind": "grid2", "target": "a", "bt": -1}},
		{"empty others", TagUniteGrids, map[string]any{"name": "u", "base": "a", "others": []any{}}},
		{"unknown tag", Tag("explode_grid"), map[string]any{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(string(tt.tag), mustObject(t, tt.params))
			require.Error(t, err)
			assert.True(t, errs.Is(err, errs.CodeInvalidArgument), "got %v", err)
		})
	}
}

func TestValidateSemantics(t *testing.T) {
	f := newFixture(t)
	side := 1

	tests := []struct {
		name string
		op   Operation
		code errs.Code
	}{
		{"inverted box", &AddUnfRectGrid{Name: "r", P0: Point{1, 1}, P1: Point{0, 2}, NX: 1, NY: 1}, errs.CodeInvalidArgument},
		{"ring radii", &AddUnfRingGrid{Name: "r", RInner: 2, ROuter: 1, NArc: 4, NRad: 1}, errs.CodeInvalidArgument},
		{"bt count", &AddCustomContour{Name: "c", Points: []Point{{0, 0}, {1, 0}, {0, 1}}, BT: []int{1, 2}}, errs.CodeInvalidArgument},
		{"z order", &ExtrudeGrid{Name: "e", Grid: "g1", Z: []float64{1, 0}, Side: &side}, errs.CodeInvalidArgument},
		{"phi span", &RevolveGrid{Name: "r", Grid: "g2", P0: Point{0, 0}, P1: Point{0, 1}, Phi: []float64{0, 400}}, errs.CodeInvalidArgument},
		{"duplicate source", &UniteGrids{Name: "u", Base: "g1", Others: []string{"g1"}}, errs.CodeInvalidArgument},
		{"missing grid", &UniteGrids{Name: "u", Base: "g1", Others: []string{"nope"}}, errs.CodeNotFound},
		{"taken name", &AddUnfRectGrid{Name: "g1", P0: Point{0, 0}, P1: Point{1, 1}, NX: 1, NY: 1}, errs.CodeNameCollision},
		{"contour kind", &ExcludeContours{Name: "x", Grid: "g1", Contour: "g2", What: "outer"}, errs.CodeNotFound},
		{"rename onto taken", &RenameGeom{Kind: kernel.KindGrid2, Target: "g1", Name: "g2"}, errs.CodeNameCollision},
		{"remove missing", &RemoveGeom{Kind: kernel.KindGrid2, Names: []string{"g1", "zz"}}, errs.CodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := f.snapshot(t)
			live := f.k.Len()

			_, err := tt.op.Apply(context.Background(), f.env)
			require.Error(t, err)
			assert.Equal(t, tt.code, errs.CodeOf(err), "got %v", err)

			assert.NoError(t, before.Compare(f.snapshot(t)))
			assert.Equal(t, live, f.k.Len(), "no kernel objects leaked")
		})
	}
}

func TestApplyRevertIdentity(t *testing.T) {
	for _, s := range samples() {
		t.Run(string(s.tag), func(t *testing.T) {
			f := newFixture(t)
			op, err := Decode(string(s.tag), mustObject(t, s.params))
			require.NoError(t, err)

			before := f.snapshot(t)
			live := f.k.Len()

			undo, err := op.Apply(context.Background(), f.env)
			require.NoError(t, err)
			require.False(t, undo.Empty())
			assert.Error(t, before.Compare(f.snapshot(t)), "apply must change something")

			require.NoError(t, op.Revert(f.fw, undo))
			assert.NoError(t, before.Compare(f.snapshot(t)))
			assert.Equal(t, live, f.k.Len())
		})
	}
}

func TestKernelFailureLeavesRegistryUnchanged(t *testing.T) {
	f := newFixture(t)
	_, err := (&AddUnfRectGrid{Name: "inner", P0: Point{0.25, 0.25}, P1: Point{0.75, 0.75}, NX: 1, NY: 1}).
		Apply(context.Background(), f.env)
	require.NoError(t, err)
	before := f.snapshot(t)

	_, err = (&UniteGrids{Name: "u", Base: "g1", Others: []string{"inner"}}).Apply(context.Background(), f.env)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeKernelFailure), "got %v", err)
	assert.ErrorIs(t, err, kernel.ErrOverlap)
	assert.NoError(t, before.Compare(f.snapshot(t)))
}

func TestCancellationLeavesRegistryUnchanged(t *testing.T) {
	t.Run("interface", func(t *testing.T) {
		f := newFixture(t)
		f.ui.CancelAfter = 1
		before := f.snapshot(t)

		_, err := (&UniteGrids{Name: "u", Base: "g1", Others: []string{"g2"}}).Apply(context.Background(), f.env)
		assert.True(t, errs.Is(err, errs.CodeCancelled), "got %v", err)
		assert.NoError(t, before.Compare(f.snapshot(t)))
		assert.NotEmpty(t, f.ui.Progress())
	})

	t.Run("context", func(t *testing.T) {
		f := newFixture(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := (&ExtrudeGrid{Name: "e", Grid: "g1", Z: []float64{0, 1}}).Apply(ctx, f.env)
		assert.True(t, errs.Is(err, errs.CodeCancelled), "got %v", err)
		assert.False(t, f.fw.Contains(kernel.KindGrid3, "e"))
	})
}

func TestRemoveAsksForConfirmation(t *testing.T) {
	f := newFixture(t)
	f.ui.Answers = []bool{false}
	op := &RemoveGeom{Kind: kernel.KindGrid2, Names: []string{"g1"}}

	_, err := op.Apply(context.Background(), f.env)
	assert.True(t, errs.Is(err, errs.CodeCancelled))
	assert.True(t, f.fw.Contains(kernel.KindGrid2, "g1"))
	assert.Equal(t, []string{"remove grid2 g1?"}, f.ui.Prompts())

	_, err = op.Apply(context.Background(), f.env)
	require.NoError(t, err)
	assert.False(t, f.fw.Contains(kernel.KindGrid2, "g1"))
}

func TestRenameRevertRestoresPosition(t *testing.T) {
	f := newFixture(t)
	op := &RenameGeom{Kind: kernel.KindGrid2, Target: "g1", Name: "first"}

	undo, err := op.Apply(context.Background(), f.env)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "g2"}, f.fw.Names(kernel.KindGrid2))

	require.NoError(t, op.Revert(f.fw, undo))
	assert.Equal(t, []string{"g1", "g2"}, f.fw.Names(kernel.KindGrid2))
}

func TestOptionalParamsOmitted(t *testing.T) {
	p := (&AddRectContour{Name: "c", P0: Point{0, 0}, P1: Point{1, 1}}).Params()
	_, has := p["bt"]
	assert.False(t, has)

	p = (&AddCustomContour{Name: "c", Points: []Point{{0, 0}, {1, 0}}}).Params()
	_, has = p["closed"]
	assert.False(t, has)
}

func TestFailedRollbackIsLogged(t *testing.T) {
	f := newFixture(t)
	var buf bytes.Buffer
	env := f.env
	env.Logger = slog.New(slog.NewTextHandler(&buf, nil))

	tx := f.fw.Begin()
	_, err := tx.Remove(kernel.KindGrid2, "g1")
	require.NoError(t, err)
	// rebinding g1 behind the journal's back makes the rollback fail
	h, err := f.fw.Lookup(kernel.KindGrid2, "g2")
	require.NoError(t, err)
	require.NoError(t, f.fw.Register(kernel.KindGrid2, "g1", h))

	cause := errors.New("second name missing")
	got := rollback(env, TagRemoveGeom, tx, cause)
	assert.Same(t, cause, got)
	assert.Contains(t, buf.String(), "rollback failed")
	assert.Contains(t, buf.String(), "tag=remove_geom")
	assert.Contains(t, buf.String(), "cause=\"second name missing\"")
}

func TestRollbackRestoresPartialRemoval(t *testing.T) {
	f := newFixture(t)
	var buf bytes.Buffer
	env := f.env
	env.Logger = slog.New(slog.NewTextHandler(&buf, nil))
	before := f.snapshot(t)

	tx := f.fw.Begin()
	_, err := tx.Remove(kernel.KindGrid2, "g1")
	require.NoError(t, err)
	_, err = tx.Remove(kernel.KindGrid2, "missing")
	require.Error(t, err)
	assert.Equal(t, err, rollback(env, TagRemoveGeom, tx, err))

	assert.Equal(t, before, f.snapshot(t))
	assert.Empty(t, buf.String(), "a clean rollback logs nothing")
}
