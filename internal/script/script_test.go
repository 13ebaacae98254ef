package script

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/meshflow/internal/errs"
	"github.com/roach88/meshflow/internal/flow"
	"github.com/roach88/meshflow/internal/framework"
	"github.com/roach88/meshflow/internal/kernel"
	"github.com/roach88/meshflow/internal/ops"
	"github.com/roach88/meshflow/internal/testutil"
)

func newInterpreter(t *testing.T) (*Interpreter, *flow.CommandFlow, *framework.Framework) {
	t.Helper()
	fw := framework.New(kernel.NewReference())
	f := flow.New()
	require.NoError(t, f.SetReceiver(fw))
	require.NoError(t, f.SetInterface(testutil.NewRecordingUI()))
	return New(f), f, fw
}

const uniteScript = `
hm.add_unf_rect_grid{name = "g1", p0 = {0, 0}, p1 = {1, 1}, nx = 2, ny = 2}
hm.add_unf_rect_grid{name = "g2", p0 = {1, 0}, p1 = {2, 1}, nx = 2, ny = 2}
hm.unite_grids{name = "g3", base = "g1", others = {"g2"}}
hm.move_geom{kind = "grid2", target = "g3", dx = 0.5, dy = 0}
hm.undo()
hm.redo()
`

func TestRunStringBuildsFlow(t *testing.T) {
	in, f, fw := newInterpreter(t)

	require.NoError(t, in.RunString(context.Background(), "unite", uniteScript))

	assert.Equal(t, 4, f.Len())
	assert.Equal(t, 4, f.Applied())
	assert.Equal(t, []string{"g1", "g2", "g3"}, fw.Names(kernel.KindGrid2))

	tags := make([]ops.Tag, 0, f.Len())
	for _, op := range f.Operations() {
		tags = append(tags, op.Tag())
	}
	assert.Equal(t, []ops.Tag{ops.TagAddUnfRectGrid, ops.TagAddUnfRectGrid, ops.TagUniteGrids, ops.TagMoveGeom}, tags)

	move, ok := f.Operations()[3].(*ops.MoveGeom)
	require.True(t, ok)
	assert.Equal(t, 0.5, move.DX)
}

func TestScriptMatchesExecAll(t *testing.T) {
	in, f, fw := newInterpreter(t)
	require.NoError(t, in.RunString(context.Background(), "unite", uniteScript))
	want, err := fw.Snapshot()
	require.NoError(t, err)

	replayFW := framework.New(kernel.NewReference())
	replay := flow.FromLog(f.Operations())
	require.NoError(t, replay.SetReceiver(replayFW))
	require.NoError(t, replay.SetInterface(testutil.NewRecordingUI()))
	require.NoError(t, replay.ExecAll(context.Background()))

	got, err := replayFW.Snapshot()
	require.NoError(t, err)
	assert.NoError(t, want.Compare(got))
}

func TestNamesReturnsSequence(t *testing.T) {
	in, _, _ := newInterpreter(t)

	src := `
hm.add_rect_contour{name = "b", p0 = {0, 0}, p1 = {1, 1}}
hm.add_rect_contour{name = "a", p0 = {0, 0}, p1 = {1, 1}, bt = {1, 2, 3, 4}}
local names = hm.names("contour2")
assert(#names == 2, "two contours")
assert(names[1] == "b" and names[2] == "a", "registration order")
assert(#hm.names("grid3") == 0, "no solids")
`
	require.NoError(t, in.RunString(context.Background(), "names", src))
}

func TestFailureStopsScript(t *testing.T) {
	in, f, fw := newInterpreter(t)

	src := `
hm.add_unf_rect_grid{name = "g1", p0 = {0, 0}, p1 = {1, 1}, nx = 1, ny = 1}
hm.add_unf_rect_grid{name = "g1", p0 = {0, 0}, p1 = {1, 1}, nx = 1, ny = 1}
hm.add_unf_rect_grid{name = "never", p0 = {0, 0}, p1 = {1, 1}, nx = 1, ny = 1}
`
	err := in.RunString(context.Background(), "dup", src)
	require.Error(t, err)

	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "dup", serr.Script)
	assert.Contains(t, serr.Message, "g1")
	assert.True(t, errs.Is(err, errs.CodeNameCollision), "got %v", err)

	assert.Equal(t, 1, f.Len(), "failed operation is not logged")
	assert.Equal(t, []string{"g1"}, fw.Names(kernel.KindGrid2))
}

func TestRejectsBadParams(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code errs.Code
	}{
		{"wrong type", `hm.add_unf_rect_grid{name = "g1", p0 = {0, 0}, p1 = {1, 1}, nx = "two", ny = 1}`, errs.CodeInvalidArgument},
		{"unknown field", `hm.rename_geom{kind = "grid2", target = "a", name = "b", extra = 1}`, errs.CodeInvalidArgument},
		{"missing object", `hm.remove_geom{kind = "grid2", names = {"nope"}}`, errs.CodeNotFound},
		{"nothing to undo", `hm.undo()`, errs.CodeInvalidState},
		{"nothing to redo", `hm.redo()`, errs.CodeInvalidState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, f, _ := newInterpreter(t)
			err := in.RunString(context.Background(), tt.name, tt.src)
			assert.True(t, errs.Is(err, tt.code), "got %v", err)
			assert.Zero(t, f.Len())
		})
	}
}

func TestPcallRecoversFromFailure(t *testing.T) {
	in, f, _ := newInterpreter(t)

	src := `
local ok = pcall(hm.remove_geom, {kind = "grid2", names = {"ghost"}})
assert(not ok, "remove of a missing grid fails")
hm.add_unf_rect_grid{name = "ghost", p0 = {0, 0}, p1 = {1, 1}, nx = 1, ny = 1}
`
	require.NoError(t, in.RunString(context.Background(), "pcall", src))
	assert.Equal(t, 1, f.Len())
}

func TestSyntaxErrorIsLoadError(t *testing.T) {
	in, _, _ := newInterpreter(t)

	err := in.RunString(context.Background(), "broken", "hm.undo(")
	assert.True(t, errs.Is(err, errs.CodeLoadError), "got %v", err)
}

func TestBadKindRaises(t *testing.T) {
	in, _, _ := newInterpreter(t)

	err := in.RunString(context.Background(), "kind", `hm.names("mesh")`)
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Nil(t, serr.Err)
	assert.Contains(t, serr.Message, "mesh")
}

func TestRunFile(t *testing.T) {
	in, f, _ := newInterpreter(t)

	path := filepath.Join(t.TempDir(), "build.lua")
	require.NoError(t, os.WriteFile(path, []byte(uniteScript), 0o644))

	require.NoError(t, in.RunFile(context.Background(), path))
	assert.Equal(t, 4, f.Len())

	err := in.RunFile(context.Background(), filepath.Join(t.TempDir(), "missing.lua"))
	assert.True(t, errs.Is(err, errs.CodeLoadError), "got %v", err)
}

func TestUnboundFlow(t *testing.T) {
	in := New(flow.New())
	err := in.RunString(context.Background(), "x", "")
	assert.True(t, errs.Is(err, errs.CodeInvalidState))
}
