package flow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/roach88/meshflow/internal/errs"
	"github.com/roach88/meshflow/internal/framework"
	"github.com/roach88/meshflow/internal/kernel"
	"github.com/roach88/meshflow/internal/ops"
	"github.com/roach88/meshflow/internal/testutil"
)

func rect(name string, x0 float64) ops.Operation {
	return &ops.AddUnfRectGrid{Name: name, P0: ops.Point{x0, 0}, P1: ops.Point{x0 + 1, 1}, NX: 2, NY: 2}
}

// program is a valid sequence touching every registry mutation.
func program() []ops.Operation {
	side := 9
	return []ops.Operation{
		rect("g1", 0),
		rect("g2", 1),
		&ops.AddRectContour{Name: "hole", P0: ops.Point{0.4, 0.1}, P1: ops.Point{0.9, 0.9}},
		&ops.UniteGrids{Name: "g3", Base: "g1", Others: []string{"g2"}},
		&ops.ExcludeContours{Name: "cut", Grid: "g3", Contour: "hole", What: "inner"},
		&ops.SetBoundaryType{Kind: kernel.KindGrid2, Target: "cut", BT: 4},
		&ops.ExtrudeGrid{Name: "slab", Grid: "cut", Z: []float64{0, 0.5, 1}, Bottom: 1, Top: 2, Side: &side},
		&ops.MoveGeom{Kind: kernel.KindContour2, Target: "hole", DX: 5, DY: 0},
		&ops.RenameGeom{Kind: kernel.KindGrid2, Target: "g2", Name: "right"},
		&ops.RemoveGeom{Kind: kernel.KindGrid2, Names: []string{"g1"}},
	}
}

type fixture struct {
	fw   *framework.Framework
	k    *kernel.Reference
	ui   *testutil.RecordingUI
	flow *CommandFlow
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	k := kernel.NewReference()
	f := &fixture{k: k, fw: framework.New(k), ui: testutil.NewRecordingUI()}
	f.flow = New(opts...)
	require.NoError(t, f.flow.SetReceiver(f.fw))
	require.NoError(t, f.flow.SetInterface(f.ui))
	return f
}

func (f *fixture) bind(t *testing.T, cf *CommandFlow) {
	t.Helper()
	require.NoError(t, cf.SetReceiver(f.fw))
	require.NoError(t, cf.SetInterface(f.ui))
	f.flow = cf
}

func snapshot(t *testing.T, fw *framework.Framework) framework.Snapshot {
	t.Helper()
	s, err := fw.Snapshot()
	require.NoError(t, err)
	return s
}

func TestExecAllMatchesAppendAndApply(t *testing.T) {
	ctx := context.Background()

	one := newFixture(t)
	for _, op := range program() {
		require.NoError(t, one.flow.AppendAndApply(ctx, op))
	}

	batch := newFixture(t)
	batch.bind(t, FromLog(program()))
	require.NoError(t, batch.flow.ExecAll(ctx))

	assert.Equal(t, len(program()), batch.flow.Applied())
	assert.Equal(t, Idle, batch.flow.State())
	assert.NoError(t, snapshot(t, one.fw).Compare(snapshot(t, batch.fw)))
}

func TestUndoRestoresPreviousState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for _, op := range program() {
		before := snapshot(t, f.fw)
		require.NoError(t, f.flow.AppendAndApply(ctx, op))
		require.NoError(t, f.flow.Undo(ctx))
		assert.NoError(t, before.Compare(snapshot(t, f.fw)), "undo of %s", op.Tag())
		require.NoError(t, f.flow.Redo(ctx))
	}
}

func TestUndoRedoIsNoOp(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for _, op := range program() {
		require.NoError(t, f.flow.AppendAndApply(ctx, op))
		after := snapshot(t, f.fw)

		require.NoError(t, f.flow.Undo(ctx))
		require.NoError(t, f.flow.Redo(ctx))
		assert.NoError(t, after.Compare(snapshot(t, f.fw)), "undo/redo of %s", op.Tag())
	}
	assert.Equal(t, len(program()), f.flow.Len())
}

func TestUndoAllThenRedoAll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for _, op := range program() {
		require.NoError(t, f.flow.AppendAndApply(ctx, op))
	}
	final := snapshot(t, f.fw)
	live := f.k.Len()

	for f.flow.CanUndo() {
		require.NoError(t, f.flow.Undo(ctx))
	}
	assert.Equal(t, 0, f.flow.Applied())
	assert.Zero(t, f.fw.Len())
	assert.Zero(t, f.k.Len(), "every handle created by the flow is released")

	for f.flow.CanRedo() {
		require.NoError(t, f.flow.Redo(ctx))
	}
	assert.NoError(t, final.Compare(snapshot(t, f.fw)))
	assert.Equal(t, live, f.k.Len())
}

func TestAppendAfterUndoDiscardsRedo(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.flow.AppendAndApply(ctx, rect("g1", 0)))
	require.NoError(t, f.flow.AppendAndApply(ctx, rect("g2", 1)))
	require.NoError(t, f.flow.Undo(ctx))
	assert.True(t, f.flow.CanRedo())

	require.NoError(t, f.flow.AppendAndApply(ctx, rect("g4", 5)))

	assert.Equal(t, 2, f.flow.Len())
	assert.Equal(t, 2, f.flow.Applied())
	err := f.flow.Redo(ctx)
	assert.ErrorIs(t, err, errs.ErrNothingToRedo)
	assert.True(t, errs.Is(err, errs.CodeInvalidState))
	assert.Equal(t, []string{"g1", "g4"}, f.fw.Names(kernel.KindGrid2))
}

func TestUniteUndoRedoScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.flow.AppendAndApply(ctx, rect("g1", 0)))
	require.NoError(t, f.flow.AppendAndApply(ctx, rect("g2", 1)))
	sources := snapshot(t, f.fw)

	require.NoError(t, f.flow.AppendAndApply(ctx, &ops.UniteGrids{Name: "g3", Base: "g1", Others: []string{"g2"}}))
	united := snapshot(t, f.fw)
	require.Len(t, united.Entries, 3)

	require.NoError(t, f.flow.Undo(ctx))
	assert.False(t, f.fw.Contains(kernel.KindGrid2, "g3"))
	assert.NoError(t, sources.Compare(snapshot(t, f.fw)), "g1 and g2 unchanged")

	require.NoError(t, f.flow.Redo(ctx))
	assert.NoError(t, united.Compare(snapshot(t, f.fw)), "g3 identical to before undo")
}

func TestExecAllHaltsOnDuplicate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.bind(t, FromLog([]ops.Operation{rect("g1", 0), rect("g1", 10)}))

	err := f.flow.ExecAll(ctx)
	require.Error(t, err)

	ee, ok := AsExecError(err)
	require.True(t, ok)
	assert.Equal(t, 1, ee.Index)
	assert.Equal(t, ops.TagAddUnfRectGrid, ee.Tag)
	assert.True(t, errs.Is(err, errs.CodeNameCollision))

	assert.Equal(t, Halted, f.flow.State())
	assert.Equal(t, 1, f.flow.Applied())
	assert.Equal(t, 2, f.flow.Len())

	// exactly the first g1
	assert.Equal(t, 1, f.fw.Len())
	tables, err := f.fw.Tables(kernel.KindGrid2, "g1")
	require.NoError(t, err)
	assert.Equal(t, 0.0, tables.Float["vert"][0])

	failures := f.ui.Failures()
	require.Len(t, failures, 1)
	assert.True(t, errs.Is(failures[0], errs.CodeNameCollision))
}

func TestHaltedFlowRefusesToProceed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.bind(t, FromLog([]ops.Operation{rect("g1", 0), rect("g1", 10)}))
	require.Error(t, f.flow.ExecAll(ctx))

	assert.True(t, errs.Is(f.flow.ExecAll(ctx), errs.CodeInvalidState))
	assert.True(t, errs.Is(f.flow.AppendAndApply(ctx, rect("g2", 1)), errs.CodeInvalidState))
	assert.True(t, errs.Is(f.flow.Redo(ctx), errs.CodeInvalidState))

	// undo never moves forward, so it stays available
	require.NoError(t, f.flow.Undo(ctx))
	assert.Equal(t, Halted, f.flow.State())

	f.flow.Resume()
	assert.Equal(t, Idle, f.flow.State())
	require.NoError(t, f.flow.Redo(ctx))
	assert.Equal(t, 1, f.flow.Applied())
}

func TestAppendAndApplyRejectsFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.flow.AppendAndApply(ctx, rect("g1", 0)))
	require.NoError(t, f.flow.AppendAndApply(ctx, rect("g2", 1)))
	require.NoError(t, f.flow.Undo(ctx))
	before := snapshot(t, f.fw)

	err := f.flow.AppendAndApply(ctx, &ops.UniteGrids{Name: "u", Base: "g1", Others: []string{"missing"}})
	assert.True(t, errs.Is(err, errs.CodeNotFound))

	assert.Equal(t, Idle, f.flow.State())
	assert.Equal(t, 2, f.flow.Len(), "log unchanged, redo branch kept")
	assert.Equal(t, 1, f.flow.Applied())
	assert.True(t, f.flow.CanRedo())
	assert.NoError(t, before.Compare(snapshot(t, f.fw)))
	assert.Len(t, f.ui.Failures(), 1)

	require.NoError(t, f.flow.Redo(ctx))
}

func TestHaltOnFailureOption(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithHaltOnFailure())
	require.NoError(t, f.flow.AppendAndApply(ctx, rect("g1", 0)))

	err := f.flow.AppendAndApply(ctx, rect("g1", 3))
	assert.True(t, errs.Is(err, errs.CodeNameCollision))
	assert.Equal(t, Halted, f.flow.State())
	assert.Equal(t, 1, f.flow.Len())

	assert.True(t, errs.Is(f.flow.AppendAndApply(ctx, rect("g2", 1)), errs.CodeInvalidState))
}

func TestCancelledOperationRollsBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.flow.AppendAndApply(ctx, rect("g1", 0)))
	require.NoError(t, f.flow.AppendAndApply(ctx, rect("g2", 1)))
	before := snapshot(t, f.fw)
	f.ui.CancelAfter = 1

	err := f.flow.AppendAndApply(ctx, &ops.UniteGrids{Name: "g3", Base: "g1", Others: []string{"g2"}})
	assert.True(t, errs.Is(err, errs.CodeCancelled), "got %v", err)
	assert.Equal(t, Idle, f.flow.State())
	assert.Equal(t, 2, f.flow.Len())
	assert.NoError(t, before.Compare(snapshot(t, f.fw)))
}

func TestUndoRedoBounds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	err := f.flow.Undo(ctx)
	assert.ErrorIs(t, err, errs.ErrNothingToUndo)
	assert.True(t, errs.Is(err, errs.CodeInvalidState))

	err = f.flow.Redo(ctx)
	assert.ErrorIs(t, err, errs.ErrNothingToRedo)
}

func TestRebindingAfterApplyIsRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// rebinding before anything ran is fine
	require.NoError(t, f.flow.SetReceiver(f.fw))
	require.NoError(t, f.flow.SetInterface(f.ui))

	// a rejected operation does not count as applied
	require.Error(t, f.flow.AppendAndApply(ctx, &ops.CopyGeom{Kind: kernel.KindGrid2, Source: "nope", Name: "x"}))
	require.NoError(t, f.flow.SetReceiver(f.fw))

	require.NoError(t, f.flow.AppendAndApply(ctx, rect("g1", 0)))
	other := framework.New(kernel.NewReference())
	assert.True(t, errs.Is(f.flow.SetReceiver(other), errs.CodeInvalidState))
	assert.True(t, errs.Is(f.flow.SetInterface(testutil.NewRecordingUI()), errs.CodeInvalidState))
	assert.Same(t, f.fw, f.flow.Receiver())
}

func TestUnboundFlowIsInvalidState(t *testing.T) {
	cf := New()
	err := cf.AppendAndApply(context.Background(), rect("g1", 0))
	assert.True(t, errs.Is(err, errs.CodeInvalidState))
	assert.Zero(t, cf.Len())
}

func TestFlowRequiresInterface(t *testing.T) {
	ctx := context.Background()
	k := kernel.NewReference()
	fw := framework.New(k)
	cf := FromLog([]ops.Operation{rect("g1", 0)})
	require.NoError(t, cf.SetReceiver(fw))
	assert.Nil(t, cf.Interface())

	err := cf.ExecAll(ctx)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeInvalidState))
	assert.Contains(t, err.Error(), "no interface bound")
	assert.Zero(t, cf.Applied())
	assert.Zero(t, fw.Len())
	assert.True(t, errs.Is(cf.AppendAndApply(ctx, rect("g2", 0)), errs.CodeInvalidState))

	u := testutil.NewRecordingUI()
	require.NoError(t, cf.SetInterface(u))
	assert.Same(t, u, cf.Interface())
	require.NoError(t, cf.ExecAll(ctx))
	assert.Equal(t, 1, fw.Len())
}

func TestForeignMutationIsDetected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.flow.AppendAndApply(ctx, rect("g1", 0)))

	h, err := f.fw.Kernel().RectGrid(kernel.Point{X: 5, Y: 5}, kernel.Point{X: 6, Y: 6}, 1, 1)
	require.NoError(t, err)
	require.NoError(t, f.fw.Register(kernel.KindGrid2, "stray", h))

	assert.True(t, errs.Is(f.flow.Undo(ctx), errs.CodeInvalidState))
	assert.True(t, errs.Is(f.flow.AppendAndApply(ctx, rect("g2", 1)), errs.CodeInvalidState))
	assert.Equal(t, 1, f.flow.Applied())
}

func TestMarkAppliedAfterRestore(t *testing.T) {
	ctx := context.Background()
	src := newFixture(t)
	log := []ops.Operation{rect("g1", 0), rect("g2", 1)}
	src.bind(t, FromLog(log))
	require.NoError(t, src.flow.ExecAll(ctx))
	snap := snapshot(t, src.fw)

	dst := newFixture(t)
	require.NoError(t, dst.fw.Restore(snap))
	dst.bind(t, FromLog(log))
	require.NoError(t, dst.flow.MarkApplied())

	assert.Equal(t, 2, dst.flow.Applied())
	assert.False(t, dst.flow.CanUndo())
	assert.ErrorIs(t, dst.flow.Undo(ctx), errs.ErrNoUndoData)

	// new work on top of a restored flow is undoable as usual
	require.NoError(t, dst.flow.AppendAndApply(ctx, rect("g3", 2)))
	require.NoError(t, dst.flow.Undo(ctx))
	assert.NoError(t, snap.Compare(snapshot(t, dst.fw)))

	assert.True(t, errs.Is(dst.flow.SetReceiver(src.fw), errs.CodeInvalidState))
}

func TestOperationsAccessors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	log := program()[:3]
	f.bind(t, FromLog(log))

	assert.Equal(t, log, f.flow.Operations())
	assert.Empty(t, f.flow.AppliedOperations())

	require.NoError(t, f.flow.ExecAll(ctx))
	assert.Equal(t, log, f.flow.AppliedOperations())
	assert.Equal(t, "idle", f.flow.State().String())
	assert.Equal(t, "halted", Halted.String())
}

func TestSpansRecorded(t *testing.T) {
	ctx := context.Background()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	f := newFixture(t, WithTracerProvider(tp))
	require.NoError(t, f.flow.AppendAndApply(ctx, rect("g1", 0)))
	require.Error(t, f.flow.AppendAndApply(ctx, rect("g1", 0)))
	require.NoError(t, f.flow.Undo(ctx))
	require.NoError(t, f.flow.Redo(ctx))

	spans := sr.Ended()
	require.Len(t, spans, 4)
	names := make([]string, len(spans))
	for i, s := range spans {
		names[i] = s.Name()
	}
	assert.Equal(t, []string{"meshflow.apply", "meshflow.apply", "meshflow.undo", "meshflow.redo"}, names)
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}

func TestExecErrorUnwraps(t *testing.T) {
	inner := errs.NameCollision("grid2", "g1")
	err := error(&ExecError{Index: 3, Tag: ops.TagCopyGeom, Err: inner})

	assert.Equal(t, `operation 3 (copy_geom): `+inner.Error(), err.Error())
	assert.True(t, errors.Is(err, inner))
	_, ok := AsExecError(errors.New("plain"))
	assert.False(t, ok)
}

func TestOperationCounters(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	f := newFixture(t, WithMeterProvider(mp))
	require.NoError(t, f.flow.AppendAndApply(ctx, rect("g1", 0)))
	require.Error(t, f.flow.AppendAndApply(ctx, rect("g1", 0)))
	require.NoError(t, f.flow.Undo(ctx))
	require.NoError(t, f.flow.Redo(ctx))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	totals := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, m.Name)
			for _, dp := range sum.DataPoints {
				totals[m.Name] += dp.Value
			}
		}
	}
	assert.Equal(t, map[string]int64{
		"meshflow.operations.applied": 2,
		"meshflow.operations.failed":  1,
		"meshflow.operations.undone":  1,
		"meshflow.operations.redone":  1,
	}, totals)
}

func TestCloseReleasesUndoHeldObjects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.flow.AppendAndApply(ctx, rect("g1", 0)))
	require.NoError(t, f.flow.AppendAndApply(ctx, rect("g2", 1)))
	require.NoError(t, f.flow.AppendAndApply(ctx, &ops.RemoveGeom{Kind: kernel.KindGrid2, Names: []string{"g1"}}))
	assert.Equal(t, 2, f.k.Len(), "removed grid is kept alive for undo")

	require.NoError(t, f.flow.Close())
	assert.Equal(t, 1, f.k.Len())
	assert.Equal(t, 1, f.fw.Len())
	assert.False(t, f.flow.CanUndo())
	assert.Equal(t, 3, f.flow.Applied())

	// closing twice has nothing left to release
	require.NoError(t, f.flow.Close())
	assert.Equal(t, 1, f.k.Len())
}

func TestCloseUnboundFlow(t *testing.T) {
	assert.NoError(t, New().Close())
}
