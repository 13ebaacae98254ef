package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/meshflow/internal/flow"
	"github.com/roach88/meshflow/internal/framework"
	"github.com/roach88/meshflow/internal/kernel"
	"github.com/roach88/meshflow/internal/ops"
	"github.com/roach88/meshflow/internal/project"
	"github.com/roach88/meshflow/internal/testutil"
)

// createTestStore opens a store in a fresh temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestDocument runs a two-grid flow and encodes it, with state when
// withState is set.
func createTestDocument(t *testing.T, id string, withState bool) *project.Document {
	t.Helper()
	fw := framework.New(kernel.NewReference())
	f := flow.FromLog([]ops.Operation{
		&ops.AddUnfRectGrid{Name: "g1", P0: ops.Point{0, 0}, P1: ops.Point{1, 1}, NX: 2, NY: 1},
		&ops.AddRectContour{Name: "box", P0: ops.Point{0, 0}, P1: ops.Point{0.5, 0.5}, BT: &[4]int{1, 2, 3, 4}},
	})
	if err := f.SetReceiver(fw); err != nil {
		t.Fatalf("SetReceiver() failed: %v", err)
	}
	if err := f.SetInterface(testutil.NewRecordingUI()); err != nil {
		t.Fatalf("SetInterface() failed: %v", err)
	}
	if err := f.ExecAll(context.Background()); err != nil {
		t.Fatalf("ExecAll() failed: %v", err)
	}

	var snapshotOf *framework.Framework
	if withState {
		snapshotOf = fw
	}
	doc, err := project.Encode(id, f, snapshotOf)
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}
	return doc
}
