package framework

import (
	"fmt"

	"github.com/roach88/meshflow/internal/errs"
	"github.com/roach88/meshflow/internal/ir"
	"github.com/roach88/meshflow/internal/kernel"
)

// SnapshotEntry is one serialized registry object.
type SnapshotEntry struct {
	Kind    kernel.Kind `json:"kind" yaml:"kind"`
	Name    string      `json:"name" yaml:"name"`
	Hash    string      `json:"hash" yaml:"hash"`
	Content ir.Object   `json:"content" yaml:"content"`
}

// Snapshot is an order-preserving dump of the whole registry.
type Snapshot struct {
	Entries []SnapshotEntry `json:"entries" yaml:"entries"`
}

// Snapshot dumps every object in registration order. It must only be
// called between operations.
func (f *Framework) Snapshot() (Snapshot, error) {
	entries := f.Entries()
	snap := Snapshot{Entries: make([]SnapshotEntry, 0, len(entries))}
	for _, e := range entries {
		t, err := f.kernel.Tables(e.Handle)
		if err != nil {
			return Snapshot{}, errs.KernelFailure(fmt.Errorf("dump %s: %w", e.Key, err)).WithOp("snapshot")
		}
		content := t.Object()
		hash, err := ir.ContentHash(string(e.Kind), content)
		if err != nil {
			return Snapshot{}, errs.KernelFailure(fmt.Errorf("hash %s: %w", e.Key, err)).WithOp("snapshot")
		}
		snap.Entries = append(snap.Entries, SnapshotEntry{
			Kind:    e.Kind,
			Name:    e.Name,
			Hash:    hash,
			Content: content,
		})
	}
	return snap, nil
}

// Restore replaces the registry with the snapshot's objects. Either every
// entry loads and the registry is swapped in one step, or the registry is
// left untouched, the partially loaded handles are released and a
// LoadError is returned. On success the handles of the replaced objects
// are released; undo data still referring to them can no longer be
// reverted.
func (f *Framework) Restore(s Snapshot) (err error) {
	bindings := make(map[Key]Binding, len(s.Entries))
	var loaded []kernel.Handle
	defer func() {
		if err == nil {
			return
		}
		for _, h := range loaded {
			_ = f.kernel.Release(h)
		}
	}()

	for i, e := range s.Entries {
		kind, err := kernel.ParseKind(string(e.Kind))
		if err != nil {
			return errs.LoadErrorWrap(err, "state entry %d", i)
		}
		key := Key{kind, e.Name}
		if e.Name == "" {
			return errs.LoadError("state entry %d has no name", i)
		}
		if _, dup := bindings[key]; dup {
			return errs.LoadError("state entry %d: duplicate %s", i, key)
		}
		hash, err := ir.ContentHash(string(kind), e.Content)
		if err != nil {
			return errs.LoadErrorWrap(err, "state entry %s", key)
		}
		if e.Hash != "" && hash != e.Hash {
			return errs.LoadError("state entry %s: content hash mismatch", key)
		}
		t, err := kernel.TablesFromObject(kind, e.Content)
		if err != nil {
			return errs.LoadErrorWrap(err, "state entry %s", key)
		}
		h, err := f.kernel.Load(t)
		if err != nil {
			return errs.LoadErrorWrap(err, "state entry %s", key)
		}
		loaded = append(loaded, h)
		bindings[key] = Binding{Handle: h, Seq: int64(i + 1)}
	}

	replaced := f.bindings
	f.bindings = bindings
	f.seq = int64(len(s.Entries))
	f.rev.Next()

	// the previous objects are no longer reachable through the registry
	released := map[kernel.Handle]bool{}
	for _, b := range replaced {
		if released[b.Handle] {
			continue
		}
		released[b.Handle] = true
		if err := f.kernel.Release(b.Handle); err != nil {
			f.logger.Debug("release skipped", "handle", b.Handle, "error", err)
		}
	}
	f.logger.Debug("restored", "entries", len(s.Entries), "replaced", len(replaced))
	return nil
}

// Compare reports the first difference between two snapshots by position,
// kind, name and content hash, or nil when they are observably identical.
func (s Snapshot) Compare(other Snapshot) error {
	if len(s.Entries) != len(other.Entries) {
		return fmt.Errorf("%d objects vs %d", len(s.Entries), len(other.Entries))
	}
	for i, a := range s.Entries {
		b := other.Entries[i]
		switch {
		case a.Kind != b.Kind || a.Name != b.Name:
			return fmt.Errorf("position %d: %s:%s vs %s:%s", i, a.Kind, a.Name, b.Kind, b.Name)
		case a.Hash != b.Hash:
			return fmt.Errorf("position %d: %s:%s content differs", i, a.Kind, a.Name)
		}
	}
	return nil
}
