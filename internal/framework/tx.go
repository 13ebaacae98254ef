package framework

import (
	"fmt"

	"github.com/roach88/meshflow/internal/errs"
	"github.com/roach88/meshflow/internal/kernel"
)

// Change records one key's binding before and after a registry call.
// A nil Before marks a name the call created; a nil After marks a name it
// removed.
type Change struct {
	Key    Key
	Before *Binding
	After  *Binding
}

// UndoData is the journal an applied operation keeps so it can be reverted.
type UndoData struct {
	Changes []Change
}

// Empty reports whether the journal records no changes.
func (u *UndoData) Empty() bool { return u == nil || len(u.Changes) == 0 }

// Tx journals the registry calls of one operation. Calls take effect
// immediately; Rollback undoes them, Commit hands the journal over as undo
// data.
type Tx struct {
	fw      *Framework
	changes []Change
	done    bool
}

// Begin starts a journal. Exactly one of Commit or Rollback must follow.
func (f *Framework) Begin() *Tx {
	return &Tx{fw: f}
}

func (tx *Tx) record(key Key, before, after *Binding) {
	tx.changes = append(tx.changes, Change{Key: key, Before: before, After: after})
}

// Lookup reads through to the framework.
func (tx *Tx) Lookup(kind kernel.Kind, name string) (kernel.Handle, error) {
	return tx.fw.Lookup(kind, name)
}

func (tx *Tx) Register(kind kernel.Kind, name string, h kernel.Handle) error {
	if err := tx.fw.Register(kind, name, h); err != nil {
		return err
	}
	key := Key{kind, name}
	tx.record(key, nil, tx.fw.binding(key))
	return nil
}

func (tx *Tx) Remove(kind kernel.Kind, name string) (kernel.Handle, error) {
	key := Key{kind, name}
	before := tx.fw.binding(key)
	h, err := tx.fw.Remove(kind, name)
	if err != nil {
		return 0, err
	}
	tx.record(key, before, nil)
	return h, nil
}

func (tx *Tx) Rename(kind kernel.Kind, oldName, newName string) error {
	oldKey, newKey := Key{kind, oldName}, Key{kind, newName}
	before := tx.fw.binding(oldKey)
	if err := tx.fw.Rename(kind, oldName, newName); err != nil {
		return err
	}
	tx.record(oldKey, before, nil)
	tx.record(newKey, nil, tx.fw.binding(newKey))
	return nil
}

func (tx *Tx) Replace(kind kernel.Kind, name string, h kernel.Handle) (kernel.Handle, error) {
	key := Key{kind, name}
	before := tx.fw.binding(key)
	prev, err := tx.fw.Replace(kind, name, h)
	if err != nil {
		return 0, err
	}
	tx.record(key, before, tx.fw.binding(key))
	return prev, nil
}

// Commit ends the journal and returns it as undo data.
func (tx *Tx) Commit() *UndoData {
	tx.done = true
	return &UndoData{Changes: tx.changes}
}

// Rollback restores every binding the journal touched and releases the
// handles it introduced. Calling it after Commit or twice is a no-op.
func (tx *Tx) Rollback() error {
	if tx.done {
		return nil
	}
	tx.done = true
	if len(tx.changes) == 0 {
		return nil
	}
	return tx.fw.Revert(&UndoData{Changes: tx.changes})
}

// Revert undoes a journal. Every key must still hold the binding the
// journal left it with; otherwise nothing is changed and InvalidState is
// returned. Handles that only the reverted side referenced are released.
func (f *Framework) Revert(u *UndoData) error {
	if u == nil {
		return errs.InvalidStateErr(errs.ErrNoUndoData).WithOp("revert")
	}

	target := map[Key]*Binding{}
	current := func(k Key) *Binding {
		if b, ok := target[k]; ok {
			return b
		}
		return f.binding(k)
	}
	for i := len(u.Changes) - 1; i >= 0; i-- {
		c := u.Changes[i]
		if !sameBinding(current(c.Key), c.After) {
			return errs.InvalidState("registry entry %s changed since the operation was applied", c.Key).WithOp("revert")
		}
		target[c.Key] = c.Before
	}

	restored := map[kernel.Handle]bool{}
	for k, b := range target {
		if b == nil {
			delete(f.bindings, k)
			continue
		}
		f.bindings[k] = *b
		restored[b.Handle] = true
	}
	f.rev.Next()

	for _, c := range u.Changes {
		if c.After == nil || restored[c.After.Handle] || f.bound(c.After.Handle) {
			continue
		}
		if err := f.kernel.Release(c.After.Handle); err != nil {
			// already released by an earlier change in the same journal
			f.logger.Debug("release skipped", "handle", c.After.Handle, "error", err)
		}
		restored[c.After.Handle] = true
	}
	f.logger.Debug("reverted", "changes", len(u.Changes))
	return nil
}

// ReleaseJournals frees every handle the journals reference that the
// registry no longer binds: objects removed or replaced by the recorded
// operations. It is meant for sessions being discarded; the journals must
// not be reverted afterwards. It returns how many handles were released.
func (f *Framework) ReleaseJournals(journals ...*UndoData) int {
	seen := map[kernel.Handle]bool{}
	n := 0
	for _, u := range journals {
		if u == nil {
			continue
		}
		for _, c := range u.Changes {
			for _, b := range [...]*Binding{c.Before, c.After} {
				if b == nil || seen[b.Handle] {
					continue
				}
				seen[b.Handle] = true
				if f.bound(b.Handle) {
					continue
				}
				if err := f.kernel.Release(b.Handle); err != nil {
					f.logger.Debug("release skipped", "handle", b.Handle, "error", err)
					continue
				}
				n++
			}
		}
	}
	return n
}

func (f *Framework) bound(h kernel.Handle) bool {
	for _, b := range f.bindings {
		if b.Handle == h {
			return true
		}
	}
	return false
}

func sameBinding(a, b *Binding) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// String renders a change for logs and test failures.
func (c Change) String() string {
	show := func(b *Binding) string {
		if b == nil {
			return "-"
		}
		return fmt.Sprintf("#%d@%d", b.Handle, b.Seq)
	}
	return fmt.Sprintf("%s %s->%s", c.Key, show(c.Before), show(c.After))
}
