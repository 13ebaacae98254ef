// Package framework is the registry of named geometric objects.
//
// A Framework maps (kind, name) to an opaque kernel handle. It never looks
// inside a handle; content only becomes visible through the kernel's table
// contract in Snapshot and Tables. Registration order is part of the
// observable state and survives rename, replace and undo.
//
// A Framework is not safe for concurrent use. The command flow serializes
// every access.
package framework

import (
	"log/slog"
	"slices"

	"github.com/roach88/meshflow/internal/errs"
	"github.com/roach88/meshflow/internal/kernel"
)

// Key identifies a registry entry.
type Key struct {
	Kind kernel.Kind `json:"kind" yaml:"kind"`
	Name string      `json:"name" yaml:"name"`
}

func (k Key) String() string { return string(k.Kind) + ":" + k.Name }

// Binding is what a key maps to: the handle and its registration ordinal.
type Binding struct {
	Handle kernel.Handle
	Seq    int64
}

// Entry is one registry row in registration order.
type Entry struct {
	Key
	Handle kernel.Handle
}

// Framework is the object registry.
type Framework struct {
	kernel   kernel.Kernel
	bindings map[Key]Binding
	seq      int64
	rev      Revision
	logger   *slog.Logger
}

// Option configures a Framework.
type Option func(*Framework)

// WithLogger sets the logger used for registry events.
func WithLogger(l *slog.Logger) Option {
	return func(f *Framework) { f.logger = l }
}

// New creates an empty registry over k.
func New(k kernel.Kernel, opts ...Option) *Framework {
	f := &Framework{
		kernel:   k,
		bindings: map[Key]Binding{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Kernel returns the kernel that issued every handle in the registry.
func (f *Framework) Kernel() kernel.Kernel { return f.kernel }

// Revision returns the current change counter.
func (f *Framework) Revision() int64 { return f.rev.Current() }

// Len returns the number of registered objects.
func (f *Framework) Len() int { return len(f.bindings) }

// Register binds name to h. Fails with NameCollision if the name is taken
// for kind.
func (f *Framework) Register(kind kernel.Kind, name string, h kernel.Handle) error {
	key := Key{kind, name}
	if _, ok := f.bindings[key]; ok {
		return errs.NameCollision(string(kind), name).WithOp("register")
	}
	f.seq++
	f.bindings[key] = Binding{Handle: h, Seq: f.seq}
	f.rev.Next()
	f.logger.Debug("registered", "key", key.String(), "handle", h)
	return nil
}

// Lookup returns the handle bound to name.
func (f *Framework) Lookup(kind kernel.Kind, name string) (kernel.Handle, error) {
	b, ok := f.bindings[Key{kind, name}]
	if !ok {
		return 0, errs.NotFound(string(kind), name).WithOp("lookup")
	}
	return b.Handle, nil
}

// Contains reports whether name is bound for kind.
func (f *Framework) Contains(kind kernel.Kind, name string) bool {
	_, ok := f.bindings[Key{kind, name}]
	return ok
}

// Remove unbinds name and hands the handle back to the caller, which
// becomes responsible for it.
func (f *Framework) Remove(kind kernel.Kind, name string) (kernel.Handle, error) {
	key := Key{kind, name}
	b, ok := f.bindings[key]
	if !ok {
		return 0, errs.NotFound(string(kind), name).WithOp("remove")
	}
	delete(f.bindings, key)
	f.rev.Next()
	f.logger.Debug("removed", "key", key.String(), "handle", b.Handle)
	return b.Handle, nil
}

// Rename moves a binding to a new name, keeping its position.
func (f *Framework) Rename(kind kernel.Kind, oldName, newName string) error {
	oldKey, newKey := Key{kind, oldName}, Key{kind, newName}
	b, ok := f.bindings[oldKey]
	if !ok {
		return errs.NotFound(string(kind), oldName).WithOp("rename")
	}
	if oldName == newName {
		return errs.NameCollision(string(kind), newName).WithOp("rename")
	}
	if _, taken := f.bindings[newKey]; taken {
		return errs.NameCollision(string(kind), newName).WithOp("rename")
	}
	delete(f.bindings, oldKey)
	f.bindings[newKey] = b
	f.rev.Next()
	f.logger.Debug("renamed", "from", oldKey.String(), "to", newKey.String())
	return nil
}

// Replace rebinds an existing name to h and returns the previous handle.
func (f *Framework) Replace(kind kernel.Kind, name string, h kernel.Handle) (kernel.Handle, error) {
	key := Key{kind, name}
	b, ok := f.bindings[key]
	if !ok {
		return 0, errs.NotFound(string(kind), name).WithOp("replace")
	}
	f.bindings[key] = Binding{Handle: h, Seq: b.Seq}
	f.rev.Next()
	f.logger.Debug("replaced", "key", key.String(), "old", b.Handle, "new", h)
	return b.Handle, nil
}

// Entries returns every binding in registration order.
func (f *Framework) Entries() []Entry {
	type row struct {
		Entry
		seq int64
	}
	rows := make([]row, 0, len(f.bindings))
	for k, b := range f.bindings {
		rows = append(rows, row{Entry{Key: k, Handle: b.Handle}, b.Seq})
	}
	slices.SortFunc(rows, func(a, b row) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})
	out := make([]Entry, len(rows))
	for i, r := range rows {
		out[i] = r.Entry
	}
	return out
}

// Names returns the names bound for kind in registration order.
func (f *Framework) Names(kind kernel.Kind) []string {
	names := []string{}
	for _, e := range f.Entries() {
		if e.Kind == kind {
			names = append(names, e.Name)
		}
	}
	return names
}

// Tables dumps one object through the kernel's table contract.
func (f *Framework) Tables(kind kernel.Kind, name string) (kernel.Tables, error) {
	h, err := f.Lookup(kind, name)
	if err != nil {
		return kernel.Tables{}, err
	}
	t, err := f.kernel.Tables(h)
	if err != nil {
		return kernel.Tables{}, errs.KernelFailure(err).WithOp("tables")
	}
	return t, nil
}

func (f *Framework) binding(key Key) *Binding {
	b, ok := f.bindings[key]
	if !ok {
		return nil
	}
	return &b
}

// Clear unbinds every object and releases its handle. It is meant for
// registries that are being discarded; handles held elsewhere as undo data
// are not touched.
func (f *Framework) Clear() {
	released := map[kernel.Handle]bool{}
	for _, b := range f.bindings {
		if released[b.Handle] {
			continue
		}
		released[b.Handle] = true
		if err := f.kernel.Release(b.Handle); err != nil {
			f.logger.Debug("release skipped", "handle", b.Handle, "error", err)
		}
	}
	f.bindings = map[Key]Binding{}
	f.rev.Next()
}
