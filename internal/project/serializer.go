package project

import (
	"context"
	"log/slog"

	"github.com/roach88/meshflow/internal/errs"
	"github.com/roach88/meshflow/internal/flow"
	"github.com/roach88/meshflow/internal/framework"
	"github.com/roach88/meshflow/internal/ir"
	"github.com/roach88/meshflow/internal/kernel"
	"github.com/roach88/meshflow/internal/ops"
	"github.com/roach88/meshflow/internal/ui"
)

// Encode writes f as a document with the given id.
//
// Without a framework every logged operation is written (log mode). With
// one, only the applied prefix is written together with a snapshot of fw,
// so that the log and the state describe the same point in history.
func Encode(id string, f *flow.CommandFlow, fw *framework.Framework) (*Document, error) {
	operations := f.Operations()
	var state *framework.Snapshot
	if fw != nil {
		operations = f.AppliedOperations()
		snap, err := fw.Snapshot()
		if err != nil {
			return nil, err
		}
		state = &snap
	}

	records := make([]OperationRecord, len(operations))
	for i, op := range operations {
		params := op.Params()
		opID, err := ir.OperationID(i, string(op.Tag()), params)
		if err != nil {
			return nil, errs.InvalidArgument("operation %d: %v", i, err).WithOp("encode")
		}
		records[i] = OperationRecord{ID: opID, Tag: string(op.Tag()), Params: params}
	}

	return &Document{
		Format:  FormatName,
		Version: Version,
		ID:      id,
		Flow:    &FlowSection{Operations: records},
		State:   state,
	}, nil
}

// DecodeFlow rebuilds the operation log, every entry pending. The caller
// binds a framework and runs ExecAll to materialize the objects.
func DecodeFlow(doc *Document, opts ...flow.Option) (*flow.CommandFlow, error) {
	operations, err := decodeOperations(doc)
	if err != nil {
		return nil, err
	}
	return flow.FromLog(operations, opts...), nil
}

func decodeOperations(doc *Document) ([]ops.Operation, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	records := doc.Flow.Operations
	out := make([]ops.Operation, len(records))
	for i, rec := range records {
		op, err := ops.Decode(rec.Tag, rec.Params)
		if err != nil {
			return nil, errs.LoadErrorWrap(err, "operation %d", i)
		}
		if rec.ID != "" {
			want, err := ir.OperationID(i, rec.Tag, op.Params())
			if err != nil {
				return nil, errs.LoadErrorWrap(err, "operation %d", i)
			}
			if want != rec.ID {
				return nil, errs.LoadError("operation %d (%s): id does not match its content", i, rec.Tag)
			}
		}
		out[i] = op
	}
	return out, nil
}

// Options controls loading.
type Options struct {
	// SkipVerify trusts the snapshot without replaying the log.
	SkipVerify bool
	// UI is bound to the returned flow. Defaults to a console that
	// confirms everything.
	UI ui.Interface
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// FlowOptions are passed to every flow the loader creates.
	FlowOptions []flow.Option
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

func (o Options) ui() ui.Interface {
	if o.UI == nil {
		return ui.NewConsole(true, o.logger())
	}
	return o.UI
}

func (o Options) flowOptions() []flow.Option {
	return append([]flow.Option{flow.WithLogger(o.logger())}, o.FlowOptions...)
}

// DecodeWithSnapshot restores the document's state into a fresh framework
// over k and returns a flow whose every operation counts as applied.
//
// Unless opts.SkipVerify is set, the log is first replayed on a scratch
// registry and the result must equal the snapshot; a divergence is a
// LoadError. On any error nothing is returned and every kernel object the
// attempt created is released.
func DecodeWithSnapshot(ctx context.Context, doc *Document, k kernel.Kernel, opts Options) (*flow.CommandFlow, *framework.Framework, error) {
	operations, err := decodeOperations(doc)
	if err != nil {
		return nil, nil, err
	}
	if doc.State == nil {
		return nil, nil, errs.LoadError("document has no state section")
	}

	if !opts.SkipVerify {
		if err := verify(ctx, operations, *doc.State, k, opts); err != nil {
			return nil, nil, err
		}
	}

	fw := framework.New(k, framework.WithLogger(opts.logger()))
	if err := fw.Restore(*doc.State); err != nil {
		return nil, nil, err
	}

	f := flow.FromLog(operations, opts.flowOptions()...)
	if err := bind(f, fw, opts.ui()); err != nil {
		fw.Clear()
		return nil, nil, err
	}
	if err := f.MarkApplied(); err != nil {
		fw.Clear()
		return nil, nil, err
	}
	opts.logger().Debug("project restored from state", "objects", fw.Len(), "operations", f.Len())
	return f, fw, nil
}

// verify replays operations on a scratch registry and compares the result
// with want by kind, name, order and content hash.
func verify(ctx context.Context, operations []ops.Operation, want framework.Snapshot, k kernel.Kernel, opts Options) error {
	scratch := framework.New(k, framework.WithLogger(opts.logger()))
	f := flow.FromLog(operations, opts.flowOptions()...)
	if err := bind(f, scratch, ui.NewConsole(true, opts.logger())); err != nil {
		return err
	}
	defer discard(ctx, f, scratch, opts.logger())

	if err := f.ExecAll(ctx); err != nil {
		return errs.LoadErrorWrap(err, "log does not replay")
	}
	got, err := scratch.Snapshot()
	if err != nil {
		return errs.LoadErrorWrap(err, "replayed state")
	}
	if err := want.Compare(got); err != nil {
		return errs.LoadErrorWrap(err, "state section diverges from the log")
	}
	return nil
}

// discard undoes a scratch flow so every handle it created, including the
// ones only held as undo data, goes back to the kernel.
func discard(ctx context.Context, f *flow.CommandFlow, fw *framework.Framework, logger *slog.Logger) {
	f.Resume()
	for f.CanUndo() {
		if err := f.Undo(ctx); err != nil {
			logger.Debug("scratch undo failed", "error", err)
			break
		}
	}
	fw.Clear()
}

// Load decodes a document into a bound flow and framework over k. With a
// state section the flow comes back fully applied; without one it comes
// back pending, ready for ExecAll.
func Load(ctx context.Context, doc *Document, k kernel.Kernel, opts Options) (*flow.CommandFlow, *framework.Framework, error) {
	if doc.HasState() {
		return DecodeWithSnapshot(ctx, doc, k, opts)
	}
	f, err := DecodeFlow(doc, opts.flowOptions()...)
	if err != nil {
		return nil, nil, err
	}
	fw := framework.New(k, framework.WithLogger(opts.logger()))
	if err := bind(f, fw, opts.ui()); err != nil {
		return nil, nil, err
	}
	return f, fw, nil
}

func bind(f *flow.CommandFlow, fw *framework.Framework, u ui.Interface) error {
	if err := f.SetReceiver(fw); err != nil {
		return err
	}
	return f.SetInterface(u)
}
