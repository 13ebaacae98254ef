package flow

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/meshflow/internal/errs"
	"github.com/roach88/meshflow/internal/framework"
	"github.com/roach88/meshflow/internal/ops"
	"github.com/roach88/meshflow/internal/ui"
)

// State is the execution state of a flow.
type State int

const (
	// Idle means no operation is running; the flow accepts new work.
	Idle State = iota
	// Executing means an operation is inside Apply or Revert.
	Executing
	// Halted means an operation failed and the flow refuses to proceed
	// until Resume is called.
	Halted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Executing:
		return "executing"
	case Halted:
		return "halted"
	}
	return "unknown"
}

type entry struct {
	op   ops.Operation
	undo *framework.UndoData
}

// CommandFlow is the operation log plus its applied cursor.
//
// Entries [0, Applied) are applied and, unless restored from a snapshot,
// carry undo data; entries [Applied, Len) are pending and carry none.
type CommandFlow struct {
	entries []entry
	applied int
	state   State
	started bool

	fw *framework.Framework
	ui ui.Interface

	// revision of fw right after this flow last touched it
	lastRev  int64
	revKnown bool

	haltOnFailure bool
	logger        *slog.Logger
	tp            trace.TracerProvider
	mp            metric.MeterProvider
	tel           *telemetry
}

// Option configures a CommandFlow.
type Option func(*CommandFlow)

// WithHaltOnFailure makes AppendAndApply and Redo halt the flow on failure
// instead of rejecting the single operation.
func WithHaltOnFailure() Option {
	return func(f *CommandFlow) { f.haltOnFailure = true }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(f *CommandFlow) { f.logger = l }
}

// WithTracerProvider overrides the global OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(f *CommandFlow) { f.tp = tp }
}

// WithMeterProvider overrides the global OpenTelemetry meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(f *CommandFlow) { f.mp = mp }
}

// New creates an empty flow. Bind a framework with SetReceiver and an
// interface with SetInterface before running anything; operations such as
// remove_geom ask the interface for confirmation, so there is no default.
func New(opts ...Option) *CommandFlow {
	f := &CommandFlow{logger: slog.Default()}
	for _, opt := range opts {
		opt(f)
	}
	f.tel = newTelemetry(f.tp, f.mp)
	return f
}

// FromLog creates a flow whose log holds operations, all pending.
func FromLog(operations []ops.Operation, opts ...Option) *CommandFlow {
	f := New(opts...)
	f.entries = make([]entry, len(operations))
	for i, op := range operations {
		f.entries[i] = entry{op: op}
	}
	return f
}

// SetReceiver binds the framework operations run against. It fails with
// InvalidState once any operation has been applied.
func (f *CommandFlow) SetReceiver(fw *framework.Framework) error {
	if f.started {
		return errs.InvalidState("cannot rebind the framework after operations were applied").WithOp("set_receiver")
	}
	f.fw = fw
	f.revKnown = false
	return nil
}

// SetInterface binds the user interface. It fails with InvalidState once
// any operation has been applied.
func (f *CommandFlow) SetInterface(u ui.Interface) error {
	if f.started {
		return errs.InvalidState("cannot rebind the interface after operations were applied").WithOp("set_interface")
	}
	if u == nil {
		return errs.InvalidArgument("nil interface").WithOp("set_interface")
	}
	f.ui = u
	return nil
}

// Receiver returns the bound framework, or nil.
func (f *CommandFlow) Receiver() *framework.Framework { return f.fw }

// Interface returns the bound user interface.
func (f *CommandFlow) Interface() ui.Interface { return f.ui }

// State returns the current state.
func (f *CommandFlow) State() State { return f.state }

// Len returns the number of logged operations.
func (f *CommandFlow) Len() int { return len(f.entries) }

// Applied returns the cursor: how many operations are applied.
func (f *CommandFlow) Applied() int { return f.applied }

// CanUndo reports whether Undo would find undo data.
func (f *CommandFlow) CanUndo() bool {
	return f.applied > 0 && f.entries[f.applied-1].undo != nil
}

// CanRedo reports whether there is a pending operation to re-apply.
func (f *CommandFlow) CanRedo() bool { return f.applied < len(f.entries) }

// Operations returns the whole log in order.
func (f *CommandFlow) Operations() []ops.Operation {
	out := make([]ops.Operation, len(f.entries))
	for i, e := range f.entries {
		out[i] = e.op
	}
	return out
}

// AppliedOperations returns the applied prefix of the log.
func (f *CommandFlow) AppliedOperations() []ops.Operation {
	return f.Operations()[:f.applied]
}

// Resume clears the Halted state.
func (f *CommandFlow) Resume() {
	if f.state == Halted {
		f.logger.Info("flow resumed", "applied", f.applied)
		f.state = Idle
	}
}

// MarkApplied moves the cursor to the end of the log without running
// anything. It is used when the framework was restored from a snapshot
// that already contains every logged effect. Entries marked this way have
// no undo data, so Undo over them fails.
func (f *CommandFlow) MarkApplied() error {
	if f.state == Executing {
		return errs.InvalidState("flow is executing").WithOp("mark_applied")
	}
	for i := f.applied; i < len(f.entries); i++ {
		f.entries[i].undo = nil
	}
	f.applied = len(f.entries)
	if f.applied > 0 {
		f.started = true
	}
	f.sync()
	return nil
}

// Close releases the kernel objects that only the log's undo data keeps
// alive, such as removed or replaced grids. Applied entries lose their
// undo data, so Undo over them fails afterwards. The bound framework and
// its objects stay with their owner.
func (f *CommandFlow) Close() error {
	if f.state == Executing {
		return errs.InvalidState("flow is executing").WithOp("close")
	}
	if f.fw == nil {
		return nil
	}
	var journals []*framework.UndoData
	for i := range f.entries {
		if u := f.entries[i].undo; u != nil {
			journals = append(journals, u)
			f.entries[i].undo = nil
		}
	}
	n := f.fw.ReleaseJournals(journals...)
	f.logger.Debug("flow closed", "journals", len(journals), "released", n)
	return nil
}

// AppendAndApply applies op and, on success, truncates the redo branch and
// appends op at the cursor. On failure the log is left exactly as it was,
// the failure is reported through the interface, and the flow stays Idle
// (or becomes Halted under WithHaltOnFailure).
func (f *CommandFlow) AppendAndApply(ctx context.Context, op ops.Operation) error {
	if err := f.ready("append", true); err != nil {
		return err
	}

	undo, err := f.apply(ctx, "meshflow.apply", f.applied, op)
	if err != nil {
		f.fail(err)
		return err
	}

	if dropped := len(f.entries) - f.applied; dropped > 0 {
		f.logger.Debug("redo branch discarded", "operations", dropped)
	}
	f.entries = append(f.entries[:f.applied], entry{op: op, undo: undo})
	f.applied++
	f.state = Idle
	f.tel.count(ctx, f.tel.applied, string(op.Tag()))
	return nil
}

// Undo reverts the last applied operation and moves the cursor back.
func (f *CommandFlow) Undo(ctx context.Context) (err error) {
	if err := f.ready("undo", false); err != nil {
		return err
	}
	if f.applied == 0 {
		return errs.InvalidStateErr(errs.ErrNothingToUndo).WithOp("undo")
	}
	e := &f.entries[f.applied-1]
	if e.undo == nil {
		return errs.InvalidStateErr(errs.ErrNoUndoData).WithOp("undo")
	}

	tag := string(e.op.Tag())
	ctx, span := f.tel.start(ctx, "meshflow.undo", f.applied-1, tag)
	defer func() { end(span, err) }()

	prev := f.state
	f.state = Executing
	err = e.op.Revert(f.fw, e.undo)
	f.sync()
	f.state = prev
	if err != nil {
		f.ui.ReportFailure(err)
		return err
	}

	e.undo = nil
	f.applied--
	f.tel.count(ctx, f.tel.undone, tag)
	f.logger.Debug("undone", "index", f.applied, "tag", tag)
	return nil
}

// Redo re-applies the operation at the cursor with fresh undo data.
func (f *CommandFlow) Redo(ctx context.Context) error {
	if err := f.ready("redo", true); err != nil {
		return err
	}
	if f.applied == len(f.entries) {
		return errs.InvalidStateErr(errs.ErrNothingToRedo).WithOp("redo")
	}

	op := f.entries[f.applied].op
	undo, err := f.apply(ctx, "meshflow.redo", f.applied, op)
	if err != nil {
		f.fail(err)
		return err
	}
	f.entries[f.applied].undo = undo
	f.applied++
	f.state = Idle
	f.tel.count(ctx, f.tel.applied, string(op.Tag()))
	f.tel.count(ctx, f.tel.redone, string(op.Tag()))
	return nil
}

// ExecAll applies every pending operation in log order. It stops at the
// first failure, reports it, leaves the flow Halted with the cursor after
// the last success, and returns an *ExecError.
func (f *CommandFlow) ExecAll(ctx context.Context) error {
	if err := f.ready("exec_all", true); err != nil {
		return err
	}

	for f.applied < len(f.entries) {
		i := f.applied
		op := f.entries[i].op
		undo, err := f.apply(ctx, "meshflow.apply", i, op)
		if err != nil {
			f.ui.ReportFailure(err)
			f.state = Halted
			f.logger.Warn("flow halted", "index", i, "tag", op.Tag(), "error", err)
			return &ExecError{Index: i, Tag: op.Tag(), Err: err}
		}
		f.entries[i].undo = undo
		f.applied++
		f.tel.count(ctx, f.tel.applied, string(op.Tag()))
	}
	f.state = Idle
	return nil
}

// ready checks the preconditions shared by every entry point. Halted
// blocks everything that moves the cursor forward.
func (f *CommandFlow) ready(op string, forward bool) error {
	if f.fw == nil {
		return errs.InvalidState("no framework bound").WithOp(op)
	}
	if f.ui == nil {
		return errs.InvalidState("no interface bound").WithOp(op)
	}
	switch {
	case f.state == Executing:
		return errs.InvalidState("an operation is already executing").WithOp(op)
	case forward && f.state == Halted:
		return errs.InvalidState("flow is halted").WithOp(op)
	}
	if f.revKnown && f.fw.Revision() != f.lastRev {
		return errs.InvalidState("framework was modified outside the flow (revision %d, expected %d)",
			f.fw.Revision(), f.lastRev).WithOp(op)
	}
	return nil
}

// apply runs one operation inside a span. The flow state is Executing for
// the duration of the call.
func (f *CommandFlow) apply(ctx context.Context, spanName string, index int, op ops.Operation) (undo *framework.UndoData, err error) {
	tag := string(op.Tag())
	ctx, span := f.tel.start(ctx, spanName, index, tag)
	defer func() { end(span, err) }()

	f.state = Executing
	undo, err = op.Apply(ctx, ops.Env{Framework: f.fw, UI: f.ui, Logger: f.logger})
	f.sync()
	if err != nil {
		f.tel.count(ctx, f.tel.failed, tag)
		f.logger.Debug("operation failed", "index", index, "tag", tag, "error", err)
		return nil, err
	}
	f.started = true
	f.logger.Debug("operation applied", "index", index, "tag", tag)
	return undo, nil
}

// fail reports a rejected single operation and settles the state.
func (f *CommandFlow) fail(err error) {
	f.ui.ReportFailure(err)
	if f.haltOnFailure {
		f.state = Halted
		return
	}
	f.state = Idle
}

func (f *CommandFlow) sync() {
	if f.fw == nil {
		return
	}
	f.lastRev = f.fw.Revision()
	f.revKnown = true
}
