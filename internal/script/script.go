package script

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Shopify/go-lua"

	"github.com/roach88/meshflow/internal/errs"
	"github.com/roach88/meshflow/internal/flow"
	"github.com/roach88/meshflow/internal/ir"
	"github.com/roach88/meshflow/internal/kernel"
	"github.com/roach88/meshflow/internal/ops"
)

// Error reports a script that stopped with a Lua error. Err is the flow
// failure that raised it, if any.
type Error struct {
	Script  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("script %s: %s", e.Script, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Interpreter binds a command flow to Lua. It is not safe for concurrent
// use; each run gets a fresh Lua state.
type Interpreter struct {
	flow   *flow.CommandFlow
	logger *slog.Logger

	// per run
	ctx     context.Context
	failure error
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(in *Interpreter) { in.logger = l }
}

// New creates an interpreter driving f. f must already have a receiver.
func New(f *flow.CommandFlow, opts ...Option) *Interpreter {
	in := &Interpreter{flow: f, logger: slog.Default()}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// RunFile executes the Lua file at path.
func (in *Interpreter) RunFile(ctx context.Context, path string) error {
	return in.run(ctx, path, func(state *lua.State) error {
		return lua.LoadFile(state, path, "")
	})
}

// RunString executes src; name labels errors.
func (in *Interpreter) RunString(ctx context.Context, name, src string) error {
	return in.run(ctx, name, func(state *lua.State) error {
		return lua.LoadBuffer(state, src, name, "")
	})
}

func (in *Interpreter) run(ctx context.Context, name string, load func(*lua.State) error) error {
	if in.flow.Receiver() == nil {
		return errs.InvalidState("script needs a bound framework").WithOp("script")
	}
	in.ctx = ctx
	in.failure = nil
	defer func() { in.ctx = nil }()

	state := lua.NewState()
	lua.OpenLibraries(state)
	in.register(state)

	if err := load(state); err != nil {
		return &Error{Script: name, Message: err.Error(), Err: errs.LoadError("%v", err)}
	}
	in.logger.Debug("script started", "script", name)
	if err := state.ProtectedCall(0, 0, 0); err != nil {
		return &Error{Script: name, Message: err.Error(), Err: in.failure}
	}
	in.logger.Debug("script finished", "script", name, "operations", in.flow.Len())
	return nil
}

func (in *Interpreter) register(state *lua.State) {
	funcs := make([]lua.RegistryFunction, 0, len(ops.Tags)+3)
	for _, tag := range ops.Tags {
		funcs = append(funcs, lua.RegistryFunction{Name: string(tag), Function: in.operation(tag)})
	}
	funcs = append(funcs,
		lua.RegistryFunction{Name: "undo", Function: in.undo},
		lua.RegistryFunction{Name: "redo", Function: in.redo},
		lua.RegistryFunction{Name: "names", Function: in.names},
	)
	state.NewTable()
	lua.SetFunctions(state, funcs, 0)
	state.SetGlobal("hm")
}

// raise stores err for the caller and turns it into a Lua error.
func (in *Interpreter) raise(state *lua.State, err error) int {
	in.failure = err
	lua.Errorf(state, "%s", err.Error())
	return 0
}

func (in *Interpreter) operation(tag ops.Tag) lua.Function {
	return func(state *lua.State) int {
		lua.CheckType(state, 1, lua.TypeTable)
		params, err := ir.FromGo(tableToMap(state, 1))
		if err != nil {
			return in.raise(state, errs.InvalidArgument("params: %v", err).WithOp(string(tag)))
		}
		op, err := ops.Decode(string(tag), params.(ir.Object))
		if err != nil {
			return in.raise(state, err)
		}
		if err := in.flow.AppendAndApply(in.ctx, op); err != nil {
			return in.raise(state, err)
		}
		return 0
	}
}

func (in *Interpreter) undo(state *lua.State) int {
	if err := in.flow.Undo(in.ctx); err != nil {
		return in.raise(state, err)
	}
	return 0
}

func (in *Interpreter) redo(state *lua.State) int {
	if err := in.flow.Redo(in.ctx); err != nil {
		return in.raise(state, err)
	}
	return 0
}

func (in *Interpreter) names(state *lua.State) int {
	kind, err := kernel.ParseKind(lua.CheckString(state, 1))
	if err != nil {
		lua.ArgumentError(state, 1, err.Error())
		return 0
	}
	state.NewTable()
	for i, name := range in.flow.Receiver().Names(kind) {
		state.PushString(name)
		state.RawSetInt(-2, i+1)
	}
	return 1
}
