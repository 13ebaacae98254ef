package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/meshflow/internal/errs"
	"github.com/roach88/meshflow/internal/flow"
	"github.com/roach88/meshflow/internal/framework"
	"github.com/roach88/meshflow/internal/ir"
	"github.com/roach88/meshflow/internal/kernel"
	"github.com/roach88/meshflow/internal/ops"
	"github.com/roach88/meshflow/internal/project"
	"github.com/roach88/meshflow/internal/ui"
)

// quiet discards harness logging so test output stays readable.
var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// Harness executes one scenario against a command flow.
type Harness struct {
	kernel kernel.Kernel
	fw     *framework.Framework
	flow   *flow.CommandFlow
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs on a fresh reference kernel. Step outcomes that differ
// from their expectation and failed assertions land in Result.Errors; the
// returned error is reserved for scenarios that cannot start, such as an
// unreadable project.
//
// Execution flow:
// 1. Load the project, or start from an empty registry
// 2. Execute steps, recording one trace event each
// 3. Evaluate assertions
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	h := &Harness{
		kernel: kernel.NewReference(),
		logger: quiet,
	}
	if err := h.setup(ctx, scenario); err != nil {
		return nil, fmt.Errorf("failed to set up scenario %s: %w", scenario.Name, err)
	}

	result := NewResult()
	h.executeSteps(ctx, scenario.Steps, result)

	actx := &AssertionContext{
		Ctx:       ctx,
		Kernel:    h.kernel,
		Framework: h.fw,
		Flow:      h.flow,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}
	return result, nil
}

func (h *Harness) setup(ctx context.Context, scenario *Scenario) error {
	console := ui.NewConsole(scenario.confirm(), h.logger)
	flowOpts := []flow.Option{flow.WithLogger(h.logger)}
	if scenario.HaltOnFailure {
		flowOpts = append(flowOpts, flow.WithHaltOnFailure())
	}

	if scenario.Project != "" {
		doc, err := project.ReadFile(scenario.ProjectPath())
		if err != nil {
			return err
		}
		h.flow, h.fw, err = project.Load(ctx, doc, h.kernel, project.Options{
			UI:          console,
			Logger:      h.logger,
			FlowOptions: flowOpts,
		})
		return err
	}

	h.fw = framework.New(h.kernel, framework.WithLogger(h.logger))
	h.flow = flow.New(flowOpts...)
	if err := h.flow.SetReceiver(h.fw); err != nil {
		return err
	}
	return h.flow.SetInterface(console)
}

// executeSteps runs steps in order. A step that fails unexpectedly, or
// succeeds when a failure was expected, is reported; an unexpected
// failure also stops the run.
func (h *Harness) executeSteps(ctx context.Context, steps []Step, result *Result) {
	for i, step := range steps {
		event, err := h.execute(ctx, step)
		event.Applied = h.flow.Applied()
		event.Outcome = OutcomeOK
		if err != nil {
			event.Outcome = outcomeOf(err)
		}
		result.AddTrace(event)

		h.logger.Info("step completed",
			"step", i,
			"type", event.Type,
			"op", event.Op,
			"outcome", event.Outcome,
		)

		switch {
		case step.ExpectError == "" && err != nil:
			result.AddError(fmt.Sprintf("steps[%d] (%s): unexpected failure: %v", i, event.Type, err))
			return
		case step.ExpectError != "" && err == nil:
			result.AddError(fmt.Sprintf("steps[%d] (%s): expected %s, step succeeded", i, event.Type, step.ExpectError))
		case step.ExpectError != "" && event.Outcome != step.ExpectError:
			result.AddError(fmt.Sprintf("steps[%d] (%s): expected %s, got %v", i, event.Type, step.ExpectError, err))
		}
	}
}

func (h *Harness) execute(ctx context.Context, step Step) (TraceEvent, error) {
	event := TraceEvent{Type: step.Type()}
	switch event.Type {
	case EventApply:
		event.Op = step.Op
		args, err := ir.FromGo(step.Args)
		if err != nil {
			return event, errs.InvalidArgument("args: %v", err).WithOp(step.Op)
		}
		params, ok := args.(ir.Object)
		if !ok {
			params = ir.Object{}
		}
		event.Args = params
		op, err := ops.Decode(step.Op, params)
		if err != nil {
			return event, err
		}
		return event, h.flow.AppendAndApply(ctx, op)

	case EventUndo:
		if h.flow.CanUndo() {
			event.Op = string(h.flow.Operations()[h.flow.Applied()-1].Tag())
		}
		return event, h.flow.Undo(ctx)

	case EventRedo:
		if h.flow.CanRedo() {
			event.Op = string(h.flow.Operations()[h.flow.Applied()].Tag())
		}
		return event, h.flow.Redo(ctx)

	case EventExecAll:
		return event, h.flow.ExecAll(ctx)

	case EventResume:
		h.flow.Resume()
		return event, nil
	}
	return event, fmt.Errorf("unknown step type %q", event.Type)
}

// outcomeOf is the error code of err, or ERROR for uncategorized failures.
func outcomeOf(err error) string {
	if code := errs.CodeOf(err); code != "" {
		return string(code)
	}
	return "ERROR"
}
