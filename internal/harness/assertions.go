package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/meshflow/internal/flow"
	"github.com/roach88/meshflow/internal/framework"
	"github.com/roach88/meshflow/internal/ir"
	"github.com/roach88/meshflow/internal/kernel"
	"github.com/roach88/meshflow/internal/project"
	"github.com/roach88/meshflow/internal/ui"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s %s\n", event.Seq, event.Type, event.Op, event.Outcome)
		}
	}
	return buf.String()
}

// AssertionContext is what assertions inspect after the steps ran.
type AssertionContext struct {
	Ctx       context.Context
	Kernel    kernel.Kernel
	Framework *framework.Framework
	Flow      *flow.CommandFlow
}

// EvaluateAssertions checks every assertion and returns the failure
// messages.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluate(result, a, actx); err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

func evaluate(result *Result, a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertObjects:
		return assertObjects(actx.Framework, a)
	case AssertObjectCount:
		return assertObjectCount(actx.Framework, a)
	case AssertFlowState:
		return assertFlowState(actx.Flow, a)
	case AssertGridInfo, AssertContourInfo:
		return assertInfo(actx.Framework, actx.Kernel, a)
	case AssertTraceCount:
		return assertTraceCount(result.Trace, a)
	case AssertTraceOrder:
		return assertTraceOrder(result.Trace, a)
	case AssertReplayEquivalent:
		return assertReplayEquivalent(actx)
	case AssertRoundTrip:
		return assertRoundTrip(actx)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

func assertObjects(fw *framework.Framework, a Assertion) error {
	got := fw.Names(kernel.Kind(a.Kind))
	if !slices.Equal(got, a.Names) {
		return &AssertionError{
			Type:     AssertObjects,
			Expected: fmt.Sprintf("%s objects %v", a.Kind, a.Names),
			Actual:   fmt.Sprintf("%v", got),
		}
	}
	return nil
}

func assertObjectCount(fw *framework.Framework, a Assertion) error {
	if fw.Len() != *a.Count {
		return &AssertionError{
			Type:     AssertObjectCount,
			Expected: fmt.Sprintf("%d objects", *a.Count),
			Actual:   fmt.Sprintf("%d objects", fw.Len()),
		}
	}
	return nil
}

func assertFlowState(f *flow.CommandFlow, a Assertion) error {
	actual := ir.Object{
		"length":   ir.Int(f.Len()),
		"applied":  ir.Int(f.Applied()),
		"state":    ir.String(f.State().String()),
		"can_undo": ir.Bool(f.CanUndo()),
		"can_redo": ir.Bool(f.CanRedo()),
	}
	return matchSubset(AssertFlowState, actual, a.Expect)
}

func assertInfo(fw *framework.Framework, k kernel.Kernel, a Assertion) error {
	h, err := fw.Lookup(kernel.Kind(a.Kind), a.Name)
	if err != nil {
		return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%s %s exists", a.Kind, a.Name), Actual: err.Error()}
	}
	var info any
	if a.Type == AssertContourInfo {
		info, err = k.ContourInfo(h)
	} else {
		info, err = k.GridInfo(h)
	}
	if err != nil {
		return &AssertionError{Type: a.Type, Expected: "info for " + a.Name, Actual: err.Error()}
	}
	actual, err := ir.ObjectFrom(info)
	if err != nil {
		return err
	}
	return matchSubset(a.Type, actual, a.Expect)
}

// matchSubset compares only the expected keys, by canonical form.
func matchSubset(typ string, actual ir.Object, expect map[string]any) error {
	want, err := ir.FromGo(expect)
	if err != nil {
		return fmt.Errorf("%s: expect: %w", typ, err)
	}
	for _, key := range want.(ir.Object).SortedKeys() {
		w := want.(ir.Object)[key]
		got, ok := actual[key]
		if !ok || !ir.Equal(got, w) {
			return &AssertionError{
				Type:     typ,
				Expected: fmt.Sprintf("%s = %s", key, render(w)),
				Actual:   fmt.Sprintf("%s = %s", key, render(got)),
			}
		}
	}
	return nil
}

func render(v ir.Value) string {
	if v == nil {
		return "<missing>"
	}
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// assertTraceCount counts successful applies of an operation tag.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Type == EventApply && event.Op == a.Op && event.Outcome == OutcomeOK {
			count++
		}
	}
	if count != *a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d successful %s", *a.Count, a.Op),
			Actual:   fmt.Sprintf("%d", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertTraceOrder checks that the first successful apply of each tag
// comes in the listed order. Other events may come in between.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	for _, event := range trace {
		if event.Type != EventApply || event.Outcome != OutcomeOK {
			continue
		}
		if _, seen := positions[event.Op]; !seen {
			positions[event.Op] = int(event.Seq)
		}
	}

	for _, op := range a.Ops {
		if _, ok := positions[op]; !ok {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all ops applied: %v", a.Ops),
				Actual:   fmt.Sprintf("missing op: %s", op),
				Trace:    trace,
			}
		}
	}
	for i := 1; i < len(a.Ops); i++ {
		prev, curr := a.Ops[i-1], a.Ops[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("ops in order: %v", a.Ops),
				Actual: fmt.Sprintf("%s (seq %d) should be before %s (seq %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertReplayEquivalent replays the applied prefix of the log on a fresh
// registry over a fresh kernel and compares snapshots.
func assertReplayEquivalent(actx *AssertionContext) error {
	want, err := actx.Framework.Snapshot()
	if err != nil {
		return err
	}

	fw := framework.New(kernel.NewReference(), framework.WithLogger(quiet))
	replay := flow.FromLog(actx.Flow.AppliedOperations(), flow.WithLogger(quiet))
	if err := replay.SetReceiver(fw); err != nil {
		return err
	}
	if err := replay.SetInterface(actx.Flow.Interface()); err != nil {
		return err
	}
	if err := replay.ExecAll(actx.Ctx); err != nil {
		return &AssertionError{Type: AssertReplayEquivalent, Expected: "applied log replays", Actual: err.Error()}
	}
	got, err := fw.Snapshot()
	if err != nil {
		return err
	}
	if err := want.Compare(got); err != nil {
		return &AssertionError{Type: AssertReplayEquivalent, Expected: "replayed registry equals current", Actual: err.Error()}
	}
	return nil
}

// assertRoundTrip encodes the project with its state, writes it in both
// formats, loads it back with verification and compares snapshots.
func assertRoundTrip(actx *AssertionContext) error {
	want, err := actx.Framework.Snapshot()
	if err != nil {
		return err
	}
	doc, err := project.Encode("round-trip", actx.Flow, actx.Framework)
	if err != nil {
		return err
	}

	for _, format := range []project.Format{project.FormatJSON, project.FormatYAML} {
		data, err := project.Marshal(doc, format)
		if err != nil {
			return err
		}
		back, err := project.Unmarshal(data, format)
		if err != nil {
			return &AssertionError{Type: AssertRoundTrip, Expected: string(format) + " document parses", Actual: err.Error()}
		}
		k := kernel.NewReference()
		f, fw, err := project.Load(actx.Ctx, back, k, project.Options{
			UI:     ui.NewConsole(true, quiet),
			Logger: quiet,
		})
		if err != nil {
			return &AssertionError{Type: AssertRoundTrip, Expected: string(format) + " document loads", Actual: err.Error()}
		}
		got, err := fw.Snapshot()
		if err != nil {
			return err
		}
		if err := want.Compare(got); err != nil {
			return &AssertionError{Type: AssertRoundTrip, Expected: string(format) + " state equals current", Actual: err.Error()}
		}
		if f.Len() != actx.Flow.Applied() {
			return &AssertionError{
				Type:     AssertRoundTrip,
				Expected: fmt.Sprintf("%d logged operations", actx.Flow.Applied()),
				Actual:   fmt.Sprintf("%d", f.Len()),
			}
		}
	}
	return nil
}
