package harness

import "github.com/roach88/meshflow/internal/ir"

// Trace event types.
const (
	EventApply   = "apply"
	EventUndo    = "undo"
	EventRedo    = "redo"
	EventExecAll = "exec_all"
	EventResume  = "resume"
)

// OutcomeOK marks a step that succeeded. Failed steps record their error
// code instead.
const OutcomeOK = "ok"

// TraceEvent is one executed step.
type TraceEvent struct {
	Seq     int64     `json:"seq"`
	Type    string    `json:"type"`
	Op      string    `json:"op,omitempty"`
	Args    ir.Object `json:"args,omitempty"`
	Outcome string    `json:"outcome"`
	Applied int       `json:"applied"`
}

// object converts the event for canonical serialization.
func (e TraceEvent) object() ir.Object {
	obj := ir.Object{
		"seq":     ir.Int(e.Seq),
		"type":    ir.String(e.Type),
		"outcome": ir.String(e.Outcome),
		"applied": ir.Int(e.Applied),
	}
	if e.Op != "" {
		obj["op"] = ir.String(e.Op)
	}
	if e.Args != nil {
		obj["args"] = e.Args
	}
	return obj
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step matched its expectation and every
	// assertion held.
	Pass bool `json:"pass"`

	// Trace lists the executed steps in order.
	Trace []TraceEvent `json:"trace"`

	// Errors holds step and assertion failures.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends an event, numbering it.
func (r *Result) AddTrace(e TraceEvent) {
	e.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, e)
}
