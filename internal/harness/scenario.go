package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/meshflow/internal/errs"
	"github.com/roach88/meshflow/internal/kernel"
	"github.com/roach88/meshflow/internal/ops"
)

// Scenario is one conformance test: optional starting project, a list of
// steps, and assertions on the final registry, flow and trace.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Project is an optional project document loaded before the steps.
	// Relative paths resolve against the scenario file's directory.
	Project string `yaml:"project,omitempty"`

	// Confirm answers confirmation prompts. Defaults to true.
	Confirm *bool `yaml:"confirm,omitempty"`

	// HaltOnFailure halts the flow after a failed append.
	HaltOnFailure bool `yaml:"halt_on_failure,omitempty"`

	// Steps run in order. A step that fails without expect_error stops
	// the scenario.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state and trace.
	Assertions []Assertion `yaml:"assertions"`

	// dir is where the scenario file lives.
	dir string
}

func (s *Scenario) confirm() bool {
	return s.Confirm == nil || *s.Confirm
}

// ProjectPath resolves Project against the scenario's directory.
func (s *Scenario) ProjectPath() string {
	if s.Project == "" || filepath.IsAbs(s.Project) {
		return s.Project
	}
	return filepath.Join(s.dir, s.Project)
}

// Step is exactly one of an operation, undo, redo, exec_all or resume.
type Step struct {
	// Op is an operation tag; Args are its parameters.
	Op   string         `yaml:"op,omitempty"`
	Args map[string]any `yaml:"args,omitempty"`

	Undo    bool `yaml:"undo,omitempty"`
	Redo    bool `yaml:"redo,omitempty"`
	ExecAll bool `yaml:"exec_all,omitempty"`
	Resume  bool `yaml:"resume,omitempty"`

	// ExpectError is the error code the step must fail with.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Type returns the trace event type of the step.
func (s Step) Type() string {
	switch {
	case s.Undo:
		return EventUndo
	case s.Redo:
		return EventRedo
	case s.ExecAll:
		return EventExecAll
	case s.Resume:
		return EventResume
	}
	return EventApply
}

func (s Step) actions() int {
	n := 0
	for _, set := range []bool{s.Op != "", s.Undo, s.Redo, s.ExecAll, s.Resume} {
		if set {
			n++
		}
	}
	return n
}

// Assertion validates the final state or the trace.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Kind and Name select registry objects (objects, grid_info,
	// contour_info).
	Kind string `yaml:"kind,omitempty"`
	Name string `yaml:"name,omitempty"`

	// Names is the expected name list (objects).
	Names []string `yaml:"names,omitempty"`

	// Op is an operation tag (trace_count); Ops an ordered list of tags
	// (trace_order).
	Op  string   `yaml:"op,omitempty"`
	Ops []string `yaml:"ops,omitempty"`

	// Count is the expected number (object_count, trace_count).
	Count *int `yaml:"count,omitempty"`

	// Expect holds a subset of expected fields (flow_state, grid_info,
	// contour_info).
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertObjects          = "objects"
	AssertObjectCount      = "object_count"
	AssertFlowState        = "flow_state"
	AssertGridInfo         = "grid_info"
	AssertContourInfo      = "contour_info"
	AssertTraceCount       = "trace_count"
	AssertTraceOrder       = "trace_order"
	AssertReplayEquivalent = "replay_equivalent"
	AssertRoundTrip        = "round_trip"
)

var errorCodes = []errs.Code{
	errs.CodeNotFound, errs.CodeNameCollision, errs.CodeInvalidArgument,
	errs.CodeKernelFailure, errs.CodeInvalidState, errs.CodeLoadError,
	errs.CodeCancelled,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	scenario.dir = filepath.Dir(path)

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 && s.Project == "" {
		return fmt.Errorf("steps list is required unless a project is given")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if s.Project != "" {
		if _, err := os.Stat(s.ProjectPath()); os.IsNotExist(err) {
			return fmt.Errorf("project file not found: %s", s.ProjectPath())
		}
	}

	for i, step := range s.Steps {
		if n := step.actions(); n != 1 {
			return fmt.Errorf("steps[%d]: exactly one of op, undo, redo, exec_all or resume is required (got %d)", i, n)
		}
		if step.Op != "" && !slices.Contains(ops.Tags, ops.Tag(step.Op)) {
			return fmt.Errorf("steps[%d]: unknown operation %q", i, step.Op)
		}
		if step.Op == "" && step.Args != nil {
			return fmt.Errorf("steps[%d]: args are only allowed with op", i)
		}
		if step.ExpectError != "" && !slices.Contains(errorCodes, errs.Code(step.ExpectError)) {
			return fmt.Errorf("steps[%d]: unknown error code %q", i, step.ExpectError)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	needKind := func() error {
		if _, err := kernel.ParseKind(a.Kind); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
		return nil
	}

	switch a.Type {
	case AssertObjects:
		if err := needKind(); err != nil {
			return err
		}
		if a.Names == nil {
			return fmt.Errorf("assertions[%d]: names is required for objects (use [] for none)", index)
		}
	case AssertObjectCount:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for object_count", index)
		}
	case AssertFlowState:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for flow_state", index)
		}
	case AssertGridInfo, AssertContourInfo:
		if a.Type == AssertContourInfo {
			a.Kind = string(kernel.KindContour2)
		}
		if err := needKind(); err != nil {
			return err
		}
		if a.Name == "" {
			return fmt.Errorf("assertions[%d]: name is required for %s", index, a.Type)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for %s", index, a.Type)
		}
	case AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_count", index)
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for trace_count", index)
		}
	case AssertTraceOrder:
		if len(a.Ops) == 0 {
			return fmt.Errorf("assertions[%d]: ops list is required for trace_order", index)
		}
	case AssertReplayEquivalent, AssertRoundTrip:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
