package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScenario writes content into a temp dir and returns the path.
func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, `
name: test_scenario
description: "Test scenario for validation"
steps:
  - op: add_unf_rect_grid
    args: {name: g1, p0: [0, 0], p1: [1, 1], nx: 2, ny: 2}
  - undo: true
assertions:
  - type: object_count
    count: 0
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Len(t, scenario.Steps, 2)
	assert.Equal(t, "add_unf_rect_grid", scenario.Steps[0].Op)
	assert.Equal(t, "g1", scenario.Steps[0].Args["name"])
	assert.Equal(t, EventApply, scenario.Steps[0].Type())
	assert.Equal(t, EventUndo, scenario.Steps[1].Type())
	assert.True(t, scenario.confirm())
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := writeScenario(t, `
name: typo
description: "Misspelled steps key"
stpes:
  - undo: true
assertions:
  - type: object_count
    count: 0
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name: "missing name",
			content: `
description: d
steps: [{undo: true}]
assertions: [{type: replay_equivalent}]
`,
			want: "name is required",
		},
		{
			name: "missing description",
			content: `
name: n
steps: [{undo: true}]
assertions: [{type: replay_equivalent}]
`,
			want: "description is required",
		},
		{
			name: "no steps and no project",
			content: `
name: n
description: d
assertions: [{type: replay_equivalent}]
`,
			want: "steps list is required",
		},
		{
			name: "no assertions",
			content: `
name: n
description: d
steps: [{undo: true}]
`,
			want: "assertions list is required",
		},
		{
			name: "two actions in one step",
			content: `
name: n
description: d
steps: [{undo: true, redo: true}]
assertions: [{type: replay_equivalent}]
`,
			want: "exactly one of op, undo, redo, exec_all or resume",
		},
		{
			name: "unknown operation",
			content: `
name: n
description: d
steps: [{op: add_triangle}]
assertions: [{type: replay_equivalent}]
`,
			want: `unknown operation "add_triangle"`,
		},
		{
			name: "args without op",
			content: `
name: n
description: d
steps: [{undo: true, args: {name: g1}}]
assertions: [{type: replay_equivalent}]
`,
			want: "args are only allowed with op",
		},
		{
			name: "unknown error code",
			content: `
name: n
description: d
steps: [{undo: true, expect_error: OOPS}]
assertions: [{type: replay_equivalent}]
`,
			want: `unknown error code "OOPS"`,
		},
		{
			name: "missing project file",
			content: `
name: n
description: d
project: missing.json
assertions: [{type: replay_equivalent}]
`,
			want: "project file not found",
		},
		{
			name: "objects without kind",
			content: `
name: n
description: d
steps: [{undo: true}]
assertions: [{type: objects, names: []}]
`,
			want: "unknown object kind",
		},
		{
			name: "objects without names",
			content: `
name: n
description: d
steps: [{undo: true}]
assertions: [{type: objects, kind: grid2}]
`,
			want: "names is required",
		},
		{
			name: "grid_info without expect",
			content: `
name: n
description: d
steps: [{undo: true}]
assertions: [{type: grid_info, kind: grid2, name: g1}]
`,
			want: "expect is required for grid_info",
		},
		{
			name: "trace_count without count",
			content: `
name: n
description: d
steps: [{undo: true}]
assertions: [{type: trace_count, op: move_geom}]
`,
			want: "non-negative count is required for trace_count",
		},
		{
			name: "unknown assertion",
			content: `
name: n
description: d
steps: [{undo: true}]
assertions: [{type: vibes}]
`,
			want: `unknown assertion type "vibes"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid scenario")
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_ContourInfoImpliesKind(t *testing.T) {
	path := writeScenario(t, `
name: n
description: d
steps: [{op: add_rect_contour, args: {name: c1, p0: [0, 0], p1: [1, 1]}}]
assertions:
  - type: contour_info
    name: c1
    expect: {closed: true}
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "contour2", scenario.Assertions[0].Kind)
}

func TestScenario_ProjectPath(t *testing.T) {
	s := &Scenario{Project: "../projects/p.json", dir: "/data/scenarios"}
	assert.Equal(t, "/data/projects/p.json", s.ProjectPath())

	s.Project = "/abs/p.json"
	assert.Equal(t, "/abs/p.json", s.ProjectPath())
}
