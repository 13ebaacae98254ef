// Package harness runs YAML scenarios against a real command flow and
// compares the resulting trace with golden files.
//
// # Scenario Format
//
//	name: unite_two_grids
//	description: "Two adjacent grids unite into one"
//	project: ../projects/base.json   # optional, relative to the scenario
//	confirm: true                     # answer to confirmation prompts
//	halt_on_failure: false
//	steps:
//	  - op: add_unf_rect_grid
//	    args: { name: g1, p0: [0, 0], p1: [1, 1], nx: 2, ny: 2 }
//	  - op: add_unf_rect_grid
//	    args: { name: g1, p0: [0, 0], p1: [1, 1], nx: 2, ny: 2 }
//	    expect_error: NAME_COLLISION
//	  - undo: true
//	  - redo: true
//	  - exec_all: true
//	  - resume: true
//	assertions:
//	  - type: objects
//	    kind: grid2
//	    names: [g1]
//
// # Assertion Types
//
//   - objects: the names bound for a kind, in registration order
//   - object_count: total number of registry objects
//   - flow_state: subset match on length, applied, state, can_undo, can_redo
//   - grid_info: subset match on the kernel's GridInfo of one grid
//   - contour_info: subset match on the kernel's ContourInfo of one contour
//   - trace_count: number of successful applies of an operation tag
//   - trace_order: operation tags applied in the given relative order
//   - replay_equivalent: replaying the applied log on a fresh registry
//     reproduces the current registry
//   - round_trip: the project survives encode and load in both formats
//
// # Deterministic Testing
//
// Each scenario runs on a fresh reference kernel with a console UI and a
// discarded logger. Trace events carry the step number, never hashes or
// wall time, so traces are byte-identical across runs.
package harness
