package cli

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/meshflow/internal/project"
)

// savedProject runs content and saves it with a state section.
func savedProject(t *testing.T, dir, name, content string) string {
	t.Helper()
	src := writeProject(t, dir, name+".src.json", content)
	dest := filepath.Join(dir, name+".json")
	_, err := execute(t, "run", src, "--save", dest)
	require.NoError(t, err)
	return dest
}

func TestReplayLogOnly(t *testing.T) {
	dir := t.TempDir()
	path := writeProject(t, dir, "duct.json", twoGrids)

	out, err := execute(t, "replay", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Replayed 3 operation(s), 3 object(s)")
	assert.Contains(t, out, "✓ Replay is deterministic")
	assert.NotContains(t, out, "Snapshot")
}

func TestReplayWithState(t *testing.T) {
	dir := t.TempDir()
	path := savedProject(t, dir, "duct", twoGrids)

	out, err := execute(t, "replay", path)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Snapshot matches the log")
}

func TestReplayWithStateJSON(t *testing.T) {
	dir := t.TempDir()
	path := savedProject(t, dir, "duct", twoGrids)

	out, err := execute(t, "--format", "json", "replay", path)
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   ReplayResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Deterministic)
	assert.True(t, resp.Data.HasState)
	assert.True(t, resp.Data.StateMatches)
	assert.Equal(t, 3, resp.Data.Objects)
}

func TestReplayStaleSnapshot(t *testing.T) {
	dir := t.TempDir()
	coarse := savedProject(t, dir, "coarse", twoGrids)
	fine := savedProject(t, dir, "fine", strings.ReplaceAll(twoGrids, `"nx": 2`, `"nx": 3`))

	// coarse log with the fine snapshot
	doc, err := project.ReadFile(coarse)
	require.NoError(t, err)
	other, err := project.ReadFile(fine)
	require.NoError(t, err)
	doc.State = other.State
	stale := filepath.Join(dir, "stale.json")
	require.NoError(t, project.WriteFile(stale, doc))

	out, err := execute(t, "replay", stale)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Snapshot does not match the log")

	out, err = execute(t, "--format", "json", "replay", stale)
	require.Error(t, err)
	assert.Contains(t, out, "E_REPLAY")

	// loading verifies the snapshot too
	_, err = execute(t, "run", stale)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, "run", stale, "--no-verify")
	require.NoError(t, err)
}

func TestReplayFailingOperation(t *testing.T) {
	dir := t.TempDir()
	path := writeProject(t, dir, "dup.json", duplicateGrid)

	_, err := execute(t, "replay", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "NAME_COLLISION")
}

func TestReplayMissingProject(t *testing.T) {
	_, err := execute(t, "replay", filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
