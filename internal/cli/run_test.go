package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/meshflow/internal/export"
	"github.com/roach88/meshflow/internal/kernel"
	"github.com/roach88/meshflow/internal/project"
)

func TestRunProject(t *testing.T) {
	dir := t.TempDir()
	path := writeProject(t, dir, "duct.json", twoGrids)

	out, err := execute(t, "run", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Applied 3/3 operations, 3 objects")
}

func TestRunProjectJSON(t *testing.T) {
	dir := t.TempDir()
	path := writeProject(t, dir, "duct.json", twoGrids)

	out, err := execute(t, "--format", "json", "run", path)
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 3, resp.Data.Operations)
	assert.Equal(t, 3, resp.Data.Applied)
	assert.Equal(t, 3, resp.Data.Objects)
}

func TestRunExportsAndSaves(t *testing.T) {
	dir := t.TempDir()
	path := writeProject(t, dir, "duct.json", twoGrids)
	vtkPath := filepath.Join(dir, "g3.vtk")
	savePath := filepath.Join(dir, "duct.state.json")

	out, err := execute(t, "run", path,
		"--export", "g3:grid2:vtk:"+vtkPath,
		"--save", savePath,
	)
	require.NoError(t, err)
	assert.Contains(t, out, "exported "+vtkPath)
	assert.Contains(t, out, "saved "+savePath)

	data, err := os.ReadFile(vtkPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# vtk DataFile Version 3.0\n"))

	doc, err := project.ReadFile(savePath)
	require.NoError(t, err)
	require.True(t, doc.HasState())
	assert.Len(t, doc.Flow.Operations, 3)
	for _, rec := range doc.Flow.Operations {
		assert.NotEmpty(t, rec.ID, "saved records carry ids")
	}

	// the saved snapshot restores without error
	out, err = execute(t, "run", savePath)
	require.NoError(t, err)
	assert.Contains(t, out, "Applied 3/3 operations")
}

func TestRunFailingOperation(t *testing.T) {
	dir := t.TempDir()
	path := writeProject(t, dir, "dup.json", duplicateGrid)

	out, err := execute(t, "run", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "NAME_COLLISION")
}

func TestRunMissingProject(t *testing.T) {
	_, err := execute(t, "run", filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load project")
}

func TestRunInvalidExport(t *testing.T) {
	dir := t.TempDir()
	path := writeProject(t, dir, "duct.json", twoGrids)

	_, err := execute(t, "run", path, "--export", "g3:grid2:stl:out.stl")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid --export")
}

func TestRunExportUnknownObject(t *testing.T) {
	dir := t.TempDir()
	path := writeProject(t, dir, "duct.json", twoGrids)

	_, err := execute(t, "run", path, "--export", "nope:grid2:vtk:"+filepath.Join(dir, "nope.vtk"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "NOT_FOUND")
}

func TestParseExportSpec(t *testing.T) {
	spec, err := parseExportSpec("g3:grid2:msh:out/g3.msh")
	require.NoError(t, err)
	assert.Equal(t, exportSpec{Name: "g3", Kind: kernel.KindGrid2, Format: export.FormatMSH, File: "out/g3.msh"}, spec)

	// file paths may contain colons
	spec, err = parseExportSpec("c1:contour2:json:C:/tmp/c1.json")
	require.NoError(t, err)
	assert.Equal(t, "C:/tmp/c1.json", spec.File)

	for _, bad := range []string{"", "g3", "g3:grid2:vtk", "g3:shape:vtk:f", "g3:grid2:stl:f", ":grid2:vtk:f", "g3:grid2:vtk:"} {
		_, err := parseExportSpec(bad)
		assert.Error(t, err, "%q should be rejected", bad)
	}
}
