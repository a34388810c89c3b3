package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentflux/fluxdiff/internal/codec"
	"github.com/agentflux/fluxdiff/internal/ui"
	"github.com/agentflux/fluxdiff/model"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	color.NoColor = true
	prev := ui.Output
	ui.Output = &bytes.Buffer{}
	t.Cleanup(func() { ui.Output = prev })

	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestEncode_ReadsFilesAndDirectories(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.py"), "x = 1\n")
	writeFile(t, filepath.Join(dir, "sub", "b.go"), "package sub\n")
	writeFile(t, filepath.Join(dir, "sub", "notes.txt"), "skip\n")

	out, err := run(t, "encode", "-l", dir, "-e", "py,go", "a.py", "sub")
	require.NoError(t, err)
	assert.Equal(t, model.Bundle{"a.py": "x = 1\n", "sub/b.go": "package sub\n"}, codec.Decode(out))
}

func TestDecode_JSON(t *testing.T) {
	input := writeFile(t, filepath.Join(t.TempDir(), "bundle.txt"), "%%%%a.py:\n$$$$\nx = 1\n$$$$\n%%%%a.py\n%%%%:\n$$$$\nlost\n$$$$")

	out, err := run(t, "decode", input, "--format", "json")
	require.NoError(t, err)

	var got struct {
		Files       map[string]string  `json:"files"`
		Diagnostics []codec.Diagnostic `json:"diagnostics"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, map[string]string{"a.py": "x = 1"}, got.Files)
	require.Len(t, got.Diagnostics, 1)
	assert.Equal(t, codec.EmptyFilename, got.Diagnostics[0].Kind)
}

func TestDecode_ListsFiles(t *testing.T) {
	input := writeFile(t, filepath.Join(t.TempDir(), "bundle.txt"), codec.Encode(model.Bundle{"b.py": "1\n2", "a.py": ""}))

	out, err := run(t, "decode", input)
	require.NoError(t, err)
	assert.Equal(t, "a.py\t0 lines\nb.py\t2 lines\n", out)
}

func TestDecode_Write(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.py"), "old\n")
	input := writeFile(t, filepath.Join(t.TempDir(), "bundle.txt"), codec.Encode(model.Bundle{"a.py": "new\n", "pkg/b.py": "b\n"}))

	_, err := run(t, "decode", input, "--write", "-l", dir)
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(dir, "a.py"))
	require.NoError(t, err)
	assert.Equal(t, "new\n", string(got))
	got, err = os.ReadFile(filepath.Join(dir, "pkg", "b.py"))
	require.NoError(t, err)
	assert.Equal(t, "b\n", string(got))
}

func TestDiff_SingleFile(t *testing.T) {
	dir := t.TempDir()
	original := writeFile(t, filepath.Join(dir, "a.txt"), "a\nb\n")
	refined := writeFile(t, filepath.Join(dir, "refined.txt"), "a\nc\n")

	out, err := run(t, "diff", original, refined, "-f", "plain")
	require.NoError(t, err)
	assert.Equal(t, "--- a/a.txt\n+++ b/a.txt\n@@ -1,2 +1,2 @@\n a\n-b\n+c\n", out)
}

func TestDiff_BundlesAsJSON(t *testing.T) {
	dir := t.TempDir()
	original := writeFile(t, filepath.Join(dir, "orig.txt"), codec.Encode(model.Bundle{"a.py": "1", "b.py": "2"}))
	refined := writeFile(t, filepath.Join(dir, "refined.txt"), codec.Encode(model.Bundle{"a.py": "1"}))

	out, err := run(t, "diff", original, refined, "--format", "json")
	require.NoError(t, err)

	var reports map[string]model.FileDiffReport
	require.NoError(t, json.Unmarshal([]byte(out), &reports))
	assert.True(t, reports["a.py"].Identical())
	assert.Equal(t, 1, reports["b.py"].Deleted())
}

func TestDiff_HTML(t *testing.T) {
	dir := t.TempDir()
	original := writeFile(t, filepath.Join(dir, "a.html"), "<p>\n")
	refined := writeFile(t, filepath.Join(dir, "b.html"), "<b>\n")

	out, err := run(t, "diff", original, refined, "--format", "html")
	require.NoError(t, err)
	assert.Contains(t, out, "-&lt;p&gt;")
	assert.Contains(t, out, "+&lt;b&gt;")
}

func TestApply_FixesHeadersAndPatches(t *testing.T) {
	dir := t.TempDir()
	original := writeFile(t, filepath.Join(dir, "x.txt"), "a\nb\nc\nd\n")
	patch := writeFile(t, filepath.Join(dir, "x.diff"), "@@ -10,2 +10,2 @@\n b\n-c\n+C\n")

	out, err := run(t, "apply", original, patch)
	require.NoError(t, err)
	assert.Equal(t, "a\nb\nC\nd\n", out)

	_, err = run(t, "apply", original, patch, "--write")
	require.NoError(t, err)
	got, err := os.ReadFile(original)
	require.NoError(t, err)
	assert.Equal(t, "a\nb\nC\nd\n", string(got))
}

func TestApply_HunkNotFound(t *testing.T) {
	dir := t.TempDir()
	original := writeFile(t, filepath.Join(dir, "x.txt"), "a\n")
	patch := writeFile(t, filepath.Join(dir, "x.diff"), "@@ -1 +1 @@\n-zzz\n+y\n")

	_, err := run(t, "apply", original, patch)
	assert.Error(t, err)
}

func TestReview_NoAnimationWritesRefinedFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.py"), "x = 1\n")
	writeFile(t, filepath.Join(dir, "keep.py"), "k = 1\n")
	refined := writeFile(t, filepath.Join(t.TempDir(), "refined.txt"),
		"Sure:\n%%%%a.py:\n$$$$\nx = 2\n$$$$\n%%%%a.py\n%%%%c.py:\n$$$$\nnew = True\n$$$$\n%%%%c.py")

	_, err := run(t, "review", "-l", dir, "--original", "a.py,keep.py", refined, "--no-animation", "--write")
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(dir, "a.py"))
	require.NoError(t, err)
	assert.Equal(t, "x = 2", string(got))
	got, err = os.ReadFile(filepath.Join(dir, "c.py"))
	require.NoError(t, err)
	assert.Equal(t, "new = True", string(got))
	got, err = os.ReadFile(filepath.Join(dir, "keep.py"))
	require.NoError(t, err)
	assert.Equal(t, "k = 1\n", string(got), "files missing from the refined text are left alone")
}

func TestReview_RequiresOriginal(t *testing.T) {
	_, err := run(t, "review", "--no-animation", "-")
	assert.Error(t, err)
}

func TestInvalidFormat(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, filepath.Join(dir, "a"), "1")
	_, err := run(t, "diff", a, a, "--format", "xml")
	assert.ErrorContains(t, err, "unknown format")
}
