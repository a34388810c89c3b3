package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentflux/fluxdiff/model"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestResolve(t *testing.T) {
	first, second := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(second, "only.txt"), "x")

	r, err := NewPathResolver([]string{first, second})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(second, "only.txt"), r.Resolve("only.txt"))
	assert.Equal(t, filepath.Join(first, "new.txt"), r.Resolve("new.txt"))
	assert.Empty(t, r.ResolveExisting("new.txt"))
}

func TestReadBundle(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "main.py"), "print(1)\n")
	writeFile(t, filepath.Join(root, "agents", "writer.py"), "role = 'w'\n")
	writeFile(t, filepath.Join(root, "agents", "notes.md"), "# notes\n")
	writeFile(t, filepath.Join(root, ".git", "config.py"), "hidden\n")

	r, err := NewPathResolver([]string{root})
	require.NoError(t, err)

	bundle, err := r.ReadBundle([]string{"."}, []string{".py"})
	require.NoError(t, err)
	assert.Equal(t, model.Bundle{
		"main.py":          "print(1)\n",
		"agents/writer.py": "role = 'w'\n",
	}, bundle)

	bundle, err = r.ReadBundle([]string{"agents/notes.md"}, []string{".py"})
	require.NoError(t, err)
	assert.Equal(t, model.Bundle{"agents/notes.md": "# notes\n"}, bundle)
}

func TestReadBundle_MissingPath(t *testing.T) {
	r, err := NewPathResolver([]string{t.TempDir()})
	require.NoError(t, err)
	_, err = r.ReadBundle([]string{"missing.go"}, nil)
	assert.Error(t, err)
}

func TestWriteBundle(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "old.txt"), "before")

	r, err := NewPathResolver([]string{root})
	require.NoError(t, err)

	created, modified, err := r.WriteBundle(model.Bundle{"old.txt": "after", "pkg/new.txt": "fresh"})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "pkg", "new.txt")}, created)
	assert.Equal(t, []string{filepath.Join(root, "old.txt")}, modified)

	content, err := os.ReadFile(filepath.Join(root, "pkg", "new.txt"))
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(content))
}

func TestWriteBundle_RejectsEscapingNames(t *testing.T) {
	r, err := NewPathResolver([]string{t.TempDir()})
	require.NoError(t, err)
	_, _, err = r.WriteBundle(model.Bundle{"../evil.txt": "x"})
	assert.Error(t, err)
}
