package parser

import (
	"testing"

	"github.com/agentflux/fluxdiff/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const answer = "Here are the refined files.\n\n" +
	"`agents/writer.py`\n\n" +
	"```python\nrole = 'writer'\n\ngoal = 'write'\n```\n\n" +
	"### `tasks.py`\n\n" +
	"```python\nprint('task')\n```\n\n" +
	"Run it with `python main.py`:\n\n" +
	"```sh\npython main.py\n```\n\n" +
	"`agents/writer.py`\n\n" +
	"```diff\n--- a/agents/writer.py\n+++ b/agents/writer.py\n```\n"

func TestExtractCodeBlocks(t *testing.T) {
	blocks, err := ExtractCodeBlocks([]byte(answer))
	require.NoError(t, err)
	require.Len(t, blocks, 4)

	assert.Equal(t, "`agents/writer.py`", blocks[0].Hint)
	assert.Equal(t, "python", blocks[0].Lang)
	assert.Equal(t, "role = 'writer'\n\ngoal = 'write'\n", blocks[0].Content)

	assert.Equal(t, "`tasks.py`", blocks[1].Hint)
	assert.Equal(t, "sh", blocks[2].Lang)
	assert.Equal(t, "diff", blocks[3].Lang)
}

func TestBundleFromMarkdown(t *testing.T) {
	bundle, err := BundleFromMarkdown(answer, nil)
	require.NoError(t, err)
	assert.Equal(t, model.Bundle{
		"agents/writer.py": "role = 'writer'\n\ngoal = 'write'",
		"tasks.py":         "print('task')",
	}, bundle)
}

func TestBundleFromMarkdown_FiltersExtensions(t *testing.T) {
	content := "`a.go`\n\n```go\npackage a\n```\n\n`b.py`\n\n```python\nb = 1\n```\n"
	bundle, err := BundleFromMarkdown(content, NormalizeExtensions([]string{"go"}))
	require.NoError(t, err)
	assert.Equal(t, model.Bundle{"a.go": "package a"}, bundle)
}

func TestBundleFromMarkdown_NoBlocks(t *testing.T) {
	bundle, err := BundleFromMarkdown("just prose, no code", nil)
	require.NoError(t, err)
	assert.Empty(t, bundle)
}

func TestExtractPathFromHint(t *testing.T) {
	tests := map[string]string{
		"`main.go`":                    "main.go",
		"Update `pkg/x.go` as follows": "pkg/x.go",
		"`go run main.go`":             "",
		"no backticks here":            "",
		"`  `":                         "",
	}
	for hint, want := range tests {
		assert.Equal(t, want, extractPathFromHint(hint), "hint %q", hint)
	}
}

func TestNormalizeExtensions(t *testing.T) {
	assert.Equal(t, []string{".go", ".py"}, NormalizeExtensions([]string{"go", ".py", " "}))
}
