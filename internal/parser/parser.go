// Package parser recovers file bodies from markdown answers that do not use
// filename markers.
package parser

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/agentflux/fluxdiff/model"
)

var pathInHintRegex = regexp.MustCompile("`([^`\n]+)`")

// BundleFromMarkdown maps every fenced code block whose hint names a path in
// backticks to that path. Diff blocks and blocks without a path are skipped.
// An empty extensions list accepts any path. Later blocks for the same path
// replace earlier ones.
func BundleFromMarkdown(content string, extensions []string) (model.Bundle, error) {
	blocks, err := ExtractCodeBlocks([]byte(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse markdown: %w", err)
	}

	bundle := make(model.Bundle)
	for _, block := range blocks {
		if block.Lang == "diff" {
			continue
		}
		path := extractPathFromHint(block.Hint)
		if path == "" || !hasAllowedExtension(path, extensions) {
			continue
		}
		bundle[path] = strings.TrimSuffix(block.Content, "\n")
	}
	return bundle, nil
}

// NormalizeExtensions prefixes every extension with a dot.
func NormalizeExtensions(extensions []string) []string {
	out := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		ext = strings.TrimSpace(ext)
		if ext == "" {
			continue
		}
		if ext[0] != '.' {
			ext = "." + ext
		}
		out = append(out, ext)
	}
	return out
}

func extractPathFromHint(hint string) string {
	match := pathInHintRegex.FindStringSubmatch(strings.TrimSpace(hint))
	if len(match) < 2 {
		return ""
	}
	path := strings.TrimSpace(match[1])
	// Commands like `go run main.go` are not paths.
	if path == "" || strings.Contains(path, " ") {
		return ""
	}
	return path
}

func hasAllowedExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := filepath.Ext(path)
	for _, allowed := range extensions {
		if ext == allowed {
			return true
		}
	}
	return false
}
