// Package source reads bundle text from a file, a pipe or the clipboard.
package source

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/atotto/clipboard"

	"github.com/agentflux/fluxdiff/internal/ui"
)

// SourceProvider determines and retrieves the source content.
type SourceProvider struct {
	stdin     *os.File
	clipboard func() (string, error)
}

// New creates a SourceProvider reading os.Stdin and the system clipboard.
func New() *SourceProvider {
	return &SourceProvider{stdin: os.Stdin, clipboard: clipboard.ReadAll}
}

// GetContent reads path when it is set and not "-". Otherwise it reads
// stdin when it is piped, and the clipboard when it is a terminal.
func (sp *SourceProvider) GetContent(path string) (string, error) {
	if path == "-" {
		return sp.readStdin()
	}
	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", path, err)
		}
		return string(content), nil
	}

	if sp.isPiped() {
		ui.Header("--- Reading from stdin ---")
		return sp.readStdin()
	}

	ui.Header("--- Reading from clipboard ---")
	content, err := sp.clipboard()
	if err != nil {
		return "", fmt.Errorf("failed to read from clipboard: %w", err)
	}
	if strings.TrimSpace(content) == "" {
		ui.Warning("Clipboard is empty. Nothing to process.")
		return "", nil
	}
	return content, nil
}

func (sp *SourceProvider) isPiped() bool {
	stat, err := sp.stdin.Stat()
	if err != nil {
		return false
	}
	return stat.Mode()&os.ModeCharDevice == 0
}

func (sp *SourceProvider) readStdin() (string, error) {
	content, err := io.ReadAll(sp.stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read from stdin: %w", err)
	}
	return string(content), nil
}
