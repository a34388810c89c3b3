// Package nvim stages refined file bodies in Neovim buffers.
package nvim

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/neovim/go-client/nvim"

	"github.com/agentflux/fluxdiff/internal/diffreport"
	"github.com/agentflux/fluxdiff/internal/fs"
	"github.com/agentflux/fluxdiff/model"
)

// Manager handles the connection and interaction with a Neovim instance.
type Manager struct {
	nvim          *nvim.Nvim
	isSelfStarted bool
	cmd           *exec.Cmd
	socketPath    string
}

// Change is one buffer replacement.
type Change struct {
	Path  string
	Lines []string
}

// New connects to the instance named by NVIM_LISTEN_ADDRESS or NVIM, or
// starts a temporary headless one.
func New() (*Manager, error) {
	for _, env := range []string{"NVIM_LISTEN_ADDRESS", "NVIM"} {
		if addr := os.Getenv(env); addr != "" {
			if v, err := nvim.Dial(addr); err == nil {
				return &Manager{nvim: v}, nil
			}
		}
	}

	tmpDir, err := os.MkdirTemp("", "fluxdiff-nvim-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir for nvim: %w", err)
	}
	socketPath := filepath.Join(tmpDir, "nvim.sock")

	cmd := exec.Command("nvim", "--headless", "--clean", "--listen", socketPath)
	if err := cmd.Start(); err != nil {
		os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("failed to start headless nvim: %w. Is 'nvim' in your PATH?", err)
	}

	for i := 0; i < 20; i++ {
		if _, err := os.Stat(socketPath); err == nil {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	v, err := nvim.Dial(socketPath)
	if err != nil {
		cmd.Process.Kill()
		cmd.Wait()
		os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("failed to connect to headless nvim: %w", err)
	}

	m := &Manager{
		nvim:          v,
		isSelfStarted: true,
		cmd:           cmd,
		socketPath:    socketPath,
	}
	if err := m.configureTempInstance(); err != nil {
		m.Close()
		return nil, err
	}
	return m, nil
}

// configureTempInstance lets modified buffers stay unsaved in the background.
func (m *Manager) configureTempInstance() error {
	b := m.nvim.NewBatch()
	b.Command("set hidden")
	b.Command("set noswapfile")
	if err := b.Execute(); err != nil {
		return fmt.Errorf("failed to configure nvim: %w", err)
	}
	return nil
}

// Close disconnects from Neovim and cleans up if it was self-started.
func (m *Manager) Close() {
	if m.nvim != nil {
		m.nvim.Close()
	}
	if m.isSelfStarted && m.cmd != nil && m.cmd.Process != nil {
		if err := m.cmd.Process.Kill(); err == nil {
			m.cmd.Wait()
			os.RemoveAll(filepath.Dir(m.socketPath))
		}
	}
}

// SelfStarted reports whether the manager runs its own headless instance,
// whose unsaved buffers are lost on Close.
func (m *Manager) SelfStarted() bool {
	return m.isSelfStarted
}

// processSequentially is a generic helper function to run a set of jobs sequentially.
func processSequentially[T any](
	items []T,
	processFn func(item T) (path string, success bool),
	progressCb func(int),
) (succeeded, failed []string) {
	for i, item := range items {
		path, success := processFn(item)
		if success {
			succeeded = append(succeeded, path)
		} else {
			failed = append(failed, path)
		}
		if progressCb != nil {
			progressCb(i + 1)
		}
	}
	return succeeded, failed
}

// Changes resolves every bundle file to an absolute path and splits its
// body into buffer lines, in filename order.
func Changes(bundle model.Bundle, resolver *fs.PathResolver) []Change {
	changes := make([]Change, 0, len(bundle))
	for _, name := range bundle.Names() {
		lines := diffreport.SplitLines(bundle[name])
		if lines == nil {
			lines = []string{}
		}
		changes = append(changes, Change{Path: resolver.Resolve(name), Lines: lines})
	}
	return changes
}

// Stage replaces the buffer content of every change without writing it.
func (m *Manager) Stage(changes []Change, progressCb func(int)) (staged, failed []string) {
	processFn := func(change Change) (string, bool) {
		return change.Path, m.updateBuffer(change.Path, change.Lines)
	}
	return processSequentially(changes, processFn, progressCb)
}

func (m *Manager) updateBuffer(filePath string, content []string) bool {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return false
	}

	byteContent := make([][]byte, len(content))
	for i, s := range content {
		byteContent[i] = []byte(s)
	}

	b := m.nvim.NewBatch()
	b.Command("edit " + escapePath(absPath))
	b.SetBufferLines(0, 0, -1, true, byteContent)
	return b.Execute() == nil
}

// SaveAllBuffers writes all modified buffers to disk.
func (m *Manager) SaveAllBuffers() error {
	if err := m.nvim.Command("wa!"); err != nil {
		return fmt.Errorf("failed to save buffers: %w", err)
	}
	return nil
}

// escapePath escapes the characters an Ex command treats specially in a
// file argument.
func escapePath(path string) string {
	var b strings.Builder
	for _, r := range path {
		if strings.ContainsRune(" \\%#|\"", r) {
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
