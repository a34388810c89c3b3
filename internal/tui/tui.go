package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/agentflux/fluxdiff/fluxdiff"
	"github.com/agentflux/fluxdiff/internal/render"
	"github.com/agentflux/fluxdiff/model"
)

// --- Styles ---
var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")) // Mauve
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("197"))           // Red
	activeTabStyle = lipgloss.NewStyle().Bold(true).Underline(true).Foreground(lipgloss.Color("78"))
	tabStyle       = lipgloss.NewStyle().Faint(true)
	faintStyle     = lipgloss.NewStyle().Faint(true)
)

// rows taken by the header, tab bar and footer around the viewport.
const chromeHeight = 4

// --- Messages ---
type resultMsg struct {
	*fluxdiff.Result
}

type errorMsg struct{ err error }

func (e errorMsg) Error() string { return e.err.Error() }

// --- Model ---
type Model struct {
	app         *fluxdiff.App
	original    model.Bundle
	refinedText string

	spinner  spinner.Model
	viewport viewport.Model
	state    state
	result   *fluxdiff.Result
	files    []string
	active   int
	err      error
}

type state int

const (
	stateProcessing state = iota
	stateReview
	stateSummary
	stateError
)

// New returns a model that reviews refinedText against original.
func New(app *fluxdiff.App, original model.Bundle, refinedText string) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return Model{
		app:         app,
		original:    original,
		refinedText: refinedText,
		spinner:     s,
		viewport:    viewport.New(80, 20),
		state:       stateProcessing,
	}
}

// Result is the finished review, or nil if it did not complete.
func (m Model) Result() *fluxdiff.Result { return m.result }

// Err is the error the review ended with.
func (m Model) Err() error { return m.err }

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.runApp)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "tab", "right", "l":
			m.selectFile(m.active + 1)
			return m, nil
		case "shift+tab", "left", "h":
			m.selectFile(m.active - 1)
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-chromeHeight, 1)
		return m, nil

	case resultMsg:
		m.result = msg.Result
		m.files = changedFiles(msg.Result)
		if len(m.files) == 0 {
			m.state = stateSummary
			return m, tea.Quit
		}
		m.state = stateReview
		m.selectFile(0)
		return m, nil

	case errorMsg:
		m.state = stateError
		m.err = msg.err
		return m, tea.Quit
	}

	var cmd tea.Cmd
	switch m.state {
	case stateProcessing:
		m.spinner, cmd = m.spinner.Update(msg)
	case stateReview:
		m.viewport, cmd = m.viewport.Update(msg)
	}
	return m, cmd
}

// selectFile activates the tab at i, wrapping around at both ends.
func (m *Model) selectFile(i int) {
	if len(m.files) == 0 {
		return
	}
	m.active = (i%len(m.files) + len(m.files)) % len(m.files)
	m.viewport.SetContent(render.Terminal(m.result.DiffLines[m.files[m.active]]))
	m.viewport.GotoTop()
}

func (m Model) View() string {
	switch m.state {
	case stateProcessing:
		return fmt.Sprintf("%s Reviewing...", m.spinner.View())
	case stateError:
		return errorStyle.Render("Error: ", m.err.Error())
	case stateSummary:
		return faintStyle.Render("No changes.")
	case stateReview:
		return m.renderReview()
	default:
		return ""
	}
}

func (m Model) renderReview() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(summaryLine(m.result.Summary)))
	b.WriteString("\n")

	tabs := make([]string, len(m.files))
	for i, name := range m.files {
		if i == m.active {
			tabs[i] = activeTabStyle.Render(name)
		} else {
			tabs[i] = tabStyle.Render(name)
		}
	}
	b.WriteString(strings.Join(tabs, " │ "))
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(faintStyle.Render(fmt.Sprintf("%d/%d • tab/shift+tab: switch file • ↑/↓: scroll • q: quit", m.active+1, len(m.files))))
	return b.String()
}

func summaryLine(s model.Summary) string {
	return fmt.Sprintf("%d changed, %d added, %d missing, %d unchanged",
		len(s.Changed), len(s.Added), len(s.Missing), len(s.Unchanged))
}

// changedFiles lists the files whose diff is not empty, in the order the
// summary reports them.
func changedFiles(result *fluxdiff.Result) []string {
	var files []string
	for _, group := range [][]string{result.Summary.Changed, result.Summary.Added, result.Summary.Missing} {
		for _, name := range group {
			if !result.DiffLines[name].Identical() {
				files = append(files, name)
			}
		}
	}
	return files
}

func (m Model) runApp() tea.Msg {
	result, err := m.app.Review(context.Background(), m.original, m.refinedText)
	if err != nil {
		var detailed *fluxdiff.DetailedError
		if errors.As(err, &detailed) {
			// The TUI will exit, so we can print to stderr here for the stack trace.
			fmt.Fprintf(os.Stderr, "\n--- Stack Trace ---\n%s\n", detailed.Stack)
		}
		return errorMsg{err}
	}
	return resultMsg{Result: result}
}
