// Package render formats diff reports for browsers and terminals.
package render

import (
	"html"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/agentflux/fluxdiff/internal/diffreport"
	"github.com/agentflux/fluxdiff/model"
)

var htmlStyles = map[model.DiffKind]string{
	model.Header:   "color:gray;",
	model.Hunk:     "color:blue;",
	model.Deletion: "background-color: rgb(251, 106, 140);",
	model.Addition: "background-color: rgba(74, 255, 128, 0.628);",
}

// HTML renders one div per diff line. Context lines carry no style.
func HTML(report model.FileDiffReport) string {
	var b strings.Builder
	for _, line := range report.Lines {
		if style, ok := htmlStyles[line.Kind]; ok {
			b.WriteString(`<div style="`)
			b.WriteString(style)
			b.WriteString(`">`)
		} else {
			b.WriteString("<div>")
		}
		b.WriteString(html.EscapeString(line.Text))
		b.WriteString("</div>")
	}
	return b.String()
}

var (
	headerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	hunkStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("63"))
	deletionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("197"))
	additionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("78"))
	contextStyle  = lipgloss.NewStyle()
)

// StyleFor returns the terminal style for a line kind.
func StyleFor(kind model.DiffKind) lipgloss.Style {
	switch kind {
	case model.Header:
		return headerStyle
	case model.Hunk:
		return hunkStyle
	case model.Deletion:
		return deletionStyle
	case model.Addition:
		return additionStyle
	default:
		return contextStyle
	}
}

// Terminal renders the report with ANSI colors.
func Terminal(report model.FileDiffReport) string {
	rows := make([]string, len(report.Lines))
	for i, line := range report.Lines {
		rows[i] = StyleFor(line.Kind).Render(line.Text)
	}
	return strings.Join(rows, "\n")
}

// Plain renders the report as unified diff text.
func Plain(report model.FileDiffReport) string {
	return diffreport.String(report)
}
