package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"github.com/agentflux/fluxdiff/model"
)

var (
	HeaderColor  = color.New(color.FgBlue, color.Bold)
	InfoColor    = color.New(color.FgCyan)
	SuccessColor = color.New(color.FgGreen)
	WarningColor = color.New(color.FgYellow)
	ErrorColor   = color.New(color.FgRed)
	PathColor    = color.New(color.FgYellow)
)

// Output is where the helpers write. Tests swap it out.
var Output io.Writer = os.Stderr

func Header(format string, a ...interface{}) {
	HeaderColor.Fprintf(Output, format+"\n", a...)
}

func Info(format string, a ...interface{}) {
	InfoColor.Fprintf(Output, format+"\n", a...)
}

func Success(format string, a ...interface{}) {
	SuccessColor.Fprintf(Output, format+"\n", a...)
}

func Warning(format string, a ...interface{}) {
	WarningColor.Fprintf(Output, format+"\n", a...)
}

func Error(format string, a ...interface{}) {
	ErrorColor.Fprintf(Output, format+"\n", a...)
}

func Path(format string, a ...interface{}) {
	PathColor.Fprintf(Output, "  "+format+"\n", a...)
}

// PrintSummary lists the files of a refinement by outcome.
func PrintSummary(summary model.Summary) {
	Header("\n--- Refinement Summary ---")
	if summary.Message != "" {
		Info("%s", summary.Message)
	}

	if len(summary.Changed) == 0 && len(summary.Added) == 0 && len(summary.Missing) == 0 {
		Info("No files were changed.")
	}
	printGroup(SuccessColor, "Changed %d file(s):", summary.Changed)
	printGroup(SuccessColor, "Added %d file(s):", summary.Added)
	printGroup(WarningColor, "Missing from refined output, %d file(s):", summary.Missing)
	if len(summary.Unchanged) > 0 {
		Info("Unchanged: %d file(s)", len(summary.Unchanged))
	}
}

func printGroup(c *color.Color, title string, files []string) {
	if len(files) == 0 {
		return
	}
	c.Fprintf(Output, title+"\n", len(files))
	for _, f := range files {
		fmt.Fprintf(Output, "  - %s\n", f)
	}
}
