// Package diffreport turns an (original, refined) pair of file bodies into a
// categorized unified line diff.
package diffreport

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/sync/errgroup"

	"github.com/agentflux/fluxdiff/model"
)

// DefaultContext is the number of unchanged lines kept around each change.
const DefaultContext = 3

type options struct {
	filename string
	from     string
	to       string
	context  int
}

// Option customizes Compute.
type Option func(*options)

// WithFilename labels the report and its headers "a/<name>" and "b/<name>".
func WithFilename(name string) Option {
	return func(o *options) {
		o.filename = name
		o.from = "a/" + name
		o.to = "b/" + name
	}
}

// WithContext overrides the number of context lines. Negative values are ignored.
func WithContext(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.context = n
		}
	}
}

// SplitLines splits a body on "\n". A trailing newline does not produce a
// final empty line and an empty body has no lines.
func SplitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

// Compute returns the unified diff of original against refined. Identical
// inputs give a report without lines. Line kinds are assigned from the diff
// structure, so a deleted line that itself starts with "--" stays a deletion.
func Compute(original, refined string, opts ...Option) model.FileDiffReport {
	o := options{from: "original", to: "refined", context: DefaultContext}
	for _, opt := range opts {
		opt(&o)
	}

	a, b := SplitLines(original), SplitLines(refined)
	report := model.FileDiffReport{Filename: o.filename, Lines: []model.DiffLine{}}

	groups := difflib.NewMatcher(a, b).GetGroupedOpCodes(o.context)
	if len(groups) == 0 {
		return report
	}

	emit := func(kind model.DiffKind, text string) {
		report.Lines = append(report.Lines, model.DiffLine{Kind: kind, Text: text})
	}

	emit(model.Header, "--- "+o.from)
	emit(model.Header, "+++ "+o.to)
	for _, group := range groups {
		first, last := group[0], group[len(group)-1]
		emit(model.Hunk, fmt.Sprintf("@@ -%s +%s @@", formatRange(first.I1, last.I2), formatRange(first.J1, last.J2)))
		for _, op := range group {
			switch op.Tag {
			case 'e':
				for _, line := range a[op.I1:op.I2] {
					emit(model.Context, " "+line)
				}
			case 'r', 'd', 'i':
				for _, line := range a[op.I1:op.I2] {
					emit(model.Deletion, "-"+line)
				}
				for _, line := range b[op.J1:op.J2] {
					emit(model.Addition, "+"+line)
				}
			}
		}
	}
	return report
}

// formatRange renders a hunk range: the length is omitted when it is one and
// an empty range points at the line before it.
func formatRange(start, stop int) string {
	beginning := start + 1
	length := stop - start
	if length == 1 {
		return fmt.Sprintf("%d", beginning)
	}
	if length == 0 {
		beginning--
	}
	return fmt.Sprintf("%d,%d", beginning, length)
}

// Classify categorizes a unified diff line by its leading marker.
func Classify(line string) model.DiffKind {
	switch {
	case strings.HasPrefix(line, "---"), strings.HasPrefix(line, "+++"):
		return model.Header
	case strings.HasPrefix(line, "@@"):
		return model.Hunk
	case strings.HasPrefix(line, "-"):
		return model.Deletion
	case strings.HasPrefix(line, "+"):
		return model.Addition
	default:
		return model.Context
	}
}

// Parse reads unified diff text into a report. Lines are classified by their
// leading marker, except that "---" and "+++" only count as headers before
// the first hunk.
func Parse(unified string) model.FileDiffReport {
	report := model.FileDiffReport{Lines: []model.DiffLine{}}
	inHunk := false
	for _, line := range SplitLines(unified) {
		kind := Classify(line)
		switch {
		case kind == model.Hunk:
			inHunk = true
		case kind == model.Header && inHunk:
			kind = model.Deletion
			if strings.HasPrefix(line, "+") {
				kind = model.Addition
			}
		}
		report.Lines = append(report.Lines, model.DiffLine{Kind: kind, Text: line})
	}
	return report
}

// String renders the report as unified diff text.
func String(report model.FileDiffReport) string {
	lines := make([]string, len(report.Lines))
	for i, line := range report.Lines {
		lines[i] = line.Text
	}
	return strings.Join(lines, "\n")
}

// ComputeAll diffs every file of the original bundle against the refined
// bundle. A file missing from either side is compared with an empty body.
// Files are diffed in parallel; the only error is context cancellation.
func ComputeAll(ctx context.Context, original, refined model.Bundle) (map[string]model.FileDiffReport, error) {
	names := unionNames(original, refined)
	reports := make([]model.FileDiffReport, len(names))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, name := range names {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			reports[i] = Compute(original[name], refined[name], WithFilename(name))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]model.FileDiffReport, len(names))
	for i, name := range names {
		out[name] = reports[i]
	}
	return out, nil
}

func unionNames(bundles ...model.Bundle) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, b := range bundles {
		for name := range b {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
