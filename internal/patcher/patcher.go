// Package patcher replays diff reports against original file lines.
package patcher

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/agentflux/fluxdiff/model"
)

// ErrHunkNotFound is returned when a hunk's context cannot be located.
var ErrHunkNotFound = errors.New("could not find matching block for hunk")

var hunkHeaderRegex = regexp.MustCompile(`^@@ -(?P<old_start>\d+)(?:,(?P<old_lines>\d+))? \+(?P<new_start>\d+)(?:,(?P<new_lines>\d+))? @@`)

type hunk struct {
	header   string
	oldStart int
	oldLines int
	lines    []model.DiffLine
}

// target returns the lines the hunk expects in the original: context and
// deletions, without their markers.
func (h hunk) target() []string {
	var block []string
	for _, line := range h.lines {
		if line.Kind == model.Context || line.Kind == model.Deletion {
			block = append(block, strip(line.Text))
		}
	}
	return block
}

// index is the 0-based position the header points at. An empty old range
// names the line after which the hunk inserts.
func (h hunk) index() int {
	if h.oldLines == 0 {
		return h.oldStart
	}
	return h.oldStart - 1
}

func strip(text string) string {
	if text == "" {
		return ""
	}
	return text[1:]
}

func parseHunks(report model.FileDiffReport) ([]hunk, error) {
	var hunks []hunk
	for _, line := range report.Lines {
		switch line.Kind {
		case model.Header:
			continue
		case model.Hunk:
			h, err := parseHunkHeader(line.Text)
			if err != nil {
				return nil, err
			}
			hunks = append(hunks, h)
		default:
			if len(hunks) == 0 {
				return nil, fmt.Errorf("diff line %q appears before any hunk header", line.Text)
			}
			last := &hunks[len(hunks)-1]
			last.lines = append(last.lines, line)
		}
	}
	return hunks, nil
}

func parseHunkHeader(text string) (hunk, error) {
	match := hunkHeaderRegex.FindStringSubmatch(text)
	if match == nil {
		return hunk{}, fmt.Errorf("malformed hunk header %q", text)
	}
	h := hunk{header: text, oldLines: 1}
	h.oldStart, _ = strconv.Atoi(match[hunkHeaderRegex.SubexpIndex("old_start")])
	if n := match[hunkHeaderRegex.SubexpIndex("old_lines")]; n != "" {
		h.oldLines, _ = strconv.Atoi(n)
	}
	return h, nil
}

// normalizeLineForMatching trims whitespace and collapses internal runs of
// whitespace to a single space.
func normalizeLineForMatching(line string) string {
	return strings.Join(strings.Fields(line), " ")
}

// matchBlock returns the first index at or after from where block occurs in
// source, or -1. With normalize set, lines compare whitespace-insensitively.
func matchBlock(source, block []string, from int, normalize bool) int {
	eq := func(a, b string) bool { return a == b }
	if normalize {
		eq = func(a, b string) bool {
			return normalizeLineForMatching(a) == normalizeLineForMatching(b)
		}
	}
	for i := from; i <= len(source)-len(block); i++ {
		match := true
		for j := range block {
			if !eq(source[i+j], block[j]) {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// locate finds where a hunk applies. The header position is trusted when the
// context lines up there; otherwise the hunk is searched for from the end of
// the previous hunk, first exactly and then ignoring whitespace differences.
func locate(source []string, h hunk, from int) (int, error) {
	block := h.target()
	idx := h.index()
	if idx >= from && idx+len(block) <= len(source) && matchBlock(source[:idx+len(block)], block, idx, false) == idx {
		return idx, nil
	}
	if len(block) == 0 {
		return -1, fmt.Errorf("%s: %w", h.header, ErrHunkNotFound)
	}
	if i := matchBlock(source, block, from, false); i >= 0 {
		return i, nil
	}
	if i := matchBlock(source, block, from, true); i >= 0 {
		return i, nil
	}
	return -1, fmt.Errorf("%s: %w", h.header, ErrHunkNotFound)
}

// Apply replays a report against the original lines and returns the refined
// lines. Context lines are copied from the original, deletions drop a line
// and additions insert theirs.
func Apply(original []string, report model.FileDiffReport) ([]string, error) {
	hunks, err := parseHunks(report)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(original))
	pos := 0
	for _, h := range hunks {
		start, err := locate(original, h, pos)
		if err != nil {
			return nil, err
		}
		out = append(out, original[pos:start]...)
		cursor := start
		for _, line := range h.lines {
			switch line.Kind {
			case model.Context:
				out = append(out, original[cursor])
				cursor++
			case model.Deletion:
				cursor++
			case model.Addition:
				out = append(out, strip(line.Text))
			}
		}
		pos = cursor
	}
	return append(out, original[pos:]...), nil
}

func buildHunkHeader(oldStart, oldLines, newStart, newLines int) string {
	return fmt.Sprintf("@@ -%d,%d +%d,%d @@", oldStart, oldLines, newStart, newLines)
}

// Correct rewrites every hunk header of a report so its start and count
// match where the hunk actually applies in source. Headers of the report are
// kept; a report without headers gets "a/<name>" and "b/<name>" headers.
func Correct(source []string, report model.FileDiffReport) (model.FileDiffReport, error) {
	hunks, err := parseHunks(report)
	if err != nil {
		return model.FileDiffReport{}, err
	}

	corrected := model.FileDiffReport{Filename: report.Filename}
	for _, line := range report.Lines {
		if line.Kind == model.Header {
			corrected.Lines = append(corrected.Lines, line)
		}
	}
	if len(corrected.Lines) == 0 && report.Filename != "" {
		corrected.Lines = append(corrected.Lines,
			model.DiffLine{Kind: model.Header, Text: "--- a/" + report.Filename},
			model.DiffLine{Kind: model.Header, Text: "+++ b/" + report.Filename},
		)
	}

	lineDiffOffset := 0
	pos := 0
	for _, h := range hunks {
		start, err := locate(source, h, pos)
		if err != nil {
			return model.FileDiffReport{}, err
		}

		addCount, removeCount := 0, 0
		for _, line := range h.lines {
			switch line.Kind {
			case model.Addition:
				addCount++
			case model.Deletion:
				removeCount++
			}
		}
		contextCount := len(h.lines) - addCount - removeCount

		oldLines := contextCount + removeCount
		newLines := contextCount + addCount
		oldStart := start
		if oldLines > 0 {
			oldStart++
		}
		newStart := start + lineDiffOffset
		if newLines > 0 {
			newStart++
		}

		corrected.Lines = append(corrected.Lines, model.DiffLine{Kind: model.Hunk, Text: buildHunkHeader(oldStart, oldLines, newStart, newLines)})
		corrected.Lines = append(corrected.Lines, h.lines...)

		lineDiffOffset += newLines - oldLines
		pos = start + oldLines
	}
	return corrected, nil
}
