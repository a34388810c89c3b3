package codec

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/agentflux/fluxdiff/model"
)

// DiagnosticKind names a recoverable problem found while decoding.
type DiagnosticKind string

const (
	EmptyFilename     DiagnosticKind = "empty_filename"
	UnmatchedFence    DiagnosticKind = "unmatched_fence"
	DuplicateFilename DiagnosticKind = "duplicate_filename"
	MissingColon      DiagnosticKind = "missing_colon"
)

// Diagnostic reports a malformed segment that decoding skipped or repaired.
// Diagnostics never stop decoding.
type Diagnostic struct {
	Kind     DiagnosticKind `json:"kind"`
	Filename string         `json:"filename,omitempty"`
	Offset   int            `json:"offset"`
	Message  string         `json:"message"`
}

const (
	minSigilRun = 2
	maxSigilRun = 5
)

var (
	// filenameMarkerRegex matches a '%' run, the filename and the terminating colon.
	// The filename may hold single '%' characters but never starts with one, so a
	// run longer than five cannot be read as a shorter run plus a name.
	filenameMarkerRegex = regexp.MustCompile(`%{2,5}(?P<name>[^\n:%]+(?:%[^\n:%]+)*)?:`)

	// fenceRunRegex finds maximal '$' runs; lengths outside 2-5 are ignored.
	fenceRunRegex = regexp.MustCompile(`\$+`)

	// closingMarkerRegex matches a trailing "%%%%name" line at the end of a block.
	closingMarkerRegex = regexp.MustCompile(`(?:^|\n)[ \t]*%{2,5}(?P<name>[^\n:%]+(?:%[^\n:%]+)*)\s*$`)

	// bareMarkerRegex matches a line that looks like a filename marker without its colon.
	bareMarkerRegex = regexp.MustCompile(`(?m)^[ \t]*%{2,5}(?P<name>[^\n:%]+(?:%[^\n:%]+)*)[ \t]*$`)
)

type marker struct {
	start int
	end   int
	name  string
}

type span struct {
	start int
	end   int
}

func (s span) len() int { return s.end - s.start }

// Decode recovers the filename to body mapping from a marked bundle. A
// repeated filename keeps the body of its last block. Decode never fails:
// malformed segments are skipped and an input without filename markers
// yields an empty bundle.
func Decode(text string) model.Bundle {
	blocks, _ := DecodeBlocks(text)
	bundle := make(model.Bundle, len(blocks))
	for _, block := range blocks {
		bundle[block.Filename] = block.Body
	}
	return bundle
}

// DecodeBlocks returns every well-formed block in document order, including
// superseded duplicates, together with diagnostics for what was skipped or
// repaired.
func DecodeBlocks(text string) ([]model.FileBlock, []Diagnostic) {
	markers := findMarkers(text)

	var diags []Diagnostic
	preambleEnd := len(text)
	if len(markers) > 0 {
		preambleEnd = markers[0].start
	}
	diags = append(diags, bareMarkers(text[:preambleEnd], 0, "")...)

	var blocks []model.FileBlock
	seen := make(map[string]int)
	for i, m := range markers {
		end := len(text)
		if i+1 < len(markers) {
			end = markers[i+1].start
		}

		if m.name == "" {
			diags = append(diags, Diagnostic{
				Kind:    EmptyFilename,
				Offset:  m.start,
				Message: "filename marker without a filename was skipped",
			})
			continue
		}

		body, blockDiags := extractBody(m.name, text[m.end:end], m.end)
		diags = append(diags, blockDiags...)

		if first, ok := seen[m.name]; ok {
			diags = append(diags, Diagnostic{
				Kind:     DuplicateFilename,
				Filename: m.name,
				Offset:   m.start,
				Message:  fmt.Sprintf("block supersedes the earlier block at offset %d", first),
			})
		}
		seen[m.name] = m.start

		blocks = append(blocks, model.FileBlock{Filename: m.name, Body: body})
	}
	return blocks, diags
}

// HasMarkers reports whether text contains at least one filename marker,
// including markers with an empty filename.
func HasMarkers(text string) bool {
	return len(findMarkers(text)) > 0
}

func findMarkers(text string) []marker {
	nameIdx := filenameMarkerRegex.SubexpIndex("name")
	var markers []marker
	for _, loc := range filenameMarkerRegex.FindAllStringSubmatchIndex(text, -1) {
		start := loc[0]
		if start > 0 && text[start-1] == '%' {
			// Tail of a run longer than the protocol allows.
			continue
		}
		var name string
		if loc[2*nameIdx] >= 0 {
			name = strings.TrimSpace(text[loc[2*nameIdx]:loc[2*nameIdx+1]])
		}
		markers = append(markers, marker{start: start, end: loc[1], name: name})
	}
	return markers
}

// extractBody pulls the body out of the block text that follows a filename
// marker. offset is the position of content within the whole input.
func extractBody(name, content string, offset int) (string, []Diagnostic) {
	runs := fenceRuns(content)
	for i, open := range runs {
		for _, closing := range runs[i+1:] {
			if closing.len() != open.len() {
				continue
			}
			var diags []Diagnostic
			diags = append(diags, bareMarkers(content[:open.start], offset, name)...)
			diags = append(diags, bareMarkers(content[closing.end:], offset+closing.end, name)...)
			return trimFenceNewlines(content[open.end:closing.start]), diags
		}
	}

	var diags []Diagnostic
	if len(runs) > 0 {
		diags = append(diags, Diagnostic{
			Kind:     UnmatchedFence,
			Filename: name,
			Offset:   offset + runs[0].start,
			Message:  "no fence pair of equal length; using the whole block",
		})
	}

	body := content
	if loc := closingMarkerRegex.FindStringSubmatchIndex(body); loc != nil {
		idx := 2 * closingMarkerRegex.SubexpIndex("name")
		if strings.TrimSpace(body[loc[idx]:loc[idx+1]]) == name {
			body = body[:loc[0]]
		}
	}
	diags = append(diags, bareMarkers(body, offset, name)...)
	return strings.TrimSpace(body), diags
}

func fenceRuns(content string) []span {
	var runs []span
	for _, loc := range fenceRunRegex.FindAllStringIndex(content, -1) {
		run := span{start: loc[0], end: loc[1]}
		if run.len() >= minSigilRun && run.len() <= maxSigilRun {
			runs = append(runs, run)
		}
	}
	return runs
}

// trimFenceNewlines strips the single newline each fence introduces. A CRLF
// after the opening fence marks the body as CRLF, so the carriage return
// before the closing fence goes too.
func trimFenceNewlines(body string) string {
	crlf := strings.HasPrefix(body, "\r\n")
	switch {
	case crlf:
		body = body[2:]
	case strings.HasPrefix(body, "\n"):
		body = body[1:]
	}
	if strings.HasSuffix(body, "\n") {
		body = body[:len(body)-1]
		if crlf {
			body = strings.TrimSuffix(body, "\r")
		}
	}
	return body
}

// bareMarkers reports lines that look like filename markers missing their
// colon. The closing marker of the current block is expected and skipped.
func bareMarkers(segment string, offset int, current string) []Diagnostic {
	idx := 2 * bareMarkerRegex.SubexpIndex("name")
	var diags []Diagnostic
	for _, loc := range bareMarkerRegex.FindAllStringSubmatchIndex(segment, -1) {
		name := strings.TrimSpace(segment[loc[idx]:loc[idx+1]])
		if name == current {
			continue
		}
		diags = append(diags, Diagnostic{
			Kind:     MissingColon,
			Filename: name,
			Offset:   offset + loc[0],
			Message:  "filename marker without a terminating colon was ignored",
		})
	}
	return diags
}
