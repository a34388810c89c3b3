package model

import "sort"

// FileBlock is one file recovered from a marked bundle, in document order.
type FileBlock struct {
	Filename string `json:"filename"`
	Body     string `json:"body"`
}

// Bundle maps a filename to its body. When a filename repeats in the
// source text, the last block wins.
type Bundle map[string]string

// Names returns the filenames in sorted order.
func (b Bundle) Names() []string {
	names := make([]string, 0, len(b))
	for name := range b {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Blocks returns the bundle as blocks sorted by filename.
func (b Bundle) Blocks() []FileBlock {
	blocks := make([]FileBlock, 0, len(b))
	for _, name := range b.Names() {
		blocks = append(blocks, FileBlock{Filename: name, Body: b[name]})
	}
	return blocks
}

// DiffKind categorizes a single line of a unified diff.
type DiffKind string

const (
	Header   DiffKind = "header"
	Hunk     DiffKind = "hunk"
	Addition DiffKind = "addition"
	Deletion DiffKind = "deletion"
	Context  DiffKind = "context"
)

// DiffLine is one emitted line of a unified diff. Text keeps the leading
// marker ("-", "+", " ", "@@", "---", "+++").
type DiffLine struct {
	Kind DiffKind `json:"kind"`
	Text string   `json:"text"`
}

// FileDiffReport is the ordered diff of one file.
type FileDiffReport struct {
	Filename string     `json:"filename"`
	Lines    []DiffLine `json:"lines"`
}

// Added counts the addition lines.
func (r FileDiffReport) Added() int {
	return r.count(Addition)
}

// Deleted counts the deletion lines.
func (r FileDiffReport) Deleted() int {
	return r.count(Deletion)
}

// Identical reports whether the diff carries no changes.
func (r FileDiffReport) Identical() bool {
	return r.Added() == 0 && r.Deleted() == 0
}

func (r FileDiffReport) count(kind DiffKind) int {
	n := 0
	for _, line := range r.Lines {
		if line.Kind == kind {
			n++
		}
	}
	return n
}

// Summary describes the outcome of a refinement for display.
type Summary struct {
	Changed   []string
	Unchanged []string
	Missing   []string
	Added     []string
	Message   string
}
