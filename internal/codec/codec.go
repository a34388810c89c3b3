// Package codec implements the aggregated multi-file text protocol.
//
// A bundle packs several files into one string. Each file is introduced by a
// filename marker (a run of 2-5 '%' followed by the filename and a colon) and
// its body is wrapped in a fence pair (two runs of 2-5 '$' of equal length):
//
//	%%%%main.py:
//	$$$$
//	print("hello")
//	$$$$
//	%%%%main.py
//
// Encode always writes the canonical form above. Decode accepts any sigil run
// length from 2 to 5 and degrades gracefully on malformed model output.
package codec

import (
	"strings"

	"github.com/agentflux/fluxdiff/model"
)

const (
	// FilenameSigil opens a filename marker in the canonical form.
	FilenameSigil = "%%%%"
	// FenceSigil delimits a body in the canonical form.
	FenceSigil = "$$$$"
)

// Encode writes one canonical block per bundle entry, sorted by filename.
func Encode(bundle model.Bundle) string {
	return EncodeBlocks(bundle.Blocks())
}

// EncodeBlocks writes one canonical block per entry, preserving order.
func EncodeBlocks(blocks []model.FileBlock) string {
	var b strings.Builder
	for i, block := range blocks {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(FilenameSigil)
		b.WriteString(block.Filename)
		b.WriteString(":\n")
		b.WriteString(FenceSigil)
		b.WriteString("\n")
		b.WriteString(block.Body)
		b.WriteString("\n")
		b.WriteString(FenceSigil)
		b.WriteString("\n")
		b.WriteString(FilenameSigil)
		b.WriteString(block.Filename)
	}
	return b.String()
}

// ValidFilename reports whether name decodes back to itself once encoded:
// it is non-empty, has no surrounding whitespace, and holds no newline, no
// colon and no '%' at its ends or next to another '%'.
func ValidFilename(name string) bool {
	if name == "" || name != strings.TrimSpace(name) {
		return false
	}
	if strings.ContainsAny(name, "\n:") || strings.Contains(name, "%%") {
		return false
	}
	return name[0] != '%' && name[len(name)-1] != '%'
}
