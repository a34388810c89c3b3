package parser

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// CodeBlock is a fenced code block found in markdown.
type CodeBlock struct {
	// Hint is the text of the paragraph or heading right before the block.
	Hint string
	// Lang is the info string language, e.g. "go" or "diff".
	Lang string
	// Content is the raw text inside the fences.
	Content string
}

// ExtractCodeBlocks walks the markdown AST and returns every fenced code
// block in document order together with its hint.
func ExtractCodeBlocks(source []byte) ([]CodeBlock, error) {
	var blocks []CodeBlock
	root := goldmark.DefaultParser().Parse(text.NewReader(source))

	walker := func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		fenced, ok := node.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}

		block := CodeBlock{
			Lang:    string(fenced.Language(source)),
			Content: linesText(fenced.Lines(), source),
		}
		switch prev := fenced.PreviousSibling().(type) {
		case *ast.Paragraph:
			block.Hint = strings.TrimSpace(linesText(prev.Lines(), source))
		case *ast.Heading:
			block.Hint = strings.TrimSpace(linesText(prev.Lines(), source))
		}

		blocks = append(blocks, block)
		return ast.WalkSkipChildren, nil
	}

	if err := ast.Walk(root, walker); err != nil {
		return nil, err
	}
	return blocks, nil
}

func linesText(lines *text.Segments, source []byte) string {
	var buf bytes.Buffer
	for i := 0; i < lines.Len(); i++ {
		segment := lines.At(i)
		buf.Write(segment.Value(source))
	}
	return buf.String()
}
