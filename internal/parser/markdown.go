package parser

import (
	"bytes"
	"io"
	"strings"

	"github.com/dgallion1/papertrans/internal/document"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownExtractor handles Markdown files using goldmark. Each top-level
// block becomes one text block; headings are wrapped in title markers so
// they survive cleaning.
type MarkdownExtractor struct{}

func (p *MarkdownExtractor) Extract(r io.Reader, filename string) ([]document.TextBlock, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, &DocumentOpenError{Name: filename, Err: err}
	}

	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var paragraphs []string
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			if t := strings.TrimSpace(extractText(node, src)); t != "" {
				paragraphs = append(paragraphs, titleMarker(t))
			}
		case *ast.ThematicBreak, *ast.HTMLBlock:
			continue
		default:
			if t := extractText(n, src); t != "" {
				paragraphs = append(paragraphs, t)
			}
		}
	}
	return finish(paragraphBlocks(paragraphs, 0)), nil
}

// titleMarker wraps a heading the way the cleaning stage marks titles.
func titleMarker(s string) string {
	return "<Title>" + strings.Join(strings.Fields(s), " ") + "</Title>"
}

// extractText gets the text content of a goldmark AST node.
func extractText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	if n.Type() == ast.TypeBlock && !n.HasChildren() {
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			buf.Write(line.Value(src))
		}
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			buf.Write(t.Value(src))
			if t.HardLineBreak() || t.SoftLineBreak() {
				buf.WriteByte('\n')
			}
		case *ast.String:
			buf.Write(t.Value)
		default:
			if c.Type() == ast.TypeBlock && buf.Len() > 0 {
				buf.WriteByte('\n')
			}
			buf.WriteString(extractText(c, src))
		}
	}
	return strings.TrimSpace(buf.String())
}
