package markdown

import (
	"bytes"
	"fmt"
	"html"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

var previewRenderer = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
)

// RenderHTML converts a translated document to an HTML fragment for
// previewing. Front matter is rendered as a two-column table above the
// body.
func RenderHTML(content string) (string, error) {
	meta, body, err := ParseFrontMatter(content)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if len(meta) > 0 {
		buf.WriteString("<table class=\"front-matter\">\n")
		for _, f := range meta {
			fmt.Fprintf(&buf, "<tr><th>%s</th><td>%s</td></tr>\n", html.EscapeString(f.Key), html.EscapeString(f.Value))
		}
		buf.WriteString("</table>\n")
	}
	if err := previewRenderer.Convert([]byte(body), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}
