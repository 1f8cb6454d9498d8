package parser

import (
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/papertrans/internal/document"
	"golang.org/x/net/html"
)

// HTMLExtractor handles HTML files. Paragraph-like elements become blocks
// and h1-h6 become title-marked blocks.
type HTMLExtractor struct{}

func (p *HTMLExtractor) Extract(r io.Reader, filename string) ([]document.TextBlock, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, &DocumentOpenError{Name: filename, Err: fmt.Errorf("parse html: %w", err)}
	}

	var paragraphs []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if headingLevel(n.Data) > 0 {
				if t := textContent(n); t != "" {
					paragraphs = append(paragraphs, titleMarker(t))
				}
				return
			}
			switch n.Data {
			case "script", "style", "nav", "footer", "header", "noscript":
				return
			case "p", "li", "td", "blockquote", "pre", "figcaption":
				if t := textContent(n); t != "" {
					paragraphs = append(paragraphs, t)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	if body := findElement(doc, "body"); body != nil {
		walk(body)
	} else {
		walk(doc)
	}

	if len(paragraphs) == 0 {
		if title := findElement(doc, "title"); title != nil {
			if t := textContent(title); t != "" {
				paragraphs = append(paragraphs, titleMarker(t))
			}
		}
	}
	return finish(paragraphBlocks(paragraphs, 0)), nil
}

// MetaContent returns the content attribute of the first <meta name=...>
// tag matching name, case-insensitively. Landing pages of journals expose
// the PDF link as citation_pdf_url this way.
func MetaContent(r io.Reader, name string) (string, bool) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", false
	}
	var found string
	var ok bool
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if ok {
			return
		}
		if n.Type == html.ElementNode && n.Data == "meta" && strings.EqualFold(attr(n, "name"), name) {
			if c := strings.TrimSpace(attr(n, "content")); c != "" {
				found, ok = c, true
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return found, ok
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func headingLevel(tag string) int {
	if len(tag) == 2 && tag[0] == 'h' && tag[1] >= '1' && tag[1] <= '6' {
		return int(tag[1] - '0')
	}
	return 0
}

func textContent(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		if n.Type == html.ElementNode && n.Data == "br" {
			buf.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.TrimSpace(buf.String())
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findElement(c, tag); b != nil {
			return b
		}
	}
	return nil
}
