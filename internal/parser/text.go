package parser

import (
	"bufio"
	"io"
	"strings"

	"github.com/dgallion1/papertrans/internal/document"
)

// TextExtractor handles plain text files. Blank lines separate blocks and
// form feeds separate pages.
type TextExtractor struct{}

func (p *TextExtractor) Extract(r io.Reader, filename string) ([]document.TextBlock, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var blocks []document.TextBlock
	page := 0
	var paragraphs []string
	var current strings.Builder

	flushPara := func() {
		if current.Len() > 0 {
			paragraphs = append(paragraphs, current.String())
			current.Reset()
		}
	}
	flushPage := func() {
		flushPara()
		blocks = append(blocks, paragraphBlocks(paragraphs, page)...)
		paragraphs = nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		for strings.Contains(line, "\f") {
			before, after, _ := strings.Cut(line, "\f")
			if strings.TrimSpace(before) != "" {
				appendLine(&current, before)
			}
			flushPage()
			page++
			line = after
		}
		if strings.TrimSpace(line) == "" {
			flushPara()
			continue
		}
		appendLine(&current, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, &DocumentOpenError{Name: filename, Err: err}
	}
	flushPage()

	return finish(blocks), nil
}

func appendLine(sb *strings.Builder, line string) {
	if sb.Len() > 0 {
		sb.WriteString("\n")
	}
	sb.WriteString(line)
}
