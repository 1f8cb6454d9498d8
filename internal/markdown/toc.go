package markdown

import (
	"regexp"
	"strings"
)

const tocHeading = "## 目录"

var (
	headingRe    = regexp.MustCompile(`(?m)^(#+)[ \t]+(.+)$`)
	anchorDropRe = regexp.MustCompile(`[^\p{L}\p{N}_\x{4e00}-\x{9fff}\- ]`)
)

// Heading is an ATX heading found in a document.
type Heading struct {
	Level  int
	Title  string
	Anchor string
}

// Headings returns every ATX heading in content, in document order.
func Headings(content string) []Heading {
	matches := headingRe.FindAllStringSubmatch(content, -1)
	out := make([]Heading, 0, len(matches))
	for _, m := range matches {
		title := strings.TrimRight(m[2], " \t\r")
		out = append(out, Heading{
			Level:  len(m[1]),
			Title:  title,
			Anchor: Anchor(title),
		})
	}
	return out
}

// Anchor derives the link fragment for a heading title.
func Anchor(title string) string {
	s := strings.TrimSpace(anchorDropRe.ReplaceAllString(title, ""))
	return strings.ReplaceAll(strings.ToLower(s), " ", "-")
}

// BuildTableOfContents inserts a table of contents immediately before the
// first heading line. Content without headings is returned unchanged.
func BuildTableOfContents(content string) string {
	headings := Headings(content)
	if len(headings) == 0 {
		return content
	}

	tocLines := []string{tocHeading, ""}
	for _, h := range headings {
		tocLines = append(tocLines, strings.Repeat("  ", h.Level-1)+"- ["+h.Title+"](#"+h.Anchor+")")
	}
	tocLines = append(tocLines, "")
	toc := strings.Join(tocLines, "\n")

	lines := strings.Split(content, "\n")
	out := make([]string, 0, len(lines)+1)
	inserted := false
	for _, line := range lines {
		if !inserted && headingRe.MatchString(line) {
			out = append(out, toc)
			inserted = true
		}
		out = append(out, line)
	}
	if !inserted {
		out = append([]string{toc}, out...)
	}
	return strings.Join(out, "\n")
}
