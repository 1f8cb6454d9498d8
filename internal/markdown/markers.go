// Package markdown turns per-chunk LLM output into the final translated
// Markdown document.
package markdown

import (
	"regexp"
	"strings"
)

const (
	titleOpen  = "<Title>"
	titleClose = "</Title>"
	endMarker  = "<End>"
)

var (
	titleRe      = regexp.MustCompile(`<Title>(.*?)</Title>`)
	blankRunRe   = regexp.MustCompile(`\n\s*\n\s*\n`)
	innerSpaceRe = regexp.MustCompile(`\s+`)
)

// ConvertTitleMarkers rewrites every <Title>X</Title> as a level-2 heading
// on its own line. All titles become "##" regardless of their depth in the
// paper. A title never spans lines, so a pair split by a line break is left
// as text.
func ConvertTitleMarkers(text string) string {
	out := titleRe.ReplaceAllStringFunc(text, func(m string) string {
		inner := m[len(titleOpen) : len(m)-len(titleClose)]
		inner = strings.TrimSpace(innerSpaceRe.ReplaceAllString(inner, " "))
		return "\n## " + inner + "\n"
	})
	return normalizeBlankLines(out)
}

// ConvertEndMarkers turns each <End> paragraph marker into a line break.
func ConvertEndMarkers(text string) string {
	return normalizeBlankLines(strings.ReplaceAll(text, endMarker, "\n"))
}

// ProcessMarkers applies title conversion followed by paragraph-end
// conversion. Applying it twice gives the same result as applying it once.
func ProcessMarkers(text string) string {
	if text == "" {
		return ""
	}
	return ConvertEndMarkers(ConvertTitleMarkers(text))
}

// HasMarkers reports whether text still contains structural markers.
func HasMarkers(text string) bool {
	return strings.Contains(text, titleOpen) || strings.Contains(text, endMarker)
}

// normalizeBlankLines collapses three or more line breaks (with any
// whitespace between them) to a single blank line and trims the result.
func normalizeBlankLines(text string) string {
	return strings.TrimSpace(blankRunRe.ReplaceAllString(text, "\n\n"))
}
