package pipeline

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	whitespaceRe   = regexp.MustCompile(`\s+`)
	trailingPageRe = regexp.MustCompile(`\b\d+\s*$`)
	leadingPageRe  = regexp.MustCompile(`^\s*\d+\b`)
	citationRe     = regexp.MustCompile(`\[\d+\]`)
)

// BasicClean is the rule-based cleanup used when the model cannot clean a
// chunk: whitespace collapsed to single spaces, a bare page number at
// either end removed, numeric citation markers like [12] removed.
func BasicClean(chunk string) string {
	s := norm.NFKC.String(strings.TrimSpace(chunk))
	s = whitespaceRe.ReplaceAllString(s, " ")
	s = trailingPageRe.ReplaceAllString(s, "")
	s = leadingPageRe.ReplaceAllString(s, "")
	s = citationRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
