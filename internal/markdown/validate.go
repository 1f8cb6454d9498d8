package markdown

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	msgEmpty          = "content empty"
	msgTooShort       = "content too short"
	msgNoHeading      = "no heading found"
	msgUnbalancedMath = "unbalanced $$ math delimiters"

	minContentChars = 10
)

var anyHeadingRe = regexp.MustCompile(`(?m)^#+\s+.*$`)

// ValidationResult reports structural problems in an assembled document.
// Warnings never affect IsValid.
type ValidationResult struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Validate checks the final document for structural defects.
func Validate(content string) ValidationResult {
	res := ValidationResult{Errors: []string{}, Warnings: []string{}}
	if content == "" {
		res.Errors = append(res.Errors, msgEmpty)
		return res
	}

	if utf8.RuneCountInString(strings.TrimSpace(content)) < minContentChars {
		res.Warnings = append(res.Warnings, msgTooShort)
	}
	if !anyHeadingRe.MatchString(content) {
		res.Warnings = append(res.Warnings, msgNoHeading)
	}
	if strings.Count(content, "$$")%2 != 0 {
		res.Errors = append(res.Errors, msgUnbalancedMath)
	}

	res.IsValid = len(res.Errors) == 0
	return res
}
