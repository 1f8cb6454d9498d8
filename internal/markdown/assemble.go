package markdown

import (
	"strings"
	"time"
)

// Assemble joins translated chunks into one document. Runs of blank lines
// are collapsed, and when the document does not open with a heading its
// first line is promoted to a level-1 title.
func Assemble(chunks []string) string {
	if len(chunks) == 0 {
		return ""
	}
	content := blankRunRe.ReplaceAllString(strings.Join(chunks, "\n\n"), "\n\n")

	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "#") {
		return content
	}

	lines := strings.Split(trimmed, "\n")
	first := strings.TrimSpace(lines[0])
	if first == "" {
		return content
	}
	rest := strings.TrimLeft(strings.Join(lines[1:], "\n"), "\n")
	return "# " + first + "\n\n" + rest
}

// Field is one front-matter entry.
type Field struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Metadata is an ordered set of front-matter entries.
type Metadata []Field

// Get returns the value for key and whether it was present.
func (m Metadata) Get(key string) (string, bool) {
	for _, f := range m {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// Set replaces the value for key, appending it if absent.
func (m Metadata) Set(key, value string) Metadata {
	for i := range m {
		if m[i].Key == key {
			m[i].Value = value
			return m
		}
	}
	return append(m, Field{Key: key, Value: value})
}

// DefaultMetadata is the front matter written for a translated paper.
func DefaultMetadata(source string, now time.Time) Metadata {
	return Metadata{
		{Key: "title", Value: "翻译论文"},
		{Key: "date", Value: now.Format("2006-01-02")},
		{Key: "source", Value: source},
		{Key: "translator", Value: "papertrans"},
	}
}

// AddMetadata prepends a front-matter block to content. With no metadata
// content is returned unchanged.
func AddMetadata(content string, meta Metadata) string {
	if len(meta) == 0 {
		return content
	}
	var sb strings.Builder
	sb.WriteString(frontMatterDelim + "\n")
	for _, f := range meta {
		sb.WriteString(f.Key)
		sb.WriteString(": ")
		sb.WriteString(f.Value)
		sb.WriteString("\n")
	}
	sb.WriteString(frontMatterDelim + "\n\n")
	sb.WriteString(content)
	return sb.String()
}
