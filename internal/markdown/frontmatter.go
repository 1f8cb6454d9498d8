package markdown

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/goccy/go-yaml"
)

const frontMatterDelim = "---"

var flatFieldRe = regexp.MustCompile(`^([A-Za-z0-9_-]+):(?: (.*))?$`)

// SplitFrontMatter separates a leading front-matter block from the body.
// ok is false when content does not open with a complete block.
func SplitFrontMatter(content string) (header, body string, ok bool) {
	if !strings.HasPrefix(content, frontMatterDelim+"\n") {
		return "", content, false
	}
	rest := content[len(frontMatterDelim)+1:]
	if strings.HasPrefix(rest, frontMatterDelim+"\n") {
		return "", strings.TrimPrefix(rest[len(frontMatterDelim)+1:], "\n"), true
	}
	idx := strings.Index(rest, "\n"+frontMatterDelim+"\n")
	if idx < 0 {
		if strings.HasSuffix(rest, "\n"+frontMatterDelim) {
			return rest[:len(rest)-len(frontMatterDelim)-1], "", true
		}
		return "", content, false
	}
	header = rest[:idx]
	body = strings.TrimPrefix(rest[idx+len(frontMatterDelim)+2:], "\n")
	return header, body, true
}

// ParseFrontMatter decodes the front matter written by AddMetadata,
// preserving key order. Plain "key: value" lines are read verbatim, as
// AddMetadata writes them; any other header is decoded as YAML. Content
// without front matter yields nil metadata and the content unchanged.
func ParseFrontMatter(content string) (Metadata, string, error) {
	header, body, ok := SplitFrontMatter(content)
	if !ok {
		return nil, content, nil
	}
	if strings.TrimSpace(header) == "" {
		return Metadata{}, body, nil
	}
	if meta, ok := parseFlatFields(header); ok {
		return meta, body, nil
	}

	var decoded any
	if err := yaml.UnmarshalWithOptions([]byte(header), &decoded, yaml.UseOrderedMap()); err != nil {
		return nil, content, fmt.Errorf("parse front matter: %w", err)
	}
	items, ok := decoded.(yaml.MapSlice)
	if !ok {
		return nil, content, fmt.Errorf("parse front matter: expected a mapping, got %T", decoded)
	}
	meta := make(Metadata, 0, len(items))
	for _, it := range items {
		meta = append(meta, Field{
			Key:   fmt.Sprint(it.Key),
			Value: fmt.Sprint(it.Value),
		})
	}
	return meta, body, nil
}

// parseFlatFields splits each line on the first ": ". ok is false when a
// line has any other shape.
func parseFlatFields(header string) (Metadata, bool) {
	var meta Metadata
	for _, line := range strings.Split(header, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		m := flatFieldRe.FindStringSubmatch(line)
		if m == nil {
			return nil, false
		}
		meta = append(meta, Field{Key: m[1], Value: m[2]})
	}
	return meta, true
}
