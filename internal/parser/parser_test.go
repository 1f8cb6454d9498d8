package parser

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fumiama/go-docx"
)

func texts(t *testing.T, ex Extractor, input, name string) []string {
	t.Helper()
	blocks, err := ex.Extract(strings.NewReader(input), name)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := make([]string, len(blocks))
	for i, b := range blocks {
		out[i] = b.Text
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestForFile(t *testing.T) {
	tests := map[string]string{
		"paper.pdf":  "*parser.PDFExtractor",
		"notes.TXT":  "*parser.TextExtractor",
		"readme.md":  "*parser.MarkdownExtractor",
		"page.htm":   "*parser.HTMLExtractor",
		"draft.docx": "*parser.DOCXExtractor",
	}
	for name, want := range tests {
		ex, err := ForFile(name, Options{})
		if err != nil {
			t.Fatalf("ForFile(%q): %v", name, err)
		}
		if got := typeName(ex); got != want {
			t.Errorf("ForFile(%q): expected %s, got %s", name, want, got)
		}
	}

	_, err := ForFile("data.csv", Options{})
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
	if IsSupportedExtension("x.csv") || !IsSupportedExtension("X.PDF") {
		t.Error("unexpected IsSupportedExtension result")
	}
}

func typeName(ex Extractor) string {
	switch ex.(type) {
	case *PDFExtractor:
		return "*parser.PDFExtractor"
	case *TextExtractor:
		return "*parser.TextExtractor"
	case *MarkdownExtractor:
		return "*parser.MarkdownExtractor"
	case *HTMLExtractor:
		return "*parser.HTMLExtractor"
	case *DOCXExtractor:
		return "*parser.DOCXExtractor"
	}
	return "unknown"
}

func TestTextExtractor_Paragraphs(t *testing.T) {
	input := "First paragraph line one.\nFirst paragraph line two.\n\n\n\nSecond paragraph.\n   \nThird paragraph."
	got := texts(t, &TextExtractor{}, input, "notes.txt")
	want := []string{
		"First paragraph line one.\nFirst paragraph line two.",
		"Second paragraph.",
		"Third paragraph.",
	}
	if !equalStrings(got, want) {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestTextExtractor_Pages(t *testing.T) {
	blocks, err := (&TextExtractor{}).Extract(strings.NewReader("page one\fpage two\n\nmore"), "p.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(blocks))
	}
	if blocks[0].PageIndex != 0 || blocks[1].PageIndex != 1 || blocks[2].PageIndex != 1 {
		t.Errorf("unexpected page indexes %d %d %d", blocks[0].PageIndex, blocks[1].PageIndex, blocks[2].PageIndex)
	}
	if blocks[2].BlockIndex != 1 {
		t.Errorf("expected block index renumbered per page, got %d", blocks[2].BlockIndex)
	}
}

func TestTextExtractor_EmptyAndNormalized(t *testing.T) {
	if got := texts(t, &TextExtractor{}, "", "empty.txt"); len(got) != 0 {
		t.Errorf("expected no blocks, got %q", got)
	}
	got := texts(t, &TextExtractor{}, "ﬁnal ＡＢＣ", "lig.txt")
	if len(got) != 1 || got[0] != "final ABC" {
		t.Errorf("expected NFKC text, got %q", got)
	}
}

func TestMarkdownExtractor(t *testing.T) {
	input := `# Attention Is All You Need

Intro text
continues here.

## Method

- first item
- second item

---
`
	got := texts(t, &MarkdownExtractor{}, input, "paper.md")
	want := []string{
		"<Title>Attention Is All You Need</Title>",
		"Intro text\ncontinues here.",
		"<Title>Method</Title>",
		"first item\nsecond item",
	}
	if !equalStrings(got, want) {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestHTMLExtractor(t *testing.T) {
	input := `<html><head><title>Ignored</title><script>var x;</script></head>
<body><nav>menu</nav><h1>Deep  Learning</h1><p>First <b>bold</b> para.</p>
<div><p>Nested para.</p></div><footer>copyright</footer></body></html>`
	got := texts(t, &HTMLExtractor{}, input, "page.html")
	want := []string{"<Title>Deep Learning</Title>", "First bold para.", "Nested para."}
	if !equalStrings(got, want) {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestMetaContent(t *testing.T) {
	page := `<html><head>
<meta name="description" content="x">
<meta name="Citation_PDF_URL" content=" https://example.org/paper.pdf ">
</head><body></body></html>`
	got, ok := MetaContent(strings.NewReader(page), "citation_pdf_url")
	if !ok || got != "https://example.org/paper.pdf" {
		t.Errorf("expected pdf url, got %q, %v", got, ok)
	}
	if _, ok := MetaContent(strings.NewReader("<html></html>"), "citation_pdf_url"); ok {
		t.Error("expected no match")
	}
}

func TestHeadingLevel(t *testing.T) {
	for tag, want := range map[string]int{"h1": 1, "h6": 6, "h7": 0, "hr": 0, "p": 0} {
		if got := headingLevel(tag); got != want {
			t.Errorf("headingLevel(%q): expected %d, got %d", tag, want, got)
		}
	}
}

func TestDOCXExtractor(t *testing.T) {
	w := docx.New().WithDefaultTheme()
	w.AddParagraph().Style("Heading1").AddText("Introduction")
	w.AddParagraph().AddText("Body text.")
	w.AddParagraph()
	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		t.Fatalf("write docx: %v", err)
	}

	blocks, err := (&DOCXExtractor{}).Extract(&buf, "draft.docx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(blocks))
	}
	if blocks[0].Text != "<Title>Introduction</Title>" || blocks[1].Text != "Body text." {
		t.Errorf("unexpected blocks %q, %q", blocks[0].Text, blocks[1].Text)
	}
}

func TestDOCXExtractor_Invalid(t *testing.T) {
	_, err := (&DOCXExtractor{}).Extract(strings.NewReader("not a zip"), "bad.docx")
	var oe *DocumentOpenError
	if !errors.As(err, &oe) {
		t.Fatalf("expected DocumentOpenError, got %v", err)
	}
}

func TestExtractFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("hello\n\nworld"), 0o644); err != nil {
		t.Fatal(err)
	}
	blocks, err := ExtractFile(path, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(blocks))
	}

	_, err = ExtractFile(filepath.Join(dir, "missing.txt"), Options{})
	var oe *DocumentOpenError
	if !errors.As(err, &oe) {
		t.Errorf("expected DocumentOpenError, got %v", err)
	}
}
