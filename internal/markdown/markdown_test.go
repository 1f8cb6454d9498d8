package markdown

import (
	"strings"
	"testing"
	"time"
)

func TestConvertTitleMarkers(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"basic", "<Title>Introduction</Title>Deep learning", "## Introduction\nDeep learning"},
		{"inline", "Text<Title>Method</Title>More", "Text\n## Method\nMore"},
		{"inner whitespace", "<Title>Related \t  Work</Title>Body", "## Related Work\nBody"},
		{"title across lines", "<Title>Related\nWork</Title>Body", "<Title>Related\nWork</Title>Body"},
		{"two titles", "A<Title>One</Title><Title>Two</Title>B", "A\n## One\n\n## Two\nB"},
		{"no markers", "  plain text  ", "plain text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ConvertTitleMarkers(tt.in); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestConvertEndMarkers(t *testing.T) {
	got := ConvertEndMarkers("First paragraph.<End>Second.<End>")
	if got != "First paragraph.\nSecond." {
		t.Errorf("unexpected result %q", got)
	}
	got = ConvertEndMarkers("A<End>\n\n \n<End>B")
	if got != "A\n\nB" {
		t.Errorf("expected blank runs collapsed, got %q", got)
	}
}

func TestProcessMarkers(t *testing.T) {
	in := "<Title>Intro</Title>Text one.<End><End><End>Text two."
	want := "## Intro\nText one.\n\nText two."
	got := ProcessMarkers(in)
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
	if HasMarkers(got) {
		t.Error("expected no markers after processing")
	}
	if ProcessMarkers("") != "" {
		t.Error("expected empty output for empty input")
	}
}

func TestProcessMarkers_Idempotent(t *testing.T) {
	inputs := []string{
		"<Title>Intro</Title>Text one.<End>Text two.",
		"No markers at all\n\n\n\nbut blank lines.",
		"$$E=mc^2$$<End><Title>Results</Title>",
		"   ",
		"<Title><Title>a</Title></Title>",
		"<Title>a<Title>b</Title>c</Title>",
		"<Title>unclosed heading<End>text",
		"<Title>spans\nlines</Title>",
		"<Title>x\n<Title>y</Title>",
		"</Title><Title></Title><End>",
		"<Title>a<End></Title>",
		"\n \n<End> \n\t\n<Title> t </Title>\n\n\n",
	}
	for _, in := range inputs {
		once := ProcessMarkers(in)
		twice := ProcessMarkers(once)
		if once != twice {
			t.Errorf("not idempotent for %q: %q vs %q", in, once, twice)
		}
	}
}

func TestConvertTitleMarkers_SingleLine(t *testing.T) {
	got := ConvertTitleMarkers("<Title>spans\nlines</Title>")
	if got != "<Title>spans\nlines</Title>" {
		t.Errorf("expected multi-line pair left alone, got %q", got)
	}
	got = ProcessMarkers("<Title><Title>a</Title></Title>")
	if got != "## <Title>a\n</Title>" {
		t.Errorf("unexpected nested result %q", got)
	}
}

func FuzzProcessMarkers(f *testing.F) {
	for _, seed := range []string{
		"<Title>Intro</Title>Text.<End>More.",
		"<Title><Title>a</Title></Title>",
		"<Title>a\n</Title><End><End>",
		"\n\n\n<End>",
	} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, in string) {
		once := ProcessMarkers(in)
		if twice := ProcessMarkers(once); twice != once {
			t.Errorf("not idempotent for %q: %q vs %q", in, once, twice)
		}
	})
}

func TestAssemble(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
		want   string
	}{
		{"nil", nil, ""},
		{"blank chunks", []string{"", "  "}, ""},
		{"has heading", []string{"# Title", "Body"}, "# Title\n\nBody"},
		{"promotes first line", []string{"First line\nrest", "more"}, "# First line\n\nrest\n\nmore"},
		{"collapses blank runs", []string{"# T\n\n\n\nA", "B"}, "# T\n\nA\n\nB"},
		{"single line", []string{"only"}, "# only\n\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Assemble(tt.chunks); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestAssemble_PreservesOrder(t *testing.T) {
	got := Assemble([]string{"# A", "one", "two", "three"})
	i1 := strings.Index(got, "one")
	i2 := strings.Index(got, "two")
	i3 := strings.Index(got, "three")
	if !(i1 < i2 && i2 < i3) {
		t.Errorf("chunks out of order in %q", got)
	}
}

func TestAddMetadata(t *testing.T) {
	got := AddMetadata("# T\nBody", Metadata{{Key: "author", Value: "A"}})
	if !strings.HasPrefix(got, "---\nauthor: A\n---\n\n# T\nBody") {
		t.Errorf("unexpected front matter: %q", got)
	}
	if AddMetadata("# T", nil) != "# T" {
		t.Error("expected content unchanged without metadata")
	}

	ordered := AddMetadata("x", Metadata{{"z", "1"}, {"a", "2"}, {"m", "3"}})
	if !strings.HasPrefix(ordered, "---\nz: 1\na: 2\nm: 3\n---\n") {
		t.Errorf("expected insertion order kept, got %q", ordered)
	}
}

func TestMetadataSetGet(t *testing.T) {
	m := DefaultMetadata("paper.pdf", time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC))
	if v, _ := m.Get("date"); v != "2024-03-09" {
		t.Errorf("expected formatted date, got %q", v)
	}
	m = m.Set("title", "Attention")
	m = m.Set("pages", "12")
	if v, _ := m.Get("title"); v != "Attention" {
		t.Errorf("expected title replaced, got %q", v)
	}
	if m[len(m)-1].Key != "pages" {
		t.Errorf("expected new key appended, got %+v", m)
	}
	if _, ok := m.Get("missing"); ok {
		t.Error("expected missing key to be absent")
	}
}

func TestParseFrontMatter_RoundTrip(t *testing.T) {
	meta := Metadata{{Key: "title", Value: "翻译论文"}, {Key: "source", Value: "paper.pdf"}}
	doc := AddMetadata("# T\nBody", meta)

	got, body, err := ParseFrontMatter(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body != "# T\nBody" {
		t.Errorf("unexpected body %q", body)
	}
	if len(got) != 2 || got[0] != meta[0] || got[1] != meta[1] {
		t.Errorf("expected %+v, got %+v", meta, got)
	}
}

func TestParseFrontMatter_VerbatimValues(t *testing.T) {
	meta := Metadata{
		{Key: "title", Value: "Attention: All You Need"},
		{Key: "source", Value: "[draft] paper.pdf"},
		{Key: "note", Value: "paper #2.pdf"},
		{Key: "empty", Value: ""},
	}
	got, body, err := ParseFrontMatter(AddMetadata("# T", meta))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body != "# T" {
		t.Errorf("unexpected body %q", body)
	}
	if len(got) != len(meta) {
		t.Fatalf("expected %+v, got %+v", meta, got)
	}
	for i := range meta {
		if got[i] != meta[i] {
			t.Errorf("field %d: expected %+v, got %+v", i, meta[i], got[i])
		}
	}
}

func TestParseFrontMatter_YAML(t *testing.T) {
	got, body, err := ParseFrontMatter("---\ntags:\n  - a\n  - b\ntitle: x\n---\nbody")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body != "body" || len(got) != 2 || got[0].Key != "tags" || got[1] != (Field{Key: "title", Value: "x"}) {
		t.Errorf("unexpected result %+v %q", got, body)
	}
}

func TestRenderHTML_TitleWithColon(t *testing.T) {
	out, err := RenderHTML(AddMetadata("# T", Metadata{{Key: "title", Value: "Attention: All You Need"}}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "<td>Attention: All You Need</td>") {
		t.Errorf("expected title in front matter table, got %q", out)
	}
}

func TestParseFrontMatter_None(t *testing.T) {
	meta, body, err := ParseFrontMatter("# Plain\ntext")
	if err != nil {
		t.Fatal(err)
	}
	if meta != nil || body != "# Plain\ntext" {
		t.Errorf("expected passthrough, got %+v %q", meta, body)
	}
}

func TestBuildTableOfContents(t *testing.T) {
	got := BuildTableOfContents("# A\n## B")
	want := "## 目录\n\n- [A](#a)\n  - [B](#b)\n\n# A\n## B"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
	if !strings.Contains(got, "[A](#a)") || !strings.Contains(got, "[B](#b)") {
		t.Error("missing entries")
	}
	if strings.Index(got, tocHeading) > strings.Index(got, "\n# A") {
		t.Error("toc should precede the first heading")
	}
}

func TestBuildTableOfContents_NoHeadings(t *testing.T) {
	in := "just text\nmore text"
	if got := BuildTableOfContents(in); got != in {
		t.Errorf("expected unchanged content, got %q", got)
	}
}

func TestBuildTableOfContents_AfterFrontMatter(t *testing.T) {
	doc := AddMetadata("# Paper\n\nIntro\n\n## Method", Metadata{{Key: "title", Value: "x"}})
	got := BuildTableOfContents(doc)
	if !strings.HasPrefix(got, "---\ntitle: x\n---\n") {
		t.Errorf("front matter should stay first, got %q", got)
	}
	if strings.Index(got, tocHeading) > strings.Index(got, "# Paper") {
		t.Error("toc should precede the first heading")
	}
	if !strings.Contains(got, "\n  - [Method](#method)\n") {
		t.Errorf("expected nested entry, got %q", got)
	}
}

func TestAnchor(t *testing.T) {
	tests := map[string]string{
		"Related Work":          "related-work",
		"3.1 Method: Overview!": "31-method-overview",
		"深度 学习":                 "深度-学习",
		"Self-Attention":        "self-attention",
		"  Spaced  ":            "spaced",
	}
	for in, want := range tests {
		if got := Anchor(in); got != want {
			t.Errorf("Anchor(%q): expected %q, got %q", in, want, got)
		}
		if Anchor(in) != Anchor(in) {
			t.Errorf("Anchor(%q) not deterministic", in)
		}
	}
}

func TestValidate(t *testing.T) {
	res := Validate("# T\n$$a$$\nBody")
	if !res.IsValid || len(res.Errors) != 0 {
		t.Errorf("expected valid, got %+v", res)
	}

	res = Validate("# T\n$$a\nBody")
	if res.IsValid {
		t.Error("expected invalid for unbalanced math")
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "unbalanced") {
		t.Errorf("expected one unbalanced error, got %+v", res.Errors)
	}

	res = Validate("")
	if res.IsValid || len(res.Errors) != 1 || res.Errors[0] != "content empty" {
		t.Errorf("expected content empty error, got %+v", res)
	}

	res = Validate("short")
	if !res.IsValid {
		t.Error("warnings must not affect validity")
	}
	if len(res.Warnings) != 2 {
		t.Errorf("expected short and no-heading warnings, got %+v", res.Warnings)
	}
}

func TestRenderHTML(t *testing.T) {
	doc := AddMetadata("# Hello\n\nWorld", Metadata{{Key: "title", Value: "T<1>"}})
	out, err := RenderHTML(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"<th>title</th>", "<td>T&lt;1&gt;</td>", "Hello</h1>", "<p>World</p>"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}
