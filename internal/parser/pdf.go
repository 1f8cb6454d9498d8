package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/papertrans/internal/document"
	pdflib "github.com/ledongthuc/pdf"
)

const defaultPageHeight = 792 // US Letter, points

// PDFExtractor handles PDF files. It reads positioned text with the Go
// library and can fall back to pdftotext when that fails.
type PDFExtractor struct {
	FallbackPdftotext bool
	Log               *slog.Logger
}

func (p *PDFExtractor) Extract(r io.Reader, filename string) ([]document.TextBlock, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &DocumentOpenError{Name: filename, Err: err}
	}
	log := p.Log
	if log == nil {
		log = slog.Default()
	}

	if pages, err := PageCount(data); err == nil {
		log.Debug("pdf validated", "file", filename, "pages", pages)
	} else {
		log.Warn("pdf validation failed, attempting extraction anyway", "file", filename, "error", err)
	}

	blocks, err := extractPDFBlocks(data, filename)
	if err == nil && len(blocks) > 0 {
		return finish(blocks), nil
	}
	if !p.FallbackPdftotext {
		if err != nil {
			return nil, err
		}
		return nil, nil
	}

	log.Warn("falling back to pdftotext", "file", filename, "error", err)
	fb, fbErr := extractPdftotext(data, filename)
	if fbErr != nil {
		if err != nil {
			return nil, errors.Join(err, fbErr)
		}
		return nil, fbErr
	}
	return finish(fb), nil
}

func extractPDFBlocks(data []byte, filename string) (blocks []document.TextBlock, err error) {
	// The PDF library panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			blocks = nil
			err = &ExtractionError{Name: filename, Err: fmt.Errorf("pdf reader panic: %v", r)}
		}
	}()

	reader, err := pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &DocumentOpenError{Name: filename, Err: err}
	}

	var pageErrs []error
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageBlocks, perr := extractPage(page, i-1)
		if perr != nil {
			pageErrs = append(pageErrs, &ExtractionError{Name: filename, Page: i, Err: perr})
			continue
		}
		blocks = append(blocks, pageBlocks...)
	}

	if len(blocks) == 0 && len(pageErrs) > 0 {
		return nil, errors.Join(pageErrs...)
	}
	return blocks, nil
}

// extractPage lays out one page from positioned glyphs. Pages whose
// content stream cannot be interpreted fall back to plain text.
func extractPage(page pdflib.Page, index int) (blocks []document.TextBlock, err error) {
	defer func() {
		if r := recover(); r != nil {
			blocks, err = plainPage(page, index)
		}
	}()

	content := page.Content()
	glyphs := make([]glyph, 0, len(content.Text))
	for _, t := range content.Text {
		glyphs = append(glyphs, glyph{font: t.Font, size: t.FontSize, x: t.X, y: t.Y, w: t.W, s: t.S})
	}
	if len(glyphs) == 0 {
		return plainPage(page, index)
	}

	height := pageHeight(page)
	var lines []textLine
	for _, row := range groupRows(glyphs) {
		if l, ok := buildLine(row, height); ok {
			lines = append(lines, l)
		}
	}
	return groupLines(lines, index), nil
}

func plainPage(page pdflib.Page, index int) ([]document.TextBlock, error) {
	text, err := page.GetPlainText(nil)
	if err != nil {
		return nil, err
	}
	return paragraphBlocks(splitParagraphs(text), index), nil
}

func pageHeight(page pdflib.Page) float64 {
	box := page.V.Key("MediaBox")
	if box.Len() == 4 {
		if h := box.Index(3).Float64() - box.Index(1).Float64(); h > 0 {
			return h
		}
	}
	return defaultPageHeight
}

// textLine is one row of glyphs in top-down page coordinates.
type textLine struct {
	text  string
	bbox  document.BBox
	fonts map[string]float64
	size  float64
}

// glyph is a positioned run of text in PDF (bottom-up) coordinates.
type glyph struct {
	font string
	size float64
	x, y float64
	w    float64
	s    string
}

const defaultFontSize = 10

func (g glyph) fontSize() float64 {
	if g.size > 0 {
		return g.size
	}
	return defaultFontSize
}

// width falls back to half an em per rune when the font has no metrics.
func (g glyph) width() float64 {
	if g.w > 0 {
		return g.w
	}
	return 0.5 * g.fontSize() * float64(utf8.RuneCountInString(g.s))
}

// groupRows buckets glyphs that share a baseline, top row first. Two
// glyphs share a row when their baselines differ by less than a third of
// the font size.
func groupRows(glyphs []glyph) [][]glyph {
	sorted := make([]glyph, len(glyphs))
	copy(sorted, glyphs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].y > sorted[j].y })

	var rows [][]glyph
	var baseline float64
	for _, g := range sorted {
		n := len(rows)
		if n > 0 && math.Abs(baseline-g.y) < g.fontSize()/3 {
			rows[n-1] = append(rows[n-1], g)
			continue
		}
		rows = append(rows, []glyph{g})
		baseline = g.y
	}
	return rows
}

// buildLine joins glyphs left to right, inserting a space where the gap
// between runs is wider than a fraction of the font size.
func buildLine(glyphs []glyph, height float64) (textLine, bool) {
	if len(glyphs) == 0 {
		return textLine{}, false
	}
	sort.SliceStable(glyphs, func(i, j int) bool { return glyphs[i].x < glyphs[j].x })

	var sb strings.Builder
	fonts := make(map[string]float64)
	minX, maxX := math.Inf(1), math.Inf(-1)
	minY, maxTop := math.Inf(1), math.Inf(-1)
	var sizeSum float64
	prevEnd := math.NaN()

	for _, g := range glyphs {
		size := g.fontSize()
		if !math.IsNaN(prevEnd) && g.x-prevEnd > 0.2*size {
			if s := sb.String(); s != "" && !strings.HasSuffix(s, " ") && !strings.HasPrefix(g.s, " ") {
				sb.WriteByte(' ')
			}
		}
		sb.WriteString(g.s)
		end := g.x + g.width()
		prevEnd = end

		if g.font != "" {
			fonts[g.font] = max(fonts[g.font], size)
		}
		sizeSum += size
		minX = min(minX, g.x)
		maxX = max(maxX, end)
		minY = min(minY, g.y)
		maxTop = max(maxTop, g.y+size)
	}

	text := normalizeText(sb.String())
	if text == "" {
		return textLine{}, false
	}
	return textLine{
		text:  text,
		fonts: fonts,
		size:  sizeSum / float64(len(glyphs)),
		bbox: document.BBox{
			X0: minX,
			Y0: height - maxTop,
			X1: maxX,
			Y1: height - minY,
		},
	}, true
}

// groupLines merges vertically adjacent lines into blocks. A new block
// starts at a vertical gap wider than 60% of the line height or when the
// font size changes noticeably, which separates headings from body text.
func groupLines(lines []textLine, page int) []document.TextBlock {
	sort.SliceStable(lines, func(i, j int) bool {
		if lines[i].bbox.Y0 != lines[j].bbox.Y0 {
			return lines[i].bbox.Y0 < lines[j].bbox.Y0
		}
		return lines[i].bbox.X0 < lines[j].bbox.X0
	})

	var blocks []document.TextBlock
	var cur *document.TextBlock
	var curSize float64

	flush := func() {
		if cur != nil {
			blocks = append(blocks, *cur)
			cur = nil
		}
	}

	for _, l := range lines {
		if cur != nil {
			last := cur.Lines[len(cur.Lines)-1].BBox
			gap := l.bbox.Y0 - last.Y1
			lineHeight := max(l.size, curSize, 1)
			if gap > 0.6*lineHeight || math.Abs(l.size-curSize) > 1.5 {
				flush()
			}
		}
		if cur == nil {
			cur = &document.TextBlock{PageIndex: page, FontInfo: make(map[string]float64)}
			curSize = l.size
		}
		if cur.Text != "" {
			cur.Text += "\n"
		}
		cur.Text += l.text
		cur.BBox = cur.BBox.Union(l.bbox)
		cur.Lines = append(cur.Lines, document.LineInfo{Text: l.text, BBox: l.bbox})
		for f, s := range l.fonts {
			cur.FontInfo[f] = max(cur.FontInfo[f], s)
		}
	}
	flush()
	return blocks
}

// PageCount validates data as a PDF and returns its page count.
func PageCount(data []byte) (int, error) {
	return pdfcpuPageCount(data)
}

func extractPdftotext(data []byte, filename string) ([]document.TextBlock, error) {
	tmp, err := os.CreateTemp("", "papertrans-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	tmp.Close()

	out, err := exec.Command("pdftotext", "-layout", tmpPath, "-").Output()
	if err != nil {
		return nil, &ExtractionError{Name: filename, Err: fmt.Errorf("pdftotext: %w", err)}
	}

	var blocks []document.TextBlock
	for i, page := range strings.Split(string(out), "\f") {
		blocks = append(blocks, paragraphBlocks(splitParagraphs(page), i)...)
	}
	return blocks, nil
}

// splitParagraphs splits on blank lines.
func splitParagraphs(text string) []string {
	var out []string
	var cur []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			if len(cur) > 0 {
				out = append(out, strings.Join(cur, "\n"))
				cur = nil
			}
			continue
		}
		cur = append(cur, line)
	}
	if len(cur) > 0 {
		out = append(out, strings.Join(cur, "\n"))
	}
	return out
}
