// Package parser extracts ordered text blocks from uploaded papers.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgallion1/papertrans/internal/document"
	"golang.org/x/text/unicode/norm"
)

// ErrUnsupportedFormat is returned by ForFile for unknown extensions.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Extractor converts raw document bytes into text blocks sorted in
// reading order.
type Extractor interface {
	Extract(r io.Reader, filename string) ([]document.TextBlock, error)
}

// DocumentOpenError means the input could not be read as the expected
// format at all.
type DocumentOpenError struct {
	Name string
	Err  error
}

func (e *DocumentOpenError) Error() string {
	return fmt.Sprintf("open %s: %v", e.Name, e.Err)
}

func (e *DocumentOpenError) Unwrap() error { return e.Err }

// ExtractionError means the document opened but text could not be pulled
// from it. Page is 1-based, or 0 when the failure is not page specific.
type ExtractionError struct {
	Name string
	Page int
	Err  error
}

func (e *ExtractionError) Error() string {
	if e.Page > 0 {
		return fmt.Sprintf("extract %s page %d: %v", e.Name, e.Page, e.Err)
	}
	return fmt.Sprintf("extract %s: %v", e.Name, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Options tunes extractor behavior.
type Options struct {
	FallbackPdftotext bool
	Log               *slog.Logger
}

// SupportedExtensions lists the input formats that can be translated.
var SupportedExtensions = map[string]bool{
	".pdf":      true,
	".txt":      true,
	".md":       true,
	".markdown": true,
	".html":     true,
	".htm":      true,
	".docx":     true,
}

// ForFile returns the extractor for a file name.
func ForFile(filename string, opts Options) (Extractor, error) {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pdf":
		return &PDFExtractor{FallbackPdftotext: opts.FallbackPdftotext, Log: log}, nil
	case ".txt":
		return &TextExtractor{}, nil
	case ".md", ".markdown":
		return &MarkdownExtractor{}, nil
	case ".html", ".htm":
		return &HTMLExtractor{}, nil
	case ".docx":
		return &DOCXExtractor{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	return SupportedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// ExtractFile reads path and extracts its blocks with the matching
// extractor.
func ExtractFile(path string, opts Options) ([]document.TextBlock, error) {
	ex, err := ForFile(path, opts)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &DocumentOpenError{Name: path, Err: err}
	}
	return ex.Extract(bytes.NewReader(data), filepath.Base(path))
}

// normalizeText applies NFKC so ligatures and full-width forms become
// plain characters, and trims surrounding whitespace.
func normalizeText(s string) string {
	return strings.TrimSpace(norm.NFKC.String(s))
}

// finish drops blank blocks, renumbers them, and sorts into reading order.
func finish(blocks []document.TextBlock) []document.TextBlock {
	document.SortReadingOrder(blocks)
	return document.NonEmpty(blocks)
}

// paragraphBlocks turns a list of paragraphs into single-page blocks
// stacked top to bottom. Used by formats without page geometry.
func paragraphBlocks(paragraphs []string, page int) []document.TextBlock {
	blocks := make([]document.TextBlock, 0, len(paragraphs))
	for i, p := range paragraphs {
		p = normalizeText(p)
		if p == "" {
			continue
		}
		y := float64(i)
		blocks = append(blocks, document.TextBlock{
			Text:      p,
			PageIndex: page,
			BBox:      document.BBox{X0: 0, Y0: y, X1: 1, Y1: y + 1},
		})
	}
	return blocks
}
