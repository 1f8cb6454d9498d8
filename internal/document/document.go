package document

import (
	"sort"
	"strings"
)

// BBox is a rectangle in page coordinates. Y grows downward from the top
// of the page.
type BBox struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// Width returns the horizontal extent of the box.
func (b BBox) Width() float64 { return b.X1 - b.X0 }

// Height returns the vertical extent of the box.
func (b BBox) Height() float64 { return b.Y1 - b.Y0 }

// Union returns the smallest box covering both b and o. A zero box is
// treated as empty.
func (b BBox) Union(o BBox) BBox {
	if b == (BBox{}) {
		return o
	}
	if o == (BBox{}) {
		return b
	}
	return BBox{
		X0: min(b.X0, o.X0),
		Y0: min(b.Y0, o.Y0),
		X1: max(b.X1, o.X1),
		Y1: max(b.Y1, o.Y1),
	}
}

// LineInfo is one visual line inside a TextBlock.
type LineInfo struct {
	Text string `json:"text"`
	BBox BBox   `json:"bbox"`
}

// TextBlock is a contiguous run of text extracted from one page.
type TextBlock struct {
	Text       string             `json:"text"`
	BBox       BBox               `json:"bbox"`
	PageIndex  int                `json:"page_index"`
	BlockIndex int                `json:"block_index"`
	FontInfo   map[string]float64 `json:"font_info,omitempty"` // font name -> size
	Lines      []LineInfo         `json:"lines,omitempty"`
}

// Empty reports whether the block carries no visible text.
func (b TextBlock) Empty() bool {
	return strings.TrimSpace(b.Text) == ""
}

// SortReadingOrder orders blocks by page, then top edge, then left edge.
// The sort is stable so blocks at identical positions keep their
// extraction order.
func SortReadingOrder(blocks []TextBlock) {
	sort.SliceStable(blocks, func(i, j int) bool {
		a, b := blocks[i], blocks[j]
		if a.PageIndex != b.PageIndex {
			return a.PageIndex < b.PageIndex
		}
		if a.BBox.Y0 != b.BBox.Y0 {
			return a.BBox.Y0 < b.BBox.Y0
		}
		return a.BBox.X0 < b.BBox.X0
	})
}

// NonEmpty returns the blocks whose text is not blank, renumbering
// BlockIndex per page.
func NonEmpty(blocks []TextBlock) []TextBlock {
	out := make([]TextBlock, 0, len(blocks))
	perPage := make(map[int]int)
	for _, b := range blocks {
		if b.Empty() {
			continue
		}
		b.BlockIndex = perPage[b.PageIndex]
		perPage[b.PageIndex]++
		out = append(out, b)
	}
	return out
}

// PageCount returns the number of distinct pages referenced by blocks.
func PageCount(blocks []TextBlock) int {
	seen := make(map[int]struct{})
	for _, b := range blocks {
		seen[b.PageIndex] = struct{}{}
	}
	return len(seen)
}
