package chunker

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dgallion1/papertrans/internal/document"
)

// ErrInvalidConfiguration is returned when a Splitter is built with sizes
// that cannot make progress.
var ErrInvalidConfiguration = errors.New("invalid chunker configuration")

// Config controls chunking behavior. Sizes are counted in characters
// (Unicode code points), not bytes or tokens.
type Config struct {
	ChunkSize   int // Maximum characters per chunk.
	OverlapSize int // Characters shared by consecutive chunks.
}

// DefaultConfig returns the sizes used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		ChunkSize:   1000,
		OverlapSize: 100,
	}
}

// Validate checks that the window can always advance.
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfiguration, c.ChunkSize)
	}
	if c.OverlapSize < 0 {
		return fmt.Errorf("%w: overlap size must not be negative, got %d", ErrInvalidConfiguration, c.OverlapSize)
	}
	if c.OverlapSize >= c.ChunkSize {
		return fmt.Errorf("%w: overlap size %d must be smaller than chunk size %d", ErrInvalidConfiguration, c.OverlapSize, c.ChunkSize)
	}
	return nil
}

// MergeBlocks joins the text of all non-blank blocks with a single space,
// in the order given. Callers sort blocks into reading order first.
func MergeBlocks(blocks []document.TextBlock) string {
	texts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b.Empty() {
			continue
		}
		texts = append(texts, b.Text)
	}
	return strings.Join(texts, " ")
}

// Splitter cuts merged text into fixed-size overlapping windows.
type Splitter struct {
	size    int
	overlap int
}

// New returns a Splitter for cfg, or an error wrapping
// ErrInvalidConfiguration.
func New(cfg Config) (*Splitter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Splitter{size: cfg.ChunkSize, overlap: cfg.OverlapSize}, nil
}

// Config returns the sizes the splitter was built with.
func (s *Splitter) Config() Config {
	return Config{ChunkSize: s.size, OverlapSize: s.overlap}
}

// Split returns the chunks of text. Every chunk is at most ChunkSize
// characters and non-empty; chunk i+1 starts with the last OverlapSize
// characters of chunk i. Joining chunks[0] with chunks[i][OverlapSize:] for
// i > 0 yields text again.
func (s *Splitter) Split(text string) []string {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}

	var chunks []string
	start := 0
	for start < n {
		end := min(start+s.size, n)
		chunks = append(chunks, string(runes[start:end]))
		if end == n {
			break
		}

		next := end - s.overlap
		if next <= start {
			next = end
		}
		// No separate check for a remainder of at most overlap characters:
		// such a remainder means end == n, so the window just emitted
		// already absorbed it and the loop stopped above.
		start = next
	}
	return chunks
}

// Overlap returns the number of leading characters chunk i (i > 0) shares
// with chunk i-1 for a result produced by Split.
func (s *Splitter) Overlap(chunks []string, i int) int {
	if i <= 0 || i >= len(chunks) {
		return 0
	}
	return min(s.overlap, len([]rune(chunks[i])))
}

// Reconstruct reverses Split by dropping the shared prefix of every chunk
// after the first.
func (s *Splitter) Reconstruct(chunks []string) string {
	var sb strings.Builder
	for i, c := range chunks {
		r := []rune(c)
		sb.WriteString(string(r[s.Overlap(chunks, i):]))
	}
	return sb.String()
}
