package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"regexp"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/dgallion1/papertrans/internal/chunker"
	"github.com/dgallion1/papertrans/internal/document"
	"github.com/dgallion1/papertrans/internal/llm"
	"github.com/dgallion1/papertrans/internal/llm/llmtest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPipeline(t *testing.T, cfg Config, fake llm.Completer) *Pipeline {
	t.Helper()
	if cfg.Chunk.ChunkSize == 0 {
		cfg.Chunk = chunker.Config{ChunkSize: 50, OverlapSize: 10}
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	p, err := New(cfg, fake, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p.backoff = func(int) time.Duration { return 0 }
	p.now = func() time.Time { return time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC) }
	return p
}

func blocks(texts ...string) []document.TextBlock {
	out := make([]document.TextBlock, len(texts))
	for i, t := range texts {
		out[i] = document.TextBlock{Text: t, BlockIndex: i}
	}
	return out
}

// twoChunkBlocks merge to 61 characters: two chunks at size 50.
func twoChunkBlocks() []document.TextBlock {
	return blocks(strings.Repeat("A", 30), strings.Repeat("B", 30))
}

func TestNew_InvalidConfiguration(t *testing.T) {
	fake := llmtest.New()
	tests := []struct {
		name string
		cfg  Config
		llm  llm.Completer
	}{
		{"overlap not below size", Config{Chunk: chunker.Config{ChunkSize: 10, OverlapSize: 10}}, fake},
		{"negative retries", Config{Chunk: chunker.DefaultConfig(), MaxRetries: -1}, fake},
		{"no model", Config{Chunk: chunker.DefaultConfig()}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, tt.llm, nil)
			if !errors.Is(err, chunker.ErrInvalidConfiguration) {
				t.Errorf("expected ErrInvalidConfiguration, got %v", err)
			}
		})
	}
}

func TestRun_StagesInOrder(t *testing.T) {
	fake := llmtest.New().
		On(llm.OpClean, func(call int, _ llm.Request) (string, error) {
			if call == 0 {
				return "<Title>Introduction</Title>\nHello world<End>", nil
			}
			return "More text<End>", nil
		}).
		On(llm.OpTranslate, func(call int, _ llm.Request) (string, error) {
			if call == 0 {
				return "## 引言\n\n你好世界", nil
			}
			return "更多文本", nil
		})
	p := newTestPipeline(t, Config{}, fake)

	res, err := p.Run(context.Background(), twoChunkBlocks(), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "## 引言\n\n你好世界\n\n更多文本"; res.Markdown != want {
		t.Errorf("expected %q, got %q", want, res.Markdown)
	}
	if res.Chunks != 2 || res.Blocks != 2 {
		t.Errorf("expected 2 chunks from 2 blocks, got %d/%d", res.Chunks, res.Blocks)
	}
	if fake.Calls(llm.OpReorder) != 0 {
		t.Errorf("expected reorder to be skipped, got %d calls", fake.Calls(llm.OpReorder))
	}
	if len(res.Stats) != 2 || res.Stats[0].Stage != "clean" || res.Stats[1].Stage != "translate" {
		t.Fatalf("unexpected stats %+v", res.Stats)
	}
	if res.Stats[1].Succeeded != 2 || res.Stats[1].SuccessRate() != 1 {
		t.Errorf("unexpected translate stats %+v", res.Stats[1])
	}
	if !res.Validation.IsValid {
		t.Errorf("expected valid result, got %+v", res.Validation)
	}

	var translatePrompts []string
	for _, r := range fake.Requests() {
		if r.Op == llm.OpTranslate {
			translatePrompts = append(translatePrompts, r.Prompt)
			if r.SystemPrompt != llm.TranslateSystemPrompt {
				t.Errorf("unexpected system prompt %q", r.SystemPrompt)
			}
		}
	}
	if len(translatePrompts) != 2 || !strings.Contains(translatePrompts[0], "## Introduction\n\nHello world") {
		t.Errorf("expected markers processed before translation, got %q", translatePrompts)
	}
}

func TestRun_CleanFallsBackToBasicClean(t *testing.T) {
	fake := llmtest.New().
		On(llm.OpClean, func(int, llm.Request) (string, error) {
			return "", &llm.RemoteServiceError{Op: llm.OpClean, StatusCode: 401, Err: errors.New("unauthorized")}
		})
	p := newTestPipeline(t, Config{}, fake)

	res, err := p.Run(context.Background(), blocks("12 Some   text [3] here 7"), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fake.Calls(llm.OpClean) != 1 {
		t.Errorf("expected non-retryable error to stop after one call, got %d", fake.Calls(llm.OpClean))
	}
	if res.Stats[0].Failed != 1 || res.Stats[0].Retries != 0 {
		t.Errorf("unexpected clean stats %+v", res.Stats[0])
	}
	// The default fake translation echoes its prompt.
	if !strings.Contains(res.Markdown, "Some text  here") {
		t.Errorf("expected basic-cleaned text in output, got %q", res.Markdown)
	}
}

func TestRun_TranslateErrorMarker(t *testing.T) {
	fake := llmtest.New().
		On(llm.OpClean, func(int, llm.Request) (string, error) { return "paragraph", nil }).
		On(llm.OpTranslate, func(int, llm.Request) (string, error) {
			return "", &llm.RemoteServiceError{Op: llm.OpTranslate, StatusCode: 503, Retryable: true, Err: errors.New("overloaded")}
		})
	p := newTestPipeline(t, Config{}, fake)

	res, err := p.Run(context.Background(), blocks("short text"), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := fake.Calls(llm.OpTranslate); got != DefaultMaxRetries {
		t.Errorf("expected %d attempts, got %d", DefaultMaxRetries, got)
	}
	if !strings.Contains(res.Markdown, "[翻译错误: ") || !strings.Contains(res.Markdown, "overloaded") {
		t.Errorf("expected inline error marker, got %q", res.Markdown)
	}
	st := res.Stats[len(res.Stats)-1]
	if st.Failed != 1 || st.Retries != DefaultMaxRetries-1 {
		t.Errorf("unexpected translate stats %+v", st)
	}
}

func TestRun_EmptyReplyIsRetried(t *testing.T) {
	fake := llmtest.New().
		On(llm.OpClean, func(int, llm.Request) (string, error) { return "text", nil }).
		On(llm.OpTranslate, func(call int, _ llm.Request) (string, error) {
			if call == 0 {
				return "   ", nil
			}
			return "译文", nil
		})
	p := newTestPipeline(t, Config{}, fake)

	res, err := p.Run(context.Background(), blocks("text"), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fake.Calls(llm.OpTranslate) != 2 {
		t.Errorf("expected a retry after the empty reply, got %d calls", fake.Calls(llm.OpTranslate))
	}
	if res.Markdown != "# 译文\n\n" {
		t.Errorf("unexpected markdown %q", res.Markdown)
	}
}

func TestRun_ReorderStage(t *testing.T) {
	fake := llmtest.New().
		On(llm.OpClean, func(int, llm.Request) (string, error) { return "b. a.", nil }).
		On(llm.OpReorder, func(int, llm.Request) (string, error) { return "a. b.", nil }).
		On(llm.OpTranslate, func(_ int, req llm.Request) (string, error) {
			if !strings.Contains(req.Prompt, "a. b.") {
				return "", errors.New("translation saw unordered text")
			}
			return "甲。乙。", nil
		})
	p := newTestPipeline(t, Config{}, fake)

	res, err := p.Run(context.Background(), twoChunkBlocks(), Options{Reorder: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fake.Calls(llm.OpReorder) != 2 {
		t.Errorf("expected reorder per chunk, got %d", fake.Calls(llm.OpReorder))
	}
	if len(res.Stats) != 3 || res.Stats[1].Stage != "reorder" || res.Stats[2].Failed != 0 {
		t.Errorf("unexpected stats %+v", res.Stats)
	}
}

func TestRun_ReorderFallbackKeepsChunk(t *testing.T) {
	fake := llmtest.New().
		On(llm.OpClean, func(int, llm.Request) (string, error) { return "original order", nil }).
		On(llm.OpReorder, func(int, llm.Request) (string, error) { return "", errors.New("boom") }).
		On(llm.OpTranslate, func(_ int, req llm.Request) (string, error) {
			if !strings.Contains(req.Prompt, "original order") {
				return "", errors.New("missing chunk")
			}
			return "原始顺序", nil
		})
	p := newTestPipeline(t, Config{}, fake)

	res, err := p.Run(context.Background(), blocks("x"), Options{Reorder: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Stats[1].Failed != 1 || res.Stats[2].Succeeded != 1 {
		t.Errorf("unexpected stats %+v", res.Stats)
	}
}

func TestRun_MetadataAndTableOfContents(t *testing.T) {
	fake := llmtest.New().
		On(llm.OpClean, func(int, llm.Request) (string, error) { return "x", nil }).
		On(llm.OpTranslate, func(int, llm.Request) (string, error) {
			return "# 标题\n\n## 方法\n\n正文内容足够长。", nil
		})
	p := newTestPipeline(t, Config{}, fake)

	res, err := p.Run(context.Background(), blocks("x"), Options{IncludeMetadata: true, IncludeTOC: true, Source: "paper.pdf"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "---\ntitle: 翻译论文\ndate: 2026-03-14\nsource: paper.pdf\ntranslator: papertrans\n---\n\n"
	if !strings.HasPrefix(res.Markdown, want) {
		t.Errorf("expected front matter prefix, got %q", res.Markdown)
	}
	toc := strings.Index(res.Markdown, "## 目录")
	heading := strings.Index(res.Markdown, "# 标题")
	if toc < 0 || heading < 0 || toc > heading {
		t.Errorf("expected table of contents before first heading, got %q", res.Markdown)
	}
}

func TestRun_TitleAndLeftoverMarkers(t *testing.T) {
	fake := llm.CompleterFunc(func(_ context.Context, req llm.Request) (string, error) {
		if req.Op == llm.OpTranslate {
			return "<Title>方法</Title>正文<End>", nil
		}
		return "x", nil
	})
	p := newTestPipeline(t, Config{}, fake)

	res, err := p.Run(context.Background(), blocks("x"), Options{IncludeMetadata: true, Title: "Attention", Source: "paper.pdf"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(res.Markdown, "title: Attention\n") {
		t.Errorf("expected title override, got %q", res.Markdown)
	}
	if !strings.Contains(res.Markdown, "## 方法") || strings.Contains(res.Markdown, "<Title>") || strings.Contains(res.Markdown, "<End>") {
		t.Errorf("expected markers converted, got %q", res.Markdown)
	}
}

func TestRun_TranslationErrorMarkerIsValidUTF8(t *testing.T) {
	fake := llm.CompleterFunc(func(_ context.Context, req llm.Request) (string, error) {
		if req.Op == llm.OpTranslate {
			return "", &llm.RemoteServiceError{Op: llm.OpTranslate, StatusCode: 400, Err: errors.New("x" + strings.Repeat("错", 100))}
		}
		return "text", nil
	})
	p := newTestPipeline(t, Config{}, fake)

	res, err := p.Run(context.Background(), blocks("x"), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(res.Markdown, "[翻译错误: ") || !utf8.ValidString(res.Markdown) {
		t.Errorf("expected a valid UTF-8 error marker, got %q", res.Markdown)
	}
}

func TestRun_NoContent(t *testing.T) {
	p := newTestPipeline(t, Config{}, llmtest.New())
	_, err := p.Run(context.Background(), blocks("", "   "), DefaultOptions())
	if !errors.Is(err, ErrNoContent) {
		t.Errorf("expected ErrNoContent, got %v", err)
	}
}

func TestRun_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := newTestPipeline(t, Config{}, llmtest.New())
	_, err := p.Run(ctx, twoChunkBlocks(), Options{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

var tokenRe = regexp.MustCompile(`c\d\d`)

func TestRun_ConcurrencyKeepsChunkOrder(t *testing.T) {
	var texts []string
	for i := range 20 {
		texts = append(texts, fmt.Sprintf("c%02d", i))
	}
	fake := llmtest.New().
		On(llm.OpClean, func(_ int, req llm.Request) (string, error) {
			return tokenRe.FindString(req.Prompt), nil
		}).
		On(llm.OpTranslate, func(_ int, req llm.Request) (string, error) {
			time.Sleep(time.Duration(rand.IntN(3)) * time.Millisecond)
			return "t" + tokenRe.FindString(req.Prompt)[1:], nil
		})
	p := newTestPipeline(t, Config{Chunk: chunker.Config{ChunkSize: 4, OverlapSize: 0}, Concurrency: 6}, fake)

	var progress []int
	opts := Options{Progress: func(stage string, done, total int) {
		if stage == "translate" {
			progress = append(progress, done)
		}
	}}
	res, err := p.Run(context.Background(), blocks(texts...), opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Chunks != 20 {
		t.Fatalf("expected 20 chunks, got %d", res.Chunks)
	}
	last := -1
	for i := range 20 {
		idx := strings.Index(res.Markdown, fmt.Sprintf("t%02d", i))
		if idx <= last {
			t.Fatalf("chunk %d out of order in %q", i, res.Markdown)
		}
		last = idx
	}
	if len(progress) != 20 || progress[19] != 20 {
		t.Errorf("expected progress up to 20, got %v", progress)
	}
}

func TestBasicClean(t *testing.T) {
	tests := []struct{ in, want string }{
		{"  hello \n\n world  ", "hello world"},
		{"12 Introduction text", "Introduction text"},
		{"ends with page 34", "ends with page"},
		{"as shown in [12] before", "as shown in  before"},
		{"ﬁgure", "figure"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := BasicClean(tt.in); got != tt.want {
			t.Errorf("BasicClean(%q): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

func TestStageStats(t *testing.T) {
	var s StageStats
	if s.SuccessRate() != 0 || s.AverageTime() != 0 {
		t.Error("expected zero stats for no chunks")
	}
	s = StageStats{Total: 4, Succeeded: 3, TotalTime: 8 * time.Second}
	if s.SuccessRate() != 0.75 || s.AverageTime() != 2*time.Second {
		t.Errorf("unexpected derived stats %v %v", s.SuccessRate(), s.AverageTime())
	}
}

func TestBackoff(t *testing.T) {
	for attempt, base := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second} {
		d := Backoff(attempt)
		if d < base || d >= base+base/2 {
			t.Errorf("Backoff(%d) = %v, expected within [%v, %v)", attempt, d, base, base+base/2)
		}
	}
	if d := Backoff(10); d < 30*time.Second || d >= 45*time.Second {
		t.Errorf("expected cap at 30s plus jitter, got %v", d)
	}
}
