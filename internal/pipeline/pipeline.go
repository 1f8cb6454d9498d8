// Package pipeline turns extracted text blocks into a translated Markdown
// document, and runs translation tasks for the HTTP service.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/dgallion1/papertrans/internal/chunker"
	"github.com/dgallion1/papertrans/internal/config"
	"github.com/dgallion1/papertrans/internal/document"
	"github.com/dgallion1/papertrans/internal/llm"
	"github.com/dgallion1/papertrans/internal/markdown"
	"github.com/dgallion1/papertrans/internal/parser"
	"golang.org/x/sync/errgroup"
)

// ErrNoContent is returned when the input yields no text to translate.
var ErrNoContent = errors.New("no extractable content")

// Config holds the settings shared by every run.
type Config struct {
	Chunk       chunker.Config
	MaxRetries  int
	Concurrency int // chunks in flight per stage; 1 is sequential

	Temperature float32
	MaxTokens   int
	Timeout     time.Duration // per model call

	Extract parser.Options
}

// ConfigFrom derives the pipeline settings from the service configuration.
func ConfigFrom(cfg config.Config, log *slog.Logger) Config {
	return Config{
		Chunk:       cfg.ChunkConfig(),
		MaxRetries:  cfg.MaxRetries,
		Concurrency: cfg.ChunkConcurrency,
		Temperature: float32(cfg.OpenAITemperature),
		MaxTokens:   cfg.OpenAIMaxTokens,
		Timeout:     cfg.OpenAITimeout,
		Extract:     parser.Options{FallbackPdftotext: cfg.PDFFallbackPdftotext, Log: log},
	}
}

// OptionsFrom returns the per-run defaults from the service configuration.
func OptionsFrom(cfg config.Config) Options {
	return Options{
		Reorder:         cfg.EnableReorder,
		IncludeTOC:      cfg.IncludeTOC,
		IncludeMetadata: cfg.IncludeMetadata,
	}
}

// Options tune a single run.
type Options struct {
	Reorder         bool
	IncludeTOC      bool
	IncludeMetadata bool
	Source          string // recorded in the metadata header
	Title           string // overrides the default metadata title

	// Progress, if set, is called after each chunk finishes a stage.
	Progress func(stage string, done, total int)

	// Log overrides the pipeline's logger for this run.
	Log *slog.Logger
}

// DefaultOptions matches the service defaults: no reordering, with ToC
// and metadata.
func DefaultOptions() Options {
	return Options{IncludeTOC: true, IncludeMetadata: true}
}

// Result is the outcome of one run.
type Result struct {
	Markdown   string
	Blocks     int
	Chunks     int
	Validation markdown.ValidationResult
	Stats      []StageStats
	Duration   time.Duration
}

// Pipeline runs merge, split, clean, reorder, translate, and assemble.
type Pipeline struct {
	cfg      Config
	splitter *chunker.Splitter
	llm      llm.Completer
	log      *slog.Logger

	backoff func(int) time.Duration
	now     func() time.Time
}

// New validates cfg and builds a pipeline around the given model client.
func New(cfg Config, completer llm.Completer, log *slog.Logger) (*Pipeline, error) {
	splitter, err := chunker.New(cfg.Chunk)
	if err != nil {
		return nil, err
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("%w: max retries must not be negative", chunker.ErrInvalidConfiguration)
	}
	if completer == nil {
		return nil, fmt.Errorf("%w: model client is required", chunker.ErrInvalidConfiguration)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		cfg:      cfg,
		splitter: splitter,
		llm:      completer,
		log:      log,
		backoff:  Backoff,
		now:      time.Now,
	}, nil
}

func (p *Pipeline) newStage(name string, op llm.Operation, system string, prompt func(string) string, fallback func(string, error) string, log *slog.Logger) *stage {
	return &stage{
		name:     name,
		op:       op,
		system:   system,
		prompt:   prompt,
		fallback: fallback,
		llm:      p.llm,
		request: llm.Request{
			Temperature: p.cfg.Temperature,
			MaxTokens:   p.cfg.MaxTokens,
			Timeout:     p.cfg.Timeout,
		},
		maxRetries: p.cfg.MaxRetries,
		backoff:    p.backoff,
		log:        log,
	}
}

// Run translates blocks into a Markdown document.
func (p *Pipeline) Run(ctx context.Context, blocks []document.TextBlock, opts Options) (*Result, error) {
	start := p.now()
	log := p.log
	if opts.Log != nil {
		log = opts.Log
	}
	if opts.Source != "" {
		log = log.With("source", opts.Source)
	}

	merged := chunker.MergeBlocks(blocks)
	chunks := p.splitter.Split(merged)
	if len(chunks) == 0 {
		return nil, ErrNoContent
	}
	log.Info("document split", "blocks", len(blocks), "chunks", len(chunks), "chars", len([]rune(merged)), "est_tokens", chunker.EstimateTokens(merged))
	if p.cfg.MaxTokens > 0 {
		for i, c := range chunks {
			if n := chunker.EstimateTokens(c); n > p.cfg.MaxTokens {
				log.Warn("chunk may exceed the model's max tokens", "chunk", i, "est_tokens", n, "max_tokens", p.cfg.MaxTokens)
			}
		}
	}

	cleaner := p.newStage("clean", llm.OpClean, llm.CleanSystemPrompt, llm.CleanPrompt, cleanFallback, log)
	reorderer := p.newStage("reorder", llm.OpReorder, llm.ReorderSystemPrompt, llm.ReorderPrompt, reorderFallback, log)
	translator := p.newStage("translate", llm.OpTranslate, llm.TranslateSystemPrompt, llm.TranslatePrompt, translateFallback, log)

	cleaned, err := p.runStage(ctx, cleaner, chunks, opts.Progress)
	if err != nil {
		return nil, err
	}
	for i, c := range cleaned {
		cleaned[i] = markdown.ProcessMarkers(c)
	}

	stages := []*stage{cleaner}
	ordered := cleaned
	if opts.Reorder {
		ordered, err = p.runStage(ctx, reorderer, cleaned, opts.Progress)
		if err != nil {
			return nil, err
		}
		stages = append(stages, reorderer)
	}

	translated, err := p.runStage(ctx, translator, ordered, opts.Progress)
	if err != nil {
		return nil, err
	}
	stages = append(stages, translator)
	for i, t := range translated {
		if markdown.HasMarkers(t) {
			log.Debug("translation kept structural markers", "chunk", i)
			translated[i] = markdown.ProcessMarkers(t)
		}
	}

	content := markdown.Assemble(translated)
	if opts.IncludeMetadata {
		meta := markdown.DefaultMetadata(opts.Source, p.now())
		if opts.Title != "" {
			meta = meta.Set("title", opts.Title)
		}
		content = markdown.AddMetadata(content, meta)
	}
	if opts.IncludeTOC {
		content = markdown.BuildTableOfContents(content)
	}

	validation := markdown.Validate(content)
	if !validation.IsValid {
		log.Warn("markdown validation failed", "errors", validation.Errors)
	}
	for _, w := range validation.Warnings {
		log.Debug("markdown validation warning", "warning", w)
	}

	res := &Result{
		Markdown:   content,
		Blocks:     len(blocks),
		Chunks:     len(chunks),
		Validation: validation,
		Duration:   p.now().Sub(start),
	}
	for _, s := range stages {
		res.Stats = append(res.Stats, s.snapshot())
	}
	log.Info("translation complete", "chunks", len(chunks), "duration", res.Duration)
	return res, nil
}

// runStage processes chunks with bounded concurrency and returns outputs
// in chunk order.
func (p *Pipeline) runStage(ctx context.Context, s *stage, chunks []string, progress func(string, int, int)) ([]string, error) {
	out := make([]string, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)

	var mu sync.Mutex
	finished := 0
	for i, chunk := range chunks {
		g.Go(func() error {
			r, err := s.process(gctx, i, chunk)
			if err != nil {
				return err
			}
			out[i] = r
			if progress != nil {
				mu.Lock()
				finished++
				progress(s.name, finished, len(chunks))
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	s.log.Info("stage finished", "stats", s.snapshot())
	return out, nil
}

// TranslateFile extracts path with the matching extractor and runs the
// pipeline over its blocks. Source defaults to the file's base name.
func (p *Pipeline) TranslateFile(ctx context.Context, path string, opts Options) (*Result, error) {
	blocks, err := parser.ExtractFile(path, p.cfg.Extract)
	if err != nil {
		return nil, err
	}
	if len(blocks) == 0 {
		return nil, ErrNoContent
	}
	if opts.Source == "" {
		opts.Source = filepath.Base(path)
	}
	return p.Run(ctx, blocks, opts)
}
