// Command papertrans translates a single paper into Chinese Markdown.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dgallion1/papertrans/internal/config"
	"github.com/dgallion1/papertrans/internal/llm"
	"github.com/dgallion1/papertrans/internal/parser"
	"github.com/dgallion1/papertrans/internal/pipeline"
	flag "github.com/spf13/pflag"
	"go.uber.org/automaxprocs/maxprocs"
)

// Version is set at build time via ldflags.
var Version = "dev"

const (
	exitSuccess = 0
	exitFailure = 1
)

// completerFactory builds the model client; tests substitute a fake.
type completerFactory func(ctx context.Context, cfg llm.Config, log *slog.Logger) (llm.Completer, error)

func openAICompleter(ctx context.Context, cfg llm.Config, log *slog.Logger) (llm.Completer, error) {
	return llm.NewOpenAIClient(ctx, cfg, nil, log)
}

func main() {
	os.Exit(runMain(os.Args[1:], os.Stdout, os.Stderr, openAICompleter))
}

func runMain(args []string, stdout, stderr io.Writer, newCompleter completerFactory) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitFailure
	}

	var f cliFlags
	fs := newFlagSet(&cfg, &f, stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitSuccess
		}
		fmt.Fprintln(stderr, err)
		return exitFailure
	}
	if f.version {
		fmt.Fprintf(stdout, "papertrans %s\n", Version)
		return exitSuccess
	}
	if fs.NArg() != 2 {
		fs.Usage()
		return exitFailure
	}
	input, output := fs.Arg(0), fs.Arg(1)

	level := slog.LevelInfo
	if f.verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	// Error ignored: maxprocs.Set only fails on an invalid GOMAXPROCS, and
	// the runtime default then applies.
	_, _ = maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		log.Debug(fmt.Sprintf(format, args...))
	}))

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		return exitFailure
	}
	if !parser.IsSupportedExtension(input) {
		log.Error("unsupported input format", "input", input, "ext", filepath.Ext(input))
		return exitFailure
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := translate(ctx, cfg, f.title, input, output, newCompleter, log); err != nil {
		log.Error("translation failed", "input", input, "error", err)
		return exitFailure
	}
	return exitSuccess
}

func translate(ctx context.Context, cfg config.Config, title, input, output string, newCompleter completerFactory, log *slog.Logger) error {
	completer, err := newCompleter(ctx, cfg.LLMConfig(), log)
	if err != nil {
		return fmt.Errorf("model client: %w", err)
	}
	p, err := pipeline.New(pipeline.ConfigFrom(cfg, log), completer, log)
	if err != nil {
		return err
	}

	log.Info("translating", "input", input, "model", cfg.OpenAIModel, "chunk_size", cfg.ChunkSize, "concurrency", cfg.ChunkConcurrency)
	opts := pipeline.OptionsFrom(cfg)
	opts.Title = title
	res, err := p.TranslateFile(ctx, input, opts)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(output); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	if err := os.WriteFile(output, []byte(res.Markdown), 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	for _, st := range res.Stats {
		log.Info("stage statistics", "stats", st)
	}
	if !res.Validation.IsValid {
		log.Warn("output has markdown problems", "errors", res.Validation.Errors)
	}
	log.Info("translation written",
		"output", output,
		"blocks", res.Blocks,
		"chunks", res.Chunks,
		"duration", res.Duration,
	)
	return nil
}
