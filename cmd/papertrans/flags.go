package main

import (
	"fmt"
	"io"

	"github.com/dgallion1/papertrans/internal/config"
	flag "github.com/spf13/pflag"
)

// cliFlags holds the flags that are not configuration settings.
type cliFlags struct {
	title   string
	verbose bool
	version bool
}

// newFlagSet binds the translation flags directly to cfg so that flags
// override the environment and config file, and help shows the effective
// defaults.
func newFlagSet(cfg *config.Config, f *cliFlags, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("papertrans", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.SortFlags = false

	// Model
	fs.StringVarP(&cfg.OpenAIModel, "model", "m", cfg.OpenAIModel, "chat model name")
	fs.StringVar(&cfg.OpenAIBaseURL, "base-url", cfg.OpenAIBaseURL, "OpenAI-compatible API base URL")
	fs.Float64VarP(&cfg.OpenAITemperature, "temperature", "t", cfg.OpenAITemperature, "sampling temperature (0-1)")
	fs.DurationVar(&cfg.OpenAITimeout, "timeout", cfg.OpenAITimeout, "timeout per model call")

	// Chunking
	fs.IntVar(&cfg.ChunkSize, "chunk-size", cfg.ChunkSize, "maximum characters per chunk")
	fs.IntVar(&cfg.OverlapSize, "overlap-size", cfg.OverlapSize, "characters shared by consecutive chunks")
	fs.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "model call attempts per chunk and stage")
	fs.IntVarP(&cfg.ChunkConcurrency, "concurrency", "j", cfg.ChunkConcurrency, "chunks processed in parallel")

	// Output
	fs.BoolVar(&cfg.EnableReorder, "reorder", cfg.EnableReorder, "restore reading order with the model before translating")
	fs.BoolVar(&cfg.IncludeTOC, "include-toc", cfg.IncludeTOC, "insert a table of contents")
	fs.BoolVar(&cfg.IncludeMetadata, "include-metadata", cfg.IncludeMetadata, "prepend a metadata header")

	fs.StringVar(&f.title, "title", "", "title written to the metadata header")

	fs.BoolVarP(&f.verbose, "verbose", "v", false, "debug logging")
	fs.BoolVar(&f.version, "version", false, "print version and exit")

	fs.Usage = func() {
		fmt.Fprintf(out, "Usage: papertrans [flags] <input> <output.md>\n\n")
		fmt.Fprintf(out, "Translates an academic paper (PDF, TXT, MD, HTML, DOCX) into Chinese Markdown.\n")
		fmt.Fprintf(out, "OPENAI_API_KEY must be set in the environment or a .env file.\n\nFlags:\n")
		fs.PrintDefaults()
	}
	return fs
}
