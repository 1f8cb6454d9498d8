package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"github.com/dgallion1/papertrans/internal/document"
	"github.com/dgallion1/papertrans/internal/parser"
	"github.com/dgallion1/papertrans/internal/storage"
)

// Fetcher downloads a paper URL into the object store and returns the
// stored object's name.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

const markdownContentType = "text/markdown; charset=utf-8"

// Worker processes a single translation job.
type Worker struct {
	pipeline *Pipeline
	store    storage.Store
	fetcher  Fetcher
	log      *slog.Logger
}

func NewWorker(p *Pipeline, store storage.Store, fetcher Fetcher, log *slog.Logger) *Worker {
	return &Worker{
		pipeline: p,
		store:    store,
		fetcher:  fetcher,
		log:      log,
	}
}

// Process runs download (for URL jobs), extraction, translation, and
// upload for a job. Failures are recorded on the job.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("task_id", job.ID, "kind", string(job.Kind))
	snap := job.Snapshot()
	name := snap.Object

	// Phase 1: Download
	if job.Kind == KindDownload {
		job.SetStatus(StatusDownloading, "downloading paper")
		if w.fetcher == nil {
			job.Fail("downloading", "downloads are not configured")
			log.Error("no fetcher configured")
			return
		}
		obj, err := w.fetcher.Fetch(ctx, snap.Source)
		if err != nil {
			log.Error("download failed", "url", snap.Source, "error", err)
			job.Fail("downloading", err.Error())
			return
		}
		job.SetObject(obj)
		name = obj
		log.Info("paper downloaded", "object", obj)
	}

	// Phase 1.5: Skip when a translation already exists
	output := storage.TranslationName(name)
	exists, err := storage.Exists(ctx, w.store, output)
	if err != nil {
		log.Warn("existence check failed, proceeding", "object", output, "error", err)
	} else if exists {
		log.Info("translation already exists, skipping", "output", output)
		job.Complete(output, true)
		return
	}

	// Phase 2: Extract
	job.SetStatus(StatusTranslating, "extracting text")
	data, err := w.store.Get(ctx, name)
	if err != nil {
		log.Error("fetch source failed", "object", name, "error", err)
		job.Fail("translating", fmt.Sprintf("fetch %s: %s", name, err))
		return
	}
	ex, err := parser.ForFile(name, w.pipeline.cfg.Extract)
	if err != nil {
		log.Error("unsupported format", "error", err)
		job.Fail("translating", err.Error())
		return
	}
	blocks, err := ex.Extract(bytes.NewReader(data), path.Base(name))
	if err == nil && len(blocks) == 0 {
		err = ErrNoContent
	}
	if err != nil {
		log.Error("extraction failed", "error", err)
		job.Fail("translating", fmt.Sprintf("extract: %s", err))
		return
	}
	log.Info("text extracted", "blocks", len(blocks), "pages", document.PageCount(blocks))

	// Phase 3: Translate
	opts := job.Options()
	opts.Source = path.Base(name)
	opts.Log = log
	stages := 2
	if opts.Reorder {
		stages = 3
	}
	stageIndex := map[string]int{"clean": 0, "reorder": 1, "translate": stages - 1}
	opts.Progress = func(stage string, done, total int) {
		// Translation spans the 50..90 progress band.
		step := stageIndex[stage]*total + done
		job.SetProgress(50+40*step/(stages*total), fmt.Sprintf("%s %d/%d", stage, done, total))
	}

	res, err := w.pipeline.Run(ctx, blocks, opts)
	if err != nil && isCanceled(err) {
		log.Warn("translation interrupted", "error", err)
		job.Fail("translating", "interrupted: "+err.Error())
		return
	}
	if err != nil {
		log.Error("translation failed", "error", err)
		job.Fail("translating", err.Error())
		return
	}
	for _, st := range res.Stats {
		log.Info("stage statistics", "stats", st)
	}

	// Phase 4: Upload
	job.SetStatus(StatusUploading, "uploading translation")
	if err := w.store.Put(ctx, output, []byte(res.Markdown), markdownContentType); err != nil {
		log.Error("upload failed", "output", output, "error", err)
		job.Fail("uploading", err.Error())
		return
	}

	if !res.Validation.IsValid {
		log.Warn("translation stored with validation errors", "errors", res.Validation.Errors)
	}
	log.Info("task completed", "output", output, "chunks", res.Chunks, "duration", res.Duration)
	job.Complete(output, false)
}

// isCanceled reports whether err came from shutdown rather than the job.
func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
