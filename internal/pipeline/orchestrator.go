package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/papertrans/internal/config"
	"github.com/dgallion1/papertrans/internal/storage"
)

// Orchestrator manages the translation task queue.
type Orchestrator struct {
	jobs     *JobStore
	queue    chan *Job
	pipeline *Pipeline
	store    storage.Store
	fetcher  Fetcher
	log      *slog.Logger
	cfg      config.Config

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator creates the task queue. Log records carrying a task_id
// are also captured into that task's log.
func NewOrchestrator(cfg config.Config, p *Pipeline, store storage.Store, fetcher Fetcher, log *slog.Logger) *Orchestrator {
	jobs := NewJobStore(cfg.JobTTL)
	return &Orchestrator{
		jobs:     jobs,
		queue:    make(chan *Job, cfg.MaxQueueSize),
		pipeline: p,
		store:    store,
		fetcher:  fetcher,
		log:      slog.New(NewTaskLogHandler(log.Handler(), jobs)),
		cfg:      cfg,
	}
}

// Start launches worker goroutines.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for range o.cfg.WorkerCount {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			w := NewWorker(o.pipeline, o.store, o.fetcher, o.log)
			for {
				select {
				case <-workerCtx.Done():
					return
				case job, ok := <-o.queue:
					if !ok {
						return
					}
					w.Process(workerCtx, job)
				}
			}
		}()
	}

	// Start job store cleanup.
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.jobs.Cleanup()
			}
		}
	}()
}

// Stop gracefully shuts down the pipeline.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	close(o.queue)
	o.wg.Wait()
}

// Submit queues a new job for processing.
func (o *Orchestrator) Submit(job *Job) error {
	o.jobs.Put(job)
	select {
	case o.queue <- job:
		o.log.Info("task queued", "task_id", job.ID, "kind", string(job.Kind), "source", job.Source)
		return nil
	default:
		job.Fail("queued", "queue full")
		return fmt.Errorf("task queue is full (%d)", o.cfg.MaxQueueSize)
	}
}

// GetJob returns a job by ID.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// ListJobs returns every tracked job, newest first.
func (o *Orchestrator) ListJobs() []JobSnapshot {
	return o.jobs.List()
}

// DeleteJob forgets a job. A running job keeps running but is no longer
// reported.
func (o *Orchestrator) DeleteJob(id string) bool {
	return o.jobs.Delete(id)
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}

// Store returns the object store for direct use by API handlers.
func (o *Orchestrator) Store() storage.Store {
	return o.store
}
