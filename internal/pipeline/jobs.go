package pipeline

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the state of a translation task.
type JobStatus string

const (
	StatusQueued      JobStatus = "queued"
	StatusDownloading JobStatus = "downloading"
	StatusTranslating JobStatus = "translating"
	StatusUploading   JobStatus = "uploading"
	StatusCompleted   JobStatus = "completed"
	StatusFailed      JobStatus = "failed"
)

// progressFor is the progress shown when a job enters a status.
var progressFor = map[JobStatus]int{
	StatusQueued:      0,
	StatusDownloading: 20,
	StatusTranslating: 50,
	StatusUploading:   90,
	StatusCompleted:   100,
}

// JobKind says where the job's source document comes from.
type JobKind string

const (
	KindTranslate JobKind = "translate" // object already in the bucket
	KindDownload  JobKind = "download"  // fetch a paper URL first
)

const maxJobLogs = 100

// LogEntry is one captured log line of a job.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// Job tracks the state of a single translation task.
type Job struct {
	mu sync.Mutex

	ID     string
	Kind   JobKind
	Source string // object name, or the URL for download jobs

	Status   JobStatus
	Stage    string
	Progress int
	Object   string // source object once known
	Output   string // translated object name
	Error    string
	Skipped  bool

	CreatedAt time.Time
	UpdatedAt time.Time

	// Internal: not serialized.
	opts Options
	logs []LogEntry
}

// NewTaskID returns a random task identifier.
func NewTaskID() string {
	return uuid.NewString()
}

// NewJob returns a queued job with a fresh ID.
func NewJob(kind JobKind, source string, opts Options) *Job {
	now := time.Now()
	j := &Job{
		ID:        NewTaskID(),
		Kind:      kind,
		Source:    source,
		Status:    StatusQueued,
		Stage:     "queued",
		CreatedAt: now,
		UpdatedAt: now,
		opts:      opts,
	}
	if kind == KindTranslate {
		j.Object = source
	}
	return j
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Delete removes a job and reports whether it existed.
func (s *JobStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[id]
	delete(s.jobs, id)
	return ok
}

// List returns snapshots of every job, newest first.
func (s *JobStore) List() []JobSnapshot {
	s.mu.Lock()
	jobs := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	s.mu.Unlock()

	out := make([]JobSnapshot, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.Snapshot())
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	return out
}

// Cleanup removes finished jobs not updated within the TTL.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		job.mu.Lock()
		expired := job.finishedLocked() && now.Sub(job.UpdatedAt) > s.ttl
		job.mu.Unlock()
		if expired {
			delete(s.jobs, id)
		}
	}
}

func (j *Job) finishedLocked() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// SetStatus updates the status and stage message atomically. Progress
// jumps to the status's milestone.
func (j *Job) SetStatus(status JobStatus, stage string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Stage = stage
	if p, ok := progressFor[status]; ok {
		j.Progress = p
	}
	j.UpdatedAt = time.Now()
}

// SetProgress moves progress forward within the current status.
func (j *Job) SetProgress(p int, stage string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if p > j.Progress && p <= 100 {
		j.Progress = p
	}
	if stage != "" {
		j.Stage = stage
	}
	j.UpdatedAt = time.Now()
}

// Fail marks the job failed with reason.
func (j *Job) Fail(stage, reason string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = StatusFailed
	j.Stage = stage
	j.Error = reason
	j.UpdatedAt = time.Now()
}

// Complete marks the job done with its output object.
func (j *Job) Complete(output string, skipped bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = StatusCompleted
	j.Stage = "completed"
	j.Progress = 100
	j.Output = output
	j.Skipped = skipped
	j.UpdatedAt = time.Now()
}

// SetObject records the source object once it is known.
func (j *Job) SetObject(name string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Object = name
	j.UpdatedAt = time.Now()
}

// AppendLog records a log line, keeping the most recent maxJobLogs.
func (j *Job) AppendLog(e LogEntry) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.logs = append(j.logs, e)
	if over := len(j.logs) - maxJobLogs; over > 0 {
		j.logs = append(j.logs[:0], j.logs[over:]...)
	}
}

// Logs returns the last n captured lines, or all of them when n <= 0.
func (j *Job) Logs(n int) []LogEntry {
	j.mu.Lock()
	defer j.mu.Unlock()
	logs := j.logs
	if n > 0 && len(logs) > n {
		logs = logs[len(logs)-n:]
	}
	out := make([]LogEntry, len(logs))
	copy(out, logs)
	return out
}

// Options returns the pipeline options the job was submitted with.
func (j *Job) Options() Options {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.opts
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID        string    `json:"task_id"`
	Kind      JobKind   `json:"kind"`
	Source    string    `json:"source"`
	Status    JobStatus `json:"status"`
	Stage     string    `json:"stage"`
	Progress  int       `json:"progress"`
	Object    string    `json:"object,omitempty"`
	Output    string    `json:"output,omitempty"`
	Error     string    `json:"error,omitempty"`
	Skipped   bool      `json:"skipped,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return JobSnapshot{
		ID:        j.ID,
		Kind:      j.Kind,
		Source:    j.Source,
		Status:    j.Status,
		Stage:     j.Stage,
		Progress:  j.Progress,
		Object:    j.Object,
		Output:    j.Output,
		Error:     j.Error,
		Skipped:   j.Skipped,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}
