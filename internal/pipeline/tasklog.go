package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

const taskIDKey = "task_id"

// TaskLogHandler forwards records to an inner handler and also copies
// every record tagged with a task_id attribute into that job's log.
type TaskLogHandler struct {
	inner  slog.Handler
	jobs   *JobStore
	taskID string
	attrs  []slog.Attr
}

func NewTaskLogHandler(inner slog.Handler, jobs *JobStore) *TaskLogHandler {
	return &TaskLogHandler{inner: inner, jobs: jobs}
}

func (h *TaskLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *TaskLogHandler) Handle(ctx context.Context, r slog.Record) error {
	id := h.taskID
	var extra []slog.Attr
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == taskIDKey {
			id = a.Value.String()
			return true
		}
		extra = append(extra, a)
		return true
	})
	if id != "" {
		if job := h.jobs.Get(id); job != nil {
			job.AppendLog(LogEntry{
				Time:    r.Time,
				Level:   r.Level.String(),
				Message: formatLine(r.Message, h.attrs, extra),
			})
		}
	}
	return h.inner.Handle(ctx, r)
}

func (h *TaskLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := &TaskLogHandler{inner: h.inner.WithAttrs(attrs), jobs: h.jobs, taskID: h.taskID}
	next.attrs = append(next.attrs, h.attrs...)
	for _, a := range attrs {
		if a.Key == taskIDKey {
			next.taskID = a.Value.String()
			continue
		}
		next.attrs = append(next.attrs, a)
	}
	return next
}

func (h *TaskLogHandler) WithGroup(name string) slog.Handler {
	return &TaskLogHandler{inner: h.inner.WithGroup(name), jobs: h.jobs, taskID: h.taskID, attrs: h.attrs}
}

// formatLine renders "msg k=v k=v" for the task log view.
func formatLine(msg string, groups ...[]slog.Attr) string {
	var sb strings.Builder
	sb.WriteString(msg)
	for _, attrs := range groups {
		for _, a := range attrs {
			if a.Key == "" {
				continue
			}
			fmt.Fprintf(&sb, " %s=%v", a.Key, a.Value.Resolve())
		}
	}
	return sb.String()
}
