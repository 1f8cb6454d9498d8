package api

import (
	"net/http"
	"strconv"

	"github.com/dgallion1/papertrans/internal/pipeline"
	"github.com/go-chi/chi/v5"
)

const statusLogLines = 10

type statusResponse struct {
	pipeline.JobSnapshot
	Logs []pipeline.LogEntry `json:"logs"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	job := s.orchestrator.GetJob(chi.URLParam(r, "taskID"))
	if job == nil {
		jsonError(w, "task not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		JobSnapshot: job.Snapshot(),
		Logs:        job.Logs(statusLogLines),
	})
}

// handleLogs returns a task's captured log lines; ?limit=n keeps the last n.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	job := s.orchestrator.GetJob(taskID)
	if job == nil {
		jsonError(w, "task not found", http.StatusNotFound)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			jsonError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	logs := job.Logs(limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"task_id": taskID,
		"logs":    logs,
		"count":   len(logs),
	})
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks := s.orchestrator.ListJobs()
	if status := r.URL.Query().Get("status"); status != "" {
		filtered := tasks[:0]
		for _, t := range tasks {
			if string(t.Status) == status {
				filtered = append(filtered, t)
			}
		}
		tasks = filtered
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tasks":       tasks,
		"count":       len(tasks),
		"queue_depth": s.orchestrator.QueueDepth(),
	})
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if !s.orchestrator.DeleteJob(taskID) {
		jsonError(w, "task not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": taskID})
}
