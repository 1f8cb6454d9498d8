package api

import (
	"net/http"

	"github.com/dgallion1/papertrans/internal/pipeline"
)

func (s *Server) handleLLMStats(w http.ResponseWriter, r *http.Request) {
	if s.model == nil || s.model.Stats() == nil {
		jsonError(w, "llm stats unavailable", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"model": s.model.Model(),
		"stats": s.model.Stats().Report(),
	})
}

// handleStatistics reports bucket contents and task counts.
func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	st, err := s.downloader.Statistics(r.Context())
	if err != nil {
		s.storageError(w, err)
		return
	}
	byStatus := make(map[pipeline.JobStatus]int)
	tasks := s.orchestrator.ListJobs()
	for _, t := range tasks {
		byStatus[t.Status]++
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"storage": st,
		"tasks": map[string]any{
			"total":       len(tasks),
			"by_status":   byStatus,
			"queue_depth": s.orchestrator.QueueDepth(),
		},
	})
}
