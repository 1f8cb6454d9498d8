package api

import (
	"log/slog"
	"net/http"

	"github.com/dgallion1/papertrans/internal/config"
	"github.com/dgallion1/papertrans/internal/downloader"
	"github.com/dgallion1/papertrans/internal/llm"
	"github.com/dgallion1/papertrans/internal/pipeline"
	"github.com/dgallion1/papertrans/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// ModelInfo exposes the chat model behind the pipeline.
type ModelInfo interface {
	Model() string
	Stats() *llm.Stats
}

// Server is the HTTP API server for papertrans.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	downloader   *downloader.Downloader
	store        storage.Store
	model        ModelInfo
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(orch *pipeline.Orchestrator, dl *downloader.Downloader, model ModelInfo, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		orchestrator: orch,
		downloader:   dl,
		store:        orch.Store(),
		model:        model,
		log:          log,
		cfg:          cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Get("/api/files", s.handleListFiles)
		r.Post("/api/upload", s.handleUpload)
		r.Get("/api/files/{name}", s.handleGetFile)
		r.Get("/api/files/{name}/url", s.handleFileURL)
		r.Get("/api/files/{name}/preview", s.handlePreview)
		r.Delete("/api/files/{name}", s.handleDeleteFile)
		r.Put("/api/files/{name}/rename", s.handleRenameFile)

		r.Post("/api/download-paper", s.handleDownloadPaper)
		r.Post("/api/download/batch", s.handleBatchDownload)
		r.Post("/api/download/arxiv/{arxivID}", s.handleArxivDownload)
		r.Post("/api/download/ieee/{articleID}", s.handleIEEEDownload)
		r.Post("/api/download/springer", s.handleSpringerDownload)
		r.Get("/api/download/check", s.handleDownloadCheck)

		r.Post("/api/translate", s.handleTranslate)
		r.Get("/api/status/{taskID}", s.handleStatus)
		r.Get("/api/logs/{taskID}", s.handleLogs)
		r.Get("/api/tasks", s.handleListTasks)
		r.Delete("/api/tasks/{taskID}", s.handleDeleteTask)

		r.Get("/api/statistics", s.handleStatistics)
		r.Get("/api/stats/llm", s.handleLLMStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"queue_depth": s.orchestrator.QueueDepth(),
	})
}
