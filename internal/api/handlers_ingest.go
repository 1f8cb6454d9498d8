package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgallion1/papertrans/internal/downloader"
	"github.com/dgallion1/papertrans/internal/parser"
	"github.com/dgallion1/papertrans/internal/pipeline"
	"github.com/dgallion1/papertrans/internal/storage"
	"github.com/go-chi/chi/v5"
)

const (
	defaultMaxUploadBytes = 50 << 20
	maxJSONBody           = 1 << 20
	maxBatchURLs          = 50
)

func (s *Server) maxUploadBytes() int64 {
	if s.cfg.MaxUploadBytes > 0 {
		return s.cfg.MaxUploadBytes
	}
	return defaultMaxUploadBytes
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	limit := s.maxUploadBytes()
	// Limit total request size, with 1MB for form overhead.
	r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	if !parser.IsSupportedExtension(filename) {
		jsonError(w, fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)), http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		jsonError(w, "failed to read file", http.StatusInternalServerError)
		return
	}
	if int64(len(data)) > limit {
		jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", limit), http.StatusRequestEntityTooLarge)
		return
	}
	if len(data) == 0 {
		jsonError(w, "file is empty", http.StatusBadRequest)
		return
	}

	pages := 0
	if strings.EqualFold(filepath.Ext(filename), ".pdf") {
		pages, err = parser.PageCount(data)
		if err != nil {
			jsonError(w, "invalid pdf: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	name := filename
	if custom := r.FormValue("custom_name"); custom != "" {
		name = withExtension(sanitizeFilename(custom), filepath.Ext(filename))
	}
	name, err = storage.UniqueObjectName(r.Context(), s.store, name)
	if err != nil {
		jsonError(w, "storage unavailable: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if err := s.store.Put(r.Context(), name, data, storage.ContentTypeFor(name)); err != nil {
		jsonError(w, "upload failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	s.log.Info("file uploaded", "object", name, "bytes", len(data), "pages", pages)

	resp := map[string]any{
		"object_name":       name,
		"original_filename": header.Filename,
		"size":              len(data),
		"upload_time":       time.Now(),
	}
	if pages > 0 {
		resp["pages"] = pages
	}
	writeJSON(w, http.StatusCreated, resp)
}

// jobOptions are the per-request overrides of the configured pipeline
// options.
type jobOptions struct {
	Reorder         *bool `json:"reorder"`
	IncludeTOC      *bool `json:"include_toc"`
	IncludeMetadata *bool `json:"include_metadata"`
}

func (s *Server) pipelineOptions(o jobOptions) pipeline.Options {
	opts := pipeline.OptionsFrom(s.cfg)
	if o.Reorder != nil {
		opts.Reorder = *o.Reorder
	}
	if o.IncludeTOC != nil {
		opts.IncludeTOC = *o.IncludeTOC
	}
	if o.IncludeMetadata != nil {
		opts.IncludeMetadata = *o.IncludeMetadata
	}
	return opts
}

type translateRequest struct {
	ObjectName string `json:"object_name"`
	jobOptions
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	var req translateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ObjectName == "" {
		jsonError(w, "object_name is required", http.StatusBadRequest)
		return
	}
	if !parser.IsSupportedExtension(req.ObjectName) {
		jsonError(w, fmt.Sprintf("unsupported file type: %s", filepath.Ext(req.ObjectName)), http.StatusBadRequest)
		return
	}
	ok, err := storage.Exists(r.Context(), s.store, req.ObjectName)
	if err != nil {
		jsonError(w, "storage unavailable: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if !ok {
		jsonError(w, "file not found: "+req.ObjectName, http.StatusNotFound)
		return
	}

	job := pipeline.NewJob(pipeline.KindTranslate, req.ObjectName, s.pipelineOptions(req.jobOptions))
	s.submit(w, job)
}

type downloadRequest struct {
	URL        string `json:"url"`
	ObjectName string `json:"object_name"`
	Translate  bool   `json:"translate"`
	jobOptions
}

// handleDownloadPaper downloads a paper synchronously, or queues a
// download-and-translate task when translate is set.
func (s *Server) handleDownloadPaper(w http.ResponseWriter, r *http.Request) {
	var req downloadRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if _, err := downloader.ValidateURL(req.URL); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.Translate {
		job := pipeline.NewJob(pipeline.KindDownload, strings.TrimSpace(req.URL), s.pipelineOptions(req.jobOptions))
		s.submit(w, job)
		return
	}

	objectName := ""
	if req.ObjectName != "" {
		objectName = sanitizeFilename(req.ObjectName)
	}
	res, err := s.downloader.Download(r.Context(), req.URL, objectName)
	s.writeDownload(w, res, err)
}

type batchRequest struct {
	URLs []string `json:"urls"`
}

func (s *Server) handleBatchDownload(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.URLs) == 0 {
		jsonError(w, "urls is required", http.StatusBadRequest)
		return
	}
	if len(req.URLs) > maxBatchURLs {
		jsonError(w, fmt.Sprintf("at most %d urls per batch", maxBatchURLs), http.StatusBadRequest)
		return
	}

	items := s.downloader.BatchDownload(r.Context(), req.URLs)
	succeeded := 0
	for _, it := range items {
		if it.Error == "" {
			succeeded++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results":   items,
		"total":     len(items),
		"succeeded": succeeded,
		"failed":    len(items) - succeeded,
	})
}

func (s *Server) handleArxivDownload(w http.ResponseWriter, r *http.Request) {
	res, err := s.downloader.FromArxiv(r.Context(), chi.URLParam(r, "arxivID"))
	s.writeDownload(w, res, err)
}

func (s *Server) handleIEEEDownload(w http.ResponseWriter, r *http.Request) {
	res, err := s.downloader.FromIEEE(r.Context(), chi.URLParam(r, "articleID"))
	s.writeDownload(w, res, err)
}

// DOIs contain slashes, so they travel in the body.
type springerRequest struct {
	DOI string `json:"doi"`
}

func (s *Server) handleSpringerDownload(w http.ResponseWriter, r *http.Request) {
	var req springerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.downloader.FromSpringer(r.Context(), req.DOI)
	s.writeDownload(w, res, err)
}

func (s *Server) writeDownload(w http.ResponseWriter, res *downloader.Result, err error) {
	if err != nil {
		jsonError(w, err.Error(), downloadStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleDownloadCheck reports whether a URL has already been downloaded.
func (s *Server) handleDownloadCheck(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	ok, err := s.downloader.IsDownloaded(r.Context(), rawURL)
	if err != nil {
		jsonError(w, err.Error(), downloadStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"url":         rawURL,
		"object_name": downloader.ObjectNameFor(rawURL),
		"downloaded":  ok,
	})
}

func (s *Server) submit(w http.ResponseWriter, job *pipeline.Job) {
	if err := s.orchestrator.Submit(job); err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"task_id":  job.ID,
		"status":   pipeline.StatusQueued,
		"poll_url": fmt.Sprintf("/api/status/%s", job.ID),
	})
}

// downloadStatus maps downloader failures to HTTP status codes.
func downloadStatus(err error) int {
	var he *downloader.HTTPError
	switch {
	case errors.Is(err, downloader.ErrInvalidURL):
		return http.StatusBadRequest
	case errors.Is(err, downloader.ErrDisallowed):
		return http.StatusForbidden
	case errors.Is(err, downloader.ErrUnsupportedContent):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, downloader.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &he):
		return http.StatusBadGateway
	case errors.As(err, new(*storage.StorageError)):
		return http.StatusInternalServerError
	}
	return http.StatusBadGateway
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		jsonError(w, "invalid json body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// sanitizeFilename keeps the base name and drops characters that are
// unsafe in object names.
func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = storage.CleanName(filepath.Base(name))
	if name == "" {
		name = "unnamed"
	}
	return name
}

// withExtension appends ext unless name already ends with it.
func withExtension(name, ext string) string {
	if ext == "" || strings.EqualFold(filepath.Ext(name), ext) {
		return name
	}
	return name + ext
}
