package api

import (
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dgallion1/papertrans/internal/markdown"
	"github.com/dgallion1/papertrans/internal/parser"
	"github.com/dgallion1/papertrans/internal/storage"
	"github.com/go-chi/chi/v5"
)

const (
	defaultURLExpiry = time.Hour
	maxURLExpiry     = 7 * 24 * time.Hour
)

type fileEntry struct {
	storage.ObjectInfo
	HasTranslation bool   `json:"has_translation"`
	Translation    string `json:"translation,omitempty"`
}

// handleListFiles lists source documents. Markdown translations are
// reported on their source rather than listed on their own.
func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	objects, err := s.store.List(r.Context(), r.URL.Query().Get("prefix"))
	if err != nil {
		jsonError(w, "failed to list files: "+err.Error(), http.StatusInternalServerError)
		return
	}

	names := make(map[string]bool, len(objects))
	for _, o := range objects {
		names[o.Name] = true
	}

	files := make([]fileEntry, 0, len(objects))
	for _, o := range objects {
		if isMarkdown(o.Name) || !parser.IsSupportedExtension(o.Name) {
			continue
		}
		e := fileEntry{ObjectInfo: o}
		if tr := storage.TranslationName(o.Name); names[tr] {
			e.HasTranslation = true
			e.Translation = tr
		}
		files = append(files, e)
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files, "count": len(files)})
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	name, ok := objectParam(w, r)
	if !ok {
		return
	}
	info, err := s.store.Stat(r.Context(), name)
	if err != nil {
		s.storageError(w, err)
		return
	}
	data, err := s.store.Get(r.Context(), name)
	if err != nil {
		s.storageError(w, err)
		return
	}
	ct := info.ContentType
	if ct == "" {
		ct = storage.ContentTypeFor(name)
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", filepath.Base(name)))
	w.Write(data)
}

func (s *Server) handleFileURL(w http.ResponseWriter, r *http.Request) {
	name, ok := objectParam(w, r)
	if !ok {
		return
	}
	expiry := defaultURLExpiry
	if v := r.URL.Query().Get("expires"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			jsonError(w, "expires must be a positive number of seconds", http.StatusBadRequest)
			return
		}
		expiry = min(time.Duration(n)*time.Second, maxURLExpiry)
	}
	u, err := s.store.PresignGet(r.Context(), name, expiry)
	if err != nil {
		s.storageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"object_name": name,
		"url":         u,
		"expires_in":  int(expiry.Seconds()),
	})
}

// handlePreview renders a translation as HTML. Asking for a source
// document previews its translation.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	name, ok := objectParam(w, r)
	if !ok {
		return
	}
	if !isMarkdown(name) {
		name = storage.TranslationName(name)
	}
	data, err := s.store.Get(r.Context(), name)
	if err != nil {
		s.storageError(w, err)
		return
	}
	body, err := markdown.RenderHTML(string(data))
	if err != nil {
		jsonError(w, "render failed: "+err.Error(), http.StatusUnprocessableEntity)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<article class=\"paper\" data-object=%q>\n%s</article>\n", name, body)
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	name, ok := objectParam(w, r)
	if !ok {
		return
	}
	if err := s.store.Delete(r.Context(), name); err != nil {
		s.storageError(w, err)
		return
	}
	s.log.Info("file deleted", "object", name)
	writeJSON(w, http.StatusOK, map[string]any{"deleted": name})
}

type renameRequest struct {
	NewName string `json:"new_name"`
}

// handleRenameFile renames an object, and its translation along with it.
func (s *Server) handleRenameFile(w http.ResponseWriter, r *http.Request) {
	name, ok := objectParam(w, r)
	if !ok {
		return
	}
	var req renameRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.NewName) == "" {
		jsonError(w, "new_name is required", http.StatusBadRequest)
		return
	}
	newName := withExtension(sanitizeFilename(req.NewName), filepath.Ext(name))
	if newName == name {
		writeJSON(w, http.StatusOK, map[string]any{"old_name": name, "new_name": newName})
		return
	}

	ctx := r.Context()
	if _, err := s.store.Stat(ctx, name); err != nil {
		s.storageError(w, err)
		return
	}
	taken, err := storage.Exists(ctx, s.store, newName)
	if err != nil {
		s.storageError(w, err)
		return
	}
	if taken {
		jsonError(w, "target name already exists: "+newName, http.StatusConflict)
		return
	}
	if err := s.store.Rename(ctx, name, newName); err != nil {
		s.storageError(w, err)
		return
	}

	resp := map[string]any{"old_name": name, "new_name": newName}
	if !isMarkdown(name) {
		oldTr, newTr := storage.TranslationName(name), storage.TranslationName(newName)
		if ok, _ := storage.Exists(ctx, s.store, oldTr); ok {
			if err := s.store.Rename(ctx, oldTr, newTr); err != nil {
				s.log.Warn("translation rename failed", "from", oldTr, "to", newTr, "error", err)
			} else {
				resp["translation"] = newTr
			}
		}
	}
	s.log.Info("file renamed", "from", name, "to", newName)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) storageError(w http.ResponseWriter, err error) {
	if storage.IsNotFound(err) {
		jsonError(w, "file not found", http.StatusNotFound)
		return
	}
	s.log.Error("storage operation failed", "error", err)
	jsonError(w, err.Error(), http.StatusInternalServerError)
}

// objectParam returns the unescaped {name} route parameter.
func objectParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil || name == "" || strings.Contains(name, "..") {
		jsonError(w, "invalid file name", http.StatusBadRequest)
		return "", false
	}
	return name, true
}

func isMarkdown(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown":
		return true
	}
	return false
}
