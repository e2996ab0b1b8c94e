package httpapi

import (
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mimelyc/subtrans/internal/store"
	"github.com/mimelyc/subtrans/internal/watcher"
)

type createWatcherRequest struct {
	Path             string `json:"path"`
	TargetLanguage   string `json:"target_language"`
	LLMProvider      string `json:"llm_provider"`
	ScanIntervalCron string `json:"scan_interval_cron"`
}

func (s *Server) handleWatchers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		records, err := s.watchers.LoadWatchers(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, records)
	case http.MethodPost:
		s.createWatcher(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) createWatcher(w http.ResponseWriter, r *http.Request) {
	var req createWatcherRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	info, err := os.Stat(req.Path)
	if err != nil || !info.IsDir() {
		writeError(w, http.StatusNotFound, "directory not found")
		return
	}

	existing, err := s.watchers.LoadWatchers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for _, w2 := range existing {
		if w2.Path == req.Path {
			writeError(w, http.StatusBadRequest, "already watching this path")
			return
		}
	}

	settings := s.settings.Get()
	targetLanguage := req.TargetLanguage
	if targetLanguage == "" {
		targetLanguage = settings.TargetLanguage
	}
	provider := req.LLMProvider
	if provider == "" {
		provider = settings.DefaultLLM
	}

	record := &store.WatcherRecord{
		Path:             req.Path,
		Enabled:          true,
		TargetLanguage:   targetLanguage,
		LLMProvider:      provider,
		ScanIntervalCron: req.ScanIntervalCron,
		CreatedAt:        time.Now(),
	}
	id, err := s.watchers.InsertWatcher(r.Context(), record)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	record.ID = id

	s.runtime.Add(r.Context(), toWatcherRecord(record))
	writeJSON(w, http.StatusCreated, record)
}

func (s *Server) handleWatcherRoutes(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.TrimPrefix(r.URL.Path, "/api/watchers/")
	trimmed = strings.Trim(trimmed, "/")
	parts := strings.SplitN(trimmed, "/", 2)

	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	if len(parts) == 2 {
		if parts[1] != "toggle" {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		s.toggleWatcher(w, r, id)
		return
	}

	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.deleteWatcher(w, r, id)
}

func (s *Server) deleteWatcher(w http.ResponseWriter, r *http.Request, id int64) {
	record, ok, err := s.findWatcherRecord(r, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "watcher not found")
		return
	}
	s.runtime.Remove(record.ID)
	if err := s.watchers.DeleteWatcher(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) toggleWatcher(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	record, ok, err := s.findWatcherRecord(r, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "watcher not found")
		return
	}

	record.Enabled = !record.Enabled
	if err := s.watchers.UpdateWatcher(r.Context(), record); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if record.Enabled {
		s.runtime.Add(r.Context(), toWatcherRecord(record))
	} else {
		s.runtime.Remove(record.ID)
	}
	writeJSON(w, http.StatusOK, map[string]any{"enabled": record.Enabled})
}

func (s *Server) findWatcherRecord(r *http.Request, id int64) (*store.WatcherRecord, bool, error) {
	records, err := s.watchers.LoadWatchers(r.Context())
	if err != nil {
		return nil, false, err
	}
	for _, rec := range records {
		if rec.ID == id {
			return rec, true, nil
		}
	}
	return nil, false, nil
}

func toWatcherRecord(r *store.WatcherRecord) watcher.Record {
	return watcher.Record{
		ID:               r.ID,
		Path:             r.Path,
		Enabled:          r.Enabled,
		TargetLanguage:   r.TargetLanguage,
		LLMProvider:      r.LLMProvider,
		ScanIntervalCron: r.ScanIntervalCron,
	}
}
