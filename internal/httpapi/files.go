package httpapi

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mimelyc/subtrans/internal/library"
)

func (s *Server) handleBrowse(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	path := r.URL.Query().Get("path")
	result, err := library.Browse(path)
	if err != nil {
		switch {
		case errors.Is(err, os.ErrNotExist):
			writeError(w, http.StatusNotFound, "path not found")
		case errors.Is(err, os.ErrInvalid):
			writeError(w, http.StatusBadRequest, "path is not a directory")
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type subtitleTrack struct {
	Index    int    `json:"index"`
	Codec    string `json:"codec"`
	Language string `json:"language"`
	Title    string `json:"title"`
}

func (s *Server) handleSubtitleTracks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	filePath := strings.TrimSpace(r.URL.Query().Get("file_path"))
	if filePath == "" {
		writeError(w, http.StatusBadRequest, "file_path is required")
		return
	}
	if _, err := os.Stat(filePath); err != nil {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}

	tracks, err := s.tracks.ListTracks(r.Context(), filePath)
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}

	out := make([]subtitleTrack, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, subtitleTrack{
			Index:    t.Index,
			Codec:    t.Codec,
			Language: t.Language,
			Title:    t.Title,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tracks": out})
}

// handleLibrary scans every watched directory and reports, per media
// file, the same skip decision task creation would reach for it.
// Sources are the configured watchers, not a separate catalog.
func (s *Server) handleLibrary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ctx := r.Context()
	records, err := s.watchers.LoadWatchers(ctx)
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}

	sources := make([]library.SourceConfig, 0, len(records))
	for _, rec := range records {
		if !rec.Enabled {
			continue
		}
		sources = append(sources, library.SourceConfig{
			ID:   strconv.FormatInt(rec.ID, 10),
			Name: filepath.Base(rec.Path),
			Path: rec.Path,
		})
	}

	settings := s.settings.Get()
	scanner := library.NewScanner(s.oracle, settings.TargetLanguage, outputSettingsFrom(settings))
	lib, err := scanner.Scan(ctx, sources)
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lib)
}
