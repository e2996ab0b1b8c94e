package httpapi

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mimelyc/subtrans/internal/config"
	"github.com/mimelyc/subtrans/internal/langalias"
	"github.com/mimelyc/subtrans/internal/skip"
	"github.com/mimelyc/subtrans/internal/task"
	"github.com/mimelyc/subtrans/pkg/log"
)

const (
	defaultTaskListLimit = 50
	maxTaskListLimit     = 500
)

var sourceExts = map[string]bool{".mkv": true, ".srt": true, ".ass": true}

type taskListResponse struct {
	Tasks  []*task.Task `json:"tasks"`
	Total  int          `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

type createTaskRequest struct {
	FilePath       string `json:"file_path"`
	TargetLanguage string `json:"target_language"`
	LLMProvider    string `json:"llm_provider"`
	SubtitleTrack  *int   `json:"subtitle_track"`
	ForceOverride  bool   `json:"force_override"`
}

type createDirectoryTasksRequest struct {
	DirectoryPath  string `json:"directory_path"`
	TargetLanguage string `json:"target_language"`
	LLMProvider    string `json:"llm_provider"`
	Recursive      bool   `json:"recursive"`
	ForceOverride  bool   `json:"force_override"`
}

type createDirectoryTasksResponse struct {
	CreatedCount int     `json:"created_count"`
	TaskIDs      []int64 `json:"task_ids"`
}

type taskIDListRequest struct {
	TaskIDs []int64 `json:"task_ids"`
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listTasks(w, r)
	case http.MethodPost:
		s.createTask(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	status := task.Status(r.URL.Query().Get("status"))
	limit := parsePositiveIntWithDefault(r.URL.Query().Get("limit"), defaultTaskListLimit)
	if limit <= 0 || limit > maxTaskListLimit {
		limit = defaultTaskListLimit
	}
	offset := parsePositiveIntWithDefault(r.URL.Query().Get("offset"), 0)

	all := s.tasks.List()
	filtered := make([]*task.Task, 0, len(all))
	for _, t := range all {
		if status != "" && t.Status != status {
			continue
		}
		filtered = append(filtered, t)
	}

	total := len(filtered)
	end := min(total, offset+limit)
	var page []*task.Task
	if offset < total {
		page = filtered[offset:end]
	}

	writeJSON(w, http.StatusOK, taskListResponse{
		Tasks:  page,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

func (s *Server) handleTaskStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	counts := map[task.Status]int{
		task.StatusPending:    0,
		task.StatusProcessing: 0,
		task.StatusCompleted:  0,
		task.StatusFailed:     0,
		task.StatusCancelled:  0,
		task.StatusPaused:     0,
	}
	for _, t := range s.tasks.List() {
		counts[t.Status]++
	}
	resp := map[string]any{"total": 0}
	total := 0
	for status, n := range counts {
		resp[string(status)] = n
		total += n
	}
	resp["total"] = total
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if strings.TrimSpace(req.FilePath) == "" {
		writeError(w, http.StatusBadRequest, "file_path is required")
		return
	}
	if _, err := os.Stat(req.FilePath); err != nil {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	if !sourceExts[strings.ToLower(filepath.Ext(req.FilePath))] {
		writeError(w, http.StatusBadRequest, "file must be mkv, srt, or ass")
		return
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

	if !req.ForceOverride {
		decision, err := s.oracle.Decide(r.Context(), skip.Request{
			FilePath:       req.FilePath,
			TargetLanguage: targetLanguage,
		}, outputSettingsFrom(settings))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if !decision.Proceed {
			writeError(w, http.StatusConflict, "file skipped: "+string(decision.Reason))
			return
		}
	}

	t, err := s.tasks.Enqueue(task.CreateRequest{
		FilePath:       req.FilePath,
		SourceLanguage: "auto",
		TargetLanguage: targetLanguage,
		LLMProvider:    provider,
		SubtitleTrack:  req.SubtitleTrack,
		ForceOverride:  req.ForceOverride,
	})
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) createDirectoryTasks(w http.ResponseWriter, r *http.Request) {
	var req createDirectoryTasksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if strings.TrimSpace(req.DirectoryPath) == "" {
		writeError(w, http.StatusBadRequest, "directory_path is required")
		return
	}
	info, err := os.Stat(req.DirectoryPath)
	if err != nil || !info.IsDir() {
		writeError(w, http.StatusNotFound, "directory not found")
		return
	}

	candidates, err := listSourceFiles(req.DirectoryPath, req.Recursive)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(candidates) == 0 {
		writeError(w, http.StatusNotFound, "no mkv, srt, or ass files found in directory")
		return
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
	outSettings := outputSettingsFrom(settings)

	var ids []int64
	for _, path := range candidates {
		if isGeneratedSubtitle(path) {
			continue
		}
		if !req.ForceOverride {
			decision, err := s.oracle.Decide(r.Context(), skip.Request{
				FilePath:       path,
				TargetLanguage: targetLanguage,
			}, outSettings)
			if err != nil || !decision.Proceed {
				continue
			}
		}
		t, err := s.tasks.Enqueue(task.CreateRequest{
			FilePath:       path,
			SourceLanguage: "auto",
			TargetLanguage: targetLanguage,
			LLMProvider:    provider,
			ForceOverride:  req.ForceOverride,
		})
		if err != nil {
			continue
		}
		ids = append(ids, t.ID)
	}

	writeJSON(w, http.StatusCreated, createDirectoryTasksResponse{
		CreatedCount: len(ids),
		TaskIDs:      ids,
	})
}

func (s *Server) handleTaskRoutes(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.TrimPrefix(r.URL.Path, "/api/tasks/")
	trimmed = strings.Trim(trimmed, "/")

	switch trimmed {
	case "":
		writeError(w, http.StatusNotFound, "not found")
		return
	case "stats":
		s.handleTaskStats(w, r)
		return
	case "directory":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.createDirectoryTasks(w, r)
		return
	case "pause-all":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		result := s.tasks.PauseAll()
		writeJSON(w, http.StatusOK, map[string]any{"paused_count": result.Succeeded})
		return
	case "pause-selected":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		var req taskIDListRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if len(req.TaskIDs) == 0 {
			writeError(w, http.StatusBadRequest, "task_ids is required")
			return
		}
		result := s.tasks.PauseSelected(req.TaskIDs)
		writeJSON(w, http.StatusOK, map[string]any{"paused_count": result.Succeeded})
		return
	case "delete-all":
		if r.Method != http.MethodDelete {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		cancelled := s.countProcessing(nil)
		result := s.tasks.DeleteAll()
		writeJSON(w, http.StatusOK, map[string]any{
			"cancelled_count": cancelled,
			"deleted_count":   result.Succeeded,
		})
		return
	case "delete-selected":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		var req taskIDListRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if len(req.TaskIDs) == 0 {
			writeError(w, http.StatusBadRequest, "task_ids is required")
			return
		}
		cancelled := s.countProcessing(req.TaskIDs)
		result := s.tasks.DeleteSelected(req.TaskIDs)
		writeJSON(w, http.StatusOK, map[string]any{
			"cancelled_count": cancelled,
			"deleted_count":   result.Succeeded,
		})
		return
	}

	parts := strings.SplitN(trimmed, "/", 2)
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	if len(parts) == 2 {
		if parts[1] != "retry" {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		s.handleRetryTask(w, r, id)
		return
	}
	s.handleTaskByID(w, r, id)
}

// countProcessing reports how many of ids (or every known task, when
// ids is nil) are currently processing, the count of tasks a following
// batch delete will cancel before removing.
func (s *Server) countProcessing(ids []int64) int {
	if ids == nil {
		n := 0
		for _, t := range s.tasks.List() {
			if t.Status == task.StatusProcessing {
				n++
			}
		}
		return n
	}
	n := 0
	for _, id := range ids {
		if t, ok := s.tasks.Get(id); ok && t.Status == task.StatusProcessing {
			n++
		}
	}
	return n
}

func (s *Server) handleTaskByID(w http.ResponseWriter, r *http.Request, id int64) {
	switch r.Method {
	case http.MethodGet:
		t, ok := s.tasks.Get(id)
		if !ok {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeJSON(w, http.StatusOK, t)
	case http.MethodDelete:
		if _, ok := s.tasks.Get(id); !ok {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		if err := s.tasks.Delete(id); err != nil {
			writeErrorFromErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleRetryTask(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if _, ok := s.tasks.Get(id); !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if err := s.tasks.Retry(id); err != nil {
		writeErrorFromErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func outputSettingsFrom(settings config.Settings) skip.OutputSettings {
	return skip.OutputSettings{
		SubtitleOutputFormat: settings.SubtitleOutputFormat,
		OverwriteMKV:         settings.OverwriteMKV,
	}
}

func parsePositiveIntWithDefault(raw string, def int) int {
	if strings.TrimSpace(raw) == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}

// isGeneratedSubtitle matches the watcher's own-output filter so
// directory task creation never re-ingests this system's own previous
// translation output. Duplicated rather than imported because the
// watcher package's equivalent is unexported.
func isGeneratedSubtitle(path string) bool {
	lower := strings.ToLower(path)
	if strings.Contains(lower, ".translated.") {
		return true
	}
	ext := filepath.Ext(lower)
	if ext != ".srt" && ext != ".ass" {
		return false
	}
	stem := strings.TrimSuffix(filepath.Base(lower), ext)
	parts := strings.Split(stem, ".")
	if len(parts) < 2 {
		return false
	}
	return langalias.Normalize(parts[len(parts)-1]) != ""
}

func listSourceFiles(root string, recursive bool) ([]string, error) {
	if !recursive {
		entries, err := os.ReadDir(root)
		if err != nil {
			return nil, err
		}
		var out []string
		for _, e := range entries {
			if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
				continue
			}
			if sourceExts[strings.ToLower(filepath.Ext(e.Name()))] {
				out = append(out, filepath.Join(root, e.Name()))
			}
		}
		return out, nil
	}

	var out []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			log.Error("scanning %s: %v", path, err)
			return nil
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if sourceExts[strings.ToLower(filepath.Ext(d.Name()))] {
			out = append(out, path)
		}
		return nil
	})
	return out, err
}
