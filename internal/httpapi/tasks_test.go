package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/mimelyc/subtrans/internal/apperr"
	"github.com/mimelyc/subtrans/internal/skip"
	"github.com/mimelyc/subtrans/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("1\n00:00:01,000 --> 00:00:02,000\nhi\n"), 0o644))
	return path
}

func TestCreateTaskEnqueuesWhenOracleProceeds(t *testing.T) {
	srv, tasks, _, _, _, _ := newTestServer()
	dir := t.TempDir()
	path := writeTempFile(t, dir, "episode.mkv")

	body, _ := json.Marshal(createTaskRequest{FilePath: path, TargetLanguage: "zh"})
	req := httptest.NewRequest("POST", "/api/tasks", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, 201, rec.Code)
	var got task.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, path, got.FilePath)
	assert.Len(t, tasks.List(), 1)
}

func TestCreateTaskRejectsMissingFilePath(t *testing.T) {
	srv, _, _, _, _, _ := newTestServer()
	req := httptest.NewRequest("POST", "/api/tasks", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, 400, rec.Code)
}

func TestCreateTaskReturns404WhenFileMissing(t *testing.T) {
	srv, _, _, _, _, _ := newTestServer()
	body, _ := json.Marshal(createTaskRequest{FilePath: "/no/such/file.mkv"})
	req := httptest.NewRequest("POST", "/api/tasks", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, 404, rec.Code)
}

func TestCreateTaskReturns409WhenOracleSkips(t *testing.T) {
	srv, _, oracle, _, _, _ := newTestServer()
	oracle.decision = skip.Decision{Proceed: false, Reason: apperr.SkipOutputExists}
	dir := t.TempDir()
	path := writeTempFile(t, dir, "episode.srt")

	body, _ := json.Marshal(createTaskRequest{FilePath: path, TargetLanguage: "zh"})
	req := httptest.NewRequest("POST", "/api/tasks", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, 409, rec.Code)
}

func TestCreateTaskForceOverrideSkipsOracle(t *testing.T) {
	srv, tasks, oracle, _, _, _ := newTestServer()
	oracle.decision = skip.Decision{Proceed: false, Reason: apperr.SkipHistory}
	dir := t.TempDir()
	path := writeTempFile(t, dir, "episode.ass")

	body, _ := json.Marshal(createTaskRequest{FilePath: path, TargetLanguage: "zh", ForceOverride: true})
	req := httptest.NewRequest("POST", "/api/tasks", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, 201, rec.Code)
	assert.Len(t, tasks.List(), 1)
}

func TestCreateDirectoryTasksEnqueuesEachCandidate(t *testing.T) {
	srv, tasks, _, _, _, _ := newTestServer()
	dir := t.TempDir()
	writeTempFile(t, dir, "a.mkv")
	writeTempFile(t, dir, "b.srt")
	writeTempFile(t, dir, "ignored.txt")

	body, _ := json.Marshal(createDirectoryTasksRequest{DirectoryPath: dir, TargetLanguage: "zh"})
	req := httptest.NewRequest("POST", "/api/tasks/directory", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, 201, rec.Code)
	var got createDirectoryTasksResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 2, got.CreatedCount)
	assert.Len(t, tasks.List(), 2)
}

func TestCreateDirectoryTasksSkipsGeneratedSubtitles(t *testing.T) {
	srv, tasks, _, _, _, _ := newTestServer()
	dir := t.TempDir()
	writeTempFile(t, dir, "episode.mkv")
	writeTempFile(t, dir, "episode.zh.srt")

	body, _ := json.Marshal(createDirectoryTasksRequest{DirectoryPath: dir, TargetLanguage: "zh"})
	req := httptest.NewRequest("POST", "/api/tasks/directory", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, 201, rec.Code)
	assert.Len(t, tasks.List(), 1)
}

func TestListTasksFiltersByStatusAndPaginates(t *testing.T) {
	srv, tasks, _, _, _, _ := newTestServer()
	for i := 0; i < 3; i++ {
		tasks.Enqueue(task.CreateRequest{FilePath: "f.mkv"})
	}
	tasks.byID[1].Status = task.StatusCompleted

	req := httptest.NewRequest("GET", "/api/tasks?status=completed", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var got taskListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 1, got.Total)
}

func TestDeleteAllReportsProcessingAsCancelled(t *testing.T) {
	srv, tasks, _, _, _, _ := newTestServer()
	tasks.Enqueue(task.CreateRequest{FilePath: "f1.mkv"})
	tasks.Enqueue(task.CreateRequest{FilePath: "f2.mkv"})
	tasks.byID[1].Status = task.StatusProcessing

	req := httptest.NewRequest("DELETE", "/api/tasks/delete-all", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	var got map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 1, got["cancelled_count"])
	assert.Equal(t, 2, got["deleted_count"])
	assert.Empty(t, tasks.List())
}

func TestDeleteSelectedRequiresTaskIDs(t *testing.T) {
	srv, _, _, _, _, _ := newTestServer()
	req := httptest.NewRequest("POST", "/api/tasks/delete-selected", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, 400, rec.Code)
}

func TestPauseAllReturnsPausedCount(t *testing.T) {
	srv, tasks, _, _, _, _ := newTestServer()
	tasks.Enqueue(task.CreateRequest{FilePath: "f1.mkv"})

	req := httptest.NewRequest("POST", "/api/tasks/pause-all", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	var got map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 1, got["paused_count"])
}

func TestGetTaskByIDReturns404WhenMissing(t *testing.T) {
	srv, _, _, _, _, _ := newTestServer()
	req := httptest.NewRequest("GET", "/api/tasks/99", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, 404, rec.Code)
}

func TestRetryTaskReturns404WhenMissing(t *testing.T) {
	srv, _, _, _, _, _ := newTestServer()
	req := httptest.NewRequest("POST", "/api/tasks/99/retry", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, 404, rec.Code)
}

func TestTaskStatsCountsEveryStatus(t *testing.T) {
	srv, tasks, _, _, _, _ := newTestServer()
	tasks.Enqueue(task.CreateRequest{FilePath: "f1.mkv"})
	tasks.Enqueue(task.CreateRequest{FilePath: "f2.mkv"})
	tasks.byID[2].Status = task.StatusCompleted

	req := httptest.NewRequest("GET", "/api/tasks/stats", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var got map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 2, got["total"])
	assert.Equal(t, 1, got["completed"])
	assert.Equal(t, 1, got["pending"])
}
