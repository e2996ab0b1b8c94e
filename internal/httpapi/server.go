// Package httpapi implements the HTTP and WebSocket surface: task CRUD
// and batch operations, directory watcher management, settings, file
// browsing, and the live progress feed.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/mimelyc/subtrans/internal/config"
	"github.com/mimelyc/subtrans/internal/mediatoolbox"
	"github.com/mimelyc/subtrans/internal/skip"
	"github.com/mimelyc/subtrans/internal/store"
	"github.com/mimelyc/subtrans/internal/task"
	"github.com/mimelyc/subtrans/internal/watcher"
)

// TaskService is the subset of the Task Scheduler the HTTP surface drives.
type TaskService interface {
	Enqueue(req task.CreateRequest) (*task.Task, error)
	Get(id int64) (*task.Task, bool)
	List() []*task.Task
	Delete(id int64) error
	Retry(id int64) error
	PauseAll() task.BatchResult
	PauseSelected(ids []int64) task.BatchResult
	DeleteAll() task.BatchResult
	DeleteSelected(ids []int64) task.BatchResult
	SetMaxConcurrent(n int)
}

// SkipOracle is the subset of the Skip Oracle task creation consults.
type SkipOracle interface {
	Decide(ctx context.Context, req skip.Request, settings skip.OutputSettings) (skip.Decision, error)
}

// WatcherStore is the subset of persistence the watcher handlers use.
type WatcherStore interface {
	LoadWatchers(ctx context.Context) ([]*store.WatcherRecord, error)
	InsertWatcher(ctx context.Context, w *store.WatcherRecord) (int64, error)
	UpdateWatcher(ctx context.Context, w *store.WatcherRecord) error
	DeleteWatcher(ctx context.Context, id int64) error
}

// WatcherRuntime is the subset of the Watcher Supervisor the HTTP
// surface drives when a watcher is created, removed or toggled.
type WatcherRuntime interface {
	Add(ctx context.Context, r watcher.Record)
	Remove(id int64)
}

// SettingsService is the subset of the runtime settings store the
// settings handlers read and write.
type SettingsService interface {
	Get() config.Settings
	Update(next config.Settings) (config.Settings, error)
}

// TrackLister is the subset of the Media Toolbox the subtitle-tracks
// endpoint delegates to.
type TrackLister interface {
	ListTracks(ctx context.Context, mediaPath string) ([]mediatoolbox.Track, error)
}

// ProgressBus serves the live /ws/progress feed.
type ProgressBus interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
}

// Server wires the Task Scheduler, Skip Oracle, watcher persistence and
// runtime, settings store, Media Toolbox and Progress Bus behind the
// HTTP/WebSocket surface.
type Server struct {
	tasks    TaskService
	oracle   SkipOracle
	watchers WatcherStore
	runtime  WatcherRuntime
	settings SettingsService
	tracks   TrackLister
	bus      ProgressBus

	defaultCron string

	mux    *http.ServeMux
	server *http.Server
}

// NewServer builds a Server. defaultCronExpr seeds a watcher whose own
// scan_interval_cron is unset, matching config.Settings.ScanIntervalCron.
func NewServer(
	tasks TaskService,
	oracle SkipOracle,
	watchers WatcherStore,
	runtime WatcherRuntime,
	settings SettingsService,
	tracks TrackLister,
	bus ProgressBus,
	defaultCronExpr string,
) *Server {
	s := &Server{
		tasks:       tasks,
		oracle:      oracle,
		watchers:    watchers,
		runtime:     runtime,
		settings:    settings,
		tracks:      tracks,
		bus:         bus,
		defaultCron: defaultCronExpr,
		mux:         http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/tasks", s.handleTasks)
	s.mux.HandleFunc("/api/tasks/", s.handleTaskRoutes)
	s.mux.HandleFunc("/api/files/browse", s.handleBrowse)
	s.mux.HandleFunc("/api/files/subtitle-tracks", s.handleSubtitleTracks)
	s.mux.HandleFunc("/api/library", s.handleLibrary)
	s.mux.HandleFunc("/api/watchers", s.handleWatchers)
	s.mux.HandleFunc("/api/watchers/", s.handleWatcherRoutes)
	s.mux.HandleFunc("/api/settings", s.handleSettings)
	s.mux.HandleFunc("/api/settings/llm-providers", s.handleLLMProviders)
	s.mux.HandleFunc("/api/settings/languages", s.handleLanguages)
	s.mux.HandleFunc("/api/settings/test-llm", s.handleTestLLM)
	s.mux.HandleFunc("/ws/progress", s.bus.ServeWS)
}
