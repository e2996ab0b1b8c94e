package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/mimelyc/subtrans/internal/config"
	"github.com/mimelyc/subtrans/internal/mediatoolbox"
	"github.com/mimelyc/subtrans/internal/skip"
	"github.com/mimelyc/subtrans/internal/store"
	"github.com/mimelyc/subtrans/internal/task"
	"github.com/mimelyc/subtrans/internal/watcher"
)

// fakeTasks is an in-memory TaskService stand-in.
type fakeTasks struct {
	mu         sync.Mutex
	byID       map[int64]*task.Task
	nextID     int64
	maxConc    int
	enqueueErr error
}

func newFakeTasks() *fakeTasks {
	return &fakeTasks{byID: map[int64]*task.Task{}}
}

func (f *fakeTasks) Enqueue(req task.CreateRequest) (*task.Task, error) {
	if f.enqueueErr != nil {
		return nil, f.enqueueErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	t := &task.Task{
		ID:             f.nextID,
		FilePath:       req.FilePath,
		Status:         task.StatusPending,
		SourceLanguage: req.SourceLanguage,
		TargetLanguage: req.TargetLanguage,
		LLMProvider:    req.LLMProvider,
		SubtitleTrack:  req.SubtitleTrack,
		ForceOverride:  req.ForceOverride,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	f.byID[t.ID] = t
	return t, nil
}

func (f *fakeTasks) Get(id int64) (*task.Task, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byID[id]
	return t, ok
}

func (f *fakeTasks) List() []*task.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*task.Task, 0, len(f.byID))
	for _, t := range f.byID {
		out = append(out, t)
	}
	return out
}

func (f *fakeTasks) Delete(id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byID, id)
	return nil
}

func (f *fakeTasks) Retry(id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byID[id]
	if !ok {
		return nil
	}
	t.Status = task.StatusPending
	return nil
}

func (f *fakeTasks) PauseAll() task.BatchResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.byID {
		if t.Status == task.StatusPending || t.Status == task.StatusProcessing {
			t.Status = task.StatusPaused
			n++
		}
	}
	return task.BatchResult{Succeeded: n}
}

func (f *fakeTasks) PauseSelected(ids []int64) task.BatchResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, id := range ids {
		if t, ok := f.byID[id]; ok {
			t.Status = task.StatusPaused
			n++
		}
	}
	return task.BatchResult{Succeeded: n}
}

func (f *fakeTasks) DeleteAll() task.BatchResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.byID)
	f.byID = map[int64]*task.Task{}
	return task.BatchResult{Succeeded: n}
}

func (f *fakeTasks) DeleteSelected(ids []int64) task.BatchResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, id := range ids {
		if _, ok := f.byID[id]; ok {
			delete(f.byID, id)
			n++
		}
	}
	return task.BatchResult{Succeeded: n}
}

func (f *fakeTasks) SetMaxConcurrent(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.maxConc = n
}

// fakeOracle is a scriptable SkipOracle stand-in.
type fakeOracle struct {
	decision skip.Decision
	err      error
}

func (f *fakeOracle) Decide(ctx context.Context, req skip.Request, settings skip.OutputSettings) (skip.Decision, error) {
	if f.err != nil {
		return skip.Decision{}, f.err
	}
	return f.decision, nil
}

func alwaysProceedOracle() *fakeOracle {
	return &fakeOracle{decision: skip.Decision{Proceed: true}}
}

// fakeWatcherStore is an in-memory WatcherStore stand-in.
type fakeWatcherStore struct {
	mu     sync.Mutex
	byID   map[int64]*store.WatcherRecord
	nextID int64
}

func newFakeWatcherStore() *fakeWatcherStore {
	return &fakeWatcherStore{byID: map[int64]*store.WatcherRecord{}}
}

func (f *fakeWatcherStore) LoadWatchers(ctx context.Context) ([]*store.WatcherRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*store.WatcherRecord, 0, len(f.byID))
	for _, r := range f.byID {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeWatcherStore) InsertWatcher(ctx context.Context, w *store.WatcherRecord) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	w.ID = f.nextID
	f.byID[w.ID] = w
	return w.ID, nil
}

func (f *fakeWatcherStore) UpdateWatcher(ctx context.Context, w *store.WatcherRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[w.ID] = w
	return nil
}

func (f *fakeWatcherStore) DeleteWatcher(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byID, id)
	return nil
}

// fakeWatcherRuntime records Add/Remove calls without starting anything.
type fakeWatcherRuntime struct {
	mu     sync.Mutex
	active map[int64]watcher.Record
}

func newFakeWatcherRuntime() *fakeWatcherRuntime {
	return &fakeWatcherRuntime{active: map[int64]watcher.Record{}}
}

func (f *fakeWatcherRuntime) Add(ctx context.Context, r watcher.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active[r.ID] = r
}

func (f *fakeWatcherRuntime) Remove(id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.active, id)
}

// fakeSettings is a SettingsService stand-in without file I/O.
type fakeSettings struct {
	mu      sync.Mutex
	current config.Settings
}

func newFakeSettings(initial config.Settings) *fakeSettings {
	return &fakeSettings{current: initial}
}

func (f *fakeSettings) Get() config.Settings {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *fakeSettings) Update(next config.Settings) (config.Settings, error) {
	next = next.Normalize()
	if err := next.Validate(); err != nil {
		return config.Settings{}, err
	}
	f.mu.Lock()
	f.current = next
	f.mu.Unlock()
	return next, nil
}

func defaultTestSettings() config.Settings {
	return config.Settings{
		DefaultLLM:           "openai",
		OpenAIAPIKey:         "sk-test1234567890",
		OpenAIModel:          "gpt-4o",
		TargetLanguage:       "zh",
		SourceLanguage:       "auto",
		SubtitleOutputFormat: "srt",
		MaxConcurrentTasks:   2,
		ScanIntervalCron:     "*/30 * * * *",
	}
}

// fakeTracks is a TrackLister stand-in.
type fakeTracks struct {
	tracks []mediatoolbox.Track
	err    error
}

func (f *fakeTracks) ListTracks(ctx context.Context, mediaPath string) ([]mediatoolbox.Track, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.tracks, nil
}

// fakeBus is a ProgressBus stand-in that never upgrades a connection.
type fakeBus struct{}

func (fakeBus) ServeWS(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func newTestServer() (*Server, *fakeTasks, *fakeOracle, *fakeWatcherStore, *fakeWatcherRuntime, *fakeSettings) {
	tasks := newFakeTasks()
	oracle := alwaysProceedOracle()
	watchers := newFakeWatcherStore()
	runtime := newFakeWatcherRuntime()
	settings := newFakeSettings(defaultTestSettings())
	srv := NewServer(tasks, oracle, watchers, runtime, settings, &fakeTracks{}, fakeBus{}, "*/30 * * * *")
	return srv, tasks, oracle, watchers, runtime, settings
}
