// Package watcher implements the Watcher Supervisor: per-directory
// startup scan, recursive live monitoring with debounced size-stability
// checks, and a cron-driven reconciliation rescan, all feeding candidate
// (path, target_language, provider) triples through the Skip Oracle and
// into the Task Scheduler.
package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/mimelyc/subtrans/internal/apperr"
	"github.com/mimelyc/subtrans/internal/langalias"
	"github.com/mimelyc/subtrans/internal/skip"
	"github.com/mimelyc/subtrans/internal/task"
	"github.com/mimelyc/subtrans/pkg/log"
)

const debounceWindow = 2 * time.Second

var watchedExts = map[string]bool{".mkv": true, ".srt": true, ".ass": true}

// Record is the persisted directive the Supervisor ingests and mirrors.
// It matches store.WatcherRecord's fields directly; the two types stay
// separate to avoid an import cycle between internal/watcher and
// internal/store.
type Record struct {
	ID               int64
	Path             string
	Enabled          bool
	TargetLanguage   string
	LLMProvider      string
	ScanIntervalCron string
}

// Oracle is the subset of the Skip Oracle the Supervisor consults
// before turning a candidate file into a task.
type Oracle interface {
	Decide(ctx context.Context, req skip.Request, settings skip.OutputSettings) (skip.Decision, error)
}

// Enqueuer is the subset of the Task Scheduler the Supervisor submits
// surviving candidates to.
type Enqueuer interface {
	Enqueue(req task.CreateRequest) (*task.Task, error)
}

// OutputSettingsSource supplies the current output-format settings the
// Oracle needs for its output_exists check.
type OutputSettingsSource interface {
	Get() skip.OutputSettings
}

// Supervisor runs one goroutine set per enabled Watcher: a startup
// scan, an fsnotify-backed live monitor, and a cron reconciliation scan.
type Supervisor struct {
	oracle   Oracle
	enqueuer Enqueuer
	settings OutputSettingsSource

	mu       sync.Mutex
	watchers map[int64]*runningWatcher
	sf       singleflight.Group

	defaultCron string
}

type runningWatcher struct {
	record Record
	cancel context.CancelFunc
	wg     *sync.WaitGroup
}

// NewSupervisor builds a Supervisor. defaultCronExpr seeds watchers
// whose ScanIntervalCron is empty.
func NewSupervisor(oracle Oracle, enqueuer Enqueuer, settings OutputSettingsSource, defaultCronExpr string) *Supervisor {
	return &Supervisor{
		oracle:      oracle,
		enqueuer:    enqueuer,
		settings:    settings,
		watchers:    make(map[int64]*runningWatcher),
		defaultCron: defaultCronExpr,
	}
}

// Start launches every enabled watcher in records.
func (s *Supervisor) Start(ctx context.Context, records []Record) {
	for _, r := range records {
		if r.Enabled {
			s.startOne(ctx, r)
		}
	}
}

// Add starts watching a newly created or re-enabled Watcher record.
func (s *Supervisor) Add(ctx context.Context, r Record) {
	s.Remove(r.ID)
	if r.Enabled {
		s.startOne(ctx, r)
	}
}

// Remove tears down a Watcher's scan, live monitor and cron job.
func (s *Supervisor) Remove(id int64) {
	s.mu.Lock()
	rw, ok := s.watchers[id]
	if ok {
		delete(s.watchers, id)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	rw.cancel()
	rw.wg.Wait()
}

// StopAll tears down every running watcher.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	ids := make([]int64, 0, len(s.watchers))
	for id := range s.watchers {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	for _, id := range ids {
		s.Remove(id)
	}
}

func (s *Supervisor) startOne(parent context.Context, r Record) {
	ctx, cancel := context.WithCancel(parent)
	var wg sync.WaitGroup

	s.mu.Lock()
	s.watchers[r.ID] = &runningWatcher{record: r, cancel: cancel, wg: &wg}
	s.mu.Unlock()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.scan(ctx, r, false)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.liveMonitor(ctx, r); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("watcher %d live monitor stopped: %v", r.ID, err)
		}
	}()

	cronExpr := r.ScanIntervalCron
	if strings.TrimSpace(cronExpr) == "" {
		cronExpr = s.defaultCron
	}
	if strings.TrimSpace(cronExpr) != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runReconciliation(ctx, r, cronExpr)
		}()
	}
}

// runReconciliation drives a dedicated cron.Cron for one watcher so it
// can be torn down independently of every other watcher's schedule.
func (s *Supervisor) runReconciliation(ctx context.Context, r Record, cronExpr string) {
	c := cron.New()
	_, err := c.AddFunc(cronExpr, func() {
		key := "reconcile:" + strconv.FormatInt(r.ID, 10)
		_, _, _ = s.sf.Do(key, func() (any, error) {
			s.scan(ctx, r, true)
			return nil, nil
		})
	})
	if err != nil {
		log.Error("watcher %d: invalid reconciliation cron %q: %v", r.ID, cronExpr, err)
		return
	}
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
}

// liveMonitor subscribes to create and rename-into events across
// path's directory tree, watching each new subdirectory as it appears,
// and debounces size-change events before submitting a file.
func (s *Supervisor) liveMonitor(ctx context.Context, r Record) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := filepath.WalkDir(r.Path, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			log.Error("watcher %d: skipping %s: %v", r.ID, path, err)
			return nil
		}
		if d.IsDir() {
			if werr := w.Add(path); werr != nil {
				log.Error("watcher %d: watching %s: %v", r.ID, path, werr)
			}
		}
		return nil
	}); err != nil {
		return err
	}

	pending := map[string]*debouncedFile{}
	var pendingMu sync.Mutex

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			s.handleEvent(ctx, r, w, ev, pending, &pendingMu)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Error("watcher %d: fsnotify error: %v", r.ID, err)
		}
	}
}

type debouncedFile struct {
	timer *time.Timer
}

func (s *Supervisor) handleEvent(ctx context.Context, r Record, w *fsnotify.Watcher, ev fsnotify.Event, pending map[string]*debouncedFile, mu *sync.Mutex) {
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}

	info, err := os.Stat(ev.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if ev.Op&fsnotify.Create != 0 {
			if werr := w.Add(ev.Name); werr != nil {
				log.Error("watcher %d: watching new directory %s: %v", r.ID, ev.Name, werr)
			}
		}
		return
	}

	if !watchedExts[strings.ToLower(filepath.Ext(ev.Name))] {
		return
	}

	mu.Lock()
	defer mu.Unlock()
	if existing, ok := pending[ev.Name]; ok {
		existing.timer.Stop()
	}
	path := ev.Name
	pending[path] = &debouncedFile{timer: time.AfterFunc(debounceWindow, func() {
		mu.Lock()
		delete(pending, path)
		mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		if !sizeStable(path, debounceWindow) {
			return
		}
		s.submit(ctx, r, path)
	})}
}

// sizeStable reports whether path's size is the same in two stats taken
// 50ms apart, guarding against submitting a file that's still being
// written. window is not consulted; the debounce timer that calls it has
// already waited debounceWindow since the file's last event.
func sizeStable(path string, window time.Duration) bool {
	before, err := os.Stat(path)
	if err != nil {
		return false
	}
	time.Sleep(50 * time.Millisecond)
	after, err := os.Stat(path)
	if err != nil {
		return false
	}
	return before.Size() == after.Size()
}

// scan enumerates path: non-recursively for the startup scan,
// recursively for the periodic reconciliation pass, submitting every
// candidate that survives the Skip Oracle.
func (s *Supervisor) scan(ctx context.Context, r Record, recursive bool) {
	entries, err := s.listCandidates(r.Path, recursive)
	if err != nil {
		log.Error("watcher %d: scanning %s: %v", r.ID, r.Path, err)
		return
	}
	for _, path := range entries {
		if ctx.Err() != nil {
			return
		}
		s.submit(ctx, r, path)
	}
}

func (s *Supervisor) listCandidates(root string, recursive bool) ([]string, error) {
	if !recursive {
		entries, err := os.ReadDir(root)
		if err != nil {
			return nil, err
		}
		var out []string
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if watchedExts[strings.ToLower(filepath.Ext(e.Name()))] {
				out = append(out, filepath.Join(root, e.Name()))
			}
		}
		return out, nil
	}

	var out []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			log.Error("skipping %s: %v", path, err)
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if watchedExts[strings.ToLower(filepath.Ext(d.Name()))] {
			out = append(out, path)
		}
		return nil
	})
	return out, err
}

// submit runs the Skip Oracle against one candidate and, if it
// survives, enqueues it as a task.
func (s *Supervisor) submit(ctx context.Context, r Record, path string) {
	if isGeneratedSubtitle(path) {
		return
	}

	decision, err := s.oracle.Decide(ctx, skip.Request{
		FilePath:       path,
		TargetLanguage: r.TargetLanguage,
	}, s.settings.Get())
	if err != nil {
		log.Error("watcher %d: skip oracle error for %s: %v", r.ID, path, err)
		return
	}
	if !decision.Proceed {
		return
	}

	_, err = s.enqueuer.Enqueue(task.CreateRequest{
		FilePath:       path,
		TargetLanguage: r.TargetLanguage,
		LLMProvider:    r.LLMProvider,
		SourceLanguage: "auto",
	})
	if err != nil && !apperr.IsUserError(err) {
		log.Error("watcher %d: enqueueing %s: %v", r.ID, path, err)
	}
}

// isGeneratedSubtitle matches the original system's own-output filter:
// anything carrying ".translated." or a known language tag between the
// stem and the extension is this system's own previous output, not a
// new source file to ingest.
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
