package task

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mimelyc/subtrans/internal/apperr"
	"github.com/mimelyc/subtrans/pkg/log"
)

// ErrPaused is what an Executor returns when it noticed a pause request
// at a checkpoint and stopped cleanly instead of running to completion.
var ErrPaused = apperr.NewUserError("task paused")

// RunControl is handed to the Executor for one run so the Pipeline can
// cooperate with pause/cancel instead of being killed mid-write.
type RunControl struct {
	Ctx context.Context

	paused *atomic.Bool
	report func(int)
}

// NewRunControl builds a RunControl outside a Scheduler, for tests that
// drive an Executor directly. report may be nil.
func NewRunControl(ctx context.Context, paused *atomic.Bool, report func(int)) *RunControl {
	if paused == nil {
		paused = &atomic.Bool{}
	}
	return &RunControl{Ctx: ctx, paused: paused, report: report}
}

// PauseRequested reports whether Scheduler.Pause was called for this run;
// the Pipeline should check this at chunk boundaries and return ErrPaused.
func (c *RunControl) PauseRequested() bool { return c.paused.Load() }

// ReportProgress persists and publishes an intermediate progress value
// (0-100) for the running task, e.g. after each translated chunk.
func (c *RunControl) ReportProgress(progress int) {
	if c.report != nil {
		c.report(progress)
	}
}

// Executor runs one task to completion, failure, cancellation or pause.
type Executor func(t *Task, ctrl *RunControl) error

// Publisher is the subset of the Progress Bus the Scheduler pushes
// updates through; kept as a narrow interface here to avoid an import
// cycle with internal/bus.
type Publisher interface {
	PublishStatus(taskID int64, status string)
	PublishProgress(taskID int64, progress int)
	PublishNewTask(taskID int64)
}

type noopPublisher struct{}

func (noopPublisher) PublishStatus(int64, string) {}
func (noopPublisher) PublishProgress(int64, int)  {}
func (noopPublisher) PublishNewTask(int64)        {}

type runningTask struct {
	cancel context.CancelFunc
	paused *atomic.Bool
}

// semaphore is a resizable counting semaphore: SetMaxConcurrent can grow
// or shrink the limit while workers are in flight, with a decrease only
// withholding newly released slots rather than preempting anything.
type semaphore struct {
	mu     sync.Mutex
	cond   *sync.Cond
	limit  int
	inUse  int
	closed bool
}

func newSemaphore(limit int) *semaphore {
	s := &semaphore{limit: limit}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// acquire blocks until a slot is free or the semaphore is closed,
// reporting false in the latter case.
func (s *semaphore) acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.inUse >= s.limit && !s.closed {
		s.cond.Wait()
	}
	if s.closed {
		return false
	}
	s.inUse++
	return true
}

func (s *semaphore) release() {
	s.mu.Lock()
	s.inUse--
	s.cond.Signal()
	s.mu.Unlock()
}

func (s *semaphore) setLimit(n int) {
	s.mu.Lock()
	s.limit = n
	s.cond.Broadcast()
	s.mu.Unlock()
}

func (s *semaphore) close() {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Scheduler is the Task Scheduler: a bounded worker pool draining a FIFO
// queue of pending tasks, with pause/cancel/retry and their batch
// variants, and SQLite-backed crash recovery.
type Scheduler struct {
	maxConcurrent int
	store         Store
	publisher     Publisher
	executor      Executor

	mu      sync.RWMutex
	tasks   map[int64]*Task
	running map[int64]*runningTask

	sem *semaphore

	pendingIDs chan int64
	stopCh     chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
	started    bool
}

// NewScheduler builds a Scheduler. Call Start to spin up workers.
func NewScheduler(maxConcurrent int, store Store, publisher Publisher) *Scheduler {
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	if publisher == nil {
		publisher = noopPublisher{}
	}
	s := &Scheduler{
		maxConcurrent: maxConcurrent,
		store:         store,
		publisher:     publisher,
		tasks:         make(map[int64]*Task),
		running:       make(map[int64]*runningTask),
		sem:           newSemaphore(maxConcurrent),
		pendingIDs:    make(chan int64, 4096),
		stopCh:        make(chan struct{}),
	}
	s.hydrate(context.Background())
	return s
}

// SetMaxConcurrent changes the worker pool size at runtime. An increase
// admits new work immediately; a decrease does not preempt any task
// already running, only withholding newly released slots until the
// running count falls to the new limit.
func (s *Scheduler) SetMaxConcurrent(n int) {
	if n <= 0 {
		n = 1
	}
	s.mu.Lock()
	s.maxConcurrent = n
	s.mu.Unlock()
	s.sem.setLimit(n)
}

// hydrate loads tasks from the store and resets any task that was
// "processing" when the process last exited back to "pending", since no
// worker is actually running it anymore.
func (s *Scheduler) hydrate(ctx context.Context) {
	if s.store == nil {
		return
	}
	loaded, err := s.store.LoadTasks(ctx)
	if err != nil {
		log.Error("loading tasks from store: %v", err)
		return
	}

	now := time.Now()
	var toPersist []*Task
	s.mu.Lock()
	for _, t := range loaded {
		if t == nil {
			continue
		}
		clone := t.Clone()
		if clone.Status == StatusProcessing {
			clone.Status = StatusPending
			clone.UpdatedAt = now
			toPersist = append(toPersist, clone.Clone())
		}
		s.tasks[clone.ID] = clone
	}
	s.mu.Unlock()

	for _, t := range toPersist {
		s.persist(t)
	}
}

// Start hydrates pending work into the queue and launches workers.
func (s *Scheduler) Start(exec Executor) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.executor = exec

	var pending []int64
	for id, t := range s.tasks {
		if t.Status == StatusPending {
			pending = append(pending, id)
		}
	}
	s.mu.Unlock()

	for _, id := range pending {
		s.enqueue(id)
	}
	s.wg.Add(1)
	go s.dispatch()
}

// Stop signals the dispatcher to exit and blocks until every in-flight
// task run has returned.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.sem.close()
		s.wg.Wait()
	})
}

// dispatch pulls pending task ids in strict FIFO order and admits each
// one against the (resizable) concurrency semaphore before spawning its
// run in its own goroutine, so a slow task never blocks the next one
// from acquiring a slot once capacity is free.
func (s *Scheduler) dispatch() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		case id := <-s.pendingIDs:
			if !s.sem.acquire() {
				return
			}
			s.wg.Add(1)
			go func(id int64) {
				defer s.wg.Done()
				defer s.sem.release()
				s.run(id)
			}(id)
		}
	}
}

func (s *Scheduler) run(id int64) {
	t, ctrl, ok := s.markProcessing(id)
	if !ok {
		return
	}

	err := s.executor(t, ctrl)
	switch {
	case err == nil:
		s.markCompleted(id)
	case err == ErrPaused:
		s.markPaused(id)
	case ctrl.Ctx.Err() != nil:
		s.markCancelled(id)
	default:
		s.markFailed(id, err)
	}

	s.mu.Lock()
	delete(s.running, id)
	s.mu.Unlock()
}

// Enqueue creates a new pending task and, once the Scheduler is running,
// makes it eligible for a worker to pick up.
func (s *Scheduler) Enqueue(req CreateRequest) (*Task, error) {
	if s.HasActive(req.FilePath, req.TargetLanguage) {
		return nil, apperr.NewUserError("an active task already exists for %s -> %s", req.FilePath, req.TargetLanguage)
	}

	now := time.Now()
	t := &Task{
		FilePath:       req.FilePath,
		SourceLanguage: req.SourceLanguage,
		TargetLanguage: req.TargetLanguage,
		LLMProvider:    req.LLMProvider,
		SubtitleTrack:  req.SubtitleTrack,
		ForceOverride:  req.ForceOverride,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	t.FileName = filepathBase(t.FilePath)

	if s.store != nil {
		id, err := s.store.InsertTask(context.Background(), t)
		if err != nil {
			return nil, err
		}
		t.ID = id
	}

	s.mu.Lock()
	s.tasks[t.ID] = t
	started := s.started
	s.mu.Unlock()

	s.publisher.PublishNewTask(t.ID)
	if started {
		s.enqueue(t.ID)
	}
	return t.Clone(), nil
}

func (s *Scheduler) enqueue(id int64) {
	select {
	case s.pendingIDs <- id:
	default:
		go func() { s.pendingIDs <- id }()
	}
}

// Get returns a snapshot of one task.
func (s *Scheduler) Get(id int64) (*Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// HasActive reports whether an active (pending/processing/paused) task
// already exists for (filePath, targetLanguage), satisfying the Task
// data model's uniqueness invariant and the Skip Oracle's in-progress
// check.
func (s *Scheduler) HasActive(filePath, targetLanguage string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tasks {
		if t.FilePath != filePath || t.TargetLanguage != targetLanguage {
			continue
		}
		switch t.Status {
		case StatusPending, StatusProcessing, StatusPaused:
			return true
		}
	}
	return false
}

// List returns a snapshot of every task, newest first.
func (s *Scheduler) List() []*Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (s *Scheduler) markProcessing(id int64) (*Task, *RunControl, bool) {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok || t.Status != StatusPending {
		s.mu.Unlock()
		return nil, nil, false
	}
	t.Status = StatusProcessing
	t.UpdatedAt = time.Now()
	snapshot := t.Clone()

	ctx, cancel := context.WithCancel(context.Background())
	paused := &atomic.Bool{}
	s.running[id] = &runningTask{cancel: cancel, paused: paused}
	s.mu.Unlock()

	s.persist(snapshot)
	s.publisher.PublishStatus(id, string(StatusProcessing))
	ctrl := &RunControl{Ctx: ctx, paused: paused, report: func(p int) { s.UpdateProgress(id, p) }}
	return snapshot, ctrl, true
}

func (s *Scheduler) markCompleted(id int64) {
	now := time.Now()
	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	t.Status = StatusCompleted
	t.Progress = 100
	t.ErrorMessage = ""
	t.UpdatedAt = now
	t.CompletedAt = &now
	snapshot := t.Clone()
	s.mu.Unlock()

	s.persist(snapshot)
	s.publisher.PublishStatus(id, string(StatusCompleted))
	s.publisher.PublishProgress(id, 100)
}

func (s *Scheduler) markFailed(id int64, err error) {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	t.Status = StatusFailed
	if err != nil {
		t.ErrorMessage = err.Error()
	}
	t.UpdatedAt = time.Now()
	snapshot := t.Clone()
	s.mu.Unlock()

	s.persist(snapshot)
	s.publisher.PublishStatus(id, string(StatusFailed))
}

func (s *Scheduler) markCancelled(id int64) {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	t.Status = StatusCancelled
	t.UpdatedAt = time.Now()
	snapshot := t.Clone()
	s.mu.Unlock()

	s.persist(snapshot)
	s.publisher.PublishStatus(id, string(StatusCancelled))
}

func (s *Scheduler) markPaused(id int64) {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	t.Status = StatusPaused
	t.UpdatedAt = time.Now()
	snapshot := t.Clone()
	s.mu.Unlock()

	s.persist(snapshot)
	s.publisher.PublishStatus(id, string(StatusPaused))
}

// UpdateProgress is called by the Pipeline as it advances through a run.
func (s *Scheduler) UpdateProgress(id int64, progress int) {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	t.Progress = progress
	t.UpdatedAt = time.Now()
	snapshot := t.Clone()
	s.mu.Unlock()

	s.persist(snapshot)
	s.publisher.PublishProgress(id, progress)
}

// Pause requests that a running task stop at its next checkpoint. A
// pending task is paused immediately since it has no checkpoint to wait
// for.
func (s *Scheduler) Pause(id int64) error {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return apperr.NewUserError("task %d not found", id)
	}
	switch t.Status {
	case StatusPending:
		t.Status = StatusPaused
		t.UpdatedAt = time.Now()
		snapshot := t.Clone()
		s.mu.Unlock()
		s.persist(snapshot)
		s.publisher.PublishStatus(id, string(StatusPaused))
		return nil
	case StatusProcessing:
		running := s.running[id]
		s.mu.Unlock()
		if running != nil {
			running.paused.Store(true)
		}
		return nil
	default:
		s.mu.Unlock()
		return apperr.NewUserError("task %d cannot be paused from status %s", id, t.Status)
	}
}

// Resume moves a paused task back to pending so a worker can pick it up.
func (s *Scheduler) Resume(id int64) error {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return apperr.NewUserError("task %d not found", id)
	}
	if t.Status != StatusPaused {
		s.mu.Unlock()
		return apperr.NewUserError("task %d is not paused", id)
	}
	t.Status = StatusPending
	t.UpdatedAt = time.Now()
	snapshot := t.Clone()
	s.mu.Unlock()

	s.persist(snapshot)
	s.publisher.PublishStatus(id, string(StatusPending))
	s.enqueue(id)
	return nil
}

// Cancel stops a running task immediately (no checkpoint) or marks a
// pending/paused one cancelled directly.
func (s *Scheduler) Cancel(id int64) error {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return apperr.NewUserError("task %d not found", id)
	}
	switch t.Status {
	case StatusPending, StatusPaused:
		t.Status = StatusCancelled
		t.UpdatedAt = time.Now()
		snapshot := t.Clone()
		s.mu.Unlock()
		s.persist(snapshot)
		s.publisher.PublishStatus(id, string(StatusCancelled))
		return nil
	case StatusProcessing:
		running := s.running[id]
		s.mu.Unlock()
		if running != nil {
			running.cancel()
		}
		return nil
	default:
		s.mu.Unlock()
		return apperr.NewUserError("task %d cannot be cancelled from status %s", id, t.Status)
	}
}

// Retry re-queues a failed, cancelled or paused task as pending. A
// paused task resumes from its checkpoint (see Resume); a failed or
// cancelled task restarts from scratch with progress reset to 0.
func (s *Scheduler) Retry(id int64) error {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return apperr.NewUserError("task %d not found", id)
	}
	if t.Status == StatusPaused {
		s.mu.Unlock()
		return s.Resume(id)
	}
	if t.Status != StatusFailed && t.Status != StatusCancelled {
		s.mu.Unlock()
		return apperr.NewUserError("task %d cannot be retried from status %s", id, t.Status)
	}
	t.Status = StatusPending
	t.ErrorMessage = ""
	t.Progress = 0
	t.UpdatedAt = time.Now()
	snapshot := t.Clone()
	s.mu.Unlock()

	s.persist(snapshot)
	s.publisher.PublishStatus(id, string(StatusPending))
	s.enqueue(id)
	return nil
}

// Delete removes a task outright; a running task is cancelled first.
func (s *Scheduler) Delete(id int64) error {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return apperr.NewUserError("task %d not found", id)
	}
	if t.Status == StatusProcessing {
		if running := s.running[id]; running != nil {
			running.cancel()
		}
	}
	delete(s.tasks, id)
	s.mu.Unlock()

	if s.store != nil {
		return s.store.DeleteTask(context.Background(), id)
	}
	return nil
}

// PauseAll pauses every task not already terminal, returning how many
// succeeded.
func (s *Scheduler) PauseAll() BatchResult {
	return s.batch(s.pausableIDs(), s.Pause)
}

// PauseSelected pauses the given task IDs, skipping any that error.
func (s *Scheduler) PauseSelected(ids []int64) BatchResult {
	return s.batch(ids, s.Pause)
}

// DeleteAll deletes every task.
func (s *Scheduler) DeleteAll() BatchResult {
	s.mu.RLock()
	ids := make([]int64, 0, len(s.tasks))
	for id := range s.tasks {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	return s.batch(ids, s.Delete)
}

// DeleteSelected deletes the given task IDs, skipping any that error.
func (s *Scheduler) DeleteSelected(ids []int64) BatchResult {
	return s.batch(ids, s.Delete)
}

func (s *Scheduler) pausableIDs() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []int64
	for id, t := range s.tasks {
		if t.Status == StatusPending || t.Status == StatusProcessing {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *Scheduler) batch(ids []int64, op func(int64) error) BatchResult {
	var result BatchResult
	for _, id := range ids {
		if err := op(id); err != nil {
			result.Failed++
			continue
		}
		result.Succeeded++
	}
	return result
}

func (s *Scheduler) persist(t *Task) {
	if s.store == nil || t == nil {
		return
	}
	if err := s.store.UpdateTask(context.Background(), t); err != nil {
		log.Error("persisting task %d: %v", t.ID, err)
	}
}

func filepathBase(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' || p[i] == '\\' {
			return p[i+1:]
		}
	}
	return p
}
