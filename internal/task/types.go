// Package task defines the Task data model and the Scheduler that runs
// tasks against the Translation Pipeline: a bounded worker pool pulling
// from a FIFO queue, with pause/cancel/retry and batch variants of each,
// and crash recovery that resets orphaned "processing" tasks back to
// "pending" on startup.
package task

import "time"

// Status is one of the task lifecycle states.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusPaused     Status = "paused"
)

// Task is one file queued for (or already undergoing) translation.
type Task struct {
	ID             int64     `json:"id"`
	FilePath       string    `json:"file_path"`
	FileName       string    `json:"file_name"`
	Status         Status    `json:"status"`
	Progress       int       `json:"progress"`
	SourceLanguage string    `json:"source_language"`
	TargetLanguage string    `json:"target_language"`
	LLMProvider    string    `json:"llm_provider"`
	SubtitleTrack  *int      `json:"subtitle_track,omitempty"`
	ForceOverride  bool      `json:"force_override"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a value-independent copy safe to hand to callers outside
// the Scheduler's lock.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	tmp := *t
	if t.SubtitleTrack != nil {
		track := *t.SubtitleTrack
		tmp.SubtitleTrack = &track
	}
	if t.CompletedAt != nil {
		completed := *t.CompletedAt
		tmp.CompletedAt = &completed
	}
	return &tmp
}

// CreateRequest is the input to Scheduler.Enqueue.
type CreateRequest struct {
	FilePath       string
	SourceLanguage string
	TargetLanguage string
	LLMProvider    string
	SubtitleTrack  *int
	ForceOverride  bool
}

// BatchResult reports how many tasks a batch operation actually touched.
type BatchResult struct {
	Succeeded int
	Failed    int
}
