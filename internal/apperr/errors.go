// Package apperr defines the service's error taxonomy: which errors are
// retried, which escalate immediately, and which never produce a task at
// all. TransientError, ToolError, CodecError and AuthError wrap an
// underlying cause so errors.Is/As continue to work through them;
// UserError and ConsistencyError carry only a message.
package apperr

import (
	"errors"
	"fmt"
)

// UserError is an invalid request: missing file, unsupported format
// combination, duplicate active task. Surfaced synchronously to the
// HTTP caller; never produces a task.
type UserError struct {
	Message string
}

func (e *UserError) Error() string { return e.Message }

func NewUserError(format string, args ...any) *UserError {
	return &UserError{Message: fmt.Sprintf(format, args...)}
}

// IsUserError reports whether err is (or wraps) a UserError, e.g. a
// duplicate-active-task rejection from Scheduler.Enqueue that callers
// should surface directly rather than log as an internal failure.
func IsUserError(err error) bool {
	var target *UserError
	return errors.As(err, &target)
}

// TransientError is network/429/5xx/timeout/locked-file: retried with
// backoff inside the Pipeline, escalating only once retries are
// exhausted.
type TransientError struct {
	Message string
	Cause   error
}

func (e *TransientError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *TransientError) Unwrap() error { return e.Cause }

func NewTransientError(message string, cause error) *TransientError {
	return &TransientError{Message: message, Cause: cause}
}

// ToolError is a non-zero exit from an external binary (ffmpeg,
// ffprobe, mkvmerge, mkvextract). Escalates to failed with the last
// <=1 KiB of stderr in the task's error_message.
type ToolError struct {
	Command    string
	StderrTail string
	ExitCode   int
	Cause      error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("command %q exited %d: %s", e.Command, e.ExitCode, e.StderrTail)
}

func (e *ToolError) Unwrap() error { return e.Cause }

func NewToolError(command, stderrTail string, exitCode int, cause error) *ToolError {
	return &ToolError{Command: command, StderrTail: stderrTail, ExitCode: exitCode, Cause: cause}
}

// CodecError is an unparseable subtitle. Escalates to failed.
type CodecError struct {
	Message string
	Cause   error
}

func (e *CodecError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *CodecError) Unwrap() error { return e.Cause }

func NewCodecError(format string, args ...any) *CodecError {
	return &CodecError{Message: fmt.Sprintf(format, args...)}
}

func WrapCodecError(cause error, format string, args ...any) *CodecError {
	return &CodecError{Message: fmt.Sprintf(format, args...), Cause: cause}
}

// AuthError is an LLM credential failure (401/403). Escalates
// immediately; never retried.
type AuthError struct {
	Provider string
	Cause    error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication failed: %v", e.Provider, e.Cause)
}

func (e *AuthError) Unwrap() error { return e.Cause }

// ConsistencyError is an invariant violation, e.g. a response count
// mismatch that survives halving down to K=1. Escalates to failed.
type ConsistencyError struct {
	Message string
}

func (e *ConsistencyError) Error() string { return e.Message }

func NewConsistencyError(format string, args ...any) *ConsistencyError {
	return &ConsistencyError{Message: fmt.Sprintf(format, args...)}
}

// SkipReason is not an error: it produces a benign skip result from
// the Skip Oracle's decision chain.
type SkipReason string

const (
	SkipAlreadyHasTrack SkipReason = "already_has_track"
	SkipOutputExists    SkipReason = "output_exists"
	SkipHistory         SkipReason = "history"
	SkipFilenameMarker  SkipReason = "filename_marker"
	SkipInProgress      SkipReason = "in_progress"
)
