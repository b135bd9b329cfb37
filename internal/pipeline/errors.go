package pipeline

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotRunning is returned when an operation needs a running session.
	ErrNotRunning = errors.New("pipeline is not running")

	// ErrAlreadyRunning is returned by Start while a session is active.
	ErrAlreadyRunning = errors.New("pipeline is already running")

	// ErrAborted is returned by FinishAndSave when the session was aborted.
	ErrAborted = errors.New("pipeline session aborted")
)

// SynthesisFailure records a sentence that produced no audio. The session
// carries on without it.
type SynthesisFailure struct {
	Index int
	Text  string
	Err   error
}

func (f *SynthesisFailure) Error() string {
	return fmt.Sprintf("synthesis failed for sentence %d: %v", f.Index, f.Err)
}

func (f *SynthesisFailure) Unwrap() error { return f.Err }

// PlaybackFailure records a segment that could not be played.
type PlaybackFailure struct {
	Index int
	Err   error
}

func (f *PlaybackFailure) Error() string {
	return fmt.Sprintf("playback failed for sentence %d: %v", f.Index, f.Err)
}

func (f *PlaybackFailure) Unwrap() error { return f.Err }

// ShutdownTimeout records a worker that did not exit in time at finalize
// and was abandoned.
type ShutdownTimeout struct {
	Worker  string
	Timeout time.Duration
}

func (e *ShutdownTimeout) Error() string {
	return fmt.Sprintf("%s worker did not stop within %v", e.Worker, e.Timeout)
}
