package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/dgnsrekt/speakstream/internal/audio"
	"github.com/dgnsrekt/speakstream/internal/queue"
	"github.com/dgnsrekt/speakstream/internal/synth"
)

// Result summarizes a finished session.
type Result struct {
	SessionID string

	// Path is where the session audio was written. It is empty when nothing
	// was written.
	Path string

	// NoAudio is set when no sentence produced audio.
	NoAudio bool

	// Duration is the length of the session audio, padding included.
	Duration time.Duration

	// Elapsed is the wall time from Start to the end of FinishAndSave.
	Elapsed time.Duration

	Sentences         int
	Synthesized       int
	SynthesisFailures []SynthesisFailure
	PlaybackFailures  int

	// TimedOut names the workers that were abandoned at finalize.
	TimedOut []string
}

// Option configures a Controller.
type Option func(*Controller)

// WithObserver adds an observer for session events.
func WithObserver(o Observer) Option {
	return func(c *Controller) {
		c.observers = append(c.observers, o)
	}
}

// WithLogger sets the logger. The default is the charm default logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

// Controller runs sentences through synthesis and playback and saves the
// result. It can be started again once a session has stopped.
type Controller struct {
	cfg       Config
	synth     synth.Synthesizer
	player    audio.Player
	writer    audio.Writer
	observers Observers
	logger    *log.Logger

	stateMu sync.RWMutex
	state   State
	sess    *session

	addMu sync.Mutex
}

// New creates a controller. The writer may be nil when sessions are never
// saved to a path.
func New(cfg Config, s synth.Synthesizer, p audio.Player, w audio.Writer, opts ...Option) (*Controller, error) {
	if s == nil {
		return nil, errors.New("synthesizer is required")
	}
	if p == nil {
		return nil, errors.New("player is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}

	c := &Controller{
		cfg:    cfg,
		synth:  s,
		player: p,
		writer: w,
		state:  StateIdle,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// SessionID returns the ID of the current or last session.
func (c *Controller) SessionID() string {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	if c.sess == nil {
		return ""
	}
	return c.sess.id
}

// Pending returns the number of entries waiting in the dispatch and
// playback queues of the current or last session.
func (c *Controller) Pending() (dispatch, playback int) {
	c.stateMu.RLock()
	s := c.sess
	c.stateMu.RUnlock()
	if s == nil {
		return 0, 0
	}
	return s.dispatch.Len(), s.playback.Len()
}

// Start begins a new session and launches its workers. Cancelling ctx
// aborts the session.
func (c *Controller) Start(ctx context.Context) error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	if c.state == StateRunning || c.state == StateDraining {
		return ErrAlreadyRunning
	}

	s := newSession(ctx, uuid.NewString(), c.cfg.MaxPending, c.observers)
	c.sess = s
	c.state = StateRunning

	go c.synthesisWorker(s)
	go c.playbackWorker(s)

	c.logger.Debug("Pipeline started", "session", s.id, "engine", c.synth.Name())
	s.emit(Event{Type: EventSessionStarted, Index: -1})
	return nil
}

// AddSentence queues a sentence for synthesis. Blank text is ignored. When
// MaxPending is set it blocks until there is room or ctx is done.
func (c *Controller) AddSentence(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	c.addMu.Lock()
	defer c.addMu.Unlock()

	c.stateMu.RLock()
	s, state := c.sess, c.state
	c.stateMu.RUnlock()
	if state != StateRunning {
		return ErrNotRunning
	}

	j := job{index: s.next, text: text}
	if err := s.dispatch.PushContext(ctx, j); err != nil {
		if errors.Is(err, queue.ErrClosed) || errors.Is(err, queue.ErrTerminated) {
			return ErrNotRunning
		}
		return err
	}
	s.next++

	c.logger.Debug("Sentence queued", "index", j.index, "text", preview(text))
	s.emit(Event{Type: EventSentenceQueued, Index: j.index, Text: text})
	return nil
}

// FinishAndSave stops accepting sentences, waits for everything queued to
// be synthesized and played, and writes the combined audio to path. An
// empty path skips writing. No audio file is written when nothing was
// synthesized; Result.NoAudio reports that case.
//
// If ctx is done or the session is aborted before the queues drain, the
// session is stopped and the error wraps ErrAborted.
func (c *Controller) FinishAndSave(ctx context.Context, path string) (*Result, error) {
	c.stateMu.Lock()
	if c.state != StateRunning {
		c.stateMu.Unlock()
		return nil, ErrNotRunning
	}
	c.state = StateDraining
	s := c.sess
	c.stateMu.Unlock()

	defer c.stop(s)

	if err := c.drain(ctx, s); err != nil {
		s.cancel()
		s.seal()
		c.logger.Warn("Pipeline aborted before draining", "session", s.id, "err", err)
		return nil, fmt.Errorf("%w: %w", ErrAborted, err)
	}

	timedOut := c.waitWorkers(s)
	s.seal()
	s.cancel()

	seg := s.combined()

	s.mu.Lock()
	res := &Result{
		SessionID:         s.id,
		NoAudio:           seg.Len() == 0,
		Duration:          seg.Duration(),
		Sentences:         s.next,
		Synthesized:       s.synthesized,
		SynthesisFailures: append([]SynthesisFailure(nil), s.synthFailures...),
		PlaybackFailures:  s.playbackFailures,
		TimedOut:          timedOut,
	}
	s.mu.Unlock()

	var err error
	switch {
	case res.NoAudio:
		c.logger.Warn("No audio was synthesized; nothing saved", "session", s.id, "sentences", res.Sentences)
	case path == "":
	case c.writer == nil:
		err = errors.New("no audio writer configured")
	default:
		if err = c.writer.Write(path, seg); err == nil {
			res.Path = path
			c.logger.Info("Saved session audio", "path", path, "duration", res.Duration.Round(time.Millisecond))
		}
	}
	if err != nil {
		err = fmt.Errorf("save session audio: %w", err)
	}

	res.Elapsed = time.Since(s.started)
	if s.observer != nil {
		s.deliver(Event{Type: EventSessionFinished, Index: -1, Err: err, Elapsed: res.Elapsed, Result: res})
	}
	return res, err
}

// Abort cancels the current session. Queued sentences are discarded and
// playback is interrupted. It is a no-op when nothing is running.
func (c *Controller) Abort() {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	if c.state != StateRunning && c.state != StateDraining {
		return
	}
	c.sess.cancel()
	c.state = StateStopped
	c.logger.Debug("Pipeline aborted", "session", c.sess.id)
}

func (c *Controller) stop(s *session) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.sess == s {
		c.state = StateStopped
	}
}

// drain pushes a terminator through each stage in turn and waits for the
// stage to finish everything in front of it.
func (c *Controller) drain(ctx context.Context, s *session) error {
	if err := s.dispatch.Terminate(); err != nil {
		return err
	}
	if err := s.dispatch.Join(ctx); err != nil {
		return err
	}
	if err := s.playback.Terminate(); err != nil {
		return err
	}
	return s.playback.Join(ctx)
}

// waitWorkers gives each worker JoinTimeout to exit and returns the names
// of those that did not.
func (c *Controller) waitWorkers(s *session) []string {
	var timedOut []string
	workers := []struct {
		name string
		done <-chan struct{}
	}{
		{"synthesis", s.synthDone},
		{"playback", s.playDone},
	}

	for _, w := range workers {
		timer := time.NewTimer(c.cfg.JoinTimeout)
		select {
		case <-w.done:
		case <-timer.C:
			timedOut = append(timedOut, w.name)
			c.logger.Warn("Worker did not stop in time; abandoning it", "worker", w.name, "timeout", c.cfg.JoinTimeout)
			s.emit(Event{
				Type:  EventShutdownTimeout,
				Index: -1,
				Err:   &ShutdownTimeout{Worker: w.name, Timeout: c.cfg.JoinTimeout},
			})
		}
		timer.Stop()
	}
	return timedOut
}

// recoverPanic turns a worker panic into an aborted session.
func (c *Controller) recoverPanic(s *session, worker string) {
	if r := recover(); r != nil {
		c.logger.Error("Worker panicked", "worker", worker, "session", s.id, "panic", r)
		s.cancel()
	}
}
