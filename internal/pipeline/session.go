package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/dgnsrekt/speakstream/internal/audio"
	"github.com/dgnsrekt/speakstream/internal/queue"
)

// job is a sentence waiting for synthesis.
type job struct {
	index int
	text  string
}

// clip is audio waiting for playback. Padding clips follow the sentence
// they belong to and are not reported as played.
type clip struct {
	index int
	seg   audio.Segment
	pad   bool
}

// session is the state of one Start..FinishAndSave cycle. Abandoned workers
// may outlive it, so everything they touch is guarded.
type session struct {
	id      string
	started time.Time
	ctx     context.Context
	cancel  context.CancelFunc

	dispatch *queue.Queue[job]
	playback *queue.Queue[clip]

	synthDone chan struct{}
	playDone  chan struct{}

	// next is the index of the next sentence; guarded by Controller.addMu.
	next int

	observer Observer
	emitMu   sync.RWMutex
	sealed   bool

	mu               sync.Mutex
	frozen           bool
	segments         []audio.Segment
	synthesized      int
	synthFailures    []SynthesisFailure
	playbackFailures int
}

func newSession(parent context.Context, id string, maxPending int, observer Observer) *session {
	ctx, cancel := context.WithCancel(parent)
	s := &session{
		id:        id,
		started:   time.Now(),
		ctx:       ctx,
		cancel:    cancel,
		dispatch:  queue.New[job](maxPending),
		playback:  queue.New[clip](0),
		synthDone: make(chan struct{}),
		playDone:  make(chan struct{}),
		observer:  observer,
	}

	// Cancellation releases everything blocked on the queues.
	context.AfterFunc(ctx, func() {
		s.dispatch.Close()
		s.playback.Close()
	})
	return s
}

// emit delivers e to the observer unless the session has been sealed.
func (s *session) emit(e Event) {
	s.emitMu.RLock()
	defer s.emitMu.RUnlock()
	if s.sealed || s.observer == nil {
		return
	}
	s.deliver(e)
}

func (s *session) deliver(e Event) {
	e.SessionID = s.id
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	s.observer.OnEvent(e)
}

// seal waits for in-flight events and drops all later ones. It also freezes
// the accumulated audio.
func (s *session) seal() {
	s.emitMu.Lock()
	s.sealed = true
	s.emitMu.Unlock()

	s.mu.Lock()
	s.frozen = true
	s.mu.Unlock()
}

func (s *session) accumulate(segs ...audio.Segment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen {
		return
	}
	s.synthesized++
	for _, seg := range segs {
		if seg.Len() > 0 {
			s.segments = append(s.segments, seg)
		}
	}
}

func (s *session) synthesisFailed(f SynthesisFailure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen {
		return
	}
	s.synthFailures = append(s.synthFailures, f)
}

func (s *session) playbackFailed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen {
		return
	}
	s.playbackFailures++
}

// combined returns the session audio in dispatch order.
func (s *session) combined() audio.Segment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return audio.Concat(s.segments...)
}
