package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/speakstream/internal/audio"
	"github.com/dgnsrekt/speakstream/internal/synth"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) OnEvent(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) indexes(t EventType) []int {
	var out []int
	for _, e := range r.snapshot() {
		if e.Type == t {
			out = append(out, e.Index)
		}
	}
	return out
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SilencePadding = 10 * time.Millisecond
	cfg.PollInterval = 5 * time.Millisecond
	cfg.JoinTimeout = time.Second
	return cfg
}

func newTestController(t *testing.T, cfg Config, s synth.Synthesizer, p audio.Player, opts ...Option) (*Controller, *recorder) {
	t.Helper()
	rec := &recorder{}
	quiet := log.New(os.Stderr)
	quiet.SetLevel(log.FatalLevel)
	opts = append([]Option{WithObserver(rec), WithLogger(quiet)}, opts...)
	c, err := New(cfg, s, p, audio.WAVWriter{}, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c, rec
}

func fastMock() *synth.Mock {
	m := synth.NewMock()
	m.PerChar = time.Millisecond
	return m
}

func TestNewValidates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PollInterval = 0
	if _, err := New(cfg, fastMock(), audio.NewMockPlayer(), nil); err == nil {
		t.Error("expected error for zero poll interval")
	}
	if _, err := New(DefaultConfig(), nil, audio.NewMockPlayer(), nil); err == nil {
		t.Error("expected error for nil synthesizer")
	}
	if _, err := New(DefaultConfig(), fastMock(), nil, nil); err == nil {
		t.Error("expected error for nil player")
	}
}

func TestPipelineSavesInOrder(t *testing.T) {
	mock := fastMock()
	mock.Jitter = 5 * time.Millisecond
	player := audio.NewMockPlayer()
	player.TimeScale = 0.1

	c, rec := newTestController(t, testConfig(), mock, player)
	ctx := context.Background()

	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	const n = 20
	var want []int
	for i := 0; i < n; i++ {
		if err := c.AddSentence(ctx, fmt.Sprintf("Sentence number %d.", i)); err != nil {
			t.Fatalf("AddSentence(%d) error = %v", i, err)
		}
		want = append(want, i)
	}

	path := filepath.Join(t.TempDir(), "out", "response_0.wav")
	res, err := c.FinishAndSave(ctx, path)
	if err != nil {
		t.Fatalf("FinishAndSave() error = %v", err)
	}

	if res.Path != path || res.NoAudio {
		t.Errorf("result = %+v, want audio saved to %s", res, path)
	}
	if res.Sentences != n || res.Synthesized != n {
		t.Errorf("sentences = %d, synthesized = %d, want %d", res.Sentences, res.Synthesized, n)
	}

	got := rec.indexes(EventPlayed)
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("played order = %v, want %v", got, want)
	}
	if player.Overlapped() {
		t.Error("playback overlapped")
	}

	calls := mock.Calls()
	for i, text := range calls {
		if text != fmt.Sprintf("Sentence number %d.", i) {
			t.Errorf("synthesis call %d = %q", i, text)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open saved file: %v", err)
	}
	defer f.Close()
	seg, err := audio.DecodeWAV(f)
	if err != nil {
		t.Fatalf("DecodeWAV() error = %v", err)
	}
	diff := seg.Duration() - res.Duration
	if diff < -time.Millisecond || diff > time.Millisecond {
		t.Errorf("saved duration = %v, want %v", seg.Duration(), res.Duration)
	}
}

func TestPipelineSavedAudioIncludesPadding(t *testing.T) {
	mock := fastMock()
	cfg := testConfig()
	cfg.SilencePadding = 100 * time.Millisecond

	c, _ := newTestController(t, cfg, mock, audio.NewMockPlayer())
	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}
	for _, s := range []string{"One.", "Two."} {
		if err := c.AddSentence(ctx, s); err != nil {
			t.Fatal(err)
		}
	}
	res, err := c.FinishAndSave(ctx, "")
	if err != nil {
		t.Fatalf("FinishAndSave() error = %v", err)
	}
	if res.Path != "" {
		t.Errorf("Path = %q, want nothing written", res.Path)
	}

	// Two tones of 4ms each plus two 100ms pads.
	want := 2*4*time.Millisecond + 2*cfg.SilencePadding
	diff := res.Duration - want
	if diff < -time.Millisecond || diff > time.Millisecond {
		t.Errorf("Duration = %v, want about %v", res.Duration, want)
	}
}

func TestPipelineAllSynthesisFails(t *testing.T) {
	mock := fastMock()
	mock.Fail = func(string) bool { return true }
	player := audio.NewMockPlayer()

	c, rec := newTestController(t, testConfig(), mock, player)
	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}

	sentences := []string{"First.", "Second!", "Third?"}
	for _, s := range sentences {
		if err := c.AddSentence(ctx, s); err != nil {
			t.Fatal(err)
		}
	}

	path := filepath.Join(t.TempDir(), "response_0.wav")
	res, err := c.FinishAndSave(ctx, path)
	if err != nil {
		t.Fatalf("FinishAndSave() error = %v", err)
	}

	if !res.NoAudio {
		t.Error("NoAudio = false, want true")
	}
	if res.Path != "" {
		t.Errorf("Path = %q, want empty", res.Path)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected no file at %s, stat err = %v", path, err)
	}
	if len(res.SynthesisFailures) != len(sentences) {
		t.Fatalf("failures = %d, want %d", len(res.SynthesisFailures), len(sentences))
	}
	for i, f := range res.SynthesisFailures {
		if f.Index != i || f.Text != sentences[i] {
			t.Errorf("failure %d = {%d %q}", i, f.Index, f.Text)
		}
		if !errors.Is(&f, synth.ErrMockFailure) {
			t.Errorf("failure %d does not wrap ErrMockFailure: %v", i, f.Err)
		}
	}
	if got := rec.indexes(EventSynthesisFailed); len(got) != len(sentences) {
		t.Errorf("synthesis_failed events = %v", got)
	}
	if player.Calls() != 0 {
		t.Errorf("player called %d times, want 0", player.Calls())
	}
}

func TestPipelineSkipsFailedSentences(t *testing.T) {
	mock := fastMock()
	mock.Fail = func(text string) bool { return strings.Contains(text, "bad") }

	c, rec := newTestController(t, testConfig(), mock, audio.NewMockPlayer())
	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}
	for _, s := range []string{"Good one.", "A bad one.", "Good two."} {
		if err := c.AddSentence(ctx, s); err != nil {
			t.Fatal(err)
		}
	}
	res, err := c.FinishAndSave(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Synthesized != 2 || len(res.SynthesisFailures) != 1 {
		t.Errorf("synthesized = %d, failures = %d", res.Synthesized, len(res.SynthesisFailures))
	}
	if got := fmt.Sprint(rec.indexes(EventPlayed)); got != "[0 2]" {
		t.Errorf("played = %s, want [0 2]", got)
	}
}

func TestPipelinePlaybackFailureContinues(t *testing.T) {
	player := audio.NewMockPlayer()
	player.FailOn = func(n int) bool { return n == 0 }

	c, rec := newTestController(t, testConfig(), fastMock(), player)
	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}
	for _, s := range []string{"One.", "Two."} {
		if err := c.AddSentence(ctx, s); err != nil {
			t.Fatal(err)
		}
	}
	res, err := c.FinishAndSave(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if res.PlaybackFailures != 1 {
		t.Errorf("PlaybackFailures = %d, want 1", res.PlaybackFailures)
	}
	if res.Synthesized != 2 {
		t.Errorf("Synthesized = %d, want 2", res.Synthesized)
	}
	if got := fmt.Sprint(rec.indexes(EventPlaybackFailed)); got != "[0]" {
		t.Errorf("playback_failed = %s, want [0]", got)
	}
	if got := fmt.Sprint(rec.indexes(EventPlayed)); got != "[1]" {
		t.Errorf("played = %s, want [1]", got)
	}
}

func TestPipelineQuiescentAfterFinish(t *testing.T) {
	mock := fastMock()
	mock.Jitter = 3 * time.Millisecond
	player := audio.NewMockPlayer()
	player.TimeScale = 0.05

	c, rec := newTestController(t, testConfig(), mock, player)
	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		if err := c.AddSentence(ctx, fmt.Sprintf("Line %d.", i)); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := c.FinishAndSave(ctx, ""); err != nil {
		t.Fatal(err)
	}

	events := rec.snapshot()
	if last := events[len(events)-1]; last.Type != EventSessionFinished {
		t.Errorf("last event = %s, want session_finished", last.Type)
	}
	if d, p := c.Pending(); d != 0 || p != 0 {
		t.Errorf("Pending() = %d, %d, want 0, 0", d, p)
	}
	calls := player.Calls()

	time.Sleep(50 * time.Millisecond)
	if got := len(rec.snapshot()); got != len(events) {
		t.Errorf("events after return: %d, want %d", got, len(events))
	}
	if player.Calls() != calls {
		t.Error("player used after FinishAndSave returned")
	}
	if c.State() != StateStopped {
		t.Errorf("State() = %s, want stopped", c.State())
	}
}

func TestPipelineEmptySession(t *testing.T) {
	c, _ := newTestController(t, testConfig(), fastMock(), audio.NewMockPlayer())
	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.AddSentence(ctx, "   "); err != nil {
		t.Fatalf("AddSentence(blank) error = %v", err)
	}
	res, err := c.FinishAndSave(ctx, filepath.Join(t.TempDir(), "out.wav"))
	if err != nil {
		t.Fatal(err)
	}
	if !res.NoAudio || res.Sentences != 0 {
		t.Errorf("result = %+v, want empty session", res)
	}
}

func TestPipelineStateErrors(t *testing.T) {
	c, _ := newTestController(t, testConfig(), fastMock(), audio.NewMockPlayer())
	ctx := context.Background()

	if err := c.AddSentence(ctx, "Too early."); !errors.Is(err, ErrNotRunning) {
		t.Errorf("AddSentence before Start = %v, want ErrNotRunning", err)
	}
	if _, err := c.FinishAndSave(ctx, ""); !errors.Is(err, ErrNotRunning) {
		t.Errorf("FinishAndSave before Start = %v, want ErrNotRunning", err)
	}
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.Start(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start = %v, want ErrAlreadyRunning", err)
	}
	if _, err := c.FinishAndSave(ctx, ""); err != nil {
		t.Fatal(err)
	}
	if err := c.AddSentence(ctx, "Too late."); !errors.Is(err, ErrNotRunning) {
		t.Errorf("AddSentence after finish = %v, want ErrNotRunning", err)
	}
}

func TestPipelineRestart(t *testing.T) {
	c, _ := newTestController(t, testConfig(), fastMock(), audio.NewMockPlayer())
	ctx := context.Background()
	dir := t.TempDir()

	var ids []string
	for i := 0; i < 2; i++ {
		if err := c.Start(ctx); err != nil {
			t.Fatalf("Start() #%d error = %v", i, err)
		}
		if err := c.AddSentence(ctx, "Hello again."); err != nil {
			t.Fatal(err)
		}
		res, err := c.FinishAndSave(ctx, filepath.Join(dir, fmt.Sprintf("response_%d.wav", i)))
		if err != nil {
			t.Fatalf("FinishAndSave() #%d error = %v", i, err)
		}
		if res.Sentences != 1 {
			t.Errorf("session %d sentences = %d, want 1", i, res.Sentences)
		}
		ids = append(ids, res.SessionID)
	}
	if ids[0] == ids[1] {
		t.Error("sessions share an ID")
	}
}

func TestPipelineAbort(t *testing.T) {
	mock := fastMock()
	mock.Delay = 10 * time.Second

	c, _ := newTestController(t, testConfig(), mock, audio.NewMockPlayer())
	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.AddSentence(ctx, "This will never be spoken."); err != nil {
		t.Fatal(err)
	}

	c.Abort()
	if c.State() != StateStopped {
		t.Errorf("State() = %s, want stopped", c.State())
	}
	if _, err := c.FinishAndSave(ctx, ""); !errors.Is(err, ErrNotRunning) {
		t.Errorf("FinishAndSave after Abort = %v, want ErrNotRunning", err)
	}

	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start after Abort error = %v", err)
	}
	if _, err := c.FinishAndSave(ctx, ""); err != nil {
		t.Errorf("FinishAndSave after restart error = %v", err)
	}
}

func TestPipelineFinishContextCancelled(t *testing.T) {
	mock := fastMock()
	mock.Delay = 10 * time.Second

	c, _ := newTestController(t, testConfig(), mock, audio.NewMockPlayer())
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := c.AddSentence(context.Background(), "Slow."); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.FinishAndSave(ctx, "")
	if !errors.Is(err, ErrAborted) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("FinishAndSave() error = %v, want ErrAborted wrapping deadline", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("FinishAndSave did not honour its context")
	}
	if c.State() != StateStopped {
		t.Errorf("State() = %s, want stopped", c.State())
	}
}

func TestPipelineStartContextCancelled(t *testing.T) {
	mock := fastMock()
	mock.Delay = 10 * time.Second

	c, _ := newTestController(t, testConfig(), mock, audio.NewMockPlayer())
	ctx, cancel := context.WithCancel(context.Background())
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.AddSentence(ctx, "Interrupted."); err != nil {
		t.Fatal(err)
	}
	cancel()

	if _, err := c.FinishAndSave(context.Background(), ""); !errors.Is(err, ErrAborted) {
		t.Errorf("FinishAndSave() error = %v, want ErrAborted", err)
	}
}

func TestPipelineBackpressure(t *testing.T) {
	mock := fastMock()
	mock.Delay = 10 * time.Second

	cfg := testConfig()
	cfg.MaxPending = 1
	c, _ := newTestController(t, cfg, mock, audio.NewMockPlayer())
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer c.Abort()

	// The worker takes the first sentence, the second fills the queue.
	if err := c.AddSentence(context.Background(), "One."); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(time.Second)
	for len(mock.Calls()) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := c.AddSentence(context.Background(), "Two."); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := c.AddSentence(ctx, "Three."); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("AddSentence on full queue = %v, want deadline exceeded", err)
	}
}

type panicSynth struct{}

func (panicSynth) Name() string { return "panic" }

func (panicSynth) Synthesize(context.Context, string, synth.Voice) (audio.Segment, error) {
	panic("engine exploded")
}

func TestPipelineWorkerPanicAborts(t *testing.T) {
	c, _ := newTestController(t, testConfig(), panicSynth{}, audio.NewMockPlayer())
	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.AddSentence(ctx, "Boom."); err != nil {
		t.Fatal(err)
	}
	if _, err := c.FinishAndSave(ctx, ""); !errors.Is(err, ErrAborted) {
		t.Errorf("FinishAndSave() error = %v, want ErrAborted", err)
	}
}

func TestPipelineEventsCarryAudioCopy(t *testing.T) {
	var mu sync.Mutex
	var ready []Event
	obs := ObserverFunc(func(e Event) {
		if e.Type == EventAudioReady {
			mu.Lock()
			ready = append(ready, e)
			mu.Unlock()
			// Observers must not be able to corrupt the session audio.
			for i := range e.Audio.Samples {
				e.Audio.Samples[i] = 0
			}
		}
	})

	c, _ := newTestController(t, testConfig(), fastMock(), audio.NewMockPlayer(), WithObserver(obs))
	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.AddSentence(ctx, "Copy me."); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "copy.wav")
	if _, err := c.FinishAndSave(ctx, path); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(ready) != 1 || ready[0].Text != "Copy me." || ready[0].SessionID == "" {
		t.Fatalf("audio_ready events = %+v", ready)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	seg, err := audio.DecodeWAV(f)
	if err != nil {
		t.Fatal(err)
	}
	if seg.Peak() == 0 {
		t.Error("saved audio was zeroed by an observer")
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateRunning, "running"},
		{StateDraining, "draining"},
		{StateStopped, "stopped"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
