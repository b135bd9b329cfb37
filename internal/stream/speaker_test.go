package stream

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/speakstream/internal/audio"
	"github.com/dgnsrekt/speakstream/internal/pipeline"
	"github.com/dgnsrekt/speakstream/internal/synth"
)

func quietLogger() *log.Logger {
	l := log.New(os.Stderr)
	l.SetLevel(log.FatalLevel)
	return l
}

func newTestPipeline(t *testing.T, mock *synth.Mock) *pipeline.Controller {
	t.Helper()
	cfg := pipeline.DefaultConfig()
	cfg.PollInterval = 5 * time.Millisecond
	cfg.SilencePadding = 10 * time.Millisecond
	c, err := pipeline.New(cfg, mock, audio.NewMockPlayer(), audio.WAVWriter{}, pipeline.WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func fastMock() *synth.Mock {
	m := synth.NewMock()
	m.PerChar = time.Millisecond
	return m
}

// failingSource yields its deltas and then fails.
type failingSource struct {
	deltas []string
	err    error
}

func (f *failingSource) Next(ctx context.Context) (string, error) {
	if len(f.deltas) == 0 {
		return "", f.err
	}
	d := f.deltas[0]
	f.deltas = f.deltas[1:]
	return d, nil
}

func TestSpeakSegmentsAndFlushes(t *testing.T) {
	mock := fastMock()
	var echo bytes.Buffer
	speaker := NewSpeaker(newTestPipeline(t, mock), WithEcho(&echo), WithSpeakerLogger(quietLogger()))

	text := "Hello world. How are you? Fine, thanks"
	path := filepath.Join(t.TempDir(), "response_0.wav")

	res, err := speaker.Speak(context.Background(), NewReaderSource(strings.NewReader(text), 3), path)
	if err != nil {
		t.Fatalf("Speak() error = %v", err)
	}

	want := []string{"Hello world.", "How are you?", "Fine, thanks"}
	if got := mock.Calls(); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("synthesized %q, want %q", got, want)
	}
	if res.Path != path {
		t.Errorf("Path = %q, want %q", res.Path, path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("saved file missing: %v", err)
	}
	if echo.String() != text+"\n" {
		t.Errorf("echo = %q, want %q", echo.String(), text+"\n")
	}
}

func TestSpeakSourceFailureStillSaves(t *testing.T) {
	mock := fastMock()
	speaker := NewSpeaker(newTestPipeline(t, mock), WithSpeakerLogger(quietLogger()))

	boom := errors.New("connection reset")
	src := &failingSource{deltas: []string{"First part. Second", " part"}, err: boom}
	path := filepath.Join(t.TempDir(), "partial.wav")

	res, err := speaker.Speak(context.Background(), src, path)
	if !errors.Is(err, ErrSourceFailed) || !errors.Is(err, boom) {
		t.Fatalf("Speak() error = %v, want ErrSourceFailed wrapping the source error", err)
	}
	if res == nil || res.Path != path {
		t.Fatalf("result = %+v, want audio saved", res)
	}
	if got := mock.Calls(); len(got) != 2 || got[1] != "Second part" {
		t.Errorf("synthesized %q, want the flushed remainder last", got)
	}
}

func TestSpeakContextCancelledAborts(t *testing.T) {
	c := newTestPipeline(t, fastMock())
	speaker := NewSpeaker(c, WithSpeakerLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan string, 1)
	ch <- "Spoken. Partial"
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	res, err := speaker.Speak(ctx, ChanSource(ch), filepath.Join(t.TempDir(), "x.wav"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Speak() error = %v, want context.Canceled", err)
	}
	if res != nil {
		t.Errorf("result = %+v, want nil", res)
	}
	if c.State() != pipeline.StateStopped {
		t.Errorf("State() = %s, want stopped", c.State())
	}

	// The controller is reusable for the next response.
	if _, err := speaker.Speak(context.Background(), NewReaderSource(strings.NewReader("Again."), 0), ""); err != nil {
		t.Errorf("second Speak() error = %v", err)
	}
}

func TestSpeakStartError(t *testing.T) {
	c := newTestPipeline(t, fastMock())
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer c.Abort()

	speaker := NewSpeaker(c)
	if _, err := speaker.Speak(context.Background(), ChanSource(nil), ""); !errors.Is(err, pipeline.ErrAlreadyRunning) {
		t.Errorf("Speak() error = %v, want ErrAlreadyRunning", err)
	}
}
