package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/speakstream/internal/config"
	"github.com/dgnsrekt/speakstream/internal/eventlog"
	"github.com/dgnsrekt/speakstream/internal/pipeline"
	"github.com/dgnsrekt/speakstream/internal/stream"
	"github.com/dgnsrekt/speakstream/internal/synth"
)

type mapStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *mapStore) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}

func (m *mapStore) Put(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = map[string][]byte{}
	}
	m.data[key] = value
	return nil
}

func testAppConfig(t *testing.T) config.Config {
	t.Helper()
	log.SetLevel(log.FatalLevel)

	cfg := config.Default()
	cfg.Audio.Play = false
	cfg.Audio.OutputDir = t.TempDir()
	cfg.Cache.Enabled = false
	cfg.Mock.Delay = 0
	cfg.Pipeline.SilencePadding = config.Duration(10 * time.Millisecond)
	cfg.Pipeline.PollInterval = config.Duration(10 * time.Millisecond)
	return cfg
}

func TestNextResponsePath(t *testing.T) {
	dir := t.TempDir()

	p, err := nextResponsePath(dir)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(p) != "response_1.wav" {
		t.Errorf("expected response_1.wav, got %s", p)
	}

	for _, name := range []string{"response_1.wav", "response_2.wav", "response_4.wav"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o600); err != nil {
			t.Fatal(err)
		}
	}
	p, err = nextResponsePath(dir)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(p) != "response_3.wav" {
		t.Errorf("expected the first free slot response_3.wav, got %s", p)
	}
}

func TestBuildSynthesizer(t *testing.T) {
	tests := []struct {
		name      string
		configure func(*config.Config)
		store     synth.Store
		check     func(t *testing.T, s synth.Synthesizer)
		wantErr   bool
	}{
		{
			name:      "bare mock",
			configure: func(c *config.Config) { c.PlainText = false },
			check: func(t *testing.T, s synth.Synthesizer) {
				if _, ok := s.(*synth.Mock); !ok {
					t.Errorf("expected *synth.Mock, got %T", s)
				}
			},
		},
		{
			name:      "plain text layer",
			configure: func(*config.Config) {},
			check: func(t *testing.T, s synth.Synthesizer) {
				if _, ok := s.(*synth.PlainText); !ok {
					t.Errorf("expected *synth.PlainText, got %T", s)
				}
			},
		},
		{
			name:      "cache is outermost",
			configure: func(*config.Config) {},
			store:     &mapStore{},
			check: func(t *testing.T, s synth.Synthesizer) {
				if _, ok := s.(*synth.Cached); !ok {
					t.Errorf("expected *synth.Cached, got %T", s)
				}
				if s.Name() != "mock" {
					t.Errorf("expected the engine name to show through, got %q", s.Name())
				}
			},
		},
		{
			name: "fallback",
			configure: func(c *config.Config) {
				c.PlainText = false
				c.Engine = "http"
				c.HTTP.URL = "http://127.0.0.1:1/tts"
				c.Fallback.Engine = "mock"
			},
			check: func(t *testing.T, s synth.Synthesizer) {
				if _, ok := s.(*synth.Fallback); !ok {
					t.Errorf("expected *synth.Fallback, got %T", s)
				}
			},
		},
		{
			name:      "http without url",
			configure: func(c *config.Config) { c.Engine = "http" },
			wantErr:   true,
		},
		{
			name:      "unknown engine",
			configure: func(c *config.Config) { c.Engine = "espeak" },
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.configure(&cfg)
			s, err := buildSynthesizer(cfg, tt.store)
			if (err != nil) != tt.wantErr {
				t.Fatalf("buildSynthesizer() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, s)
			}
		})
	}
}

func TestSpeakInputJoinsArguments(t *testing.T) {
	in, err := speakInput([]string{"Hello", "there."})
	if err != nil {
		t.Fatal(err)
	}
	defer in.Close() //nolint:errcheck

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(in); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "Hello there." {
		t.Errorf("unexpected input %q", buf.String())
	}
}

func TestAppSpeaksAndRecords(t *testing.T) {
	cfg := testAppConfig(t)
	cfg.EventStore.Enabled = true
	cfg.EventStore.Path = filepath.Join(t.TempDir(), "events.db")

	var out bytes.Buffer
	ctx := context.Background()
	a, err := newApp(ctx, cfg, appOptions{out: &out})
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}

	ch := make(chan string, 3)
	ch <- "Hello the"
	ch <- "re. How are"
	ch <- " you"
	close(ch)

	res, err := a.speak(ctx, stream.ChanSource(ch))
	if err != nil {
		t.Fatalf("speak: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if res.Sentences != 2 || res.Synthesized != 2 {
		t.Errorf("expected 2 sentences synthesized, got %d/%d", res.Synthesized, res.Sentences)
	}
	if filepath.Base(res.Path) != "response_1.wav" {
		t.Errorf("unexpected path %s", res.Path)
	}
	if _, err := os.Stat(res.Path); err != nil {
		t.Errorf("response not written: %v", err)
	}
	if !strings.Contains(out.String(), "Hello there. How are you") {
		t.Errorf("stream was not echoed: %q", out.String())
	}
	if s := summary(res); !strings.Contains(s, "2/2 sentences") || !strings.Contains(s, "response_1.wav") {
		t.Errorf("unexpected summary %q", s)
	}

	store, err := eventlog.Open(ctx, cfg.EventStore.Path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close() //nolint:errcheck
	sess, err := store.Session(ctx, res.SessionID)
	if err != nil {
		t.Fatalf("session not recorded: %v", err)
	}
	if sess.Path != res.Path || sess.Sentences != 2 {
		t.Errorf("unexpected stored session: %+v", sess)
	}
}

func TestSubtitlesFollowAudio(t *testing.T) {
	var out bytes.Buffer
	s := newSubtitles(&out)

	s.OnEvent(pipeline.Event{Type: pipeline.EventSentenceQueued, Text: "Queued only."})
	if out.Len() != 0 {
		t.Fatalf("queued sentence printed early: %q", out.String())
	}
	s.OnEvent(pipeline.Event{Type: pipeline.EventAudioReady, Text: "Now speaking."})
	s.OnEvent(pipeline.Event{Type: pipeline.EventSynthesisFailed, Text: "Lost one."})

	got := out.String()
	if !strings.Contains(got, "Now speaking.") || !strings.Contains(got, "Lost one.") {
		t.Errorf("unexpected subtitles %q", got)
	}
}

func TestSummaryNoAudio(t *testing.T) {
	s := summary(&pipeline.Result{NoAudio: true, Sentences: 1, SynthesisFailures: []pipeline.SynthesisFailure{{Index: 0}}})
	if !strings.Contains(s, "no audio produced") || !strings.Contains(s, "1 skipped") {
		t.Errorf("unexpected summary %q", s)
	}
	if summary(nil) != "" {
		t.Error("expected empty summary for a nil result")
	}
}
