package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/wordwrap"
	"golang.org/x/term"

	"github.com/dgnsrekt/speakstream/internal/audio"
	"github.com/dgnsrekt/speakstream/internal/bus"
	"github.com/dgnsrekt/speakstream/internal/cache"
	"github.com/dgnsrekt/speakstream/internal/config"
	"github.com/dgnsrekt/speakstream/internal/eventlog"
	"github.com/dgnsrekt/speakstream/internal/pipeline"
	"github.com/dgnsrekt/speakstream/internal/stream"
	"github.com/dgnsrekt/speakstream/internal/synth"
	"github.com/dgnsrekt/speakstream/internal/telemetry"
)

// app owns everything a command needs to speak: the synthesizer stack, the
// audio device, the observers and the controller tying them together.
type app struct {
	cfg     config.Config
	ctrl    *pipeline.Controller
	speaker *stream.Speaker
	synth   synth.Synthesizer
	cache   *cache.Manager
	outDir  string

	closers []func() error
}

type appOptions struct {
	subtitles bool
	out       io.Writer
}

func newApp(ctx context.Context, cfg config.Config, opts appOptions) (a *app, err error) {
	a = &app{cfg: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if a.outDir, err = outputDir(cfg.Audio); err != nil {
		return nil, err
	}

	var store synth.Store
	if cfg.Cache.Enabled {
		m, err := openCache(cfg.Cache)
		if err != nil {
			return nil, err
		}
		a.cache = m
		a.closers = append(a.closers, m.Close)
		store = m
	}

	if a.synth, err = buildSynthesizer(cfg, store); err != nil {
		return nil, err
	}

	player := buildPlayer(cfg.Audio)
	a.closers = append(a.closers, player.Close)

	observers, err := a.buildObservers(ctx, opts)
	if err != nil {
		return nil, err
	}

	a.ctrl, err = pipeline.New(pipelineConfig(cfg), a.synth, player, audio.WAVWriter{},
		pipeline.WithObserver(observers),
		pipeline.WithLogger(log.Default().WithPrefix("pipeline")),
	)
	if err != nil {
		return nil, err
	}

	speakerOpts := []stream.SpeakerOption{stream.WithSpeakerLogger(log.Default())}
	if cfg.Echo && !opts.subtitles && opts.out != nil {
		speakerOpts = append(speakerOpts, stream.WithEcho(opts.out))
	}
	a.speaker = stream.NewSpeaker(a.ctrl, speakerOpts...)
	return a, nil
}

// Close releases the audio device, the cache and every observer backend.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// speak streams src through the pipeline into the next response file.
func (a *app) speak(ctx context.Context, src stream.TokenSource) (*pipeline.Result, error) {
	path, err := nextResponsePath(a.outDir)
	if err != nil {
		return nil, err
	}
	return a.speaker.Speak(ctx, src, path)
}

func (a *app) buildObservers(ctx context.Context, opts appOptions) (pipeline.Observers, error) {
	var observers pipeline.Observers
	cfg := a.cfg

	if opts.subtitles && opts.out != nil {
		observers = append(observers, newSubtitles(opts.out))
	}

	if addr := cfg.Telemetry.MetricsAddr; addr != "" {
		provider, handler, err := telemetry.Setup()
		if err != nil {
			return nil, fmt.Errorf("unable to set up metrics: %w", err)
		}
		a.closers = append(a.closers, func() error {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return provider.Shutdown(shutdownCtx)
		})
		metrics, err := telemetry.New(provider, cfg.Engine)
		if err != nil {
			return nil, fmt.Errorf("unable to create metrics: %w", err)
		}
		observers = append(observers, metrics)

		serveCtx, stop := context.WithCancel(ctx)
		a.closers = append(a.closers, func() error { stop(); return nil })
		go func() {
			if err := telemetry.Serve(serveCtx, addr, handler); err != nil {
				log.Error("Metrics server stopped", "err", err)
			}
		}()
	}

	if cfg.EventStore.Enabled {
		path := cfg.EventStore.Path
		if path == "" {
			var err error
			if path, err = config.DefaultEventStorePath(); err != nil {
				return nil, err
			}
		}
		store, err := eventlog.Open(ctx, path, log.Default())
		if err != nil {
			return nil, fmt.Errorf("unable to open event store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		observers = append(observers, eventlog.NewObserver(store, cfg.Engine))
	}

	if cfg.Bus.Enabled {
		pub, err := bus.Connect(bus.Options{URL: cfg.Bus.URL, Subject: cfg.Bus.Subject}, log.Default())
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pub.Close)
		observers = append(observers, pub)
	}

	observers = append(observers, pipeline.ObserverFunc(logEvent))
	return observers, nil
}

func logEvent(e pipeline.Event) {
	switch e.Type {
	case pipeline.EventSynthesisFailed:
		log.Warn("Sentence skipped", "index", e.Index, "err", e.Err)
	case pipeline.EventPlaybackFailed:
		log.Warn("Playback failed", "index", e.Index, "err", e.Err)
	case pipeline.EventShutdownTimeout:
		log.Warn("Worker did not stop in time", "err", e.Err)
	case pipeline.EventAudioReady:
		log.Debug("Audio ready", "index", e.Index, "audio", e.Audio.Duration(), "took", e.Elapsed)
	}
}

func pipelineConfig(cfg config.Config) pipeline.Config {
	return pipeline.Config{
		SilencePadding:   cfg.Pipeline.SilencePadding.Std(),
		PollInterval:     cfg.Pipeline.PollInterval.Std(),
		JoinTimeout:      cfg.Pipeline.JoinTimeout.Std(),
		SynthesisTimeout: cfg.Pipeline.SynthesisTimeout.Std(),
		PlaybackSlack:    cfg.Pipeline.PlaybackSlack.Std(),
		MaxPending:       cfg.Pipeline.MaxPending,
		Voice: synth.Voice{
			ID:       cfg.Voice.ID,
			Language: cfg.Voice.Language,
			Speed:    cfg.Voice.Speed,
		},
	}
}

func openCache(cfg config.CacheConfig) (*cache.Manager, error) {
	memory, err := cfg.MemoryBytes()
	if err != nil {
		return nil, err
	}
	disk, err := cfg.DiskBytes()
	if err != nil {
		return nil, err
	}
	dir := cfg.Dir
	if dir == "" {
		if dir, err = config.DefaultCacheDir(); err != nil {
			return nil, err
		}
	}
	m, err := cache.NewManager(cache.Config{
		MemoryCapacity:   memory,
		DiskCapacity:     disk,
		DiskPath:         dir,
		CompressionLevel: cfg.CompressionLevel,
		MaxAge:           cfg.MaxAge.Std(),
	})
	if err != nil {
		return nil, fmt.Errorf("unable to open cache: %w", err)
	}
	log.Debug("Opened cache", "dir", dir, "memory", humanize.IBytes(uint64(memory)), "disk", humanize.IBytes(uint64(disk))) //nolint:gosec
	return m, nil
}

// buildSynthesizer assembles the configured engine with its fallback,
// markdown stripping and cache layers.
func buildSynthesizer(cfg config.Config, store synth.Store) (synth.Synthesizer, error) {
	s, err := buildEngine(cfg.Engine, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Fallback.Engine != "" {
		fb, err := buildEngine(cfg.Fallback.Engine, cfg)
		if err != nil {
			return nil, fmt.Errorf("fallback: %w", err)
		}
		s = synth.NewFallback(s, fb, cfg.Fallback.MaxFailures)
	}
	if cfg.PlainText {
		s = synth.NewPlainText(s)
	}
	if store != nil {
		s = synth.NewCached(s, store)
	}
	return s, nil
}

func buildEngine(name string, cfg config.Config) (synth.Synthesizer, error) {
	switch name {
	case "mock":
		m := synth.NewMock()
		m.SampleRate = cfg.Mock.SampleRate
		m.Delay = cfg.Mock.Delay.Std()
		m.Jitter = cfg.Mock.Jitter.Std()
		m.FailureRate = cfg.Mock.FailureRate
		return m, nil
	case "command":
		enc, err := synth.ParseEncoding(cfg.Command.Encoding)
		if err != nil {
			return nil, err
		}
		return synth.NewCommand(cfg.Command.Cmd, synth.CommandOptions{
			Name:       "command",
			Input:      synth.InputMode(cfg.Command.Input),
			Output:     synth.OutputMode(cfg.Command.Output),
			Encoding:   enc,
			SampleRate: cfg.Command.SampleRate,
			Channels:   cfg.Command.Channels,
		})
	case "piper":
		return synth.NewPiper(synth.PiperOptions{
			Binary:     cfg.Piper.Binary,
			Model:      cfg.Piper.Model,
			SpeakerID:  cfg.Piper.SpeakerID,
			SampleRate: cfg.Piper.SampleRate,
		})
	case "http":
		return synth.NewHTTP(synth.HTTPOptions{
			URL:               cfg.HTTP.URL,
			Timeout:           cfg.HTTP.Timeout.Std(),
			RequestsPerMinute: cfg.HTTP.RequestsPerMinute,
			Speaker:           cfg.HTTP.Speaker,
			SampleRate:        cfg.HTTP.SampleRate,
		})
	default:
		return nil, fmt.Errorf("unknown engine %q", name)
	}
}

// buildPlayer opens the sound device, or returns a player that discards
// audio when playback is off or no device is available.
func buildPlayer(cfg config.AudioConfig) audio.Player {
	if !cfg.Play {
		return audio.Discard{}
	}
	p, err := audio.NewOtoPlayer(cfg.DeviceSampleRate)
	if err != nil {
		log.Warn("Audio playback unavailable, saving only", "err", err)
		return audio.Discard{}
	}
	return p
}

func outputDir(cfg config.AudioConfig) (string, error) {
	dir := cfg.OutputDir
	if dir == "" {
		var err error
		if dir, err = config.DefaultOutputDir(); err != nil {
			return "", err
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec
		return "", fmt.Errorf("unable to create output directory: %w", err)
	}
	return dir, nil
}

// nextResponsePath returns the first response_<n>.wav in dir that does not
// exist yet, counting from 1.
func nextResponsePath(dir string) (string, error) {
	for n := 1; ; n++ {
		p := filepath.Join(dir, fmt.Sprintf("response_%d.wav", n))
		_, err := os.Stat(p)
		if errors.Is(err, os.ErrNotExist) {
			return p, nil
		}
		if err != nil {
			return "", err
		}
	}
}

// subtitles prints each sentence once its audio is ready rather than as
// the source produces it, so the text tracks what is about to be heard.
type subtitles struct {
	w     io.Writer
	width int
}

func newSubtitles(w io.Writer) *subtitles {
	width := 80
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) { //nolint:gosec
		if tw, _, err := term.GetSize(int(f.Fd())); err == nil && tw > 0 { //nolint:gosec
			width = min(tw, 100)
		}
	}
	return &subtitles{w: w, width: width}
}

func (s *subtitles) OnEvent(e pipeline.Event) {
	switch e.Type {
	case pipeline.EventAudioReady:
		fmt.Fprintln(s.w, subtitleStyle.Render(wordwrap.String(e.Text, s.width-2)))
	case pipeline.EventSynthesisFailed:
		fmt.Fprintln(s.w, warnStyle.Render(wordwrap.String("✗ "+e.Text, s.width-2)))
	}
}

// summary renders a one-line report of a finished response.
func summary(r *pipeline.Result) string {
	if r == nil {
		return ""
	}
	var b strings.Builder
	if r.NoAudio {
		b.WriteString("no audio produced")
	} else {
		fmt.Fprintf(&b, "%d/%d sentences, %s of audio", r.Synthesized, r.Sentences, r.Duration.Round(100*time.Millisecond))
	}
	if n := len(r.SynthesisFailures); n > 0 {
		fmt.Fprintf(&b, ", %d skipped", n)
	}
	if r.PlaybackFailures > 0 {
		fmt.Fprintf(&b, ", %d not played", r.PlaybackFailures)
	}
	if r.Path != "" {
		size := ""
		if st, err := os.Stat(r.Path); err == nil {
			size = " (" + humanize.Bytes(uint64(st.Size())) + ")" //nolint:gosec
		}
		fmt.Fprintf(&b, ", saved to %s%s", r.Path, size)
	}
	fmt.Fprintf(&b, " in %s", r.Elapsed.Round(time.Millisecond))
	return b.String()
}
