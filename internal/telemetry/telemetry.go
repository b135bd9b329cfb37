// Package telemetry exports pipeline metrics through OpenTelemetry with a
// Prometheus endpoint.
package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/dgnsrekt/speakstream/internal/pipeline"
)

const meterName = "github.com/dgnsrekt/speakstream"

// Setup creates a meter provider that exports to a private Prometheus
// registry and returns the handler serving it.
func Setup() (*sdkmetric.MeterProvider, http.Handler, error) {
	registry := promclient.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, nil, err
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	return provider, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil
}

// Serve serves handler at /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("Serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Metrics records pipeline events as OpenTelemetry instruments.
type Metrics struct {
	engine attribute.Set

	sessions         metric.Int64Counter
	activeSessions   metric.Int64UpDownCounter
	sentences        metric.Int64Counter
	synthFailures    metric.Int64Counter
	playbackFailures metric.Int64Counter
	shutdownTimeouts metric.Int64Counter
	synthLatency     metric.Float64Histogram
	playLatency      metric.Float64Histogram
	audioSeconds     metric.Float64Counter
}

// New creates the instruments on provider for the named engine.
func New(provider metric.MeterProvider, engine string) (*Metrics, error) {
	meter := provider.Meter(meterName)
	m := &Metrics{engine: attribute.NewSet(attribute.String("engine", engine))}

	var err error
	if m.sessions, err = meter.Int64Counter("speakstream.sessions",
		metric.WithDescription("Sessions started.")); err != nil {
		return nil, err
	}
	if m.activeSessions, err = meter.Int64UpDownCounter("speakstream.sessions.active",
		metric.WithDescription("Sessions in progress.")); err != nil {
		return nil, err
	}
	if m.sentences, err = meter.Int64Counter("speakstream.sentences",
		metric.WithDescription("Sentences synthesized.")); err != nil {
		return nil, err
	}
	if m.synthFailures, err = meter.Int64Counter("speakstream.synthesis.failures",
		metric.WithDescription("Sentences skipped because synthesis failed.")); err != nil {
		return nil, err
	}
	if m.playbackFailures, err = meter.Int64Counter("speakstream.playback.failures",
		metric.WithDescription("Segments that could not be played.")); err != nil {
		return nil, err
	}
	if m.shutdownTimeouts, err = meter.Int64Counter("speakstream.shutdown.timeouts",
		metric.WithDescription("Workers abandoned at finalize.")); err != nil {
		return nil, err
	}
	if m.synthLatency, err = meter.Float64Histogram("speakstream.synthesis.duration",
		metric.WithDescription("Time spent synthesizing a sentence."),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.playLatency, err = meter.Float64Histogram("speakstream.playback.duration",
		metric.WithDescription("Time spent playing a sentence."),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.audioSeconds, err = meter.Float64Counter("speakstream.audio.duration",
		metric.WithDescription("Audio synthesized."),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	return m, nil
}

// OnEvent implements pipeline.Observer.
func (m *Metrics) OnEvent(e pipeline.Event) {
	ctx := context.Background()
	attrs := metric.WithAttributeSet(m.engine)

	switch e.Type {
	case pipeline.EventSessionStarted:
		m.sessions.Add(ctx, 1, attrs)
		m.activeSessions.Add(ctx, 1, attrs)
	case pipeline.EventAudioReady:
		m.sentences.Add(ctx, 1, attrs)
		m.synthLatency.Record(ctx, e.Elapsed.Seconds(), attrs)
		m.audioSeconds.Add(ctx, e.Audio.Duration().Seconds(), attrs)
	case pipeline.EventSynthesisFailed:
		m.synthFailures.Add(ctx, 1, attrs)
		m.synthLatency.Record(ctx, e.Elapsed.Seconds(), attrs)
	case pipeline.EventPlayed:
		m.playLatency.Record(ctx, e.Elapsed.Seconds(), attrs)
	case pipeline.EventPlaybackFailed:
		m.playbackFailures.Add(ctx, 1, attrs)
	case pipeline.EventShutdownTimeout:
		m.shutdownTimeouts.Add(ctx, 1, attrs)
	case pipeline.EventSessionFinished:
		m.activeSessions.Add(ctx, -1, attrs)
	}
}
