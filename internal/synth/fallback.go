package synth

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/speakstream/internal/audio"
)

// Fallback wraps a primary synthesizer and switches to a secondary one after
// maxFailures consecutive primary failures. The switch is permanent for the
// lifetime of the value.
type Fallback struct {
	primary     Synthesizer
	fallback    Synthesizer
	maxFailures int

	mu            sync.Mutex
	failures      int
	usingFallback bool
}

// NewFallback creates a fallback chain. maxFailures below one is treated as one.
func NewFallback(primary, fallback Synthesizer, maxFailures int) *Fallback {
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &Fallback{
		primary:     primary,
		fallback:    fallback,
		maxFailures: maxFailures,
	}
}

// Name implements Synthesizer.
func (f *Fallback) Name() string {
	return f.primary.Name() + "+" + f.fallback.Name()
}

// UsingFallback reports whether the secondary synthesizer is active.
func (f *Fallback) UsingFallback() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.usingFallback
}

// Synthesize implements Synthesizer.
func (f *Fallback) Synthesize(ctx context.Context, text string, voice Voice) (audio.Segment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.usingFallback {
		return f.fallback.Synthesize(ctx, text, voice)
	}

	seg, err := f.primary.Synthesize(ctx, text, voice)
	if err == nil {
		if f.failures > 0 {
			log.Info("Primary engine recovered", "engine", f.primary.Name(), "failures", f.failures)
			f.failures = 0
		}
		return seg, nil
	}
	if ctx.Err() != nil {
		return audio.Segment{}, err
	}

	f.failures++
	log.Warn("Primary engine failed",
		"engine", f.primary.Name(),
		"attempt", f.failures,
		"max", f.maxFailures,
		"err", err)

	if f.failures < f.maxFailures {
		return audio.Segment{}, err
	}

	log.Warn("Switching to fallback engine", "engine", f.fallback.Name())
	f.usingFallback = true

	seg, fbErr := f.fallback.Synthesize(ctx, text, voice)
	if fbErr != nil {
		return audio.Segment{}, fmt.Errorf("both engines failed: primary: %v: %w", err, fbErr)
	}
	return seg, nil
}
