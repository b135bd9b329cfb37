package pipeline

import (
	"errors"
	"time"

	"github.com/dgnsrekt/speakstream/internal/synth"
)

// Config tunes a Controller.
type Config struct {
	// SilencePadding is appended after every synthesized sentence.
	SilencePadding time.Duration

	// PollInterval bounds how long a worker waits on an empty queue before
	// checking for cancellation.
	PollInterval time.Duration

	// JoinTimeout bounds how long FinishAndSave waits for each worker to exit.
	JoinTimeout time.Duration

	// SynthesisTimeout is the deadline for a single synthesis call.
	SynthesisTimeout time.Duration

	// PlaybackSlack is added to a segment's duration to get the deadline for
	// playing it.
	PlaybackSlack time.Duration

	// MaxPending bounds the number of sentences waiting for synthesis.
	// AddSentence blocks while the bound is reached. Zero means unbounded.
	MaxPending int

	// Voice is passed to every synthesis call.
	Voice synth.Voice
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		SilencePadding:   300 * time.Millisecond,
		PollInterval:     100 * time.Millisecond,
		JoinTimeout:      5 * time.Second,
		SynthesisTimeout: 60 * time.Second,
		PlaybackSlack:    2 * time.Second,
	}
}

// Validate checks the configuration for impossible values.
func (c Config) Validate() error {
	switch {
	case c.SilencePadding < 0:
		return errors.New("silence padding cannot be negative")
	case c.PollInterval <= 0:
		return errors.New("poll interval must be positive")
	case c.JoinTimeout <= 0:
		return errors.New("join timeout must be positive")
	case c.SynthesisTimeout <= 0:
		return errors.New("synthesis timeout must be positive")
	case c.PlaybackSlack < 0:
		return errors.New("playback slack cannot be negative")
	case c.MaxPending < 0:
		return errors.New("max pending cannot be negative")
	}
	return nil
}
