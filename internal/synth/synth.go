// Package synth adapts text-to-speech backends to the speech pipeline.
//
// Every backend reports its output as RawAudio and passes it through
// Normalize, so the rest of the program only ever sees mono float samples
// with a known sample rate.
package synth

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgnsrekt/speakstream/internal/audio"
)

var (
	// ErrEmptyText is returned when there is nothing to speak.
	ErrEmptyText = errors.New("text cannot be empty")

	// ErrEmptyAudio is returned when a backend produced no samples.
	ErrEmptyAudio = errors.New("synthesizer produced no audio")

	// ErrUnsupportedEncoding is returned for audio formats Normalize cannot read.
	ErrUnsupportedEncoding = errors.New("unsupported audio encoding")
)

// Voice selects how a sentence is spoken.
type Voice struct {
	ID       string  `json:"id,omitempty"`
	Language string  `json:"language,omitempty"`
	Speed    float64 `json:"speed,omitempty"`
}

// Synthesizer turns one sentence into audio. Implementations must be safe
// to call from one goroutine at a time; the pipeline never calls them
// concurrently.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, text string, voice Voice) (audio.Segment, error)
}

// Error wraps a backend failure with the engine that produced it.
type Error struct {
	Engine string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Engine, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrap(engine string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Engine: engine, Err: err}
}
