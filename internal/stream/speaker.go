package stream

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/speakstream/internal/pipeline"
	"github.com/dgnsrekt/speakstream/internal/sentence"
)

// Pipeline is the part of *pipeline.Controller a Speaker drives.
type Pipeline interface {
	Start(ctx context.Context) error
	AddSentence(ctx context.Context, text string) error
	FinishAndSave(ctx context.Context, path string) (*pipeline.Result, error)
	Abort()
}

// ErrSourceFailed wraps the error of a token stream that ended early. The
// audio received before the failure is still spoken and saved.
var ErrSourceFailed = errors.New("token stream ended early")

// SpeakerOption configures a Speaker.
type SpeakerOption func(*Speaker)

// WithEcho writes every delta to w as it arrives.
func WithEcho(w io.Writer) SpeakerOption {
	return func(s *Speaker) {
		s.echo = w
	}
}

// WithSpeakerLogger sets the logger.
func WithSpeakerLogger(l *log.Logger) SpeakerOption {
	return func(s *Speaker) {
		s.logger = l
	}
}

// Speaker turns a token stream into one spoken, saved response.
type Speaker struct {
	pipe   Pipeline
	echo   io.Writer
	logger *log.Logger
}

// NewSpeaker creates a Speaker driving p.
func NewSpeaker(p Pipeline, opts ...SpeakerOption) *Speaker {
	s := &Speaker{pipe: p, logger: log.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Speak runs one response: it starts a session, feeds it every sentence
// completed by src, flushes the remainder when src ends and saves the
// audio to path. Cancelling ctx aborts the session and discards the audio.
//
// When src fails, whatever was already received is still finished and
// saved; the returned error then wraps ErrSourceFailed.
func (s *Speaker) Speak(ctx context.Context, src TokenSource, path string) (*pipeline.Result, error) {
	if err := s.pipe.Start(ctx); err != nil {
		return nil, err
	}

	seg := sentence.NewSegmenter()
	srcErr, err := s.feed(ctx, src, seg)

	// The remainder is flushed on every path so the segmenter is clean for
	// the next response.
	rest, ok := seg.Flush()

	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		s.pipe.Abort()
		return nil, err
	}

	if ok {
		if err := s.pipe.AddSentence(ctx, rest); err != nil {
			s.pipe.Abort()
			return nil, err
		}
	}
	if s.echo != nil {
		fmt.Fprintln(s.echo)
	}

	res, err := s.pipe.FinishAndSave(ctx, path)
	if srcErr != nil {
		s.logger.Warn("Token stream ended early; finishing with what was received", "err", srcErr)
		err = errors.Join(fmt.Errorf("%w: %w", ErrSourceFailed, srcErr), err)
	}
	return res, err
}

// feed pushes deltas until src ends. srcErr is a failure of the source;
// err is a failure that aborts the response.
func (s *Speaker) feed(ctx context.Context, src TokenSource, seg *sentence.Segmenter) (srcErr, err error) {
	for {
		delta, nerr := src.Next(ctx)
		if delta != "" {
			if s.echo != nil {
				io.WriteString(s.echo, delta)
			}
			for _, text := range seg.Push(delta) {
				if err := s.pipe.AddSentence(ctx, text); err != nil {
					return nil, err
				}
			}
		}

		switch {
		case nerr == nil:
		case errors.Is(nerr, io.EOF):
			return nil, nil
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			return nerr, nil
		}
	}
}
