package audio

import (
	"context"
	"errors"
)

// ErrNoAudioDevice is returned when no output device could be opened.
var ErrNoAudioDevice = errors.New("no audio device available")

// ErrPlayerClosed is returned by Play after Close.
var ErrPlayerClosed = errors.New("player is closed")

// Player renders a segment and returns once it has been heard, or when ctx
// is done.
type Player interface {
	Play(ctx context.Context, seg Segment) error
	Close() error
}

// Discard is a Player that returns immediately without producing sound.
type Discard struct{}

// Play implements Player.
func (Discard) Play(ctx context.Context, _ Segment) error {
	return ctx.Err()
}

// Close implements Player.
func (Discard) Close() error { return nil }
