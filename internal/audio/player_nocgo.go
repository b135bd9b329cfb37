//go:build nocgo
// +build nocgo

package audio

import (
	"context"
	"fmt"
)

// OtoPlayer stub for builds without cgo.
type OtoPlayer struct{}

// NewOtoPlayer always fails in nocgo builds.
func NewOtoPlayer(sampleRate int) (*OtoPlayer, error) {
	return nil, fmt.Errorf("%w: audio not available in nocgo build", ErrNoAudioDevice)
}

// SampleRate returns zero.
func (p *OtoPlayer) SampleRate() int { return 0 }

// Play always fails in nocgo builds.
func (p *OtoPlayer) Play(ctx context.Context, seg Segment) error {
	return ErrNoAudioDevice
}

// Close does nothing.
func (p *OtoPlayer) Close() error { return nil }
