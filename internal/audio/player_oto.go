//go:build !nocgo
// +build !nocgo

package audio

import (
	"bytes"
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"
)

// oto allows a single context per process, so every OtoPlayer shares it.
var (
	sharedMu      sync.Mutex
	sharedContext *oto.Context
	sharedRate    int
)

// OtoPlayer plays segments on the default output device through oto.
// Segments are resampled to the device rate before playback.
type OtoPlayer struct {
	context    *oto.Context
	sampleRate int
	poll       time.Duration

	mu     sync.Mutex
	closed bool
}

// NewOtoPlayer opens the output device at sampleRate, mono, signed 16-bit.
func NewOtoPlayer(sampleRate int) (*OtoPlayer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrSampleRate, sampleRate)
	}

	ctx, err := otoContext(sampleRate)
	if err != nil {
		return nil, err
	}

	return &OtoPlayer{
		context:    ctx,
		sampleRate: sampleRate,
		poll:       10 * time.Millisecond,
	}, nil
}

func otoContext(sampleRate int) (*oto.Context, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if sharedContext != nil {
		if sharedRate != sampleRate {
			return nil, fmt.Errorf("audio device already open at %d Hz", sharedRate)
		}
		return sharedContext, nil
	}

	options := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
	}

	// Platform-specific buffer size adjustments
	switch runtime.GOOS {
	case "darwin":
		options.BufferSize = 100 * time.Millisecond
	case "windows":
		options.BufferSize = 80 * time.Millisecond
	default:
		options.BufferSize = 50 * time.Millisecond
	}

	log.Debug("Initializing audio context",
		"sample_rate", options.SampleRate,
		"buffer_size", options.BufferSize)

	ctx, ready, err := oto.NewContext(options)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoAudioDevice, err)
	}

	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		// oto v3 contexts cannot be closed; it is garbage collected.
		return nil, fmt.Errorf("%w: initialization timeout", ErrNoAudioDevice)
	}

	sharedContext = ctx
	sharedRate = sampleRate
	return ctx, nil
}

// SampleRate returns the device sample rate.
func (p *OtoPlayer) SampleRate() int {
	return p.sampleRate
}

// Play blocks until seg has been rendered. Cancelling ctx stops playback
// early and returns the context error.
func (p *OtoPlayer) Play(ctx context.Context, seg Segment) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrPlayerClosed
	}
	if seg.Len() == 0 {
		return nil
	}
	if seg.SampleRate != p.sampleRate {
		seg = Resample(seg, p.sampleRate)
	}

	// The reader must keep the PCM alive until the player is closed.
	data := ToPCM16(seg.Samples)
	player := p.context.NewPlayer(bytes.NewReader(data))
	defer player.Close()

	player.Play()

	ticker := time.NewTicker(p.poll)
	defer ticker.Stop()

	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			return ctx.Err()
		case <-ticker.C:
		}
	}

	if err := player.Err(); err != nil {
		return fmt.Errorf("playback failed: %w", err)
	}
	return nil
}

// Close marks the player closed. The device stays open for the process.
func (p *OtoPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	return nil
}
