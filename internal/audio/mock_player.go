package audio

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrMockPlayback is the error injected by MockPlayer.FailOn.
var ErrMockPlayback = errors.New("mock playback failure")

// MockPlayer records what it is asked to play without producing sound.
// Playback takes the segment duration scaled by TimeScale.
type MockPlayer struct {
	// TimeScale scales the simulated playback time. Zero plays instantly.
	TimeScale float64

	// FailOn, when set, is consulted before each play with the zero-based
	// play count; a true result makes that call fail.
	FailOn func(n int) bool

	// OnPlay is invoked after a segment has been "heard".
	OnPlay func(seg Segment)

	mu      sync.Mutex
	played  []Segment
	calls   atomic.Int64
	active  atomic.Int32
	overlap atomic.Bool
	closed  atomic.Bool
}

// NewMockPlayer creates a mock that plays instantly.
func NewMockPlayer() *MockPlayer {
	return &MockPlayer{}
}

// Play implements Player.
func (m *MockPlayer) Play(ctx context.Context, seg Segment) error {
	if m.closed.Load() {
		return ErrPlayerClosed
	}

	n := int(m.calls.Add(1) - 1)
	if m.active.Add(1) > 1 {
		m.overlap.Store(true)
	}
	defer m.active.Add(-1)

	if m.FailOn != nil && m.FailOn(n) {
		return ErrMockPlayback
	}

	if m.TimeScale > 0 {
		wait := time.Duration(float64(seg.Duration()) * m.TimeScale)
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	m.mu.Lock()
	m.played = append(m.played, seg)
	m.mu.Unlock()

	if m.OnPlay != nil {
		m.OnPlay(seg)
	}
	return nil
}

// Close implements Player.
func (m *MockPlayer) Close() error {
	m.closed.Store(true)
	return nil
}

// Played returns the segments played so far, in order.
func (m *MockPlayer) Played() []Segment {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Segment, len(m.played))
	copy(out, m.played)
	return out
}

// Calls returns how many times Play was invoked.
func (m *MockPlayer) Calls() int {
	return int(m.calls.Load())
}

// Overlapped reports whether two Play calls ever ran at the same time.
func (m *MockPlayer) Overlapped() bool {
	return m.overlap.Load()
}
