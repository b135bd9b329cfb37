package synth

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/dgnsrekt/speakstream/internal/audio"
)

// ErrMockFailure is returned by Mock when it is told to fail.
var ErrMockFailure = errors.New("mock synthesis failure")

// Mock is a Synthesizer that renders a quiet tone whose length follows the
// text length. It can simulate latency and failures.
type Mock struct {
	SampleRate  int
	Delay       time.Duration // base latency per call
	Jitter      time.Duration // extra random latency in [0, Jitter)
	FailureRate float64       // probability in [0, 1] of a failed call
	PerChar     time.Duration // audio produced per character

	// Fail, when set, decides failures by text instead of FailureRate.
	Fail func(text string) bool

	mu    sync.Mutex
	rng   *rand.Rand
	calls []string
}

// NewMock creates a mock that answers instantly at 24 kHz.
func NewMock() *Mock {
	return &Mock{
		SampleRate: 24000,
		PerChar:    20 * time.Millisecond,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Name implements Synthesizer.
func (m *Mock) Name() string { return "mock" }

// Synthesize implements Synthesizer.
func (m *Mock) Synthesize(ctx context.Context, text string, voice Voice) (audio.Segment, error) {
	if text == "" {
		return audio.Segment{}, ErrEmptyText
	}

	m.mu.Lock()
	m.calls = append(m.calls, text)
	delay := m.Delay
	if m.Jitter > 0 {
		delay += time.Duration(m.random().Int63n(int64(m.Jitter)))
	}
	fail := m.FailureRate > 0 && m.random().Float64() < m.FailureRate
	m.mu.Unlock()

	if m.Fail != nil {
		fail = m.Fail(text)
	}

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return audio.Segment{}, ctx.Err()
		case <-timer.C:
		}
	}

	if fail {
		return audio.Segment{}, &Error{Engine: m.Name(), Err: ErrMockFailure}
	}

	return Normalize(RawAudio{
		Data:       m.tone(text, voice.Speed),
		Encoding:   EncodingPCM16LE,
		SampleRate: m.sampleRate(),
	})
}

// Calls returns the texts synthesized so far, in call order.
func (m *Mock) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *Mock) random() *rand.Rand {
	if m.rng == nil {
		m.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return m.rng
}

func (m *Mock) sampleRate() int {
	if m.SampleRate <= 0 {
		return 24000
	}
	return m.SampleRate
}

func (m *Mock) tone(text string, speed float64) []byte {
	perChar := m.PerChar
	if perChar <= 0 {
		perChar = 20 * time.Millisecond
	}
	if speed <= 0 {
		speed = 1
	}

	duration := time.Duration(float64(perChar) * float64(len([]rune(text))) / speed)
	rate := m.sampleRate()
	n := int(duration.Seconds() * float64(rate))
	if n < 1 {
		n = 1
	}

	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(0.2 * math.Sin(2*math.Pi*220*float64(i)/float64(rate)))
	}
	return audio.ToPCM16(samples)
}
