package synth

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"strconv"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/speakstream/internal/audio"
	"github.com/dgnsrekt/speakstream/internal/cache"
)

// Store is the byte cache used by Cached.
type Store interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte) error
}

var errCorruptEntry = errors.New("corrupt cache entry")

// Cached memoizes another synthesizer. Entries are keyed on engine, voice
// and normalized text.
type Cached struct {
	next  Synthesizer
	store Store
}

// NewCached wraps next with store.
func NewCached(next Synthesizer, store Store) *Cached {
	return &Cached{next: next, store: store}
}

// Name implements Synthesizer.
func (c *Cached) Name() string { return c.next.Name() }

// Synthesize implements Synthesizer.
func (c *Cached) Synthesize(ctx context.Context, text string, voice Voice) (audio.Segment, error) {
	key := cache.Key(c.next.Name(), voice.ID, voice.Language, strconv.FormatFloat(voice.Speed, 'f', 2, 64), text)

	if data, ok := c.store.Get(key); ok {
		seg, err := decodeSegment(data)
		if err == nil {
			return seg, nil
		}
		log.Debug("Discarding cache entry", "key", key[:12], "err", err)
	}

	seg, err := c.next.Synthesize(ctx, text, voice)
	if err != nil {
		return audio.Segment{}, err
	}

	if err := c.store.Put(key, encodeSegment(seg)); err != nil {
		log.Debug("Cache put failed", "key", key[:12], "err", err)
	}
	return seg, nil
}

// encodeSegment lays out a segment as a little-endian uint32 sample rate
// followed by float32 samples.
func encodeSegment(seg audio.Segment) []byte {
	out := make([]byte, 4+4*seg.Len())
	binary.LittleEndian.PutUint32(out, uint32(seg.SampleRate))
	for i, v := range seg.Samples {
		binary.LittleEndian.PutUint32(out[4+4*i:], math.Float32bits(v))
	}
	return out
}

func decodeSegment(data []byte) (audio.Segment, error) {
	if len(data) < 8 || (len(data)-4)%4 != 0 {
		return audio.Segment{}, errCorruptEntry
	}
	rate := int(binary.LittleEndian.Uint32(data))
	return NormalizeSamples(audio.FromFloat32LE(data[4:]), rate, 1)
}
