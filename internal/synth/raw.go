package synth

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/dgnsrekt/speakstream/internal/audio"
)

// Encoding identifies the byte layout of RawAudio.
type Encoding int

const (
	// EncodingPCM16LE is signed 16-bit little-endian PCM.
	EncodingPCM16LE Encoding = iota
	// EncodingFloat32LE is 32-bit little-endian IEEE float PCM.
	EncodingFloat32LE
	// EncodingWAV is a RIFF/WAVE container; rate and channels come from the header.
	EncodingWAV
)

// String returns the string representation of the encoding.
func (e Encoding) String() string {
	switch e {
	case EncodingPCM16LE:
		return "pcm16"
	case EncodingFloat32LE:
		return "float32"
	case EncodingWAV:
		return "wav"
	default:
		return "unknown"
	}
}

// ParseEncoding parses the names accepted in configuration.
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "pcm16", "pcm_s16le", "s16le", "raw":
		return EncodingPCM16LE, nil
	case "float32", "f32le", "pcm_f32le":
		return EncodingFloat32LE, nil
	case "wav", "wave":
		return EncodingWAV, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, s)
	}
}

// RawAudio is backend output before normalization.
type RawAudio struct {
	Data       []byte
	Encoding   Encoding
	SampleRate int // ignored for WAV
	Channels   int // ignored for WAV; zero means mono
}

// Normalize converts raw backend output into a mono segment. It is the only
// place that knows about backend audio formats.
func Normalize(raw RawAudio) (audio.Segment, error) {
	switch raw.Encoding {
	case EncodingWAV:
		if len(raw.Data) == 0 {
			return audio.Segment{}, ErrEmptyAudio
		}
		seg, err := audio.DecodeWAV(bytes.NewReader(raw.Data))
		if err != nil {
			return audio.Segment{}, err
		}
		return NormalizeSamples(seg.Samples, seg.SampleRate, 1)
	case EncodingPCM16LE:
		return NormalizeSamples(audio.FromPCM16(raw.Data), raw.SampleRate, raw.Channels)
	case EncodingFloat32LE:
		return NormalizeSamples(audio.FromFloat32LE(raw.Data), raw.SampleRate, raw.Channels)
	default:
		return audio.Segment{}, fmt.Errorf("%w: %v", ErrUnsupportedEncoding, raw.Encoding)
	}
}

// NormalizeSamples validates float samples and averages interleaved
// channels down to mono.
func NormalizeSamples(samples []float32, sampleRate, channels int) (audio.Segment, error) {
	if sampleRate <= 0 {
		return audio.Segment{}, fmt.Errorf("%w: %d", audio.ErrSampleRate, sampleRate)
	}
	if channels <= 0 {
		channels = 1
	}

	frames := len(samples) / channels
	if frames == 0 {
		return audio.Segment{}, ErrEmptyAudio
	}

	if channels == 1 {
		return audio.Segment{Samples: samples[:frames], SampleRate: sampleRate}, nil
	}

	mono := make([]float32, frames)
	for i := range mono {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += samples[i*channels+ch]
		}
		mono[i] = sum / float32(channels)
	}
	return audio.Segment{Samples: mono, SampleRate: sampleRate}, nil
}
