package audio

import (
	"encoding/binary"
	"errors"
	"math"
	"time"
)

var (
	// ErrEmptySegment is returned when an operation needs at least one sample.
	ErrEmptySegment = errors.New("audio segment is empty")

	// ErrSampleRate is returned for a missing or non-positive sample rate.
	ErrSampleRate = errors.New("invalid sample rate")
)

// Segment is a buffer of mono samples in [-1, 1] at a fixed sample rate.
//
// A segment has a single owner at a time. Whoever hands it to another stage
// must not touch the samples afterwards; use Clone to share a copy.
type Segment struct {
	Samples    []float32
	SampleRate int
}

// Len returns the number of samples.
func (s Segment) Len() int {
	return len(s.Samples)
}

// Duration returns the audible length of the segment.
func (s Segment) Duration() time.Duration {
	if s.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(s.Samples)) * time.Second / time.Duration(s.SampleRate)
}

// Clone returns a deep copy.
func (s Segment) Clone() Segment {
	samples := make([]float32, len(s.Samples))
	copy(samples, s.Samples)
	return Segment{Samples: samples, SampleRate: s.SampleRate}
}

// Silence returns d worth of zero samples at sampleRate.
func Silence(d time.Duration, sampleRate int) Segment {
	n := int(float64(sampleRate) * d.Seconds())
	if n < 0 {
		n = 0
	}
	return Segment{Samples: make([]float32, n), SampleRate: sampleRate}
}

// Concat joins segments in order. The result uses the sample rate of the
// first non-empty segment; segments at other rates are resampled to it.
func Concat(segments ...Segment) Segment {
	var (
		rate  int
		total int
	)
	for _, s := range segments {
		if s.Len() == 0 {
			continue
		}
		if rate == 0 {
			rate = s.SampleRate
		}
		total += s.Len()
	}

	out := Segment{Samples: make([]float32, 0, total), SampleRate: rate}
	for _, s := range segments {
		if s.Len() == 0 {
			continue
		}
		if s.SampleRate != rate {
			s = Resample(s, rate)
		}
		out.Samples = append(out.Samples, s.Samples...)
	}
	return out
}

// Resample converts a segment to targetRate using linear interpolation.
// Quality is adequate for speech; it is not meant for music.
func Resample(s Segment, targetRate int) Segment {
	if s.SampleRate == targetRate || s.SampleRate <= 0 || targetRate <= 0 || s.Len() == 0 {
		return Segment{Samples: s.Samples, SampleRate: targetRate}
	}

	ratio := float64(s.SampleRate) / float64(targetRate)
	n := int(float64(s.Len()) / ratio)
	out := make([]float32, n)

	last := s.Len() - 1
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= last {
			out[i] = s.Samples[last]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = s.Samples[idx]*(1-frac) + s.Samples[idx+1]*frac
	}
	return Segment{Samples: out, SampleRate: targetRate}
}

// Peak returns the largest absolute sample value.
func (s Segment) Peak() float32 {
	var peak float32
	for _, v := range s.Samples {
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	return peak
}

// ToInt16 converts samples to signed 16-bit values, clipping out of range input.
func ToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, v := range samples {
		out[i] = floatToInt16(v)
	}
	return out
}

// ToPCM16 encodes samples as little-endian signed 16-bit PCM.
func ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, v := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(floatToInt16(v)))
	}
	return out
}

// FromPCM16 decodes little-endian signed 16-bit PCM. A trailing odd byte is
// ignored.
func FromPCM16(data []byte) []float32 {
	out := make([]float32, len(data)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(data[i*2:]))) / 32768
	}
	return out
}

// FromFloat32LE decodes little-endian IEEE float samples.
func FromFloat32LE(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}

func floatToInt16(v float32) int16 {
	switch {
	case v >= 1:
		return math.MaxInt16
	case v <= -1:
		return math.MinInt16
	default:
		return int16(v * math.MaxInt16)
	}
}
