package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Writer persists a finished response as a single playable file.
type Writer interface {
	Write(path string, seg Segment) error
}

// WAVWriter writes mono 16-bit PCM WAV files.
type WAVWriter struct{}

// Write encodes seg to path, creating parent directories as needed. The file
// is written next to its destination and renamed into place.
func (WAVWriter) Write(path string, seg Segment) error {
	if seg.Len() == 0 {
		return ErrEmptySegment
	}
	if seg.SampleRate <= 0 {
		return fmt.Errorf("%w: %d", ErrSampleRate, seg.SampleRate)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	tempPath := path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create wav file: %w", err)
	}

	err = EncodeWAV(file, seg)
	closeErr := file.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempPath)
		return err
	}

	return os.Rename(tempPath, path)
}

// EncodeWAV writes seg as a mono 16-bit WAV stream.
func EncodeWAV(w io.WriteSeeker, seg Segment) error {
	pcm := ToInt16(seg.Samples)
	data := make([]int, len(pcm))
	for i, v := range pcm {
		data[i] = int(v)
	}

	buffer := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: seg.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}

	enc := wav.NewEncoder(w, seg.SampleRate, 16, 1, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

// DecodeWAV reads a PCM WAV stream. Multi-channel audio is averaged down to
// mono.
func DecodeWAV(r io.ReadSeeker) (Segment, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return Segment{}, errors.New("wav: invalid or unsupported file")
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Segment{}, fmt.Errorf("wav decode: %w", err)
	}
	if buf == nil || buf.Format == nil {
		return Segment{}, errors.New("wav: empty buffer or missing format")
	}

	depth := buf.SourceBitDepth
	if depth <= 0 {
		depth = int(dec.BitDepth)
	}
	if depth <= 0 || depth > 32 {
		return Segment{}, fmt.Errorf("wav: unsupported bit depth %d", depth)
	}
	scale := float32(int64(1) << (depth - 1))

	channels := buf.Format.NumChannels
	if channels <= 0 {
		channels = 1
	}

	frames := len(buf.Data) / channels
	samples := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			v := buf.Data[i*channels+ch]
			if depth == 8 {
				// 8-bit WAV is unsigned.
				v -= 128
			}
			sum += float32(v) / scale
		}
		samples[i] = sum / float32(channels)
	}

	return Segment{Samples: samples, SampleRate: buf.Format.SampleRate}, nil
}
