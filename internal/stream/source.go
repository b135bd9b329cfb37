package stream

import (
	"bufio"
	"context"
	"io"
	"unicode/utf8"
)

// TokenSource yields text deltas in order. Next returns io.EOF once the
// stream is complete; any other error ends the stream early.
type TokenSource interface {
	Next(ctx context.Context) (string, error)
}

// ReaderSource reads deltas from an io.Reader without splitting runes.
type ReaderSource struct {
	r     *bufio.Reader
	buf   []byte
	runes runeJoiner
}

// NewReaderSource returns a source that yields at most chunkSize bytes per
// delta. A chunkSize of zero or less uses 4096.
func NewReaderSource(r io.Reader, chunkSize int) *ReaderSource {
	if chunkSize <= 0 {
		chunkSize = 4096
	}
	return &ReaderSource{
		r:   bufio.NewReader(r),
		buf: make([]byte, chunkSize),
	}
}

// Next implements TokenSource.
func (s *ReaderSource) Next(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, err := s.r.Read(s.buf)
		text := s.runes.take(s.buf[:n])
		if err == io.EOF {
			text += s.runes.rest()
		}
		if text != "" || err != nil {
			return text, err
		}
	}
}

// ChanSource yields the strings sent on a channel until it is closed.
type ChanSource <-chan string

// Next implements TokenSource.
func (c ChanSource) Next(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case delta, ok := <-c:
		if !ok {
			return "", io.EOF
		}
		return delta, nil
	}
}

// runeJoiner holds back an incomplete trailing UTF-8 sequence until the
// rest of it arrives.
type runeJoiner struct {
	pending []byte
}

func (j *runeJoiner) take(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	data := append(j.pending, b...)
	j.pending = nil

	cut := len(data)
	for i := len(data) - 1; i >= 0 && i >= len(data)-utf8.UTFMax; i-- {
		if utf8.RuneStart(data[i]) {
			if !utf8.FullRune(data[i:]) {
				cut = i
			}
			break
		}
	}
	if cut < len(data) {
		j.pending = append([]byte(nil), data[cut:]...)
	}
	return string(data[:cut])
}

func (j *runeJoiner) rest() string {
	s := string(j.pending)
	j.pending = nil
	return s
}
