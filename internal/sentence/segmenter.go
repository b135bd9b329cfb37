// Package sentence detects sentence boundaries in text that arrives in
// small, arbitrarily cut deltas.
package sentence

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// boundaryRegex matches a run of terminal punctuation followed by whitespace
// or the end of the buffer. Adjacent marks such as "?!" or "..." form a
// single boundary.
var boundaryRegex = regexp.MustCompile(`[.!?]+(?:\s+|$)`)

// boundary is one accepted sentence end inside a buffer.
type boundary struct {
	punctEnd int // offset just past the punctuation run
	end      int // offset just past the trailing whitespace
}

// Split appends delta to remainder and cuts the result after the last
// sentence boundary. It returns the completed sentences in source order,
// trimmed and non-empty, together with the text that must stay buffered.
func Split(remainder, delta string) ([]string, string) {
	buf := remainder + delta
	bounds := findBoundaries(buf)
	if len(bounds) == 0 {
		return nil, buf
	}

	var (
		sentences []string
		starts    []int
		prev      int
	)
	for _, b := range bounds {
		piece := strings.TrimSpace(buf[prev:b.punctEnd])
		switch {
		case piece == "":
		case isPunctuation(piece) && len(sentences) > 0:
			// A stray run like the second "!" in "Go! !" belongs to the
			// sentence before it.
			last := len(sentences) - 1
			sentences[last] = strings.TrimSpace(buf[starts[last]:b.punctEnd])
		default:
			sentences = append(sentences, piece)
			starts = append(starts, prev)
		}
		prev = b.end
	}

	return sentences, buf[prev:]
}

// findBoundaries returns every accepted boundary in buf, in order.
func findBoundaries(buf string) []boundary {
	matches := boundaryRegex.FindAllStringIndex(buf, -1)
	bounds := make([]boundary, 0, len(matches))
	for _, m := range matches {
		punctEnd := m[0]
		for punctEnd < m[1] && strings.IndexByte(".!?", buf[punctEnd]) >= 0 {
			punctEnd++
		}
		if isEllipsis(buf[m[0]:punctEnd]) && !ellipsisEndsSentence(buf, m[1]) {
			continue
		}
		bounds = append(bounds, boundary{punctEnd: punctEnd, end: m[1]})
	}
	return bounds
}

// ellipsisEndsSentence decides whether a run of dots ending at next closes a
// sentence. It does when the following word starts with anything other than
// a lowercase letter. Until that word has arrived the answer is no, and the
// text stays buffered.
func ellipsisEndsSentence(buf string, next int) bool {
	if next >= len(buf) {
		return false
	}
	r, _ := utf8.DecodeRuneInString(buf[next:])
	return !unicode.IsLower(r)
}

func isEllipsis(run string) bool {
	return len(run) > 1 && strings.Count(run, ".") == len(run)
}

func isPunctuation(s string) bool {
	return strings.Trim(s, ".!?") == ""
}

// Segmenter turns a stream of text deltas into sentences. It keeps the
// not yet terminated tail of the stream between calls.
//
// A Segmenter is not safe for concurrent use; it belongs to the goroutine
// consuming the token stream.
type Segmenter struct {
	remainder string
}

// NewSegmenter returns an empty segmenter.
func NewSegmenter() *Segmenter {
	return &Segmenter{}
}

// Push adds a delta and returns the sentences it completed, if any.
func (s *Segmenter) Push(delta string) []string {
	var sentences []string
	sentences, s.remainder = Split(s.remainder, delta)
	return sentences
}

// Flush returns the trimmed remainder as a final sentence, even without
// terminal punctuation, and clears the buffer. The boolean is false when
// nothing but whitespace was left.
func (s *Segmenter) Flush() (string, bool) {
	rest := strings.TrimSpace(s.remainder)
	s.remainder = ""
	return rest, rest != ""
}

// Buffered returns the text held back waiting for a boundary.
func (s *Segmenter) Buffered() string {
	return s.remainder
}

// Reset drops any buffered text.
func (s *Segmenter) Reset() {
	s.remainder = ""
}
