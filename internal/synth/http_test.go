package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgnsrekt/speakstream/internal/audio"
)

func TestHTTPResponses(t *testing.T) {
	wavPath := filepath.Join(t.TempDir(), "reply.wav")
	if err := (audio.WAVWriter{}).Write(wavPath, audio.Segment{Samples: make([]float32, 160), SampleRate: 16000}); err != nil {
		t.Fatal(err)
	}
	wavData, err := os.ReadFile(wavPath)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name        string
		contentType string
		header      map[string]string
		body        []byte
		rate        int
		samples     int
	}{
		{"wav", "audio/wav", nil, wavData, 16000, 160},
		{"json samples", "application/json", nil, []byte(`{"samples":[0.1,0.2,0.3],"sample_rate":24000}`), 24000, 3},
		{"raw pcm with header", "application/octet-stream", map[string]string{"X-Sample-Rate": "22050"}, make([]byte, 10), 22050, 5},
		{"raw pcm default rate", "", nil, make([]byte, 8), 24000, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got httpRequest
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("Expected POST, got %s", r.Method)
				}
				json.NewDecoder(r.Body).Decode(&got)
				if tt.contentType != "" {
					w.Header().Set("Content-Type", tt.contentType)
				}
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.Write(tt.body)
			}))
			defer srv.Close()

			h, err := NewHTTP(HTTPOptions{URL: srv.URL, Speaker: "default"})
			if err != nil {
				t.Fatal(err)
			}

			seg, err := h.Synthesize(context.Background(), "Hello there.", Voice{Language: "en", Speed: 1.2})
			if err != nil {
				t.Fatalf("Synthesize failed: %v", err)
			}
			if seg.SampleRate != tt.rate || seg.Len() != tt.samples {
				t.Errorf("got %d samples at %d Hz, want %d at %d", seg.Len(), seg.SampleRate, tt.samples, tt.rate)
			}
			if got.Text != "Hello there." || got.Speaker != "default" || got.Language != "en" || got.Speed != 1.2 {
				t.Errorf("unexpected request %+v", got)
			}
		})
	}
}

func TestHTTPServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model exploded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	h, _ := NewHTTP(HTTPOptions{URL: srv.URL})
	_, err := h.Synthesize(context.Background(), "text", Voice{})

	var se *Error
	if !errors.As(err, &se) || se.Engine != "http" {
		t.Fatalf("Expected *Error from http engine, got %v", err)
	}
	if !bytes.Contains([]byte(err.Error()), []byte("model exploded")) {
		t.Errorf("Error lacks server message: %v", err)
	}
}

func TestHTTPEmptyAudio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"samples":[],"sample_rate":24000}`))
	}))
	defer srv.Close()

	h, _ := NewHTTP(HTTPOptions{URL: srv.URL})
	if _, err := h.Synthesize(context.Background(), "text", Voice{}); !errors.Is(err, ErrEmptyAudio) {
		t.Errorf("Expected ErrEmptyAudio, got %v", err)
	}
}

func TestHTTPRateLimit(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write(make([]byte, 4))
	}))
	defer srv.Close()

	// One request per minute: the second call must wait and hit the deadline.
	h, _ := NewHTTP(HTTPOptions{URL: srv.URL, RequestsPerMinute: 1})

	if _, err := h.Synthesize(context.Background(), "one", Voice{}); err != nil {
		t.Fatalf("first call failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := h.Synthesize(ctx, "two", Voice{}); err == nil {
		t.Error("Expected rate limiter to block the second call")
	}
	if hits.Load() != 1 {
		t.Errorf("Expected 1 request to reach the server, got %d", hits.Load())
	}
}

func TestNewHTTPRequiresURL(t *testing.T) {
	if _, err := NewHTTP(HTTPOptions{}); err == nil {
		t.Error("Expected error without URL")
	}
}
