package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/dgnsrekt/speakstream/internal/audio"
)

// HTTPOptions configures an HTTP synthesizer.
type HTTPOptions struct {
	URL               string
	Timeout           time.Duration
	RequestsPerMinute int    // zero disables rate limiting
	Speaker           string // default speaker when the voice has no ID
	SampleRate        int    // assumed rate for raw PCM responses without a header
	Client            *http.Client
}

type httpRequest struct {
	Text     string  `json:"text"`
	Speaker  string  `json:"speaker,omitempty"`
	Language string  `json:"language,omitempty"`
	Speed    float64 `json:"speed,omitempty"`
}

// httpSamples is the JSON shape returned by servers that answer with a
// plain sample array.
type httpSamples struct {
	Samples    []float32 `json:"samples"`
	SampleRate int       `json:"sample_rate"`
	Channels   int       `json:"channels"`
}

// HTTP posts each sentence to a synthesis server. The response may be a WAV
// file, raw 16-bit PCM, or a JSON sample array.
type HTTP struct {
	opts    HTTPOptions
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTP creates an HTTP synthesizer.
func NewHTTP(opts HTTPOptions) (*HTTP, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("http tts: url is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = 24000
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	h := &HTTP{opts: opts, client: client}
	if opts.RequestsPerMinute > 0 {
		h.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}
	return h, nil
}

// Name implements Synthesizer.
func (h *HTTP) Name() string { return "http" }

// Synthesize implements Synthesizer.
func (h *HTTP) Synthesize(ctx context.Context, text string, voice Voice) (audio.Segment, error) {
	if strings.TrimSpace(text) == "" {
		return audio.Segment{}, ErrEmptyText
	}

	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			return audio.Segment{}, wrap(h.Name(), fmt.Errorf("rate limit wait: %w", err))
		}
	}

	speaker := voice.ID
	if speaker == "" {
		speaker = h.opts.Speaker
	}
	body, err := json.Marshal(httpRequest{
		Text:     text,
		Speaker:  speaker,
		Language: voice.Language,
		Speed:    voice.Speed,
	})
	if err != nil {
		return audio.Segment{}, wrap(h.Name(), err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.opts.URL, bytes.NewReader(body))
	if err != nil {
		return audio.Segment{}, wrap(h.Name(), err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav, application/json;q=0.9, application/octet-stream;q=0.8")

	resp, err := h.client.Do(req)
	if err != nil {
		return audio.Segment{}, wrap(h.Name(), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return audio.Segment{}, wrap(h.Name(), fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return audio.Segment{}, wrap(h.Name(), fmt.Errorf("server returned %s: %s",
			resp.Status, strings.TrimSpace(string(data))))
	}

	seg, err := h.decode(resp.Header, data)
	if err != nil {
		return audio.Segment{}, wrap(h.Name(), err)
	}
	return seg, nil
}

func (h *HTTP) decode(header http.Header, data []byte) (audio.Segment, error) {
	mediaType, params, err := mime.ParseMediaType(header.Get("Content-Type"))
	if err != nil {
		mediaType = "application/octet-stream"
	}

	switch mediaType {
	case "audio/wav", "audio/x-wav", "audio/wave", "audio/vnd.wave":
		return Normalize(RawAudio{Data: data, Encoding: EncodingWAV})

	case "application/json":
		var payload httpSamples
		if err := json.Unmarshal(data, &payload); err != nil {
			return audio.Segment{}, fmt.Errorf("decode samples: %w", err)
		}
		return NormalizeSamples(payload.Samples, payload.SampleRate, payload.Channels)

	default:
		sampleRate := h.opts.SampleRate
		if v, err := strconv.Atoi(params["rate"]); err == nil {
			sampleRate = v
		}
		if v, err := strconv.Atoi(header.Get("X-Sample-Rate")); err == nil {
			sampleRate = v
		}
		channels, _ := strconv.Atoi(params["channels"])
		return Normalize(RawAudio{
			Data:       data,
			Encoding:   EncodingPCM16LE,
			SampleRate: sampleRate,
			Channels:   channels,
		})
	}
}
