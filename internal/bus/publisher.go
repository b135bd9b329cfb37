// Package bus publishes pipeline events to NATS so other processes can
// follow a session, for example to show subtitles in sync with the audio.
package bus

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"

	"github.com/dgnsrekt/speakstream/internal/audio"
	"github.com/dgnsrekt/speakstream/internal/pipeline"
)

// Message is the JSON document published for each event. Audio is mono
// 16-bit little-endian PCM and is only set on audio_ready messages when
// the publisher includes audio.
type Message struct {
	SessionID  string    `json:"session_id"`
	Type       string    `json:"type"`
	Index      int       `json:"index"`
	Text       string    `json:"text,omitempty"`
	Error      string    `json:"error,omitempty"`
	ElapsedMS  int64     `json:"elapsed_ms,omitempty"`
	AudioMS    int64     `json:"audio_ms,omitempty"`
	SampleRate int       `json:"sample_rate,omitempty"`
	Audio      []byte    `json:"audio,omitempty"`
	Path       string    `json:"path,omitempty"`
	Time       time.Time `json:"time"`
}

// Options configures a Publisher.
type Options struct {
	URL          string
	Subject      string // messages go to <Subject>.<event type>
	IncludeAudio bool
	Timeout      time.Duration
}

// Publisher is a pipeline.Observer that publishes events to NATS.
type Publisher struct {
	conn *nats.Conn
	opts Options
	log  *log.Logger
}

// Connect connects to the NATS server at opts.URL.
func Connect(opts Options, logger *log.Logger) (*Publisher, error) {
	if opts.URL == "" {
		return nil, errors.New("no NATS url configured")
	}
	if opts.Subject == "" {
		return nil, errors.New("no subject configured")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}

	conn, err := nats.Connect(opts.URL,
		nats.Name("speakstream"),
		nats.Timeout(opts.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	logger.Debug("Connected to NATS", "url", opts.URL, "subject", opts.Subject)
	return &Publisher{conn: conn, opts: opts, log: logger}, nil
}

// OnEvent implements pipeline.Observer. Publish errors are logged.
func (p *Publisher) OnEvent(e pipeline.Event) {
	msg := Message{
		SessionID: e.SessionID,
		Type:      e.Type.String(),
		Index:     e.Index,
		Text:      e.Text,
		ElapsedMS: e.Elapsed.Milliseconds(),
		Time:      e.Time,
	}
	if e.Err != nil {
		msg.Error = e.Err.Error()
	}
	if e.Type == pipeline.EventAudioReady {
		msg.AudioMS = e.Audio.Duration().Milliseconds()
		msg.SampleRate = e.Audio.SampleRate
		if p.opts.IncludeAudio {
			msg.Audio = audio.ToPCM16(e.Audio.Samples)
		}
	}
	if e.Result != nil {
		msg.Path = e.Result.Path
		msg.AudioMS = e.Result.Duration.Milliseconds()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		p.log.Warn("bus: failed to encode event", "type", msg.Type, "err", err)
		return
	}
	if err := p.conn.Publish(p.opts.Subject+"."+msg.Type, data); err != nil {
		p.log.Warn("bus: failed to publish event", "type", msg.Type, "err", err)
	}
}

// Close flushes pending messages and closes the connection.
func (p *Publisher) Close() error {
	err := p.conn.FlushTimeout(p.opts.Timeout)
	p.conn.Close()
	return err
}
