package synth

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-shellwords"

	"github.com/dgnsrekt/speakstream/internal/audio"
)

// InputMode selects what a Command writes to the child's stdin.
type InputMode string

const (
	// InputText writes the sentence as plain text.
	InputText InputMode = "text"
	// InputJSON writes a commandRequest document.
	InputJSON InputMode = "json"
)

// OutputMode selects how a Command reads the child's stdout.
type OutputMode string

const (
	// OutputRaw reads stdout as one block of audio in the configured encoding.
	OutputRaw OutputMode = "raw"
	// OutputJSONL reads one commandChunk per line with base64 audio.
	OutputJSONL OutputMode = "jsonl"
)

// CommandOptions configures a Command synthesizer.
type CommandOptions struct {
	Name       string
	Input      InputMode
	Output     OutputMode
	Encoding   Encoding
	SampleRate int
	Channels   int

	// Args, when set, returns extra arguments for a given voice.
	Args func(Voice) []string

	// KillGrace is how long an interrupted child gets before it is killed.
	KillGrace time.Duration
}

type commandRequest struct {
	Text       string  `json:"text"`
	Voice      string  `json:"voice,omitempty"`
	Language   string  `json:"language,omitempty"`
	Speed      float64 `json:"speed,omitempty"`
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
}

type commandChunk struct {
	PCMBase64 string `json:"pcm_base64"`
	Final     bool   `json:"final"`
}

// Command runs an external program once per sentence and reads the audio
// it writes to stdout.
type Command struct {
	args []string
	opts CommandOptions
}

// NewCommand parses a shell-style command line.
func NewCommand(command string, opts CommandOptions) (*Command, error) {
	parser := shellwords.NewParser()
	parser.ParseEnv = true
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	return newCommand(args, opts)
}

func newCommand(args []string, opts CommandOptions) (*Command, error) {
	if len(args) == 0 {
		return nil, errors.New("tts command empty")
	}

	if opts.Name == "" {
		opts.Name = "command"
	}
	if opts.Input == "" {
		opts.Input = InputText
	}
	if opts.Output == "" {
		opts.Output = OutputRaw
	}
	if opts.Channels <= 0 {
		opts.Channels = 1
	}
	if opts.KillGrace <= 0 {
		opts.KillGrace = 100 * time.Millisecond
	}
	if opts.Encoding != EncodingWAV && opts.SampleRate <= 0 {
		return nil, fmt.Errorf("tts command %q: sample rate required for %s output", args[0], opts.Encoding)
	}

	return &Command{args: args, opts: opts}, nil
}

// Name implements Synthesizer.
func (c *Command) Name() string { return c.opts.Name }

// Synthesize implements Synthesizer.
func (c *Command) Synthesize(ctx context.Context, text string, voice Voice) (audio.Segment, error) {
	if strings.TrimSpace(text) == "" {
		return audio.Segment{}, ErrEmptyText
	}

	stdin, err := c.input(text, voice)
	if err != nil {
		return audio.Segment{}, wrap(c.Name(), err)
	}

	args := append([]string{}, c.args[1:]...)
	if c.opts.Args != nil {
		args = append(args, c.opts.Args(voice)...)
	}

	cmd := exec.CommandContext(ctx, c.args[0], args...)
	// Text goes in before start so the child never races an empty stdin.
	cmd.Stdin = bytes.NewReader(stdin)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = c.opts.KillGrace

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return audio.Segment{}, wrap(c.Name(), fmt.Errorf("synthesis interrupted: %w", ctx.Err()))
		}
		return audio.Segment{}, wrap(c.Name(), fmt.Errorf("%s failed: %w, stderr: %s",
			c.args[0], err, strings.TrimSpace(stderr.String())))
	}

	data, err := c.output(stdout.Bytes())
	if err != nil {
		return audio.Segment{}, wrap(c.Name(), err)
	}

	seg, err := Normalize(RawAudio{
		Data:       data,
		Encoding:   c.opts.Encoding,
		SampleRate: c.opts.SampleRate,
		Channels:   c.opts.Channels,
	})
	if err != nil {
		return audio.Segment{}, wrap(c.Name(), err)
	}

	log.Debug("Command synthesis complete",
		"engine", c.Name(),
		"chars", len(text),
		"audio", seg.Duration(),
		"took", time.Since(start))
	return seg, nil
}

func (c *Command) input(text string, voice Voice) ([]byte, error) {
	if c.opts.Input != InputJSON {
		return []byte(text), nil
	}
	return json.Marshal(commandRequest{
		Text:       text,
		Voice:      voice.ID,
		Language:   voice.Language,
		Speed:      voice.Speed,
		SampleRate: c.opts.SampleRate,
		Channels:   c.opts.Channels,
	})
}

func (c *Command) output(stdout []byte) ([]byte, error) {
	if c.opts.Output != OutputJSONL {
		return stdout, nil
	}

	var data []byte
	scanner := bufio.NewScanner(bytes.NewReader(stdout))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var chunk commandChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return nil, fmt.Errorf("decode tts chunk: %w", err)
		}
		pcm, err := base64.StdEncoding.DecodeString(chunk.PCMBase64)
		if err != nil {
			return nil, fmt.Errorf("decode tts chunk audio: %w", err)
		}
		data = append(data, pcm...)
		if chunk.Final {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return data, nil
}
