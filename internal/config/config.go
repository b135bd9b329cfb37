package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/sahilm/fuzzy"

	"github.com/dgnsrekt/speakstream/internal/synth"
)

// Engines lists the synthesis engines that can be configured.
var Engines = []string{"mock", "command", "piper", "http"}

// Config is the complete speakstream configuration.
type Config struct {
	Engine    string `yaml:"engine" mapstructure:"engine" env:"SPEAKSTREAM_ENGINE"`
	Echo      bool   `yaml:"echo" mapstructure:"echo" env:"SPEAKSTREAM_ECHO"`
	PlainText bool   `yaml:"plain_text" mapstructure:"plain_text" env:"SPEAKSTREAM_PLAIN_TEXT"`

	Voice      VoiceConfig      `yaml:"voice" mapstructure:"voice"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Audio      AudioConfig      `yaml:"audio" mapstructure:"audio"`
	Command    CommandConfig    `yaml:"command" mapstructure:"command"`
	Piper      PiperConfig      `yaml:"piper" mapstructure:"piper"`
	HTTP       HTTPConfig       `yaml:"http" mapstructure:"http"`
	Mock       MockConfig       `yaml:"mock" mapstructure:"mock"`
	Fallback   FallbackConfig   `yaml:"fallback" mapstructure:"fallback"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	OpenAI     OpenAIConfig     `yaml:"openai" mapstructure:"openai"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" mapstructure:"telemetry"`
	EventStore EventStoreConfig `yaml:"event_store" mapstructure:"event_store"`
	Bus        BusConfig        `yaml:"bus" mapstructure:"bus"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// VoiceConfig selects the voice passed to every synthesis call.
type VoiceConfig struct {
	ID       string  `yaml:"id" mapstructure:"id" env:"SPEAKSTREAM_VOICE_ID"`
	Language string  `yaml:"language" mapstructure:"language" env:"SPEAKSTREAM_VOICE_LANGUAGE"`
	Speed    float64 `yaml:"speed" mapstructure:"speed" env:"SPEAKSTREAM_VOICE_SPEED"`
}

// PipelineConfig tunes the synthesis and playback stages.
type PipelineConfig struct {
	SilencePadding   Duration `yaml:"silence_padding" mapstructure:"silence_padding" env:"SPEAKSTREAM_SILENCE_PADDING"`
	PollInterval     Duration `yaml:"poll_interval" mapstructure:"poll_interval" env:"SPEAKSTREAM_POLL_INTERVAL"`
	JoinTimeout      Duration `yaml:"join_timeout" mapstructure:"join_timeout" env:"SPEAKSTREAM_JOIN_TIMEOUT"`
	SynthesisTimeout Duration `yaml:"synthesis_timeout" mapstructure:"synthesis_timeout" env:"SPEAKSTREAM_SYNTHESIS_TIMEOUT"`
	PlaybackSlack    Duration `yaml:"playback_slack" mapstructure:"playback_slack" env:"SPEAKSTREAM_PLAYBACK_SLACK"`
	MaxPending       int      `yaml:"max_pending" mapstructure:"max_pending" env:"SPEAKSTREAM_MAX_PENDING"`
}

// AudioConfig controls playback and where responses are saved.
type AudioConfig struct {
	Play             bool   `yaml:"play" mapstructure:"play" env:"SPEAKSTREAM_PLAY"`
	DeviceSampleRate int    `yaml:"device_sample_rate" mapstructure:"device_sample_rate" env:"SPEAKSTREAM_DEVICE_SAMPLE_RATE"`
	OutputDir        string `yaml:"output_dir" mapstructure:"output_dir" env:"SPEAKSTREAM_OUTPUT_DIR"`
}

// CommandConfig configures the generic external command engine.
type CommandConfig struct {
	Cmd        string `yaml:"cmd" mapstructure:"cmd" env:"SPEAKSTREAM_COMMAND"`
	Input      string `yaml:"input" mapstructure:"input" env:"SPEAKSTREAM_COMMAND_INPUT"`
	Output     string `yaml:"output" mapstructure:"output" env:"SPEAKSTREAM_COMMAND_OUTPUT"`
	Encoding   string `yaml:"encoding" mapstructure:"encoding" env:"SPEAKSTREAM_COMMAND_ENCODING"`
	SampleRate int    `yaml:"sample_rate" mapstructure:"sample_rate" env:"SPEAKSTREAM_COMMAND_SAMPLE_RATE"`
	Channels   int    `yaml:"channels" mapstructure:"channels" env:"SPEAKSTREAM_COMMAND_CHANNELS"`
}

// PiperConfig configures the Piper engine.
type PiperConfig struct {
	Binary     string `yaml:"binary" mapstructure:"binary" env:"SPEAKSTREAM_PIPER_BINARY"`
	Model      string `yaml:"model" mapstructure:"model" env:"SPEAKSTREAM_PIPER_MODEL"`
	SpeakerID  string `yaml:"speaker_id" mapstructure:"speaker_id" env:"SPEAKSTREAM_PIPER_SPEAKER_ID"`
	SampleRate int    `yaml:"sample_rate" mapstructure:"sample_rate" env:"SPEAKSTREAM_PIPER_SAMPLE_RATE"`
}

// HTTPConfig configures the HTTP engine.
type HTTPConfig struct {
	URL               string   `yaml:"url" mapstructure:"url" env:"SPEAKSTREAM_HTTP_URL"`
	Timeout           Duration `yaml:"timeout" mapstructure:"timeout" env:"SPEAKSTREAM_HTTP_TIMEOUT"`
	RequestsPerMinute int      `yaml:"requests_per_minute" mapstructure:"requests_per_minute" env:"SPEAKSTREAM_HTTP_REQUESTS_PER_MINUTE"`
	Speaker           string   `yaml:"speaker" mapstructure:"speaker" env:"SPEAKSTREAM_HTTP_SPEAKER"`
	SampleRate        int      `yaml:"sample_rate" mapstructure:"sample_rate" env:"SPEAKSTREAM_HTTP_SAMPLE_RATE"`
}

// MockConfig configures the mock engine.
type MockConfig struct {
	Delay       Duration `yaml:"delay" mapstructure:"delay" env:"SPEAKSTREAM_MOCK_DELAY"`
	Jitter      Duration `yaml:"jitter" mapstructure:"jitter" env:"SPEAKSTREAM_MOCK_JITTER"`
	FailureRate float64  `yaml:"failure_rate" mapstructure:"failure_rate" env:"SPEAKSTREAM_MOCK_FAILURE_RATE"`
	SampleRate  int      `yaml:"sample_rate" mapstructure:"sample_rate" env:"SPEAKSTREAM_MOCK_SAMPLE_RATE"`
}

// FallbackConfig names a second engine used after repeated failures.
type FallbackConfig struct {
	Engine      string `yaml:"engine" mapstructure:"engine" env:"SPEAKSTREAM_FALLBACK_ENGINE"`
	MaxFailures int    `yaml:"max_failures" mapstructure:"max_failures" env:"SPEAKSTREAM_FALLBACK_MAX_FAILURES"`
}

// CacheConfig configures the synthesis cache. Capacities accept sizes such
// as "64MiB".
type CacheConfig struct {
	Enabled          bool     `yaml:"enabled" mapstructure:"enabled" env:"SPEAKSTREAM_CACHE_ENABLED"`
	Dir              string   `yaml:"dir" mapstructure:"dir" env:"SPEAKSTREAM_CACHE_DIR"`
	MemoryCapacity   string   `yaml:"memory_capacity" mapstructure:"memory_capacity" env:"SPEAKSTREAM_CACHE_MEMORY_CAPACITY"`
	DiskCapacity     string   `yaml:"disk_capacity" mapstructure:"disk_capacity" env:"SPEAKSTREAM_CACHE_DISK_CAPACITY"`
	CompressionLevel int      `yaml:"compression_level" mapstructure:"compression_level" env:"SPEAKSTREAM_CACHE_COMPRESSION_LEVEL"`
	MaxAge           Duration `yaml:"max_age" mapstructure:"max_age" env:"SPEAKSTREAM_CACHE_MAX_AGE"`
}

// OpenAIConfig configures chat mode. The API key is read by the client from
// OPENAI_API_KEY.
type OpenAIConfig struct {
	Model        string `yaml:"model" mapstructure:"model" env:"SPEAKSTREAM_OPENAI_MODEL"`
	SystemPrompt string `yaml:"system_prompt" mapstructure:"system_prompt" env:"SPEAKSTREAM_OPENAI_SYSTEM_PROMPT"`
	BaseURL      string `yaml:"base_url" mapstructure:"base_url" env:"SPEAKSTREAM_OPENAI_BASE_URL"`
}

// TelemetryConfig configures the Prometheus metrics endpoint.
type TelemetryConfig struct {
	MetricsAddr string `yaml:"metrics_addr" mapstructure:"metrics_addr" env:"SPEAKSTREAM_METRICS_ADDR"`
}

// EventStoreConfig configures the SQLite session timeline.
type EventStoreConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled" env:"SPEAKSTREAM_EVENT_STORE_ENABLED"`
	Path    string `yaml:"path" mapstructure:"path" env:"SPEAKSTREAM_EVENT_STORE_PATH"`
}

// BusConfig configures publishing of session events to NATS.
type BusConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled" env:"SPEAKSTREAM_BUS_ENABLED"`
	URL     string `yaml:"url" mapstructure:"url" env:"SPEAKSTREAM_BUS_URL"`
	Subject string `yaml:"subject" mapstructure:"subject" env:"SPEAKSTREAM_BUS_SUBJECT"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level" env:"SPEAKSTREAM_LOG_LEVEL"`
	File  string `yaml:"file" mapstructure:"file" env:"SPEAKSTREAM_LOG_FILE"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Engine:    "mock",
		Echo:      true,
		PlainText: true,
		Voice: VoiceConfig{
			Language: "en",
			Speed:    1.0,
		},
		Pipeline: PipelineConfig{
			SilencePadding:   Duration(300 * time.Millisecond),
			PollInterval:     Duration(100 * time.Millisecond),
			JoinTimeout:      Duration(5 * time.Second),
			SynthesisTimeout: Duration(60 * time.Second),
			PlaybackSlack:    Duration(2 * time.Second),
		},
		Audio: AudioConfig{
			Play:             true,
			DeviceSampleRate: 24000,
		},
		Command: CommandConfig{
			Input:      "text",
			Output:     "raw",
			Encoding:   "pcm16",
			SampleRate: 24000,
			Channels:   1,
		},
		Piper: PiperConfig{
			Binary:     "piper",
			SampleRate: 22050,
		},
		HTTP: HTTPConfig{
			Timeout:    Duration(30 * time.Second),
			SampleRate: 24000,
		},
		Mock: MockConfig{
			Delay:      Duration(50 * time.Millisecond),
			SampleRate: 24000,
		},
		Fallback: FallbackConfig{
			MaxFailures: 3,
		},
		Cache: CacheConfig{
			Enabled:          true,
			MemoryCapacity:   "64MiB",
			DiskCapacity:     "512MiB",
			CompressionLevel: 3,
			MaxAge:           Duration(7 * 24 * time.Hour),
		},
		OpenAI: OpenAIConfig{
			Model:        "gpt-4o-mini",
			SystemPrompt: "You are a helpful assistant. Answer in plain spoken sentences.",
		},
		Bus: BusConfig{
			URL:     "nats://127.0.0.1:4222",
			Subject: "speakstream.events",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate checks the configuration and normalizes names to lower case.
func (c *Config) Validate() error {
	c.Engine = strings.ToLower(strings.TrimSpace(c.Engine))
	if err := checkEngine(c.Engine); err != nil {
		return err
	}

	if c.Voice.Speed <= 0 || c.Voice.Speed > 4.0 {
		return fmt.Errorf("voice speed must be between 0 and 4.0, got %g", c.Voice.Speed)
	}

	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline config: %w", err)
	}

	if c.Audio.DeviceSampleRate <= 0 {
		return fmt.Errorf("invalid device sample rate %d", c.Audio.DeviceSampleRate)
	}

	switch c.Engine {
	case "command":
		if err := c.Command.Validate(); err != nil {
			return fmt.Errorf("command config: %w", err)
		}
	case "piper":
		if err := c.Piper.Validate(); err != nil {
			return fmt.Errorf("piper config: %w", err)
		}
	case "http":
		if err := c.HTTP.Validate(); err != nil {
			return fmt.Errorf("http config: %w", err)
		}
	case "mock":
		if err := c.Mock.Validate(); err != nil {
			return fmt.Errorf("mock config: %w", err)
		}
	}

	if c.Fallback.Engine != "" {
		c.Fallback.Engine = strings.ToLower(strings.TrimSpace(c.Fallback.Engine))
		if err := checkEngine(c.Fallback.Engine); err != nil {
			return fmt.Errorf("fallback %w", err)
		}
		if c.Fallback.Engine == c.Engine {
			return errors.New("fallback engine must differ from the primary engine")
		}
		if c.Fallback.MaxFailures < 1 {
			return fmt.Errorf("fallback max_failures must be at least 1, got %d", c.Fallback.MaxFailures)
		}
	}

	if c.Cache.Enabled {
		if err := c.Cache.Validate(); err != nil {
			return fmt.Errorf("cache config: %w", err)
		}
	}

	if c.Bus.Enabled && (c.Bus.URL == "" || c.Bus.Subject == "") {
		return errors.New("bus url and subject are required when the bus is enabled")
	}

	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}

	return nil
}

// Validate checks the pipeline timings.
func (c *PipelineConfig) Validate() error {
	switch {
	case c.SilencePadding < 0:
		return errors.New("silence_padding cannot be negative")
	case c.PollInterval <= 0:
		return errors.New("poll_interval must be positive")
	case c.JoinTimeout <= 0:
		return errors.New("join_timeout must be positive")
	case c.SynthesisTimeout <= 0:
		return errors.New("synthesis_timeout must be positive")
	case c.PlaybackSlack < 0:
		return errors.New("playback_slack cannot be negative")
	case c.MaxPending < 0:
		return fmt.Errorf("max_pending cannot be negative, got %d", c.MaxPending)
	}
	return nil
}

// Validate checks the command engine settings.
func (c *CommandConfig) Validate() error {
	if strings.TrimSpace(c.Cmd) == "" {
		return errors.New("cmd cannot be empty")
	}
	if c.Input != string(synth.InputText) && c.Input != string(synth.InputJSON) {
		return fmt.Errorf("invalid input mode %q: must be text or json", c.Input)
	}
	if c.Output != string(synth.OutputRaw) && c.Output != string(synth.OutputJSONL) {
		return fmt.Errorf("invalid output mode %q: must be raw or jsonl", c.Output)
	}
	if _, err := synth.ParseEncoding(c.Encoding); err != nil {
		return err
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("invalid channel count %d", c.Channels)
	}
	return nil
}

// Validate checks the Piper settings.
func (c *PiperConfig) Validate() error {
	if c.Binary == "" {
		return errors.New("piper binary path cannot be empty")
	}
	if c.Model == "" {
		return errors.New("piper model cannot be empty")
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", c.SampleRate)
	}
	return nil
}

// Validate checks the HTTP engine settings.
func (c *HTTPConfig) Validate() error {
	if c.URL == "" {
		return errors.New("url cannot be empty")
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if c.RequestsPerMinute < 0 {
		return fmt.Errorf("requests_per_minute cannot be negative, got %d", c.RequestsPerMinute)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", c.SampleRate)
	}
	return nil
}

// Validate checks the mock engine settings.
func (c *MockConfig) Validate() error {
	if c.FailureRate < 0 || c.FailureRate > 1 {
		return fmt.Errorf("failure_rate must be between 0.0 and 1.0, got %g", c.FailureRate)
	}
	if c.Delay < 0 || c.Jitter < 0 {
		return errors.New("delay and jitter cannot be negative")
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", c.SampleRate)
	}
	return nil
}

// Validate checks the cache settings.
func (c *CacheConfig) Validate() error {
	if _, err := c.MemoryBytes(); err != nil {
		return err
	}
	if _, err := c.DiskBytes(); err != nil {
		return err
	}
	if c.CompressionLevel < 0 || c.CompressionLevel > 22 {
		return fmt.Errorf("compression_level must be between 0 and 22, got %d", c.CompressionLevel)
	}
	if c.MaxAge < 0 {
		return errors.New("max_age cannot be negative")
	}
	return nil
}

// MemoryBytes parses MemoryCapacity.
func (c *CacheConfig) MemoryBytes() (int64, error) {
	return parseSize("memory_capacity", c.MemoryCapacity)
}

// DiskBytes parses DiskCapacity. Zero disables the disk tier.
func (c *CacheConfig) DiskBytes() (int64, error) {
	return parseSize("disk_capacity", c.DiskCapacity)
}

func parseSize(key, s string) (int64, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return int64(n), nil
}

// checkEngine reports an unknown engine, suggesting the closest known name.
func checkEngine(name string) error {
	for _, e := range Engines {
		if name == e {
			return nil
		}
	}
	if matches := fuzzy.Find(name, Engines); name != "" && len(matches) > 0 {
		return fmt.Errorf("invalid engine %q: did you mean %q?", name, matches[0].Str)
	}
	return fmt.Errorf("invalid engine %q: must be one of %v", name, Engines)
}
