package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Load builds the effective configuration: defaults, then whatever v has
// read from files and flags, then SPEAKSTREAM_* environment variables.
func Load(v *viper.Viper) (Config, error) {
	cfg := Default()

	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return cfg, fmt.Errorf("failed to decode configuration: %w", err)
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadDotEnv loads variables from the given .env files, or ./.env when none
// are given. Missing files are ignored; variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Marshal renders cfg as YAML.
func Marshal(cfg Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// WriteDefault writes the commented default configuration to path unless a
// file already exists there.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(DefaultFile); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (c *Config) expandPaths() error {
	for _, p := range []*string{
		&c.Audio.OutputDir,
		&c.Cache.Dir,
		&c.EventStore.Path,
		&c.Log.File,
		&c.Piper.Binary,
		&c.Piper.Model,
	} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// DefaultFile is the configuration written by `speakstream config` on
// first use.
const DefaultFile = `# synthesis engine: mock, command, piper or http
engine: "mock"
# print the text as it streams in
echo: true
# strip markdown from sentences before synthesis
plain_text: true

voice:
  id: ""
  language: "en"
  speed: 1.0

pipeline:
  # silence appended after every sentence
  silence_padding: "300ms"
  poll_interval: "100ms"
  # how long to wait for each worker at the end of a response
  join_timeout: "5s"
  synthesis_timeout: "60s"
  # extra time allowed on top of a segment's length for playback
  playback_slack: "2s"
  # sentences allowed to wait for synthesis; 0 means unbounded
  max_pending: 0

audio:
  play: true
  device_sample_rate: 24000
  # defaults to the user data directory
  output_dir: ""

# generic external engine: reads text on stdin, writes audio to stdout
command:
  cmd: ""
  input: "text"
  output: "raw"
  encoding: "pcm16"
  sample_rate: 24000
  channels: 1

piper:
  binary: "piper"
  model: ""
  speaker_id: ""
  sample_rate: 22050

# XTTS-style synthesis server
http:
  url: ""
  timeout: "30s"
  requests_per_minute: 0
  speaker: ""
  sample_rate: 24000

mock:
  delay: "50ms"
  jitter: "0s"
  failure_rate: 0.0
  sample_rate: 24000

# switch to a second engine after repeated failures
fallback:
  engine: ""
  max_failures: 3

cache:
  enabled: true
  dir: ""
  memory_capacity: "64MiB"
  disk_capacity: "512MiB"
  compression_level: 3
  max_age: "168h0m0s"

# chat mode; the API key is read from OPENAI_API_KEY
openai:
  model: "gpt-4o-mini"
  system_prompt: "You are a helpful assistant. Answer in plain spoken sentences."
  base_url: ""

telemetry:
  # serve Prometheus metrics on this address, e.g. ":9090"
  metrics_addr: ""

event_store:
  enabled: false
  path: ""

bus:
  enabled: false
  url: "nats://127.0.0.1:4222"
  subject: "speakstream.events"

log:
  level: "info"
  file: ""
`
