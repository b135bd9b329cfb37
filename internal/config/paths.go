package config

import (
	"os"
	"path/filepath"

	gap "github.com/muesli/go-app-paths"
)

// AppName names the config file, the environment prefix and the per-user
// directories.
const AppName = "speakstream"

func scope() *gap.Scope {
	return gap.NewScope(gap.User, AppName)
}

// ConfigDirs returns the directories searched for speakstream.yml, most
// specific first.
func ConfigDirs() ([]string, error) {
	dirs, err := scope().ConfigDirs()
	if err != nil {
		return nil, err
	}
	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, AppName)}, dirs...)
	}
	if c := os.Getenv("SPEAKSTREAM_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}
	return dirs, nil
}

// DefaultOutputDir is where responses are saved when audio.output_dir is
// not set.
func DefaultOutputDir() (string, error) {
	return scope().DataPath("responses")
}

// DefaultCacheDir is the disk cache location when cache.dir is not set.
func DefaultCacheDir() (string, error) {
	dir, err := scope().CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "audio"), nil
}

// DefaultEventStorePath is the event database location when
// event_store.path is not set.
func DefaultEventStorePath() (string, error) {
	return scope().DataPath("events.db")
}

// DefaultLogPath is the debug log location when log.file is not set.
func DefaultLogPath() (string, error) {
	return scope().LogPath(AppName + ".log")
}
