package stream

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// TailSource yields text appended to a file, like tail -f. The stream ends
// once the file has been quiet for the idle timeout.
type TailSource struct {
	path    string
	file    *os.File
	watcher *fsnotify.Watcher
	idle    time.Duration
	buf     []byte
	runes   runeJoiner
}

// NewTailSource opens path for tailing. When fromStart is false only text
// written after the call is yielded.
func NewTailSource(path string, fromStart bool, idle time.Duration) (*TailSource, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	if !fromStart {
		if _, err := file.Seek(0, io.SeekEnd); err != nil {
			file.Close()
			return nil, err
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("error creating fsnotify watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		file.Close()
		return nil, fmt.Errorf("error adding dir to fsnotify watcher: %w", err)
	}
	log.Debug("fsnotify watching dir", "dir", dir, "file", filepath.Base(path))

	return &TailSource{
		path:    path,
		file:    file,
		watcher: watcher,
		idle:    idle,
		buf:     make([]byte, 4096),
	}, nil
}

// Next implements TokenSource.
func (t *TailSource) Next(ctx context.Context) (string, error) {
	for {
		n, err := t.file.Read(t.buf)
		if text := t.runes.take(t.buf[:n]); text != "" {
			return text, nil
		}
		if err != nil && err != io.EOF {
			return "", err
		}

		if err := t.wait(ctx); err != nil {
			if err == io.EOF {
				return t.runes.rest(), io.EOF
			}
			return "", err
		}
	}
}

// wait blocks until the file is written to. It returns io.EOF when the
// idle timeout passes first.
func (t *TailSource) wait(ctx context.Context) error {
	timer := time.NewTimer(t.idle)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return io.EOF
		case event, ok := <-t.watcher.Events:
			if !ok {
				return io.EOF
			}
			if event.Name != t.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			log.Debug("fsnotify event", "file", event.Name, "event", event.Op)
			return nil
		case err, ok := <-t.watcher.Errors:
			if !ok {
				return io.EOF
			}
			log.Debug("fsnotify error", "file", t.path, "error", err)
		}
	}
}

// Close stops watching and closes the file.
func (t *TailSource) Close() error {
	werr := t.watcher.Close()
	if err := t.file.Close(); err != nil {
		return err
	}
	return werr
}
