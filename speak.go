package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/speakstream/internal/pipeline"
	"github.com/dgnsrekt/speakstream/internal/stream"
)

var (
	fromClipboard bool
	chunkSize     int
)

func initSpeakFlags() {
	rootCmd.Flags().BoolVarP(&fromClipboard, "clipboard", "c", false, "speak the contents of the clipboard")
	rootCmd.Flags().IntVar(&chunkSize, "chunk", 0, "read input in chunks of this many bytes (default 4096)")
}

func stdinIsPipe() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to open file: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0 {
		return true, nil
	}
	return false, nil
}

// speakInput picks what to read from: the clipboard, stdin, a file, or the
// arguments themselves.
func speakInput(args []string) (io.ReadCloser, error) {
	if fromClipboard {
		text, err := clipboard.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("unable to read clipboard: %w", err)
		}
		return io.NopCloser(strings.NewReader(text)), nil
	}

	if len(args) == 1 && args[0] == "-" {
		return os.Stdin, nil
	}
	if len(args) == 0 {
		yes, err := stdinIsPipe()
		if err != nil {
			return nil, err
		}
		if !yes {
			return nil, errors.New("nothing to say: pass text, a file, or pipe something in")
		}
		return os.Stdin, nil
	}

	if len(args) == 1 {
		if st, err := os.Stat(args[0]); err == nil && !st.IsDir() {
			f, err := os.Open(args[0])
			if err != nil {
				return nil, fmt.Errorf("unable to open file: %w", err)
			}
			return f, nil
		}
	}
	return io.NopCloser(strings.NewReader(strings.Join(args, " "))), nil
}

func runSpeak(cmd *cobra.Command, args []string) error {
	in, err := speakInput(args)
	if err != nil {
		return err
	}
	defer in.Close() //nolint:errcheck

	a, err := newApp(cmd.Context(), cfg, appOptions{subtitles: subtitled, out: cmd.OutOrStdout()})
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	res, err := a.speak(cmd.Context(), stream.NewReaderSource(in, chunkSize))
	return report(cmd, res, err)
}

// report prints the outcome of a response. An interrupt is not an error.
func report(cmd *cobra.Command, res *pipeline.Result, err error) error {
	if s := summary(res); s != "" {
		fmt.Fprintln(cmd.ErrOrStderr(), faintStyle.Render(s))
	}
	if err != nil && cmd.Context().Err() != nil &&
		(errors.Is(err, context.Canceled) || errors.Is(err, pipeline.ErrAborted)) {
		log.Info("Interrupted")
		return nil
	}
	return err
}
