package synth

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

// PiperOptions configures the Piper preset.
type PiperOptions struct {
	Binary     string // defaults to "piper"
	Model      string // path to the .onnx voice model
	SpeakerID  string // optional speaker for multi-speaker models
	SampleRate int    // defaults to 22050
}

// NewPiper returns a Command that drives the Piper CLI with raw PCM output.
// Voice speed maps to Piper's length scale.
func NewPiper(opts PiperOptions) (*Command, error) {
	if opts.Model == "" {
		return nil, errors.New("model path is required")
	}
	if _, err := os.Stat(opts.Model); err != nil {
		return nil, fmt.Errorf("model file not found: %w", err)
	}
	if opts.Binary == "" {
		opts.Binary = "piper"
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = 22050
	}

	args := []string{opts.Binary, "--model", opts.Model, "--output-raw"}
	if opts.SpeakerID != "" {
		args = append(args, "--speaker", opts.SpeakerID)
	}

	return newCommand(args, CommandOptions{
		Name:       "piper",
		Input:      InputText,
		Output:     OutputRaw,
		Encoding:   EncodingPCM16LE,
		SampleRate: opts.SampleRate,
		Channels:   1,
		Args:       piperArgs,
	})
}

// piperArgs maps speed to length scale: 0.5 is half speed (scale 2.0),
// 2.0 is double speed (scale 0.5).
func piperArgs(voice Voice) []string {
	speed := voice.Speed
	if speed <= 0 {
		speed = 1
	}
	return []string{"--length-scale", strconv.FormatFloat(1/speed, 'f', 2, 64)}
}
