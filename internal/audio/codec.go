// Package audio turns audio files into canonical mono PCM: float32 samples
// at a fixed sample rate, optionally peak-normalized and with silence removed.
package audio

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
)

// Samples is canonical mono PCM in the range [-1, 1].
type Samples []float32

// Duration returns the length of s in seconds at the given sample rate.
func (s Samples) Duration(sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(len(s)) / float64(sampleRate)
}

// DecodeError reports an audio file that could not be read, transcoded or
// decoded into canonical PCM.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("audio: decode %q: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Options configures a Codec.
type Options struct {
	SampleRate    int
	Normalize     bool
	RemoveSilence bool
	// SilenceThresholdDB must be positive when RemoveSilence is set.
	SilenceThresholdDB float64
	FFmpegPath         string
	Logger             *slog.Logger
}

// Codec loads audio files into canonical PCM. A Codec holds no mutable
// state and is safe for concurrent use.
type Codec struct {
	opts Options
	log  *slog.Logger
}

// NewCodec creates a Codec. A zero SampleRate defaults to 16 kHz and an empty
// FFmpegPath to "ffmpeg" on PATH.
func NewCodec(opts Options) *Codec {
	if opts.SampleRate <= 0 {
		opts.SampleRate = 16000
	}
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = "ffmpeg"
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Codec{opts: opts, log: log}
}

// SampleRate returns the canonical sample rate produced by Load.
func (c *Codec) SampleRate() int {
	return c.opts.SampleRate
}

// Load reads the audio file at path and returns canonical PCM. Files that
// are not WAV are transcoded with ffmpeg into a temporary WAV first; the
// temporary file is removed before Load returns.
func (c *Codec) Load(path string) (Samples, error) {
	if c.opts.RemoveSilence && c.opts.SilenceThresholdDB <= 0 {
		return nil, fmt.Errorf("audio: silence threshold must be > 0, got %v", c.opts.SilenceThresholdDB)
	}
	src := path
	if !isWAV(path) {
		tmp, cleanup, err := transcodeToWAV(c.opts.FFmpegPath, path)
		if err != nil {
			return nil, &DecodeError{Path: path, Err: err}
		}
		defer cleanup()
		src = tmp
	}

	pcm, rate, err := decodeWAVFile(src)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}

	if rate != c.opts.SampleRate {
		pcm, err = resample(pcm, rate, c.opts.SampleRate)
		if err != nil {
			return nil, &DecodeError{Path: path, Err: err}
		}
	}

	if c.opts.Normalize {
		normalizePeak(pcm)
	}

	if c.opts.RemoveSilence {
		before := len(pcm)
		pcm = removeSilence(pcm, c.opts.SilenceThresholdDB)
		c.log.Debug("removed silence", "path", path, "before", before, "after", len(pcm))
	}

	if len(pcm) == 0 {
		return nil, &DecodeError{Path: path, Err: fmt.Errorf("no audio samples")}
	}

	c.log.Debug("audio loaded",
		"path", path,
		"samples", len(pcm),
		"seconds", Samples(pcm).Duration(c.opts.SampleRate),
		"sourceRate", rate,
	)
	return pcm, nil
}

// isWAV reports whether path already has the canonical container extension.
func isWAV(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".wav")
}
