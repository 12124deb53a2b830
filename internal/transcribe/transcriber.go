// Package transcribe provides speech-to-text for analysis clips.
//
// The engine is whisper.cpp via its Go bindings. Model size tiers map onto
// ggml model files in the models directory (see ModelFile).
package transcribe

import (
	"fmt"
	"log/slog"
	"path/filepath"
)

// SampleRate is the sample rate every Transcriber expects.
const SampleRate = 16000

// Transcriber converts audio samples to text.
type Transcriber interface {
	// Process transcribes mono 16kHz float32 audio samples to text.
	Process(samples []float32) (string, error)
	// Close releases backend resources.
	Close() error
}

// Sizes lists the supported whisper size tiers.
var Sizes = []string{"tiny", "base", "small", "medium", "large"}

// ModelFile returns the ggml file name for a whisper size tier.
func ModelFile(size string) (string, error) {
	switch size {
	case "tiny", "base", "small", "medium":
		return "ggml-" + size + ".bin", nil
	case "large":
		return "ggml-large-v3.bin", nil
	default:
		return "", fmt.Errorf("transcribe: unknown whisper size %q (supported: tiny, base, small, medium, large)", size)
	}
}

// New loads the whisper model for size from modelsDir.
func New(modelsDir, size string) (Transcriber, error) {
	name, err := ModelFile(size)
	if err != nil {
		return nil, err
	}
	return NewWhisperTranscriber(filepath.Join(modelsDir, name))
}

// Safe transcribes samples and returns "" when t is nil or transcription
// fails. Both cases are logged as warnings, never returned.
func Safe(t Transcriber, samples []float32, log *slog.Logger) string {
	if log == nil {
		log = slog.Default()
	}
	if t == nil {
		log.Warn("transcription skipped, no engine loaded")
		return ""
	}
	text, err := safeProcess(t, samples)
	if err != nil {
		log.Warn("transcription failed", "error", err)
		return ""
	}
	return text
}

func safeProcess(t Transcriber, samples []float32) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("transcribe: panic: %v", r)
		}
	}()
	return t.Process(samples)
}
