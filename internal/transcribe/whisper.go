package transcribe

import (
	"fmt"
	"io"
	"strings"
	"sync"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// WhisperTranscriber wraps a whisper.cpp model for speech-to-text.
// Process calls are serialized.
type WhisperTranscriber struct {
	mu    sync.Mutex
	model whisper.Model
}

// NewWhisperTranscriber loads a whisper model from the given path.
// The caller must call Close() when done.
func NewWhisperTranscriber(modelPath string) (*WhisperTranscriber, error) {
	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("transcribe: load whisper model %q: %w", modelPath, err)
	}
	return &WhisperTranscriber{model: model}, nil
}

// Close releases the whisper model resources.
func (t *WhisperTranscriber) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.model != nil {
		err := t.model.Close()
		t.model = nil
		return err
	}
	return nil
}

// Process transcribes mono 16kHz float32 audio samples to text. The spoken
// language is detected automatically when the model is multilingual.
func (t *WhisperTranscriber) Process(samples []float32) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.model == nil {
		return "", fmt.Errorf("transcribe: model closed")
	}

	ctx, err := t.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("transcribe: create context: %w", err)
	}
	if t.model.IsMultilingual() {
		if err := ctx.SetLanguage("auto"); err != nil {
			return "", fmt.Errorf("transcribe: set language: %w", err)
		}
	}

	if err := ctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("transcribe: process: %w", err)
	}

	var segments []string
	for {
		seg, err := ctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("transcribe: next segment: %w", err)
		}
		segments = append(segments, seg.Text)
	}

	return strings.TrimSpace(strings.Join(segments, " ")), nil
}
