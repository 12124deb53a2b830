package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/chaz8081/healthaudio/internal/audio"
	"github.com/chaz8081/healthaudio/internal/config"
	"github.com/chaz8081/healthaudio/internal/dispatch"
	"github.com/chaz8081/healthaudio/internal/emotion"
	"gopkg.in/yaml.v3"
)

type fakeTranscriber struct {
	text string
	err  error
	seen int
}

func (f *fakeTranscriber) Process(samples []float32) (string, error) {
	f.seen = len(samples)
	return f.text, f.err
}

func (f *fakeTranscriber) Close() error { return nil }

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type fakeClassifier struct {
	err error
}

func (f *fakeClassifier) Classify(context.Context, string) ([]emotion.Score, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []emotion.Score{{Label: "neutral", Score: 0.8}, {Label: "sad", Score: 0.2}}, nil
}

func writeClip(t *testing.T) string {
	t.Helper()
	pcm := make([]float32, 24000)
	for i := range pcm {
		pcm[i] = float32(0.4 * math.Sin(2*math.Pi*300*float64(i)/16000))
	}
	path := filepath.Join(t.TempDir(), "clip.wav")
	if err := audio.WriteWAV(path, pcm, 16000); err != nil {
		t.Fatalf("WriteWAV: %v", err)
	}
	return path
}

func TestAnalyzeDefaultConfig(t *testing.T) {
	a, err := New(config.Default(), WithTranscriber(&fakeTranscriber{text: "hello"}))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	rep := a.Analyze(writeClip(t))

	if rep.Failed() {
		t.Fatalf("report error: %s", rep.Error)
	}
	if len(rep.Features.MFCC) != 13 {
		t.Errorf("len(mfcc) = %d, want 13", len(rep.Features.MFCC))
	}
	if rep.Features.SpectralCentroid == nil || rep.Features.ChromaEnergy == nil {
		t.Errorf("features = %+v, want centroid and chroma", rep.Features)
	}
	if rep.Transcript == nil || *rep.Transcript != "hello" {
		t.Errorf("transcript = %v, want hello", rep.Transcript)
	}
	if len(rep.Predictions) != 0 {
		t.Errorf("predictions = %v, want none without models", rep.Predictions)
	}
	if a.Device() != "cpu" {
		t.Errorf("Device() = %q, want cpu", a.Device())
	}
}

func TestAnalyzeUntrainedCoughModel(t *testing.T) {
	cfg := config.Default()
	cfg.Transcribe = false
	cfg.Models = map[string]config.ModelConfig{
		config.ModelCoughClassifier: {ModelPath: filepath.Join(t.TempDir(), "missing.msgpack")},
	}
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	rep := a.Analyze(writeClip(t))

	p, ok := rep.Predictions[config.ModelCoughClassifier].(dispatch.ClassifierPrediction)
	if !ok {
		t.Fatalf("cough prediction missing: %+v", rep)
	}
	valid := map[string]bool{"normal": true, "covid": true, "pneumonia": true, "bronchitis": true}
	if !valid[p.Prediction] {
		t.Errorf("prediction = %q, not a cough label", p.Prediction)
	}
	if len(p.Probabilities) != len(valid) {
		t.Errorf("probabilities = %v, want exactly the cough labels", p.Probabilities)
	}
	for label := range p.Probabilities {
		if !valid[label] {
			t.Errorf("probabilities has unexpected key %q", label)
		}
	}
	if p.Confidence != p.Probabilities[p.Prediction] {
		t.Errorf("confidence = %v, want probability of %q", p.Confidence, p.Prediction)
	}

	data, err := json.Marshal(rep)
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}
	var decoded struct {
		Cough struct {
			Probabilities map[string]float64 `json:"probabilities"`
		} `json:"cough_classifier"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("json.Unmarshal: %v (%s)", err, data)
	}
	if len(decoded.Cough.Probabilities) != len(valid) {
		t.Errorf("JSON probabilities = %v, want label-keyed object", decoded.Cough.Probabilities)
	}
	sum := 0.0
	for _, v := range p.Probabilities {
		sum += v
	}
	if math.Abs(sum-1) > 1e-5 {
		t.Errorf("probabilities sum = %v", sum)
	}
	if rep.Transcript != nil {
		t.Error("transcript present with transcription disabled")
	}
}

func TestAnalyzeMFCCOnly(t *testing.T) {
	cfg := config.Default()
	cfg.Transcribe = false
	cfg.ExtractSpectralCentroid = false
	cfg.ExtractChroma = false
	cfg.ExtractTempo = false
	cfg.Models = map[string]config.ModelConfig{}
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	data, err := json.Marshal(a.Analyze(writeClip(t)))
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("json.Unmarshal: %v", err)
	}
	if got := keys(decoded); !reflect.DeepEqual(got, []string{"features"}) {
		t.Fatalf("report keys = %v, want [features]: %s", got, data)
	}
	feats, ok := decoded["features"].(map[string]any)
	if !ok {
		t.Fatalf("features = %T, want object", decoded["features"])
	}
	if got := keys(feats); !reflect.DeepEqual(got, []string{"mfcc"}) {
		t.Fatalf("feature keys = %v, want [mfcc]", got)
	}
	if mfcc, _ := feats["mfcc"].([]any); len(mfcc) != 13 {
		t.Errorf("len(mfcc) = %d, want 13", len(mfcc))
	}
}

func TestAnalyzeTranscribesAt16kHz(t *testing.T) {
	cfg := config.Default()
	cfg.SampleRate = 8000
	tr := &fakeTranscriber{text: "ok"}
	a, err := New(cfg, WithTranscriber(tr))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	rep := a.Analyze(writeClip(t))
	if rep.Failed() {
		t.Fatalf("report error: %s", rep.Error)
	}
	// 1.5s clip, decoded at 8 kHz and handed to the transcriber at 16 kHz.
	if tr.seen != 24000 {
		t.Errorf("transcriber got %d samples, want 24000", tr.seen)
	}
}

func TestAnalyzeMissingFile(t *testing.T) {
	a, err := New(config.Default(), WithTranscriber(&fakeTranscriber{text: "x"}))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	rep := a.Analyze("/nonexistent/clip.wav")
	if !rep.Failed() {
		t.Fatal("expected report error for missing file")
	}

	fields := rep.Fields()
	if len(fields) != 1 {
		t.Errorf("fields = %v, want only error", fields)
	}
	if _, ok := fields["error"]; !ok {
		t.Error("error key missing")
	}
}

func TestAnalyzeTranscriptionFailureIsEmpty(t *testing.T) {
	tr := &fakeTranscriber{err: errors.New("engine crashed")}
	a, err := New(config.Default(), WithTranscriber(tr))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	rep := a.Analyze(writeClip(t))
	if rep.Failed() {
		t.Fatalf("report error: %s", rep.Error)
	}
	if rep.Transcript == nil || *rep.Transcript != "" {
		t.Errorf("transcript = %v, want empty string", rep.Transcript)
	}
}

func TestAnalyzeEmotionConstructionFailure(t *testing.T) {
	cfg := config.Default()
	cfg.Transcribe = false
	cfg.Models = map[string]config.ModelConfig{
		config.ModelVoiceAnalyzer:   {ModelPath: filepath.Join(t.TempDir(), "v.msgpack")},
		config.ModelEmotionDetector: {},
	}
	failing := func(config.ModelConfig) (emotion.Classifier, error) {
		return nil, errors.New("network unavailable")
	}
	a, err := New(cfg, WithEmotionFactory(failing))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	rep := a.Analyze(writeClip(t))

	if _, ok := rep.Predictions[config.ModelEmotionDetector]; ok {
		t.Error("emotion_detector present after construction failure")
	}
	if _, ok := rep.Predictions[config.ModelVoiceAnalyzer].(dispatch.VoiceScores); !ok {
		t.Errorf("voice_analyzer missing: %+v", rep.Predictions)
	}
}

func TestAnalyzeEmotionInferenceFailure(t *testing.T) {
	cfg := config.Default()
	cfg.Transcribe = false
	cfg.Models = map[string]config.ModelConfig{config.ModelEmotionDetector: {}}
	factory := func(config.ModelConfig) (emotion.Classifier, error) {
		return &fakeClassifier{err: errors.New("503")}, nil
	}
	a, err := New(cfg, WithEmotionFactory(factory))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	rep := a.Analyze(writeClip(t))

	if _, ok := rep.Predictions[config.ModelEmotionDetector]; ok {
		t.Error("emotion_detector prediction present after failure")
	}
	if rep.ModelErrors[config.ModelEmotionDetector] == "" {
		t.Errorf("model_errors = %v, want emotion_detector entry", rep.ModelErrors)
	}
	if rep.Failed() {
		t.Errorf("report error = %q, want none", rep.Error)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.WhisperModelSize = "colossal"
	if _, err := New(cfg); err == nil {
		t.Fatal("New() expected error for invalid whisper size")
	}
}

func TestNewLogsConfiguredModels(t *testing.T) {
	cfg := config.Default()
	cfg.Transcribe = false
	cfg.Models = map[string]config.ModelConfig{
		config.ModelCoughClassifier: {ModelPath: filepath.Join(t.TempDir(), "missing.msgpack")},
	}
	var buf bytes.Buffer
	if _, err := New(cfg, WithLogger(slog.New(slog.NewTextHandler(&buf, nil)))); err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if !strings.Contains(buf.String(), "configured=[cough_classifier]") {
		t.Errorf("ready log = %q, want configured models", buf.String())
	}
}

func TestNewCopiesConfig(t *testing.T) {
	cfg := config.Default()
	a, err := New(cfg, WithTranscriber(&fakeTranscriber{text: "kept"}))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	cfg.Transcribe = false

	rep := a.Analyze(writeClip(t))
	if rep.Transcript == nil {
		t.Error("changing the caller's config after New affected the analyzer")
	}
}

func TestReportJSON(t *testing.T) {
	cfg := config.Default()
	cfg.Models = map[string]config.ModelConfig{config.ModelEmotionDetector: {}}
	factory := func(config.ModelConfig) (emotion.Classifier, error) { return &fakeClassifier{}, nil }
	a, err := New(cfg, WithTranscriber(&fakeTranscriber{text: "ok"}), WithEmotionFactory(factory))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	data, err := json.Marshal(a.Analyze(writeClip(t)))
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("json.Unmarshal: %v", err)
	}
	for _, key := range []string{"features", "transcript", "emotion_detector"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("JSON missing %q: %s", key, data)
		}
	}
	for _, key := range []string{"error", "model_errors"} {
		if _, ok := decoded[key]; ok {
			t.Errorf("JSON has unexpected %q: %s", key, data)
		}
	}
	if !strings.Contains(string(decoded["emotion_detector"]), `"label":"neutral"`) {
		t.Errorf("emotion_detector = %s", decoded["emotion_detector"])
	}
}

func TestReportYAML(t *testing.T) {
	out, err := yaml.Marshal(Report{Error: "audio: decode \"x\": boom"})
	if err != nil {
		t.Fatalf("yaml.Marshal: %v", err)
	}
	if !strings.HasPrefix(string(out), "error:") {
		t.Errorf("yaml = %q, want error key only", out)
	}
}
