package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", cfg.SampleRate)
	}
	if cfg.WhisperModelSize != "base" {
		t.Errorf("WhisperModelSize = %q, want %q", cfg.WhisperModelSize, "base")
	}
	if !cfg.Normalize {
		t.Error("Normalize should default to true")
	}
	if cfg.RemoveSilence {
		t.Error("RemoveSilence should default to false")
	}
	if cfg.SilenceThresholdDB != 30 {
		t.Errorf("SilenceThresholdDB = %v, want 30", cfg.SilenceThresholdDB)
	}
	if cfg.NMFCC != 13 {
		t.Errorf("NMFCC = %d, want 13", cfg.NMFCC)
	}
	if !cfg.ExtractMFCC || !cfg.ExtractSpectralCentroid || !cfg.ExtractChroma || !cfg.ExtractTempo {
		t.Error("all feature extractors should default to enabled")
	}
	if !cfg.Transcribe {
		t.Error("Transcribe should default to true")
	}
	if len(cfg.Models) != 0 {
		t.Errorf("Models = %v, want empty", cfg.Models)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
}

func TestLoad(t *testing.T) {
	yamlContent := `
sample_rate: 22050
use_gpu: false
whisper_model_size: small
normalize: false
remove_silence: true
silence_threshold_db: 40
extract_mfcc: true
n_mfcc: 20
extract_spectral_centroid: false
extract_chroma: false
extract_tempo: false
transcribe: false
models:
  cough_classifier:
    model_path: /opt/models/cough.msgpack
  emotion_detector:
    endpoint: http://localhost:8080/classify
    timeout_seconds: 5
log_level: debug
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.SampleRate != 22050 {
		t.Errorf("SampleRate = %d, want 22050", cfg.SampleRate)
	}
	if cfg.UseGPU {
		t.Error("UseGPU = true, want false")
	}
	if cfg.WhisperModelSize != "small" {
		t.Errorf("WhisperModelSize = %q, want %q", cfg.WhisperModelSize, "small")
	}
	if !cfg.RemoveSilence || cfg.SilenceThresholdDB != 40 {
		t.Errorf("silence settings = (%v, %v), want (true, 40)", cfg.RemoveSilence, cfg.SilenceThresholdDB)
	}
	if cfg.NMFCC != 20 {
		t.Errorf("NMFCC = %d, want 20", cfg.NMFCC)
	}
	if cfg.ExtractChroma || cfg.ExtractTempo || cfg.ExtractSpectralCentroid {
		t.Error("disabled extractors should stay disabled")
	}
	if cfg.Transcribe {
		t.Error("Transcribe = true, want false")
	}
	if got := cfg.Models[ModelCoughClassifier].ModelPath; got != "/opt/models/cough.msgpack" {
		t.Errorf("cough model_path = %q", got)
	}
	emo := cfg.Models[ModelEmotionDetector]
	if emo.Endpoint != "http://localhost:8080/classify" || emo.TimeoutSeconds != 5 {
		t.Errorf("emotion config = %+v", emo)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
	// Fields absent from the file keep their defaults.
	if cfg.FFmpegPath != "ffmpeg" {
		t.Errorf("FFmpegPath = %q, want default", cfg.FFmpegPath)
	}
}

func TestLoadExpandsTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("cannot determine home directory")
	}

	yamlContent := `
models_dir: ~/whisper
models:
  voice_analyzer:
    model_path: ~/models/voice.msgpack
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if want := filepath.Join(home, "whisper"); cfg.ModelsDir != want {
		t.Errorf("ModelsDir = %q, want %q", cfg.ModelsDir, want)
	}
	if want := filepath.Join(home, "models/voice.msgpack"); cfg.Models[ModelVoiceAnalyzer].ModelPath != want {
		t.Errorf("ModelPath = %q, want %q", cfg.Models[ModelVoiceAnalyzer].ModelPath, want)
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Load() should return error for nonexistent file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("sample_rate: [not a number"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(cfgPath); err == nil {
		t.Error("Load() should fail on malformed YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "zero sample rate",
			modify:  func(c *Config) { c.SampleRate = 0 },
			wantErr: true,
		},
		{
			name:    "unknown whisper size",
			modify:  func(c *Config) { c.WhisperModelSize = "huge" },
			wantErr: true,
		},
		{
			name:    "non-positive silence threshold",
			modify:  func(c *Config) { c.SilenceThresholdDB = 0 },
			wantErr: true,
		},
		{
			name:    "mfcc enabled with zero coefficients",
			modify:  func(c *Config) { c.NMFCC = 0 },
			wantErr: true,
		},
		{
			name:    "mfcc disabled with zero coefficients",
			modify:  func(c *Config) { c.ExtractMFCC = false; c.NMFCC = 0 },
			wantErr: false,
		},
		{
			name:    "negative workers",
			modify:  func(c *Config) { c.Workers = -1 },
			wantErr: true,
		},
		{
			name:    "invalid log level",
			modify:  func(c *Config) { c.LogLevel = "invalid" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCloneIsIndependent(t *testing.T) {
	cfg := Default()
	cfg.Models[ModelCoughClassifier] = ModelConfig{ModelPath: "a"}

	clone := cfg.Clone()
	cfg.Models[ModelCoughClassifier] = ModelConfig{ModelPath: "b"}
	cfg.Models[ModelVoiceAnalyzer] = ModelConfig{}
	cfg.SampleRate = 8000

	if clone.Models[ModelCoughClassifier].ModelPath != "a" {
		t.Errorf("clone model path changed to %q", clone.Models[ModelCoughClassifier].ModelPath)
	}
	if _, ok := clone.Models[ModelVoiceAnalyzer]; ok {
		t.Error("clone picked up a model added after cloning")
	}
	if clone.SampleRate != 16000 {
		t.Errorf("clone SampleRate = %d, want 16000", clone.SampleRate)
	}
}

func TestModelNamesSorted(t *testing.T) {
	cfg := Default()
	cfg.Models[ModelVoiceAnalyzer] = ModelConfig{}
	cfg.Models[ModelBreathingAnalyzer] = ModelConfig{}
	cfg.Models[ModelCoughClassifier] = ModelConfig{}

	got := strings.Join(cfg.ModelNames(), ",")
	want := "breathing_analyzer,cough_classifier,voice_analyzer"
	if got != want {
		t.Errorf("ModelNames() = %q, want %q", got, want)
	}
}

func TestWriteDefault_CreatesFile(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	expectedPath := filepath.Join(tmpHome, ".config", "healthaudio", "config.yaml")
	if path != expectedPath {
		t.Errorf("WriteDefault() path = %q, want %q", path, expectedPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read written config: %v", err)
	}

	if !strings.HasPrefix(string(data), "# healthaudio") {
		t.Error("written config should start with header comment")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("written config is not valid YAML: %v", err)
	}
	if cfg.SampleRate != 16000 {
		t.Errorf("written config SampleRate = %d, want 16000", cfg.SampleRate)
	}
	if cfg.WhisperModelSize != "base" {
		t.Errorf("written config WhisperModelSize = %q, want %q", cfg.WhisperModelSize, "base")
	}
}

func TestWriteDefault_NoOpIfExists(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	configDir := filepath.Join(tmpHome, ".config", "healthaudio")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	existingContent := []byte("sample_rate: 8000\n")
	configPath := filepath.Join(configDir, "config.yaml")
	if err := os.WriteFile(configPath, existingContent, 0644); err != nil {
		t.Fatalf("failed to write existing config: %v", err)
	}

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	if path != "" {
		t.Errorf("WriteDefault() path = %q, want empty string for existing file", path)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read config: %v", err)
	}
	if string(data) != string(existingContent) {
		t.Error("WriteDefault() should not overwrite existing config file")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
