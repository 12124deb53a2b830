package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Known analysis model names.
const (
	ModelCoughClassifier   = "cough_classifier"
	ModelBreathingAnalyzer = "breathing_analyzer"
	ModelVoiceAnalyzer     = "voice_analyzer"
	ModelEmotionDetector   = "emotion_detector"
)

// Config holds all analysis configuration.
type Config struct {
	SampleRate         int     `yaml:"sample_rate"`
	UseGPU             bool    `yaml:"use_gpu"`
	WhisperModelSize   string  `yaml:"whisper_model_size"`
	Normalize          bool    `yaml:"normalize"`
	RemoveSilence      bool    `yaml:"remove_silence"`
	SilenceThresholdDB float64 `yaml:"silence_threshold_db"`

	ExtractMFCC             bool `yaml:"extract_mfcc"`
	NMFCC                   int  `yaml:"n_mfcc"`
	ExtractSpectralCentroid bool `yaml:"extract_spectral_centroid"`
	ExtractChroma           bool `yaml:"extract_chroma"`
	ExtractTempo            bool `yaml:"extract_tempo"`

	Transcribe bool `yaml:"transcribe"`

	Models map[string]ModelConfig `yaml:"models"`

	ModelsDir  string `yaml:"models_dir"`  // whisper ggml files
	FFmpegPath string `yaml:"ffmpeg_path"` // used for non-WAV input
	Workers    int    `yaml:"workers"`     // concurrent model inferences
	LogLevel   string `yaml:"log_level"`
}

// ModelConfig describes one analysis model to load.
type ModelConfig struct {
	ModelPath string `yaml:"model_path"`

	// Black-box classifier settings (emotion_detector only).
	Endpoint       string `yaml:"endpoint"`
	Model          string `yaml:"model"`
	APIToken       string `yaml:"api_token"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "healthaudio")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// DefaultModelsDir returns the directory whisper models are downloaded to.
func DefaultModelsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "models"
	}
	return filepath.Join(home, ".local", "share", "healthaudio", "models")
}

// Default returns a Config with sensible default values. No analysis models
// are configured by default.
func Default() *Config {
	return &Config{
		SampleRate:              16000,
		UseGPU:                  true,
		WhisperModelSize:        "base",
		Normalize:               true,
		RemoveSilence:           false,
		SilenceThresholdDB:      30,
		ExtractMFCC:             true,
		NMFCC:                   13,
		ExtractSpectralCentroid: true,
		ExtractChroma:           true,
		ExtractTempo:            true,
		Transcribe:              true,
		Models:                  map[string]ModelConfig{},
		ModelsDir:               DefaultModelsDir(),
		FFmpegPath:              "ffmpeg",
		Workers:                 4,
		LogLevel:                "info",
	}
}

// DefaultModelPath returns the weights path used for a structural model
// whose model_path is left empty.
func DefaultModelPath(name string) string {
	return filepath.Join("models", "audio_models", name+".msgpack")
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in paths is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.ModelsDir = expandTilde(cfg.ModelsDir)
	for name, mc := range cfg.Models {
		mc.ModelPath = expandTilde(mc.ModelPath)
		cfg.Models[name] = mc
	}

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be > 0")
	}

	switch c.WhisperModelSize {
	case "tiny", "base", "small", "medium", "large":
	default:
		return fmt.Errorf("whisper_model_size must be tiny, base, small, medium, or large, got %q", c.WhisperModelSize)
	}

	if c.SilenceThresholdDB <= 0 {
		return fmt.Errorf("silence_threshold_db must be > 0")
	}

	if c.ExtractMFCC && c.NMFCC <= 0 {
		return fmt.Errorf("n_mfcc must be > 0 when extract_mfcc is enabled")
	}

	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// Clone returns a deep copy of the config.
func (c *Config) Clone() *Config {
	out := *c
	out.Models = make(map[string]ModelConfig, len(c.Models))
	for name, mc := range c.Models {
		out.Models[name] = mc
	}
	return &out
}

// ModelNames returns the configured model names in sorted order.
func (c *Config) ModelNames() []string {
	names := make([]string, 0, len(c.Models))
	for name := range c.Models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseLogLevel maps a log_level string to a slog.Level, defaulting to info.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

const defaultHeader = `# healthaudio configuration
#
# models maps an analysis model name to its settings. Known names:
#   cough_classifier, breathing_analyzer, voice_analyzer: model_path
#   emotion_detector: endpoint, model, api_token, timeout_seconds
`

// WriteDefault writes the default config to DefaultConfigPath. It returns
// ("", nil) without touching anything if a config file already exists.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}

	if err := os.WriteFile(path, append([]byte(defaultHeader), data...), 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
