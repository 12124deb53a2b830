// Package analysis turns one audio file into a multi-model health report.
//
// An Analyzer decodes the clip to canonical PCM, extracts acoustic features,
// optionally transcribes it, and dispatches it to every loaded model. Only a
// decode failure aborts the analysis; every later stage degrades per model.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/chaz8081/healthaudio/internal/audio"
	"github.com/chaz8081/healthaudio/internal/config"
	"github.com/chaz8081/healthaudio/internal/dispatch"
	"github.com/chaz8081/healthaudio/internal/features"
	"github.com/chaz8081/healthaudio/internal/registry"
	"github.com/chaz8081/healthaudio/internal/transcribe"
)

// Option customizes an Analyzer.
type Option func(*options)

type options struct {
	log            *slog.Logger
	transcriber    transcribe.Transcriber
	hasTranscriber bool
	emotionFactory registry.EmotionFactory
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithTranscriber replaces the whisper engine. A nil t disables
// transcription output (the transcript is empty).
func WithTranscriber(t transcribe.Transcriber) Option {
	return func(o *options) {
		o.transcriber = t
		o.hasTranscriber = true
	}
}

// WithEmotionFactory replaces how the emotion classifier is built.
func WithEmotionFactory(f registry.EmotionFactory) Option {
	return func(o *options) { o.emotionFactory = f }
}

// Analyzer runs the analysis pipeline. It is safe for concurrent use.
type Analyzer struct {
	cfg         *config.Config
	log         *slog.Logger
	device      string
	codec       *audio.Codec
	extractor   *features.Extractor
	transcriber transcribe.Transcriber
	ownsEngine  bool
	registry    *registry.Registry
	dispatcher  *dispatch.Dispatcher
}

// New validates cfg and builds an Analyzer. The configuration is copied.
// Model and transcriber failures are logged and degrade the analyzer; only
// an invalid configuration returns an error.
func New(cfg *config.Config, opts ...Option) (*Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("analysis: %w", err)
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = slog.Default()
	}

	cfg = cfg.Clone()
	a := &Analyzer{
		cfg:    cfg,
		log:    o.log,
		device: resolveDevice(cfg.UseGPU, o.log),
		codec: audio.NewCodec(audio.Options{
			SampleRate:         cfg.SampleRate,
			Normalize:          cfg.Normalize,
			RemoveSilence:      cfg.RemoveSilence,
			SilenceThresholdDB: cfg.SilenceThresholdDB,
			FFmpegPath:         cfg.FFmpegPath,
			Logger:             o.log,
		}),
		extractor: features.New(features.Config{
			SampleRate:       cfg.SampleRate,
			MFCC:             cfg.ExtractMFCC,
			NMFCC:            cfg.NMFCC,
			SpectralCentroid: cfg.ExtractSpectralCentroid,
			Chroma:           cfg.ExtractChroma,
			Tempo:            cfg.ExtractTempo,
		}, o.log),
		dispatcher: dispatch.New(cfg.Workers, o.log),
	}

	switch {
	case o.hasTranscriber:
		a.transcriber = o.transcriber
	case cfg.Transcribe:
		t, err := transcribe.New(cfg.ModelsDir, cfg.WhisperModelSize)
		if err != nil {
			o.log.Warn("whisper unavailable, transcripts will be empty", "size", cfg.WhisperModelSize, "error", err)
		} else {
			a.transcriber = t
			a.ownsEngine = true
		}
	}

	a.registry = registry.Load(cfg.Models, registry.Options{
		Logger:         o.log,
		EmotionFactory: o.emotionFactory,
	})

	o.log.Info("analyzer ready",
		"device", a.device,
		"whisper", cfg.WhisperModelSize,
		"transcribe", cfg.Transcribe,
		"configured", cfg.ModelNames(),
		"models", a.registry.Names(),
	)
	return a, nil
}

// resolveDevice picks the compute device for the structural networks. They
// run in-process on the CPU; use_gpu only affects the whisper build.
func resolveDevice(useGPU bool, log *slog.Logger) string {
	if useGPU {
		log.Debug("gpu requested, structural models run on cpu")
	}
	return "cpu"
}

// Device returns the resolved compute device.
func (a *Analyzer) Device() string { return a.device }

// Models returns the names of the loaded models in load order.
func (a *Analyzer) Models() []string { return a.registry.Names() }

// Close releases the whisper engine if the Analyzer created it.
func (a *Analyzer) Close() error {
	if a.ownsEngine && a.transcriber != nil {
		return a.transcriber.Close()
	}
	return nil
}

// Analyze analyzes the audio file at path.
func (a *Analyzer) Analyze(path string) Report {
	return a.AnalyzeContext(context.Background(), path)
}

// AnalyzeContext analyzes the audio file at path. ctx bounds calls to the
// external classifier. It never panics and never returns an error: failures
// are reported in the Report.
func (a *Analyzer) AnalyzeContext(ctx context.Context, path string) (rep Report) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("analysis panicked", "path", path, "panic", r, "stack", string(debug.Stack()))
			rep = Report{Error: fmt.Sprintf("analysis: %v", r)}
		}
	}()

	samples, err := a.codec.Load(path)
	if err != nil {
		a.log.Error("decode failed", "path", path, "error", err)
		return Report{Error: err.Error()}
	}

	rep.Features = a.extractor.Extract(samples)

	if a.cfg.Transcribe {
		text := a.transcribe(samples)
		rep.Transcript = &text
	}

	res := a.dispatcher.Run(ctx, a.registry, samples, path)
	rep.Predictions = res.Predictions
	if len(res.Errors) > 0 {
		rep.ModelErrors = res.Errors
	}

	a.log.Info("analysis complete",
		"path", path,
		"duration", fmt.Sprintf("%.2fs", samples.Duration(a.codec.SampleRate())),
		"features", rep.Features.Len(),
		"predictions", len(rep.Predictions),
		"model_errors", len(rep.ModelErrors),
		"elapsed", time.Since(start),
	)
	return rep
}

// transcribe runs the transcriber on samples resampled to its rate.
func (a *Analyzer) transcribe(samples audio.Samples) string {
	pcm := []float32(samples)
	if rate := a.codec.SampleRate(); rate != transcribe.SampleRate {
		var err error
		pcm, err = audio.Resample(pcm, rate, transcribe.SampleRate)
		if err != nil {
			a.log.Warn("transcription skipped", "error", err)
			return ""
		}
	}
	return transcribe.Safe(a.transcriber, pcm, a.log)
}
