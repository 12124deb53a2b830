// Package dispatch runs every loaded model on one preprocessed clip and
// normalizes the raw outputs into per-model prediction records.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chaz8081/healthaudio/internal/emotion"
	"github.com/chaz8081/healthaudio/internal/nn"
	"github.com/chaz8081/healthaudio/internal/registry"
	"golang.org/x/sync/errgroup"
)

// Prediction is a normalized model output. The concrete type is selected by
// the model's registry.Kind.
type Prediction interface {
	kind() registry.Kind
}

// ClassifierPrediction is the output of a fixed-window classifier.
type ClassifierPrediction struct {
	Prediction    string             `json:"prediction" yaml:"prediction"`
	Confidence    float64            `json:"confidence" yaml:"confidence"`
	Probabilities map[string]float64 `json:"probabilities" yaml:"probabilities"`
}

func (ClassifierPrediction) kind() registry.Kind { return registry.FixedWindowClassifier }

// VoiceScores is the output of the voice sequence regressor.
type VoiceScores struct {
	Tremor     float64 `json:"tremor" yaml:"tremor"`
	Hoarseness float64 `json:"hoarseness" yaml:"hoarseness"`
	Clarity    float64 `json:"clarity" yaml:"clarity"`
}

func (VoiceScores) kind() registry.Kind { return registry.SequenceRegressor }

// EmotionPrediction is the external classifier's output, unchanged.
type EmotionPrediction []emotion.Score

func (EmotionPrediction) kind() registry.Kind { return registry.ExternalBlackBox }

// InferenceError reports a failed model invocation.
type InferenceError struct {
	Model string
	Err   error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("dispatch: %s: %v", e.Model, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// Result holds the predictions of the models that succeeded and the error
// messages of those that failed. A model appears in at most one map.
type Result struct {
	Predictions map[string]Prediction
	Errors      map[string]string
}

// Dispatcher runs models concurrently with a bounded number of workers.
type Dispatcher struct {
	workers int
	log     *slog.Logger
}

// New returns a Dispatcher. workers <= 0 runs every model at once.
func New(workers int, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{workers: workers, log: log}
}

// Run invokes every model in reg. Local networks receive samples framed to
// their window; the external classifier receives path. A failing or
// panicking model never affects the others.
func (d *Dispatcher) Run(ctx context.Context, reg *registry.Registry, samples []float32, path string) Result {
	res := Result{
		Predictions: make(map[string]Prediction),
		Errors:      make(map[string]string),
	}

	var mu sync.Mutex
	var g errgroup.Group
	if d.workers > 0 {
		g.SetLimit(d.workers)
	}

	for _, e := range reg.Entries() {
		g.Go(func() error {
			start := time.Now()
			p, err := d.invoke(ctx, e, samples, path)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				d.log.Warn("inference failed", "model", e.Name, "error", err)
				res.Errors[e.Name] = err.Error()
				return nil
			}
			res.Predictions[e.Name] = p
			d.log.Debug("inference done", "model", e.Name, "elapsed", time.Since(start))
			return nil
		})
	}
	_ = g.Wait()
	return res
}

// invoke runs one model, converting panics into an InferenceError.
func (d *Dispatcher) invoke(ctx context.Context, e *registry.Entry, samples []float32, path string) (p Prediction, err error) {
	defer func() {
		if r := recover(); r != nil {
			p, err = nil, &InferenceError{Model: e.Name, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	switch e.Kind {
	case registry.ExternalBlackBox:
		if e.Classifier == nil {
			return nil, &InferenceError{Model: e.Name, Err: fmt.Errorf("no classifier")}
		}
		scores, err := e.Classifier.Classify(ctx, path)
		if err != nil {
			return nil, &InferenceError{Model: e.Name, Err: err}
		}
		return EmotionPrediction(scores), nil

	case registry.FixedWindowClassifier:
		out, err := forward(e, samples)
		if err != nil {
			return nil, err
		}
		return decodeClassifier(out, e.Labels), nil

	case registry.SequenceRegressor:
		out, err := forward(e, samples)
		if err != nil {
			return nil, err
		}
		return VoiceScores{Tremor: out[0], Hoarseness: out[1], Clarity: out[2]}, nil

	default:
		return nil, &InferenceError{Model: e.Name, Err: fmt.Errorf("unsupported kind %v", e.Kind)}
	}
}

// forward frames samples to the entry's window and checks that the network
// produced one value per label.
func forward(e *registry.Entry, samples []float32) ([]float64, error) {
	if e.Net == nil {
		return nil, &InferenceError{Model: e.Name, Err: fmt.Errorf("no network")}
	}
	out, err := e.Net.Forward(Frame(samples, e.InputLength))
	if err != nil {
		return nil, &InferenceError{Model: e.Name, Err: err}
	}
	if len(out) != len(e.Labels) {
		return nil, &InferenceError{Model: e.Name, Err: fmt.Errorf("got %d outputs, want %d", len(out), len(e.Labels))}
	}
	return out, nil
}

// Frame returns exactly n samples: the first n of samples, zero-padded at the
// end when samples is shorter.
func Frame(samples []float32, n int) []float64 {
	x := make([]float64, n)
	for i := 0; i < n && i < len(samples); i++ {
		x[i] = float64(samples[i])
	}
	return x
}

// decodeClassifier applies softmax, keys the probabilities by label and picks
// the first label holding the maximum probability.
func decodeClassifier(logits []float64, labels []string) ClassifierPrediction {
	probs := nn.Softmax(logits)
	best := 0
	byLabel := make(map[string]float64, len(labels))
	for i, p := range probs {
		if p > probs[best] {
			best = i
		}
		byLabel[labels[i]] = p
	}
	return ClassifierPrediction{
		Prediction:    labels[best],
		Confidence:    probs[best],
		Probabilities: byLabel,
	}
}
