// Package registry loads the analysis models named in the configuration and
// records the input and output contract of each one.
package registry

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/chaz8081/healthaudio/internal/config"
	"github.com/chaz8081/healthaudio/internal/emotion"
	"github.com/chaz8081/healthaudio/internal/nn"
	"golang.org/x/crypto/blake2b"
)

// Kind tags how a model is invoked and how its output is decoded.
type Kind int

const (
	// FixedWindowClassifier takes an exact-length window and returns class
	// logits over Labels.
	FixedWindowClassifier Kind = iota
	// SequenceRegressor takes the same window and returns one score per
	// entry in Labels.
	SequenceRegressor
	// ExternalBlackBox classifies the source file and its output is passed
	// through unchanged.
	ExternalBlackBox
)

func (k Kind) String() string {
	switch k {
	case FixedWindowClassifier:
		return "fixed-window-classifier"
	case SequenceRegressor:
		return "sequence-regressor"
	case ExternalBlackBox:
		return "external-black-box"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

var (
	CoughLabels     = []string{"normal", "covid", "pneumonia", "bronchitis"}
	BreathingLabels = []string{"normal", "wheezy", "crackle", "stridor", "rhonchi"}
	VoiceScores     = []string{"tremor", "hoarseness", "clarity"}
)

// Network is a local model with a fixed input length.
type Network interface {
	Forward(x []float64) ([]float64, error)
	InputLength() int
}

// Entry is one loaded model. Entries are immutable after Load.
type Entry struct {
	Name string
	Kind Kind

	// Net is set for FixedWindowClassifier and SequenceRegressor.
	Net Network
	// Classifier is set for ExternalBlackBox.
	Classifier emotion.Classifier

	InputLength int
	// Labels are the class labels of a classifier or the positional score
	// names of a regressor.
	Labels []string

	// Trained is false when the weights file was missing or unusable and
	// the network kept its initial parameters.
	Trained       bool
	WeightsPath   string
	WeightsDigest string
}

// LoadError reports why a model could not be constructed.
type LoadError struct {
	Name string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("registry: load %s: %v", e.Name, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// EmotionFactory builds the external classifier from its model config.
type EmotionFactory func(mc config.ModelConfig) (emotion.Classifier, error)

// Options configures Load.
type Options struct {
	Logger         *slog.Logger
	EmotionFactory EmotionFactory
}

// structural describes a locally executed network.
type structural struct {
	kind   Kind
	head   nn.Head
	labels []string
	seed   int64
}

var structuralModels = map[string]structural{
	config.ModelCoughClassifier:   {FixedWindowClassifier, nn.HeadDense, CoughLabels, 1},
	config.ModelBreathingAnalyzer: {FixedWindowClassifier, nn.HeadDense, BreathingLabels, 2},
	config.ModelVoiceAnalyzer:     {SequenceRegressor, nn.HeadRecurrent, VoiceScores, 3},
}

// KnownNames lists every model name the registry can load, in load order.
var KnownNames = []string{
	config.ModelCoughClassifier,
	config.ModelBreathingAnalyzer,
	config.ModelVoiceAnalyzer,
	config.ModelEmotionDetector,
}

// Registry holds the models that loaded successfully.
type Registry struct {
	entries map[string]*Entry
	order   []string
}

// Load constructs every known model named in models. Each model is built
// independently: a failure is logged and the name is left out, and never
// stops the remaining models from loading. Names outside KnownNames are
// logged and ignored.
func Load(models map[string]config.ModelConfig, opts Options) *Registry {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	factory := opts.EmotionFactory
	if factory == nil {
		factory = HTTPEmotionFactory(log)
	}

	for name := range models {
		if !isKnown(name) {
			log.Warn("ignoring unknown model", "model", name)
		}
	}

	r := &Registry{entries: make(map[string]*Entry)}
	for _, name := range KnownNames {
		mc, ok := models[name]
		if !ok {
			continue
		}
		start := time.Now()
		e, err := loadOne(name, mc, factory, log)
		if err != nil {
			log.Error("model unavailable", "model", name, "error", err)
			continue
		}
		r.entries[name] = e
		r.order = append(r.order, name)
		log.Info("model loaded", "model", name, "kind", e.Kind, "trained", e.Trained, "digest", e.WeightsDigest, "elapsed", time.Since(start))
	}
	return r
}

func isKnown(name string) bool {
	for _, k := range KnownNames {
		if k == name {
			return true
		}
	}
	return false
}

// loadOne builds a single entry, converting panics into a LoadError.
func loadOne(name string, mc config.ModelConfig, factory EmotionFactory, log *slog.Logger) (e *Entry, err error) {
	defer func() {
		if r := recover(); r != nil {
			e, err = nil, &LoadError{Name: name, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if name == config.ModelEmotionDetector {
		c, err := factory(mc)
		if err != nil {
			return nil, &LoadError{Name: name, Err: err}
		}
		if c == nil {
			return nil, &LoadError{Name: name, Err: errors.New("factory returned no classifier")}
		}
		return &Entry{Name: name, Kind: ExternalBlackBox, Classifier: c, Trained: true}, nil
	}

	s := structuralModels[name]
	net := nn.NewConvNet(s.head, len(s.labels), s.seed)
	e = &Entry{
		Name:        name,
		Kind:        s.kind,
		Net:         net,
		InputLength: net.InputLength(),
		Labels:      s.labels,
		WeightsPath: weightsPath(name, mc),
	}

	digest, err := loadWeights(net, e.WeightsPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Warn("weights not found, using untrained model", "model", name, "path", e.WeightsPath)
	case err != nil:
		log.Warn("weights unusable, using untrained model", "model", name, "path", e.WeightsPath, "error", err)
	default:
		e.Trained = true
		e.WeightsDigest = digest
	}
	return e, nil
}

func weightsPath(name string, mc config.ModelConfig) string {
	if mc.ModelPath != "" {
		return mc.ModelPath
	}
	return config.DefaultModelPath(name)
}

// loadWeights reads a state dict into net and returns the BLAKE2b-256 digest
// of the file. net is unchanged on error.
func loadWeights(net *nn.ConvNet, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sd, err := nn.UnmarshalStateDict(data)
	if err != nil {
		return "", err
	}
	if err := net.LoadStateDict(sd); err != nil {
		return "", err
	}
	return Digest(data), nil
}

// Digest returns the hex BLAKE2b-256 digest of a weights file's contents.
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// InitWeights writes freshly initialized parameters for a structural model
// to path and returns the digest of the written file.
func InitWeights(name, path string) (string, error) {
	s, ok := structuralModels[name]
	if !ok {
		return "", fmt.Errorf("registry: %s has no local weights", name)
	}
	net := nn.NewConvNet(s.head, len(s.labels), s.seed)
	if err := nn.SaveFile(path, net.StateDict()); err != nil {
		return "", fmt.Errorf("registry: init %s: %w", name, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("registry: init %s: %w", name, err)
	}
	return Digest(data), nil
}

// StructuralNames lists the models that carry local weights.
func StructuralNames() []string {
	return []string{config.ModelCoughClassifier, config.ModelBreathingAnalyzer, config.ModelVoiceAnalyzer}
}

// HTTPEmotionFactory returns a factory that builds an emotion.HTTPClassifier.
func HTTPEmotionFactory(log *slog.Logger) EmotionFactory {
	return func(mc config.ModelConfig) (emotion.Classifier, error) {
		return emotion.NewHTTP(emotion.Config{
			Endpoint: mc.Endpoint,
			Model:    mc.Model,
			APIToken: mc.APIToken,
			Timeout:  time.Duration(mc.TimeoutSeconds) * time.Second,
			Logger:   log,
		})
	}
}

// New builds a registry from already constructed entries, keeping their
// order. A later entry replaces an earlier one with the same name.
func New(entries ...*Entry) *Registry {
	r := &Registry{entries: make(map[string]*Entry)}
	for _, e := range entries {
		if _, dup := r.entries[e.Name]; !dup {
			r.order = append(r.order, e.Name)
		}
		r.entries[e.Name] = e
	}
	return r
}

// Get returns the entry for name.
func (r *Registry) Get(name string) (*Entry, bool) {
	e, ok := r.entries[name]
	return e, ok
}

// Names returns the loaded model names in load order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Entries returns the loaded entries in load order.
func (r *Registry) Entries() []*Entry {
	out := make([]*Entry, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name])
	}
	return out
}

// Len returns the number of loaded models.
func (r *Registry) Len() int { return len(r.entries) }
