// Package emotion classifies speech emotion through an external
// audio-classification service.
package emotion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"
)

// DefaultModel is the audio-classification model queried when none is
// configured.
const DefaultModel = "ehcalabres/wav2vec2-lg-xlsr-en-speech-emotion-recognition"

const (
	defaultBaseURL = "https://api-inference.huggingface.co/models/"
	defaultTimeout = 60 * time.Second
	tokenEnv       = "HF_TOKEN"
)

// Score is one label from the classifier output.
type Score struct {
	Label string  `json:"label" yaml:"label"`
	Score float64 `json:"score" yaml:"score"`
}

// Classifier labels the audio file at path.
type Classifier interface {
	Classify(ctx context.Context, path string) ([]Score, error)
}

// Config configures an HTTPClassifier.
type Config struct {
	// Endpoint is the full inference URL. When empty it is derived from Model.
	Endpoint string
	Model    string
	// APIToken is sent as a bearer token. Falls back to $HF_TOKEN.
	APIToken string
	Timeout  time.Duration
	Logger   *slog.Logger
}

// HTTPClassifier posts raw audio bytes to a Hugging Face style inference
// endpoint and decodes the [{label, score}] response.
type HTTPClassifier struct {
	endpoint string
	token    string
	client   *http.Client
	log      *slog.Logger
}

// NewHTTP validates cfg and returns a classifier.
func NewHTTP(cfg Config) (*HTTPClassifier, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		model := cfg.Model
		if model == "" {
			model = DefaultModel
		}
		endpoint = defaultBaseURL + model
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("emotion: parse endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("emotion: endpoint %q: unsupported scheme", endpoint)
	}

	token := cfg.APIToken
	if token == "" {
		token = os.Getenv(tokenEnv)
	}
	if token == "" {
		return nil, errors.New("emotion: api token not configured (set api_token or $HF_TOKEN)")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	return &HTTPClassifier{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: timeout},
		log:      log,
	}, nil
}

// Endpoint returns the inference URL.
func (c *HTTPClassifier) Endpoint() string { return c.endpoint }

// Classify uploads the file and returns the service's scores unchanged.
func (c *HTTPClassifier) Classify(ctx context.Context, path string) ([]Score, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("emotion: read audio: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("emotion: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/octet-stream")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("emotion: request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("emotion: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("emotion: service returned %s: %s", resp.Status, apiErr.Error)
		}
		return nil, fmt.Errorf("emotion: service returned %s", resp.Status)
	}

	var scores []Score
	if err := json.Unmarshal(body, &scores); err != nil {
		return nil, fmt.Errorf("emotion: decode response: %w", err)
	}
	c.log.Debug("emotion classified", "labels", len(scores), "elapsed", time.Since(start))
	return scores, nil
}
