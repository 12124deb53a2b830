package analysis

import (
	"encoding/json"

	"github.com/chaz8081/healthaudio/internal/dispatch"
	"github.com/chaz8081/healthaudio/internal/features"
)

// Report is the result of analyzing one file. When Error is set the other
// fields are empty.
//
// Encoded, the report is a flat object: "features", "transcript" (only when
// transcription is enabled), one key per model that produced a prediction,
// "model_errors" for models whose inference failed, and "error".
type Report struct {
	Features    features.Set
	Transcript  *string
	Predictions map[string]dispatch.Prediction
	ModelErrors map[string]string
	Error       string
}

// Failed reports whether the analysis failed before dispatch.
func (r Report) Failed() bool { return r.Error != "" }

// Fields returns the flattened report.
func (r Report) Fields() map[string]any {
	if r.Error != "" {
		return map[string]any{"error": r.Error}
	}
	out := make(map[string]any, len(r.Predictions)+3)
	out["features"] = r.Features
	if r.Transcript != nil {
		out["transcript"] = *r.Transcript
	}
	for name, p := range r.Predictions {
		out[name] = p
	}
	if len(r.ModelErrors) > 0 {
		out["model_errors"] = r.ModelErrors
	}
	return out
}

// MarshalJSON encodes the flattened report.
func (r Report) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Fields())
}

// MarshalYAML encodes the flattened report.
func (r Report) MarshalYAML() (any, error) {
	return r.Fields(), nil
}
