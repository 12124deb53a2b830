// Package nn is a small inference-only runtime for the 1-D convolutional
// networks used by the structural health models. Parameters are stored as
// named tensors and serialized with msgpack.
package nn

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
)

// Tensor is a dense row-major parameter block.
type Tensor struct {
	Shape []int     `msgpack:"shape"`
	Data  []float64 `msgpack:"data"`
}

// Size returns the number of elements implied by Shape.
func (t Tensor) Size() int {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// StateDict maps parameter names to tensors.
type StateDict map[string]Tensor

// Marshal encodes the state dict with sorted keys so identical parameters
// always produce identical bytes.
func (sd StateDict) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(map[string]Tensor(sd)); err != nil {
		return nil, fmt.Errorf("nn: encode state dict: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalStateDict decodes a state dict and checks every tensor's data
// length against its shape.
func UnmarshalStateDict(data []byte) (StateDict, error) {
	var sd map[string]Tensor
	if err := msgpack.Unmarshal(data, &sd); err != nil {
		return nil, fmt.Errorf("nn: decode state dict: %w", err)
	}
	if len(sd) == 0 {
		return nil, fmt.Errorf("nn: decode state dict: no tensors")
	}
	for name, t := range sd {
		if len(t.Data) != t.Size() {
			return nil, fmt.Errorf("nn: tensor %s: %d values for shape %v", name, len(t.Data), t.Shape)
		}
	}
	return sd, nil
}

// SaveFile writes sd to path atomically, creating parent directories.
func SaveFile(path string, sd StateDict) error {
	data, err := sd.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("nn: create weights dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("nn: write weights: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("nn: rename weights: %w", err)
	}
	return nil
}
