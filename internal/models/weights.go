package models

import (
	"fmt"
	"io"
	"os"

	"github.com/chaz8081/healthaudio/internal/config"
	"github.com/chaz8081/healthaudio/internal/registry"
)

// InitWeights writes initial weights for every structural model in cfg that
// has no weights file yet, or for all of them when force is set. It returns
// the paths written.
func InitWeights(cfg *config.Config, force bool, out io.Writer) ([]string, error) {
	if out == nil {
		out = io.Discard
	}
	var written []string
	for _, name := range registry.StructuralNames() {
		mc, ok := cfg.Models[name]
		if !ok {
			continue
		}
		path := mc.ModelPath
		if path == "" {
			path = config.DefaultModelPath(name)
		}
		if _, err := os.Stat(path); err == nil && !force {
			fmt.Fprintf(out, "  %s: weights already exist at %s\n", name, path)
			continue
		}
		digest, err := registry.InitWeights(name, path)
		if err != nil {
			return written, err
		}
		fmt.Fprintf(out, "  %s: wrote %s (blake2b %s)\n", name, path, digest)
		written = append(written, path)
	}
	return written, nil
}
