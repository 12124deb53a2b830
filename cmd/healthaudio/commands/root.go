package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/chaz8081/healthaudio/internal/config"
	"github.com/spf13/cobra"
)

// globals holds the persistent flag values shared by subcommands.
type globals struct {
	cfgFile  string
	logLevel string
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "healthaudio",
		Short:         "Health audio analysis",
		Long: `healthaudio analyzes cough, breathing and voice recordings.

Each clip is decoded to 16 kHz mono, summarized with acoustic features,
optionally transcribed with whisper, and scored by every model listed in
the configuration file.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&g.cfgFile, "config", "", "config file (default is ~/.config/healthaudio/config.yaml)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "override log_level (debug, info, warn, error)")

	root.AddCommand(
		newAnalyzeCmd(g),
		newPreprocessCmd(g),
		newModelsCmd(g),
		newInitConfigCmd(),
	)
	return root
}

// Execute runs the CLI.
func Execute() error {
	return NewRootCmd().Execute()
}

// load resolves the configuration and installs the logger on stderr.
func (g *globals) load(stderr io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, source, err := loadConfig(g.cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("config validation: %w", err)
	}

	log := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(log)
	log.Debug("config resolved", "source", source)
	return cfg, log, nil
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults. It also returns where
// the config came from.
func loadConfig(path string) (*config.Config, string, error) {
	if path != "" {
		cfg, err := config.Load(path)
		return cfg, path, err
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, "", fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		return cfg, defaultPath, nil
	}

	return config.Default(), "defaults", nil
}
