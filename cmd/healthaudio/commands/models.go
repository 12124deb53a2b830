package commands

import (
	"fmt"

	"github.com/chaz8081/healthaudio/internal/config"
	"github.com/chaz8081/healthaudio/internal/models"
	"github.com/chaz8081/healthaudio/internal/registry"
	"github.com/spf13/cobra"
)

func newModelsCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Manage model files",
	}
	cmd.AddCommand(newModelsDownloadCmd(g), newModelsInitWeightsCmd(g))
	return cmd
}

func newModelsDownloadCmd(g *globals) *cobra.Command {
	var size, dir string
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download the whisper model for a size tier",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := g.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if size == "" {
				size = cfg.WhisperModelSize
			}
			if dir == "" {
				dir = cfg.ModelsDir
			}
			d := &models.Downloader{Out: cmd.OutOrStdout()}
			path, err := d.DownloadWhisper(cmd.Context(), size, dir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Whisper model ready: %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&size, "size", "", "whisper size tier (default is whisper_model_size)")
	cmd.Flags().StringVar(&dir, "dir", "", "destination directory (default is models_dir)")
	return cmd
}

func newModelsInitWeightsCmd(g *globals) *cobra.Command {
	var force, all bool
	cmd := &cobra.Command{
		Use:   "init-weights",
		Short: "Write initial weights for the configured structural models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := g.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if all {
				for _, name := range registry.StructuralNames() {
					if _, ok := cfg.Models[name]; !ok {
						cfg.Models[name] = config.ModelConfig{}
					}
				}
			}
			written, err := models.InitWeights(cfg, force, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d weight file(s)\n", len(written))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing weight files")
	cmd.Flags().BoolVar(&all, "all", false, "include structural models missing from the config")
	return cmd
}
