package commands

import (
	"fmt"

	"github.com/chaz8081/healthaudio/internal/audio"
	"github.com/spf13/cobra"
)

func newPreprocessCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "preprocess <input> <output.wav>",
		Short: "Decode, resample and normalize a clip into a canonical WAV",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := g.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			codec := audio.NewCodec(audio.Options{
				SampleRate:         cfg.SampleRate,
				Normalize:          cfg.Normalize,
				RemoveSilence:      cfg.RemoveSilence,
				SilenceThresholdDB: cfg.SilenceThresholdDB,
				FFmpegPath:         cfg.FFmpegPath,
				Logger:             log,
			})
			samples, err := codec.Load(args[0])
			if err != nil {
				return err
			}
			if err := audio.WriteWAV(args[1], samples, codec.SampleRate()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%.2fs at %d Hz)\n", args[1], samples.Duration(codec.SampleRate()), codec.SampleRate())
			return nil
		},
	}
}
