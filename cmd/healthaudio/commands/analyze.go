package commands

import (
	"encoding/json"
	"fmt"

	"github.com/chaz8081/healthaudio/internal/analysis"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newAnalyzeCmd(g *globals) *cobra.Command {
	var (
		format       string
		noTranscribe bool
	)
	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Analyze an audio file and print the report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "json" && format != "yaml" {
				return fmt.Errorf("unknown format %q (supported: json, yaml)", format)
			}
			cfg, log, err := g.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if noTranscribe {
				cfg.Transcribe = false
			}

			a, err := analysis.New(cfg, analysis.WithLogger(log))
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			rep := a.AnalyzeContext(cmd.Context(), args[0])

			out := cmd.OutOrStdout()
			switch format {
			case "yaml":
				enc := yaml.NewEncoder(out)
				enc.SetIndent(2)
				if err := enc.Encode(rep); err != nil {
					return fmt.Errorf("encoding report: %w", err)
				}
				if err := enc.Close(); err != nil {
					return fmt.Errorf("encoding report: %w", err)
				}
			default:
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(rep); err != nil {
					return fmt.Errorf("encoding report: %w", err)
				}
			}

			if rep.Failed() {
				return fmt.Errorf("analysis failed: %s", rep.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format (json, yaml)")
	cmd.Flags().BoolVar(&noTranscribe, "no-transcribe", false, "skip speech transcription")
	return cmd
}
