// healthaudio analyzes short health-related audio clips (cough, breathing,
// voice) and prints a report of acoustic features, a transcript and the
// outputs of the configured models.
//
// Usage:
//
//	healthaudio analyze clip.wav               # JSON report
//	healthaudio analyze -f yaml clip.m4a       # YAML report
//	healthaudio preprocess clip.mp3 out.wav    # canonical 16 kHz mono WAV
//	healthaudio models download --size base    # fetch whisper model
//	healthaudio models init-weights            # write initial network weights
//	healthaudio init-config                    # write default config
//
// Configuration is read from ~/.config/healthaudio/config.yaml when present.
package main

import (
	"os"

	"github.com/chaz8081/healthaudio/cmd/healthaudio/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
