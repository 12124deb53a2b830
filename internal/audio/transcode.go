package audio

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// transcodeToWAV converts src to a 16-bit PCM WAV in a temporary file using
// ffmpeg. The caller must invoke cleanup once the file is no longer needed;
// cleanup is a no-op after a failed conversion.
func transcodeToWAV(ffmpegPath, src string) (string, func(), error) {
	if _, err := os.Stat(src); err != nil {
		return "", func() {}, err
	}

	stem := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	tmp, err := os.CreateTemp("", stem+"-*.wav")
	if err != nil {
		return "", func() {}, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	cleanup := func() { _ = os.Remove(tmpPath) }

	cmd := exec.Command(ffmpegPath, //nolint:gosec // path comes from local config
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", src,
		"-vn", "-acodec", "pcm_s16le",
		tmpPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		cleanup()
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", func() {}, fmt.Errorf("ffmpeg: %w: %s", err, msg)
		}
		return "", func() {}, fmt.Errorf("ffmpeg: %w", err)
	}

	return tmpPath, cleanup, nil
}
