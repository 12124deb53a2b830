// Package models fetches and prepares the model files used by analysis: the
// whisper ggml files and the local weights of the structural networks.
package models

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/chaz8081/healthaudio/internal/transcribe"
)

// DefaultWhisperBaseURL hosts the ggml whisper models.
const DefaultWhisperBaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/"

// Downloader fetches whisper models into a local directory.
type Downloader struct {
	BaseURL string
	Client  *http.Client
	// Out receives progress output. Nil discards it.
	Out io.Writer
}

// DownloadWhisper downloads the ggml model for size into dir and returns its
// path. An existing non-empty file is kept.
func (d *Downloader) DownloadWhisper(ctx context.Context, size, dir string) (string, error) {
	name, err := transcribe.ModelFile(size)
	if err != nil {
		return "", err
	}
	out := d.Out
	if out == nil {
		out = io.Discard
	}
	base := d.BaseURL
	if base == "" {
		base = DefaultWhisperBaseURL
	}
	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating models dir: %w", err)
	}

	destPath := filepath.Join(dir, name)

	// Check if already downloaded
	if info, err := os.Stat(destPath); err == nil && info.Size() > 0 {
		fmt.Fprintf(out, "  Whisper model already exists: %s (%.0f MB)\n", destPath, float64(info.Size())/(1024*1024))
		return destPath, nil
	}

	url := base + name
	fmt.Fprintf(out, "  Downloading whisper model from HuggingFace...\n")
	fmt.Fprintf(out, "  URL: %s\n", url)
	fmt.Fprintf(out, "  Destination: %s\n", destPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("downloading whisper model: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}

	// Write to temp file first, then rename (atomic)
	tmpPath := destPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}

	pr := &progressWriter{
		writer: f,
		out:    out,
		total:  resp.ContentLength,
		label:  name,
	}

	written, err := io.Copy(pr, resp.Body)
	_ = f.Close()
	if err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("writing model file: %w", err)
	}

	fmt.Fprintf(out, "\n  Downloaded %.1f MB\n", float64(written)/(1024*1024))

	if err := os.Rename(tmpPath, destPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("moving model file: %w", err)
	}

	return destPath, nil
}

// progressWriter wraps an io.Writer and prints download progress.
type progressWriter struct {
	writer  io.Writer
	out     io.Writer
	total   int64
	written int64
	label   string
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.writer.Write(p)
	pw.written += int64(n)
	if pw.total > 0 {
		pct := float64(pw.written) / float64(pw.total) * 100
		fmt.Fprintf(pw.out, "\r  %s: %.1f MB / %.1f MB (%.0f%%)",
			pw.label,
			float64(pw.written)/(1024*1024),
			float64(pw.total)/(1024*1024),
			pct)
	} else {
		fmt.Fprintf(pw.out, "\r  %s: %.1f MB downloaded",
			pw.label,
			float64(pw.written)/(1024*1024))
	}
	return n, err
}
