package audio

import (
	"fmt"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// decodeWAVFile decodes a PCM WAV file, downmixes it to mono and returns the
// samples with their source sample rate.
func decodeWAVFile(path string) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open: %w", err)
	}
	defer func() { _ = f.Close() }()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("not a valid WAV file")
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("read PCM: %w", err)
	}
	if buf == nil || buf.Format == nil || len(buf.Data) == 0 {
		return nil, 0, fmt.Errorf("WAV file has no samples")
	}

	channels := buf.Format.NumChannels
	if channels <= 0 {
		channels = int(dec.NumChans)
	}
	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = int(dec.BitDepth)
	}

	rate := buf.Format.SampleRate
	if rate <= 0 {
		rate = int(dec.SampleRate)
	}
	if rate <= 0 {
		return nil, 0, fmt.Errorf("WAV file has no sample rate")
	}

	return downmix(buf.Data, channels, bitDepth), rate, nil
}

// downmix converts interleaved integer samples to mono float32 by averaging
// channels.
func downmix(data []int, channels, bitDepth int) []float32 {
	if channels <= 0 {
		channels = 1
	}
	if bitDepth <= 0 {
		bitDepth = 16
	}

	scale := float64(int64(1) << (bitDepth - 1))
	offset := 0.0
	if bitDepth == 8 {
		// 8-bit WAV is unsigned.
		offset = 128
	}

	frames := len(data) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		sum := 0.0
		for c := 0; c < channels; c++ {
			sum += (float64(data[i*channels+c]) - offset) / scale
		}
		out[i] = float32(sum / float64(channels))
	}
	return out
}

// WriteWAV writes mono samples as a 16-bit PCM WAV file.
func WriteWAV(path string, samples []float32, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("audio: create %q: %w", path, err)
	}

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	data := make([]int, len(samples))
	for i, s := range samples {
		v := float64(s) * 32767
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		data[i] = int(v)
	}

	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		_ = f.Close()
		return fmt.Errorf("audio: write %q: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		return fmt.Errorf("audio: finalize %q: %w", path, err)
	}
	return f.Close()
}
