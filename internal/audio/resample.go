package audio

import (
	"fmt"
	"math"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Resample converts mono PCM from srcRate to dstRate. It returns pcm
// unchanged when the rates match.
func Resample(pcm []float32, srcRate, dstRate int) ([]float32, error) {
	if srcRate <= 0 || dstRate <= 0 {
		return nil, fmt.Errorf("audio: invalid sample rates %d -> %d", srcRate, dstRate)
	}
	return resample(pcm, srcRate, dstRate)
}

// resample converts mono samples from srcRate to dstRate. The filter tail is
// flushed and the result is sized to exactly n*dstRate/srcRate samples, with
// any shortfall left by the filter zero-filled at the end.
func resample(pcm []float32, srcRate, dstRate int) ([]float32, error) {
	if srcRate == dstRate || len(pcm) == 0 {
		return pcm, nil
	}

	config := &resampling.Config{
		InputRate:  float64(srcRate),
		OutputRate: float64(dstRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	}
	r, err := resampling.New(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create resampler: %w", err)
	}

	input := make([]float64, len(pcm))
	for i, s := range pcm {
		input[i] = float64(s)
	}

	output, err := r.Process(input)
	if err != nil {
		return nil, fmt.Errorf("resample error: %w", err)
	}
	tail, err := r.Flush()
	if err != nil {
		return nil, fmt.Errorf("resample flush: %w", err)
	}
	output = append(output, tail...)
	out := make([]float32, expectedLen(len(pcm), srcRate, dstRate))
	for i := 0; i < len(out) && i < len(output); i++ {
		out[i] = float32(clamp(output[i]))
	}
	return out, nil
}

func expectedLen(n, srcRate, dstRate int) int {
	return int(math.Round(float64(n) * float64(dstRate) / float64(srcRate)))
}

func clamp(s float64) float64 {
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}
