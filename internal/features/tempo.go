package features

import "math"

const (
	startBPM   = 120.0
	maxBPM     = 320.0
	acSeconds  = 8.0
	stdOctaves = 1.0
)

// onsetStrength returns the spectral flux envelope of a dB mel spectrogram:
// the mean positive difference between consecutive frames.
func onsetStrength(melDB [][]float64) []float64 {
	env := make([]float64, len(melDB))
	for t := 1; t < len(melDB); t++ {
		sum := 0.0
		for m, v := range melDB[t] {
			if d := v - melDB[t-1][m]; d > 0 {
				sum += d
			}
		}
		env[t] = sum / float64(len(melDB[t]))
	}
	return env
}

// estimateTempo picks the autocorrelation lag of the onset envelope that
// maximizes a log-normal prior centered on 120 BPM, and returns it in beats
// per minute.
func estimateTempo(melDB [][]float64, sampleRate int) (float64, error) {
	env := onsetStrength(melDB)
	framesPerSec := float64(sampleRate) / hopSize

	minLag := int(math.Ceil(60 * framesPerSec / maxBPM))
	maxLag := min(len(env)-1, int(acSeconds*framesPerSec))
	if maxLag < minLag {
		return 0, errUndefined
	}

	r0 := 0.0
	for _, v := range env {
		r0 += v * v
	}
	if r0 <= 1e-12 {
		return 0, errUndefined
	}

	bestLag, bestScore := 0, 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		r := 0.0
		for t := 0; t+lag < len(env); t++ {
			r += env[t] * env[t+lag]
		}
		bpm := 60 * framesPerSec / float64(lag)
		z := (math.Log2(bpm) - math.Log2(startBPM)) / stdOctaves
		score := (r / r0) * math.Exp(-0.5*z*z)
		if score > bestScore {
			bestLag, bestScore = lag, score
		}
	}
	if bestLag == 0 {
		return 0, errUndefined
	}
	return 60 * framesPerSec / float64(bestLag), nil
}
