package audio

import "math"

const (
	silenceFrameLength = 2048
	silenceHopLength   = 512
	powerFloor         = 1e-10
)

// normalizePeak scales pcm in place so its largest absolute sample is 1.
// Signals that are numerically silent are left untouched.
func normalizePeak(pcm []float32) {
	peak := float32(0)
	for _, s := range pcm {
		if a := float32(math.Abs(float64(s))); a > peak {
			peak = a
		}
	}
	if peak < 1e-12 {
		return
	}
	for i := range pcm {
		pcm[i] /= peak
	}
}

// interval is a half-open [Start, End) range of sample indices.
type interval struct {
	Start, End int
}

// nonSilentIntervals returns the sample ranges whose frame energy lies within
// topDB decibels of the loudest frame. Frames are centered on multiples of
// the hop length.
func nonSilentIntervals(pcm []float32, topDB float64) []interval {
	n := len(pcm)
	if n == 0 {
		return nil
	}

	numFrames := 1 + n/silenceHopLength
	mse := make([]float64, numFrames)
	maxMSE := 0.0
	half := silenceFrameLength / 2
	for f := 0; f < numFrames; f++ {
		center := f * silenceHopLength
		sum := 0.0
		for i := center - half; i < center+half; i++ {
			if i < 0 || i >= n {
				continue
			}
			v := float64(pcm[i])
			sum += v * v
		}
		mse[f] = sum / silenceFrameLength
		if mse[f] > maxMSE {
			maxMSE = mse[f]
		}
	}

	ref := 10 * math.Log10(math.Max(maxMSE, powerFloor))
	loud := make([]bool, numFrames)
	for f, m := range mse {
		db := 10*math.Log10(math.Max(m, powerFloor)) - ref
		loud[f] = db > -topDB
	}

	var intervals []interval
	start := -1
	for f, l := range loud {
		switch {
		case l && start < 0:
			start = f * silenceHopLength
		case !l && start >= 0:
			intervals = append(intervals, interval{Start: start, End: min(f*silenceHopLength, n)})
			start = -1
		}
	}
	if start >= 0 {
		intervals = append(intervals, interval{Start: start, End: n})
	}
	return intervals
}

// removeSilence concatenates the non-silent intervals of pcm in order.
func removeSilence(pcm []float32, topDB float64) []float32 {
	intervals := nonSilentIntervals(pcm, topDB)
	total := 0
	for _, iv := range intervals {
		total += iv.End - iv.Start
	}
	out := make([]float32, 0, total)
	for _, iv := range intervals {
		out = append(out, pcm[iv.Start:iv.End]...)
	}
	return out
}
