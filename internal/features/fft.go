package features

import "math"

// fft performs an in-place radix-2 Cooley-Tukey FFT.
// real and imag must have the same power-of-2 length.
func fft(real, imag []float64) {
	n := len(real)
	if n <= 1 {
		return
	}

	// Bit-reversal permutation
	j := 0
	for i := 0; i < n-1; i++ {
		if i < j {
			real[i], real[j] = real[j], real[i]
			imag[i], imag[j] = imag[j], imag[i]
		}
		k := n >> 1
		for k <= j {
			j -= k
			k >>= 1
		}
		j += k
	}

	for size := 2; size <= n; size <<= 1 {
		half := size >> 1
		angle := -2.0 * math.Pi / float64(size)
		wR := math.Cos(angle)
		wI := math.Sin(angle)

		for start := 0; start < n; start += size {
			tR, tI := 1.0, 0.0
			for k := 0; k < half; k++ {
				u := start + k
				v := u + half

				tmpR := tR*real[v] - tI*imag[v]
				tmpI := tR*imag[v] + tI*real[v]

				real[v] = real[u] - tmpR
				imag[v] = imag[u] - tmpI
				real[u] += tmpR
				imag[u] += tmpI

				tR, tI = tR*wR-tI*wI, tR*wI+tI*wR
			}
		}
	}
}

// hannWindow generates a periodic Hann window of the given length.
func hannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

// powerSpectrogram computes |STFT|^2 with frames centered on multiples of
// hop. The signal is zero-padded by nFFT/2 on both sides, so the result has
// 1 + len(pcm)/hop frames of nFFT/2+1 bins.
func powerSpectrogram(pcm []float32, window []float64, nFFT, hop int) [][]float64 {
	n := len(pcm)
	if n == 0 {
		return nil
	}
	numFrames := 1 + n/hop
	halfFFT := nFFT/2 + 1
	pad := nFFT / 2

	spec := make([][]float64, numFrames)
	real := make([]float64, nFFT)
	imag := make([]float64, nFFT)

	for t := 0; t < numFrames; t++ {
		start := t*hop - pad
		for i := 0; i < nFFT; i++ {
			idx := start + i
			s := 0.0
			if idx >= 0 && idx < n {
				s = float64(pcm[idx])
			}
			real[i] = s * window[i]
			imag[i] = 0
		}
		fft(real, imag)

		power := make([]float64, halfFFT)
		for k := 0; k < halfFFT; k++ {
			power[k] = real[k]*real[k] + imag[k]*imag[k]
		}
		spec[t] = power
	}
	return spec
}
