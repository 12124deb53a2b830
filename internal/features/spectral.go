package features

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// mfcc returns the time-averaged cepstral coefficients of a dB mel
// spectrogram using an orthonormal DCT-II over the mel axis.
func (e *Extractor) mfcc(melDB [][]float64) ([]float64, error) {
	if len(melDB) == 0 {
		return nil, errUndefined
	}
	m := len(melDB[0])
	n := e.cfg.NMFCC

	basis := make([][]float64, n)
	for k := range basis {
		scale := math.Sqrt(2.0 / float64(m))
		if k == 0 {
			scale = math.Sqrt(1.0 / float64(m))
		}
		row := make([]float64, m)
		for i := range row {
			row[i] = scale * math.Cos(math.Pi*float64(k)*(2*float64(i)+1)/(2*float64(m)))
		}
		basis[k] = row
	}

	mean := make([]float64, n)
	for _, frame := range melDB {
		for k, row := range basis {
			mean[k] += floats.Dot(row, frame)
		}
	}
	floats.Scale(1/float64(len(melDB)), mean)
	return mean, nil
}

// spectralCentroid returns the magnitude-weighted mean frequency averaged
// over frames. Silent frames contribute zero.
func spectralCentroid(spec [][]float64, sampleRate int) (float64, error) {
	if len(spec) == 0 {
		return 0, errUndefined
	}
	bins := len(spec[0])
	nFFT := 2 * (bins - 1)
	freqs := make([]float64, bins)
	for k := range freqs {
		freqs[k] = float64(k) * float64(sampleRate) / float64(nFFT)
	}

	total := 0.0
	mag := make([]float64, bins)
	for _, power := range spec {
		for k, p := range power {
			mag[k] = math.Sqrt(p)
		}
		norm := floats.Sum(mag)
		if norm == 0 {
			continue
		}
		total += floats.Dot(freqs, mag) / norm
	}
	return total / float64(len(spec)), nil
}

// chromaFilterBank maps each FFT bin onto the twelve pitch classes (C=0),
// splitting a bin linearly between its two nearest semitones. Bins below
// C1 carry no pitch information and are ignored.
func chromaFilterBank(nFFT, sampleRate int) [][]float64 {
	const minFreq = 32.70
	bins := nFFT/2 + 1
	bank := make([][]float64, 12)
	for c := range bank {
		bank[c] = make([]float64, bins)
	}
	for k := 1; k < bins; k++ {
		f := float64(k) * float64(sampleRate) / float64(nFFT)
		if f < minFreq {
			continue
		}
		midi := 69 + 12*math.Log2(f/440)
		lower := math.Floor(midi)
		frac := midi - lower
		lc := int(lower) % 12
		bank[lc][k] += 1 - frac
		bank[(lc+1)%12][k] += frac
	}
	return bank
}

// chromaEnergy returns the mean chroma value after normalizing each frame's
// chroma vector by its maximum.
func chromaEnergy(spec [][]float64, bank [][]float64) (float64, error) {
	chroma := applyBank(spec, bank)
	if len(chroma) == 0 {
		return 0, errUndefined
	}
	total := 0.0
	for _, row := range chroma {
		peak := floats.Max(row)
		if peak == 0 {
			continue
		}
		total += floats.Sum(row) / peak
	}
	return total / float64(len(chroma)*12), nil
}
