package features

import "math"

// hzToMel converts frequency in Hz to mel scale.
func hzToMel(hz float64) float64 {
	return 2595.0 * math.Log10(1.0+hz/700.0)
}

// melToHz converts mel scale frequency back to Hz.
func melToHz(mel float64) float64 {
	return 700.0 * (math.Pow(10.0, mel/2595.0) - 1.0)
}

// melFilterBank creates the mel filterbank matrix.
// Returns [numMels][halfFFT] where halfFFT = fftSize/2 + 1.
func melFilterBank(numMels, fftSize, sampleRate int, lowFreq, highFreq float64) [][]float64 {
	halfFFT := fftSize/2 + 1
	lowMel := hzToMel(lowFreq)
	highMel := hzToMel(highFreq)

	melPoints := make([]float64, numMels+2)
	step := (highMel - lowMel) / float64(numMels+1)
	for i := range melPoints {
		melPoints[i] = lowMel + float64(i)*step
	}

	bins := make([]int, numMels+2)
	for i, m := range melPoints {
		hz := melToHz(m)
		bin := int(math.Round(hz * float64(fftSize) / float64(sampleRate)))
		if bin >= halfFFT {
			bin = halfFFT - 1
		}
		bins[i] = bin
	}

	// Each filter spans at least one bin.
	for i := 1; i < len(bins); i++ {
		if bins[i] <= bins[i-1] {
			bins[i] = bins[i-1] + 1
		}
	}

	bank := make([][]float64, numMels)
	for m := 0; m < numMels; m++ {
		filter := make([]float64, halfFFT)
		left := bins[m]
		center := bins[m+1]
		right := bins[m+2]

		for k := left; k < center && k < halfFFT; k++ {
			if center != left {
				filter[k] = float64(k-left) / float64(center-left)
			}
		}
		for k := center; k <= right && k < halfFFT; k++ {
			if right != center {
				filter[k] = float64(right-k) / float64(right-center)
			}
		}
		bank[m] = filter
	}
	return bank
}

// applyBank projects each power frame onto the filters in bank.
func applyBank(spec [][]float64, bank [][]float64) [][]float64 {
	out := make([][]float64, len(spec))
	for t, power := range spec {
		row := make([]float64, len(bank))
		for m, filter := range bank {
			sum := 0.0
			for k, w := range filter {
				if w != 0 {
					sum += w * power[k]
				}
			}
			row[m] = sum
		}
		out[t] = row
	}
	return out
}

// powerToDB converts power values to decibels (ref 1.0) in place and clips
// everything more than topDB below the maximum.
func powerToDB(s [][]float64, topDB float64) {
	maxDB := math.Inf(-1)
	for _, row := range s {
		for i, v := range row {
			db := 10 * math.Log10(math.Max(v, 1e-10))
			row[i] = db
			if db > maxDB {
				maxDB = db
			}
		}
	}
	floor := maxDB - topDB
	for _, row := range s {
		for i, v := range row {
			if v < floor {
				row[i] = floor
			}
		}
	}
}
