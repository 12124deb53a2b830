package features

import (
	"math"
	"math/rand"
	"reflect"
	"testing"
)

func allOn() Config {
	return Config{
		SampleRate:       16000,
		MFCC:             true,
		NMFCC:            13,
		SpectralCentroid: true,
		Chroma:           true,
		Tempo:            true,
	}
}

func sine(freq float64, rate, n int) []float32 {
	pcm := make([]float32, n)
	for i := range pcm {
		pcm[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return pcm
}

// clickTrack places a short noise burst every period samples.
func clickTrack(period, n int) []float32 {
	rng := rand.New(rand.NewSource(1))
	pcm := make([]float32, n)
	for start := 0; start < n; start += period {
		for i := start; i < start+64 && i < n; i++ {
			pcm[i] = float32(0.8 * (2*rng.Float64() - 1))
		}
	}
	return pcm
}

func TestExtractAllFeatures(t *testing.T) {
	set := New(allOn(), nil).Extract(sine(440, 16000, 32000))

	if len(set.MFCC) != 13 {
		t.Errorf("len(MFCC) = %d, want 13", len(set.MFCC))
	}
	if set.SpectralCentroid == nil {
		t.Fatal("SpectralCentroid missing")
	}
	if set.ChromaEnergy == nil {
		t.Fatal("ChromaEnergy missing")
	}
	if *set.ChromaEnergy <= 0 || *set.ChromaEnergy > 1 {
		t.Errorf("ChromaEnergy = %v, want in (0, 1]", *set.ChromaEnergy)
	}
}

func TestSpectralCentroidOfSine(t *testing.T) {
	cfg := Config{SampleRate: 16000, SpectralCentroid: true}
	set := New(cfg, nil).Extract(sine(440, 16000, 32000))
	if set.SpectralCentroid == nil {
		t.Fatal("SpectralCentroid missing")
	}
	if got := *set.SpectralCentroid; math.Abs(got-440) > 50 {
		t.Errorf("SpectralCentroid = %.1f, want ~440", got)
	}
}

func TestExtractCustomMFCCCount(t *testing.T) {
	cfg := allOn()
	cfg.NMFCC = 20
	set := New(cfg, nil).Extract(sine(220, 16000, 16000))
	if len(set.MFCC) != 20 {
		t.Errorf("len(MFCC) = %d, want 20", len(set.MFCC))
	}
}

func TestExtractRespectsToggles(t *testing.T) {
	cfg := Config{SampleRate: 16000, Chroma: true}
	set := New(cfg, nil).Extract(sine(440, 16000, 16000))

	if set.MFCC != nil {
		t.Error("MFCC present but disabled")
	}
	if set.SpectralCentroid != nil {
		t.Error("SpectralCentroid present but disabled")
	}
	if set.Tempo != nil {
		t.Error("Tempo present but disabled")
	}
	if set.ChromaEnergy == nil {
		t.Error("ChromaEnergy missing")
	}
}

func TestExtractNothingEnabled(t *testing.T) {
	set := New(Config{SampleRate: 16000}, nil).Extract(sine(440, 16000, 16000))
	if n := set.Len(); n != 0 {
		t.Errorf("Len() = %d, want 0", n)
	}
}

func TestExtractDeterministic(t *testing.T) {
	ex := New(allOn(), nil)
	pcm := clickTrack(4000, 48000)
	a := ex.Extract(pcm)
	b := ex.Extract(pcm)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("Extract not deterministic:\n%+v\n%+v", a, b)
	}
}

func TestExtractSilenceHasNoTempo(t *testing.T) {
	set := New(allOn(), nil).Extract(make([]float32, 16000))
	if set.Tempo != nil {
		t.Errorf("Tempo = %v, want absent for silence", *set.Tempo)
	}
}

func TestExtractEmptyInput(t *testing.T) {
	set := New(allOn(), nil).Extract(nil)
	if n := set.Len(); n != 0 {
		t.Errorf("Len() = %d, want 0", n)
	}
}

func TestExtractNonFiniteInputDropsFeatures(t *testing.T) {
	pcm := make([]float32, 8000)
	for i := range pcm {
		pcm[i] = float32(math.NaN())
	}
	set := New(allOn(), nil).Extract(pcm)
	if n := set.Len(); n != 0 {
		t.Errorf("Len() = %d, want 0 (%+v)", n, set)
	}
}

func TestTempoOfClickTrack(t *testing.T) {
	// 8192 samples at 16 kHz is 16 hops, about 117.19 BPM.
	want := 60 * 16000.0 / 8192.0
	cfg := Config{SampleRate: 16000, Tempo: true}
	set := New(cfg, nil).Extract(clickTrack(8192, 16000*10))
	if set.Tempo == nil {
		t.Fatal("Tempo missing")
	}
	if got := *set.Tempo; math.Abs(got-want) > 3 {
		t.Errorf("Tempo = %.2f, want ~%.2f", got, want)
	}
}

func TestMelFilterBankShape(t *testing.T) {
	bank := melFilterBank(numMels, fftSize, 16000, 0, 8000)
	if len(bank) != numMels {
		t.Fatalf("len(bank) = %d, want %d", len(bank), numMels)
	}
	for m, filter := range bank {
		if len(filter) != fftSize/2+1 {
			t.Fatalf("filter %d has %d bins, want %d", m, len(filter), fftSize/2+1)
		}
		sum := 0.0
		for _, w := range filter {
			sum += w
		}
		if sum == 0 {
			t.Errorf("filter %d is empty", m)
		}
	}
}

func TestPowerSpectrogramFrameCount(t *testing.T) {
	spec := powerSpectrogram(make([]float32, 5000), hannWindow(fftSize), fftSize, hopSize)
	if want := 1 + 5000/hopSize; len(spec) != want {
		t.Errorf("frames = %d, want %d", len(spec), want)
	}
}
