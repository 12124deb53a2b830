// Package features computes fixed-shape acoustic descriptors from canonical
// PCM: averaged MFCCs, spectral centroid, chroma energy and tempo.
//
// Analysis constants target a 16 kHz signal:
//
//	FFTSize:  2048
//	HopSize:   512
//	NumMels:   128
//	Window:   Hann
package features

import (
	"errors"
	"log/slog"
	"math"
)

const (
	fftSize = 2048
	hopSize = 512
	numMels = 128
	topDB   = 80
)

// Config selects which features to extract.
type Config struct {
	SampleRate       int
	MFCC             bool
	NMFCC            int
	SpectralCentroid bool
	Chroma           bool
	Tempo            bool
}

// Set holds the extracted features. A field is nil when its extractor is
// disabled or produced no finite value.
type Set struct {
	MFCC             []float64 `json:"mfcc,omitempty" yaml:"mfcc,omitempty"`
	SpectralCentroid *float64  `json:"spectral_centroid,omitempty" yaml:"spectral_centroid,omitempty"`
	ChromaEnergy     *float64  `json:"chroma_energy,omitempty" yaml:"chroma_energy,omitempty"`
	Tempo            *float64  `json:"tempo,omitempty" yaml:"tempo,omitempty"`
}

// Len returns the number of features present.
func (s Set) Len() int {
	n := 0
	if s.MFCC != nil {
		n++
	}
	for _, p := range []*float64{s.SpectralCentroid, s.ChromaEnergy, s.Tempo} {
		if p != nil {
			n++
		}
	}
	return n
}

var errUndefined = errors.New("feature undefined for input")

// Extractor computes feature sets. It is immutable after New and safe for
// concurrent use.
type Extractor struct {
	cfg        Config
	window     []float64
	melBank    [][]float64
	chromaBank [][]float64
	log        *slog.Logger
}

// New creates an Extractor. A nil logger uses slog.Default().
func New(cfg Config, log *slog.Logger) *Extractor {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.NMFCC <= 0 {
		cfg.NMFCC = 13
	}
	if cfg.NMFCC > numMels {
		cfg.NMFCC = numMels
	}
	if log == nil {
		log = slog.Default()
	}
	return &Extractor{
		cfg:        cfg,
		window:     hannWindow(fftSize),
		melBank:    melFilterBank(numMels, fftSize, cfg.SampleRate, 0, float64(cfg.SampleRate)/2),
		chromaBank: chromaFilterBank(fftSize, cfg.SampleRate),
		log:        log,
	}
}

// Extract computes every enabled feature. It never fails: a feature whose
// computation is undefined for pcm (for example tempo on silence) is left
// out of the result.
func (e *Extractor) Extract(pcm []float32) Set {
	var set Set
	if !e.cfg.MFCC && !e.cfg.SpectralCentroid && !e.cfg.Chroma && !e.cfg.Tempo {
		return set
	}

	spec := powerSpectrogram(pcm, e.window, fftSize, hopSize)
	if len(spec) == 0 {
		e.log.Debug("no frames to extract features from")
		return set
	}

	var melDB [][]float64
	if e.cfg.MFCC || e.cfg.Tempo {
		melDB = applyBank(spec, e.melBank)
		powerToDB(melDB, topDB)
	}

	if e.cfg.MFCC {
		v, err := e.mfcc(melDB)
		if e.keep("mfcc", err, v...) {
			set.MFCC = v
		}
	}
	if e.cfg.SpectralCentroid {
		v, err := spectralCentroid(spec, e.cfg.SampleRate)
		if e.keep("spectral_centroid", err, v) {
			set.SpectralCentroid = &v
		}
	}
	if e.cfg.Chroma {
		v, err := chromaEnergy(spec, e.chromaBank)
		if e.keep("chroma_energy", err, v) {
			set.ChromaEnergy = &v
		}
	}
	if e.cfg.Tempo {
		v, err := estimateTempo(melDB, e.cfg.SampleRate)
		if e.keep("tempo", err, v) {
			set.Tempo = &v
		}
	}
	return set
}

// keep reports whether a computed feature is usable, logging the reason
// when it is not.
func (e *Extractor) keep(name string, err error, values ...float64) bool {
	if err != nil {
		e.log.Debug("feature dropped", "feature", name, "error", err)
		return false
	}
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			e.log.Debug("feature dropped", "feature", name, "error", "non-finite value")
			return false
		}
	}
	return true
}
