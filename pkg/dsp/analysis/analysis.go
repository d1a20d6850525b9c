package analysis

import (
	"math"
	"math/cmplx"

	dspfft "github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// maxFFTSize bounds the transform used for the frequency estimate; longer captures are decimated first.
const maxFFTSize = 1 << 16

type Summary struct {
	Samples      int
	Min          float64
	Max          float64
	Mean         float64
	StdDev       float64
	RMS          float64
	DominantFreq float64
}

// Summarize computes amplitude statistics of volts and estimates its dominant frequency.
func Summarize(volts []float64, sampleRate float64) Summary {
	s := Summary{Samples: len(volts)}
	if len(volts) == 0 {
		return s
	}

	s.Min = floats.Min(volts)
	s.Max = floats.Max(volts)
	s.Mean, s.StdDev = stat.MeanStdDev(volts, nil)
	s.RMS = math.Sqrt(floats.Dot(volts, volts) / float64(len(volts)))
	s.DominantFreq = DominantFrequency(volts, sampleRate)
	return s
}

// DominantFrequency returns the frequency of the strongest non-DC bin of the windowed spectrum.
func DominantFrequency(volts []float64, sampleRate float64) float64 {
	if len(volts) < 4 || sampleRate <= 0 {
		return 0
	}

	step := 1
	for len(volts)/step > maxFFTSize {
		step *= 2
	}
	rate := sampleRate / float64(step)

	data := make([]float64, 0, len(volts)/step+1)
	for i := 0; i < len(volts); i += step {
		data = append(data, volts[i])
	}
	mean := stat.Mean(data, nil)
	for i := range data {
		data[i] -= mean
	}
	window.Apply(data, window.Hann)

	coeffs := dspfft.FFTReal(data)
	best, bestMag := 0, 0.0
	for i := 1; i <= len(coeffs)/2; i++ {
		if mag := cmplx.Abs(coeffs[i]); mag > bestMag {
			best, bestMag = i, mag
		}
	}
	return float64(best) * rate / float64(len(coeffs))
}
