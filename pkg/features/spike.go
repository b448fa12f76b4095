package features

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// SpikeBandLoHz and SpikeBandHiHz bound the band-pass applied before
// threshold-crossing spike detection (spec.md §4.7: "300-5000 Hz
// band-pass").
const (
	SpikeBandLoHz       = 300.0
	SpikeBandHiHz       = 5000.0
	SpikeThresholdSigma = 4.0
	SpikeRefractorySec  = 0.001 // 1 ms
)

// SpikeStats is a channel's spike-detection summary over a window.
type SpikeStats struct {
	Count         int
	RateHz        float64
	MeanAmplitude float64
	ISICoeffVar   float64 // coefficient of variation of inter-spike intervals
}

// DetectSpikes band-pass filters samples to the spike band, thresholds
// at SpikeThresholdSigma standard deviations of the filtered signal, and
// reports spike rate, amplitude, and ISI coefficient of variation
// (spec.md §4.7).
func DetectSpikes(samples []float32, sampleRateHz float64) SpikeStats {
	n := len(samples)
	if n < 8 || sampleRateHz <= 0 {
		return SpikeStats{}
	}

	filtered := bandPass(samples, sampleRateHz, SpikeBandLoHz, SpikeBandHiHz)
	threshold := SpikeThresholdSigma * stdDevFloat64(filtered)
	if threshold <= 0 {
		return SpikeStats{}
	}

	refractorySamples := int(SpikeRefractorySec * sampleRateHz)
	if refractorySamples < 1 {
		refractorySamples = 1
	}

	var crossingIdx []int
	var amplitudes []float64
	lastCrossing := -refractorySamples - 1
	for i, v := range filtered {
		av := math.Abs(v)
		if av >= threshold && i-lastCrossing > refractorySamples {
			crossingIdx = append(crossingIdx, i)
			amplitudes = append(amplitudes, av)
			lastCrossing = i
		}
	}

	count := len(crossingIdx)
	if count == 0 {
		return SpikeStats{}
	}

	windowSec := float64(n) / sampleRateHz
	var meanAmp float64
	for _, a := range amplitudes {
		meanAmp += a
	}
	meanAmp /= float64(count)

	isiCV := 0.0
	if count >= 2 {
		isis := make([]float64, count-1)
		for i := 1; i < count; i++ {
			isis[i-1] = float64(crossingIdx[i]-crossingIdx[i-1]) / sampleRateHz
		}
		mean := meanFloat64(isis)
		if mean > 0 {
			isiCV = math.Sqrt(varianceFloat64(isis)) / mean
		}
	}

	return SpikeStats{
		Count:         count,
		RateHz:        float64(count) / windowSec,
		MeanAmplitude: meanAmp,
		ISICoeffVar:   isiCV,
	}
}

// bandPass band-limits samples to [loHz, hiHz) via FFT: zero every
// frequency bin outside the band, then inverse-transform. Adequate for
// offline, whole-window feature extraction; not a causal/streaming
// filter.
func bandPass(samples []float32, sampleRateHz, loHz, hiHz float64) []float64 {
	n := len(samples)
	seq := make([]float64, n)
	for i, v := range samples {
		seq[i] = float64(v)
	}

	fft := fourier.NewFFT(n)
	nbins := n/2 + 1
	coeffs := make([]complex128, nbins)
	fft.Coefficients(coeffs, seq)

	for k := 0; k < nbins; k++ {
		f := fft.Freq(k) * sampleRateHz
		if f < loHz || f >= hiHz {
			coeffs[k] = 0
		}
	}

	out := make([]float64, n)
	fft.Sequence(out, coeffs)
	return out
}

func stdDevFloat64(samples []float64) float64 {
	return math.Sqrt(varianceFloat64(samples))
}

func meanFloat64(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		sum += v
	}
	return sum / float64(len(samples))
}
