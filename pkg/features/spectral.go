package features

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Band is a named frequency range in Hz, closed on the low end and open
// on the high end.
type Band struct {
	Name string
	LoHz float64
	HiHz float64
}

// StandardBands are the six canonical EEG-class bands spec.md §4.7
// names for band-power features.
var StandardBands = []Band{
	{"delta", 0.5, 4},
	{"theta", 4, 8},
	{"alpha", 8, 12},
	{"beta", 12, 30},
	{"gamma", 30, 100},
	{"high_gamma", 100, 200},
}

// Spectral holds the per-channel frequency-domain features spec.md §4.7
// names for the spectral feature family. PSD values are µV²/Hz.
type Spectral struct {
	BandPower      map[string]float64
	Entropy        float64 // bits (log2)
	PeakFreqHz     float64
	SpectralEdge95 float64
}

// ComputeSpectral computes the Welch power spectral density of samples
// (sampled at sampleRateHz) and derives band powers, spectral entropy,
// peak frequency, and the 95% spectral-edge frequency (spec.md §4.7).
func ComputeSpectral(samples []float32, sampleRateHz float64) Spectral {
	if len(samples) == 0 || sampleRateHz <= 0 {
		return Spectral{BandPower: map[string]float64{}}
	}

	freqs, psd := welchPSD(samples, sampleRateHz)
	if len(freqs) == 0 {
		return Spectral{BandPower: map[string]float64{}}
	}

	bandPower := make(map[string]float64, len(StandardBands))
	for _, b := range StandardBands {
		bandPower[b.Name] = integrateBand(freqs, psd, b.LoHz, b.HiHz)
	}

	return Spectral{
		BandPower:      bandPower,
		Entropy:        spectralEntropy(psd),
		PeakFreqHz:     peakFrequency(freqs, psd),
		SpectralEdge95: spectralEdge(freqs, psd, 0.95),
	}
}

// welchNperseg is spec.md §4.7's `nperseg = min(N, 256)`.
func welchNperseg(n int) int {
	if n < 256 {
		return n
	}
	return 256
}

// welchPSD estimates the power spectral density of samples using Welch's
// method: overlapping Hann-windowed segments, periodogram per segment,
// averaged across segments. 50% segment overlap.
func welchPSD(samples []float32, sampleRateHz float64) (freqs, psd []float64) {
	n := len(samples)
	nperseg := welchNperseg(n)
	if nperseg < 2 {
		return nil, nil
	}
	step := nperseg / 2
	if step < 1 {
		step = 1
	}

	window := hannWindow(nperseg)
	windowPower := 0.0
	for _, w := range window {
		windowPower += w * w
	}

	fft := fourier.NewFFT(nperseg)
	nbins := nperseg/2 + 1
	accum := make([]float64, nbins)
	coeffs := make([]complex128, nbins)
	segment := make([]float64, nperseg)

	segments := 0
	for start := 0; start+nperseg <= n; start += step {
		for i := 0; i < nperseg; i++ {
			segment[i] = float64(samples[start+i]) * window[i]
		}
		fft.Coefficients(coeffs, segment)
		for k := 0; k < nbins; k++ {
			mag := real(coeffs[k])*real(coeffs[k]) + imag(coeffs[k])*imag(coeffs[k])
			accum[k] += mag
		}
		segments++
		if start+nperseg == n {
			break
		}
	}
	if segments == 0 {
		// Fewer samples than one segment's minimum: fall back to a single
		// periodogram over the whole window, unwindowed.
		return onePeriodogram(samples, sampleRateHz)
	}

	scale := 1.0 / (sampleRateHz * windowPower * float64(segments))
	freqs = make([]float64, nbins)
	psd = make([]float64, nbins)
	for k := 0; k < nbins; k++ {
		freqs[k] = fft.Freq(k) * sampleRateHz
		v := accum[k] * scale
		if k != 0 && !(nperseg%2 == 0 && k == nbins-1) {
			v *= 2 // one-sided spectrum: fold negative-frequency energy in
		}
		psd[k] = v
	}
	return freqs, psd
}

func onePeriodogram(samples []float32, sampleRateHz float64) (freqs, psd []float64) {
	n := len(samples)
	if n < 2 {
		return nil, nil
	}
	fft := fourier.NewFFT(n)
	nbins := n/2 + 1
	coeffs := make([]complex128, nbins)
	seq := make([]float64, n)
	for i, v := range samples {
		seq[i] = float64(v)
	}
	fft.Coefficients(coeffs, seq)

	freqs = make([]float64, nbins)
	psd = make([]float64, nbins)
	scale := 1.0 / (sampleRateHz * float64(n))
	for k := 0; k < nbins; k++ {
		freqs[k] = fft.Freq(k) * sampleRateHz
		mag := real(coeffs[k])*real(coeffs[k]) + imag(coeffs[k])*imag(coeffs[k])
		v := mag * scale
		if k != 0 && !(n%2 == 0 && k == nbins-1) {
			v *= 2
		}
		psd[k] = v
	}
	return freqs, psd
}

func hannWindow(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := 0; i < n; i++ {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}

// integrateBand sums psd over [loHz, hiHz) using the trapezoidal rule
// across the bins whose frequency falls in the band.
func integrateBand(freqs, psd []float64, loHz, hiHz float64) float64 {
	var sum float64
	for i := 1; i < len(freqs); i++ {
		f0, f1 := freqs[i-1], freqs[i]
		if f1 < loHz || f0 >= hiHz {
			continue
		}
		df := f1 - f0
		sum += df * (psd[i-1] + psd[i]) / 2
	}
	return sum
}

// spectralEntropy is the Shannon entropy (bits) of the PSD normalized to
// a probability distribution over frequency bins.
func spectralEntropy(psd []float64) float64 {
	var total float64
	for _, v := range psd {
		total += v
	}
	if total <= 0 {
		return 0
	}
	var entropy float64
	for _, v := range psd {
		if v <= 0 {
			continue
		}
		p := v / total
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// peakFrequency returns the frequency bin with the highest power.
func peakFrequency(freqs, psd []float64) float64 {
	if len(psd) == 0 {
		return 0
	}
	best := 0
	for i := 1; i < len(psd); i++ {
		if psd[i] > psd[best] {
			best = i
		}
	}
	return freqs[best]
}

// spectralEdge returns the frequency below which fraction of the total
// spectral power is contained (e.g. fraction=0.95 for the 95%
// spectral-edge frequency).
func spectralEdge(freqs, psd []float64, fraction float64) float64 {
	var total float64
	for _, v := range psd {
		total += v
	}
	if total <= 0 {
		return 0
	}
	threshold := total * fraction
	var cumulative float64
	for i, v := range psd {
		cumulative += v
		if cumulative >= threshold {
			return freqs[i]
		}
	}
	return freqs[len(freqs)-1]
}
