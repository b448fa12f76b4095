package features

import "math"

// db4LowPass and db4HighPass are the Daubechies-4 (db4, 8-tap) scaling
// and wavelet filter coefficients used for the discrete wavelet
// transform (spec.md §4.7: "db4 decomposition to 5 levels").
var db4LowPass = []float64{
	-0.010597401785069032,
	0.032883011666982945,
	0.030841381835986965,
	-0.18703481171888114,
	-0.02798376941698385,
	0.6308807679295904,
	0.7148465705525415,
	0.23037781330885523,
}

var db4HighPass = buildHighPass(db4LowPass)

// buildHighPass derives the quadrature-mirror high-pass filter from a
// low-pass filter: reverse and alternate sign.
func buildHighPass(lowPass []float64) []float64 {
	n := len(lowPass)
	high := make([]float64, n)
	for i := 0; i < n; i++ {
		sign := 1.0
		if i%2 != 0 {
			sign = -1.0
		}
		high[i] = sign * lowPass[n-1-i]
	}
	return high
}

// WaveletLevel is one decomposition level's detail-coefficient energy
// and entropy.
type WaveletLevel struct {
	Level   int
	Energy  float64
	Entropy float64 // bits (log2)
}

// ComputeWavelet runs a 5-level db4 discrete wavelet decomposition on
// samples and returns the per-level detail-coefficient energy and
// entropy (spec.md §4.7).
func ComputeWavelet(samples []float32) []WaveletLevel {
	const levels = 5

	signal := make([]float64, len(samples))
	for i, v := range samples {
		signal[i] = float64(v)
	}

	out := make([]WaveletLevel, 0, levels)
	approx := signal
	for level := 1; level <= levels; level++ {
		if len(approx) < len(db4LowPass) {
			break
		}
		nextApprox, detail := dwtStep(approx)
		out = append(out, WaveletLevel{
			Level:   level,
			Energy:  energy(detail),
			Entropy: coefficientEntropy(detail),
		})
		approx = nextApprox
	}
	return out
}

// dwtStep performs one level of the db4 DWT: convolve with the low-pass
// and high-pass filters (periodic boundary extension) and downsample by
// 2, returning the approximation and detail coefficient sequences.
func dwtStep(signal []float64) (approx, detail []float64) {
	n := len(signal)
	outLen := n / 2
	approx = make([]float64, outLen)
	detail = make([]float64, outLen)

	taps := len(db4LowPass)
	for i := 0; i < outLen; i++ {
		var a, d float64
		base := 2 * i
		for k := 0; k < taps; k++ {
			idx := (base + k) % n
			a += db4LowPass[k] * signal[idx]
			d += db4HighPass[k] * signal[idx]
		}
		approx[i] = a
		detail[i] = d
	}
	return approx, detail
}

func energy(coeffs []float64) float64 {
	var sum float64
	for _, v := range coeffs {
		sum += v * v
	}
	return sum
}

// coefficientEntropy is the Shannon entropy (bits) of the squared
// coefficients normalized to a probability distribution, the standard
// wavelet energy-entropy feature.
func coefficientEntropy(coeffs []float64) float64 {
	var total float64
	squares := make([]float64, len(coeffs))
	for i, v := range coeffs {
		squares[i] = v * v
		total += squares[i]
	}
	if total <= 0 {
		return 0
	}
	var entropy float64
	for _, sq := range squares {
		if sq <= 0 {
			continue
		}
		p := sq / total
		entropy -= p * math.Log2(p)
	}
	return entropy
}
