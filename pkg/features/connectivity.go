package features

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Connectivity holds the cross-channel features spec.md §4.7 names,
// computed once per window across all channels rather than per channel.
type Connectivity struct {
	Correlation       *mat.SymDense
	MeanOffDiagCorr   float64
	MaxOffDiagCorr    float64
	Coherence         *mat.SymDense // in the requested band
	PhaseLockingValue *mat.SymDense
	PhaseLagIndex     *mat.SymDense
	NetworkDensity    float64
}

// ComputeConnectivity computes the cross-channel connectivity features
// over channels, each a slice of equal-length float64 samples, for the
// coherence band [coherenceLoHz, coherenceHiHz) at sampleRateHz
// (spec.md §4.7).
func ComputeConnectivity(channels [][]float64, sampleRateHz, coherenceLoHz, coherenceHiHz float64) Connectivity {
	n := len(channels)
	if n < 2 {
		return Connectivity{}
	}

	corr := mat.NewSymDense(n, nil)
	coh := mat.NewSymDense(n, nil)
	plv := mat.NewSymDense(n, nil)
	pli := mat.NewSymDense(n, nil)

	phases := make([][]float64, n)
	for i, ch := range channels {
		phases[i] = hilbertPhase(ch)
	}

	var offDiagSum, offDiagMax float64
	var offDiagCount, denseCount int
	for i := 0; i < n; i++ {
		corr.SetSym(i, i, 1)
		coh.SetSym(i, i, 1)
		plv.SetSym(i, i, 1)
		pli.SetSym(i, i, 0)
		for j := i + 1; j < n; j++ {
			c := stat.Correlation(channels[i], channels[j], nil)
			corr.SetSym(i, j, c)

			abs := math.Abs(c)
			offDiagSum += abs
			offDiagCount++
			if abs > offDiagMax {
				offDiagMax = abs
			}
			if abs > 0.5 {
				denseCount++
			}

			coh.SetSym(i, j, coherence(channels[i], channels[j], sampleRateHz, coherenceLoHz, coherenceHiHz))
			plv.SetSym(i, j, phaseLockingValue(phases[i], phases[j]))
			pli.SetSym(i, j, phaseLagIndex(phases[i], phases[j]))
		}
	}

	meanOffDiag := 0.0
	density := 0.0
	if offDiagCount > 0 {
		meanOffDiag = offDiagSum / float64(offDiagCount)
		density = float64(denseCount) / float64(offDiagCount)
	}

	return Connectivity{
		Correlation:       corr,
		MeanOffDiagCorr:   meanOffDiag,
		MaxOffDiagCorr:    offDiagMax,
		Coherence:         coh,
		PhaseLockingValue: plv,
		PhaseLagIndex:     pli,
		NetworkDensity:    density,
	}
}

// hilbertPhase returns the instantaneous phase (radians) of x's analytic
// signal, computed via the standard FFT technique: take the full
// complex spectrum, zero the negative-frequency half, double the
// positive half, inverse transform.
func hilbertPhase(x []float64) []float64 {
	n := len(x)
	if n == 0 {
		return nil
	}
	seq := make([]complex128, n)
	for i, v := range x {
		seq[i] = complex(v, 0)
	}

	cfft := fourier.NewCmplxFFT(n)
	spectrum := make([]complex128, n)
	cfft.Coefficients(spectrum, seq)

	// Bin 0 (DC) and, for even n, the Nyquist bin stay as-is; positive
	// frequency bins (1..n/2, exclusive of Nyquist) double; negative
	// frequency bins (n/2+1..n-1, or n/2+1..n-1 for odd n) zero.
	half := n / 2
	for k := 1; k < n; k++ {
		switch {
		case n%2 == 0 && k == half:
			// Nyquist: unchanged.
		case k <= half:
			spectrum[k] *= 2
		default:
			spectrum[k] = 0
		}
	}

	analytic := make([]complex128, n)
	cfft.Sequence(analytic, spectrum)

	phase := make([]float64, n)
	for i, c := range analytic {
		phase[i] = math.Atan2(imag(c)/float64(n), real(c)/float64(n))
	}
	return phase
}

// phaseLockingValue is the magnitude of the mean unit phase-difference
// vector between two phase series.
func phaseLockingValue(phaseA, phaseB []float64) float64 {
	n := len(phaseA)
	if n == 0 || n != len(phaseB) {
		return 0
	}
	var sumRe, sumIm float64
	for i := 0; i < n; i++ {
		d := phaseA[i] - phaseB[i]
		sumRe += math.Cos(d)
		sumIm += math.Sin(d)
	}
	sumRe /= float64(n)
	sumIm /= float64(n)
	return math.Hypot(sumRe, sumIm)
}

// phaseLagIndex is the absolute value of the mean sign of the phase
// difference's imaginary part (Stam et al. 2007), insensitive to
// zero-lag (volume-conduction) coupling.
func phaseLagIndex(phaseA, phaseB []float64) float64 {
	n := len(phaseA)
	if n == 0 || n != len(phaseB) {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := phaseA[i] - phaseB[i]
		sum += math.Copysign(1, math.Sin(d))
	}
	return math.Abs(sum / float64(n))
}

// coherence estimates the magnitude-squared spectral coherence between
// two channels, averaged over the bins in [loHz, hiHz), using each
// channel's own Welch cross/auto power estimates.
func coherence(a, b []float64, sampleRateHz, loHz, hiHz float64) float64 {
	n := len(a)
	if n == 0 || n != len(b) || sampleRateHz <= 0 {
		return 0
	}
	af := toFloat32(a)
	bf := toFloat32(b)

	freqs, psdA := welchPSD(af, sampleRateHz)
	_, psdB := welchPSD(bf, sampleRateHz)
	crossMag := crossPSDMagnitude(af, bf, sampleRateHz)
	if len(freqs) == 0 {
		return 0
	}

	var num, denA, denB float64
	for i, f := range freqs {
		if f < loHz || f >= hiHz {
			continue
		}
		num += crossMag[i]
		denA += psdA[i]
		denB += psdB[i]
	}
	if denA <= 0 || denB <= 0 {
		return 0
	}
	coh := (num * num) / (denA * denB)
	if coh > 1 {
		coh = 1
	}
	return coh
}

// crossPSDMagnitude computes |cross power spectral density| between a
// and b over the same single-segment periodogram basis welchPSD uses
// for the auto-spectra, so the coherence ratio is self-consistent.
func crossPSDMagnitude(a, b []float32, sampleRateHz float64) []float64 {
	n := len(a)
	if n == 0 {
		return nil
	}
	fft := fourier.NewFFT(n)
	nbins := n/2 + 1
	ca := make([]complex128, nbins)
	cb := make([]complex128, nbins)
	seqA := make([]float64, n)
	seqB := make([]float64, n)
	for i := range a {
		seqA[i] = float64(a[i])
		seqB[i] = float64(b[i])
	}
	fft.Coefficients(ca, seqA)
	fft.Coefficients(cb, seqB)

	out := make([]float64, nbins)
	scale := 1.0 / (sampleRateHz * float64(n))
	for k := 0; k < nbins; k++ {
		cross := ca[k] * complexConj(cb[k])
		out[k] = math.Hypot(real(cross), imag(cross)) * scale
	}
	return out
}

func complexConj(c complex128) complex128 {
	return complex(real(c), -imag(c))
}

func toFloat32(x []float64) []float32 {
	out := make([]float32, len(x))
	for i, v := range x {
		out[i] = float32(v)
	}
	return out
}
