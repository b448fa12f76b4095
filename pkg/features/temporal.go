package features

import "math"

// Temporal holds the per-channel time-domain features spec.md §4.7 names
// for the temporal feature family.
type Temporal struct {
	Mean             float64
	Std              float64
	Skewness         float64
	Kurtosis         float64
	HjorthActivity   float64
	HjorthMobility   float64
	HjorthComplexity float64
	ZeroCrossingRate float64
	LineLength       float64
}

// ComputeTemporal computes all temporal features for one channel's window
// of samples in a single pass.
func ComputeTemporal(samples []float32) Temporal {
	n := len(samples)
	if n == 0 {
		return Temporal{}
	}

	mean := meanFloat32(samples)

	var m2, m3, m4 float64
	for _, v := range samples {
		d := float64(v) - mean
		d2 := d * d
		m2 += d2
		m3 += d2 * d
		m4 += d2 * d2
	}
	m2 /= float64(n)
	m3 /= float64(n)
	m4 /= float64(n)

	std := math.Sqrt(m2)

	var skewness, kurtosis float64
	if std > 0 {
		skewness = m3 / (std * std * std)
		kurtosis = m4/(m2*m2) - 3 // excess kurtosis
	}

	activity, mobility, complexity := hjorth(samples)

	return Temporal{
		Mean:             mean,
		Std:              std,
		Skewness:         skewness,
		Kurtosis:         kurtosis,
		HjorthActivity:   activity,
		HjorthMobility:   mobility,
		HjorthComplexity: complexity,
		ZeroCrossingRate: zeroCrossingRate(samples),
		LineLength:       lineLength(samples),
	}
}

// hjorth computes the Hjorth activity (variance of the signal), mobility
// (ratio of the standard deviations of the first derivative and the
// signal), and complexity (ratio of the mobility of the first derivative
// to the mobility of the signal) parameters.
func hjorth(samples []float32) (activity, mobility, complexity float64) {
	n := len(samples)
	if n < 3 {
		return 0, 0, 0
	}

	d1 := diff(samples)
	d2 := diffFloat64(d1)

	activity = varianceFloat32(samples)
	varD1 := varianceFloat64(d1)
	varD2 := varianceFloat64(d2)

	if activity > 0 {
		mobility = math.Sqrt(varD1 / activity)
	}
	if varD1 > 0 && mobility > 0 {
		mobilityD1 := math.Sqrt(varD2 / varD1)
		complexity = mobilityD1 / mobility
	}
	return activity, mobility, complexity
}

func diff(samples []float32) []float64 {
	if len(samples) < 2 {
		return nil
	}
	out := make([]float64, len(samples)-1)
	for i := 1; i < len(samples); i++ {
		out[i-1] = float64(samples[i]) - float64(samples[i-1])
	}
	return out
}

func diffFloat64(samples []float64) []float64 {
	if len(samples) < 2 {
		return nil
	}
	out := make([]float64, len(samples)-1)
	for i := 1; i < len(samples); i++ {
		out[i-1] = samples[i] - samples[i-1]
	}
	return out
}

func varianceFloat32(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	mean := meanFloat32(samples)
	var sum float64
	for _, v := range samples {
		d := float64(v) - mean
		sum += d * d
	}
	return sum / float64(len(samples))
}

func varianceFloat64(samples []float64) float64 {
	n := len(samples)
	if n == 0 {
		return 0
	}
	var mean float64
	for _, v := range samples {
		mean += v
	}
	mean /= float64(n)
	var sum float64
	for _, v := range samples {
		d := v - mean
		sum += d * d
	}
	return sum / float64(n)
}

// zeroCrossingRate is the fraction of adjacent sample pairs whose sign
// differs, a cheap proxy for dominant frequency content.
func zeroCrossingRate(samples []float32) float64 {
	if len(samples) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(samples); i++ {
		if (samples[i-1] >= 0) != (samples[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(samples)-1)
}

// lineLength is the cumulative absolute amplitude change across the
// window, a common epileptiform-activity and spike-burst indicator.
func lineLength(samples []float32) float64 {
	if len(samples) < 2 {
		return 0
	}
	var sum float64
	for i := 1; i < len(samples); i++ {
		d := float64(samples[i]) - float64(samples[i-1])
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return sum
}
