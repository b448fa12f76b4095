package features_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/neurascale/neural-engine/pkg/features"
)

func sineWave(n int, freqHz, sampleRateHz float64, amplitude float32) []float32 {
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = amplitude * float32(math.Sin(2*math.Pi*freqHz*float64(i)/sampleRateHz))
	}
	return out
}

func TestComputeTemporal_ConstantSignalHasZeroVarianceFeatures(t *testing.T) {
	samples := make([]float32, 100)
	for i := range samples {
		samples[i] = 5.0
	}
	tf := features.ComputeTemporal(samples)
	assert.InDelta(t, 5.0, tf.Mean, 1e-9)
	assert.InDelta(t, 0, tf.Std, 1e-9)
	assert.InDelta(t, 0, tf.HjorthActivity, 1e-9)
	assert.InDelta(t, 0, tf.ZeroCrossingRate, 1e-9)
	assert.InDelta(t, 0, tf.LineLength, 1e-9)
}

func TestComputeTemporal_SineWaveHasExpectedMeanAndZeroCrossings(t *testing.T) {
	samples := sineWave(1000, 10, 256, 1.0)
	tf := features.ComputeTemporal(samples)
	assert.InDelta(t, 0, tf.Mean, 0.01)
	assert.Greater(t, tf.ZeroCrossingRate, 0.0)
	assert.Greater(t, tf.LineLength, 0.0)
	assert.Greater(t, tf.HjorthMobility, 0.0)
}

func TestComputeTemporal_EmptyInputIsZeroValue(t *testing.T) {
	tf := features.ComputeTemporal(nil)
	assert.Equal(t, features.Temporal{}, tf)
}
