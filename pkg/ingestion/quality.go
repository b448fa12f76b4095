package ingestion

import (
	"math"

	"github.com/neurascale/neural-engine/pkg/features"
	"github.com/neurascale/neural-engine/pkg/sample"
)

// ScoreChunk runs the ingestion quality pass over a chunk's samples
// (spec.md §4.5 step 3): per-channel SNR, line-noise at 50/60 Hz, and
// flatline/clipping artifacts, combined into an overall quality score.
func ScoreChunk(chunk *sample.Chunk, weights features.QualityWeights) features.QualityReport {
	channels := make([]features.ChannelQuality, 0, chunk.NumChannels())

	for i, row := range chunk.Samples {
		channelID := "unknown"
		if i < len(chunk.Channels) {
			channelID = chunk.Channels[i].ID
		}

		var artifacts []features.ArtifactFlag
		if features.DetectFlatline(row) {
			artifacts = append(artifacts, features.ArtifactFlatline)
		}
		if features.DetectClipping(row) {
			artifacts = append(artifacts, features.ArtifactClip)
		}

		snrDB := estimateSNRdB(row)
		lineNoise50 := features.LineNoiseRatio(row, float64(chunk.SamplingRateHz), 50)
		lineNoise60 := features.LineNoiseRatio(row, float64(chunk.SamplingRateHz), 60)

		channels = append(channels, features.ScoreChannel(channelID, snrDB, lineNoise50, lineNoise60, artifacts, weights))
	}

	return features.ScoreReport(channels)
}

// estimateSNRdB estimates a channel's signal-to-noise ratio in dB
// without a reference noise recording: the first-difference series
// approximates wideband noise (it suppresses slow signal content much
// more than genuine sample-to-sample noise), so the ratio of the raw
// signal's power to the first-difference power is a usable proxy.
func estimateSNRdB(samples []float32) float64 {
	if len(samples) < 2 {
		return 0
	}

	var signalPower, noisePower float64
	for i, v := range samples {
		signalPower += float64(v) * float64(v)
		if i > 0 {
			d := float64(v) - float64(samples[i-1])
			noisePower += d * d
		}
	}
	signalPower /= float64(len(samples))
	noisePower /= float64(len(samples) - 1)

	if noisePower <= 1e-12 {
		return 30 // indistinguishable from noiseless; cap at the scoring ceiling
	}
	ratio := signalPower / noisePower
	if ratio <= 0 {
		return 0
	}
	return 10 * math.Log10(ratio)
}
