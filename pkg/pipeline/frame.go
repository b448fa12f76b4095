package pipeline

import (
	"crypto/sha256"
	"fmt"
	"math"
	"sort"

	"github.com/neurascale/neural-engine/pkg/features"
	"github.com/neurascale/neural-engine/pkg/sample"
)

// ChannelFeatureSet is one channel's per-window feature computation
// (spec.md §4.7), the choice of which families apply driven by the
// window's data_type (see featureFamiliesFor).
type ChannelFeatureSet struct {
	ChannelID string
	Temporal  features.Temporal
	Spectral  *features.Spectral
	Wavelet   []features.WaveletLevel
	Spike     *features.SpikeStats
	Quality   features.ChannelQuality
}

// Frame is spec.md §3's FeatureFrame: the immutable output of one
// session/window computation.
type Frame struct {
	SessionID             string
	WindowStartNs         int64
	WindowEndNs           int64
	DataType              sample.DataType
	ChannelFeatures       []ChannelFeatureSet
	CrossChannel          *features.Connectivity
	DerivedFromChunkRange [2]uint64
}

// Hash returns the SHA-256 of a deterministic summary of the frame,
// recorded as the ledger's features_hash (spec.md §4.6: "features_computed
// ledger events (metadata only — no raw feature payload — plus
// features_hash)") rather than any raw feature payload.
func (f *Frame) Hash() [32]byte {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%d|%s|%d", f.SessionID, f.WindowStartNs, f.WindowEndNs, f.DataType, len(f.ChannelFeatures))
	for _, cf := range f.ChannelFeatures {
		fmt.Fprintf(h, "|%s:%.6f:%.6f", cf.ChannelID, cf.Temporal.Mean, cf.Quality.Overall)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// continuousDataTypes computes spectral/wavelet features (power-spectrum
// and decomposition-based), appropriate for waveform-like signals.
var continuousDataTypes = map[sample.DataType]bool{
	sample.DataTypeEEG:  true,
	sample.DataTypeECoG: true,
	sample.DataTypeLFP:  true,
	sample.DataTypeEMG:  true,
}

// computeChannelFeatures runs the temporal family always, and the
// spectral/wavelet or spike-specific families depending on data_type
// (spec.md §4.7: "choice driven by data_type") — continuous waveform
// types get spectral+wavelet, DataTypeSpikes gets spike detection
// instead, since a spike channel's "samples" are already a thresholded
// event channel rather than a continuous waveform suited to Welch PSD
// or a wavelet decomposition.
func computeChannelFeatures(dataType sample.DataType, ch sample.Channel, samples []float32, sampleRateHz float64) ChannelFeatureSet {
	cf := ChannelFeatureSet{
		ChannelID: ch.ID,
		Temporal:  features.ComputeTemporal(samples),
	}

	switch {
	case dataType == sample.DataTypeSpikes:
		spikes := features.DetectSpikes(samples, sampleRateHz)
		cf.Spike = &spikes
	case continuousDataTypes[dataType]:
		spectral := features.ComputeSpectral(samples, sampleRateHz)
		cf.Spectral = &spectral
		cf.Wavelet = features.ComputeWavelet(samples)
	}

	snrDB := estimateChannelSNR(samples)
	lineNoise50 := features.LineNoiseRatio(samples, sampleRateHz, 50)
	lineNoise60 := features.LineNoiseRatio(samples, sampleRateHz, 60)
	var artifacts []features.ArtifactFlag
	if features.DetectFlatline(samples) {
		artifacts = append(artifacts, features.ArtifactFlatline)
	}
	if features.DetectClipping(samples) {
		artifacts = append(artifacts, features.ArtifactClip)
	}
	cf.Quality = features.ScoreChannel(ch.ID, snrDB, lineNoise50, lineNoise60, artifacts, features.QualityWeights{})

	return cf
}

// estimateChannelSNR is the same first-difference noise-power heuristic
// pkg/ingestion.ScoreChunk uses, reused here so window-level quality
// scoring and ingestion-level quality scoring agree on one definition.
func estimateChannelSNR(samples []float32) float64 {
	n := len(samples)
	if n < 2 {
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
	signalPower /= float64(n)
	noisePower /= float64(n - 1)
	if noisePower <= 0 {
		if signalPower <= 0 {
			return 0
		}
		return 60 // effectively noiseless, cap rather than divide by zero
	}
	ratio := signalPower / noisePower
	if ratio <= 0 {
		return 0
	}
	return 10 * math.Log10(ratio)
}

// ComputeFrame runs the full per-channel and cross-channel feature
// computation over a closed window (spec.md §4.6/§4.7).
func ComputeFrame(w *WindowAccumulator, coherenceLoHz, coherenceHiHz float64) *Frame {
	sampleRateHz := float64(w.SamplingRate)
	channels := w.Channels()

	channelFeatures := make([]ChannelFeatureSet, 0, len(channels))
	sampleMatrix := make([][]float64, 0, len(channels))
	for _, ch := range channels {
		samples := w.SamplesFor(ch.ID)
		channelFeatures = append(channelFeatures, computeChannelFeatures(w.DataType, ch, samples, sampleRateHz))

		f64 := make([]float64, len(samples))
		for i, v := range samples {
			f64[i] = float64(v)
		}
		sampleMatrix = append(sampleMatrix, f64)
	}

	frame := &Frame{
		SessionID:             w.SessionID,
		WindowStartNs:         w.StartNs,
		WindowEndNs:           w.EndNs,
		DataType:              w.DataType,
		ChannelFeatures:       channelFeatures,
		DerivedFromChunkRange: [2]uint64{w.FirstChunkSeq, w.LastChunkSeq},
	}

	if continuousDataTypes[w.DataType] && len(sampleMatrix) >= 2 {
		conn := features.ComputeConnectivity(sampleMatrix, sampleRateHz, coherenceLoHz, coherenceHiHz)
		frame.CrossChannel = &conn
	}

	sort.SliceStable(frame.ChannelFeatures, func(i, j int) bool {
		return frame.ChannelFeatures[i].ChannelID < frame.ChannelFeatures[j].ChannelID
	})

	return frame
}
