// Package features is the pure-function signal quality and feature
// library shared by ingestion (quality only), the windowed pipeline
// (full feature set), and device impedance probing (spec.md §4.7).
// Nothing in this package performs I/O; every function takes plain
// numeric slices and returns plain numeric results.
package features

import "math"

// ArtifactFlag names a category of signal artifact detectable from a
// channel's waveform.
type ArtifactFlag string

const (
	ArtifactEye      ArtifactFlag = "eye"
	ArtifactMuscle   ArtifactFlag = "muscle"
	ArtifactHeart    ArtifactFlag = "heart"
	ArtifactClip     ArtifactFlag = "clip"
	ArtifactFlatline ArtifactFlag = "flatline"
)

// QualityLevel buckets a channel's overall quality score for display and
// for the "any artifact caps at fair" rule (spec.md §4.7).
type QualityLevel string

const (
	QualityExcellent QualityLevel = "excellent"
	QualityGood      QualityLevel = "good"
	QualityFair      QualityLevel = "fair"
	QualityPoor      QualityLevel = "poor"
	QualityBad       QualityLevel = "bad"
)

// qualityWeights are the default contributions of SNR, line-noise ratio,
// and artifact-flag penalty to a channel's overall quality score
// (spec.md §4.7: defaults 0.5/0.3/0.2). Configurable per deployment via
// QualityWeights, mirroring the named-weight-table shape used elsewhere
// in the pack for similarly tunable scoring (e.g. a label-weighted boost
// score), just populated with this package's own domain values.
type QualityWeights struct {
	SNR       float64
	LineNoise float64
	Artifact  float64
}

// DefaultQualityWeights are spec.md §4.7's defaults.
var DefaultQualityWeights = QualityWeights{SNR: 0.5, LineNoise: 0.3, Artifact: 0.2}

// ChannelQuality is one channel's quality assessment.
type ChannelQuality struct {
	ChannelID     string
	SNRdB         float64
	LineNoise50Hz float64
	LineNoise60Hz float64
	Artifacts     []ArtifactFlag
	Overall       float64
	Level         QualityLevel
}

// QualityReport is the per-channel quality assessment produced on
// ingestion windows and explicit impedance probes (spec.md §3).
type QualityReport struct {
	Channels []ChannelQuality
	Overall  float64
}

// snrScore maps an SNR in dB onto [0,1] using a soft ceiling: 0 dB or
// below scores 0, 30 dB or above scores 1, linear in between. 30 dB is a
// generous but finite ceiling for scalp EEG-class SNR.
func snrScore(snrDB float64) float64 {
	const ceiling = 30.0
	if snrDB <= 0 {
		return 0
	}
	if snrDB >= ceiling {
		return 1
	}
	return snrDB / ceiling
}

// lineNoiseScore maps a line-noise ratio (power at 50/60 Hz relative to
// broadband power) onto [0,1]: 0 ratio scores 1 (no contamination), a
// ratio of 1 or more scores 0.
func lineNoiseScore(ratio float64) float64 {
	if ratio <= 0 {
		return 1
	}
	if ratio >= 1 {
		return 0
	}
	return 1 - ratio
}

// GetQualityWeights returns w if it is non-zero, else DefaultQualityWeights.
func GetQualityWeights(w QualityWeights) QualityWeights {
	if w.SNR == 0 && w.LineNoise == 0 && w.Artifact == 0 {
		return DefaultQualityWeights
	}
	return w
}

// ScoreChannel computes a channel's overall quality score and level from
// its SNR, worst-case line-noise ratio, and detected artifact flags,
// using the weighted combination from spec.md §4.7.
func ScoreChannel(channelID string, snrDB, lineNoise50, lineNoise60 float64, artifacts []ArtifactFlag, weights QualityWeights) ChannelQuality {
	weights = GetQualityWeights(weights)

	worstLineNoise := lineNoise50
	if lineNoise60 > worstLineNoise {
		worstLineNoise = lineNoise60
	}

	artifactPenalty := 0.0
	if len(artifacts) > 0 {
		artifactPenalty = 1.0
	}

	overall := weights.SNR*snrScore(snrDB) +
		weights.LineNoise*lineNoiseScore(worstLineNoise) +
		weights.Artifact*(1-artifactPenalty)

	level := LevelForScore(overall)
	if len(artifacts) > 0 && levelRank(level) > levelRank(QualityFair) {
		level = QualityFair
	}

	return ChannelQuality{
		ChannelID:     channelID,
		SNRdB:         snrDB,
		LineNoise50Hz: lineNoise50,
		LineNoise60Hz: lineNoise60,
		Artifacts:     artifacts,
		Overall:       overall,
		Level:         level,
	}
}

// LevelForScore maps a [0,1] overall score onto a QualityLevel using the
// thresholds in spec.md §4.7.
func LevelForScore(score float64) QualityLevel {
	switch {
	case score >= 0.85:
		return QualityExcellent
	case score >= 0.7:
		return QualityGood
	case score >= 0.5:
		return QualityFair
	case score >= 0.3:
		return QualityPoor
	default:
		return QualityBad
	}
}

// levelRank orders QualityLevel from worst (0) to best (4), so callers
// can compare two levels without string matching.
func levelRank(level QualityLevel) int {
	switch level {
	case QualityBad:
		return 0
	case QualityPoor:
		return 1
	case QualityFair:
		return 2
	case QualityGood:
		return 3
	case QualityExcellent:
		return 4
	default:
		return 0
	}
}

// ScoreReport computes a QualityReport across all channels, with the
// report's Overall being the mean of per-channel scores.
func ScoreReport(channels []ChannelQuality) QualityReport {
	if len(channels) == 0 {
		return QualityReport{}
	}
	sum := 0.0
	for _, c := range channels {
		sum += c.Overall
	}
	return QualityReport{Channels: channels, Overall: sum / float64(len(channels))}
}

// DetectFlatline reports whether a channel's samples are flat (zero or
// near-zero variance), one of the artifact flags spec.md §4.7 names.
func DetectFlatline(samples []float32) bool {
	if len(samples) < 2 {
		return false
	}
	mean := meanFloat32(samples)
	var variance float64
	for _, v := range samples {
		d := float64(v) - mean
		variance += d * d
	}
	variance /= float64(len(samples))
	return variance < 1e-9
}

// DetectClipping reports whether a channel's samples repeatedly hit a
// saturation ceiling, inferred as >= 3 consecutive samples within 0.1% of
// the channel's observed max absolute value.
func DetectClipping(samples []float32) bool {
	if len(samples) < 3 {
		return false
	}
	maxAbs := float32(0)
	for _, v := range samples {
		av := v
		if av < 0 {
			av = -av
		}
		if av > maxAbs {
			maxAbs = av
		}
	}
	if maxAbs == 0 {
		return false
	}
	threshold := maxAbs * 0.999
	run := 0
	for _, v := range samples {
		av := v
		if av < 0 {
			av = -av
		}
		if av >= threshold {
			run++
			if run >= 3 {
				return true
			}
		} else {
			run = 0
		}
	}
	return false
}

func meanFloat32(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		sum += float64(v)
	}
	return sum / float64(len(samples))
}

// LineNoiseRatio estimates the fraction of a channel's broadband power
// concentrated at a given line frequency, using a Goertzel-style single
// bin power estimate rather than a full spectrum (cheap enough to run on
// every ingestion window).
func LineNoiseRatio(samples []float32, sampleRateHz float64, lineFreqHz float64) float64 {
	n := len(samples)
	if n == 0 || sampleRateHz <= 0 {
		return 0
	}

	var broadband float64
	for _, v := range samples {
		broadband += float64(v) * float64(v)
	}
	if broadband == 0 {
		return 0
	}

	k := int(0.5 + float64(n)*lineFreqHz/sampleRateHz)
	omega := 2 * math.Pi * float64(k) / float64(n)
	coeff := 2 * math.Cos(omega)

	var s0, s1, s2 float64
	for _, v := range samples {
		s0 = float64(v) + coeff*s1 - s2
		s2 = s1
		s1 = s0
	}
	power := s1*s1 + s2*s2 - coeff*s1*s2

	ratio := power / (broadband * float64(n))
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	return ratio
}
